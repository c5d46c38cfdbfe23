// StratLab CLI
// Optimizes, stress-tests and validates trading strategy parameters against
// a synthetic market
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratlab/internal/config"
	"github.com/ajitpratap0/stratlab/internal/metrics"
	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

// Run modes
const (
	modeOptimize    = "optimize"
	modeMonteCarlo  = "montecarlo"
	modeWalkForward = "walkforward"
	modeSensitivity = "sensitivity"
)

// ============================================================================
// CLI FLAGS
// ============================================================================

var (
	configPath = flag.String("config", "", "Path to config file (default ./configs/config.yaml)")

	// Overrides
	method     = flag.String("method", "", "Optimization method (bayesian, particle_swarm, simulated_annealing, ant_colony, differential_evolution, genetic, grid_search)")
	objective  = flag.String("objective", "", "Objective (default, sharpe, sortino, calmar, profit, drawdown, balanced)")
	iterations = flag.Int("iterations", 0, "Iteration budget for every algorithm")
	seed       = flag.Int64("seed", 0, "Random seed for optimizers and simulations (0 keeps config)")
	params     = flag.String("params", "", "Parameter values, e.g. fast_period=5,slow_period=20 (default strategy values)")
	samples    = flag.Int("samples", 10, "Values per parameter in sensitivity mode")

	// Services
	useCache    = flag.Bool("cache", false, "Memoize evaluations in Redis")
	useEvents   = flag.Bool("events", false, "Publish optimizer events to NATS")
	serveMetric = flag.Bool("metrics", false, "Expose Prometheus metrics while running")

	// Output
	format      = flag.String("format", "text", "Output format (text, yaml)")
	outputFile  = flag.String("output", "", "Output file for results (optional)")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// ============================================================================
// MAIN
// ============================================================================

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println("stratlab", config.GetVersion())
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one mode is required")
		flag.Usage()
		os.Exit(2)
	}
	mode := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(cfg)

	level := cfg.App.LogLevel
	if *verbose {
		level = "debug"
	}
	config.InitLogger(level, cfg.App.LogFormat)

	if *format != "text" && *format != "yaml" {
		log.Fatal().Str("format", *format).Msg("Unknown output format (use text or yaml)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.NewValidator(cfg, config.DefaultValidatorOptions()).ValidateStartup(ctx); err != nil {
		log.Fatal().Err(err).Msg("Startup validation failed")
	}

	if err := run(ctx, cfg, mode); err != nil {
		metrics.RecordError("run_failed", mode)
		log.Fatal().Err(err).Str("mode", mode).Msg("Run failed")
	}
}

func run(ctx context.Context, cfg *config.Config, mode string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	selected, err := parseParams(a.strategy, *params)
	if err != nil {
		return err
	}

	log.Info().
		Str("mode", mode).
		Str("strategy", a.strategy.Name).
		Str("symbol", a.backend.Config().Symbol).
		Int("bars", a.backend.Config().Bars).
		Msg("Starting StratLab")

	if a.server != nil {
		a.server.RunStarted()
		defer a.server.RunFinished()
	}

	var out report
	switch mode {
	case modeOptimize:
		out, err = a.optimize(ctx)
	case modeMonteCarlo:
		out, err = a.monteCarlo(selected)
	case modeWalkForward:
		out, err = a.walkForward(ctx, selected)
	case modeSensitivity:
		out, err = a.sensitivity(ctx)
	default:
		return fmt.Errorf("unknown mode %q (available: %s, %s, %s, %s)",
			mode, modeOptimize, modeMonteCarlo, modeWalkForward, modeSensitivity)
	}
	if err != nil {
		return err
	}

	return write(out)
}

// applyOverrides copies explicitly set flags over the loaded configuration
func applyOverrides(cfg *config.Config) {
	if *method != "" {
		cfg.Optimizer.Method = *method
		cfg.WalkForward.Optimizer = *method
	}
	if *objective != "" {
		cfg.Optimizer.Objective = *objective
	}
	if *iterations > 0 {
		cfg.Optimizer.Iterations = *iterations
		cfg.WalkForward.Iterations = *iterations
	}
	if *seed != 0 {
		cfg.Optimizer.Seed = *seed
		cfg.MonteCarlo.Seed = *seed
	}
	if *useCache {
		cfg.Evaluation.Cache.Enabled = true
	}
	if *useEvents {
		cfg.NATS.Enabled = true
	}
	if *serveMetric {
		cfg.Monitoring.EnableMetrics = true
	}
}

func write(out report) error {
	var (
		data []byte
		err  error
	)
	if *format == "yaml" {
		data, err = out.YAML()
	} else {
		data = []byte(out.Text())
	}
	if err != nil {
		return fmt.Errorf("failed to render output: %w", err)
	}

	fmt.Println(string(data))

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, data, 0o600); err != nil {
			log.Warn().Err(err).Str("file", *outputFile).Msg("Failed to write output file")
		} else {
			log.Info().Str("file", *outputFile).Msg("Report written to file")
		}
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: stratlab [flags] <mode>\n\n")
	fmt.Fprintf(os.Stderr, "Modes:\n")
	fmt.Fprintf(os.Stderr, "  %-12s search the parameter space for the best fitness\n", modeOptimize)
	fmt.Fprintf(os.Stderr, "  %-12s shuffle trade order to estimate outcome ranges and tail risk\n", modeMonteCarlo)
	fmt.Fprintf(os.Stderr, "  %-12s optimize on rolling in-sample windows and score out-of-sample\n", modeWalkForward)
	fmt.Fprintf(os.Stderr, "  %-12s sweep each parameter and correlate it with the metrics\n\n", modeSensitivity)
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flag.PrintDefaults()
}

// ============================================================================
// UTILITIES
// ============================================================================

// parseParams reads name=value pairs over the strategy defaults
func parseParams(strategy *backtest.Strategy, s string) (backtest.ParameterSet, error) {
	ps := strategy.Defaults()
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q (use name=value)", pair)
		}
		name = strings.TrimSpace(name)
		if _, known := strategy.Parameter(name); !known {
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", name, err)
		}
		ps[name] = value
	}
	if err := backtest.ValidateParameters(strategy, ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// shutdownTimeout bounds graceful shutdown of the metrics server
const shutdownTimeout = 5 * time.Second
