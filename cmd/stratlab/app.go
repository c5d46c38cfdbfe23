package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratlab/internal/config"
	"github.com/ajitpratap0/stratlab/internal/evaluation"
	"github.com/ajitpratap0/stratlab/internal/events"
	"github.com/ajitpratap0/stratlab/internal/metrics"
	"github.com/ajitpratap0/stratlab/internal/risk"
	"github.com/ajitpratap0/stratlab/pkg/backtest"
	"github.com/ajitpratap0/stratlab/pkg/optimize"
	"github.com/ajitpratap0/stratlab/pkg/walkforward"
)

// app wires the synthetic backend to the evaluation middleware and the
// optional Redis, NATS and metrics services
type app struct {
	cfg       *config.Config
	backend   *evaluation.SyntheticBackend
	strategy  *backtest.Strategy
	guard     *evaluation.Guard
	redis     *redis.Client
	publisher *events.Publisher
	server    *metrics.Server
	log       zerolog.Logger
}

func newApp(cfg *config.Config) (*app, error) {
	settings, err := cfg.Backend.Settings()
	if err != nil {
		return nil, err
	}
	backend := evaluation.NewSyntheticBackend(settings)

	a := &app{
		cfg:      cfg,
		backend:  backend,
		strategy: backend.Strategy(),
		guard:    evaluation.NewGuard("synthetic", cfg.Evaluation.Guard),
		log:      config.NewLogger("stratlab"),
	}

	if cfg.Evaluation.Cache.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	if cfg.NATS.Enabled {
		pub, err := events.Connect(events.Config{URL: cfg.NATS.URL, Prefix: cfg.NATS.Prefix})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.publisher = pub
	}

	if cfg.Monitoring.EnableMetrics {
		a.server = metrics.NewServer(cfg.Monitoring.PrometheusPort, log.Logger)
		if err := a.server.Start(); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

// Close releases every service connection
func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close event publisher")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Failed to shut down metrics server")
		}
	}
}

// cacheScope identifies the market an evaluation ran on
func (a *app) cacheScope(suffix string) string {
	scope := fmt.Sprintf("%s:%d", a.strategy.ID, a.backend.Config().Seed)
	if suffix != "" {
		scope += ":" + suffix
	}
	return scope
}

// wrap decorates an evaluator with the cache and the guard.
// The cache sits outside the guard so hits skip rate limiting.
func (a *app) wrap(eval optimize.EvaluateFunc, scope string) optimize.EvaluateFunc {
	eval = a.guard.Wrap(eval)
	if a.redis != nil {
		c := a.cfg.Evaluation.Cache
		eval = evaluation.NewCache(a.redis, c.Prefix, a.cacheScope(scope), c.TTL).Wrap(eval)
	}
	return eval
}

func (a *app) optimizerConfig() (optimize.Config, error) {
	return a.cfg.Optimizer.Build()
}

// ============================================================================
// MODES
// ============================================================================

func (a *app) optimize(ctx context.Context) (report, error) {
	kind, err := a.cfg.Optimizer.Kind()
	if err != nil {
		return nil, err
	}
	optCfg, err := a.optimizerConfig()
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	runLog := config.NewRunLogger(runID, string(kind))

	if a.publisher != nil {
		optCfg.Progress = a.publisher.Progress(runID, a.strategy)
		if err := a.publisher.Started(ctx, runID, a.strategy, kind); err != nil {
			runLog.Warn().Err(err).Msg("Failed to publish start event")
		}
	}

	result, err := optimize.Run(ctx, kind, optCfg, a.strategy, a.wrap(a.backend.Evaluate, ""))
	if err != nil {
		if a.publisher != nil {
			if perr := a.publisher.Failed(context.Background(), runID, a.strategy, kind, err); perr != nil {
				runLog.Warn().Err(perr).Msg("Failed to publish failure event")
			}
		}
		return nil, err
	}

	if a.publisher != nil {
		if err := a.publisher.Completed(ctx, runID, a.strategy, result); err != nil {
			runLog.Warn().Err(err).Msg("Failed to publish completion event")
		}
	}

	runLog.Info().
		Float64("best_fitness", result.BestFitness).
		Int("evaluations", result.Evaluations).
		Dur("duration", result.Duration).
		Msg("Optimization finished")

	best := result.BestResult
	if best == nil {
		best = backtest.CalculateMetrics(a.backend.Trades(result.BestParameters), a.backend.Config().InitialBalance)
	}

	return &optimizeReport{
		RunID:    runID,
		Strategy: a.strategy,
		Result:   result,
		Best:     best,
		Sizing:   a.sizing(best.Trades),
	}, nil
}

func (a *app) monteCarlo(ps backtest.ParameterSet) (report, error) {
	trades := a.backend.Trades(ps)
	sim := a.cfg.MonteCarlo.Simulator()

	result, err := sim.SimulateEnhanced(trades, a.backend.Config().InitialBalance)
	if err != nil {
		return nil, err
	}

	return &monteCarloReport{
		Strategy:   a.strategy,
		Parameters: ps,
		Trades:     len(trades),
		Result:     result,
		Sizing:     a.sizing(trades),
	}, nil
}

func (a *app) walkForward(ctx context.Context, ps backtest.ParameterSet) (report, error) {
	optCfg, err := a.optimizerConfig()
	if err != nil {
		return nil, err
	}
	analyzer, err := a.cfg.WalkForward.Analyzer(a.strategy, optCfg)
	if err != nil {
		return nil, err
	}
	analyzer.InitialBalance = a.backend.Config().InitialBalance

	factory := a.backend.WindowEvaluators(func(w walkforward.Window, eval optimize.EvaluateFunc) optimize.EvaluateFunc {
		return a.wrap(eval, fmt.Sprintf("%d-%d", w.InSampleStart.Unix(), w.InSampleEnd.Unix()))
	})

	result, err := analyzer.Analyze(ctx, a.backend.Trades(ps), a.backend.Start(), a.backend.End(), factory)
	if err != nil {
		return nil, err
	}

	return &walkForwardReport{
		Strategy:   a.strategy,
		Parameters: ps,
		WindowDays: analyzer.WindowDays,
		Result:     result,
	}, nil
}

func (a *app) sensitivity(ctx context.Context) (report, error) {
	result, err := optimize.AnalyzeSensitivity(ctx, a.strategy, a.wrap(a.backend.Evaluate, ""), optimize.SensitivityConfig{
		Samples:     *samples,
		Parallelism: a.cfg.Optimizer.Parallelism,
	})
	if err != nil {
		return nil, err
	}
	return &sensitivityReport{Result: result}, nil
}

// sizing derives position sizing guidance from a trade history
func (a *app) sizing(trades []backtest.Trade) *sizingAdvice {
	stats := risk.CalculateTradeStats(trades)
	kelly := risk.KellyPercent(stats)

	advice := &sizingAdvice{
		Stats:          stats,
		KellyPercent:   kelly,
		Recommendation: risk.KellyRecommendation(kelly),
		KellySize:      risk.KellyPositionSize(stats, a.cfg.Risk.Balance, a.cfg.Risk.KellyFraction).String(),
		Generated:      time.Now().UTC(),
	}

	manager, err := a.cfg.Risk.Manager()
	if err != nil {
		a.log.Warn().Err(err).Msg("Risk manager unavailable")
		return advice
	}
	advice.RiskPerTrade = manager.RiskPerTradeAmount().String()
	advice.MaxLoss = manager.MaxLossAmount().String()
	return advice
}
