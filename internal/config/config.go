package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/stratlab/internal/evaluation"
	"github.com/ajitpratap0/stratlab/internal/risk"
	"github.com/ajitpratap0/stratlab/pkg/backtest"
	"github.com/ajitpratap0/stratlab/pkg/montecarlo"
	"github.com/ajitpratap0/stratlab/pkg/optimize"
	"github.com/ajitpratap0/stratlab/pkg/walkforward"
)

// EnvPrefix prefixes every environment override, e.g. STRATLAB_OPTIMIZER_METHOD
const EnvPrefix = "STRATLAB"

// Config holds all application configuration
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Optimizer   OptimizerConfig   `mapstructure:"optimizer"`
	MonteCarlo  MonteCarloConfig  `mapstructure:"montecarlo"`
	WalkForward WalkForwardConfig `mapstructure:"walkforward"`
	Risk        RiskConfig        `mapstructure:"risk"`
	Evaluation  EvaluationConfig  `mapstructure:"evaluation"`
	Backend     BackendConfig     `mapstructure:"backend"`
	Redis       RedisConfig       `mapstructure:"redis"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // json or console
}

// OptimizerConfig selects the algorithm and its hyperparameters
type OptimizerConfig struct {
	Method     string `mapstructure:"method"`     // "genetic", "bayesian", ...
	Objective  string `mapstructure:"objective"`  // "default", "sharpe", ...
	Iterations int    `mapstructure:"iterations"` // 0 keeps per-algorithm budgets

	optimize.Config `mapstructure:",squash"`
}

// MonteCarloConfig contains Monte Carlo simulation settings
type MonteCarloConfig struct {
	Simulations     int     `mapstructure:"simulations"`
	ConfidenceLevel float64 `mapstructure:"confidence_level"`
	Parallelism     int     `mapstructure:"parallelism"`
	Seed            int64   `mapstructure:"seed"`
}

// WalkForwardConfig contains walk-forward analysis settings
type WalkForwardConfig struct {
	WindowDays     int     `mapstructure:"window_days"`
	InSampleRatio  float64 `mapstructure:"in_sample_ratio"`
	Iterations     int     `mapstructure:"iterations"`
	Optimizer      string  `mapstructure:"optimizer"`
	InitialBalance float64 `mapstructure:"initial_balance"`
}

// RiskConfig contains risk management settings
type RiskConfig struct {
	Balance       float64 `mapstructure:"balance"`
	KellyFraction float64 `mapstructure:"kelly_fraction"` // 0.25 = quarter Kelly

	risk.Limits `mapstructure:",squash"`
}

// EvaluationConfig protects and memoizes backtest evaluations
type EvaluationConfig struct {
	Guard evaluation.GuardConfig `mapstructure:"guard"`
	Cache CacheConfig            `mapstructure:"cache"`
}

// CacheConfig contains evaluation cache settings
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Prefix  string        `mapstructure:"prefix"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// BackendConfig describes the synthetic market the strategy is evaluated on
type BackendConfig struct {
	Symbol         string        `mapstructure:"symbol"`
	Bars           int           `mapstructure:"bars"`
	StartPrice     float64       `mapstructure:"start_price"`
	Volatility     float64       `mapstructure:"volatility"`
	Drift          float64       `mapstructure:"drift"`
	TradeAmount    float64       `mapstructure:"trade_amount"`
	InitialBalance float64       `mapstructure:"initial_balance"`
	Interval       time.Duration `mapstructure:"interval"`
	StartDate      string        `mapstructure:"start_date"` // YYYY-MM-DD
	Seed           int64         `mapstructure:"seed"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains NATS messaging settings
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Prefix  string `mapstructure:"prefix"`
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "StratLab")
	v.SetDefault("app.version", Version)
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	// Optimizer defaults
	opt := optimize.DefaultConfig()
	v.SetDefault("optimizer.method", string(optimize.KindGenetic))
	v.SetDefault("optimizer.objective", "default")
	v.SetDefault("optimizer.iterations", 0)
	v.SetDefault("optimizer.seed", 0)
	v.SetDefault("optimizer.parallelism", opt.Parallelism)

	v.SetDefault("optimizer.particle_swarm.particles", opt.Swarm.Particles)
	v.SetDefault("optimizer.particle_swarm.iterations", opt.Swarm.Iterations)
	v.SetDefault("optimizer.particle_swarm.inertia", opt.Swarm.Inertia)
	v.SetDefault("optimizer.particle_swarm.cognitive", opt.Swarm.Cognitive)
	v.SetDefault("optimizer.particle_swarm.social", opt.Swarm.Social)

	v.SetDefault("optimizer.simulated_annealing.initial_temperature", opt.Annealing.InitialTemperature)
	v.SetDefault("optimizer.simulated_annealing.cooling_rate", opt.Annealing.CoolingRate)
	v.SetDefault("optimizer.simulated_annealing.iterations", opt.Annealing.Iterations)
	v.SetDefault("optimizer.simulated_annealing.min_temperature", opt.Annealing.MinTemperature)
	v.SetDefault("optimizer.simulated_annealing.neighbor_scale", opt.Annealing.NeighborScale)

	v.SetDefault("optimizer.ant_colony.ants", opt.AntColony.Ants)
	v.SetDefault("optimizer.ant_colony.iterations", opt.AntColony.Iterations)
	v.SetDefault("optimizer.ant_colony.evaporation_rate", opt.AntColony.EvaporationRate)
	v.SetDefault("optimizer.ant_colony.alpha", opt.AntColony.Alpha)
	v.SetDefault("optimizer.ant_colony.discretization_steps", opt.AntColony.Steps)

	v.SetDefault("optimizer.bayesian.initial_points", opt.Bayesian.InitialPoints)
	v.SetDefault("optimizer.bayesian.iterations", opt.Bayesian.Iterations)
	v.SetDefault("optimizer.bayesian.exploration", opt.Bayesian.Exploration)
	v.SetDefault("optimizer.bayesian.candidates", opt.Bayesian.Candidates)
	v.SetDefault("optimizer.bayesian.length_scale", opt.Bayesian.LengthScale)
	v.SetDefault("optimizer.bayesian.noise", opt.Bayesian.Noise)

	v.SetDefault("optimizer.differential_evolution.population", opt.Differential.Population)
	v.SetDefault("optimizer.differential_evolution.mutation_factor", opt.Differential.MutationFactor)
	v.SetDefault("optimizer.differential_evolution.crossover_rate", opt.Differential.CrossoverRate)
	v.SetDefault("optimizer.differential_evolution.generations", opt.Differential.Generations)

	v.SetDefault("optimizer.genetic.population", opt.Genetic.Population)
	v.SetDefault("optimizer.genetic.mutation_rate", opt.Genetic.MutationRate)
	v.SetDefault("optimizer.genetic.generations", opt.Genetic.Generations)
	v.SetDefault("optimizer.genetic.elite_ratio", opt.Genetic.EliteRatio)
	v.SetDefault("optimizer.genetic.tournament_size", opt.Genetic.TournamentSize)

	v.SetDefault("optimizer.grid_search.max_combinations", opt.Grid.MaxCombinations)
	v.SetDefault("optimizer.grid_search.default_steps", opt.Grid.DefaultSteps)

	// Monte Carlo defaults
	v.SetDefault("montecarlo.simulations", montecarlo.DefaultSimulations)
	v.SetDefault("montecarlo.confidence_level", montecarlo.DefaultConfidenceLevel)
	v.SetDefault("montecarlo.parallelism", montecarlo.DefaultParallelism)
	v.SetDefault("montecarlo.seed", 0)

	// Walk-forward defaults
	v.SetDefault("walkforward.window_days", walkforward.DefaultWindowDays)
	v.SetDefault("walkforward.in_sample_ratio", walkforward.DefaultInSampleRatio)
	v.SetDefault("walkforward.iterations", walkforward.DefaultIterations)
	v.SetDefault("walkforward.optimizer", string(optimize.KindGenetic))
	v.SetDefault("walkforward.initial_balance", walkforward.DefaultInitialBalance)

	// Risk defaults
	limits := risk.DefaultLimits()
	v.SetDefault("risk.balance", 10000.0)
	v.SetDefault("risk.kelly_fraction", 0.25)
	v.SetDefault("risk.risk_per_trade", limits.RiskPerTrade)
	v.SetDefault("risk.max_drawdown", limits.MaxDrawdown)
	v.SetDefault("risk.max_position_size", limits.MaxPositionSize)

	// Evaluation defaults
	breaker := evaluation.DefaultBreakerSettings()
	v.SetDefault("evaluation.guard.timeout", 30*time.Second)
	v.SetDefault("evaluation.guard.rate_limit", 0)
	v.SetDefault("evaluation.guard.burst", 1)
	v.SetDefault("evaluation.guard.breaker.min_requests", breaker.MinRequests)
	v.SetDefault("evaluation.guard.breaker.failure_ratio", breaker.FailureRatio)
	v.SetDefault("evaluation.guard.breaker.open_timeout", breaker.OpenTimeout)
	v.SetDefault("evaluation.guard.breaker.half_open_max_requests", breaker.HalfOpenMaxReqs)
	v.SetDefault("evaluation.guard.breaker.count_interval", breaker.CountInterval)
	v.SetDefault("evaluation.cache.enabled", false)
	v.SetDefault("evaluation.cache.prefix", "stratlab:eval")
	v.SetDefault("evaluation.cache.ttl", evaluation.DefaultCacheTTL)

	// Synthetic backend defaults
	backend := evaluation.DefaultBackendConfig()
	v.SetDefault("backend.symbol", backend.Symbol)
	v.SetDefault("backend.bars", backend.Bars)
	v.SetDefault("backend.start_price", backend.StartPrice)
	v.SetDefault("backend.volatility", backend.Volatility)
	v.SetDefault("backend.drift", backend.Drift)
	v.SetDefault("backend.trade_amount", backend.TradeAmount)
	v.SetDefault("backend.initial_balance", backend.InitialBalance)
	v.SetDefault("backend.interval", backend.Interval)
	v.SetDefault("backend.start_date", backend.Start.Format(dateLayout))
	v.SetDefault("backend.seed", 42)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", RedisPort)
	v.SetDefault("redis.db", 0)

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", fmt.Sprintf("nats://localhost:%d", NATSPort))
	v.SetDefault("nats.prefix", "stratlab.optimizer")

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", MetricsPort)
	v.SetDefault("monitoring.enable_metrics", false)
}

// dateLayout is the format of backend.start_date
const dateLayout = "2006-01-02"

// Kind returns the configured optimization algorithm
func (c *OptimizerConfig) Kind() (optimize.Kind, error) {
	return optimize.ParseKind(c.Method)
}

// Build returns the optimizer settings with the objective resolved and the
// iteration override applied
func (c *OptimizerConfig) Build() (optimize.Config, error) {
	cfg := c.Config

	objective, ok := backtest.ObjectiveByName(c.Objective)
	if !ok {
		return optimize.Config{}, fmt.Errorf("unknown objective %q", c.Objective)
	}
	cfg.Objective = objective

	if c.Iterations > 0 {
		cfg = cfg.WithIterations(c.Iterations)
	}
	return cfg, nil
}

// Simulator returns a Monte Carlo simulator with these settings
func (c *MonteCarloConfig) Simulator() *montecarlo.Simulator {
	sim := montecarlo.NewSimulator(c.Seed)
	if c.Simulations > 0 {
		sim.Simulations = c.Simulations
	}
	if c.ConfidenceLevel > 0 {
		sim.ConfidenceLevel = c.ConfidenceLevel
	}
	if c.Parallelism > 0 {
		sim.Parallelism = c.Parallelism
	}
	return sim
}

// Analyzer returns a walk-forward analyzer for strategy using optCfg for
// every window
func (c *WalkForwardConfig) Analyzer(strategy *backtest.Strategy, optCfg optimize.Config) (*walkforward.Analyzer, error) {
	a := walkforward.NewAnalyzer(strategy)
	if c.Optimizer != "" {
		kind, err := optimize.ParseKind(c.Optimizer)
		if err != nil {
			return nil, err
		}
		a.Optimizer = kind
	}
	a.WindowDays = c.WindowDays
	a.InSampleRatio = c.InSampleRatio
	a.Iterations = c.Iterations
	a.InitialBalance = c.InitialBalance
	a.OptimizerConfig = optCfg
	return a, nil
}

// Manager returns a risk manager for the configured balance and limits
func (c *RiskConfig) Manager() (*risk.Manager, error) {
	return risk.NewManager(c.Balance, c.Limits)
}

// Settings converts the backend section into evaluation settings
func (c *BackendConfig) Settings() (evaluation.BackendConfig, error) {
	cfg := evaluation.BackendConfig{
		Symbol:         c.Symbol,
		Bars:           c.Bars,
		StartPrice:     c.StartPrice,
		Volatility:     c.Volatility,
		Drift:          c.Drift,
		TradeAmount:    c.TradeAmount,
		InitialBalance: c.InitialBalance,
		Interval:       c.Interval,
		Seed:           c.Seed,
	}
	if c.StartDate != "" {
		start, err := time.Parse(dateLayout, c.StartDate)
		if err != nil {
			return evaluation.BackendConfig{}, fmt.Errorf("invalid backend.start_date %q: %w", c.StartDate, err)
		}
		cfg.Start = start
	}
	return cfg, nil
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetMetricsAddr returns the Prometheus listen address
func (c *MonitoringConfig) GetMetricsAddr() string {
	return fmt.Sprintf(":%d", c.PrometheusPort)
}
