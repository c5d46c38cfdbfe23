//nolint:goconst // Test files use repeated strings for clarity
package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratlab/internal/evaluation"
	"github.com/ajitpratap0/stratlab/internal/risk"
	"github.com/ajitpratap0/stratlab/pkg/optimize"
)

// getValidConfig returns a valid configuration for testing
func getValidConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "StratLab",
			Version:     Version,
			Environment: "development",
			LogLevel:    "info",
			LogFormat:   "console",
		},
		Optimizer: OptimizerConfig{
			Method:    "genetic",
			Objective: "default",
			Config:    optimize.DefaultConfig(),
		},
		MonteCarlo: MonteCarloConfig{
			Simulations:     1000,
			ConfidenceLevel: 0.95,
			Parallelism:     4,
		},
		WalkForward: WalkForwardConfig{
			WindowDays:     90,
			InSampleRatio:  0.7,
			Iterations:     50,
			Optimizer:      "genetic",
			InitialBalance: 10000,
		},
		Risk: RiskConfig{
			Balance:       10000,
			KellyFraction: 0.25,
			Limits:        risk.DefaultLimits(),
		},
		Evaluation: EvaluationConfig{
			Guard: evaluation.GuardConfig{
				Timeout: 30 * time.Second,
				Burst:   1,
				Breaker: evaluation.DefaultBreakerSettings(),
			},
			Cache: CacheConfig{Prefix: "stratlab:eval", TTL: time.Hour},
		},
		Backend: BackendConfig{
			Symbol:    "BTC/USDT",
			Bars:      1000,
			StartDate: "2024-01-01",
			Seed:      42,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		NATS: NATSConfig{
			URL:    "nats://localhost:4222",
			Prefix: "stratlab.optimizer",
		},
		Monitoring: MonitoringConfig{
			PrometheusPort: 9100,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	require.NoError(t, getValidConfig().Validate())
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing app name", func(c *Config) { c.App.Name = "" }, "app.name"},
		{"bad environment", func(c *Config) { c.App.Environment = "qa" }, "app.environment"},
		{"bad log level", func(c *Config) { c.App.LogLevel = "loud" }, "app.log_level"},
		{"bad log format", func(c *Config) { c.App.LogFormat = "xml" }, "app.log_format"},
		{"unknown method", func(c *Config) { c.Optimizer.Method = "hill_climbing" }, "optimizer.method"},
		{"unknown objective", func(c *Config) { c.Optimizer.Objective = "luck" }, "optimizer.objective"},
		{"negative iterations", func(c *Config) { c.Optimizer.Iterations = -1 }, "optimizer.iterations"},
		{"bad hyperparameter", func(c *Config) { c.Optimizer.Annealing.CoolingRate = 1.5 }, "optimizer"},
		{"no simulations", func(c *Config) { c.MonteCarlo.Simulations = 0 }, "montecarlo.simulations"},
		{"confidence of one", func(c *Config) { c.MonteCarlo.ConfidenceLevel = 1 }, "montecarlo.confidence_level"},
		{"zero window", func(c *Config) { c.WalkForward.WindowDays = 0 }, "walkforward.window_days"},
		{"ratio of one", func(c *Config) { c.WalkForward.InSampleRatio = 1 }, "walkforward.in_sample_ratio"},
		{"unknown walk-forward optimizer", func(c *Config) { c.WalkForward.Optimizer = "magic" }, "walkforward.optimizer"},
		{"zero balance", func(c *Config) { c.Risk.Balance = 0 }, "risk.balance"},
		{"kelly above one", func(c *Config) { c.Risk.KellyFraction = 2 }, "risk.kelly_fraction"},
		{"risk per trade above one", func(c *Config) { c.Risk.RiskPerTrade = 1.2 }, "risk"},
		{"negative timeout", func(c *Config) { c.Evaluation.Guard.Timeout = -time.Second }, "evaluation.guard.timeout"},
		{"failure ratio above one", func(c *Config) { c.Evaluation.Guard.Breaker.FailureRatio = 2 }, "evaluation.guard.breaker.failure_ratio"},
		{"cache without ttl", func(c *Config) {
			c.Evaluation.Cache.Enabled = true
			c.Evaluation.Cache.TTL = 0
		}, "evaluation.cache.ttl"},
		{"bad start date", func(c *Config) { c.Backend.StartDate = "01/02/2024" }, "backend.start_date"},
		{"cache without redis host", func(c *Config) {
			c.Evaluation.Cache.Enabled = true
			c.Redis.Host = ""
		}, "redis.host"},
		{"events without url", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.URL = ""
		}, "nats.url"},
		{"metrics on bad port", func(c *Config) {
			c.Monitoring.EnableMetrics = true
			c.Monitoring.PrometheusPort = 70000
		}, "monitoring.prometheus_port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Contains(t, verrs.Fields(), tt.field)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := getValidConfig()
	cfg.App.Name = ""
	cfg.MonteCarlo.Simulations = 0
	cfg.Risk.Balance = -1

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 3)
	assert.True(t, strings.HasPrefix(err.Error(), "Configuration validation failed with 3 error(s)"))
}

func TestValidationErrors_Empty(t *testing.T) {
	assert.Equal(t, "", ValidationErrors{}.Error())
}
