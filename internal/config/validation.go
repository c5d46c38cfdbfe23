package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
	"github.com/ajitpratap0/stratlab/pkg/optimize"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Fields returns the names of the invalid fields
func (ve ValidationErrors) Fields() []string {
	fields := make([]string, len(ve))
	for i, err := range ve {
		fields[i] = err.Field
	}
	return fields
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateOptimizer()...)
	errors = append(errors, c.validateMonteCarlo()...)
	errors = append(errors, c.validateWalkForward()...)
	errors = append(errors, c.validateRisk()...)
	errors = append(errors, c.validateEvaluation()...)
	errors = append(errors, c.validateBackend()...)
	errors = append(errors, c.validateServices()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	validEnvs := []string{"development", "staging", "production"}
	if !contains(validEnvs, c.App.Environment) {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
		})
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.App.LogLevel)); err != nil || c.App.LogLevel == "" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: fmt.Sprintf("Invalid log level '%s' (debug, info, warn, error)", c.App.LogLevel),
		})
	}

	if c.App.LogFormat != "" && c.App.LogFormat != "json" && c.App.LogFormat != "console" {
		errors = append(errors, ValidationError{
			Field:   "app.log_format",
			Message: fmt.Sprintf("Invalid log format '%s'. Must be json or console", c.App.LogFormat),
		})
	}

	return errors
}

func (c *Config) validateOptimizer() ValidationErrors {
	var errors ValidationErrors

	if _, err := c.Optimizer.Kind(); err != nil {
		errors = append(errors, ValidationError{
			Field:   "optimizer.method",
			Message: fmt.Sprintf("Unknown method '%s'. Must be one of: %v", c.Optimizer.Method, optimize.Kinds()),
		})
	}

	if _, ok := backtest.ObjectiveByName(c.Optimizer.Objective); !ok {
		errors = append(errors, ValidationError{
			Field:   "optimizer.objective",
			Message: fmt.Sprintf("Unknown objective '%s'. Must be one of: %v", c.Optimizer.Objective, backtest.ObjectiveNames()),
		})
	}

	if c.Optimizer.Iterations < 0 {
		errors = append(errors, ValidationError{
			Field:   "optimizer.iterations",
			Message: "Iterations must not be negative",
		})
	}

	// Hyperparameters are checked by the optimize package itself
	if err := c.Optimizer.Config.Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			errors = append(errors, ValidationError{
				Field:   "optimizer",
				Message: line,
			})
		}
	}

	return errors
}

func (c *Config) validateMonteCarlo() ValidationErrors {
	var errors ValidationErrors

	if c.MonteCarlo.Simulations <= 0 {
		errors = append(errors, ValidationError{
			Field:   "montecarlo.simulations",
			Message: "Simulations must be positive",
		})
	}

	if c.MonteCarlo.ConfidenceLevel <= 0 || c.MonteCarlo.ConfidenceLevel >= 1 {
		errors = append(errors, ValidationError{
			Field:   "montecarlo.confidence_level",
			Message: fmt.Sprintf("Confidence level must be between 0 and 1 (exclusive), got %.2f", c.MonteCarlo.ConfidenceLevel),
		})
	}

	if c.MonteCarlo.Parallelism < 0 {
		errors = append(errors, ValidationError{
			Field:   "montecarlo.parallelism",
			Message: "Parallelism must not be negative",
		})
	}

	return errors
}

func (c *Config) validateWalkForward() ValidationErrors {
	var errors ValidationErrors

	if c.WalkForward.WindowDays <= 0 {
		errors = append(errors, ValidationError{
			Field:   "walkforward.window_days",
			Message: "Window length must be positive",
		})
	}

	if c.WalkForward.InSampleRatio <= 0 || c.WalkForward.InSampleRatio >= 1 {
		errors = append(errors, ValidationError{
			Field:   "walkforward.in_sample_ratio",
			Message: fmt.Sprintf("In-sample ratio must be between 0 and 1 (exclusive), got %.2f", c.WalkForward.InSampleRatio),
		})
	}

	if c.WalkForward.Iterations <= 0 {
		errors = append(errors, ValidationError{
			Field:   "walkforward.iterations",
			Message: "Iterations must be positive",
		})
	}

	if c.WalkForward.Optimizer != "" {
		if _, err := optimize.ParseKind(c.WalkForward.Optimizer); err != nil {
			errors = append(errors, ValidationError{
				Field:   "walkforward.optimizer",
				Message: fmt.Sprintf("Unknown method '%s'", c.WalkForward.Optimizer),
			})
		}
	}

	if c.WalkForward.InitialBalance <= 0 {
		errors = append(errors, ValidationError{
			Field:   "walkforward.initial_balance",
			Message: "Initial balance must be positive",
		})
	}

	return errors
}

func (c *Config) validateRisk() ValidationErrors {
	var errors ValidationErrors

	if c.Risk.Balance <= 0 {
		errors = append(errors, ValidationError{
			Field:   "risk.balance",
			Message: "Balance must be positive",
		})
	}

	if c.Risk.KellyFraction <= 0 || c.Risk.KellyFraction > 1 {
		errors = append(errors, ValidationError{
			Field:   "risk.kelly_fraction",
			Message: fmt.Sprintf("Kelly fraction must be between 0 and 1, got %.2f", c.Risk.KellyFraction),
		})
	}

	if err := c.Risk.Limits.Validate(); err != nil {
		errors = append(errors, ValidationError{
			Field:   "risk",
			Message: err.Error(),
		})
	}

	return errors
}

func (c *Config) validateEvaluation() ValidationErrors {
	var errors ValidationErrors
	guard := c.Evaluation.Guard

	if guard.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "evaluation.guard.timeout",
			Message: "Timeout must not be negative",
		})
	}

	if guard.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "evaluation.guard.rate_limit",
			Message: "Rate limit must not be negative",
		})
	}

	if guard.Breaker.FailureRatio < 0 || guard.Breaker.FailureRatio > 1 {
		errors = append(errors, ValidationError{
			Field:   "evaluation.guard.breaker.failure_ratio",
			Message: fmt.Sprintf("Failure ratio must be between 0 and 1, got %.2f", guard.Breaker.FailureRatio),
		})
	}

	if c.Evaluation.Cache.Enabled && c.Evaluation.Cache.TTL <= 0 {
		errors = append(errors, ValidationError{
			Field:   "evaluation.cache.ttl",
			Message: "Cache TTL must be positive when the cache is enabled",
		})
	}

	return errors
}

func (c *Config) validateBackend() ValidationErrors {
	var errors ValidationErrors

	if c.Backend.Bars < 0 {
		errors = append(errors, ValidationError{
			Field:   "backend.bars",
			Message: "Bar count must not be negative",
		})
	}

	if c.Backend.Volatility < 0 {
		errors = append(errors, ValidationError{
			Field:   "backend.volatility",
			Message: "Volatility must not be negative",
		})
	}

	if _, err := c.Backend.Settings(); err != nil {
		errors = append(errors, ValidationError{
			Field:   "backend.start_date",
			Message: fmt.Sprintf("Invalid start date '%s'. Expected YYYY-MM-DD", c.Backend.StartDate),
		})
	}

	return errors
}

func (c *Config) validateServices() ValidationErrors {
	var errors ValidationErrors

	if c.Evaluation.Cache.Enabled {
		if c.Redis.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "redis.host",
				Message: "Redis host is required when the evaluation cache is enabled",
			})
		}
		if !IsValidPort(c.Redis.Port) {
			errors = append(errors, ValidationError{
				Field:   "redis.port",
				Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Redis.Port),
			})
		}
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL is required when events are enabled",
		})
	}

	if c.Monitoring.EnableMetrics && !IsValidPort(c.Monitoring.PrometheusPort) {
		errors = append(errors, ValidationError{
			Field:   "monitoring.prometheus_port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Monitoring.PrometheusPort),
		})
	}

	return errors
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
