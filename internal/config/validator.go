package config

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ValidatorOptions contains options for startup validation
type ValidatorOptions struct {
	VerifyConnectivity bool // Check Redis/NATS connectivity for enabled services
	Timeout            time.Duration
}

// DefaultValidatorOptions returns default validator options for startup
func DefaultValidatorOptions() ValidatorOptions {
	return ValidatorOptions{
		VerifyConnectivity: true,
		Timeout:            5 * time.Second,
	}
}

// Validator handles configuration validation at startup
type Validator struct {
	config  *Config
	options ValidatorOptions
}

// NewValidator creates a new configuration validator
func NewValidator(config *Config, options ValidatorOptions) *Validator {
	return &Validator{
		config:  config,
		options: options,
	}
}

// ValidateStartup validates the configuration and, when enabled, checks that
// the backing services of enabled features are reachable
func (v *Validator) ValidateStartup(ctx context.Context) error {
	log.Debug().Msg("Validating configuration...")

	if err := v.config.Validate(); err != nil {
		return err
	}

	if !v.options.VerifyConnectivity {
		return nil
	}

	if v.config.Evaluation.Cache.Enabled {
		if err := v.checkRedisConnectivity(ctx); err != nil {
			return err
		}
	}

	if v.config.NATS.Enabled {
		if err := v.checkNATSConnectivity(); err != nil {
			return err
		}
	}

	log.Debug().Msg("Startup validation passed")
	return nil
}

// checkRedisConnectivity tests Redis connection with timeout
func (v *Validator) checkRedisConnectivity(ctx context.Context) error {
	connCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	client := redis.NewClient(&redis.Options{
		Addr:     v.config.Redis.GetRedisAddr(),
		Password: v.config.Redis.Password,
		DB:       v.config.Redis.DB,
	})
	defer func() { _ = client.Close() }()

	if err := client.Ping(connCtx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis at %s: %w", v.config.Redis.GetRedisAddr(), err)
	}

	log.Info().
		Str("addr", v.config.Redis.GetRedisAddr()).
		Int("db", v.config.Redis.DB).
		Msg("Redis connectivity check passed")

	return nil
}

// checkNATSConnectivity tests NATS connection with timeout
func (v *Validator) checkNATSConnectivity() error {
	nc, err := nats.Connect(v.config.NATS.URL, nats.Timeout(v.options.Timeout))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", v.config.NATS.URL, err)
	}
	defer nc.Close()

	if err := nc.FlushTimeout(v.options.Timeout); err != nil {
		return fmt.Errorf("NATS round trip failed: %w", err)
	}

	log.Info().
		Str("url", v.config.NATS.URL).
		Msg("NATS connectivity check passed")

	return nil
}
