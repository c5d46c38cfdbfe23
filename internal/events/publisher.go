// Package events publishes optimization lifecycle events over NATS
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/stratlab/internal/config"
	"github.com/ajitpratap0/stratlab/internal/metrics"
	"github.com/ajitpratap0/stratlab/pkg/backtest"
	"github.com/ajitpratap0/stratlab/pkg/optimize"
)

// DefaultPrefix is the subject prefix of every optimizer event
const DefaultPrefix = "stratlab.optimizer"

// ErrNotConnected is returned when publishing without a live connection
var ErrNotConnected = errors.New("event publisher not connected")

// EventType identifies a lifecycle event
type EventType string

const (
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is the JSON payload published for every lifecycle change
type Event struct {
	ID             uuid.UUID               `json:"id"`
	RunID          string                  `json:"run_id"`
	Type           EventType               `json:"type"`
	Strategy       string                  `json:"strategy"`
	Method         optimize.Kind           `json:"method"`
	Timestamp      time.Time               `json:"timestamp"`
	Progress       *optimize.ProgressEvent `json:"progress,omitempty"`
	BestParameters backtest.ParameterSet   `json:"best_parameters,omitempty"`
	BestFitness    float64                 `json:"best_fitness,omitempty"`
	Evaluations    int                     `json:"evaluations,omitempty"`
	Duration       time.Duration           `json:"duration,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

// Config configures the NATS connection
type Config struct {
	URL    string `mapstructure:"url" yaml:"url"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// DefaultConfig returns a local NATS configuration
func DefaultConfig() Config {
	return Config{
		URL:    nats.DefaultURL,
		Prefix: DefaultPrefix,
	}
}

// Publisher emits optimizer events on stratlab.optimizer.<run>.<type>
type Publisher struct {
	nc     *nats.Conn
	prefix string
	owned  bool
	log    zerolog.Logger
}

// Connect dials NATS and returns a publisher that owns the connection
func Connect(cfg Config) (*Publisher, error) {
	logger := config.NewLogger("events")
	nc, err := nats.Connect(
		cfg.URL,
		nats.Name("stratlab-optimizer"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := NewPublisher(nc, cfg.Prefix)
	p.owned = true

	p.log.Info().
		Str("nats_url", cfg.URL).
		Str("prefix", p.prefix).
		Msg("Event publisher initialized")

	return p, nil
}

// NewPublisher wraps an existing connection. The caller keeps ownership of nc.
func NewPublisher(nc *nats.Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{nc: nc, prefix: prefix, log: config.NewLogger("events")}
}

// Subject returns the subject of an event type for a run
func (p *Publisher) Subject(runID string, t EventType) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, runID, t)
}

// Publish sends an event, filling its ID and timestamp when unset
func (p *Publisher) Publish(ctx context.Context, ev *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.nc == nil || !p.nc.IsConnected() {
		return ErrNotConnected
	}

	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	// JSON has no encoding for NaN or Inf
	ev.BestFitness = finite(ev.BestFitness)
	if ev.Progress != nil {
		progress := *ev.Progress
		progress.BestFitness = finite(progress.BestFitness)
		ev.Progress = &progress
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := p.Subject(ev.RunID, ev.Type)
	if err := p.nc.Publish(subject, data); err != nil {
		metrics.RecordError("publish_failed", "events")
		return fmt.Errorf("failed to publish event: %w", err)
	}
	metrics.RecordEventPublished(string(ev.Type))

	p.log.Debug().
		Str("event_id", ev.ID.String()).
		Str("run_id", ev.RunID).
		Str("type", string(ev.Type)).
		Str("subject", subject).
		Msg("Published optimizer event")

	return nil
}

// Started announces a run
func (p *Publisher) Started(ctx context.Context, runID string, strategy *backtest.Strategy, method optimize.Kind) error {
	return p.Publish(ctx, &Event{
		RunID:    runID,
		Type:     EventStarted,
		Strategy: strategy.Name,
		Method:   method,
	})
}

// Completed announces a finished run with its best parameters
func (p *Publisher) Completed(ctx context.Context, runID string, strategy *backtest.Strategy, result *optimize.Result) error {
	return p.Publish(ctx, &Event{
		RunID:          runID,
		Type:           EventCompleted,
		Strategy:       strategy.Name,
		Method:         result.Method,
		BestParameters: result.BestParameters,
		BestFitness:    result.BestFitness,
		Evaluations:    result.Evaluations,
		Duration:       result.Duration,
	})
}

// Failed announces a run that ended with an error
func (p *Publisher) Failed(ctx context.Context, runID string, strategy *backtest.Strategy, method optimize.Kind, runErr error) error {
	return p.Publish(ctx, &Event{
		RunID:    runID,
		Type:     EventFailed,
		Strategy: strategy.Name,
		Method:   method,
		Error:    runErr.Error(),
	})
}

// Progress returns a hook for optimize.Config.Progress.
// Publish failures are logged; they never interrupt the run.
func (p *Publisher) Progress(runID string, strategy *backtest.Strategy) func(optimize.ProgressEvent) {
	return func(pe optimize.ProgressEvent) {
		progress := pe
		err := p.Publish(context.Background(), &Event{
			RunID:       runID,
			Type:        EventProgress,
			Strategy:    strategy.Name,
			Method:      pe.Method,
			Progress:    &progress,
			BestFitness: pe.BestFitness,
			Evaluations: pe.Evaluations,
		})
		if err != nil {
			p.log.Warn().Err(err).Str("run_id", runID).Msg("Failed to publish progress event")
		}
	}
}

// Flush waits until buffered events reach the server
func (p *Publisher) Flush() error {
	if p.nc == nil {
		return ErrNotConnected
	}
	return p.nc.Flush()
}

// Close flushes and, when owned, closes the connection
func (p *Publisher) Close() error {
	if p.nc == nil || !p.owned {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	p.log.Info().Msg("Event publisher closed")
	return nil
}

// finite maps NaN to 0 and clamps infinities to the largest float
func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}
