// Package config loads StratLab configuration and configures logging.
package config

// ============================================================================
// DEFAULT PORTS
// ============================================================================

const (
	// MetricsPort serves /metrics and /health
	MetricsPort = 9100

	// RedisPort is the default port for Redis
	RedisPort = 6379

	// NATSPort is the default port for NATS messaging
	NATSPort = 4222
)

// IsValidPort reports whether port is a usable TCP port
func IsValidPort(port int) bool {
	return port >= 1 && port <= 65535
}
