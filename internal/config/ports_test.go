package config

import "testing"

func TestIsValidPort(t *testing.T) {
	tests := []struct {
		name     string
		port     int
		expected bool
	}{
		{"metrics", MetricsPort, true},
		{"redis", RedisPort, true},
		{"nats", NATSPort, true},
		{"lowest", 1, true},
		{"highest", 65535, true},
		{"zero", 0, false},
		{"negative", -1, false},
		{"too large", 65536, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidPort(tt.port); got != tt.expected {
				t.Errorf("IsValidPort(%d) = %v, want %v", tt.port, got, tt.expected)
			}
		})
	}
}
