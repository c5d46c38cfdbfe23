package config

// Version is the canonical version of StratLab
const Version = "0.3.0"

// GetVersion returns the current version
func GetVersion() string {
	return Version
}
