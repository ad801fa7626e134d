package group0

import "fmt"

// Config holds the orchestrator's node-local settings
type Config struct {
	// Address is this node's stable network address. It keys all durable
	// discovery state; changing it between restarts of the same data
	// directory corrupts peer knowledge.
	Address string
}

// DefaultConfig returns a config suitable for local testing
func DefaultConfig() Config {
	return Config{
		Address: "tcp://127.0.0.1:7700",
	}
}

// Validate checks the config for obvious mistakes
func (c Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("%w: address must not be empty", ErrInvalidConfig)
	}
	return nil
}
