package simulator

import (
	"fmt"
	"time"
)

// Defaults for a simulated mount.
const (
	DefaultListenAddress = ":8080"
	DefaultVersion       = "2.7JP"
	DefaultHorizonLimit  = -30.0
	DefaultSlewDuration  = 3 * time.Second
)

// Config configures the simulator.
type Config struct {
	// ListenAddress is the HTTP bind address (e.g. ":8080")
	ListenAddress string

	// Version is reported by VERSION
	Version string

	// HorizonLimit is the lowest declination, in degrees, GOTORADEC accepts.
	// Targets below it are refused with ERROR:BELOW HORIZONE.
	HorizonLimit float64

	// SlewDuration is how long GETSTATUS reports GOTO=1 after a slew starts.
	// Zero or negative makes slews complete immediately.
	SlewDuration time.Duration

	// Debug enables gin debug mode
	Debug bool
}

// DefaultConfig returns a configuration with every field set to its default.
func DefaultConfig() Config {
	return Config{
		ListenAddress: DefaultListenAddress,
		Version:       DefaultVersion,
		HorizonLimit:  DefaultHorizonLimit,
		SlewDuration:  DefaultSlewDuration,
	}
}

// Validate fills empty fields and checks ranges.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.HorizonLimit < -90 || c.HorizonLimit > 90 {
		return fmt.Errorf("horizon limit %.2f outside [-90, 90]", c.HorizonLimit)
	}
	return nil
}
