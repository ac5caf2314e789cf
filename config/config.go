// Package config holds the settings of jitstreamer-pair. Values come from the built in
// defaults, an optional YAML file and the environment, in that order.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/jkcoxson/jitstreamer-pair/jitstreamer"
	"github.com/jkcoxson/jitstreamer-pair/netmuxd"
	"github.com/jkcoxson/jitstreamer-pair/poll"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvTarget  = "JITSTREAMER_TARGET"
	EnvUsbmuxd = "USBMUXD_SOCKET_ADDRESS"
	EnvNetmuxd = "NETMUXD_ADDRESS"
)

// Config is the complete tool configuration.
type Config struct {
	Target  string `yaml:"target"`  // JitStreamer server base URL
	Usbmuxd string `yaml:"usbmuxd"` // usbmuxd socket, empty uses the platform default

	Netmuxd struct {
		Address     string `yaml:"address"`      // host:port of the muxer registration socket
		ServiceName string `yaml:"service_name"` // service name sent with register frames
	} `yaml:"netmuxd"`

	Poll struct {
		Attempts int           `yaml:"attempts"` // device list checks after a register
		Interval time.Duration `yaml:"interval"` // pause between checks
	} `yaml:"poll"`

	HTTP struct {
		Timeout time.Duration `yaml:"timeout"` // upload request timeout
	} `yaml:"http"`
}

// Default returns the configuration used when nothing else is given.
func Default() *Config {
	c := &Config{Target: jitstreamer.DefaultTarget}
	c.Netmuxd.Address = netmuxd.DefaultAddress
	c.Netmuxd.ServiceName = netmuxd.DefaultServiceName
	c.Poll.Attempts = poll.DefaultPolicy.MaxAttempts
	c.Poll.Interval = poll.DefaultPolicy.Interval
	c.HTTP.Timeout = 30 * time.Second
	return c
}

// Load returns the defaults overlaid with the YAML file at path and the environment.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		if err := c.LoadFile(path); err != nil {
			return nil, err
		}
	}
	c.ApplyEnv(os.LookupEnv)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile populates the config from a YAML file. Fields missing in the file keep their value.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields with the environment variables that are set and not empty.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvTarget); ok && v != "" {
		c.Target = v
	}
	if v, ok := lookup(EnvUsbmuxd); ok && v != "" {
		c.Usbmuxd = v
	}
	if v, ok := lookup(EnvNetmuxd); ok && v != "" {
		c.Netmuxd.Address = v
	}
}

// Validate rejects settings the tool cannot work with.
func (c *Config) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("config: target must not be empty")
	}
	if c.Netmuxd.Address == "" {
		return fmt.Errorf("config: netmuxd address must not be empty")
	}
	if c.Poll.Attempts < 1 {
		return fmt.Errorf("config: poll attempts must be at least 1, got %d", c.Poll.Attempts)
	}
	if c.Poll.Interval < 0 {
		return fmt.Errorf("config: poll interval must not be negative")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("config: http timeout must be positive")
	}
	return nil
}

// PollPolicy is the device appearance policy described by the config.
func (c *Config) PollPolicy() poll.Policy {
	return poll.Policy{MaxAttempts: c.Poll.Attempts, Interval: c.Poll.Interval}
}
