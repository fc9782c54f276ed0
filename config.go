package ioreactor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Global struct {
	LogLevel     string `yaml:"log_level" toml:"log_level"`
	MaxOpenFiles uint64 `yaml:"max_open_files" toml:"max_open_files"`
}

// Level parses LogLevel, defaulting to info.
func (g Global) Level() (zerolog.Level, error) {
	if g.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(strings.ToLower(g.LogLevel))
}

type ReactorConfig struct {
	Name    string `yaml:"name" toml:"name"`
	Backend string `yaml:"backend" toml:"backend"`
	// Timeout of one tick in seconds, zero keeps the backend default.
	Timeout       float64 `yaml:"timeout" toml:"timeout"`
	MaxEvents     int     `yaml:"max_events" toml:"max_events"`
	DefaultTarget string  `yaml:"default_target" toml:"default_target"`
	LockOsThread  bool    `yaml:"lock_os_thread" toml:"lock_os_thread"`
}

type SocketConfig struct {
	RecvBuffer int `yaml:"recv_buffer" toml:"recv_buffer"`
	SendBuffer int `yaml:"send_buffer" toml:"send_buffer"`
}

type Config struct {
	Global  Global        `yaml:"global" toml:"global"`
	Reactor ReactorConfig `yaml:"reactor" toml:"reactor"`
	Socket  SocketConfig  `yaml:"socket" toml:"socket"`
}

// LoadConfig reads a .toml or .yaml/.yml file.
func LoadConfig(filePath string) (*Config, error) {
	file, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	config := &Config{}
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".toml":
		err = toml.Unmarshal(file, config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(file, config)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filePath, err)
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if _, err := config.Global.Level(); err != nil {
		return err
	}
	if _, err := ParseBackend(config.Reactor.Backend); err != nil {
		return err
	}
	if config.Reactor.Timeout < 0 {
		return fmt.Errorf("reactor timeout must not be negative: %v", config.Reactor.Timeout)
	}
	if config.Reactor.MaxEvents < 0 {
		return fmt.Errorf("reactor max_events must not be negative: %d", config.Reactor.MaxEvents)
	}
	if config.Socket.RecvBuffer < 0 || config.Socket.SendBuffer < 0 {
		return fmt.Errorf("socket buffers must not be negative")
	}
	return nil
}

// Options converts the reactor section into poller options.
func (c *Config) Options() (Options, error) {
	backend, err := ParseBackend(c.Reactor.Backend)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Backend:       backend,
		Timeout:       time.Duration(c.Reactor.Timeout * float64(time.Second)),
		MaxEvents:     c.Reactor.MaxEvents,
		DefaultTarget: Target(c.Reactor.DefaultTarget),
	}, nil
}

func (c *Config) LoopConfig() LoopConfig {
	name := c.Reactor.Name
	if name == "" {
		name = "MainLoop"
	}
	return LoopConfig{
		Name:         name,
		LockOsThread: c.Reactor.LockOsThread,
	}
}
