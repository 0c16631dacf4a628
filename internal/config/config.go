package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nagyistoce/jupyter-client/internal/kernel"
)

type Config struct {
	Kernel   KernelConfig   `yaml:"kernel"`
	Channels ChannelsConfig `yaml:"channels"`
	Log      LogConfig      `yaml:"log"`
	Sim      SimConfig      `yaml:"sim"`
}

// KernelConfig describes how to reach the kernel.
type KernelConfig struct {
	URL                string        `yaml:"url"`
	Token              string        `yaml:"token"`
	Codec              string        `yaml:"codec"` // "json" or "cbor"
	DialTimeout        time.Duration `yaml:"dial_timeout"`
	DialRetries        int           `yaml:"dial_retries"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PongTimeout        time.Duration `yaml:"pong_timeout"`
}

// ChannelsConfig names each stream's endpoint and tunes classification.
type ChannelsConfig struct {
	Broadcast    string   `yaml:"broadcast"`
	RequestReply string   `yaml:"request_reply"`
	SideInput    string   `yaml:"side_input"`
	ReadlineTag  string   `yaml:"readline_tag"`
	ExtraReplies []string `yaml:"extra_replies"`
}

type LogConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`   // empty or "stderr" logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// SimConfig configures the bundled kernel simulator.
type SimConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	InputTimeout time.Duration `yaml:"input_timeout"`
	SendBuffer   int           `yaml:"send_buffer"`
}

func defaultConfig() *Config {
	return &Config{
		Kernel: KernelConfig{
			URL:                "ws://127.0.0.1:8765",
			Codec:              "json",
			DialTimeout:        5 * time.Second,
			DialRetries:        5,
			ReconnectBaseDelay: time.Second,
			ReconnectMaxDelay:  30 * time.Second,
			WriteTimeout:       10 * time.Second,
			PingInterval:       30 * time.Second,
			PongTimeout:        60 * time.Second,
		},
		Channels: ChannelsConfig{
			Broadcast:    "iopub",
			RequestReply: "shell",
			SideInput:    "stdin",
			ReadlineTag:  kernel.DefaultReadlineTag,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Sim: SimConfig{
			Host:         "127.0.0.1",
			Port:         8765,
			InputTimeout: 5 * time.Minute,
			SendBuffer:   64,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// Validate rejects values the transport cannot work with.
func (c *Config) Validate() error {
	switch c.Kernel.Codec {
	case "json", "cbor":
	default:
		return fmt.Errorf("kernel.codec %q: want json or cbor", c.Kernel.Codec)
	}
	if c.Kernel.URL == "" {
		return errors.New("kernel.url is empty")
	}
	if c.Kernel.DialRetries < 0 {
		return fmt.Errorf("kernel.dial_retries %d is negative", c.Kernel.DialRetries)
	}
	seen := map[string]string{}
	for name, ep := range map[string]string{
		"broadcast":     c.Channels.Broadcast,
		"request_reply": c.Channels.RequestReply,
		"side_input":    c.Channels.SideInput,
	} {
		if ep == "" {
			return fmt.Errorf("channels.%s endpoint is empty", name)
		}
		if other, ok := seen[ep]; ok {
			return fmt.Errorf("channels.%s and channels.%s share endpoint %q", name, other, ep)
		}
		seen[ep] = name
	}
	return nil
}

// Endpoint returns the endpoint name configured for role.
func (c *Config) Endpoint(role kernel.Role) string {
	switch role {
	case kernel.Broadcast:
		return c.Channels.Broadcast
	case kernel.RequestReply:
		return c.Channels.RequestReply
	case kernel.SideInput:
		return c.Channels.SideInput
	}
	return ""
}

// Endpoints maps every role to its endpoint name.
func (c *Config) Endpoints() map[kernel.Role]string {
	out := make(map[kernel.Role]string, len(kernel.Roles))
	for _, role := range kernel.Roles {
		out[role] = c.Endpoint(role)
	}
	return out
}

// SimAddr returns the simulator listen address.
func (c *Config) SimAddr() string {
	return fmt.Sprintf("%s:%d", c.Sim.Host, c.Sim.Port)
}
