package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	commoncfg "github.com/yohi/antigravity-mcp-bridge/core/config"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultAskTimeout     = 60 * time.Second
)

// ClientConfig holds configuration for the bridge CLI.
type ClientConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Token          string        `yaml:"token"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	StateDB        string        `yaml:"state_db"`
	StateRedisAddr string        `yaml:"state_redis_addr"`
	AskTimeout     time.Duration `yaml:"ask_timeout"`
	LogLevel       string        `yaml:"log_level"`
	ConfigFile     string        `yaml:"-"`
}

// SetDefaults initializes c with built-in defaults.
func (c *ClientConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.AskTimeout == 0 {
		c.AskTimeout = DefaultAskTimeout
	}
	if c.StateDB == "" {
		c.StateDB = commoncfg.DefaultStateDBPath()
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.ConfigFile == "" {
		c.ConfigFile = commoncfg.DefaultConfigPath("client.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *ClientConfig) ApplyEnv() {
	if v := commoncfg.GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	c.Host = commoncfg.GetEnv("HOST", c.Host)
	c.Port = commoncfg.GetEnvInt("PORT", c.Port)
	c.Token = commoncfg.GetEnv("TOKEN", c.Token)
	c.RequestTimeout = commoncfg.GetEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	c.StateDB = commoncfg.GetEnv("STATE_DB", c.StateDB)
	c.StateRedisAddr = commoncfg.GetEnv("STATE_REDIS_ADDR", c.StateRedisAddr)
	c.AskTimeout = commoncfg.GetEnvDuration("ASK_TIMEOUT", c.AskTimeout)
	c.LogLevel = commoncfg.GetEnv("LOG_LEVEL", c.LogLevel)
}

// BindFlagsFromCurrent binds command line flags using the current config values as defaults.
func (c *ClientConfig) BindFlagsFromCurrent(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "client config file path")
	fs.StringVar(&c.Host, "host", c.Host, "bridge host")
	fs.IntVar(&c.Port, "port", c.Port, "bridge port")
	fs.StringVar(&c.Token, "token", c.Token, "bridge bearer token")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "per-request timeout")
	fs.StringVar(&c.StateDB, "state-db", c.StateDB, "IDE state database read by ask")
	fs.StringVar(&c.StateRedisAddr, "state-redis-addr", c.StateRedisAddr, "redis URL holding the IDE state instead of the database")
	fs.DurationVar(&c.AskTimeout, "ask-timeout", c.AskTimeout, "how long ask waits for the agent output")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
}

// LoadFile populates the config from a YAML file.
func (c *ClientConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// URL returns the websocket endpoint of the bridge.
func (c *ClientConfig) URL() string {
	return fmt.Sprintf("ws://%s:%d/ws", c.Host, c.Port)
}

// Validate checks the values that cannot be defaulted.
func (c *ClientConfig) Validate() error {
	if c.Token == "" {
		return errors.New("ANTIGRAVITY_TOKEN environment variable is required")
	}
	return nil
}
