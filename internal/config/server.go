package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	commoncfg "github.com/yohi/antigravity-mcp-bridge/core/config"
	"github.com/yohi/antigravity-mcp-bridge/core/logx"
	"github.com/yohi/antigravity-mcp-bridge/core/secret"
)

const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 8888
	DefaultMaxFileSize     = 100 * 1024
	DefaultMaxMessageBytes = 16 << 20
	DefaultRateBurst       = 20
	DefaultDrainTimeout    = 30 * time.Second
)

// ServerConfig holds configuration for the bridge daemon.
type ServerConfig struct {
	Host                 string        `yaml:"host"`
	Port                 int           `yaml:"port"`
	Token                string        `yaml:"token"`
	TokenFile            string        `yaml:"token_file"`
	Workspace            string        `yaml:"workspace"`
	ReadOnly             bool          `yaml:"read_only"`
	RequireWriteApproval bool          `yaml:"require_write_approval"`
	MaxFileSize          int64         `yaml:"max_file_size"`
	IgnoreDirs           []string      `yaml:"ignore_dirs"`
	HostURL              string        `yaml:"host_url"`
	HostToken            string        `yaml:"host_token"`
	LogLevel             string        `yaml:"log_level"`
	LogBuffer            int           `yaml:"log_buffer"`
	MetricsAddr          string        `yaml:"metrics_addr"`
	RedisAddr            string        `yaml:"redis_addr"`
	AllowedOrigins       []string      `yaml:"allowed_origins"`
	RateLimit            float64       `yaml:"rate_limit"`
	RateBurst            int           `yaml:"rate_burst"`
	DrainTimeout         time.Duration `yaml:"drain_timeout"`
	MaxMessageBytes      int64         `yaml:"max_message_bytes"`
	ConfigFile           string        `yaml:"-"`

	// TokenGenerated is set by EnsureToken when the token was created locally.
	TokenGenerated bool `yaml:"-"`
}

// SetDefaults initializes c with built-in defaults.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Workspace == "" {
		if wd, err := os.Getwd(); err == nil {
			c.Workspace = wd
		}
	}
	if c.MaxFileSize == 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogBuffer == 0 {
		c.LogBuffer = logx.DefaultRingSize
	}
	if c.RateBurst == 0 {
		c.RateBurst = DefaultRateBurst
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.MaxMessageBytes == 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.ConfigFile == "" {
		c.ConfigFile = commoncfg.DefaultConfigPath("server.yaml")
	}
	if c.TokenFile == "" {
		c.TokenFile = commoncfg.DefaultTokenPath()
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *ServerConfig) ApplyEnv() {
	if v := commoncfg.GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	c.Host = commoncfg.GetEnv("HOST", c.Host)
	c.Port = commoncfg.GetEnvInt("PORT", c.Port)
	c.Token = commoncfg.GetEnv("TOKEN", c.Token)
	c.TokenFile = commoncfg.GetEnv("TOKEN_FILE", c.TokenFile)
	c.Workspace = commoncfg.GetEnv("WORKSPACE", c.Workspace)
	c.ReadOnly = commoncfg.GetEnvBool("READ_ONLY", c.ReadOnly)
	c.RequireWriteApproval = commoncfg.GetEnvBool("REQUIRE_WRITE_APPROVAL", c.RequireWriteApproval)
	if v := commoncfg.GetEnv("MAX_FILE_SIZE", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.MaxFileSize = n
		}
	}
	if v := commoncfg.GetEnv("IGNORE_DIRS", ""); v != "" {
		c.IgnoreDirs = commoncfg.SplitComma(v)
	}
	c.HostURL = commoncfg.GetEnv("HOST_URL", c.HostURL)
	c.HostToken = commoncfg.GetEnv("HOST_TOKEN", c.HostToken)
	c.LogLevel = commoncfg.GetEnv("LOG_LEVEL", c.LogLevel)
	c.LogBuffer = commoncfg.GetEnvInt("LOG_BUFFER", c.LogBuffer)
	if v := commoncfg.GetEnv("METRICS_ADDR", ""); v != "" {
		if strings.Contains(v, ":") {
			c.MetricsAddr = v
		} else {
			c.MetricsAddr = ":" + v
		}
	}
	c.RedisAddr = commoncfg.GetEnv("REDIS_ADDR", c.RedisAddr)
	if v := commoncfg.GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = commoncfg.SplitComma(v)
	}
	if v := commoncfg.GetEnv("RATE_LIMIT", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			c.RateLimit = f
		}
	}
	c.RateBurst = commoncfg.GetEnvInt("RATE_BURST", c.RateBurst)
	c.DrainTimeout = commoncfg.GetEnvDuration("DRAIN_TIMEOUT", c.DrainTimeout)
	if v := commoncfg.GetEnv("MAX_MESSAGE_BYTES", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.MaxMessageBytes = n
		}
	}
}

// BindFlagsFromCurrent binds command line flags using the current config values as defaults.
func (c *ServerConfig) BindFlagsFromCurrent(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "server config file path")
	fs.StringVar(&c.Host, "host", c.Host, "listen address")
	fs.IntVar(&c.Port, "port", c.Port, "listen port")
	fs.StringVar(&c.Token, "token", c.Token, "bearer token clients must present; generated when empty")
	fs.StringVar(&c.TokenFile, "token-file", c.TokenFile, "file the generated token is written to")
	fs.StringVar(&c.Workspace, "workspace", c.Workspace, "workspace root exposed to clients")
	fs.BoolVar(&c.ReadOnly, "read-only", c.ReadOnly, "reject every write operation")
	fs.BoolVar(&c.RequireWriteApproval, "require-write-approval", c.RequireWriteApproval, "ask on the terminal before each write")
	fs.Int64Var(&c.MaxFileSize, "max-file-size", c.MaxFileSize, "largest file fs/read will return, in bytes")
	fs.Func("ignore-dirs", "comma separated directories or globs hidden from listing and events", func(v string) error {
		c.IgnoreDirs = commoncfg.SplitComma(v)
		return nil
	})
	fs.StringVar(&c.HostURL, "host-url", c.HostURL, "base URL of the IDE command surface")
	fs.StringVar(&c.HostToken, "host-token", c.HostToken, "bearer token for the IDE command surface")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.IntVar(&c.LogBuffer, "log-buffer", c.LogBuffer, "number of log lines kept for bridge/logs")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "separate Prometheus listen address; served on the main port when empty")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for server state")
	fs.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.AllowedOrigins = commoncfg.SplitComma(v)
		return nil
	})
	fs.Float64Var(&c.RateLimit, "rate-limit", c.RateLimit, "requests per second per session (0 disables)")
	fs.IntVar(&c.RateBurst, "rate-burst", c.RateBurst, "request burst per session")
	fs.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for in-flight requests on shutdown (-1 to wait indefinitely, 0 to exit immediately)")
	fs.Int64Var(&c.MaxMessageBytes, "max-message-bytes", c.MaxMessageBytes, "largest websocket frame accepted")
}

// LoadFile populates the config from a YAML file.
func (c *ServerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the values that cannot be defaulted.
func (c *ServerConfig) Validate() error {
	if c.Workspace == "" {
		return errors.New("workspace is required")
	}
	info, err := os.Stat(c.Workspace)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workspace %s is not a directory", c.Workspace)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// EnsureToken generates a token when none is configured. A generated token
// is written to TokenFile (mode 0600) when one is set.
func (c *ServerConfig) EnsureToken() error {
	if c.Token != "" {
		return nil
	}
	if c.TokenFile != "" {
		if b, err := os.ReadFile(c.TokenFile); err == nil {
			if tok := strings.TrimSpace(string(b)); tok != "" {
				c.Token = tok
				return nil
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read token file: %w", err)
		}
	}
	tok, err := secret.Generate(32)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	c.Token = tok
	c.TokenGenerated = true
	if c.TokenFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.TokenFile), 0o700); err != nil {
		return fmt.Errorf("token dir: %w", err)
	}
	if err := os.WriteFile(c.TokenFile, []byte(tok+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}
