package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	commoncfg "github.com/yohi/antigravity-mcp-bridge/core/config"
)

func TestServerConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	yml := "port: 9001\nread_only: true\nignore_dirs: [build]\nmax_file_size: 2048\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var cfg ServerConfig
	cfg.SetDefaults()
	if cfg.Port != DefaultPort || cfg.Host != DefaultHost || cfg.MaxFileSize != DefaultMaxFileSize {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.TokenFile == "" || cfg.TokenFile != commoncfg.DefaultTokenPath() {
		t.Fatalf("token file default %q; want %q", cfg.TokenFile, commoncfg.DefaultTokenPath())
	}
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Setenv("ANTIGRAVITY_PORT", "9002")
	t.Setenv("ANTIGRAVITY_IGNORE_DIRS", "vendor, .cache")
	t.Setenv("ANTIGRAVITY_DRAIN_TIMEOUT", "5s")
	t.Setenv("ANTIGRAVITY_METRICS_ADDR", "9100")
	cfg.ApplyEnv()

	if cfg.Port != 9002 {
		t.Fatalf("env should override file port, got %d", cfg.Port)
	}
	if !cfg.ReadOnly || cfg.MaxFileSize != 2048 {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if len(cfg.IgnoreDirs) != 2 || cfg.IgnoreDirs[1] != ".cache" {
		t.Fatalf("ignore dirs %v", cfg.IgnoreDirs)
	}
	if cfg.DrainTimeout != 5*time.Second || cfg.MetricsAddr != ":9100" {
		t.Fatalf("drain=%s metrics=%q", cfg.DrainTimeout, cfg.MetricsAddr)
	}
	if cfg.Addr() != "127.0.0.1:9002" {
		t.Fatalf("addr %q", cfg.Addr())
	}
}

func TestEnsureTokenWritesFile(t *testing.T) {
	dir := t.TempDir()
	cfg := ServerConfig{TokenFile: filepath.Join(dir, "sub", "token")}
	if err := cfg.EnsureToken(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !cfg.TokenGenerated || len(cfg.Token) != 64 {
		t.Fatalf("token not generated: %+v", cfg)
	}
	b, err := os.ReadFile(cfg.TokenFile)
	if err != nil || strings.TrimSpace(string(b)) != cfg.Token {
		t.Fatalf("token file mismatch: %q err=%v", b, err)
	}
	info, _ := os.Stat(cfg.TokenFile)
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("token file mode %v", info.Mode().Perm())
	}

	again := ServerConfig{TokenFile: cfg.TokenFile}
	if err := again.EnsureToken(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Token != cfg.Token || again.TokenGenerated {
		t.Fatalf("existing token file should be reused")
	}
}

func TestServerValidate(t *testing.T) {
	cfg := ServerConfig{Workspace: t.TempDir(), Port: 8888}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	cfg.Workspace = filepath.Join(cfg.Workspace, "missing")
	if err := cfg.Validate(); err == nil {
		t.Fatalf("missing workspace accepted")
	}
}

func TestClientConfig(t *testing.T) {
	var cfg ClientConfig
	cfg.SetDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("token should be required")
	}
	t.Setenv("ANTIGRAVITY_TOKEN", "secret")
	t.Setenv("ANTIGRAVITY_REQUEST_TIMEOUT", "250")
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.RequestTimeout != 250*time.Millisecond || cfg.AskTimeout != DefaultAskTimeout {
		t.Fatalf("timeouts %s %s", cfg.RequestTimeout, cfg.AskTimeout)
	}
	if cfg.URL() != "ws://127.0.0.1:8888/ws" {
		t.Fatalf("url %q", cfg.URL())
	}
}
