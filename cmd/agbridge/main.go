package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yohi/antigravity-mcp-bridge/core/logx"
	"github.com/yohi/antigravity-mcp-bridge/core/secret"
	"github.com/yohi/antigravity-mcp-bridge/internal/config"
	"github.com/yohi/antigravity-mcp-bridge/internal/dispatch"
	"github.com/yohi/antigravity-mcp-bridge/internal/host"
	"github.com/yohi/antigravity-mcp-bridge/internal/ignore"
	"github.com/yohi/antigravity-mcp-bridge/internal/metrics"
	"github.com/yohi/antigravity-mcp-bridge/internal/sandbox"
	"github.com/yohi/antigravity-mcp-bridge/internal/server"
	"github.com/yohi/antigravity-mcp-bridge/internal/serverstate"
	"github.com/yohi/antigravity-mcp-bridge/internal/watch"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.ServerConfig
	// Resolve config with precedence: defaults < file < env < args
	cfg.SetDefaults()
	cfg.ApplyEnv()
	for i := 1; i < len(os.Args); i++ {
		a := os.Args[i]
		if (a == "--config" || a == "-config") && i+1 < len(os.Args) {
			cfg.ConfigFile = os.Args[i+1]
			break
		}
		if strings.HasPrefix(a, "--config=") || strings.HasPrefix(a, "-config=") {
			cfg.ConfigFile = a[strings.Index(a, "=")+1:]
			break
		}
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	cfg.ApplyEnv()
	cfg.BindFlagsFromCurrent(flag.CommandLine)
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "agbridge version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("agbridge version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	logx.Configure(cfg.LogLevel)
	logx.SetRecentSize(cfg.LogBuffer)
	if err := cfg.Validate(); err != nil {
		logx.Log.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := cfg.EnsureToken(); err != nil {
		logx.Log.Fatal().Err(err).Msg("token")
	}
	if cfg.TokenGenerated {
		logx.Log.Info().Str("token", secret.Mask(cfg.Token)).Str("token_file", cfg.TokenFile).Msg("generated auth token")
		if cfg.TokenFile == "" {
			fmt.Println(cfg.Token)
		}
	}

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	if cfg.RedisAddr != "" {
		rs, err := serverstate.NewRedisStore(cfg.RedisAddr)
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("connect redis")
		}
		serverstate.UseStore(rs)
		logx.Log.Info().Str("addr", cfg.RedisAddr).Msg("using redis state store")
	}

	root, err := filepath.Abs(cfg.Workspace)
	if err == nil {
		root, err = filepath.EvalSymlinks(root)
	}
	if err != nil {
		logx.Log.Fatal().Err(err).Str("path", cfg.Workspace).Msg("workspace")
	}
	ign := ignore.New(root, cfg.IgnoreDirs)

	var approver sandbox.Approver
	if cfg.RequireWriteApproval {
		ta := host.NewTerminalApprover()
		if !ta.Interactive() {
			logx.Log.Warn().Msg("write approval enabled without a terminal; every write will be rejected")
		}
		approver = ta
	}
	files, err := sandbox.New(sandbox.Options{
		Root:                 root,
		ReadOnly:             cfg.ReadOnly,
		RequireWriteApproval: cfg.RequireWriteApproval,
		MaxFileSize:          cfg.MaxFileSize,
		Ignore:               ign,
		Approver:             approver,
	})
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("sandbox")
	}

	var cmds host.Commands = host.Unavailable{}
	if cfg.HostURL != "" {
		cmds = host.NewHTTPCommands(host.HTTPOptions{
			BaseURL: cfg.HostURL,
			Token:   cfg.HostToken,
			Observe: metrics.RecordHostCommand,
		})
		logx.Log.Info().Str("url", cfg.HostURL).Msg("IDE command surface configured")
	} else {
		logx.Log.Warn().Msg("no host URL configured; agent dispatch and diagnostics are unavailable")
	}

	metricsOnMain := cfg.MetricsAddr == "" || cfg.MetricsAddr == fmt.Sprintf(":%d", cfg.Port)
	srvOpts := server.Options{
		Token:           cfg.Token,
		Dispatcher:      dispatch.NewService(files, cmds, logx.Recent()).Dispatcher(),
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimit:       cfg.RateLimit,
		RateBurst:       cfg.RateBurst,
		MaxMessageBytes: cfg.MaxMessageBytes,
	}
	if metricsOnMain {
		srvOpts.Gatherer = reg
	}
	bridge := server.New(srvOpts)
	httpSrv := &http.Server{Addr: cfg.Addr(), Handler: bridge.Handler()}
	var metricsSrv *http.Server
	if !metricsOnMain {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := watch.New(files.Root(), ign, bridge.Broadcast)
	if err != nil {
		logx.Log.Error().Err(err).Msg("workspace watcher disabled")
	} else {
		go func() {
			if err := w.Run(ctx); err != nil {
				logx.Log.Error().Err(err).Msg("workspace watcher")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if serverstate.IsDraining() || cfg.DrainTimeout == 0 {
				logx.Log.Warn().Msg("termination requested")
				cancel()
				return
			}
			waitCtx := ctx
			stop := context.CancelFunc(func() {})
			if cfg.DrainTimeout > 0 {
				logx.Log.Info().Dur("timeout", cfg.DrainTimeout).Msg("draining; send SIGTERM again to terminate immediately")
				waitCtx, stop = context.WithTimeout(ctx, cfg.DrainTimeout)
			} else {
				logx.Log.Info().Msg("draining; send SIGTERM again to terminate immediately")
			}
			go func() {
				defer stop()
				if bridge.Drain(waitCtx) {
					logx.Log.Info().Msg("drain complete; terminating")
				} else {
					logx.Log.Warn().Int64("inflight", bridge.InFlight()).Msg("drain timeout exceeded; terminating")
				}
				cancel()
			}()
		}
	}()
	go func() {
		<-ctx.Done()
		bridge.CloseSessions()
		if err := httpSrv.Shutdown(context.Background()); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(context.Background()); err != nil {
				logx.Log.Error().Err(err).Msg("metrics server shutdown")
			}
		}
	}()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		logx.Log.Fatal().Err(err).Str("addr", cfg.Addr()).Msg("listen")
	}
	if metricsSrv != nil {
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logx.Log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}
	serverstate.SetState(serverstate.StatusReady)
	logx.Log.Info().Str("addr", cfg.Addr()).Str("workspace", files.Root()).Msgf("MCP Bridge server started on %s", cfg.Addr())
	if cfg.ReadOnly {
		logx.Log.Info().Msg("Read-only mode enabled")
	}
	logx.Log.Info().Int64("max_file_size", cfg.MaxFileSize).Msgf("Max file size: %d bytes", cfg.MaxFileSize)

	if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
	<-ctx.Done()
	logx.Log.Info().Msg("MCP Bridge server stopped")
}
