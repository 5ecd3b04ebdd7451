package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/yohi/antigravity-mcp-bridge/core/bridgewire"
	"github.com/yohi/antigravity-mcp-bridge/core/logx"
	"github.com/yohi/antigravity-mcp-bridge/internal/config"
	"github.com/yohi/antigravity-mcp-bridge/internal/wsclient"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

const connectHint = "Make sure the Antigravity IDE is running with the MCP Bridge extension active."

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, app *app, args []string) error
}

var commands = []command{
	{"list", "list workspace files", runList},
	{"read", "print a workspace file", runRead},
	{"write", "write a workspace file from -file or stdin", runWrite},
	{"dispatch", "send a prompt to the agent", runDispatch},
	{"ask", "send a prompt and wait for the agent output", runAsk},
	{"models", "list the models dispatch accepts", runModels},
	{"logs", "print recent bridge log lines", runLogs},
	{"diagnostics", "print the IDE diagnostics snapshot", runDiagnostics},
	{"watch", "print workspace events", runWatch},
}

type app struct {
	cfg config.ClientConfig
}

// connect dials the bridge.
func (a *app) connect(ctx context.Context) (*wsclient.Client, error) {
	c := wsclient.New(wsclient.Options{
		URL:            a.cfg.URL(),
		Token:          a.cfg.Token,
		RequestTimeout: a.cfg.RequestTimeout,
	})
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func usage() {
	out := flag.CommandLine.Output()
	_, _ = fmt.Fprintf(out, "agbridge-cli version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
	_, _ = fmt.Fprintf(out, "usage: agbridge-cli [flags] <command> [args]\n\ncommands:\n")
	for _, c := range commands {
		_, _ = fmt.Fprintf(out, "  %-12s %s\n", c.name, c.summary)
	}
	_, _ = fmt.Fprintln(out, "\nflags:")
	flag.PrintDefaults()
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	a := &app{}
	a.cfg.SetDefaults()
	a.cfg.ApplyEnv()
	for i := 1; i < len(os.Args); i++ {
		arg := os.Args[i]
		if (arg == "--config" || arg == "-config") && i+1 < len(os.Args) {
			a.cfg.ConfigFile = os.Args[i+1]
			break
		}
		if strings.HasPrefix(arg, "--config=") || strings.HasPrefix(arg, "-config=") {
			a.cfg.ConfigFile = arg[strings.Index(arg, "=")+1:]
			break
		}
	}
	if a.cfg.ConfigFile != "" {
		if err := a.cfg.LoadFile(a.cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Error: load config %s: %v\n", a.cfg.ConfigFile, err)
			os.Exit(1)
		}
	}
	a.cfg.ApplyEnv()
	a.cfg.BindFlagsFromCurrent(flag.CommandLine)
	flag.Usage = usage
	flag.Parse()
	if *showVersion {
		fmt.Printf("agbridge-cli version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	logx.Configure(a.cfg.LogLevel)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		usage()
		os.Exit(2)
	}
	if err := a.cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.run(ctx, a, args[1:]); err != nil {
		os.Exit(report(err))
	}
}

// report prints err and returns the exit code.
func report(err error) int {
	var ue usageError
	switch {
	case errors.As(err, &ue):
		fmt.Fprintf(os.Stderr, "Error: %s\n", ue.msg)
		return 2
	case errors.Is(err, wsclient.ErrUnauthorized):
		fmt.Fprintf(os.Stderr, "Error: %v\nCheck ANTIGRAVITY_TOKEN.\n", err)
	case isConnectError(err):
		fmt.Fprintf(os.Stderr, "Error: failed to connect to the bridge: %v\n%s\n", err, connectHint)
	default:
		if be, ok := bridgewire.AsError(err); ok {
			fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", bridgewire.CodeName(be.Code), be.Message)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	return 1
}

type connectError struct{ err error }

func (e connectError) Error() string { return e.err.Error() }
func (e connectError) Unwrap() error { return e.err }

func isConnectError(err error) bool {
	var ce connectError
	return errors.As(err, &ce)
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }
