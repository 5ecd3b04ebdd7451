package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/yohi/antigravity-mcp-bridge/core/bridgewire"
	"github.com/yohi/antigravity-mcp-bridge/core/logx"
	"github.com/yohi/antigravity-mcp-bridge/core/reconnect"
	"github.com/yohi/antigravity-mcp-bridge/internal/trajectory"
	"github.com/yohi/antigravity-mcp-bridge/internal/wsclient"
)

// withClient connects, runs fn and closes the client.
func withClient(ctx context.Context, a *app, fn func(*wsclient.Client) error) error {
	c, err := a.connect(ctx)
	if err != nil {
		if errors.Is(err, wsclient.ErrUnauthorized) {
			return err
		}
		return connectError{err}
	}
	defer func() { _ = c.Close() }()
	return fn(c)
}

func parse(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(os.Stderr)
	return fs.Parse(args)
}

func runList(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	recursive := fs.Bool("recursive", true, "walk subdirectories")
	if err := parse(fs, args); err != nil {
		return usageError{err.Error()}
	}
	return withClient(ctx, a, func(c *wsclient.Client) error {
		files, err := c.ListFiles(ctx, *recursive)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return nil
	})
}

func runRead(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("read", flag.ContinueOnError)
	if err := parse(fs, args); err != nil {
		return usageError{err.Error()}
	}
	if fs.NArg() != 1 {
		return usageError{"read takes exactly one path"}
	}
	return withClient(ctx, a, func(c *wsclient.Client) error {
		content, err := c.ReadFile(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Print(content)
		return nil
	})
}

func runWrite(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("write", flag.ContinueOnError)
	file := fs.String("file", "", "local file holding the content (stdin when empty)")
	if err := parse(fs, args); err != nil {
		return usageError{err.Error()}
	}
	if fs.NArg() != 1 {
		return usageError{"write takes exactly one path"}
	}
	var (
		content []byte
		err     error
	)
	if *file != "" {
		content, err = os.ReadFile(*file)
	} else {
		content, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return err
	}
	return withClient(ctx, a, func(c *wsclient.Client) error {
		res, err := c.WriteFile(ctx, fs.Arg(0), string(content))
		if err != nil {
			return err
		}
		fmt.Println(res.Message)
		return nil
	})
}

func promptArgs(fs *flag.FlagSet) (string, error) {
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		return "", usageError{"a prompt is required"}
	}
	return prompt, nil
}

func runDispatch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("dispatch", flag.ContinueOnError)
	model := fs.String("model", "", "agent model")
	if err := parse(fs, args); err != nil {
		return usageError{err.Error()}
	}
	prompt, err := promptArgs(fs)
	if err != nil {
		return err
	}
	return withClient(ctx, a, func(c *wsclient.Client) error {
		res, err := c.Dispatch(ctx, prompt, *model)
		if err != nil {
			return err
		}
		fmt.Println(res.Message)
		return nil
	})
}

// openStateStore picks the conversation store used by ask. A missing state
// database is not fatal; ask then relies on diagnostics alone.
func openStateStore(ctx context.Context, a *app) (trajectory.Store, func(), error) {
	if a.cfg.StateRedisAddr != "" {
		rs, err := trajectory.NewRedisStore(ctx, a.cfg.StateRedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { _ = rs.Close() }, nil
	}
	if a.cfg.StateDB == "" {
		return nil, func() {}, nil
	}
	if _, err := os.Stat(a.cfg.StateDB); err != nil {
		logx.Log.Warn().Str("path", a.cfg.StateDB).Msg("state database not found; correlating through diagnostics only")
		return nil, func() {}, nil
	}
	s, err := trajectory.OpenSQLite(a.cfg.StateDB)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

func runAsk(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	model := fs.String("model", "", "agent model")
	timeout := fs.Duration("timeout", a.cfg.AskTimeout, "how long to wait for the agent output")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := parse(fs, args); err != nil {
		return usageError{err.Error()}
	}
	prompt, err := promptArgs(fs)
	if err != nil {
		return err
	}
	store, closeStore, err := openStateStore(ctx, a)
	if err != nil {
		return err
	}
	defer closeStore()

	return withClient(ctx, a, func(c *wsclient.Client) error {
		tr := trajectory.NewTracker(store, c, trajectory.Options{Timeout: *timeout})
		res, err := tr.Run(ctx, func(ctx context.Context) error {
			ack, err := c.Dispatch(ctx, prompt, *model)
			if err != nil {
				return err
			}
			logx.Log.Info().Msg(ack.Message)
			return nil
		})
		if err != nil {
			return err
		}
		if *asJSON {
			b, _ := json.MarshalIndent(res, "", "  ")
			fmt.Println(string(b))
			return nil
		}
		fmt.Println(res.Text)
		return nil
	})
}

func runModels(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	if err := parse(fs, args); err != nil {
		return usageError{err.Error()}
	}
	return withClient(ctx, a, func(c *wsclient.Client) error {
		models, err := c.ListModels(ctx)
		if err != nil {
			return err
		}
		for _, m := range models {
			fmt.Println(m)
		}
		return nil
	})
}

func runLogs(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	lines := fs.Int("lines", 100, "number of lines")
	if err := parse(fs, args); err != nil {
		return usageError{err.Error()}
	}
	return withClient(ctx, a, func(c *wsclient.Client) error {
		logs, err := c.Logs(ctx, *lines)
		if err != nil {
			return err
		}
		for _, l := range logs {
			fmt.Println(l)
		}
		return nil
	})
}

func runDiagnostics(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	if err := parse(fs, args); err != nil {
		return usageError{err.Error()}
	}
	return withClient(ctx, a, func(c *wsclient.Client) error {
		raw, err := c.Diagnostics(ctx)
		if err != nil {
			return err
		}
		var out bytes.Buffer
		if json.Indent(&out, raw, "", "  ") != nil {
			out.Reset()
			out.Write(raw)
		}
		fmt.Println(out.String())
		return nil
	})
}

func runWatch(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	retry := fs.Bool("reconnect", false, "reconnect with backoff when the bridge goes away")
	if err := parse(fs, args); err != nil {
		return usageError{err.Error()}
	}
	err := reconnect.Run(ctx, *retry, func(ctx context.Context) error {
		return watchOnce(ctx, a)
	}, func(attempt int, delay time.Duration, err error) {
		logx.Log.Warn().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("bridge unavailable; reconnecting")
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchOnce prints events until the session ends. It returns nil only when
// ctx is cancelled.
func watchOnce(ctx context.Context, a *app) error {
	c, err := a.connect(ctx)
	if err != nil {
		if errors.Is(err, wsclient.ErrUnauthorized) {
			return err
		}
		return connectError{err}
	}
	defer func() { _ = c.Close() }()
	c.OnWorkspaceEvent(func(ev bridgewire.WorkspaceEventParams) {
		fmt.Printf("%s\t%s\n", ev.Type, ev.Path)
	})
	logx.Log.Info().Str("url", a.cfg.URL()).Msg("watching workspace events")
	select {
	case <-ctx.Done():
		return nil
	case <-c.Done():
		return connectError{wsclient.ErrConnectionClosed}
	}
}
