// authctl signs a terminal in through the cross-device QR flow and approves QR sessions from a second
// device. The signed-in session is kept in a JSON state file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"workforce-auth/internal/platform/logging"
)

const defaultBaseURL = "http://localhost:8080"

// globals are the flags shared by every subcommand.
type globals struct {
	BaseURL   string
	StateFile string
	Verbose   bool
}

type command struct {
	name    string
	summary string
	usage   string
	flags   func(*pflag.FlagSet)
	run     func(ctx context.Context, env *env, args []string) error
}

// env is what a running command needs. Tests build it directly.
type env struct {
	globals
	stdout io.Writer
	stdin  io.Reader
	logger *zap.Logger
}

func commands() []*command {
	return []*command{loginCommand(), approveCommand(), whoamiCommand(), logoutCommand()}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(argv) == 0 || argv[0] == "-h" || argv[0] == "--help" || argv[0] == "help" {
		usage(stderr)
		return pflag.ErrHelp
	}
	var cmd *command
	for _, c := range commands() {
		if c.name == argv[0] {
			cmd = c
		}
	}
	if cmd == nil {
		usage(stderr)
		return fmt.Errorf("unknown command %q", argv[0])
	}

	e := &env{stdout: stdout, stdin: stdin}
	fs := pflag.NewFlagSet("authctl "+cmd.name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&e.BaseURL, "base-url", envOr("AUTHCTL_BASE_URL", defaultBaseURL), "workforce-auth API origin")
	fs.StringVar(&e.StateFile, "state-file", envOr("AUTHCTL_STATE_FILE", defaultStateFile()), "where the signed-in session is kept")
	fs.BoolVarP(&e.Verbose, "verbose", "v", false, "log handshake progress")
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: %s\n\n%s\n\nflags:\n%s", cmd.usage, cmd.summary, fs.FlagUsages())
	}
	if err := fs.Parse(argv[1:]); err != nil {
		return err
	}

	level := "warn"
	if e.Verbose {
		level = "debug"
	}
	logger, err := logging.New(false, level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	e.logger = logger

	return cmd.run(ctx, e, fs.Args())
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: authctl <command> [flags]")
	fmt.Fprintln(w)
	for _, c := range commands() {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultStateFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".authctl-session.json"
	}
	return filepath.Join(dir, "workforce-auth", "session.json")
}
