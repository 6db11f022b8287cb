package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pyshim/internal/cli"
	"github.com/matzehuels/pyshim/pkg/config"
	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/observability"
	"github.com/matzehuels/pyshim/pkg/paths"
	"github.com/matzehuels/pyshim/pkg/shim"
)

// logEnv selects the shim path's log level, e.g. PYSHIM_LOG=debug.
const logEnv = "PYSHIM_LOG"

func main() {
	// Invoked as python, pip3.9, ... through a shim link.
	if name := filepath.Base(os.Args[0]); !strings.HasPrefix(name, paths.AppName) {
		os.Exit(runShim(os.Args[0], os.Args[1:]))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := cli.New(os.Stderr, cli.LogInfo)
	if err := c.Execute(ctx, os.Args[1:]); err != nil {
		var exit *cli.ExitError
		switch {
		case errors.As(err, &exit):
			os.Exit(exit.Code)
		case errors.Is(err, context.Canceled):
			os.Exit(130) // Standard shell convention for SIGINT
		}
		cli.PrintError(os.Stderr, "%s", pserrors.UserMessage(err))
		os.Exit(1)
	}
}

// runShim dispatches to the resolved toolchain. Signals are left to the
// launcher, which either replaces this process or forwards them.
func runShim(argv0 string, args []string) int {
	level := log.WarnLevel
	if lv, err := log.ParseLevel(os.Getenv(logEnv)); err == nil {
		level = lv
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{Level: level, Prefix: paths.AppName})
	if level == log.DebugLevel {
		observability.LogHooks{Logger: logger}.Register()
	}

	env, err := config.NewEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, shim.Message(argv0, err))
		return 1
	}
	env.Logger = logger

	code, err := shim.NewDispatcher(env).Run(context.Background(), argv0, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, shim.Message(argv0, err))
	}
	return code
}
