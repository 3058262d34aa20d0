// Command goalctl manages savings goals from the terminal. It drives the same
// goal store as the server, so mutations made while the remote service is
// down are applied locally and journaled for the reconciler.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"goalplanner/internal/cli"
	"goalplanner/internal/config"
	"goalplanner/internal/core"
	"goalplanner/internal/log"
)

// skipLoad marks commands that do not need the goal collection.
const skipLoad = "skip-load"

var (
	cfg       *config.Config
	logger    *log.Logger
	logCloser io.Closer
	app       *cli.Runtime

	noColor bool
	verbose bool
	refDate string
)

var rootCmd = &cobra.Command{
	Use:           "goalctl",
	Short:         "Track savings goals",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
		if isBuiltin(cmd) {
			return nil
		}

		cli.LoadEnvFile()
		var err error
		cfg, err = cli.LoadConfig()
		if err != nil {
			return err
		}
		// Store and backend logs go to stderr and stay quiet unless asked.
		cfg.LogLevel = "warn"
		if verbose {
			cfg.LogLevel = "debug"
		}
		logger, logCloser = cli.SetupLogger(cfg, log.ComponentCLI, cmd.ErrOrStderr())

		if cmd.Annotations[skipLoad] == "true" {
			return nil
		}

		ctx := cmd.Context()
		app, err = cli.Bootstrap(ctx, cfg, logger, cli.Options{})
		if err != nil {
			return err
		}
		res, err := app.Reload(ctx)
		if err != nil {
			return fmt.Errorf("failed to load goals: %w", err)
		}
		if res.Degraded {
			printWarning(cmd.ErrOrStderr(), "remote service unavailable; showing the last known goals")
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeApp()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log store and backend activity to stderr")
	rootCmd.PersistentFlags().StringVar(&refDate, "date", "", "Reference date (YYYY-MM-DD) for status and deadline math, default today")
}

// isBuiltin reports whether cmd is one of cobra's help or completion
// commands, which need neither configuration nor goals.
func isBuiltin(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "help" || c.Name() == "completion" {
			return true
		}
	}
	return false
}

// referenceDate resolves --date, defaulting to today.
func referenceDate() (core.Date, error) {
	if refDate == "" {
		return core.Today(), nil
	}
	d, err := core.ParseDate(refDate)
	if err != nil {
		return core.Date{}, fmt.Errorf("invalid --date %q: %w", refDate, err)
	}
	return d, nil
}

// closeApp releases the runtime; the loaded store stays readable. Safe to
// call more than once.
func closeApp() error {
	var err error
	if app != nil {
		err = app.Close()
	}
	if logCloser != nil {
		_ = logCloser.Close()
		logCloser = nil
	}
	return err
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		_ = closeApp()
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		cancel()
		os.Exit(1)
	}
}
