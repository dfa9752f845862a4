// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package main implements blockwipe: overwrite a drive with zeroes and verify it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/siderolabs/go-blockwipe/catalog"
	"github.com/siderolabs/go-blockwipe/internal/config"
	"github.com/siderolabs/go-blockwipe/session"
	"github.com/siderolabs/go-blockwipe/verify"
	"github.com/siderolabs/go-blockwipe/wipe"
)

var (
	// ErrNotPrivileged is returned when not running as root.
	ErrNotPrivileged = errors.New("this program must be run as root")

	errNotTerminal = errors.New("stdin is not a terminal, refusing to prompt")
)

var rootCmdFlags struct {
	configPath     string
	logLevel       string
	passes         int
	repairAttempts int
	chunkSize      int
	rateLimit      float64
	noCheck        bool
	development    bool
}

// exitCode is set by the command.
var exitCode int

var rootCmd = &cobra.Command{
	Use:          "blockwipe",
	Short:        "Securely wipe a drive with zeroes",
	Long:         "Overwrite an unmounted drive with zeroes in one or more passes, then verify every byte.",
	Version:      "0.1.0",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if unix.Geteuid() != 0 {
			return ErrNotPrivileged
		}

		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errNotTerminal
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, unix.SIGTERM)
		defer stop()

		exitCode, err = run(ctx, cfg, os.Stdin, cmd.OutOrStdout())

		return err
	},
}

func init() {
	flags := rootCmd.Flags()

	flags.StringVar(&rootCmdFlags.configPath, "config", "", "path to the YAML configuration file")
	flags.IntVarP(&rootCmdFlags.passes, "number", "n", config.DefaultPasses, "the number of times to overwrite the disk")
	flags.BoolVarP(&rootCmdFlags.noCheck, "nocheck", "c", false, "do not check that the drive is really zeroed after the wipe")
	flags.IntVar(&rootCmdFlags.repairAttempts, "repair-attempts", 0, "the number of repair attempts (defaults to the number of passes)")
	flags.IntVar(&rootCmdFlags.chunkSize, "chunk-size", wipe.DefaultChunkSize, "size of a single read or write in bytes")
	flags.Float64Var(&rootCmdFlags.rateLimit, "rate-limit", 0, "maximum write throughput in bytes per second, 0 for unlimited")
	flags.StringVar(&rootCmdFlags.logLevel, "log-level", "info", "log level")
	flags.BoolVar(&rootCmdFlags.development, "dev", false, "use the development logger")
}

// loadConfig reads the configuration file and applies the flags which were set on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(afero.NewOsFs(), rootCmdFlags.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()

	if flags.Changed("number") {
		cfg.Wipe.Passes = rootCmdFlags.passes
	}

	if flags.Changed("nocheck") {
		cfg.Wipe.Verify = !rootCmdFlags.noCheck
	}

	if flags.Changed("repair-attempts") {
		cfg.Wipe.RepairAttempts = rootCmdFlags.repairAttempts
	}

	if flags.Changed("chunk-size") {
		cfg.Wipe.ChunkSize = rootCmdFlags.chunkSize
	}

	if flags.Changed("rate-limit") {
		cfg.Wipe.RateLimit = rootCmdFlags.rateLimit
	}

	if flags.Changed("log-level") {
		cfg.Logging.Level = rootCmdFlags.logLevel
	}

	if flags.Changed("dev") {
		cfg.Logging.Development = rootCmdFlags.development
	}

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.Logging.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.OutputPaths = []string{"stderr"}

	return zapConfig.Build()
}

func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) (int, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return exitError, fmt.Errorf("failed to create logger: %w", err)
	}

	defer logger.Sync() //nolint:errcheck

	fmt.Fprintln(out, "Welcome to blockwipe") //nolint:errcheck

	r := newRenderer(out, cfg.Wipe.Passes)

	s := session.New(
		catalog.New(
			catalog.WithLogger(logger),
			catalog.WithSkipPrefixes(cfg.Discovery.SkipPrefixes...),
		),
		newPrompter(in, out),
		session.WithLogger(logger),
		session.WithPasses(cfg.Wipe.Passes),
		session.WithVerify(cfg.Wipe.Verify),
		session.WithRepairAttempts(cfg.RepairBudget()),
		session.WithWiper(wipe.NewExecutor(
			wipe.WithLogger(logger),
			wipe.WithChunkSize(cfg.Wipe.ChunkSize),
			wipe.WithRateLimit(cfg.Wipe.RateLimit),
			wipe.WithProgress(func(p wipe.Progress) { r.progress(p.Offset, p.Size) }),
		)),
		session.WithScanner(verify.New(
			verify.WithLogger(logger),
			verify.WithChunkSize(cfg.Wipe.ChunkSize),
			verify.WithProgress(func(p verify.Progress) { r.progress(p.Offset, p.Size) }),
		)),
		session.WithObserver(r.observe),
	)

	result := s.Run(ctx)

	return r.summary(result), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitError)
	}

	os.Exit(exitCode)
}
