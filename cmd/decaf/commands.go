package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/decaf-reliability/decaf/internal/config"
	"github.com/decaf-reliability/decaf/internal/engine"
	"github.com/decaf-reliability/decaf/internal/generator"
	"github.com/decaf-reliability/decaf/internal/report"
	"github.com/decaf-reliability/decaf/internal/state"
)

// solveFlags are the per-run overrides accepted by solve and watch.
type solveFlags struct {
	format      string
	metricsFile string
	workers     int
	diagonal    string
	require     []string
}

func newRootCmd() *cobra.Command {
	var (
		logLevel  string
		logFormat string
	)
	root := &cobra.Command{
		Use:           "decaf",
		Short:         "Dependability analysis of systems with cascading failures",
		Long:          "decaf models a repairable multi-component system as a continuous-time Markov chain\nand computes its mean time to failure (MTTF) and steady-state unavailability (SSU).",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), logLevel, logFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(newValidateCmd(), newSolveCmd(), newWatchCmd())
	return root
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a model file and report its state-space size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			m, err := cfg.Model()
			if err != nil {
				return err
			}
			codec := state.NewCodec(m.Redundancies(), m.EnvCount())
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d components, %d environments, %d cascading links, %d states)\n",
				args[0], m.NumTypes(), m.EnvCount(), m.LinkCount(), codec.Length())
			return nil
		},
	}
}

func newSolveCmd() *cobra.Command {
	var f solveFlags
	cmd := &cobra.Command{
		Use:   "solve FILE",
		Short: "Compute MTTF and SSU for a model file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(f.format)
			if err != nil {
				return err
			}
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			return solveOnce(cmd.Context(), cmd, cfg, f, format)
		},
	}
	addSolveFlags(cmd, &f)
	return cmd
}

func newWatchCmd() *cobra.Command {
	var (
		f        solveFlags
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Solve a model file and re-solve from scratch whenever it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(f.format)
			if err != nil {
				return err
			}
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := solveOnce(ctx, cmd, cfg, f, format); err != nil {
				slog.Error("solve failed", "path", args[0], "err", err)
			}
			return config.Watch(ctx, args[0], config.WatchOptions{Debounce: debounce}, func(updated *config.Config) {
				if err := solveOnce(ctx, cmd, updated, f, format); err != nil {
					slog.Error("solve failed", "path", args[0], "err", err)
				}
			})
		},
	}
	addSolveFlags(cmd, &f)
	cmd.Flags().DurationVar(&debounce, "debounce", config.DefaultDebounce, "quiet period after the last write before re-solving")
	return cmd
}

func addSolveFlags(cmd *cobra.Command, f *solveFlags) {
	cmd.Flags().StringVarP(&f.format, "format", "o", "text", "summary format: text, yaml or json")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "also write Prometheus text exposition to this file")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "failure-tree workers (overrides generator.workers)")
	cmd.Flags().StringVar(&f.diagonal, "diagonal", "", "diagonal mode: auto, incremental or final (overrides generator.diagonal)")
	cmd.Flags().StringArrayVar(&f.require, "require", nil, `requirement checked after solving, e.g. "availability >= 0.999" (repeatable, adds to requirements)`)
}

// solveOnce runs a fresh engine over cfg and writes its reports.
func solveOnce(ctx context.Context, cmd *cobra.Command, cfg *config.Config, f solveFlags, format report.Format) error {
	opts := cfg.Options()
	if cmd.Flags().Changed("workers") {
		opts.Generator.Workers = f.workers
	}
	if f.diagonal != "" {
		switch mode := generator.DiagonalMode(strings.ToLower(f.diagonal)); mode {
		case generator.DiagonalAuto, generator.DiagonalIncremental, generator.DiagonalFinal:
			opts.Generator.Diagonal = mode
		default:
			return fmt.Errorf("unknown diagonal mode %q", f.diagonal)
		}
	}

	conds, err := cfg.Conditions()
	if err != nil {
		return err
	}
	extra, err := report.ParseConditions(f.require)
	if err != nil {
		return err
	}
	conds = append(conds, extra...)

	m, err := cfg.Model()
	if err != nil {
		return err
	}
	e := engine.New(opts)
	if err := e.Setup(m); err != nil {
		return err
	}
	res, err := e.Run(ctx)
	if err != nil {
		return err
	}

	if err := report.WriteSummary(cmd.OutOrStdout(), res, format); err != nil {
		return err
	}
	if f.metricsFile != "" {
		if err := writeMetricsFile(f.metricsFile, res); err != nil {
			return err
		}
		slog.Info("metrics written", "path", f.metricsFile, "run_id", res.RunID)
	}
	return report.Check(res, conds)
}

// writeMetricsFile replaces path atomically so textfile collectors never
// read a partial exposition.
func writeMetricsFile(path string, res *engine.Result) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := report.WriteMetrics(tmp, res); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metrics file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("metrics file: %w", err)
	}
	return nil
}

// newLogger builds the process logger: JSON for machines, text for people.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("--log-format: unknown format %q (want text or json)", format)
	}
}
