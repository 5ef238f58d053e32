package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"srvmon/internal/agent"
	"srvmon/internal/config"
	"srvmon/internal/logger"
	"srvmon/internal/sampler"
	"srvmon/pkg/profiler"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := config.NewConfig()

	root := &cobra.Command{
		Use:           "srvmon",
		Short:         "Host metrics agent",
		Long:          "Samples host metrics over one window and sends a single report to the collector.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Load(cmd); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "srvmon: invalid configuration: %v\n", err)
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	config.AddFlags(root.Flags())

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), cfg.Version)
		},
	})

	return root
}

// run выполняет один проход агента. Ненулевой код выхода дает только
// невозможность открыть окно измерений.
func run(ctx context.Context, cfg *config.Config) error {
	if err := logger.Initialize(cfg.LogLevel, cfg.LogPath()); err != nil {
		fmt.Fprintf(os.Stderr, "srvmon: failed to initialize logger: %v\n", err)
		return err
	}
	defer logger.Cleanup()
	log := logger.Logger

	prof := profiler.New(profiler.Config{
		Enable:     cfg.ProfileEnable,
		HTTPPort:   cfg.ProfileHTTPPort,
		CPUProfile: cfg.ProfileCPUFile,
		MemProfile: cfg.ProfileMemFile,
	}, log)
	if err := prof.Start(); err != nil {
		log.Warn("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := prof.Stop(); err != nil {
			log.Warn("Failed to stop profiler", zap.Error(err))
		}
	}()

	a, err := agent.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	err = a.Run(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sampler.ErrSetup):
		log.Error("Agent run failed", zap.Error(err))
		return err
	case errors.Is(err, context.Canceled):
		log.Info("Agent run cancelled")
		return nil
	default:
		log.Warn("Agent run finished without report", zap.Error(err))
		return nil
	}
}
