package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/caravelbot/caravel/pkg/bus"
	"github.com/caravelbot/caravel/pkg/channels"
	"github.com/caravelbot/caravel/pkg/commands"
	"github.com/caravelbot/caravel/pkg/config"
	"github.com/caravelbot/caravel/pkg/engine"
	"github.com/caravelbot/caravel/pkg/flood"
	"github.com/caravelbot/caravel/pkg/flow"
	"github.com/caravelbot/caravel/pkg/logger"
)

func newServeCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bot and connect the enabled channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(debug)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func runServe(debug bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	level := logger.ParseLevel(cfg.Logging.Level)
	if debug {
		level = logger.DEBUG
	}
	logger.SetLevel(level)

	if cfg.Logging.File != "" {
		if err := logger.EnableFileLogging(cfg.Logging.File); err != nil {
			logger.WarnCF("main", "File logging unavailable", map[string]any{
				"file": cfg.Logging.File, "error": err.Error(),
			})
		}
		defer logger.DisableFileLogging()
	}

	msgBus := bus.NewMessageBus()

	registry := flow.NewRegistry()
	commands.RegisterBuiltins(registry)

	dispatcher := flow.NewDispatcher(registry, engine.BusSender(msgBus), flow.Options{
		Tokens: flow.Tokens{
			Help: cfg.Engine.HelpToken,
			Stop: cfg.Engine.StopToken,
			Done: cfg.Engine.DoneToken,
		},
		DefaultCooldown: time.Duration(cfg.Engine.CooldownSeconds) * time.Second,
		Admins:          cfg.Engine.Admins,
	})

	guard := flood.NewGuard(cfg.Engine.FloodPerMinute, cfg.Engine.FloodBurst)
	eng := engine.New(msgBus, dispatcher, guard)

	manager, err := channels.NewManager(cfg, msgBus)
	if err != nil {
		return fmt.Errorf("error creating channel manager: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("error starting channels: %w", err)
	}

	enabled := manager.GetEnabledChannels()
	if len(enabled) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabled, ", "))
	} else {
		fmt.Println("⚠ Warning: no channels enabled, check your config")
	}
	fmt.Println("✓ Caravel started. Press Ctrl+C to stop")

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	engineFinished := false
	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
		cancel()
	case err := <-engineDone:
		engineFinished = true
		if err != nil {
			logger.ErrorCF("main", "Engine stopped unexpectedly", map[string]any{
				"error": err.Error(),
			})
		}
	}

	// The engine drains its per-chat queues on cancellation; wait for that
	// before tearing the transports down.
	if !engineFinished {
		select {
		case <-engineDone:
		case <-time.After(10 * time.Second):
			logger.WarnC("main", "Engine drain timed out")
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := manager.StopAll(stopCtx); err != nil {
		logger.ErrorCF("main", "Error stopping channels", map[string]any{
			"error": err.Error(),
		})
	}

	msgBus.Close()
	fmt.Println("Caravel stopped")
	return nil
}
