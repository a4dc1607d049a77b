package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/caravelbot/caravel/pkg/config"
)

// Set via -ldflags at release build time.
var (
	version   = "dev"
	gitCommit string
	buildTime string
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "caravel",
		Short:         "Conversational command bot for Telegram, Discord and WebSocket",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "Path to the config file")

	root.AddCommand(newServeCommand())
	root.AddCommand(newCommandsCommand())
	root.AddCommand(newInitCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			v := version
			if gitCommit != "" {
				v += fmt.Sprintf(" (git: %s)", gitCommit)
			}
			fmt.Printf("caravel %s\n", v)
			if buildTime != "" {
				fmt.Printf("  Build: %s\n", buildTime)
			}
			fmt.Printf("  Go: %s\n", runtime.Version())
		},
	}
}

// newInitCommand writes a default config so users have something to edit.
func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config already exists at %s", configPath)
			}
			if err := config.SaveConfig(configPath, config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Printf("Wrote default config to %s\n", configPath)
			fmt.Println("Enable a channel and set its token, then run: caravel serve")
			return nil
		},
	}
}
