package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caravelbot/caravel/pkg/commands"
	"github.com/caravelbot/caravel/pkg/flow"
)

// newCommandsCommand prints the built-in command catalog, including the
// admin-only entries.
func newCommandsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the built-in chat commands",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			registry := flow.NewRegistry()
			commands.RegisterBuiltins(registry)

			for _, cat := range registry.ListVisible(true) {
				name := cat.Name
				if name == "" {
					name = "General"
				}
				fmt.Printf("%s\n", name)
				for _, c := range cat.Commands {
					visibility := ""
					if !c.Public {
						visibility = " (admin only)"
					}
					fmt.Printf("  %-14s %s%s\n", c.Name, c.Description, visibility)
				}
				fmt.Println()
			}
		},
	}
}
