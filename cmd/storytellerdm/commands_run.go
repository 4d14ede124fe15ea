package main

import (
	"github.com/spf13/cobra"
)

// buildRunCmd creates the "run" command that starts the agent against a
// configured engine and room.
func buildRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the Storyteller agent against a configured engine",
		Long: `Run starts the per-room control loop, the nightly maintenance job,
and the HTTP listener the engine posts events to.

It will:
1. Load configuration from the specified file
2. Build the model router, memory manager, and tool registry
3. Start the control loop and maintenance cron
4. Listen for engine events until interrupted

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Run with default config path
  storytellerdm run

  # Run with a specific config file
  storytellerdm run --config /etc/storytellerdm/room-42.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "storytellerdm.yaml", "Path to YAML/JSON5 configuration file")
	return cmd
}
