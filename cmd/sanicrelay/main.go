// Command sanicrelay runs the Sanicball match relay server.
//
// The relay accepts game clients over UDP, keeps the authoritative lobby and
// race state, and rebroadcasts match messages and movement to every client.
// Around it run a read-only status API, MQTT telemetry, SQLite match history
// and an operator console.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

const banner = `
   _____             _          __
  / ___/____ _____  (_)_______ / /___ ___  __
  \__ \/ __ '/ __ \/ / ___/ __  / __ '/ / / /
 ___/ / /_/ / / / / / /__/ /_/ / /_/ / /_/ /
/____/\__,_/_/ /_/_/\___/_.___/\__,_/\__, /   relay %s
                                    /____/
`

func main() {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "sanicrelay",
		Short: "Sanicball match relay server",
		Long: `sanicrelay hosts a Sanicball match over UDP.

It keeps the lobby and race state, relays chat, match messages and
movement between clients, and exposes the match through a status API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configDir)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", "config", "directory holding config.json")

	rootCmd.AddCommand(
		serveCmd(&configDir),
		probeCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
