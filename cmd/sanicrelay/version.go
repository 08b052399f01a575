package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/sanicball-project/sanicrelay/internal/protocol"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sanicrelay %s (%s)\n", version, commit)
			fmt.Printf("  app id:  %s\n", protocol.AppID)
			fmt.Printf("  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
