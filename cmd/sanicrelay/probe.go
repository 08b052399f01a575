package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanicball-project/sanicrelay/internal/network"
)

func probeCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "probe <host:port>",
		Short: "Ping a running relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			clock, err := network.Probe(args[0], timeout)
			if err != nil {
				return err
			}
			fmt.Printf("%s answered in %s (server clock %.2fs)\n",
				args[0], time.Since(start).Round(time.Microsecond), clock)
			return nil
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 2*time.Second, "how long to wait for the pong")
	return cmd
}
