package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentrt/internal/transport"
)

func serveCmd() *cobra.Command {
	var (
		addr        string
		projectRoot string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Caller API over a websocket for a frontend",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Headless host: destructive ops are auto-approved; a real
			// frontend would wire its own approval round-trip.
			rt, cleanup, err := buildRuntime(ctx, projectRoot, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Printf("listening on ws://%s/ws\n", addr)
			return transport.NewServer(rt).ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8765", "listen address")
	cmd.Flags().StringVarP(&projectRoot, "project", "p", "", "project root (default: current directory)")
	return cmd
}
