package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/tandem/pkg/logging"
	"github.com/pario-ai/tandem/pkg/mcp"
)

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve Tandem as an MCP server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			// stdout carries the protocol; keep logs on stderr.
			logging.InitWriter(os.Stderr, logging.Config{Level: a.cfg.Log.Level, TimeFormat: a.cfg.Log.TimeFormat})

			h := mcp.NewHandlers(a.svc, a.registry, a.statter(), a.tracker)
			return mcp.Run(h, version)
		},
	}
}
