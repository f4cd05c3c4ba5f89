// ABOUTME: The serve and init commands
// ABOUTME: Prints the startup banner, loads config, and runs the daemon until signalled

package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/snipsync/internal/config"
	"github.com/2389/snipsync/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the snipsync daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cyan := color.New(color.FgCyan)
			cyan.Print(banner)

			gray := color.New(color.FgHiBlack)
			gray.Printf("    version: %s\n\n", version)

			cfg, configPath, err := opts.loadConfig()
			if err != nil {
				return err
			}

			logger := setupLogger(cfg.Logging)

			green := color.New(color.FgGreen)
			yellow := color.New(color.FgYellow)

			green.Print("    ▶ ")
			fmt.Printf("Config:    %s\n", configPath)
			green.Print("    ▶ ")
			fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
			if cfg.Server.GRPCAddr != "" {
				green.Print("    ▶ ")
				fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
			}
			green.Print("    ▶ ")
			fmt.Printf("Remote:    %s", cfg.Sync.Remote)
			if cfg.Sync.Remote == config.RemoteSimulated {
				yellow.Print(" [simulated]")
			}
			fmt.Println()
			green.Print("    ▶ ")
			fmt.Printf("Origin:    ")
			if cfg.Origin.URL != "" {
				cyan.Print(cfg.Origin.URL)
				gray.Printf(" (%s-*-%s)", cfg.Cache.Prefix, cfg.Cache.Version)
			} else {
				gray.Print("embedded app shell")
			}
			fmt.Println()
			fmt.Println()

			logger.Info("starting snipsync",
				"config", configPath,
				"http_addr", cfg.Server.HTTPAddr,
				"remote", cfg.Sync.Remote,
			)

			srv, err := server.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			return srv.Run(cmd.Context())
		},
	}
}

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.Path(opts.configPath)
			dbPath := filepath.Join(config.DataPath(), "snipsync.db")
			if err := config.WriteStarter(path, dbPath); err != nil {
				return err
			}

			green := color.New(color.FgGreen)
			green.Fprint(cmd.OutOrStdout(), "✓ ")
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
}
