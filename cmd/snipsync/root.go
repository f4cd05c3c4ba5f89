// ABOUTME: Root cobra command and shared flag handling
// ABOUTME: Resolves the config file and the daemon address for client commands

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2389/snipsync/internal/config"
)

type rootOptions struct {
	configPath string
	addr       string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "snipsync",
		Short:         "Offline-first snippet store with background sync",
		Long:          "snipsync keeps snippets in a local SQLite store, pushes them to a remote when online, and fronts a web app with an offline cache.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $SNIPSYNC_CONFIG or ~/.config/snipsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.addr, "addr", "", "daemon HTTP address for client commands (default server.http_addr)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newInitCmd(opts),
		newPutCmd(opts),
		newGetCmd(opts),
		newListCmd(opts),
		newDeleteCmd(opts),
		newSyncCmd(opts),
		newStatusCmd(opts),
		newCacheCmd(opts),
		newSinkCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func (o *rootOptions) loadConfig() (*config.Config, string, error) {
	path := config.Path(o.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

// client returns an API client for the running daemon. A missing config
// file falls back to the default address.
func (o *rootOptions) client() (*apiClient, error) {
	addr := o.addr
	if addr == "" {
		cfg, _, err := o.loadConfig()
		switch {
		case err == nil:
			addr = cfg.Server.HTTPAddr
		case o.configPath == "":
			addr = config.Default().Server.HTTPAddr
		default:
			return nil, err
		}
	}
	return newAPIClient(addr, nil), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the snipsync version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "snipsync %s\n", version)
			return err
		},
	}
}
