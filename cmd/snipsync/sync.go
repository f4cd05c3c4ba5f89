// ABOUTME: Sync, status, and cache commands
// ABOUTME: Trigger runs on the daemon and render its state for humans

package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/snipsync/internal/syncer"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sync [id]",
		Short: "Push pending snippets to the remote",
		Long:  "Run a bulk sync of every pending snippet, or push a single snippet when an id is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			res, err := client.sync(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}

			out := cmd.OutOrStdout()
			switch {
			case res.Outcome == syncer.OutcomeCompleted && res.Errors == 0:
				color.New(color.FgGreen).Fprint(out, "✓ ")
			case res.Outcome == syncer.OutcomeNothingToSync, res.Outcome == syncer.OutcomeAlreadySyncing:
				color.New(color.FgHiBlack).Fprint(out, "• ")
			default:
				color.New(color.FgRed).Fprint(out, "✗ ")
			}
			fmt.Fprintln(out, res.Message)
			if res.Error != "" {
				color.New(color.FgHiBlack).Fprintf(out, "  %s\n", res.Error)
			}
			if res.Outcome == syncer.OutcomeFailed {
				return fmt.Errorf("sync failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connectivity, pending counts, and the last sync time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			st, err := client.status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}

			out := cmd.OutOrStdout()
			gray := color.New(color.FgHiBlack)

			fmt.Fprint(out, "Connectivity: ")
			if st.Online {
				color.New(color.FgGreen).Fprintln(out, "online")
			} else {
				color.New(color.FgYellow).Fprintln(out, "offline")
			}

			fmt.Fprint(out, "Last sync:    ")
			if st.LastSync != nil {
				fmt.Fprintf(out, "%s ", st.LastSync.Local().Format(time.DateTime))
				gray.Fprintf(out, "(%s ago)\n", time.Since(*st.LastSync).Round(time.Second))
			} else {
				gray.Fprintln(out, "never")
			}

			fmt.Fprintf(out, "Snippets:     %d total, %d pending, %d error\n", st.Total, st.Pending, st.Errors)

			if st.Session != nil {
				fmt.Fprintf(out, "Syncing:      %d/%d\n", st.Session.Successes+st.Session.Errors, st.Session.Total)
			}

			if st.Cache != nil {
				fmt.Fprintf(out, "Origin:       %s ", st.Cache.Origin)
				if st.Cache.Activated {
					color.New(color.FgGreen).Fprintln(out, "[active]")
				} else {
					color.New(color.FgYellow).Fprintln(out, "[not activated]")
				}
				for _, ns := range st.Cache.Namespaces {
					gray.Fprintf(out, "  %s\n", ns)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")
	return cmd
}

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the offline response cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Pre-cache the app shell and activate the current cache generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			cs, err := client.installCache(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprint(out, "✓ ")
			fmt.Fprintf(out, "App shell installed from %s\n", cs.Origin)
			for _, ns := range cs.Namespaces {
				color.New(color.FgHiBlack).Fprintf(out, "  %s\n", ns)
			}
			return nil
		},
	})
	return cmd
}
