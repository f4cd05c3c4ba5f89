// ABOUTME: Record commands: put, get, list, delete
// ABOUTME: Each talks to the running daemon so the store has a single writer

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/snipsync/internal/store"
)

func newPutCmd(opts *rootOptions) *cobra.Command {
	var id, tag string
	cmd := &cobra.Command{
		Use:   "put [content|-]",
		Short: "Create or replace a snippet",
		Long:  "Create a snippet, or replace one with --id. Pass - or no argument to read the content from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			rec, err := client.put(cmd.Context(), id, content, tag)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "record id to replace (default: new id)")
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "tag, e.g. the snippet language")
	return cmd
}

func readContent(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print a snippet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			rec, err := client.get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rec)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rec.Content)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full record as JSON")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var tag, status, since string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snippets, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := url.Values{}
			if tag != "" {
				filter.Set("tag", tag)
			}
			if status != "" {
				filter.Set("status", status)
			}
			if since != "" {
				filter.Set("since", since)
			}

			client, err := opts.client()
			if err != nil {
				return err
			}
			recs, err := client.list(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), recs)
			}
			return writeRecordTable(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "only snippets with this tag")
	cmd.Flags().StringVar(&status, "status", "", "only snippets with this sync status (pending, synced, error)")
	cmd.Flags().StringVar(&since, "since", "", "only snippets modified at or after this RFC 3339 time")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a snippet locally",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			return client.delete(cmd.Context(), args[0])
		},
	}
}

func statusColor(s store.SyncStatus) string {
	switch s {
	case store.SyncStatusSynced:
		return color.GreenString(string(s))
	case store.SyncStatusError:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func writeRecordTable(w io.Writer, recs []store.Record) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "No snippets")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTAG\tSTATUS\tMODIFIED\tCONTENT")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Tag, statusColor(r.SyncStatus),
			r.ModifiedAt.Local().Format("2006-01-02 15:04"), preview(r.Content, 40))
	}
	return tw.Flush()
}

// preview returns the first line of s, cut to n runes.
func preview(s string, n int) string {
	line, _, _ := strings.Cut(s, "\n")
	runes := []rune(line)
	if len(runes) > n {
		return string(runes[:n-1]) + "…"
	}
	return line
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
