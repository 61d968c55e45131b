package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mediaconv/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent conversions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return ctx.withHistory(cmd.Context(), func(store *history.Store) error {
				out := cmd.OutOrStdout()
				if store == nil {
					fmt.Fprintln(out, "History is disabled (history.enabled = false)")
					return nil
				}
				entries, err := store.List(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("list history: %w", err)
				}
				if jsonOutput {
					if entries == nil {
						entries = []history.Entry{}
					}
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "No conversions recorded")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Kind", "Status", "Title", "File", "Started", "Took"},
					historyRows(entries),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print entries as JSON")
	return cmd
}

func historyRows(entries []history.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		id := entry.ID
		if len(id) > 8 {
			id = id[:8]
		}
		detail := entry.Title
		if entry.Status == history.StatusFailure && entry.Error != "" {
			detail = entry.Error
		}
		took := ""
		if entry.DurationMS > 0 {
			took = (time.Duration(entry.DurationMS) * time.Millisecond).Round(100 * time.Millisecond).String()
		}
		rows = append(rows, []string{
			id,
			entry.Kind.String(),
			string(entry.Status),
			truncate(detail, 40),
			entry.FileName,
			entry.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			took,
		})
	}
	return rows
}

func truncate(value string, width int) string {
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	return string(runes[:width-1]) + "…"
}
