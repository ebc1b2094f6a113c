package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"crdl/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List downloaded episodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				if entries == nil {
					entries = []history.Entry{}
				}
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No downloads recorded in %s\n", store.Path())
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.UpdatedAt.Local().Format(time.DateTime),
					e.EpisodeID,
					e.SeriesTitle,
					"S" + strconv.Itoa(e.SeasonNumber) + "E" + strconv.Itoa(e.EpisodeNumber),
					string(e.Status),
					strconv.Itoa(e.Attempts),
					e.OutputPath,
				})
			}
			printTable(cmd, []string{"Updated", "Episode ID", "Series", "Episode", "Status", "Attempts", "Output"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight})
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	cmd.AddCommand(newHistoryForgetCommand(ctx))
	return cmd
}

// newHistoryForgetCommand drops an episode from the history so the next
// download run fetches it again.
func newHistoryForgetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "forget EPISODE_ID",
		Short: "Remove an episode from the download history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()

			entry, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if entry == nil {
				return fmt.Errorf("episode %s is not in the history", args[0])
			}
			if err := store.Remove(cmd.Context(), entry.EpisodeID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s (%s S%dE%d)\n", entry.EpisodeID, entry.SeriesTitle, entry.SeasonNumber, entry.EpisodeNumber)
			return nil
		},
	}
}
