package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"crdl/internal/crunchyroll"
)

func newSeasonsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "seasons SERIES_ID",
		Short: "List the seasons of a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.login(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			seasons, err := sess.client.FetchSeasons(cmd.Context(), args[0], sess.cfg.ContentLocale())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, seasons)
			}
			rows := make([][]string, 0, len(seasons))
			for _, s := range seasons {
				rows = append(rows, []string{
					s.ID,
					strconv.Itoa(s.SeasonNumber),
					s.Identifier,
					s.AudioLocale,
					strconv.Itoa(s.EpisodeCount),
				})
			}
			printTable(cmd, []string{"ID", "Season", "Identifier", "Audio", "Episodes"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight})
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newEpisodesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "episodes SEASON_ID",
		Short: "List the episodes of a season",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.login(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			episodes, err := sess.client.FetchSeasonEpisodes(cmd.Context(), args[0], sess.cfg.ContentLocale())
			if err != nil {
				return err
			}
			return printEpisodes(cmd, episodes, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newEpisodeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "episode EPISODE_ID",
		Short: "Show the metadata of one episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.login(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			episodes, err := sess.client.FetchEpisode(cmd.Context(), args[0], sess.cfg.ContentLocale())
			if err != nil {
				return err
			}
			return printEpisodes(cmd, episodes, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newStreamCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stream STREAMS_LINK",
		Short: "Resolve an episode's streams link into an HLS URL",
		Long: "Resolve the streams_link of an episode (see 'crdl episode --json') into the\n" +
			"multi-track HLS URL for the selected subtitle locale.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.login(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			locale := sess.cfg.ContentLocale()
			url, err := sess.client.ResolveStreamURL(cmd.Context(), args[0], locale)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, map[string]string{
					"streams_link": args[0],
					"subtitle":     locale.SubtitleTrack(),
					"url":          url,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func printEpisodes(cmd *cobra.Command, episodes []crunchyroll.EpisodeRecord, asJSON bool) error {
	if asJSON {
		return writeJSON(cmd, episodes)
	}
	rows := make([][]string, 0, len(episodes))
	for _, ep := range episodes {
		rows = append(rows, []string{
			ep.Label(),
			ep.ID,
			ep.SeriesTitle,
			ep.Title,
			formatRuntime(ep.Duration()),
			ep.AudioLocale,
			yesNo(ep.PremiumOnly),
		})
	}
	printTable(cmd, []string{"Episode", "ID", "Series", "Title", "Runtime", "Audio", "Premium"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight})
	return nil
}

func formatRuntime(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	d = d.Round(time.Second)
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
