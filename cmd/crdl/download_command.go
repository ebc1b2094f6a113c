package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"crdl/internal/config"
	"crdl/internal/deps"
	"crdl/internal/downloader"
	"crdl/internal/history"
	"crdl/internal/logging"
	"crdl/internal/pipeline"
	"crdl/internal/services"
)

type downloadFlags struct {
	show        string
	season      string
	episode     string
	directory   string
	maxInFlight int
	dryRun      bool
	overwrite   bool
	json        bool
}

func (f downloadFlags) target() pipeline.Target {
	switch {
	case strings.TrimSpace(f.show) != "":
		return pipeline.Target{Kind: pipeline.TargetShow, ID: f.show}
	case strings.TrimSpace(f.season) != "":
		return pipeline.Target{Kind: pipeline.TargetSeason, ID: f.season}
	default:
		return pipeline.Target{Kind: pipeline.TargetEpisode, ID: f.episode}
	}
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var flags downloadFlags

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download a show, season, or single episode",
		Long: "Download every episode of a show (--show), a season (--season), or a single\n" +
			"episode (--episode). Files are written as <series>_S<season>E<episode>.mp4\n" +
			"into --directory, or into a folder named after the series under download.base_dir.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			overrides := config.Overrides{MaxInFlight: flags.maxInFlight}
			if flags.directory != "" {
				overrides.Directory = flags.directory
			}
			if cmd.Flags().Changed("overwrite") {
				overrides.Overwrite = &flags.overwrite
			}
			if err := cfg.ApplyOverrides(overrides); err != nil {
				return err
			}
			return runDownload(cmd, ctx, cfg, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.show, "show", "s", "", "Series ID; downloads all seasons and episodes")
	cmd.Flags().StringVar(&flags.season, "season", "", "Season ID; downloads all episodes in the season")
	cmd.Flags().StringVarP(&flags.episode, "episode", "e", "", "Episode ID; downloads a single episode")
	cmd.Flags().StringVarP(&flags.directory, "directory", "d", "", "Save directory (default: a folder named after the series)")
	cmd.Flags().IntVar(&flags.maxInFlight, "max-in-flight", 0, "Concurrent stream resolutions (overrides api.max_in_flight)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Resolve streams and print the plan without running ffmpeg")
	cmd.Flags().BoolVar(&flags.overwrite, "overwrite", false, "Replace files that already exist")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the run summary as JSON")
	cmd.MarkFlagsMutuallyExclusive("show", "season", "episode")
	cmd.MarkFlagsOneRequired("show", "season", "episode")
	return cmd
}

func runDownload(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, flags downloadFlags) error {
	if !flags.dryRun {
		statuses := deps.CheckBinaries(cmd.Context(), deps.DownloadRequirements(cfg.FFmpegBinary()))
		if missing := deps.MissingRequired(statuses); len(missing) > 0 {
			return services.Wrap(services.ErrConfiguration, "preflight", "check dependencies",
				fmt.Sprintf("%s (%s); install it or set download.ffmpeg_binary", missing[0].Detail, missing[0].Name), nil)
		}
	}

	sess, err := ctx.login(cmd.Context(), cmd)
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "preflight", "open history", cfg.HistoryPath(), err)
	}
	defer store.Close()

	fetcher := downloader.New(cfg, downloader.WithLogger(sess.logger))
	runner := pipeline.New(sess.client, fetcher, store, sess.logger, pipeline.Options{
		Locale:        cfg.ContentLocale(),
		MaxInFlight:   cfg.API.MaxInFlight,
		DryRun:        flags.dryRun,
		SkipCompleted: cfg.Download.SkipCompleted && !cfg.Download.Overwrite,
	})

	summary, runErr := runner.Run(cmd.Context(), flags.target())
	if runErr != nil {
		sess.logger.Debug("run aborted",
			logging.String(logging.FieldErrorCode, services.Classify(runErr)),
			logging.Int("outcomes", len(summary.Outcomes)),
		)
	}
	if flags.json {
		if err := writeJSON(cmd, summary); err != nil {
			return err
		}
	} else {
		renderSummary(cmd, summary)
	}
	return runErr
}

func renderSummary(cmd *cobra.Command, summary pipeline.Summary) {
	if len(summary.Outcomes) == 0 {
		return
	}
	rows := make([][]string, 0, len(summary.Outcomes))
	for _, o := range summary.Outcomes {
		row := []string{o.Episode.Label(), o.Episode.ID, string(o.Status), o.OutputPath}
		if o.Status == pipeline.OutcomePlanned {
			row = append(row, o.StreamURL)
		}
		rows = append(rows, row)
	}
	headers := []string{"Episode", "ID", "Status", "Output"}
	if summary.Count(pipeline.OutcomePlanned) > 0 {
		headers = append(headers, "Stream")
	}
	printTable(cmd, headers, rows, nil)
}
