package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "crdl",
		Short:         "Download Crunchyroll episodes with ffmpeg",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file path")
	pf.StringVarP(&flags.username, "user", "u", "", "Crunchyroll account email (overrides auth.username)")
	pf.StringVarP(&flags.password, "password", "p", "", "Crunchyroll account password (overrides auth.password)")
	pf.StringVar(&flags.locale, "locale", "", "Display locale sent with content requests (default en-US)")
	pf.StringVar(&flags.audioLocale, "audio-locale", "", "Preferred audio locale (default ja-JP)")
	pf.StringVar(&flags.subtitleLocale, "subtitle-locale", "", "Hardsub subtitle track to download (default en-US)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newDownloadCommand(ctx))
	rootCmd.AddCommand(newSeasonsCommand(ctx))
	rootCmd.AddCommand(newEpisodesCommand(ctx))
	rootCmd.AddCommand(newEpisodeCommand(ctx))
	rootCmd.AddCommand(newStreamCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newDepsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
