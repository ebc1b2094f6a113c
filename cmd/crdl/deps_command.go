package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"crdl/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check external dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := deps.CheckBinaries(cmd.Context(), deps.DownloadRequirements(cfg.FFmpegBinary()))
			if asJSON {
				if err := writeJSON(cmd, statuses); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(statuses))
				for _, s := range statuses {
					detail := s.Version
					if !s.Available {
						detail = s.Detail
					}
					rows = append(rows, []string{s.Name, s.Command, yesNo(s.Available), detail})
				}
				printTable(cmd, []string{"Dependency", "Command", "Available", "Detail"}, rows, nil)
			}
			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				names := make([]string, 0, len(missing))
				for _, m := range missing {
					names = append(names, m.Name)
				}
				return fmt.Errorf("missing required dependencies: %s", strings.Join(names, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
