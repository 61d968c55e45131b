package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mediaconv/internal/history"
	"mediaconv/internal/logging"
	"mediaconv/internal/retention"
	"mediaconv/internal/services/s3mirror"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired files from the output directory once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := commandLogger(cfg)
			if err != nil {
				return err
			}
			age := cfg.RetentionMaxAge()
			if maxAge > 0 {
				age = maxAge
			}
			mirror, err := s3mirror.New(cfg.Mirror, logger)
			if err != nil {
				return err
			}

			return ctx.withHistory(cmd.Context(), func(store *history.Store) error {
				onRemove := func(removeCtx context.Context, name string) {
					if store != nil {
						if _, err := store.MarkExpired(removeCtx, name); err != nil {
							logger.Warn("history expire failed", logging.String("file", name), logging.Error(err))
						}
					}
					if mirror != nil {
						if err := mirror.Remove(removeCtx, name); err != nil {
							logger.Warn("mirror remove failed", logging.String("file", name), logging.Error(err))
						}
					}
				}
				sweeper := retention.New(cfg.Paths.OutputDir, age, cfg.SweepInterval(), nil, logger,
					retention.WithOnRemove(onRemove))
				res := sweeper.Sweep(cmd.Context())

				if jsonOutput {
					return writeJSON(cmd, res)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Scanned %d files, removed %d (older than %s)\n", res.Scanned, len(res.Removed), age)
				for _, name := range res.Removed {
					fmt.Fprintf(out, "  removed %s\n", name)
				}
				for _, failure := range res.Errors {
					fmt.Fprintf(out, "  failed  %s: %s\n", failure.Path, failure.Err)
				}
				if len(res.Errors) > 0 {
					return fmt.Errorf("%d files could not be removed", len(res.Errors))
				}
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Override retention.max_age_minutes (e.g. 10m)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the sweep result as JSON")
	return cmd
}
