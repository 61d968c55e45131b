package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"mediaconv/internal/conversion"
	"mediaconv/internal/history"
	"mediaconv/internal/workspace"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "convert <audio|video> <url>",
		Short: "Convert one URL into the output directory",
		Long: "Runs a single conversion through the same pipeline the API uses. The\n" +
			"output lands in paths.output_dir and is swept like any other download.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := workspace.ParseKind(args[0])
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := commandLogger(cfg)
			if err != nil {
				return err
			}
			ws, err := workspace.New(cfg.Paths.OutputDir, logger)
			if err != nil {
				return err
			}
			fetcher, transcoder := ctx.converters(cfg, logger)

			return ctx.withHistory(cmd.Context(), func(store *history.Store) error {
				opts := conversion.PipelineFromConfig(cfg)
				if store != nil {
					opts = append(opts, conversion.WithHistory(store))
				}
				pipeline := conversion.NewPipeline(ws, fetcher, transcoder, nil, logger, opts...)
				res := pipeline.Convert(cmd.Context(), conversion.Request{SourceURL: args[1], Kind: kind})

				if jsonOutput {
					if err := writeJSON(cmd, res); err != nil {
						return err
					}
				}
				if !res.Succeeded() {
					return fmt.Errorf("conversion failed: %s", res.Error)
				}
				if !jsonOutput {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Title: %s\n", res.Title)
					fmt.Fprintf(out, "File:  %s\n", filepath.Join(ws.Dir(), res.FileName))
					fmt.Fprintf(out, "URL:   %s\n", res.URL)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	return cmd
}
