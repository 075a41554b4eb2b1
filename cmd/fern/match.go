package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/records"
	"github.com/Ramsey-B/fern/pkg/resolver"
)

func newMatchCommand(cmdCtx *commandContext) *cobra.Command {
	var (
		source     string
		target     string
		sourceFile string
		targetFile string
		delimiter  string
		topN       int
		minScore   float64
		unique     bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Rank the records of a target dataset for every record of a source dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			delim, err := parseDelimiter(delimiter)
			if err != nil {
				return err
			}

			return withApp(cmd, cmdCtx, func(ctx context.Context, a *app) error {
				service, err := a.service()
				if err != nil {
					return err
				}
				loader := rowSource{app: a, delimiter: delim}
				sourceRows, err := loader.load(ctx, source, sourceFile)
				if err != nil {
					return fmt.Errorf("sources: %w", err)
				}
				targetRows, err := loader.load(ctx, target, targetFile)
				if err != nil {
					return fmt.Errorf("targets: %w", err)
				}

				opts := service.Options()
				cfg := opts.Matching
				if cmd.Flags().Changed("top-n") {
					cfg.TopN = topN
				}
				if cmd.Flags().Changed("min-score") {
					cfg.MinScore = minScore
				}
				if cmd.Flags().Changed("unique-targets") {
					cfg.AllowDuplicateTargets = !unique
				}

				result, err := service.Match(ctx, resolver.MatchRequest{
					SourceDataset: source,
					TargetDataset: target,
					Sources:       sourceRows,
					Targets:       targetRows,
					Matching:      &cfg,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if jsonOutput {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(result)
				}

				sources, err := records.Build(sourceRows, opts.Columns)
				if err != nil {
					return err
				}
				targets, err := records.Build(targetRows, opts.Columns)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run %s: %d sources, %d targets\n", result.RunID, len(sources.Records), len(targets.Records))
				fmt.Fprintln(out, renderMatches(sources.Records, targets.Records, result.Matches))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Staged source dataset")
	cmd.Flags().StringVar(&target, "target", "", "Staged target dataset")
	cmd.Flags().StringVar(&sourceFile, "source-file", "", "CSV file of source records")
	cmd.Flags().StringVar(&targetFile, "target-file", "", "CSV file of target records")
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", "CSV delimiter (a single character or \"tab\")")
	cmd.Flags().IntVar(&topN, "top-n", 1, "Number of ranked targets kept per source")
	cmd.Flags().Float64Var(&minScore, "min-score", 80, "Minimum score, 0..100, for a target to be reported")
	cmd.Flags().BoolVar(&unique, "unique-targets", false, "Keep only the best source per target")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	return cmd
}

func renderMatches(sources, targets []models.PersonRecord, matches []models.MatchCandidate) string {
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		if !m.Matched() {
			rows = append(rows, []string{describe(sources[m.SourceID]), "-", "no match"})
			continue
		}
		rows = append(rows, []string{
			describe(sources[m.SourceID]),
			strconv.FormatFloat(m.Score, 'f', 1, 64),
			describe(targets[m.TargetID]),
		})
	}
	return renderTable([]string{"Source", "Score", "Target"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft})
}
