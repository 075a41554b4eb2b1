package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/clustering"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/records"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/similarity"
)

// withApp starts the configured dependencies around fn
func withApp(cmd *cobra.Command, cmdCtx *commandContext, fn func(ctx context.Context, a *app) error) error {
	cfg, logger, err := cmdCtx.ensure()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a := newApp(cfg, logger, appOptions{})
	if err := a.start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.stop(stopCtx); err != nil {
			logger.WithError(err).Error("Failed to stop dependencies")
		}
	}()

	return fn(ctx, a)
}

func newClusterCommand(cmdCtx *commandContext) *cobra.Command {
	var (
		dataset    string
		file       string
		delimiter  string
		linkage    string
		cutoff     float64
		iteration  string
		merge      bool
		labelsOut  string
		jsonOutput bool
		showAll    bool
		quality    bool
		baseline   string
	)

	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Resolve the records of one dataset into person entities",
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
				rows, err := rowSource{app: a, delimiter: delim}.load(ctx, dataset, file)
				if err != nil {
					return err
				}

				opts := service.Options()
				cfg := opts.Clustering
				if cmd.Flags().Changed("linkage") {
					if cfg.Linkage, err = clustering.ParseLinkage(linkage); err != nil {
						return err
					}
				}
				if cmd.Flags().Changed("iteration") {
					if cfg.Iteration, err = clustering.ParseIteration(iteration); err != nil {
						return err
					}
				}
				if cmd.Flags().Changed("cutoff") {
					cfg.Cutoff = cutoff
				}
				if cmd.Flags().Changed("allow-known-merge") {
					cfg.AllowKnownClusterMerge = merge
				}

				result, err := service.Cluster(ctx, resolver.ClusterRequest{
					Dataset:    dataset,
					Rows:       rows,
					Clustering: &cfg,
				})
				if err != nil {
					return err
				}

				if labelsOut != "" {
					if err := writeLabels(labelsOut, result.Labels); err != nil {
						return err
					}
				}

				out := cmd.OutOrStdout()
				if jsonOutput {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(result)
				}

				set, err := records.Build(rows, opts.Columns)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run %s: %d rows, %d records, %d entities\n", result.RunID, len(rows), len(set.Records), len(result.Clusters))

				var scorer clustering.PairScorer
				if quality {
					if scorer, err = similarity.NewScorer(opts.Similarity); err != nil {
						return err
					}
				}
				fmt.Fprintln(out, renderClusters(set.Records, result.Clusters, scorer, showAll))

				if baseline != "" {
					previous, err := readLabels(baseline)
					if err != nil {
						return err
					}
					agreement, err := labelAgreement(previous, result.Labels)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Agreement with %s: %.3f\n", baseline, agreement)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "Staged dataset to cluster")
	cmd.Flags().StringVar(&file, "file", "", "CSV file to cluster instead of a staged dataset")
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", "CSV delimiter (a single character or \"tab\")")
	cmd.Flags().StringVar(&linkage, "linkage", "", "Linkage: single, average or max")
	cmd.Flags().Float64Var(&cutoff, "cutoff", 0, "Minimum linkage score, 0..100")
	cmd.Flags().StringVar(&iteration, "iteration", "", "Iteration: fast or exhaustive")
	cmd.Flags().BoolVar(&merge, "allow-known-merge", false, "Allow clusters to absorb other known clusters")
	cmd.Flags().StringVar(&labelsOut, "labels-out", "", "Write row_index,entity_id to this CSV file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&showAll, "all", false, "Also list single-record entities")
	cmd.Flags().BoolVar(&quality, "quality", false, "Show the average- and single-link integrity of every entity")
	cmd.Flags().StringVar(&baseline, "baseline", "", "Compare the labels with a previous --labels-out file")
	return cmd
}

func renderClusters(recs []models.PersonRecord, clusters []models.Cluster, scorer clustering.PairScorer, showAll bool) string {
	headers := []string{"Entity", "Size", "Records"}
	aligns := []columnAlignment{alignRight, alignRight, alignLeft}
	if scorer != nil {
		headers = append(headers, "Avg", "Single")
		aligns = append(aligns, alignRight, alignRight)
	}

	rows := make([][]string, 0, len(clusters))
	for label, c := range clusters {
		if len(c) < 2 && !showAll {
			continue
		}
		members := make([]string, 0, len(c))
		for _, id := range c {
			members = append(members, describe(recs[id]))
		}
		row := []string{strconv.Itoa(label), strconv.Itoa(len(c)), strings.Join(members, "\n")}
		if scorer != nil {
			integrity := clustering.ClusterIntegrity(recs, c, scorer)
			row = append(row, strconv.FormatFloat(integrity.Average, 'f', 1, 64), strconv.FormatFloat(integrity.Single, 'f', 1, 64))
		}
		rows = append(rows, row)
	}
	return renderTable(headers, rows, aligns)
}

func describe(r models.PersonRecord) string {
	parts := []string{fmt.Sprintf("#%d", r.ID), r.GivenName, r.FamilyName}
	if r.DateOfBirth != "" {
		parts = append(parts, r.DateOfBirth)
	}
	return strings.Join(parts, " ")
}

func writeLabels(path string, labels []int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"row_index", "entity_id"}); err != nil {
		return err
	}
	for i, label := range labels {
		if err := w.Write([]string{strconv.Itoa(i), strconv.Itoa(label)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func readLabels(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%s has no header row", path)
	}

	labels := make([]int, len(lines)-1)
	for i, line := range lines[1:] {
		if len(line) != 2 {
			return nil, fmt.Errorf("line %d: expected row_index,entity_id", i+2)
		}
		row, err := strconv.Atoi(line[0])
		if err != nil || row != i {
			return nil, fmt.Errorf("line %d: row_index %q out of order", i+2, line[0])
		}
		if labels[i], err = strconv.Atoi(line[1]); err != nil {
			return nil, fmt.Errorf("line %d: invalid entity_id %q", i+2, line[1])
		}
	}
	return labels, nil
}

// labelAgreement is the mean, over the entities of current, of the best Jaccard
// similarity with any entity of previous. Both label the same rows.
func labelAgreement(previous, current []int) (float64, error) {
	if len(previous) != len(current) {
		return 0, fmt.Errorf("baseline labels %d rows, this run %d", len(previous), len(current))
	}
	before := groupRows(previous)
	after := groupRows(current)
	if len(after) == 0 {
		return 1, nil
	}

	var sum float64
	for _, c := range after {
		best := 0.0
		seen := make(map[int]struct{})
		for _, row := range c {
			label := previous[row]
			if _, ok := seen[label]; ok {
				continue
			}
			seen[label] = struct{}{}
			best = max(best, clustering.Jaccard(c, before[label]))
		}
		sum += best
	}
	return sum / float64(len(after)), nil
}

func groupRows(labels []int) map[int]models.Cluster {
	groups := make(map[int]models.Cluster)
	for row, label := range labels {
		groups[label] = append(groups[label], row)
	}
	return groups
}
