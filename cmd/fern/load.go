package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newLoadCommand(cmdCtx *commandContext) *cobra.Command {
	var dataset, file, delimiter string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Stage a CSV file as a dataset, replacing its previous rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataset == "" || file == "" {
				return fmt.Errorf("--dataset and --file are required")
			}
			delim, err := parseDelimiter(delimiter)
			if err != nil {
				return err
			}
			rows, err := readCSVFile(file, delim)
			if err != nil {
				return err
			}

			return withApp(cmd, cmdCtx, func(ctx context.Context, a *app) error {
				store, err := a.rowStore()
				if err != nil {
					return err
				}
				if err := store.Replace(ctx, dataset, rows); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Staged %d rows as %s\n", len(rows), dataset)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset name")
	cmd.Flags().StringVar(&file, "file", "", "CSV file with a header row")
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", "CSV delimiter (a single character or \"tab\")")
	return cmd
}
