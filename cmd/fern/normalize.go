package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/normalizers"
)

func newNormalizeCommand() *cobra.Command {
	var chain string

	cmd := &cobra.Command{
		Use:   "normalize VALUE...",
		Short: "Print values as the linkage engine normalizes them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := strings.Split(chain, ",")
			for i, name := range names {
				names[i] = strings.TrimSpace(name)
				if _, ok := normalizers.Get(names[i]); !ok {
					return fmt.Errorf("unknown normalizer %q", names[i])
				}
			}

			rows := make([][]string, 0, len(args))
			for _, value := range args {
				rows = append(rows, []string{value, normalizers.ApplyChain(value, names...)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Value", strings.Join(names, " | ")}, rows, nil))
			return nil
		},
	}

	cmd.Flags().StringVar(&chain, "with", "ngiven", "Comma-separated normalizers: ngiven, nfamily, nplace, ndate, nident, nkey, lowercase, trim, digits_only, remove_punctuation")
	return cmd
}
