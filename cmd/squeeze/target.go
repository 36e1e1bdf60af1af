package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/harliandi/imgsqueeze/pkg/quality"
)

func newTargetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "target <kb>...",
		Short: "Print the target size for original sizes in KB",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				rows []summaryRow
				errs error
			)
			for _, arg := range args {
				kb, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					errs = multierr.Append(errs, fmt.Errorf("%q is not a number", arg))
					continue
				}
				target, err := quality.ComputeTarget(kb)
				if err != nil {
					errs = multierr.Append(errs, err)
					continue
				}
				rows = append(rows, summaryRow{
					Label: formatKB(kb),
					Value: fmt.Sprintf("%s (%.0f%%)", formatKB(target), target/kb*100),
				})
			}
			if len(rows) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), renderSummary(rows))
			}
			return errs
		},
	}
}
