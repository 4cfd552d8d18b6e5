package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scalpel-locator/internal/locator"
)

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse LOCATOR",
		Short: "Show how a stored locator value is interpreted",
		Long: `Splits a locator value on '|' and prints the strategy and canonical form of
each step, in the order the resolver tries them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd.OutOrStdout(), args[0])
		},
	}
}

func runParse(out io.Writer, raw string) error {
	exprs := locator.ParseChain(raw)
	if len(exprs) == 0 {
		return fmt.Errorf("%w: no expressions in %q", locator.ErrInvalidChain, raw)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTRATEGY\tLOCATOR")
	for i, e := range exprs {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i, e.Strategy, e)
	}
	return tw.Flush()
}
