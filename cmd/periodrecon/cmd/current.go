package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wdfday/personalfinance-fe-sub001/internal/reconciler"
)

// currentCmd prints the current period of every series
var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the current period of every series",
	Long: `Current runs the calculator and prints only which period each series is
in for the reference date, with its spend so far.

A series whose reference month has no period shows its most recent past
period, marked as previous. A series with only future periods shows none.

Examples:
  periodrecon current -r transactions.csv -p budgets.csv
  periodrecon current --api-url https://api.example.com/api/v1 --kind constraint`,

	PreRunE: validateReconcileFlags,
	RunE:    runCurrent,
}

func init() {
	rootCmd.AddCommand(currentCmd)
	addInputFlags(currentCmd.Flags())
}

func runCurrent(cmd *cobra.Command, args []string) error {
	result, err := runReconciliation(cmd.Context(), settings)
	if err != nil {
		return err
	}
	return printCurrent(result, cmd.OutOrStdout())
}

func printCurrent(result *reconciler.Result, w io.Writer) error {
	fmt.Fprintf(w, "Reference date: %s (%s)\n\n", result.ReferenceDate.Format("2006-01-02"), result.Timezone)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "SERIES\tPERIOD\tSTART\tEND\tSPENT\tLIMIT\tSTATUS\tSELECTION\n")

	for _, series := range result.Series {
		sel := series.Current
		if !sel.Found() {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t-\tno active period\n", series.Label())
			continue
		}

		p := sel.Period
		end := "open"
		if p.EffectiveEndDate != nil {
			end = p.EffectiveEndDate.Format("2006-01-02")
		}
		spent := "0.00"
		if totals, ok := series.Totals[p.ID]; ok && totals != nil {
			spent = totals.Spent.StringFixed(2)
		}
		selection := "current"
		if sel.Fallback {
			selection = "previous (no active period)"
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			series.Label(),
			p.ID,
			p.StartDate.Format("2006-01-02"),
			end,
			spent,
			p.LimitAmount.StringFixed(2),
			series.Statuses[p.ID],
			selection)
	}
	return tw.Flush()
}
