package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/catalogue/pkg/catalogue/engage"
	"github.com/jamesainslie/catalogue/pkg/catalogue/output"
)

var disengageCmd = &cobra.Command{
	Use:   "disengage",
	Short: "Record the results of an analysis",
	Long: `Hash the input data, code and output data again and compare them with the
lock file written by engage. The lock file is removed.

If input data and code are unchanged, a permanent record is written to
catalogue_results: one JSON file named after the disengage timestamp, or a
row in the --csv table. Otherwise the differences are reported and nothing
is recorded.`,
	Args: cobra.NoArgs,
	RunE: runDisengage,
}

func init() {
	rootCmd.AddCommand(disengageCmd)
}

func runDisengage(cmd *cobra.Command, args []string) error {
	p, closeIndex := newProtocol(cfg)
	defer closeIndex()

	res, err := p.Disengage(cmd.Context(), cfg.Paths())
	if err != nil {
		return err
	}

	return render(&output.Report{
		Command:    "disengage",
		Outcome:    string(res.Outcome),
		Message:    res.Message(),
		OK:         res.Outcome == engage.OutcomeRecorded,
		Notice:     res.Outcome == engage.OutcomeNotEngaged,
		Manifest:   res.Manifest,
		Comparison: res.Comparison,
		RecordPath: res.RecordPath,
	})
}
