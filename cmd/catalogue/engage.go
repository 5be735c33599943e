package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/catalogue/pkg/catalogue/engage"
	"github.com/jamesainslie/catalogue/pkg/catalogue/output"
)

var engageNoPrompt bool

var engageCmd = &cobra.Command{
	Use:   "engage",
	Short: "Snapshot input data and code before an analysis",
	Long: `Hash the input data and record the current commit of the code in a lock
file inside catalogue_results.

The code repository must be clean. If it is not, catalogue offers to commit
the changes on a new branch named <timestamp>_catalogue. Use --no-prompt to
fail instead.`,
	Args: cobra.NoArgs,
	RunE: runEngage,
}

func init() {
	engageCmd.Flags().BoolVar(&engageNoPrompt, "no-prompt", false, "fail on uncommitted changes instead of offering to commit them")
	rootCmd.AddCommand(engageCmd)
}

func runEngage(cmd *cobra.Command, args []string) error {
	confirmer := terminalConfirmer{in: os.Stdin, out: os.Stderr}
	p, closeIndex := newProtocol(cfg, engage.WithConfirmer(confirmer))
	defer closeIndex()

	res, err := p.Engage(cmd.Context(), cfg.Paths(), !engageNoPrompt)
	if err != nil {
		return err
	}

	return render(&output.Report{
		Command:  "engage",
		Outcome:  string(res.Outcome),
		Message:  res.Message(),
		OK:       res.Outcome == engage.OutcomeEngaged,
		Notice:   res.Outcome == engage.OutcomeAlreadyEngaged,
		Manifest: res.Manifest,
	})
}
