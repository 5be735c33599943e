package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/catalogue/pkg/catalogue/engage"
	"github.com/jamesainslie/catalogue/pkg/catalogue/output"
	"github.com/jamesainslie/catalogue/pkg/catalogue/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Report changes to the input data while engaged",
	Long: `Watch the input data for changes until interrupted or disengaged.

A change to the input data between engage and disengage means the run
will not be recorded. Watching during a long analysis reports such changes
as they happen.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

// lockPollInterval is how often watch checks that the lock still exists.
const lockPollInterval = 2 * time.Second

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	paths := cfg.Paths()
	state, err := engage.CurrentState(paths.Results)
	if err != nil {
		return err
	}
	if state != engage.Engaged {
		return render(&output.Report{
			Command: "watch",
			Outcome: string(engage.OutcomeNotEngaged),
			Message: "Not currently engaged: run engage first",
			Notice:  true,
		})
	}

	w, err := watch.New(paths.InputData, cfg.WalkOptions())
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	printInfo("Watching %s (ctrl+c to stop)", w.Root())
	start := time.Now()
	changes := 0

	events := w.Events(ctx)
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return watchSummary(changes, start)
			}
			changes++
			fmt.Printf("%s  %s  %s\n",
				output.MutedStyle.Render(e.Time.Format("15:04:05")),
				output.WarningStyle.Render(fmt.Sprintf("%-8s", e.Op)),
				e.Path)

		case <-ticker.C:
			if s, err := engage.CurrentState(paths.Results); err == nil && s != engage.Engaged {
				printInfo("Lock file removed; stopping")
				cancel()
			}
		}
	}
}

func watchSummary(changes int, start time.Time) error {
	if changes == 0 {
		printInfo("No input changes since %s", humanize.Time(start))
		return nil
	}
	printInfo("%s input changes since %s: disengage will not record the run if contents differ",
		humanize.Comma(int64(changes)), humanize.Time(start))
	return errAttention
}
