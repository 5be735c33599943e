package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/catalogue/pkg/catalogue/compare"
	"github.com/jamesainslie/catalogue/pkg/catalogue/manifest"
	"github.com/jamesainslie/catalogue/pkg/catalogue/output"
	"github.com/jamesainslie/catalogue/pkg/catalogue/table"
	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
)

var compareCmd = &cobra.Command{
	Use:   "compare <record> [record]",
	Short: "Compare records with each other or with the current state",
	Long: `Compare two records, or one record with a fresh snapshot of the configured
input data, code and output data.

A record is either the path of a manifest file or a record id (the
disengage timestamp, e.g. 20240301-120500) looked up in catalogue_results,
including the --csv table when one is configured.

Timestamps always differ between runs; every other difference is reported
and makes the command exit with status 2.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	var result compare.Result
	if len(args) == 2 && isManifestFile(args[0]) && isManifestFile(args[1]) {
		r, err := compare.CompareFiles(args[0], args[1])
		if err != nil {
			return err
		}
		result = r
	} else {
		a, b, err := resolvePair(cmd.Context(), args)
		if err != nil {
			return err
		}
		result = compare.Compare(a, b)
	}

	ok := result.Clean()
	msg := "Records match"
	if !ok {
		msg = fmt.Sprintf("Records differ in %d places, %d could not be compared",
			len(withoutTimestamp(result.Differs)), len(result.Failures))
	}
	return render(&output.Report{
		Command:    "compare",
		Message:    msg,
		OK:         ok,
		Comparison: &result,
	})
}

// resolvePair loads the first record and either the second one or a fresh
// snapshot of the configured paths.
func resolvePair(ctx context.Context, args []string) (*manifest.Manifest, *manifest.Manifest, error) {
	a, _, err := loadRecord(args[0])
	if err != nil {
		return nil, nil, err
	}
	if len(args) == 2 {
		b, _, err := loadRecord(args[1])
		if err != nil {
			return nil, nil, err
		}
		return a, b, nil
	}

	req := manifest.Request{
		Timestamp:  types.NewTimestamp(time.Now()),
		Mode:       manifest.ModeEngage,
		InputPath:  cfg.InputData,
		CodePath:   cfg.Code,
		ResultsDir: cfg.Results,
	}
	if a.HasOutput() {
		req.Mode = manifest.ModeDisengage
		req.OutputPath = cfg.OutputData
	}
	b, err := newBuilder(cfg, newChecker()).Build(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func withoutTimestamp(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l != manifest.KeyTimestamp {
			out = append(out, l)
		}
	}
	return out
}

// isManifestFile reports whether ref names an existing manifest file rather
// than a record id or a CSV table.
func isManifestFile(ref string) bool {
	info, err := os.Stat(ref)
	return err == nil && !info.IsDir() && !strings.EqualFold(filepath.Ext(ref), ".csv")
}

// loadRecord resolves ref to a manifest. An existing manifest file is loaded
// directly; anything else is taken as a record id in the results directory.
func loadRecord(ref string) (*manifest.Manifest, string, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		if strings.EqualFold(filepath.Ext(ref), ".csv") {
			return nil, "", fmt.Errorf("%w: %s is a table; pass a record id instead", types.ErrInvalidArgument, ref)
		}
		m, err := manifest.Load(ref)
		return m, ref, err
	}

	if !types.ValidTimestamp(ref) {
		return nil, "", types.NewPathError("load record", ref, types.ErrFileNotFound)
	}

	store, err := manifest.NewStore(cfg.Results)
	if err != nil {
		return nil, "", err
	}
	rec, err := store.Get(ref)
	if err == nil {
		return rec.Manifest, rec.Path, nil
	}
	if !errors.Is(err, types.ErrFileNotFound) || cfg.CSV == "" {
		return nil, "", err
	}

	path := filepath.Join(cfg.Results, cfg.CSV)
	m, err := table.ReadRow(path, ref)
	if err != nil {
		return nil, "", err
	}
	return m, path, nil
}
