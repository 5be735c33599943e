package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/catalogue/pkg/catalogue/history"
	"github.com/jamesainslie/catalogue/pkg/catalogue/manifest"
	"github.com/jamesainslie/catalogue/pkg/catalogue/output"
	"github.com/jamesainslie/catalogue/pkg/catalogue/table"
	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	Long: `List the permanent records of the configured catalogue_results directory,
newest first.

Records are read from the history index when it is enabled; run
'catalogue history reindex' after moving or editing record files.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one record",
	Long:  `Display the full manifest of a record by its id (the disengage timestamp).`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the history index",
	Long:  `Rebuild the index entries of catalogue_results from the record files and CSV table.`,
	Args:  cobra.NoArgs,
	RunE:  runHistoryReindex,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of records to show (0=all)")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyReindexCmd)
	rootCmd.AddCommand(historyCmd)
}

// runHistory lists recent records.
func runHistory(cmd *cobra.Command, args []string) error {
	records, err := listRecords(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	msg := fmt.Sprintf("%d records in %s", len(records), cfg.Results)
	if len(records) == 0 {
		msg = "No records found. Run 'catalogue engage' and 'catalogue disengage' to create one."
	}
	return render(&output.Report{
		Command: "history",
		Message: msg,
		OK:      true,
		Records: records,
	})
}

// listRecords reads records from the index, or from the results directory
// when the index is disabled or unavailable.
func listRecords(limit int) ([]output.RecordInfo, error) {
	idx, closeIndex := openIndex(cfg)
	defer closeIndex()

	if idx != nil {
		entries, err := idx.List(cfg.Results, limit)
		if err != nil {
			return nil, err
		}
		records := make([]output.RecordInfo, len(entries))
		for i, e := range entries {
			records[i] = recordInfo(e)
		}
		return records, nil
	}
	return scanRecords(limit)
}

// scanRecords reads every record file and table row in the results directory.
func scanRecords(limit int) ([]output.RecordInfo, error) {
	store, err := manifest.NewStore(cfg.Results)
	if err != nil {
		return nil, err
	}
	recs, err := store.List(0)
	if err != nil {
		return nil, err
	}
	records := make([]output.RecordInfo, 0, len(recs))
	for _, r := range recs {
		records = append(records, output.NewRecordInfo(r.Manifest, r.Path))
	}

	if cfg.CSV != "" {
		path := filepath.Join(cfg.Results, cfg.CSV)
		ids, err := table.IDs(path)
		if err != nil && !errors.Is(err, types.ErrFileNotFound) {
			return nil, err
		}
		for _, id := range ids {
			m, err := table.ReadRow(path, id)
			if err != nil {
				continue
			}
			records = append(records, output.NewRecordInfo(m, path))
		}
	}

	sortRecords(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// sortRecords orders records newest first.
func sortRecords(records []output.RecordInfo) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ID > records[j].ID
	})
}

func recordInfo(e history.Entry) output.RecordInfo {
	return output.RecordInfo{
		ID:         e.ID,
		Engage:     e.Engage,
		Disengage:  e.Disengage,
		InputPath:  e.InputPath,
		CodeCommit: e.CodeCommit,
		Outputs:    e.Outputs,
		Path:       e.RecordPath,
	}
}

// runHistoryShow displays one record.
func runHistoryShow(cmd *cobra.Command, args []string) error {
	id := args[0]
	if !types.ValidTimestamp(id) {
		return fmt.Errorf("%w: record id %q", types.ErrInvalidArgument, id)
	}

	// The index knows where rows of renamed tables live.
	if idx, closeIndex := openIndex(cfg); idx != nil {
		e, err := idx.Get(cfg.Results, id)
		closeIndex()
		if err == nil && strings.EqualFold(filepath.Ext(e.RecordPath), ".csv") {
			m, err := table.ReadRow(e.RecordPath, id)
			if err != nil {
				return err
			}
			return showRecord(m, e.RecordPath)
		}
	}

	m, path, err := loadRecord(id)
	if err != nil {
		return err
	}
	return showRecord(m, path)
}

func showRecord(m *manifest.Manifest, path string) error {
	return render(&output.Report{
		Command:    "history show",
		Message:    "Record " + m.RecordID(),
		OK:         true,
		Manifest:   m,
		RecordPath: path,
	})
}

// runHistoryReindex rebuilds the index for the results directory.
func runHistoryReindex(cmd *cobra.Command, args []string) error {
	if !cfg.History.Enabled {
		return fmt.Errorf("history index is disabled (history.enabled: false)")
	}
	idx, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer idx.Close()

	n, err := idx.Reindex(cfg.Results, cfg.CSV)
	if err != nil {
		return fmt.Errorf("failed to reindex: %w", err)
	}
	printInfo("Indexed %d records from %s", n, cfg.Results)
	return nil
}
