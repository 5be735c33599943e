// Package table stores permanent records as rows of a CSV file, one row per
// disengage.
//
// Columns are id, disengage, engage, input_data, input_hash, code, code_hash,
// output_data, followed by one output_fileN/output_hashN pair per output
// file. The header is sized by the first row written and every later row
// must have the same number of pairs.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/jamesainslie/catalogue/pkg/catalogue/hasher"
	"github.com/jamesainslie/catalogue/pkg/catalogue/logging"
	"github.com/jamesainslie/catalogue/pkg/catalogue/manifest"
	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
)

var logger = logging.Get("table")

var fixedHeader = []string{
	"id",
	"disengage",
	"engage",
	manifest.KeyInput,
	"input_hash",
	manifest.KeyCode,
	"code_hash",
	manifest.KeyOutput,
}

// FixedColumns is the number of columns before the output file pairs.
const FixedColumns = 8

// Header returns the header for a table whose first row has pairs output files.
func Header(pairs int) []string {
	h := append([]string{}, fixedHeader...)
	for i := 1; i <= pairs; i++ {
		n := strconv.Itoa(i)
		h = append(h, "output_file"+n, "output_hash"+n)
	}
	return h
}

// Row flattens m into a table row identified by timestamp.
func Row(m *manifest.Manifest, timestamp string) ([]string, error) {
	if !types.ValidTimestamp(timestamp) {
		return nil, fmt.Errorf("%w: timestamp %q", types.ErrInvalidArgument, timestamp)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if !m.HasOutput() {
		return nil, fmt.Errorf("%w: manifest has no output data", types.ErrInvalidArgument)
	}
	if m.Timestamps.Disengage == "" {
		return nil, fmt.Errorf("%w: manifest has no disengage timestamp", types.ErrInvalidArgument)
	}

	row := []string{
		timestamp,
		m.Timestamps.Disengage,
		m.Timestamps.Engage,
		m.InputPath,
		m.InputHash,
		m.CodePath,
		m.CodeCommit,
		m.OutputPath,
	}
	for _, o := range m.Outputs {
		row = append(row, o.Path, o.Digest)
	}
	return row, nil
}

// AppendRow appends m to the table at path as the row for timestamp. A missing
// or empty table gets a header first; an existing header must match the one
// m would be written under.
func AppendRow(m *manifest.Manifest, timestamp, path string) error {
	row, err := Row(m, timestamp)
	if err != nil {
		return err
	}

	needHeader := false
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		needHeader = true
	case err != nil:
		return fmt.Errorf("stat table: %w", err)
	case info.Size() == 0:
		needHeader = true
	default:
		h, err := readHeader(path)
		if err != nil {
			return err
		}
		if want := Header(len(m.Outputs)); !slices.Equal(h, want) {
			return formatError(path, fmt.Sprintf("header has %d output pairs, row has %d",
				(len(h)-FixedColumns)/2, len(m.Outputs)))
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create table directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open table: %w", err)
	}

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(Header(len(m.Outputs))); err != nil {
			_ = f.Close()
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.Write(row); err != nil {
		_ = f.Close()
		return fmt.Errorf("write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write row: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close table: %w", err)
	}

	logger.Debug("appended row", "path", path, "id", timestamp, "outputs", len(m.Outputs))
	return nil
}

// ReadRow returns the manifest stored in the row whose id is timestamp.
func ReadRow(path, timestamp string) (*manifest.Manifest, error) {
	if !types.ValidTimestamp(timestamp) {
		return nil, fmt.Errorf("%w: timestamp %q", types.ErrInvalidArgument, timestamp)
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.NewPathError("read table", path, types.ErrFileNotFound)
		}
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	r := newReader(f)
	if _, err := header(r, path); err != nil {
		return nil, err
	}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, formatError(path, err.Error())
		}
		if len(row) == 0 || row[0] != timestamp {
			continue
		}
		m, err := parseRow(row)
		if err != nil {
			return nil, types.NewPathError("read table", path, err)
		}
		return m, nil
	}
	return nil, types.NewPathError("read table", path,
		fmt.Errorf("%w: %s", types.ErrRecordNotFound, timestamp))
}

// IDs returns the id column of every row in the table, in file order.
func IDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.NewPathError("read table", path, types.ErrFileNotFound)
		}
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	r := newReader(f)
	if _, err := header(r, path); err != nil {
		return nil, err
	}
	var ids []string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return ids, nil
		}
		if err != nil {
			return nil, formatError(path, err.Error())
		}
		if len(row) > 0 {
			ids = append(ids, row[0])
		}
	}
}

func newReader(rd io.Reader) *csv.Reader {
	r := csv.NewReader(rd)
	r.FieldsPerRecord = -1
	return r
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()
	return header(newReader(f), path)
}

// header reads and validates the first record.
func header(r *csv.Reader, path string) ([]string, error) {
	h, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, formatError(path, "missing header")
	}
	if err != nil {
		return nil, formatError(path, err.Error())
	}
	if len(h) < FixedColumns+2 || (len(h)-FixedColumns)%2 != 0 {
		return nil, formatError(path, fmt.Sprintf("header has %d columns", len(h)))
	}
	want := Header((len(h) - FixedColumns) / 2)
	for i := range want {
		if h[i] != want[i] {
			return nil, formatError(path, fmt.Sprintf("header column %d is %q, want %q", i+1, h[i], want[i]))
		}
	}
	return h, nil
}

func formatError(path, detail string) error {
	return types.NewPathError("read table", path, fmt.Errorf("%w: %s", types.ErrFormatError, detail))
}

// parseRow rebuilds a manifest from a row, checking its structure.
func parseRow(row []string) (*manifest.Manifest, error) {
	if len(row) < FixedColumns+2 {
		return nil, fmt.Errorf("%w: row has %d columns, want at least %d",
			types.ErrFormatError, len(row), FixedColumns+2)
	}
	if (len(row)-FixedColumns)%2 != 0 {
		return nil, fmt.Errorf("%w: row has an unpaired output column", types.ErrFormatError)
	}
	for i, name := range []string{"id", "disengage"} {
		if !types.ValidTimestamp(row[i]) {
			return nil, fmt.Errorf("%w: %s %q is not a timestamp", types.ErrFormatError, name, row[i])
		}
	}
	if row[2] != "" && !types.ValidTimestamp(row[2]) {
		return nil, fmt.Errorf("%w: engage %q is not a timestamp", types.ErrFormatError, row[2])
	}
	if !isHex(row[4], hasher.DigestLen) {
		return nil, fmt.Errorf("%w: input_hash is not a %d character digest", types.ErrFormatError, hasher.DigestLen)
	}
	if !isHex(row[6], 40, 64) {
		return nil, fmt.Errorf("%w: code_hash is not a commit identifier", types.ErrFormatError)
	}

	m := &manifest.Manifest{
		Timestamps: manifest.Timestamps{Disengage: row[1], Engage: row[2]},
		InputPath:  row[3],
		InputHash:  row[4],
		CodePath:   row[5],
		CodeCommit: row[6],
		OutputPath: row[7],
	}
	for i := FixedColumns; i+1 < len(row); i += 2 {
		if !isHex(row[i+1], hasher.DigestLen) {
			return nil, fmt.Errorf("%w: digest of %q is not a %d character digest",
				types.ErrFormatError, row[i], hasher.DigestLen)
		}
		m.Outputs = append(m.Outputs, types.FileDigest{Path: row[i], Digest: row[i+1]})
	}
	return m, nil
}

func isHex(s string, lengths ...int) bool {
	ok := false
	for _, n := range lengths {
		if len(s) == n {
			ok = true
		}
	}
	if !ok {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
