package output

import (
	"bytes"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/jamesainslie/catalogue/pkg/catalogue/compare"
	"github.com/jamesainslie/catalogue/pkg/catalogue/manifest"
)

// PlainFormatter writes unstyled text suitable for scripting and piping.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Report) error {
	if r.Message != "" {
		w.WriteString(r.Message)
		w.WriteString("\n")
	}
	if r.RecordPath != "" {
		fmt.Fprintf(w, "record: %s\n", r.RecordPath)
	}
	if r.Comparison != nil {
		if w.Len() > 0 {
			w.WriteString("\n")
		}
		w.WriteString(compare.Render(*r.Comparison))
	} else if r.Manifest != nil {
		if err := writeManifest(w, r.Manifest); err != nil {
			return err
		}
	}
	if r.Records != nil {
		return writeRecords(w, r.Records)
	}
	return nil
}

func writeManifest(w *bytes.Buffer, m *manifest.Manifest) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	if m.Timestamps.Engage != "" {
		fmt.Fprintf(tw, "engage\t%s\n", m.Timestamps.Engage)
	}
	if m.Timestamps.Disengage != "" {
		fmt.Fprintf(tw, "disengage\t%s\n", m.Timestamps.Disengage)
	}
	fmt.Fprintf(tw, "%s\t%s\t%s\n", manifest.KeyInput, m.InputPath, m.InputHash)
	fmt.Fprintf(tw, "%s\t%s\t%s\n", manifest.KeyCode, m.CodePath, m.CodeCommit)
	if m.HasOutput() {
		fmt.Fprintf(tw, "%s\t%s\t\n", manifest.KeyOutput, m.OutputPath)
		for _, o := range m.Outputs {
			fmt.Fprintf(tw, "\t%s\t%s\n", o.Path, o.Digest)
		}
	}
	return tw.Flush()
}

func writeRecords(w *bytes.Buffer, records []RecordInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	if _, err := tw.Write([]byte("ID\tENGAGE\tCOMMIT\tOUTPUTS\tPATH\n")); err != nil {
		return err
	}
	for _, rec := range records {
		line := rec.ID + "\t" + rec.Engage + "\t" + shortCommit(rec.CodeCommit) + "\t" +
			strconv.Itoa(rec.Outputs) + "\t" + rec.Path + "\n"
		if _, err := tw.Write([]byte(line)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
