package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/catalogue/pkg/catalogue/compare"
	"github.com/jamesainslie/catalogue/pkg/catalogue/manifest"
	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
)

// PrettyFormatter formats output with colors and styling using lipgloss.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	if r.Message != "" || r.RecordPath != "" {
		w.WriteString(f.formatHeader(r))
		w.WriteString("\n")
	}
	if r.Comparison != nil {
		w.WriteString(f.formatComparison(*r.Comparison))
	} else if r.Manifest != nil {
		w.WriteString(f.formatManifest(r.Manifest))
	}
	if r.Records != nil {
		w.WriteString(f.formatRecords(r.Records))
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Report) string {
	var lines []string

	title := r.Message
	if title == "" {
		title = r.Command
	}
	if r.OK {
		lines = append(lines, SuccessStyle.Bold(true).Render(title))
	} else {
		lines = append(lines, WarningStyle.Bold(true).Render(title))
	}
	if r.RecordPath != "" {
		lines = append(lines, LabelStyle.Render("Record:")+" "+ValueStyle.Render(r.RecordPath))
	}

	box := HeaderBox
	if !r.OK {
		box = AttentionBox
	}
	return box.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatComparison(c compare.Result) string {
	var sb strings.Builder
	sections := []struct {
		title  string
		style  lipgloss.Style
		labels []string
	}{
		{"Differ", WarningStyle, c.Differs},
		{"Match", SuccessStyle, c.Matches},
		{"Could not compare", ErrorStyle, c.Failures},
	}
	for _, s := range sections {
		sb.WriteString(TitleStyle.Render(fmt.Sprintf("%s (%d)", s.title, len(s.labels))))
		sb.WriteString("\n")
		if len(s.labels) == 0 {
			sb.WriteString(MutedStyle.Render("  none"))
			sb.WriteString("\n")
		}
		for _, l := range s.labels {
			sb.WriteString("  ")
			sb.WriteString(s.style.Render(l))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")
	sb.WriteString(MutedStyle.Render(compare.TimestampNote))
	sb.WriteString("\n")
	return sb.String()
}

func (f *PrettyFormatter) formatManifest(m *manifest.Manifest) string {
	var sb strings.Builder
	field := func(label, value string) {
		sb.WriteString(LabelStyle.Render(padRight(label+":", 11)))
		sb.WriteString(" ")
		sb.WriteString(value)
		sb.WriteString("\n")
	}
	if m.Timestamps.Engage != "" {
		field("Engaged", ValueStyle.Render(m.Timestamps.Engage)+" "+MutedStyle.Render(ago(m.Timestamps.Engage)))
	}
	if m.Timestamps.Disengage != "" {
		field("Disengaged", ValueStyle.Render(m.Timestamps.Disengage)+" "+MutedStyle.Render(ago(m.Timestamps.Disengage)))
	}
	field("Input", ValueStyle.Render(m.InputPath)+" "+HashStyle.Render(shortCommit(m.InputHash)))
	field("Code", ValueStyle.Render(m.CodePath)+" "+HashStyle.Render(shortCommit(m.CodeCommit)))
	if m.HasOutput() {
		field("Output", ValueStyle.Render(m.OutputPath)+" "+
			MutedStyle.Render(fmt.Sprintf("(%d files)", len(m.Outputs))))
		for _, o := range m.Outputs {
			sb.WriteString("  ")
			sb.WriteString(HashStyle.Render(shortCommit(o.Digest)))
			sb.WriteString("  ")
			sb.WriteString(ValueStyle.Render(o.Path))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (f *PrettyFormatter) formatRecords(records []RecordInfo) string {
	if len(records) == 0 {
		return MutedStyle.Render("  No records found") + "\n"
	}

	var sb strings.Builder
	sb.WriteString("  ")
	sb.WriteString(TableHeaderStyle.Render(padRight("RECORD", 17)))
	sb.WriteString(TableHeaderStyle.Render(padRight("WHEN", 16)))
	sb.WriteString(TableHeaderStyle.Render(padRight("COMMIT", 14)))
	sb.WriteString(TableHeaderStyle.Render("OUTPUTS"))
	sb.WriteString("\n")
	for _, rec := range records {
		sb.WriteString("  ")
		sb.WriteString(ValueStyle.Render(padRight(rec.ID, 17)))
		sb.WriteString(MutedStyle.Render(padRight(ago(rec.ID), 16)))
		sb.WriteString(HashStyle.Render(padRight(shortCommit(rec.CodeCommit), 14)))
		sb.WriteString(ValueStyle.Render(humanize.Comma(int64(rec.Outputs))))
		sb.WriteString("\n")
	}
	return sb.String()
}

// ago renders a catalogue timestamp relative to now, or "" if malformed.
func ago(ts string) string {
	t, err := types.ParseTimestamp(ts)
	if err != nil {
		return ""
	}
	return humanize.Time(t)
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
