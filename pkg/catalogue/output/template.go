package output

import (
	"bytes"
	"errors"
	"sync"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
)

// TemplateFormatter formats a report using a Go text/template. The report is
// the template's dot, so {{.Manifest.CodeCommit}} and {{range .Records}}
// work as expected.
type TemplateFormatter struct {
	templateStr string
	template    *template.Template
	mu          sync.Mutex
}

// ErrNoTemplate is returned when the template formatter has no template.
var ErrNoTemplate = errors.New("no template set")

// NewTemplateFormatter creates a new template formatter with the given template string.
func NewTemplateFormatter(templateStr string) *TemplateFormatter {
	return &TemplateFormatter{
		templateStr: templateStr,
	}
}

// SetTemplate sets or updates the template string.
func (f *TemplateFormatter) SetTemplate(templateStr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templateStr = templateStr
	f.template = nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// short abbreviates a commit hash or digest.
		// Usage: {{short .Manifest.CodeCommit}}
		"short": func(s string) string {
			if len(s) > 12 {
				return s[:12]
			}
			return s
		},

		// ago renders a catalogue timestamp relative to now.
		// Usage: {{ago .Disengage}}
		"ago": func(ts string) string {
			t, err := types.ParseTimestamp(ts)
			if err != nil {
				return ts
			}
			return humanize.Time(t)
		},

		// date reformats a catalogue timestamp using layout.
		// Usage: {{date .Engage "2006-01-02 15:04"}}
		"date": func(ts, layout string) string {
			t, err := types.ParseTimestamp(ts)
			if err != nil {
				return ts
			}
			return t.Format(layout)
		},

		// comma formats an integer with thousands separators.
		"comma": func(n int) string {
			return humanize.Comma(int64(n))
		},

		"now": func() string {
			return types.NewTimestamp(time.Now())
		},
	}
}

// Format writes the formatted output to the buffer.
func (f *TemplateFormatter) Format(w *bytes.Buffer, r *Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.template == nil {
		if f.templateStr == "" {
			return ErrNoTemplate
		}
		tmpl, err := template.New("output").Funcs(templateFuncs()).Parse(f.templateStr)
		if err != nil {
			return err
		}
		f.template = tmpl
	}

	return f.template.Execute(w, r)
}

func init() {
	Register("template", func() Formatter {
		return NewTemplateFormatter("")
	})
}

// Ensure TemplateFormatter implements Formatter.
var _ Formatter = (*TemplateFormatter)(nil)
