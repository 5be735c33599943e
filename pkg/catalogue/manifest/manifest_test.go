package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jamesainslie/catalogue/pkg/catalogue/hasher"
	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
)

var (
	inputHash  = strings.Repeat("a", 128)
	commit     = strings.Repeat("c", 40)
	digestOne  = strings.Repeat("1", 128)
	digestTwo  = strings.Repeat("2", 128)
	digestNums = strings.Repeat("9", 128)
)

func sampleManifest() *Manifest {
	return &Manifest{
		Timestamps: Timestamps{Engage: "20240101-120000", Disengage: "20240101-130000"},
		InputPath:  "data",
		InputHash:  inputHash,
		CodePath:   ".",
		CodeCommit: commit,
		OutputPath: "results",
		Outputs: []types.FileDigest{
			{Path: "results/z.csv", Digest: digestOne},
			{Path: "results/a.csv", Digest: digestTwo},
			{Path: "results/sub/0.csv", Digest: digestNums},
		},
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	lock := sampleManifest()
	lock.Timestamps.Disengage = ""
	lock.OutputPath = ""
	lock.Outputs = nil

	for _, format := range []Format{FormatJSON, FormatYAML} {
		for name, m := range map[string]*Manifest{"record": sampleManifest(), "lock": lock} {
			format, name, m := format, name, m
			t.Run(string(format)+"/"+name, func(t *testing.T) {
				t.Parallel()
				data, err := Encode(m, format)
				if err != nil {
					t.Fatalf("Encode() error = %v", err)
				}
				got, err := Decode(data, format)
				if err != nil {
					t.Fatalf("Decode() error = %v\n%s", err, data)
				}
				if diff := cmp.Diff(m, got); diff != "" {
					t.Errorf("round trip mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func TestEncode_JSONShape(t *testing.T) {
	t.Parallel()

	data, err := Encode(sampleManifest(), FormatJSON)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := `{
  "timestamp": {
    "disengage": "20240101-130000",
    "engage": "20240101-120000"
  },
  "input_data": {
    "data": "` + inputHash + `"
  },
  "code": {
    ".": "` + commit + `"
  },
  "output_data": {
    "results": {
      "results/z.csv": "` + digestOne + `",
      "results/a.csv": "` + digestTwo + `",
      "results/sub/0.csv": "` + digestNums + `"
    }
  }
}
`
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("Encode() mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_YAMLQuotesNumericDigests(t *testing.T) {
	t.Parallel()

	data, err := Encode(sampleManifest(), FormatYAML)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(data, FormatYAML)
	if err != nil {
		t.Fatalf("Decode() error = %v\n%s", err, data)
	}
	if d, _ := got.Output("results/sub/0.csv"); d != digestNums {
		t.Errorf("numeric digest = %q, want %q", d, digestNums)
	}
}

func TestDecode_Lenient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want *Manifest
	}{
		{
			name: "missing keys",
			data: `{"timestamp": {"engage": "20240101-120000"}}`,
			want: &Manifest{Timestamps: Timestamps{Engage: "20240101-120000"}},
		},
		{
			name: "empty inner mappings",
			data: `{"timestamp": {}, "input_data": {}, "code": {}}`,
			want: &Manifest{},
		},
		{
			name: "null values",
			data: `{"timestamp": null, "input_data": {"in": "h"}, "code": null}`,
			want: &Manifest{InputPath: "in", InputHash: "h"},
		},
		{
			name: "unknown top-level key",
			data: `{"comment": [1, 2], "code": {"src": "abc"}}`,
			want: &Manifest{CodePath: "src", CodeCommit: "abc"},
		},
		{
			name: "empty output mapping",
			data: `{"output_data": {"out": {}}}`,
			want: &Manifest{OutputPath: "out", Outputs: []types.FileDigest{}},
		},
		{
			name: "compact with escapes",
			data: `{"input_data":{"d\u00e4ta":"h"},"code":{"a\"b\\c":"abc"}}`,
			want: &Manifest{InputPath: "d\u00e4ta", InputHash: "h", CodePath: `a"b\c`, CodeCommit: "abc"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Decode([]byte(tt.data), FormatJSON)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeJSON_EscapedPathsRoundTrip(t *testing.T) {
	t.Parallel()

	m := sampleManifest()
	m.InputPath = `in "quoted" <dir>`
	m.Outputs[0].Path = "results/tab\there.csv"

	data, err := Encode(m, FormatJSON)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(data, FormatJSON)
	if err != nil {
		t.Fatalf("Decode() error = %v\n%s", err, data)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_UnknownFormat(t *testing.T) {
	t.Parallel()
	if _, err := Decode([]byte(`{}`), Format("toml")); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("Decode() error = %v, want ErrInvalidArgument", err)
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{name: "not json", data: `{"timestamp":`, format: FormatJSON},
		{name: "empty", data: ``, format: FormatJSON},
		{name: "trailing data", data: `{} {}`, format: FormatJSON},
		{name: "array", data: `[]`, format: FormatJSON},
		{name: "two inputs", data: `{"input_data": {"a": "1", "b": "2"}}`, format: FormatJSON},
		{name: "numeric hash", data: `{"code": {"src": 123}}`, format: FormatJSON},
		{name: "unknown mode", data: `{"timestamp": {"start": "20240101-120000"}}`, format: FormatJSON},
		{name: "scalar input", data: `{"input_data": "data"}`, format: FormatJSON},
		{name: "flat output", data: `{"output_data": {"out": "h"}}`, format: FormatJSON},
		{name: "duplicate key", data: `{"code": {}, "code": {}}`, format: FormatJSON},
		{name: "bad yaml", data: "timestamp: [\n", format: FormatYAML},
		{name: "yaml scalar", data: "just text\n", format: FormatYAML},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode([]byte(tt.data), tt.format)
			if !errors.Is(err, types.ErrDecodeError) {
				t.Errorf("Decode() error = %v, want ErrDecodeError", err)
			}
		})
	}
}

func TestFormatForPath(t *testing.T) {
	t.Parallel()

	tests := map[string]Format{
		"a/20240101-120000.json": FormatJSON,
		"a/20240101-120000.yaml": FormatYAML,
		"a/20240101-120000.YML":  FormatYAML,
		"a/.lock":                FormatJSON,
		"noext":                  FormatJSON,
	}
	for path, want := range tests {
		if got := FormatForPath(path); got != want {
			t.Errorf("FormatForPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestStore_SaveLoad(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "results")
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	m := sampleManifest()

	for _, ext := range []string{"", "json", ".yaml"} {
		path, err := s.Save(m, ext)
		if err != nil {
			t.Fatalf("Save(%q) error = %v", ext, err)
		}
		if !strings.HasPrefix(filepath.Base(path), "20240101-130000.") {
			t.Errorf("Save(%q) path = %q, want disengage timestamp name", ext, path)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%q) error = %v", path, err)
		}
		if diff := cmp.Diff(m, got); diff != "" {
			t.Errorf("Load(Save()) mismatch (-want +got):\n%s", diff)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "20240101-130000.json.tmp")); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestStore_SaveAsLock(t *testing.T) {
	t.Parallel()

	s, _ := NewStore(t.TempDir())
	m := &Manifest{
		Timestamps: Timestamps{Engage: "20240101-120000"},
		InputPath:  "data",
		InputHash:  inputHash,
		CodePath:   ".",
		CodeCommit: commit,
	}
	path, err := s.SaveAs(m, ".lock")
	if err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
	if filepath.Base(path) != ".lock" {
		t.Errorf("SaveAs() path = %q", path)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("lock mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.SaveAs(m, "../escape.json"); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("SaveAs(../escape.json) error = %v, want ErrInvalidArgument", err)
	}
}

func TestStore_Errors(t *testing.T) {
	t.Parallel()

	if _, err := NewStore(""); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("NewStore(\"\") error = %v", err)
	}

	s, _ := NewStore(t.TempDir())
	if _, err := s.Save(&Manifest{}, ""); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("Save(no timestamp) error = %v", err)
	}

	if _, err := Load(filepath.Join(s.Dir(), "missing.json")); !errors.Is(err, types.ErrFileNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrFileNotFound", err)
	}

	bad := filepath.Join(s.Dir(), "bad.json")
	if err := os.WriteFile(bad, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); !errors.Is(err, types.ErrDecodeError) {
		t.Errorf("Load(bad) error = %v, want ErrDecodeError", err)
	}
}

func TestStore_ListAndGet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, _ := NewStore(dir)

	for _, ts := range []string{"20240101-130000", "20240301-090000", "20240201-100000"} {
		m := sampleManifest()
		m.Timestamps.Disengage = ts
		ext := "json"
		if ts == "20240201-100000" {
			ext = "yaml"
		}
		if _, err := s.Save(m, ext); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	lock := sampleManifest()
	lock.Timestamps.Disengage = ""
	if _, err := s.SaveAs(lock, ".lock"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "20240401-000000.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := s.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var ids []string
	for _, r := range records {
		ids = append(ids, r.Manifest.RecordID())
	}
	want := []string{"20240301-090000", "20240201-100000", "20240101-130000"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("List() ids mismatch (-want +got):\n%s", diff)
	}

	records, err = s.List(1)
	if err != nil || len(records) != 1 {
		t.Errorf("List(1) = %d records, err %v", len(records), err)
	}

	rec, err := s.Get("20240201-100000")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if filepath.Ext(rec.Path) != ".yaml" {
		t.Errorf("Get() path = %q, want yaml record", rec.Path)
	}
	if _, err := s.Get("20250101-000000"); !errors.Is(err, types.ErrFileNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
	if _, err := s.Get("latest"); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("Get(latest) error = %v", err)
	}

	empty, _ := NewStore(filepath.Join(dir, "absent"))
	if records, err := empty.List(0); err != nil || len(records) != 0 {
		t.Errorf("List(absent) = %v, %v", records, err)
	}
}

type fakeResolver struct {
	commit string
	err    error
	calls  int
}

func (f *fakeResolver) ResolveCodeIdentity(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.commit, f.err
}

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBuilder_Build(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := t.TempDir()
	input := filepath.Join(root, "data")
	output := filepath.Join(root, "results")
	writeTree(t, input, map[string]string{"raw.csv": "1,2,3\n"})
	writeTree(t, output, map[string]string{"b.csv": "b", "a.csv": "a"})

	b := NewBuilder(hasher.New(), &fakeResolver{commit: commit})

	engaged, err := b.Build(ctx, Request{
		Timestamp: "20240101-120000",
		Mode:      ModeEngage,
		InputPath: input,
		CodePath:  root,
	})
	if err != nil {
		t.Fatalf("Build(engage) error = %v", err)
	}
	if engaged.HasOutput() || engaged.Timestamps.Engage != "20240101-120000" || engaged.CodeCommit != commit {
		t.Errorf("Build(engage) = %+v", engaged)
	}
	wantInput, _ := hasher.New().Input(ctx, input)
	if engaged.InputHash != wantInput {
		t.Errorf("InputHash = %q, want %q", engaged.InputHash, wantInput)
	}

	disengaged, err := b.Build(ctx, Request{
		Timestamp:  "20240101-130000",
		Mode:       ModeDisengage,
		InputPath:  input,
		CodePath:   root,
		OutputPath: output,
	})
	if err != nil {
		t.Fatalf("Build(disengage) error = %v", err)
	}
	if disengaged.Timestamps.Disengage != "20240101-130000" || disengaged.Timestamps.Engage != "" {
		t.Errorf("Timestamps = %+v", disengaged.Timestamps)
	}
	var files []string
	for _, o := range disengaged.Outputs {
		files = append(files, filepath.Base(o.Path))
	}
	if diff := cmp.Diff([]string{"a.csv", "b.csv"}, files); diff != "" {
		t.Errorf("Outputs mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilder_BuildFileInput(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	input := filepath.Join(root, "input.csv")
	writeTree(t, root, map[string]string{"input.csv": "x"})

	m, err := NewBuilder(nil, &fakeResolver{commit: commit}).Build(context.Background(), Request{
		Timestamp: "20240101-120000",
		Mode:      ModeEngage,
		InputPath: input,
		CodePath:  root,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want, _ := hasher.File(input)
	if m.InputHash != want {
		t.Errorf("InputHash = %q, want %q", m.InputHash, want)
	}
}

func TestBuilder_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := t.TempDir()
	input := filepath.Join(root, "data")
	emptyOut := filepath.Join(root, "empty")
	writeTree(t, input, map[string]string{"raw.csv": "1"})
	if err := os.MkdirAll(emptyOut, 0o755); err != nil {
		t.Fatal(err)
	}
	dirty := errors.New("dirty")

	tests := []struct {
		name     string
		req      Request
		resolver *fakeResolver
		want     error
		resolved bool
	}{
		{
			name:     "missing input",
			req:      Request{Timestamp: "20240101-120000", Mode: ModeEngage, InputPath: filepath.Join(root, "nope"), CodePath: root},
			resolver: &fakeResolver{commit: commit},
			want:     types.ErrInvalidArgument,
		},
		{
			name:     "bad mode",
			req:      Request{Timestamp: "20240101-120000", Mode: "start", InputPath: input, CodePath: root},
			resolver: &fakeResolver{commit: commit},
			want:     types.ErrInvalidArgument,
		},
		{
			name:     "bad timestamp",
			req:      Request{Timestamp: "2024-01-01", Mode: ModeEngage, InputPath: input, CodePath: root},
			resolver: &fakeResolver{commit: commit},
			want:     types.ErrInvalidArgument,
		},
		{
			name:     "resolver failure",
			req:      Request{Timestamp: "20240101-120000", Mode: ModeEngage, InputPath: input, CodePath: root},
			resolver: &fakeResolver{err: dirty},
			want:     dirty,
			resolved: true,
		},
		{
			name:     "missing output",
			req:      Request{Timestamp: "20240101-120000", Mode: ModeDisengage, InputPath: input, CodePath: root, OutputPath: filepath.Join(root, "gone")},
			resolver: &fakeResolver{commit: commit},
			want:     types.ErrInvalidPath,
			resolved: true,
		},
		{
			name:     "empty output",
			req:      Request{Timestamp: "20240101-120000", Mode: ModeDisengage, InputPath: input, CodePath: root, OutputPath: emptyOut},
			resolver: &fakeResolver{commit: commit},
			want:     types.ErrInvalidArgument,
			resolved: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := NewBuilder(nil, tt.resolver).Build(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Build() error = %v, want %v", err, tt.want)
			}
			if m != nil {
				t.Errorf("Build() returned partial manifest %+v", m)
			}
			if got := tt.resolver.calls > 0; got != tt.resolved {
				t.Errorf("resolver called = %v, want %v", got, tt.resolved)
			}
		})
	}
}
