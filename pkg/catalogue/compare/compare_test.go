package compare

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/catalogue/pkg/catalogue/manifest"
	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
)

func load(t *testing.T, name string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Load(filepath.Join("testdata", name))
	require.NoError(t, err)
	return m
}

func TestCompare_Fixtures(t *testing.T) {
	t.Parallel()
	withoutOutput := load(t, "fixture1.json")
	withOutput := load(t, "fixture2.json")

	same := Compare(withoutOutput, withoutOutput)
	assert.Len(t, same.Matches, 3)
	assert.Empty(t, same.Differs)
	assert.Equal(t, []string{manifest.KeyOutput}, same.Failures)

	same = Compare(withOutput, withOutput)
	assert.Len(t, same.Matches, 5)
	assert.Empty(t, same.Differs)
	assert.Empty(t, same.Failures)

	diff := Compare(withoutOutput, withOutput)
	assert.Equal(t, []string{manifest.KeyInput, manifest.KeyCode}, diff.Matches)
	assert.Equal(t, []string{manifest.KeyTimestamp}, diff.Differs)
	assert.Equal(t, []string{"results/summary.csv", "results/plot.png"}, diff.Failures)

	// Symmetric in classification.
	rev := Compare(withOutput, withoutOutput)
	assert.ElementsMatch(t, diff.Matches, rev.Matches)
	assert.ElementsMatch(t, diff.Differs, rev.Differs)
	assert.ElementsMatch(t, diff.Failures, rev.Failures)
}

func TestCompare_FailedLookupSkipsEquality(t *testing.T) {
	t.Parallel()
	a := &manifest.Manifest{Timestamps: manifest.Timestamps{Engage: "20240101-120000"}}
	b := &manifest.Manifest{Timestamps: manifest.Timestamps{Engage: "20240101-120000"}}

	r := Compare(a, b)
	assert.Equal(t, []string{manifest.KeyTimestamp}, r.Matches)
	assert.Empty(t, r.Differs)
	assert.Equal(t, []string{manifest.KeyInput, manifest.KeyCode, manifest.KeyOutput}, r.Failures)
}

func TestCompare_Outputs(t *testing.T) {
	t.Parallel()
	hash := func(c string) string { return strings.Repeat(c, 128) }
	base := func(outputs ...types.FileDigest) *manifest.Manifest {
		return &manifest.Manifest{
			Timestamps: manifest.Timestamps{Disengage: "20240101-130000"},
			InputPath:  "data",
			InputHash:  hash("a"),
			CodePath:   ".",
			CodeCommit: strings.Repeat("c", 40),
			OutputPath: "results",
			Outputs:    outputs,
		}
	}

	a := base(
		types.FileDigest{Path: "results/same.csv", Digest: hash("1")},
		types.FileDigest{Path: "results/changed.csv", Digest: hash("2")},
		types.FileDigest{Path: "results/only-a.csv", Digest: hash("3")},
	)
	b := base(
		types.FileDigest{Path: "results/only-b.csv", Digest: hash("4")},
		types.FileDigest{Path: "results/changed.csv", Digest: hash("5")},
		types.FileDigest{Path: "results/same.csv", Digest: hash("1")},
	)

	r := Compare(a, b)
	assert.Equal(t, []string{"timestamp", "input_data", "code", "results/same.csv"}, r.Matches)
	assert.Equal(t, []string{"results/changed.csv"}, r.Differs)
	assert.Equal(t, []string{"results/only-a.csv", "results/only-b.csv"}, r.Failures)

	cat, ok := r.Category("results/changed.csv")
	assert.True(t, ok)
	assert.Equal(t, Differ, cat)
	_, ok = r.Category("results/none.csv")
	assert.False(t, ok)
}

func TestCompare_Reflexive(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"fixture1.json", "fixture2.json"} {
		m := load(t, name)
		assert.Empty(t, Compare(m, m).Differs, name)
	}
}

func TestCompare_TimestampUsesDisengage(t *testing.T) {
	t.Parallel()
	lock := &manifest.Manifest{Timestamps: manifest.Timestamps{Engage: "20240101-120000"}}
	record := &manifest.Manifest{Timestamps: manifest.Timestamps{Engage: "20240101-120000", Disengage: "20240101-130000"}}

	cat, _ := Compare(lock, record).Category(manifest.KeyTimestamp)
	assert.Equal(t, Differ, cat)
}

func TestMatched(t *testing.T) {
	t.Parallel()
	r := Result{Matches: []string{"input_data", "code"}, Differs: []string{"timestamp"}}
	assert.True(t, r.Matched(manifest.KeyInput, manifest.KeyCode))
	assert.False(t, r.Matched(manifest.KeyInput, manifest.KeyTimestamp))
	assert.True(t, r.Matched())
}

func TestClean(t *testing.T) {
	r := Result{
		Matches:  []string{"input_data", "code"},
		Differs:  []string{"timestamp"},
		Failures: []string{},
	}
	assert.True(t, r.Clean(), "a differing timestamp alone is clean")

	r.Differs = append(r.Differs, "results/a.csv")
	assert.False(t, r.Clean())

	r = Result{Matches: []string{"input_data"}, Failures: []string{"output_data"}}
	assert.False(t, r.Clean())
}

func TestCompareFiles(t *testing.T) {
	t.Parallel()
	r, err := CompareFiles(filepath.Join("testdata", "fixture1.json"), filepath.Join("testdata", "fixture2.json"))
	require.NoError(t, err)
	assert.Len(t, r.Matches, 2)
	assert.Len(t, r.Differs, 1)
	assert.Len(t, r.Failures, 2)

	_, err = CompareFiles(filepath.Join("testdata", "missing.json"), filepath.Join("testdata", "fixture2.json"))
	assert.ErrorIs(t, err, types.ErrFileNotFound)
}

func TestRender(t *testing.T) {
	t.Parallel()
	r := Result{
		Matches:  []string{"input_data", "code"},
		Differs:  []string{"timestamp"},
		Failures: []string{"results/a.csv", "results/b.csv"},
	}
	want := "results differ in 1 places:\n" +
		"===========================\n" +
		"timestamp\n" +
		"\n" +
		"results match in 2 places:\n" +
		"==========================\n" +
		"input_data\n" +
		"code\n" +
		"\n" +
		"results could not be compared in 2 places:\n" +
		"==========================================\n" +
		"results/a.csv\n" +
		"results/b.csv\n" +
		"\n" +
		TimestampNote + "\n"
	assert.Equal(t, want, Render(r))
}
