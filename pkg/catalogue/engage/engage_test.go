package engage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/catalogue/internal/testutil"
	"github.com/jamesainslie/catalogue/pkg/catalogue/hasher"
	"github.com/jamesainslie/catalogue/pkg/catalogue/manifest"
	"github.com/jamesainslie/catalogue/pkg/catalogue/table"
	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
	"github.com/jamesainslie/catalogue/pkg/catalogue/vcs"
)

// fixture is a committed code repository with input and output data kept
// outside it, and a results directory inside it.
type fixture struct {
	paths Paths
	repo  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := testutil.CreateTempGitRepo(t)
	data := t.TempDir()
	testutil.WriteFile(t, filepath.Join(data, "raw", "survey.csv"), "id,answer\n1,yes\n2,no\n")
	testutil.WriteFile(t, filepath.Join(data, "lookup.csv"), "code,label\ny,yes\n")
	out := t.TempDir()
	testutil.WriteFile(t, filepath.Join(out, "summary.csv"), "answer,count\nyes,1\nno,1\n")
	testutil.WriteFile(t, filepath.Join(out, "plots", "bar.txt"), "##\n#\n")

	return fixture{
		repo: repo,
		paths: Paths{
			InputData:  data,
			Code:       repo,
			Results:    filepath.Join(repo, "catalogue_results"),
			OutputData: out,
		},
	}
}

// steppingClock returns a clock that advances five seconds per call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(5 * time.Second)
		return t
	}
}

type memIndex struct {
	paths []string
}

func (m *memIndex) Put(_ *manifest.Manifest, path string) error {
	m.paths = append(m.paths, path)
	return nil
}

func newProtocol(opts ...Option) *Protocol {
	checker := vcs.NewChecker("")
	opts = append([]Option{WithClock(steppingClock())}, opts...)
	return New(manifest.NewBuilder(hasher.New(), checker), checker, opts...)
}

func resultFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestEngage_CreatesLockOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	p := newProtocol()

	res, err := p.Engage(ctx, f.paths, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEngaged, res.Outcome)
	assert.Equal(t, f.paths.LockPath(), res.LockPath)
	assert.Equal(t, "20240301-120000", res.Manifest.Timestamps.Engage)
	assert.False(t, res.Manifest.HasOutput())
	assert.Equal(t, []string{LockFileName}, resultFiles(t, f.paths.Results))

	state, err := CurrentState(f.paths.Results)
	require.NoError(t, err)
	assert.Equal(t, Engaged, state)

	lockBefore, err := os.ReadFile(f.paths.LockPath())
	require.NoError(t, err)

	again, err := p.Engage(ctx, f.paths, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyEngaged, again.Outcome)
	assert.Contains(t, again.Message(), "Already engaged")
	assert.Nil(t, again.Manifest)
	assert.Equal(t, []string{LockFileName}, resultFiles(t, f.paths.Results))

	lockAfter, err := os.ReadFile(f.paths.LockPath())
	require.NoError(t, err)
	assert.Equal(t, lockBefore, lockAfter)
}

func TestDisengage_NotEngaged(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, err := newProtocol().Disengage(context.Background(), f.paths)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotEngaged, res.Outcome)
	assert.Contains(t, res.Message(), "Not currently engaged")
	assert.Empty(t, resultFiles(t, f.paths.Results))

	require.NoError(t, os.MkdirAll(f.paths.Results, 0o755))
	res, err = newProtocol().Disengage(context.Background(), f.paths)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotEngaged, res.Outcome)
	assert.Empty(t, resultFiles(t, f.paths.Results))
}

func TestDisengage_InputChanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	p := newProtocol()

	_, err := p.Engage(ctx, f.paths, false)
	require.NoError(t, err)

	testutil.WriteFile(t, filepath.Join(f.paths.InputData, "raw", "survey.csv"), "id,answer\n1,yes\n2,ni\n")

	res, err := p.Disengage(ctx, f.paths)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMismatch, res.Outcome)
	assert.Contains(t, res.Comparison.Differs, manifest.KeyInput)
	assert.Contains(t, res.Comparison.Matches, manifest.KeyCode)
	assert.Contains(t, res.Report, "results differ in")
	assert.Empty(t, res.RecordPath)
	assert.Empty(t, resultFiles(t, f.paths.Results), "lock consumed and no record written")
}

func TestDisengage_CodeChanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	p := newProtocol()

	_, err := p.Engage(ctx, f.paths, false)
	require.NoError(t, err)

	testutil.WriteFile(t, filepath.Join(f.repo, "analysis.py"), "print('v2')\n")
	testutil.Git(t, f.repo, "commit", "--quiet", "-am", "v2")

	res, err := p.Disengage(ctx, f.paths)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMismatch, res.Outcome)
	assert.Contains(t, res.Comparison.Differs, manifest.KeyCode)
	assert.Contains(t, res.Comparison.Matches, manifest.KeyInput)
}

func TestEngageDisengage_Recorded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	idx := &memIndex{}
	p := newProtocol(WithIndexer(idx))

	_, err := p.Engage(ctx, f.paths, false)
	require.NoError(t, err)

	res, err := p.Disengage(ctx, f.paths)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecorded, res.Outcome)
	assert.True(t, res.Comparison.Matched(manifest.KeyInput, manifest.KeyCode))
	assert.Contains(t, res.Comparison.Differs, manifest.KeyTimestamp)
	assert.Len(t, res.Comparison.Failures, 2, "outputs exist only in the fresh manifest")

	assert.Equal(t, []string{"20240301-120005.json"}, resultFiles(t, f.paths.Results))
	assert.Equal(t, filepath.Join(f.paths.Results, "20240301-120005.json"), res.RecordPath)
	assert.Equal(t, []string{res.RecordPath}, idx.paths)

	rec, err := manifest.Load(res.RecordPath)
	require.NoError(t, err)
	assert.Equal(t, "20240301-120000", rec.Timestamps.Engage)
	assert.Equal(t, "20240301-120005", rec.Timestamps.Disengage)
	assert.Equal(t, res.Manifest, rec)
	assert.Len(t, rec.Outputs, 2)

	state, err := CurrentState(f.paths.Results)
	require.NoError(t, err)
	assert.Equal(t, Unengaged, state)

	// The results directory never makes the repository dirty.
	_, err = vcs.ResolveCodeIdentity(ctx, f.repo, f.paths.Results)
	assert.NoError(t, err)
}

func TestEngageDisengage_CSV(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.paths.CSV = "catalogue.csv"
	p := newProtocol()

	for i := 0; i < 2; i++ {
		_, err := p.Engage(ctx, f.paths, false)
		require.NoError(t, err)
		res, err := p.Disengage(ctx, f.paths)
		require.NoError(t, err)
		require.Equal(t, OutcomeRecorded, res.Outcome)
		assert.Equal(t, filepath.Join(f.paths.Results, "catalogue.csv"), res.RecordPath)

		row, err := table.ReadRow(res.RecordPath, res.Manifest.Timestamps.Disengage)
		require.NoError(t, err)
		assert.Equal(t, res.Manifest, row)
	}

	ids, err := table.IDs(filepath.Join(f.paths.Results, "catalogue.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{"20240301-120005", "20240301-120015"}, ids)
	assert.Equal(t, []string{"catalogue.csv"}, resultFiles(t, f.paths.Results))
}

func TestEngage_DirtyRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	testutil.WriteFile(t, filepath.Join(f.repo, "scratch.py"), "pass\n")

	_, err := newProtocol().Engage(ctx, f.paths, false)
	assert.ErrorIs(t, err, types.ErrDirtyRepository)
	assert.NoFileExists(t, f.paths.LockPath())

	declined := newProtocol(WithConfirmer(vcs.ConfirmFunc(func(string) (bool, error) { return false, nil })))
	_, err = declined.Engage(ctx, f.paths, true)
	assert.ErrorIs(t, err, types.ErrCommitDeclined)
	assert.NoFileExists(t, f.paths.LockPath())

	accepted := newProtocol(WithConfirmer(vcs.ConfirmFunc(func(string) (bool, error) { return true, nil })))
	res, err := accepted.Engage(ctx, f.paths, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEngaged, res.Outcome)
	assert.Equal(t, "20240301-120000_catalogue", testutil.Git(t, f.repo, "rev-parse", "--abbrev-ref", "HEAD"))
	assert.Equal(t, testutil.Git(t, f.repo, "rev-parse", "HEAD"), res.Manifest.CodeCommit)
}

func TestEngage_PromptDisabledIgnoresConfirmer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	testutil.WriteFile(t, filepath.Join(f.repo, "scratch.py"), "pass\n")
	asked := false
	p := newProtocol(WithConfirmer(vcs.ConfirmFunc(func(string) (bool, error) {
		asked = true
		return true, nil
	})))

	_, err := p.Engage(context.Background(), f.paths, false)
	assert.ErrorIs(t, err, types.ErrDirtyRepository)
	assert.False(t, asked)
}

func TestEngage_InvalidPaths(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	p := newProtocol()

	missing := f.paths
	missing.InputData = filepath.Join(t.TempDir(), "absent")
	_, err := p.Engage(ctx, missing, false)
	assert.ErrorIs(t, err, types.ErrPathNotFound)

	same := f.paths
	same.Results = same.Code
	_, err = p.Engage(ctx, same, false)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	empty := f.paths
	empty.Results = ""
	_, err = p.Engage(ctx, empty, false)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	noOutput := f.paths
	noOutput.OutputData = ""
	_, err = p.Disengage(ctx, noOutput)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	missingOutput := f.paths
	missingOutput.OutputData = filepath.Join(t.TempDir(), "absent")
	_, err = p.Disengage(ctx, missingOutput)
	assert.ErrorIs(t, err, types.ErrPathNotFound)
}

func TestDisengage_CorruptLock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	testutil.WriteFile(t, f.paths.LockPath(), "not a manifest")

	_, err := newProtocol().Disengage(context.Background(), f.paths)
	assert.ErrorIs(t, err, types.ErrDecodeError)
	assert.FileExists(t, f.paths.LockPath())
}

func TestMessages(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Engaged: lock file written to r/.lock",
		(&EngageResult{Outcome: OutcomeEngaged, LockPath: "r/.lock"}).Message())
	assert.Equal(t, "Disengaged: record written to r/x.json",
		(&DisengageResult{Outcome: OutcomeRecorded, RecordPath: "r/x.json"}).Message())
	assert.Contains(t, (&DisengageResult{Outcome: OutcomeMismatch}).Message(), "no record written")
	assert.Equal(t, "engaged", Engaged.String())
	assert.Equal(t, "unengaged", Unengaged.String())
}
