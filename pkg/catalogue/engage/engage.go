// Package engage runs the engage/disengage protocol around an analysis run.
//
// Engaging records the identity of the input data and the code in a lock
// file inside the results directory. Disengaging consumes the lock, builds a
// fresh manifest including the output data, compares the two and, when input
// and code are unchanged, stores a permanent record carrying both timestamps.
//
// The lock file's existence is the only state. Transitions hold an advisory
// lock on the results directory, so one results directory serves one
// operator at a time.
package engage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesainslie/catalogue/pkg/catalogue/compare"
	"github.com/jamesainslie/catalogue/pkg/catalogue/logging"
	"github.com/jamesainslie/catalogue/pkg/catalogue/manifest"
	"github.com/jamesainslie/catalogue/pkg/catalogue/table"
	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
	"github.com/jamesainslie/catalogue/pkg/catalogue/vcs"
)

var logger = logging.Get("engage")

// LockFileName is the name of the lock file inside the results directory.
const LockFileName = ".lock"

// ErrBusy is returned when another process is running a transition on the
// same results directory.
var ErrBusy = errors.New("another catalogue operation holds the results directory")

// State is the engagement state of a results directory.
type State int

const (
	Unengaged State = iota
	Engaged
)

func (s State) String() string {
	if s == Engaged {
		return "engaged"
	}
	return "unengaged"
}

// Outcome is the result of one transition.
type Outcome string

const (
	OutcomeEngaged        Outcome = "engaged"
	OutcomeAlreadyEngaged Outcome = "already engaged"
	OutcomeRecorded       Outcome = "recorded"
	OutcomeMismatch       Outcome = "mismatch"
	OutcomeNotEngaged     Outcome = "not engaged"
)

// Paths are the locations one protocol run works on.
type Paths struct {
	InputData  string
	Code       string
	Results    string
	OutputData string
	// CSV, when set, names a table inside Results that receives records as
	// rows instead of one manifest file per record.
	CSV string
}

// LockPath returns the lock file location.
func (p Paths) LockPath() string {
	return filepath.Join(p.Results, LockFileName)
}

// CleanChecker guards that the code is committed before engaging.
type CleanChecker interface {
	EnsureCleanOrOfferCommit(ctx context.Context, repoPath, resultsDir string, confirm vcs.Confirmer, timestamp string) error
}

// Indexer is told about every permanent record written.
type Indexer interface {
	Put(m *manifest.Manifest, path string) error
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithConfirmer sets who is asked before an automatic commit.
func WithConfirmer(c vcs.Confirmer) Option {
	return func(p *Protocol) {
		p.confirm = c
	}
}

// WithIndexer records every permanent record in idx.
func WithIndexer(idx Indexer) Option {
	return func(p *Protocol) {
		p.index = idx
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Protocol) {
		p.now = now
	}
}

// Protocol runs engage and disengage transitions.
type Protocol struct {
	builder *manifest.Builder
	checker CleanChecker
	confirm vcs.Confirmer
	index   Indexer
	now     func() time.Time
}

// New returns a Protocol building manifests with b and guarding code
// cleanliness with checker.
func New(b *manifest.Builder, checker CleanChecker, opts ...Option) *Protocol {
	p := &Protocol{
		builder: b,
		checker: checker,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CurrentState reports whether results holds a lock file.
func CurrentState(results string) (State, error) {
	_, err := os.Stat(filepath.Join(results, LockFileName))
	switch {
	case err == nil:
		return Engaged, nil
	case errors.Is(err, os.ErrNotExist):
		return Unengaged, nil
	default:
		return Unengaged, fmt.Errorf("stat lock file: %w", err)
	}
}

// EngageResult is the outcome of Engage.
type EngageResult struct {
	Outcome  Outcome
	LockPath string
	// Manifest is the lock manifest: the new one when engaged, nil when a
	// lock already existed.
	Manifest *manifest.Manifest
}

// Message returns the operator-facing summary.
func (r *EngageResult) Message() string {
	switch r.Outcome {
	case OutcomeAlreadyEngaged:
		return "Already engaged: run disengage first (lock file " + r.LockPath + ")"
	default:
		return "Engaged: lock file written to " + r.LockPath
	}
}

// Engage snapshots the input data and code into the lock file. When prompt is
// true a dirty repository can be committed automatically after confirmation.
// An existing lock is reported as OutcomeAlreadyEngaged without changes.
func (p *Protocol) Engage(ctx context.Context, paths Paths, prompt bool) (*EngageResult, error) {
	if err := validate(paths); err != nil {
		return nil, err
	}
	if err := types.CheckPathsExist(paths.InputData, paths.Code); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(paths.Results, 0o755); err != nil {
		return nil, fmt.Errorf("create results directory: %w", err)
	}

	ts := types.NewTimestamp(p.now())
	var confirm vcs.Confirmer
	if prompt {
		confirm = p.confirm
	}
	if err := p.checker.EnsureCleanOrOfferCommit(ctx, paths.Code, paths.Results, confirm, ts); err != nil {
		return nil, err
	}

	unlock, err := lockDir(paths.Results)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res := &EngageResult{LockPath: paths.LockPath()}
	state, err := CurrentState(paths.Results)
	if err != nil {
		return nil, err
	}
	if state == Engaged {
		logger.Info("already engaged", "results", paths.Results)
		res.Outcome = OutcomeAlreadyEngaged
		return res, nil
	}

	m, err := p.builder.Build(ctx, manifest.Request{
		Timestamp:  ts,
		Mode:       manifest.ModeEngage,
		InputPath:  paths.InputData,
		CodePath:   paths.Code,
		ResultsDir: paths.Results,
	})
	if err != nil {
		return nil, err
	}
	store, err := manifest.NewStore(paths.Results)
	if err != nil {
		return nil, err
	}
	if res.LockPath, err = store.SaveAs(m, LockFileName); err != nil {
		return nil, err
	}

	logger.Info("engaged", "timestamp", ts, "input", paths.InputData, "commit", m.CodeCommit)
	res.Outcome = OutcomeEngaged
	res.Manifest = m
	return res, nil
}

// DisengageResult is the outcome of Disengage.
type DisengageResult struct {
	Outcome Outcome
	// Lock is the manifest loaded from the lock file.
	Lock *manifest.Manifest
	// Manifest is the fresh manifest; when recorded it carries both timestamps.
	Manifest   *manifest.Manifest
	Comparison *compare.Result
	// Report is the rendered comparison.
	Report string
	// RecordPath is the manifest file or table the record was written to.
	RecordPath string
}

// Message returns the operator-facing summary.
func (r *DisengageResult) Message() string {
	switch r.Outcome {
	case OutcomeNotEngaged:
		return "Not currently engaged: run engage first"
	case OutcomeMismatch:
		return "Input data or code changed since engage: no record written"
	default:
		return "Disengaged: record written to " + r.RecordPath
	}
}

// Disengage consumes the lock file, snapshots input, code and output, and
// compares against the lock. A record is written only when input data and
// code both match. A missing lock is reported as OutcomeNotEngaged.
func (p *Protocol) Disengage(ctx context.Context, paths Paths) (*DisengageResult, error) {
	if err := validate(paths); err != nil {
		return nil, err
	}
	if paths.OutputData == "" {
		return nil, fmt.Errorf("%w: output data path is required", types.ErrInvalidArgument)
	}
	if err := types.CheckPathsExist(paths.InputData, paths.Code, paths.OutputData); err != nil {
		return nil, err
	}

	log := logger.With("results", paths.Results)
	res := &DisengageResult{Outcome: OutcomeNotEngaged}
	if kind, err := types.Stat(paths.Results); err != nil {
		return nil, err
	} else if kind != types.KindDir {
		log.Info("not engaged")
		return res, nil
	}

	unlock, err := lockDir(paths.Results)
	if err != nil {
		return nil, err
	}
	defer unlock()

	lock, err := manifest.Load(paths.LockPath())
	if errors.Is(err, types.ErrFileNotFound) {
		log.Info("not engaged")
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	if err := os.Remove(paths.LockPath()); err != nil {
		return nil, fmt.Errorf("remove lock file: %w", err)
	}
	res.Lock = lock

	ts := types.NewTimestamp(p.now())
	fresh, err := p.builder.Build(ctx, manifest.Request{
		Timestamp:  ts,
		Mode:       manifest.ModeDisengage,
		InputPath:  paths.InputData,
		CodePath:   paths.Code,
		ResultsDir: paths.Results,
		OutputPath: paths.OutputData,
	})
	if err != nil {
		return nil, err
	}
	res.Manifest = fresh

	cmp := compare.Compare(lock, fresh)
	res.Comparison = &cmp
	res.Report = compare.Render(cmp)

	if !cmp.Matched(manifest.KeyInput, manifest.KeyCode) {
		log.Warn("input data or code changed since engage",
			"engaged", lock.Timestamps.Engage,
			"differs", cmp.Differs,
			"failures", cmp.Failures)
		res.Outcome = OutcomeMismatch
		return res, nil
	}

	fresh.Timestamps.Engage = lock.Timestamps.Engage
	if res.RecordPath, err = p.persist(fresh, ts, paths); err != nil {
		return nil, err
	}
	if p.index != nil {
		if err := p.index.Put(fresh, res.RecordPath); err != nil {
			log.Warn("failed to index record", "record", res.RecordPath, "error", err)
		}
	}

	log.Info("disengaged", "timestamp", ts, "record", res.RecordPath, "outputs", len(fresh.Outputs))
	res.Outcome = OutcomeRecorded
	return res, nil
}

func (p *Protocol) persist(m *manifest.Manifest, ts string, paths Paths) (string, error) {
	if paths.CSV != "" {
		path := filepath.Join(paths.Results, paths.CSV)
		if err := table.AppendRow(m, ts, path); err != nil {
			return "", err
		}
		return path, nil
	}
	store, err := manifest.NewStore(paths.Results)
	if err != nil {
		return "", err
	}
	return store.Save(m, manifest.DefaultExt)
}

func validate(paths Paths) error {
	for name, v := range map[string]string{
		"input data": paths.InputData,
		"code":       paths.Code,
		"results":    paths.Results,
	} {
		if v == "" {
			return fmt.Errorf("%w: %s path is required", types.ErrInvalidArgument, name)
		}
	}
	code, err := filepath.Abs(paths.Code)
	if err != nil {
		return fmt.Errorf("resolve code path: %w", err)
	}
	results, err := filepath.Abs(paths.Results)
	if err != nil {
		return fmt.Errorf("resolve results path: %w", err)
	}
	if code == results {
		return fmt.Errorf("%w: code and results paths must differ", types.ErrInvalidArgument)
	}
	return nil
}
