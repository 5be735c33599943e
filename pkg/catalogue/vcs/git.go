// Package vcs resolves the commit identity of analysis code held in a git
// repository and guards that the working tree is fully committed.
//
// All repository access goes through the git command line. Commands run
// once; there are no retries.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jamesainslie/catalogue/pkg/catalogue/logging"
	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
)

var logger = logging.Get("vcs")

// DefaultBinary is the git executable used when none is configured.
const DefaultBinary = "git"

// CommandError is returned when a git command exits unsuccessfully.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s failed: %s", e.Args[0], e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// runGit runs git with application-constructed args in dir and returns stdout.
func runGit(ctx context.Context, binary, dir string, args ...string) ([]byte, error) {
	if len(args) == 0 {
		return nil, errors.New("git: no command specified")
	}
	if binary == "" {
		binary = DefaultBinary
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	logger.Debug("git command completed",
		"dir", dir,
		"args", args,
		"duration", time.Since(start))
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, &CommandError{Args: args, Stderr: msg, Err: err}
	}
	return stdout.Bytes(), nil
}

// Repository is a git working tree located by its top-level directory.
type Repository struct {
	root   string
	binary string
}

// Open locates the repository containing path, searching parent directories.
// A file path is resolved from its directory.
func Open(ctx context.Context, path string) (*Repository, error) {
	return open(ctx, DefaultBinary, path)
}

func open(ctx context.Context, binary, path string) (*Repository, error) {
	kind, err := types.Stat(path)
	if err != nil {
		return nil, err
	}
	dir := path
	switch kind {
	case types.KindMissing:
		return nil, types.NewPathError("open repository", path, types.ErrPathNotFound)
	case types.KindDir:
	default:
		dir = filepath.Dir(path)
	}

	out, err := runGit(ctx, binary, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, types.ErrNotARepository, err)
	}
	root := strings.TrimSpace(string(out))
	logger.Debug("opened repository", "path", path, "root", root)
	return &Repository{root: filepath.FromSlash(root), binary: binary}, nil
}

// Root returns the top-level directory of the working tree.
func (r *Repository) Root() string {
	return r.root
}

func (r *Repository) run(ctx context.Context, args ...string) (string, error) {
	out, err := runGit(ctx, r.binary, r.root, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// HasCommits reports whether HEAD resolves to a commit.
func (r *Repository) HasCommits(ctx context.Context) (bool, error) {
	_, err := r.run(ctx, "rev-parse", "--verify", "--quiet", "HEAD^{commit}")
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, err
}

// Head returns the full identifier of the HEAD commit.
func (r *Repository) Head(ctx context.Context) (string, error) {
	ok, err := r.HasCommits(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s: %w", r.root, types.ErrNoCommits)
	}
	return r.run(ctx, "rev-parse", "HEAD")
}

// Status is the cleanliness of a working tree with respect to a results
// directory.
type Status struct {
	Root string
	// Modified lists tracked paths with staged or unstaged changes.
	Modified []string
	// Untracked lists untracked, non-ignored files outside any results directory.
	Untracked []string
	// HasCommits is false for a freshly initialised repository.
	HasCommits bool
}

// Clean reports whether nothing blocks recording the code identity.
func (s Status) Clean() bool {
	return len(s.Modified) == 0 && len(s.Untracked) == 0
}

const maxListedPaths = 5

// Err returns nil for a clean status and an ErrDirtyRepository error naming the
// first offending paths otherwise.
func (s Status) Err() error {
	if s.Clean() {
		return nil
	}
	paths := append(append([]string{}, s.Modified...), s.Untracked...)
	more := ""
	if len(paths) > maxListedPaths {
		more = fmt.Sprintf(", and %d more", len(paths)-maxListedPaths)
		paths = paths[:maxListedPaths]
	}
	return fmt.Errorf("%s: %w: %d modified, %d untracked (%s%s)",
		s.Root, types.ErrDirtyRepository,
		len(s.Modified), len(s.Untracked),
		strings.Join(paths, ", "), more)
}

// Status inspects the working tree. Untracked files whose immediate parent
// directory has the same base name as resultsDir are exempt, wherever they sit
// in the repository.
func (r *Repository) Status(ctx context.Context, resultsDir string) (Status, error) {
	st := Status{Root: r.root}

	var err error
	if st.HasCommits, err = r.HasCommits(ctx); err != nil {
		return st, err
	}

	porcelain, err := runGit(ctx, r.binary, r.root, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return st, err
	}
	for _, line := range strings.Split(string(porcelain), "\n") {
		if len(line) > 3 {
			st.Modified = append(st.Modified, line[3:])
		}
	}

	others, err := runGit(ctx, r.binary, r.root, "ls-files", "--others", "--exclude-standard", "-z")
	if err != nil {
		return st, err
	}
	exempt := ""
	if resultsDir != "" {
		exempt = filepath.Base(filepath.Clean(resultsDir))
	}
	for _, p := range strings.Split(string(others), "\x00") {
		if p == "" {
			continue
		}
		parent := filepath.Base(filepath.Dir(filepath.FromSlash(p)))
		if exempt != "" && parent == exempt {
			continue
		}
		st.Untracked = append(st.Untracked, p)
	}

	return st, nil
}

// BranchName returns the name of the branch an automatic commit at timestamp
// is made on.
func BranchName(timestamp string) string {
	return timestamp + "_catalogue"
}

// CommitMessage returns the message of an automatic commit at timestamp.
func CommitMessage(timestamp string) string {
	return "catalogue: automatic commit " + timestamp
}

// CommitSnapshot creates a new branch named after timestamp and commits every
// tracked change plus the untracked files listed in st onto it.
func (r *Repository) CommitSnapshot(ctx context.Context, st Status, timestamp string) (string, error) {
	if !st.HasCommits {
		return "", fmt.Errorf("%s: %w", r.root, types.ErrNoCommits)
	}
	branch := BranchName(timestamp)

	if _, err := r.run(ctx, "checkout", "-b", branch); err != nil {
		return "", fmt.Errorf("create branch %s: %w", branch, err)
	}
	if _, err := r.run(ctx, "add", "-u"); err != nil {
		return "", fmt.Errorf("stage tracked changes: %w", err)
	}
	if len(st.Untracked) > 0 {
		args := append([]string{"add", "--"}, st.Untracked...)
		if _, err := r.run(ctx, args...); err != nil {
			return "", fmt.Errorf("stage untracked files: %w", err)
		}
	}
	if _, err := r.run(ctx, "commit", "-m", CommitMessage(timestamp)); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	logger.Info("committed working tree",
		"root", r.root,
		"branch", branch,
		"modified", len(st.Modified),
		"untracked", len(st.Untracked))
	return branch, nil
}
