package vcs

import (
	"context"
	"fmt"

	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
)

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// ConfirmFunc adapts a function to a Confirmer.
type ConfirmFunc func(prompt string) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(prompt string) (bool, error) {
	return f(prompt)
}

// Checker resolves code identities using a configurable git binary.
type Checker struct {
	// Binary is the git executable. Empty means DefaultBinary.
	Binary string
}

// NewChecker returns a Checker that runs the given git binary.
func NewChecker(binary string) *Checker {
	return &Checker{Binary: binary}
}

// Open locates the repository containing path.
func (c *Checker) Open(ctx context.Context, path string) (*Repository, error) {
	return open(ctx, c.Binary, path)
}

// ResolveCodeIdentity returns the HEAD commit of the repository containing
// repoPath. It fails with ErrDirtyRepository when tracked files are modified or
// untracked files exist outside results directories, and with ErrNoCommits for
// an empty repository.
func (c *Checker) ResolveCodeIdentity(ctx context.Context, repoPath, resultsDir string) (string, error) {
	repo, err := c.Open(ctx, repoPath)
	if err != nil {
		return "", err
	}
	st, err := repo.Status(ctx, resultsDir)
	if err != nil {
		return "", err
	}
	if err := st.Err(); err != nil {
		return "", err
	}
	commit, err := repo.Head(ctx)
	if err != nil {
		return "", err
	}
	logger.Debug("resolved code identity", "root", repo.Root(), "commit", commit)
	return commit, nil
}

// EnsureCleanOrOfferCommit returns nil when the repository is clean. When it
// is dirty and confirm is non-nil, the operator is asked whether to commit the
// changes on a new branch named after timestamp. Declining leaves the
// repository untouched and returns ErrCommitDeclined.
func (c *Checker) EnsureCleanOrOfferCommit(ctx context.Context, repoPath, resultsDir string, confirm Confirmer, timestamp string) error {
	repo, err := c.Open(ctx, repoPath)
	if err != nil {
		return err
	}
	st, err := repo.Status(ctx, resultsDir)
	if err != nil {
		return err
	}
	if st.Clean() {
		return nil
	}
	if confirm == nil {
		return st.Err()
	}
	if !st.HasCommits {
		return fmt.Errorf("%s: %w", repo.Root(), types.ErrNoCommits)
	}

	prompt := fmt.Sprintf("%s has %d modified and %d untracked files. Commit them on new branch %s?",
		repo.Root(), len(st.Modified), len(st.Untracked), BranchName(timestamp))
	ok, err := confirm.Confirm(prompt)
	if err != nil {
		return fmt.Errorf("confirm automatic commit: %w", err)
	}
	if !ok {
		logger.Info("automatic commit declined", "root", repo.Root())
		return fmt.Errorf("%s: %w", repo.Root(), types.ErrCommitDeclined)
	}

	_, err = repo.CommitSnapshot(ctx, st, timestamp)
	return err
}

var defaultChecker = &Checker{}

// ResolveCodeIdentity calls Checker.ResolveCodeIdentity with the default git binary.
func ResolveCodeIdentity(ctx context.Context, repoPath, resultsDir string) (string, error) {
	return defaultChecker.ResolveCodeIdentity(ctx, repoPath, resultsDir)
}

// EnsureCleanOrOfferCommit calls Checker.EnsureCleanOrOfferCommit with the
// default git binary.
func EnsureCleanOrOfferCommit(ctx context.Context, repoPath, resultsDir string, confirm Confirmer, timestamp string) error {
	return defaultChecker.EnsureCleanOrOfferCommit(ctx, repoPath, resultsDir, confirm, timestamp)
}
