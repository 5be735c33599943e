package main

import (
	"os"

	"github.com/jamesainslie/catalogue/pkg/catalogue/config"
	"github.com/jamesainslie/catalogue/pkg/catalogue/engage"
	"github.com/jamesainslie/catalogue/pkg/catalogue/hasher"
	"github.com/jamesainslie/catalogue/pkg/catalogue/history"
	"github.com/jamesainslie/catalogue/pkg/catalogue/logging"
	"github.com/jamesainslie/catalogue/pkg/catalogue/manifest"
	"github.com/jamesainslie/catalogue/pkg/catalogue/vcs"
)

// newChecker returns the git checker, honouring CATALOGUE_GIT.
func newChecker() *vcs.Checker {
	binary := os.Getenv("CATALOGUE_GIT")
	if binary == "" {
		binary = vcs.DefaultBinary
	}
	return vcs.NewChecker(binary)
}

// newBuilder returns a manifest builder configured from c.
func newBuilder(c *config.Config, checker *vcs.Checker) *manifest.Builder {
	h := hasher.New(
		hasher.WithWalkOptions(c.WalkOptions()),
		hasher.WithWorkers(c.HashWorkers()),
	)
	return manifest.NewBuilder(h, checker)
}

// openIndex opens the history index when enabled. A failure disables
// indexing for this run. The returned close function is never nil.
func openIndex(c *config.Config) (*history.Index, func()) {
	if !c.History.Enabled {
		return nil, func() {}
	}
	idx, err := history.Open(c.HistoryPath())
	if err != nil {
		logging.Get("cli").Warn("history index unavailable", "path", c.HistoryPath(), "error", err)
		printVerbose("history index unavailable: %v", err)
		return nil, func() {}
	}
	return idx, func() { _ = idx.Close() }
}

// newProtocol wires the engagement protocol from configuration. The returned
// close function releases the history index.
func newProtocol(c *config.Config, opts ...engage.Option) (*engage.Protocol, func()) {
	checker := newChecker()
	idx, closeIndex := openIndex(c)
	if idx != nil {
		opts = append(opts, engage.WithIndexer(idx))
	}
	return engage.New(newBuilder(c, checker), checker, opts...), closeIndex
}
