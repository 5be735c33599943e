package manifest

import (
	"context"
	"fmt"

	"github.com/jamesainslie/catalogue/pkg/catalogue/hasher"
	"github.com/jamesainslie/catalogue/pkg/catalogue/logging"
	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
)

var logger = logging.Get("manifest")

// CodeResolver returns the commit identity of the code at codePath.
type CodeResolver interface {
	ResolveCodeIdentity(ctx context.Context, codePath, resultsDir string) (string, error)
}

// Request describes one manifest to build.
type Request struct {
	Timestamp  string
	Mode       Mode
	InputPath  string
	CodePath   string
	ResultsDir string
	// OutputPath is optional; when set the manifest carries output data.
	OutputPath string
}

// Builder assembles manifests from the current state of the filesystem and
// the code repository.
type Builder struct {
	hasher *hasher.Hasher
	code   CodeResolver
}

// NewBuilder returns a Builder. A nil hasher uses hasher.New().
func NewBuilder(h *hasher.Hasher, code CodeResolver) *Builder {
	if h == nil {
		h = hasher.New()
	}
	return &Builder{hasher: h, code: code}
}

// Build hashes the input, resolves the code identity and, when requested,
// hashes the output. The first failure is returned and no manifest is
// produced.
func (b *Builder) Build(ctx context.Context, req Request) (*Manifest, error) {
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("%w: mode %q", types.ErrInvalidArgument, req.Mode)
	}
	if !types.ValidTimestamp(req.Timestamp) {
		return nil, fmt.Errorf("%w: timestamp %q", types.ErrInvalidArgument, req.Timestamp)
	}
	if b.code == nil {
		return nil, fmt.Errorf("%w: no code resolver", types.ErrInvalidArgument)
	}

	kind, err := types.Stat(req.InputPath)
	if err != nil {
		return nil, err
	}
	if kind != types.KindFile && kind != types.KindDir {
		return nil, types.NewPathError("build manifest", req.InputPath, types.ErrInvalidArgument)
	}

	m := &Manifest{
		InputPath:  req.InputPath,
		CodePath:   req.CodePath,
		OutputPath: req.OutputPath,
	}
	m.Timestamps.Set(req.Mode, req.Timestamp)

	if m.InputHash, err = b.hasher.Input(ctx, req.InputPath); err != nil {
		return nil, fmt.Errorf("hash input data: %w", err)
	}
	if m.CodeCommit, err = b.code.ResolveCodeIdentity(ctx, req.CodePath, req.ResultsDir); err != nil {
		return nil, fmt.Errorf("resolve code identity: %w", err)
	}
	if req.OutputPath != "" {
		if m.Outputs, err = b.hasher.Output(ctx, req.OutputPath); err != nil {
			return nil, fmt.Errorf("hash output data: %w", err)
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("built manifest",
		"mode", req.Mode,
		"timestamp", req.Timestamp,
		"input", req.InputPath,
		"commit", m.CodeCommit,
		"outputs", len(m.Outputs))
	return m, nil
}
