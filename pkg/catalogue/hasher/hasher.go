// Package hasher computes SHA-512 content digests of files and directory
// trees. Digests depend only on file bytes (and, for combined directory
// digests, on sorted relative paths), never on where the files live.
package hasher

import (
	"context"
	_ "crypto/sha512" // registers SHA-512 for go-digest
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/catalogue/pkg/catalogue/logging"
	"github.com/jamesainslie/catalogue/pkg/catalogue/tuner"
	"github.com/jamesainslie/catalogue/pkg/catalogue/types"
	"github.com/jamesainslie/catalogue/pkg/catalogue/walk"
)

var logger = logging.Get("hasher")

// Algorithm is the digest algorithm used for all content hashes.
const Algorithm = digest.SHA512

// ChunkSize is the number of bytes read from a file per digest update.
const ChunkSize = 1 << 10

// DigestLen is the length of a hex-encoded digest.
const DigestLen = 128

// Stream is a running digest over the contents of one or more files.
// A Stream is never shared implicitly: callers that want several files in
// one digest create a Stream and Add each file to it explicitly.
type Stream struct {
	d     digest.Digester
	buf   []byte
	files int
	bytes int64
}

// NewStream returns an empty Stream.
func NewStream() *Stream {
	return &Stream{
		d:   Algorithm.Digester(),
		buf: make([]byte, ChunkSize),
	}
}

// Add feeds the content of the regular file at path into the stream.
func (s *Stream) Add(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.NewPathError("hash", path, types.ErrPathNotFound)
		}
		return fmt.Errorf("hash %s: %w", path, err)
	}
	if info.IsDir() {
		return types.NewPathError("hash", path, types.ErrIsADirectory)
	}
	if !info.Mode().IsRegular() {
		return types.NewPathError("hash", path, types.ErrInvalidPath)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()

	h := s.d.Hash()
	for {
		n, err := f.Read(s.buf)
		if n > 0 {
			_, _ = h.Write(s.buf[:n])
			s.bytes += int64(n)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("hash %s: %w", path, err)
		}
	}
	s.files++
	return nil
}

// Sum returns the hex digest of everything added so far.
func (s *Stream) Sum() string {
	return s.d.Digest().Encoded()
}

// Files returns the number of files added.
func (s *Stream) Files() int {
	return s.files
}

// Bytes returns the number of bytes added.
func (s *Stream) Bytes() int64 {
	return s.bytes
}

// EmptyDigest returns the digest of no input at all.
func EmptyDigest() string {
	return NewStream().Sum()
}

// File returns the hex digest of a single file.
func File(path string) (string, error) {
	s := NewStream()
	if err := s.Add(path); err != nil {
		return "", err
	}
	return s.Sum(), nil
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithWalkOptions sets the walk rules used for directories.
func WithWalkOptions(opts walk.Options) Option {
	return func(h *Hasher) {
		h.walk = opts
	}
}

// WithWorkers sets how many files DirectoryByFile hashes concurrently.
// Values below 1 are sized from the detected CPU and RAM.
func WithWorkers(n int) Option {
	return func(h *Hasher) {
		h.workers = n
	}
}

// Hasher hashes inputs and outputs using a fixed set of walk rules.
type Hasher struct {
	walk    walk.Options
	workers int
}

// New returns a Hasher with walk.DefaultOptions and a worker pool sized by
// tuner.HashWorkers.
func New(opts ...Option) *Hasher {
	h := &Hasher{walk: walk.DefaultOptions()}
	for _, opt := range opts {
		opt(h)
	}
	if h.workers < 1 {
		h.workers = tuner.HashWorkers(0)
	}
	return h
}

// WalkOptions returns the walk rules of the hasher.
func (h *Hasher) WalkOptions() walk.Options {
	return h.walk
}

// DirectoryByFile returns the digest of every file under root, in walk order.
func (h *Hasher) DirectoryByFile(ctx context.Context, root string) ([]types.FileDigest, error) {
	paths, err := walk.Files(root, h.walk)
	if err != nil {
		return nil, err
	}

	out := make([]types.FileDigest, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sum, err := File(p)
			if err != nil {
				return err
			}
			out[i] = types.FileDigest{Path: p, Digest: sum}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Debug("hashed directory by file", "root", root, "files", len(out))
	return out, nil
}

// DirectoryCombined returns a single digest over the contents of every file
// under root, fed in sorted-path order.
func (h *Hasher) DirectoryCombined(ctx context.Context, root string) (string, error) {
	paths, err := walk.Files(root, h.walk)
	if err != nil {
		return "", err
	}
	slices.Sort(paths)

	s := NewStream()
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := s.Add(p); err != nil {
			return "", err
		}
	}

	logger.Debug("hashed directory",
		"root", root,
		"files", s.Files(),
		"bytes", humanize.IBytes(uint64(s.Bytes())))
	return s.Sum(), nil
}

// Input hashes input data: a directory yields its combined digest, a file
// its own digest.
func (h *Hasher) Input(ctx context.Context, path string) (string, error) {
	kind, err := types.Stat(path)
	if err != nil {
		return "", err
	}
	switch kind {
	case types.KindDir:
		return h.DirectoryCombined(ctx, path)
	case types.KindFile:
		return File(path)
	default:
		return "", types.NewPathError("hash input", path, types.ErrInvalidPath)
	}
}

// Output hashes output data: a directory yields one digest per file, a file
// a single entry for itself.
func (h *Hasher) Output(ctx context.Context, path string) ([]types.FileDigest, error) {
	kind, err := types.Stat(path)
	if err != nil {
		return nil, err
	}
	switch kind {
	case types.KindDir:
		return h.DirectoryByFile(ctx, path)
	case types.KindFile:
		sum, err := File(path)
		if err != nil {
			return nil, err
		}
		return []types.FileDigest{{Path: path, Digest: sum}}, nil
	default:
		return nil, types.NewPathError("hash output", path, types.ErrInvalidPath)
	}
}
