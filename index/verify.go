package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/tarx"
)

// ErrDigestMismatch is returned when archive content no longer matches
// the digest recorded in the index.
var ErrDigestMismatch = errors.New("index: content digest mismatch")

// verifyConfig holds configuration for Verify.
type verifyConfig struct {
	workers int
}

// VerifyOption configures Verify.
type VerifyOption func(*verifyConfig)

// VerifyWithWorkers sets the number of concurrent verification workers.
// Zero uses one worker per CPU.
func VerifyWithWorkers(n int) VerifyOption {
	return func(cfg *verifyConfig) {
		cfg.workers = n
	}
}

// Verify re-reads every regular file's content from src and checks it
// against the recorded digest. Entries are verified concurrently; the
// archive byte stream itself is never mutated, so this is safe to run
// against a live file.
//
// Verification stops at the first mismatch or read failure.
func Verify(ctx context.Context, src io.ReaderAt, idx *Index, opts ...VerifyOption) error {
	cfg := verifyConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	workers := cfg.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for rec := range idx.Records() {
		if rec.Kind != tarx.KindRegular || rec.Digest == "" {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sr := io.NewSectionReader(src, rec.Offset, rec.Size)
			got, err := digest.Canonical.FromReader(sr)
			if err != nil {
				return fmt.Errorf("index: %s: %w", rec.Path, err)
			}
			if got != rec.Digest {
				return fmt.Errorf("%w: %s", ErrDigestMismatch, rec.Path)
			}
			return nil
		})
	}
	return g.Wait()
}
