package search

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Fanout upserts to every backend concurrently. All backends are attempted;
// the returned error joins every backend failure.
type Fanout struct {
	backends []Indexer
}

// NewFanout returns an Indexer over backends. Nil backends are skipped.
func NewFanout(backends ...Indexer) *Fanout {
	f := &Fanout{}
	for _, b := range backends {
		if b != nil {
			f.backends = append(f.backends, b)
		}
	}
	return f
}

// Len returns the number of backends.
func (f *Fanout) Len() int {
	return len(f.backends)
}

// Upsert writes doc to every backend.
func (f *Fanout) Upsert(ctx context.Context, index, id string, doc NoteDocument) error {
	errs := make([]error, len(f.backends))

	var g errgroup.Group
	for i, backend := range f.backends {
		g.Go(func() error {
			if err := backend.Upsert(ctx, index, id, doc); err != nil {
				errs[i] = fmt.Errorf("backend %d: %w", i, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
