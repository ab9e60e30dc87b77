/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package index

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/hypermodeinc/dggrs/mapper"
	"github.com/hypermodeinc/dggrs/types"
)

// DefaultReloadInterval is how stale a Reloading index may get.
const DefaultReloadInterval = 5 * time.Minute

// Reloading wraps an Index shared with other writers. Before serving an
// operation it reloads the index from storage if the last refresh is at least
// Interval old. A failed reload fails the operation; stale data is never
// served past the interval.
type Reloading struct {
	idx      *Index
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewReloading wraps idx. A zero interval means DefaultReloadInterval and a
// nil now means time.Now.
func NewReloading(idx *Index, interval time.Duration, now func() time.Time) *Reloading {
	if interval <= 0 {
		interval = DefaultReloadInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Reloading{idx: idx, interval: interval, now: now, last: now()}
}

// Index returns the wrapped index.
func (r *Reloading) Index() *Index { return r.idx }

func (r *Reloading) refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if now.Sub(r.last) < r.interval {
		return nil
	}
	glog.V(2).Infof("Index %s is %s old, reloading", r.idx.opts.Dir, now.Sub(r.last))
	if err := r.idx.Reload(ctx); err != nil {
		return err
	}
	r.last = now
	return nil
}

func (r *Reloading) Insert(ctx context.Context, e mapper.Element) (int, error) {
	if err := r.refresh(ctx); err != nil {
		return mapper.NotFound, err
	}
	return r.idx.Insert(ctx, e)
}

func (r *Reloading) Remove(ctx context.Context, e mapper.Element) (bool, error) {
	if err := r.refresh(ctx); err != nil {
		return false, err
	}
	return r.idx.Remove(ctx, e)
}

func (r *Reloading) RemoveID(ctx context.Context, id int, env types.Envelope) (bool, error) {
	if err := r.refresh(ctx); err != nil {
		return false, err
	}
	return r.idx.RemoveID(ctx, id, env)
}

func (r *Reloading) SearchID(ctx context.Context, env types.Envelope) ([]int, error) {
	if err := r.refresh(ctx); err != nil {
		return nil, err
	}
	return r.idx.SearchID(ctx, env)
}

func (r *Reloading) Search(ctx context.Context, env types.Envelope) (*Iterator, error) {
	if err := r.refresh(ctx); err != nil {
		return nil, err
	}
	return r.idx.Search(ctx, env)
}

func (r *Reloading) SearchElements(ctx context.Context, env types.Envelope) (map[int]mapper.Element, error) {
	if err := r.refresh(ctx); err != nil {
		return nil, err
	}
	return r.idx.SearchElements(ctx, env)
}

func (r *Reloading) Len(ctx context.Context) (int, error) {
	if err := r.refresh(ctx); err != nil {
		return 0, err
	}
	return r.idx.Len(), nil
}

func (r *Reloading) Flush(ctx context.Context) error { return r.idx.Flush(ctx) }

func (r *Reloading) Close() error { return r.idx.Close() }

func (r *Reloading) IsClosed() bool { return r.idx.IsClosed() }
