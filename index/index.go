/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

// Package index is a persistent R*-tree over mapped elements. The tree lives
// in memory and is saved to <dir>/tree.idx; the elements themselves are kept
// by an ElementMapper.
package index

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"go.opencensus.io/stats"
	"golang.org/x/sync/errgroup"

	"github.com/hypermodeinc/dggrs/mapper"
	"github.com/hypermodeinc/dggrs/rtree"
	"github.com/hypermodeinc/dggrs/types"
	"github.com/hypermodeinc/dggrs/x"
)

// TreeFile is the name of the tree state file inside the index directory.
const TreeFile = "tree.idx"

// Options configure an Index.
type Options struct {
	// Dir holds the tree state file.
	Dir string
	// Policy bounds the fan-out of the tree. Only used for a new tree.
	Policy rtree.Policy
	// SyncWrites flushes the tree and the mapper after every mutation.
	SyncWrites bool
}

// DefaultOptions returns options for an index stored in dir.
func DefaultOptions(dir string) Options {
	return Options{Dir: dir, Policy: rtree.DefaultPolicy()}
}

// Index is a handle on a persistent tree. Operations are serialized.
type Index struct {
	sync.Mutex
	opts   Options
	file   string
	mapper mapper.ElementMapper
	tree   *rtree.Tree
	nextID int
	dirty  bool
	closed bool
	// generation counts tree replacements by Reload.
	generation uint64
}

// Stats describe the shape of an index.
type Stats struct {
	Elements int
	Height   int
	Nodes    int
	NextID   int
	Bounds   types.Envelope
}

// Open opens the index stored in opts.Dir. If no tree file exists the tree
// is rebuilt from the records of m.
func Open(ctx context.Context, opts Options, m mapper.ElementMapper) (*Index, error) {
	if opts.Dir == "" {
		return nil, x.Invalidf("index directory is empty")
	}
	if m == nil {
		return nil, x.Invalidf("index needs an element mapper")
	}
	if opts.Policy == (rtree.Policy{}) {
		opts.Policy = rtree.DefaultPolicy()
	}
	if _, err := rtree.NewPolicy(opts.Policy.MinEntries, opts.Policy.MaxEntries); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Dir, 0700); err != nil {
		return nil, x.StoreErr(err, "create %s", opts.Dir)
	}
	idx := &Index{opts: opts, file: filepath.Join(opts.Dir, TreeFile), mapper: m}

	tree, next, err := idx.readState()
	if err != nil {
		return nil, err
	}
	if tree == nil {
		if tree, next, err = idx.rebuild(ctx); err != nil {
			return nil, err
		}
		idx.dirty = tree.Len() > 0
	}
	idx.tree, idx.nextID = tree, next
	glog.Infof("Opened index %s: %d elements, height %d", opts.Dir, tree.Len(), tree.Height())
	return idx, nil
}

// readState loads the tree file. It returns a nil tree if there is none.
func (idx *Index) readState() (*rtree.Tree, int, error) {
	data, err := x.ReadFileIfExists(idx.file)
	if err != nil {
		return nil, 0, x.StoreErr(err, "read %s", idx.file)
	}
	if data == nil {
		return nil, 0, nil
	}
	next, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, 0, x.StoreErr(errors.Wrap(rtree.ErrCorrupt, "next id"), "decode %s", idx.file)
	}
	tree := &rtree.Tree{}
	if err := tree.UnmarshalBinary(data[n:]); err != nil {
		return nil, 0, x.StoreErr(err, "decode %s", idx.file)
	}
	return tree, int(next), nil
}

// rebuild creates a tree holding every record of the mapper.
func (idx *Index) rebuild(ctx context.Context) (*rtree.Tree, int, error) {
	all, err := idx.mapper.FullMap(ctx)
	if err != nil {
		return nil, 0, err
	}
	return idx.buildTree(all)
}

// buildTree creates a tree holding records.
func (idx *Index) buildTree(records map[int]mapper.Element) (*rtree.Tree, int, error) {
	tree, err := rtree.New(idx.opts.Policy)
	if err != nil {
		return nil, 0, err
	}
	next := 0
	for id, e := range records {
		if err := tree.Insert(idx.mapper.Envelope(e), id); err != nil {
			return nil, 0, errors.Wrapf(err, "while rebuilding element %q", e.Identifier)
		}
		if id >= next {
			next = id + 1
		}
	}
	if len(records) > 0 {
		glog.Infof("Rebuilt index %s from %d mapped elements", idx.opts.Dir, len(records))
	}
	return tree, next, nil
}

func (idx *Index) checkOpen() error {
	if idx.closed {
		return errors.Wrapf(x.ErrClosed, "index %s", idx.opts.Dir)
	}
	return nil
}

// Insert adds e and returns its tree identifier. An element whose
// identifier is already indexed is moved to its new envelope and keeps its
// tree identifier.
func (idx *Index) Insert(ctx context.Context, e mapper.Element) (id int, err error) {
	start := time.Now()
	defer func() { x.RecordOp(ctx, "index.insert", start, err) }()

	idx.Lock()
	defer idx.Unlock()
	if err := idx.checkOpen(); err != nil {
		return mapper.NotFound, err
	}
	env := idx.mapper.Envelope(e)
	if !env.Valid() {
		return mapper.NotFound, x.Invalidf("envelope %s of element %q", env, e.Identifier)
	}

	id, err = idx.mapper.TreeIdentifier(ctx, e)
	if err != nil {
		return mapper.NotFound, err
	}
	var old *mapper.Element
	if id != mapper.NotFound {
		if old, err = idx.mapper.ObjectFromTreeIdentifier(ctx, id); err != nil {
			return mapper.NotFound, err
		}
		if old != nil && !idx.tree.Remove(idx.mapper.Envelope(*old), id) {
			glog.Warningf("Element %q (%d) was mapped but not in the tree", e.Identifier, id)
			old = nil
		}
	} else {
		id = idx.nextID
		idx.nextID++
	}
	if err := idx.tree.Insert(env, id); err != nil {
		return mapper.NotFound, err
	}
	if err := idx.mapper.SetTreeIdentifier(ctx, &e, id); err != nil {
		idx.tree.Remove(env, id)
		if old != nil {
			x.Check(idx.tree.Insert(idx.mapper.Envelope(*old), id))
		}
		return mapper.NotFound, err
	}
	return id, idx.afterWrite(ctx)
}

// Remove deletes the element with the identifier of e. It reports whether
// the element was indexed.
func (idx *Index) Remove(ctx context.Context, e mapper.Element) (ok bool, err error) {
	start := time.Now()
	defer func() { x.RecordOp(ctx, "index.remove", start, err) }()

	idx.Lock()
	defer idx.Unlock()
	if err := idx.checkOpen(); err != nil {
		return false, err
	}
	id, err := idx.mapper.TreeIdentifier(ctx, e)
	if err != nil || id == mapper.NotFound {
		return false, err
	}
	env := idx.mapper.Envelope(e)
	old, err := idx.mapper.ObjectFromTreeIdentifier(ctx, id)
	if err != nil {
		return false, err
	}
	if old != nil {
		env = idx.mapper.Envelope(*old)
	}
	return idx.removeID(ctx, id, env)
}

// RemoveID deletes the element stored under id with envelope env.
func (idx *Index) RemoveID(ctx context.Context, id int, env types.Envelope) (ok bool, err error) {
	start := time.Now()
	defer func() { x.RecordOp(ctx, "index.remove_id", start, err) }()

	idx.Lock()
	defer idx.Unlock()
	if err := idx.checkOpen(); err != nil {
		return false, err
	}
	return idx.removeID(ctx, id, env)
}

func (idx *Index) removeID(ctx context.Context, id int, env types.Envelope) (bool, error) {
	removed := idx.tree.Remove(env, id)
	if err := idx.mapper.SetTreeIdentifier(ctx, nil, id); err != nil {
		if removed {
			x.Check(idx.tree.Insert(env, id))
		}
		return false, err
	}
	return removed, idx.afterWrite(ctx)
}

func (idx *Index) afterWrite(ctx context.Context) error {
	idx.dirty = true
	stats.Record(ctx, x.IndexEntries.M(int64(idx.tree.Len())))
	if x.Config.DebugMode {
		if err := idx.tree.Check(); err != nil {
			return errors.Wrapf(err, "tree of index %s is broken", idx.opts.Dir)
		}
	}
	if idx.opts.SyncWrites {
		return idx.flush(ctx)
	}
	return nil
}

// SearchID returns the tree identifiers of the elements intersecting env.
func (idx *Index) SearchID(ctx context.Context, env types.Envelope) (ids []int, err error) {
	start := time.Now()
	defer func() { x.RecordOp(ctx, "index.search", start, err) }()

	idx.Lock()
	defer idx.Unlock()
	if err := idx.checkOpen(); err != nil {
		return nil, err
	}
	return idx.tree.SearchID(env), nil
}

// Search returns a lazy iterator over the tree identifiers of the elements
// intersecting env. The iterator fails with rtree.ErrModified if the index
// is written to or reloaded before it is drained.
func (idx *Index) Search(_ context.Context, env types.Envelope) (*Iterator, error) {
	idx.Lock()
	defer idx.Unlock()
	if err := idx.checkOpen(); err != nil {
		return nil, err
	}
	return &Iterator{idx: idx, it: idx.tree.Iter(env), generation: idx.generation}, nil
}

// SearchElements returns the mapped elements intersecting env, keyed by
// tree identifier.
func (idx *Index) SearchElements(ctx context.Context, env types.Envelope) (map[int]mapper.Element, error) {
	idx.Lock()
	defer idx.Unlock()
	if err := idx.checkOpen(); err != nil {
		return nil, err
	}
	out := make(map[int]mapper.Element)
	err := idx.tree.Search(env, func(id int) error {
		e, err := idx.mapper.ObjectFromTreeIdentifier(ctx, id)
		if err != nil {
			return err
		}
		if e == nil {
			return x.StoreErr(errors.Errorf("no record for element %d", id), "search %s", env)
		}
		out[id] = *e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Len returns the number of indexed elements.
func (idx *Index) Len() int {
	idx.Lock()
	defer idx.Unlock()
	return idx.tree.Len()
}

// Stats returns the current shape of the tree.
func (idx *Index) Stats() Stats {
	idx.Lock()
	defer idx.Unlock()
	return Stats{
		Elements: idx.tree.Len(),
		Height:   idx.tree.Height(),
		Nodes:    idx.tree.NumNodes(),
		NextID:   idx.nextID,
		Bounds:   idx.tree.Bounds(),
	}
}

// Flush persists the tree and flushes the mapper.
func (idx *Index) Flush(ctx context.Context) error {
	idx.Lock()
	defer idx.Unlock()
	if err := idx.checkOpen(); err != nil {
		return err
	}
	return idx.flush(ctx)
}

func (idx *Index) flush(ctx context.Context) error {
	if idx.dirty {
		data, err := idx.tree.MarshalBinary()
		if err != nil {
			return err
		}
		state := binary.AppendUvarint(make([]byte, 0, len(data)+binary.MaxVarintLen64), uint64(idx.nextID))
		state = append(state, data...)
		if err := x.WriteFileAtomic(idx.file, state, 0600); err != nil {
			return x.StoreErr(err, "write %s", idx.file)
		}
		idx.dirty = false
	}
	return idx.mapper.Flush(ctx)
}

// Reload replaces the in-memory state by what is stored, picking up the
// writes of other handles. Unflushed local changes are lost. The tree file
// and the mapper records are both read before anything is replaced: on error
// the current state is kept.
func (idx *Index) Reload(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { x.RecordOp(ctx, "index.reload", start, err) }()

	idx.Lock()
	defer idx.Unlock()
	if err := idx.checkOpen(); err != nil {
		return err
	}

	var tree *rtree.Tree
	var next int
	var records map[int]mapper.Element
	r, reloads := idx.mapper.(mapper.Reloader)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tree, next, err = idx.readState()
		return err
	})
	if reloads {
		g.Go(func() error {
			var err error
			records, err = r.LoadStored(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrapf(err, "while reloading index %s", idx.opts.Dir)
	}

	dirty := false
	if tree == nil {
		if !reloads {
			records, err = idx.mapper.FullMap(ctx)
			if err != nil {
				return errors.Wrapf(err, "while reloading index %s", idx.opts.Dir)
			}
		}
		if tree, next, err = idx.buildTree(records); err != nil {
			return errors.Wrapf(err, "while reloading index %s", idx.opts.Dir)
		}
		dirty = tree.Len() > 0
	}
	if reloads {
		if err := r.Install(records); err != nil {
			return errors.Wrapf(err, "while reloading index %s", idx.opts.Dir)
		}
	}
	idx.tree, idx.nextID, idx.dirty = tree, next, dirty
	idx.generation++
	stats.Record(ctx, x.NumIndexReloads.M(1), x.IndexEntries.M(int64(tree.Len())))
	glog.V(2).Infof("Reloaded index %s: %d elements", idx.opts.Dir, tree.Len())
	return nil
}

// Close flushes the index and closes its mapper.
func (idx *Index) Close() error {
	idx.Lock()
	defer idx.Unlock()
	if idx.closed {
		return nil
	}
	err := idx.flush(context.Background())
	if cerr := idx.mapper.Close(); err == nil {
		err = cerr
	}
	idx.closed = true
	glog.Infof("Closed index %s", idx.opts.Dir)
	return err
}

// IsClosed reports whether Close was called.
func (idx *Index) IsClosed() bool {
	idx.Lock()
	defer idx.Unlock()
	return idx.closed
}
