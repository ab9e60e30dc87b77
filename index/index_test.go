/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package index

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/hypermodeinc/dggrs/mapper"
	"github.com/hypermodeinc/dggrs/rtree"
	"github.com/hypermodeinc/dggrs/types"
	"github.com/hypermodeinc/dggrs/x"
)

var world = types.Envelope{MinX: -180, MaxX: 180, MinY: -90, MaxY: 90}

func openBlobIndex(t *testing.T, dir string, sync bool) *Index {
	m, err := mapper.OpenBlob(dir)
	require.NoError(t, err)
	opts := DefaultOptions(dir)
	opts.SyncWrites = sync
	idx, err := Open(context.Background(), opts, m)
	require.NoError(t, err)
	return idx
}

func element(name string, lng, lat float64) mapper.Element {
	return mapper.Element{
		Identifier: name,
		NbEnv:      1,
		Envelope:   types.Envelope{MinX: lng, MaxX: lng + 0.5, MinY: lat, MaxY: lat + 0.5},
	}
}

func sortedIDs(ids []int) []int {
	sort.Ints(ids)
	return ids
}

func TestInsertSearchRemove(t *testing.T) {
	ctx := context.Background()
	idx := openBlobIndex(t, t.TempDir(), false)
	defer func() { require.NoError(t, idx.Close()) }()

	paris, err := idx.Insert(ctx, element("paris", 2.35, 48.85))
	require.NoError(t, err)
	sf, err := idx.Insert(ctx, element("sf", -122.42, 37.77))
	require.NoError(t, err)
	require.NotEqual(t, paris, sf)
	require.Equal(t, 2, idx.Len())

	ids, err := idx.SearchID(ctx, types.Envelope{MinX: 0, MaxX: 10, MinY: 40, MaxY: 50})
	require.NoError(t, err)
	require.Equal(t, []int{paris}, ids)

	ids, err = idx.SearchID(ctx, world)
	require.NoError(t, err)
	require.Equal(t, sortedIDs([]int{paris, sf}), sortedIDs(ids))

	elems, err := idx.SearchElements(ctx, world)
	require.NoError(t, err)
	require.Equal(t, "sf", elems[sf].Identifier)

	ok, err := idx.Remove(ctx, mapper.Element{Identifier: "paris"})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = idx.Remove(ctx, mapper.Element{Identifier: "paris"})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = idx.RemoveID(ctx, sf, element("sf", -122.42, 37.77).Envelope)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, idx.Len())
}

func TestReinsertKeepsID(t *testing.T) {
	ctx := context.Background()
	idx := openBlobIndex(t, t.TempDir(), false)
	defer func() { require.NoError(t, idx.Close()) }()

	id, err := idx.Insert(ctx, element("ship", 10, 10))
	require.NoError(t, err)
	again, err := idx.Insert(ctx, element("ship", -40, -20))
	require.NoError(t, err)
	require.Equal(t, id, again)
	require.Equal(t, 1, idx.Len())

	ids, err := idx.SearchID(ctx, types.PointEnvelope(10.2, 10.2))
	require.NoError(t, err)
	require.Empty(t, ids)
	ids, err = idx.SearchID(ctx, types.PointEnvelope(-39.8, -19.8))
	require.NoError(t, err)
	require.Equal(t, []int{id}, ids)
}

func TestInsertRejectsInvalidEnvelope(t *testing.T) {
	idx := openBlobIndex(t, t.TempDir(), false)
	defer func() { require.NoError(t, idx.Close()) }()
	_, err := idx.Insert(context.Background(), mapper.Element{
		Identifier: "bad",
		Envelope:   types.Envelope{MinX: 1, MaxX: 0, MinY: 0, MaxY: 1},
	})
	require.True(t, errors.Is(err, x.ErrInvalidArgument))
	require.Equal(t, 0, idx.Len())
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx := openBlobIndex(t, dir, false)
	rnd := rand.New(rand.NewSource(1))
	want := make(map[string]int)
	for i := 0; i < 500; i++ {
		name := fmt.Sprintf("e%d", i)
		id, err := idx.Insert(ctx, element(name, rnd.Float64()*300-150, rnd.Float64()*160-80))
		require.NoError(t, err)
		want[name] = id
	}
	for i := 0; i < 500; i += 5 {
		ok, err := idx.Remove(ctx, mapper.Element{Identifier: fmt.Sprintf("e%d", i)})
		require.NoError(t, err)
		require.True(t, ok)
	}
	before, err := idx.SearchID(ctx, world)
	require.NoError(t, err)
	stats := idx.Stats()
	require.NoError(t, idx.Close())
	require.True(t, idx.IsClosed())

	idx = openBlobIndex(t, dir, false)
	defer func() { require.NoError(t, idx.Close()) }()
	after, err := idx.SearchID(ctx, world)
	require.NoError(t, err)
	require.Equal(t, sortedIDs(before), sortedIDs(after))
	require.Equal(t, stats, idx.Stats())

	// New elements do not reuse identifiers.
	id, err := idx.Insert(ctx, element("new", 0, 0))
	require.NoError(t, err)
	require.Equal(t, 500, id)
}

func TestRebuildFromMapper(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx := openBlobIndex(t, dir, false)
	for i := 0; i < 30; i++ {
		_, err := idx.Insert(ctx, element(fmt.Sprintf("e%d", i), float64(i), float64(i)))
		require.NoError(t, err)
	}
	require.NoError(t, idx.Close())
	require.NoError(t, os.Remove(filepath.Join(dir, TreeFile)))

	idx = openBlobIndex(t, dir, false)
	defer func() { require.NoError(t, idx.Close()) }()
	require.Equal(t, 30, idx.Len())
	ids, err := idx.SearchID(ctx, types.PointEnvelope(3.1, 3.1))
	require.NoError(t, err)
	require.Len(t, ids, 1)
	require.Equal(t, 30, idx.Stats().NextID)
}

func TestSyncWrites(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx := openBlobIndex(t, dir, true)
	defer func() { require.NoError(t, idx.Close()) }()

	_, err := os.Stat(filepath.Join(dir, TreeFile))
	require.True(t, os.IsNotExist(err))
	_, err = idx.Insert(ctx, element("a", 1, 1))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, TreeFile))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, mapper.BlobFile))
	require.NoError(t, err)
}

func TestCorruptTreeFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, TreeFile), []byte{3, 'D', 'G', 'R', 'T', 1, 0}, 0600))
	m, err := mapper.OpenBlob(dir)
	require.NoError(t, err)
	_, err = Open(context.Background(), DefaultOptions(dir), m)
	require.Error(t, err)
	require.True(t, errors.Is(err, x.ErrStoreIndex))
	require.True(t, errors.Is(err, rtree.ErrCorrupt))
}

func TestClosedIndex(t *testing.T) {
	ctx := context.Background()
	idx := openBlobIndex(t, t.TempDir(), false)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	_, err := idx.Insert(ctx, element("a", 0, 0))
	require.True(t, errors.Is(err, x.ErrClosed))
	_, err = idx.Remove(ctx, element("a", 0, 0))
	require.True(t, errors.Is(err, x.ErrClosed))
	_, err = idx.SearchID(ctx, world)
	require.True(t, errors.Is(err, x.ErrClosed))
	_, err = idx.Search(ctx, world)
	require.True(t, errors.Is(err, x.ErrClosed))
	require.True(t, errors.Is(idx.Flush(ctx), x.ErrClosed))
	require.True(t, errors.Is(idx.Reload(ctx), x.ErrClosed))
}

func TestOpenRejects(t *testing.T) {
	ctx := context.Background()
	m, err := mapper.OpenBlob(t.TempDir())
	require.NoError(t, err)
	_, err = Open(ctx, Options{}, m)
	require.True(t, errors.Is(err, x.ErrInvalidArgument))
	_, err = Open(ctx, DefaultOptions(t.TempDir()), nil)
	require.True(t, errors.Is(err, x.ErrInvalidArgument))
	_, err = Open(ctx, Options{Dir: t.TempDir(), Policy: rtree.Policy{MinEntries: 9, MaxEntries: 10}}, m)
	require.True(t, errors.Is(err, x.ErrInvalidArgument))
}

func TestSearchIteratorInvalidatedByWrite(t *testing.T) {
	ctx := context.Background()
	idx := openBlobIndex(t, t.TempDir(), false)
	defer func() { require.NoError(t, idx.Close()) }()
	for i := 0; i < 10; i++ {
		_, err := idx.Insert(ctx, element(fmt.Sprintf("e%d", i), float64(i), 0))
		require.NoError(t, err)
	}
	it, err := idx.Search(ctx, world)
	require.NoError(t, err)
	require.True(t, it.Next())
	_, err = idx.Insert(ctx, element("late", 50, 0))
	require.NoError(t, err)
	require.False(t, it.Next())
	require.Equal(t, rtree.ErrModified, it.Err())
}

func TestBadgerBackedIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m, err := mapper.Open(ctx, mapper.Config{Kind: mapper.KindBadger, Path: dir})
	require.NoError(t, err)
	idx, err := Open(ctx, DefaultOptions(dir), m)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		_, err := idx.Insert(ctx, element(fmt.Sprintf("e%d", i), float64(i%50), float64(i/50)))
		require.NoError(t, err)
	}
	elems, err := idx.SearchElements(ctx, types.Envelope{MinX: 0, MaxX: 0.1, MinY: 0, MaxY: 1.1})
	require.NoError(t, err)
	require.Len(t, elems, 2)
	require.NoError(t, idx.Close())

	m, err = mapper.Open(ctx, mapper.Config{Kind: mapper.KindBadger, Path: dir})
	require.NoError(t, err)
	idx, err = Open(ctx, DefaultOptions(dir), m)
	require.NoError(t, err)
	require.Equal(t, 100, idx.Len())
	require.NoError(t, idx.Close())
}

func TestDebugModeChecksTree(t *testing.T) {
	x.Config.DebugMode = true
	defer func() { x.Config.DebugMode = false }()

	ctx := context.Background()
	idx := openBlobIndex(t, t.TempDir(), false)
	defer func() { require.NoError(t, idx.Close()) }()
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		_, err := idx.Insert(ctx, element(fmt.Sprintf("e%d", i%120), rnd.Float64()*100, rnd.Float64()*60))
		require.NoError(t, err)
	}
	for i := 0; i < 120; i += 3 {
		_, err := idx.Remove(ctx, mapper.Element{Identifier: fmt.Sprintf("e%d", i)})
		require.NoError(t, err)
	}
	require.Equal(t, 80, idx.Len())
}

// failingMapper fails SetTreeIdentifier once fail is set.
type failingMapper struct {
	mapper.ElementMapper
	fail bool
}

var errMapperDown = errors.New("mapper down")

func (m *failingMapper) SetTreeIdentifier(ctx context.Context, e *mapper.Element, id int) error {
	if m.fail {
		return x.StoreErr(errMapperDown, "set record %d", id)
	}
	return m.ElementMapper.SetTreeIdentifier(ctx, e, id)
}

func TestRemoveRollsBackOnMapperFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blob, err := mapper.OpenBlob(dir)
	require.NoError(t, err)
	m := &failingMapper{ElementMapper: blob}
	idx, err := Open(ctx, DefaultOptions(dir), m)
	require.NoError(t, err)
	defer func() { require.NoError(t, idx.Close()) }()

	e := element("quay", 3, 3)
	id, err := idx.Insert(ctx, e)
	require.NoError(t, err)

	m.fail = true
	ok, err := idx.RemoveID(ctx, id, e.Envelope)
	require.True(t, errors.Is(err, errMapperDown))
	require.False(t, ok)
	ok, err = idx.Remove(ctx, mapper.Element{Identifier: "quay"})
	require.True(t, errors.Is(err, errMapperDown))
	require.False(t, ok)
	require.Equal(t, 1, idx.Len())
	require.NoError(t, idx.tree.Check())

	m.fail = false
	elems, err := idx.SearchElements(ctx, world)
	require.NoError(t, err)
	require.Equal(t, "quay", elems[id].Identifier)
	ok, err = idx.RemoveID(ctx, id, e.Envelope)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, idx.Len())
}
