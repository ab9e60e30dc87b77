/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package geo

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/hypermodeinc/dggrs/cellid"
	"github.com/hypermodeinc/dggrs/types"
	"github.com/hypermodeinc/dggrs/x"
)

func collectIDs(t *testing.T, it *ZoneIterator) map[cellid.CellID]struct{} {
	zones, err := CollectZones(it)
	require.NoError(t, err)
	out := make(map[cellid.CellID]struct{}, len(zones))
	for _, z := range zones {
		_, dup := out[z.ID]
		require.False(t, dup, "zone %s returned twice", z)
		out[z.ID] = struct{}{}
	}
	return out
}

func TestSearchWithoutFilter(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	it, err := e.Search(ctx, nil, 0)
	require.NoError(t, err)
	roots := collectIDs(t, it)
	require.Len(t, roots, cellid.NumBaseCells)

	it, err = e.Search(ctx, nil, 1)
	require.NoError(t, err)
	require.Len(t, collectIDs(t, it), cellid.NumBaseCells*7-12)
}

func TestSearchEnvelope(t *testing.T) {
	e := newEngine(t)
	env := types.NewEnvelope(-122.6, 37.6, -122.2, 37.9)
	it, err := e.Search(context.Background(), EnvelopeQuery(env), 5)
	require.NoError(t, err)
	got := collectIDs(t, it)
	require.NotEmpty(t, got)

	// Every sampled point of the box falls in a returned zone.
	for lng := env.MinX; lng <= env.MaxX; lng += 0.05 {
		for lat := env.MinY; lat <= env.MaxY; lat += 0.05 {
			z, err := e.Encode(Position{X: lng, Y: lat}, 5)
			require.NoError(t, err)
			_, ok := got[z.ID]
			require.True(t, ok, "zone %s of (%v, %v) missing", z, lat, lng)
		}
	}

	// Every returned zone touches the box.
	for id := range got {
		z, err := e.Zone(id)
		require.NoError(t, err)
		zenv, err := z.Envelope()
		require.NoError(t, err)
		require.True(t, zenv.Intersects(env), z.String())
	}
}

func TestSearchPointEnvelope(t *testing.T) {
	e := newEngine(t)
	it, err := e.Search(context.Background(),
		EnvelopeQuery(types.PointEnvelope(sanFrancisco.X, sanFrancisco.Y)), 9)
	require.NoError(t, err)
	got := collectIDs(t, it)
	want, err := e.Encode(sanFrancisco, 9)
	require.NoError(t, err)
	_, ok := got[want.ID]
	require.True(t, ok)
}

func TestSearchPolygon(t *testing.T) {
	e := newEngine(t)
	// Clockwise on purpose, the loop is reoriented.
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{-122.5, 37.7}, {-122.3, 37.85}, {-122.1, 37.7}, {-122.5, 37.7},
	}})
	it, err := e.Search(context.Background(), PolygonQuery(poly), 6)
	require.NoError(t, err)
	got := collectIDs(t, it)

	for _, p := range []Position{
		{X: -122.3, Y: 37.75}, {X: -122.45, Y: 37.71}, {X: -122.15, Y: 37.71}, {X: -122.3, Y: 37.84},
	} {
		z, err := e.Encode(p, 6)
		require.NoError(t, err)
		_, ok := got[z.ID]
		require.True(t, ok, "zone of %v missing", p)
	}

	far, err := e.Encode(Position{X: 2.35, Y: 48.85}, 6)
	require.NoError(t, err)
	_, ok := got[far.ID]
	require.False(t, ok)

	box, err := e.Search(context.Background(), EnvelopeQuery(types.Geo{T: poly}.Envelope()), 6)
	require.NoError(t, err)
	boxed := collectIDs(t, box)
	for id := range got {
		_, ok := boxed[id]
		require.True(t, ok, "polygon match %s outside its bounding box search", id)
	}
}

func TestSearchAntimeridian(t *testing.T) {
	e := newEngine(t)
	env := types.NewEnvelope(179.5, -1, 180, 1)
	it, err := e.Search(context.Background(), EnvelopeQuery(env), 3)
	require.NoError(t, err)
	got := collectIDs(t, it)
	for _, p := range []Position{{X: 179.9, Y: 0}, {X: 179.6, Y: 0.9}} {
		z, err := e.Encode(p, 3)
		require.NoError(t, err)
		_, ok := got[z.ID]
		require.True(t, ok, "zone of %v missing", p)
	}
}

func TestSearchRejects(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.Search(ctx, nil, 16)
	require.True(t, errors.Is(err, x.ErrInvalidArgument))

	_, err = e.Search(ctx, EnvelopeQuery(types.NewEnvelope(0, 0, 10, 95)), 2)
	require.True(t, errors.Is(err, x.ErrInvalidArgument))

	_, err = e.Search(ctx, &Query{}, 2)
	require.True(t, errors.Is(err, x.ErrInvalidArgument))

	tri := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {1, 1}, {0, 0}}})
	_, err = e.Search(ctx, PolygonQuery(tri), 2)
	require.True(t, errors.Is(err, x.ErrInvalidArgument))
}

func TestSearchCancelled(t *testing.T) {
	e := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	it, err := e.Search(ctx, nil, 4)
	require.NoError(t, err)

	require.True(t, it.Next())
	cancel()
	require.False(t, it.Next())
	require.True(t, errors.Is(it.Err(), context.Canceled))
	require.False(t, it.Next())
}

func TestSearchMatchesBruteForce(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	r := rand.New(rand.NewSource(7))
	for _, level := range []int{2, 3} {
		it, err := e.Search(ctx, nil, level)
		require.NoError(t, err)
		all := collectIDs(t, it)

		for i := 0; i < 6; i++ {
			lng, lat := r.Float64()*320-170, r.Float64()*160-80
			env := types.NewEnvelope(lng, lat, lng+r.Float64()*20, math.Min(lat+r.Float64()*10, 90))
			q, err := compileQuery(EnvelopeQuery(env))
			require.NoError(t, err)
			want := make(map[cellid.CellID]struct{})
			for c := range all {
				g, err := e.geometry(c)
				require.NoError(t, err)
				if q.matches(g) {
					want[c] = struct{}{}
				}
			}

			it, err := e.Search(ctx, EnvelopeQuery(env), level)
			require.NoError(t, err)
			require.Equal(t, want, collectIDs(t, it), "level %d, box %s", level, env)
		}
	}
}
