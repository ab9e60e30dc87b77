/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package geo

import (
	"context"
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/golang/glog"
	"github.com/twpayne/go-geom"
	"go.opencensus.io/stats"

	"github.com/hypermodeinc/dggrs/cellid"
	"github.com/hypermodeinc/dggrs/types"
	"github.com/hypermodeinc/dggrs/x"
)

// Query is the spatial filter of a zone search. Exactly one of Envelope and
// Polygon is set. Polygon holes are ignored.
type Query struct {
	Envelope *types.Envelope
	Polygon  *geom.Polygon
}

// EnvelopeQuery filters zones by a longitude/latitude box.
func EnvelopeQuery(e types.Envelope) *Query {
	return &Query{Envelope: &e}
}

// PolygonQuery filters zones by a polygon in longitude/latitude.
func PolygonQuery(p *geom.Polygon) *Query {
	return &Query{Polygon: p}
}

// GeoQuery filters by a polygon, or by the bounding box of any other geometry.
func GeoQuery(g types.Geo) *Query {
	if p, ok := g.Polygon(); ok {
		return PolygonQuery(p)
	}
	return EnvelopeQuery(g.Envelope())
}

func radians(deg float64) float64 {
	return (s1.Angle(deg) * s1.Degree).Radians()
}

type compiledQuery struct {
	bound s2.Rect
	loop  *s2.Loop
}

func compileQuery(q *Query) (*compiledQuery, error) {
	switch {
	case q == nil:
		return nil, nil
	case q.Envelope != nil && q.Polygon != nil:
		return nil, x.Invalidf("query has both an envelope and a polygon")
	case q.Envelope != nil:
		e := *q.Envelope
		if !e.Valid() || e.MinY < -90 || e.MaxY > 90 || e.MinX < -180 || e.MaxX > 180 {
			return nil, x.Invalidf("envelope %s is not a valid lng/lat box", e)
		}
		lng := s1.IntervalFromEndpoints(radians(e.MinX), radians(e.MaxX))
		if e.MinX == -180 && e.MaxX == 180 {
			lng = s1.FullInterval()
		}
		return &compiledQuery{bound: s2.Rect{
			Lat: r1.Interval{Lo: radians(e.MinY), Hi: radians(e.MaxY)},
			Lng: lng,
		}}, nil
	case q.Polygon != nil:
		l, err := loopFromPolygon(q.Polygon)
		if err != nil {
			return nil, err
		}
		return &compiledQuery{bound: l.RectBound(), loop: l}, nil
	default:
		return nil, x.Invalidf("query has neither an envelope nor a polygon")
	}
}

// matches is the final test at the target level. Envelopes are compared with
// the cell's bounding rectangle, polygons with the cell's boundary loop.
func (q *compiledQuery) matches(g *cellGeometry) bool {
	if !g.rect.Intersects(q.bound) {
		return false
	}
	if q.loop == nil {
		return true
	}
	return g.loop.Intersects(q.loop)
}

var validLat = r1.Interval{Lo: -math.Pi / 2, Hi: math.Pi / 2}

// mayContain reports whether any descendant of the cell can match. Children
// stick out of their parent's boundary, so the cell's rectangle is grown by
// half its size on every side before testing.
func (q *compiledQuery) mayContain(g *cellGeometry) bool {
	grown := s2.Rect{
		Lat: g.rect.Lat.Expanded(g.rect.Lat.Length() / 2).Intersection(validLat),
		Lng: g.rect.Lng.Expanded(g.rect.Lng.Length() / 2),
	}
	return grown.PolarClosure().Intersects(q.bound)
}

// ZoneIterator lazily walks the zones matched by a search, depth first from
// the base cells. It is not safe for concurrent use.
type ZoneIterator struct {
	ctx    context.Context
	eng    *Engine
	q      *compiledQuery
	target int

	stack   []cellid.CellID
	cur     cellid.CellID
	err     error
	visited int64
	done    bool
}

// Search returns the zones at level that intersect q. A nil q matches
// everything; at level 0 that is the root set itself. ctx is checked before
// every step of the walk.
func (e *Engine) Search(ctx context.Context, q *Query, level int) (*ZoneIterator, error) {
	if err := e.checkLevel(level); err != nil {
		return nil, err
	}
	cq, err := compileQuery(q)
	if err != nil {
		return nil, err
	}
	stack := make([]cellid.CellID, 0, len(e.roots)+6*level)
	for i := len(e.roots) - 1; i >= 0; i-- {
		stack = append(stack, e.roots[i])
	}
	return &ZoneIterator{
		ctx:    ctx,
		eng:    e,
		q:      cq,
		target: level,
		stack:  stack,
	}, nil
}

// Next advances to the next matching zone. It returns false when the walk is
// over, failed or was cancelled; check Err.
func (it *ZoneIterator) Next() bool {
	for !it.done {
		if err := it.ctx.Err(); err != nil {
			it.err = err
			it.finish()
			return false
		}
		if len(it.stack) == 0 {
			it.finish()
			return false
		}
		c := it.stack[len(it.stack)-1]
		it.stack = it.stack[:len(it.stack)-1]
		it.visited++

		atTarget := c.Resolution() == it.target
		if it.q != nil {
			g, err := it.eng.geometry(c)
			if err != nil {
				it.err = err
				it.finish()
				return false
			}
			if atTarget && !it.q.matches(g) {
				continue
			}
			if !atTarget && !it.q.mayContain(g) {
				continue
			}
		}
		if atTarget {
			it.cur = c
			return true
		}
		children := c.Children()
		for i := len(children) - 1; i >= 0; i-- {
			it.stack = append(it.stack, children[i])
		}
	}
	return false
}

func (it *ZoneIterator) finish() {
	if it.done {
		return
	}
	it.done = true
	it.stack = nil
	stats.Record(it.ctx, x.NumSearchCells.M(it.visited))
	glog.V(2).Infof("Zone search at level %d visited %d cells", it.target, it.visited)
}

// Zone returns the current zone.
func (it *ZoneIterator) Zone() Zone { return Zone{ID: it.cur, eng: it.eng} }

// Err returns the error that stopped the walk, if any.
func (it *ZoneIterator) Err() error { return it.err }

// CollectZones drains it.
func CollectZones(it *ZoneIterator) ([]Zone, error) {
	var out []Zone
	for it.Next() {
		out = append(out, it.Zone())
	}
	return out, it.Err()
}
