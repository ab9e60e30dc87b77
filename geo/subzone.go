/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package geo

import (
	"context"

	"github.com/golang/glog"
	"go.opencensus.io/stats"

	"github.com/hypermodeinc/dggrs/cellid"
	"github.com/hypermodeinc/dggrs/x"
)

const (
	// vertexNudge moves each tested vertex towards the candidate's centroid so
	// that it does not sit on a shared edge.
	vertexNudge = 0.01
	// subZoneRings is how many rings around the center child are searched.
	subZoneRings = 2
)

// ZoneHasSubZone reports whether candidate lies geometrically inside ancestor.
// It holds as soon as one boundary vertex of candidate, nudged towards the
// candidate's centroid, encodes to ancestor.
func (e *Engine) ZoneHasSubZone(ancestor, candidate Zone) (bool, error) {
	return e.hasSubZone(ancestor.ID, candidate.ID)
}

func (e *Engine) hasSubZone(ancestor, candidate cellid.CellID) (bool, error) {
	level := ancestor.Resolution()
	if candidate.Resolution() <= level {
		return false, nil
	}
	g, err := e.geometry(candidate)
	if err != nil {
		return false, err
	}
	for _, v := range g.boundary {
		p := Slerp(v, g.centroid, vertexNudge)
		c, err := latLngToCell(p, level)
		if err != nil {
			return false, err
		}
		if c == ancestor {
			return true, nil
		}
	}
	return false, nil
}

type subZoneSeed struct {
	cell     cellid.CellID
	filtered bool
}

// SubZoneIterator lazily walks the geometric sub-zones of an ancestor. It is
// not safe for concurrent use.
type SubZoneIterator struct {
	eng      *Engine
	ancestor cellid.CellID
	target   int
	seeds    []subZoneSeed

	nextSeed   int
	filtered   bool
	stack      []cellid.CellID
	cur        cellid.CellID
	err        error
	candidates int64
	done       bool
}

// GeometricSubZones returns the zones relativeDepth levels below ancestor
// that lie inside it. Every descendant of the ancestor's center child is
// yielded. Descendants of the two rings of cells around that center child
// are yielded when ZoneHasSubZone accepts them. Farther rings are never
// looked at.
func (e *Engine) GeometricSubZones(ancestor Zone, relativeDepth int) (*SubZoneIterator, error) {
	if relativeDepth < 1 {
		return nil, x.Invalidf("relative depth %d must be at least 1", relativeDepth)
	}
	target := ancestor.Level() + relativeDepth
	if target > e.cfg.MaxLevel {
		return nil, x.Invalidf("target level %d past max level %d", target, e.cfg.MaxLevel)
	}
	center, err := ancestor.ID.CenterChild(ancestor.Level() + 1)
	if err != nil {
		return nil, err
	}
	rings, err := gridDiskDistances(center, subZoneRings)
	if err != nil {
		return nil, err
	}
	seeds := []subZoneSeed{{cell: center}}
	for k := 1; k <= subZoneRings && k < len(rings); k++ {
		for _, c := range rings[k] {
			seeds = append(seeds, subZoneSeed{cell: c, filtered: true})
		}
	}
	return &SubZoneIterator{
		eng:      e,
		ancestor: ancestor.ID,
		target:   target,
		seeds:    seeds,
	}, nil
}

// Next advances to the next sub-zone. It returns false when the walk is over
// or failed; check Err.
func (it *SubZoneIterator) Next() bool {
	for !it.done {
		if len(it.stack) == 0 {
			if it.nextSeed == len(it.seeds) {
				it.finish()
				return false
			}
			s := it.seeds[it.nextSeed]
			it.nextSeed++
			it.filtered = s.filtered
			it.stack = append(it.stack, s.cell)
		}
		c := it.stack[len(it.stack)-1]
		it.stack = it.stack[:len(it.stack)-1]

		if c.Resolution() < it.target {
			children := c.Children()
			for i := len(children) - 1; i >= 0; i-- {
				it.stack = append(it.stack, children[i])
			}
			continue
		}
		if it.filtered {
			it.candidates++
			ok, err := it.eng.hasSubZone(it.ancestor, c)
			if err != nil {
				it.err = err
				it.finish()
				return false
			}
			if !ok {
				continue
			}
		}
		it.cur = c
		return true
	}
	return false
}

func (it *SubZoneIterator) finish() {
	if it.done {
		return
	}
	it.done = true
	it.stack = nil
	stats.Record(context.Background(), x.NumSubZoneCandidates.M(it.candidates))
	glog.V(2).Infof("Sub-zones of %s at level %d: tested %d ring candidates",
		it.ancestor, it.target, it.candidates)
}

// Cell returns the current sub-zone identifier.
func (it *SubZoneIterator) Cell() cellid.CellID { return it.cur }

// Zone returns the current sub-zone.
func (it *SubZoneIterator) Zone() Zone { return Zone{ID: it.cur, eng: it.eng} }

// Err returns the error that stopped the walk, if any.
func (it *SubZoneIterator) Err() error { return it.err }

// Reset rewinds the iterator to the first sub-zone.
func (it *SubZoneIterator) Reset() {
	it.nextSeed = 0
	it.stack = it.stack[:0]
	it.cur = cellid.Invalid
	it.err = nil
	it.candidates = 0
	it.done = false
}

// CollectSubZones drains it into a set.
func CollectSubZones(it *SubZoneIterator) (map[cellid.CellID]struct{}, error) {
	out := make(map[cellid.CellID]struct{})
	for it.Next() {
		out[it.Cell()] = struct{}{}
	}
	return out, it.Err()
}
