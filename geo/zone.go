/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package geo

import (
	"github.com/golang/geo/s1"
	"github.com/pkg/errors"

	"github.com/hypermodeinc/dggrs/cellid"
	"github.com/hypermodeinc/dggrs/types"
	"github.com/hypermodeinc/dggrs/x"
)

// Zone is a cell of the grid bound to the engine that produced it.
type Zone struct {
	ID  cellid.CellID
	eng *Engine
}

// Level returns the resolution of z.
func (z Zone) Level() int { return z.ID.Resolution() }

// IsPentagon reports whether z has five neighbours.
func (z Zone) IsPentagon() bool { return z.ID.IsPentagon() }

func (z Zone) String() string { return z.ID.String() }

func (z Zone) with(id cellid.CellID) Zone { return Zone{ID: id, eng: z.eng} }

// Parent returns the ancestor of z at level. Asking for a finer level fails
// with x.ErrOutOfRange.
func (z Zone) Parent(level int) (Zone, error) {
	p, err := z.ID.Parent(level)
	if err != nil {
		return Zone{}, err
	}
	return z.with(p), nil
}

// Children returns the direct children of z: 7 for hexagons, 6 for pentagons
// and none at the engine's max level.
func (z Zone) Children() []Zone {
	if z.Level() >= z.eng.cfg.MaxLevel {
		return nil
	}
	ids := z.ID.Children()
	out := make([]Zone, len(ids))
	for i, id := range ids {
		out[i] = z.with(id)
	}
	return out
}

// CenterChild returns the descendant of z at level sharing its center.
func (z Zone) CenterChild(level int) (Zone, error) {
	if level > z.eng.cfg.MaxLevel {
		return Zone{}, errors.Wrapf(x.ErrOutOfRange, "level %d past max level %d", level, z.eng.cfg.MaxLevel)
	}
	c, err := z.ID.CenterChild(level)
	if err != nil {
		return Zone{}, err
	}
	return z.with(c), nil
}

// Ring returns the zones exactly k grid steps away from z. Ring(0) is z
// itself. Near pentagons the ring may hold fewer cells; exact duplicates are
// dropped, keeping the first occurrence.
func (z Zone) Ring(k int) ([]Zone, error) {
	if k < 0 {
		return nil, x.Invalidf("ring distance %d is negative", k)
	}
	if k == 0 {
		return []Zone{z}, nil
	}
	rings, err := gridDiskDistances(z.ID, k)
	if err != nil {
		return nil, err
	}
	if len(rings) <= k {
		return nil, nil
	}
	seen := make(map[cellid.CellID]struct{}, len(rings[k]))
	out := make([]Zone, 0, len(rings[k]))
	for _, id := range rings[k] {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, z.with(id))
	}
	return out, nil
}

// Neighbors returns the zones sharing an edge with z.
func (z Zone) Neighbors() ([]Zone, error) {
	return z.Ring(1)
}

// Precision returns the average cell size at z's level, in meters.
func (z Zone) Precision() float64 {
	return z.eng.precision[z.Level()]
}

// Boundary returns the vertices of z in counter-clockwise order. The ring is
// not closed: the first vertex is not repeated.
func (z Zone) Boundary() ([]LatLng, error) {
	g, err := z.eng.geometry(z.ID)
	if err != nil {
		return nil, err
	}
	return append([]LatLng(nil), g.boundary...), nil
}

// Centroid returns the center of z.
func (z Zone) Centroid() (LatLng, error) {
	g, err := z.eng.geometry(z.ID)
	if err != nil {
		return LatLng{}, err
	}
	return g.centroid, nil
}

// Envelope returns the longitude/latitude bounding box of z. Zones crossing
// the antimeridian or holding a pole get the full longitude range.
func (z Zone) Envelope() (types.Envelope, error) {
	g, err := z.eng.geometry(z.ID)
	if err != nil {
		return types.Envelope{}, err
	}
	r := g.rect
	env := types.Envelope{
		MinY: s1.Angle(r.Lat.Lo).Degrees(),
		MaxY: s1.Angle(r.Lat.Hi).Degrees(),
	}
	if r.Lng.IsInverted() || r.Lng.IsFull() {
		env.MinX, env.MaxX = -180, 180
	} else {
		env.MinX = s1.Angle(r.Lng.Lo).Degrees()
		env.MaxX = s1.Angle(r.Lng.Hi).Degrees()
	}
	return env, nil
}

// AreaM2 returns the area of z in square meters.
func (z Zone) AreaM2() (float64, error) {
	return cellAreaM2(z.ID)
}
