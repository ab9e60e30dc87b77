/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package geo

import (
	"github.com/golang/geo/s2"
	"github.com/twpayne/go-geom"

	"github.com/hypermodeinc/dggrs/x"
)

func pointFromCoord(r geom.Coord) s2.Point {
	// The geojson spec says that coordinates are specified as [long, lat]
	ll := s2.LatLngFromDegrees(r.Y(), r.X())
	return s2.PointFromLatLng(ll)
}

func loopFromPolygon(p *geom.Polygon) (*s2.Loop, error) {
	// go implementation of s2 does not support more than one loop (and will panic if the size of
	// the loops array > 1). So we will skip the holes in the polygon and just use the outer loop.
	if p.NumLinearRings() == 0 {
		return nil, x.Invalidf("polygon has no rings")
	}
	r := p.LinearRing(0)
	n := r.NumCoords()
	if n < 4 {
		return nil, x.Invalidf("can't convert ring with less than 4 pts")
	}
	for i := 0; i < n; i++ {
		c := r.Coord(i)
		if c.Y() < -90 || c.Y() > 90 || c.X() < -180 || c.X() > 180 {
			return nil, x.Invalidf("coordinate %v outside the lng/lat range", c)
		}
	}
	// S2 specifies that the orientation of the polygons should be CCW. However there is no
	// restriction on the orientation in geojson. To get the correct orientation we assume
	// that the polygons are always less than one hemisphere. If they are bigger, we flip the
	// orientation.
	reverse := isClockwise(r)
	l := loopFromRing(r, reverse)

	// Since our clockwise check was approximate, we check the cap and reverse if needed.
	if l.CapBound().Radius().Degrees() > 90 {
		l = loopFromRing(r, !reverse)
	}
	return l, nil
}

func isClockwise(r *geom.LinearRing) bool {
	// The algorithm is described here https://en.wikipedia.org/wiki/Shoelace_formula
	var a float64
	n := r.NumCoords()
	for i := 0; i < n; i++ {
		p1 := r.Coord(i)
		p2 := r.Coord((i + 1) % n)
		a += (p2.X() - p1.X()) * (p1.Y() + p2.Y())
	}
	return a > 0
}

func loopFromRing(r *geom.LinearRing, reverse bool) *s2.Loop {
	// In geojson, the last coordinate is repeated for a ring to form a closed loop. For s2 the
	// points aren't allowed to repeat and the loop is assumed to be closed, so we skip the last
	// point.
	n := r.NumCoords()
	pts := make([]s2.Point, n-1)
	for i := 0; i < n-1; i++ {
		var c geom.Coord
		if reverse {
			c = r.Coord(n - 1 - i)
		} else {
			c = r.Coord(i)
		}
		pts[i] = pointFromCoord(c)
	}
	return s2.LoopFromPoints(pts)
}
