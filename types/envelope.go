/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package types

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/hypermodeinc/dggrs/x"
)

// Envelope is an axis aligned rectangle. For geographic data X is the
// longitude and Y the latitude, both in degrees.
type Envelope struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// EmptyEnvelope is the identity of Union.
var EmptyEnvelope = Envelope{
	MinX: math.Inf(1), MaxX: math.Inf(-1),
	MinY: math.Inf(1), MaxY: math.Inf(-1),
}

// NewEnvelope returns the envelope spanning both corners, in any order.
func NewEnvelope(x1, y1, x2, y2 float64) Envelope {
	return Envelope{
		MinX: math.Min(x1, x2), MaxX: math.Max(x1, x2),
		MinY: math.Min(y1, y2), MaxY: math.Max(y1, y2),
	}
}

// PointEnvelope returns the degenerate envelope of a single point.
func PointEnvelope(x, y float64) Envelope {
	return Envelope{MinX: x, MaxX: x, MinY: y, MaxY: y}
}

// IsEmpty reports whether the envelope covers nothing.
func (e Envelope) IsEmpty() bool {
	return e.MinX > e.MaxX || e.MinY > e.MaxY
}

// Valid reports whether all bounds are finite and ordered.
func (e Envelope) Valid() bool {
	for _, v := range [...]float64{e.MinX, e.MaxX, e.MinY, e.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return !e.IsEmpty()
}

// Intersects reports whether e and o share at least one point. Touching
// boundaries count.
func (e Envelope) Intersects(o Envelope) bool {
	return e.MinX <= o.MaxX && o.MinX <= e.MaxX &&
		e.MinY <= o.MaxY && o.MinY <= e.MaxY
}

// Contains reports whether o lies entirely within e.
func (e Envelope) Contains(o Envelope) bool {
	return e.MinX <= o.MinX && o.MaxX <= e.MaxX &&
		e.MinY <= o.MinY && o.MaxY <= e.MaxY
}

// ContainsPoint reports whether (x, y) lies within e.
func (e Envelope) ContainsPoint(x, y float64) bool {
	return e.MinX <= x && x <= e.MaxX && e.MinY <= y && y <= e.MaxY
}

// Union returns the smallest envelope covering e and o.
func (e Envelope) Union(o Envelope) Envelope {
	return Envelope{
		MinX: math.Min(e.MinX, o.MinX), MaxX: math.Max(e.MaxX, o.MaxX),
		MinY: math.Min(e.MinY, o.MinY), MaxY: math.Max(e.MaxY, o.MaxY),
	}
}

// Intersection returns the overlap of e and o, which is empty when they are disjoint.
func (e Envelope) Intersection(o Envelope) Envelope {
	return Envelope{
		MinX: math.Max(e.MinX, o.MinX), MaxX: math.Min(e.MaxX, o.MaxX),
		MinY: math.Max(e.MinY, o.MinY), MaxY: math.Min(e.MaxY, o.MaxY),
	}
}

// Area returns the area of e, zero for empty envelopes.
func (e Envelope) Area() float64 {
	if e.IsEmpty() {
		return 0
	}
	return (e.MaxX - e.MinX) * (e.MaxY - e.MinY)
}

// Margin returns half the perimeter of e.
func (e Envelope) Margin() float64 {
	if e.IsEmpty() {
		return 0
	}
	return (e.MaxX - e.MinX) + (e.MaxY - e.MinY)
}

// Overlap returns the area shared by e and o.
func (e Envelope) Overlap(o Envelope) float64 {
	return e.Intersection(o).Area()
}

// Enlargement returns how much the area of e grows when extended to cover o.
func (e Envelope) Enlargement(o Envelope) float64 {
	return e.Union(o).Area() - e.Area()
}

// Center returns the midpoint of e.
func (e Envelope) Center() (x, y float64) {
	return (e.MinX + e.MaxX) / 2, (e.MinY + e.MaxY) / 2
}

// CenterDistance2 returns the squared distance between the centers of e and o.
func (e Envelope) CenterDistance2(o Envelope) float64 {
	ex, ey := e.Center()
	ox, oy := o.Center()
	return (ex-ox)*(ex-ox) + (ey-oy)*(ey-oy)
}

func (e Envelope) String() string {
	return fmt.Sprintf("[%g %g, %g %g]", e.MinX, e.MinY, e.MaxX, e.MaxY)
}

// ParseEnvelope parses "minX,minY,maxX,maxY". The corners may come in any
// order.
func ParseEnvelope(s string) (Envelope, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Envelope{}, x.Invalidf("envelope %q needs 4 comma separated numbers", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := cast.ToFloat64E(strings.TrimSpace(p))
		if err != nil {
			return Envelope{}, x.Invalidf("envelope %q: %v", s, err)
		}
		v[i] = f
	}
	env := NewEnvelope(v[0], v[1], v[2], v[3])
	if !env.Valid() {
		return Envelope{}, x.Invalidf("envelope %q is not valid", s)
	}
	return env, nil
}
