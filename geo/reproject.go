/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package geo

import (
	"math"

	"github.com/pkg/errors"

	"github.com/hypermodeinc/dggrs/x"
)

// Position is a coordinate pair in a named reference system. In BaseCRS, X is
// the longitude and Y the latitude, in degrees. An empty CRS means BaseCRS.
type Position struct {
	X, Y float64
	CRS  string
}

// LatLng returns p as a geodetic position. p must be in BaseCRS.
func (p Position) LatLng() LatLng {
	return LatLng{Lat: p.Y, Lng: p.X}
}

func positionOf(ll LatLng) Position {
	return Position{X: ll.Lng, Y: ll.Lat, CRS: BaseCRS}
}

func (p Position) inBaseCRS() bool {
	return p.CRS == "" || p.CRS == BaseCRS
}

// Reprojector converts positions between coordinate reference systems.
type Reprojector interface {
	Reproject(p Position, srcCRS, dstCRS string) (Position, error)
}

// NoReprojection only accepts positions that are already in the target system.
type NoReprojection struct{}

func (NoReprojection) Reproject(p Position, srcCRS, dstCRS string) (Position, error) {
	if srcCRS == dstCRS {
		p.CRS = dstCRS
		return p, nil
	}
	return Position{}, errors.Wrapf(x.ErrTransform, "no transform from %s to %s", srcCRS, dstCRS)
}

func (e *Engine) toBase(p Position) (LatLng, error) {
	if !p.inBaseCRS() {
		q, err := e.cfg.Reprojector.Reproject(p, p.CRS, BaseCRS)
		if err != nil {
			if errors.Is(err, x.ErrTransform) {
				return LatLng{}, err
			}
			return LatLng{}, errors.Wrapf(x.ErrTransform, "%s to %s: %v", p.CRS, BaseCRS, err)
		}
		p = q
	}
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return LatLng{}, x.Invalidf("position (%v, %v) is not finite", p.X, p.Y)
	}
	if p.Y < -90 || p.Y > 90 {
		return LatLng{}, x.Invalidf("latitude %v outside [-90, 90]", p.Y)
	}
	return p.LatLng(), nil
}

// Encode returns the zone at level that contains p.
func (e *Engine) Encode(p Position, level int) (Zone, error) {
	ll, err := e.toBase(p)
	if err != nil {
		return Zone{}, err
	}
	id, err := e.encodeLatLng(ll, level)
	if err != nil {
		return Zone{}, err
	}
	return Zone{ID: id, eng: e}, nil
}

// Decode returns the centroid of z in BaseCRS.
func (e *Engine) Decode(z Zone) (Position, error) {
	g, err := e.geometry(z.ID)
	if err != nil {
		return Position{}, err
	}
	return positionOf(g.centroid), nil
}
