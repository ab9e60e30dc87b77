/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package geo

// All calls into the grid math library go through this file. The rest of the
// package works on cellid.CellID and LatLng only.

import (
	"github.com/pkg/errors"
	"github.com/uber/h3-go/v4"

	"github.com/hypermodeinc/dggrs/cellid"
)

func toH3(c cellid.CellID) h3.Cell {
	return h3.Cell(int64(c))
}

func fromH3(c h3.Cell) cellid.CellID {
	return cellid.CellID(uint64(c))
}

func latLngToCell(ll LatLng, res int) (cellid.CellID, error) {
	c, err := h3.LatLngToCell(h3.NewLatLng(ll.Lat, ll.Lng), res)
	if err != nil {
		return cellid.Invalid, errors.Wrapf(err, "while encoding %v at resolution %d", ll, res)
	}
	return fromH3(c), nil
}

func cellCentroid(c cellid.CellID) (LatLng, error) {
	ll, err := toH3(c).LatLng()
	if err != nil {
		return LatLng{}, errors.Wrapf(err, "while computing centroid of %s", c)
	}
	return LatLng{Lat: ll.Lat, Lng: ll.Lng}, nil
}

func cellBoundary(c cellid.CellID) ([]LatLng, error) {
	b, err := toH3(c).Boundary()
	if err != nil {
		return nil, errors.Wrapf(err, "while computing boundary of %s", c)
	}
	out := make([]LatLng, len(b))
	for i, v := range b {
		out[i] = LatLng{Lat: v.Lat, Lng: v.Lng}
	}
	return out, nil
}

func cellAreaM2(c cellid.CellID) (float64, error) {
	a, err := h3.CellAreaM2(toH3(c))
	if err != nil {
		return 0, errors.Wrapf(err, "while computing area of %s", c)
	}
	return a, nil
}

// gridDiskDistances returns the cells within k steps of c, grouped by distance.
// The library falls back to its pentagon safe traversal on its own.
func gridDiskDistances(c cellid.CellID, k int) ([][]cellid.CellID, error) {
	rings, err := toH3(c).GridDiskDistances(k)
	if err != nil {
		return nil, errors.Wrapf(err, "while computing disk of %s at distance %d", c, k)
	}
	out := make([][]cellid.CellID, len(rings))
	for i, ring := range rings {
		out[i] = make([]cellid.CellID, 0, len(ring))
		for _, rc := range ring {
			if rc == 0 {
				continue
			}
			out[i] = append(out[i], fromH3(rc))
		}
	}
	return out, nil
}

func res0Cells() ([]cellid.CellID, error) {
	cells, err := h3.Res0Cells()
	if err != nil {
		return nil, errors.Wrap(err, "while listing base cells")
	}
	out := make([]cellid.CellID, len(cells))
	for i, c := range cells {
		out[i] = fromH3(c)
	}
	return out, nil
}
