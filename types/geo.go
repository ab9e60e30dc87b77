/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package types

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Geo represents geo-spatial data.
type Geo struct {
	geom.T
}

// ParseGeoJSON parses a GeoJSON geometry or a Feature wrapping one.
func ParseGeoJSON(data []byte) (Geo, error) {
	var g geom.T
	if err := geojson.Unmarshal(data, &g); err == nil && g != nil {
		return Geo{g}, nil
	}
	var f geojson.Feature
	if err := f.UnmarshalJSON(data); err != nil {
		return Geo{}, errors.Wrapf(err, "while parsing geojson")
	}
	if f.Geometry == nil {
		return Geo{}, errors.Errorf("feature has no geometry")
	}
	return Geo{f.Geometry}, nil
}

// MarshalJSON marshals to GeoJSON.
func (v Geo) MarshalJSON() ([]byte, error) {
	return geojson.Marshal(v.T)
}

// UnmarshalJSON parses the data from a GeoJSON geometry.
func (v *Geo) UnmarshalJSON(text []byte) error {
	text = bytes.Replace(text, []byte("'"), []byte("\""), -1)
	g, err := ParseGeoJSON(text)
	if err != nil {
		return err
	}
	*v = g
	return nil
}

// Envelope returns the bounding rectangle of the geometry in its own
// coordinates (X = longitude, Y = latitude).
func (v Geo) Envelope() Envelope {
	if v.T == nil || v.Empty() {
		return EmptyEnvelope
	}
	b := v.Bounds()
	return Envelope{MinX: b.Min(0), MaxX: b.Max(0), MinY: b.Min(1), MaxY: b.Max(1)}
}

// Polygon returns the geometry as a polygon, if it is one.
func (v Geo) Polygon() (*geom.Polygon, bool) {
	p, ok := v.T.(*geom.Polygon)
	return p, ok
}

// EnvelopePolygon returns the closed rectangle ring of e as a polygon.
func EnvelopePolygon(e Envelope) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{e.MinX, e.MinY}, {e.MaxX, e.MinY}, {e.MaxX, e.MaxY}, {e.MinX, e.MaxY}, {e.MinX, e.MinY},
	}})
}

func (v Geo) String() string {
	return "<geodata>"
}
