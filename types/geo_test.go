/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package types

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestParseGeoJSON(t *testing.T) {
	array := []string{
		`{"type":"Point","coordinates":[1,2]}`,
		`{"type":"Polygon","coordinates":[[[0,0],[2,0],[2,1],[0,1],[0,0]]]}`,
	}
	for _, v := range array {
		g, err := ParseGeoJSON([]byte(v))
		require.NoError(t, err, v)
		got, err := g.MarshalJSON()
		require.NoError(t, err)
		require.JSONEq(t, v, string(got))
	}
}

func TestParseGeoJSONFeature(t *testing.T) {
	g, err := ParseGeoJSON([]byte(`{"type":"Feature","geometry":` +
		`{"type":"Point","coordinates":[125.6,10.1]},"properties":{"name":"Dinagat Islands"}}`))
	require.NoError(t, err)
	p, ok := g.T.(*geom.Point)
	require.True(t, ok)
	require.Equal(t, 125.6, p.X())
	require.Equal(t, 10.1, p.Y())
}

func TestParseGeoJSONErrors(t *testing.T) {
	array := []string{
		`{"type":"Curve","coordinates":[1,2]}`,
		`{}`,
		`thisisntjson`,
	}
	for _, v := range array {
		_, err := ParseGeoJSON([]byte(v))
		require.Error(t, err, v)
	}
}

func TestGeoEnvelope(t *testing.T) {
	g, err := ParseGeoJSON([]byte(`{"type":"Polygon","coordinates":[[[-1,5],[3,5],[3,7],[-1,7],[-1,5]]]}`))
	require.NoError(t, err)
	require.Equal(t, Envelope{MinX: -1, MaxX: 3, MinY: 5, MaxY: 7}, g.Envelope())

	_, ok := g.Polygon()
	require.True(t, ok)

	var empty Geo
	require.True(t, empty.Envelope().IsEmpty())
}

func TestEnvelopePolygon(t *testing.T) {
	e := NewEnvelope(10, 20, -10, -20)
	p := EnvelopePolygon(e)
	require.Equal(t, 5, p.LinearRing(0).NumCoords())
	require.Equal(t, e, Geo{p}.Envelope())
}
