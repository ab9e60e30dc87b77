/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package zone

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	geojson "github.com/paulmach/go.geojson"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/hypermodeinc/dggrs/x"
)

const sfZone = "89283082803ffff"

func runZone(t *testing.T, args ...string) (string, error) {
	if Zone.Conf == nil {
		Zone.Conf = viper.New()
		require.NoError(t, Zone.Conf.BindPFlags(Zone.Cmd.PersistentFlags()))
	}
	Zone.Cmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		require.NoError(t, f.Value.Set(f.DefValue))
		f.Changed = false
	})
	var out bytes.Buffer
	Zone.Cmd.SetOut(&out)
	Zone.Cmd.SetErr(io.Discard)
	Zone.Cmd.SetArgs(args)
	Zone.Cmd.SilenceUsage = true
	err := Zone.Cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

func firstField(line string) string {
	return strings.SplitN(line, "\t", 2)[0]
}

func TestEncodeDecode(t *testing.T) {
	out, err := runZone(t, "encode", "--level", "9", "--", "-122.4194", "37.7749")
	require.NoError(t, err)
	require.Len(t, lines(out), 1)
	require.Equal(t, sfZone, firstField(out))
	require.Contains(t, out, "\t9\t")
	require.Contains(t, out, "m²")

	out, err = runZone(t, "decode", sfZone)
	require.NoError(t, err)
	fields := strings.Fields(out)
	require.Len(t, fields, 2)

	again, err := runZone(t, "encode", "--level", "9", "--", fields[0], fields[1])
	require.NoError(t, err)
	require.Equal(t, sfZone, firstField(again))
}

func TestEncodeRejects(t *testing.T) {
	_, err := runZone(t, "encode", "east", "north")
	require.True(t, errors.Is(err, x.ErrInvalidArgument))
	_, err = runZone(t, "encode", "--level", "16", "0", "0")
	require.True(t, errors.Is(err, x.ErrInvalidArgument))
	_, err = runZone(t, "encode", "1")
	require.Error(t, err)
}

func TestHierarchy(t *testing.T) {
	out, err := runZone(t, "children", sfZone)
	require.NoError(t, err)
	require.Len(t, lines(out), 7)

	out, err = runZone(t, "parent", "--level", "0", sfZone)
	require.NoError(t, err)
	root := firstField(out)
	out, err = runZone(t, "center", "--level", "9", root)
	require.NoError(t, err)
	require.Len(t, lines(out), 1)

	out, err = runZone(t, "ring", "--k", "1", sfZone)
	require.NoError(t, err)
	require.Len(t, lines(out), 6)

	out, err = runZone(t, "subzones", "--depth", "1", sfZone)
	require.NoError(t, err)
	for _, l := range lines(out) {
		require.Contains(t, l, "\t10\t")
	}
}

func TestGeoJSONOutput(t *testing.T) {
	out, err := runZone(t, "children", "--format", "geojson", sfZone)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection([]byte(out))
	require.NoError(t, err)
	require.Len(t, fc.Features, 7)
	for _, f := range fc.Features {
		require.True(t, f.Geometry.IsPolygon())
		ring := f.Geometry.Polygon[0]
		require.Equal(t, ring[0], ring[len(ring)-1])
		level, err := f.PropertyFloat64("level")
		require.NoError(t, err)
		require.Equal(t, 10.0, level)
		area, err := f.PropertyFloat64("area")
		require.NoError(t, err)
		require.Greater(t, area, 0.0)
	}

	out, err = runZone(t, "decode", "--format", "geojson", sfZone)
	require.NoError(t, err)
	f, err := geojson.UnmarshalFeature([]byte(out))
	require.NoError(t, err)
	require.True(t, f.Geometry.IsPoint())
	require.InDelta(t, -122.4194, f.Geometry.Point[0], 0.01)

	_, err = runZone(t, "children", "--format", "xml", sfZone)
	require.True(t, errors.Is(err, x.ErrInvalidArgument))
}

func TestSearch(t *testing.T) {
	bbox, err := runZone(t, "search", "--level", "3", "--bbox", "2,48,3,49")
	require.NoError(t, err)
	require.NotEmpty(t, strings.TrimSpace(bbox))

	file := filepath.Join(t.TempDir(), "paris.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"type":"Polygon","coordinates":`+
		`[[[2,48],[3,48],[3,49],[2,49],[2,48]]]}`), 0600))
	poly, err := runZone(t, "search", "--level", "3", "--geojson", file)
	require.NoError(t, err)
	require.NotEmpty(t, strings.TrimSpace(poly))

	_, err = runZone(t, "search", "--level", "3")
	require.True(t, errors.Is(err, x.ErrInvalidArgument))
	_, err = runZone(t, "search", "--bbox", "1,2,3,4", "--geojson", file)
	require.True(t, errors.Is(err, x.ErrInvalidArgument))
}

func TestPrecisionAndLevel(t *testing.T) {
	out, err := runZone(t, "precision")
	require.NoError(t, err)
	require.Len(t, lines(out), 16)

	out, err = runZone(t, "precision", "--level", "9")
	require.NoError(t, err)
	require.Len(t, lines(out), 1)
	require.Equal(t, "9", firstField(out))

	out, err = runZone(t, "level", "1000")
	require.NoError(t, err)
	require.NotEmpty(t, strings.TrimSpace(out))

	_, err = runZone(t, "level", "0")
	require.True(t, errors.Is(err, x.ErrInvalidArgument))
}
