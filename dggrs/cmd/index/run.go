/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package index

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/google/uuid"
	geojson "github.com/paulmach/go.geojson"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom"
	geomjson "github.com/twpayne/go-geom/encoding/geojson"

	dggindex "github.com/hypermodeinc/dggrs/index"
	"github.com/hypermodeinc/dggrs/mapper"
	"github.com/hypermodeinc/dggrs/types"
	"github.com/hypermodeinc/dggrs/x"
)

// Index is the sub-command invoked when running "dggrs index".
var Index x.SubCommand

func init() {
	Index.Cmd = &cobra.Command{
		Use:   "index",
		Short: "Maintain and query a persistent envelope index",
		Long: `
Index stores the envelopes of GeoJSON features in an R*-tree kept in --dir.
Feature identifiers and envelopes are recorded by the element mapper chosen
with --mapper.`,
		Annotations: map[string]string{"group": "tool"},
	}
	Index.EnvPrefix = "DGGRS_INDEX"
	Index.Cmd.SetHelpTemplate(x.NonRootTemplate)

	flag := Index.Cmd.PersistentFlags()
	flag.StringP("dir", "d", "", "Directory of the index.")
	flag.String("mapper", string(mapper.KindBlob), "Element mapper, one of [blob, sql, badger, redis].")
	flag.String("sql_driver", "postgres", "SQL driver of the sql mapper, one of [postgres, mysql].")
	flag.String("dsn", "", "Data source of the sql mapper. Read from the environment when empty.")
	flag.BoolP("sync_writes", "s", false, "Flush the index after every write.")
	flag.String("id_property", "id",
		"Feature property used as identifier when a feature has no id. Features without "+
			"either get a random identifier.")
	flag.String("bbox", "", "Search box as minX,minY,maxX,maxY.")
	flag.String("format", "text", "Output format of search, one of [text, geojson].")

	Index.Cmd.AddCommand(
		&cobra.Command{
			Use:   "insert <file>",
			Short: "Insert the features of a GeoJSON file, - for stdin",
			Args:  cobra.ExactArgs(1),
			RunE:  runWith(insert),
		},
		&cobra.Command{
			Use:   "remove <identifier>...",
			Short: "Remove elements by identifier",
			Args:  cobra.MinimumNArgs(1),
			RunE:  runWith(remove),
		},
		&cobra.Command{
			Use:   "search",
			Short: "Elements whose envelope intersects --bbox",
			Args:  cobra.NoArgs,
			RunE:  runWith(search),
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Shape of the tree",
			Args:  cobra.NoArgs,
			RunE:  runWith(stats),
		},
	)
}

type runFunc func(ctx context.Context, idx *dggindex.Index, cmd *cobra.Command, args []string) error

func openIndex(ctx context.Context) (*dggindex.Index, error) {
	dir := Index.GetStringP("dir", "d", "")
	if dir == "" {
		return nil, x.Invalidf("--dir is required")
	}
	m, err := mapper.Open(ctx, mapper.Config{
		Kind:   mapper.Kind(Index.Conf.GetString("mapper")),
		Path:   dir,
		Driver: Index.Conf.GetString("sql_driver"),
		DSN:    Index.Conf.GetString("dsn"),
	})
	if err != nil {
		return nil, err
	}
	opts := dggindex.DefaultOptions(dir)
	opts.SyncWrites = Index.GetBoolP("sync_writes", "s", false)
	idx, err := dggindex.Open(ctx, opts, m)
	if err != nil {
		x.Ignore(m.Close())
		return nil, err
	}
	return idx, nil
}

func runWith(fn runFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (rerr error) {
		ctx := cmd.Context()
		idx, err := openIndex(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := idx.Close(); err != nil && rerr == nil {
				rerr = err
			}
		}()
		return fn(ctx, idx, cmd, args)
	}
}

func readFeatures(cmd *cobra.Command, file string) ([]*geomjson.Feature, error) {
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "while reading %s", file)
	}
	var fc geomjson.FeatureCollection
	if err := fc.UnmarshalJSON(data); err == nil && len(fc.Features) > 0 {
		return fc.Features, nil
	}
	var f geomjson.Feature
	if err := f.UnmarshalJSON(data); err == nil && f.Geometry != nil {
		return []*geomjson.Feature{&f}, nil
	}
	g, err := types.ParseGeoJSON(data)
	if err != nil {
		return nil, x.Invalidf("%s holds no GeoJSON features: %v", file, err)
	}
	return []*geomjson.Feature{{Geometry: g.T}}, nil
}

// identifier picks the name of f: its id, then its id property, then a
// random UUID.
func identifier(f *geomjson.Feature, prop string) string {
	if f.ID != "" {
		return f.ID
	}
	if v, ok := f.Properties[prop]; ok {
		if s := cast.ToString(v); s != "" {
			return s
		}
	}
	return uuid.NewString()
}

// numEnvelopes counts the parts of a multi geometry.
func numEnvelopes(g geom.T) int {
	switch g := g.(type) {
	case *geom.MultiPoint:
		return g.NumPoints()
	case *geom.MultiLineString:
		return g.NumLineStrings()
	case *geom.MultiPolygon:
		return g.NumPolygons()
	case *geom.GeometryCollection:
		return g.NumGeoms()
	default:
		return 1
	}
}

// ElementOf converts a feature into the element stored by the index.
func ElementOf(f *geomjson.Feature, prop string) (mapper.Element, error) {
	if f.Geometry == nil {
		return mapper.Element{}, x.Invalidf("feature %q has no geometry", f.ID)
	}
	env := types.Geo{T: f.Geometry}.Envelope()
	if !env.Valid() {
		return mapper.Element{}, x.Invalidf("feature %q has an empty geometry", f.ID)
	}
	return mapper.Element{
		Identifier: identifier(f, prop),
		NbEnv:      numEnvelopes(f.Geometry),
		Envelope:   env,
	}, nil
}

func insert(ctx context.Context, idx *dggindex.Index, cmd *cobra.Command, args []string) error {
	features, err := readFeatures(cmd, args[0])
	if err != nil {
		return err
	}
	prop := Index.Conf.GetString("id_property")
	w := cmd.OutOrStdout()
	for _, f := range features {
		e, err := ElementOf(f, prop)
		if err != nil {
			return err
		}
		id, err := idx.Insert(ctx, e)
		if err != nil {
			return errors.Wrapf(err, "while inserting %q", e.Identifier)
		}
		fmt.Fprintf(w, "%d\t%s\n", id, e.Identifier)
	}
	glog.Infof("Inserted %s features into %s", humanize.Comma(int64(len(features))),
		Index.Conf.GetString("dir"))
	return idx.Flush(ctx)
}

func remove(ctx context.Context, idx *dggindex.Index, cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	for _, ident := range args {
		ok, err := idx.Remove(ctx, mapper.Element{Identifier: ident})
		if err != nil {
			return errors.Wrapf(err, "while removing %q", ident)
		}
		if ok {
			fmt.Fprintf(w, "removed\t%s\n", ident)
		} else {
			fmt.Fprintf(w, "missing\t%s\n", ident)
		}
	}
	return idx.Flush(ctx)
}

func search(ctx context.Context, idx *dggindex.Index, cmd *cobra.Command, _ []string) error {
	env, err := types.ParseEnvelope(Index.Conf.GetString("bbox"))
	if err != nil {
		return err
	}
	elems, err := idx.SearchElements(ctx, env)
	if err != nil {
		return err
	}
	ids := make([]int, 0, len(elems))
	for id := range elems {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	w := cmd.OutOrStdout()
	switch format := Index.Conf.GetString("format"); format {
	case "text":
		for _, id := range ids {
			e := elems[id]
			fmt.Fprintf(w, "%d\t%s\t%s\n", id, e.Identifier, e.Envelope)
		}
		return nil
	case "geojson":
		fc := geojson.NewFeatureCollection()
		for _, id := range ids {
			e := elems[id]
			b := e.Envelope
			f := geojson.NewPolygonFeature([][][]float64{{
				{b.MinX, b.MinY}, {b.MaxX, b.MinY}, {b.MaxX, b.MaxY}, {b.MinX, b.MaxY}, {b.MinX, b.MinY},
			}})
			f.ID = e.Identifier
			f.SetProperty("id", id)
			f.SetProperty("identifier", e.Identifier)
			f.SetProperty("envelopes", e.NbEnv)
			fc.AddFeature(f)
		}
		data, err := fc.MarshalJSON()
		if err != nil {
			return errors.Wrap(err, "while marshalling geojson")
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	default:
		return x.Invalidf("unknown format %q", format)
	}
}

func stats(_ context.Context, idx *dggindex.Index, cmd *cobra.Command, _ []string) error {
	s := idx.Stats()
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "elements\t%s\n", humanize.Comma(int64(s.Elements)))
	fmt.Fprintf(w, "height\t%d\n", s.Height)
	fmt.Fprintf(w, "nodes\t%s\n", humanize.Comma(int64(s.Nodes)))
	fmt.Fprintf(w, "next id\t%s\n", humanize.Comma(int64(s.NextID)))
	if s.Elements > 0 {
		fmt.Fprintf(w, "bounds\t%s\n", s.Bounds)
	}
	return nil
}
