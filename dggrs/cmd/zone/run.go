/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package zone

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	geojson "github.com/paulmach/go.geojson"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/hypermodeinc/dggrs/cellid"
	"github.com/hypermodeinc/dggrs/geo"
	"github.com/hypermodeinc/dggrs/types"
	"github.com/hypermodeinc/dggrs/x"
)

// Zone is the sub-command invoked when running "dggrs zone".
var Zone x.SubCommand

const (
	formatText    = "text"
	formatGeoJSON = "geojson"

	defaultLevel = 9
)

func init() {
	Zone.Cmd = &cobra.Command{
		Use:   "zone",
		Short: "Encode, decode and navigate the zones of the grid",
		Long: `
Zone converts positions to zone identifiers and back, walks the zone hierarchy
and lists the zones covering a region. Negative coordinates must follow a
"--" separator.`,
		Annotations: map[string]string{"group": "tool"},
	}
	Zone.EnvPrefix = "DGGRS_ZONE"
	Zone.Cmd.SetHelpTemplate(x.NonRootTemplate)

	flag := Zone.Cmd.PersistentFlags()
	flag.String("format", formatText, "Output format, one of [text, geojson].")
	flag.Int("max_level", cellid.MaxResolution, "Finest level handed out by the grid.")
	flag.Int64("cache_cells", 1<<16, "Number of cell geometries kept in memory.")
	flag.IntP("level", "l", defaultLevel, "Target level of encode, parent, center and search.")
	flag.Int("k", 1, "Grid distance of ring.")
	flag.Int("depth", 1, "Relative depth of subzones.")
	flag.String("crs", geo.BaseCRS, "Reference system of the positions given to encode.")
	flag.String("bbox", "", "Search box as minLng,minLat,maxLng,maxLat.")
	flag.String("geojson", "", "File holding the GeoJSON geometry to search, - for stdin.")

	Zone.Cmd.AddCommand(
		zoneCommand("encode <x> <y>", "Zone holding a position at --level", 2, encode),
		pointCommand("decode <zone>", "Centroid of a zone", decode),
		zoneCommand("parent <zone>", "Ancestor of a zone at --level", 1, parent),
		zoneCommand("children <zone>", "Children of a zone", 1, children),
		zoneCommand("ring <zone>", "Zones --k grid steps away from a zone", 1, ring),
		zoneCommand("center <zone>", "Center child of a zone at --level", 1, center),
		zoneCommand("subzones <zone>", "Zones --depth levels below a zone lying inside it", 1, subzones),
		zoneCommand("search", "Zones at --level intersecting --bbox or --geojson", 0, search),
		precisionCmd(),
		levelCmd(),
	)
}

func level() int {
	return Zone.GetIntP("level", "l", defaultLevel)
}

type zoneFunc func(ctx context.Context, eng *geo.Engine, cmd *cobra.Command, args []string) ([]geo.Zone, error)

func newEngine() (*geo.Engine, error) {
	cfg := geo.DefaultGridConfig()
	cfg.MaxLevel = Zone.Conf.GetInt("max_level")
	cfg.CacheCells = Zone.Conf.GetInt64("cache_cells")
	return geo.NewEngine(cfg)
}

func withEngine(cmd *cobra.Command, fn func(eng *geo.Engine) error) error {
	eng, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()
	glog.V(2).Infof("Running zone %s", cmd.Name())
	return fn(eng)
}

func zoneCommand(use, short string, nargs int, fn zoneFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(eng *geo.Engine) error {
				zones, err := fn(cmd.Context(), eng, cmd, args)
				if err != nil {
					return err
				}
				return writeZones(cmd.OutOrStdout(), Zone.Conf.GetString("format"), zones)
			})
		},
	}
}

func pointCommand(use, short string, fn func(eng *geo.Engine, args []string) (geo.Position, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(eng *geo.Engine) error {
				p, err := fn(eng, args)
				if err != nil {
					return err
				}
				return writePoint(cmd.OutOrStdout(), Zone.Conf.GetString("format"), args[0], p)
			})
		},
	}
}

func encode(_ context.Context, eng *geo.Engine, _ *cobra.Command, args []string) ([]geo.Zone, error) {
	px, err := cast.ToFloat64E(args[0])
	if err != nil {
		return nil, x.Invalidf("x %q: %v", args[0], err)
	}
	py, err := cast.ToFloat64E(args[1])
	if err != nil {
		return nil, x.Invalidf("y %q: %v", args[1], err)
	}
	z, err := eng.Encode(geo.Position{X: px, Y: py, CRS: Zone.Conf.GetString("crs")},
		level())
	if err != nil {
		return nil, err
	}
	return []geo.Zone{z}, nil
}

func decode(eng *geo.Engine, args []string) (geo.Position, error) {
	z, err := eng.ParseZone(args[0])
	if err != nil {
		return geo.Position{}, err
	}
	return eng.Decode(z)
}

func parent(_ context.Context, eng *geo.Engine, _ *cobra.Command, args []string) ([]geo.Zone, error) {
	z, err := eng.ParseZone(args[0])
	if err != nil {
		return nil, err
	}
	p, err := z.Parent(level())
	if err != nil {
		return nil, err
	}
	return []geo.Zone{p}, nil
}

func children(_ context.Context, eng *geo.Engine, _ *cobra.Command, args []string) ([]geo.Zone, error) {
	z, err := eng.ParseZone(args[0])
	if err != nil {
		return nil, err
	}
	return z.Children(), nil
}

func ring(_ context.Context, eng *geo.Engine, _ *cobra.Command, args []string) ([]geo.Zone, error) {
	z, err := eng.ParseZone(args[0])
	if err != nil {
		return nil, err
	}
	return z.Ring(Zone.Conf.GetInt("k"))
}

func center(_ context.Context, eng *geo.Engine, _ *cobra.Command, args []string) ([]geo.Zone, error) {
	z, err := eng.ParseZone(args[0])
	if err != nil {
		return nil, err
	}
	c, err := z.CenterChild(level())
	if err != nil {
		return nil, err
	}
	return []geo.Zone{c}, nil
}

func subzones(_ context.Context, eng *geo.Engine, _ *cobra.Command, args []string) ([]geo.Zone, error) {
	z, err := eng.ParseZone(args[0])
	if err != nil {
		return nil, err
	}
	it, err := eng.GeometricSubZones(z, Zone.Conf.GetInt("depth"))
	if err != nil {
		return nil, err
	}
	set, err := geo.CollectSubZones(it)
	if err != nil {
		return nil, err
	}
	ids := make([]cellid.CellID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]geo.Zone, 0, len(ids))
	for _, id := range ids {
		sz, err := eng.Zone(id)
		if err != nil {
			return nil, err
		}
		out = append(out, sz)
	}
	return out, nil
}

func search(ctx context.Context, eng *geo.Engine, cmd *cobra.Command, _ []string) ([]geo.Zone, error) {
	q, err := searchQuery(cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	it, err := eng.Search(ctx, q, level())
	if err != nil {
		return nil, err
	}
	return geo.CollectZones(it)
}

func searchQuery(stdin io.Reader) (*geo.Query, error) {
	bbox := Zone.Conf.GetString("bbox")
	file := Zone.Conf.GetString("geojson")
	switch {
	case bbox != "" && file != "":
		return nil, x.Invalidf("--bbox and --geojson are exclusive")
	case bbox != "":
		env, err := types.ParseEnvelope(bbox)
		if err != nil {
			return nil, err
		}
		return geo.EnvelopeQuery(env), nil
	case file != "":
		var data []byte
		var err error
		if file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "while reading %s", file)
		}
		g, err := types.ParseGeoJSON(data)
		if err != nil {
			return nil, x.Invalidf("%v", err)
		}
		return geo.GeoQuery(g), nil
	default:
		return nil, x.Invalidf("search needs --bbox or --geojson")
	}
}

func precisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "precision",
		Short: "Average cell size of --level, or of every level when --level is not set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(eng *geo.Engine) error {
				w := cmd.OutOrStdout()
				from, to := 0, eng.MaxLevel()
				if Zone.Conf.IsSet("level") {
					from = level()
					to = from
				}
				for l := from; l <= to; l++ {
					p, err := eng.PrecisionAtLevel(l)
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "%d\t%s\n", l, types.Length(p))
				}
				return nil
			})
		},
	}
}

func levelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "level <meters>",
		Short: "Coarsest level whose cells are smaller than the given size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := cast.ToFloat64E(args[0])
			if err != nil || m <= 0 {
				return x.Invalidf("size %q must be a positive number of meters", args[0])
			}
			return withEngine(cmd, func(eng *geo.Engine) error {
				fmt.Fprintln(cmd.OutOrStdout(), eng.LevelForPrecision(m))
				return nil
			})
		},
	}
}

func writeZones(w io.Writer, format string, zones []geo.Zone) error {
	switch format {
	case formatText:
		for _, z := range zones {
			area, err := z.AreaM2()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%d\t%s\n", z, z.Level(), types.Area(area))
		}
		if len(zones) > 1 {
			glog.V(1).Infof("Wrote %s zones", humanize.Comma(int64(len(zones))))
		}
		return nil
	case formatGeoJSON:
		fc := geojson.NewFeatureCollection()
		for _, z := range zones {
			f, err := zoneFeature(z)
			if err != nil {
				return err
			}
			fc.AddFeature(f)
		}
		return writeJSON(w, fc)
	default:
		return x.Invalidf("unknown format %q", format)
	}
}

func zoneFeature(z geo.Zone) (*geojson.Feature, error) {
	boundary, err := z.Boundary()
	if err != nil {
		return nil, err
	}
	area, err := z.AreaM2()
	if err != nil {
		return nil, err
	}
	ring := make([][]float64, 0, len(boundary)+1)
	for _, v := range boundary {
		ring = append(ring, []float64{v.Lng, v.Lat})
	}
	ring = append(ring, ring[0])
	f := geojson.NewPolygonFeature([][][]float64{ring})
	f.ID = z.String()
	f.SetProperty("id", z.String())
	f.SetProperty("level", z.Level())
	f.SetProperty("area", area)
	return f, nil
}

func writePoint(w io.Writer, format, id string, p geo.Position) error {
	switch format {
	case formatText:
		fmt.Fprintf(w, "%.9f\t%.9f\n", p.X, p.Y)
		return nil
	case formatGeoJSON:
		f := geojson.NewPointFeature([]float64{p.X, p.Y})
		f.ID = id
		f.SetProperty("id", id)
		return writeJSON(w, f)
	default:
		return x.Invalidf("unknown format %q", format)
	}
}

type jsonMarshaler interface {
	MarshalJSON() ([]byte, error)
}

func writeJSON(w io.Writer, v jsonMarshaler) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "while marshalling geojson")
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
