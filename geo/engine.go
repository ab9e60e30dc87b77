/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

// Package geo implements the hexagonal discrete global grid: encoding of
// positions into zones, hierarchy navigation, precision mapping, geometric
// sub-zone search and region queries.
package geo

import (
	"fmt"
	"math"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/golang/geo/s2"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/hypermodeinc/dggrs/cellid"
	"github.com/hypermodeinc/dggrs/types"
	"github.com/hypermodeinc/dggrs/x"
)

// BaseCRS is the reference system of every LatLng handled by the engine.
const BaseCRS = "EPSG:4326"

// LatLng is a geodetic position in degrees.
type LatLng struct {
	Lat, Lng float64
}

func (ll LatLng) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", ll.Lat, ll.Lng)
}

func (ll LatLng) point() s2.Point {
	return s2.PointFromLatLng(s2.LatLngFromDegrees(ll.Lat, ll.Lng))
}

// GridConfig holds the options of an Engine.
type GridConfig struct {
	// MaxLevel is the finest level handed out by the engine, at most 15.
	MaxLevel int
	// SphereRadius is used by the precision table, in meters.
	SphereRadius float64
	// Reprojector converts positions that are not in BaseCRS.
	Reprojector Reprojector
	// CacheCells is the number of cell geometries kept in memory. Zero
	// disables the cache.
	CacheCells int64
}

// DefaultGridConfig returns the configuration of the full 16 level hierarchy.
func DefaultGridConfig() GridConfig {
	return GridConfig{
		MaxLevel:     cellid.MaxResolution,
		SphereRadius: types.EarthRadiusMeters,
		Reprojector:  NoReprojection{},
		CacheCells:   1 << 16,
	}
}

// cellGeometry is everything the engine derives from a cell through the grid
// math library.
type cellGeometry struct {
	boundary []LatLng
	centroid LatLng
	loop     *s2.Loop
	rect     s2.Rect
}

// Engine is the grid context shared by every zone. It is safe for
// concurrent use.
type Engine struct {
	cfg       GridConfig
	roots     []cellid.CellID
	precision []float64
	cache     *ristretto.Cache[uint64, *cellGeometry]
}

// NewEngine validates cfg, loads the base cells and precomputes the precision
// table.
func NewEngine(cfg GridConfig) (*Engine, error) {
	if cfg.MaxLevel < 0 || cfg.MaxLevel > cellid.MaxResolution {
		return nil, x.Invalidf("max level %d outside [0, %d]", cfg.MaxLevel, cellid.MaxResolution)
	}
	if cfg.SphereRadius == 0 {
		cfg.SphereRadius = types.EarthRadiusMeters
	}
	if cfg.SphereRadius < 0 || math.IsNaN(cfg.SphereRadius) || math.IsInf(cfg.SphereRadius, 0) {
		return nil, x.Invalidf("sphere radius %v", cfg.SphereRadius)
	}
	if cfg.Reprojector == nil {
		cfg.Reprojector = NoReprojection{}
	}

	roots, err := res0Cells()
	if err != nil {
		return nil, err
	}
	if len(roots) != cellid.NumBaseCells {
		return nil, errors.Errorf("grid library returned %d base cells, want %d",
			len(roots), cellid.NumBaseCells)
	}

	e := &Engine{
		cfg:       cfg,
		roots:     roots,
		precision: precisionTable(cfg.SphereRadius),
	}
	if cfg.CacheCells > 0 {
		e.cache, err = ristretto.NewCache[uint64, *cellGeometry](&ristretto.Config[uint64, *cellGeometry]{
			NumCounters:        10 * cfg.CacheCells,
			MaxCost:            cfg.CacheCells,
			BufferItems:        64,
			IgnoreInternalCost: true,
		})
		if err != nil {
			return nil, errors.Wrap(err, "while creating cell geometry cache")
		}
	}
	glog.V(2).Infof("Grid engine ready: max level %d, root precision %s",
		cfg.MaxLevel, types.Length(e.precision[0]))
	return e, nil
}

// Close releases the geometry cache.
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

// MaxLevel returns the finest level of the engine.
func (e *Engine) MaxLevel() int {
	return e.cfg.MaxLevel
}

// Zone wraps id after checking that the engine can serve it.
func (e *Engine) Zone(id cellid.CellID) (Zone, error) {
	if !id.IsValid() {
		return Zone{}, x.Invalidf("cell %s is not valid", id)
	}
	if id.Resolution() > e.cfg.MaxLevel {
		return Zone{}, x.Invalidf("cell %s is finer than max level %d", id, e.cfg.MaxLevel)
	}
	return Zone{ID: id, eng: e}, nil
}

// ParseZone parses the hexadecimal form of a zone.
func (e *Engine) ParseZone(s string) (Zone, error) {
	id, err := cellid.FromString(s)
	if err != nil {
		return Zone{}, err
	}
	return e.Zone(id)
}

// Roots returns the 122 zones of level 0.
func (e *Engine) Roots() []Zone {
	out := make([]Zone, len(e.roots))
	for i, r := range e.roots {
		out[i] = Zone{ID: r, eng: e}
	}
	return out
}

func (e *Engine) checkLevel(level int) error {
	if level < 0 || level > e.cfg.MaxLevel {
		return x.Invalidf("level %d outside [0, %d]", level, e.cfg.MaxLevel)
	}
	return nil
}

func (e *Engine) geometry(c cellid.CellID) (*cellGeometry, error) {
	if e.cache != nil {
		if g, ok := e.cache.Get(uint64(c)); ok {
			return g, nil
		}
	}
	boundary, err := cellBoundary(c)
	if err != nil {
		return nil, err
	}
	centroid, err := cellCentroid(c)
	if err != nil {
		return nil, err
	}
	pts := make([]s2.Point, len(boundary))
	for i, v := range boundary {
		pts[i] = v.point()
	}
	loop := s2.LoopFromPoints(pts)
	g := &cellGeometry{
		boundary: boundary,
		centroid: centroid,
		loop:     loop,
		rect:     loop.RectBound(),
	}
	if e.cache != nil {
		e.cache.Set(uint64(c), g, 1)
	}
	return g, nil
}

// encodeLatLng maps a base CRS position to its cell at level.
func (e *Engine) encodeLatLng(ll LatLng, level int) (cellid.CellID, error) {
	if err := e.checkLevel(level); err != nil {
		return cellid.Invalid, err
	}
	return latLngToCell(ll, level)
}
