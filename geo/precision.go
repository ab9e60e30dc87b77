/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package geo

import (
	"math"

	"github.com/hypermodeinc/dggrs/cellid"
	"github.com/hypermodeinc/dggrs/types"
)

// refinementRatio is the number of children per cell, ignoring pentagons.
const refinementRatio = 7

// precisionTable returns the average linear cell size per level: the side of
// a square with the mean cell area at level 0, shrinking by sqrt(7) per level.
func precisionTable(radius float64) []float64 {
	p := make([]float64, cellid.MaxResolution+1)
	p[0] = math.Sqrt(types.EarthSurfaceM2(radius) / cellid.NumBaseCells)
	step := math.Sqrt(refinementRatio)
	for l := 1; l < len(p); l++ {
		p[l] = p[l-1] / step
	}
	return p
}

// PrecisionAtLevel returns the average cell size at level, in meters.
func (e *Engine) PrecisionAtLevel(level int) (float64, error) {
	if err := e.checkLevel(level); err != nil {
		return 0, err
	}
	return e.precision[level], nil
}

// LevelForPrecision returns the coarsest level whose cell size is below
// meters. Requests coarser than level 0 get 0. Requests finer than the max
// level get the max level rather than the 0 a literal "no qualifying level"
// fallback would give, so that a finer request never yields a coarser level.
func (e *Engine) LevelForPrecision(meters float64) int {
	for l := 0; l <= e.cfg.MaxLevel; l++ {
		if e.precision[l] < meters {
			return l
		}
	}
	return e.cfg.MaxLevel
}
