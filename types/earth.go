/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package types

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// EarthRadiusMeters is the authalic radius of the WGS84 ellipsoid, i.e. the
// radius of the sphere with the same surface area.
const EarthRadiusMeters = 6371007.180918475

// EarthSurfaceM2 is the surface of a sphere of the given radius in square meters.
func EarthSurfaceM2(radius float64) float64 {
	return 4 * math.Pi * radius * radius
}

// Length is a distance on Earth in meters.
type Length float64

// String prints the length in cm, m or km.
func (l Length) String() string {
	switch {
	case l > 1000:
		return fmt.Sprintf("%.3f km", l/1000)
	case l < 1:
		return fmt.Sprintf("%.3f cm", l*100)
	default:
		return fmt.Sprintf("%.3f m", l)
	}
}

// Area is a surface on Earth in square meters.
type Area float64

const km2 = 1000 * 1000

// String prints the area in m² below a square kilometer and in km² above,
// with thousands separators.
func (a Area) String() string {
	if a >= km2 {
		return humanize.FormatFloat("#,###.###", float64(a/km2)) + " km²"
	}
	return humanize.FormatFloat("#,###.##", float64(a)) + " m²"
}
