/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package geo

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
)

func unitVector(lat, lng float64) r3.Vector {
	return r3.Vector{
		X: math.Cos(lat) * math.Cos(lng),
		Y: math.Cos(lat) * math.Sin(lng),
		Z: math.Sin(lat),
	}
}

// Slerp interpolates along the great circle from a to b. t = 0 gives a and
// t = 1 gives b. Coincident points return a unchanged.
func Slerp(a, b LatLng, t float64) LatLng {
	lat1, lng1 := a.Lat*math.Pi/180, a.Lng*math.Pi/180
	lat2, lng2 := b.Lat*math.Pi/180, b.Lng*math.Pi/180

	cosOmega := math.Sin(lat1)*math.Sin(lat2) + math.Cos(lat1)*math.Cos(lat2)*math.Cos(lng2-lng1)
	// Rounding can push the cosine just past 1 for nearby points.
	cosOmega = math.Max(-1, math.Min(1, cosOmega))
	omega := math.Acos(cosOmega)
	if omega == 0 {
		return a
	}
	sinOmega := math.Sin(omega)
	wa := math.Sin((1-t)*omega) / sinOmega
	wb := math.Sin(t*omega) / sinOmega

	v := unitVector(lat1, lng1).Mul(wa).Add(unitVector(lat2, lng2).Mul(wb))
	lat := math.Atan2(v.Z, math.Hypot(v.X, v.Y))
	lng := math.Atan2(v.Y, v.X)
	return LatLng{Lat: s1.Angle(lat).Degrees(), Lng: s1.Angle(lng).Degrees()}
}
