/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package rtree

import (
	"math"
	"sort"

	"github.com/hypermodeinc/dggrs/types"
)

type axis struct {
	lo, hi func(types.Envelope) float64
}

var axes = [2]axis{
	{lo: func(e types.Envelope) float64 { return e.MinX }, hi: func(e types.Envelope) float64 { return e.MaxX }},
	{lo: func(e types.Envelope) float64 { return e.MinY }, hi: func(e types.Envelope) float64 { return e.MaxY }},
}

// sortings returns the entries ordered by lower then by upper bound on a.
func sortings(entries []Entry, a axis) [2][]Entry {
	byLo := append([]Entry(nil), entries...)
	sort.SliceStable(byLo, func(i, j int) bool {
		li, lj := a.lo(byLo[i].Env), a.lo(byLo[j].Env)
		if li != lj {
			return li < lj
		}
		return a.hi(byLo[i].Env) < a.hi(byLo[j].Env)
	})
	byHi := append([]Entry(nil), entries...)
	sort.SliceStable(byHi, func(i, j int) bool {
		hi, hj := a.hi(byHi[i].Env), a.hi(byHi[j].Env)
		if hi != hj {
			return hi < hj
		}
		return a.lo(byHi[i].Env) < a.lo(byHi[j].Env)
	})
	return [2][]Entry{byLo, byHi}
}

// prefixBounds returns for each k the union of entries[:k+1] and of entries[k:].
func prefixBounds(entries []Entry) (head, tail []types.Envelope) {
	n := len(entries)
	head = make([]types.Envelope, n)
	tail = make([]types.Envelope, n)
	acc := types.EmptyEnvelope
	for i := 0; i < n; i++ {
		acc = acc.Union(entries[i].Env)
		head[i] = acc
	}
	acc = types.EmptyEnvelope
	for i := n - 1; i >= 0; i-- {
		acc = acc.Union(entries[i].Env)
		tail[i] = acc
	}
	return head, tail
}

// splitEntries distributes entries over two new slices following the R*
// split: the axis with the smallest total margin wins, then the distribution
// along it with the least overlap, then the least total area.
func (t *Tree) splitEntries(entries []Entry) (left, right []Entry) {
	m := t.policy.MinEntries
	n := len(entries)

	bestAxis, bestMargin := 0, math.Inf(1)
	var perAxis [2][2][]Entry
	for ai, a := range axes {
		perAxis[ai] = sortings(entries, a)
		var margin float64
		for _, s := range perAxis[ai] {
			head, tail := prefixBounds(s)
			for k := m; k <= n-m; k++ {
				margin += head[k-1].Margin() + tail[k].Margin()
			}
		}
		if margin < bestMargin {
			bestAxis, bestMargin = ai, margin
		}
	}

	var best []Entry
	bestK := -1
	bestOverlap, bestArea := math.Inf(1), math.Inf(1)
	for _, s := range perAxis[bestAxis] {
		head, tail := prefixBounds(s)
		for k := m; k <= n-m; k++ {
			l, r := head[k-1], tail[k]
			overlap := l.Overlap(r)
			area := l.Area() + r.Area()
			if overlap < bestOverlap || (overlap == bestOverlap && area < bestArea) {
				best, bestK, bestOverlap, bestArea = s, k, overlap, area
			}
		}
	}
	left = append(make([]Entry, 0, t.policy.MaxEntries+1), best[:bestK]...)
	right = append(make([]Entry, 0, t.policy.MaxEntries+1), best[bestK:]...)
	return left, right
}
