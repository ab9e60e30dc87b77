/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package rtree

import (
	"math"
	"sort"

	"github.com/hypermodeinc/dggrs/types"
	"github.com/hypermodeinc/dggrs/x"
)

// Insert adds the element id with envelope env. Inserting the same id twice
// stores it twice; callers remove the old entry first.
func (t *Tree) Insert(env types.Envelope, id int) error {
	if !env.Valid() {
		return x.Invalidf("envelope %s of element %d", env, id)
	}
	t.version++
	t.insert(Entry{Env: env, Index: id}, 0, make(map[int]bool))
	t.size++
	return nil
}

// insert places e into a node at level. reinserted tracks the levels that
// already went through a forced reinsert during the current operation.
func (t *Tree) insert(e Entry, level int, reinserted map[int]bool) {
	n := t.chooseNode(e.Env, level)
	t.nodes[n].Entries = append(t.nodes[n].Entries, e)
	t.setParent(e, level, n)
	t.refit(n)
	if len(t.nodes[n].Entries) > t.policy.MaxEntries {
		t.overflow(n, reinserted)
	}
}

// chooseNode descends from the root to the node at level that needs the
// least enlargement to hold env. Just above the leaves the overlap
// enlargement decides, higher up the area enlargement. Ties go to the
// smaller node.
func (t *Tree) chooseNode(env types.Envelope, level int) int {
	n := t.root
	for t.nodes[n].Level > level {
		entries := t.nodes[n].Entries
		best := 0
		if t.nodes[n].Level == 1 {
			best = chooseByOverlap(entries, env)
		} else {
			best = chooseByArea(entries, env)
		}
		n = entries[best].Index
	}
	return n
}

func chooseByArea(entries []Entry, env types.Envelope) int {
	best, bestEnl, bestArea := 0, math.Inf(1), math.Inf(1)
	for i, e := range entries {
		enl := e.Env.Enlargement(env)
		area := e.Env.Area()
		if enl < bestEnl || (enl == bestEnl && area < bestArea) {
			best, bestEnl, bestArea = i, enl, area
		}
	}
	return best
}

func chooseByOverlap(entries []Entry, env types.Envelope) int {
	best := 0
	bestOverlap, bestEnl, bestArea := math.Inf(1), math.Inf(1), math.Inf(1)
	for i, e := range entries {
		grown := e.Env.Union(env)
		var delta float64
		for j, o := range entries {
			if j == i {
				continue
			}
			delta += grown.Overlap(o.Env) - e.Env.Overlap(o.Env)
		}
		enl := grown.Area() - e.Env.Area()
		area := e.Env.Area()
		switch {
		case delta < bestOverlap,
			delta == bestOverlap && enl < bestEnl,
			delta == bestOverlap && enl == bestEnl && area < bestArea:
			best, bestOverlap, bestEnl, bestArea = i, delta, enl, area
		}
	}
	return best
}

// overflow treats a node with too many entries: the first time a level
// overflows during an operation some entries are reinserted, afterwards the
// node is split.
func (t *Tree) overflow(n int, reinserted map[int]bool) {
	level := t.nodes[n].Level
	if n != t.root && !reinserted[level] {
		reinserted[level] = true
		t.reinsert(n, reinserted)
		return
	}
	t.split(n, reinserted)
}

// reinsert removes the entries of n farthest from its center and inserts
// them again, closest first.
func (t *Tree) reinsert(n int, reinserted map[int]bool) {
	node := &t.nodes[n]
	level := node.Level
	center := node.bounds()
	sort.SliceStable(node.Entries, func(i, j int) bool {
		return node.Entries[i].Env.CenterDistance2(center) > node.Entries[j].Env.CenterDistance2(center)
	})
	p := int(math.Ceil(reinsertFraction * float64(t.policy.MaxEntries)))
	if p < 1 {
		p = 1
	}
	removed := append([]Entry(nil), node.Entries[:p]...)
	node.Entries = append(node.Entries[:0], node.Entries[p:]...)
	t.refit(n)
	for i := len(removed) - 1; i >= 0; i-- {
		t.insert(removed[i], level, reinserted)
	}
}

// split divides n in two and pushes the new sibling into the parent, growing
// a new root when n was the root.
func (t *Tree) split(n int, reinserted map[int]bool) {
	level := t.nodes[n].Level
	left, right := t.splitEntries(t.nodes[n].Entries)
	t.nodes[n].Entries = left
	sibling := t.alloc(Node{
		Leaf:    t.nodes[n].Leaf,
		Level:   level,
		Parent:  t.nodes[n].Parent,
		Entries: right,
	})
	for _, e := range right {
		t.setParent(e, level, sibling)
	}

	if n == t.root {
		root := t.alloc(Node{
			Level:  level + 1,
			Parent: noParent,
			Entries: []Entry{
				{Env: t.nodes[n].bounds(), Index: n},
				{Env: t.nodes[sibling].bounds(), Index: sibling},
			},
		})
		t.nodes[n].Parent = root
		t.nodes[sibling].Parent = root
		t.root = root
		return
	}

	p := t.nodes[n].Parent
	t.nodes[p].Entries = append(t.nodes[p].Entries, Entry{Env: t.nodes[sibling].bounds(), Index: sibling})
	t.refit(n)
	if len(t.nodes[p].Entries) > t.policy.MaxEntries {
		t.overflow(p, reinserted)
	}
}
