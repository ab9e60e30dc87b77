/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package rtree

import (
	"github.com/hypermodeinc/dggrs/types"
)

type orphan struct {
	entry Entry
	level int
}

// Remove deletes the element id whose envelope intersects env. It reports
// whether an element was found.
func (t *Tree) Remove(env types.Envelope, id int) bool {
	leaf, pos := t.findLeaf(env, id)
	if leaf < 0 {
		return false
	}
	t.version++
	entries := t.nodes[leaf].Entries
	t.nodes[leaf].Entries = append(entries[:pos], entries[pos+1:]...)
	t.size--
	t.condense(leaf)
	return true
}

// findLeaf returns the leaf and position of element id, or -1.
func (t *Tree) findLeaf(env types.Envelope, id int) (int, int) {
	stack := []int{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &t.nodes[n]
		for i, e := range node.Entries {
			if !e.Env.Intersects(env) {
				continue
			}
			if node.Leaf {
				if e.Index == id {
					return n, i
				}
				continue
			}
			stack = append(stack, e.Index)
		}
	}
	return -1, -1
}

// condense walks from leaf to the root, dropping nodes that fell below the
// minimum fan-out and refitting the others. The entries of dropped nodes are
// inserted again at their own level.
func (t *Tree) condense(leaf int) {
	var orphans []orphan
	n := leaf
	for n != t.root {
		p := t.nodes[n].Parent
		if len(t.nodes[n].Entries) < t.policy.MinEntries {
			i := t.entryIndex(p, n)
			pe := t.nodes[p].Entries
			t.nodes[p].Entries = append(pe[:i], pe[i+1:]...)
			level := t.nodes[n].Level
			for _, e := range t.nodes[n].Entries {
				orphans = append(orphans, orphan{entry: e, level: level})
			}
			t.release(n)
		} else {
			i := t.entryIndex(p, n)
			t.nodes[p].Entries[i].Env = t.nodes[n].bounds()
		}
		n = p
	}
	t.shrinkRoot()

	// Higher levels first, so that subtrees find a home before the
	// elements do.
	for lvl := t.maxOrphanLevel(orphans); lvl >= 0; lvl-- {
		for _, o := range orphans {
			if o.level != lvl {
				continue
			}
			if o.level > t.nodes[t.root].Level {
				t.flatten(o.entry, o.level)
				continue
			}
			t.insert(o.entry, o.level, make(map[int]bool))
		}
	}
}

func (t *Tree) maxOrphanLevel(orphans []orphan) int {
	max := -1
	for _, o := range orphans {
		if o.level > max {
			max = o.level
		}
	}
	return max
}

// shrinkRoot replaces a root holding a single child by that child, and turns
// an empty internal root back into a leaf.
func (t *Tree) shrinkRoot() {
	for {
		r := &t.nodes[t.root]
		if r.Leaf {
			return
		}
		switch len(r.Entries) {
		case 0:
			t.nodes[t.root] = Node{Leaf: true, Level: 0, Parent: noParent}
			return
		case 1:
			child := r.Entries[0].Index
			t.release(t.root)
			t.root = child
			t.nodes[child].Parent = noParent
		default:
			return
		}
	}
}

// flatten inserts every element below e, an entry of a node at level, as a
// leaf entry and releases the nodes of that subtree. It is used when the tree
// became too shallow to hold e at its level.
func (t *Tree) flatten(e Entry, level int) {
	if level == 0 {
		t.insert(e, 0, make(map[int]bool))
		return
	}
	child := e.Index
	entries := append([]Entry(nil), t.nodes[child].Entries...)
	childLevel := t.nodes[child].Level
	t.release(child)
	for _, ce := range entries {
		t.flatten(ce, childLevel)
	}
}
