/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

// Package rtree is an in-memory R*-tree over envelopes, keyed by integer
// identifiers. Nodes live in a flat table and are addressed by their index,
// which stays stable across serialization.
package rtree

import (
	"github.com/hypermodeinc/dggrs/types"
	"github.com/hypermodeinc/dggrs/x"
)

const (
	noParent  = -1
	freeLevel = -1

	// DefaultMinEntries and DefaultMaxEntries bound the fan-out of a node.
	DefaultMinEntries = 6
	DefaultMaxEntries = 16

	reinsertFraction = 0.3
)

// Policy bounds the number of entries per node.
type Policy struct {
	MinEntries int
	MaxEntries int
}

// NewPolicy checks that 1 <= min <= max/2.
func NewPolicy(minEntries, maxEntries int) (Policy, error) {
	if minEntries < 1 || maxEntries < 2 || minEntries > maxEntries/2 {
		return Policy{}, x.Invalidf("node fan-out min %d max %d: need 1 <= min <= max/2",
			minEntries, maxEntries)
	}
	return Policy{MinEntries: minEntries, MaxEntries: maxEntries}, nil
}

// DefaultPolicy returns the fan-out used by the index.
func DefaultPolicy() Policy {
	return Policy{MinEntries: DefaultMinEntries, MaxEntries: DefaultMaxEntries}
}

// Entry is an entry under a node, leading either to a child node or, in a
// leaf, to an element.
type Entry struct {
	Env   types.Envelope
	Index int
}

// Node is a node of the tree. Leaves sit at level 0 and hold element
// entries. A node at level l > 0 holds entries for nodes at level l-1.
type Node struct {
	Leaf    bool
	Level   int
	Parent  int
	Entries []Entry
}

func (n *Node) bounds() types.Envelope {
	env := types.EmptyEnvelope
	for _, e := range n.Entries {
		env = env.Union(e.Env)
	}
	return env
}

// Tree is an R*-tree. It is not safe for concurrent use.
type Tree struct {
	policy  Policy
	nodes   []Node
	free    []int
	root    int
	size    int
	version uint64
}

// New returns an empty tree.
func New(p Policy) (*Tree, error) {
	if _, err := NewPolicy(p.MinEntries, p.MaxEntries); err != nil {
		return nil, err
	}
	t := &Tree{policy: p}
	t.root = t.alloc(Node{Leaf: true, Level: 0, Parent: noParent})
	return t, nil
}

// Policy returns the fan-out bounds of t.
func (t *Tree) Policy() Policy { return t.policy }

// Len returns the number of elements in t.
func (t *Tree) Len() int { return t.size }

// Height returns the number of levels of t.
func (t *Tree) Height() int { return t.nodes[t.root].Level + 1 }

// NumNodes returns the number of live nodes.
func (t *Tree) NumNodes() int { return len(t.nodes) - len(t.free) }

// Root returns the id of the root node.
func (t *Tree) Root() int { return t.root }

// Node returns a copy of node id. The entries are shared and must not be
// modified.
func (t *Tree) Node(id int) (Node, bool) {
	if id < 0 || id >= len(t.nodes) || t.nodes[id].Level == freeLevel {
		return Node{}, false
	}
	return t.nodes[id], true
}

// Bounds returns the envelope of all elements, empty for an empty tree.
func (t *Tree) Bounds() types.Envelope {
	return t.nodes[t.root].bounds()
}

func (t *Tree) alloc(n Node) int {
	if k := len(t.free); k > 0 {
		id := t.free[k-1]
		t.free = t.free[:k-1]
		t.nodes[id] = n
		return id
	}
	t.nodes = append(t.nodes, n)
	return len(t.nodes) - 1
}

func (t *Tree) release(id int) {
	t.nodes[id] = Node{Level: freeLevel, Parent: noParent}
	t.free = append(t.free, id)
}

// entryIndex returns the position in parent p of the entry for child c.
func (t *Tree) entryIndex(p, c int) int {
	for i, e := range t.nodes[p].Entries {
		if e.Index == c {
			return i
		}
	}
	x.AssertTruef(false, "node %d is not a child of %d", c, p)
	return -1
}

// refit recomputes the envelopes on the path from n to the root.
func (t *Tree) refit(n int) {
	for n != t.root {
		p := t.nodes[n].Parent
		i := t.entryIndex(p, n)
		t.nodes[p].Entries[i].Env = t.nodes[n].bounds()
		n = p
	}
}

func (t *Tree) setParent(e Entry, level, parent int) {
	if level > 0 {
		t.nodes[e.Index].Parent = parent
	}
}
