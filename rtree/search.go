/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package rtree

import (
	"github.com/pkg/errors"

	"github.com/hypermodeinc/dggrs/types"
)

var (
	// Stop can be returned by a Search callback to end the search early
	// without an error.
	Stop = errors.New("stop iteration")

	// ErrModified is reported by an Iterator whose tree changed under it.
	ErrModified = errors.New("tree modified during iteration")
)

// Search calls fn for every element whose envelope intersects env. Only
// nodes whose envelope intersects env are visited. If fn returns Stop the
// search ends and Search returns nil; any other error is returned as is.
func (t *Tree) Search(env types.Envelope, fn func(id int) error) error {
	stack := []int{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &t.nodes[n]
		for _, e := range node.Entries {
			if !e.Env.Intersects(env) {
				continue
			}
			if !node.Leaf {
				stack = append(stack, e.Index)
				continue
			}
			if err := fn(e.Index); err != nil {
				if err == Stop {
					return nil
				}
				return err
			}
		}
	}
	return nil
}

// SearchID returns the ids of all elements whose envelope intersects env.
func (t *Tree) SearchID(env types.Envelope) []int {
	var out []int
	_ = t.Search(env, func(id int) error {
		out = append(out, id)
		return nil
	})
	return out
}

// All returns every element of the tree with its envelope.
func (t *Tree) All() []Entry {
	out := make([]Entry, 0, t.size)
	stack := []int{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &t.nodes[n]
		if node.Leaf {
			out = append(out, node.Entries...)
			continue
		}
		for _, e := range node.Entries {
			stack = append(stack, e.Index)
		}
	}
	return out
}

// Walk visits every node depth-first, parents before children. Returning
// Stop from fn ends the walk.
func (t *Tree) Walk(fn func(id int, n Node) error) error {
	stack := []int{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if err := fn(n, t.nodes[n]); err != nil {
			if err == Stop {
				return nil
			}
			return err
		}
		if t.nodes[n].Leaf {
			continue
		}
		for _, e := range t.nodes[n].Entries {
			stack = append(stack, e.Index)
		}
	}
	return nil
}

type frame struct {
	node int
	pos  int
}

// Iterator walks the elements matching an envelope lazily. Stopping early
// costs nothing beyond the nodes already visited. The tree must not be
// modified while iterating; if it is, Next returns false and Err reports
// ErrModified.
type Iterator struct {
	t       *Tree
	env     types.Envelope
	version uint64
	stack   []frame
	cur     Entry
	err     error
}

// Iter returns an iterator over the elements intersecting env.
func (t *Tree) Iter(env types.Envelope) *Iterator {
	return &Iterator{
		t:       t,
		env:     env,
		version: t.version,
		stack:   []frame{{node: t.root}},
	}
}

// Next advances to the next matching element.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.t.version != it.version {
		it.err = ErrModified
		it.stack = nil
		return false
	}
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		node := &it.t.nodes[top.node]
		if top.pos >= len(node.Entries) {
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}
		e := node.Entries[top.pos]
		top.pos++
		if !e.Env.Intersects(it.env) {
			continue
		}
		if node.Leaf {
			it.cur = e
			return true
		}
		it.stack = append(it.stack, frame{node: e.Index})
	}
	return false
}

// ID returns the current element id.
func (it *Iterator) ID() int { return it.cur.Index }

// Envelope returns the envelope stored for the current element.
func (it *Iterator) Envelope() types.Envelope { return it.cur.Env }

// Err returns ErrModified if the tree changed during the walk.
func (it *Iterator) Err() error { return it.err }
