/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package rtree

import (
	"github.com/pkg/errors"
)

// Check walks the tree and verifies its structure: parent links, levels,
// fan-out bounds, and that every parent entry holds the exact union of its
// child. Every live node must be reached exactly once from the root.
func (t *Tree) Check() error {
	if t.root < 0 || t.root >= len(t.nodes) {
		return errors.Errorf("root %d out of range [0, %d)", t.root, len(t.nodes))
	}
	root := &t.nodes[t.root]
	if root.Parent != noParent {
		return errors.Errorf("root %d has parent %d", t.root, root.Parent)
	}
	if !root.Leaf && len(root.Entries) < 2 {
		return errors.Errorf("internal root %d has %d entries", t.root, len(root.Entries))
	}

	seen := make(map[int]bool, len(t.nodes))
	elements := 0
	var walk func(n int) error
	walk = func(n int) error {
		if n < 0 || n >= len(t.nodes) {
			return errors.Errorf("node %d out of range", n)
		}
		if seen[n] {
			return errors.Errorf("node %d reached twice", n)
		}
		seen[n] = true
		node := &t.nodes[n]
		if node.Level == freeLevel {
			return errors.Errorf("node %d is on the free list", n)
		}
		if node.Leaf != (node.Level == 0) {
			return errors.Errorf("node %d: leaf=%t at level %d", n, node.Leaf, node.Level)
		}
		if k := len(node.Entries); k > t.policy.MaxEntries {
			return errors.Errorf("node %d has %d entries, max %d", n, k, t.policy.MaxEntries)
		}
		if n != t.root && len(node.Entries) < t.policy.MinEntries {
			return errors.Errorf("node %d has %d entries, min %d", n, len(node.Entries),
				t.policy.MinEntries)
		}
		if node.Leaf {
			for _, e := range node.Entries {
				if !e.Env.Valid() {
					return errors.Errorf("element %d in node %d has envelope %s", e.Index, n, e.Env)
				}
			}
			elements += len(node.Entries)
			return nil
		}
		for _, e := range node.Entries {
			if e.Index < 0 || e.Index >= len(t.nodes) {
				return errors.Errorf("node %d points at missing node %d", n, e.Index)
			}
			child := &t.nodes[e.Index]
			if child.Parent != n {
				return errors.Errorf("node %d has parent %d, expected %d", e.Index, child.Parent, n)
			}
			if child.Level != node.Level-1 {
				return errors.Errorf("node %d at level %d under node %d at level %d",
					e.Index, child.Level, n, node.Level)
			}
			if got := child.bounds(); got != e.Env {
				return errors.Errorf("entry for node %d in node %d is %s, children cover %s",
					e.Index, n, e.Env, got)
			}
			if err := walk(e.Index); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(t.root); err != nil {
		return err
	}
	if elements != t.size {
		return errors.Errorf("found %d elements, size is %d", elements, t.size)
	}
	if live := t.NumNodes(); live != len(seen) {
		return errors.Errorf("%d live nodes, %d reachable", live, len(seen))
	}
	return nil
}
