/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package index

import (
	"github.com/hypermodeinc/dggrs/rtree"
	"github.com/hypermodeinc/dggrs/types"
)

// Iterator walks the result of Index.Search. Every step holds the lock of
// the index, so it may be used while other goroutines write to the index.
type Iterator struct {
	idx        *Index
	it         *rtree.Iterator
	generation uint64
	err        error
}

// Next advances to the next matching element. It returns false once the
// walk is done or failed; Err tells which.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.idx.Lock()
	defer it.idx.Unlock()
	if err := it.idx.checkOpen(); err != nil {
		it.err = err
		return false
	}
	if it.idx.generation != it.generation {
		it.err = rtree.ErrModified
		return false
	}
	return it.it.Next()
}

// ID returns the current element id.
func (it *Iterator) ID() int { return it.it.ID() }

// Envelope returns the envelope stored for the current element.
func (it *Iterator) Envelope() types.Envelope { return it.it.Envelope() }

// Err returns rtree.ErrModified if the index changed during the walk, or the
// error of a closed index.
func (it *Iterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.it.Err()
}
