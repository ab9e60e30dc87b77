/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package rtree

import (
	"bytes"
	"encoding/binary"
	"math"

	farm "github.com/dgryski/go-farm"
	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/hypermodeinc/dggrs/types"
)

const (
	codecMagic   = "DGRT"
	codecVersion = 1
	headerLen    = len(codecMagic) + 1
	trailerLen   = 8
)

// ErrCorrupt is returned when serialized tree data fails validation.
var ErrCorrupt = errors.New("corrupt tree data")

// MarshalBinary encodes the tree. Node ids, the free list and the element
// ids are kept, so a decoded tree is identical to t.
func (t *Tree) MarshalBinary() ([]byte, error) {
	var body []byte
	body = binary.AppendUvarint(body, uint64(t.policy.MinEntries))
	body = binary.AppendUvarint(body, uint64(t.policy.MaxEntries))
	body = binary.AppendUvarint(body, uint64(t.root))
	body = binary.AppendUvarint(body, uint64(t.size))
	body = binary.AppendUvarint(body, uint64(len(t.nodes)))
	for _, n := range t.nodes {
		body = binary.AppendVarint(body, int64(n.Level))
		if n.Level == freeLevel {
			continue
		}
		body = binary.AppendVarint(body, int64(n.Parent))
		body = binary.AppendUvarint(body, uint64(len(n.Entries)))
		for _, e := range n.Entries {
			body = appendFloat(body, e.Env.MinX)
			body = appendFloat(body, e.Env.MaxX)
			body = appendFloat(body, e.Env.MinY)
			body = appendFloat(body, e.Env.MaxY)
			body = binary.AppendVarint(body, int64(e.Index))
		}
	}
	body = binary.AppendUvarint(body, uint64(len(t.free)))
	for _, id := range t.free {
		body = binary.AppendUvarint(body, uint64(id))
	}

	out := make([]byte, 0, headerLen+snappy.MaxEncodedLen(len(body))+trailerLen)
	out = append(out, codecMagic...)
	out = append(out, codecVersion)
	out = append(out, snappy.Encode(nil, body)...)
	return binary.LittleEndian.AppendUint64(out, farm.Fingerprint64(out)), nil
}

func appendFloat(b []byte, f float64) []byte {
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(f))
}

// UnmarshalBinary replaces t with the tree encoded in data. The decoded tree
// is checked before it is accepted; t is left unchanged on error.
func (t *Tree) UnmarshalBinary(data []byte) error {
	if len(data) < headerLen+trailerLen || !bytes.Equal(data[:len(codecMagic)], []byte(codecMagic)) {
		return errors.Wrap(ErrCorrupt, "bad header")
	}
	if v := data[len(codecMagic)]; v != codecVersion {
		return errors.Wrapf(ErrCorrupt, "unsupported version %d", v)
	}
	payload, trailer := data[:len(data)-trailerLen], data[len(data)-trailerLen:]
	if farm.Fingerprint64(payload) != binary.LittleEndian.Uint64(trailer) {
		return errors.Wrap(ErrCorrupt, "checksum mismatch")
	}
	body, err := snappy.Decode(nil, payload[headerLen:])
	if err != nil {
		return errors.Wrap(ErrCorrupt, err.Error())
	}

	r := &reader{buf: body}
	nt := &Tree{}
	nt.policy.MinEntries = int(r.uvarint())
	nt.policy.MaxEntries = int(r.uvarint())
	nt.root = int(r.uvarint())
	nt.size = int(r.uvarint())
	numNodes := r.uvarint()
	if r.err == nil && numNodes > uint64(len(body)) {
		return errors.Wrapf(ErrCorrupt, "%d nodes in %d bytes", numNodes, len(body))
	}
	nt.nodes = make([]Node, 0, numNodes)
	for i := uint64(0); i < numNodes && r.err == nil; i++ {
		level := int(r.varint())
		if level == freeLevel {
			nt.nodes = append(nt.nodes, Node{Level: freeLevel, Parent: noParent})
			continue
		}
		n := Node{Leaf: level == 0, Level: level, Parent: int(r.varint())}
		k := r.uvarint()
		if k > uint64(nt.policy.MaxEntries) {
			return errors.Wrapf(ErrCorrupt, "node %d has %d entries", i, k)
		}
		n.Entries = make([]Entry, 0, k)
		for j := uint64(0); j < k; j++ {
			var env types.Envelope
			env.MinX = r.float()
			env.MaxX = r.float()
			env.MinY = r.float()
			env.MaxY = r.float()
			n.Entries = append(n.Entries, Entry{Env: env, Index: int(r.varint())})
		}
		nt.nodes = append(nt.nodes, n)
	}
	numFree := r.uvarint()
	for i := uint64(0); i < numFree && r.err == nil; i++ {
		nt.free = append(nt.free, int(r.uvarint()))
	}
	if r.err != nil {
		return errors.Wrap(ErrCorrupt, r.err.Error())
	}
	if len(r.buf) != 0 {
		return errors.Wrapf(ErrCorrupt, "%d trailing bytes", len(r.buf))
	}
	if _, err := NewPolicy(nt.policy.MinEntries, nt.policy.MaxEntries); err != nil {
		return errors.Wrap(ErrCorrupt, err.Error())
	}
	for _, id := range nt.free {
		if id < 0 || id >= len(nt.nodes) || nt.nodes[id].Level != freeLevel {
			return errors.Wrapf(ErrCorrupt, "free list holds node %d", id)
		}
	}
	if err := nt.Check(); err != nil {
		return errors.Wrap(ErrCorrupt, err.Error())
	}
	nt.version = t.version + 1
	*t = *nt
	return nil
}

type reader struct {
	buf []byte
	err error
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.err = errors.New("truncated uvarint")
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *reader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf)
	if n <= 0 {
		r.err = errors.New("truncated varint")
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *reader) float() float64 {
	if r.err != nil {
		return 0
	}
	if len(r.buf) < 8 {
		r.err = errors.New("truncated float")
		return 0
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.buf))
	r.buf = r.buf[8:]
	return v
}
