/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package mapper

import (
	"encoding/binary"
	"math"

	farm "github.com/dgryski/go-farm"
	"github.com/pkg/errors"

	"github.com/hypermodeinc/dggrs/types"
)

// ErrCorruptRecord is returned when a stored record fails to decode.
var ErrCorruptRecord = errors.New("corrupt mapper record")

// appendRecord appends the encoding of e to b:
// uvarint(len(identifier)) identifier varint(nbenv) minx maxx miny maxy.
func appendRecord(b []byte, e Element) []byte {
	b = binary.AppendUvarint(b, uint64(len(e.Identifier)))
	b = append(b, e.Identifier...)
	b = binary.AppendVarint(b, int64(e.NbEnv))
	for _, f := range [...]float64{e.Envelope.MinX, e.Envelope.MaxX, e.Envelope.MinY, e.Envelope.MaxY} {
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(f))
	}
	return b
}

// readRecord decodes one record from b and returns the rest.
func readRecord(b []byte) (Element, []byte, error) {
	var e Element
	n, k := binary.Uvarint(b)
	if k <= 0 || uint64(len(b)-k) < n {
		return e, nil, errors.Wrap(ErrCorruptRecord, "identifier")
	}
	b = b[k:]
	e.Identifier = string(b[:n])
	b = b[n:]
	nb, k := binary.Varint(b)
	if k <= 0 {
		return e, nil, errors.Wrap(ErrCorruptRecord, "nbenv")
	}
	e.NbEnv = int(nb)
	b = b[k:]
	if len(b) < 32 {
		return e, nil, errors.Wrap(ErrCorruptRecord, "envelope")
	}
	f := func(i int) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:])) }
	e.Envelope = types.Envelope{MinX: f(0), MaxX: f(1), MinY: f(2), MaxY: f(3)}
	return e, b[32:], nil
}

// encodeValue returns a single record followed by its farm fingerprint, the
// value format of the key-value backends.
func encodeValue(e Element) []byte {
	b := appendRecord(nil, e)
	return binary.LittleEndian.AppendUint32(b, farm.Fingerprint32(b))
}

func decodeValue(v []byte) (Element, error) {
	if len(v) < 4 {
		return Element{}, errors.Wrap(ErrCorruptRecord, "short value")
	}
	body, sum := v[:len(v)-4], binary.LittleEndian.Uint32(v[len(v)-4:])
	if farm.Fingerprint32(body) != sum {
		return Element{}, errors.Wrap(ErrCorruptRecord, "checksum mismatch")
	}
	e, rest, err := readRecord(body)
	if err != nil {
		return Element{}, err
	}
	if len(rest) != 0 {
		return Element{}, errors.Wrapf(ErrCorruptRecord, "%d trailing bytes", len(rest))
	}
	return e, nil
}
