/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package mapper

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"

	farm "github.com/dgryski/go-farm"
	"github.com/golang/glog"
	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/hypermodeinc/dggrs/x"
)

const (
	// BlobFile is the name of the blob mapper file inside the index directory.
	BlobFile = "mapper.bin"

	blobMagic   = "DGEM"
	blobVersion = 1
)

// Blob keeps every record in memory and persists them as one compressed
// file, replaced atomically on Flush.
type Blob struct {
	base
	file    string
	byID    map[int]Element
	byIdent map[string]int
	dirty   bool
}

var _ Reloader = (*Blob)(nil)

// OpenBlob opens the blob mapper stored in dir, creating dir if needed.
func OpenBlob(dir string) (*Blob, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, x.StoreErr(err, "create %s", dir)
	}
	b := &Blob{file: filepath.Join(dir, BlobFile)}
	if err := b.load(); err != nil {
		return nil, err
	}
	glog.V(2).Infof("Opened blob mapper %s with %d records", b.file, len(b.byID))
	return b, nil
}

func (b *Blob) load() error {
	byID, err := b.readStored()
	if err != nil {
		return err
	}
	b.install(byID)
	return nil
}

func (b *Blob) readStored() (map[int]Element, error) {
	data, err := x.ReadFileIfExists(b.file)
	if err != nil {
		return nil, x.StoreErr(err, "read %s", b.file)
	}
	byID, err := decodeBlob(data)
	if err != nil {
		return nil, x.StoreErr(err, "decode %s", b.file)
	}
	return byID, nil
}

func (b *Blob) install(byID map[int]Element) {
	b.byID = byID
	b.byIdent = make(map[string]int, len(byID))
	for id, e := range byID {
		b.byIdent[e.Identifier] = id
	}
	b.dirty = false
}

func (b *Blob) TreeIdentifier(_ context.Context, e Element) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen("tree identifier"); err != nil {
		return NotFound, err
	}
	if id, ok := b.byIdent[e.Identifier]; ok {
		return id, nil
	}
	return NotFound, nil
}

func (b *Blob) SetTreeIdentifier(_ context.Context, e *Element, id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen("set tree identifier"); err != nil {
		return err
	}
	if old, ok := b.byID[id]; ok {
		delete(b.byIdent, old.Identifier)
		delete(b.byID, id)
	}
	if e != nil {
		if other, ok := b.byIdent[e.Identifier]; ok {
			delete(b.byID, other)
		}
		b.byID[id] = *e
		b.byIdent[e.Identifier] = id
	}
	b.dirty = true
	return nil
}

func (b *Blob) ObjectFromTreeIdentifier(_ context.Context, id int) (*Element, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen("object"); err != nil {
		return nil, err
	}
	e, ok := b.byID[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (b *Blob) FullMap(_ context.Context) (map[int]Element, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen("full map"); err != nil {
		return nil, err
	}
	out := make(map[int]Element, len(b.byID))
	for id, e := range b.byID {
		out[id] = e
	}
	return out, nil
}

func (b *Blob) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen("clear"); err != nil {
		return err
	}
	b.byID = make(map[int]Element)
	b.byIdent = make(map[string]int)
	b.dirty = true
	return nil
}

// Flush writes the records to disk if they changed since the last flush.
func (b *Blob) Flush(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen("flush"); err != nil {
		return err
	}
	return b.flush()
}

func (b *Blob) flush() error {
	if !b.dirty {
		return nil
	}
	if err := x.WriteFileAtomic(b.file, encodeBlob(b.byID), 0600); err != nil {
		return x.StoreErr(err, "write %s", b.file)
	}
	b.dirty = false
	return nil
}

// LoadStored reads the records of the file. The live records are left as
// they are.
func (b *Blob) LoadStored(_ context.Context) (map[int]Element, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen("load"); err != nil {
		return nil, err
	}
	return b.readStored()
}

// Install replaces the live records by records, dropping unflushed changes.
// The mapper keeps records, which must not be used by the caller afterwards.
func (b *Blob) Install(records map[int]Element) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen("install"); err != nil {
		return err
	}
	if records == nil {
		records = make(map[int]Element)
	}
	b.install(records)
	return nil
}

// Reload drops unflushed changes and reads the file again.
func (b *Blob) Reload(ctx context.Context) error {
	records, err := b.LoadStored(ctx)
	if err != nil {
		return err
	}
	return b.Install(records)
}

// Close flushes pending changes and releases the mapper.
func (b *Blob) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	err := b.flush()
	b.closed = true
	b.byID, b.byIdent = nil, nil
	return err
}

func encodeBlob(byID map[int]Element) []byte {
	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var body []byte
	body = binary.AppendUvarint(body, uint64(len(ids)))
	for _, id := range ids {
		body = binary.AppendVarint(body, int64(id))
		body = appendRecord(body, byID[id])
	}
	out := append([]byte(blobMagic), blobVersion)
	out = append(out, snappy.Encode(nil, body)...)
	return binary.LittleEndian.AppendUint64(out, farm.Fingerprint64(out))
}

// decodeBlob decodes a mapper file. No data means no records.
func decodeBlob(data []byte) (map[int]Element, error) {
	out := make(map[int]Element)
	if len(data) == 0 {
		return out, nil
	}
	header := len(blobMagic) + 1
	if len(data) < header+8 || !bytes.Equal(data[:len(blobMagic)], []byte(blobMagic)) {
		return nil, errors.Wrap(ErrCorruptRecord, "bad mapper header")
	}
	if v := data[len(blobMagic)]; v != blobVersion {
		return nil, errors.Wrapf(ErrCorruptRecord, "unsupported mapper version %d", v)
	}
	payload := data[:len(data)-8]
	if farm.Fingerprint64(payload) != binary.LittleEndian.Uint64(data[len(data)-8:]) {
		return nil, errors.Wrap(ErrCorruptRecord, "mapper checksum mismatch")
	}
	body, err := snappy.Decode(nil, payload[header:])
	if err != nil {
		return nil, errors.Wrap(ErrCorruptRecord, err.Error())
	}
	n, k := binary.Uvarint(body)
	if k <= 0 {
		return nil, errors.Wrap(ErrCorruptRecord, "record count")
	}
	body = body[k:]
	for i := uint64(0); i < n; i++ {
		id, k := binary.Varint(body)
		if k <= 0 {
			return nil, errors.Wrapf(ErrCorruptRecord, "id of record %d", i)
		}
		var e Element
		e, body, err = readRecord(body[k:])
		if err != nil {
			return nil, err
		}
		out[int(id)] = e
	}
	if len(body) != 0 {
		return nil, errors.Wrapf(ErrCorruptRecord, "%d trailing bytes", len(body))
	}
	return out, nil
}
