/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package mapper

import (
	"context"
	"encoding/binary"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/hypermodeinc/dggrs/x"
)

// BadgerDir is the directory of an owned badger store inside the index directory.
const BadgerDir = "mapper.badger"

const (
	byteRecord     = 'r'
	byteIdentifier = 'i'
)

// Badger stores records in a badger key-value store. Every key starts with
// the namespace of the index so that one store can hold many indexes.
type Badger struct {
	base
	db     *badger.DB
	ownsDB bool
	prefix []byte
}

// OpenBadger opens the badger mapper for cfg.Path, on cfg.Badger if set.
func OpenBadger(cfg Config) (*Badger, error) {
	ns, err := Namespace(cfg.Path)
	if err != nil {
		return nil, err
	}
	db, owns := cfg.Badger, false
	if db == nil {
		dir := filepath.Join(cfg.Path, BadgerDir)
		opt := badger.DefaultOptions(dir).
			WithLoggingLevel(badger.WARNING).
			WithSyncWrites(false)
		if db, err = badger.Open(opt); err != nil {
			return nil, x.StoreErr(err, "open badger at %s", dir)
		}
		owns = true
	}
	glog.V(2).Infof("Opened badger mapper %s", ns)
	return &Badger{db: db, ownsDB: owns, prefix: append([]byte(ns), 0)}, nil
}

func (m *Badger) recordKey(id int) []byte {
	k := make([]byte, 0, len(m.prefix)+9)
	k = append(k, m.prefix...)
	k = append(k, byteRecord)
	return binary.BigEndian.AppendUint64(k, uint64(id))
}

func (m *Badger) identifierKey(ident string) []byte {
	k := make([]byte, 0, len(m.prefix)+1+len(ident))
	k = append(k, m.prefix...)
	k = append(k, byteIdentifier)
	return append(k, ident...)
}

func getID(txn *badger.Txn, key []byte) (int, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return NotFound, nil
	}
	if err != nil {
		return NotFound, err
	}
	var id int
	err = item.Value(func(val []byte) error {
		v, n := binary.Varint(val)
		if n <= 0 {
			return errors.Wrap(ErrCorruptRecord, "identifier value")
		}
		id = int(v)
		return nil
	})
	return id, err
}

func getRecord(txn *badger.Txn, key []byte) (*Element, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e Element
	err = item.Value(func(val []byte) error {
		e, err = decodeValue(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (m *Badger) TreeIdentifier(_ context.Context, e Element) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen("tree identifier"); err != nil {
		return NotFound, err
	}
	id := NotFound
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		id, err = getID(txn, m.identifierKey(e.Identifier))
		return err
	})
	if err != nil {
		return NotFound, x.StoreErr(err, "look up %q", e.Identifier)
	}
	return id, nil
}

func (m *Badger) SetTreeIdentifier(_ context.Context, e *Element, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("set tree identifier"); err != nil {
		return err
	}
	err := m.db.Update(func(txn *badger.Txn) error {
		key := m.recordKey(id)
		old, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		if old != nil {
			ik := m.identifierKey(old.Identifier)
			if owner, err := getID(txn, ik); err != nil {
				return err
			} else if owner == id {
				if err := txn.Delete(ik); err != nil {
					return err
				}
			}
		}
		if e == nil {
			return txn.Delete(key)
		}
		ik := m.identifierKey(e.Identifier)
		other, err := getID(txn, ik)
		if err != nil {
			return err
		}
		if other != NotFound && other != id {
			if err := txn.Delete(m.recordKey(other)); err != nil {
				return err
			}
		}
		if err := txn.Set(key, encodeValue(*e)); err != nil {
			return err
		}
		return txn.Set(ik, binary.AppendVarint(nil, int64(id)))
	})
	return x.StoreErr(err, "set record %d", id)
}

func (m *Badger) ObjectFromTreeIdentifier(_ context.Context, id int) (*Element, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen("object"); err != nil {
		return nil, err
	}
	var e *Element
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		e, err = getRecord(txn, m.recordKey(id))
		return err
	})
	if err != nil {
		return nil, x.StoreErr(err, "read record %d", id)
	}
	return e, nil
}

func (m *Badger) FullMap(_ context.Context) (map[int]Element, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen("full map"); err != nil {
		return nil, err
	}
	prefix := append(append([]byte(nil), m.prefix...), byteRecord)
	out := make(map[int]Element)
	err := m.db.View(func(txn *badger.Txn) error {
		opt := badger.DefaultIteratorOptions
		opt.Prefix = prefix
		itr := txn.NewIterator(opt)
		defer itr.Close()
		for itr.Rewind(); itr.Valid(); itr.Next() {
			item := itr.Item()
			key := item.Key()
			if len(key) != len(prefix)+8 {
				return errors.Wrapf(ErrCorruptRecord, "key %x", key)
			}
			id := int(binary.BigEndian.Uint64(key[len(prefix):]))
			err := item.Value(func(val []byte) error {
				e, err := decodeValue(val)
				if err != nil {
					return err
				}
				out[id] = e
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, x.StoreErr(err, "scan records")
	}
	return out, nil
}

func (m *Badger) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("clear"); err != nil {
		return err
	}
	return x.StoreErr(m.db.DropPrefix(m.prefix), "drop records")
}

// Flush syncs the store to disk.
func (m *Badger) Flush(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen("flush"); err != nil {
		return err
	}
	return x.StoreErr(m.db.Sync(), "sync badger")
}

// Close closes the store if the mapper opened it.
func (m *Badger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.ownsDB {
		return x.StoreErr(m.db.Close(), "close badger")
	}
	return nil
}
