/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

// Package mapper stores the association between elements indexed by an
// R-tree and the integer identifiers the tree knows them by. Several
// backends implement the same contract; Open picks one from a Config.
package mapper

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/hypermodeinc/dggrs/types"
	"github.com/hypermodeinc/dggrs/x"
)

// NotFound is the tree identifier reported for an unknown element.
const NotFound = -1

// Element is an application object stored in the index: its natural string
// identifier, the number of envelopes it was built from and its envelope.
type Element struct {
	Identifier string
	NbEnv      int
	Envelope   types.Envelope
}

// ElementMapper maps elements to tree identifiers and back.
type ElementMapper interface {
	// TreeIdentifier returns the tree identifier of e, looked up by its
	// Identifier, or NotFound.
	TreeIdentifier(ctx context.Context, e Element) (int, error)
	// SetTreeIdentifier stores e under id. A nil e deletes the record of id.
	SetTreeIdentifier(ctx context.Context, e *Element, id int) error
	// ObjectFromTreeIdentifier returns the element stored under id, or nil.
	ObjectFromTreeIdentifier(ctx context.Context, id int) (*Element, error)
	// Envelope returns the envelope the tree indexes e under.
	Envelope(e Element) types.Envelope
	// FullMap returns every stored record.
	FullMap(ctx context.Context) (map[int]Element, error)
	Clear(ctx context.Context) error
	Flush(ctx context.Context) error
	Close() error
	IsClosed() bool
}

// Reloader is implemented by mappers that cache state which other writers
// may change behind their back. LoadStored reads the stored records without
// touching the live state; Install makes them live.
type Reloader interface {
	LoadStored(ctx context.Context) (map[int]Element, error)
	Install(records map[int]Element) error
}

// Kind selects a backend.
type Kind string

const (
	KindBlob   Kind = "blob"
	KindSQL    Kind = "sql"
	KindBadger Kind = "badger"
	KindRedis  Kind = "redis"
)

// Config selects and configures a backend. Path identifies the index; it is
// the directory of file based backends and the source of the namespace for
// shared ones.
type Config struct {
	Kind Kind
	Path string

	// SQL: Driver is "postgres" or "mysql". If DB is nil a pool is opened
	// from DSN, or from the environment when DSN is empty.
	Driver string
	DSN    string
	DB     *sql.DB

	// Badger: an already open DB shared between indexes. If nil a DB is
	// opened under Path.
	Badger *badger.DB

	// Redis: a shared client, or options to create one. Both nil means
	// options from the environment.
	Redis        redis.UniversalClient
	RedisOptions *redis.Options
}

// Open returns the backend selected by cfg.
func Open(ctx context.Context, cfg Config) (ElementMapper, error) {
	if cfg.Path == "" {
		return nil, x.Invalidf("mapper path is empty")
	}
	switch cfg.Kind {
	case KindBlob, "":
		return OpenBlob(cfg.Path)
	case KindSQL:
		return OpenSQL(ctx, cfg)
	case KindBadger:
		return OpenBadger(cfg)
	case KindRedis:
		return OpenRedis(ctx, cfg)
	default:
		return nil, x.Invalidf("unknown mapper kind %q", cfg.Kind)
	}
}

// Namespace returns the name isolating the records of the index stored at
// path from other indexes sharing a store: "index" followed by the hex SHA1
// of the absolute path.
func Namespace(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "while resolving %q", path)
	}
	sum := sha1.Sum([]byte(abs))
	return "index" + hex.EncodeToString(sum[:]), nil
}

// base carries the lifecycle shared by every backend.
type base struct {
	mu     sync.RWMutex
	closed bool
}

func (s *base) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// checkOpen returns x.ErrClosed once the mapper is closed. Callers hold mu.
func (s *base) checkOpen(op string) error {
	if s.closed {
		return errors.Wrapf(x.ErrClosed, "mapper %s", op)
	}
	return nil
}

// Envelope returns the envelope recorded on the element.
func (*base) Envelope(e Element) types.Envelope { return e.Envelope }
