/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package mapper

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/hypermodeinc/dggrs/types"
	"github.com/hypermodeinc/dggrs/x"
)

var (
	elemA = Element{Identifier: "a", NbEnv: 1, Envelope: types.Envelope{MinX: 0, MaxX: 1, MinY: 0, MaxY: 1}}
	elemB = Element{Identifier: "b", NbEnv: 2, Envelope: types.Envelope{MinX: -5, MaxX: 5, MinY: 10, MaxY: 12.5}}
)

// runContract exercises the behaviour every backend must share.
func runContract(t *testing.T, m ElementMapper) {
	ctx := context.Background()
	require.NoError(t, m.Clear(ctx))

	id, err := m.TreeIdentifier(ctx, elemA)
	require.NoError(t, err)
	require.Equal(t, NotFound, id)
	e, err := m.ObjectFromTreeIdentifier(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, e)

	require.NoError(t, m.SetTreeIdentifier(ctx, &elemA, 1))
	require.NoError(t, m.SetTreeIdentifier(ctx, &elemB, 2))
	id, err = m.TreeIdentifier(ctx, elemA)
	require.NoError(t, err)
	require.Equal(t, 1, id)
	e, err = m.ObjectFromTreeIdentifier(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, &elemB, e)
	require.Equal(t, elemB.Envelope, m.Envelope(elemB))

	// Updating id 1 in place.
	moved := elemA
	moved.Envelope = types.Envelope{MinX: 3, MaxX: 4, MinY: 3, MaxY: 4}
	require.NoError(t, m.SetTreeIdentifier(ctx, &moved, 1))
	e, err = m.ObjectFromTreeIdentifier(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, &moved, e)

	// A nil element deletes.
	require.NoError(t, m.SetTreeIdentifier(ctx, nil, 1))
	e, err = m.ObjectFromTreeIdentifier(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, e)
	id, err = m.TreeIdentifier(ctx, elemA)
	require.NoError(t, err)
	require.Equal(t, NotFound, id)
	require.NoError(t, m.SetTreeIdentifier(ctx, nil, 99))

	// An identifier belongs to one id at a time.
	require.NoError(t, m.SetTreeIdentifier(ctx, &elemB, 3))
	all, err := m.FullMap(ctx)
	require.NoError(t, err)
	require.Equal(t, map[int]Element{3: elemB}, all)

	require.NoError(t, m.SetTreeIdentifier(ctx, &elemA, 4))
	require.NoError(t, m.Flush(ctx))
	all, err = m.FullMap(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, m.Clear(ctx))
	all, err = m.FullMap(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
	id, err = m.TreeIdentifier(ctx, elemB)
	require.NoError(t, err)
	require.Equal(t, NotFound, id)

	require.False(t, m.IsClosed())
	require.NoError(t, m.Close())
	require.True(t, m.IsClosed())
	require.NoError(t, m.Close())
	_, err = m.TreeIdentifier(ctx, elemA)
	require.True(t, errors.Is(err, x.ErrClosed))
	require.True(t, errors.Is(m.SetTreeIdentifier(ctx, &elemA, 1), x.ErrClosed))
	_, err = m.FullMap(ctx)
	require.True(t, errors.Is(err, x.ErrClosed))
}

func TestBlobContract(t *testing.T) {
	m, err := Open(context.Background(), Config{Kind: KindBlob, Path: t.TempDir()})
	require.NoError(t, err)
	runContract(t, m)
}

func TestBadgerContract(t *testing.T) {
	m, err := Open(context.Background(), Config{Kind: KindBadger, Path: t.TempDir()})
	require.NoError(t, err)
	runContract(t, m)
}

func TestPostgresContract(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	m, err := Open(context.Background(), Config{Kind: KindSQL, Driver: "postgres", DSN: dsn, Path: t.TempDir()})
	require.NoError(t, err)
	runContract(t, m)
}

func TestMySQLContract(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}
	m, err := Open(context.Background(), Config{Kind: KindSQL, Driver: "mysql", DSN: dsn, Path: t.TempDir()})
	require.NoError(t, err)
	runContract(t, m)
}

func TestRedisContract(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	m, err := Open(context.Background(), Config{
		Kind:         KindRedis,
		Path:         t.TempDir(),
		RedisOptions: &redis.Options{Addr: addr},
	})
	require.NoError(t, err)
	runContract(t, m)
}

func TestOpenRejects(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, Config{Kind: KindBlob})
	require.True(t, errors.Is(err, x.ErrInvalidArgument))
	_, err = Open(ctx, Config{Kind: "tape", Path: t.TempDir()})
	require.True(t, errors.Is(err, x.ErrInvalidArgument))
	_, err = Open(ctx, Config{Kind: KindSQL, Driver: "oracle", Path: t.TempDir()})
	require.True(t, errors.Is(err, x.ErrInvalidArgument))
}

func TestNamespace(t *testing.T) {
	dir := t.TempDir()
	a, err := Namespace(dir)
	require.NoError(t, err)
	require.Len(t, a, len("index")+40)
	require.Equal(t, "index", a[:5])

	again, err := Namespace(filepath.Join(dir, "x", ".."))
	require.NoError(t, err)
	require.Equal(t, a, again)

	other, err := Namespace(filepath.Join(dir, "other"))
	require.NoError(t, err)
	require.NotEqual(t, a, other)
}

func TestBlobPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := OpenBlob(dir)
	require.NoError(t, err)
	require.NoError(t, b.SetTreeIdentifier(ctx, &elemA, 7))
	require.NoError(t, b.Flush(ctx))
	require.NoError(t, b.SetTreeIdentifier(ctx, &elemB, 8))

	// Loading leaves the live records alone until they are installed.
	stored, err := b.LoadStored(ctx)
	require.NoError(t, err)
	require.Equal(t, map[int]Element{7: elemA}, stored)
	live, err := b.ObjectFromTreeIdentifier(ctx, 8)
	require.NoError(t, err)
	require.NotNil(t, live)

	// Reload drops the unflushed record.
	require.NoError(t, b.Reload(ctx))
	all, err := b.FullMap(ctx)
	require.NoError(t, err)
	require.Equal(t, map[int]Element{7: elemA}, all)

	// Close flushes.
	require.NoError(t, b.SetTreeIdentifier(ctx, &elemB, 8))
	require.NoError(t, b.Close())

	b, err = OpenBlob(dir)
	require.NoError(t, err)
	all, err = b.FullMap(ctx)
	require.NoError(t, err)
	require.Equal(t, map[int]Element{7: elemA, 8: elemB}, all)
	id, err := b.TreeIdentifier(ctx, elemB)
	require.NoError(t, err)
	require.Equal(t, 8, id)
	require.NoError(t, b.Close())
}

func TestBlobCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, BlobFile), []byte("DGEM\x01garbage-garbage"), 0600))
	_, err := OpenBlob(dir)
	require.Error(t, err)
	require.True(t, errors.Is(err, x.ErrStoreIndex))
	require.True(t, errors.Is(err, ErrCorruptRecord))
}

func TestBadgerSharedStore(t *testing.T) {
	ctx := context.Background()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.WARNING))
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	m1, err := OpenBadger(Config{Path: "/indexes/one", Badger: db})
	require.NoError(t, err)
	m2, err := OpenBadger(Config{Path: "/indexes/two", Badger: db})
	require.NoError(t, err)

	require.NoError(t, m1.SetTreeIdentifier(ctx, &elemA, 1))
	require.NoError(t, m2.SetTreeIdentifier(ctx, &elemB, 1))

	e, err := m1.ObjectFromTreeIdentifier(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, &elemA, e)
	id, err := m2.TreeIdentifier(ctx, elemA)
	require.NoError(t, err)
	require.Equal(t, NotFound, id)

	require.NoError(t, m1.Clear(ctx))
	all, err := m2.FullMap(ctx)
	require.NoError(t, err)
	require.Equal(t, map[int]Element{1: elemB}, all)

	// Closing a mapper leaves a shared store open.
	require.NoError(t, m1.Close())
	_, err = m2.FullMap(ctx)
	require.NoError(t, err)
	require.NoError(t, m2.Close())
}

func TestRecordValue(t *testing.T) {
	v := encodeValue(elemB)
	e, err := decodeValue(v)
	require.NoError(t, err)
	require.Equal(t, elemB, e)

	v[0] ^= 0xff
	_, err = decodeValue(v)
	require.True(t, errors.Is(err, ErrCorruptRecord))
	_, err = decodeValue([]byte{1})
	require.True(t, errors.Is(err, ErrCorruptRecord))
}
