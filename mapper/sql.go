/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package mapper

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/hypermodeinc/dggrs/x"
)

const recordColumns = "id, identifier, nbenv, minx, maxx, miny, maxy"

// dialect holds what differs between the supported SQL servers.
type dialect struct {
	name       string
	quote      func(string) string
	bind       func(i int) string
	schemaDDL  string
	tableDDL   string
	upsertTail string
}

var dialects = map[string]dialect{
	"postgres": {
		name:      "postgres",
		quote:     func(s string) string { return `"` + s + `"` },
		bind:      func(i int) string { return fmt.Sprintf("$%d", i) },
		schemaDDL: "CREATE SCHEMA IF NOT EXISTS %s",
		tableDDL: `CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY,
	identifier TEXT NOT NULL,
	nbenv INTEGER NOT NULL,
	minx DOUBLE PRECISION NOT NULL,
	maxx DOUBLE PRECISION NOT NULL,
	miny DOUBLE PRECISION NOT NULL,
	maxy DOUBLE PRECISION NOT NULL)`,
		upsertTail: ` ON CONFLICT (id) DO UPDATE SET identifier = EXCLUDED.identifier,
	nbenv = EXCLUDED.nbenv, minx = EXCLUDED.minx, maxx = EXCLUDED.maxx,
	miny = EXCLUDED.miny, maxy = EXCLUDED.maxy`,
	},
	"mysql": {
		name:      "mysql",
		quote:     func(s string) string { return "`" + s + "`" },
		bind:      func(int) string { return "?" },
		schemaDDL: "CREATE DATABASE IF NOT EXISTS %s",
		tableDDL: `CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY,
	identifier TEXT NOT NULL,
	nbenv INTEGER NOT NULL,
	minx DOUBLE NOT NULL,
	maxx DOUBLE NOT NULL,
	miny DOUBLE NOT NULL,
	maxy DOUBLE NOT NULL)`,
		upsertTail: ` ON DUPLICATE KEY UPDATE identifier = VALUES(identifier),
	nbenv = VALUES(nbenv), minx = VALUES(minx), maxx = VALUES(maxx),
	miny = VALUES(miny), maxy = VALUES(maxy)`,
	},
}

func (d dialect) binds(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.bind(from + i)
	}
	return strings.Join(parts, ", ")
}

// SQL stores records in table "records" of a per-index schema named after
// Namespace(path).
type SQL struct {
	base
	db      *sql.DB
	ownsDB  bool
	d       dialect
	schema  string
	table   string
	qLookup string
	qGet    string
	qAll    string
	qDelete string
	qDedup  string
	qUpsert string
	qClear  string
}

// OpenSQL opens the SQL mapper for cfg.Path, creating its schema and table if
// they do not exist.
func OpenSQL(ctx context.Context, cfg Config) (*SQL, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	d, ok := dialects[driver]
	if !ok {
		return nil, x.Invalidf("unsupported SQL driver %q", driver)
	}
	ns, err := Namespace(cfg.Path)
	if err != nil {
		return nil, err
	}

	db, owns := cfg.DB, false
	if db == nil {
		if db, err = x.OpenSQL(driver, cfg.DSN); err != nil {
			return nil, x.StoreErr(err, "open %s", driver)
		}
		owns = true
	}
	m := newSQL(db, owns, d, ns)
	if err := m.init(ctx); err != nil {
		if owns {
			x.Ignore(db.Close())
		}
		return nil, err
	}
	glog.Infof("Opened %s mapper in schema %s", d.name, ns)
	return m, nil
}

func newSQL(db *sql.DB, owns bool, d dialect, ns string) *SQL {
	schema := d.quote(ns)
	table := schema + "." + d.quote("records")
	return &SQL{
		db:      db,
		ownsDB:  owns,
		d:       d,
		schema:  schema,
		table:   table,
		qLookup: fmt.Sprintf("SELECT id FROM %s WHERE identifier = %s", table, d.bind(1)),
		qGet: fmt.Sprintf("SELECT identifier, nbenv, minx, maxx, miny, maxy FROM %s WHERE id = %s",
			table, d.bind(1)),
		qAll:    fmt.Sprintf("SELECT %s FROM %s", recordColumns, table),
		qDelete: fmt.Sprintf("DELETE FROM %s WHERE id = %s", table, d.bind(1)),
		qDedup: fmt.Sprintf("DELETE FROM %s WHERE identifier = %s AND id <> %s",
			table, d.bind(1), d.bind(2)),
		qUpsert: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)%s",
			table, recordColumns, d.binds(1, 7), d.upsertTail),
		qClear: fmt.Sprintf("DELETE FROM %s", table),
	}
}

func (m *SQL) init(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return x.StoreErr(err, "ping %s", m.d.name)
	}
	for _, stmt := range []string{
		fmt.Sprintf(m.d.schemaDDL, m.schema),
		fmt.Sprintf(m.d.tableDDL, m.table),
	} {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return x.StoreErr(err, "create schema %s", m.schema)
		}
	}
	return nil
}

func (m *SQL) TreeIdentifier(ctx context.Context, e Element) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen("tree identifier"); err != nil {
		return NotFound, err
	}
	var id int
	switch err := m.db.QueryRowContext(ctx, m.qLookup, e.Identifier).Scan(&id); {
	case errors.Is(err, sql.ErrNoRows):
		return NotFound, nil
	case err != nil:
		return NotFound, x.StoreErr(err, "look up %q", e.Identifier)
	}
	return id, nil
}

func (m *SQL) SetTreeIdentifier(ctx context.Context, e *Element, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("set tree identifier"); err != nil {
		return err
	}
	if e == nil {
		glog.V(2).Infof("%s: delete record %d", m.schema, id)
		_, err := m.db.ExecContext(ctx, m.qDelete, id)
		return x.StoreErr(err, "delete record %d", id)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return x.StoreErr(err, "begin upsert of record %d", id)
	}
	defer func() { x.Ignore(tx.Rollback()) }()
	if _, err := tx.ExecContext(ctx, m.qDedup, e.Identifier, id); err != nil {
		return x.StoreErr(err, "release identifier %q", e.Identifier)
	}
	env := e.Envelope
	if _, err := tx.ExecContext(ctx, m.qUpsert, id, e.Identifier, e.NbEnv,
		env.MinX, env.MaxX, env.MinY, env.MaxY); err != nil {
		return x.StoreErr(err, "upsert record %d", id)
	}
	return x.StoreErr(tx.Commit(), "commit record %d", id)
}

func (m *SQL) ObjectFromTreeIdentifier(ctx context.Context, id int) (*Element, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen("object"); err != nil {
		return nil, err
	}
	var e Element
	env := &e.Envelope
	err := m.db.QueryRowContext(ctx, m.qGet, id).
		Scan(&e.Identifier, &e.NbEnv, &env.MinX, &env.MaxX, &env.MinY, &env.MaxY)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, x.StoreErr(err, "read record %d", id)
	}
	return &e, nil
}

func (m *SQL) FullMap(ctx context.Context) (map[int]Element, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen("full map"); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, m.qAll)
	if err != nil {
		return nil, x.StoreErr(err, "scan %s", m.table)
	}
	defer rows.Close()
	out := make(map[int]Element)
	for rows.Next() {
		var id int
		var e Element
		env := &e.Envelope
		if err := rows.Scan(&id, &e.Identifier, &e.NbEnv,
			&env.MinX, &env.MaxX, &env.MinY, &env.MaxY); err != nil {
			return nil, x.StoreErr(err, "scan %s", m.table)
		}
		out[id] = e
	}
	if err := rows.Err(); err != nil {
		return nil, x.StoreErr(err, "scan %s", m.table)
	}
	return out, nil
}

func (m *SQL) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("clear"); err != nil {
		return err
	}
	_, err := m.db.ExecContext(ctx, m.qClear)
	return x.StoreErr(err, "clear %s", m.table)
}

// Flush is a no-op: every write is committed when it is made.
func (m *SQL) Flush(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkOpen("flush")
}

// Close releases the connection pool if the mapper opened it.
func (m *SQL) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.ownsDB {
		return x.StoreErr(m.db.Close(), "close %s", m.d.name)
	}
	return nil
}
