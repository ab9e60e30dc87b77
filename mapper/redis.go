/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package mapper

import (
	"context"
	"strconv"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/hypermodeinc/dggrs/x"
)

// Redis stores records in two hashes per index: <ns>:records maps the tree
// identifier to the encoded record, <ns>:identifiers maps the element
// identifier to the tree identifier.
type Redis struct {
	base
	client     redis.UniversalClient
	ownsClient bool
	records    string
	idents     string
}

// OpenRedis opens the redis mapper for cfg.Path.
func OpenRedis(ctx context.Context, cfg Config) (*Redis, error) {
	ns, err := Namespace(cfg.Path)
	if err != nil {
		return nil, err
	}
	client, owns := cfg.Redis, false
	if client == nil {
		opts := cfg.RedisOptions
		if opts == nil {
			opts = x.RedisOptionsFromEnv()
		}
		client, owns = redis.NewClient(opts), true
	}
	if err := client.Ping(ctx).Err(); err != nil {
		if owns {
			x.Ignore(client.Close())
		}
		return nil, x.StoreErr(err, "ping redis")
	}
	glog.V(2).Infof("Opened redis mapper %s", ns)
	return &Redis{
		client:     client,
		ownsClient: owns,
		records:    ns + ":records",
		idents:     ns + ":identifiers",
	}, nil
}

func (m *Redis) TreeIdentifier(ctx context.Context, e Element) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen("tree identifier"); err != nil {
		return NotFound, err
	}
	id, err := m.lookup(ctx, e.Identifier)
	return id, x.StoreErr(err, "look up %q", e.Identifier)
}

func (m *Redis) lookup(ctx context.Context, ident string) (int, error) {
	v, err := m.client.HGet(ctx, m.idents, ident).Result()
	if errors.Is(err, redis.Nil) {
		return NotFound, nil
	}
	if err != nil {
		return NotFound, err
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return NotFound, errors.Wrapf(ErrCorruptRecord, "identifier %q maps to %q", ident, v)
	}
	return id, nil
}

func (m *Redis) get(ctx context.Context, id int) (*Element, error) {
	v, err := m.client.HGet(ctx, m.records, strconv.Itoa(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e, err := decodeValue(v)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (m *Redis) SetTreeIdentifier(ctx context.Context, e *Element, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("set tree identifier"); err != nil {
		return err
	}
	field := strconv.Itoa(id)
	old, err := m.get(ctx, id)
	if err != nil {
		return x.StoreErr(err, "read record %d", id)
	}
	releaseOld := false
	if old != nil {
		owner, err := m.lookup(ctx, old.Identifier)
		if err != nil {
			return x.StoreErr(err, "look up %q", old.Identifier)
		}
		releaseOld = owner == id
	}
	other := NotFound
	if e != nil {
		if other, err = m.lookup(ctx, e.Identifier); err != nil {
			return x.StoreErr(err, "look up %q", e.Identifier)
		}
	}

	_, err = m.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if releaseOld {
			p.HDel(ctx, m.idents, old.Identifier)
		}
		if e == nil {
			p.HDel(ctx, m.records, field)
			return nil
		}
		if other != NotFound && other != id {
			p.HDel(ctx, m.records, strconv.Itoa(other))
		}
		p.HSet(ctx, m.records, field, encodeValue(*e))
		p.HSet(ctx, m.idents, e.Identifier, field)
		return nil
	})
	return x.StoreErr(err, "set record %d", id)
}

func (m *Redis) ObjectFromTreeIdentifier(ctx context.Context, id int) (*Element, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen("object"); err != nil {
		return nil, err
	}
	e, err := m.get(ctx, id)
	if err != nil {
		return nil, x.StoreErr(err, "read record %d", id)
	}
	return e, nil
}

func (m *Redis) FullMap(ctx context.Context) (map[int]Element, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen("full map"); err != nil {
		return nil, err
	}
	all, err := m.client.HGetAll(ctx, m.records).Result()
	if err != nil {
		return nil, x.StoreErr(err, "read %s", m.records)
	}
	out := make(map[int]Element, len(all))
	for field, v := range all {
		id, err := strconv.Atoi(field)
		if err != nil {
			return nil, x.StoreErr(errors.Wrapf(ErrCorruptRecord, "field %q", field), "read %s", m.records)
		}
		e, err := decodeValue([]byte(v))
		if err != nil {
			return nil, x.StoreErr(err, "decode record %d", id)
		}
		out[id] = e
	}
	return out, nil
}

func (m *Redis) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen("clear"); err != nil {
		return err
	}
	return x.StoreErr(m.client.Del(ctx, m.records, m.idents).Err(), "clear %s", m.records)
}

// Flush is a no-op: redis applies writes immediately.
func (m *Redis) Flush(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkOpen("flush")
}

// Close closes the client if the mapper created it.
func (m *Redis) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.ownsClient {
		return x.StoreErr(m.client.Close(), "close redis")
	}
	return nil
}
