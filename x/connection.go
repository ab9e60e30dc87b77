/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

import (
	"database/sql"
	"net"
	"net/url"
	"os"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	// Registers the "postgres" driver.
	_ "github.com/lib/pq"
)

const (
	defaultMaxOpenConns = 50
	defaultMaxIdleConns = 25
)

// BuildPostgresDSNFromEnv builds a postgres URL from the PG_* environment variables.
func BuildPostgresDSNFromEnv() string {
	host := GetEnv("PG_HOST", "localhost")
	port := GetEnv("PG_PORT", "5432")
	user := GetEnv("PG_USER", "postgres")
	pass := os.Getenv("PG_PASSWORD")
	db := GetEnv("PG_DB", "dggrs")
	ssl := GetEnv("PG_SSLMODE", "disable")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(user),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + db,
		RawQuery: url.Values{"sslmode": {ssl}}.Encode(),
	}
	if pass != "" {
		u.User = url.UserPassword(user, pass)
	}
	return u.String()
}

// BuildMySQLDSNFromEnv builds a go-sql-driver DSN from the MYSQL_* environment variables.
func BuildMySQLDSNFromEnv() string {
	cfg := mysql.NewConfig()
	cfg.User = GetEnv("MYSQL_USER", "root")
	cfg.Passwd = os.Getenv("MYSQL_PASSWORD")
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(GetEnv("MYSQL_HOST", "localhost"), GetEnv("MYSQL_PORT", "3306"))
	cfg.DBName = GetEnv("MYSQL_DB", "dggrs")
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// OpenSQL opens a pooled connection for the given driver ("postgres" or
// "mysql"). The pool size is read from <PREFIX>_MAX_OPEN_CONNS and
// <PREFIX>_MAX_IDLE_CONNS where PREFIX is PG or MYSQL.
func OpenSQL(driver, dsn string) (*sql.DB, error) {
	prefix := "PG"
	if driver == "mysql" {
		prefix = "MYSQL"
	}
	if dsn == "" {
		if driver == "mysql" {
			dsn = BuildMySQLDSNFromEnv()
		} else {
			dsn = BuildPostgresDSNFromEnv()
		}
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "while opening %s connection", driver)
	}
	db.SetMaxOpenConns(envInt(prefix+"_MAX_OPEN_CONNS", defaultMaxOpenConns))
	db.SetMaxIdleConns(envInt(prefix+"_MAX_IDLE_CONNS", defaultMaxIdleConns))
	return db, nil
}

// RedisOptionsFromEnv returns client options from REDIS_HOST, REDIS_PORT,
// REDIS_PASS and REDIS_DB.
func RedisOptionsFromEnv() *redis.Options {
	addr := net.JoinHostPort(GetEnv("REDIS_HOST", "127.0.0.1"), GetEnv("REDIS_PORT", "6379"))
	db := envInt("REDIS_DB", 0)
	if db < 0 {
		db = 0
	}
	glog.V(2).Infof("redis addr=%s db=%d", addr, db)
	return &redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASS"), DB: db}
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		glog.Warningf("ignoring %s=%q: %v", key, v, err)
		return def
	}
	return n
}
