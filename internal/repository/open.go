package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/opensource-finance/cashops/internal/domain"
)

const (
	defaultSQLitePath = "./cashops.db"
	defaultPGHost     = "localhost"
	defaultPGPort     = 5432
	defaultPGDatabase = "cashops"

	pingTimeout = 5 * time.Second
)

// sqlitePragmas keep a single archive file usable by the worker and the API
// at the same time.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
}

// target is a resolved database connection.
type target struct {
	driverName  string
	dsn         string
	placeholder sq.PlaceholderFormat
}

func resolve(cfg domain.RepositoryConfig) (target, error) {
	switch cfg.Driver {
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = defaultSQLitePath
		}
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return target{}, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return target{driverName: "sqlite", dsn: sqliteDSN(path), placeholder: sq.Question}, nil

	case "postgres":
		return target{driverName: "postgres", dsn: postgresDSN(cfg), placeholder: sq.Dollar}, nil

	default:
		return target{}, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}

func sqliteDSN(path string) string {
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// postgresDSN builds a lib/pq URL. Unset fields fall back to a local
// database named cashops without TLS.
func postgresDSN(cfg domain.RepositoryConfig) string {
	host := cfg.PostgresHost
	if host == "" {
		host = defaultPGHost
	}
	port := cfg.PostgresPort
	if port == 0 {
		port = defaultPGPort
	}
	dbname := cfg.PostgresDB
	if dbname == "" {
		dbname = defaultPGDatabase
	}
	sslmode := cfg.PostgresSSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + dbname,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	if cfg.PostgresUser != "" {
		u.User = url.UserPassword(cfg.PostgresUser, cfg.PostgresPassword)
	}
	return u.String()
}

// open connects and verifies the database is reachable.
func open(t target, cfg domain.RepositoryConfig) (*sql.DB, error) {
	db, err := sql.Open(t.driverName, t.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", t.driverName, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", t.driverName, err)
	}
	return db, nil
}
