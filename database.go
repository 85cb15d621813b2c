package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

func openDB(cfg DatabaseConfig) (*sql.DB, error) {
	driverName, dsn := "sqlite", cfg.Path
	if cfg.Driver == driverPostgres {
		driverName, dsn = "pgx", postgresDSN(cfg)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	if cfg.Driver == driverPostgres {
		db.SetMaxOpenConns(cfg.PoolSize)
		db.SetMaxIdleConns(cfg.PoolSize)
		db.SetConnMaxLifetime(time.Hour)
	} else {
		// sqlite has a single writer, and each connection to :memory: is
		// its own database.
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	slog.Debug("database connection established",
		slog.String("driver", cfg.Driver),
		slog.Int("pool_size", cfg.PoolSize))

	return db, nil
}

func postgresDSN(cfg DatabaseConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(cfg.Host, cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: "sslmode=disable",
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u.String()
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS portfolio_posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		link_url TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_portfolio_posts_created_at ON portfolio_posts(created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		is_admin BOOLEAN,
		expires_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS portfolio_posts (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		link_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_portfolio_posts_created_at ON portfolio_posts(created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		is_admin BOOLEAN,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

func initDB(db *sql.DB, driver string) error {
	schema := sqliteSchema
	if driver == driverPostgres {
		schema = postgresSchema
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}

	return nil
}

// Store is the persistence gateway. Queries are written with ? placeholders
// and rebound for the configured driver.
type Store struct {
	db     *sql.DB
	driver string
}

func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

func (s *Store) rebind(query string) string {
	if s.driver != driverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func seedDB(ctx context.Context, s *Store) error {
	count, err := s.CountPosts(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	posts := []Post{
		{Title: "Portfolio Hub", Summary: "This site", Content: "A small CMS for portfolio posts.", LinkURL: "https://example.com/portfolio-hub"},
		{Title: "Weather CLI", Summary: "Forecasts in the terminal", Content: "Fetches and caches forecasts.", LinkURL: "https://example.com/weather"},
		{Title: "Chat Server", Summary: "WebSocket rooms", Content: "Rooms, presence and history.", LinkURL: "https://example.com/chat"},
	}

	for _, p := range posts {
		if _, err := s.CreatePost(ctx, p.Title, p.Summary, p.Content, p.LinkURL); err != nil {
			return err
		}
	}

	slog.Info("seeded sample posts", slog.Int("count", len(posts)))
	return nil
}
