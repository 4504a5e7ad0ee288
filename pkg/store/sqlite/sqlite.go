package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Config controls SQLite initialization.
type Config struct {
	Path      string
	VectorDim int
	Logger    *slog.Logger
}

// Database wraps the sql.DB handle shared by the aggregate store, the
// vector index, and the journal-entry log.
type Database struct {
	db        *sql.DB
	vectorDim int
	logger    *slog.Logger
}

// New opens the database and ensures the schema.
func New(ctx context.Context, cfg Config) (*Database, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.VectorDim == 0 {
		cfg.VectorDim = 1536
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", cfg.Path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	wrapper := &Database{db: db, vectorDim: cfg.VectorDim, logger: cfg.Logger}
	if err := wrapper.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return wrapper, nil
}

func (d *Database) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS journal_entries (
            id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            type TEXT NOT NULL,
            content TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_entries_user ON journal_entries(user_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS facts (
            fact TEXT NOT NULL,
            theme TEXT NOT NULL DEFAULT '',
            count INTEGER NOT NULL DEFAULT 0,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (fact, theme)
        );`,
		`CREATE TABLE IF NOT EXISTS fact_emotions (
            fact TEXT NOT NULL,
            theme TEXT NOT NULL DEFAULT '',
            emotion TEXT NOT NULL,
            total REAL NOT NULL DEFAULT 0,
            PRIMARY KEY (fact, theme, emotion),
            FOREIGN KEY (fact, theme) REFERENCES facts(fact, theme)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_facts_theme ON facts(theme);`,
		`CREATE TABLE IF NOT EXISTS vectors (
            id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            kind TEXT NOT NULL CHECK (kind IN ('fact', 'emotion')),
            fact TEXT NOT NULL,
            emotion TEXT NOT NULL,
            pair_id TEXT NOT NULL,
            embedding TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_vectors_user_kind ON vectors(user_id, kind);`,
		`CREATE INDEX IF NOT EXISTS idx_vectors_pair ON vectors(pair_id);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_vectors_pair_kind ON vectors(pair_id, kind);`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// DB returns the underlying database handle.
func (d *Database) DB() *sql.DB {
	return d.db
}

// VectorDim returns the configured embedding dimension.
func (d *Database) VectorDim() int {
	return d.vectorDim
}

// Close releases the database.
func (d *Database) Close() error {
	return d.db.Close()
}
