package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"dm-service/internal/config"
)

// Connect opens the configured database and runs migrations.
func Connect(ctx context.Context, cfg config.Database) (*sqlx.DB, error) {
	var (
		database *sqlx.DB
		err      error
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		database, err = sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	case config.DriverSQLite:
		database, err = openSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := Migrate(ctx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return database, nil
}

// openSQLite opens a file database in WAL mode. A single connection keeps
// writers serialized; busy_timeout covers the short waits that remain.
func openSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_time_format=sqlite", path)
	database, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, err
	}
	database.SetMaxOpenConns(1)
	return database, nil
}

// Migrate applies the schema for the database's dialect. Statements are
// idempotent.
func Migrate(ctx context.Context, database *sqlx.DB) error {
	migrations := postgresMigrations
	if IsSQLite(database) {
		migrations = sqliteMigrations
	}
	for _, m := range migrations {
		if _, err := database.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	log.Info().Str("driver", database.DriverName()).Int("statements", len(migrations)).Msg("database migrations applied")
	return nil
}

// IsSQLite reports whether the handle talks to the embedded driver.
func IsSQLite(q interface{ DriverName() string }) bool {
	return q.DriverName() == "sqlite"
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id SERIAL PRIMARY KEY,
        username VARCHAR(50) NOT NULL UNIQUE,
        email VARCHAR(120) NOT NULL UNIQUE,
        avatar VARCHAR(255) NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS friendships (
        id SERIAL PRIMARY KEY,
        owner_id INT NOT NULL REFERENCES users(id),
        other_id INT NOT NULL REFERENCES users(id),
        status VARCHAR(20) NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'blocked')),
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        CONSTRAINT unique_friendship UNIQUE (owner_id, other_id)
    );`,
	`CREATE INDEX IF NOT EXISTS idx_friendships_owner ON friendships (owner_id);`,
	`CREATE TABLE IF NOT EXISTS messages (
        id SERIAL PRIMARY KEY,
        sender_id INT NOT NULL REFERENCES users(id),
        receiver_id INT NOT NULL REFERENCES users(id),
        content TEXT NOT NULL,
        message_type VARCHAR(20) NOT NULL DEFAULT 'text',
        is_read BOOLEAN NOT NULL DEFAULT FALSE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE INDEX IF NOT EXISTS idx_messages_sender_receiver ON messages (sender_id, receiver_id);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_receiver_sender ON messages (receiver_id, sender_id);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_is_read ON messages (is_read);`,
	`CREATE TABLE IF NOT EXISTS conversations (
        owner_id INT NOT NULL,
        partner_id INT NOT NULL,
        last_message_id INT NOT NULL REFERENCES messages(id),
        last_created_at TIMESTAMPTZ NOT NULL,
        unread_count INT NOT NULL DEFAULT 0,
        PRIMARY KEY (owner_id, partner_id)
    );`,
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT NOT NULL UNIQUE,
        email TEXT NOT NULL UNIQUE,
        avatar TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMP NOT NULL,
        last_seen TIMESTAMP NOT NULL
    );`,
	`CREATE TABLE IF NOT EXISTS friendships (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        owner_id INTEGER NOT NULL REFERENCES users(id),
        other_id INTEGER NOT NULL REFERENCES users(id),
        status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'blocked')),
        created_at TIMESTAMP NOT NULL,
        CONSTRAINT unique_friendship UNIQUE (owner_id, other_id)
    );`,
	`CREATE INDEX IF NOT EXISTS idx_friendships_owner ON friendships (owner_id);`,
	`CREATE TABLE IF NOT EXISTS messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        sender_id INTEGER NOT NULL REFERENCES users(id),
        receiver_id INTEGER NOT NULL REFERENCES users(id),
        content TEXT NOT NULL,
        message_type TEXT NOT NULL DEFAULT 'text',
        is_read BOOLEAN NOT NULL DEFAULT FALSE,
        created_at TIMESTAMP NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS idx_messages_sender_receiver ON messages (sender_id, receiver_id);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_receiver_sender ON messages (receiver_id, sender_id);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_is_read ON messages (is_read);`,
	`CREATE TABLE IF NOT EXISTS conversations (
        owner_id INTEGER NOT NULL,
        partner_id INTEGER NOT NULL,
        last_message_id INTEGER NOT NULL REFERENCES messages(id),
        last_created_at TIMESTAMP NOT NULL,
        unread_count INTEGER NOT NULL DEFAULT 0,
        PRIMARY KEY (owner_id, partner_id)
    );`,
}
