package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL flavour spoken by the underlying driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "pgx"
)

// DB wraps a *sql.DB with the dialect needed to rebind query placeholders.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// New opens a database connection for the given driver ("sqlite3" or "pgx").
// For SQLite the DSN is a file path; foreign keys, a busy timeout and
// immediate write transactions are enabled so concurrent publishers serialize.
func New(driver, dsn string) (*DB, error) {
	dialect := Dialect(driver)
	switch dialect {
	case DialectSQLite:
		dsn = sqliteDSN(dsn)
	case DialectPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{DB: db, Dialect: dialect}, nil
}

// sqliteDefaults are the connection parameters every SQLite DSN gets unless
// it already sets them. Aliases accepted by go-sqlite3 count as set.
var sqliteDefaults = []struct {
	keys  []string
	value string
}{
	{keys: []string{"_foreign_keys", "_fk"}, value: "on"},
	{keys: []string{"_busy_timeout", "_timeout"}, value: "5000"},
	{keys: []string{"_txlock"}, value: "immediate"},
}

// sqliteDSN appends the missing default parameters to dsn.
func sqliteDSN(dsn string) string {
	path, rawQuery, _ := strings.Cut(dsn, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		query = url.Values{}
	}

	var missing []string
	for _, d := range sqliteDefaults {
		set := false
		for _, k := range d.keys {
			if query.Has(k) {
				set = true
				break
			}
		}
		if !set {
			missing = append(missing, d.keys[0]+"="+d.value)
		}
	}
	if len(missing) == 0 {
		return dsn
	}

	extra := strings.Join(missing, "&")
	if rawQuery == "" {
		return path + "?" + extra
	}
	return dsn + "&" + extra
}

// Rebind converts '?' placeholders into the dialect's native form.
func (db *DB) Rebind(query string) string {
	if db.Dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(ctx context.Context, db *DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			uid TEXT NOT NULL DEFAULT '',
			handle TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS user_groups (
			id TEXT PRIMARY KEY,
			handle TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'PRIVATE'
		);`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id TEXT NOT NULL REFERENCES user_groups(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			PRIMARY KEY (group_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS topics (
			id TEXT PRIMARY KEY,
			handle TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			group_id TEXT REFERENCES user_groups(id),
			title TEXT NOT NULL DEFAULT '',
			body_blob_name TEXT NOT NULL,
			released_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS drafts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			group_id TEXT REFERENCES user_groups(id),
			related_note_id TEXT REFERENCES notes(id),
			title TEXT NOT NULL DEFAULT '',
			body_blob_name TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS draft_topics (
			draft_id TEXT NOT NULL REFERENCES drafts(id) ON DELETE CASCADE,
			topic_id TEXT NOT NULL REFERENCES topics(id),
			position INTEGER NOT NULL,
			PRIMARY KEY (draft_id, topic_id)
		);`,
		`CREATE TABLE IF NOT EXISTS note_topics (
			note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
			topic_id TEXT NOT NULL REFERENCES topics(id),
			position INTEGER NOT NULL,
			PRIMARY KEY (note_id, topic_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_drafts_related_note ON drafts(related_note_id);`,
		`CREATE INDEX IF NOT EXISTS idx_notes_user_released ON notes(user_id, released_at);`,
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// replaceTopics deletes every association of owner and inserts topicIDs in order.
func replaceTopics(ctx context.Context, tx *sql.Tx, db *DB, table, ownerColumn, ownerID string, topicIDs []string) error {
	if _, err := tx.ExecContext(ctx, db.Rebind("DELETE FROM "+table+" WHERE "+ownerColumn+" = ?"), ownerID); err != nil {
		return fmt.Errorf("failed to clear topics: %w", err)
	}
	insert := db.Rebind("INSERT INTO " + table + " (" + ownerColumn + ", topic_id, position) VALUES (?, ?, ?)")
	for i, topicID := range topicIDs {
		if _, err := tx.ExecContext(ctx, insert, ownerID, topicID, i); err != nil {
			return fmt.Errorf("failed to insert topic %s: %w", topicID, err)
		}
	}
	return nil
}

// nullString maps "" to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
