package storage

import (
	"context"
	"path/filepath"
	"testing"
)

// newTestDB opens a migrated SQLite database in a temp dir and seeds the
// users, groups and topics most tests reference.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	fixtures := []string{
		`INSERT INTO users (id, uid, handle, name) VALUES ('u1', 'ext-1', 'alice', 'Alice')`,
		`INSERT INTO users (id, uid, handle, name) VALUES ('u2', 'ext-2', 'bob', 'Bob')`,
		`INSERT INTO user_groups (id, handle, name, type) VALUES ('g1', 'eng', 'Engineering', 'PRIVATE')`,
		`INSERT INTO user_groups (id, handle, name, type) VALUES ('g2', 'blog', 'Company Blog', 'BLOG')`,
		`INSERT INTO group_members (group_id, user_id) VALUES ('g1', 'u1')`,
		`INSERT INTO topics (id, handle, name) VALUES ('t1', 'go', 'Go')`,
		`INSERT INTO topics (id, handle, name) VALUES ('t2', 'sql', 'SQL')`,
		`INSERT INTO topics (id, handle, name) VALUES ('t3', 'search', 'Search')`,
	}
	for _, stmt := range fixtures {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed %q: %v", stmt, err)
		}
	}
	return db
}

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	tests := []struct {
		name    string
		driver  string
		path    string
		wantErr bool
	}{
		{
			name:    "valid path",
			driver:  "sqlite3",
			path:    dbPath,
			wantErr: false,
		},
		{
			name:    "invalid path",
			driver:  "sqlite3",
			path:    "/invalid/path/to/db.db",
			wantErr: true,
		},
		{
			name:    "unsupported driver",
			driver:  "mysql",
			path:    dbPath,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := New(tt.driver, tt.path)

			if tt.wantErr {
				if err == nil {
					t.Errorf("New() expected error, got nil")
				}
				if db != nil {
					_ = db.Close()
				}
				return
			}

			if err != nil {
				t.Errorf("New() unexpected error: %v", err)
				return
			}

			if db == nil {
				t.Fatal("New() returned nil database")
			}

			// Verify connection pool settings
			if db.Stats().MaxOpenConnections != 25 {
				t.Errorf("New() MaxOpenConnections = %v, want 25", db.Stats().MaxOpenConnections)
			}
			if db.Dialect != DialectSQLite {
				t.Errorf("New() Dialect = %v, want %v", db.Dialect, DialectSQLite)
			}

			_ = db.Close()
		})
	}
}

func TestNew_EnablesForeignKeys(t *testing.T) {
	db, err := New("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	// Check that foreign keys are enabled
	var fkEnabled int
	err = db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled)
	if err != nil {
		t.Fatalf("Failed to check foreign keys: %v", err)
	}
	if fkEnabled != 1 {
		t.Errorf("foreign_keys = %d, want 1", fkEnabled)
	}
}

func TestNew_DSNWithQueryKeepsDefaults(t *testing.T) {
	db, err := New("sqlite3", filepath.Join(t.TempDir(), "test.db")+"?_busy_timeout=1234")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	var fkEnabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Fatalf("Failed to check foreign keys: %v", err)
	}
	if fkEnabled != 1 {
		t.Errorf("foreign_keys = %d, want 1", fkEnabled)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("Failed to check busy timeout: %v", err)
	}
	if busyTimeout != 1234 {
		t.Errorf("busy_timeout = %d, want the DSN's 1234", busyTimeout)
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{
			name: "bare path",
			dsn:  "data/app.db",
			want: "data/app.db?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate",
		},
		{
			name: "unrelated parameter",
			dsn:  "data/app.db?cache=shared",
			want: "data/app.db?cache=shared&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate",
		},
		{
			name: "some defaults already set",
			dsn:  "data/app.db?_txlock=deferred&_fk=1",
			want: "data/app.db?_txlock=deferred&_fk=1&_busy_timeout=5000",
		},
		{
			name: "all defaults set",
			dsn:  "data/app.db?_foreign_keys=off&_timeout=10&_txlock=exclusive",
			want: "data/app.db?_foreign_keys=off&_timeout=10&_txlock=exclusive",
		},
		{
			name: "trailing question mark",
			dsn:  "data/app.db?",
			want: "data/app.db?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sqliteDSN(tt.dsn); got != tt.want {
				t.Errorf("sqliteDSN(%q) = %q, want %q", tt.dsn, got, tt.want)
			}
		})
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	tables := []string{"users", "user_groups", "group_members", "topics", "drafts", "draft_topics", "notes", "note_topics"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestDB_Rebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		query   string
		want    string
	}{
		{
			name:    "sqlite keeps question marks",
			dialect: DialectSQLite,
			query:   "SELECT * FROM drafts WHERE id = ? AND user_id = ?",
			want:    "SELECT * FROM drafts WHERE id = ? AND user_id = ?",
		},
		{
			name:    "postgres numbers placeholders",
			dialect: DialectPostgres,
			query:   "SELECT * FROM drafts WHERE id = ? AND user_id = ?",
			want:    "SELECT * FROM drafts WHERE id = $1 AND user_id = $2",
		},
		{
			name:    "no placeholders",
			dialect: DialectPostgres,
			query:   "SELECT 1",
			want:    "SELECT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &DB{Dialect: tt.dialect}
			if got := db.Rebind(tt.query); got != tt.want {
				t.Errorf("Rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}
