package db

import (
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestOpen_CreatesDatabase(t *testing.T) {
	database := openTemp(t)
	if err := database.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestOpen_CreatesParentDirs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")
	database, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer database.Close()
}

func TestOpen_TablesExist(t *testing.T) {
	database := openTemp(t)

	tables := []string{"tracked_files", "lenses", "lens_files", "state", "schema_migrations"}
	for _, table := range tables {
		var count int
		err := database.Conn().QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&count)
		if err != nil {
			t.Fatalf("query table %q: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %q not found", table)
		}
	}
}

func TestOpen_MigrationsRecorded(t *testing.T) {
	database := openTemp(t)

	var count int
	if err := database.Conn().QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("query migrations: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("expected %d migrations recorded, got %d", len(migrations), count)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := db1.Conn().Exec(`INSERT INTO tracked_files (path, position) VALUES ('/a', 0)`); err != nil {
		t.Fatal(err)
	}
	db1.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	var count int
	db2.Conn().QueryRow(`SELECT COUNT(*) FROM tracked_files`).Scan(&count)
	if count != 1 {
		t.Error("rows lost after re-open")
	}
}

func TestLensFilesCascade(t *testing.T) {
	database := openTemp(t)
	conn := database.Conn()

	if _, err := conn.Exec(`INSERT INTO lenses (name, position) VALUES ('api', 0)`); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Exec(`INSERT INTO lens_files (lens, path) VALUES ('api', '/a')`); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Exec(`DELETE FROM lenses WHERE name = 'api'`); err != nil {
		t.Fatal(err)
	}

	var count int
	conn.QueryRow(`SELECT COUNT(*) FROM lens_files`).Scan(&count)
	if count != 0 {
		t.Errorf("lens_files should cascade, %d rows left", count)
	}
}

func TestClose(t *testing.T) {
	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := database.Ping(); err == nil {
		t.Error("expected Ping to fail after Close")
	}
}
