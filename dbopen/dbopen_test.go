package dbopen

import (
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpenAppliesPragmas(t *testing.T) {
	db := OpenMemory(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if fk != 1 {
		t.Fatal("foreign_keys not enabled")
	}
}

func TestOpenExecutesSchema(t *testing.T) {
	db := OpenMemory(t, WithSchema(`CREATE TABLE t1 (id TEXT PRIMARY KEY)`))

	if _, err := db.Exec(`INSERT INTO t1 (id) VALUES ('a')`); err != nil {
		t.Fatalf("insert into schema table: %v", err)
	}
}

func TestOpenMkdirAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "ntp.db")
	db, err := Open(path, WithMkdirAll())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOpenMissingParentFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "ntp.db")
	db, err := Open(path)
	if err == nil {
		db.Close()
		t.Fatal("open without parent directory should fail")
	}
}
