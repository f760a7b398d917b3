package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/feedpilot/dbopen"
)

func TestOpenMemory_Pragmas(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatal(err)
	}
	// :memory: reports "memory" even though the PRAGMA ran.
	if journalMode != "wal" && journalMode != "memory" {
		t.Fatalf("journal_mode = %q, want wal or memory", journalMode)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatal(err)
	}
	if busyTimeout != 10_000 {
		t.Fatalf("busy_timeout = %d, want 10000", busyTimeout)
	}
}

func TestOpen_SchemaAndMkdir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "kv.db")
	db, err := dbopen.Open(path,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema("CREATE TABLE t (k TEXT PRIMARY KEY)"),
		dbopen.WithBusyTimeout(500),
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("INSERT INTO t (k) VALUES ('a')"); err != nil {
		t.Fatalf("insert into schema table: %v", err)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatal(err)
	}
	if busyTimeout != 500 {
		t.Fatalf("busy_timeout = %d, want 500", busyTimeout)
	}
}

func TestOpen_BadSchema(t *testing.T) {
	_, err := dbopen.Open(":memory:", dbopen.WithSchema("NOT SQL"))
	if err == nil {
		t.Fatal("expected error for invalid schema")
	}
}

func TestIsBusy(t *testing.T) {
	if dbopen.IsBusy(nil) || dbopen.IsBusy(errors.New("no such table: kv")) {
		t.Fatal("non-busy error reported busy")
	}
	if !dbopen.IsBusy(fmt.Errorf("store: %w", errors.New("database is locked (5) (SQLITE_BUSY)"))) {
		t.Fatal("wrapped busy text not detected")
	}
}

func TestRunTx_RetriesWhileBusy(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema("CREATE TABLE t (k TEXT PRIMARY KEY)"))

	calls := 0
	err := dbopen.RunTx(context.Background(), db, func(tx *sql.Tx) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		_, err := tx.Exec("INSERT INTO t (k) VALUES ('a')")
		return err
	})
	if err != nil {
		t.Fatalf("RunTx: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls: got %d, want 3", calls)
	}

	var n int
	db.QueryRow("SELECT COUNT(*) FROM t").Scan(&n)
	if n != 1 {
		t.Fatalf("rows: got %d, want 1", n)
	}
}

func TestRunTx_GivesUp(t *testing.T) {
	db := dbopen.OpenMemory(t)
	calls := 0
	err := dbopen.RunTx(context.Background(), db, func(*sql.Tx) error {
		calls++
		return errors.New("database is locked")
	})
	if err == nil || !dbopen.IsBusy(err) {
		t.Fatalf("got %v, want a busy error", err)
	}
	if calls != 4 {
		t.Fatalf("calls: got %d, want 4", calls)
	}
}

func TestRunTx_OtherErrorsAreNotRetried(t *testing.T) {
	db := dbopen.OpenMemory(t)
	calls := 0
	want := errors.New("boom")
	err := dbopen.RunTx(context.Background(), db, func(*sql.Tx) error {
		calls++
		return want
	})
	if !errors.Is(err, want) || calls != 1 {
		t.Fatalf("got %v after %d calls, want boom after 1", err, calls)
	}
}
