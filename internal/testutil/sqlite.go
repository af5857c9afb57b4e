package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/manja7304/stock-pipeline/internal/storage"
)

// SQLiteSchema is the attached schema name of an SQLite database
const SQLiteSchema = "main"

// stocksDDL mirrors storage/schema.sql in SQLite types. DATETIME lets the
// driver scan timestamps back into time.Time. The symbol length check gives
// tests a way to make one row of a batch fail.
const stocksDDL = `CREATE TABLE stocks (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol     TEXT     NOT NULL CHECK (length(symbol) BETWEEN 1 AND 5),
	fetched_at DATETIME NOT NULL,
	open       NUMERIC,
	high       NUMERIC,
	low        NUMERIC,
	close      NUMERIC,
	volume     INTEGER,
	raw        JSON     NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// NewSQLiteClient returns a storage client backed by a private in-memory
// SQLite database with the stocks table created. It is closed when the test
// ends.
func NewSQLiteClient(t *testing.T) *storage.Client {
	t.Helper()
	return NewSQLiteClientWithLogger(t, zaptest.NewLogger(t))
}

// NewSQLiteClientWithLogger is NewSQLiteClient with GORM messages sent to log
func NewSQLiteClientWithLogger(t *testing.T, log *zap.Logger) *storage.Client {
	t.Helper()

	client, err := storage.NewClientWithDialector(sqlite.Open(":memory:"), log)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// every connection to :memory: is a new database
	sqlDB, err := client.DB.DB()
	if err != nil {
		t.Fatalf("raw sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := client.DB.Exec(stocksDDL).Error; err != nil {
		t.Fatalf("create stocks table: %v", err)
	}

	t.Cleanup(func() { client.Close() })
	return client
}

// CountRows returns the number of rows in the stocks table
func CountRows(t *testing.T, client *storage.Client) int64 {
	t.Helper()
	var n int64
	if err := client.DB.Table(SQLiteSchema + "." + storage.DefaultTable).Count(&n).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

// PersisterSink writes through a storage.Persister and leaves the database
// open on Close, so a test can inspect rows after a run.
type PersisterSink struct {
	*storage.Persister
}

// NewPersisterSink returns a sink appending to the stocks table of client
func NewPersisterSink(client *storage.Client) PersisterSink {
	return PersisterSink{storage.NewPersister(client.DB, SQLiteSchema, storage.DefaultTable, 0, nil)}
}

// Close implements pipeline.Sink
func (PersisterSink) Close() error { return nil }
