package testutil

import (
	"database/sql"
	"fmt"
	"testing"

	"visitcounter/lib/telemetry"

	_ "modernc.org/sqlite"
)

type ServiceParams struct {
	Name string
	// if unspecified, it will skip setting up a db
	DbSchema string
}

type ServiceResult struct {
	DB *sql.DB
}

// SetupService prepares telemetry and an in-memory sqlite database with the
// given schema, both are torn down when the test ends.
func SetupService(t testing.TB, params ServiceParams) ServiceResult {
	t.Cleanup(telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", params.Name)))
	if params.DbSchema == "" {
		return ServiceResult{}
	}
	return ServiceResult{DB: OpenDB(t, params.DbSchema)}
}

// OpenDB opens a fresh in-memory database, a single connection keeps every
// query on the same database.
func OpenDB(t testing.TB, schema string) *sql.DB {
	sqlite, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	sqlite.SetMaxOpenConns(1)
	_, err = sqlite.Exec(schema)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return sqlite
}
