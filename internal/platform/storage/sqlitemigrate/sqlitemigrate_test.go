package sqlitemigrate

import (
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func TestExtractUpMigration(t *testing.T) {
	content := `-- +migrate Up
CREATE TABLE widgets (id TEXT PRIMARY KEY);
-- +migrate Down
DROP TABLE widgets;`

	up := ExtractUpMigration(content)
	if want := "\nCREATE TABLE widgets (id TEXT PRIMARY KEY);\n"; up != want {
		t.Fatalf("ExtractUpMigration() = %q, want %q", up, want)
	}
}

func TestExtractUpMigrationNoMarkers(t *testing.T) {
	content := "CREATE TABLE widgets (id TEXT PRIMARY KEY);"
	if up := ExtractUpMigration(content); up != content {
		t.Fatalf("ExtractUpMigration() = %q, want original content", up)
	}
}

func TestApplyMigrations(t *testing.T) {
	sqlDB, err := sql.Open("sqlite", "file:"+t.TempDir()+"/migrate.db")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer sqlDB.Close()

	migrationFS := fstest.MapFS{
		"0001_create_widgets.sql": &fstest.MapFile{Data: []byte(`-- +migrate Up
CREATE TABLE widgets (id TEXT PRIMARY KEY);
-- +migrate Down
DROP TABLE widgets;`)},
		"0002_add_name.sql": &fstest.MapFile{Data: []byte(`-- +migrate Up
ALTER TABLE widgets ADD COLUMN name TEXT;
-- +migrate Down
`)},
	}

	if err := ApplyMigrations(sqlDB, migrationFS); err != nil {
		t.Fatalf("ApplyMigrations() error: %v", err)
	}

	// Applying twice must be a no-op.
	if err := ApplyMigrations(sqlDB, migrationFS); err != nil {
		t.Fatalf("ApplyMigrations() second run error: %v", err)
	}

	if _, err := sqlDB.Exec("INSERT INTO widgets (id, name) VALUES (?, ?)", "w1", "first"); err != nil {
		t.Fatalf("insert into migrated table: %v", err)
	}

	var applied int
	if err := sqlDB.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
		t.Fatalf("count applied migrations: %v", err)
	}
	if applied != 2 {
		t.Fatalf("applied migrations = %d, want 2", applied)
	}
}
