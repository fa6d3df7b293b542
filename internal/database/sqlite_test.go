package database

import (
	"path/filepath"
	"testing"

	"github.com/inkwell-hq/inkwell/internal/documents"
	"github.com/inkwell-hq/inkwell/internal/users"
)

func TestOpenSQLiteMigratesSchema(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, model := range []interface{}{
		&users.User{},
		&documents.Document{},
		&documents.Collaborator{},
		&documents.Version{},
	} {
		if !db.Migrator().HasTable(model) {
			t.Fatalf("expected table for %T", model)
		}
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
