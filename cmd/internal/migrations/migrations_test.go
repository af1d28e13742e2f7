package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
)

func TestFS_ContainsOrderedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(FS, ".")
	if err != nil {
		t.Fatalf("read embedded dir: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(entries))
	}
	for _, e := range entries {
		b, err := fs.ReadFile(FS, e.Name())
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		if !strings.Contains(string(b), "-- +goose Up") {
			t.Fatalf("%s: missing goose Up annotation", e.Name())
		}
	}
}

func TestUp_NilDB(t *testing.T) {
	if _, err := Up(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil db")
	}
}

func TestUp_UsesSeam(t *testing.T) {
	orig := gooseUp
	defer func() { gooseUp = orig }()

	gooseUp = func(ctx context.Context, db *sql.DB) ([]*goose.MigrationResult, error) {
		return []*goose.MigrationResult{{}, {}}, nil
	}
	n, err := Up(context.Background(), &sql.DB{})
	if err != nil || n != 2 {
		t.Fatalf("n=%d err=%v", n, err)
	}

	boom := errors.New("boom")
	gooseUp = func(ctx context.Context, db *sql.DB) ([]*goose.MigrationResult, error) {
		return nil, boom
	}
	if _, err := Up(context.Background(), &sql.DB{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}
