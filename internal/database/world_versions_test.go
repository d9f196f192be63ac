package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/terracast/server/internal/testutil"
)

// setupStorageTest connects to the test database and applies the schema.
// Tests are skipped when PostgreSQL is unavailable.
func setupStorageTest(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if err := EnsureSchema(ctx, db); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	return db, ctx
}

func TestEnsureVersionsIdempotent(t *testing.T) {
	db, ctx := setupStorageTest(t)
	storage := NewWorldVersionStorage(db)

	v1 := testutil.RandomVersion()
	v2 := testutil.RandomVersion()

	if err := storage.EnsureVersions(ctx, []string{v1, v2}); err != nil {
		t.Fatalf("EnsureVersions failed: %v", err)
	}
	if err := storage.EnsureVersions(ctx, []string{v1, v2}); err != nil {
		t.Fatalf("EnsureVersions second run failed: %v", err)
	}

	first, err := storage.GetByVersion(ctx, v1)
	if err != nil {
		t.Fatalf("GetByVersion failed: %v", err)
	}
	if first == nil {
		t.Fatal("GetByVersion returned nil for ensured version")
	}
	if !first.IsActive {
		t.Error("ensured version should be active")
	}

	active, err := storage.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	found := 0
	for _, wv := range active {
		if wv.Version == v1 || wv.Version == v2 {
			found++
		}
	}
	if found != 2 {
		t.Errorf("ListActive found %d of the 2 ensured versions", found)
	}
}

func TestGetByVersionMissing(t *testing.T) {
	db, ctx := setupStorageTest(t)
	storage := NewWorldVersionStorage(db)

	wv, err := storage.GetByVersion(ctx, "no-such-version")
	if err != nil {
		t.Fatalf("GetByVersion failed: %v", err)
	}
	if wv != nil {
		t.Errorf("GetByVersion returned %+v for missing version, want nil", wv)
	}
}

func TestResolveUnknownWorldVersion(t *testing.T) {
	db, ctx := setupStorageTest(t)

	_, err := resolveWorldVersionID(ctx, db, "no-such-version")
	if !errors.Is(err, ErrUnknownWorldVersion) {
		t.Errorf("resolveWorldVersionID returned %v, want ErrUnknownWorldVersion", err)
	}
}
