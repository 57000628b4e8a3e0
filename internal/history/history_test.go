package history_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/raysh454/paipan/internal/history"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStore_AddGetList(t *testing.T) {
	t.Parallel()
	store, err := history.NewStore(openTestDB(t), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()

	first, err := store.Add(ctx, history.KindBaZi, map[string]any{"year": 2005}, map[string]string{"姓名": "某人"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	second, err := store.Add(ctx, history.KindLiuYao, map[string]any{"event": "求财"}, map[string]any{})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := store.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Kind != history.KindBaZi || string(got.Result) != `{"姓名":"某人"}` {
		t.Errorf("unexpected lookup %+v", got)
	}

	list, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 lookups, got %d", len(list))
	}
	if list[0].ID != second.ID {
		t.Errorf("expected newest first, got %s", list[0].ID)
	}

	limited, err := store.List(ctx, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit not applied: %d", len(limited))
	}
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()
	store, err := history.NewStore(openTestDB(t), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_EmptyListIsNotNil(t *testing.T) {
	t.Parallel()
	store, err := history.NewStore(openTestDB(t), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	list, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", list)
	}
}

func TestOpen_CreatesFileUnderRoot(t *testing.T) {
	t.Parallel()
	root := filepath.Join(t.TempDir(), "nested", "store")
	store, err := history.Open(root, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.Add(context.Background(), history.KindBaZi, 1, 2); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, history.DBFileName)); err != nil {
		t.Fatalf("expected database file: %v", err)
	}
}

func TestNewStore_NilDB(t *testing.T) {
	t.Parallel()
	if _, err := history.NewStore(nil, nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}
