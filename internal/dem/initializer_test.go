package dem

import (
	"context"
	"testing"
)

func TestInitializeIndexSeedsFromStore(t *testing.T) {
	ctx := context.Background()
	backing := newFakeObjectStore()
	store := NewTileStore(backing)

	for _, name := range []string{"N46W113", "N46W114", "S13E044"} {
		if _, err := store.WriteTile(ctx, name, []byte{1}); err != nil {
			t.Fatalf("WriteTile %s failed: %v", name, err)
		}
	}
	// Objects that are not parseable tiles are skipped, not fatal.
	if _, err := backing.Put(ctx, "dem/srtm/readme.txt.hgt", []byte{1}, "", ""); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := backing.Put(ctx, "dem/srtm/notes", []byte{1}, "", ""); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	index := NewIndex()
	added, err := InitializeIndex(ctx, store, index)
	if err != nil {
		t.Fatalf("InitializeIndex failed: %v", err)
	}

	if added != 3 {
		t.Errorf("added = %d, want 3", added)
	}
	if index.Size() != 3 {
		t.Errorf("index size = %d, want 3", index.Size())
	}
	if index.FindContaining(46.5, -113.5) == nil {
		t.Error("N46W114 not findable after initialization")
	}
	if index.FindContaining(-12.5, 44.5) == nil {
		t.Error("S13E044 not findable after initialization")
	}
}

func TestInitializeIndexEmptyStore(t *testing.T) {
	index := NewIndex()
	added, err := InitializeIndex(context.Background(), NewTileStore(newFakeObjectStore()), index)
	if err != nil {
		t.Fatalf("InitializeIndex failed: %v", err)
	}
	if added != 0 || index.Size() != 0 {
		t.Errorf("added = %d, size = %d on empty store, want 0, 0", added, index.Size())
	}
}

func TestTileNameFromKey(t *testing.T) {
	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"dem/srtm/N46W113.hgt", "N46W113", true},
		{"dem/srtm/S90W180.hgt", "S90W180", true},
		{"dem/srtm/.hgt", "", false},
		{"dem/srtm/N46W113", "", false},
		{"chunks/v1/terrain/r16/0/0.bin", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := tileNameFromKey(tt.key)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("tileNameFromKey(%q) = (%q, %v), want (%q, %v)", tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
