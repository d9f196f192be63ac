package dem

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// tileLister enumerates persisted tile object keys.
type tileLister interface {
	ListTileKeys(ctx context.Context) ([]string, error)
}

// InitializeIndex scans the local store for persisted .hgt tiles and seeds
// the index from their filenames. An empty listing is fine: the system then
// runs in pure lazy-fetch mode. Malformed keys are skipped with a warning.
func InitializeIndex(ctx context.Context, store tileLister, index *Index) (int, error) {
	keys, err := store.ListTileKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to scan dem tile store: %w", err)
	}

	added := 0
	for _, key := range keys {
		name, ok := tileNameFromKey(key)
		if !ok {
			continue
		}
		desc, err := DescriptorForTile(name)
		if err != nil {
			slog.Warn("skipping unparseable dem tile object", "key", key, "error", err)
			continue
		}
		index.Add(desc)
		added++
	}
	return added, nil
}

// tileNameFromKey extracts the canonical tile name from an object key of the
// form "dem/srtm/{tileName}.hgt".
func tileNameFromKey(key string) (string, bool) {
	name, found := strings.CutPrefix(key, tileKeyPrefix)
	if !found {
		return "", false
	}
	name, found = strings.CutSuffix(name, ".hgt")
	if !found || name == "" {
		return "", false
	}
	return name, true
}
