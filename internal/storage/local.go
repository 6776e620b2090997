package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// LocalBackend keeps documents as JSON files under a root directory, with a
// per-campaign index file next to them.
type LocalBackend struct {
	root string
	mu   sync.Mutex
}

func NewLocalBackend(root string) (*LocalBackend, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	return &LocalBackend{root: root}, nil
}

func (b *LocalBackend) Save(_ context.Context, key string, data any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saveToFile(key, data)
}

func (b *LocalBackend) Load(_ context.Context, key string, target any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadFromFile(key, target)
}

func (b *LocalBackend) Index(_ context.Context, rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var records []Record
	key := indexKey(rec.CampaignID)
	if err := b.loadFromFile(key, &records); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	// Re-archiving a kind replaces its entry.
	kept := records[:0]
	for _, r := range records {
		if r.Kind != rec.Kind {
			kept = append(kept, r)
		}
	}
	kept = append(kept, rec)
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].ArchivedAt.Before(kept[j].ArchivedAt) })
	return b.saveToFile(key, kept)
}

func (b *LocalBackend) Records(_ context.Context, campaignID string) ([]Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var records []Record
	if err := b.loadFromFile(indexKey(campaignID), &records); err != nil {
		if errors.Is(err, ErrNotFound) {
			return []Record{}, nil
		}
		return nil, err
	}
	return records, nil
}

func indexKey(campaignID string) string {
	return filepath.ToSlash(filepath.Join("campaigns", campaignID, "index.json"))
}

// path resolves key under root, refusing keys that escape it.
func (b *LocalBackend) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New("invalid archive key " + key)
	}
	return filepath.Join(b.root, clean), nil
}

func (b *LocalBackend) saveToFile(key string, data any) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}

	file, err := os.Create(p)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (b *LocalBackend) loadFromFile(key string, target any) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	file, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(target)
}
