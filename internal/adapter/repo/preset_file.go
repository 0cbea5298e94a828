package repo

import (
	"context"
	"errors"
	"os"
	"sync"

	"pixshop/internal/domain"
	"pixshop/internal/storage"
)

// PresetRepositoryFile keeps a collection in <dir>/<collection>.json. Writes
// are atomic renames; Update is serialised within the process only.
type PresetRepositoryFile struct {
	store *storage.FileStore
	key   string
	mu    sync.Mutex
}

// NewPresetRepositoryFile creates a repository for collection under store.
func NewPresetRepositoryFile(store *storage.FileStore, collection string) *PresetRepositoryFile {
	return &PresetRepositoryFile{store: store, key: collection + ".json"}
}

// Load returns the stored presets. A missing file is an empty collection.
func (r *PresetRepositoryFile) Load(ctx context.Context) ([]domain.StylePreset, error) {
	items, err := r.read(ctx)
	if err != nil {
		return nil, domain.Unavailable("load", err)
	}
	return items, nil
}

// Save replaces the whole collection.
func (r *PresetRepositoryFile) Save(ctx context.Context, items []domain.StylePreset) error {
	_, err := r.Update(ctx, func([]domain.StylePreset) ([]domain.StylePreset, error) {
		return items, nil
	})
	return err
}

// Update applies fn under the repository mutex.
func (r *PresetRepositoryFile) Update(ctx context.Context, fn domain.PresetMutation) ([]domain.StylePreset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.read(ctx)
	if err != nil {
		return nil, domain.Unavailable("update", err)
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	payload, err := encodeStored(next)
	if err != nil {
		return nil, domain.WriteFailed("update", err)
	}
	if _, err := r.store.Write(ctx, r.key, payload); err != nil {
		return nil, domain.WriteFailed("update", err)
	}
	return domain.ClonePresets(next), nil
}

func (r *PresetRepositoryFile) read(ctx context.Context) ([]domain.StylePreset, error) {
	data, err := r.store.Read(ctx, r.key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.StylePreset{}, nil
		}
		return nil, err
	}
	return decodeStored(data)
}

var _ domain.PresetRepository = (*PresetRepositoryFile)(nil)
