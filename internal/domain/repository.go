package domain

import "context"

// PresetMutation receives the current collection and returns its replacement.
// Returning an error aborts the write.
type PresetMutation func(current []StylePreset) ([]StylePreset, error)

// PresetRepository persists one named collection of presets as a whole.
type PresetRepository interface {
	// Load returns the stored presets. An empty store is not an error.
	Load(ctx context.Context) ([]StylePreset, error)
	// Save replaces the stored collection in one step.
	Save(ctx context.Context, items []StylePreset) error
	// Update performs load-modify-save without losing concurrent writes.
	Update(ctx context.Context, fn PresetMutation) ([]StylePreset, error)
}
