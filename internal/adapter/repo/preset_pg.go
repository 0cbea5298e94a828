package repo

import (
	"context"
	"errors"
	"time"

	"pixshop/internal/domain"
	"pixshop/internal/events"
	"pixshop/internal/infra"
	"pixshop/internal/sqlinline"
)

// PresetRepositoryPG implements domain.PresetRepository as one JSONB row per
// collection. Writes run in a transaction that also emits a NOTIFY.
type PresetRepositoryPG struct {
	sql        *infra.SQLRunner
	collection string
	origin     string
}

// NewPresetRepositoryPG creates a repository for collection. origin tags the
// notices it emits.
func NewPresetRepositoryPG(sql *infra.SQLRunner, collection, origin string) *PresetRepositoryPG {
	return &PresetRepositoryPG{sql: sql, collection: collection, origin: origin}
}

// Load returns the stored presets. A missing row is an empty collection.
func (r *PresetRepositoryPG) Load(ctx context.Context) ([]domain.StylePreset, error) {
	items, _, err := r.selectCollection(ctx, r.sql, sqlinline.QSelectPresetCollection)
	if err != nil {
		return nil, domain.Unavailable("load", err)
	}
	return items, nil
}

// Save replaces the whole collection.
func (r *PresetRepositoryPG) Save(ctx context.Context, items []domain.StylePreset) error {
	_, err := r.Update(ctx, func([]domain.StylePreset) ([]domain.StylePreset, error) {
		return items, nil
	})
	return err
}

// Update locks the collection row, applies fn and writes the result back.
func (r *PresetRepositoryPG) Update(ctx context.Context, fn domain.PresetMutation) ([]domain.StylePreset, error) {
	var (
		result  []domain.StylePreset
		stepErr error
		started bool
	)
	err := r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		started = true
		current, _, err := r.selectCollection(ctx, tx, sqlinline.QSelectPresetCollectionForUpdate)
		if err != nil {
			stepErr = domain.Unavailable("update", err)
			return stepErr
		}
		next, err := fn(domain.ClonePresets(current))
		if err != nil {
			stepErr = err
			return err
		}
		payload, err := encodeStored(next)
		if err != nil {
			stepErr = domain.WriteFailed("update", err)
			return stepErr
		}
		var version int64
		if err := tx.QueryRow(ctx, sqlinline.QUpsertPresetCollection, r.collection, string(payload)).Scan(&version); err != nil {
			stepErr = domain.WriteFailed("update", err)
			return stepErr
		}
		notice := events.EncodeNotice(events.PresetsUpdated{Collection: r.collection, Origin: r.origin, At: time.Now().UTC()})
		if _, err := tx.Exec(ctx, sqlinline.QNotifyPresetUpdate, notice); err != nil {
			stepErr = domain.WriteFailed("notify", err)
			return stepErr
		}
		result = domain.ClonePresets(next)
		return nil
	})
	if err != nil {
		if stepErr != nil && errors.Is(err, stepErr) {
			return nil, stepErr
		}
		if !started {
			return nil, domain.Unavailable("update", err)
		}
		return nil, domain.WriteFailed("update", err)
	}
	return result, nil
}

func (r *PresetRepositoryPG) selectCollection(ctx context.Context, exec infra.SQLExecutor, query string) ([]domain.StylePreset, int64, error) {
	var (
		raw     []byte
		version int64
	)
	if err := exec.QueryRow(ctx, query, r.collection).Scan(&raw, &version); err != nil {
		if infra.IsNoRows(err) {
			return []domain.StylePreset{}, 0, nil
		}
		return nil, 0, err
	}
	items, err := decodeStored(raw)
	if err != nil {
		return nil, 0, err
	}
	return items, version, nil
}

var _ domain.PresetRepository = (*PresetRepositoryPG)(nil)
