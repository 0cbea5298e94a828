package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"pixshop/internal/domain"
	"pixshop/internal/events"
	"pixshop/internal/infra"
)

const defaultLockTTL = 10 * time.Second

// PresetKey is the Redis key holding a collection.
func PresetKey(collection string) string {
	return "pixshop:presets:" + collection
}

// LockKey is the redsync mutex guarding writes to a collection.
func LockKey(collection string) string {
	return "pixshop:lock:" + collection
}

// PresetRepositoryRedis stores a collection as one JSON string and serialises
// read-modify-write cycles with a redsync mutex.
type PresetRepositoryRedis struct {
	client     *redis.Client
	rs         *redsync.Redsync
	collection string
	origin     string
	lockTTL    time.Duration
	logger     *infra.Logger
}

// NewPresetRepositoryRedis creates a repository for collection. A nil logger
// discards output.
func NewPresetRepositoryRedis(client *redis.Client, collection, origin string, logger *infra.Logger) *PresetRepositoryRedis {
	return &PresetRepositoryRedis{
		client:     client,
		rs:         redsync.New(goredis.NewPool(client)),
		collection: collection,
		origin:     origin,
		lockTTL:    defaultLockTTL,
		logger:     infra.OrNop(logger),
	}
}

// Load returns the stored presets. A missing key is an empty collection.
func (r *PresetRepositoryRedis) Load(ctx context.Context) ([]domain.StylePreset, error) {
	items, err := r.read(ctx)
	if err != nil {
		return nil, domain.Unavailable("load", err)
	}
	return items, nil
}

// Save replaces the whole collection.
func (r *PresetRepositoryRedis) Save(ctx context.Context, items []domain.StylePreset) error {
	_, err := r.Update(ctx, func([]domain.StylePreset) ([]domain.StylePreset, error) {
		return items, nil
	})
	return err
}

// Update holds the collection lock for one read-modify-write cycle.
func (r *PresetRepositoryRedis) Update(ctx context.Context, fn domain.PresetMutation) ([]domain.StylePreset, error) {
	mutex := r.rs.NewMutex(LockKey(r.collection),
		redsync.WithExpiry(r.lockTTL),
		redsync.WithTries(32),
		redsync.WithRetryDelay(50*time.Millisecond),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, domain.Unavailable("lock", err)
	}
	defer func() {
		// an expired lock is already gone
		_, _ = mutex.UnlockContext(context.WithoutCancel(ctx))
	}()

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
	if err := r.client.Set(ctx, PresetKey(r.collection), payload, 0).Err(); err != nil {
		return nil, domain.WriteFailed("update", err)
	}

	// the write is committed; peers that miss the notice catch up on their next load
	notice := events.EncodeNotice(events.PresetsUpdated{Collection: r.collection, Origin: r.origin, At: time.Now().UTC()})
	if err := r.client.Publish(ctx, events.RedisChannel(r.collection), notice).Err(); err != nil {
		r.logger.Warn().Err(err).Str("collection", r.collection).Msg("presets: publish change notice failed")
	}
	return domain.ClonePresets(next), nil
}

func (r *PresetRepositoryRedis) read(ctx context.Context) ([]domain.StylePreset, error) {
	data, err := r.client.Get(ctx, PresetKey(r.collection)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []domain.StylePreset{}, nil
		}
		return nil, err
	}
	items, err := decodeStored(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", PresetKey(r.collection), err)
	}
	return items, nil
}

var _ domain.PresetRepository = (*PresetRepositoryRedis)(nil)
