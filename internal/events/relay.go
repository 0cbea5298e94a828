package events

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"pixshop/internal/infra"
)

// PGChannel is the LISTEN/NOTIFY channel carrying preset notices.
const PGChannel = "preset_updates"

// RedisChannel returns the pub/sub channel for a collection.
func RedisChannel(collection string) string {
	return "pixshop:events:" + collection
}

// Relay forwards preset notices written by other processes onto the local bus.
type Relay interface {
	Run(ctx context.Context) error
}

// forwarder filters notices for one collection and drops the ones this
// process published itself.
type forwarder struct {
	bus        *PresetBus
	collection string
	origin     string
	logger     *infra.Logger
}

func (f forwarder) deliver(payload string) bool {
	notice, err := DecodeNotice(payload)
	if err != nil {
		f.logger.Warn().Err(err).Msg("dropping preset notice")
		return false
	}
	if notice.Collection != f.collection || notice.Origin == f.origin {
		return false
	}
	f.bus.Publish(notice)
	return true
}

// PGListener relays NOTIFY payloads from Postgres.
type PGListener struct {
	dsn string
	forwarder
	pingEvery time.Duration
}

// NewPGListener builds a relay listening on PGChannel through lib/pq.
func NewPGListener(dsn, collection, origin string, bus *PresetBus, logger *infra.Logger) *PGListener {
	return &PGListener{
		dsn:       dsn,
		forwarder: forwarder{bus: bus, collection: collection, origin: origin, logger: infra.OrNop(logger)},
		pingEvery: 90 * time.Second,
	}
}

// Run blocks until ctx is done.
func (l *PGListener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			l.logger.Warn().Err(err).Int("event", int(ev)).Msg("preset listener")
		}
	})
	defer listener.Close()

	if err := listener.Listen(PGChannel); err != nil {
		return err
	}
	l.logger.Info().Str("channel", PGChannel).Msg("preset listener started")

	ticker := time.NewTicker(l.pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect; notices sent meanwhile are lost
			if n == nil {
				continue
			}
			l.deliver(n.Extra)
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					l.logger.Warn().Err(err).Msg("preset listener ping")
				}
			}()
		}
	}
}

// RedisRelay relays pub/sub messages from Redis.
type RedisRelay struct {
	client *redis.Client
	forwarder
}

// NewRedisRelay builds a relay subscribed to RedisChannel(collection).
func NewRedisRelay(client *redis.Client, collection, origin string, bus *PresetBus, logger *infra.Logger) *RedisRelay {
	return &RedisRelay{
		client:    client,
		forwarder: forwarder{bus: bus, collection: collection, origin: origin, logger: infra.OrNop(logger)},
	}
}

// Run blocks until ctx is done or the subscription closes.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, RedisChannel(r.collection))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info().Str("channel", RedisChannel(r.collection)).Msg("preset relay started")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(msg.Payload)
		}
	}
}
