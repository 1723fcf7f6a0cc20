// Package redis mirrors store records into a Redis hash so a restarted client starts warm.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	"github.com/next-trace/scg-planning-notify/contract/notify"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the hash holding one JSON record per event id.
const DefaultKey = "planning:events"

// Client is the subset of the go-redis API the persister needs. *redis.Client satisfies it.
type Client interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// Persister implements store.Persister on a Redis hash.
type Persister struct {
	Client Client
	Key    string
}

// New creates a Persister with the provided client. An empty key uses DefaultKey.
func New(c Client, key string) *Persister {
	if key == "" {
		key = DefaultKey
	}

	return &Persister{Client: c, Key: key}
}

// Save writes every record as a field of the hash.
func (p *Persister) Save(ctx context.Context, events []notify.Event) error {
	if err := p.ready(ctx, "save"); err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	values := make([]any, 0, len(events)*2)

	for _, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("redis save serialize %s: %w", e.ID, errors.Join(nerr.ErrSerializationFailed, err))
		}

		values = append(values, e.ID, string(b))
	}

	if err := p.Client.HSet(ctx, p.Key, values...).Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("redis save: %w", errors.Join(nerr.ErrStoreFailed, err))
	}

	return nil
}

// Load reads every record of the hash. Fields that do not decode are skipped.
func (p *Persister) Load(ctx context.Context) ([]notify.Event, error) {
	if err := p.ready(ctx, "load"); err != nil {
		return nil, err
	}

	fields, err := p.Client.HGetAll(ctx, p.Key).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		return nil, fmt.Errorf("redis load: %w", errors.Join(nerr.ErrStoreFailed, err))
	}

	events := make([]notify.Event, 0, len(fields))

	for id, raw := range fields {
		var e notify.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}

		if e.ID == "" {
			e.ID = id
		}

		events = append(events, e)
	}

	return events, nil
}

func (p *Persister) ready(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.Client == nil {
		return fmt.Errorf("redis %s: %w", label, nerr.ErrStoreFailed)
	}

	return nil
}

// Config configures a concrete Redis connection.
type Config struct {
	Addr        string
	Password    string
	DB          int
	Key         string
	DialTimeout time.Duration
}

// NewWithRedis connects to Redis and returns a Persister and a cleanup.
// A failed ping is reported but the client is still usable once Redis comes up.
func NewWithRedis(ctx context.Context, cfg Config) (*Persister, func(), error) {
	if cfg.Addr == "" {
		return nil, nil, fmt.Errorf("%w: redis addr required", nerr.ErrStoreFailed)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	cleanup := func() { _ = rdb.Close() }

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var pingErr error
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		pingErr = fmt.Errorf("%w: redis ping %s: %w", nerr.ErrStoreFailed, cfg.Addr, err)
	}

	return New(rdb, cfg.Key), cleanup, pingErr
}
