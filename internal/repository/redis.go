package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/config"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/database"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/metrics"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/model"
)

// Script return codes. A successful decrement returns the new remaining
// count, which is never negative because the script refuses to decrement
// at or below zero.
const (
	scriptNotFound = -1
	scriptSoldOut  = -2
)

// resetScript clears every event hash and the ledger, then seeds one event.
//
// KEYS[1] event index (zset), KEYS[2] ledger (list)
// ARGV[1] event key prefix, ARGV[2] id, ARGV[3] name, ARGV[4] total,
// ARGV[5] created_at, ARGV[6] index score
var resetScript = redis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, -1)
for _, id in ipairs(ids) do
  redis.call('DEL', ARGV[1] .. id)
end
redis.call('DEL', KEYS[1], KEYS[2])
redis.call('HSET', ARGV[1] .. ARGV[2], 'name', ARGV[3], 'total', ARGV[4], 'available', ARGV[4], 'created_at', ARGV[5])
redis.call('ZADD', KEYS[1], ARGV[6], ARGV[2])
return 1
`)

// decrementAndLogScript is the conditional decrement: Redis runs a script
// to completion before serving any other command, so the check and both
// writes are indivisible.
//
// KEYS[1] event hash, KEYS[2] ledger; ARGV[1] encoded booking
var decrementAndLogScript = redis.NewScript(`
local available = redis.call('HGET', KEYS[1], 'available')
if not available then
  return -1
end
if tonumber(available) <= 0 then
  return -2
end
local left = redis.call('HINCRBY', KEYS[1], 'available', -1)
redis.call('RPUSH', KEYS[2], ARGV[1])
return left
`)

// decrementScript subtracts one without a capacity check. The EXISTS guard
// only stops HINCRBY from creating a hash for an unknown event.
var decrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
redis.call('HINCRBY', KEYS[1], 'available', -1)
return 0
`)

// appendScript pushes a ledger entry for an existing event.
var appendScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
redis.call('RPUSH', KEYS[2], ARGV[1])
return 0
`)

// NewRedisClient creates a go-redis client with its own command retries
// disabled: a retried EVAL after a dropped reply could take two tickets.
// Reaching the server is retried by the store's budget instead.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:       cfg.Addr(),
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: -1,
	})
}

// RedisStore keeps each event in a hash, an index of event ids in a sorted
// set scored by creation time, and the ledger in a list.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	retry   database.Retry
	metrics metrics.Recorder
}

// NewRedisStore constructs a RedisStore. prefix namespaces every key.
func NewRedisStore(client *redis.Client, prefix string, retry database.Retry, rec metrics.Recorder) *RedisStore {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &RedisStore{client: client, prefix: prefix, retry: retry, metrics: rec}
}

func (s *RedisStore) indexKey() string          { return s.prefix + "events" }
func (s *RedisStore) eventPrefix() string       { return s.prefix + "event:" }
func (s *RedisStore) eventKey(id string) string { return s.eventPrefix() + id }
func (s *RedisStore) ledgerKey() string         { return s.prefix + "bookings" }

// connect waits for the server under the retry budget.
func (s *RedisStore) connect(ctx context.Context) error {
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		start := time.Now()
		if err := s.client.Ping(ctx).Err(); err != nil {
			s.metrics.ConnectionError()
			return err
		}
		s.metrics.ObserveQuery("connect", "none", time.Since(start))
		return nil
	})
	if err != nil && !errors.Is(err, ErrStorageUnavailable) {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return err
}

func (s *RedisStore) observe(operation, table string, start time.Time) {
	s.metrics.ObserveQuery(operation, table, time.Since(start))
}

func (s *RedisStore) CreateEvent(ctx context.Context, name string, totalTickets int) (*model.Event, error) {
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	defer s.observe("insert", "events", time.Now())

	e := &model.Event{
		ID:               uuid.New().String(),
		Name:             name,
		TotalTickets:     totalTickets,
		AvailableTickets: totalTickets,
		CreatedAt:        time.Now().UTC(),
	}
	err := resetScript.Run(ctx, s.client,
		[]string{s.indexKey(), s.ledgerKey()},
		s.eventPrefix(), e.ID, e.Name, totalTickets,
		e.CreatedAt.Format(time.RFC3339Nano), e.CreatedAt.UnixMilli(),
	).Err()
	if err != nil {
		return nil, storageError("seed event", err)
	}
	return e, nil
}

func (s *RedisStore) ReadRemaining(ctx context.Context, eventID string) (int, error) {
	if err := s.connect(ctx); err != nil {
		return 0, err
	}
	defer s.observe("select", "events", time.Now())

	n, err := s.client.HGet(ctx, s.eventKey(eventID), "available").Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNotFound
		}
		return 0, storageError("read remaining", err)
	}
	return n, nil
}

func (s *RedisStore) DecrementAndLog(ctx context.Context, eventID string, userID int64) (int, error) {
	if err := s.connect(ctx); err != nil {
		return 0, err
	}
	defer s.observe("update", "events", time.Now())

	entry, err := encodeBooking(newBooking(eventID, userID))
	if err != nil {
		return 0, err
	}
	left, err := decrementAndLogScript.Run(ctx, s.client,
		[]string{s.eventKey(eventID), s.ledgerKey()}, entry,
	).Int()
	if err != nil {
		return 0, storageError("decrement and log", err)
	}
	switch left {
	case scriptNotFound:
		return 0, ErrNotFound
	case scriptSoldOut:
		return 0, ErrSoldOut
	}
	return left, nil
}

func (s *RedisStore) Decrement(ctx context.Context, eventID string) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	defer s.observe("update", "events", time.Now())

	rc, err := decrementScript.Run(ctx, s.client, []string{s.eventKey(eventID)}).Int()
	if err != nil {
		return storageError("decrement", err)
	}
	if rc == scriptNotFound {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) AppendBooking(ctx context.Context, eventID string, userID int64) (*model.Booking, error) {
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	defer s.observe("insert", "bookings", time.Now())

	b := newBooking(eventID, userID)
	entry, err := encodeBooking(b)
	if err != nil {
		return nil, err
	}
	rc, err := appendScript.Run(ctx, s.client,
		[]string{s.eventKey(eventID), s.ledgerKey()}, entry,
	).Int()
	if err != nil {
		return nil, storageError("append booking", err)
	}
	if rc == scriptNotFound {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *RedisStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	defer s.observe("select", "events", time.Now())

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, storageError("list event ids", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, s.eventKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, storageError("load events", err)
	}

	events := make([]model.Event, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		e, err := decodeEvent(id, fields)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func (s *RedisStore) CountBookings(ctx context.Context) (int, error) {
	if err := s.connect(ctx); err != nil {
		return 0, err
	}
	defer s.observe("select", "bookings", time.Now())

	n, err := s.client.LLen(ctx, s.ledgerKey()).Result()
	if err != nil {
		return 0, storageError("count bookings", err)
	}
	return int(n), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.connect(ctx)
}

func encodeBooking(b model.Booking) (string, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode booking: %w", err)
	}
	return string(raw), nil
}

func decodeEvent(id string, fields map[string]string) (model.Event, error) {
	total, err := strconv.Atoi(fields["total"])
	if err != nil {
		return model.Event{}, fmt.Errorf("event %s: bad total: %w", id, err)
	}
	available, err := strconv.Atoi(fields["available"])
	if err != nil {
		return model.Event{}, fmt.Errorf("event %s: bad available: %w", id, err)
	}
	created, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return model.Event{}, fmt.Errorf("event %s: bad created_at: %w", id, err)
	}
	return model.Event{
		ID:               id,
		Name:             fields["name"],
		TotalTickets:     total,
		AvailableTickets: available,
		CreatedAt:        created,
	}, nil
}

var _ Store = (*RedisStore)(nil)
