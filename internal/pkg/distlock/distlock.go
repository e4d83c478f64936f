// Package distlock provides distributed mutual exclusion for singleton
// background work (e.g. the automation run cycle). A lock is held for the
// duration of one unit of work and expires on its own if the holder dies.
package distlock

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a distributed lock around one named unit of work. An instance
// can be acquired and released repeatedly.
type Lock interface {
	// TryAcquire attempts to take the lock without blocking.
	// Returns true if this process now holds it.
	TryAcquire(ctx context.Context) (bool, error)
	// Release gives the lock back if this process still owns it.
	Release(ctx context.Context) error
}

// New returns a lock on key using the best available backend: Redis when a
// client is provided (works across hosts), otherwise a PostgreSQL advisory
// lock (works across processes sharing the database).
func New(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) Lock {
	if redisClient != nil {
		return newRedisLock(redisClient, key, ttl)
	}
	return newAdvisoryLock(db, key)
}

// redisLock implements Lock with SET NX + TTL. The value is a random token so
// Release cannot delete a lock that expired and was re-acquired elsewhere.
type redisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func newRedisLock(client *redis.Client, key string, ttl time.Duration) *redisLock {
	b := make([]byte, 16)
	rand.Read(b)
	return &redisLock{
		client: client,
		key:    "lock:" + key,
		token:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

func (l *redisLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("distlock: acquire %s: %w", l.key, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

func (l *redisLock) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Result()
	return err
}

// advisoryLock implements Lock with pg_try_advisory_lock. Session-scoped, so
// the lock drops automatically if the connection dies — the crash-safety
// equivalent of the Redis TTL.
type advisoryLock struct {
	db     *sql.DB
	lockID int64
}

func newAdvisoryLock(db *sql.DB, key string) *advisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &advisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *advisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	var ok bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&ok)
	return ok, err
}

func (l *advisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
