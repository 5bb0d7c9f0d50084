package redislivestore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/parcelhq/parceld/internal/core/ports"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	propertyLockKeyPrefix = "lockStore:property:"
	poolLockKey           = "lockStore:pool"

	// lockTTL bounds how long a crashed holder can keep a lock stuck.
	lockTTL = 30 * time.Second
)

// releaseScript deletes the lock only if it still carries our token, so an
// expired lock re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// lockStore serializes ledger operations across replicas with SET NX locks.
type lockStore struct {
	rdb        *redis.Client
	retryDelay time.Duration
}

func NewLiveStore(rdb *redis.Client) ports.LiveStore {
	return &lockStore{
		rdb:        rdb,
		retryDelay: 10 * time.Millisecond,
	}
}

func (s *lockStore) AcquireProperty(
	ctx context.Context, propertyID uint64,
) (func(), error) {
	return s.acquire(ctx, fmt.Sprintf("%s%d", propertyLockKeyPrefix, propertyID))
}

func (s *lockStore) AcquirePool(ctx context.Context) (func(), error) {
	return s.acquire(ctx, poolLockKey)
}

func (s *lockStore) Close() {}

func (s *lockStore) acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	for {
		ok, err := s.rdb.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %s", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}

	release := func() {
		// the lock may have expired; releasing is best-effort
		if err := releaseScript.Run(
			context.Background(), s.rdb, []string{key}, token,
		).Err(); err != nil && err != redis.Nil {
			log.WithError(err).Warnf("failed to release lock %s", key)
		}
	}
	return release, nil
}
