package inmemorylivestore

import (
	"context"
	"sync"

	"github.com/parcelhq/parceld/internal/core/ports"
)

// lockStore serializes ledger operations with one channel-based lock per
// property plus a global pool lock. Channel locks let a blocked acquirer bail
// out when its context is cancelled, which a plain mutex cannot do.
type lockStore struct {
	lock  sync.Mutex
	props map[uint64]chan struct{}
	pool  chan struct{}
}

func NewLiveStore() ports.LiveStore {
	return &lockStore{
		props: make(map[uint64]chan struct{}),
		pool:  make(chan struct{}, 1),
	}
}

func (s *lockStore) AcquireProperty(
	ctx context.Context, propertyID uint64,
) (func(), error) {
	s.lock.Lock()
	ch, ok := s.props[propertyID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.props[propertyID] = ch
	}
	s.lock.Unlock()

	return acquire(ctx, ch)
}

func (s *lockStore) AcquirePool(ctx context.Context) (func(), error) {
	return acquire(ctx, s.pool)
}

func (s *lockStore) Close() {}

func acquire(ctx context.Context, ch chan struct{}) (func(), error) {
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-ch })
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
