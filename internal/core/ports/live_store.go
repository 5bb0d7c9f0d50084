package ports

import "context"

// LiveStore serializes mutating ledger operations. Every mutating call
// acquires the lock for its property id (or the pool lock for bonding-curve
// operations) for the whole read-compute-write cycle, so the holder-set
// swap-removal and the distribution loop never interleave.
type LiveStore interface {
	// AcquireProperty blocks until the per-property lock is held and returns
	// the release function. The context bounds the wait.
	AcquireProperty(ctx context.Context, propertyID uint64) (release func(), err error)
	// AcquirePool locks the global bonding-curve pool.
	AcquirePool(ctx context.Context) (release func(), err error)
	Close()
}
