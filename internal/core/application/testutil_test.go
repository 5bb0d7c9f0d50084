package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/parcelhq/parceld/internal/core/domain"
	"github.com/parcelhq/parceld/internal/core/ports"
)

func units(n uint64) *uint256.Int {
	one := uint256.NewInt(1_000_000_000_000_000_000)
	return new(uint256.Int).Mul(uint256.NewInt(n), one)
}

type inMemoryPropertyRepo struct {
	lock   sync.Mutex
	nextID uint64
	items  map[uint64]domain.Property
}

func newInMemoryPropertyRepo() *inMemoryPropertyRepo {
	return &inMemoryPropertyRepo{items: make(map[uint64]domain.Property)}
}

func (r *inMemoryPropertyRepo) Add(
	_ context.Context, owner, name, location string,
) (*domain.Property, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.nextID++
	property := domain.NewProperty(r.nextID, owner, name, location)
	r.items[property.ID] = *property
	return property, nil
}

func (r *inMemoryPropertyRepo) Get(_ context.Context, id uint64) (*domain.Property, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	property, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: property %d", domain.ErrNotFound, id)
	}
	return &property, nil
}

func (r *inMemoryPropertyRepo) Update(_ context.Context, property domain.Property) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.items[property.ID]; !ok {
		return fmt.Errorf("%w: property %d", domain.ErrNotFound, property.ID)
	}
	r.items[property.ID] = property
	return nil
}

func (r *inMemoryPropertyRepo) List(_ context.Context, includeDeleted bool) ([]domain.Property, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]domain.Property, 0, len(r.items))
	for id := uint64(1); id <= r.nextID; id++ {
		property, ok := r.items[id]
		if !ok || (property.Deleted && !includeDeleted) {
			continue
		}
		out = append(out, property)
	}
	return out, nil
}

func (r *inMemoryPropertyRepo) ListByOwner(_ context.Context, owner string) ([]domain.Property, error) {
	all, _ := r.List(context.Background(), false)
	out := make([]domain.Property, 0)
	for _, property := range all {
		if property.Owner == owner {
			out = append(out, property)
		}
	}
	return out, nil
}

func (r *inMemoryPropertyRepo) Close() {}

type inMemoryBookRepo struct {
	lock  sync.Mutex
	books map[uint64]*domain.Book
	index map[string]map[uint64]struct{}
}

func newInMemoryBookRepo() *inMemoryBookRepo {
	return &inMemoryBookRepo{
		books: make(map[uint64]*domain.Book),
		index: make(map[string]map[uint64]struct{}),
	}
}

func cloneBook(book *domain.Book) *domain.Book {
	out := domain.NewBook(book.PropertyID)
	out.TotalIssued = book.TotalIssued.Clone()
	for account, balance := range book.Balances {
		out.Balances[account] = balance.Clone()
	}
	out.Holders = append(out.Holders[:0], book.Holders...)
	for account, pos := range book.Positions {
		out.Positions[account] = pos
	}
	return out
}

func (r *inMemoryBookRepo) Get(_ context.Context, propertyID uint64) (*domain.Book, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	book, ok := r.books[propertyID]
	if !ok {
		return nil, fmt.Errorf("%w: book for property %d", domain.ErrNotFound, propertyID)
	}
	return cloneBook(book), nil
}

func (r *inMemoryBookRepo) Update(_ context.Context, book *domain.Book, delta domain.Delta) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.books[book.PropertyID] = cloneBook(book)
	r.applyDelta(book.PropertyID, delta)
	return nil
}

func (r *inMemoryBookRepo) Delete(_ context.Context, propertyID uint64, delta domain.Delta) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.books, propertyID)
	r.applyDelta(propertyID, delta)
	return nil
}

func (r *inMemoryBookRepo) applyDelta(propertyID uint64, delta domain.Delta) {
	for _, account := range delta.Added {
		if r.index[account] == nil {
			r.index[account] = make(map[uint64]struct{})
		}
		r.index[account][propertyID] = struct{}{}
	}
	for _, account := range delta.Removed {
		delete(r.index[account], propertyID)
	}
}

func (r *inMemoryBookRepo) HeldProperties(_ context.Context, account string) ([]uint64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]uint64, 0, len(r.index[account]))
	for id := range r.index[account] {
		out = append(out, id)
	}
	return out, nil
}

func (r *inMemoryBookRepo) Close() {}

type inMemoryTreasuryRepo struct {
	lock     sync.Mutex
	treasury *domain.Treasury
}

func cloneTreasury(t *domain.Treasury) *domain.Treasury {
	out := domain.NewTreasury()
	out.TotalSupply = t.TotalSupply.Clone()
	out.Reserve = t.Reserve.Clone()
	for account, balance := range t.UnitBalances {
		out.UnitBalances[account] = balance.Clone()
	}
	for id, balance := range t.Custodial {
		out.Custodial[id] = balance.Clone()
	}
	for account, balance := range t.CashBalances {
		out.CashBalances[account] = balance.Clone()
	}
	return out
}

func (r *inMemoryTreasuryRepo) Get(_ context.Context) (*domain.Treasury, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.treasury == nil {
		r.treasury = domain.NewTreasury()
	}
	return cloneTreasury(r.treasury), nil
}

func (r *inMemoryTreasuryRepo) Update(_ context.Context, treasury *domain.Treasury) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.treasury = cloneTreasury(treasury)
	return nil
}

func (r *inMemoryTreasuryRepo) Close() {}

type inMemoryEventRepo struct {
	lock   sync.Mutex
	events []domain.LedgerEvent
}

func (r *inMemoryEventRepo) Append(_ context.Context, event domain.LedgerEvent) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *inMemoryEventRepo) ListByProperty(
	_ context.Context, propertyID uint64, limit int,
) ([]domain.LedgerEvent, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]domain.LedgerEvent, 0)
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].PropertyID != propertyID {
			continue
		}
		out = append(out, r.events[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *inMemoryEventRepo) Close() {}

type fakeRepoManager struct {
	properties *inMemoryPropertyRepo
	books      *inMemoryBookRepo
	treasury   *inMemoryTreasuryRepo
	events     *inMemoryEventRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		properties: newInMemoryPropertyRepo(),
		books:      newInMemoryBookRepo(),
		treasury:   &inMemoryTreasuryRepo{},
		events:     &inMemoryEventRepo{},
	}
}

func (m *fakeRepoManager) Properties() domain.PropertyRepository { return m.properties }
func (m *fakeRepoManager) Books() domain.BookRepository          { return m.books }
func (m *fakeRepoManager) Treasury() domain.TreasuryRepository   { return m.treasury }
func (m *fakeRepoManager) Events() domain.EventRepository        { return m.events }
func (m *fakeRepoManager) Close()                                {}

type fakeLiveStore struct {
	lock  sync.Mutex
	props map[uint64]*sync.Mutex
	pool  sync.Mutex
}

func newFakeLiveStore() *fakeLiveStore {
	return &fakeLiveStore{props: make(map[uint64]*sync.Mutex)}
}

func (s *fakeLiveStore) AcquireProperty(_ context.Context, propertyID uint64) (func(), error) {
	s.lock.Lock()
	mtx, ok := s.props[propertyID]
	if !ok {
		mtx = &sync.Mutex{}
		s.props[propertyID] = mtx
	}
	s.lock.Unlock()
	mtx.Lock()
	return mtx.Unlock, nil
}

func (s *fakeLiveStore) AcquirePool(_ context.Context) (func(), error) {
	s.pool.Lock()
	return s.pool.Unlock, nil
}

func (s *fakeLiveStore) Close() {}

// stubListingClient answers the sale-listing conflict query from fixed state,
// optionally invoking a callback to simulate a collaborator calling back into
// the ledger.
type stubListingClient struct {
	listed   bool
	err      error
	callback func(ctx context.Context, propertyID uint64)
}

func (c *stubListingClient) IsListedForSale(ctx context.Context, propertyID uint64) (bool, error) {
	if c.callback != nil {
		c.callback(ctx, propertyID)
	}
	return c.listed, c.err
}

type stubRentalClient struct {
	rented bool
	err    error
}

func (c *stubRentalClient) HasActiveAgreement(_ context.Context, _ uint64) (bool, error) {
	return c.rented, c.err
}

type fakeScheduler struct {
	interval time.Duration
	task     func()
	started  bool
	stopped  bool
}

func (s *fakeScheduler) Start() { s.started = true }
func (s *fakeScheduler) Stop()  { s.stopped = true }
func (s *fakeScheduler) ScheduleTaskEvery(interval time.Duration, task func()) error {
	s.interval = interval
	s.task = task
	return nil
}

var (
	_ ports.RepoManager       = (*fakeRepoManager)(nil)
	_ ports.LiveStore         = (*fakeLiveStore)(nil)
	_ ports.SaleListingClient = (*stubListingClient)(nil)
	_ ports.RentalClient      = (*stubRentalClient)(nil)
	_ ports.SchedulerService  = (*fakeScheduler)(nil)
)
