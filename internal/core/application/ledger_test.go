package application

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/parcelhq/parceld/internal/core/domain"
	"github.com/stretchr/testify/require"
)

var testPolicy = AccessPolicy{
	RegistryAuthority:    "registry",
	PayoutAuthority:      "payout",
	ResidualAccount:      "residual",
	CollaboratorAccounts: []string{"sale-svc"},
}

// testCurve prices units(1+n²) per unit at a supply of n units.
var testCurve = BondingCurve{
	BasePrice:    units(1),
	RateConstant: units(1),
}

type testEnv struct {
	repos    *fakeRepoManager
	store    *fakeLiveStore
	ledger   LedgerService
	registry RegistryService
	listings *stubListingClient
	rentals  *stubRentalClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repos := newFakeRepoManager()
	store := newFakeLiveStore()
	listings := &stubListingClient{}
	rentals := &stubRentalClient{}

	ledger, err := NewLedgerService(
		repos, store, listings, rentals, time.Second, testPolicy, testCurve, units(100),
	)
	require.NoError(t, err)

	registry, err := NewRegistryService(repos, store, listings, rentals, time.Second, testPolicy)
	require.NoError(t, err)

	return &testEnv{
		repos:    repos,
		store:    store,
		ledger:   ledger,
		registry: registry,
		listings: listings,
		rentals:  rentals,
	}
}

// tokenizedProperty registers, verifies and tokenizes a property owned by
// owner with the given initial supply, returning its id.
func (e *testEnv) tokenizedProperty(
	t *testing.T, owner string, initialSupply *uint256.Int,
) uint64 {
	t.Helper()
	ctx := context.Background()

	info, err := e.registry.CreateProperty(ctx, "registry", owner, "Shoreline Flats", "Lisbon")
	require.NoError(t, err)
	require.NoError(t, e.registry.Verify(ctx, "registry", info.ID))
	require.NoError(t, e.registry.Tokenize(ctx, "registry", info.ID, initialSupply))
	return info.ID
}

func (e *testEnv) balance(t *testing.T, propertyID uint64, account string) *uint256.Int {
	t.Helper()
	balance, err := e.ledger.BalanceOf(context.Background(), propertyID, account)
	require.NoError(t, err)
	return balance
}

func (e *testEnv) cash(t *testing.T, account string) *uint256.Int {
	t.Helper()
	treasury, err := e.repos.treasury.Get(context.Background())
	require.NoError(t, err)
	return treasury.CashBalanceOf(account)
}

func TestMint(t *testing.T) {
	ctx := context.Background()

	t.Run("requires_registry_authority", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))

		err := env.ledger.Mint(ctx, "alice", id, "bob", units(10))
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("requires_tokenized_property", func(t *testing.T) {
		env := newTestEnv(t)
		info, err := env.registry.CreateProperty(ctx, "registry", "alice", "Mill House", "Porto")
		require.NoError(t, err)

		err = env.ledger.Mint(ctx, "registry", info.ID, "bob", units(10))
		require.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("credits_recipient", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))

		require.NoError(t, env.ledger.Mint(ctx, "registry", id, "bob", units(50)))

		require.Equal(t, units(50), env.balance(t, id, "bob"))
		holders, err := env.ledger.Holders(ctx, id)
		require.NoError(t, err)
		require.Len(t, holders, 2)
	})
}

func TestTransferHolding(t *testing.T) {
	ctx := context.Background()

	t.Run("only_the_holder_moves_its_fractions", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))

		err := env.ledger.TransferHolding(ctx, "bob", id, "alice", "bob", units(10))
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("moves_balance", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))

		require.NoError(t, env.ledger.TransferHolding(ctx, "alice", id, "alice", "bob", units(30)))

		require.Equal(t, units(70), env.balance(t, id, "alice"))
		require.Equal(t, units(30), env.balance(t, id, "bob"))
	})

	t.Run("full_transfer_removes_sender_from_holder_set", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))

		require.NoError(t, env.ledger.TransferHolding(ctx, "alice", id, "alice", "bob", units(100)))

		holders, err := env.ledger.Holders(ctx, id)
		require.NoError(t, err)
		require.Len(t, holders, 1)
		require.Equal(t, "bob", holders[0].Account)

		held, err := env.repos.books.HeldProperties(ctx, "alice")
		require.NoError(t, err)
		require.Empty(t, held)
	})

	t.Run("insufficient_balance", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))

		err := env.ledger.TransferHolding(ctx, "alice", id, "alice", "bob", units(101))
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)
		require.Equal(t, units(100), env.balance(t, id, "alice"))
	})

	t.Run("rejected_while_listed_for_sale", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))
		env.listings.listed = true

		err := env.ledger.TransferHolding(ctx, "alice", id, "alice", "bob", units(30))
		require.ErrorIs(t, err, domain.ErrConflictingAgreement)
		require.Equal(t, units(100), env.balance(t, id, "alice"))
	})

	t.Run("rejected_while_rented", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))
		env.rentals.rented = true

		err := env.ledger.TransferHolding(ctx, "alice", id, "alice", "bob", units(30))
		require.ErrorIs(t, err, domain.ErrConflictingAgreement)
	})

	t.Run("collaborator_failure_fails_closed", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))
		env.listings.err = context.DeadlineExceeded

		err := env.ledger.TransferHolding(ctx, "alice", id, "alice", "bob", units(30))
		require.ErrorIs(t, err, domain.ErrConflictingAgreement)
		require.Equal(t, units(100), env.balance(t, id, "alice"))
	})

	t.Run("collaborator_callback_is_rejected_as_reentrancy", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))

		var callbackErr error
		env.listings.callback = func(cbCtx context.Context, propertyID uint64) {
			callbackErr = env.ledger.TransferHolding(
				cbCtx, "alice", propertyID, "alice", "bob", units(1),
			)
		}

		require.NoError(t, env.ledger.TransferHolding(ctx, "alice", id, "alice", "bob", units(30)))
		require.ErrorIs(t, callbackErr, domain.ErrReentrancy)
	})
}

func TestCreditIncome(t *testing.T) {
	ctx := context.Background()

	t.Run("requires_payout_authority", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))

		err := env.ledger.CreditIncome(ctx, "alice", id, units(10))
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("rejected_on_deleted_property", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))
		require.NoError(t, env.registry.DeleteProperty(ctx, "registry", id))

		err := env.ledger.CreditIncome(ctx, "payout", id, units(10))
		require.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("waits_for_the_property_lock", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))

		// holding the property lock must block the credit: the deleted check
		// races a concurrent delete otherwise
		release, err := env.store.AcquireProperty(ctx, id)
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			done <- env.ledger.CreditIncome(ctx, "payout", id, units(10))
		}()

		select {
		case <-done:
			t.Fatal("income credit did not wait for the property lock")
		case <-time.After(100 * time.Millisecond):
		}

		release()
		require.NoError(t, <-done)

		accrued, err := env.ledger.AccruedIncome(ctx, id)
		require.NoError(t, err)
		require.Equal(t, units(10), accrued)
	})
}

func TestDistributeYield(t *testing.T) {
	ctx := context.Background()

	t.Run("requires_payout_authority", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))

		_, err := env.ledger.DistributeYield(ctx, "alice", id, units(10))
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("exact_proportional_split", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))
		require.NoError(t, env.ledger.Mint(ctx, "registry", id, "bob", units(50)))
		require.NoError(t, env.ledger.CreditIncome(ctx, "payout", id, units(30)))

		report, err := env.ledger.DistributeYield(ctx, "payout", id, units(30))
		require.NoError(t, err)

		require.Len(t, report.Shares, 2)
		require.Equal(t, "0", report.Remainder)
		require.Equal(t, units(20), env.cash(t, "alice"))
		require.Equal(t, units(10), env.cash(t, "bob"))

		accrued, err := env.ledger.AccruedIncome(ctx, id)
		require.NoError(t, err)
		require.True(t, accrued.IsZero())
	})

	t.Run("truncation_remainder_goes_to_residual_account", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))
		require.NoError(t, env.ledger.Mint(ctx, "registry", id, "bob", units(1)))
		require.NoError(t, env.ledger.CreditIncome(ctx, "payout", id, units(10)))

		report, err := env.ledger.DistributeYield(ctx, "payout", id, units(10))
		require.NoError(t, err)

		issued := units(101)
		wantAlice := new(uint256.Int).Mul(units(10), units(100))
		wantAlice.Div(wantAlice, issued)
		wantBob := new(uint256.Int).Mul(units(10), units(1))
		wantBob.Div(wantBob, issued)

		require.Equal(t, wantAlice, env.cash(t, "alice"))
		require.Equal(t, wantBob, env.cash(t, "bob"))

		// shares plus remainder reconcile to the distributed total
		distributed := new(uint256.Int).Add(wantAlice, wantBob)
		wantRemainder := new(uint256.Int).Sub(units(10), distributed)
		require.False(t, wantRemainder.IsZero())
		require.Equal(t, wantRemainder.Dec(), report.Remainder)
		require.Equal(t, wantRemainder, env.cash(t, "residual"))
	})

	t.Run("nil_amount_distributes_full_accrual", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))
		require.NoError(t, env.ledger.CreditIncome(ctx, "payout", id, units(7)))

		report, err := env.ledger.DistributeYield(ctx, "payout", id, nil)
		require.NoError(t, err)
		require.Equal(t, units(7).Dec(), report.Total)
		require.Equal(t, units(7), env.cash(t, "alice"))
	})

	t.Run("cannot_exceed_accrued_income", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.tokenizedProperty(t, "alice", units(100))
		require.NoError(t, env.ledger.CreditIncome(ctx, "payout", id, units(5)))

		_, err := env.ledger.DistributeYield(ctx, "payout", id, units(10))
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)
		require.True(t, env.cash(t, "alice").IsZero())
	})
}

func TestPoolBuySell(t *testing.T) {
	ctx := context.Background()

	t.Run("quote_matches_curve", func(t *testing.T) {
		env := newTestEnv(t)

		quote, err := env.ledger.Quote(ctx, units(2))
		require.NoError(t, err)
		require.Equal(t, "0", quote.Supply)
		require.Equal(t, units(1).Dec(), quote.UnitPrice)
		require.Equal(t, units(2).Dec(), quote.Cost)
	})

	t.Run("buy_refunds_overpayment", func(t *testing.T) {
		env := newTestEnv(t)

		result, err := env.ledger.Buy(ctx, "carol", units(2), units(5))
		require.NoError(t, err)
		require.Equal(t, units(2).Dec(), result.Cost)
		require.Equal(t, units(3).Dec(), result.Refund)
		require.Equal(t, units(2).Dec(), result.Supply)
		require.Equal(t, units(3), env.cash(t, "carol"))
	})

	t.Run("buy_rejects_short_payment", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.ledger.Buy(ctx, "carol", units(2), units(1))
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)

		treasury, err := env.repos.treasury.Get(ctx)
		require.NoError(t, err)
		require.True(t, treasury.TotalSupply.IsZero())
	})

	t.Run("buy_enforces_supply_cap", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.ledger.Buy(ctx, "carol", units(101), units(1000))
		require.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("price_rises_with_supply", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.ledger.Buy(ctx, "carol", units(2), units(2))
		require.NoError(t, err)

		quote, err := env.ledger.Quote(ctx, units(1))
		require.NoError(t, err)
		// unitPrice(2) = 1 + 2² = 5
		require.Equal(t, units(5).Dec(), quote.UnitPrice)
	})

	t.Run("full_round_trip_returns_the_reserve", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.ledger.Buy(ctx, "carol", units(2), units(2))
		require.NoError(t, err)

		result, err := env.ledger.Sell(ctx, "carol", units(2))
		require.NoError(t, err)
		require.Equal(t, units(2).Dec(), result.Refund)
		require.Equal(t, "0", result.Supply)
		require.Equal(t, units(2), env.cash(t, "carol"))

		treasury, err := env.repos.treasury.Get(ctx)
		require.NoError(t, err)
		require.True(t, treasury.Reserve.IsZero())
	})

	t.Run("sell_rejects_units_not_held", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.ledger.Buy(ctx, "carol", units(2), units(2))
		require.NoError(t, err)

		_, err = env.ledger.Sell(ctx, "dave", units(1))
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	})
}

func TestPortfolio(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	id := env.tokenizedProperty(t, "alice", units(100))
	require.NoError(t, env.ledger.TransferHolding(ctx, "alice", id, "alice", "bob", units(40)))
	_, err := env.ledger.Buy(ctx, "bob", units(3), units(100))
	require.NoError(t, err)

	portfolio, err := env.ledger.Portfolio(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, []uint64{id}, portfolio.Held)
	require.Empty(t, portfolio.Owned)
	require.Equal(t, units(3).Dec(), portfolio.PoolUnits)

	portfolio, err = env.ledger.Portfolio(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []uint64{id}, portfolio.Held)
	require.Equal(t, []uint64{id}, portfolio.Owned)
}

func TestLedgerEvents(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	id := env.tokenizedProperty(t, "alice", units(100))
	require.NoError(t, env.ledger.TransferHolding(ctx, "alice", id, "alice", "bob", units(40)))

	events, err := env.ledger.Events(ctx, id, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	// most recent first
	require.Equal(t, domain.EventTypeTransfer, events[0].Type)
	require.Equal(t, domain.EventTypePropertyCreated, events[len(events)-1].Type)
}
