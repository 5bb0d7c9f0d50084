package domain

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Book is the per-property holding ledger: the total issued supply, every
// holder's balance, and the holder set kept as a dense slice plus an
// account→position index so removal is O(1) via swap-and-pop.
//
// Invariants, holding after every completed operation:
//   - the sum of Balances equals TotalIssued
//   - Holders contains exactly the accounts with a positive balance
//   - Positions[a] is the index of a in Holders for every member
//
// Zero balances are never retained: an account whose balance reaches zero is
// removed from Balances, Holders and Positions in the same operation.
type Book struct {
	PropertyID  uint64
	TotalIssued *uint256.Int
	Balances    map[string]*uint256.Int
	Holders     []string
	Positions   map[string]int
}

// Delta reports the holder-set membership changes produced by a book
// operation, so the account→property index can be maintained in the same
// storage commit.
type Delta struct {
	Added   []string
	Removed []string
}

// Share is one holder's cut of a distribution.
type Share struct {
	Account string
	Amount  *uint256.Int
}

func NewBook(propertyID uint64) *Book {
	return &Book{
		PropertyID:  propertyID,
		TotalIssued: uint256.NewInt(0),
		Balances:    make(map[string]*uint256.Int),
		Holders:     make([]string, 0),
		Positions:   make(map[string]int),
	}
}

// BalanceOf returns a copy of the account's balance, zero if absent.
func (b *Book) BalanceOf(account string) *uint256.Int {
	if bal, ok := b.Balances[account]; ok {
		return bal.Clone()
	}
	return uint256.NewInt(0)
}

func (b *Book) HolderCount() int {
	return len(b.Holders)
}

// Mint increases the total issued supply and the recipient's balance. A
// first-time holder is appended to the holder set.
func (b *Book) Mint(to string, amount *uint256.Int) (Delta, error) {
	if to == "" {
		return Delta{}, fmt.Errorf("%w: mint recipient must not be empty", ErrInvalidState)
	}
	if amount == nil || amount.IsZero() {
		return Delta{}, fmt.Errorf("%w: mint amount must be positive", ErrInvalidState)
	}

	issued, overflow := new(uint256.Int).AddOverflow(b.TotalIssued, amount)
	if overflow {
		return Delta{}, fmt.Errorf("%w: total issued overflows", ErrArithmeticRange)
	}
	balance, overflow := new(uint256.Int).AddOverflow(b.BalanceOf(to), amount)
	if overflow {
		return Delta{}, fmt.Errorf("%w: balance overflows", ErrArithmeticRange)
	}

	delta := Delta{}
	if _, held := b.Balances[to]; !held {
		b.addHolder(to)
		delta.Added = append(delta.Added, to)
	}
	b.TotalIssued = issued
	b.Balances[to] = balance
	return delta, nil
}

// Transfer moves amount from one holder to another. The sender is removed
// from the holder set when its balance reaches zero, the receiver is added
// when it had none.
func (b *Book) Transfer(from, to string, amount *uint256.Int) (Delta, error) {
	if from == "" || to == "" {
		return Delta{}, fmt.Errorf("%w: transfer accounts must not be empty", ErrInvalidState)
	}
	if from == to {
		return Delta{}, fmt.Errorf("%w: transfer to self", ErrInvalidState)
	}
	if amount == nil || amount.IsZero() {
		return Delta{}, fmt.Errorf("%w: transfer amount must be positive", ErrInvalidState)
	}

	fromBalance := b.BalanceOf(from)
	if fromBalance.Lt(amount) {
		return Delta{}, fmt.Errorf(
			"%w: account %s holds %s, needs %s",
			ErrInsufficientBalance, from, fromBalance.Dec(), amount.Dec(),
		)
	}
	toBalance, overflow := new(uint256.Int).AddOverflow(b.BalanceOf(to), amount)
	if overflow {
		return Delta{}, fmt.Errorf("%w: balance overflows", ErrArithmeticRange)
	}

	delta := Delta{}
	fromBalance.Sub(fromBalance, amount)
	if fromBalance.IsZero() {
		delete(b.Balances, from)
		b.removeHolder(from)
		delta.Removed = append(delta.Removed, from)
	} else {
		b.Balances[from] = fromBalance
	}
	if _, held := b.Balances[to]; !held {
		b.addHolder(to)
		delta.Added = append(delta.Added, to)
	}
	b.Balances[to] = toBalance
	return delta, nil
}

// BurnAll zeroes the total issued supply and every holder's balance, emptying
// the holder set. A book with no holders is a no-op.
func (b *Book) BurnAll() Delta {
	delta := Delta{Removed: append([]string(nil), b.Holders...)}
	b.TotalIssued = uint256.NewInt(0)
	b.Balances = make(map[string]*uint256.Int)
	b.Holders = b.Holders[:0]
	b.Positions = make(map[string]int)
	return delta
}

// SplitYield computes every holder's proportional share of total:
// floor(total · balance / issued) per holder, iterated in the current holder
// set order. The remainder lost to floor truncation is returned separately so
// the caller can route it to the residual account; shares plus remainder
// always add up to exactly total. Each share is clamped to the undistributed
// amount so an unstable iteration order can never over-distribute.
func (b *Book) SplitYield(total *uint256.Int) ([]Share, *uint256.Int, error) {
	if total == nil || total.IsZero() {
		return nil, nil, fmt.Errorf("%w: distribution amount must be positive", ErrInvalidState)
	}
	if b.TotalIssued.IsZero() {
		return nil, nil, fmt.Errorf(
			"%w: property %d has no issued supply", ErrInvalidState, b.PropertyID,
		)
	}

	shares := make([]Share, 0, len(b.Holders))
	remaining := total.Clone()
	for _, holder := range b.Holders {
		product, overflow := new(uint256.Int).MulOverflow(total, b.Balances[holder])
		if overflow {
			return nil, nil, fmt.Errorf("%w: share computation overflows", ErrArithmeticRange)
		}
		share := product.Div(product, b.TotalIssued)
		if share.Gt(remaining) {
			share = remaining.Clone()
		}
		if share.IsZero() {
			continue
		}
		remaining.Sub(remaining, share)
		shares = append(shares, Share{Account: holder, Amount: share})
	}
	return shares, remaining, nil
}

// CheckInvariants verifies conservation and holder-set fidelity. Storage
// round-trips and tests call it; operations maintain the invariants by
// construction.
func (b *Book) CheckInvariants() error {
	sum := uint256.NewInt(0)
	for account, balance := range b.Balances {
		if balance == nil || balance.IsZero() {
			return fmt.Errorf("book %d: zero balance retained for %s", b.PropertyID, account)
		}
		pos, ok := b.Positions[account]
		if !ok {
			return fmt.Errorf("book %d: holder %s missing from index", b.PropertyID, account)
		}
		if pos < 0 || pos >= len(b.Holders) || b.Holders[pos] != account {
			return fmt.Errorf("book %d: index for %s is stale", b.PropertyID, account)
		}
		sum.Add(sum, balance)
	}
	if len(b.Holders) != len(b.Balances) || len(b.Positions) != len(b.Balances) {
		return fmt.Errorf("book %d: holder set and balances diverge", b.PropertyID)
	}
	if !sum.Eq(b.TotalIssued) {
		return fmt.Errorf(
			"book %d: holdings sum %s != total issued %s",
			b.PropertyID, sum.Dec(), b.TotalIssued.Dec(),
		)
	}
	return nil
}

func (b *Book) addHolder(account string) {
	b.Positions[account] = len(b.Holders)
	b.Holders = append(b.Holders, account)
}

// removeHolder swaps the last holder into the removed slot and truncates,
// keeping the position index consistent with the swapped-in element.
func (b *Book) removeHolder(account string) {
	pos, ok := b.Positions[account]
	if !ok {
		return
	}
	last := len(b.Holders) - 1
	moved := b.Holders[last]
	b.Holders[pos] = moved
	b.Holders = b.Holders[:last]
	delete(b.Positions, account)
	if moved != account {
		b.Positions[moved] = pos
	}
}
