package domain

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Treasury is the ledger's global money state: the bonding-curve pool of
// ownership units with its cash reserve, the per-property custodial balances
// accrued from rental income, and the internal cash balances credited by
// distributions, sells and buy refunds.
//
// Units in the pool are global, not tied to any property; per-property
// fractions live in the Books. All amounts are 18-decimal scaled integers.
type Treasury struct {
	TotalSupply  *uint256.Int
	UnitBalances map[string]*uint256.Int

	// Reserve is the cash backing the pool, fed by buys and drained by sells.
	Reserve *uint256.Int

	// Custodial holds accrued, not yet distributed income per property id.
	Custodial map[uint64]*uint256.Int

	// CashBalances is the internal cash ledger credited by yield shares,
	// sell proceeds and buy refunds.
	CashBalances map[string]*uint256.Int
}

func NewTreasury() *Treasury {
	return &Treasury{
		TotalSupply:  uint256.NewInt(0),
		UnitBalances: make(map[string]*uint256.Int),
		Reserve:      uint256.NewInt(0),
		Custodial:    make(map[uint64]*uint256.Int),
		CashBalances: make(map[string]*uint256.Int),
	}
}

func (t *Treasury) UnitBalanceOf(account string) *uint256.Int {
	if b, ok := t.UnitBalances[account]; ok {
		return b.Clone()
	}
	return uint256.NewInt(0)
}

func (t *Treasury) CashBalanceOf(account string) *uint256.Int {
	if b, ok := t.CashBalances[account]; ok {
		return b.Clone()
	}
	return uint256.NewInt(0)
}

// AccruedIncome returns the undistributed custodial balance for a property.
func (t *Treasury) AccruedIncome(propertyID uint64) *uint256.Int {
	if b, ok := t.Custodial[propertyID]; ok {
		return b.Clone()
	}
	return uint256.NewInt(0)
}

// CreditIncome adds rental income to a property's custodial balance.
func (t *Treasury) CreditIncome(propertyID uint64, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: income amount must be positive", ErrInvalidState)
	}
	accrued, overflow := new(uint256.Int).AddOverflow(t.AccruedIncome(propertyID), amount)
	if overflow {
		return fmt.Errorf("%w: custodial balance overflows", ErrArithmeticRange)
	}
	t.Custodial[propertyID] = accrued
	return nil
}

// DebitIncome removes a distributed amount from a property's custodial
// balance. Fails with ErrInsufficientBalance if the accrual cannot cover it.
func (t *Treasury) DebitIncome(propertyID uint64, amount *uint256.Int) error {
	accrued := t.AccruedIncome(propertyID)
	if accrued.Lt(amount) {
		return fmt.Errorf(
			"%w: custodial balance %s cannot cover %s",
			ErrInsufficientBalance, accrued.Dec(), amount.Dec(),
		)
	}
	accrued.Sub(accrued, amount)
	if accrued.IsZero() {
		delete(t.Custodial, propertyID)
	} else {
		t.Custodial[propertyID] = accrued
	}
	return nil
}

// CreditCash adds to an account's internal cash balance.
func (t *Treasury) CreditCash(account string, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	balance, overflow := new(uint256.Int).AddOverflow(t.CashBalanceOf(account), amount)
	if overflow {
		return fmt.Errorf("%w: cash balance overflows", ErrArithmeticRange)
	}
	t.CashBalances[account] = balance
	return nil
}

// Buy mints quantity units to the buyer against cost, which is added to the
// reserve. The supply cap and the payment sufficiency are checked by the
// caller, which owns the pricing.
func (t *Treasury) Buy(buyer string, quantity, cost *uint256.Int) error {
	supply, overflow := new(uint256.Int).AddOverflow(t.TotalSupply, quantity)
	if overflow {
		return fmt.Errorf("%w: total supply overflows", ErrArithmeticRange)
	}
	reserve, overflow := new(uint256.Int).AddOverflow(t.Reserve, cost)
	if overflow {
		return fmt.Errorf("%w: reserve overflows", ErrArithmeticRange)
	}
	balance, overflow := new(uint256.Int).AddOverflow(t.UnitBalanceOf(buyer), quantity)
	if overflow {
		return fmt.Errorf("%w: unit balance overflows", ErrArithmeticRange)
	}
	t.TotalSupply = supply
	t.Reserve = reserve
	t.UnitBalances[buyer] = balance
	return nil
}

// Sell burns quantity units from the seller and pays refund out of the
// reserve into the seller's cash balance.
func (t *Treasury) Sell(seller string, quantity, refund *uint256.Int) error {
	balance := t.UnitBalanceOf(seller)
	if balance.Lt(quantity) {
		return fmt.Errorf(
			"%w: account %s holds %s units, needs %s",
			ErrInsufficientBalance, seller, balance.Dec(), quantity.Dec(),
		)
	}
	if t.Reserve.Lt(refund) {
		return fmt.Errorf(
			"%w: reserve %s cannot cover refund %s",
			ErrInsufficientBalance, t.Reserve.Dec(), refund.Dec(),
		)
	}

	balance.Sub(balance, quantity)
	if balance.IsZero() {
		delete(t.UnitBalances, seller)
	} else {
		t.UnitBalances[seller] = balance
	}
	t.TotalSupply = new(uint256.Int).Sub(t.TotalSupply, quantity)
	t.Reserve = new(uint256.Int).Sub(t.Reserve, refund)
	return t.CreditCash(seller, refund)
}
