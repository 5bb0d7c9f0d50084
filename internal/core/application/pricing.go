package application

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/parcelhq/parceld/internal/core/domain"
)

// oneUnit is the 18-decimal fixed-point scale factor shared by every
// monetary quantity in the system.
const oneUnit = 1_000_000_000_000_000_000

var scale = uint256.NewInt(oneUnit)

// BondingCurve prices pool units as a pure function of the current total
// supply:
//
//	unitPrice(S) = basePrice + (S² · rateConstant) / SCALE
//	cost(q, S)   = unitPrice(S) · q
//
// with every term an 18-decimal scaled integer and every multiplication
// rescaled by SCALE. The quadratic term makes the price monotonically
// non-decreasing in S. The curve holds no state: callers must re-evaluate it
// against the current supply at execution time, under the pool lock, since
// supply can change between quote and execution.
type BondingCurve struct {
	BasePrice    *uint256.Int
	RateConstant *uint256.Int
}

// UnitPrice returns the price of one whole unit at the given supply.
func (c BondingCurve) UnitPrice(supply *uint256.Int) (*uint256.Int, error) {
	squared, err := mulScaled(supply, supply)
	if err != nil {
		return nil, err
	}
	premium, err := mulScaled(squared, c.RateConstant)
	if err != nil {
		return nil, err
	}
	price, overflow := new(uint256.Int).AddOverflow(c.BasePrice, premium)
	if overflow {
		return nil, fmt.Errorf("%w: unit price overflows", domain.ErrArithmeticRange)
	}
	return price, nil
}

// Cost returns the total price of quantity units at the given supply.
func (c BondingCurve) Cost(quantity, supply *uint256.Int) (*uint256.Int, error) {
	price, err := c.UnitPrice(supply)
	if err != nil {
		return nil, err
	}
	return mulScaled(price, quantity)
}

// mulScaled multiplies two 18-decimal scaled integers, rescaling the result.
func mulScaled(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("%w: scaled multiplication overflows", domain.ErrArithmeticRange)
	}
	return product.Div(product, scale), nil
}
