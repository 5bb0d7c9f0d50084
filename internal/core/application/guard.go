package application

import (
	"context"
	"fmt"
	"time"

	"github.com/parcelhq/parceld/internal/core/domain"
	"github.com/parcelhq/parceld/internal/core/ports"
)

// conflictGuard runs the read-only collaborator queries that must pass
// before any ownership-changing operation. Both collaborators are wired
// explicitly at startup; there is no unset-reference bypass. A collaborator
// that cannot answer (error or timeout) fails the enclosing operation the
// same way a reported conflict does: reject, do not proceed under
// uncertainty.
type conflictGuard struct {
	listings ports.SaleListingClient
	rentals  ports.RentalClient
	timeout  time.Duration
}

func newConflictGuard(
	listings ports.SaleListingClient, rentals ports.RentalClient, timeout time.Duration,
) *conflictGuard {
	return &conflictGuard{listings: listings, rentals: rentals, timeout: timeout}
}

func (g *conflictGuard) check(ctx context.Context, propertyID uint64) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	listed, err := g.listings.IsListedForSale(ctx, propertyID)
	if err != nil {
		return fmt.Errorf(
			"%w: sale-listing collaborator unavailable: %s", domain.ErrConflictingAgreement, err,
		)
	}
	if listed {
		return fmt.Errorf(
			"%w: property %d is listed for sale", domain.ErrConflictingAgreement, propertyID,
		)
	}

	rented, err := g.rentals.HasActiveAgreement(ctx, propertyID)
	if err != nil {
		return fmt.Errorf(
			"%w: rental collaborator unavailable: %s", domain.ErrConflictingAgreement, err,
		)
	}
	if rented {
		return fmt.Errorf(
			"%w: property %d is under an active rental agreement",
			domain.ErrConflictingAgreement, propertyID,
		)
	}
	return nil
}
