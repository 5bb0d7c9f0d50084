package ports

import "context"

// SaleListingClient is the read-only conflict query against the sale-listing
// collaborator. A call error means the collaborator could not answer; the
// guard rejects the enclosing operation rather than proceeding under
// uncertainty.
type SaleListingClient interface {
	IsListedForSale(ctx context.Context, propertyID uint64) (bool, error)
}

// RentalClient is the read-only conflict query against the rental
// collaborator.
type RentalClient interface {
	HasActiveAgreement(ctx context.Context, propertyID uint64) (bool, error)
}
