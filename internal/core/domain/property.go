package domain

import (
	"fmt"
	"time"
)

// Property is the registry record for a single real-world asset. Ids are
// positive, assigned once and never reused: deleting a property leaves a hole
// in the namespace.
//
// Lifecycle: created unverified and untokenized, then
//
//	Unverified → Verified → Tokenized
//
// with Deleted reachable from any state and terminal. The balance figures for
// a tokenized property live in the ledger's Book, not here: the registry owns
// the lifecycle flags and the outright owner, the ledger owns every balance.
type Property struct {
	ID        uint64
	Owner     string
	Name      string
	Location  string
	Verified  bool
	Tokenized bool
	Deleted   bool
	CreatedAt int64
	UpdatedAt int64
}

func NewProperty(id uint64, owner, name, location string) *Property {
	now := time.Now().Unix()
	return &Property{
		ID:        id,
		Owner:     owner,
		Name:      name,
		Location:  location,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Verify marks the property as verified. Verifying twice fails.
func (p *Property) Verify() error {
	if p.Deleted {
		return fmt.Errorf("%w: property %d is deleted", ErrInvalidState, p.ID)
	}
	if p.Verified {
		return fmt.Errorf("%w: property %d is already verified", ErrInvalidState, p.ID)
	}
	p.Verified = true
	p.UpdatedAt = time.Now().Unix()
	return nil
}

// Unverify clears the verified flag. It fails unless the property is
// currently verified, and is rejected once tokenized: a tokenized property
// has outstanding issuance and its verification cannot be walked back.
func (p *Property) Unverify() error {
	if p.Deleted {
		return fmt.Errorf("%w: property %d is deleted", ErrInvalidState, p.ID)
	}
	if !p.Verified {
		return fmt.Errorf("%w: property %d is not verified", ErrInvalidState, p.ID)
	}
	if p.Tokenized {
		return fmt.Errorf("%w: property %d is tokenized", ErrInvalidState, p.ID)
	}
	p.Verified = false
	p.UpdatedAt = time.Now().Unix()
	return nil
}

// Tokenize marks the property as tokenized. It fails unless the property is
// verified and not yet tokenized. The initial issuance is minted by the
// ledger in the same operation.
func (p *Property) Tokenize() error {
	if p.Deleted {
		return fmt.Errorf("%w: property %d is deleted", ErrInvalidState, p.ID)
	}
	if !p.Verified {
		return fmt.Errorf("%w: property %d is not verified", ErrInvalidState, p.ID)
	}
	if p.Tokenized {
		return fmt.Errorf("%w: property %d is already tokenized", ErrInvalidState, p.ID)
	}
	p.Tokenized = true
	p.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkDeleted makes the record terminal. The id becomes inert and is never
// reassigned. The caller is responsible for burning any outstanding balance.
func (p *Property) MarkDeleted() error {
	if p.Deleted {
		return fmt.Errorf("%w: property %d is already deleted", ErrInvalidState, p.ID)
	}
	p.Deleted = true
	p.UpdatedAt = time.Now().Unix()
	return nil
}

// TransferOwnership changes the outright owner. Conflict checks against the
// sale and rental collaborators happen before this is called.
func (p *Property) TransferOwnership(newOwner string) error {
	if p.Deleted {
		return fmt.Errorf("%w: property %d is deleted", ErrInvalidState, p.ID)
	}
	if newOwner == "" {
		return fmt.Errorf("%w: new owner must not be empty", ErrInvalidState)
	}
	p.Owner = newOwner
	p.UpdatedAt = time.Now().Unix()
	return nil
}
