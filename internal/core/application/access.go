package application

import (
	"fmt"

	"github.com/parcelhq/parceld/internal/core/domain"
)

// AccessPolicy holds the authority accounts fixed at service initialization.
// There is no ambient caller identity: every mutating entry point receives
// the caller explicitly and evaluates exactly one predicate before touching
// any state.
type AccessPolicy struct {
	// RegistryAuthority may create properties, drive lifecycle transitions
	// and mint.
	RegistryAuthority string
	// PayoutAuthority may credit income and initiate yield distributions.
	PayoutAuthority string
	// ResidualAccount receives the truncation remainder of distributions.
	ResidualAccount string
	// CollaboratorAccounts may notify ownership transfers resolved on their
	// side (a completed sale, a settled rental conflict).
	CollaboratorAccounts []string
}

func (p AccessPolicy) Validate() error {
	if p.RegistryAuthority == "" {
		return fmt.Errorf("missing registry authority")
	}
	if p.PayoutAuthority == "" {
		return fmt.Errorf("missing payout authority")
	}
	if p.ResidualAccount == "" {
		return fmt.Errorf("missing residual account")
	}
	return nil
}

func (p AccessPolicy) requireRegistryAuthority(caller string) error {
	if caller != p.RegistryAuthority {
		return fmt.Errorf("%w: caller %q is not the registry authority", domain.ErrUnauthorized, caller)
	}
	return nil
}

func (p AccessPolicy) requirePayoutAuthority(caller string) error {
	if caller != p.PayoutAuthority {
		return fmt.Errorf("%w: caller %q is not the payout authority", domain.ErrUnauthorized, caller)
	}
	return nil
}

func (p AccessPolicy) requireCollaborator(caller string) error {
	for _, account := range p.CollaboratorAccounts {
		if caller == account {
			return nil
		}
	}
	return fmt.Errorf("%w: caller %q is not a collaborator", domain.ErrUnauthorized, caller)
}

func (p AccessPolicy) requireOwner(caller string, property *domain.Property) error {
	if caller != property.Owner {
		return fmt.Errorf(
			"%w: caller %q does not own property %d", domain.ErrUnauthorized, caller, property.ID,
		)
	}
	return nil
}
