package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/parcelhq/parceld/internal/core/domain"
	"github.com/parcelhq/parceld/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// RegistryService owns the property lifecycle: registration, verification,
// tokenization with the initial issuance, ownership transfer and deletion.
// All lifecycle transitions except ownership transfer are gated on the
// registry authority; ownership transfer is gated on the current owner.
type RegistryService interface {
	CreateProperty(
		ctx context.Context, caller, owner, name, location string,
	) (*PropertyInfo, error)
	GetProperty(ctx context.Context, propertyID uint64) (*PropertyInfo, error)
	ListProperties(ctx context.Context, includeDeleted bool) ([]PropertyInfo, error)

	Verify(ctx context.Context, caller string, propertyID uint64) error
	Unverify(ctx context.Context, caller string, propertyID uint64) error
	// Tokenize moves the property to the tokenized state and mints the
	// initial issuance to the outright owner in the same operation.
	Tokenize(
		ctx context.Context, caller string, propertyID uint64, initialSupply *uint256.Int,
	) error
	// DeleteProperty retires the record, burns all outstanding fractions and
	// pays any accrued undistributed income to the owner's cash balance.
	DeleteProperty(ctx context.Context, caller string, propertyID uint64) error
	// TransferOwnership changes the outright owner. Only the current owner may
	// initiate it, and it is refused while the property is listed for sale or
	// under an active rental agreement.
	TransferOwnership(ctx context.Context, caller string, propertyID uint64, newOwner string) error
	// NotifyOwnershipTransfer records an ownership change a collaborator
	// resolved on its side, e.g. a completed sale. Only configured
	// collaborator accounts may invoke it, and the conflict guard is skipped:
	// the conflict being resolved is the listing or agreement itself.
	NotifyOwnershipTransfer(
		ctx context.Context, caller string, propertyID uint64, newOwner string,
	) error
}

type registryService struct {
	repoManager ports.RepoManager
	liveStore   ports.LiveStore
	guard       *conflictGuard
	policy      AccessPolicy
}

func NewRegistryService(
	repoManager ports.RepoManager, liveStore ports.LiveStore,
	listings ports.SaleListingClient, rentals ports.RentalClient,
	collaboratorTimeout time.Duration, policy AccessPolicy,
) (RegistryService, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid access policy: %s", err)
	}
	if listings == nil || rentals == nil {
		return nil, fmt.Errorf("sale-listing and rental collaborators must be wired")
	}
	return &registryService{
		repoManager: repoManager,
		liveStore:   liveStore,
		guard:       newConflictGuard(listings, rentals, collaboratorTimeout),
		policy:      policy,
	}, nil
}

func (s *registryService) CreateProperty(
	ctx context.Context, caller, owner, name, location string,
) (*PropertyInfo, error) {
	if err := s.policy.requireRegistryAuthority(caller); err != nil {
		return nil, err
	}
	if owner == "" || name == "" {
		return nil, fmt.Errorf("%w: owner and name must not be empty", domain.ErrInvalidState)
	}

	property, err := s.repoManager.Properties().Add(ctx, owner, name, location)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"property": property.ID, "owner": owner, "name": name,
	}).Info("registered property")
	appendJournal(ctx, s.repoManager.Events(), domain.LedgerEvent{
		PropertyID: property.ID, Type: domain.EventTypePropertyCreated, To: owner,
	})
	return s.propertyInfo(ctx, property), nil
}

func (s *registryService) GetProperty(
	ctx context.Context, propertyID uint64,
) (*PropertyInfo, error) {
	property, err := s.repoManager.Properties().Get(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return s.propertyInfo(ctx, property), nil
}

func (s *registryService) ListProperties(
	ctx context.Context, includeDeleted bool,
) ([]PropertyInfo, error) {
	properties, err := s.repoManager.Properties().List(ctx, includeDeleted)
	if err != nil {
		return nil, err
	}
	infos := make([]PropertyInfo, 0, len(properties))
	for i := range properties {
		infos = append(infos, *s.propertyInfo(ctx, &properties[i]))
	}
	return infos, nil
}

func (s *registryService) Verify(ctx context.Context, caller string, propertyID uint64) error {
	return s.transition(ctx, caller, propertyID, domain.EventTypeVerified,
		func(p *domain.Property) error { return p.Verify() })
}

func (s *registryService) Unverify(ctx context.Context, caller string, propertyID uint64) error {
	return s.transition(ctx, caller, propertyID, domain.EventTypeUnverified,
		func(p *domain.Property) error { return p.Unverify() })
}

// transition runs a single lifecycle flag change under the property lock.
func (s *registryService) transition(
	ctx context.Context, caller string, propertyID uint64,
	eventType string, apply func(*domain.Property) error,
) error {
	if err := s.policy.requireRegistryAuthority(caller); err != nil {
		return err
	}
	if opActive(ctx, propertyID) {
		return fmt.Errorf("%w: lifecycle change on property %d", domain.ErrReentrancy, propertyID)
	}
	ctx = withActiveOp(ctx, propertyID)

	release, err := s.liveStore.AcquireProperty(ctx, propertyID)
	if err != nil {
		return err
	}
	defer release()

	property, err := s.repoManager.Properties().Get(ctx, propertyID)
	if err != nil {
		return err
	}
	if err := apply(property); err != nil {
		return err
	}
	if err := s.repoManager.Properties().Update(ctx, *property); err != nil {
		return err
	}

	log.WithFields(log.Fields{"property": propertyID, "event": eventType}).
		Info("property lifecycle transition")
	appendJournal(ctx, s.repoManager.Events(), domain.LedgerEvent{
		PropertyID: propertyID, Type: eventType,
	})
	return nil
}

func (s *registryService) Tokenize(
	ctx context.Context, caller string, propertyID uint64, initialSupply *uint256.Int,
) error {
	if err := s.policy.requireRegistryAuthority(caller); err != nil {
		return err
	}
	if initialSupply == nil || initialSupply.IsZero() {
		return fmt.Errorf("%w: initial supply must be positive", domain.ErrInvalidState)
	}
	if opActive(ctx, propertyID) {
		return fmt.Errorf("%w: tokenize on property %d", domain.ErrReentrancy, propertyID)
	}
	ctx = withActiveOp(ctx, propertyID)

	release, err := s.liveStore.AcquireProperty(ctx, propertyID)
	if err != nil {
		return err
	}
	defer release()

	property, err := s.repoManager.Properties().Get(ctx, propertyID)
	if err != nil {
		return err
	}
	if property.Deleted {
		return fmt.Errorf("%w: property %d is deleted", domain.ErrInvalidState, propertyID)
	}

	// a book for this id means a previous issuance was already configured
	if _, err := s.repoManager.Books().Get(ctx, propertyID); err == nil {
		if property.Tokenized {
			return fmt.Errorf(
				"%w: property %d is already tokenized", domain.ErrInvalidState, propertyID,
			)
		}
		return fmt.Errorf("%w: issuance for property %d", domain.ErrAlreadySet, propertyID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	// the flag commits before the book, so a failure between the two writes
	// leaves a tokenized property without a book and a retry resumes into the
	// mint below instead of wedging
	if !property.Tokenized {
		if err := property.Tokenize(); err != nil {
			return err
		}
		if err := s.repoManager.Properties().Update(ctx, *property); err != nil {
			return err
		}
	}

	book := domain.NewBook(propertyID)
	delta, err := book.Mint(property.Owner, initialSupply)
	if err != nil {
		return err
	}
	if err := s.repoManager.Books().Update(ctx, book, delta); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"property": propertyID, "owner": property.Owner, "supply": initialSupply.Dec(),
	}).Info("tokenized property")
	appendJournal(ctx, s.repoManager.Events(), domain.LedgerEvent{
		PropertyID: propertyID, Type: domain.EventTypeTokenized,
		To: property.Owner, Amount: initialSupply.Dec(),
	})
	return nil
}

func (s *registryService) DeleteProperty(
	ctx context.Context, caller string, propertyID uint64,
) error {
	if err := s.policy.requireRegistryAuthority(caller); err != nil {
		return err
	}
	if opActive(ctx, propertyID) {
		return fmt.Errorf("%w: delete on property %d", domain.ErrReentrancy, propertyID)
	}
	ctx = withActiveOp(ctx, propertyID)

	release, err := s.liveStore.AcquireProperty(ctx, propertyID)
	if err != nil {
		return err
	}
	defer release()

	property, err := s.repoManager.Properties().Get(ctx, propertyID)
	if err != nil {
		return err
	}
	if property.Deleted {
		return fmt.Errorf("%w: property %d is already deleted", domain.ErrInvalidState, propertyID)
	}

	if err := s.guard.check(ctx, propertyID); err != nil {
		return err
	}

	burned := uint256.NewInt(0)
	if property.Tokenized {
		// the book may already be gone if a previous delete failed between
		// the book removal and the property commit
		book, err := s.repoManager.Books().Get(ctx, propertyID)
		if err == nil {
			burned = book.TotalIssued.Clone()
			delta := book.BurnAll()
			if err := s.repoManager.Books().Delete(ctx, propertyID, delta); err != nil {
				return err
			}
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}

	// accrued income a deleted property can no longer distribute goes to the
	// outright owner
	poolRelease, err := s.liveStore.AcquirePool(ctx)
	if err != nil {
		return err
	}
	defer poolRelease()

	treasury, err := s.repoManager.Treasury().Get(ctx)
	if err != nil {
		return err
	}
	accrued := treasury.AccruedIncome(propertyID)
	if !accrued.IsZero() {
		if err := treasury.DebitIncome(propertyID, accrued); err != nil {
			return err
		}
		if err := treasury.CreditCash(property.Owner, accrued); err != nil {
			return err
		}
		if err := s.repoManager.Treasury().Update(ctx, treasury); err != nil {
			return err
		}
	}

	if err := property.MarkDeleted(); err != nil {
		return err
	}
	if err := s.repoManager.Properties().Update(ctx, *property); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"property": propertyID, "burned": burned.Dec(), "accrued": accrued.Dec(),
	}).Info("deleted property")
	appendJournal(ctx, s.repoManager.Events(), domain.LedgerEvent{
		PropertyID: propertyID, Type: domain.EventTypePropertyDeleted,
		To: property.Owner, Amount: burned.Dec(),
	})
	return nil
}

func (s *registryService) TransferOwnership(
	ctx context.Context, caller string, propertyID uint64, newOwner string,
) error {
	if opActive(ctx, propertyID) {
		return fmt.Errorf(
			"%w: ownership transfer on property %d", domain.ErrReentrancy, propertyID,
		)
	}
	ctx = withActiveOp(ctx, propertyID)

	release, err := s.liveStore.AcquireProperty(ctx, propertyID)
	if err != nil {
		return err
	}
	defer release()

	property, err := s.repoManager.Properties().Get(ctx, propertyID)
	if err != nil {
		return err
	}
	if err := s.policy.requireOwner(caller, property); err != nil {
		return err
	}

	if err := s.guard.check(ctx, propertyID); err != nil {
		return err
	}

	previousOwner := property.Owner
	if err := property.TransferOwnership(newOwner); err != nil {
		return err
	}
	if err := s.repoManager.Properties().Update(ctx, *property); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"property": propertyID, "from": previousOwner, "to": newOwner,
	}).Info("transferred property ownership")
	appendJournal(ctx, s.repoManager.Events(), domain.LedgerEvent{
		PropertyID: propertyID, Type: domain.EventTypeOwnershipTransfer,
		From: previousOwner, To: newOwner,
	})
	return nil
}

func (s *registryService) NotifyOwnershipTransfer(
	ctx context.Context, caller string, propertyID uint64, newOwner string,
) error {
	if err := s.policy.requireCollaborator(caller); err != nil {
		return err
	}
	if opActive(ctx, propertyID) {
		return fmt.Errorf(
			"%w: ownership notification on property %d", domain.ErrReentrancy, propertyID,
		)
	}
	ctx = withActiveOp(ctx, propertyID)

	release, err := s.liveStore.AcquireProperty(ctx, propertyID)
	if err != nil {
		return err
	}
	defer release()

	property, err := s.repoManager.Properties().Get(ctx, propertyID)
	if err != nil {
		return err
	}

	previousOwner := property.Owner
	if err := property.TransferOwnership(newOwner); err != nil {
		return err
	}
	if err := s.repoManager.Properties().Update(ctx, *property); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"property": propertyID, "from": previousOwner, "to": newOwner, "collaborator": caller,
	}).Info("recorded collaborator ownership transfer")
	appendJournal(ctx, s.repoManager.Events(), domain.LedgerEvent{
		PropertyID: propertyID, Type: domain.EventTypeOwnershipTransfer,
		From: previousOwner, To: newOwner,
	})
	return nil
}

func (s *registryService) propertyInfo(
	ctx context.Context, property *domain.Property,
) *PropertyInfo {
	info := &PropertyInfo{
		ID:          property.ID,
		Owner:       property.Owner,
		Name:        property.Name,
		Location:    property.Location,
		Verified:    property.Verified,
		Tokenized:   property.Tokenized,
		Deleted:     property.Deleted,
		TotalIssued: "0",
		CreatedAt:   property.CreatedAt,
		UpdatedAt:   property.UpdatedAt,
	}
	if property.Tokenized && !property.Deleted {
		if book, err := s.repoManager.Books().Get(ctx, property.ID); err == nil {
			info.TotalIssued = book.TotalIssued.Dec()
			info.HolderCount = book.HolderCount()
		}
	}
	return info
}

// appendJournal appends a ledger event best-effort after the state commit. A
// journal failure is logged, never propagated: the state change already
// happened.
func appendJournal(ctx context.Context, events domain.EventRepository, event domain.LedgerEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.CreatedAt = time.Now().Unix()
	if err := events.Append(ctx, event); err != nil {
		log.WithError(err).Warn("failed to append ledger event")
	}
}
