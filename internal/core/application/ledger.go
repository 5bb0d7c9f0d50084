package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/parcelhq/parceld/internal/core/domain"
	"github.com/parcelhq/parceld/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// LedgerService is the fractional ownership ledger: per-property holdings
// with mint/transfer/burn and proportional yield distribution, plus the
// global bonding-curve pool.
//
// Mutating operations are strictly serialized per property id (and per pool)
// through the live store, and run the whole read-compute-write cycle inside
// the lock. All checks precede all writes, so a failing call never leaves
// partially-applied state.
type LedgerService interface {
	Mint(ctx context.Context, caller string, propertyID uint64, to string, amount *uint256.Int) error
	TransferHolding(
		ctx context.Context, caller string, propertyID uint64, from, to string, amount *uint256.Int,
	) error
	CreditIncome(ctx context.Context, caller string, propertyID uint64, amount *uint256.Int) error
	// DistributeYield splits amount across the property's holders in
	// proportion to their balances, routing the floor-truncation remainder to
	// the residual account. A nil amount distributes the full accrued income.
	DistributeYield(
		ctx context.Context, caller string, propertyID uint64, amount *uint256.Int,
	) (*DistributionReport, error)

	Quote(ctx context.Context, quantity *uint256.Int) (*QuoteInfo, error)
	Buy(ctx context.Context, caller string, quantity, payment *uint256.Int) (*BuyResult, error)
	Sell(ctx context.Context, caller string, quantity *uint256.Int) (*SellResult, error)

	BalanceOf(ctx context.Context, propertyID uint64, account string) (*uint256.Int, error)
	Holders(ctx context.Context, propertyID uint64) ([]HolderInfo, error)
	Portfolio(ctx context.Context, account string) (*PortfolioInfo, error)
	Events(ctx context.Context, propertyID uint64, limit int) ([]domain.LedgerEvent, error)
	AccruedIncome(ctx context.Context, propertyID uint64) (*uint256.Int, error)
}

type ledgerService struct {
	repoManager ports.RepoManager
	liveStore   ports.LiveStore
	guard       *conflictGuard
	policy      AccessPolicy
	curve       BondingCurve
	supplyCap   *uint256.Int
}

func NewLedgerService(
	repoManager ports.RepoManager, liveStore ports.LiveStore,
	listings ports.SaleListingClient, rentals ports.RentalClient,
	collaboratorTimeout time.Duration,
	policy AccessPolicy, curve BondingCurve, supplyCap *uint256.Int,
) (LedgerService, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid access policy: %s", err)
	}
	if curve.BasePrice == nil || curve.RateConstant == nil {
		return nil, fmt.Errorf("bonding curve constants are required")
	}
	if supplyCap == nil || supplyCap.IsZero() {
		return nil, fmt.Errorf("supply cap is required")
	}
	if listings == nil || rentals == nil {
		return nil, fmt.Errorf("sale-listing and rental collaborators must be wired")
	}

	return &ledgerService{
		repoManager: repoManager,
		liveStore:   liveStore,
		guard:       newConflictGuard(listings, rentals, collaboratorTimeout),
		policy:      policy,
		curve:       curve,
		supplyCap:   supplyCap.Clone(),
	}, nil
}

func (s *ledgerService) Mint(
	ctx context.Context, caller string, propertyID uint64, to string, amount *uint256.Int,
) error {
	if err := s.policy.requireRegistryAuthority(caller); err != nil {
		return err
	}
	if opActive(ctx, propertyID) {
		return fmt.Errorf("%w: mint on property %d", domain.ErrReentrancy, propertyID)
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
	// minting is authorized by the tokenized state only
	if property.Deleted || !property.Tokenized {
		return fmt.Errorf("%w: property %d is not tokenized", domain.ErrInvalidState, propertyID)
	}

	book, err := s.repoManager.Books().Get(ctx, propertyID)
	if err != nil {
		return err
	}
	delta, err := book.Mint(to, amount)
	if err != nil {
		return err
	}
	if err := s.repoManager.Books().Update(ctx, book, delta); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"property": propertyID, "to": to, "amount": amount.Dec(),
	}).Debug("minted holding")
	s.journal(ctx, domain.LedgerEvent{
		PropertyID: propertyID, Type: domain.EventTypeMint, To: to, Amount: amount.Dec(),
	})
	return nil
}

func (s *ledgerService) TransferHolding(
	ctx context.Context, caller string, propertyID uint64, from, to string, amount *uint256.Int,
) error {
	// only the holder moves its own fractions
	if caller != from {
		return fmt.Errorf(
			"%w: caller %q cannot move holdings of %q", domain.ErrUnauthorized, caller, from,
		)
	}
	if opActive(ctx, propertyID) {
		return fmt.Errorf("%w: transfer on property %d", domain.ErrReentrancy, propertyID)
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
	if property.Deleted || !property.Tokenized {
		return fmt.Errorf("%w: property %d is not tokenized", domain.ErrInvalidState, propertyID)
	}

	if err := s.guard.check(ctx, propertyID); err != nil {
		return err
	}

	book, err := s.repoManager.Books().Get(ctx, propertyID)
	if err != nil {
		return err
	}
	delta, err := book.Transfer(from, to, amount)
	if err != nil {
		return err
	}
	if err := s.repoManager.Books().Update(ctx, book, delta); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"property": propertyID, "from": from, "to": to, "amount": amount.Dec(),
	}).Debug("transferred holding")
	s.journal(ctx, domain.LedgerEvent{
		PropertyID: propertyID, Type: domain.EventTypeTransfer,
		From: from, To: to, Amount: amount.Dec(),
	})
	return nil
}

func (s *ledgerService) CreditIncome(
	ctx context.Context, caller string, propertyID uint64, amount *uint256.Int,
) error {
	if err := s.policy.requirePayoutAuthority(caller); err != nil {
		return err
	}
	if opActive(ctx, propertyID) {
		return fmt.Errorf("%w: income credit on property %d", domain.ErrReentrancy, propertyID)
	}
	ctx = withActiveOp(ctx, propertyID)

	// the deleted check must hold the property lock, or a concurrent delete
	// can pay out the accrued income and strand this credit forever
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

	poolRelease, err := s.liveStore.AcquirePool(ctx)
	if err != nil {
		return err
	}
	defer poolRelease()

	treasury, err := s.repoManager.Treasury().Get(ctx)
	if err != nil {
		return err
	}
	if err := treasury.CreditIncome(propertyID, amount); err != nil {
		return err
	}
	if err := s.repoManager.Treasury().Update(ctx, treasury); err != nil {
		return err
	}

	s.journal(ctx, domain.LedgerEvent{
		PropertyID: propertyID, Type: domain.EventTypeIncome,
		From: caller, Amount: amount.Dec(),
	})
	return nil
}

func (s *ledgerService) DistributeYield(
	ctx context.Context, caller string, propertyID uint64, amount *uint256.Int,
) (*DistributionReport, error) {
	if err := s.policy.requirePayoutAuthority(caller); err != nil {
		return nil, err
	}
	if opActive(ctx, propertyID) {
		return nil, fmt.Errorf("%w: distribution on property %d", domain.ErrReentrancy, propertyID)
	}
	ctx = withActiveOp(ctx, propertyID)

	release, err := s.liveStore.AcquireProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	defer release()

	property, err := s.repoManager.Properties().Get(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if property.Deleted || !property.Tokenized {
		return nil, fmt.Errorf("%w: property %d is not tokenized", domain.ErrInvalidState, propertyID)
	}

	book, err := s.repoManager.Books().Get(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	poolRelease, err := s.liveStore.AcquirePool(ctx)
	if err != nil {
		return nil, err
	}
	defer poolRelease()

	treasury, err := s.repoManager.Treasury().Get(ctx)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		amount = treasury.AccruedIncome(propertyID)
	}

	shares, remainder, err := book.SplitYield(amount)
	if err != nil {
		return nil, err
	}
	if err := treasury.DebitIncome(propertyID, amount); err != nil {
		return nil, err
	}
	for _, share := range shares {
		if err := treasury.CreditCash(share.Account, share.Amount); err != nil {
			return nil, err
		}
	}
	if err := treasury.CreditCash(s.policy.ResidualAccount, remainder); err != nil {
		return nil, err
	}
	if err := s.repoManager.Treasury().Update(ctx, treasury); err != nil {
		return nil, err
	}

	report := &DistributionReport{
		ID:              uuid.NewString(),
		PropertyID:      propertyID,
		Total:           amount.Dec(),
		Shares:          make([]ShareInfo, 0, len(shares)),
		Remainder:       remainder.Dec(),
		ResidualAccount: s.policy.ResidualAccount,
	}
	for _, share := range shares {
		report.Shares = append(report.Shares, ShareInfo{
			Account: share.Account, Amount: share.Amount.Dec(),
		})
	}

	log.WithFields(log.Fields{
		"property": propertyID, "total": amount.Dec(),
		"holders": len(shares), "remainder": remainder.Dec(),
	}).Info("distributed yield")
	s.journal(ctx, domain.LedgerEvent{
		ID: report.ID, PropertyID: propertyID, Type: domain.EventTypeDistribution,
		To: s.policy.ResidualAccount, Amount: amount.Dec(),
	})
	return report, nil
}

func (s *ledgerService) Quote(ctx context.Context, quantity *uint256.Int) (*QuoteInfo, error) {
	if quantity == nil || quantity.IsZero() {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidState)
	}
	treasury, err := s.repoManager.Treasury().Get(ctx)
	if err != nil {
		return nil, err
	}
	price, err := s.curve.UnitPrice(treasury.TotalSupply)
	if err != nil {
		return nil, err
	}
	cost, err := s.curve.Cost(quantity, treasury.TotalSupply)
	if err != nil {
		return nil, err
	}
	return &QuoteInfo{
		Supply:    treasury.TotalSupply.Dec(),
		UnitPrice: price.Dec(),
		Cost:      cost.Dec(),
	}, nil
}

func (s *ledgerService) Buy(
	ctx context.Context, caller string, quantity, payment *uint256.Int,
) (*BuyResult, error) {
	if caller == "" {
		return nil, fmt.Errorf("%w: buyer must not be empty", domain.ErrInvalidState)
	}
	if quantity == nil || quantity.IsZero() {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidState)
	}
	if opActive(ctx, poolOpID) {
		return nil, fmt.Errorf("%w: pool buy", domain.ErrReentrancy)
	}
	ctx = withActiveOp(ctx, poolOpID)

	release, err := s.liveStore.AcquirePool(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	treasury, err := s.repoManager.Treasury().Get(ctx)
	if err != nil {
		return nil, err
	}

	supply, overflow := new(uint256.Int).AddOverflow(treasury.TotalSupply, quantity)
	if overflow {
		return nil, fmt.Errorf("%w: total supply overflows", domain.ErrArithmeticRange)
	}
	if supply.Gt(s.supplyCap) {
		return nil, fmt.Errorf(
			"%w: supply cap %s exceeded", domain.ErrInvalidState, s.supplyCap.Dec(),
		)
	}

	// price against the supply at execution time, never a cached quote
	cost, err := s.curve.Cost(quantity, treasury.TotalSupply)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.Lt(cost) {
		return nil, fmt.Errorf(
			"%w: payment does not cover cost %s", domain.ErrInsufficientBalance, cost.Dec(),
		)
	}

	if err := treasury.Buy(caller, quantity, cost); err != nil {
		return nil, err
	}
	refund := new(uint256.Int).Sub(payment, cost)
	if err := treasury.CreditCash(caller, refund); err != nil {
		return nil, err
	}
	if err := s.repoManager.Treasury().Update(ctx, treasury); err != nil {
		return nil, err
	}

	s.journal(ctx, domain.LedgerEvent{
		Type: domain.EventTypeBuy, To: caller, Amount: quantity.Dec(),
	})
	return &BuyResult{
		Cost:   cost.Dec(),
		Refund: refund.Dec(),
		Supply: treasury.TotalSupply.Dec(),
	}, nil
}

func (s *ledgerService) Sell(
	ctx context.Context, caller string, quantity *uint256.Int,
) (*SellResult, error) {
	if caller == "" {
		return nil, fmt.Errorf("%w: seller must not be empty", domain.ErrInvalidState)
	}
	if quantity == nil || quantity.IsZero() {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidState)
	}
	if opActive(ctx, poolOpID) {
		return nil, fmt.Errorf("%w: pool sell", domain.ErrReentrancy)
	}
	ctx = withActiveOp(ctx, poolOpID)

	release, err := s.liveStore.AcquirePool(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	treasury, err := s.repoManager.Treasury().Get(ctx)
	if err != nil {
		return nil, err
	}
	if treasury.TotalSupply.Lt(quantity) {
		return nil, fmt.Errorf(
			"%w: pool supply %s cannot cover %s",
			domain.ErrInsufficientBalance, treasury.TotalSupply.Dec(), quantity.Dec(),
		)
	}

	// refund is priced at the post-sale supply, mirroring how a buy of the
	// same quantity would have been priced on the way in
	reducedSupply := new(uint256.Int).Sub(treasury.TotalSupply, quantity)
	refund, err := s.curve.Cost(quantity, reducedSupply)
	if err != nil {
		return nil, err
	}
	if err := treasury.Sell(caller, quantity, refund); err != nil {
		return nil, err
	}
	if err := s.repoManager.Treasury().Update(ctx, treasury); err != nil {
		return nil, err
	}

	s.journal(ctx, domain.LedgerEvent{
		Type: domain.EventTypeSell, From: caller, Amount: quantity.Dec(),
	})
	return &SellResult{
		Refund: refund.Dec(),
		Supply: treasury.TotalSupply.Dec(),
	}, nil
}

func (s *ledgerService) BalanceOf(
	ctx context.Context, propertyID uint64, account string,
) (*uint256.Int, error) {
	book, err := s.repoManager.Books().Get(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return book.BalanceOf(account), nil
}

func (s *ledgerService) Holders(ctx context.Context, propertyID uint64) ([]HolderInfo, error) {
	book, err := s.repoManager.Books().Get(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	holders := make([]HolderInfo, 0, book.HolderCount())
	for _, account := range book.Holders {
		holders = append(holders, HolderInfo{
			Account: account, Balance: book.BalanceOf(account).Dec(),
		})
	}
	return holders, nil
}

func (s *ledgerService) Portfolio(ctx context.Context, account string) (*PortfolioInfo, error) {
	held, err := s.repoManager.Books().HeldProperties(ctx, account)
	if err != nil {
		return nil, err
	}
	owned, err := s.repoManager.Properties().ListByOwner(ctx, account)
	if err != nil {
		return nil, err
	}
	ownedIDs := make([]uint64, 0, len(owned))
	for _, property := range owned {
		ownedIDs = append(ownedIDs, property.ID)
	}
	treasury, err := s.repoManager.Treasury().Get(ctx)
	if err != nil {
		return nil, err
	}
	return &PortfolioInfo{
		Account:   account,
		Held:      held,
		Owned:     ownedIDs,
		PoolUnits: treasury.UnitBalanceOf(account).Dec(),
		Cash:      treasury.CashBalanceOf(account).Dec(),
	}, nil
}

func (s *ledgerService) Events(
	ctx context.Context, propertyID uint64, limit int,
) ([]domain.LedgerEvent, error) {
	return s.repoManager.Events().ListByProperty(ctx, propertyID, limit)
}

func (s *ledgerService) AccruedIncome(
	ctx context.Context, propertyID uint64,
) (*uint256.Int, error) {
	treasury, err := s.repoManager.Treasury().Get(ctx)
	if err != nil {
		return nil, err
	}
	return treasury.AccruedIncome(propertyID), nil
}

func (s *ledgerService) journal(ctx context.Context, event domain.LedgerEvent) {
	appendJournal(ctx, s.repoManager.Events(), event)
}
