package application

import (
	"context"
	"errors"
	"time"

	"github.com/parcelhq/parceld/internal/core/domain"
	"github.com/parcelhq/parceld/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// PayoutService periodically sweeps the accrued income of every tokenized
// property into distributions, acting as the payout authority. Properties
// with nothing accrued are skipped; a failure on one property is logged and
// does not stop the sweep.
type PayoutService interface {
	Start() error
	Stop()
}

type payoutService struct {
	repoManager ports.RepoManager
	ledger      LedgerService
	scheduler   ports.SchedulerService
	policy      AccessPolicy
	interval    time.Duration
}

func NewPayoutService(
	repoManager ports.RepoManager, ledger LedgerService,
	scheduler ports.SchedulerService, policy AccessPolicy, interval time.Duration,
) PayoutService {
	return &payoutService{
		repoManager: repoManager,
		ledger:      ledger,
		scheduler:   scheduler,
		policy:      policy,
		interval:    interval,
	}
}

func (s *payoutService) Start() error {
	if err := s.scheduler.ScheduleTaskEvery(s.interval, s.sweep); err != nil {
		return err
	}
	s.scheduler.Start()
	log.WithField("interval", s.interval).Info("started payout scheduler")
	return nil
}

func (s *payoutService) Stop() {
	s.scheduler.Stop()
	log.Info("stopped payout scheduler")
}

func (s *payoutService) sweep() {
	ctx := context.Background()

	properties, err := s.repoManager.Properties().List(ctx, false)
	if err != nil {
		log.WithError(err).Error("payout sweep: failed to list properties")
		return
	}

	for i := range properties {
		property := properties[i]
		if !property.Tokenized {
			continue
		}
		accrued, err := s.ledger.AccruedIncome(ctx, property.ID)
		if err != nil {
			log.WithError(err).WithField("property", property.ID).
				Warn("payout sweep: failed to read accrued income")
			continue
		}
		if accrued.IsZero() {
			continue
		}

		report, err := s.ledger.DistributeYield(ctx, s.policy.PayoutAuthority, property.ID, accrued)
		if err != nil {
			// another distribution can race the sweep and drain the accrual
			if errors.Is(err, domain.ErrInsufficientBalance) {
				continue
			}
			log.WithError(err).WithField("property", property.ID).
				Warn("payout sweep: distribution failed")
			continue
		}
		log.WithFields(log.Fields{
			"property": property.ID, "distribution": report.ID, "total": report.Total,
		}).Info("payout sweep: distributed accrued income")
	}
}
