package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/parcelhq/parceld/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const (
	treasuryStoreDir = "treasury"
	treasuryKey      = "treasury"
)

type treasuryRepository struct {
	store *badgerhold.Store
}

type treasuryDTO struct {
	Key          string `badgerhold:"key"`
	TotalSupply  string
	Reserve      string
	UnitBalances map[string]string
	Custodial    map[uint64]string
	CashBalances map[string]string
}

func NewTreasuryRepository(config ...interface{}) (domain.TreasuryRepository, error) {
	baseDir, logger, err := repoConfig(config...)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, treasuryStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open treasury store: %s", err)
	}
	return &treasuryRepository{store: store}, nil
}

func (r *treasuryRepository) Get(ctx context.Context) (*domain.Treasury, error) {
	var dto treasuryDTO
	if err := r.store.Get(treasuryKey, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return domain.NewTreasury(), nil
		}
		return nil, err
	}
	return dto.toTreasury()
}

func (r *treasuryRepository) Update(ctx context.Context, treasury *domain.Treasury) error {
	dto := toTreasuryDTO(treasury)
	err := r.store.Upsert(treasuryKey, dto)
	if errors.Is(err, badger.ErrConflict) {
		attempts := 1
		for errors.Is(err, badger.ErrConflict) && attempts <= maxRetries {
			time.Sleep(100 * time.Millisecond)
			err = r.store.Upsert(treasuryKey, dto)
			attempts++
		}
	}
	return err
}

func (r *treasuryRepository) Close() {
	_ = r.store.Close()
}

func toTreasuryDTO(treasury *domain.Treasury) treasuryDTO {
	dto := treasuryDTO{
		Key:          treasuryKey,
		TotalSupply:  treasury.TotalSupply.Dec(),
		Reserve:      treasury.Reserve.Dec(),
		UnitBalances: make(map[string]string, len(treasury.UnitBalances)),
		Custodial:    make(map[uint64]string, len(treasury.Custodial)),
		CashBalances: make(map[string]string, len(treasury.CashBalances)),
	}
	for account, balance := range treasury.UnitBalances {
		dto.UnitBalances[account] = balance.Dec()
	}
	for propertyID, balance := range treasury.Custodial {
		dto.Custodial[propertyID] = balance.Dec()
	}
	for account, balance := range treasury.CashBalances {
		dto.CashBalances[account] = balance.Dec()
	}
	return dto
}

func (d treasuryDTO) toTreasury() (*domain.Treasury, error) {
	treasury := domain.NewTreasury()

	supply, err := parseAmount(d.TotalSupply)
	if err != nil {
		return nil, err
	}
	reserve, err := parseAmount(d.Reserve)
	if err != nil {
		return nil, err
	}
	treasury.TotalSupply = supply
	treasury.Reserve = reserve

	for account, raw := range d.UnitBalances {
		balance, err := parseAmount(raw)
		if err != nil {
			return nil, err
		}
		treasury.UnitBalances[account] = balance
	}
	for propertyID, raw := range d.Custodial {
		balance, err := parseAmount(raw)
		if err != nil {
			return nil, err
		}
		treasury.Custodial[propertyID] = balance
	}
	for account, raw := range d.CashBalances {
		balance, err := parseAmount(raw)
		if err != nil {
			return nil, err
		}
		treasury.CashBalances[account] = balance
	}
	return treasury, nil
}
