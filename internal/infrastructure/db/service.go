package db

import (
	"embed"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/parcelhq/parceld/internal/core/domain"
	"github.com/parcelhq/parceld/internal/core/ports"
	badgerdb "github.com/parcelhq/parceld/internal/infrastructure/db/badger"
	sqlitedb "github.com/parcelhq/parceld/internal/infrastructure/db/sqlite"
)

//go:embed sqlite/migration/*
var migrations embed.FS

var (
	propertyStoreTypes = map[string]func(...interface{}) (domain.PropertyRepository, error){
		"badger": badgerdb.NewPropertyRepository,
		"sqlite": sqlitedb.NewPropertyRepository,
	}
	bookStoreTypes = map[string]func(...interface{}) (domain.BookRepository, error){
		"badger": badgerdb.NewBookRepository,
		"sqlite": sqlitedb.NewBookRepository,
	}
	treasuryStoreTypes = map[string]func(...interface{}) (domain.TreasuryRepository, error){
		"badger": badgerdb.NewTreasuryRepository,
		"sqlite": sqlitedb.NewTreasuryRepository,
	}
	eventStoreTypes = map[string]func(...interface{}) (domain.EventRepository, error){
		"badger": badgerdb.NewEventRepository,
		"sqlite": sqlitedb.NewEventRepository,
	}
)

const sqliteDbFile = "sqlite.db"

type ServiceConfig struct {
	DataStoreType   string
	DataStoreConfig []interface{}
}

type service struct {
	propertyStore domain.PropertyRepository
	bookStore     domain.BookRepository
	treasuryStore domain.TreasuryRepository
	eventStore    domain.EventRepository

	sqliteDb *sqlx.DB
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	propertyStoreFactory, ok := propertyStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}
	bookStoreFactory, ok := bookStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}
	treasuryStoreFactory, ok := treasuryStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}
	eventStoreFactory, ok := eventStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	svc := &service{}
	storeConfig := config.DataStoreConfig

	switch config.DataStoreType {
	case "badger":
	case "sqlite":
		if len(config.DataStoreConfig) != 1 {
			return nil, fmt.Errorf("invalid data store config")
		}
		baseDir, ok := config.DataStoreConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}

		dbFile := filepath.Join(baseDir, sqliteDbFile)
		db, err := sqlitedb.OpenDb(dbFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open db: %s", err)
		}

		driver, err := sqlitemigrate.WithInstance(db.DB, &sqlitemigrate.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to init driver: %s", err)
		}
		source, err := iofs.New(migrations, "sqlite/migration")
		if err != nil {
			return nil, fmt.Errorf("failed to embed migrations: %s", err)
		}
		m, err := migrate.NewWithInstance("iofs", source, "parceldb", driver)
		if err != nil {
			return nil, fmt.Errorf("failed to create migration instance: %s", err)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("failed to run migrations: %s", err)
		}

		svc.sqliteDb = db
		storeConfig = []interface{}{db}
	default:
		return nil, fmt.Errorf("unknown data store db type")
	}

	var err error
	if svc.propertyStore, err = propertyStoreFactory(storeConfig...); err != nil {
		return nil, fmt.Errorf("failed to open property store: %s", err)
	}
	if svc.bookStore, err = bookStoreFactory(storeConfig...); err != nil {
		return nil, fmt.Errorf("failed to open book store: %s", err)
	}
	if svc.treasuryStore, err = treasuryStoreFactory(storeConfig...); err != nil {
		return nil, fmt.Errorf("failed to open treasury store: %s", err)
	}
	if svc.eventStore, err = eventStoreFactory(storeConfig...); err != nil {
		return nil, fmt.Errorf("failed to open event store: %s", err)
	}

	return svc, nil
}

func (s *service) Properties() domain.PropertyRepository {
	return s.propertyStore
}

func (s *service) Books() domain.BookRepository {
	return s.bookStore
}

func (s *service) Treasury() domain.TreasuryRepository {
	return s.treasuryStore
}

func (s *service) Events() domain.EventRepository {
	return s.eventStore
}

func (s *service) Close() {
	s.propertyStore.Close()
	s.bookStore.Close()
	s.treasuryStore.Close()
	s.eventStore.Close()
	if s.sqliteDb != nil {
		_ = s.sqliteDb.Close()
	}
}
