package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/parcelhq/parceld/internal/core/application"
	"github.com/parcelhq/parceld/internal/core/ports"
	"github.com/parcelhq/parceld/internal/infrastructure/collaborator"
	"github.com/parcelhq/parceld/internal/infrastructure/db"
	inmemorylivestore "github.com/parcelhq/parceld/internal/infrastructure/live-store/inmemory"
	redislivestore "github.com/parcelhq/parceld/internal/infrastructure/live-store/redis"
	timescheduler "github.com/parcelhq/parceld/internal/infrastructure/scheduler/gocron"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}

var (
	supportedDbs = supportedType{
		"badger": {},
		"sqlite": {},
	}
	supportedLiveStores = supportedType{
		"inmemory": {},
		"redis":    {},
	}
)

type Config struct {
	Datadir  string
	Port     uint32
	LogLevel int

	DbType        string
	DbDir         string
	LiveStoreType string
	RedisUrl      string

	RegistryAuthority    string
	PayoutAuthority      string
	ResidualAccount      string
	CollaboratorAccounts []string

	BasePrice    string
	RateConstant string
	SupplyCap    string

	SaleListingURL     string
	RentalURL          string
	NoSaleListingCheck bool
	NoRentalCheck      bool

	CollaboratorTimeout time.Duration
	PayoutInterval      time.Duration

	ApiKeys []string

	repo        ports.RepoManager
	liveStore   ports.LiveStore
	scheduler   ports.SchedulerService
	listings    ports.SaleListingClient
	rentals     ports.RentalClient
	ledgerSvc   application.LedgerService
	registrySvc application.RegistryService
	payoutSvc   application.PayoutService
}

func (c *Config) String() string {
	clone := *c
	clone.ApiKeys = nil
	json, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	defaultDatadir             = appDataDir("parceld")
	DefaultPort                = 7080
	defaultLogLevel            = 4
	defaultDbType              = "badger"
	defaultLiveStoreType       = "inmemory"
	defaultBasePrice           = "1000000000000000000"    // 1.0
	defaultRateConstant        = "10000000000000000"      // 0.01
	defaultSupplyCap           = "1000000000000000000000" // 1000 units
	defaultCollaboratorTimeout = 5                        // seconds
	defaultPayoutInterval      = 0                        // disabled
)

// env returns a list of strings prefixed with `PARCELD_`.
// This is used as a syntax sugar for defining env vars.
func env(values ...string) []string {
	envs := make([]string, len(values))

	for i, value := range values {
		envs[i] = fmt.Sprintf("PARCELD_%s", value)
	}

	return envs
}

var (
	Datadir = &cli.StringFlag{
		Usage: "Directory to store data",
		Name:  "datadir", EnvVars: env("DATADIR"),
		Value: defaultDatadir,
	}

	Port = &cli.UintFlag{
		Usage: "Port to listen on",
		Name:  "port", EnvVars: env("PORT"),
		Value: uint(DefaultPort),
	}

	LogLevel = &cli.IntFlag{
		Usage: "Logging level (0-6, where 6 is trace)",
		Name:  "log-level", EnvVars: env("LOG_LEVEL"),
		Value: defaultLogLevel,
	}

	DbType = &cli.StringFlag{
		Usage: "Database type (badger, sqlite)",
		Name:  "db-type", EnvVars: env("DB_TYPE"),
		Value: defaultDbType,
	}

	LiveStoreType = &cli.StringFlag{
		Usage: "Lock store type (inmemory, redis)",
		Name:  "live-store-type", EnvVars: env("LIVE_STORE_TYPE"),
		Value: defaultLiveStoreType,
	}

	RedisUrl = &cli.StringFlag{
		Usage: "Redis db connection url if PARCELD_LIVE_STORE_TYPE is set to redis",
		Name:  "redis-url", EnvVars: env("REDIS_URL"),
	}

	RegistryAuthority = &cli.StringFlag{
		Usage: "Account allowed to register properties, drive their lifecycle and mint",
		Name:  "registry-authority", EnvVars: env("REGISTRY_AUTHORITY"),
	}

	PayoutAuthority = &cli.StringFlag{
		Usage: "Account allowed to credit income and distribute yield",
		Name:  "payout-authority", EnvVars: env("PAYOUT_AUTHORITY"),
	}

	ResidualAccount = &cli.StringFlag{
		Usage: "Account receiving distribution truncation remainders",
		Name:  "residual-account", EnvVars: env("RESIDUAL_ACCOUNT"),
	}

	CollaboratorAccounts = &cli.StringSliceFlag{
		Usage: "Accounts allowed to notify ownership transfers resolved by a collaborator",
		Name:  "collaborator-accounts", EnvVars: env("COLLABORATOR_ACCOUNTS"),
	}

	BasePrice = &cli.StringFlag{
		Usage: "Bonding curve base unit price (18-decimal scaled integer)",
		Name:  "base-price", EnvVars: env("BASE_PRICE"),
		Value: defaultBasePrice,
	}

	RateConstant = &cli.StringFlag{
		Usage: "Bonding curve rate constant (18-decimal scaled integer)",
		Name:  "rate-constant", EnvVars: env("RATE_CONSTANT"),
		Value: defaultRateConstant,
	}

	SupplyCap = &cli.StringFlag{
		Usage: "Maximum pool supply (18-decimal scaled integer)",
		Name:  "supply-cap", EnvVars: env("SUPPLY_CAP"),
		Value: defaultSupplyCap,
	}

	SaleListingURL = &cli.StringFlag{
		Usage: "Base URL of the sale-listing collaborator",
		Name:  "sale-listing-url", EnvVars: env("SALE_LISTING_URL"),
	}

	RentalURL = &cli.StringFlag{
		Usage: "Base URL of the rental collaborator",
		Name:  "rental-url", EnvVars: env("RENTAL_URL"),
	}

	NoSaleListingCheck = &cli.BoolFlag{
		Usage: "Explicitly disable the sale-listing conflict check",
		Name:  "no-sale-listing-check", EnvVars: env("NO_SALE_LISTING_CHECK"),
	}

	NoRentalCheck = &cli.BoolFlag{
		Usage: "Explicitly disable the rental conflict check",
		Name:  "no-rental-check", EnvVars: env("NO_RENTAL_CHECK"),
	}

	CollaboratorTimeout = &cli.IntFlag{
		Usage: "Collaborator query timeout in seconds",
		Name:  "collaborator-timeout", EnvVars: env("COLLABORATOR_TIMEOUT"),
		Value: defaultCollaboratorTimeout,
	}

	PayoutInterval = &cli.IntFlag{
		Usage:       "Interval in seconds between automatic yield payouts",
		Name:        "payout-interval", EnvVars: env("PAYOUT_INTERVAL"),
		Value:       defaultPayoutInterval,
		DefaultText: "0 disabled",
	}

	ApiKeys = &cli.StringSliceFlag{
		Usage: "API keys in the form key:account (comma-separated)",
		Name:  "api-keys", EnvVars: env("API_KEYS"),
	}
)

var Flags = []cli.Flag{
	Datadir,
	Port,
	LogLevel,
	DbType,
	LiveStoreType,
	RedisUrl,
	RegistryAuthority,
	PayoutAuthority,
	ResidualAccount,
	CollaboratorAccounts,
	BasePrice,
	RateConstant,
	SupplyCap,
	SaleListingURL,
	RentalURL,
	NoSaleListingCheck,
	NoRentalCheck,
	CollaboratorTimeout,
	PayoutInterval,
	ApiKeys,
}

func LoadConfig(c *cli.Context) (*Config, error) {
	if err := initDatadir(c); err != nil {
		return nil, fmt.Errorf("failed to create datadir: %s", err)
	}

	dbPath := filepath.Join(c.String(Datadir.Name), "db")

	var redisUrl string
	if c.String(LiveStoreType.Name) == "redis" {
		redisUrl = c.String(RedisUrl.Name)
		if redisUrl == "" {
			return nil, fmt.Errorf("live store type set to 'redis' but redis url is missing")
		}
	}

	return &Config{
		Datadir:              c.String(Datadir.Name),
		Port:                 uint32(c.Uint(Port.Name)),
		LogLevel:             c.Int(LogLevel.Name),
		DbType:               c.String(DbType.Name),
		DbDir:                dbPath,
		LiveStoreType:        c.String(LiveStoreType.Name),
		RedisUrl:             redisUrl,
		RegistryAuthority:    c.String(RegistryAuthority.Name),
		PayoutAuthority:      c.String(PayoutAuthority.Name),
		ResidualAccount:      c.String(ResidualAccount.Name),
		CollaboratorAccounts: c.StringSlice(CollaboratorAccounts.Name),
		BasePrice:            c.String(BasePrice.Name),
		RateConstant:         c.String(RateConstant.Name),
		SupplyCap:            c.String(SupplyCap.Name),
		SaleListingURL:       c.String(SaleListingURL.Name),
		RentalURL:            c.String(RentalURL.Name),
		NoSaleListingCheck:   c.Bool(NoSaleListingCheck.Name),
		NoRentalCheck:        c.Bool(NoRentalCheck.Name),
		CollaboratorTimeout:  time.Duration(c.Int(CollaboratorTimeout.Name)) * time.Second,
		PayoutInterval:       time.Duration(c.Int(PayoutInterval.Name)) * time.Second,
		ApiKeys:              c.StringSlice(ApiKeys.Name),
	}, nil
}

func initDatadir(c *cli.Context) error {
	datadir := c.String(Datadir.Name)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0o755)
	}
	return nil
}

func appDataDir(appName string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + appName
	}
	return filepath.Join(home, "."+appName)
}

func (c *Config) Validate() error {
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedLiveStores.supports(c.LiveStoreType) {
		return fmt.Errorf(
			"live store type not supported, please select one of: %s", supportedLiveStores,
		)
	}
	if c.RegistryAuthority == "" {
		return fmt.Errorf("missing registry authority")
	}
	if c.PayoutAuthority == "" {
		return fmt.Errorf("missing payout authority")
	}
	if c.ResidualAccount == "" {
		return fmt.Errorf("missing residual account")
	}
	if c.SaleListingURL == "" && !c.NoSaleListingCheck {
		return fmt.Errorf(
			"missing sale-listing url, set PARCELD_NO_SALE_LISTING_CHECK to run without the check",
		)
	}
	if c.RentalURL == "" && !c.NoRentalCheck {
		return fmt.Errorf(
			"missing rental url, set PARCELD_NO_RENTAL_CHECK to run without the check",
		)
	}
	if c.CollaboratorTimeout <= 0 {
		return fmt.Errorf("invalid collaborator timeout, must be at least 1 second")
	}
	if _, err := parseAmount(c.BasePrice); err != nil {
		return fmt.Errorf("invalid base price: %s", err)
	}
	if _, err := parseAmount(c.RateConstant); err != nil {
		return fmt.Errorf("invalid rate constant: %s", err)
	}
	supplyCap, err := parseAmount(c.SupplyCap)
	if err != nil {
		return fmt.Errorf("invalid supply cap: %s", err)
	}
	if supplyCap.IsZero() {
		return fmt.Errorf("supply cap must be positive")
	}
	if _, err := c.ApiKeyMap(); err != nil {
		return err
	}

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.liveStoreService(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	if err := c.collaboratorServices(); err != nil {
		return err
	}
	return nil
}

func (c *Config) LedgerService() (application.LedgerService, error) {
	if c.ledgerSvc == nil {
		if err := c.ledgerService(); err != nil {
			return nil, err
		}
	}
	return c.ledgerSvc, nil
}

func (c *Config) RegistryService() (application.RegistryService, error) {
	if c.registrySvc == nil {
		if err := c.registryService(); err != nil {
			return nil, err
		}
	}
	return c.registrySvc, nil
}

func (c *Config) PayoutService() (application.PayoutService, error) {
	if c.PayoutInterval <= 0 {
		return nil, nil
	}
	if c.payoutSvc == nil {
		ledgerSvc, err := c.LedgerService()
		if err != nil {
			return nil, err
		}
		c.payoutSvc = application.NewPayoutService(
			c.repo, ledgerSvc, c.scheduler, c.accessPolicy(), c.PayoutInterval,
		)
	}
	return c.payoutSvc, nil
}

func (c *Config) RepoManager() ports.RepoManager {
	return c.repo
}

// ApiKeyMap parses the key:account pairs into a lookup map.
func (c *Config) ApiKeyMap() (map[string]string, error) {
	keys := make(map[string]string, len(c.ApiKeys))
	for _, pair := range c.ApiKeys {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid api key entry %q, expected key:account", pair)
		}
		keys[parts[0]] = parts[1]
	}
	return keys, nil
}

func (c *Config) repoManager() error {
	var dataStoreConfig []interface{}
	logger := log.New()

	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		if err := makeDirectoryIfNotExists(c.DbDir); err != nil {
			return err
		}
		dataStoreConfig = []interface{}{c.DbDir}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		DataStoreType:   c.DbType,
		DataStoreConfig: dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) liveStoreService() error {
	var liveStoreSvc ports.LiveStore
	switch c.LiveStoreType {
	case "inmemory":
		liveStoreSvc = inmemorylivestore.NewLiveStore()
	case "redis":
		redisOpts, err := redis.ParseURL(c.RedisUrl)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		liveStoreSvc = redislivestore.NewLiveStore(rdb)
	default:
		return fmt.Errorf("unknown liveStore type")
	}

	c.liveStore = liveStoreSvc
	return nil
}

func (c *Config) schedulerService() error {
	c.scheduler = timescheduler.NewScheduler()
	return nil
}

func (c *Config) collaboratorServices() error {
	if c.NoSaleListingCheck {
		c.listings = collaborator.NewDisabledSaleListingClient()
	} else {
		listings, err := collaborator.NewSaleListingClient(c.SaleListingURL)
		if err != nil {
			return err
		}
		c.listings = listings
	}

	if c.NoRentalCheck {
		c.rentals = collaborator.NewDisabledRentalClient()
	} else {
		rentals, err := collaborator.NewRentalClient(c.RentalURL)
		if err != nil {
			return err
		}
		c.rentals = rentals
	}
	return nil
}

func (c *Config) ledgerService() error {
	basePrice, err := parseAmount(c.BasePrice)
	if err != nil {
		return err
	}
	rateConstant, err := parseAmount(c.RateConstant)
	if err != nil {
		return err
	}
	supplyCap, err := parseAmount(c.SupplyCap)
	if err != nil {
		return err
	}

	svc, err := application.NewLedgerService(
		c.repo, c.liveStore, c.listings, c.rentals, c.CollaboratorTimeout,
		c.accessPolicy(),
		application.BondingCurve{BasePrice: basePrice, RateConstant: rateConstant},
		supplyCap,
	)
	if err != nil {
		return err
	}

	c.ledgerSvc = svc
	return nil
}

func (c *Config) registryService() error {
	svc, err := application.NewRegistryService(
		c.repo, c.liveStore, c.listings, c.rentals, c.CollaboratorTimeout, c.accessPolicy(),
	)
	if err != nil {
		return err
	}

	c.registrySvc = svc
	return nil
}

func (c *Config) accessPolicy() application.AccessPolicy {
	return application.AccessPolicy{
		RegistryAuthority:    c.RegistryAuthority,
		PayoutAuthority:      c.PayoutAuthority,
		ResidualAccount:      c.ResidualAccount,
		CollaboratorAccounts: c.CollaboratorAccounts,
	}
}

func parseAmount(s string) (*uint256.Int, error) {
	return uint256.FromDecimal(s)
}
