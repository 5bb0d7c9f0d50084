package application

// All amounts cross the service boundary as 18-decimal scaled integers
// rendered as decimal strings.

type PropertyInfo struct {
	ID          uint64
	Owner       string
	Name        string
	Location    string
	Verified    bool
	Tokenized   bool
	Deleted     bool
	TotalIssued string
	HolderCount int
	CreatedAt   int64
	UpdatedAt   int64
}

type HolderInfo struct {
	Account string
	Balance string
}

type PortfolioInfo struct {
	Account string
	// Held lists property ids in which the account holds fractions.
	Held []uint64
	// Owned lists property ids the account owns outright.
	Owned []uint64
	// PoolUnits is the account's global bonding-curve balance.
	PoolUnits string
	// Cash is the account's internal cash balance.
	Cash string
}

type ShareInfo struct {
	Account string
	Amount  string
}

type DistributionReport struct {
	ID              string
	PropertyID      uint64
	Total           string
	Shares          []ShareInfo
	Remainder       string
	ResidualAccount string
}

type QuoteInfo struct {
	Supply    string
	UnitPrice string
	Cost      string
}

type BuyResult struct {
	Cost   string
	Refund string
	Supply string
}

type SellResult struct {
	Refund string
	Supply string
}
