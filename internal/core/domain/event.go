package domain

// Ledger journal event types. Every successful mutating operation appends
// exactly one event.
const (
	EventTypePropertyCreated   = "property_created"
	EventTypeVerified          = "verified"
	EventTypeUnverified        = "unverified"
	EventTypeTokenized         = "tokenized"
	EventTypePropertyDeleted   = "property_deleted"
	EventTypeOwnershipTransfer = "ownership_transfer"
	EventTypeMint              = "mint"
	EventTypeTransfer          = "transfer"
	EventTypeBurn              = "burn"
	EventTypeIncome            = "income"
	EventTypeDistribution      = "distribution"
	EventTypeBuy               = "buy"
	EventTypeSell              = "sell"
)

// LedgerEvent is one append-only journal record. PropertyID is zero for
// global pool operations. Amount is an 18-decimal scaled integer rendered as
// a decimal string so the journal stays storage-agnostic.
type LedgerEvent struct {
	ID         string
	PropertyID uint64
	Type       string
	From       string
	To         string
	Amount     string
	CreatedAt  int64
}
