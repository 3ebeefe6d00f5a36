package ledger

import (
	"context"
	"errors"
	"time"

	"paperledger/internal/model"
	"paperledger/internal/types"

	"github.com/shopspring/decimal"
)

var (
	// ErrTradeNotFound is returned when no trade exists for a tag.
	ErrTradeNotFound = errors.New("trade not found")
	// ErrAccountNotFound is returned when the singleton account row is
	// missing. Schema bootstrap seeds it, so hitting this means the
	// database was not initialized through EnsureSchema.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateTag is returned when inserting a trade whose tag is taken.
	// The constraint lives in the store, not in application checks.
	ErrDuplicateTag = errors.New("duplicate trade tag")
	// ErrConflict is returned on a write-write conflict (serialization
	// failure or account version mismatch). Callers may retry.
	ErrConflict = errors.New("write conflict")
)

type SortField string

const (
	SortByDate   SortField = "date"
	SortBySymbol SortField = "symbol"
	SortByPnL    SortField = "pnl"
	SortByStatus SortField = "status"
)

type TradeFilter struct {
	Status types.TradeStatus // empty matches all
	Side   types.TradeSide   // empty matches all
	From   *time.Time
	To     *time.Time
	SortBy SortField
	Desc   bool
}

// Store is the durable state behind the position engine and the query
// layer. InTx runs fn inside one serializable transaction; every other
// method is a read-committed snapshot read (or a standalone append for
// the audit table).
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Account(ctx context.Context) (model.Account, error)
	TradeByTag(ctx context.Context, tag string) (model.Trade, error)
	ListTrades(ctx context.Context, f TradeFilter) ([]model.Trade, error)
	ListEntries(ctx context.Context, limit int) ([]model.LedgerEntry, error)
	AppendUnrecognized(ctx context.Context, ev model.UnrecognizedEvent) error
	ListUnrecognized(ctx context.Context, limit int) ([]model.UnrecognizedEvent, error)
}

// Tx is the transactional view used by the engine. All mutations commit
// together or not at all.
type Tx interface {
	Account(ctx context.Context) (model.Account, error)
	// SetBalance writes the balance if the account version still equals
	// expectVersion, advancing the version; otherwise ErrConflict.
	SetBalance(ctx context.Context, balance decimal.Decimal, expectVersion int64) error
	TradeByTag(ctx context.Context, tag string) (model.Trade, error)
	InsertTrade(ctx context.Context, t model.Trade) (model.Trade, error)
	CloseTrade(ctx context.Context, tag string, exitPrice, pnl decimal.Decimal, closedAt time.Time) error
	AppendEntry(ctx context.Context, e model.LedgerEntry) (model.LedgerEntry, error)
}
