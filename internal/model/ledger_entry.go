package model

import (
	"time"

	"paperledger/internal/types"

	"github.com/shopspring/decimal"
)

// LedgerEntry is one immutable row of the balance audit trail. Entries are
// append-only: created once per state transition and never updated.
type LedgerEntry struct {
	ID           string                `json:"id"`
	Sequence     int64                 `json:"sequence"`
	Kind         types.LedgerEntryKind `json:"kind"`
	Tag          string                `json:"tag,omitempty"`
	Side         types.TradeSide       `json:"side,omitempty"`
	Quantity     *decimal.Decimal      `json:"quantity,omitempty"`
	Price        *decimal.Decimal      `json:"price,omitempty"`
	Amount       decimal.Decimal       `json:"amount"`
	BalanceAfter decimal.Decimal       `json:"balance_after"`
	CreatedAt    time.Time             `json:"created_at"`
}
