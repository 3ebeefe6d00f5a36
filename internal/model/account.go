package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the single simulated wallet. It is mutated only by the
// position engine; Version advances on every balance write.
type Account struct {
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}
