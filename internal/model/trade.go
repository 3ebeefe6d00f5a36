package model

import (
	"time"

	"paperledger/internal/types"

	"github.com/shopspring/decimal"
)

type Trade struct {
	ID              string            `json:"id"`
	Tag             string            `json:"tag"`
	Symbol          string            `json:"symbol"`
	Side            types.TradeSide   `json:"side"`
	Timeframe       string            `json:"timeframe,omitempty"`
	Status          types.TradeStatus `json:"status"`
	EntryPrice      decimal.Decimal   `json:"entry_price"`
	Quantity        decimal.Decimal   `json:"quantity"`
	AllocatedAmount decimal.Decimal   `json:"allocated_amount"`
	StopLoss        *decimal.Decimal  `json:"stop_loss,omitempty"`
	Target1         *decimal.Decimal  `json:"target1,omitempty"`
	Target2         *decimal.Decimal  `json:"target2,omitempty"`
	SigHigh         *decimal.Decimal  `json:"sig_high,omitempty"`
	SigLow          *decimal.Decimal  `json:"sig_low,omitempty"`
	ExitPrice       *decimal.Decimal  `json:"exit_price,omitempty"`
	RealizedPnL     *decimal.Decimal  `json:"realized_pnl,omitempty"`
	OpenedAt        time.Time         `json:"opened_at"`
	ClosedAt        *time.Time        `json:"closed_at,omitempty"`
}
