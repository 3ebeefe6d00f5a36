// Package event turns raw webhook payloads into typed commands. Parse is
// total over its input: every delivery either becomes one of the known
// command kinds, an unrecognized-kind event bound for the audit table, or
// a validation/auth rejection that never reaches the engine.
package event

import (
	"encoding/json"

	"paperledger/internal/types"

	"github.com/shopspring/decimal"
)

type Event struct {
	Kind      types.EventKind
	RawKind   string
	Side      types.TradeSide
	RawSide   string
	Symbol    string
	Tag       string
	Timeframe string
	Price     decimal.Decimal
	SigHigh   *decimal.Decimal
	SigLow    *decimal.Decimal
	StopLoss  *decimal.Decimal
	Target1   *decimal.Decimal
	Target2   *decimal.Decimal
	Raw       json.RawMessage
}
