package model

import (
	"encoding/json"
	"time"
)

// UnrecognizedEvent is a webhook delivery whose event kind is not a
// recognized command. Stored for diagnostics only; never touches the
// account or any trade.
type UnrecognizedEvent struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Symbol     string          `json:"symbol,omitempty"`
	Side       string          `json:"side,omitempty"`
	Timeframe  string          `json:"timeframe,omitempty"`
	Price      string          `json:"price,omitempty"`
	Tag        string          `json:"tag,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}
