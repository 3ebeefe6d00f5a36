package types

type EventKind string

type TradeSide string

type TradeStatus string

type LedgerEntryKind string

const (
	EventKindEntry        EventKind = "ENTRY"
	EventKindTarget1      EventKind = "TARGET1"
	EventKindTarget2      EventKind = "TARGET2"
	EventKindTarget3      EventKind = "TARGET3"
	EventKindStoploss     EventKind = "STOPLOSS"
	EventKindUnrecognized EventKind = "UNRECOGNIZED"
)

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

const (
	TradeStatusOpen   TradeStatus = "OPEN"
	TradeStatusClosed TradeStatus = "CLOSED"
)

const (
	LedgerEntryKindAllocation LedgerEntryKind = "ALLOCATION"
	LedgerEntryKindSettlement LedgerEntryKind = "SETTLEMENT"
	LedgerEntryKindDeposit    LedgerEntryKind = "DEPOSIT"
)

// IsExit reports whether the kind closes an open trade.
func (k EventKind) IsExit() bool {
	switch k {
	case EventKindTarget1, EventKindTarget2, EventKindTarget3, EventKindStoploss:
		return true
	}
	return false
}
