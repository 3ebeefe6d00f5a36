package event

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"paperledger/internal/types"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalid marks a malformed payload or a missing/invalid required
	// field. Wrapped errors carry the detail.
	ErrInvalid = errors.New("invalid event payload")
	// ErrBadSecret marks a shared-secret mismatch. Callers must not let
	// the response distinguish it from ErrInvalid.
	ErrBadSecret = errors.New("secret mismatch")
)

// number decodes a JSON number, a numeric string, or null. TradingView
// alert templates interpolate prices as either form, so both are accepted.
// A null/absent field stays nil, which is distinct from zero.
type number struct {
	val *decimal.Decimal
}

func (n *number) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	n.val = &d
	return nil
}

type payload struct {
	Secret  string `json:"secret"`
	Event   string `json:"event"`
	Side    string `json:"side"`
	Symbol  string `json:"symbol"`
	Price   number `json:"price"`
	Tag     string `json:"tag"`
	TF      string `json:"tf"`
	SigHigh number `json:"sigHigh"`
	SigLow  number `json:"sigLow"`
	SL      number `json:"sl"`
	T1      number `json:"t1"`
	T2      number `json:"t2"`
}

var knownKinds = map[string]types.EventKind{
	"ENTRY":    types.EventKindEntry,
	"TARGET1":  types.EventKindTarget1,
	"TARGET2":  types.EventKindTarget2,
	"TARGET3":  types.EventKindTarget3,
	"STOPLOSS": types.EventKindStoploss,
}

// Parse validates one inbound delivery against the configured shared
// secret and classifies it. Unrecognized event kinds parse successfully
// with Kind set to EventKindUnrecognized; only a bad secret, broken JSON,
// or a recognized kind with missing/invalid required fields fail.
func Parse(body []byte, secret string) (Event, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if subtle.ConstantTimeCompare([]byte(p.Secret), []byte(secret)) != 1 {
		return Event{}, ErrBadSecret
	}
	rawKind := strings.ToUpper(strings.TrimSpace(p.Event))
	if rawKind == "" {
		return Event{}, fmt.Errorf("%w: missing event", ErrInvalid)
	}
	ev := Event{
		RawKind:   rawKind,
		RawSide:   p.Side,
		Symbol:    strings.TrimSpace(p.Symbol),
		Tag:       strings.TrimSpace(p.Tag),
		Timeframe: strings.TrimSpace(p.TF),
		SigHigh:   p.SigHigh.val,
		SigLow:    p.SigLow.val,
		StopLoss:  p.SL.val,
		Target1:   p.T1.val,
		Target2:   p.T2.val,
		Raw:       json.RawMessage(body),
	}
	side := types.TradeSide(strings.ToUpper(strings.TrimSpace(p.Side)))
	if side == types.TradeSideBuy || side == types.TradeSideSell {
		ev.Side = side
	}
	if p.Price.val != nil {
		ev.Price = *p.Price.val
	}

	kind, ok := knownKinds[rawKind]
	if !ok {
		// Not a command: carried as-is to the audit path.
		ev.Kind = types.EventKindUnrecognized
		return ev, nil
	}
	ev.Kind = kind

	var missing []string
	if ev.Side == "" {
		missing = append(missing, "side")
	}
	if ev.Symbol == "" {
		missing = append(missing, "symbol")
	}
	if ev.Tag == "" {
		missing = append(missing, "tag")
	}
	if p.Price.val == nil || !p.Price.val.GreaterThan(decimal.Zero) {
		missing = append(missing, "price")
	}
	if len(missing) > 0 {
		return Event{}, fmt.Errorf("%w: missing or invalid %s", ErrInvalid, strings.Join(missing, ","))
	}
	return ev, nil
}
