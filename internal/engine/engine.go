// Package engine is the sole mutator of account and trade state. Each
// accepted event becomes exactly one serializable transition against the
// ledger store; everything else is a typed rejection with no state change.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paperledger/internal/event"
	"paperledger/internal/ledger"
	"paperledger/internal/model"
	"paperledger/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// allocationFraction is the sole position-sizing rule: 15% of the current
// balance is committed at every ENTRY.
var allocationFraction = decimal.New(15, -2)

const (
	maxAttempts  = 3
	retryBackoff = 25 * time.Millisecond
	amountScale  = 8
)

type Engine struct {
	store   ledger.Store
	log     *zap.Logger
	timeout time.Duration
}

func New(store ledger.Store, log *zap.Logger, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Engine{store: store, log: log, timeout: timeout}
}

// Result describes an accepted transition. Audited is set when the event
// was an unrecognized kind that only landed in the audit table.
type Result struct {
	Audited bool              `json:"audited,omitempty"`
	Trade   model.Trade       `json:"trade"`
	Entry   model.LedgerEntry `json:"entry"`
	Balance decimal.Decimal   `json:"balance"`
}

// Apply executes one event against the ledger. Rejections come back as
// ErrDuplicateEntry, ErrNoOpenTrade or ErrSideMismatch; storage conflicts
// are retried a bounded number of times and then surfaced as ErrTransient.
func (e *Engine) Apply(ctx context.Context, evt event.Event) (Result, error) {
	switch {
	case evt.Kind == types.EventKindEntry:
		return e.applyEntry(ctx, evt)
	case evt.Kind.IsExit():
		return e.applyExit(ctx, evt)
	default:
		return e.audit(ctx, evt)
	}
}

func (e *Engine) applyEntry(ctx context.Context, evt event.Event) (Result, error) {
	var res Result
	err := e.withRetry(ctx, func(ctx context.Context) error {
		return e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			if _, err := tx.TradeByTag(ctx, evt.Tag); err == nil {
				return ErrDuplicateEntry
			} else if !errors.Is(err, ledger.ErrTradeNotFound) {
				return err
			}
			acct, err := tx.Account(ctx)
			if err != nil {
				return err
			}
			alloc := acct.Balance.Mul(allocationFraction).Round(amountScale)
			qty := alloc.Div(evt.Price).Round(quantityPrecision(evt.Symbol))
			newBalance := acct.Balance.Sub(alloc)
			now := time.Now().UTC()
			trade, err := tx.InsertTrade(ctx, model.Trade{
				Tag:             evt.Tag,
				Symbol:          evt.Symbol,
				Side:            evt.Side,
				Timeframe:       evt.Timeframe,
				Status:          types.TradeStatusOpen,
				EntryPrice:      evt.Price,
				Quantity:        qty,
				AllocatedAmount: alloc,
				StopLoss:        evt.StopLoss,
				Target1:         evt.Target1,
				Target2:         evt.Target2,
				SigHigh:         evt.SigHigh,
				SigLow:          evt.SigLow,
				OpenedAt:        now,
			})
			if err != nil {
				if errors.Is(err, ledger.ErrDuplicateTag) {
					return ErrDuplicateEntry
				}
				return err
			}
			price := evt.Price
			entry, err := tx.AppendEntry(ctx, model.LedgerEntry{
				Kind:         types.LedgerEntryKindAllocation,
				Tag:          evt.Tag,
				Side:         evt.Side,
				Quantity:     &qty,
				Price:        &price,
				Amount:       alloc.Neg(),
				BalanceAfter: newBalance,
				CreatedAt:    now,
			})
			if err != nil {
				return err
			}
			if err := tx.SetBalance(ctx, newBalance, acct.Version); err != nil {
				return err
			}
			res = Result{Trade: trade, Entry: entry, Balance: newBalance}
			return nil
		})
	})
	if err != nil {
		return Result{}, err
	}
	e.log.Info("entry opened",
		zap.String("tag", res.Trade.Tag),
		zap.String("symbol", res.Trade.Symbol),
		zap.String("side", string(res.Trade.Side)),
		zap.String("allocated", res.Trade.AllocatedAmount.String()),
		zap.String("qty", res.Trade.Quantity.String()),
		zap.String("balance", res.Balance.String()))
	return res, nil
}

func (e *Engine) applyExit(ctx context.Context, evt event.Event) (Result, error) {
	var res Result
	err := e.withRetry(ctx, func(ctx context.Context) error {
		return e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			trade, err := tx.TradeByTag(ctx, evt.Tag)
			if err != nil {
				if errors.Is(err, ledger.ErrTradeNotFound) {
					return ErrNoOpenTrade
				}
				return err
			}
			if trade.Status != types.TradeStatusOpen {
				return ErrNoOpenTrade
			}
			if trade.Side != evt.Side {
				return ErrSideMismatch
			}
			pnl := realizedPnL(trade.Side, trade.EntryPrice, evt.Price, trade.Quantity)
			// Settlement may drive the balance negative when the loss
			// exceeds the allocation; the ledger records it truthfully.
			credit := trade.AllocatedAmount.Add(pnl)
			acct, err := tx.Account(ctx)
			if err != nil {
				return err
			}
			newBalance := acct.Balance.Add(credit)
			now := time.Now().UTC()
			price := evt.Price
			entry, err := tx.AppendEntry(ctx, model.LedgerEntry{
				Kind:         types.LedgerEntryKindSettlement,
				Tag:          evt.Tag,
				Side:         evt.Side,
				Quantity:     &trade.Quantity,
				Price:        &price,
				Amount:       credit,
				BalanceAfter: newBalance,
				CreatedAt:    now,
			})
			if err != nil {
				return err
			}
			if err := tx.CloseTrade(ctx, evt.Tag, evt.Price, pnl, now); err != nil {
				return err
			}
			if err := tx.SetBalance(ctx, newBalance, acct.Version); err != nil {
				return err
			}
			trade.Status = types.TradeStatusClosed
			trade.ExitPrice = &price
			trade.RealizedPnL = &pnl
			trade.ClosedAt = &now
			res = Result{Trade: trade, Entry: entry, Balance: newBalance}
			return nil
		})
	})
	if err != nil {
		return Result{}, err
	}
	e.log.Info("trade settled",
		zap.String("tag", res.Trade.Tag),
		zap.String("kind", string(evt.Kind)),
		zap.String("pnl", res.Trade.RealizedPnL.String()),
		zap.String("balance", res.Balance.String()))
	return res, nil
}

func realizedPnL(side types.TradeSide, entry, exit, qty decimal.Decimal) decimal.Decimal {
	if side == types.TradeSideSell {
		return entry.Sub(exit).Mul(qty).Round(amountScale)
	}
	return exit.Sub(entry).Mul(qty).Round(amountScale)
}

func (e *Engine) audit(ctx context.Context, evt event.Event) (Result, error) {
	ev := model.UnrecognizedEvent{
		Kind:       evt.RawKind,
		Symbol:     evt.Symbol,
		Side:       evt.RawSide,
		Timeframe:  evt.Timeframe,
		Tag:        evt.Tag,
		Raw:        evt.Raw,
		ReceivedAt: time.Now().UTC(),
	}
	if !evt.Price.IsZero() {
		ev.Price = evt.Price.String()
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.store.AppendUnrecognized(ctx, ev); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	e.log.Warn("unrecognized event audited",
		zap.String("kind", evt.RawKind),
		zap.String("tag", evt.Tag))
	return Result{Audited: true}, nil
}

// Deposit credits the account outside the trade lifecycle (manual
// add-funds). Amount must be positive.
func (e *Engine) Deposit(ctx context.Context, amount decimal.Decimal) (model.Account, error) {
	if !amount.GreaterThan(decimal.Zero) {
		return model.Account{}, fmt.Errorf("%w: amount must be positive", event.ErrInvalid)
	}
	var out model.Account
	err := e.withRetry(ctx, func(ctx context.Context) error {
		return e.store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
			acct, err := tx.Account(ctx)
			if err != nil {
				return err
			}
			newBalance := acct.Balance.Add(amount)
			if _, err := tx.AppendEntry(ctx, model.LedgerEntry{
				Kind:         types.LedgerEntryKindDeposit,
				Amount:       amount,
				BalanceAfter: newBalance,
				CreatedAt:    time.Now().UTC(),
			}); err != nil {
				return err
			}
			if err := tx.SetBalance(ctx, newBalance, acct.Version); err != nil {
				return err
			}
			acct.Balance = newBalance
			acct.Version++
			out = acct
			return nil
		})
	})
	if err != nil {
		return model.Account{}, err
	}
	e.log.Info("funds added", zap.String("amount", amount.String()), zap.String("balance", out.Balance.String()))
	return out, nil
}

// withRetry re-runs fn on write-write conflicts with a short backoff,
// then reports ErrTransient. Rejections pass through untouched.
func (e *Engine) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
			case <-time.After(retryBackoff << attempt):
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, ledger.ErrConflict) {
			last = err
			e.log.Debug("retrying after write conflict", zap.Int("attempt", attempt+1))
			continue
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransient, last)
}
