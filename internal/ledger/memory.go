package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"paperledger/internal/model"
	"paperledger/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Memory keeps the whole ledger under one mutex, so every InTx body is
// trivially serializable. Mutations are staged on the Tx and applied on
// commit, giving the same all-or-nothing behavior as the Postgres store.
// Used by tests and by DEV_MODE without a database.
type Memory struct {
	mu           sync.Mutex
	account      model.Account
	trades       map[string]model.Trade
	tagOrder     []string
	entries      []model.LedgerEntry
	unrecognized []model.UnrecognizedEvent
	seq          int64
}

func NewMemory(initialBalance decimal.Decimal, currency string) *Memory {
	now := time.Now().UTC()
	m := &Memory{
		account: model.Account{Balance: initialBalance, Currency: currency, UpdatedAt: now},
		trades:  make(map[string]model.Trade),
	}
	m.seq++
	m.entries = append(m.entries, model.LedgerEntry{
		ID:           uuid.NewString(),
		Sequence:     m.seq,
		Kind:         types.LedgerEntryKindDeposit,
		Amount:       initialBalance,
		BalanceAfter: initialBalance,
		CreatedAt:    now,
	})
	return m
}

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{m: m, stagedTrades: make(map[string]model.Trade)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

func (m *Memory) Account(ctx context.Context) (model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.account, nil
}

func (m *Memory) TradeByTag(ctx context.Context, tag string) (model.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[tag]
	if !ok {
		return model.Trade{}, ErrTradeNotFound
	}
	return t, nil
}

func (m *Memory) ListTrades(ctx context.Context, f TradeFilter) ([]model.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Trade, 0, len(m.tagOrder))
	for _, tag := range m.tagOrder {
		t := m.trades[tag]
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Side != "" && t.Side != f.Side {
			continue
		}
		if f.From != nil && t.OpenedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && t.OpenedAt.After(*f.To) {
			continue
		}
		out = append(out, t)
	}
	sortTrades(out, f.SortBy, f.Desc)
	return out, nil
}

func sortTrades(trades []model.Trade, by SortField, desc bool) {
	less := func(a, b model.Trade) bool { return a.OpenedAt.Before(b.OpenedAt) }
	switch by {
	case SortBySymbol:
		less = func(a, b model.Trade) bool { return strings.Compare(a.Symbol, b.Symbol) < 0 }
	case SortByPnL:
		less = func(a, b model.Trade) bool { return tradePnL(a).LessThan(tradePnL(b)) }
	case SortByStatus:
		less = func(a, b model.Trade) bool { return a.Status < b.Status }
	}
	sort.SliceStable(trades, func(i, j int) bool {
		if desc {
			return less(trades[j], trades[i])
		}
		return less(trades[i], trades[j])
	})
}

func tradePnL(t model.Trade) decimal.Decimal {
	if t.RealizedPnL == nil {
		return decimal.Zero
	}
	return *t.RealizedPnL
}

func (m *Memory) ListEntries(ctx context.Context, limit int) ([]model.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]model.LedgerEntry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *Memory) AppendUnrecognized(ctx context.Context, ev model.UnrecognizedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	m.unrecognized = append(m.unrecognized, ev)
	return nil
}

func (m *Memory) ListUnrecognized(ctx context.Context, limit int) ([]model.UnrecognizedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.unrecognized) {
		limit = len(m.unrecognized)
	}
	out := make([]model.UnrecognizedEvent, 0, limit)
	for i := len(m.unrecognized) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.unrecognized[i])
	}
	return out, nil
}

type memTx struct {
	m             *Memory
	stagedAccount *model.Account
	stagedTrades  map[string]model.Trade
	stagedOrder   []string
	stagedEntries []model.LedgerEntry
}

func (t *memTx) apply() {
	if t.stagedAccount != nil {
		t.m.account = *t.stagedAccount
	}
	for tag, tr := range t.stagedTrades {
		t.m.trades[tag] = tr
	}
	t.m.tagOrder = append(t.m.tagOrder, t.stagedOrder...)
	t.m.entries = append(t.m.entries, t.stagedEntries...)
	t.m.seq += int64(len(t.stagedEntries))
}

func (t *memTx) Account(ctx context.Context) (model.Account, error) {
	if t.stagedAccount != nil {
		return *t.stagedAccount, nil
	}
	return t.m.account, nil
}

func (t *memTx) SetBalance(ctx context.Context, balance decimal.Decimal, expectVersion int64) error {
	current := t.m.account
	if t.stagedAccount != nil {
		current = *t.stagedAccount
	}
	if current.Version != expectVersion {
		return ErrConflict
	}
	next := current
	next.Balance = balance
	next.Version = expectVersion + 1
	next.UpdatedAt = time.Now().UTC()
	t.stagedAccount = &next
	return nil
}

func (t *memTx) TradeByTag(ctx context.Context, tag string) (model.Trade, error) {
	if tr, ok := t.stagedTrades[tag]; ok {
		return tr, nil
	}
	tr, ok := t.m.trades[tag]
	if !ok {
		return model.Trade{}, ErrTradeNotFound
	}
	return tr, nil
}

func (t *memTx) InsertTrade(ctx context.Context, tr model.Trade) (model.Trade, error) {
	if _, ok := t.stagedTrades[tr.Tag]; ok {
		return model.Trade{}, ErrDuplicateTag
	}
	if _, ok := t.m.trades[tr.Tag]; ok {
		return model.Trade{}, ErrDuplicateTag
	}
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	t.stagedTrades[tr.Tag] = tr
	t.stagedOrder = append(t.stagedOrder, tr.Tag)
	return tr, nil
}

func (t *memTx) CloseTrade(ctx context.Context, tag string, exitPrice, pnl decimal.Decimal, closedAt time.Time) error {
	tr, err := t.TradeByTag(ctx, tag)
	if err != nil {
		return err
	}
	if tr.Status != types.TradeStatusOpen {
		return ErrTradeNotFound
	}
	tr.Status = types.TradeStatusClosed
	tr.ExitPrice = &exitPrice
	tr.RealizedPnL = &pnl
	tr.ClosedAt = &closedAt
	t.stagedTrades[tag] = tr
	return nil
}

func (t *memTx) AppendEntry(ctx context.Context, e model.LedgerEntry) (model.LedgerEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Sequence = t.m.seq + int64(len(t.stagedEntries)) + 1
	t.stagedEntries = append(t.stagedEntries, e)
	return e, nil
}

var _ Store = (*Memory)(nil)
var _ Store = (*Postgres)(nil)
