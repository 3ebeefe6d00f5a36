package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"paperledger/internal/event"
	"paperledger/internal/ledger"
	"paperledger/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestEngine(t *testing.T) (*Engine, *ledger.Memory) {
	t.Helper()
	store := ledger.NewMemory(dec("1000000"), "INR")
	return New(store, zap.NewNop(), 5*time.Second), store
}

func entryEvent(tag, symbol string, side types.TradeSide, price string) event.Event {
	return event.Event{
		Kind:    types.EventKindEntry,
		RawKind: "ENTRY",
		Side:    side,
		Symbol:  symbol,
		Tag:     tag,
		Price:   dec(price),
	}
}

func exitEvent(kind types.EventKind, tag, symbol string, side types.TradeSide, price string) event.Event {
	return event.Event{
		Kind:    kind,
		RawKind: string(kind),
		Side:    side,
		Symbol:  symbol,
		Tag:     tag,
		Price:   dec(price),
	}
}

func requireDecEq(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(dec(want)), "want %s, got %s", want, got)
}

func TestEntryAllocatesFifteenPercent(t *testing.T) {
	t.Parallel()
	eng, store := newTestEngine(t)
	ctx := context.Background()

	res, err := eng.Apply(ctx, entryEvent("t-1", "NIFTY", types.TradeSideBuy, "100"))
	require.NoError(t, err)

	requireDecEq(t, "150000", res.Trade.AllocatedAmount)
	requireDecEq(t, "1500", res.Trade.Quantity)
	requireDecEq(t, "850000", res.Balance)
	assert.Equal(t, types.TradeStatusOpen, res.Trade.Status)
	assert.Equal(t, types.LedgerEntryKindAllocation, res.Entry.Kind)
	requireDecEq(t, "-150000", res.Entry.Amount)
	requireDecEq(t, "850000", res.Entry.BalanceAfter)

	acct, err := store.Account(ctx)
	require.NoError(t, err)
	requireDecEq(t, "850000", acct.Balance)
}

func TestExitRealizesPnL(t *testing.T) {
	t.Parallel()
	eng, store := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Apply(ctx, entryEvent("t-1", "NIFTY", types.TradeSideBuy, "100"))
	require.NoError(t, err)

	res, err := eng.Apply(ctx, exitEvent(types.EventKindTarget1, "t-1", "NIFTY", types.TradeSideBuy, "110"))
	require.NoError(t, err)

	require.NotNil(t, res.Trade.RealizedPnL)
	requireDecEq(t, "15000", *res.Trade.RealizedPnL)
	requireDecEq(t, "1015000", res.Balance)
	assert.Equal(t, types.TradeStatusClosed, res.Trade.Status)
	assert.Equal(t, types.LedgerEntryKindSettlement, res.Entry.Kind)
	requireDecEq(t, "165000", res.Entry.Amount)

	trade, err := store.TradeByTag(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, types.TradeStatusClosed, trade.Status)
	require.NotNil(t, trade.ExitPrice)
	requireDecEq(t, "110", *trade.ExitPrice)
	require.NotNil(t, trade.ClosedAt)
}

func TestSellSideSettlement(t *testing.T) {
	t.Parallel()
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := eng.Apply(ctx, entryEvent("s-1", "EURUSD", types.TradeSideSell, "3500.5"))
	require.NoError(t, err)
	requireDecEq(t, "42.8510", res.Trade.Quantity)

	// Short loses when price rises: pnl = (3500.5 - 3525) * 42.8510.
	res, err = eng.Apply(ctx, exitEvent(types.EventKindStoploss, "s-1", "EURUSD", types.TradeSideSell, "3525"))
	require.NoError(t, err)
	require.NotNil(t, res.Trade.RealizedPnL)
	requireDecEq(t, "-1049.8495", *res.Trade.RealizedPnL)
	requireDecEq(t, "998950.1505", res.Balance)
}

func TestDuplicateEntryRejected(t *testing.T) {
	t.Parallel()
	eng, store := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Apply(ctx, entryEvent("dup", "NIFTY", types.TradeSideBuy, "100"))
	require.NoError(t, err)

	_, err = eng.Apply(ctx, entryEvent("dup", "NIFTY", types.TradeSideBuy, "101"))
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	// The rejection must leave no trace: one debit, untouched balance.
	acct, err := store.Account(ctx)
	require.NoError(t, err)
	requireDecEq(t, "850000", acct.Balance)
	entries, err := store.ListEntries(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2) // initial deposit + one allocation
}

func TestExitWithoutEntry(t *testing.T) {
	t.Parallel()
	eng, store := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Apply(ctx, exitEvent(types.EventKindTarget1, "ghost", "NIFTY", types.TradeSideBuy, "110"))
	assert.ErrorIs(t, err, ErrNoOpenTrade)

	acct, err := store.Account(ctx)
	require.NoError(t, err)
	requireDecEq(t, "1000000", acct.Balance)
}

func TestExitOnClosedTrade(t *testing.T) {
	t.Parallel()
	eng, store := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Apply(ctx, entryEvent("t-1", "NIFTY", types.TradeSideBuy, "100"))
	require.NoError(t, err)
	_, err = eng.Apply(ctx, exitEvent(types.EventKindTarget1, "t-1", "NIFTY", types.TradeSideBuy, "110"))
	require.NoError(t, err)

	_, err = eng.Apply(ctx, exitEvent(types.EventKindTarget2, "t-1", "NIFTY", types.TradeSideBuy, "120"))
	assert.ErrorIs(t, err, ErrNoOpenTrade)

	acct, err := store.Account(ctx)
	require.NoError(t, err)
	requireDecEq(t, "1015000", acct.Balance)
}

func TestExitSideMismatch(t *testing.T) {
	t.Parallel()
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Apply(ctx, entryEvent("t-1", "NIFTY", types.TradeSideBuy, "100"))
	require.NoError(t, err)

	_, err = eng.Apply(ctx, exitEvent(types.EventKindStoploss, "t-1", "NIFTY", types.TradeSideSell, "95"))
	assert.ErrorIs(t, err, ErrSideMismatch)
}

func TestUnrecognizedEventAudited(t *testing.T) {
	t.Parallel()
	eng, store := newTestEngine(t)
	ctx := context.Background()

	raw := json.RawMessage(`{"event":"REBALANCE","symbol":"NIFTY","side":"hold"}`)
	res, err := eng.Apply(ctx, event.Event{
		Kind:    types.EventKindUnrecognized,
		RawKind: "REBALANCE",
		RawSide: "hold",
		Symbol:  "NIFTY",
		Raw:     raw,
	})
	require.NoError(t, err)
	assert.True(t, res.Audited)

	events, err := store.ListUnrecognized(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "REBALANCE", events[0].Kind)
	assert.Equal(t, "hold", events[0].Side, "side is stored as delivered")
	assert.JSONEq(t, string(raw), string(events[0].Raw))

	acct, err := store.Account(ctx)
	require.NoError(t, err)
	requireDecEq(t, "1000000", acct.Balance)
}

func TestDeposit(t *testing.T) {
	t.Parallel()
	eng, store := newTestEngine(t)
	ctx := context.Background()

	acct, err := eng.Deposit(ctx, dec("50000"))
	require.NoError(t, err)
	requireDecEq(t, "1050000", acct.Balance)

	entries, err := store.ListEntries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.LedgerEntryKindDeposit, entries[0].Kind)
	requireDecEq(t, "50000", entries[0].Amount)

	_, err = eng.Deposit(ctx, dec("0"))
	assert.Error(t, err)
	_, err = eng.Deposit(ctx, dec("-10"))
	assert.Error(t, err)
}

func TestQuantityPrecision(t *testing.T) {
	t.Parallel()
	cases := []struct {
		symbol string
		want   int32
	}{
		{"BTCUSDT", 6},
		{"ETHUSD", 6},
		{"CRYPTOIDX", 6},
		{"NIFTY", 2},
		{"BANKNIFTY", 2},
		{"NSE:TCS", 2},
		{"BSE:RELIANCE", 2},
		{"EURUSD", 4},
		{"XAUUSD", 4},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, quantityPrecision(tc.symbol), tc.symbol)
	}
}

func TestLedgerBalanceChain(t *testing.T) {
	t.Parallel()
	eng, store := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Apply(ctx, entryEvent("a", "NIFTY", types.TradeSideBuy, "100"))
	require.NoError(t, err)
	_, err = eng.Apply(ctx, entryEvent("b", "EURUSD", types.TradeSideSell, "1.2"))
	require.NoError(t, err)
	_, err = eng.Apply(ctx, exitEvent(types.EventKindTarget1, "a", "NIFTY", types.TradeSideBuy, "104"))
	require.NoError(t, err)
	_, err = eng.Deposit(ctx, dec("25000"))
	require.NoError(t, err)

	entries, err := store.ListEntries(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	// Newest first; replay oldest to newest and check every running balance.
	running := decimal.Zero
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		running = running.Add(e.Amount)
		require.True(t, running.Equal(e.BalanceAfter),
			"entry %d: running %s != balance_after %s", e.Sequence, running, e.BalanceAfter)
	}
	acct, err := store.Account(ctx)
	require.NoError(t, err)
	require.True(t, running.Equal(acct.Balance))
}

func TestConcurrentEntriesSequentialEquivalence(t *testing.T) {
	t.Parallel()
	eng, store := newTestEngine(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Apply(ctx, entryEvent(fmt.Sprintf("c-%d", i), "NIFTY", types.TradeSideBuy, "100"))
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "entry %d", i)
	}

	// Each step debits 15% of whatever the balance was, so the final
	// balance is the same regardless of interleaving order.
	expected := dec("1000000")
	for i := 0; i < n; i++ {
		alloc := expected.Mul(dec("0.15")).Round(8)
		expected = expected.Sub(alloc)
	}
	acct, err := store.Account(ctx)
	require.NoError(t, err)
	require.True(t, acct.Balance.Equal(expected), "want %s, got %s", expected, acct.Balance)

	trades, err := store.ListTrades(ctx, ledger.TradeFilter{})
	require.NoError(t, err)
	require.Len(t, trades, n)
	sumAlloc := decimal.Zero
	for _, tr := range trades {
		sumAlloc = sumAlloc.Add(tr.AllocatedAmount)
	}
	require.True(t, dec("1000000").Sub(sumAlloc).Equal(acct.Balance))
}

// conflictStore fails the first n InTx calls with ErrConflict and then
// behaves like the wrapped memory store, mimicking serialization failures
// under contention.
type conflictStore struct {
	*ledger.Memory
	mu    sync.Mutex
	fail  int
	calls int
}

func (s *conflictStore) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	s.mu.Lock()
	s.calls++
	conflict := s.calls <= s.fail
	s.mu.Unlock()
	if conflict {
		return ledger.ErrConflict
	}
	return s.Memory.InTx(ctx, fn)
}

func (s *conflictStore) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestConflictRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	store := &conflictStore{Memory: ledger.NewMemory(dec("1000000"), "INR"), fail: 2}
	eng := New(store, zap.NewNop(), 5*time.Second)
	ctx := context.Background()

	res, err := eng.Apply(ctx, entryEvent("r-1", "NIFTY", types.TradeSideBuy, "100"))
	require.NoError(t, err)
	assert.Equal(t, 3, store.attempts())
	requireDecEq(t, "850000", res.Balance)

	// The transition committed exactly once.
	trades, err := store.ListTrades(ctx, ledger.TradeFilter{})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	entries, err := store.ListEntries(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2) // initial deposit + one allocation
}

func TestConflictExhaustionIsTransient(t *testing.T) {
	t.Parallel()
	store := &conflictStore{Memory: ledger.NewMemory(dec("1000000"), "INR"), fail: 1000}
	eng := New(store, zap.NewNop(), 5*time.Second)
	ctx := context.Background()

	_, err := eng.Apply(ctx, entryEvent("r-1", "NIFTY", types.TradeSideBuy, "100"))
	require.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 3, store.attempts(), "bounded at three attempts")

	acct, err := store.Account(ctx)
	require.NoError(t, err)
	requireDecEq(t, "1000000", acct.Balance)
}

func TestReplayIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	script := func(eng *Engine) decimal.Decimal {
		_, err := eng.Apply(ctx, entryEvent("a", "NIFTY", types.TradeSideBuy, "250.75"))
		require.NoError(t, err)
		_, err = eng.Apply(ctx, entryEvent("b", "BTCUSDT", types.TradeSideSell, "65000"))
		require.NoError(t, err)
		_, err = eng.Apply(ctx, exitEvent(types.EventKindTarget2, "a", "NIFTY", types.TradeSideBuy, "260"))
		require.NoError(t, err)
		res, err := eng.Apply(ctx, exitEvent(types.EventKindStoploss, "b", "BTCUSDT", types.TradeSideSell, "66000"))
		require.NoError(t, err)
		return res.Balance
	}

	first := script(New(ledger.NewMemory(dec("1000000"), "INR"), zap.NewNop(), 5*time.Second))
	second := script(New(ledger.NewMemory(dec("1000000"), "INR"), zap.NewNop(), 5*time.Second))
	require.True(t, first.Equal(second), "replay diverged: %s vs %s", first, second)
}
