// Package query is the read side: consolidated trade views, ledger
// listings and summary KPIs for the dashboard. It never mutates state.
package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"paperledger/internal/ledger"
	"paperledger/internal/model"
	"paperledger/internal/types"

	"github.com/shopspring/decimal"
)

type Service struct {
	store ledger.Store
}

func NewService(store ledger.Store) *Service {
	return &Service{store: store}
}

type TradeParams struct {
	Status    string // open | closed | all
	Side      string // buy | sell | all
	From      string // YYYY-MM-DD
	To        string // YYYY-MM-DD
	SortBy    string // date | symbol | pnl | status
	SortOrder string // asc | desc
}

func (p TradeParams) filter() (ledger.TradeFilter, error) {
	var f ledger.TradeFilter
	switch strings.ToLower(strings.TrimSpace(p.Status)) {
	case "", "all":
	case "open":
		f.Status = types.TradeStatusOpen
	case "closed":
		f.Status = types.TradeStatusClosed
	default:
		return f, errors.New("invalid status filter")
	}
	switch strings.ToLower(strings.TrimSpace(p.Side)) {
	case "", "all":
	case "buy":
		f.Side = types.TradeSideBuy
	case "sell":
		f.Side = types.TradeSideSell
	default:
		return f, errors.New("invalid side filter")
	}
	if p.From != "" {
		t, err := time.Parse("2006-01-02", p.From)
		if err != nil {
			return f, errors.New("invalid from date")
		}
		f.From = &t
	}
	if p.To != "" {
		t, err := time.Parse("2006-01-02", p.To)
		if err != nil {
			return f, errors.New("invalid to date")
		}
		end := t.Add(24*time.Hour - time.Nanosecond)
		f.To = &end
	}
	switch strings.ToLower(strings.TrimSpace(p.SortBy)) {
	case "", "date":
		f.SortBy = ledger.SortByDate
	case "symbol":
		f.SortBy = ledger.SortBySymbol
	case "pnl":
		f.SortBy = ledger.SortByPnL
	case "status":
		f.SortBy = ledger.SortByStatus
	default:
		return f, errors.New("invalid sort field")
	}
	switch strings.ToLower(strings.TrimSpace(p.SortOrder)) {
	case "", "desc":
		f.Desc = true
	case "asc":
	default:
		return f, errors.New("invalid sort order")
	}
	return f, nil
}

func (s *Service) Trades(ctx context.Context, p TradeParams) ([]model.Trade, error) {
	f, err := p.filter()
	if err != nil {
		return nil, err
	}
	return s.store.ListTrades(ctx, f)
}

type Summary struct {
	TotalTrades      int             `json:"total_trades"`
	OpenTrades       int             `json:"open_trades"`
	ClosedTrades     int             `json:"closed_trades"`
	TotalRealizedPnL decimal.Decimal `json:"total_realized_pnl"`
	WinRate          decimal.Decimal `json:"win_rate"`
}

// Summary aggregates KPIs over the trades matching p. Win rate is the
// share of closed trades with positive realized P&L; zero when nothing
// has closed yet.
func (s *Service) Summary(ctx context.Context, p TradeParams) (Summary, error) {
	trades, err := s.Trades(ctx, p)
	if err != nil {
		return Summary{}, err
	}
	var sum Summary
	var wins int
	for _, t := range trades {
		sum.TotalTrades++
		if t.Status == types.TradeStatusOpen {
			sum.OpenTrades++
			continue
		}
		sum.ClosedTrades++
		if t.RealizedPnL != nil {
			sum.TotalRealizedPnL = sum.TotalRealizedPnL.Add(*t.RealizedPnL)
			if t.RealizedPnL.GreaterThan(decimal.Zero) {
				wins++
			}
		}
	}
	if sum.ClosedTrades > 0 {
		sum.WinRate = decimal.NewFromInt(int64(wins)).
			Div(decimal.NewFromInt(int64(sum.ClosedTrades))).
			Round(4)
	}
	return sum, nil
}

func (s *Service) Wallet(ctx context.Context) (model.Account, error) {
	return s.store.Account(ctx)
}

func (s *Service) Ledger(ctx context.Context, limit int) ([]model.LedgerEntry, error) {
	return s.store.ListEntries(ctx, limit)
}

func (s *Service) UnrecognizedEvents(ctx context.Context, limit int) ([]model.UnrecognizedEvent, error) {
	return s.store.ListUnrecognized(ctx, limit)
}
