package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paperledger/internal/model"
	"paperledger/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const schema = `
create table if not exists account (
	id int primary key,
	balance numeric not null,
	currency text not null,
	version bigint not null default 0,
	updated_at timestamptz not null
);
create table if not exists ledger_entries (
	id uuid primary key default gen_random_uuid(),
	sequence bigserial,
	kind text not null,
	tag text,
	side text,
	qty numeric,
	price numeric,
	amount numeric not null,
	balance_after numeric not null,
	created_at timestamptz not null
);
create table if not exists trades (
	id uuid primary key default gen_random_uuid(),
	tag text not null unique,
	symbol text not null,
	side text not null,
	timeframe text not null default '',
	status text not null,
	entry_price numeric not null,
	qty numeric not null,
	allocated_amount numeric not null,
	stop_loss numeric,
	target1 numeric,
	target2 numeric,
	sig_high numeric,
	sig_low numeric,
	exit_price numeric,
	realized_pnl numeric,
	opened_at timestamptz not null,
	closed_at timestamptz
);
create table if not exists unrecognized_events (
	id uuid primary key default gen_random_uuid(),
	kind text not null,
	symbol text not null default '',
	side text not null default '',
	timeframe text not null default '',
	price text not null default '',
	tag text not null default '',
	raw jsonb,
	received_at timestamptz not null
);
`

// EnsureSchema creates the tables and seeds the singleton account with an
// INITIAL deposit entry, mirroring what the first webhook used to do.
func (p *Postgres) EnsureSchema(ctx context.Context, initialBalance decimal.Decimal, currency string) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	now := time.Now().UTC()
	ct, err := tx.Exec(ctx,
		"insert into account (id, balance, currency, version, updated_at) values (1, $1, $2, 0, $3) on conflict (id) do nothing",
		initialBalance, currency, now)
	if err != nil {
		return err
	}
	if ct.RowsAffected() > 0 {
		_, err = tx.Exec(ctx,
			"insert into ledger_entries (kind, amount, balance_after, created_at) values ($1, $2, $3, $4)",
			string(types.LedgerEntryKindDeposit), initialBalance, initialBalance, now)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return mapPgError(err)
	}
	defer tx.Rollback(ctx)
	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

// mapPgError folds serialization failures, deadlocks and the tag unique
// violation into the store's error taxonomy.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Code)
		case "23505":
			if pgErr.ConstraintName == "trades_tag_key" {
				return ErrDuplicateTag
			}
		}
	}
	return err
}

func (p *Postgres) Account(ctx context.Context) (model.Account, error) {
	return scanAccount(p.pool.QueryRow(ctx, "select balance, currency, version, updated_at from account where id = 1"))
}

func (p *Postgres) TradeByTag(ctx context.Context, tag string) (model.Trade, error) {
	return scanTrade(p.pool.QueryRow(ctx, "select "+tradeColumns+" from trades where tag = $1", tag))
}

const tradeColumns = "id, tag, symbol, side, timeframe, status, entry_price, qty, allocated_amount, stop_loss, target1, target2, sig_high, sig_low, exit_price, realized_pnl, opened_at, closed_at"

func (p *Postgres) ListTrades(ctx context.Context, f TradeFilter) ([]model.Trade, error) {
	query := "select " + tradeColumns + " from trades where 1=1"
	args := []any{}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" and status = $%d", len(args))
	}
	if f.Side != "" {
		args = append(args, string(f.Side))
		query += fmt.Sprintf(" and side = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" and opened_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" and opened_at <= $%d", len(args))
	}
	query += " order by " + tradeOrderColumn(f.SortBy)
	if f.Desc {
		query += " desc"
	} else {
		query += " asc"
	}
	query += ", tag asc"
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func tradeOrderColumn(f SortField) string {
	switch f {
	case SortBySymbol:
		return "symbol"
	case SortByPnL:
		return "coalesce(realized_pnl, 0)"
	case SortByStatus:
		return "status"
	default:
		return "opened_at"
	}
}

func (p *Postgres) ListEntries(ctx context.Context, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := p.pool.Query(ctx,
		"select id, sequence, kind, coalesce(tag, ''), coalesce(side, ''), qty, price, amount, balance_after, created_at from ledger_entries order by sequence desc limit $1",
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var kind, side string
		if err := rows.Scan(&e.ID, &e.Sequence, &kind, &e.Tag, &side, &e.Quantity, &e.Price, &e.Amount, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = types.LedgerEntryKind(kind)
		e.Side = types.TradeSide(side)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) AppendUnrecognized(ctx context.Context, ev model.UnrecognizedEvent) error {
	_, err := p.pool.Exec(ctx,
		"insert into unrecognized_events (kind, symbol, side, timeframe, price, tag, raw, received_at) values ($1,$2,$3,$4,$5,$6,$7,$8)",
		ev.Kind, ev.Symbol, ev.Side, ev.Timeframe, ev.Price, ev.Tag, []byte(ev.Raw), ev.ReceivedAt)
	return err
}

func (p *Postgres) ListUnrecognized(ctx context.Context, limit int) ([]model.UnrecognizedEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := p.pool.Query(ctx,
		"select id, kind, symbol, side, timeframe, price, tag, coalesce(raw, 'null'::jsonb), received_at from unrecognized_events order by received_at desc limit $1",
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.UnrecognizedEvent
	for rows.Next() {
		var ev model.UnrecognizedEvent
		var raw []byte
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Symbol, &ev.Side, &ev.Timeframe, &ev.Price, &ev.Tag, &raw, &ev.ReceivedAt); err != nil {
			return nil, err
		}
		ev.Raw = raw
		out = append(out, ev)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Account(ctx context.Context) (model.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, "select balance, currency, version, updated_at from account where id = 1"))
}

func (t *pgTx) SetBalance(ctx context.Context, balance decimal.Decimal, expectVersion int64) error {
	ct, err := t.tx.Exec(ctx,
		"update account set balance = $1, version = version + 1, updated_at = $2 where id = 1 and version = $3",
		balance, time.Now().UTC(), expectVersion)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: account version moved past %d", ErrConflict, expectVersion)
	}
	return nil
}

func (t *pgTx) TradeByTag(ctx context.Context, tag string) (model.Trade, error) {
	return scanTrade(t.tx.QueryRow(ctx, "select "+tradeColumns+" from trades where tag = $1 for update", tag))
}

func (t *pgTx) InsertTrade(ctx context.Context, tr model.Trade) (model.Trade, error) {
	err := t.tx.QueryRow(ctx,
		"insert into trades (tag, symbol, side, timeframe, status, entry_price, qty, allocated_amount, stop_loss, target1, target2, sig_high, sig_low, opened_at) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) returning id",
		tr.Tag, tr.Symbol, string(tr.Side), tr.Timeframe, string(tr.Status), tr.EntryPrice, tr.Quantity, tr.AllocatedAmount,
		tr.StopLoss, tr.Target1, tr.Target2, tr.SigHigh, tr.SigLow, tr.OpenedAt).Scan(&tr.ID)
	if err != nil {
		return model.Trade{}, mapPgError(err)
	}
	return tr, nil
}

func (t *pgTx) CloseTrade(ctx context.Context, tag string, exitPrice, pnl decimal.Decimal, closedAt time.Time) error {
	ct, err := t.tx.Exec(ctx,
		"update trades set status = $1, exit_price = $2, realized_pnl = $3, closed_at = $4 where tag = $5 and status = $6",
		string(types.TradeStatusClosed), exitPrice, pnl, closedAt, tag, string(types.TradeStatusOpen))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrTradeNotFound
	}
	return nil
}

func (t *pgTx) AppendEntry(ctx context.Context, e model.LedgerEntry) (model.LedgerEntry, error) {
	err := t.tx.QueryRow(ctx,
		"insert into ledger_entries (kind, tag, side, qty, price, amount, balance_after, created_at) values ($1, nullif($2,''), nullif($3,''), $4, $5, $6, $7, $8) returning id, sequence",
		string(e.Kind), e.Tag, string(e.Side), e.Quantity, e.Price, e.Amount, e.BalanceAfter, e.CreatedAt).Scan(&e.ID, &e.Sequence)
	if err != nil {
		return model.LedgerEntry{}, err
	}
	return e, nil
}

func scanAccount(row pgx.Row) (model.Account, error) {
	var a model.Account
	if err := row.Scan(&a.Balance, &a.Currency, &a.Version, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, ErrAccountNotFound
		}
		return model.Account{}, err
	}
	return a, nil
}

func scanTrade(row pgx.Row) (model.Trade, error) {
	var tr model.Trade
	var side, status string
	err := row.Scan(&tr.ID, &tr.Tag, &tr.Symbol, &side, &tr.Timeframe, &status,
		&tr.EntryPrice, &tr.Quantity, &tr.AllocatedAmount,
		&tr.StopLoss, &tr.Target1, &tr.Target2, &tr.SigHigh, &tr.SigLow,
		&tr.ExitPrice, &tr.RealizedPnL, &tr.OpenedAt, &tr.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Trade{}, ErrTradeNotFound
		}
		return model.Trade{}, err
	}
	tr.Side = types.TradeSide(side)
	tr.Status = types.TradeStatus(status)
	return tr, nil
}
