package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"

	"trade_stream/internal/domain"
	"trade_stream/internal/event"
	"trade_stream/pkg/quant"
)

// Journal persists session events and settled trades in SQLite.
type Journal struct {
	db *sql.DB
}

// NewJournal opens (or creates) a journal database with WAL mode enabled.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	// Event log, keyed by the session's monotonic sequence number.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			type INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}

	// Settled trades, one row per closed contract.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			trade_id TEXT PRIMARY KEY,
			contract_id INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			status TEXT NOT NULL,
			buy_price INTEGER NOT NULL,
			payout INTEGER NOT NULL,
			sell_price INTEGER NOT NULL,
			profit INTEGER NOT NULL,
			opened_ts INTEGER NOT NULL,
			closed_ts INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create trades table: %w", err)
	}

	return &Journal{db: db}, nil
}

// SaveEvent appends one event to the log.
func (j *Journal) SaveEvent(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = j.db.ExecContext(ctx,
		"INSERT INTO events (id, type, ts, payload) VALUES (?, ?, ?, ?)",
		ev.GetSeq(), ev.GetType(), ev.GetTs(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// SaveTrade records a settled contract under a fresh trade id.
func (j *Journal) SaveTrade(ctx context.Context, c domain.Contract) (string, error) {
	tradeID := uuid.New().String()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO trades
			(trade_id, contract_id, symbol, status, buy_price, payout, sell_price, profit, opened_ts, closed_ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tradeID, c.ID, c.Symbol, c.Status,
		int64(c.BuyPrice), int64(c.Payout), int64(c.SellPrice), int64(c.Profit),
		int64(c.OpenedTs), int64(c.ClosedTs),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert trade: %w", err)
	}
	return tradeID, nil
}

// LoadTrades returns all settled trades, oldest first.
func (j *Journal) LoadTrades(ctx context.Context) ([]domain.Contract, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT contract_id, symbol, status, buy_price, payout, sell_price, profit, opened_ts, closed_ts
		 FROM trades ORDER BY closed_ts ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Contract
	for rows.Next() {
		var c domain.Contract
		var buy, payout, sell, profit, opened, closed int64
		if err := rows.Scan(&c.ID, &c.Symbol, &c.Status, &buy, &payout, &sell, &profit, &opened, &closed); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		c.BuyPrice = quant.AmountMicros(buy)
		c.Payout = quant.AmountMicros(payout)
		c.SellPrice = quant.AmountMicros(sell)
		c.Profit = quant.AmountMicros(profit)
		c.OpenedTs = quant.TimeStamp(opened)
		c.ClosedTs = quant.TimeStamp(closed)
		out = append(out, c)
	}
	return out, rows.Err()
}

// LastSeq returns the highest event sequence number stored, 0 when empty.
func (j *Journal) LastSeq(ctx context.Context) (uint64, error) {
	var last sql.NullInt64
	err := j.db.QueryRowContext(ctx, "SELECT MAX(id) FROM events").Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("failed to get last seq: %w", err)
	}
	if !last.Valid {
		return 0, nil
	}
	return uint64(last.Int64), nil
}

// LoadTickEvents loads tick events from the log starting at fromSeq
// (inclusive), in sequence order. This is the backtest input.
func (j *Journal) LoadTickEvents(ctx context.Context, fromSeq uint64) ([]*event.TickEvent, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT id, payload FROM events WHERE id >= ? AND type = ? ORDER BY id ASC",
		fromSeq, event.EvTick,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*event.TickEvent
	for rows.Next() {
		var id int64
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		var ev event.TickEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event %d: %w", id, err)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// Attach subscribes the journal to a session bus. Ticks are optional (high
// volume); contract, balance, connect, disconnect, and error events are
// always recorded. Settled contracts also land in the trades table. Returns
// a detach func.
func (j *Journal) Attach(bus *event.Bus, recordTicks bool) func() {
	ctx := context.Background()

	save := func(ev event.Event) {
		if err := j.SaveEvent(ctx, ev); err != nil {
			slog.Warn("journal write failed", "type", ev.GetType(), "err", err)
		}
	}

	var cancels []func()
	if recordTicks {
		cancels = append(cancels, bus.Subscribe(event.EvTick, save))
	}
	cancels = append(cancels,
		bus.Subscribe(event.EvBalanceUpdate, save),
		bus.Subscribe(event.EvConnect, save),
		bus.Subscribe(event.EvDisconnect, save),
		bus.Subscribe(event.EvError, save),
		bus.Subscribe(event.EvContractUpdate, func(ev event.Event) {
			save(ev)
			c := ev.(event.ContractEvent).Contract
			if c.IsClosed() {
				if _, err := j.SaveTrade(ctx, c); err != nil {
					slog.Warn("trade write failed", "contract", c.ID, "err", err)
				}
			}
		}),
	)

	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
