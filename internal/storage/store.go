package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
	"github.com/rs/zerolog/log"
)

// TradeStore is the read-only view of ingested trading history.
type TradeStore interface {
	// TradesForTrader returns the trader's trades ordered by timestamp ascending.
	TradesForTrader(ctx context.Context, address string) ([]types.Trade, error)
	TradesForMarket(ctx context.Context, marketID string) ([]types.Trade, error)
	MarketResolution(ctx context.Context, marketID string) (types.Resolution, error)
	TrackedTraders(ctx context.Context) ([]string, error)
	Markets(ctx context.Context) ([]types.Market, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS traders (
	address    TEXT PRIMARY KEY,
	is_flagged BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS markets (
	market_id       TEXT PRIMARY KEY,
	title           TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	resolved        BOOLEAN NOT NULL DEFAULT FALSE,
	winning_outcome TEXT
);

CREATE TABLE IF NOT EXISTS trades (
	trade_id        TEXT PRIMARY KEY,
	trader_address  TEXT NOT NULL,
	market_id       TEXT NOT NULL,
	market_title    TEXT NOT NULL DEFAULT '',
	market_category TEXT NOT NULL DEFAULT '',
	outcome         TEXT NOT NULL DEFAULT '',
	shares          DOUBLE PRECISION NOT NULL DEFAULT 0,
	price           DOUBLE PRECISION NOT NULL DEFAULT 0,
	side            TEXT NOT NULL DEFAULT '',
	timestamp       TEXT
);

CREATE INDEX IF NOT EXISTS idx_trades_trader ON trades (trader_address);
CREATE INDEX IF NOT EXISTS idx_trades_market ON trades (market_id);
`

const tradeColumns = `trade_id, trader_address, market_id, market_title, market_category,
	outcome, shares, price, side, timestamp`

// sqlStore implements TradeStore over database/sql. Queries are written with
// '?' placeholders and rebound for drivers that number them.
type sqlStore struct {
	db       *sql.DB
	numbered bool
}

func (s *sqlStore) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) rebind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) TradesForTrader(ctx context.Context, address string) ([]types.Trade, error) {
	query := s.rebind(`SELECT ` + tradeColumns + ` FROM trades WHERE trader_address = ? ORDER BY timestamp, trade_id`)
	trades, err := s.queryTrades(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for trader: %w", err)
	}
	types.SortByTime(trades)
	return trades, nil
}

func (s *sqlStore) TradesForMarket(ctx context.Context, marketID string) ([]types.Trade, error) {
	query := s.rebind(`SELECT ` + tradeColumns + ` FROM trades WHERE market_id = ? ORDER BY timestamp, trade_id`)
	trades, err := s.queryTrades(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for market: %w", err)
	}
	types.SortByTime(trades)
	return trades, nil
}

func (s *sqlStore) queryTrades(ctx context.Context, query string, args ...interface{}) ([]types.Trade, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []types.Trade
	for rows.Next() {
		var trade types.Trade
		var ts sql.NullString

		err := rows.Scan(
			&trade.ID,
			&trade.Trader,
			&trade.MarketID,
			&trade.MarketTitle,
			&trade.Category,
			&trade.Outcome,
			&trade.Shares,
			&trade.Price,
			&trade.Side,
			&ts,
		)
		if err != nil {
			return nil, err
		}

		if ts.Valid {
			parsed, err := ParseTimestamp(ts.String)
			if err != nil {
				log.Debug().Err(err).Str("trade", trade.ID).Msg("Unparseable trade timestamp")
			} else {
				trade.Timestamp = parsed
			}
		}

		trades = append(trades, trade)
	}

	return trades, rows.Err()
}

// MarketResolution returns the stored resolution. Unknown markets are unresolved.
func (s *sqlStore) MarketResolution(ctx context.Context, marketID string) (types.Resolution, error) {
	query := s.rebind(`SELECT resolved, winning_outcome FROM markets WHERE market_id = ?`)

	var resolved bool
	var winning sql.NullString
	err := s.db.QueryRowContext(ctx, query, marketID).Scan(&resolved, &winning)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.Resolution{}, nil
		}
		return types.Resolution{}, fmt.Errorf("failed to query market resolution: %w", err)
	}

	if !resolved || !winning.Valid || winning.String == "" {
		return types.Resolution{}, nil
	}
	return types.Resolution{Resolved: true, WinningOutcome: winning.String}, nil
}

func (s *sqlStore) TrackedTraders(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address FROM traders WHERE is_flagged = TRUE ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked traders: %w", err)
	}
	defer rows.Close()

	var traders []string
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, err
		}
		traders = append(traders, address)
	}
	return traders, rows.Err()
}

func (s *sqlStore) Markets(ctx context.Context) ([]types.Market, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, title, category, resolved, winning_outcome
		FROM markets
		ORDER BY market_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query markets: %w", err)
	}
	defer rows.Close()

	var markets []types.Market
	for rows.Next() {
		var m types.Market
		var winning sql.NullString
		if err := rows.Scan(&m.ID, &m.Title, &m.Category, &m.Resolved, &winning); err != nil {
			return nil, err
		}
		m.WinningOutcome = winning.String
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// SaveTrade inserts a trade; an existing trade ID is left untouched.
func (s *sqlStore) SaveTrade(ctx context.Context, trade types.Trade) error {
	query := s.rebind(`
		INSERT INTO trades (` + tradeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (trade_id) DO NOTHING
	`)

	var ts sql.NullString
	if trade.HasTimestamp() {
		ts = sql.NullString{String: trade.Timestamp.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		trade.ID, trade.Trader, trade.MarketID, trade.MarketTitle, trade.Category,
		trade.Outcome, trade.Shares, trade.Price, trade.Side, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade %s: %w", trade.ID, err)
	}
	return nil
}

// SaveMarket upserts market metadata and resolution state.
func (s *sqlStore) SaveMarket(ctx context.Context, market types.Market) error {
	query := s.rebind(`
		INSERT INTO markets (market_id, title, category, resolved, winning_outcome)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (market_id) DO UPDATE SET
			title = excluded.title,
			category = excluded.category,
			resolved = excluded.resolved,
			winning_outcome = excluded.winning_outcome
	`)

	var winning sql.NullString
	if market.WinningOutcome != "" {
		winning = sql.NullString{String: market.WinningOutcome, Valid: true}
	}

	if _, err := s.db.ExecContext(ctx, query, market.ID, market.Title, market.Category, market.Resolved, winning); err != nil {
		return fmt.Errorf("failed to save market %s: %w", market.ID, err)
	}
	return nil
}

// SetResolution records a winning outcome once; resolved markets are not overwritten.
func (s *sqlStore) SetResolution(ctx context.Context, marketID, winningOutcome string) error {
	query := s.rebind(`
		UPDATE markets SET resolved = TRUE, winning_outcome = ?
		WHERE market_id = ? AND resolved = FALSE
	`)
	if _, err := s.db.ExecContext(ctx, query, winningOutcome, marketID); err != nil {
		return fmt.Errorf("failed to set resolution for %s: %w", marketID, err)
	}
	return nil
}

// TrackTrader flags or unflags a trader as part of the analysis universe.
func (s *sqlStore) TrackTrader(ctx context.Context, address string, tracked bool) error {
	query := s.rebind(`
		INSERT INTO traders (address, is_flagged) VALUES (?, ?)
		ON CONFLICT (address) DO UPDATE SET is_flagged = excluded.is_flagged
	`)
	if _, err := s.db.ExecContext(ctx, query, address, tracked); err != nil {
		return fmt.Errorf("failed to track trader %s: %w", address, err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
