package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
	"SignalFuse/pkg/logger"
	"SignalFuse/pkg/util"
)

// CHBarStore reads and writes bars in one ClickHouse table keyed by (symbol, tf, ts).
// Timestamps are stored at the start of their timeframe bucket.
type CHBarStore struct {
	db    *sql.DB
	table string
	l     *logger.Logger
}

func NewCHBarStore(db *sql.DB, table string, l *logger.Logger) *CHBarStore {
	return &CHBarStore{db: db, table: table, l: logger.OrNop(l).With(logger.Component("ch_bars"))}
}

func (s *CHBarStore) StoreBar(ctx context.Context, symbol string, tf domrepo.Timeframe, b models.Bar) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, symbol, tf, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	ts := b.Timestamp.UTC().Truncate(tf.Duration())
	_, err := s.db.ExecContext(ctx, q, ts, symbol, string(tf), b.Open, b.High, b.Low, b.Close, b.Volume)
	if err != nil {
		return fmt.Errorf("store bar %s: %w", symbol, err)
	}
	return nil
}

func (s *CHBarStore) GetBars(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Bar, error) {
	const qtpl = `
        SELECT ts, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND tf = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	from, to = util.AlignFromTo(from.UTC(), to.UTC(), string(tf))
	out, err := s.query(ctx, "get_bars", fmt.Sprintf(qtpl, s.table), symbol, string(tf), from, to)
	if err != nil {
		s.l.Error("clickhouse get_bars error",
			logger.Symbol(symbol),
			logger.String("tf", string(tf)),
			logger.Error(err),
		)
		return nil, err
	}
	return out, nil
}

// GetLatestNBars returns up to n bars, oldest first.
func (s *CHBarStore) GetLatestNBars(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Bar, error) {
	start := time.Now()
	const qtpl = `
        SELECT ts, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND tf = ?
        ORDER BY ts DESC
        LIMIT ?
    `
	out, err := s.query(ctx, "latest_bars", fmt.Sprintf(qtpl, s.table), symbol, string(tf), n)
	if err != nil {
		s.l.Error("clickhouse latest_bars error",
			logger.Symbol(symbol),
			logger.String("tf", string(tf)),
			logger.Int("limit", n),
			logger.Error(err),
		)
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("clickhouse latest_bars ok",
		logger.Symbol(symbol),
		logger.String("tf", string(tf)),
		logger.Int("rows", len(out)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHBarStore) query(ctx context.Context, op, q string, args ...any) ([]models.Bar, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		b.Timestamp = b.Timestamp.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return out, nil
}

func (s *CHBarStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var (
	_ domrepo.BarStore  = (*CHBarStore)(nil)
	_ domrepo.BarWriter = (*CHBarStore)(nil)
)
