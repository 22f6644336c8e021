package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
	"SignalFuse/pkg/logger"
)

// CHCycleStorage appends every cycle result to a ClickHouse history table.
type CHCycleStorage struct {
	db    *sql.DB
	table string
	l     *logger.Logger
}

func NewCHCycleStorage(db *sql.DB, table string, l *logger.Logger) *CHCycleStorage {
	return &CHCycleStorage{db: db, table: table, l: logger.OrNop(l).With(logger.Component("ch_cycles"))}
}

func (s *CHCycleStorage) Name() string { return "clickhouse" }

func (s *CHCycleStorage) Publish(ctx context.Context, r *models.CycleResult) error {
	signals, err := json.Marshal(r.Signals)
	if err != nil {
		return fmt.Errorf("encode signals: %w", err)
	}
	errs := []byte("{}")
	if len(r.Errors) > 0 {
		if errs, err = json.Marshal(r.Errors); err != nil {
			return fmt.Errorf("encode errors: %w", err)
		}
	}

	var (
		executed   uint8
		decisionID string
		suppressed string
	)
	if o := r.Outcome; o != nil {
		if o.Decision != nil {
			executed = 1
			decisionID = o.Decision.ID
		}
		if o.Suppressed != nil {
			suppressed = string(o.Suppressed.Code)
		}
	}

	c := r.Consensus
	q := fmt.Sprintf(`INSERT INTO %s (ts, bar_time, symbol, direction, confidence, agreement, weighted_score, risk,
        active_count, executed, decision_id, suppressed, signals, errors, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	start := time.Now()
	_, err = s.db.ExecContext(ctx, q,
		r.Timestamp.UTC(),
		r.BarTime.UTC(),
		r.Symbol,
		string(c.Direction),
		c.Confidence,
		c.Agreement,
		c.WeightedScore,
		string(c.RiskAssessment),
		uint8(c.ActiveCount),
		executed,
		decisionID,
		suppressed,
		string(signals),
		string(errs),
		r.DurationMs,
	)
	if err != nil {
		s.l.Error("clickhouse insert cycle error", logger.Symbol(r.Symbol), logger.Error(err))
		return fmt.Errorf("insert cycle %s: %w", r.Symbol, err)
	}
	s.l.Debug("clickhouse insert cycle ok", logger.Symbol(r.Symbol), logger.Duration("duration_ms", time.Since(start)))
	return nil
}

// Close is a no-op; the connection is owned by pkg/clickhouse.
func (s *CHCycleStorage) Close() error { return nil }

var _ domrepo.CycleSink = (*CHCycleStorage)(nil)
