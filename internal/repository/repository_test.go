package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
	"SignalFuse/internal/services/gate"
	"SignalFuse/pkg/cache"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

func TestCHBarStoreLatestNReturnsAscending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewCHBarStore(db, "bars", nil)

	rows := sqlmock.NewRows([]string{"ts", "open", "high", "low", "close", "volume"}).
		AddRow(t0.Add(2*time.Minute), 12.0, 13.0, 11.0, 12.5, 300.0).
		AddRow(t0.Add(time.Minute), 11.0, 12.0, 10.0, 11.5, 200.0).
		AddRow(t0, 10.0, 11.0, 9.0, 10.5, 100.0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM bars FINAL")).
		WithArgs("AAPL", "1m", 3).
		WillReturnRows(rows)

	bars, err := s.GetLatestNBars(context.Background(), "AAPL", 3, domrepo.TF1m)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, t0, bars[0].Timestamp)
	assert.Equal(t, 12.5, bars[2].Close)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHBarStoreGetBarsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewCHBarStore(db, "bars", nil)

	mock.ExpectQuery("SELECT ts").WillReturnError(errors.New("timeout"))
	_, err = s.GetBars(context.Background(), "AAPL", t0, t0.Add(time.Hour), domrepo.TF1m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get_bars")
}

func TestCHBarStoreStoreBar(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewCHBarStore(db, "bars", nil)

	b := models.Bar{Timestamp: t0, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bars")).
		WithArgs(sqlmock.AnyArg(), "AAPL", "1m", 10.0, 11.0, 9.0, 10.5, 100.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.StoreBar(context.Background(), "AAPL", domrepo.TF1m, b))

	mock.ExpectExec("INSERT INTO bars").WillReturnError(errors.New("down"))
	assert.Error(t, s.StoreBar(context.Background(), "AAPL", domrepo.TF1m, b))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHBarStoreAlignsToTimeframe(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewCHBarStore(db, "bars", nil)

	b := models.Bar{Timestamp: t0.Add(7*time.Minute + 12*time.Second), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bars")).
		WithArgs(t0.Add(5*time.Minute), "AAPL", "5m", 10.0, 11.0, 9.0, 10.5, 100.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.StoreBar(context.Background(), "AAPL", domrepo.TF5m, b))

	mock.ExpectQuery(regexp.QuoteMeta("FROM bars FINAL")).
		WithArgs("AAPL", "1h", t0.Add(-30*time.Minute), t0.Add(90*time.Minute)).
		WillReturnRows(sqlmock.NewRows([]string{"ts", "open", "high", "low", "close", "volume"}))
	_, err = s.GetBars(context.Background(), "AAPL", t0.Add(-10*time.Minute), t0.Add(100*time.Minute), domrepo.TF1h)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, domrepo.TF1m, domrepo.NormalizeTimeframe("1s"))
	assert.Equal(t, time.Minute, domrepo.Timeframe("2m").Duration())
	assert.Equal(t, 24*time.Hour, domrepo.TF1d.Duration())
}

func TestCHCycleStoragePublish(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewCHCycleStorage(db, "cycles", nil)

	r := &models.CycleResult{
		Symbol:    "AAPL",
		Timestamp: t0,
		BarTime:   t0,
		Signals:   []models.Signal{{Detector: "darvas", Direction: models.Buy, Confidence: 75}},
		Consensus: models.Consensus{Direction: models.Buy, Confidence: 80, Agreement: 1, ActiveCount: 1, RiskAssessment: models.RiskLow},
		Outcome: &models.GateOutcome{
			Decision: &models.ExecutionDecision{ID: "dec-1", Symbol: "AAPL", Direction: models.Buy},
		},
		DurationMs: 3,
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cycles")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "AAPL", "BUY", 80.0, 1.0, 0.0, "LOW",
			uint8(1), uint8(1), "dec-1", "", sqlmock.AnyArg(), "{}", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Publish(context.Background(), r))
	assert.Equal(t, "clickhouse", s.Name())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaStatements(t *testing.T) {
	stmts := Schema("signalfuse", "bars", "cycles")
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS signalfuse", stmts[0])
	assert.Contains(t, stmts[1], "signalfuse.bars")
	assert.Contains(t, stmts[2], "signalfuse.cycles")
}

type fakeProducer struct {
	calls  int
	err    error
	keys   []string
	topic  string
	closed bool
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key []byte, _ interface{}) error {
	f.calls++
	f.topic = topic
	f.keys = append(f.keys, string(key))
	return f.err
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

func TestKafkaCyclePublisherKeysBySymbol(t *testing.T) {
	p := &fakeProducer{}
	pub := NewKafkaCyclePublisher(p, "signalfuse.cycles", BreakerSettings{}, nil)

	require.NoError(t, pub.Publish(context.Background(), &models.CycleResult{Symbol: "MSFT"}))
	assert.Equal(t, "signalfuse.cycles", p.topic)
	assert.Equal(t, []string{"MSFT"}, p.keys)
	assert.Equal(t, "kafka", pub.Name())

	require.NoError(t, pub.Close())
	assert.True(t, p.closed)
}

func TestKafkaCyclePublisherOpensAfterConsecutiveFailures(t *testing.T) {
	p := &fakeProducer{err: errors.New("broker down")}
	pub := NewKafkaCyclePublisher(p, "cycles", BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute}, nil)
	ctx := context.Background()
	r := &models.CycleResult{Symbol: "AAPL"}

	assert.EqualError(t, pub.Publish(ctx, r), "broker down")
	assert.EqualError(t, pub.Publish(ctx, r), "broker down")
	assert.Equal(t, gobreaker.StateOpen, pub.State())

	err := pub.Publish(ctx, r)
	assert.ErrorIs(t, err, ErrPublisherOpen)
	assert.Equal(t, 2, p.calls)
}

func TestCacheStateStoreRoundTrip(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	s := NewCacheStateStore(mc, time.Hour)
	ctx := context.Background()

	_, ok, err := s.Load(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, ok)

	st := models.ExecutionState{
		Symbol:        "AAPL",
		Phase:         models.PhaseExecuted,
		TradesToday:   2,
		LastTradeDate: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		DailyTradeCap: 5,
	}
	require.NoError(t, s.Save(ctx, st))

	got, ok, err := s.Load(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.TradesToday)
	assert.Equal(t, models.PhaseExecuted, got.Phase)
	assert.True(t, st.LastTradeDate.Equal(got.LastTradeDate))

	assert.Error(t, s.Save(ctx, models.ExecutionState{}))
}

func TestCacheStateStoreRedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewCacheStateStore(cache.NewRedisCacheFromClient(db, "sf"), time.Hour)

	mock.ExpectGet("sf:gate:state:AAPL").SetErr(errors.New("connection refused"))
	_, ok, err := s.Load(context.Background(), "AAPL")
	require.Error(t, err)
	assert.False(t, ok)

	mock.ExpectGet("sf:gate:state:MSFT").RedisNil()
	_, ok, err = s.Load(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakeQueue struct {
	types    []string
	payloads []any
	err      error
}

func (f *fakeQueue) Enqueue(_ context.Context, msgType string, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.types = append(f.types, msgType)
	f.payloads = append(f.payloads, payload)
	return nil
}

func TestDecisionOutboxOnlyForwardsDecisions(t *testing.T) {
	q := &fakeQueue{}
	o := NewDecisionOutbox(q)
	ctx := context.Background()

	require.NoError(t, o.Publish(ctx, &models.CycleResult{Symbol: "AAPL"}))
	require.NoError(t, o.Publish(ctx, &models.CycleResult{Symbol: "AAPL", Outcome: &models.GateOutcome{
		Suppressed: &models.SuppressedReason{Code: models.SuppressedDailyCap},
	}}))
	assert.Empty(t, q.types)

	d := &models.ExecutionDecision{ID: "d-1", Symbol: "AAPL", Direction: models.Buy, Confidence: 72}
	require.NoError(t, o.Publish(ctx, &models.CycleResult{Symbol: "AAPL", Outcome: &models.GateOutcome{Decision: d}}))
	assert.Equal(t, []string{DecisionMessageType}, q.types)
	assert.Same(t, d, q.payloads[0])

	q.err = errors.New("READONLY")
	assert.ErrorContains(t, o.Publish(ctx, &models.CycleResult{Outcome: &models.GateOutcome{Decision: d}}), "d-1")
	assert.Equal(t, "redis_outbox", o.Name())
}

func TestCacheStateStoreKeepsStoppedGateAcrossRestart(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	store := NewCacheStateStore(mc, 20*time.Millisecond)
	ctx := context.Background()
	cfg := gate.RegistryConfig{ConsensusThreshold: 60, DailyTradeCap: 5}

	r1, err := gate.NewRegistry(cfg, store, nil, nil)
	require.NoError(t, err)
	_, err = r1.EmergencyStop(ctx, "AAPL", "venue outage")
	require.NoError(t, err)
	_, err = r1.Reset(ctx, "MSFT")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	r2, err := gate.NewRegistry(cfg, store, nil, nil)
	require.NoError(t, err)
	st, err := r2.State(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, st.EmergencyStop)
	assert.Equal(t, "venue outage", st.StopReason)

	_, ok, err := store.Load(ctx, "MSFT")
	require.NoError(t, err)
	assert.False(t, ok, "idle state still expires")

	_, err = r2.Reset(ctx, "AAPL")
	require.NoError(t, err)
	st, err = r2.State(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, st.EmergencyStop)
}
