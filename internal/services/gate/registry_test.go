package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SignalFuse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	states  map[string]models.ExecutionState
	saves   int
	failErr error
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]models.ExecutionState)}
}

func (m *memStore) Load(_ context.Context, symbol string) (models.ExecutionState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[symbol]
	return st, ok, nil
}

func (m *memStore) Save(_ context.Context, st models.ExecutionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.saves++
	m.states[st.Symbol] = st
	return nil
}

func newTestRegistry(t *testing.T, store *memStore, dailyCap int) *Registry {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)}
	r, err := NewRegistry(RegistryConfig{ConsensusThreshold: 60, DailyTradeCap: dailyCap, Clock: clock.Now}, store, nil, nil)
	require.NoError(t, err)
	return r
}

func TestRegistryPersistsAfterProcess(t *testing.T) {
	store := newMemStore()
	r := newTestRegistry(t, store, 2)
	ctx := context.Background()

	out, err := r.Process(ctx, "AAPL", strongBuy())
	require.NoError(t, err)
	require.True(t, out.Executed())
	assert.Equal(t, 1, store.states["AAPL"].TradesToday)

	// A fresh registry over the same store resumes the count.
	r2 := newTestRegistry(t, store, 2)
	_, err = r2.Process(ctx, "AAPL", strongBuy())
	require.NoError(t, err)
	out, err = r2.Process(ctx, "AAPL", strongBuy())
	require.NoError(t, err)
	assert.Equal(t, models.SuppressedDailyCap, out.Suppressed.Code)
}

func TestRegistryInstrumentsAreIsolated(t *testing.T) {
	r := newTestRegistry(t, newMemStore(), 1)
	ctx := context.Background()

	_, err := r.EmergencyStop(ctx, "AAPL", "halt")
	require.NoError(t, err)

	out, err := r.Process(ctx, "MSFT", strongBuy())
	require.NoError(t, err)
	assert.True(t, out.Executed())

	out, err = r.Process(ctx, "AAPL", strongBuy())
	require.NoError(t, err)
	assert.Equal(t, models.SuppressedEmergencyStop, out.Suppressed.Code)
	assert.Equal(t, []string{"AAPL", "MSFT"}, r.Symbols())
}

func TestRegistryStopSurvivesRestart(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	r := newTestRegistry(t, store, 5)
	_, err := r.EmergencyStop(ctx, "AAPL", "manual")
	require.NoError(t, err)

	r2 := newTestRegistry(t, store, 5)
	st, err := r2.State(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, st.EmergencyStop)
	assert.Equal(t, "manual", st.StopReason)

	st, err = r2.Reset(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, st.EmergencyStop)
	assert.False(t, store.states["AAPL"].EmergencyStop)
}

func TestRegistryAppliesConfiguredLimits(t *testing.T) {
	store := newMemStore()
	store.states["AAPL"] = models.ExecutionState{Symbol: "AAPL", DailyTradeCap: 50, ConsensusThreshold: 10}

	r := newTestRegistry(t, store, 3)
	st, err := r.State(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 3, st.DailyTradeCap)
	assert.Equal(t, 60.0, st.ConsensusThreshold)
}

func TestRegistrySaveFailureIsReported(t *testing.T) {
	store := newMemStore()
	store.failErr = errors.New("redis down")
	r := newTestRegistry(t, store, 5)

	out, err := r.Process(context.Background(), "AAPL", strongBuy())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.failErr)
	assert.True(t, out.Executed())
}

func TestRegistryRejectsEmptySymbol(t *testing.T) {
	r := newTestRegistry(t, newMemStore(), 5)
	_, err := r.State(context.Background(), "")
	var ipe *models.InvalidParameterError
	assert.ErrorAs(t, err, &ipe)
}

func TestRegistryConcurrentProcessRespectsCap(t *testing.T) {
	r := newTestRegistry(t, newMemStore(), 5)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	executed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Process(ctx, "AAPL", strongBuy())
			if err == nil && out.Executed() {
				mu.Lock()
				executed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, executed)
	st, err := r.State(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 5, st.TradesToday)
	assert.Equal(t, 45, st.SuppressedTotal)
}
