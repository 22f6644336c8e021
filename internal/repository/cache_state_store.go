package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
	"SignalFuse/pkg/cache"
)

const stateKeyPrefix = "gate:state"

// CacheStateStore keeps one ExecutionState per symbol in a cache.Service.
// With Redis behind it the gate state survives restarts; the memory cache suits tests and offline runs.
// ttl only applies to gates that are not emergency stopped; a stopped gate is kept until reset.
type CacheStateStore struct {
	cache cache.Service
	ttl   time.Duration
}

func NewCacheStateStore(c cache.Service, ttl time.Duration) *CacheStateStore {
	return &CacheStateStore{cache: c, ttl: ttl}
}

func (s *CacheStateStore) Load(ctx context.Context, symbol string) (models.ExecutionState, bool, error) {
	var st models.ExecutionState
	err := s.cache.Get(ctx, cache.GenerateKey(stateKeyPrefix, symbol), &st)
	if errors.Is(err, cache.ErrCacheMiss) {
		return models.ExecutionState{}, false, nil
	}
	if err != nil {
		return models.ExecutionState{}, false, fmt.Errorf("load state %s: %w", symbol, err)
	}
	return st, true, nil
}

func (s *CacheStateStore) Save(ctx context.Context, st models.ExecutionState) error {
	if st.Symbol == "" {
		return errors.New("save state: empty symbol")
	}
	ttl := s.ttl
	if st.EmergencyStop {
		ttl = 0
	}
	if err := s.cache.Set(ctx, cache.GenerateKey(stateKeyPrefix, st.Symbol), st, ttl); err != nil {
		return fmt.Errorf("save state %s: %w", st.Symbol, err)
	}
	return nil
}

var _ domrepo.StateStore = (*CacheStateStore)(nil)
