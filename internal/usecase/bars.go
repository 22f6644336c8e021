package usecase

import (
	"context"
	"errors"
	"fmt"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
)

const (
	defaultBarLimit = 300
	maxBarLimit     = 5000
)

// BarsUseCase loads historical series from the bar store.
type BarsUseCase struct {
	store domrepo.BarStore
}

func NewBarsUseCase(store domrepo.BarStore) *BarsUseCase {
	return &BarsUseCase{store: store}
}

// LatestSeries returns the newest n bars of symbol as a series, oldest first.
func (uc *BarsUseCase) LatestSeries(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (models.Series, error) {
	if symbol == "" {
		return models.Series{}, &models.InvalidParameterError{Param: "symbol", Value: symbol, Reason: "required"}
	}
	if uc.store == nil {
		return models.Series{}, fmt.Errorf("bar store not configured")
	}
	if n <= 0 {
		n = defaultBarLimit
	}
	if n > maxBarLimit {
		n = maxBarLimit
	}
	if !tf.Valid() {
		tf = domrepo.TF1m
	}

	bars, err := uc.store.GetLatestNBars(ctx, symbol, n, tf)
	if err != nil {
		return models.Series{}, fmt.Errorf("get bars: %w", err)
	}
	if len(bars) == 0 {
		return models.Series{}, fmt.Errorf("no bars for %s (%s): %w", symbol, tf, models.ErrInsufficientData)
	}
	return models.NewSeries(symbol, bars)
}

// Warmup seeds the series book with the newest window of bars for each symbol.
// Symbols without history are skipped.
func (uc *BarsUseCase) Warmup(ctx context.Context, book *SeriesBook, symbols []string, window int, tf domrepo.Timeframe) error {
	for _, sym := range symbols {
		s, err := uc.LatestSeries(ctx, sym, window, tf)
		if err != nil {
			if errors.Is(err, models.ErrInsufficientData) {
				continue
			}
			return fmt.Errorf("warmup %s: %w", sym, err)
		}
		if err := book.Seed(sym, s.Bars()); err != nil {
			return fmt.Errorf("warmup %s: %w", sym, err)
		}
	}
	return nil
}
