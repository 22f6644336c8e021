package usecase

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"SignalFuse/internal/domain/models"
)

var (
	// ErrDuplicateBar marks a bar whose timestamp equals the latest stored bar.
	ErrDuplicateBar = errors.New("duplicate bar")
	// ErrOutOfOrderBar marks a bar older than the latest stored bar.
	ErrOutOfOrderBar = errors.New("out of order bar")
)

// SeriesBook keeps a rolling window of the most recent bars per symbol.
type SeriesBook struct {
	mu     sync.RWMutex
	window int
	bars   map[string][]models.Bar
}

func NewSeriesBook(window int) *SeriesBook {
	if window <= 0 {
		window = 300
	}
	return &SeriesBook{window: window, bars: make(map[string][]models.Bar)}
}

// Append adds bar to symbol's window. Bars must arrive in strictly increasing time.
func (b *SeriesBook) Append(symbol string, bar models.Bar) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.bars[symbol]
	if n := len(cur); n > 0 {
		last := cur[n-1].Timestamp
		switch {
		case bar.Timestamp.Equal(last):
			return fmt.Errorf("%s at %s: %w", symbol, bar.Timestamp, ErrDuplicateBar)
		case bar.Timestamp.Before(last):
			return fmt.Errorf("%s at %s before %s: %w", symbol, bar.Timestamp, last, ErrOutOfOrderBar)
		}
	}
	cur = append(cur, bar)
	if len(cur) > b.window {
		// copy so the backing array does not grow without bound
		cur = append([]models.Bar(nil), cur[len(cur)-b.window:]...)
	}
	b.bars[symbol] = cur
	return nil
}

// Seed replaces symbol's window with the newest bars of a history load.
func (b *SeriesBook) Seed(symbol string, bars []models.Bar) error {
	sorted := append([]models.Bar(nil), bars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })
	if len(sorted) > b.window {
		sorted = sorted[len(sorted)-b.window:]
	}
	if _, err := models.NewSeries(symbol, sorted); err != nil {
		return err
	}
	b.mu.Lock()
	b.bars[symbol] = sorted
	b.mu.Unlock()
	return nil
}

// Snapshot returns an immutable copy of symbol's window.
func (b *SeriesBook) Snapshot(symbol string) (models.Series, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cur, ok := b.bars[symbol]
	if !ok || len(cur) == 0 {
		return models.Series{}, false
	}
	s, err := models.NewSeries(symbol, cur)
	if err != nil {
		return models.Series{}, false
	}
	return s, true
}

func (b *SeriesBook) Len(symbol string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bars[symbol])
}

func (b *SeriesBook) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.bars))
	for s := range b.bars {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
