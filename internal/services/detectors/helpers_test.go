package detectors

import (
	"testing"
	"time"

	"SignalFuse/internal/domain/models"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

func bar(i int, o, h, l, c, v float64) models.Bar {
	return models.Bar{Timestamp: t0.Add(time.Duration(i) * time.Minute), Open: o, High: h, Low: l, Close: c, Volume: v}
}

// closesSeries builds bars whose high and low sit spread away from the close.
func closesSeries(t *testing.T, closes []float64, spread float64) models.Series {
	t.Helper()
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = bar(i, c, c+spread, c-spread, c, 1000)
	}
	return mustSeries(t, bars)
}

func mustSeries(t *testing.T, bars []models.Bar) models.Series {
	t.Helper()
	s, err := models.NewSeries("TEST", bars)
	require.NoError(t, err)
	return s
}

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}
