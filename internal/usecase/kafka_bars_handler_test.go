package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"SignalFuse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureIngestor struct {
	symbol string
	bar    models.Bar
	err    error
}

func (c *captureIngestor) Ingest(_ context.Context, symbol string, bar models.Bar) error {
	c.symbol, c.bar = symbol, bar
	return c.err
}

func TestKafkaBarsHandlerDecodes(t *testing.T) {
	ing := &captureIngestor{}
	m := newFakeMetrics()
	h := NewKafkaBarsHandler("bars", ing, m, nil)
	assert.Equal(t, "bars", h.Topic())

	err := h.Handle(context.Background(), []byte(`{"symbol":" aapl ","t":1709560800000,"o":1,"h":2,"l":0.5,"c":1.5,"v":100}`))
	require.NoError(t, err)
	assert.Equal(t, "AAPL", ing.symbol)
	assert.Equal(t, time.Unix(1709560800, 0).UTC(), ing.bar.Timestamp.UTC())
	assert.Equal(t, 1.5, ing.bar.Close)
	assert.Equal(t, 1.5, m.lastPrices["AAPL"])

	// unix seconds decode to the same instant
	require.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"AAPL","t":1709560800,"o":1,"h":2,"l":0.5,"c":1.5,"v":100}`)))
	assert.Equal(t, time.Unix(1709560800, 0).UTC(), ing.bar.Timestamp.UTC())
}

func TestKafkaBarsHandlerErrors(t *testing.T) {
	m := newFakeMetrics()
	h := NewKafkaBarsHandler("bars", &captureIngestor{err: errors.New("rejected")}, m, nil)
	ctx := context.Background()

	assert.Error(t, h.Handle(ctx, []byte(`{not json`)))
	assert.Error(t, h.Handle(ctx, []byte(`{"t":1}`)))
	assert.Error(t, h.Handle(ctx, []byte(`{"symbol":"AAPL","t":1709560800,"o":1,"h":2,"l":0.5,"c":1.5}`)))

	assert.Equal(t, 1, m.errors["consumer_unmarshal"])
	assert.Equal(t, 1, m.errors["consumer_invalid"])
	assert.Equal(t, 1, m.errors["consumer_ingest"])
}
