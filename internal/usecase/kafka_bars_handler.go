package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
	pkgkafka "SignalFuse/pkg/kafka"
	"SignalFuse/pkg/logger"
	"SignalFuse/pkg/util"
)

// BarIngestor accepts one decoded bar.
type BarIngestor interface {
	Ingest(ctx context.Context, symbol string, bar models.Bar) error
}

type lastPriceRecorder interface {
	RecordLastPrice(symbol string, price float64)
}

// KafkaBarsHandler decodes bar messages from Kafka and hands them to the ingestor.
type KafkaBarsHandler struct {
	topic   string
	ingest  BarIngestor
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewKafkaBarsHandler(topic string, ingest BarIngestor, metrics domrepo.Metrics, log *logger.Logger) *KafkaBarsHandler {
	return &KafkaBarsHandler{
		topic:   topic,
		ingest:  ingest,
		metrics: metrics,
		log:     logger.OrNop(log).With(logger.Component("kafka_bars")),
	}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// BarMessage is the wire format on the bars topic. T is unix seconds or milliseconds.
type BarMessage struct {
	Symbol string  `json:"symbol"`
	T      int64   `json:"t"`
	O      float64 `json:"o"`
	H      float64 `json:"h"`
	L      float64 `json:"l"`
	C      float64 `json:"c"`
	V      float64 `json:"v"`
}

func (m BarMessage) Bar() models.Bar {
	return models.Bar{
		Timestamp: util.UnixAuto(m.T),
		Open:      m.O,
		High:      m.H,
		Low:       m.L,
		Close:     m.C,
		Volume:    m.V,
	}
}

func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var m BarMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.recordError("consumer_unmarshal")
		return fmt.Errorf("decode bar: %w", err)
	}
	symbol := strings.ToUpper(strings.TrimSpace(m.Symbol))
	if symbol == "" || m.T <= 0 {
		h.recordError("consumer_invalid")
		return fmt.Errorf("decode bar: symbol and t are required")
	}
	bar := m.Bar()
	if h.metrics != nil {
		h.metrics.RecordLatency("ingest_e2e", time.Since(bar.Timestamp).Seconds())
		if lp, ok := h.metrics.(lastPriceRecorder); ok {
			lp.RecordLastPrice(symbol, bar.Close)
		}
	}

	start := time.Now()
	err := h.ingest.Ingest(ctx, symbol, bar)
	if h.metrics != nil {
		h.metrics.RecordLatency("ingest", time.Since(start).Seconds())
	}
	if err != nil {
		h.recordError("consumer_ingest")
		h.log.Error("ingest bar", logger.Symbol(symbol), logger.String("trace_id", pkgkafka.TraceID(ctx)), logger.Error(err))
		return err
	}
	return nil
}

func (h *KafkaBarsHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
