package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct {
	Symbol string  `json:"symbol"`
	Qty    float64 `json:"qty"`
}

func TestEnqueueWrapsPayload(t *testing.T) {
	db, mock := redismock.NewClientMock()
	now := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	q := NewRedisQueue(db, WithKeyPrefix("sf:decisions"), withClock(func() time.Time { return now }))

	var pushed []interface{}
	mock.CustomMatch(func(_, actual []interface{}) error {
		pushed = actual
		return nil
	}).ExpectLPush("sf:decisions:messages", "").SetVal(1)

	require.NoError(t, q.Enqueue(context.Background(), "order", order{Symbol: "AAPL", Qty: 2}))
	require.Len(t, pushed, 3)
	assert.Equal(t, "sf:decisions:messages", pushed[1])

	var raw []byte
	switch v := pushed[2].(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	}
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "order", msg.Type)
	assert.Equal(t, now, msg.Timestamp)
	assert.NotEmpty(t, msg.ID)

	o, err := Decode[order](msg)
	require.NoError(t, err)
	assert.Equal(t, order{Symbol: "AAPL", Qty: 2}, *o)
}

func TestEnqueueRedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRedisQueue(db)
	mock.CustomMatch(func(_, _ []interface{}) error { return nil }).
		ExpectLPush("signalfuse:queue:messages", "").SetErr(errors.New("READONLY"))

	err := q.Enqueue(context.Background(), "order", order{})
	assert.ErrorContains(t, err, "READONLY")
}

func TestDequeue(t *testing.T) {
	db, mock := redismock.NewClientMock()
	q := NewRedisQueue(db, WithKeyPrefix("q"))

	body := `{"id":"1","type":"order","payload":{"symbol":"MSFT","qty":1},"attempts":0,"timestamp":"2024-03-04T15:00:00Z"}`
	mock.ExpectBRPop(time.Second, "q:messages").SetVal([]string{"q:messages", body})
	mock.ExpectBRPop(time.Second, "q:messages").RedisNil()
	mock.ExpectBRPop(time.Second, "q:messages").SetVal([]string{"q:messages", "{"})

	msg, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1", msg.ID)
	o, err := Decode[order](msg)
	require.NoError(t, err)
	assert.Equal(t, "MSFT", o.Symbol)

	_, err = q.Dequeue(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = q.Dequeue(context.Background(), time.Second)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecodeRejectsEmptyPayload(t *testing.T) {
	_, err := Decode[order](Message{ID: "x"})
	assert.Error(t, err)
	_, err = Decode[order](Message{ID: "x", Payload: json.RawMessage(`"str"`)})
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	q := NewRedisQueue(nil, WithKeyPrefix("p"))
	assert.Equal(t, "p:messages", q.QueueKey())
	assert.Equal(t, "p:dlq", q.DeadLetterKey())
}
