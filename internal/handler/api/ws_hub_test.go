package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SignalFuse/internal/domain/models"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/cycles" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubBroadcastsFilteredBySymbol(t *testing.T) {
	hub := NewHub(nil)
	e := echo.New()
	e.GET("/ws/cycles", hub.ServeWS)
	srv := httptest.NewServer(e)
	defer srv.Close()

	all := dialHub(t, srv, "")
	msftOnly := dialHub(t, srv, "?symbol=MSFT")
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, &models.CycleResult{Symbol: "AAPL"}))
	require.NoError(t, hub.Publish(ctx, &models.CycleResult{Symbol: "MSFT"}))

	read := func(c *websocket.Conn) string {
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := c.ReadMessage()
		require.NoError(t, err)
		var r models.CycleResult
		require.NoError(t, json.Unmarshal(msg, &r))
		return r.Symbol
	}
	assert.Equal(t, "AAPL", read(all))
	assert.Equal(t, "MSFT", read(all))
	assert.Equal(t, "MSFT", read(msftOnly))

	require.NoError(t, hub.Close())
	assert.Equal(t, 0, hub.Clients())
	assert.ErrorIs(t, hub.Publish(ctx, &models.CycleResult{Symbol: "AAPL"}), errHubClosed)
}

func TestHubDropsClientOnDisconnect(t *testing.T) {
	hub := NewHub(nil)
	e := echo.New()
	e.GET("/ws/cycles", hub.ServeWS)
	srv := httptest.NewServer(e)
	defer srv.Close()

	conn := dialHub(t, srv, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
