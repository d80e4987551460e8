package controller

import (
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tag1consulting/goose-go/metrics"
)

func TestHTTPServer_HealthAndMetricsRoutes(t *testing.T) {
	attack := newFakeAttack()
	prom := metrics.NewPrometheusMirror()
	srv := NewHTTPServer(attack, prom)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "ok")

	prom.Observe(metrics.RequestSample{Method: "GET", Name: "/"})
	req = httptest.NewRequest("GET", "/metrics", nil)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "goose_requests_total")
}

func TestHTTPServer_ReportHTMLRendersLiveSnapshot(t *testing.T) {
	attack := newFakeAttack()
	srv := NewHTTPServer(attack, nil)

	req := httptest.NewRequest("GET", "/report.html", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "Goose Attack Report")
}

func TestHTTPServer_MetricsRouteAbsentWhenNoProm(t *testing.T) {
	attack := newFakeAttack()
	srv := NewHTTPServer(attack, nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, 404, w.Code)
}

func TestHTTPServer_MountsWebSocketAtWS(t *testing.T) {
	attack := newFakeAttack()
	ws := NewWebSocketServer(attack, slog.Default())
	srv := NewHTTPServerWithWebSocket(attack, nil, ws)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Request: "help"}))
	var msg WebSocketMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Contains(t, msg.Response, "commands:")
	assert.True(t, msg.Success)
}
