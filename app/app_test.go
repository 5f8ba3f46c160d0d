package app

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/searchktools/canteen/config"
	"github.com/searchktools/canteen/core"
	"github.com/searchktools/canteen/core/http"
	"github.com/searchktools/canteen/core/observability"
	"github.com/searchktools/canteen/logging"
)

func TestNewRegistersStatsRoute(t *testing.T) {
	cfg := config.Default()
	cfg.Stats.Enabled = true

	a, err := New(cfg)
	require.NoError(t, err)
	require.Equal(t, 1, a.Engine().Routes().Len())
	assert.Equal(t, "/_canteen/stats", a.Engine().Routes().Routes()[0].Path)
	assert.NotNil(t, a.Engine().Monitor())

	cfg.Stats.Enabled = false
	a, err = New(cfg)
	require.NoError(t, err)
	assert.Zero(t, a.Engine().Routes().Len())
	assert.Nil(t, a.Engine().Monitor())
}

func TestNewRejectsBadLogSettings(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Format = "xml"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestStatsHandlerNegotiates(t *testing.T) {
	h := StatsHandler(core.NewEngine())

	resp := h.Handle(&http.Request{Method: "GET", Path: "/_canteen/stats"})
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "application/json", resp.Header("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	assert.Equal(t, float64(0), body["accepted"])
	assert.Contains(t, body, "buffers")

	resp = h.Handle(&http.Request{
		Method:  "GET",
		Path:    "/_canteen/stats",
		Headers: []http.Header{{Key: "Accept", Value: "application/x-protobuf"}},
	})
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "application/x-protobuf", resp.Header("Content-Type"))

	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(resp.Body, &st))
	assert.Contains(t, st.GetFields(), "requests")
}

func TestStatsHandlerIncludesRoutes(t *testing.T) {
	m := observability.NewMonitor()
	m.Record("GET /x", time.Millisecond, false)
	h := StatsHandler(core.NewEngine(core.WithMonitor(m)))

	resp := h.Handle(&http.Request{Method: "GET", Path: "/_canteen/stats"})
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	routes, ok := body["routes"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, routes, "GET /x")
}

func TestRunServesUntilCancelled(t *testing.T) {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.PollInterval = 10 * time.Millisecond

	e := core.NewEngine(EngineOptions(cfg, logging.Nop())...)
	require.NoError(t, e.GET("/ping", func(*http.Request) *http.Response {
		return http.Text(http.StatusOK, "pong")
	}))
	a, err := NewWithEngine(cfg, e, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	var addr net.Addr
	require.Eventually(t, func() bool {
		addr = e.Addr()
		return addr != nil
	}, 2*time.Second, 5*time.Millisecond)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	_, err = io.WriteString(conn, "GET /ping HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	conn.Close()
	assert.Contains(t, string(data), "pong")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
