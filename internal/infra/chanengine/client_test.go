package chanengine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/bsp-scan/internal/core/scan"
)

func newTestClient(url string) *Client {
	return NewClient(Config{BaseURL: url + "/", Timeout: 2 * time.Second},
		WithClientLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestClient_Analyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chan/calculate", r.URL.Path)

		var req calculateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, calculateRequest{Code: "sz.000001", KlineType: "week", Limit: 500}, req)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"code": "sz.000001",
			"name": "平安银行",
			"klines": [],
			"bs_points": [
				{"type": "[<BSP_TYPE.T2: '2'>, <BSP_TYPE.T3A: '3a'>]", "time": "2025/03/12 00:00", "value": 11.2, "klu_idx": 10, "is_buy": true},
				{"type": "1", "time": "2025/03/13 00:00", "value": 11.8, "klu_idx": 11, "is_buy": false}
			]
		}`)
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).Analyze(context.Background(), "sz.000001", scan.KlineWeek, 500)
	require.NoError(t, err)

	assert.Equal(t, "sz.000001", got.Code)
	assert.Equal(t, "平安银行", got.Name)
	require.Len(t, got.Points, 2)
	assert.Equal(t, scan.DecisionPoint{IsBuy: true, Tags: []string{"2", "3a"}, Time: "2025/03/12 00:00", Value: 11.2}, got.Points[0])
	assert.Equal(t, []string{"1"}, got.Points[1].Tags)
	assert.False(t, got.Points[1].IsBuy)
}

func TestClient_Analyze_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"detail": "no kline data"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Analyze(context.Background(), "sh.600000", scan.KlineDay, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "no kline data")
}

func TestClient_Analyze_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv.URL).Analyze(ctx, "sh.600000", scan.KlineDay, 100)
	assert.Error(t, err)
}

func TestClient_Analyze_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Analyze(context.Background(), "sh.600000", scan.KlineDay, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}
