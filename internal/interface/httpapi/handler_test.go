package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/bsp-scan/internal/core/scan"
	"github.com/jinford/bsp-scan/internal/infra/memory"
)

type stubEngine struct {
	AnalyzeFunc func(ctx context.Context, code string) (*scan.Analysis, error)
}

func (s *stubEngine) Analyze(ctx context.Context, code string, kline scan.KlineType, limit int) (*scan.Analysis, error) {
	return s.AnalyzeFunc(ctx, code)
}

func buyPointEngine() *stubEngine {
	return &stubEngine{AnalyzeFunc: func(ctx context.Context, code string) (*scan.Analysis, error) {
		return &scan.Analysis{Code: code, Name: "名称" + code, Points: []scan.DecisionPoint{{
			IsBuy: true,
			Tags:  []string{"2"},
			Time:  time.Now().Format(scan.PointTimeLayout),
			Value: 12.3,
		}}}, nil
	}}
}

func newApp(t *testing.T, engine scan.Engine) (http.Handler, *memory.Store) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New(
		scan.Stock{Code: "sh.600000", Name: "浦发银行"},
		scan.Stock{Code: "sz.300750", Name: "宁德时代"},
	)
	svc := scan.NewService(engine, store, store,
		scan.WithServiceLogger(logger),
		scan.WithProgressInterval(20*time.Millisecond),
		scan.WithSchedulerConfig(scan.SchedulerConfig{
			MaxConcurrency:    2,
			UnitTimeout:       time.Second,
			FinalFlushTimeout: time.Second,
		}),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	return NewRouter(NewScanHandler(svc, logger)), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func startScan(t *testing.T, app http.Handler, body any) ScanTaskResponse {
	t.Helper()
	rr := doJSON(t, app, http.MethodPost, "/api/scan/start", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[ScanTaskResponse](t, rr)
}

// waitStatus は進捗 API とストアの両方で want になるまで待つ
func waitStatus(t *testing.T, app http.Handler, store *memory.Store, taskID string, want string) {
	t.Helper()
	id := uuid.MustParse(taskID)
	require.Eventually(t, func() bool {
		rr := doJSON(t, app, http.MethodGet, "/api/scan/progress/"+taskID+"?once=1", nil)
		if rr.Code != http.StatusOK || decode[ProgressResponse](t, rr).Status != want {
			return false
		}
		stored, err := store.GetTaskDetail(context.Background(), id)
		if err != nil {
			return false
		}
		detail, ok := stored.Get()
		return ok && string(detail.Task.Status) == want
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStart_AndResult(t *testing.T) {
	app, store := newApp(t, buyPointEngine())

	started := startScan(t, app, map[string]any{"stock_pool": "all", "time_window_days": 0})
	assert.Equal(t, "started", started.Status)
	assert.Equal(t, 2, started.TotalStocks)

	waitStatus(t, app, store, started.TaskID, "completed")

	rr := doJSON(t, app, http.MethodGet, "/api/scan/result/"+started.TaskID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	res := decode[ScanResultResponse](t, rr)
	assert.Equal(t, 2, res.TotalScanned)
	assert.Equal(t, 2, res.TotalFound)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "2", res.Results[0].BSPType)
	assert.Equal(t, "day", res.Results[0].KlineType)
	require.NotNil(t, res.Results[0].Name)
}

func TestStart_Preconditions(t *testing.T) {
	app, _ := newApp(t, buyPointEngine())

	tests := []struct {
		name string
		body any
	}{
		{"未知のK線", map[string]any{"kline_type": "2h"}},
		{"空の銘柄指定", map[string]any{"stock_pool": "custom", "stock_codes": []string{" "}}},
		{"板块なし", map[string]any{"stock_pool": "boards"}},
		{"負の期間", map[string]any{"time_window_days": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, app, http.MethodPost, "/api/scan/start", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/scan/start", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	app.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUnknownTask(t *testing.T) {
	app, _ := newApp(t, buyPointEngine())
	unknown := uuid.NewString()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/scan/result/" + unknown},
		{http.MethodGet, "/api/scan/progress/" + unknown},
		{http.MethodGet, "/api/scan/progress/" + unknown + "?once=1"},
		{http.MethodPost, "/api/scan/cancel/" + unknown},
		{http.MethodGet, "/api/scan/tasks/" + unknown},
		{http.MethodDelete, "/api/scan/tasks/" + unknown},
		{http.MethodGet, "/api/scan/result/not-a-uuid"},
	} {
		rr := doJSON(t, app, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code, "%s %s", tc.method, tc.path)
	}
}

func TestCancel(t *testing.T) {
	release := make(chan struct{})
	engine := &stubEngine{AnalyzeFunc: func(ctx context.Context, code string) (*scan.Analysis, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return &scan.Analysis{Code: code}, nil
	}}
	app, store := newApp(t, engine)

	started := startScan(t, app, map[string]any{"stock_pool": "custom", "stock_codes": []string{"a", "b", "c", "d", "e"}})

	rr := doJSON(t, app, http.MethodPost, "/api/scan/cancel/"+started.TaskID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[MessageResponse](t, rr).Success)
	close(release)

	waitStatus(t, app, store, started.TaskID, "cancelled")

	rr = doJSON(t, app, http.MethodPost, "/api/scan/cancel/"+started.TaskID, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTasks_ListDetailDelete(t *testing.T) {
	app, store := newApp(t, buyPointEngine())

	first := startScan(t, app, map[string]any{"stock_pool": "custom", "stock_codes": []string{"sz.000001"}, "time_window_days": 0})
	waitStatus(t, app, store, first.TaskID, "completed")
	second := startScan(t, app, map[string]any{"stock_pool": "boards", "boards": []string{"cyb"}, "time_window_days": 0})
	waitStatus(t, app, store, second.TaskID, "completed")

	rr := doJSON(t, app, http.MethodGet, "/api/scan/tasks?page=1&page_size=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[TaskListResponse](t, rr)
	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, second.TaskID, list.Tasks[0].ID)
	assert.Equal(t, 100, list.Tasks[0].Progress)

	for _, bad := range []string{"page=0", "page_size=101", "status=paused", "page=x"} {
		rr = doJSON(t, app, http.MethodGet, "/api/scan/tasks?"+bad, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, bad)
	}

	rr = doJSON(t, app, http.MethodGet, "/api/scan/tasks/"+first.TaskID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	detail := decode[TaskDetailResponse](t, rr)
	assert.Equal(t, "custom", detail.Task.StockPool)
	assert.Equal(t, []string{"sz.000001"}, detail.Task.StockCodes)
	assert.Equal(t, 500, detail.Task.KlineLimit)
	require.Len(t, detail.Results, 1)

	rr = doJSON(t, app, http.MethodDelete, "/api/scan/tasks/"+first.TaskID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = doJSON(t, app, http.MethodGet, "/api/scan/tasks/"+first.TaskID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAllResults(t *testing.T) {
	app, store := newApp(t, buyPointEngine())

	started := startScan(t, app, map[string]any{"time_window_days": 0})
	waitStatus(t, app, store, started.TaskID, "completed")

	rr := doJSON(t, app, http.MethodGet, "/api/scan/all-results", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	all := decode[AllResultsResponse](t, rr)
	assert.Equal(t, 1, all.TotalTasks)
	assert.Equal(t, 2, all.TotalResults)
	assert.Equal(t, started.TaskID, all.Results[0].TaskID)

	rr = doJSON(t, app, http.MethodGet, "/api/scan/all-results?status=all&limit=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decode[AllResultsResponse](t, rr).TotalResults)

	for _, bad := range []string{"limit=0", "limit=10001", "status=paused"} {
		rr = doJSON(t, app, http.MethodGet, "/api/scan/all-results?"+bad, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, bad)
	}
}

func TestProgress_SSE(t *testing.T) {
	app, _ := newApp(t, buyPointEngine())
	srv := httptest.NewServer(app)
	defer srv.Close()

	started := startScan(t, app, map[string]any{"time_window_days": 0})

	resp, err := http.Get(srv.URL + "/api/scan/progress/" + started.TaskID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []ProgressResponse
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var p ProgressResponse
			require.NoError(t, json.Unmarshal([]byte(data), &p))
			events = append(events, p)
		}
	}
	require.NoError(t, sc.Err())

	require.NotEmpty(t, events)
	terminal := 0
	for _, e := range events {
		if e.Status != "running" {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal, "終端状態は1回だけ送られる")
	last := events[len(events)-1]
	assert.Equal(t, "completed", last.Status)
	assert.Equal(t, 100, last.Progress)
}

func TestProgress_WebSocket(t *testing.T) {
	app, _ := newApp(t, buyPointEngine())
	srv := httptest.NewServer(app)
	defer srv.Close()

	started := startScan(t, app, map[string]any{"time_window_days": 0})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/scan/progress/" + started.TaskID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var last ProgressResponse
	for {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var p ProgressResponse
		if err := conn.ReadJSON(&p); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
			break
		}
		last = p
	}
	assert.Equal(t, "completed", last.Status)
}

func TestHealthz(t *testing.T) {
	app, _ := newApp(t, buyPointEngine())
	rr := doJSON(t, app, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
