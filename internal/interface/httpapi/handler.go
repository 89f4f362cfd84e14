package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/jinford/bsp-scan/internal/core/scan"
)

// ScanService はハンドラが利用するスキャン機能
type ScanService interface {
	Start(ctx context.Context, req scan.Request) (*scan.StartResult, error)
	Progress(ctx context.Context, id uuid.UUID) (scan.Progress, error)
	Watch(ctx context.Context, id uuid.UUID) (<-chan scan.Progress, error)
	Result(ctx context.Context, id uuid.UUID) (*scan.ResultSet, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	ListTasks(ctx context.Context, query scan.TaskQuery) (*scan.TaskPage, error)
	TaskDetail(ctx context.Context, id uuid.UUID) (*scan.TaskDetail, error)
	DeleteTask(ctx context.Context, id uuid.UUID) error
	AllResults(ctx context.Context, query scan.AggregateQuery) (*scan.Aggregate, error)
}

// コンパイル時の型チェック
var _ ScanService = (*scan.Service)(nil)

// ScanHandler は /api/scan 配下のハンドラ
type ScanHandler struct {
	service ScanService
	logger  *slog.Logger
}

// NewScanHandler は新しい ScanHandler を作成する
func NewScanHandler(service ScanService, logger *slog.Logger) *ScanHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScanHandler{service: service, logger: logger}
}

// POST /api/scan/start
func (h *ScanHandler) Start(w http.ResponseWriter, r *http.Request) {
	var body ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	started, err := h.service.Start(r.Context(), body.toRequest())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ScanTaskResponse{
		TaskID:      started.TaskID.String(),
		Status:      "started",
		TotalStocks: started.TotalCount,
	})
}

// GET /api/scan/result/{id}
func (h *ScanHandler) Result(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}

	rs, err := h.service.Result(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScanResultResponse(rs))
}

// POST /api/scan/cancel/{id}
func (h *ScanHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "タスクをキャンセルしました"})
}

// GET /api/scan/tasks
func (h *ScanHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err1 := queryInt(q.Get("page"), 1)
	pageSize, err2 := queryInt(q.Get("page_size"), scan.DefaultPageSize)
	if err := errors.Join(err1, err2); err != nil {
		writeError(w, http.StatusBadRequest, "page and page_size must be integers")
		return
	}
	// 0 はサービス層で既定値に置き換わるため、明示指定はここで弾く
	if page < 1 || pageSize < 1 {
		writeError(w, http.StatusBadRequest, "page and page_size must be >= 1")
		return
	}

	result, err := h.service.ListTasks(r.Context(), scan.TaskQuery{
		Page:     page,
		PageSize: pageSize,
		Status:   q.Get("status"),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskListResponse(result))
}

// GET /api/scan/tasks/{id}
func (h *ScanHandler) TaskDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}

	detail, err := h.service.TaskDetail(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TaskDetailResponse{
		Task:    toTaskResponse(detail.Task),
		Results: toResultItems(detail.Results),
	})
}

// DELETE /api/scan/tasks/{id}
func (h *ScanHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTaskID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteTask(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "タスクを削除しました"})
}

// GET /api/scan/all-results
func (h *ScanHandler) AllResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if q.Has("limit") && limit < 1 {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 10000")
		return
	}

	agg, err := h.service.AllResults(r.Context(), scan.AggregateQuery{
		Status: q.Get("status"),
		Limit:  limit,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllResultsResponse(agg))
}

// writeServiceError はサービス層のエラーをステータスコードに対応付ける
func (h *ScanHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scan.ErrInvalidRequest), errors.Is(err, scan.ErrEmptyUniverse):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, scan.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, scan.ErrNotCancellable):
		writeError(w, http.StatusBadRequest, "task is not cancellable")
	default:
		h.logger.Error("リクエストの処理に失敗しました", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func parseTaskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		// 形式不正な ID は存在しないタスクとして扱う
		writeError(w, http.StatusNotFound, "task not found")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(raw string, defaultValue int) (int, error) {
	if raw == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Detail: msg})
}
