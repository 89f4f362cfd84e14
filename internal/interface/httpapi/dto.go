package httpapi

import (
	"time"

	"github.com/jinford/bsp-scan/internal/core/scan"
)

// timeLayout は API が返す日時の書式
const timeLayout = "2006-01-02 15:04:05"

// ScanRequest は POST /api/scan/start の本文
type ScanRequest struct {
	StockPool      string   `json:"stock_pool"`
	Boards         []string `json:"boards"`
	StockCodes     []string `json:"stock_codes"`
	KlineType      string   `json:"kline_type"`
	BSPTypes       []string `json:"bsp_types"`
	TimeWindowDays *int     `json:"time_window_days"`
	Limit          *int     `json:"limit"`
}

func (r ScanRequest) toRequest() scan.Request {
	req := scan.Request{
		Pool:           scan.PoolSelector(r.StockPool),
		Boards:         r.Boards,
		Codes:          r.StockCodes,
		KlineType:      scan.KlineType(r.KlineType),
		BSPTypes:       r.BSPTypes,
		TimeWindowDays: scan.DefaultTimeWindowDays,
		Limit:          scan.DefaultKlineLimit,
	}
	if r.TimeWindowDays != nil {
		req.TimeWindowDays = *r.TimeWindowDays
	}
	if r.Limit != nil {
		req.Limit = *r.Limit
	}
	return req
}

type ScanTaskResponse struct {
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
	TotalStocks int    `json:"total_stocks"`
}

type ProgressResponse struct {
	TaskID         string  `json:"task_id"`
	Status         string  `json:"status"`
	Progress       int     `json:"progress"`
	ProcessedCount int     `json:"processed_count"`
	TotalCount     int     `json:"total_count"`
	FoundCount     int     `json:"found_count"`
	CurrentStock   *string `json:"current_stock"`
	ErrorMessage   *string `json:"error_message"`
}

func toProgressResponse(p scan.Progress) ProgressResponse {
	return ProgressResponse{
		TaskID:         p.TaskID.String(),
		Status:         string(p.Status),
		Progress:       p.Percent,
		ProcessedCount: p.ProcessedCount,
		TotalCount:     p.TotalCount,
		FoundCount:     p.FoundCount,
		CurrentStock:   nullable(p.CurrentCode),
		ErrorMessage:   nullable(p.ErrorMessage),
	}
}

type ResultItemResponse struct {
	Code      string  `json:"code"`
	Name      *string `json:"name"`
	BSPType   string  `json:"bsp_type"`
	BSPTime   string  `json:"bsp_time"`
	BSPValue  float64 `json:"bsp_value"`
	IsBuy     bool    `json:"is_buy"`
	KlineType string  `json:"kline_type"`
}

func toResultItems(items []scan.ResultItem) []ResultItemResponse {
	out := make([]ResultItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toResultItem(it))
	}
	return out
}

func toResultItem(it scan.ResultItem) ResultItemResponse {
	return ResultItemResponse{
		Code:      it.Code,
		Name:      nullable(it.Name),
		BSPType:   it.BSPType,
		BSPTime:   it.BSPTime,
		BSPValue:  it.BSPValue,
		IsBuy:     it.IsBuy,
		KlineType: string(it.KlineType),
	}
}

type ScanResultResponse struct {
	TaskID       string               `json:"task_id"`
	Status       string               `json:"status"`
	Results      []ResultItemResponse `json:"results"`
	TotalScanned int                  `json:"total_scanned"`
	TotalFound   int                  `json:"total_found"`
	ElapsedTime  float64              `json:"elapsed_time"`
}

func toScanResultResponse(rs *scan.ResultSet) ScanResultResponse {
	return ScanResultResponse{
		TaskID:       rs.TaskID.String(),
		Status:       string(rs.Status),
		Results:      toResultItems(rs.Results),
		TotalScanned: rs.TotalScanned,
		TotalFound:   rs.TotalFound,
		ElapsedTime:  rs.ElapsedSeconds,
	}
}

type TaskListItem struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	Progress    int     `json:"progress"`
	FoundCount  int     `json:"found_count"`
	ElapsedTime float64 `json:"elapsed_time"`
}

type TaskListResponse struct {
	Tasks    []TaskListItem `json:"tasks"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

func toTaskListResponse(page *scan.TaskPage) TaskListResponse {
	items := make([]TaskListItem, 0, len(page.Tasks))
	for _, t := range page.Tasks {
		items = append(items, TaskListItem{
			ID:          t.ID.String(),
			Status:      string(t.Status),
			CreatedAt:   formatTime(t.CreatedAt),
			Progress:    t.Percent(),
			FoundCount:  t.FoundCount,
			ElapsedTime: t.ElapsedSeconds,
		})
	}
	return TaskListResponse{Tasks: items, Total: page.Total, Page: page.Page, PageSize: page.PageSize}
}

type TaskResponse struct {
	ID             string   `json:"id"`
	Status         string   `json:"status"`
	StockPool      string   `json:"stock_pool"`
	Boards         []string `json:"boards"`
	StockCodes     []string `json:"stock_codes"`
	KlineType      string   `json:"kline_type"`
	BSPTypes       []string `json:"bsp_types"`
	TimeWindowDays int      `json:"time_window_days"`
	KlineLimit     int      `json:"kline_limit"`
	TotalCount     int      `json:"total_count"`
	ProcessedCount int      `json:"processed_count"`
	FoundCount     int      `json:"found_count"`
	CurrentStock   *string  `json:"current_stock"`
	ErrorMessage   *string  `json:"error_message"`
	CreatedAt      string   `json:"created_at"`
	StartedAt      *string  `json:"started_at"`
	CompletedAt    *string  `json:"completed_at"`
	ElapsedTime    float64  `json:"elapsed_time"`
}

func toTaskResponse(t scan.TaskRecord) TaskResponse {
	return TaskResponse{
		ID:             t.ID.String(),
		Status:         string(t.Status),
		StockPool:      string(t.Request.Pool),
		Boards:         t.Request.Boards,
		StockCodes:     t.Request.Codes,
		KlineType:      string(t.Request.KlineType),
		BSPTypes:       t.Request.BSPTypes,
		TimeWindowDays: t.Request.TimeWindowDays,
		KlineLimit:     t.Request.Limit,
		TotalCount:     t.TotalCount,
		ProcessedCount: t.ProcessedCount,
		FoundCount:     t.FoundCount,
		CurrentStock:   nullable(t.CurrentCode),
		ErrorMessage:   nullable(t.ErrorMessage),
		CreatedAt:      formatTime(t.CreatedAt),
		StartedAt:      formatTimePtr(t.StartedAt),
		CompletedAt:    formatTimePtr(t.CompletedAt),
		ElapsedTime:    t.ElapsedSeconds,
	}
}

type TaskDetailResponse struct {
	Task    TaskResponse         `json:"task"`
	Results []ResultItemResponse `json:"results"`
}

type AggregateResultItem struct {
	TaskID string `json:"task_id"`
	ResultItemResponse
}

type AllResultsResponse struct {
	TotalTasks   int                   `json:"total_tasks"`
	TotalResults int                   `json:"total_results"`
	Tasks        []TaskResponse        `json:"tasks"`
	Results      []AggregateResultItem `json:"results"`
}

func toAllResultsResponse(agg *scan.Aggregate) AllResultsResponse {
	resp := AllResultsResponse{
		TotalTasks:   len(agg.Tasks),
		TotalResults: len(agg.Results),
		Tasks:        make([]TaskResponse, 0, len(agg.Tasks)),
		Results:      make([]AggregateResultItem, 0, len(agg.Results)),
	}
	for _, t := range agg.Tasks {
		resp.Tasks = append(resp.Tasks, toTaskResponse(t))
	}
	for _, r := range agg.Results {
		resp.Results = append(resp.Results, AggregateResultItem{
			TaskID:             r.TaskID.String(),
			ResultItemResponse: toResultItem(r.ResultItem),
		})
	}
	return resp
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
