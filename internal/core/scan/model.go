package scan

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PoolSelector はスキャン対象の銘柄プールの選び方
type PoolSelector string

const (
	PoolAll      PoolSelector = "all"    // 全市場
	PoolByBoard  PoolSelector = "boards" // 板块指定
	PoolExplicit PoolSelector = "custom" // 銘柄コード指定
)

// KlineType はK線の粒度
type KlineType string

const (
	KlineDay   KlineType = "day"
	KlineWeek  KlineType = "week"
	KlineMonth KlineType = "month"
	Kline1m    KlineType = "1m"
	Kline5m    KlineType = "5m"
	Kline15m   KlineType = "15m"
	Kline30m   KlineType = "30m"
	Kline60m   KlineType = "60m"
)

// Valid は既知の粒度かどうかを返す
func (k KlineType) Valid() bool {
	switch k {
	case KlineDay, KlineWeek, KlineMonth, Kline1m, Kline5m, Kline15m, Kline30m, Kline60m:
		return true
	}
	return false
}

// Status はスキャンタスクの状態
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// IsTerminal は終端状態かどうかを返す
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusError
}

// Valid は既知の状態かどうかを返す
func (s Status) Valid() bool {
	return s == StatusRunning || s.IsTerminal()
}

// DefaultBSPTypes は買点タイプの既定セット
var DefaultBSPTypes = []string{"1", "1p", "2", "2s", "3a", "3b"}

const (
	DefaultTimeWindowDays = 3
	DefaultKlineLimit     = 500
)

// Request はスキャン要求。受理後は変更しない。
type Request struct {
	Pool           PoolSelector
	Boards         []string
	Codes          []string
	KlineType      KlineType
	BSPTypes       []string // 呼び出し側の優先順
	TimeWindowDays int
	Limit          int
}

// WithDefaults は未指定項目に既定値を補った Request を返す
func (r Request) WithDefaults() Request {
	if r.Pool == "" {
		r.Pool = PoolAll
	}
	if r.KlineType == "" {
		r.KlineType = KlineDay
	}
	if len(r.BSPTypes) == 0 {
		r.BSPTypes = slices.Clone(DefaultBSPTypes)
	}
	if r.Limit == 0 {
		r.Limit = DefaultKlineLimit
	}
	return r
}

// Validate はリクエストの形式を検証する
func (r Request) Validate() error {
	switch r.Pool {
	case PoolAll, PoolExplicit:
	case PoolByBoard:
		if len(r.Boards) == 0 {
			return fmt.Errorf("%w: boards is required when stock_pool=boards", ErrInvalidRequest)
		}
		for _, b := range r.Boards {
			if _, ok := BoardPrefixes[Board(b)]; !ok {
				return fmt.Errorf("%w: unknown board %q", ErrInvalidRequest, b)
			}
		}
	default:
		return fmt.Errorf("%w: unknown stock_pool %q", ErrInvalidRequest, r.Pool)
	}

	if !r.KlineType.Valid() {
		return fmt.Errorf("%w: unknown kline_type %q", ErrInvalidRequest, r.KlineType)
	}
	if len(r.BSPTypes) == 0 {
		return fmt.Errorf("%w: bsp_types must not be empty", ErrInvalidRequest)
	}
	for _, t := range r.BSPTypes {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: bsp_types contains an empty value", ErrInvalidRequest)
		}
	}
	if r.TimeWindowDays < 0 {
		return fmt.Errorf("%w: time_window_days must be >= 0", ErrInvalidRequest)
	}
	if r.Limit <= 0 {
		return fmt.Errorf("%w: limit must be > 0", ErrInvalidRequest)
	}
	return nil
}

// ResultItem は1件の検出結果
type ResultItem struct {
	Code      string
	Name      string
	BSPType   string // 正規化済みの単一タグ
	BSPTime   string // 銘柄ローカル時刻 (2006/01/02 15:04)
	BSPValue  float64
	IsBuy     bool
	KlineType KlineType
}

// TaskRecord はタスクのスナップショットであり、永続化される形でもある
type TaskRecord struct {
	ID             uuid.UUID
	Status         Status
	Request        Request
	TotalCount     int
	ProcessedCount int
	FoundCount     int
	CurrentCode    string
	ErrorMessage   string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ElapsedSeconds float64
}

// Percent は進捗率(0-100)を返す。total が 0 のときは 100。
func (r TaskRecord) Percent() int {
	return percent(r.ProcessedCount, r.TotalCount)
}

// Progress はタスクの状態を Progress に変換する
func (r TaskRecord) Progress() Progress {
	return Progress{
		TaskID:         r.ID,
		Status:         r.Status,
		Percent:        r.Percent(),
		ProcessedCount: r.ProcessedCount,
		TotalCount:     r.TotalCount,
		FoundCount:     r.FoundCount,
		CurrentCode:    r.CurrentCode,
		ErrorMessage:   r.ErrorMessage,
	}
}

func percent(processed, total int) int {
	if total <= 0 {
		return 100
	}
	p := processed * 100 / total
	if p > 100 {
		return 100
	}
	return p
}

// Progress は観測者へ配信する進捗スナップショット
type Progress struct {
	TaskID         uuid.UUID
	Status         Status
	Percent        int
	ProcessedCount int
	TotalCount     int
	FoundCount     int
	CurrentCode    string
	ErrorMessage   string
}

// ResultSet はタスク結果のスナップショット
type ResultSet struct {
	TaskID         uuid.UUID
	Status         Status
	Results        []ResultItem
	TotalScanned   int
	TotalFound     int
	ElapsedSeconds float64
}

// StartResult はスキャン開始の応答
type StartResult struct {
	TaskID     uuid.UUID
	TotalCount int
}

// TaskQuery はタスク一覧の検索条件
type TaskQuery struct {
	Page     int
	PageSize int
	Status   string // "" または "all" は絞り込みなし
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Validate は一覧条件を検証する
func (q TaskQuery) Validate() error {
	if q.Page < 1 {
		return fmt.Errorf("%w: page must be >= 1", ErrInvalidRequest)
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		return fmt.Errorf("%w: page_size must be between 1 and %d", ErrInvalidRequest, MaxPageSize)
	}
	if q.Status != "" && q.Status != "all" && !Status(q.Status).Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, q.Status)
	}
	return nil
}

// Offset はページの先頭位置
func (q TaskQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// TaskPage はタスク一覧の1ページ
type TaskPage struct {
	Tasks    []TaskRecord
	Total    int
	Page     int
	PageSize int
}

// TaskDetail はタスクとその結果
type TaskDetail struct {
	Task    TaskRecord
	Results []ResultItem
}

// AggregateQuery は横断結果の検索条件
type AggregateQuery struct {
	Status string // 既定 "completed"、"all" は絞り込みなし
	Limit  int    // 0 は無制限
}

const MaxAggregateLimit = 10000

// Validate は横断検索条件を検証する
func (q AggregateQuery) Validate() error {
	if q.Status != "all" && !Status(q.Status).Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, q.Status)
	}
	if q.Limit < 0 || q.Limit > MaxAggregateLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidRequest, MaxAggregateLimit)
	}
	return nil
}

// AggregateResult は横断結果の1行
type AggregateResult struct {
	TaskID uuid.UUID
	ResultItem
}

// Aggregate は複数タスクの結果をまとめたもの
type Aggregate struct {
	Tasks   []TaskRecord
	Results []AggregateResult
}
