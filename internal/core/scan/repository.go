package scan

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// DecisionPoint は解析エンジンが返す売買ポイント
type DecisionPoint struct {
	IsBuy bool
	Tags  []string // 1本のK線に複数タイプが重なることがある
	Time  string   // 2006/01/02 15:04
	Value float64
}

// Analysis は1銘柄の解析結果
type Analysis struct {
	Code   string
	Name   string
	Points []DecisionPoint
}

// Engine は銘柄ごとの解析を行う外部エンジン
type Engine interface {
	Analyze(ctx context.Context, code string, kline KlineType, limit int) (*Analysis, error)
}

// Stock はカタログ上の銘柄
type Stock struct {
	Code        string
	Name        string
	Type        string
	Pinyin      string
	PinyinShort string
}

// Catalog は銘柄カタログ
type Catalog interface {
	// ListStocks はコード昇順で全銘柄を返す
	ListStocks(ctx context.Context) ([]Stock, error)
}

// Store はタスクと結果の永続化を担う
type Store interface {
	CreateTask(ctx context.Context, record TaskRecord) error
	UpdateProgress(ctx context.Context, record TaskRecord) error
	// FinishTask は結果の一括保存とタスクの完了を行う
	FinishTask(ctx context.Context, record TaskRecord, results []ResultItem) error
	ListTasks(ctx context.Context, query TaskQuery) (*TaskPage, error)
	GetTaskDetail(ctx context.Context, id uuid.UUID) (mo.Option[*TaskDetail], error)
	// DeleteTask はタスクを削除する。結果も連鎖削除される。
	DeleteTask(ctx context.Context, id uuid.UUID) (bool, error)
	AggregateResults(ctx context.Context, query AggregateQuery) (*Aggregate, error)
}
