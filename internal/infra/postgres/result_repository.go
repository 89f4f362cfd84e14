package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jinford/bsp-scan/internal/core/scan"
)

var resultCopyColumns = []string{"task_id", "code", "name", "bsp_type", "bsp_time", "bsp_value", "is_buy", "kline_type"}

// ResultRepository は scan_results テーブルを扱います
type ResultRepository struct {
	db DBTX
}

// NewResultRepository は新しい ResultRepository を作成します
func NewResultRepository(db DBTX) *ResultRepository {
	return &ResultRepository{db: db}
}

// ReplaceForTask はタスクの結果行を入れ替えます。トランザクション内で呼び出してください
func (r *ResultRepository) ReplaceForTask(ctx context.Context, taskID uuid.UUID, items []scan.ResultItem) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM scan_results WHERE task_id = $1`, taskID); err != nil {
		return fmt.Errorf("failed to delete results: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	_, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"scan_results"},
		resultCopyColumns,
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			it := items[i]
			return []any{
				taskID,
				it.Code,
				StringToNullableText(it.Name),
				it.BSPType,
				it.BSPTime,
				it.BSPValue,
				it.IsBuy,
				string(it.KlineType),
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert results: %w", err)
	}
	return nil
}

// ListByTask はタスクの結果を買点時刻の新しい順に返します
func (r *ResultRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]scan.ResultItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT task_id, code, name, bsp_type, bsp_time, bsp_value, is_buy, kline_type
		FROM scan_results
		WHERE task_id = $1
		ORDER BY bsp_time DESC, id`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}

	aggregated, err := collectResults(rows)
	if err != nil {
		return nil, err
	}
	items := make([]scan.ResultItem, 0, len(aggregated))
	for _, a := range aggregated {
		items = append(items, a.ResultItem)
	}
	return items, nil
}

// ListByTaskStatus はタスク状態で絞り込んだ結果を横断で返します。limit が 0 なら全件です
func (r *ResultRepository) ListByTaskStatus(ctx context.Context, status string, limit int) ([]scan.AggregateResult, error) {
	query := `
		SELECT r.task_id, r.code, r.name, r.bsp_type, r.bsp_time, r.bsp_value, r.is_buy, r.kline_type
		FROM scan_results r
		JOIN scan_tasks t ON t.id = r.task_id
		WHERE ($1 = '' OR t.status = $1)
		ORDER BY r.bsp_time DESC, r.id`
	args := []any{status}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return collectResults(rows)
}

func collectResults(rows pgx.Rows) ([]scan.AggregateResult, error) {
	defer rows.Close()

	results := []scan.AggregateResult{}
	for rows.Next() {
		var (
			res   scan.AggregateResult
			name  pgtype.Text
			value pgtype.Float8
			isBuy pgtype.Bool
			kline pgtype.Text
		)
		if err := rows.Scan(&res.TaskID, &res.Code, &name, &res.BSPType, &res.BSPTime, &value, &isBuy, &kline); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.Name = PgtextToString(name)
		res.BSPValue = PgtypeToFloat64(value)
		res.IsBuy = isBuy.Valid && isBuy.Bool
		res.KlineType = scan.KlineType(PgtextToString(kline))
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate results: %w", err)
	}
	return results, nil
}
