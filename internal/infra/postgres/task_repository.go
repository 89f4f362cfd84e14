package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/mo"

	"github.com/jinford/bsp-scan/internal/core/scan"
)

const taskColumns = `id, status, stock_pool, boards, stock_codes, kline_type, bsp_types,
	time_window_days, kline_limit, total_count, processed_count, found_count,
	current_stock, error_message, created_at, started_at, completed_at, elapsed_seconds`

// TaskRepository は scan_tasks テーブルを扱います
type TaskRepository struct {
	db DBTX
}

// NewTaskRepository は新しい TaskRepository を作成します
func NewTaskRepository(db DBTX) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create はタスク行を作成します
func (r *TaskRepository) Create(ctx context.Context, rec scan.TaskRecord) error {
	req := rec.Request
	_, err := r.db.Exec(ctx, `
		INSERT INTO scan_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		rec.ID,
		string(rec.Status),
		string(req.Pool),
		JSONBFromStringSlice(req.Boards),
		JSONBFromStringSlice(req.Codes),
		string(req.KlineType),
		JSONBFromStringSlice(req.BSPTypes),
		req.TimeWindowDays,
		req.Limit,
		rec.TotalCount,
		rec.ProcessedCount,
		rec.FoundCount,
		StringToNullableText(rec.CurrentCode),
		StringToNullableText(rec.ErrorMessage),
		rec.CreatedAt,
		TimePtrToPgtype(rec.StartedAt),
		TimePtrToPgtype(rec.CompletedAt),
		rec.ElapsedSeconds,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", scan.ErrTaskExists, rec.ID)
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// UpdateState は進捗・状態列を更新します。対象がなければ scan.ErrTaskNotFound を返します
func (r *TaskRepository) UpdateState(ctx context.Context, rec scan.TaskRecord) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE scan_tasks
		SET status = $2,
			processed_count = $3,
			found_count = $4,
			current_stock = $5,
			error_message = $6,
			completed_at = $7,
			elapsed_seconds = $8
		WHERE id = $1`,
		rec.ID,
		string(rec.Status),
		rec.ProcessedCount,
		rec.FoundCount,
		StringToNullableText(rec.CurrentCode),
		StringToNullableText(rec.ErrorMessage),
		TimePtrToPgtype(rec.CompletedAt),
		rec.ElapsedSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", scan.ErrTaskNotFound, rec.ID)
	}
	return nil
}

// FindByID はIDでタスクを取得します
func (r *TaskRepository) FindByID(ctx context.Context, id uuid.UUID) (mo.Option[scan.TaskRecord], error) {
	row := r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM scan_tasks WHERE id = $1`, id)
	rec, err := scanTask(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return mo.None[scan.TaskRecord](), nil
		}
		return mo.None[scan.TaskRecord](), fmt.Errorf("failed to get task: %w", err)
	}
	return mo.Some(rec), nil
}

// List は作成日時の新しい順にタスクを返します。status が空なら全件が対象です
func (r *TaskRepository) List(ctx context.Context, status string, limit, offset int) ([]scan.TaskRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+taskColumns+`
		FROM scan_tasks
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		status, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return collectTasks(rows)
}

// ListAll は status に一致するタスクを全件返します
func (r *TaskRepository) ListAll(ctx context.Context, status string) ([]scan.TaskRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+taskColumns+`
		FROM scan_tasks
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return collectTasks(rows)
}

// Count は status に一致するタスク数を返します
func (r *TaskRepository) Count(ctx context.Context, status string) (int, error) {
	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM scan_tasks WHERE ($1 = '' OR status = $1)`, status).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return total, nil
}

// Delete はタスクを削除します。結果行は ON DELETE CASCADE で消えます
func (r *TaskRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM scan_tasks WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func collectTasks(rows pgx.Rows) ([]scan.TaskRecord, error) {
	defer rows.Close()

	tasks := []scan.TaskRecord{}
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(row pgx.Row) (scan.TaskRecord, error) {
	var (
		rec                       scan.TaskRecord
		status, pool, kline       string
		boards, codes, bspTypes   []byte
		currentCode, errorMessage pgtype.Text
		createdAt                 pgtype.Timestamptz
		startedAt, completedAt    pgtype.Timestamptz
	)
	err := row.Scan(
		&rec.ID,
		&status,
		&pool,
		&boards,
		&codes,
		&kline,
		&bspTypes,
		&rec.Request.TimeWindowDays,
		&rec.Request.Limit,
		&rec.TotalCount,
		&rec.ProcessedCount,
		&rec.FoundCount,
		&currentCode,
		&errorMessage,
		&createdAt,
		&startedAt,
		&completedAt,
		&rec.ElapsedSeconds,
	)
	if err != nil {
		return scan.TaskRecord{}, err
	}

	rec.Status = scan.Status(status)
	rec.Request.Pool = scan.PoolSelector(pool)
	rec.Request.Boards = StringSliceFromJSONB(boards)
	rec.Request.Codes = StringSliceFromJSONB(codes)
	rec.Request.KlineType = scan.KlineType(kline)
	rec.Request.BSPTypes = StringSliceFromJSONB(bspTypes)
	rec.CurrentCode = PgtextToString(currentCode)
	rec.ErrorMessage = PgtextToString(errorMessage)
	rec.CreatedAt = createdAt.Time.Local()
	rec.StartedAt = PgtypeToTimePtr(startedAt)
	rec.CompletedAt = PgtypeToTimePtr(completedAt)
	return rec, nil
}
