package postgres

import (
	"context"
	"fmt"
)

// Schema は stocks / scan_tasks / scan_results の DDL です
const Schema = `
CREATE TABLE IF NOT EXISTS stocks (
	code         VARCHAR(20) PRIMARY KEY,
	name         VARCHAR(100) NOT NULL,
	type         VARCHAR(20),
	pinyin       VARCHAR(200),
	pinyin_short VARCHAR(50),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scan_tasks (
	id               UUID PRIMARY KEY,
	status           VARCHAR(20) NOT NULL,
	stock_pool       VARCHAR(20) NOT NULL,
	boards           JSONB,
	stock_codes      JSONB,
	kline_type       VARCHAR(10) NOT NULL,
	bsp_types        JSONB NOT NULL,
	time_window_days INTEGER NOT NULL,
	kline_limit      INTEGER NOT NULL,
	total_count      INTEGER NOT NULL DEFAULT 0,
	processed_count  INTEGER NOT NULL DEFAULT 0,
	found_count      INTEGER NOT NULL DEFAULT 0,
	current_stock    TEXT,
	error_message    TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at       TIMESTAMPTZ,
	completed_at     TIMESTAMPTZ,
	elapsed_seconds  DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_scan_tasks_status ON scan_tasks (status);
CREATE INDEX IF NOT EXISTS idx_scan_tasks_created_at ON scan_tasks (created_at DESC);

CREATE TABLE IF NOT EXISTS scan_results (
	id         BIGSERIAL PRIMARY KEY,
	task_id    UUID NOT NULL REFERENCES scan_tasks (id) ON DELETE CASCADE,
	code       TEXT NOT NULL,
	name       TEXT,
	bsp_type   TEXT NOT NULL,
	bsp_time   VARCHAR(32) NOT NULL,
	bsp_value  DOUBLE PRECISION,
	is_buy     BOOLEAN,
	kline_type VARCHAR(10),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scan_results_task_id ON scan_results (task_id);
CREATE INDEX IF NOT EXISTS idx_scan_results_bsp_time ON scan_results (bsp_time DESC);

-- 銘柄コードと種別は呼び出し側の指定がそのまま入るため長さを制限しない
ALTER TABLE scan_tasks ALTER COLUMN current_stock TYPE TEXT;
ALTER TABLE scan_results ALTER COLUMN code TYPE TEXT;
ALTER TABLE scan_results ALTER COLUMN name TYPE TEXT;
ALTER TABLE scan_results ALTER COLUMN bsp_type TYPE TEXT;
`

// EnsureSchema はテーブルとインデックスを作成します。既存のものはそのまま残ります
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
