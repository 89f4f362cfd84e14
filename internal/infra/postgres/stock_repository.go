package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jinford/bsp-scan/internal/core/scan"
)

// StockRepository は stocks テーブル(銘柄カタログ)を扱います
type StockRepository struct {
	db DBTX
}

// NewStockRepository は新しい StockRepository を作成します
func NewStockRepository(db DBTX) *StockRepository {
	return &StockRepository{db: db}
}

// コンパイル時の型チェック
var _ scan.Catalog = (*StockRepository)(nil)

// ListStocks はコード順に全銘柄を返します
func (r *StockRepository) ListStocks(ctx context.Context) ([]scan.Stock, error) {
	rows, err := r.db.Query(ctx, `
		SELECT code, name, type, pinyin, pinyin_short
		FROM stocks
		ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stocks: %w", err)
	}
	defer rows.Close()

	stocks := []scan.Stock{}
	for rows.Next() {
		var (
			st                       scan.Stock
			typ, pinyin, pinyinShort pgtype.Text
		)
		if err := rows.Scan(&st.Code, &st.Name, &typ, &pinyin, &pinyinShort); err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		st.Type = PgtextToString(typ)
		st.Pinyin = PgtextToString(pinyin)
		st.PinyinShort = PgtextToString(pinyinShort)
		stocks = append(stocks, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stocks: %w", err)
	}
	return stocks, nil
}

// Upsert は銘柄を登録し、既存なら名称などを更新します
func (r *StockRepository) Upsert(ctx context.Context, st scan.Stock) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO stocks (code, name, type, pinyin, pinyin_short, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name,
			type = EXCLUDED.type,
			pinyin = EXCLUDED.pinyin,
			pinyin_short = EXCLUDED.pinyin_short,
			updated_at = now()`,
		st.Code,
		st.Name,
		StringToNullableText(st.Type),
		StringToNullableText(st.Pinyin),
		StringToNullableText(st.PinyinShort),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert stock: %w", err)
	}
	return nil
}

// Count は登録銘柄数を返します
func (r *StockRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM stocks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count stocks: %w", err)
	}
	return n, nil
}
