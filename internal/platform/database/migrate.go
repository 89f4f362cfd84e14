package database

import (
	"context"

	"github.com/jinford/bsp-scan/internal/core/scan"
	"github.com/jinford/bsp-scan/internal/infra/postgres"
)

var (
	migrateLockID     = LockID("bsp-scan", "schema")
	stockImportLockID = LockID("bsp-scan", "stocks")
)

// Migrate はスキーマを適用します。複数プロセスから同時に呼ばれても直列化されます
func Migrate(ctx context.Context, p *TransactionProvider) error {
	_, err := Transact(ctx, p, func(a *Adapter) (struct{}, error) {
		if err := a.Locks.Acquire(ctx, migrateLockID); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, postgres.EnsureSchema(ctx, a.Tx)
	})
	return err
}

// ImportStocks は銘柄を1トランザクションで一括 upsert し、件数を返します
func ImportStocks(ctx context.Context, p *TransactionProvider, stocks []scan.Stock) (int, error) {
	return Transact(ctx, p, func(a *Adapter) (int, error) {
		if err := a.Locks.Acquire(ctx, stockImportLockID); err != nil {
			return 0, err
		}
		for _, st := range stocks {
			if err := a.Stocks.Upsert(ctx, st); err != nil {
				return 0, err
			}
		}
		return len(stocks), nil
	})
}
