package scan

import (
	"context"
	"log/slog"
	"strings"
)

// Board は市場区分
type Board string

const (
	BoardSHMain Board = "sh_main" // 沪市主板
	BoardSZMain Board = "sz_main" // 深市主板
	BoardCYB    Board = "cyb"     // 创业板
	BoardKCB    Board = "kcb"     // 科创板
	BoardBJ     Board = "bj"      // 北交所
	BoardETF    Board = "etf"
)

// BoardPrefixes は区分ごとのコード接頭辞
var BoardPrefixes = map[Board][]string{
	BoardSHMain: {"sh.60"},
	BoardSZMain: {"sz.00"},
	BoardCYB:    {"sz.30"},
	BoardKCB:    {"sh.688"},
	BoardBJ:     {"bj."},
	BoardETF:    {"sh.51", "sh.56", "sh.58", "sz.15", "sz.16", "sz.18"},
}

// MatchesBoard はコードが区分の接頭辞に一致するかを返す
func MatchesBoard(code string, board Board) bool {
	for _, prefix := range BoardPrefixes[board] {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}

// Resolver はプール指定を銘柄コードの一覧に解決する
type Resolver struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewResolver は新しい Resolver を作成する
func NewResolver(catalog Catalog, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{catalog: catalog, logger: logger}
}

// Resolve はプール指定から重複のないコード一覧を返す。
// カタログが利用できない場合は空の一覧を返す。
func (r *Resolver) Resolve(ctx context.Context, pool PoolSelector, boards []string, codes []string) []string {
	switch pool {
	case PoolExplicit:
		return dedupe(codes)
	case PoolByBoard, PoolAll:
	default:
		r.logger.Warn("未知の銘柄プール指定です", "pool", pool)
		return nil
	}

	stocks, err := r.catalog.ListStocks(ctx)
	if err != nil {
		r.logger.Error("銘柄一覧の取得に失敗しました", "error", err)
		return nil
	}

	all := make([]string, 0, len(stocks))
	for _, s := range stocks {
		all = append(all, s.Code)
	}
	if pool == PoolAll {
		return dedupe(all)
	}

	matched := make([]string, 0, len(all))
	for _, code := range all {
		for _, b := range boards {
			if MatchesBoard(code, Board(b)) {
				matched = append(matched, code)
				break
			}
		}
	}
	return dedupe(matched)
}

func dedupe(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
