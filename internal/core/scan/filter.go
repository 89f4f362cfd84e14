package scan

import (
	"slices"
	"time"
)

// PointTimeLayout は売買ポイント時刻の書式
const PointTimeLayout = "2006/01/02 15:04"

// Signal はフィルタを通過した買点
type Signal struct {
	Type  string // 正規化済みタグ
	Time  string
	Value float64
}

// FilterStats は除外理由ごとの件数
type FilterStats struct {
	NotBuy       int
	TypeMismatch int
	TimeOld      int
	ParseError   int
	Kept         int
}

// FilterBuyPoints は買点のうちタイプと期間の条件を満たすものだけを返す。
//
// 複数タグを持つポイントは accepted の並び順で最初に一致したタグに正規化する。
// 下限 now - windowDays は含む。windowDays が 0 のときは当日0時を下限とする。
// 時刻を解析できないポイントは除外するだけでエラーにはしない。
func FilterBuyPoints(points []DecisionPoint, accepted []string, windowDays int, now time.Time) ([]Signal, FilterStats) {
	var stats FilterStats
	if len(points) == 0 {
		return nil, stats
	}

	cutoff := filterCutoff(now, windowDays)
	signals := make([]Signal, 0, len(points))

	for _, p := range points {
		if !p.IsBuy {
			stats.NotBuy++
			continue
		}

		tag, ok := canonicalTag(p.Tags, accepted)
		if !ok {
			stats.TypeMismatch++
			continue
		}

		t, err := time.ParseInLocation(PointTimeLayout, p.Time, now.Location())
		if err != nil {
			stats.ParseError++
			continue
		}
		if t.Before(cutoff) {
			stats.TimeOld++
			continue
		}

		signals = append(signals, Signal{Type: tag, Time: p.Time, Value: p.Value})
	}

	stats.Kept = len(signals)
	return signals, stats
}

func filterCutoff(now time.Time, windowDays int) time.Time {
	if windowDays == 0 {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	}
	return now.Add(-time.Duration(windowDays) * 24 * time.Hour)
}

func canonicalTag(tags, accepted []string) (string, bool) {
	for _, a := range accepted {
		if slices.Contains(tags, a) {
			return a, true
		}
	}
	return "", false
}
