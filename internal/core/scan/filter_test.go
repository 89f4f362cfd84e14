package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var filterNow = time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

func TestFilterBuyPoints_Empty(t *testing.T) {
	signals, stats := FilterBuyPoints(nil, []string{"1"}, 3, filterNow)

	assert.Empty(t, signals)
	assert.Equal(t, FilterStats{}, stats)
}

func TestFilterBuyPoints_CanonicalTag(t *testing.T) {
	point := pointAt(filterNow, time.Hour, "2", "3a")

	tests := []struct {
		name     string
		accepted []string
		wantTag  string
		wantKept bool
	}{
		{"受理順で最初に一致したタグを選ぶ", []string{"3a", "2"}, "3a", true},
		{"逆順なら2を選ぶ", []string{"2", "3a"}, "2", true},
		{"一部だけ一致", []string{"1", "2"}, "2", true},
		{"一致しなければ除外", []string{"1"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals, stats := FilterBuyPoints([]DecisionPoint{point}, tt.accepted, 3, filterNow)
			if !tt.wantKept {
				assert.Empty(t, signals)
				assert.Equal(t, 1, stats.TypeMismatch)
				return
			}
			require.Len(t, signals, 1)
			assert.Equal(t, tt.wantTag, signals[0].Type)
			assert.Equal(t, point.Time, signals[0].Time)
			assert.Equal(t, point.Value, signals[0].Value)
		})
	}
}

func TestFilterBuyPoints_WindowBoundary(t *testing.T) {
	// 分単位の書式なので境界は分に揃える
	window := 3
	boundary := filterNow.Add(-time.Duration(window) * 24 * time.Hour)

	atBoundary := DecisionPoint{IsBuy: true, Tags: []string{"1"}, Time: boundary.Format(PointTimeLayout)}
	justBefore := DecisionPoint{IsBuy: true, Tags: []string{"1"}, Time: boundary.Add(-time.Minute).Format(PointTimeLayout)}

	signals, stats := FilterBuyPoints([]DecisionPoint{atBoundary, justBefore}, []string{"1"}, window, filterNow)

	require.Len(t, signals, 1)
	assert.Equal(t, atBoundary.Time, signals[0].Time)
	assert.Equal(t, 1, stats.TimeOld)
}

func TestFilterBuyPoints_WindowBoundarySeconds(t *testing.T) {
	// now が秒を持つとき、境界の1秒前は除外される
	now := filterNow.Add(1 * time.Second)
	p := DecisionPoint{IsBuy: true, Tags: []string{"1"}, Time: now.Add(-72 * time.Hour).Format(PointTimeLayout)}

	signals, stats := FilterBuyPoints([]DecisionPoint{p}, []string{"1"}, 3, now)

	assert.Empty(t, signals)
	assert.Equal(t, 1, stats.TimeOld)
}

func TestFilterBuyPoints_ZeroWindowKeepsSameDay(t *testing.T) {
	morning := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	yesterday := morning.Add(-time.Minute)

	points := []DecisionPoint{
		{IsBuy: true, Tags: []string{"1"}, Time: morning.Format(PointTimeLayout)},
		{IsBuy: true, Tags: []string{"1"}, Time: yesterday.Format(PointTimeLayout)},
	}

	signals, stats := FilterBuyPoints(points, []string{"1"}, 0, filterNow)

	require.Len(t, signals, 1)
	assert.Equal(t, "2025/03/14 00:00", signals[0].Time)
	assert.Equal(t, 1, stats.TimeOld)
}

func TestFilterBuyPoints_DropReasons(t *testing.T) {
	points := []DecisionPoint{
		{IsBuy: false, Tags: []string{"1"}, Time: "2025/03/14 10:00"},
		{IsBuy: true, Tags: []string{"3b"}, Time: "2025/03/14 10:00"},
		{IsBuy: true, Tags: []string{"1"}, Time: "2025-03-14"},
		{IsBuy: true, Tags: []string{"1"}, Time: "2024/01/01 10:00"},
		{IsBuy: true, Tags: []string{"1"}, Time: "2025/03/13 09:30", Value: 7.25},
	}

	signals, stats := FilterBuyPoints(points, []string{"1"}, 3, filterNow)

	require.Len(t, signals, 1)
	assert.Equal(t, Signal{Type: "1", Time: "2025/03/13 09:30", Value: 7.25}, signals[0])
	assert.Equal(t, FilterStats{NotBuy: 1, TypeMismatch: 1, TimeOld: 1, ParseError: 1, Kept: 1}, stats)
}
