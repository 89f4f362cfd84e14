package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/jinford/bsp-scan/internal/core/scan"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	statusColors = map[scan.Status]*color.Color{
		scan.StatusRunning:   color.New(color.FgCyan),
		scan.StatusCompleted: color.New(color.FgGreen),
		scan.StatusCancelled: color.New(color.FgYellow),
		scan.StatusError:     color.New(color.FgRed),
	}
	buyColor  = color.New(color.FgRed)
	sellColor = color.New(color.FgGreen)
)

// colorStatus はステータスを色付きで返す
func colorStatus(s scan.Status) string {
	if c, ok := statusColors[s]; ok {
		return c.Sprint(string(s))
	}
	return string(s)
}

// direction は売買方向の表示
func direction(isBuy bool) string {
	if isBuy {
		return buyColor.Sprint("买")
	}
	return sellColor.Sprint("卖")
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(timeLayout)
}

// truncate は表示幅を抑えるため文字数で切り詰める
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func renderProgress(w io.Writer, p scan.Progress) {
	line := fmt.Sprintf("[%3d%%] %d/%d 検出:%d", p.Percent, p.ProcessedCount, p.TotalCount, p.FoundCount)
	if p.CurrentCode != "" {
		line += " 現在:" + p.CurrentCode
	}
	fmt.Fprintf(w, "%s %s\n", colorStatus(p.Status), line)
	if p.ErrorMessage != "" {
		fmt.Fprintf(w, "  エラー: %s\n", p.ErrorMessage)
	}
}

func renderResultSet(w io.Writer, rs *scan.ResultSet) {
	fmt.Fprintf(w, "\n=== スキャン結果 (%s) ===\n\n", rs.TaskID)
	fmt.Fprintf(w, "ステータス: %s  走査: %d  検出: %d  所要: %.1f秒\n\n",
		colorStatus(rs.Status), rs.TotalScanned, rs.TotalFound, rs.ElapsedSeconds)
	renderResults(w, rs.Results)
}

func renderResults(w io.Writer, items []scan.ResultItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "買売点は見つかりませんでした")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("コード", "名称", "方向", "種別", "時刻", "値", "周期")
	for _, it := range items {
		table.Append(
			it.Code,
			truncate(it.Name, 12),
			direction(it.IsBuy),
			it.BSPType,
			it.BSPTime,
			strconv.FormatFloat(it.BSPValue, 'f', 2, 64),
			string(it.KlineType),
		)
	}
	table.Render()
}

func renderTaskPage(w io.Writer, page *scan.TaskPage) {
	if len(page.Tasks) == 0 {
		fmt.Fprintln(w, "タスクがありません")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("タスクID", "ステータス", "範囲", "周期", "進捗", "検出", "作成日時")
	for _, t := range page.Tasks {
		table.Append(
			t.ID.String(),
			colorStatus(t.Status),
			string(t.Request.Pool),
			string(t.Request.KlineType),
			fmt.Sprintf("%d/%d", t.ProcessedCount, t.TotalCount),
			strconv.Itoa(t.FoundCount),
			t.CreatedAt.Format(timeLayout),
		)
	}
	table.Render()

	pages := (page.Total + page.PageSize - 1) / page.PageSize
	fmt.Fprintf(w, "\n%d / %d ページ (全 %d 件)\n", page.Page, max(pages, 1), page.Total)
}

func renderTaskDetail(w io.Writer, d *scan.TaskDetail) {
	t := d.Task
	fmt.Fprintf(w, "\n=== タスク詳細 ===\n\n")

	table := tablewriter.NewWriter(w)
	table.Header("項目", "値")
	table.Append("タスクID", t.ID.String())
	table.Append("ステータス", colorStatus(t.Status))
	table.Append("範囲", string(t.Request.Pool))
	if len(t.Request.Boards) > 0 {
		table.Append("板块", fmt.Sprint(t.Request.Boards))
	}
	if len(t.Request.Codes) > 0 {
		table.Append("銘柄", truncate(fmt.Sprint(t.Request.Codes), 60))
	}
	table.Append("周期", string(t.Request.KlineType))
	table.Append("買売点種別", fmt.Sprint(t.Request.BSPTypes))
	table.Append("期間(日)", strconv.Itoa(t.Request.TimeWindowDays))
	table.Append("K線本数", strconv.Itoa(t.Request.Limit))
	table.Append("進捗", fmt.Sprintf("%d/%d (%d%%)", t.ProcessedCount, t.TotalCount, t.Percent()))
	table.Append("検出数", strconv.Itoa(t.FoundCount))
	if t.ErrorMessage != "" {
		table.Append("エラー", t.ErrorMessage)
	}
	table.Append("作成日時", t.CreatedAt.Format(timeLayout))
	table.Append("開始日時", formatTime(t.StartedAt))
	table.Append("完了日時", formatTime(t.CompletedAt))
	table.Append("所要(秒)", strconv.FormatFloat(t.ElapsedSeconds, 'f', 1, 64))
	table.Render()

	fmt.Fprintln(w)
	renderResults(w, d.Results)
}

func renderAggregate(w io.Writer, agg *scan.Aggregate) {
	fmt.Fprintf(w, "\n=== 横断結果 (タスク %d 件 / 結果 %d 件) ===\n\n", len(agg.Tasks), len(agg.Results))
	if len(agg.Results) == 0 {
		fmt.Fprintln(w, "買売点は見つかりませんでした")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("タスクID", "コード", "名称", "方向", "種別", "時刻", "値")
	for _, r := range agg.Results {
		table.Append(
			truncate(r.TaskID.String(), 8),
			r.Code,
			truncate(r.Name, 12),
			direction(r.IsBuy),
			r.BSPType,
			r.BSPTime,
			strconv.FormatFloat(r.BSPValue, 'f', 2, 64),
		)
	}
	table.Render()
}
