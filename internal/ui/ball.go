package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/hitoshi/quotaball/internal/model"
)

const (
	// cellsPerUnit はボールのサイズ1単位あたりの端末セル数。
	cellsPerUnit = 1.0 / 6.0
	// fetchingText はフェッチ中に残量の代わりに表示する文字列。
	fetchingText = "..."
)

// ballStatus はボールの枠の色を決める状態。
type ballStatus int

const (
	ballIdle ballStatus = iota
	ballFetching
	ballError
)

// ballDisplay はボール1つ分の表示内容。
type ballDisplay struct {
	title  string
	value  string
	ratio  float64
	status ballStatus
	// problem はエラー表示用のメッセージ。エラーが無い場合は空。
	problem string
}

// displayFor はスナップショットからボールの表示内容を求める。
func displayFor(snap model.Snapshot) ballDisplay {
	var d ballDisplay

	switch {
	case !snap.Configured:
		d.title = "未設定"
		d.value = "sで設定"
	case snap.Selected != nil:
		d.title = snap.Selected.DisplayName
		if d.title == "" {
			d.title = snap.Selected.ID
		}
		d.value = fmt.Sprintf("%.2f", snap.Selected.DisplayRemaining())
		d.ratio = snap.Selected.RemainingRatio()
	default:
		d.title = "サブスクリプションなし"
		d.value = "0.00"
	}

	if snap.InFlight {
		d.value = fetchingText
	}

	switch {
	case snap.InFlight:
		d.status = ballFetching
	case snap.LastError != nil:
		d.status = ballError
	}
	if snap.LastError != nil {
		d.problem = model.NewErrorForKind(*snap.LastError).Message
	}
	return d
}

// ballWidth はボールのサイズから枠の内側の幅（セル数）を求める。
func ballWidth(size float64) int {
	return int(model.ClampBallSize(size) * cellsPerUnit)
}

// renderBall はボールを描画する。
func renderBall(d ballDisplay, size float64) string {
	width := ballWidth(size)

	bar := progress.New(
		progress.WithSolidFill(string(colorFor(d.status))),
		progress.WithoutPercentage(),
		progress.WithWidth(width),
	)

	lines := []string{
		titleStyle.Render(truncate(d.title, width)),
		valueStyle.Render(d.value),
		bar.ViewAs(d.ratio),
	}
	if d.problem != "" {
		lines = append(lines, errorStyle.Render("! "+truncate(d.problem, width-2)))
	}

	return ballStyle.
		Width(width + 2).
		BorderForeground(colorFor(d.status)).
		Render(strings.Join(lines, "\n"))
}

func colorFor(s ballStatus) lipgloss.Color {
	switch s {
	case ballFetching:
		return fetchingColor
	case ballError:
		return errorColor
	default:
		return idleColor
	}
}

// truncate は表示幅がwidthを超える文字列を省略する。
func truncate(s string, width int) string {
	if width <= 1 || lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
