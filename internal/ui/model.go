// Package ui は端末上にクォータのボールを表示するプレゼンテーション層を提供する。
//
// UIはコアの状態を直接変更しない。操作はスケジューラへのインテントとして送り、
// 表示はスケジューラが公開するスナップショットのみから組み立てる。
package ui

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hitoshi/quotaball/internal/model"
)

const (
	// resizeStep は +/- キー1回あたりのサイズ変化量。
	resizeStep = 10.0
	// dragScale はドラッグ量1セルあたりのサイズ変化量。
	dragScale = 6.0
)

// Scheduler はUIが使用する更新スケジューラの操作。
type Scheduler interface {
	Snapshot() model.Snapshot
	RequestRefresh(ctx context.Context) (bool, error)
	SwitchNext(ctx context.Context) error
	SwitchPrev(ctx context.Context) error
	SetPaused(ctx context.Context, paused bool) error
}

// SettingsService はUIが使用する設定の確定処理。
type SettingsService interface {
	Current() model.Settings
	Commit(ctx context.Context, next model.Settings) (model.Settings, error)
	SaveWindow(geometry model.WindowGeometry) error
}

// snapshotMsg はスケジューラが新しいスナップショットを公開したことを表す。
type snapshotMsg model.Snapshot

// errMsg はインテントの送信や設定の保存に失敗したことを表す。
type errMsg struct{ err error }

// settingsCommittedMsg は設定の確定が完了したことを表す。
type settingsCommittedMsg struct {
	settings model.Settings
	err      error
}

// dragState はコーナーのドラッグによるリサイズの状態。
type dragState struct {
	active bool
	x, y   int
}

// Model はbubbletea.Modelを実装するボールの表示モデル。
type Model struct {
	ctx          context.Context
	scheduler    Scheduler
	settings     SettingsService
	updates      <-chan model.Snapshot
	settingsPath string
	logger       *slog.Logger

	snapshot model.Snapshot
	size     float64
	window   model.WindowGeometry
	form     *settingsForm
	drag     dragState
	notice   string
	width    int
	height   int
}

// NewModel はModelを生成する。updatesはスケジューラのSubscribeで得たチャネル。
func NewModel(
	ctx context.Context,
	scheduler Scheduler,
	settings SettingsService,
	updates <-chan model.Snapshot,
	settingsPath string,
	logger *slog.Logger,
) Model {
	current := settings.Current()
	return Model{
		ctx:          ctx,
		scheduler:    scheduler,
		settings:     settings,
		updates:      updates,
		settingsPath: settingsPath,
		logger:       logger,
		snapshot:     scheduler.Snapshot(),
		size:         model.ClampBallSize(current.Window.Size),
		window:       current.Window,
	}
}

// Init は最初のスナップショット待ちを開始する。
func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.updates)
}

// Update はメッセージに応じてモデルを更新する。
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case snapshotMsg:
		m.snapshot = model.Snapshot(msg)
		return m, waitForSnapshot(m.updates)

	case errMsg:
		m.notice = describeError(msg.err)
		m.logger.Warn("操作に失敗しました", slog.String("error", msg.err.Error()))
		return m, nil

	case settingsCommittedMsg:
		if msg.err != nil {
			if m.form != nil {
				m.form.err = describeError(msg.err)
			}
			return m, nil
		}
		m.form = nil
		m.notice = ""
		m.size = model.ClampBallSize(msg.settings.Window.Size)
		m.window = msg.settings.Window
		return m, m.pauseCmd(false)

	case tea.KeyMsg:
		if m.form != nil {
			return m.updateForm(msg)
		}
		return m.handleKey(msg)

	case tea.MouseMsg:
		if m.form != nil {
			return m, nil
		}
		return m.handleMouse(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.persistWindow()
		return m, tea.Quit
	case "r":
		return m, m.refreshCmd()
	case "n", "right", "l":
		return m, m.switchCmd(1)
	case "p", "left", "h":
		return m, m.switchCmd(-1)
	case "+", "=":
		m.resizeTo(m.size + resizeStep)
		return m, nil
	case "-":
		m.resizeTo(m.size - resizeStep)
		return m, nil
	case "s":
		m.form = newSettingsForm(m.settings.Current(), m.settingsPath)
		m.notice = ""
		return m, m.pauseCmd(true)
	}
	return m, nil
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.persistWindow()
		return m, tea.Quit
	}

	action, cmd := m.form.update(msg)
	switch action {
	case formCancel:
		m.form = nil
		return m, m.pauseCmd(false)
	case formSubmit:
		next, err := m.form.result()
		if err != nil {
			m.form.err = describeError(err)
			return m, nil
		}
		next.Window = m.geometry()
		return m, m.commitCmd(next)
	}
	return m, cmd
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Button == tea.MouseButtonWheelUp && msg.Action == tea.MouseActionPress:
		return m, m.switchCmd(-1)
	case msg.Button == tea.MouseButtonWheelDown && msg.Action == tea.MouseActionPress:
		return m, m.switchCmd(1)
	case msg.Button == tea.MouseButtonRight && msg.Action == tea.MouseActionPress:
		return m, m.refreshCmd()
	case msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress:
		m.drag = dragState{active: true, x: msg.X, y: msg.Y}
	case msg.Action == tea.MouseActionMotion && m.drag.active:
		dx := float64(msg.X-m.drag.x) * dragScale
		dy := float64(msg.Y-m.drag.y) * dragScale
		if next, changed := model.ResizeBall(m.size, dx, dy); changed {
			m.size = next
			m.drag.x, m.drag.y = msg.X, msg.Y
		}
	case msg.Action == tea.MouseActionRelease && m.drag.active:
		m.drag = dragState{}
		m.persistWindow()
	}
	return m, nil
}

func (m *Model) resizeTo(size float64) {
	m.size = model.ClampBallSize(size)
}

func (m Model) geometry() model.WindowGeometry {
	g := m.window
	g.Size = m.size
	return g
}

// persistWindow はボールのサイズを保存する。失敗はログに記録するのみ。
func (m *Model) persistWindow() {
	g := m.geometry()
	if err := m.settings.SaveWindow(g); err != nil {
		m.logger.Warn("ウィンドウ位置の保存に失敗しました", slog.String("error", err.Error()))
		return
	}
	m.window = g
}

// View はボールまたは設定画面を描画する。
func (m Model) View() string {
	if m.form != nil {
		return m.form.view()
	}

	var b strings.Builder
	b.WriteString(renderBall(displayFor(m.snapshot), m.size))
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(errorStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("r: 更新  n/p: 切替  +/-: サイズ  s: 設定  q: 終了"))
	return b.String()
}

func waitForSnapshot(updates <-chan model.Snapshot) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func (m Model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		if _, err := m.scheduler.RequestRefresh(m.ctx); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m Model) switchCmd(delta int) tea.Cmd {
	return func() tea.Msg {
		var err error
		if delta > 0 {
			err = m.scheduler.SwitchNext(m.ctx)
		} else {
			err = m.scheduler.SwitchPrev(m.ctx)
		}
		if err != nil {
			return errMsg{err}
		}
		return nil
	}
}

// pauseCmd は設定画面の表示中に自動更新を止める。
func (m Model) pauseCmd(paused bool) tea.Cmd {
	return func() tea.Msg {
		if err := m.scheduler.SetPaused(m.ctx, paused); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m Model) commitCmd(next model.Settings) tea.Cmd {
	return func() tea.Msg {
		saved, err := m.settings.Commit(m.ctx, next)
		return settingsCommittedMsg{settings: saved, err: err}
	}
}

// describeError はエラーを画面表示用の文字列にする。
func describeError(err error) string {
	var displayErr *model.DisplayError
	if errors.As(err, &displayErr) {
		return displayErr.Message + " " + displayErr.Action
	}
	if errors.Is(err, model.ErrIntervalTooShort) {
		d := model.NewInvalidRefreshIntervalError(0)
		return d.Action
	}
	if errors.Is(err, model.ErrSchedulerStopped) {
		return model.NewSchedulerStoppedError().Message
	}
	return err.Error()
}
