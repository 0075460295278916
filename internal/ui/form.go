package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hitoshi/quotaball/internal/model"
)

type formField int

const (
	fieldToken formField = iota
	fieldCookie
	fieldUserAgent
	fieldInterval
	fieldPreferred
	fieldAPIBase
	// 以下はトグル項目
	fieldRefreshEnabled
	fieldAutostart
	fieldCount
)

const textFieldCount = int(fieldRefreshEnabled)

var fieldLabels = [fieldCount]string{
	fieldToken:          "認証トークン",
	fieldCookie:         "Cookie",
	fieldUserAgent:      "User-Agent",
	fieldInterval:       "更新間隔(秒)",
	fieldPreferred:      "優先サブスクリプション名",
	fieldAPIBase:        "APIのベースURL（再起動後に反映）",
	fieldRefreshEnabled: "自動更新",
	fieldAutostart:      "ログイン時に起動",
}

type formAction int

const (
	formNone formAction = iota
	formSubmit
	formCancel
)

// settingsForm は設定画面の入力状態。
type settingsForm struct {
	inputs         [textFieldCount]textinput.Model
	refreshEnabled bool
	autostart      bool
	focus          formField
	base           model.Settings
	path           string
	err            string
}

func newSettingsForm(s model.Settings, path string) *settingsForm {
	f := &settingsForm{
		refreshEnabled: s.RefreshEnabled,
		autostart:      s.AutostartEnabled,
		base:           s,
		path:           path,
	}

	values := [textFieldCount]string{
		fieldToken:     s.AuthToken,
		fieldCookie:    s.Cookie,
		fieldUserAgent: s.UserAgent,
		fieldInterval:  strconv.FormatInt(s.RefreshIntervalSeconds, 10),
		fieldPreferred: s.PreferredSubscription,
		fieldAPIBase:   s.APIBase,
	}
	for i := range f.inputs {
		in := textinput.New()
		in.Placeholder = fieldLabels[i]
		in.CharLimit = 4096
		in.SetValue(values[i])
		f.inputs[i] = in
	}
	f.inputs[fieldToken].Placeholder = "Bearer ..."
	f.inputs[fieldToken].EchoMode = textinput.EchoPassword
	f.inputs[fieldCookie].Placeholder = "Cookieまたはcf_clearanceの値"
	f.inputs[fieldCookie].EchoMode = textinput.EchoPassword
	f.inputs[fieldInterval].CharLimit = 6

	f.setFocus(fieldToken)
	return f
}

func (f *settingsForm) setFocus(field formField) {
	f.focus = (field + fieldCount) % fieldCount
	for i := range f.inputs {
		if formField(i) == f.focus {
			f.inputs[i].Focus()
		} else {
			f.inputs[i].Blur()
		}
	}
}

func (f *settingsForm) update(msg tea.KeyMsg) (formAction, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return formCancel, nil
	case "enter":
		return formSubmit, nil
	case "tab", "down":
		f.setFocus(f.focus + 1)
		return formNone, nil
	case "shift+tab", "up":
		f.setFocus(f.focus - 1)
		return formNone, nil
	}

	switch f.focus {
	case fieldRefreshEnabled:
		if msg.String() == " " {
			f.refreshEnabled = !f.refreshEnabled
		}
		return formNone, nil
	case fieldAutostart:
		if msg.String() == " " {
			f.autostart = !f.autostart
		}
		return formNone, nil
	}

	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return formNone, cmd
}

// result は入力内容から確定する設定を組み立てる。
// ウィンドウ位置など画面に無い項目は元の値を引き継ぐ。
func (f *settingsForm) result() (model.Settings, error) {
	raw := strings.TrimSpace(f.inputs[fieldInterval].Value())
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return model.Settings{}, model.NewInvalidRequestError(fmt.Sprintf("更新間隔は整数で入力してください: %q", raw))
	}
	if err := model.ValidateRefreshInterval(time.Duration(seconds) * time.Second); err != nil {
		return model.Settings{}, model.NewInvalidRefreshIntervalError(seconds)
	}

	s := f.base
	s.AuthToken = strings.TrimSpace(f.inputs[fieldToken].Value())
	s.Cookie = strings.TrimSpace(f.inputs[fieldCookie].Value())
	s.UserAgent = strings.TrimSpace(f.inputs[fieldUserAgent].Value())
	s.RefreshIntervalSeconds = seconds
	s.PreferredSubscription = strings.TrimSpace(f.inputs[fieldPreferred].Value())
	s.APIBase = strings.TrimSpace(f.inputs[fieldAPIBase].Value())
	s.RefreshEnabled = f.refreshEnabled
	s.AutostartEnabled = f.autostart
	return s, nil
}

func (f *settingsForm) view() string {
	var b strings.Builder

	b.WriteString(formTitleStyle.Render("設定"))
	b.WriteString("\n")
	if f.path != "" {
		b.WriteString(helpStyle.Render("設定ファイル: " + f.path))
		b.WriteString("\n\n")
	}

	for i := fieldToken; i < fieldCount; i++ {
		label := labelStyle.Render(fieldLabels[i])
		if i == f.focus {
			label = focusedLabelStyle.Render("> " + fieldLabels[i])
		}
		b.WriteString(label)
		b.WriteString("\n")

		switch i {
		case fieldRefreshEnabled:
			b.WriteString(checkbox(f.refreshEnabled))
		case fieldAutostart:
			b.WriteString(checkbox(f.autostart))
		default:
			b.WriteString(f.inputs[i].View())
		}
		b.WriteString("\n")
	}

	if f.err != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(f.err))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab/↑↓: 移動  space: 切り替え  enter: 保存  esc: キャンセル"))
	return b.String()
}

func checkbox(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}
