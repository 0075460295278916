// Package registry はサブスクリプション一覧と選択状態を保持する。
// 更新スケジューラのオーナーgoroutineからのみ変更される前提で、内部ロックは持たない。
package registry

import (
	"strings"

	"github.com/hitoshi/quotaball/internal/model"
)

// NoSelection は一覧が空で選択が存在しないことを示す番兵値。
const NoSelection = -1

// Registry はサブスクリプション一覧と選択中インデックスを保持する。
// 一覧が空でない間は 0 <= selected < len(subs) を常に満たす。
type Registry struct {
	subs        []model.Subscription
	selected    int
	hasSelected bool
}

// New は空のRegistryを生成する。
func New() *Registry {
	return &Registry{selected: NoSelection}
}

// Len はサブスクリプション数を返す。
func (r *Registry) Len() int {
	return len(r.subs)
}

// SelectedIndex は選択中インデックスを返す。一覧が空の場合はNoSelection。
func (r *Registry) SelectedIndex() int {
	return r.selected
}

// Selected は選択中のサブスクリプションを返す。
func (r *Registry) Selected() (model.Subscription, bool) {
	if r.selected < 0 || r.selected >= len(r.subs) {
		return model.Subscription{}, false
	}
	return r.subs[r.selected], true
}

// Subscriptions は一覧のコピーを返す。
func (r *Registry) Subscriptions() []model.Subscription {
	out := make([]model.Subscription, len(r.subs))
	copy(out, r.subs)
	return out
}

// Switch は選択中インデックスをdeltaだけ進める。両方向に循環する。
// 一覧が空またはdeltaが0の場合は何もせずfalseを返す。
func (r *Registry) Switch(delta int) bool {
	n := len(r.subs)
	if n == 0 || delta == 0 {
		return false
	}
	current := r.selected
	if current < 0 {
		current = 0
	}
	next := ((current+delta)%n + n) % n
	r.selected = next
	r.hasSelected = true
	return true
}

// Replace はフェッチ結果で一覧を置き換え、選択をIDで引き継ぐ。
// 以前の選択IDが新しい一覧に無い場合は0、一覧が空の場合はNoSelectionになる。
// 一度も選択が無い初回ロードではpreferredNameで初期選択を決める。
func (r *Registry) Replace(subs []model.Subscription, preferredName string) {
	prev, hadPrev := r.Selected()

	next := make([]model.Subscription, len(subs))
	copy(next, subs)
	r.subs = next

	switch {
	case len(next) == 0:
		r.selected = NoSelection
	case hadPrev || r.hasSelected:
		r.selected = SelectionIndex(prev.ID, next)
	default:
		r.selected = PreferredIndex(next, preferredName)
	}

	if r.selected != NoSelection {
		r.hasSelected = true
	}
}

// SelectionIndex は以前の選択IDと新しい一覧から新しい選択インデックスを求める。
// IDが見つかればその位置、見つからなければ0、一覧が空ならNoSelectionを返す。
func SelectionIndex(prevID string, subs []model.Subscription) int {
	if len(subs) == 0 {
		return NoSelection
	}
	if prevID != "" {
		for i, s := range subs {
			if s.ID == prevID {
				return i
			}
		}
	}
	return 0
}

// PreferredIndex は初回ロード時の選択インデックスを求める。
// 名前が一致し残量があるものを優先し、無ければ合計が正のうち残量が最大のものを選ぶ。
func PreferredIndex(subs []model.Subscription, preferredName string) int {
	if len(subs) == 0 {
		return NoSelection
	}

	name := strings.TrimSpace(preferredName)
	if name != "" {
		for i, s := range subs {
			if strings.TrimSpace(s.DisplayName) == name && s.QuotaRemaining > 0 {
				return i
			}
		}
	}

	best := -1
	for i, s := range subs {
		if s.QuotaTotal <= 0 {
			continue
		}
		if best < 0 || s.QuotaRemaining > subs[best].QuotaRemaining {
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return best
}
