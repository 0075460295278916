package refresh

import "github.com/hitoshi/quotaball/internal/model"

// publish は現在の状態からスナップショットを作成し、購読者へ配信する。
// オーナーgoroutine（またはRun開始前のコンストラクタ）からのみ呼び出す。
func (s *Scheduler) publish() {
	s.version++

	snap := &model.Snapshot{
		Version:          s.version,
		Subscriptions:    s.registry.Subscriptions(),
		SelectedIndex:    s.registry.SelectedIndex(),
		LastErrorMessage: s.lastErrorMessage,
		InFlight:         s.state == StateFetching,
		Configured:       s.creds.Configured(),
		RefreshEnabled:   s.refresh.Enabled,
		IntervalSeconds:  int64(s.refresh.Interval.Seconds()),
	}
	if selected, ok := s.registry.Selected(); ok {
		snap.Selected = &selected
	}
	if s.lastError != nil {
		kind := *s.lastError
		snap.LastError = &kind
	}
	if s.lastAttemptAt != nil {
		t := *s.lastAttemptAt
		snap.LastAttemptAt = &t
	}
	if s.lastSuccessAt != nil {
		t := *s.lastSuccessAt
		snap.LastSuccessAt = &t
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	s.snapshot.Store(snap)
	for _, ch := range s.subscribers {
		// 購読者ごとに最新の1件だけを保持する
		select {
		case <-ch:
		default:
		}
		ch <- *snap
	}
}

// Snapshot は最新のスナップショットを返す。どのgoroutineからも呼び出せる。
func (s *Scheduler) Snapshot() model.Snapshot {
	return *s.snapshot.Load()
}

// Subscribe はスナップショットの配信を購読する。
// チャネルは最新の1件のみを保持し、読み遅れた古いスナップショットは破棄される。
// 購読開始時点のスナップショットがすぐに1件届く。
// 戻り値の関数で購読を解除する。解除後にチャネルはクローズされる。
func (s *Scheduler) Subscribe() (<-chan model.Snapshot, func()) {
	ch := make(chan model.Snapshot, 1)

	s.subsMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	ch <- *s.snapshot.Load()
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
	}
	return ch, cancel
}

type noopMetrics struct{}

func (noopMetrics) RecordFetchSuccess() {}
func (noopMetrics) RecordFetchFailure(model.ErrorKind) {}
func (noopMetrics) RecordTriggerCoalesced(string) {}
func (noopMetrics) SetInFlight(bool) {}
func (noopMetrics) SetSubscriptions([]model.Subscription) {}
