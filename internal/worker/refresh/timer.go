package refresh

import "time"

// timer は更新間隔のタイマー。テストで差し替えるためにインターフェース化している。
type timer interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

type realTimer struct {
	t *time.Timer
}

func newRealTimer(d time.Duration) timer {
	return &realTimer{t: time.NewTimer(d)}
}

func (r *realTimer) C() <-chan time.Time { return r.t.C }

// Reset はGo 1.23以降のタイマー仕様に依存し、古い発火値は配送されない。
func (r *realTimer) Reset(d time.Duration) { r.t.Reset(d) }

func (r *realTimer) Stop() { r.t.Stop() }
