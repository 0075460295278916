// Package refresh はクォータ情報の定期更新を行うステートマシンを提供する。
//
// 状態の変更は全てRunを実行する1つのオーナーgoroutineで行う。
// 外部からの操作（手動更新、切り替え、設定変更）はチャネル経由のインテントとして届き、
// ネットワークフェッチは別goroutineで実行されて結果がチャネルでオーナーに戻る。
// フェッチ中は新しいフェッチを開始しないため、同時に実行中のフェッチは常に1つ以下になる。
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/quotaball/internal/model"
	"github.com/hitoshi/quotaball/internal/registry"
)

const (
	// defaultFetchTimeout はフェッチ1回あたりの待ち時間の上限。
	defaultFetchTimeout = 15 * time.Second
	// intentQueueSize はRun開始前に受け付けるインテント数。
	intentQueueSize = 16
)

var (
	// ErrAlreadyRunning はRunが二重に呼ばれた場合のエラー。
	ErrAlreadyRunning = errors.New("refresh scheduler is already running")
)

// QuotaFetcher はクォータ情報のフェッチを行うインターフェース。
type QuotaFetcher interface {
	Fetch(ctx context.Context, creds model.Credentials) model.FetchOutcome
}

// MetricsRecorder は更新サイクルのメトリクスを記録するインターフェース。
type MetricsRecorder interface {
	RecordFetchSuccess()
	RecordFetchFailure(kind model.ErrorKind)
	RecordTriggerCoalesced(trigger string)
	SetInFlight(inFlight bool)
	SetSubscriptions(subs []model.Subscription)
}

// State はスケジューラの状態。
type State int

const (
	// StateIdle はフェッチが実行されていない状態。
	StateIdle State = iota
	// StateFetching はフェッチが実行中の状態。
	StateFetching
)

// String は状態名を返す。
func (s State) String() string {
	if s == StateFetching {
		return "fetching"
	}
	return "idle"
}

// Trigger はフェッチを開始したきっかけ。
type Trigger string

const (
	TriggerStartup     Trigger = "startup"
	TriggerTick        Trigger = "tick"
	TriggerManual      Trigger = "manual"
	TriggerCredentials Trigger = "credentials"
)

// Options はスケジューラの初期状態。
type Options struct {
	Credentials           model.Credentials
	Refresh               model.RefreshConfig
	PreferredSubscription string
	// FetchTimeout はフェッチ1回の上限時間。0以下の場合は15秒。
	FetchTimeout time.Duration
}

type intentKind int

const (
	intentRefresh intentKind = iota
	intentSwitch
	intentUpdateInterval
	intentUpdateRefresh
	intentUpdateCredentials
	intentSetPreferred
	intentSetPaused
)

type intent struct {
	kind    intentKind
	delta   int
	refresh model.RefreshConfig
	creds   model.Credentials
	name    string
	paused  bool
	reply   chan bool
}

type fetchResult struct {
	attempt  uint64
	trigger  Trigger
	outcome  model.FetchOutcome
	duration time.Duration
}

// Scheduler はクォータ情報の更新を管理するステートマシン。
type Scheduler struct {
	fetcher      QuotaFetcher
	logger       *slog.Logger
	metrics      MetricsRecorder
	fetchTimeout time.Duration
	newTimer     func(d time.Duration) timer
	now          func() time.Time

	intents chan intent
	results chan fetchResult
	done    chan struct{}
	running atomic.Bool

	// 以下はオーナーgoroutineのみが変更する
	state            State
	registry         *registry.Registry
	creds            model.Credentials
	refresh          model.RefreshConfig
	preferred        string
	paused           bool
	attempts         uint64
	lastAttemptAt    *time.Time
	lastSuccessAt    *time.Time
	lastError        *model.ErrorKind
	lastErrorMessage string
	version          uint64

	snapshot    atomic.Pointer[model.Snapshot]
	subsMu      sync.Mutex
	subscribers map[int]chan model.Snapshot
	nextSubID   int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// metricsはnilでもよい。
func NewScheduler(
	fetcher QuotaFetcher,
	logger *slog.Logger,
	metrics MetricsRecorder,
	opts Options,
) *Scheduler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}

	s := &Scheduler{
		fetcher:      fetcher,
		logger:       logger,
		metrics:      metrics,
		fetchTimeout: fetchTimeout,
		newTimer:     newRealTimer,
		now:          time.Now,
		intents:      make(chan intent, intentQueueSize),
		results:      make(chan fetchResult, 1),
		done:         make(chan struct{}),
		state:        StateIdle,
		registry:     registry.New(),
		creds:        opts.Credentials,
		refresh:      opts.Refresh.Normalized(),
		preferred:    opts.PreferredSubscription,
		subscribers:  make(map[int]chan model.Snapshot),
	}
	s.publish()
	return s
}

// Run はコンテキストがキャンセルされるまでステートマシンを実行する。
// 起動直後に1回フェッチし、その後は設定された間隔でフェッチする。
// 実行中のフェッチはキャンセル時に破棄される。
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.done)

	t := s.newTimer(s.refresh.Interval)
	defer t.Stop()

	s.logger.Info("更新スケジューラを開始しました",
		slog.Duration("interval", s.refresh.Interval),
		slog.Bool("refresh_enabled", s.refresh.Enabled),
		slog.Bool("configured", s.creds.Configured()),
	)

	// 起動直後に1回実行
	s.trigger(ctx, TriggerStartup)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("更新スケジューラを停止しました",
				slog.String("state", s.state.String()),
			)
			return nil

		case <-t.C():
			// 次のティックは常に最新の間隔で再設定する
			t.Reset(s.refresh.Interval)
			if !s.refresh.Enabled || s.paused {
				s.logger.Debug("自動更新が無効のためティックをスキップします",
					slog.Bool("refresh_enabled", s.refresh.Enabled),
					slog.Bool("paused", s.paused),
				)
				continue
			}
			s.trigger(ctx, TriggerTick)

		case in := <-s.intents:
			in.reply <- s.handle(ctx, in, t)

		case res := <-s.results:
			s.complete(res)
		}
	}
}

// handle はインテントを適用する。戻り値は呼び出し元への応答。
func (s *Scheduler) handle(ctx context.Context, in intent, t timer) bool {
	switch in.kind {
	case intentRefresh:
		started := s.trigger(ctx, TriggerManual)
		if started {
			// 手動更新でカウントダウンをリセットし、間隔が詰まらないようにする
			t.Reset(s.refresh.Interval)
		}
		return started

	case intentSwitch:
		if !s.registry.Switch(in.delta) {
			return false
		}
		selected, _ := s.registry.Selected()
		s.logger.Debug("サブスクリプションを切り替えました",
			slog.String("subscription_id", selected.ID),
			slog.Int("selected_index", s.registry.SelectedIndex()),
		)
		s.publish()
		return true

	case intentUpdateInterval:
		s.refresh.Interval = in.refresh.Interval
		s.logger.Info("更新間隔を変更しました", slog.Duration("interval", s.refresh.Interval))
		s.publish()
		return true

	case intentUpdateRefresh:
		s.refresh = in.refresh.Normalized()
		s.logger.Info("更新設定を変更しました",
			slog.Duration("interval", s.refresh.Interval),
			slog.Bool("refresh_enabled", s.refresh.Enabled),
		)
		s.publish()
		return true

	case intentUpdateCredentials:
		changed := in.creds != s.creds
		s.creds = in.creds
		s.logger.Info("認証情報を更新しました",
			slog.Any("credentials", s.creds),
			slog.Bool("changed", changed),
		)
		s.publish()
		if changed && s.trigger(ctx, TriggerCredentials) {
			t.Reset(s.refresh.Interval)
		}
		return true

	case intentSetPreferred:
		s.preferred = in.name
		return true

	case intentSetPaused:
		s.paused = in.paused
		s.logger.Debug("自動更新の一時停止状態を変更しました", slog.Bool("paused", s.paused))
		return true
	}
	return false
}

// trigger はIdleであればフェッチを開始する。
// フェッチ中または認証情報が未設定の場合は何もせずfalseを返す。
func (s *Scheduler) trigger(ctx context.Context, trig Trigger) bool {
	if s.state == StateFetching {
		s.logger.Debug("フェッチ中のため更新要求を統合しました",
			slog.String("trigger", string(trig)),
		)
		s.metrics.RecordTriggerCoalesced(string(trig))
		return false
	}
	if !s.creds.Configured() {
		s.logger.Info("認証情報が未設定のため更新をスキップします",
			slog.String("trigger", string(trig)),
		)
		return false
	}

	s.state = StateFetching
	s.attempts++
	now := s.now()
	s.lastAttemptAt = &now
	s.metrics.SetInFlight(true)
	s.publish()

	s.logger.Info("クォータ情報のフェッチを開始します",
		slog.Uint64("attempt", s.attempts),
		slog.String("trigger", string(trig)),
	)

	go s.runFetch(ctx, s.attempts, trig, s.creds)
	return true
}

// runFetch はフェッチを実行し、結果をオーナーgoroutineに送る。
func (s *Scheduler) runFetch(ctx context.Context, attempt uint64, trig Trigger, creds model.Credentials) {
	fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	start := time.Now()
	outcome := s.fetchSafely(fctx, creds)

	select {
	case s.results <- fetchResult{
		attempt:  attempt,
		trigger:  trig,
		outcome:  outcome,
		duration: time.Since(start),
	}:
	case <-ctx.Done():
	}
}

// fetchSafely はフェッチャーのpanicをネットワークエラーとして扱う。
func (s *Scheduler) fetchSafely(ctx context.Context, creds model.Credentials) (outcome model.FetchOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("フェッチ中にpanicが発生しました", slog.Any("panic", rec))
			outcome = model.Failure(model.ErrorKindNetwork, fmt.Errorf("fetch panicked: %v", rec))
		}
	}()
	return s.fetcher.Fetch(ctx, creds)
}

// complete はフェッチ結果を状態に反映する。
// 失敗時は一覧と選択を変更せず、last_errorのみを更新する。
func (s *Scheduler) complete(res fetchResult) {
	s.state = StateIdle
	s.metrics.SetInFlight(false)

	if res.outcome.OK() {
		s.registry.Replace(res.outcome.Subscriptions, s.preferred)
		now := s.now()
		s.lastSuccessAt = &now
		s.lastError = nil
		s.lastErrorMessage = ""
		s.metrics.RecordFetchSuccess()
		s.metrics.SetSubscriptions(s.registry.Subscriptions())

		selected, _ := s.registry.Selected()
		s.logger.Info("クォータ情報を更新しました",
			slog.Uint64("attempt", res.attempt),
			slog.String("trigger", string(res.trigger)),
			slog.Int("subscription_count", s.registry.Len()),
			slog.String("selected_id", selected.ID),
			slog.Float64("duration_ms", float64(res.duration.Milliseconds())),
		)
	} else {
		kind := res.outcome.Kind
		s.lastError = &kind
		s.lastErrorMessage = ""
		if res.outcome.Err != nil {
			s.lastErrorMessage = res.outcome.Err.Error()
		}
		s.metrics.RecordFetchFailure(kind)

		s.logger.Warn("クォータ情報のフェッチに失敗しました",
			slog.Uint64("attempt", res.attempt),
			slog.String("trigger", string(res.trigger)),
			slog.String("error_kind", string(kind)),
			slog.String("error", s.lastErrorMessage),
			slog.Float64("duration_ms", float64(res.duration.Milliseconds())),
		)
	}

	s.publish()
}

// RequestRefresh は手動更新を要求する。
// フェッチを開始した場合はtrue、フェッチ中などで統合された場合はfalseを返す。
func (s *Scheduler) RequestRefresh(ctx context.Context) (bool, error) {
	return s.do(ctx, intent{kind: intentRefresh})
}

// Switch は選択中のサブスクリプションをdeltaだけ循環的に移動する。
// ネットワークアクセスは行わない。
func (s *Scheduler) Switch(ctx context.Context, delta int) error {
	_, err := s.do(ctx, intent{kind: intentSwitch, delta: delta})
	return err
}

// SwitchNext は次のサブスクリプションを選択する。
func (s *Scheduler) SwitchNext(ctx context.Context) error {
	return s.Switch(ctx, 1)
}

// SwitchPrev は前のサブスクリプションを選択する。
func (s *Scheduler) SwitchPrev(ctx context.Context) error {
	return s.Switch(ctx, -1)
}

// UpdateInterval は更新間隔を変更する。実行中のフェッチは中断せず、次のティックから反映される。
func (s *Scheduler) UpdateInterval(ctx context.Context, interval time.Duration) error {
	if err := model.ValidateRefreshInterval(interval); err != nil {
		return err
	}
	_, err := s.do(ctx, intent{kind: intentUpdateInterval, refresh: model.RefreshConfig{Interval: interval}})
	return err
}

// UpdateRefreshConfig は更新設定全体を変更する。
func (s *Scheduler) UpdateRefreshConfig(ctx context.Context, cfg model.RefreshConfig) error {
	if err := model.ValidateRefreshInterval(cfg.Interval); err != nil {
		return err
	}
	_, err := s.do(ctx, intent{kind: intentUpdateRefresh, refresh: cfg})
	return err
}

// UpdateCredentials は認証情報を変更する。
// 値が変わり、Idleかつ設定済みであれば新しい認証情報ですぐにフェッチする。
func (s *Scheduler) UpdateCredentials(ctx context.Context, creds model.Credentials) error {
	_, err := s.do(ctx, intent{kind: intentUpdateCredentials, creds: creds})
	return err
}

// SetPreferredSubscription は初回ロード時に優先するサブスクリプション名を変更する。
func (s *Scheduler) SetPreferredSubscription(ctx context.Context, name string) error {
	_, err := s.do(ctx, intent{kind: intentSetPreferred, name: name})
	return err
}

// SetPaused は自動更新のティックを一時停止または再開する。手動更新は影響を受けない。
func (s *Scheduler) SetPaused(ctx context.Context, paused bool) error {
	_, err := s.do(ctx, intent{kind: intentSetPaused, paused: paused})
	return err
}

// do はインテントをオーナーgoroutineに送り、適用されるまで待つ。
func (s *Scheduler) do(ctx context.Context, in intent) (bool, error) {
	in.reply = make(chan bool, 1)

	select {
	case s.intents <- in:
	case <-s.done:
		return false, model.ErrSchedulerStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case r := <-in.reply:
		return r, nil
	case <-s.done:
		return false, model.ErrSchedulerStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Done はRunが終了したときにクローズされるチャネルを返す。
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}
