// Package settings は設定画面の確定処理を提供する。
//
// 確定は「検証 → 正規化 → 保存 → スケジューラへの反映 → 自動起動の切り替え」の順に行う。
// 保存に失敗した場合はスケジューラへ何も反映しない。
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/quotaball/internal/model"
	"github.com/hitoshi/quotaball/internal/quota"
)

// Store は設定ファイルの読み書きを行うインターフェース。
type Store interface {
	Save(settings model.Settings) error
}

// Scheduler は設定変更を反映する更新スケジューラの操作。
type Scheduler interface {
	UpdateRefreshConfig(ctx context.Context, cfg model.RefreshConfig) error
	UpdateCredentials(ctx context.Context, creds model.Credentials) error
	SetPreferredSubscription(ctx context.Context, name string) error
}

// Autostart はOSの自動起動登録を行うインターフェース。
type Autostart interface {
	Enable() error
	Disable() error
}

// Service は設定の確定処理を行うサービス層。
type Service struct {
	store     Store
	scheduler Scheduler
	autostart Autostart
	logger    *slog.Logger

	mu      sync.Mutex
	current model.Settings
}

// NewService はServiceの新しいインスタンスを生成する。
// initialは起動時に読み込んだ設定。autostartがnilの場合は自動起動を切り替えない。
func NewService(store Store, scheduler Scheduler, autostart Autostart, initial model.Settings, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		scheduler: scheduler,
		autostart: autostart,
		logger:    logger,
		current:   initial,
	}
}

// Current は現在の設定を返す。
func (s *Service) Current() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Commit は設定画面で確定された設定を保存し、スケジューラに反映する。
// api_baseの変更は保存のみ行い、再起動後に反映される。
func (s *Service) Commit(ctx context.Context, next model.Settings) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, next)
}

// UpdateInterval は更新間隔のみを変更する。
func (s *Service) UpdateInterval(ctx context.Context, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	next.RefreshIntervalSeconds = int64(interval / time.Second)
	if err := model.ValidateRefreshInterval(interval); err != nil {
		return err
	}
	_, err := s.commitLocked(ctx, next)
	return err
}

// UpdateCredentials は認証情報のみを変更する。
func (s *Service) UpdateCredentials(ctx context.Context, creds model.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	next.AuthToken = creds.AuthToken
	next.Cookie = creds.Cookie
	if creds.UserAgent != "" {
		next.UserAgent = creds.UserAgent
	}
	_, err := s.commitLocked(ctx, next)
	return err
}

// SaveWindow はボールの位置とサイズを保存する。スケジューラには影響しない。
func (s *Service) SaveWindow(geometry model.WindowGeometry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	geometry.Size = model.ClampBallSize(geometry.Size)
	if geometry == s.current.Window {
		return nil
	}

	next := s.current
	next.Window = geometry
	if err := s.store.Save(next); err != nil {
		return fmt.Errorf("ウィンドウ位置の保存に失敗しました: %w", err)
	}
	s.current = next
	return nil
}

func (s *Service) commitLocked(ctx context.Context, next model.Settings) (model.Settings, error) {
	interval := time.Duration(next.RefreshIntervalSeconds) * time.Second
	if err := model.ValidateRefreshInterval(interval); err != nil {
		return s.current, err
	}

	next.AuthToken = quota.NormalizeBearerToken(next.AuthToken)
	next.Cookie = quota.NormalizeCookie(next.Cookie)
	next.Window.Size = model.ClampBallSize(next.Window.Size)

	prev := s.current
	if err := s.store.Save(next); err != nil {
		return prev, fmt.Errorf("設定の保存に失敗しました: %w", err)
	}
	s.current = next

	if next.RefreshConfig() != prev.RefreshConfig() {
		if err := s.scheduler.UpdateRefreshConfig(ctx, next.RefreshConfig()); err != nil {
			return next, fmt.Errorf("更新設定の反映に失敗しました: %w", err)
		}
	}
	if next.PreferredSubscription != prev.PreferredSubscription {
		if err := s.scheduler.SetPreferredSubscription(ctx, next.PreferredSubscription); err != nil {
			return next, fmt.Errorf("優先サブスクリプションの反映に失敗しました: %w", err)
		}
	}
	// 認証情報はスケジューラ側で変更の有無を判定して再フェッチする
	if err := s.scheduler.UpdateCredentials(ctx, next.Credentials()); err != nil {
		return next, fmt.Errorf("認証情報の反映に失敗しました: %w", err)
	}

	if next.AutostartEnabled != prev.AutostartEnabled {
		s.applyAutostart(next.AutostartEnabled)
	}
	if next.APIBase != prev.APIBase {
		s.logger.Info("APIのベースURLは再起動後に反映されます",
			slog.String("api_base", next.APIBase),
		)
	}

	s.logger.Info("設定を確定しました",
		slog.Any("credentials", next.Credentials()),
		slog.Int64("refresh_interval_seconds", next.RefreshIntervalSeconds),
		slog.Bool("refresh_enabled", next.RefreshEnabled),
		slog.Bool("autostart_enabled", next.AutostartEnabled),
	)
	return next, nil
}

// applyAutostart は自動起動の登録を切り替える。失敗しても設定の確定は取り消さない。
func (s *Service) applyAutostart(enabled bool) {
	if s.autostart == nil {
		return
	}

	var err error
	if enabled {
		err = s.autostart.Enable()
	} else {
		err = s.autostart.Disable()
	}
	if err != nil {
		s.logger.Warn("自動起動の切り替えに失敗しました",
			slog.Bool("enabled", enabled),
			slog.String("error", err.Error()),
		)
	}
}
