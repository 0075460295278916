package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/quotaball/internal/model"
)

const (
	settingsDirPerm  = 0o700
	settingsFilePerm = 0o600
)

// Store はYAMLの設定ファイルを読み書きする。
// 起動時に1回Loadし、設定画面の確定時にSaveする。
type Store struct {
	path    string
	apiBase string
	logger  *slog.Logger

	mu sync.Mutex
}

// NewStore はStoreの新しいインスタンスを生成する。
// defaultAPIBaseは設定ファイルにapi_baseが無い場合に使用する。
func NewStore(path, defaultAPIBase string, logger *slog.Logger) *Store {
	return &Store{
		path:    path,
		apiBase: defaultAPIBase,
		logger:  logger,
	}
}

// Path は設定ファイルのパスを返す。
func (s *Store) Path() string {
	return s.path
}

// Load は設定ファイルを読み込む。
// ファイルが存在しない場合はデフォルト値を返す。
// 読み込んだ値は正規化され、更新間隔は下限に、ボールのサイズは許容範囲に補正される。
func (s *Store) Load() (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := model.DefaultSettings(s.apiBase)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("設定ファイルが存在しないためデフォルト設定を使用します",
			slog.String("path", s.path),
		)
		return settings, nil
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return model.Settings{}, fmt.Errorf("設定ファイルのパースに失敗: %w", err)
	}

	normalized := s.normalize(settings)
	if normalized.RefreshIntervalSeconds != settings.RefreshIntervalSeconds {
		s.logger.Warn("更新間隔が下限を下回っているため補正しました",
			slog.Int64("configured_seconds", settings.RefreshIntervalSeconds),
			slog.Int64("applied_seconds", normalized.RefreshIntervalSeconds),
		)
	}

	s.logger.Info("設定ファイルを読み込みました",
		slog.String("path", s.path),
		slog.Any("credentials", normalized.Credentials()),
		slog.Int64("refresh_interval_seconds", normalized.RefreshIntervalSeconds),
		slog.Bool("refresh_enabled", normalized.RefreshEnabled),
	)
	return normalized, nil
}

// Save は設定ファイルを書き込む。
// ディレクトリが無ければ作成し、一時ファイルへの書き込みとリネームで置き換える。
func (s *Store) Save(settings model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings = s.normalize(settings)

	data, err := yaml.Marshal(&settings)
	if err != nil {
		return fmt.Errorf("設定のシリアライズに失敗: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, settingsDirPerm); err != nil {
		return fmt.Errorf("設定ディレクトリの作成に失敗: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(settingsFilePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("一時ファイルの権限設定に失敗: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("設定ファイルの書き込みに失敗: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("設定ファイルの同期に失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("設定ファイルのクローズに失敗: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("設定ファイルの置き換えに失敗: %w", err)
	}

	s.logger.Info("設定ファイルを保存しました",
		slog.String("path", s.path),
		slog.Any("credentials", settings.Credentials()),
	)
	return nil
}

// normalize は読み込み・保存時の補正を行う。
func (s *Store) normalize(settings model.Settings) model.Settings {
	settings.APIBase = strings.TrimRight(strings.TrimSpace(settings.APIBase), "/")
	if settings.APIBase == "" {
		settings.APIBase = s.apiBase
	}
	settings.AuthToken = strings.TrimSpace(settings.AuthToken)
	settings.Cookie = strings.TrimSpace(settings.Cookie)
	settings.UserAgent = strings.TrimSpace(settings.UserAgent)
	if settings.UserAgent == "" {
		settings.UserAgent = model.DefaultUserAgent
	}
	settings.PreferredSubscription = strings.TrimSpace(settings.PreferredSubscription)

	minSeconds := int64(model.MinRefreshInterval.Seconds())
	if settings.RefreshIntervalSeconds < minSeconds {
		settings.RefreshIntervalSeconds = minSeconds
	}
	settings.Window.Size = model.ClampBallSize(settings.Window.Size)
	return settings
}
