package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// appDirName は設定ディレクトリ内のアプリケーション用サブディレクトリ名。
	appDirName = "quotaball"
	// settingsFileName は設定ファイル名。
	settingsFileName = "config.yaml"
	// logFileName はrunモードで使用するログファイル名。
	logFileName = "quotaball.log"
)

// Config はプロセス全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// ユーザーが画面から変更する設定はSettingsとしてStoreに保存する。
type Config struct {
	// Settings file
	SettingsPath string

	// Fetch
	FetchTimeout time.Duration
	FetchMaxSize int64

	// Control API
	ControlAddr      string
	ControlRateLimit int

	// Logging
	LogLevel string
	LogFile  string
}

// Load は環境変数からConfigを読み込む。
// 設定ディレクトリを決定できない場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.SettingsPath = os.Getenv("QUOTABALL_CONFIG_PATH")
	if cfg.SettingsPath == "" {
		dir, err := defaultConfigDir()
		if err != nil {
			return nil, fmt.Errorf("設定ディレクトリを決定できません（QUOTABALL_CONFIG_PATH を指定してください）: %w", err)
		}
		cfg.SettingsPath = filepath.Join(dir, settingsFileName)
	}

	// Optional fields with defaults
	cfg.FetchTimeout = getEnvDuration("QUOTABALL_FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("QUOTABALL_FETCH_MAX_SIZE", 1<<20)
	cfg.ControlAddr = getEnvStringAllowEmpty("QUOTABALL_CONTROL_ADDR", "127.0.0.1:7878")
	cfg.ControlRateLimit = getEnvInt("QUOTABALL_CONTROL_RATE_LIMIT", 30)
	cfg.LogLevel = strings.ToLower(getEnvString("QUOTABALL_LOG_LEVEL", "info"))
	cfg.LogFile = getEnvString("QUOTABALL_LOG_FILE", filepath.Join(filepath.Dir(cfg.SettingsPath), logFileName))

	if cfg.FetchTimeout <= 0 {
		return nil, fmt.Errorf("QUOTABALL_FETCH_TIMEOUT must be positive: %s", cfg.FetchTimeout)
	}

	return cfg, nil
}

// ControlEnabled はローカル制御APIを起動するかを返す。
func (c *Config) ControlEnabled() bool {
	return c.ControlAddr != ""
}

func defaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDirName), nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvStringAllowEmpty は明示的に空文字が設定された場合に空文字を返す。
func getEnvStringAllowEmpty(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
