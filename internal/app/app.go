package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/quotaball/internal/autostart"
	"github.com/hitoshi/quotaball/internal/config"
	"github.com/hitoshi/quotaball/internal/handler"
	"github.com/hitoshi/quotaball/internal/logger"
	"github.com/hitoshi/quotaball/internal/metrics"
	"github.com/hitoshi/quotaball/internal/middleware"
	"github.com/hitoshi/quotaball/internal/model"
	"github.com/hitoshi/quotaball/internal/quota"
	"github.com/hitoshi/quotaball/internal/settings"
	"github.com/hitoshi/quotaball/internal/ui"
	"github.com/hitoshi/quotaball/internal/worker/refresh"
)

const (
	// appName は自動起動の登録名。
	appName = "quotaball"
	// shutdownTimeout は制御APIのグレースフルシャットダウンの待ち時間。
	shutdownTimeout = 5 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. 設定読み込み前にログを使えるようにする
	log := logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを作り直す
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn("不明なログレベルのためinfoを使用します", slog.String("level", cfg.LogLevel))
	}
	log = logger.SetupDefault(w, level)

	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// config と healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	switch cmd {
	case CommandConfig, CommandHealthcheck:
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cmd == CommandConfig {
			_, err := fmt.Fprintln(w, cfg.SettingsPath)
			return err
		}
		return runHealthcheck(cfg.ControlAddr)
	}

	logOut := w
	if cmd == CommandFetch {
		// 標準出力は結果のJSONのみにする
		logOut = os.Stderr
	}
	if cmd.usesTerminal() {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("initialization failed: %w", err)
		}
		f, err := logger.OpenFile(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("initialization failed: %w", err)
		}
		defer f.Close()
		logOut = f
	}

	cfg, log, err := Init(logOut)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	store := config.NewStore(cfg.SettingsPath, quota.DefaultAPIBase, log)
	current, err := store.Load()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("settings_path", cfg.SettingsPath),
		slog.String("api_base", current.APIBase),
		slog.String("control_addr", cfg.ControlAddr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandFetch:
		return runFetch(ctx, w, cfg, current, log)
	case CommandDaemon:
		c := newCore(cfg, store, current, log)
		return c.serve(ctx, nil)
	default:
		c := newCore(cfg, store, current, log)
		return c.serve(ctx, func(ctx context.Context) error {
			updates, cancel := c.scheduler.Subscribe()
			defer cancel()
			m := ui.NewModel(ctx, c.scheduler, c.settings, updates, cfg.SettingsPath, log)
			return ui.Run(ctx, m, nil, nil)
		})
	}
}

// core はスケジューラと制御APIをまとめた実行単位。
type core struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	scheduler *refresh.Scheduler
	settings  *settings.Service
	limiter   *middleware.RateLimiter

	// listenAddr は制御APIが実際にlistenしているアドレス。serve内でのみ設定する。
	listenAddr string
}

// newCore は全依存関係をワイヤリングする。
func newCore(cfg *config.Config, store *config.Store, current model.Settings, log *slog.Logger) *core {
	// 1. メトリクス
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	// 2. フェッチャー
	client := quota.NewClient(
		&http.Client{Timeout: cfg.FetchTimeout},
		current.APIBase,
		log,
		collector,
		cfg.FetchMaxSize,
	)

	// 3. 更新スケジューラ
	scheduler := refresh.NewScheduler(client, log, collector, refresh.Options{
		Credentials:           current.Credentials(),
		Refresh:               current.RefreshConfig(),
		PreferredSubscription: current.PreferredSubscription,
		FetchTimeout:          cfg.FetchTimeout,
	})

	// 4. 設定サービス
	var auto settings.Autostart
	if m, err := newAutostart(log); err != nil {
		log.Warn("自動起動を利用できません", slog.String("error", err.Error()))
	} else {
		auto = m
	}
	settingsService := settings.NewService(store, scheduler, auto, current, log)

	return &core{
		cfg:       cfg,
		logger:    log,
		registry:  reg,
		scheduler: scheduler,
		settings:  settingsService,
		limiter:   middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(cfg.ControlRateLimit), log),
	}
}

func newAutostart(log *slog.Logger) (*autostart.Manager, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("実行ファイルのパスを取得できません: %w", err)
	}
	return autostart.New(appName, exe, log, autostart.WithArgs(string(CommandRun)))
}

// serve はスケジューラと制御APIを起動する。
// uiがnilの場合はctxがキャンセルされるまで、そうでない場合はuiが終了するまでブロックする。
func (c *core) serve(ctx context.Context, runUI func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.limiter.Stop()

	var server *http.Server
	if c.cfg.ControlEnabled() {
		ln, err := net.Listen("tcp", c.cfg.ControlAddr)
		if err != nil {
			return fmt.Errorf("制御APIのlistenに失敗: %w", err)
		}
		c.listenAddr = ln.Addr().String()

		server = &http.Server{
			Handler: handler.NewRouter(&handler.RouterDeps{
				Scheduler:   c.scheduler,
				Settings:    c.settings,
				RateLimiter: c.limiter,
				Gatherer:    c.registry,
				Logger:      c.logger,
			}),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			c.logger.Info("control API starting", slog.String("addr", c.listenAddr))
			if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				c.logger.Error("control API serve error", slog.String("error", err.Error()))
			}
		}()
	}

	schedulerDone := make(chan error, 1)
	go func() {
		schedulerDone <- c.scheduler.Run(ctx)
	}()

	var runErr error
	if runUI != nil {
		runErr = runUI(ctx)
	} else {
		<-ctx.Done()
	}
	c.logger.Info("shutting down...")
	cancel()

	if server != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			c.logger.Error("control API shutdown failed", slog.String("error", err.Error()))
		}
	}

	if err := <-schedulerDone; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scheduler stopped with error: %w", err)
	}

	c.logger.Info("stopped gracefully")
	return runErr
}

// fetchReport はfetchコマンドの出力。
type fetchReport struct {
	OK            bool                 `json:"ok"`
	ErrorKind     model.ErrorKind      `json:"error_kind,omitempty"`
	Error         string               `json:"error,omitempty"`
	StatusCode    int                  `json:"status_code,omitempty"`
	Subscriptions []model.Subscription `json:"subscriptions"`
}

// runFetch は現在の設定で1回だけフェッチし、結果をJSONで出力する。
func runFetch(ctx context.Context, w io.Writer, cfg *config.Config, current model.Settings, log *slog.Logger) error {
	creds := current.Credentials()
	if !creds.Configured() {
		return fmt.Errorf("fetch failed: %w", model.ErrNotConfigured)
	}

	client := quota.NewClient(&http.Client{Timeout: cfg.FetchTimeout}, current.APIBase, log, nil, cfg.FetchMaxSize)

	ctx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
	defer cancel()
	outcome := client.Fetch(ctx, creds)

	report := fetchReport{
		OK:            outcome.OK(),
		ErrorKind:     outcome.Kind,
		StatusCode:    outcome.StatusCode,
		Subscriptions: outcome.Subscriptions,
	}
	if outcome.Err != nil {
		report.Error = outcome.Err.Error()
	}
	if report.Subscriptions == nil {
		report.Subscriptions = []model.Subscription{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if !outcome.OK() {
		return fmt.Errorf("fetch failed: %s", outcome.Kind)
	}
	return nil
}

// runHealthcheck は制御APIの /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(addr string) error {
	if addr == "" {
		return errors.New("health check failed: control API is disabled")
	}

	url := fmt.Sprintf("http://%s/health", addr)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
