package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	netHttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"gitdeploy/internal/adapters/http"
	"gitdeploy/internal/adapters/http/request"
	"gitdeploy/internal/adapters/http/response"
	"gitdeploy/internal/adapters/http/validator"
	"gitdeploy/internal/adapters/telegram"
	"gitdeploy/internal/adapters/ws"
	"gitdeploy/internal/agent/command"
	"gitdeploy/internal/agent/git"
	"gitdeploy/internal/application/auth"
	"gitdeploy/internal/application/backup"
	"gitdeploy/internal/application/deployment"
	"gitdeploy/internal/application/dispatch"
	"gitdeploy/internal/config"
	"gitdeploy/internal/domain"
	"gitdeploy/internal/logger"
	"gitdeploy/internal/metrics"
	backupstore "gitdeploy/internal/storage/backup"
	"gitdeploy/internal/storage/sqlite"
)

const (
	backupExpiryInterval = time.Hour
	shutdownTimeout      = 10 * time.Second
	telegramCheckTimeout = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile     string
		addr        string
		checkConfig bool
		printToken  bool
	)

	flagSet := pflag.NewFlagSet("gitdeploy", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment (default: .env if present)")
	flagSet.StringVar(&addr, "addr", "", "listen address, overrides GITDEPLOY_HTTP_ADDR")
	flagSet.BoolVar(&checkConfig, "check-config", false, "validate the configuration and exit")
	flagSet.BoolVar(&printToken, "print-token", false, "print a freshly signed bearer token and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	bootLog := logger.New(logger.Options{Output: os.Stderr})

	cfg, err := config.Load(envFile, bootLog)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Address = addr
	}

	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	notifier := telegram.NewNotifier(telegram.Options{
		BotToken: cfg.Telegram.BotToken,
		ChatID:   cfg.Telegram.ChatID,
		Enabled:  cfg.Telegram.Enabled,
	}, log)

	if checkConfig {
		if notifier.Enabled() {
			checkCtx, cancel := context.WithTimeout(context.Background(), telegramCheckTimeout)
			defer cancel()

			bot, err := notifier.Check(checkCtx)
			if err != nil {
				return err
			}
			log.Info("telegram bot reachable", "username", bot.Username, "id", bot.ID)
		}
		log.Info("configuration is valid", "project_root", cfg.ProjectRoot, "git", cfg.GitBinary)
		return nil
	}

	jwtAuth, err := auth.NewJWTAuthenticator(auth.JWTOptions{
		Secret:     cfg.JWTSecret,
		Algorithm:  cfg.JWT.Algorithm,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		Expiration: cfg.JWT.Expiration,
		Leeway:     cfg.JWT.Leeway,
	})
	if err != nil {
		return err
	}

	if printToken {
		token, err := jwtAuth.GenerateToken(nil)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	var ranges []string
	if cfg.Security.ValidateGitLabIPs {
		ranges = cfg.Security.GitLabRanges()
	}
	webhookAuth, err := auth.NewWebhookAuthenticator(auth.WebhookOptions{
		Secret:        cfg.WebhookSecret,
		ValidateIPs:   cfg.Security.ValidateGitLabIPs,
		AllowedRanges: ranges,
	})
	if err != nil {
		return err
	}
	authService := auth.NewService(webhookAuth, jwtAuth)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	hub := ws.NewHub(log)

	executor := command.NewExecutor(cfg.ProjectRoot,
		command.WithObserver(hub.ObserveLine),
		command.WithRecorder(m),
	)

	gitManager, err := git.NewManager(ctx, log, executor, cfg.GitBinary, cfg.Deployment.StashExcludes)
	if err != nil {
		return err
	}

	var historyDB *sql.DB
	if cfg.HistoryDB != "" {
		historyDB, err = sqlite.NewSqliteDB(cfg.HistoryDB, log)
		if err != nil {
			return err
		}
		defer historyDB.Close()
	}

	store, err := backupStore(cfg, historyDB, log)
	if err != nil {
		return err
	}

	backupService := backup.NewService(store, gitManager, log, backup.Options{
		Enabled:  cfg.Deployment.BackupCommits,
		MaxAge:   cfg.Deployment.MaxBackupAge,
		Location: cfg.Location,
	})

	deployer := deployment.NewService(gitManager, executor, log, deployment.Options{
		ProjectRoot:      cfg.ProjectRoot,
		AutoDependencies: cfg.Deployment.AutoComposer,
		ClearCache:       cfg.Deployment.ClearCache,
		FixPermissions:   cfg.Deployment.FixPermissions,
		ExecutableFiles:  cfg.Deployment.ExecutableFiles,
		CustomScript:     cfg.Deployment.CustomScript,
		Dependency:       cfg.Deployment.Dependency,
		Location:         cfg.Location,
	})

	var history domain.DeploymentRepository
	if historyDB != nil {
		history = sqlite.NewDeploymentRepository(historyDB)
	}

	hostname, _ := os.Hostname()
	v := validator.NewValidator()

	dispatcher := dispatch.New(dispatch.Deps{
		Auth:      authService,
		Tokens:    authService,
		Git:       gitManager,
		Deployer:  deployer,
		Backups:   backupService,
		Notifier:  notifier,
		Validator: v,
		History:   history,
		Events:    hub,
		Recorder:  m,
	}, dispatch.Options{
		DeploymentEnabled: cfg.Deployment.Enabled,
		ProjectRoot:       cfg.ProjectRoot,
		Hostname:          hostname,
		Location:          cfg.Location,
	}, log)

	writer := response.NewJSONWriter(log)

	router := http.NewRouter(cfg.AllowedOrigins, &http.RouterDeps{
		Webhook:  http.NewWebhookHandler(dispatcher, request.NewLimitedReader(request.DefaultBodyLimit), writer, log),
		History:  http.NewHistoryHandler(history, v, writer, log),
		Ws:       ws.NewHandler(hub, authService, cfg.AllowedOrigins, log),
		Auth:     authService,
		Metrics:  m.Handler(),
		Recorder: m,
	})

	srv := http.NewServer(router, cfg.Address)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gCtx)
	})

	g.Go(func() error {
		return backupService.Run(gCtx, backupExpiryInterval)
	})

	g.Go(func() error {
		log.Info("http: starting server",
			"address", cfg.Address,
			"project_root", cfg.ProjectRoot,
			"deployment_enabled", cfg.Deployment.Enabled,
			"telegram_enabled", notifier.Enabled(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, netHttp.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http: server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("gitdeploy failed", "error", err)
		return err
	}

	log.Info("gitdeploy stopped")
	return nil
}

func backupStore(cfg *config.Config, db *sql.DB, log logger.Logger) (domain.BackupStore, error) {
	if cfg.BackupStore != config.BackupStoreSQLite {
		return backupstore.NewFileStore(cfg.BackupFile(), cfg.Location, log), nil
	}

	if db == nil {
		return nil, fmt.Errorf("%w: backup store sqlite requires HISTORY_DB", domain.ErrConfig)
	}
	return sqlite.NewBackupRepository(db), nil
}
