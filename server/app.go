package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"phoneprov/config"
	"phoneprov/internal/audit"
	"phoneprov/internal/authz"
	"phoneprov/internal/db"
	"phoneprov/internal/health"
	"phoneprov/internal/logs"
	"phoneprov/internal/metrics"
	"phoneprov/internal/middleware"
	"phoneprov/internal/pki"
	"phoneprov/internal/provisioning"
	"phoneprov/internal/repo"
	"phoneprov/internal/retention"
	"phoneprov/internal/variables"
	"phoneprov/internal/versions"
	"phoneprov/internal/wizard"
)

type App struct {
	cfg        *config.Config
	db         *gorm.DB
	redis      *redis.Client
	scheduler  *retention.Scheduler
	Router     *mux.Router
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// InitLogging — первым делом, до любых logs.Component.
func InitLogging(cfg *config.Config) {
	logs.Init(logs.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
}

// OpenDatabase — подключение и миграция схемы.
func OpenDatabase(cfg *config.Config) (*gorm.DB, error) {
	d, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("db open failed: %w", err)
	}
	if err := db.Migrate(d); err != nil {
		return nil, fmt.Errorf("db migrate failed: %w", err)
	}
	return d, nil
}

// VersionService — история версий для CLI.
func VersionService(d *gorm.DB) *versions.Service {
	logStore := repo.NewProvisioningLogStore(d)
	return versions.NewService(repo.NewVersionStore(d, logStore), logStore, audit.NewLogRecorder())
}

// RetentionJob — общая для cron и CLI cleanup.
func RetentionJob(cfg *config.Config, d *gorm.DB) *retention.Job {
	logStore := repo.NewProvisioningLogStore(d)
	return retention.NewJob(repo.NewVersionStore(d, logStore), logStore, retention.Policy{
		KeepVersions: cfg.Retention.KeepVersions,
		LogDays:      cfg.Retention.LogDays,
	})
}

func (a *App) Initialize(cfg *config.Config) error {
	a.cfg = cfg

	/* 1) Логи */
	InitLogging(cfg)
	log := logs.Component("server")

	/* 2) DB */
	d, err := OpenDatabase(cfg)
	if err != nil {
		return err
	}
	a.db = d

	/* 3) Материал стадии сертификатов */
	if cfg.Provisioning.PKIAutogenerate {
		generated, err := pki.New(cfg.Provisioning.CertDir).EnsureStagingCerts(cfg.Provisioning.PKICommonName, cfg.Provisioning.PKITTL)
		if err != nil {
			return fmt.Errorf("staging certificates: %w", err)
		}
		if generated {
			log.WithField("dir", cfg.Provisioning.CertDir).Info("staging certificates generated")
		}
	}

	/* 4) Хранилища и сервисы */
	devices := repo.NewDeviceStore(d)
	templates := repo.NewTemplateStore(d)
	targets := repo.NewTargetStore(d)
	provLogs := repo.NewProvisioningLogStore(d)
	versionStore := repo.NewVersionStore(d, provLogs)
	resolver := variables.NewResolver(templates)

	sessions, pingers, err := a.sessionStore()
	if err != nil {
		return err
	}
	pingers["database"] = health.DBPinger(d)

	auditLog := audit.NewLogRecorder()
	machine := wizard.NewMachine(devices, templates, resolver, targets, versionStore, auditLog)
	wiz := wizard.NewHandler(machine, sessions, cfg.Sessions.CookieName)
	history := versions.NewHandler(versions.NewService(versionStore, provLogs, auditLog))

	prov := provisioning.New(devices, provLogs, versionStore, provisioning.Options{
		BaseURL: cfg.Provisioning.BaseURL,
		CertDir: cfg.Provisioning.CertDir,
	})

	/* 5) Router + middleware */
	a.Router = mux.NewRouter()
	a.Router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.LoggerMW,
	)

	health.RegisterRoutes(a.Router, pingers)

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if err := metrics.Register(reg); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		a.Router.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	managers := authz.NewStatic(cfg.Wizard.Managers)
	wizard.RegisterRoutes(a.Router, wiz, managers, cfg.Wizard.ActorHeader)
	versions.RegisterRoutes(a.Router, history, managers, cfg.Wizard.ActorHeader)

	// стадии последними: /{mac}.cfg шире остальных путей
	provisioning.RegisterRoutes(a.Router, prov, provisioning.Credentials{
		Username:     cfg.Provisioning.Username,
		Password:     cfg.Provisioning.Password,
		PasswordHash: cfg.Provisioning.PasswordHash,
	})

	/* 6) Чистка по расписанию */
	if cfg.Retention.Schedule != "" {
		s, err := retention.NewScheduler(cfg.Retention.Schedule, RetentionJob(cfg, d))
		if err != nil {
			return fmt.Errorf("retention schedule: %w", err)
		}
		a.scheduler = s
	}

	_ = a.Router.Walk(func(rt *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := rt.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, _ := rt.GetMethods()
		if len(methods) == 0 {
			methods = []string{"ANY"}
		}
		log.Debugf("route: %-6v %s", methods, path)
		return nil
	})
	return nil
}

func (a *App) sessionStore() (wizard.Store, map[string]health.Pinger, error) {
	pingers := map[string]health.Pinger{}
	sc := a.cfg.Sessions
	if sc.Backend != "redis" {
		return wizard.NewKVStore(wizard.NewMemoryKV(), sc.TTL), pingers, nil
	}
	a.redis = redis.NewClient(&redis.Options{
		Addr:     sc.RedisAddr,
		Password: sc.RedisPassword,
		DB:       sc.RedisDB,
	})
	client := a.redis
	pingers["redis"] = health.PingerFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	return wizard.NewKVStore(wizard.NewRedisKV(client), sc.TTL), pingers, nil
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return fmt.Errorf("server not initialized")
	}

	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		logs.Logger.Infof("shutdown signal: %s", s)
		a.cancel()
	}()

	a.httpServer = &http.Server{
		Addr:              bind,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if a.scheduler != nil {
		a.scheduler.Start()
		logs.Logger.Infof("retention next run at %s", a.scheduler.NextRun().Format(time.RFC3339))
	}

	errc := make(chan error, 1)
	go func() {
		logs.Logger.Infof("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var runErr error
	select {
	case <-a.ctx.Done():
	case runErr = <-errc:
		logs.Logger.Errorf("http server error: %v", runErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logs.Logger.Errorf("http shutdown: %v", err)
	}
	a.Close()
	return runErr
}

// Close освобождает фоновые ресурсы; безопасно вызывать повторно.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
		a.scheduler = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		a.db = nil
	}
}
