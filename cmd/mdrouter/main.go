package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/mdrouter/internal/catalog"
	"github.com/xela07ax/mdrouter/internal/connectors"
	"github.com/xela07ax/mdrouter/internal/console/handler"
	"github.com/xela07ax/mdrouter/internal/console/server"
	"github.com/xela07ax/mdrouter/internal/console/service"
	"github.com/xela07ax/mdrouter/internal/engine"
	"github.com/xela07ax/mdrouter/internal/infra"
	"github.com/xela07ax/mdrouter/internal/registry"
	"github.com/xela07ax/mdrouter/internal/repository/postgres"
	"github.com/xela07ax/mdrouter/internal/telemetry"
)

func main() {
	configDir := flag.String("config", "", "directory with config.yaml (default: . and ./configs)")
	flag.Parse()

	// 1. Конфиг и логгер
	var paths []string
	if *configDir != "" {
		paths = append(paths, *configDir)
	}
	cfg, err := infra.LoadConfig(paths...)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Контекст для управления жизненным циклом фоновых горутин
	// SIGINT/SIGTERM отменяет его и останавливает слушателей
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Инфраструктура: база и Redis опциональны
	var (
		statsSrc registry.Source
		saver    engine.StatsSaver
		history  telemetry.HistoryStore = telemetry.NewLogStore(logger)
	)
	if cfg.Database.URL != "" {
		pool, err := postgres.NewPool(appCtx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			// Без базы живем на каталоге: статистика не переживет рестарт
			logger.Error("database unreachable, running catalog-only", zap.Error(err))
		} else {
			defer pool.Close()
			stats := postgres.NewStatsRepo(pool)
			statsSrc, saver = stats, stats
			history = postgres.NewHistoryRepo(pool)
		}
	}

	var configSrc registry.Source
	if cfg.Catalog.Path != "" {
		configSrc = catalog.NewFileStore(cfg.Catalog.Path)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	// 3. Реестр
	reg, err := registry.Load(appCtx, configSrc, statsSrc, logger,
		registry.WithResultCache(cfg.Engine.ResultCacheSize, cfg.Engine.ResultCacheTTL))
	if err != nil {
		logger.Fatal("failed to load endpoint registry", zap.Error(err))
	}
	defer reg.Close()

	factory := connectors.NewDefaultFactory(logger)
	for _, ep := range reg.Endpoints() {
		if !factory.Supports(ep.SourceType) {
			logger.Warn("endpoint has unsupported source type, calls will fail",
				zap.String("endpoint_id", ep.ID),
				zap.String("source_type", ep.SourceType),
				zap.Strings("supported", factory.Kinds()))
		}
	}

	// Метрики
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(promReg)

	// 4. Телеметрия
	sink := telemetry.NewSink(history, metrics, logger, telemetry.Options{
		BufferSize:    cfg.Telemetry.BufferSize,
		BatchSize:     cfg.Telemetry.BatchSize,
		FlushInterval: cfg.Telemetry.FlushInterval,
	})
	sink.Start()

	// 5. Control Plane: статусы через Redis
	var statusMgr *engine.StatusManager
	if rdb != nil {
		statusMgr = engine.NewStatusManager(reg, rdb, logger)
		if err := statusMgr.Init(appCtx); err != nil {
			logger.Error("status manager init failed, continuing with local statuses", zap.Error(err))
		}
		go statusMgr.StartListener(appCtx)
	}

	// 6. Execution Layer
	handlers := engine.NewHandlerCache(factory)
	execOpts := []engine.ExecutorOption{
		engine.WithThresholds(engine.Thresholds{
			Failures:      cfg.Engine.FailureThreshold,
			DegradedAfter: cfg.Engine.DegradedThreshold,
		}),
		engine.WithCallTimeout(cfg.Engine.CallTimeout),
		engine.WithMaxFailover(cfg.Engine.MaxFailover),
		engine.WithRecorder(sink),
		engine.WithMetrics(metrics),
	}
	if statusMgr != nil {
		execOpts = append(execOpts, engine.OnTransition(statusMgr.PublishTransition))
	}
	exec := engine.NewExecutor(reg, handlers, logger, execOpts...)

	checker := engine.NewHealthChecker(reg, handlers, metrics, logger, cfg.Probe.Workers, cfg.Probe.Timeout)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		checker.Start(appCtx, cfg.Probe.Interval)
	}()

	if saver != nil {
		flusher := engine.NewStatsFlusher(reg, saver, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			flusher.Start(appCtx, cfg.Engine.StatsFlushInterval)
		}()
	}

	if cfg.Catalog.Path != "" && cfg.Catalog.Watch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := catalog.Watch(appCtx, cfg.Catalog.Path, cfg.Catalog.Debounce, logger, func() {
				if err := reg.Reload(appCtx); err != nil {
					logger.Error("catalog reload failed", zap.Error(err))
				}
			})
			if err != nil {
				logger.Error("catalog watch failed", zap.Error(err))
			}
		}()
	}

	// 7. Ops API
	var status service.StatusSetter
	if statusMgr != nil {
		status = statusMgr
	}
	svc := service.NewEndpointService(reg, exec, checker, status, logger)
	ops := server.NewOpsServer(logger, promReg,
		handler.NewEndpointHandler(svc),
		handler.NewOpsHandler(svc),
		handler.NewDashboardHandler(svc),
	)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      ops,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("mdrouter started", zap.String("addr", srv.Addr), zap.Int("endpoints", reg.Len()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 8. Graceful Shutdown
	<-appCtx.Done()
	logger.Info("mdrouter stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	// Фоновые циклы (включая финальный сброс статистики) завершаются по отмене appCtx
	wg.Wait()
	sink.Stop()
	logger.Info("mdrouter exited properly")
}
