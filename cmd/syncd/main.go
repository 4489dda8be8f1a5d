package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/crmflow-prototype/internal/audit"
	"github.com/xela07ax/crmflow-prototype/internal/connectors"
	"github.com/xela07ax/crmflow-prototype/internal/infra"
	"github.com/xela07ax/crmflow-prototype/internal/livestate"
	"github.com/xela07ax/crmflow-prototype/internal/repository/postgres"
	syncpkg "github.com/xela07ax/crmflow-prototype/internal/sync"
	"go.uber.org/zap"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 2. Инфраструктура и ресурсы
	// Контекст для управления жизненным циклом фоновых горутин:
	// при SIGTERM cancel() остановит слушателей Redis
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pgRepo, err := postgres.NewAgentRepo(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to init postgres pool", zap.Error(err))
	}
	defer pgRepo.Close()

	pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
	if err := pgRepo.Ping(pingCtx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	pingCancel()

	// 3. Журнал изменений: запуски синхронизации тоже попадают в историю
	auditStorage := postgres.NewAuditRepo(cfg.Database.URL)
	trail := audit.NewTrail(auditStorage, cfg.Sync.AuditBufferSize, cfg.Sync.AuditFlushInterval, logger)
	trail.Start()

	// 4. Live-состояние workspace'ов (L1 кэш + Redis подписка)
	liveManager := livestate.NewManager(rdb, pgRepo, logger)
	if err := liveManager.Init(appCtx); err != nil {
		logger.Fatal("failed to init live state manager", zap.Error(err))
	}
	go liveManager.StartListener(appCtx)

	// 5. Метрики
	reg := prometheus.NewRegistry()
	metrics := syncpkg.NewMetrics(reg)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	// 6. Коннектор Salesforce за стеком надежности (mock, если URL не задан)
	var connector connectors.Caller
	if cfg.Connectors.SalesforceURL != "" {
		connector = connectors.NewSalesforceConnector(
			cfg.Connectors.SalesforceURL, cfg.Connectors.SalesforceToken, cfg.Connectors.HTTPTimeout)
	} else {
		logger.Warn("salesforce URL is empty, using mock connector")
		connector = connectors.NewMockSystemsConnector()
	}
	safeConnector := syncpkg.NewReliabilityWrapper(connector, cfg.Sync, metrics)

	// 7. Движок синхронизации: слушает сигналы консоли
	engine := syncpkg.NewEngine(pgRepo, safeConnector, liveManager, trail, metrics, rdb, logger)
	go engine.StartListener(appCtx)

	logger.Info("syncd worker started")

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("syncd worker stopping...")
	cancel()

	// Дописываем хвост журнала изменений перед выходом
	trail.Stop()
	logger.Info("syncd worker exited properly")
}
