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
	"github.com/xela07ax/crmflow-prototype/internal/console/handler"
	"github.com/xela07ax/crmflow-prototype/internal/console/server"
	"github.com/xela07ax/crmflow-prototype/internal/console/service"
	"github.com/xela07ax/crmflow-prototype/internal/infra"
	"github.com/xela07ax/crmflow-prototype/internal/infra/auth"
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

	// Проверяем соединение с таймаутом
	pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
	if err := pgRepo.Ping(pingCtx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	pingCancel()

	// 3. RSA ключи: консоль и подписывает (login), и проверяет (middleware)
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("failed to parse public key", zap.Error(err))
	}
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("failed to parse private key", zap.Error(err))
	}
	validator := auth.NewBaseValidator(publicKey)

	// 4. Журнал изменений (батчинг в Postgres)
	auditStorage := postgres.NewAuditRepo(cfg.Database.URL)
	trail := audit.NewTrail(auditStorage, cfg.Sync.AuditBufferSize, cfg.Sync.AuditFlushInterval, logger)
	trail.Start()

	// 5. Метрики
	reg := prometheus.NewRegistry()
	consoleMetrics := server.NewMetrics(reg)
	syncMetrics := syncpkg.NewMetrics(reg)

	// 6. AI-генератор за стеком надежности (mock, если URL не задан)
	var generator connectors.Caller
	if cfg.Connectors.GeneratorURL != "" {
		generator = connectors.NewGeneratorConnector(
			cfg.Connectors.GeneratorURL, cfg.Connectors.GeneratorKey, cfg.Connectors.HTTPTimeout)
	} else {
		logger.Warn("generator URL is empty, using mock connector")
		generator = connectors.NewMockSystemsConnector()
	}
	safeGenerator := syncpkg.NewReliabilityWrapper(generator, cfg.Sync, syncMetrics)

	// 7. Инициализация слоев (Dependency Injection)
	agentService := service.NewAgentService(rdb, pgRepo, validator, trail, logger)
	pipelineService := service.NewPipelineService(pgRepo, trail, logger)
	templateService := service.NewTemplateService(pgRepo, safeGenerator, logger)
	syncService := service.NewSyncService(pgRepo, rdb, logger)
	authService := service.NewAuthService(pgRepo, privateKey, cfg.Auth.TokenTTL)
	auditService := service.NewAuditService(auditStorage)

	consoleSrv := server.NewConsoleServer(
		cfg, logger, agentService, consoleMetrics,
		handler.NewAuthHandler(authService),
		handler.NewAgentHandler(agentService),
		handler.NewPipelineHandler(pipelineService),
		handler.NewTemplateHandler(templateService),
		handler.NewSyncHandler(syncService),
		handler.NewAuditHandler(auditService),
	)

	// 8. HTTP серверы: API + метрики
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("console API stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	// Дописываем хвост журнала изменений перед выходом
	trail.Stop()
	logger.Info("console API exited properly")
}
