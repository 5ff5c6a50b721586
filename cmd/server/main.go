package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/terragen/internal/api"
	"github.com/annel0/terragen/internal/config"
	"github.com/annel0/terragen/internal/eventbus"
	"github.com/annel0/terragen/internal/logging"
	"github.com/annel0/terragen/internal/observability"
	"github.com/annel0/terragen/internal/pipeline"
	"github.com/annel0/terragen/internal/store"
	"github.com/annel0/terragen/internal/synth"
)

func main() {
	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	logging.Info("🗺️  Запуск Terragen — пайплайн генерации тайлов и хранилище артефактов...")

	// === КОНФИГУРАЦИЯ ===
	cfg, err := config.Load("")
	if err != nil {
		logging.Error("❌ Ошибка загрузки конфигурации: %v", err)
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if cfg == nil {
		cfg = &config.Config{} // конфиг не задан — работаем на дефолтах
	}

	restPort := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	metricsPort := fmt.Sprintf(":%d", cfg.Server.GetMetricsPort())
	basePath := cfg.Storage.GetBasePath()
	publicPrefix := cfg.Storage.GetPublicPrefix()

	logging.Info("📡 Конфигурация: REST=%s, метрики=%s, хранилище=%s", restPort, metricsPort, basePath)

	// === TELEMETRY ===
	ctx := context.Background()
	shutdownTelemetry, err := observability.InitTelemetry(ctx, "terragen")
	if err != nil {
		// Трассировка опциональна: без коллектора сервер полноценно работает
		logging.Warn("Телеметрия не инициализирована: %v", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}

	// === EVENT BUS ===
	var bus eventbus.EventBus
	if url := cfg.EventBus.URL; url != "" {
		logging.Debug("Подключение к JetStream: %s", url)
		jsBus, err := eventbus.NewJetStreamBus(url, cfg.EventBus.Stream, cfg.EventBus.GetRetention())
		if err != nil {
			logging.Error("❌ Ошибка подключения к JetStream: %v", err)
			log.Fatalf("❌ Ошибка подключения к JetStream: %v", err)
		}
		bus = jsBus
	} else {
		bus = eventbus.NewMemoryBus(1024)
	}
	eventbus.Init(bus)

	if err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("Логирующий слушатель шины не запущен: %v", err)
	}

	busExporter := eventbus.NewMetricsExporter(bus)
	busExporter.StartHTTP(metricsPort)
	logging.Info("📊 Метрики шины событий: http://localhost%s/metrics", metricsPort)

	// === ХРАНИЛИЩЕ И ПАЙПЛАЙН ===
	logging.Debug("Инициализация хранилища артефактов...")
	tileStore, err := store.NewTileStore(basePath)
	if err != nil {
		logging.Error("❌ Ошибка инициализации хранилища: %v", err)
		log.Fatalf("❌ Ошибка инициализации хранилища: %v", err)
	}

	seed := cfg.Pipeline.GetSeed()
	cellPx := cfg.Pipeline.GetTileSizePx()

	orchestrator := pipeline.NewOrchestrator(pipeline.Options{
		Store:            tileStore,
		Acquirer:         synth.NewPerlinAcquirer(tileStore, seed, cellPx),
		Classifier:       synth.NewThresholdClassifier(tileStore),
		Synthesizer:      synth.NewLandcoverSynthesizer(tileStore),
		Bus:              bus,
		CellPx:           cellPx,
		PreserveOverride: cfg.Pipeline.GetPreserveOverride(),
	})

	// === REST API ===
	logging.Debug("Создание REST API сервера...")
	restServer := api.NewRestServer(api.Config{
		Port:         restPort,
		Store:        tileStore,
		Orchestrator: orchestrator,
		PublicPrefix: publicPrefix,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- restServer.Start()
	}()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   🖼️  Артефакты: http://localhost%s%s/<id>/", restPort, publicPrefix)
	logging.Info("   ❤️  Health check: http://localhost%s/health", restPort)

	// Примеры использования REST API
	logging.Info("💡 Примеры использования REST API:")
	logging.Info("   curl http://localhost%s/tiles", restPort)
	logging.Info("   curl -X POST http://localhost%s/tile -H 'Content-Type: application/json' -d '{\"coords\":[[37.6,55.7],[37.7,55.7],[37.7,55.8]],\"zoom\":13,\"islandMask\":true}'", restPort)

	// Канал для получения сигналов ОС
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("📡 Получен сигнал %v, завершение работы...", sig)
	case err := <-errCh:
		logging.Error("❌ REST сервер завершился с ошибкой: %v", err)
	}

	// === GRACEFUL SHUTDOWN ===
	logging.Debug("Остановка фоновых прогонов пайплайна...")
	orchestrator.Stop()

	busExporter.Stop()
	if err := bus.Close(); err != nil {
		logging.Error("Ошибка закрытия шины событий: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logging.Error("Ошибка остановки телеметрии: %v", err)
	}

	logging.Info("👋 Сервер успешно остановлен")
}
