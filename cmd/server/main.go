package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annel0/microblock/internal/api"
	"github.com/annel0/microblock/internal/cache"
	"github.com/annel0/microblock/internal/config"
	"github.com/annel0/microblock/internal/eventbus"
	"github.com/annel0/microblock/internal/logging"
	"github.com/annel0/microblock/internal/metrics"
	"github.com/annel0/microblock/internal/microblock/mesh"
	"github.com/annel0/microblock/internal/observability"
	"github.com/annel0/microblock/internal/storage"
	"github.com/annel0/microblock/internal/world"
	"github.com/annel0/microblock/internal/world/block"
)

const autosaveInterval = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (или MICROBLOCK_CONFIG)")
	flag.Parse()

	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	loaded, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	cfg := config.OrDefault(loaded)
	consoleLevel, fileLevel := logging.ParseLevel(cfg.Logging.Console), logging.ParseLevel(cfg.Logging.File)
	logging.SetDefaultLevels(consoleLevel, fileLevel)
	logging.GetLoggerManager().ApplyLevels(consoleLevel, fileLevel)
	defer func() {
		if err := logging.GetLoggerManager().CloseAll(); err != nil {
			log.Printf("⚠️ %v", err)
		}
	}()

	logging.Info("🧱 Запуск сервера микроблоков...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.GetLoggerManager().CloseAll()
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func run(ctx context.Context, cfg *config.Config) error {
	// === ТЕЛЕМЕТРИЯ ===
	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("телеметрия: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("⚠️ Остановка телеметрии: %v", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// === МАТЕРИАЛЫ ===
	materials := block.NewRegistry()
	if err := block.RegisterDefaults(materials); err != nil {
		return fmt.Errorf("встроенные материалы: %w", err)
	}
	if dir := cfg.Materials.CatalogDir; dir != "" {
		if err := block.LoadJSONBlocks(dir, materials); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("каталог материалов %s: %w", dir, err)
		}
	}
	snowLayer, ok := materials.ResolveCode(cfg.Materials.SnowLayer)
	if !ok {
		logging.Warn("⚠️ Материал снега %q не найден, снег на земле выключен", cfg.Materials.SnowLayer)
	}
	logging.Info("🎨 Материалов зарегистрировано: %d", materials.Len())

	// === ХРАНИЛИЩЕ ===
	repo, err := storage.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("хранилище: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logging.Error("❌ Закрытие хранилища: %v", err)
		}
	}()

	// === ШИНА СОБЫТИЙ ===
	bus, err := openBus(cfg.EventBus)
	if err != nil {
		return err
	}
	eventbus.Init(bus)
	defer bus.Close()

	if _, err := eventbus.StartLoggingListener(bus); err != nil {
		return fmt.Errorf("логгер событий: %w", err)
	}
	exporter, err := eventbus.NewMetricsExporter(bus, reg)
	if err != nil {
		return fmt.Errorf("метрики шины: %w", err)
	}
	exporter.Start(5 * time.Second)
	defer exporter.Stop()

	// === МЕШИ И МИР ===
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("метрики микроблоков: %w", err)
	}
	builder := mesh.NewBuilder(materials, mesh.Config{}, logging.GetMeshLogger())
	pool := mesh.NewPool(builder, cfg.Mesh.Workers, collector)
	defer pool.Close()

	w, err := world.New(world.Options{
		Materials:       materials,
		Repo:            repo,
		Builder:         builder,
		Pool:            pool,
		Bus:             bus,
		Metrics:         collector,
		SnowLayer:       snowLayer,
		DefaultMaterial: cfg.Materials.DefaultMaterial,
	})
	if err != nil {
		return fmt.Errorf("мир: %w", err)
	}
	if _, err := w.LoadAll(ctx); err != nil {
		return fmt.Errorf("загрузка микроблоков: %w", err)
	}

	saveCtx, stopSave := context.WithCancel(context.Background())
	saveDone := make(chan struct{})
	go func() {
		defer close(saveDone)
		w.Run(saveCtx, autosaveInterval)
	}()
	defer func() {
		stopSave()
		<-saveDone
	}()

	// === КЕШ GLB ===
	glbCache, err := openCache(cfg)
	if err != nil {
		return err
	}
	if glbCache != nil {
		defer glbCache.Close()
	}

	// === HTTP ===
	restPort := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	rest, err := api.NewRestServer(api.Config{
		Port:     restPort,
		World:    w,
		Pool:     pool,
		Bus:      bus,
		Cache:    glbCache,
		Registry: reg,
		Logger:   logging.GetAPILogger(),
	})
	if err != nil {
		return fmt.Errorf("REST API: %w", err)
	}

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.GetMetricsPort()),
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() { errCh <- rest.Start() }()
	go func() {
		logging.Info("📊 Prometheus метрики на %s/metrics", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("сервер метрик: %w", err)
			return
		}
		errCh <- nil
	}()

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   ❤️  Health check: http://localhost%s/health", restPort)
	logging.Info("💡 Пример: curl -X PUT http://localhost%s/api/shapes/0/0/0 -H 'Content-Type: application/json' -d '{\"material\":\"rock-granite\"}'", restPort)

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, останавливаем сервисы...")
	case runErr = <-errCh:
		if runErr == nil {
			runErr = errors.New("HTTP сервер остановился")
		}
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rest.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки сервера метрик: %v", err)
	}
	return runErr
}

// openBus выбирает JetStream при заданном URL, иначе шину в памяти
func openBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		logging.Info("📨 Шина событий в памяти")
		return eventbus.NewMemoryBus(1024), nil
	}
	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, cfg.GetRetention())
	if err != nil {
		return nil, fmt.Errorf("JetStream %s: %w", cfg.URL, err)
	}
	logging.Info("📨 Шина событий JetStream %s (stream %s)", cfg.URL, cfg.Stream)
	return bus, nil
}

// openCache создаёт кеш GLB по конфигурации; "none" выключает кеш
func openCache(cfg *config.Config) (cache.Cache, error) {
	cc := &cache.CacheConfig{DefaultTTL: cfg.Cache.GetTTL()}

	switch cfg.Cache.Backend {
	case "none":
		logging.Info("🗃️ Кеш GLB выключен")
		return nil, nil
	case "", "memory":
		c, err := cache.NewMemoryCache(cc, int64(cfg.Cache.MaxMB)<<20)
		if err != nil {
			return nil, fmt.Errorf("кеш GLB: %w", err)
		}
		return c, nil
	case "redis":
		cc.RedisURL = cfg.Cache.RedisAddr
		if cc.RedisURL == "" {
			cc.RedisURL = cfg.Storage.RedisAddr
			cc.RedisPassword = cfg.Storage.RedisPassword
			cc.RedisDB = cfg.Storage.RedisDB
		}
		cc.KeyPrefix = "mbcache:"
		c, err := cache.NewRedisCache(cc)
		if err != nil {
			return nil, fmt.Errorf("кеш GLB: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("неизвестный бэкенд кеша %q", cfg.Cache.Backend)
}
