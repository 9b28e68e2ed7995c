package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/microblock/internal/cache"
	"github.com/annel0/microblock/internal/eventbus"
	"github.com/annel0/microblock/internal/logging"
	"github.com/annel0/microblock/internal/microblock/mesh"
	"github.com/annel0/microblock/internal/middleware"
	"github.com/annel0/microblock/internal/world"
)

// RestServer REST API для просмотра и редактирования микроблоков
type RestServer struct {
	router     *gin.Engine
	world      *world.World
	pool       *mesh.Pool
	bus        eventbus.EventBus
	cache      cache.Cache
	port       string
	metrics    *ServerMetrics
	logger     *logging.Logger
	httpServer *http.Server
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port     string               // адрес для запуска сервера, ":8088"
	World    *world.World         // мир микроблоков
	Pool     *mesh.Pool           // пул сборки (статистика в /health)
	Bus      eventbus.EventBus    // шина событий, может быть nil
	Cache    cache.Cache          // кеш GLB, может быть nil
	Registry *prometheus.Registry // регистр метрик для middleware и /metrics
	Logger   *logging.Logger      // nil означает глобальный логгер
}

// NewRestServer создает новый REST API сервер
func NewRestServer(cfg Config) (*RestServer, error) {
	if cfg.World == nil {
		return nil, errors.New("REST: не задан мир")
	}
	if cfg.Port == "" {
		cfg.Port = ":8088"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("microblock_api"))

	loggerMw := middleware.NewRequestLogger(cfg.Logger)
	router.Use(loggerMw.Handler())

	promMw, err := middleware.NewPrometheusMiddleware("microblock_api", cfg.Registry)
	if err != nil {
		return nil, err
	}
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, cfg.Registry)

	server := &RestServer{
		router:  router,
		world:   cfg.World,
		pool:    cfg.Pool,
		bus:     cfg.Bus,
		cache:   cfg.Cache,
		port:    cfg.Port,
		metrics: NewServerMetrics(),
		logger:  cfg.Logger,
	}

	// Настраиваем маршруты
	server.setupRoutes()
	server.httpServer = &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server, nil
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Middleware для CORS
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, If-None-Match")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	api := rs.router.Group("/api")
	{
		api.GET("/materials", rs.handleMaterials)
		api.GET("/shapes", rs.handleListShapes)

		shape := api.Group("/shapes/:x/:y/:z")
		shape.Use(rs.positionMiddleware())
		{
			shape.GET("", rs.handleGetShape)
			shape.PUT("", rs.handlePlace)
			shape.DELETE("", rs.handleDelete)
			shape.POST("/voxels", rs.handleVoxels)
			shape.POST("/transform", rs.handleTransform)
			shape.PUT("/snow", rs.handleSnow)
			shape.GET("/mesh", rs.handleMesh)
			shape.GET("/mesh.glb", rs.handleMeshGLB)
		}
	}

	// Health check
	rs.router.GET("/health", rs.handleHealth)
}

// Handler корневой http.Handler (тесты, встраивание)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// handleHealth возвращает состояние процесса, пула и шины
func (rs *RestServer) handleHealth(c *gin.Context) {
	memoryMB, _ := rs.metrics.GetMemoryUsage()
	cpuPercent, _ := rs.metrics.GetCPUUsage()

	report := HealthReport{
		Status:     "ok",
		Time:       time.Now().Unix(),
		Uptime:     rs.metrics.GetUptime(),
		MemoryMB:   memoryMB,
		CPUPercent: cpuPercent,
		Shapes:     rs.world.Count(),
		Memory:     rs.metrics.GetDetailedMemoryStats(),
	}
	if rs.pool != nil {
		built, corrupted, busy := rs.pool.Stats()
		report.Mesh = MeshStats{Workers: rs.pool.WorkerCount(), Built: built, Corrupted: corrupted, Busy: busy}
	}
	if rs.bus != nil {
		s := rs.bus.Metrics()
		report.EventBus = &BusStats{Published: s.Published, Consumed: s.Consumed, Dropped: s.Dropped, InFlight: s.InFlight}
	}

	if rs.cache != nil {
		report.Cache = rs.cache.GetMetrics()
	}

	c.JSON(http.StatusOK, report)
}

// Start запускает REST сервер и блокируется до Stop
func (rs *RestServer) Start() error {
	logging.Info("🌐 REST API микроблоков на %s", rs.port)
	if err := rs.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("REST сервер: %w", err)
	}
	return nil
}

// Stop плавно останавливает REST сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.httpServer.Shutdown(ctx)
}
