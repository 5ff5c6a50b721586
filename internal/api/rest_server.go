package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/terragen/internal/middleware"
	"github.com/annel0/terragen/internal/pipeline"
	"github.com/annel0/terragen/internal/store"
	"github.com/annel0/terragen/internal/tile"
)

// RestServer представляет REST API сервер пайплайна тайлов
type RestServer struct {
	router       *gin.Engine
	store        *store.TileStore
	orchestrator *pipeline.Orchestrator
	publicPrefix string
	port         string
	metrics      *ServerMetrics
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port         string                 // порт для запуска сервера
	Store        *store.TileStore       // хранилище артефактов
	Orchestrator *pipeline.Orchestrator // оркестратор пайплайна
	PublicPrefix string                 // URL-префикс дерева артефактов
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":7777"
	}
	if config.PublicPrefix == "" {
		config.PublicPrefix = "/tiles"
	}

	// Устанавливаем режим релиза для gin
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	loggerMw := middleware.NewRequestLogger()
	router.Use(loggerMw.Handler())

	otelRouter := otelgin.Middleware("tile_api")
	router.Use(otelRouter)

	promMw := middleware.NewPrometheusMiddleware("tile_api")
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	server := &RestServer{
		router:       router,
		store:        config.Store,
		orchestrator: config.Orchestrator,
		publicPrefix: config.PublicPrefix,
		port:         config.Port,
		metrics:      NewServerMetrics(),
	}

	// Настраиваем маршруты
	server.setupRoutes()

	return server
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Middleware для CORS: клиент карты живёт на другом origin
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	rs.router.GET("/tiles", rs.handleListTiles)
	rs.router.POST("/tile", rs.handleCreateTile)
	rs.router.POST("/tile/:id/landcover", rs.handleEditLandcover)
	rs.router.GET("/tile/:id/status", rs.handleTileStatus)

	// Дерево артефактов отдаётся как статика под публичным префиксом
	rs.router.Static(rs.publicPrefix, rs.store.BasePath())

	// Служебные эндпоинты
	rs.router.GET("/health", rs.handleHealth)
	rs.router.GET("/stats", rs.handleStats)
}

// CreateTileRequest представляет запрос на создание группы тайлов
type CreateTileRequest struct {
	// Coords кольцо нарисованного на карте полигона: [[lon,lat], ...]
	Coords [][2]float64 `json:"coords" binding:"required"`
	Zoom   int          `json:"zoom" binding:"required"`
	// IslandMask true — области нужна попиксельная классификация landcover
	IslandMask bool `json:"islandMask"`
}

// CreateTileResponse представляет ответ на создание группы
type CreateTileResponse struct {
	ID string `json:"id"`
}

// EditLandcoverRequest представляет запрос с пользовательской правкой landcover
type EditLandcoverRequest struct {
	// Image исправленный растр как data-URI: "data:image/png;base64,...."
	Image string `json:"image" binding:"required"`
}

// TileStatusResponse представляет ответ о стадии пайплайна группы
type TileStatusResponse struct {
	ID        string `json:"id"`
	Stage     string `json:"stage"`
	UpdatedAt int64  `json:"updated_at"`
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// dataURIPrefix заголовок data-URI перед base64-содержимым растра
var dataURIPrefix = regexp.MustCompile(`^data:image/\w+;base64,`)

// handleListTiles возвращает описания всех групп тайлов.
// Группа видна сразу после создания: до завершения фоновых стадий все
// ссылки на артефакты в её описании равны null.
func (rs *RestServer) handleListTiles(c *gin.Context) {
	summaries, err := tile.BuildAllSummaries(rs.store, rs.publicPrefix)
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Ошибка чтения хранилища",
		})
		return
	}

	c.JSON(http.StatusOK, summaries)
}

// handleCreateTile создаёт группу тайлов и сразу возвращает её идентификатор.
// Стадии пайплайна выполняются в фоне уже после отправки ответа; их
// результат виден через листинг и эндпоинт статуса.
func (rs *RestServer) handleCreateTile(c *gin.Context) {
	var req CreateTileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}

	id, err := rs.orchestrator.CreateTile(c.Request.Context(), req.Coords, req.Zoom, req.IslandMask)
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Ошибка создания группы",
		})
		return
	}

	c.JSON(http.StatusOK, CreateTileResponse{ID: id})
}

// handleEditLandcover принимает правку landcover и синхронно пересчитывает
// хайтмапу. В отличие от создания, ошибка синтеза возвращается вызывающему.
func (rs *RestServer) handleEditLandcover(c *gin.Context) {
	id := c.Param("id")

	var req EditLandcoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат запроса: " + err.Error(),
		})
		return
	}

	raw := dataURIPrefix.ReplaceAllString(req.Image, "")
	raster, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Растр не является валидным base64",
		})
		return
	}

	err = rs.orchestrator.EditLandcover(c.Request.Context(), id, raster)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Группа не найдена",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Ошибка пересинтеза хайтмапы",
		})
		return
	}

	c.String(http.StatusOK, "Image saved successfully")
}

// handleTileStatus возвращает последнюю успешно завершённую стадию группы
func (rs *RestServer) handleTileStatus(c *gin.Context) {
	id := c.Param("id")

	rec, err := rs.store.ReadStatus(id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Группа не найдена",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Ошибка чтения статуса",
		})
		return
	}

	c.JSON(http.StatusOK, TileStatusResponse{
		ID:        id,
		Stage:     rec.Stage,
		UpdatedAt: rec.UpdatedAt,
	})
}

// handleStats возвращает статистику сервера
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := make(map[string]interface{})

	groups, err := rs.store.ListGroups()
	if err == nil {
		stats["groups"] = len(groups)
	}

	memoryMB, _ := rs.metrics.GetMemoryUsage()
	cpuPercent, _ := rs.metrics.GetCPUUsage()

	stats["server"] = map[string]interface{}{
		"uptime":      rs.metrics.GetUptime(),
		"memory_mb":   memoryMB,
		"cpu_percent": cpuPercent,
		"server_time": time.Now().Unix(),
	}
	stats["memory"] = rs.metrics.GetDetailedMemoryStats()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    stats,
	})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Router возвращает gin.Engine (для тестов)
func (rs *RestServer) Router() *gin.Engine {
	return rs.router
}

// Start запускает REST сервер
func (rs *RestServer) Start() error {
	return rs.router.Run(rs.port)
}
