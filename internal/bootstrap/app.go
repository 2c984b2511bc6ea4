package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "naval-battle/internal/handler/http"
	wsHandler "naval-battle/internal/handler/websocket"
	"naval-battle/internal/hub"
	gormpersistence "naval-battle/internal/infra/persistence/gorm"
	"naval-battle/internal/infra/setup"
	redisstate "naval-battle/internal/infra/state/redis"
	"naval-battle/internal/middleware"
	"naval-battle/internal/service"
	"naval-battle/internal/tasks"
	"naval-battle/internal/worker"
)

// App 包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	HttpServer  *http.Server
}

// NewApp 加载配置并初始化应用的所有组件
func NewApp() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		// logrus 还未配置
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}
	return Build(context.Background(), cfg, NewLogger(cfg))
}

// NewLogger 按运行环境创建 logger：生产环境输出 JSON
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	// 各包通过 logrus 包级函数记录日志，与 App 的 logger 保持一致
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(level)
	return log
}

// Build 根据配置装配基础设施、服务和路由
func Build(ctx context.Context, cfg *Config, log *logrus.Logger) (*App, error) {
	app := &App{Config: cfg, Log: log}

	log.Info("Initializing infrastructure...")
	redisClient, err := setup.InitRedis(ctx, cfg.Redis())
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	app.RedisClient = redisClient
	roomStore := redisstate.NewRoomStore(redisClient, cfg.KeyPrefix)
	limiter := redisstate.NewRateLimiter(redisClient, cfg.KeyPrefix)

	var archiver service.Archiver
	if cfg.ArchiveEnabled() {
		db, err := setup.InitDB(cfg.DB())
		if err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("failed to init DB: %w", err)
		}
		if err := setup.MigrateDB(db); err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("failed to migrate DB: %w", err)
		}
		app.DB = db
		log.Info("Database initialized and migrated")

		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
		app.AsynqClient = asynq.NewClient(redisOpt)
		archiver = tasks.NewArchiveEnqueuer(app.AsynqClient)
		app.AsynqServer = worker.NewWorkerServer(redisOpt, gormpersistence.NewGormMatchRepository(db), log)
		log.Info("Match archive enabled")
	} else {
		log.Warn("DB_HOST not set, finished matches will not be archived")
	}

	playerService, err := service.NewPlayerService(cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to create PlayerService: %w", err)
	}
	roomService := service.NewRoomService(roomStore, archiver)
	app.Hub = hub.NewHub()

	playerHandler := httpHandler.NewPlayerHandler(playerService)
	gameHandler := httpHandler.NewGameHandler(roomService, app.Hub)
	ws := wsHandler.NewWebSocketHandler(app.Hub, cfg.CORSAllowedOrigin)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.CORSAllowedOrigin))
	router.Use(middleware.RateLimit(limiter, cfg.RateLimitMax, cfg.RateLimitWindow))

	auth := middleware.Auth(playerService)
	api := router.Group("/api")
	api.POST("/players", playerHandler.Create)
	rooms := api.Group("/rooms").Use(auth)
	{
		rooms.POST("", gameHandler.CreateRoom)
		rooms.POST("/join", gameHandler.JoinRoom)
		rooms.POST("/ready", gameHandler.Ready)
		rooms.POST("/attack", gameHandler.Attack)
		rooms.GET("/state", gameHandler.State)
		rooms.DELETE("/session", gameHandler.Leave)
	}
	router.GET("/ws", auth, ws.HandleConnection)
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

	app.HttpServer = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("Application assembled successfully")
	return app, nil
}

// Start 启动后台 goroutine 和 HTTP 服务器
func (a *App) Start() {
	go a.Hub.Run()
	if a.AsynqServer != nil {
		go a.AsynqServer.Start()
	}
	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 先取消所有房间订阅
	if a.Hub != nil {
		a.Hub.Stop()
	}
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	if a.HttpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.HttpServer.Shutdown(ctx); err != nil {
			a.Log.Errorf("Error shutting down HTTP server: %v", err)
		}
	}
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			}
		}
	}
	a.Log.Info("Application shutdown complete.")
}

// CORSMiddleware 允许前端从 allowedOrigin 发起跨域请求
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  time.Since(startTime).Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})
		if playerID := c.GetString("player_id"); playerID != "" {
			entry = entry.WithField("player_id", playerID)
		}

		if msg := c.Errors.ByType(gin.ErrorTypePrivate).String(); msg != "" {
			entry.Error(msg)
			return
		}
		switch {
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
