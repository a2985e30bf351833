package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"agilekit/internal/clock"
	httpHandler "agilekit/internal/handler/http"
	wsHandler "agilekit/internal/handler/websocket"
	"agilekit/internal/hub"
	gormpersistence "agilekit/internal/infra/persistence/gorm"
	"agilekit/internal/infra/persistence/memory"
	"agilekit/internal/infra/setup"
	localstate "agilekit/internal/infra/state/local"
	redisstate "agilekit/internal/infra/state/redis"
	"agilekit/internal/middleware"
	"agilekit/internal/repository"
	"agilekit/internal/scheduler"
	"agilekit/internal/service"
	"agilekit/internal/worker"
)

// eventBus 同时支持发布和订阅房间变更
type eventBus interface {
	repository.RoomEventBus
	repository.RoomEventSubscriber
}

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	Inspector   *asynq.Inspector
	AsynqServer *worker.WorkerServer
	Periodic    *worker.PeriodicScheduler
	Hub         *hub.Hub
	HttpServer  *http.Server

	events   eventBus
	timers   *scheduler.TimerScheduler
	demo     *service.DemoService
	stopSubs context.CancelFunc
}

// NewLogger 按配置初始化全局 logger。服务层通过 logrus 包级函数记录日志。
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.StandardLogger()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // cfg.LogLevel 已被 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	return log
}

// OpenDatabase 打开并迁移关系数据库。memory 驱动返回 nil。
func OpenDatabase(cfg *Config) (*gorm.DB, error) {
	if cfg.DBDriver == setup.DriverMemory {
		return nil, nil
	}
	db, err := setup.InitDB(setup.DBOptions{
		Driver: cfg.DBDriver,
		DSN:    cfg.DSN(),
		Debug:  cfg.AppEnv != "production" && cfg.LogLevel == "debug",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	return db, nil
}

// NewApp 创建并初始化应用的所有组件
func NewApp(cfg *Config) (*App, error) {
	// 1. 初始化 Logger
	log := NewLogger(cfg)
	log.Infof("Logger initialized (Level: %s, Env: %s)", log.GetLevel(), cfg.AppEnv)

	// 2. 初始化存储
	db, err := OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}
	var (
		roomStore   repository.RoomStore
		accountRepo repository.AccountRepository
	)
	if db != nil {
		roomStore = gormpersistence.NewGormRoomStore(db)
		accountRepo = gormpersistence.NewGormAccountRepository(db)
	} else {
		log.Warn("Using in-memory storage, data will be lost on restart")
		roomStore = memory.NewRoomStore()
		accountRepo = memory.NewAccountRepository()
	}

	// 3. 初始化 Redis 和 asynq
	redisClient, err := setup.InitRedis(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	asynqClient := asynq.NewClient(redisOpt)
	inspector := asynq.NewInspector(redisOpt)

	// 4. 事件总线和自动翻牌调度器
	redisBus := redisstate.NewRedisRoomEventBus(redisClient, cfg.KeyPrefix)
	var events eventBus = redisBus
	if cfg.EventBus == EventBusLocal {
		events = localstate.NewLocalRoomEventBus()
	}
	var (
		revealScheduler service.RevealScheduler
		timers          *scheduler.TimerScheduler
	)
	if cfg.RevealScheduler == SchedulerLocal {
		timers = scheduler.NewTimerScheduler(clock.Real())
		revealScheduler = timers
	} else {
		revealScheduler = worker.NewAsynqRevealScheduler(asynqClient, inspector)
	}
	log.WithFields(logrus.Fields{"event_bus": cfg.EventBus, "reveal_scheduler": cfg.RevealScheduler}).Info("Infrastructure initialized")

	// 5. 初始化 Services
	authService, err := service.NewAuthService(accountRepo, cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}
	roomService := service.NewRoomService(roomStore, events, revealScheduler, clock.Real(), cfg.AutoRevealCountdown)
	if timers != nil {
		timers.Bind(roomService.ExecuteAutoReveal)
	}
	memberService := service.NewMembershipService(roomService)
	issueService := service.NewIssueService(roomService)
	retentionService := service.NewRetentionService(roomStore, clock.Real(), cfg.Retention())
	var demoService *service.DemoService
	if cfg.DemoEnabled {
		demoService = service.NewDemoService(roomService, service.DefaultDemoRoundPause, time.Now().UnixNano())
	}

	// 6. 初始化 Hub
	hubInstance := hub.NewHub(roomService)

	// 7. 初始化 Worker
	handlers := worker.Handlers{Rooms: roomService, Sweeper: retentionService}
	if demoService != nil {
		handlers.Demo = demoService
	}
	workerServer := worker.NewWorkerServer(redisOpt, handlers, log)
	periodic, err := worker.NewPeriodicScheduler(redisOpt, cfg.DemoEnabled, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create periodic scheduler: %w", err)
	}

	// 8. 初始化 Gin Engine 和路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.RateLimit(redisBus, cfg.RateLimitMax, cfg.RateLimitWindow))

	authMiddleware := middleware.Auth(cfg.JWTSecret)
	httpHandler.RegisterRoutes(router.Group("/api"), httpHandler.Handlers{
		Auth:    httpHandler.NewAuthHandler(authService),
		Rooms:   httpHandler.NewRoomHandler(roomService),
		Members: httpHandler.NewMembershipHandler(memberService, roomService),
		Issues:  httpHandler.NewIssueHandler(issueService, roomService),
	}, authMiddleware)
	ws := wsHandler.NewWebSocketHandler(hubInstance, roomService, cfg.CORSOrigins)
	router.GET("/ws/room/:roomId", authMiddleware, ws.HandleConnection)
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

	// 9. 组装 App 对象
	app := &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		AsynqClient: asynqClient,
		Inspector:   inspector,
		AsynqServer: workerServer,
		Periodic:    periodic,
		Hub:         hubInstance,
		HttpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		events: events,
		timers: timers,
		demo:   demoService,
	}
	log.Info("Application assembled successfully")
	return app, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() error {
	go a.Hub.Run()

	// Hub 订阅房间变更，断线后重试
	ctx, cancel := context.WithCancel(context.Background())
	a.stopSubs = cancel
	go a.subscribe(ctx)

	if a.demo != nil {
		room, err := a.demo.EnsureDemoRoom(ctx)
		if err != nil {
			return fmt.Errorf("failed to ensure demo room: %w", err)
		}
		a.Log.WithField("room_id", room.ID).Info("Demo room ready")
	}

	if err := a.AsynqServer.Start(); err != nil {
		return err
	}
	if err := a.Periodic.Start(); err != nil {
		return fmt.Errorf("failed to start periodic scheduler: %w", err)
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
	return nil
}

func (a *App) subscribe(ctx context.Context) {
	for {
		err := a.events.Subscribe(ctx, a.Hub.HandleRoomChanged)
		if ctx.Err() != nil {
			return
		}
		a.Log.WithError(err).Warn("Room event subscription ended, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 先停止接收新请求
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	}

	// 2. 停止调度和任务处理
	a.Periodic.Shutdown()
	a.AsynqServer.Shutdown()
	if a.timers != nil {
		a.timers.Close()
	}

	// 3. 停止订阅并关闭所有 WebSocket 连接
	if a.stopSubs != nil {
		a.stopSubs()
	}
	a.Hub.Stop()

	// 4. 关闭客户端连接
	if err := a.Inspector.Close(); err != nil {
		a.Log.Errorf("Error closing Asynq inspector: %v", err)
	}
	if err := a.AsynqClient.Close(); err != nil {
		a.Log.Errorf("Error closing Asynq client: %v", err)
	}
	if err := a.RedisClient.Close(); err != nil {
		a.Log.Errorf("Error closing Redis connection: %v", err)
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

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()

		// token 可能出现在 WebSocket 的查询参数里，不记录查询串
		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
		})

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			entry.Error(errorMessage)
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
