package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tutorhub_backend/internal/config"
	"tutorhub_backend/internal/controller"
	"tutorhub_backend/internal/repository"
	"tutorhub_backend/internal/service"
	"tutorhub_backend/pkg/clock"
	"tutorhub_backend/pkg/configwatcher"
	"tutorhub_backend/pkg/database"
	"tutorhub_backend/pkg/logger"
	"tutorhub_backend/pkg/monitoring"
	"tutorhub_backend/pkg/security"
	"tutorhub_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	cron            *cron.Cron
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user    *repository.UserRepository
	group   *repository.GroupRepository
	quiz    *repository.QuizRepository
	attempt *repository.AttemptRepository
}

type services struct {
	auth    *service.AuthService
	quiz    *service.QuizService
	attempt *service.AttemptService
	stats   *service.StatsService
}

type controllers struct {
	auth    *controller.AuthController
	quiz    *controller.QuizController
	attempt *controller.AttemptController
	group   *controller.GroupController
	health  *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *repositories {
	snapshotTTL := time.Duration(cfg.Quiz.SnapshotCacheTTLs) * time.Second
	return &repositories{
		user:    repository.NewUserRepository(db),
		group:   repository.NewGroupRepository(db),
		quiz:    repository.NewQuizRepository(db, rdb, snapshotTTL),
		attempt: repository.NewAttemptRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	clk := clock.System()
	return &services{
		auth:    service.NewAuthService(repos.user, cfg),
		quiz:    service.NewQuizService(repos.quiz, repos.group, repos.attempt, clk),
		attempt: service.NewAttemptService(repos.attempt, repos.quiz, clk),
		stats:   service.NewStatsService(repos.attempt, repos.quiz),
	}
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:    controller.NewAuthController(s.auth),
		quiz:    controller.NewQuizController(s.quiz, s.attempt, s.stats),
		attempt: controller.NewAttemptController(s.attempt, s.quiz, repos.quiz, repos.group),
		group:   controller.NewGroupController(repos.group, repos.user),
		health:  controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 100000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 启动超时清扫。
// 清扫只是兜底：超时尝试即使没被扫到，也会在下一次读取/提交时被惰性结算。
func (a *App) startBackgroundTasks(s *services, repos *repositories, cfg *config.Config) {
	if !cfg.Quiz.SweepEnabled {
		return
	}

	a.cron = cron.New()
	_, err := a.cron.AddFunc(cfg.Quiz.SweepCron, func() {
		rows, err := repos.attempt.ListExpiredInProgress(time.Now())
		if err != nil {
			logger.Log.Error("timeout sweep query failed", zap.Error(err))
			return
		}
		for _, row := range rows {
			if _, err := s.attempt.DetectTimeout(context.Background(), row.ID); err != nil {
				logger.Log.Error("timeout sweep failed for attempt",
					zap.String("attemptId", row.ID),
					zap.Error(err))
			}
		}
		if len(rows) > 0 {
			logger.Log.Info("timeout sweep finished", zap.Int("swept", len(rows)))
		}
	})
	if err != nil {
		logger.Log.Error("failed to schedule timeout sweep", zap.Error(err))
		return
	}
	a.cron.Start()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db, rdb, cfg)
	services := app.initServices(repos, cfg)
	app.services = services
	controllers := app.initControllers(services, repos, db, rdb)

	// 监控初始化
	monitoring.Init()

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("tutorhub", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, repos, cfg)

	app.startBackgroundTasks(services, repos, cfg)

	// 配置热更新：重载后通知各订阅方
	go configwatcher.WatchConfig(filepath.Join("configs", "config.yaml"), func(newCfg *config.Config) {
		logger.Log.Info("configuration reloaded")
		app.Config = newCfg
		for _, callback := range app.configCallbacks {
			callback(newCfg)
		}
	})

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	if a.cron != nil {
		a.cron.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Log.Sync()
	log.Println("Server exiting")
}
