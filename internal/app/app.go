package app

import (
	"context"
	"log"
	"mcq_tutor_backend/internal/config"
	"mcq_tutor_backend/internal/controller"
	"mcq_tutor_backend/internal/repository"
	"mcq_tutor_backend/internal/service"
	"mcq_tutor_backend/pkg/database"
	"mcq_tutor_backend/pkg/logger"
	"mcq_tutor_backend/pkg/monitoring"
	"mcq_tutor_backend/pkg/security"
	"mcq_tutor_backend/pkg/tracing"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	question    *repository.QuestionRepository
	explanation *repository.ExplanationRepository
}

type services struct {
	verifier  *service.AnswerVerifier
	retriever *service.EvidenceRetriever
	sessions  service.SessionStore
	gateway   *service.ModelGateway
	explainer *service.ExplanationService
	chat      *service.ChatService
}

type controllers struct {
	explanation *controller.ExplanationController
	chat        *controller.ChatController
	health      *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig 配置热加载：把可调参数下发到各服务
func (a *App) ApplyConfig(cfg *config.Config) {
	a.Config = cfg
	if a.services != nil {
		a.services.explainer.ApplyConfig(cfg)
		a.services.chat.ApplyConfig(cfg)
	}
	for _, callback := range a.configCallbacks {
		callback(cfg)
	}
	logger.Log.Info("Config reloaded",
		zap.String("cache_version", cfg.XAI.CacheVersion),
		zap.Int("reply_max_length", cfg.Chat.ReplyMaxLength))
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		question:    repository.NewQuestionRepository(db),
		explanation: repository.NewExplanationRepository(db, rdb),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.verifier = service.NewAnswerVerifier()
	s.retriever = service.NewEvidenceRetriever()

	// Redis 可用时会话跨实例共享，否则退化为进程内存储
	if rdb != nil {
		s.sessions = service.NewRedisSessionStore(rdb, cfg.Chat.SessionTTLMinutes, cfg.Chat.HistoryLimit)
	} else {
		s.sessions = service.NewMemorySessionStore(cfg.Chat.SessionTTLMinutes, cfg.Chat.HistoryLimit)
	}

	hosted := service.NewHostedBackend(cfg.AI)
	local := service.NewLocalBackend(cfg.Ollama)
	s.gateway = service.NewModelGateway(hosted, local, s.sessions)

	s.explainer = service.NewExplanationService(
		repos.question,
		repos.explanation,
		s.verifier,
		s.retriever,
		s.gateway,
		cfg.XAI,
	)

	s.chat = service.NewChatService(s.explainer, repos.question, s.gateway, cfg)

	return s
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		explanation: controller.NewExplanationController(s.explainer),
		chat:        controller.NewChatController(s.chat),
		health:      controller.NewHealthController(),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiterFromConfig(cfg.RateLimit))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(cfg)
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

	repos := app.initRepositories(db, rdb)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		_, err := tracing.InitTracer("mcq-tutor", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers)

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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
