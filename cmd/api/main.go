package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"k8s.io/utils/clock"

	"github.com/yourusername/evaluation-api/internal/client/collab"
	"github.com/yourusername/evaluation-api/internal/config"
	"github.com/yourusername/evaluation-api/internal/domain/repository"
	"github.com/yourusername/evaluation-api/internal/handler"
	"github.com/yourusername/evaluation-api/internal/middleware"
	pgRepo "github.com/yourusername/evaluation-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/evaluation-api/internal/repository/redis"
	"github.com/yourusername/evaluation-api/internal/service"
	"github.com/yourusername/evaluation-api/internal/service/grading"
	"github.com/yourusername/evaluation-api/internal/service/history"
	"github.com/yourusername/evaluation-api/internal/service/provider"
	"github.com/yourusername/evaluation-api/internal/service/review"
	"github.com/yourusername/evaluation-api/internal/service/session"
	ws "github.com/yourusername/evaluation-api/internal/websocket"
	"github.com/yourusername/evaluation-api/pkg/auth"
	"github.com/yourusername/evaluation-api/pkg/database"
)

// collaborators - реализации контрактов поставщика оценок, сервиса оценивания и истории
type collaborators struct {
	evaluations repository.EvaluationProvider
	grading     repository.GradingService
	history     repository.HistoryProvider

	// Только в локальном режиме: публикуются эндпоинты коллабораторов
	local      *grading.Service
	catalogue  repository.EvaluationRepository
	localStore *gorm.DB
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	isProduction := gin.Mode() == gin.ReleaseMode

	collabs, err := newCollaborators(cfg, !isProduction)
	if err != nil {
		log.Printf("Failed to initialize collaborators: %v", err)
		os.Exit(1)
	}

	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	jwtService, err := auth.NewJWTService(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		time.Duration(cfg.JWT.TokenTTLHrs)*time.Hour,
		time.Duration(cfg.JWT.WSTicketExpirySec)*time.Second,
	)
	if err != nil {
		log.Printf("Failed to initialize JWTService: %v", err)
		os.Exit(1)
	}

	notifier, err := newNotifier(cfg)
	if err != nil {
		log.Printf("Failed to initialize result notifier: %v", err)
		os.Exit(1)
	}

	// --- WebSocket ---
	wsHub := ws.NewHub()
	wsManager := ws.NewManager(wsHub)

	// --- Сессии ---
	sessionConfig := session.DefaultConfig()
	sessionConfig.TickInterval = cfg.Session.TickInterval()
	sessionConfig.SubmitTimeout = cfg.Session.SubmitTimeout()
	sessionConfig.LockTTL = cfg.Session.LockTTL()

	managerConfig := service.DefaultSessionManagerConfig()
	managerConfig.CompletedRetention = time.Duration(cfg.Session.CompletedRetentionMin) * time.Minute
	managerConfig.MaxSessionAge = time.Duration(cfg.Session.MaxSessionAgeHrs) * time.Hour

	sessionManager := service.NewSessionManager(
		managerConfig,
		sessionConfig,
		session.Dependencies{
			Evaluations: provider.NewCachedEvaluationProvider(collabs.evaluations, cacheRepo, cfg.Session.EvaluationCacheTTL()),
			Grading:     collabs.grading,
			CacheRepo:   cacheRepo,
			Clock:       clock.RealClock{},
		},
		wsManager,
		notifier,
	)

	aggregator := history.NewAggregator(collabs.history, cfg.Session.PassThreshold, cfg.Session.HistoryLimit)
	reconciler := review.NewReconciler(collabs.grading)

	// Обработчики
	sessionHandler := handler.NewSessionHandler(sessionManager, jwtService)
	historyHandler := handler.NewHistoryHandler(aggregator, reconciler)
	wsHandler := handler.NewWSHandler(wsManager, sessionManager, jwtService, cfg.CORS.AllowedOrigins)

	authMiddleware := middleware.NewAuthMiddleware(jwtService)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	router := gin.Default()

	// В production не доверяем прокси-заголовкам (защита от IP spoofing)
	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", collab.SessionHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": sessionManager.Count()})
	})

	api := router.Group("/api")
	{
		// Маршруты учащегося
		learner := api.Group("")
		learner.Use(authMiddleware.RequireAuth())
		{
			learner.POST("/evaluations/:id/sessions",
				middleware.ExtractUintParam("id", "evaluationID"),
				rateLimiter.Limit(middleware.SessionOpenRateLimitConfig()),
				sessionHandler.OpenSession)

			sessions := learner.Group("/sessions/:sid")
			sessions.Use(middleware.ExtractUUIDParam("sid", "sessionID"))
			{
				sessions.GET("", sessionHandler.GetSession)
				sessions.DELETE("", sessionHandler.Abandon)
				sessions.POST("/load", sessionHandler.ReloadSession)
				sessions.POST("/next", sessionHandler.Next)
				sessions.POST("/previous", sessionHandler.Previous)
				sessions.POST("/goto", sessionHandler.GoTo)
				sessions.PUT("/answer", sessionHandler.Answer)
				sessions.POST("/submit", rateLimiter.Limit(middleware.SubmitRateLimitConfig()), sessionHandler.Submit)
				sessions.POST("/retake", rateLimiter.Limit(middleware.SessionOpenRateLimitConfig()), sessionHandler.Retake)
				sessions.POST("/ws-ticket", sessionHandler.IssueWSTicket)
			}

			me := learner.Group("/me")
			{
				me.GET("/attempts", historyHandler.ListMyAttempts)
				me.GET("/attempts/export", historyHandler.ExportMyAttempts)
				me.GET("/stats", historyHandler.GetMyStats)
			}

			learner.GET("/attempts/:id/review", middleware.ExtractUintParam("id", "attemptID"), historyHandler.GetReview)
		}

		// Контракты коллабораторов публикуются только встроенной реализацией
		if collabs.local != nil {
			providerHandler := handler.NewProviderHandler(collabs.local, collabs.catalogue, cfg.Session.HistoryLimit)

			internal := api.Group("")
			internal.Use(middleware.RequireServiceKey(cfg.Collaborators.ServiceKey))
			{
				internal.GET("/evaluations", providerHandler.ListEvaluations)
				internal.POST("/evaluations", providerHandler.CreateEvaluation)
				internal.GET("/evaluations/:id", middleware.ExtractUintParam("id", "evaluationID"), providerHandler.GetEvaluation)
				internal.POST("/evaluations/:id/attempts", middleware.ExtractUintParam("id", "evaluationID"), providerHandler.SubmitAttempt)
				internal.GET("/attempts/:id", middleware.ExtractUintParam("id", "attemptID"), providerHandler.GetAttemptDetail)
				internal.GET("/employes/:id/attempts", middleware.ExtractUintParam("id", "employeID"), providerHandler.ListAttempts)
			}
		}

		api.GET("/ws/metrics", middleware.RequireServiceKey(cfg.Collaborators.ServiceKey), wsHandler.GetMetrics)
	}

	// WebSocket маршрут
	router.GET("/ws", wsHandler.HandleConnection)

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		// Сессии закрываются после HTTP: новые команды уже не приходят
		sessionManager.Shutdown()

		if err := redisClient.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
		}
		if collabs.localStore != nil {
			if sqlDB, dbErr := database.GetSQLDB(collabs.localStore); dbErr == nil {
				sqlDB.Close()
			}
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server stopped with error: %v", err)
		os.Exit(1)
	}
	log.Println("Server exited properly")
}

// newCollaborators подключает встроенные коллабораторы на PostgreSQL или HTTP-клиент удаленных
func newCollaborators(cfg *config.Config, verboseSQL bool) (*collaborators, error) {
	if cfg.Collaborators.Mode == config.CollaboratorsRemote {
		httpClient := &http.Client{Timeout: time.Duration(cfg.Collaborators.TimeoutSec) * time.Second}
		client := collab.NewClient(cfg.Collaborators.BaseURL, cfg.Collaborators.ServiceKey, httpClient)
		log.Printf("Коллабораторы: удаленные (%s)", cfg.Collaborators.BaseURL)
		return &collaborators{evaluations: client, grading: client, history: client}, nil
	}

	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString(), verboseSQL)
	if err != nil {
		return nil, err
	}
	if err := database.MigrateDB(db, database.DefaultMigrationsSource); err != nil {
		return nil, err
	}

	evaluationRepo := pgRepo.NewEvaluationRepo(db)
	local := grading.NewService(evaluationRepo, pgRepo.NewAttemptRepo(db))
	log.Println("Коллабораторы: встроенные (PostgreSQL)")
	return &collaborators{
		evaluations: local,
		grading:     local,
		history:     local,
		local:       local,
		catalogue:   evaluationRepo,
		localStore:  db,
	}, nil
}

// newNotifier выбирает отправку результата по e-mail или пустую реализацию
func newNotifier(cfg *config.Config) (service.ResultNotifier, error) {
	if !cfg.Email.Enabled {
		log.Println("Письма с результатом отключены")
		return &service.NoopResultNotifier{}, nil
	}
	return service.NewResendResultNotifier(cfg.Email.ResendAPIKey, cfg.Email.From, cfg.Session.PassThreshold)
}
