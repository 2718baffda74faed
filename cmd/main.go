package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/anicol/peokops-sub001/internal/db"
	"github.com/anicol/peokops-sub001/internal/handlers"
	"github.com/anicol/peokops-sub001/internal/logger"
	"github.com/anicol/peokops-sub001/internal/middleware"
	"github.com/anicol/peokops-sub001/internal/observability"
	"github.com/anicol/peokops-sub001/internal/repos"
	"github.com/anicol/peokops-sub001/internal/selection"
	"github.com/anicol/peokops-sub001/internal/server"
	"github.com/anicol/peokops-sub001/internal/services"
	"github.com/anicol/peokops-sub001/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: utils.GetEnv("SERVICE_NAME", "checkrotation", log),
		Environment: utils.GetEnv("DEPLOY_ENV", "development", log),
		Version:     utils.GetEnv("SERVICE_VERSION", "dev", log),
	})
	defer shutdownOtel(ctx)

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("RUN_TOKEN_SECRET", "defaultsecret", log)
	desiredCount := utils.GetEnvAsInt("RUN_DESIRED_COUNT", 3, log)
	sweepMinutes := utils.GetEnvAsInt("SWEEP_INTERVAL_MINUTES", 60, log)
	expiryGraceMin := utils.GetEnvAsInt("RUN_EXPIRY_GRACE_MINUTES", 0, log)
	allowOrigins := utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	storeRepo := repos.NewStoreRepo(thePG, log)
	templateRepo := repos.NewTemplateRepo(thePG, log)
	coverageRepo := repos.NewCoverageRepo(thePG, log)
	runRepo := repos.NewRunRepo(thePG, log)
	responseRepo := repos.NewResponseRepo(thePG, log)
	streakRepo := repos.NewStreakRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	riskProvider, err := services.NewRedisRiskProvider(log)
	if err != nil {
		log.Warn("Risk provider unavailable, selection runs rule-only", "error", err)
		riskProvider = services.NoopRiskProvider{}
	}
	runNotifier, err := services.NewRedisRunNotifier(log)
	if err != nil {
		log.Warn("Run notifier unavailable, run.created events disabled", "error", err)
		runNotifier = services.NoopRunNotifier{}
	}
	var sweepLockRedis *goredis.Client
	if addr := utils.GetEnv("REDIS_ADDR", "", log); addr != "" {
		sweepLockRedis = goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: utils.GetEnv("REDIS_PASSWORD", "", log),
		})
	}
	tokenService := services.NewRunTokenService(log, jwtSecretKey, 48*time.Hour)
	engine := selection.NewEngine(selection.DefaultWeights(), time.Now().UnixNano())

	coverageService := services.NewCoverageService(thePG, log, coverageRepo)
	streakService := services.NewStreakService(thePG, log, streakRepo)
	catalogService := services.NewCatalogService(thePG, log, templateRepo, storeRepo)
	schedulerService := services.NewRunSchedulerService(
		thePG,
		log,
		storeRepo,
		templateRepo,
		coverageRepo,
		runRepo,
		engine,
		riskProvider,
		tokenService,
		runNotifier,
		services.SchedulerConfig{
			DesiredCount:   desiredCount,
			SweepInterval:  time.Duration(sweepMinutes) * time.Minute,
			ExpiryGrace:    time.Duration(expiryGraceMin) * time.Minute,
			SweepLockRedis: sweepLockRedis,
		},
	)
	schedulerService.StartSweep(ctx)
	runService := services.NewRunService(thePG, log, runRepo, responseRepo, storeRepo, coverageService, streakService)

	// Handlers
	log.Info("Setting up handlers from main...")
	runHandler := handlers.NewRunHandler(schedulerService, runService)
	templateHandler := handlers.NewTemplateHandler(catalogService)
	coverageHandler := handlers.NewCoverageHandler(coverageService, streakService)

	// Middleware
	log.Info("Setting up middleware from main...")
	runTokenMiddleware := middleware.NewRunTokenMiddleware(log, tokenService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		ServiceName:        utils.GetEnv("SERVICE_NAME", "checkrotation", log),
		AllowOrigins:       strings.Split(allowOrigins, ","),
		RunHandler:         runHandler,
		TemplateHandler:    templateHandler,
		CoverageHandler:    coverageHandler,
		RunTokenMiddleware: runTokenMiddleware,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
