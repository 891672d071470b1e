package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/bridgedesk/escalation-service/internal/api/http"
	"github.com/bridgedesk/escalation-service/internal/api/http/handlers"
	"github.com/bridgedesk/escalation-service/internal/auth"
	"github.com/bridgedesk/escalation-service/internal/blob"
	"github.com/bridgedesk/escalation-service/internal/config"
	"github.com/bridgedesk/escalation-service/internal/events"
	"github.com/bridgedesk/escalation-service/internal/observability"
	"github.com/bridgedesk/escalation-service/internal/persistence"
	"github.com/bridgedesk/escalation-service/internal/repository"
	"github.com/bridgedesk/escalation-service/internal/service"
	"github.com/bridgedesk/escalation-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	blobStore, err := newBlobStore(cfg.Blob, redis)
	if err != nil {
		logger.Fatal("failed to init blob store", zap.Error(err))
	}

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	activityRepo := repository.NewActivityRepository(pool)
	attachmentRepo := repository.NewAttachmentRepository(pool)
	deletionRepo := repository.NewDeletionRequestRepository(pool)
	metricsRepo := repository.NewMetricsRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.NewNotificationWorker(cfg.Notification, dispatcher, logger)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAuthService(userRepo, tokenManager, cfg.Auth.BcryptCost, logger)
	attachmentService := service.NewAttachmentService(attachmentRepo, ticketRepo, activityRepo, blobStore, dispatcher, logger)
	assignmentService := service.NewAssignmentService(ticketRepo, userRepo, activityRepo, dispatcher, logger)
	deletionService := service.NewDeletionService(deletionRepo, attachmentService, dispatcher, logger, cfg.Deletion.OTPTTL())
	managerService := service.NewManagerService(ticketRepo, userRepo, metricsRepo, logger)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   ticketRepo,
		UserRepo:     userRepo,
		ActivityRepo: activityRepo,
		Attachments:  attachmentService,
		Assignments:  assignmentService,
		Dispatcher:   dispatcher,
		Logger:       logger,
		Metrics:      metrics,
	})

	authMiddleware := auth.NewAuthMiddleware(tokenManager, userRepo)

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: 32 * 1024 * 1024,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService, assignmentService),
		Attachments:    handlers.NewAttachmentsHandler(attachmentService, deletionService),
		Managers:       handlers.NewManagersHandler(managerService, assignmentService),
		Admin:          handlers.NewAdminHandler(authService, attachmentService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func newBlobStore(cfg config.BlobConfig, redis *persistence.Redis) (blob.Store, error) {
	if cfg.Driver == "local" {
		return blob.NewLocalStore(cfg.LocalDir)
	}
	return blob.NewRedisStore(redis.Client, cfg.KeyPrefix), nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
