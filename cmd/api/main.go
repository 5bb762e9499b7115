package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/haiminhvu/mailflow/internal/config"
	"github.com/haiminhvu/mailflow/internal/domain"
	"github.com/haiminhvu/mailflow/internal/handler"
	"github.com/haiminhvu/mailflow/internal/infra/postgresql"
	"github.com/haiminhvu/mailflow/internal/infra/postgresql/migrations"
	infraredis "github.com/haiminhvu/mailflow/internal/infra/redis"
	"github.com/haiminhvu/mailflow/internal/observability"
	"github.com/haiminhvu/mailflow/internal/provider"
	"github.com/haiminhvu/mailflow/internal/repository"
	"github.com/haiminhvu/mailflow/internal/service"
	"github.com/haiminhvu/mailflow/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	limiter, err := infraredis.NewRedisDailyCounter(rdb, cfg.DailyCap)
	if err != nil {
		logger.Fatal("daily counter initialization failed", zap.Error(err))
	}

	knowledge, err := domain.LoadKnowledgeFile(cfg.KnowledgeFile)
	if err != nil {
		logger.Fatal("knowledge base load failed", zap.Error(err))
	}
	logger.Info("knowledge base loaded", zap.Int("domains", len(knowledge)))

	mailer, importSvc, err := buildMailer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("mailer initialization failed", zap.Error(err))
	}

	jobRepo := repository.NewGormJobRepo(db)
	sendLogRepo := repository.NewGormSendLogRepo(db)
	stateRepo := repository.NewGormWorkerStateRepo(db)

	metrics := observability.NewMetrics()

	worker, err := service.NewWorker(jobRepo, stateRepo, sendLogRepo, mailer, limiter, cfg.FromOverride, logger)
	if err != nil {
		logger.Fatal("worker initialization failed", zap.Error(err))
	}
	worker.SetMetrics(metrics)

	batchSvc, err := service.NewBatchService(jobRepo, sendLogRepo, limiter, knowledge, worker, logger)
	if err != nil {
		logger.Fatal("batch service initialization failed", zap.Error(err))
	}

	heartbeat, err := service.NewHeartbeat(worker, jobRepo, stateRepo, logger)
	if err != nil {
		logger.Fatal("heartbeat initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      "mailflow",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterBatchRoutes(app, batchSvc); err != nil {
		logger.Fatal("batch routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterWorkerRoutes(app, worker, limiter); err != nil {
		logger.Fatal("worker routes registration failed", zap.Error(err))
	}
	if importSvc != nil {
		if err := handler.RegisterImportRoutes(app, importSvc); err != nil {
			logger.Fatal("import routes registration failed", zap.Error(err))
		}
	}

	if err := worker.Recover(ctx); err != nil {
		logger.Error("worker recovery failed", zap.Error(err))
	}

	if err := heartbeat.Start(); err != nil {
		logger.Fatal("heartbeat start failed", zap.Error(err))
	}
	defer heartbeat.Stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("mailflow api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		worker.Stop(context.Background())
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := group.Wait(); err != nil {
		logger.Error("api terminated", zap.Error(err))
	}
}

// buildMailer picks the configured outbound provider. The sheet importer
// rides on the same OAuth credentials and is only available with the
// gmail driver.
func buildMailer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (provider.Mailer, *service.ImportService, error) {
	switch cfg.MailerDriver {
	case config.MailerSMTP:
		mailer, err := provider.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
		if err != nil {
			return nil, nil, err
		}
		return mailer, nil, nil

	default:
		scopes := append([]string{}, provider.GmailScopes...)
		scopes = append(scopes, provider.SheetsScopes...)
		creds, err := provider.NewOAuthCredentialProvider(ctx,
			cfg.OAuthClientID, cfg.OAuthClientSecret, cfg.OAuthRefreshToken, scopes)
		if err != nil {
			return nil, nil, err
		}

		mailer, err := provider.NewGmailMailer(cfg.GmailAPIBaseURL, creds)
		if err != nil {
			return nil, nil, err
		}

		sheets, err := provider.NewSheetsReader(cfg.SheetsAPIBaseURL, creds)
		if err != nil {
			return nil, nil, err
		}
		importSvc, err := service.NewImportService(sheets, logger)
		if err != nil {
			return nil, nil, err
		}

		return mailer, importSvc, nil
	}
}
