package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/apenugon/testgrowth-sub000/internal/adapter/shopify"
	"github.com/apenugon/testgrowth-sub000/internal/api"
	"github.com/apenugon/testgrowth-sub000/internal/config"
	"github.com/apenugon/testgrowth-sub000/internal/model"
	"github.com/apenugon/testgrowth-sub000/internal/queue"
	"github.com/apenugon/testgrowth-sub000/internal/repository"
	"github.com/apenugon/testgrowth-sub000/internal/service"
)

// ensureDatabaseExists connects to the default postgres database and creates
// the target database when missing (idempotent). dsn must be URL form.
func ensureDatabaseExists(dsn string) error {
	u, err := url.Parse(dsn)
	if err != nil {
		return err
	}
	dbname := strings.TrimPrefix(u.Path, "/")
	if idx := strings.Index(dbname, "?"); idx >= 0 {
		dbname = dbname[:idx]
	}
	dbname = strings.TrimSpace(dbname)
	if dbname == "" || dbname == "postgres" {
		return nil
	}
	u.Path = "/postgres"
	db, err := sql.Open("pgx", u.String())
	if err != nil {
		return err
	}
	defer db.Close()
	err = db.QueryRow("SELECT 1 FROM pg_database WHERE datname = $1", dbname).Scan(new(int))
	if errors.Is(err, sql.ErrNoRows) {
		_, err = db.Exec("CREATE DATABASE " + `"` + strings.ReplaceAll(dbname, `"`, `""`) + `"`)
		return err
	}
	return err
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.Info("config loaded")

	gormLogger := gormlogger.Default.LogMode(gormlogger.Warn)
	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{Logger: gormLogger})
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") || strings.Contains(err.Error(), "3D000") {
			logger.Info("target database missing, creating it")
			if e := ensureDatabaseExists(cfg.Postgres.DSN); e != nil {
				logger.Fatalf("create database: %v", e)
			}
			db, err = gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{Logger: gormLogger})
		}
		if err != nil {
			logger.Fatalf("connect postgres: %v", err)
		}
	}
	logger.Info("postgres connected")

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatalf("unwrap sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)

	if err := db.AutoMigrate(
		&model.Contest{},
		&model.Store{},
		&model.ContestParticipant{},
		&model.WebhookSubscription{},
		&model.ContestStoreBalance{},
		&model.OrderEvent{},
	); err != nil {
		logger.Fatalf("migrate schema: %v", err)
	}
	logger.Info("schema migrated")

	contestRepo := repository.NewContestRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// capability check, once at startup: without a managed queue the engine
	// runs disabled behind the same interface
	var engine service.Engine
	if cfg.PubSub.Enabled() {
		queueTopics := make([]string, 0, len(model.Kinds()))
		for _, k := range model.Kinds() {
			queueTopics = append(queueTopics, k.QueueTopic)
		}
		subscriber, err := queue.NewPubSubSubscriber(ctx, &cfg.PubSub, queueTopics, logger)
		if err != nil {
			logger.Fatalf("connect pubsub: %v", err)
		}
		defer subscriber.Close()

		registrar := shopify.NewAdapter(&cfg.Shopify, logger)
		provisioner := service.NewProvisionerService(contestRepo, subRepo, balanceRepo, registrar, &cfg.PubSub, logger)
		consumer := service.NewConsumerService(db, logger)
		engine = service.NewEngine(provisioner, consumer, subscriber)
		logger.WithField("project", cfg.PubSub.Project).Info("ingestion engine enabled")
	} else {
		engine = service.NewDisabledEngine(logger)
	}

	go func() {
		if err := engine.Run(ctx); err != nil {
			logger.Fatalf("consumer stopped: %v", err)
		}
	}()

	lifecycle := service.NewLifecycleService(contestRepo, balanceRepo, engine, logger)
	recalc := service.NewRecalcService(contestRepo, ledgerRepo, balanceRepo, logger)
	balances := service.NewBalanceService(contestRepo, balanceRepo, ledgerRepo, logger)

	gin.SetMode(cfg.Server.Mode)
	r := gin.Default()
	r.Use(api.RequestID())
	pprof.Register(r)

	balanceHandler := api.NewBalanceHandler(balances, logger)
	r.GET("/api/contests/:contest_id/balances", balanceHandler.GetContestBalances)
	r.GET("/api/stores/:store_id/events", balanceHandler.ListStoreEvents)
	r.POST("/api/stores/:store_id/disconnect", balanceHandler.DisconnectStore)

	engineHandler := api.NewEngineHandler(engine, lifecycle, recalc, logger)
	r.POST("/api/contests/:contest_id/webhooks/setup", engineHandler.SetupWebhooks)
	r.POST("/api/contests/:contest_id/webhooks/remove", engineHandler.RemoveWebhooks)
	r.POST("/api/contests/:contest_id/recalculate", engineHandler.Recalculate)
	r.POST("/api/contests/:contest_id/activate", engineHandler.Activate)
	r.POST("/api/contests/:contest_id/close", engineHandler.Close)
	r.POST("/api/contests/:contest_id/cancel", engineHandler.Cancel)
	r.POST("/api/lifecycle/sweep", engineHandler.Sweep)

	port := cfg.Server.Port
	logger.Infof("listening on :%d", port)
	if err := r.Run(fmt.Sprintf(":%d", port)); err != nil {
		logger.Fatalf("server: %v", err)
	}
}
