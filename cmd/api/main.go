package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paperledger/internal/config"
	"paperledger/internal/db"
	"paperledger/internal/engine"
	"paperledger/internal/feed"
	"paperledger/internal/health"
	"paperledger/internal/httpserver"
	"paperledger/internal/ledger"
	"paperledger/internal/query"
	"paperledger/internal/webhook"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	var store ledger.Store
	var pool *pgxpool.Pool
	if cfg.DevMode {
		logger.Warn("running with in-memory store; state is lost on restart")
		store = ledger.NewMemory(cfg.InitialBalance, cfg.Currency)
	} else {
		pool, err = db.NewPool(ctx, cfg.DBDSN)
		if err != nil {
			logger.Fatal("database connect failed", zap.Error(err))
		}
		defer pool.Close()
		pg := ledger.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx, cfg.InitialBalance, cfg.Currency); err != nil {
			logger.Fatal("schema bootstrap failed", zap.Error(err))
		}
		store = pg
	}

	bus := feed.NewBus()
	eng := engine.New(store, logger, cfg.StorageTimeout)
	querySvc := query.NewService(store)
	router := httpserver.NewRouter(httpserver.RouterDeps{
		WebhookHandler: webhook.NewHandler(eng, cfg.WebhookSecret, bus, logger),
		QueryHandler:   query.NewHandler(querySvc),
		HealthHandler:  health.NewHandler(pool, time.Now()),
		WSHandler:      feed.NewWSHandler(bus, cfg.WebSocketOrigin),
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	logger.Info("server listening", zap.String("addr", cfg.HTTPAddr))
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
