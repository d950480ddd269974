package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adisetya/go-shop-orders/internal/config"
	"github.com/adisetya/go-shop-orders/internal/httpx"
	"github.com/adisetya/go-shop-orders/internal/payments"
	"github.com/adisetya/go-shop-orders/internal/postgres"
	"github.com/adisetya/go-shop-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, _ := zap.NewProduction()
	log = log.With(zap.String("service", cfg.ServiceName))
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := postgres.Migrate(cfg.MigrationsDir, cfg.PostgresDSN); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	repo := &payments.Repo{DB: db}
	ordersClient := payments.NewHTTPOrderClient(cfg.OrdersBaseURL)

	var provider payments.Provider = &payments.LocalProvider{}
	if cfg.ProviderAPIKey != "" {
		provider = payments.NewHTTPProvider(cfg.ProviderBaseURL, cfg.ProviderAPIKey, log)
	}

	svc := payments.NewService(repo, provider, ordersClient, log)
	guard := payments.NewGuard(repo, &payments.RedisDedup{Rdb: rdb}, ordersClient, cfg.WebhookSecret, log)

	router := httpx.NewRouter()
	ph := &httpx.PaymentsHandler{Service: svc, Guard: guard, Log: log}
	ph.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
}
