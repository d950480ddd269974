package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adisetya/go-shop-orders/internal/catalog"
	"github.com/adisetya/go-shop-orders/internal/config"
	"github.com/adisetya/go-shop-orders/internal/httpx"
	kafkax "github.com/adisetya/go-shop-orders/internal/kafka"
	"github.com/adisetya/go-shop-orders/internal/notify"
	"github.com/adisetya/go-shop-orders/internal/orders"
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

	prod := kafkax.NewProducer(cfg.KafkaBrokers, cfg.NotifyTopic, 1024, log)
	prod.Start(ctx)

	repo := &orders.Repo{DB: db}
	cat := catalog.New(cfg.InventoryBaseURL, log)
	queue := notify.NewQueue(prod)
	svc := orders.NewService(repo, cat, cat, queue, log)

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{Service: svc, Redis: rdb}
	oh.Register(router)

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
	prod.Close()
	cancel()
	prod.WaitClosed()
}
