package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/adisetya/go-shop-orders/internal/config"
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

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// retries re-enqueue through the same producer the API publishes with
	prod := kafkax.NewProducer(cfg.KafkaBrokers, cfg.NotifyTopic, 1024, log)
	prod.Start(ctx)

	queue := notify.NewQueue(prod)
	recorder := notify.NewRedisRecorder(rdb)
	repo := &orders.Repo{DB: db}
	worker := notify.NewWorker(queue, recorder, repo, log)

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifyGroup, cfg.NotifyTopic, cfg.NotifyWorkers, log)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		cancel()
	}()

	log.Info("notification worker started",
		zap.String("topic", cfg.NotifyTopic),
		zap.String("group", cfg.NotifyGroup),
		zap.Int("workers", cfg.NotifyWorkers))
	if err := cons.Start(ctx, worker.Handle); err != nil {
		log.Fatal("consumer", zap.Error(err))
	}

	prod.Close()
	prod.WaitClosed()
}
