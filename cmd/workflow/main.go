package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kitchenflow/order-workflow/internal/config"
	"github.com/kitchenflow/order-workflow/internal/inventory"
	kafkax "github.com/kitchenflow/order-workflow/internal/kafka"
	"github.com/kitchenflow/order-workflow/internal/notify"
	"github.com/kitchenflow/order-workflow/internal/orders"
	"github.com/kitchenflow/order-workflow/internal/postgres"
	"github.com/kitchenflow/order-workflow/internal/redisx"
	"github.com/kitchenflow/order-workflow/internal/store"
	"github.com/kitchenflow/order-workflow/internal/workflow"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	st := store.NewPostgres(db)
	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatal("ensure schema", zap.Error(err))
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start()
	bus := &kafkax.Bus{P: prod}

	repo := &orders.Repo{Store: st}
	ledger := &inventory.Ledger{Store: st}
	notifier := &notify.Notifier{
		Channel: &kafkax.TopicChannel{P: prod, Topic: orders.TopicNotifications},
		Log:     log,
	}
	engine := &workflow.Engine{
		Repo:     repo,
		Ledger:   ledger,
		Sink:     bus,
		Notifier: notifier,
		Log:      log,
		Producer: cfg.ServiceName + "-workflow",
	}
	cons := &workflow.Consumers{
		Engine: engine,
		Dedup:  &redisx.Dedup{Client: rdb, Service: cfg.WorkflowGroup},
		Log:    log,
	}

	subscriptions := []struct {
		topic   string
		handler kafkax.Handler
	}{
		{orders.TopicOrderCreated, cons.HandleOrderCreated},
		{orders.TopicAdvanceStage, cons.HandleAdvanceStage},
		{orders.TopicOrderRejected, cons.HandleOrderRejected},
	}
	for _, sub := range subscriptions {
		c := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkflowGroup, sub.topic, cfg.WorkflowWorkers, log)
		topic := sub.topic
		handler := sub.handler
		go func() {
			log.Info("consumer started",
				zap.String("group", cfg.WorkflowGroup),
				zap.String("topic", topic),
				zap.Int("workers", cfg.WorkflowWorkers))
			if err := c.Start(ctx, handler); err != nil {
				log.Error("consumer exit", zap.String("topic", topic), zap.Error(err))
				cancel()
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumers")
	cancel()
	time.Sleep(500 * time.Millisecond)
	prod.Close()
	prod.WaitClosed()
}
