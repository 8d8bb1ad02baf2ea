package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kitchenflow/order-workflow/internal/config"
	"github.com/kitchenflow/order-workflow/internal/httpx"
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

	// DB-backed keyed store
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	st := store.NewPostgres(db)
	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatal("ensure schema", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer + bus
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start()
	bus := &kafkax.Bus{P: prod}

	// Wiring
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
		Producer: cfg.ServiceName,
	}

	router := httpx.NewRouter()
	h := &httpx.Handler{
		Repo:          repo,
		Engine:        engine,
		Ledger:        ledger,
		Bus:           bus,
		Redis:         rdb,
		Log:           log,
		Service:       cfg.ServiceName,
		DefaultTenant: cfg.DefaultTenant,
	}
	h.Register(router)

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
	prod.WaitClosed()
}
