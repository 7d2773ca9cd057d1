package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rakhimjonshokirov/eventkit/aggregate"
	"github.com/rakhimjonshokirov/eventkit/api"
	"github.com/rakhimjonshokirov/eventkit/config"
	"github.com/rakhimjonshokirov/eventkit/domain"
	"github.com/rakhimjonshokirov/eventkit/domain/inventory"
	"github.com/rakhimjonshokirov/eventkit/domain/order"
	"github.com/rakhimjonshokirov/eventkit/domain/payment"
	"github.com/rakhimjonshokirov/eventkit/domain/reservation"
	"github.com/rakhimjonshokirov/eventkit/envport"
	"github.com/rakhimjonshokirov/eventkit/eventbus/rabbitbus"
	"github.com/rakhimjonshokirov/eventkit/eventstore/pg"
	"github.com/rakhimjonshokirov/eventkit/infrastructure/idempotency"
	"github.com/rakhimjonshokirov/eventkit/infrastructure/outbox"
	"github.com/rakhimjonshokirov/eventkit/saga/checkout"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := newLogger(cfg.Log)
	defer log.Sync()

	log.Info("starting ticketing service")

	// =====================================================
	// 1. Database connection (with retry, Docker-startup friendly)
	// =====================================================
	db := connectPostgres(cfg.Postgres.ConnectionString, log)
	defer db.Close()

	if _, err := db.Exec(pg.Schema); err != nil {
		log.Fatal("apply event store schema", zap.Error(err))
	}
	if _, err := db.Exec(idempotency.Schema); err != nil {
		log.Fatal("apply idempotency schema", zap.Error(err))
	}
	log.Info("event store schema ready")

	es := pg.New(db, log)

	// =====================================================
	// 2. Event bus (with retry)
	// =====================================================
	bus := rabbitbus.New(cfg.Rabbit, log)
	for i := 0; i < 10; i++ {
		if err = bus.Connect(); err == nil {
			break
		}
		log.Warn("rabbitmq connect attempt failed", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		log.Fatal("failed to connect to rabbitmq after 10 attempts", zap.Error(err))
	}
	defer bus.Close()
	log.Info("connected to rabbitmq")

	processedEvents := idempotency.New(db, log)

	// =====================================================
	// 3. Aggregate registries (spec's per-instance Store factories)
	// =====================================================
	domainEnv := domain.Environment{Store: es, Bus: bus, Clock: envport.SystemClock{}, IDs: envport.UUIDGenerator{}}

	orders := aggregate.New[order.State, order.Action, domain.Environment](
		es, order.StreamID, func() order.State { return order.State{} }, order.Rehydrate, order.Reducer{}, domainEnv)
	inventoryReg := aggregate.New[inventory.State, inventory.Action, domain.Environment](
		es, inventory.StreamID, func() inventory.State { return inventory.State{} }, inventory.Rehydrate, inventory.Reducer{}, domainEnv)
	payments := aggregate.New[payment.State, payment.Action, domain.Environment](
		es, payment.StreamID, func() payment.State { return payment.State{} }, payment.Rehydrate, payment.Reducer{}, domainEnv)
	reservations := aggregate.New[reservation.State, reservation.Action, domain.Environment](
		es, reservation.StreamID, func() reservation.State { return reservation.State{} }, reservation.Rehydrate, reservation.Reducer{}, domainEnv)
	log.Info("aggregate registries initialized")

	// =====================================================
	// 4. Checkout saga
	// =====================================================
	checkoutEnv := checkout.Environment{
		Domain: domainEnv, Orders: orders, Inventory: inventoryReg, Payments: payments, Reservations: reservations,
	}
	sagas := checkout.NewSagas(checkoutEnv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := checkout.Subscribe(ctx, bus, sagas, log, checkout.WithProcessedEvents(processedEvents)); err != nil {
		log.Fatal("failed to start checkout saga subscriber", zap.Error(err))
	}
	log.Info("checkout saga subscribed")

	// =====================================================
	// 5. HTTP server
	// =====================================================
	handler := api.NewCheckoutHandler(sagas, es, envport.UUIDGenerator{}, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", api.HealthCheck)
	mux.HandleFunc("/checkout", handler.Checkout)
	mux.HandleFunc("/orders/", handler.OrderHistory)

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux}

	// =====================================================
	// 6. Long-running loops (HTTP server, outbox publisher), joined by
	// an errgroup: an HTTP server error cancels gctx, which stops the
	// outbox loop; the server itself stops only via server.Shutdown below.
	// =====================================================
	outboxPub := outbox.New(db, bus, 0, log)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return outboxPub.Start(gctx)
	})
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// =====================================================
	// 7. Graceful shutdown
	// =====================================================
	log.Info("ticketing service started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Shutdown.DrainTimeoutSeconds)*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}
	cancel()

	if err := g.Wait(); err != nil {
		log.Error("service loop exited with error", zap.Error(err))
	}

	log.Info("shutdown complete")
}

func connectPostgres(dsn string, log *zap.Logger) *sql.DB {
	var db *sql.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sql.Open("postgres", dsn)
		if err == nil {
			if err = db.Ping(); err == nil {
				log.Info("connected to postgres")
				return db
			}
			db.Close()
		}
		log.Warn("postgres connect attempt failed", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	log.Fatal("failed to connect to postgres after 10 attempts", zap.Error(err))
	return nil
}

func newLogger(cfg config.LogConfig) *zap.Logger {
	var zcfg zap.Config
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
		zcfg.Level = level
	}
	log, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
