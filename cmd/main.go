package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antonio12761/roxy-bar-sub000/internal/cache"
	"github.com/antonio12761/roxy-bar-sub000/internal/config"
	"github.com/antonio12761/roxy-bar-sub000/internal/database"
	"github.com/antonio12761/roxy-bar-sub000/internal/events"
	"github.com/antonio12761/roxy-bar-sub000/internal/inventory"
	"github.com/antonio12761/roxy-bar-sub000/internal/logger"
	"github.com/antonio12761/roxy-bar-sub000/internal/merge"
	"github.com/antonio12761/roxy-bar-sub000/internal/messaging"
	"github.com/antonio12761/roxy-bar-sub000/internal/metrics"
	"github.com/antonio12761/roxy-bar-sub000/internal/models"
	"github.com/antonio12761/roxy-bar-sub000/internal/orders"
	"github.com/antonio12761/roxy-bar-sub000/internal/server"
	"github.com/antonio12761/roxy-bar-sub000/internal/storage"
)

func main() {
	var (
		configPath     = flag.String("config", "config.yaml", "Path to config file")
		port           = flag.Int("port", 0, "HTTP port (overrides config)")
		migrationsPath = flag.String("migrations", "migrations", "Path to migration files")
		mode           = flag.String("mode", "coordinator", "Service mode (coordinator, board-feed)")
		prefetch       = flag.Int("prefetch", 10, "Broker prefetch count (board-feed mode)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"port":   cfg.Server.Port,
		"tenant": cfg.Server.Tenant,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		cancel()
	}()

	switch *mode {
	case "coordinator":
		err = run(ctx, cfg, log, *migrationsPath)
	case "board-feed":
		err = runBoardFeed(ctx, cfg, log, *prefetch)
	default:
		err = fmt.Errorf("unknown mode: %s", *mode)
	}
	if err != nil {
		log.Error("service_failed", fmt.Sprintf("%s failed", *mode), requestID, err, nil)
		os.Exit(1)
	}
}

// runBoardFeed tails the order_alerts queue and logs order activity for
// display boards that follow the mirror instead of the push channel.
func runBoardFeed(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer conn.Close()

	consumer := messaging.NewConsumer(conn, log, "order_alerts", "board-feed", prefetch)
	err = consumer.Consume(ctx, func(ctx context.Context, routingKey string, body []byte) error {
		var e models.Envelope
		if err := messaging.DecodeEvent(body, &e); err != nil {
			return fmt.Errorf("failed to decode event: %w", err)
		}
		log.Info("board_event", fmt.Sprintf("Order activity: %s", e.Name), "", map[string]interface{}{
			"event":          e.Name,
			"correlation_id": e.CorrelationID.String(),
			"emitted_at":     e.EmittedAt,
		})
		return nil
	})
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, migrationsPath string) error {
	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrationsPath); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// The event mirror is optional: a venue without a broker still runs.
	var mirror events.Mirror
	if cfg.MirrorEnabled() {
		conn, err := messaging.New(cfg, log)
		if err != nil {
			log.Error("mirror_unavailable", "Event mirror disabled, broker unreachable", "startup", err, nil)
		} else {
			defer conn.Close()
			mirror = messaging.NewPublisher(conn, log)
		}
	}

	m := metrics.New(nil, "order-coordinator")
	dispatcher := events.NewDispatcher(log, m)
	defer dispatcher.Close()

	orderCache := cache.New[*models.Order](cache.TTLForRole(models.RoleCashier), 1024)
	notifier := events.NewNotifier(dispatcher, mirror, orderCache, log)

	store := storage.NewPostgres(db, log)
	ledger := inventory.NewLedger()
	audit := orders.NewTransitionAudit(log)
	broker := merge.NewBroker(store, ledger, notifier, log)
	service := orders.NewService(store, ledger, audit, broker, notifier, log)

	handler := server.NewHandler(service, broker, notifier, m, log, cfg.Server.Tenant)
	srv := server.New(cfg.Server.Port, handler, dispatcher, m, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
