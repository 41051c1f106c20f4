/**
 * @description
 * This is the main entry point for the transfer-service. It wires together
 * configuration, the PostgreSQL pool, database migrations, the RabbitMQ
 * producer and two consumers (the saga orchestrator and the transfer status
 * projection), the Redis-backed idempotency cache, the outbox dispatcher, and
 * the HTTP server, then blocks until a shutdown signal.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/golang-migrate/migrate/v4: Schema migrations on startup.
 * - github.com/redis/go-redis/v9: Idempotency cache backend.
 * - internal/transfer/*: Service packages.
 * - pkg/outbox, pkg/rabbitmq, pkg/idempotency: Shared infrastructure.
 */

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mahmetunal/TransferHub/internal/transfer/api"
	"github.com/mahmetunal/TransferHub/internal/transfer/app"
	"github.com/mahmetunal/TransferHub/internal/transfer/config"
	"github.com/mahmetunal/TransferHub/internal/transfer/store"
	"github.com/mahmetunal/TransferHub/pkg/idempotency"
	"github.com/mahmetunal/TransferHub/pkg/messaging"
	"github.com/mahmetunal/TransferHub/pkg/outbox"
	"github.com/mahmetunal/TransferHub/pkg/rabbitmq"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"starting transfer-service\" port=%s", cfg.ServerPort)

	runMigrations(cfg.MigrationsPath, cfg.DatabaseURL)

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	repository := store.NewPostgresRepository(dbpool)

	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq producer failed\" err=%v", err)
	}
	defer producer.Close()

	// The orchestrator and the status projection consume the same events at
	// different paces, so each gets its own queue and channel.
	sagaConsumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq consumer failed\" err=%v", err)
	}
	defer sagaConsumer.Close()

	statusConsumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq consumer failed\" err=%v", err)
	}
	defer statusConsumer.Close()

	orchestrator := app.NewSagaEventConsumer(repository)
	if err := sagaConsumer.ConsumeWithBindings(messaging.Exchange, cfg.SagaEventQueue, orchestrator.Bindings()); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"saga event consumer failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"saga event consumer started\" queue=%s", cfg.SagaEventQueue)

	projection := app.NewTransferStatusConsumer(repository)
	if err := statusConsumer.ConsumeWithBindings(messaging.Exchange, cfg.TransferStatusQueue, projection.Bindings()); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"transfer status consumer failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"transfer status consumer started\" queue=%s", cfg.TransferStatusQueue)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OutboxDispatcherEnabled {
		dispatcher := outbox.NewDispatcher(repository, producer)
		go dispatcher.Run(shutdownCtx)
		log.Println("level=info component=bootstrap msg=\"outbox dispatcher started\"")
	}

	idem := buildIdempotencyMiddleware(cfg)

	service := app.NewTransferService(repository)
	handlers := api.NewTransferHandlers(service)
	router := api.TransferRoutes(handlers, idem)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("level=info component=bootstrap msg=\"http server listening\" addr=%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("level=fatal component=bootstrap msg=\"http server failed\" err=%v", err)
		}
	}()

	<-shutdownCtx.Done()
	log.Println("level=info component=bootstrap msg=\"shutdown signal received\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=bootstrap msg=\"http shutdown failed\" err=%v", err)
	}
}

func runMigrations(path, databaseURL string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	m, err := migrate.New("file://"+path, databaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"migrate init failed\" err=%v", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("level=fatal component=bootstrap msg=\"migrations failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"migrations applied\"")
}

func buildIdempotencyMiddleware(cfg config.Config) *idempotency.Middleware {
	options, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"redis url parse failed\" err=%v", err)
	}
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"redis ping failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"redis connected\"")

	ttl := time.Duration(cfg.IdempotencyTTLMinutes) * time.Minute
	return idempotency.NewMiddleware(idempotency.NewRedisStore(client, cfg.IdempotencyRedisPrefix), ttl)
}
