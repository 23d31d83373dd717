package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	tally "github.com/uber-go/tally/v4"

	"delivery-calendar/app"
	brokerkfk "delivery-calendar/broker/kafka"
	"delivery-calendar/config"
	"delivery-calendar/logger"
	zrlg "delivery-calendar/logger/zerolog"
	mtally "delivery-calendar/metrics/tally"
	"delivery-calendar/relay"
	"delivery-calendar/store/pgxv5"
)

// txKey is the context key carrying the active pgx transaction.
var txKey struct{}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := newLogger(cfg.Log.Level)
	log.Info("starting delivery calendar service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := newDatabasePool(ctx, cfg.Database)
	defer pool.Close()

	store := pgxv5.New(txKey, pool)
	store.SetLogger(log)

	repo := app.WithRetry(store, app.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
	})
	commands := app.NewCalendarService(repo, store, app.WithLogger(log))

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Kafka.BootstrapServers,
		"linger.ms":          500,
		"batch.size":         100 * 1024,
		"compression.type":   "lz4",
		"acks":               -1,
		"enable.idempotence": true,
	})
	if err != nil {
		log.Error("creating kafka producer", err)
		os.Exit(1)
	}
	defer producer.Close()

	publisher := brokerkfk.NewPublisher(producer)

	scope, closeScope := tally.NewRootScope(tally.ScopeOptions{
		Prefix: "delivery_calendar",
	}, time.Second)
	defer closeScope.Close()

	r := relay.New(relay.Settings{
		PollingInterval: cfg.Relay.PollingInterval,
		BatchSize:       cfg.Relay.BatchSize,
	}, store, publisher,
		relay.WithLogger(log),
		relay.WithCounters(
			&mtally.Counter{Counter: scope.Counter("outbox_published")},
			&mtally.Counter{Counter: scope.Counter("outbox_errors")},
		))
	go r.Run(ctx)

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Kafka.BootstrapServers,
		"group.id":          cfg.Kafka.ConsumerGroup,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		log.Error("creating kafka consumer", err)
		os.Exit(1)
	}
	defer consumer.Close()

	if err := consumer.SubscribeTopics([]string{brokerkfk.MealPlanCreatedTopic}, nil); err != nil {
		log.Error("subscribing to the meal plan topic", err)
		os.Exit(1)
	}

	planConsumer := brokerkfk.NewPlanConsumer(consumer, commands)
	planConsumer.SetLogger(log)
	planConsumer.Run(ctx)
}

func newLogger(level string) logger.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return &zrlg.Logger{
		Logger: zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).
			Level(lvl).
			With().
			Timestamp().
			Logger(),
	}
}

func newDatabasePool(ctx context.Context, cfg config.DatabaseConfig) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		panic("Unable to parse database url")
	}
	poolConfig.MaxConns = cfg.MaxConns
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		panic("Unable to create connection pool")
	}
	return pool
}
