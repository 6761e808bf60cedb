package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/portfolio-platform/internal/archive"
	"github.com/suPer8Hu/portfolio-platform/internal/config"
	"github.com/suPer8Hu/portfolio-platform/internal/db"
	"github.com/suPer8Hu/portfolio-platform/internal/store/rabbitmq"
)

const (
	maxRetries = 3
	retryDelay = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		fatal(logger, "connect db", err)
	}
	if err := db.Migrate(gdb, &archive.TurnRecord{}); err != nil {
		fatal(logger, "migrate", err)
	}
	repo := archive.NewRepo(gdb)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		fatal(logger, "rabbit dial", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		fatal(logger, "rabbit channel", err)
	}
	defer ch.Close()

	if err := rabbitmq.TopologyFor(cfg.RabbitQueue).Declare(ch); err != nil {
		fatal(logger, "queue declare", err)
	}

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency

	if err := ch.Qos(concurrency, 0, false); err != nil {
		fatal(logger, "qos", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		fatal(logger, "consume", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started", slog.String("queue", cfg.RabbitQueue), slog.Int("concurrency", concurrency))

	retry := rabbitmq.NewChannelPublisher(ch, cfg.RabbitQueue)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			log := logger.With(slog.Int("worker", workerID))
			for d := range jobs {
				handleDelivery(ctx, log, repo, retry, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				logger.Error("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}

type retryPublisher interface {
	Retry(ctx context.Context, d amqp.Delivery, attempt int, delay time.Duration) error
}

func handleDelivery(ctx context.Context, log *slog.Logger, repo *archive.Repo, retry retryPublisher, d amqp.Delivery) {
	var m archive.Message
	if err := json.Unmarshal(d.Body, &m); err != nil || m.ID == "" || m.Turn.SessionID == "" {
		log.Warn("bad message, dead-lettering", slog.Any("error", err), slog.String("message_id", d.MessageId))
		_ = d.Nack(false, false)
		return
	}
	log = log.With(slog.String("turn_id", m.ID), slog.String("session_id", m.Turn.SessionID))

	start := time.Now()
	rec := archive.RecordFromMessage(m)
	if err := repo.Save(ctx, &rec); err != nil {
		attempt := rabbitmq.RetryCount(d.Headers) + 1
		if attempt > maxRetries {
			log.Error("archive turn failed, dead-lettering",
				slog.Int("attempts", attempt), slog.String("error", err.Error()))
			_ = d.Nack(false, false)
			return
		}
		log.Warn("archive turn failed, retrying",
			slog.Int("attempt", attempt), slog.String("error", err.Error()))
		if perr := retry.Retry(ctx, d, attempt, retryDelay); perr != nil {
			log.Error("schedule retry", slog.String("error", perr.Error()))
			_ = d.Nack(false, false)
			return
		}
		_ = d.Ack(false)
		return
	}

	if err := d.Ack(false); err != nil {
		log.Error("ack failed", slog.String("error", err.Error()))
		return
	}
	log.Debug("turn archived", slog.Duration("cost", time.Since(start)))
}
