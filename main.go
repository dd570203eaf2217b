package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-reservation/internal/auth"
	"ms-reservation/internal/booking"
	"ms-reservation/internal/booking/booking_api"
	bookingdb "ms-reservation/internal/booking/db"
	bookingredis "ms-reservation/internal/booking/redis"
	"ms-reservation/internal/catalog"
	"ms-reservation/internal/catalog/catalog_api"
	catalogdb "ms-reservation/internal/catalog/db"
	"ms-reservation/internal/config"
	"ms-reservation/internal/database"
	"ms-reservation/internal/kafka"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/payments"
	"ms-reservation/internal/payments/payment_api"
	"ms-reservation/internal/scheduler"
	"ms-reservation/internal/stats"
	"ms-reservation/internal/stats/stats_api"
	"ms-reservation/internal/tickets"
	"ms-reservation/internal/tickets/qr"
)

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	if !cfg.Enabled {
		log.Info("REDIS", "Seat gate disabled, relying on database locks only")
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		// the ledger does not need redis to stay correct
		log.Warn("REDIS", fmt.Sprintf("Redis at %s unreachable, continuing without seat gate: %v", cfg.Addr, err))
		client.Close()
		return nil
	}
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Addr, client.Options().DB))
	return client
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logOpts := logger.DefaultOptions()
	logOpts.Dir = cfg.Log.Dir
	logOpts.MinLevel = logger.ParseLevel(cfg.Log.Level)
	log, err := logger.New(logOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	log.Info("APP", "Starting Reservation Service initialization")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, _ := cfg.Location() // validated by config.Load

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	var gate booking.SeatGate
	if client := connectRedis(ctx, cfg.Redis, log); client != nil {
		defer client.Close()
		gate = bookingredis.NewRedis(client, cfg.Booking.SeatLockTTL)
	}

	var events booking.EventPublisher
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.BookingEvents, cfg.Kafka.Topics.PaymentsStatus}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		events = producer
		log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Kafka.Brokers))
	}

	bookingService := booking.NewBookingService(&bookingdb.DB{Bun: bunDB}, gate, events, log, booking.Options{
		Location:     loc,
		PaymentFirst: cfg.Booking.PaymentFirst,
		EventsTopic:  cfg.Kafka.Topics.BookingEvents,
	})
	catalogService := catalog.NewService(&catalogdb.DB{Bun: bunDB})
	statsService := stats.NewService(stats.NewDB(bunDB), loc)
	processor := payments.NewProcessor(bookingService, log)

	qrSecret := cfg.Tickets.QRSecret
	if qrSecret == "" {
		log.Warn("CONFIG", "QR_SECRET not set, using JWT_SECRET for ticket codes")
		qrSecret = cfg.Auth.JWTSecret
	}
	qrGen, err := qr.NewQRGenerator(qrSecret)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Ticket QR generator: %v", err))
	}
	ticketService := tickets.NewService(bookingService, qrGen, log)

	verifier, err := auth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}

	router := newRouter(log, verifier, bunDB,
		[]routeRegistrar{payment_api.NewHandler(processor, cfg.Payments.WebhookSecret, log)},
		[]routeRegistrar{
			catalog_api.NewHandler(catalogService, log),
			booking_api.NewHandler(bookingService, ticketService, log),
			stats_api.NewHandler(statsService, log),
		},
	)

	var wg sync.WaitGroup

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentsStatus, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx, processor.HandleMessage); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Payment consumer stopped: %v", err))
			}
		}()
	}

	sweeper := scheduler.NewCompletionSweeper(bookingService, cfg.Scheduler.CompletionInterval, cfg.Scheduler.BatchSize, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	addr := cfg.Server.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Reservation Service running on %s", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	wg.Wait()
	log.Info("HTTP", "Reservation Service shutdown complete")
}
