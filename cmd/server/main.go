// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/vendaops/vendaops-backend/internal/config"
	"github.com/vendaops/vendaops-backend/internal/db"
	"github.com/vendaops/vendaops-backend/internal/dispatch"
	"github.com/vendaops/vendaops-backend/internal/gateway"
	"github.com/vendaops/vendaops-backend/internal/handler"
	"github.com/vendaops/vendaops-backend/internal/queue"
	"github.com/vendaops/vendaops-backend/internal/repository"
	"github.com/vendaops/vendaops-backend/internal/service"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()
	log.Info().Msg("connected to database")

	scheduledRepo := &repository.ScheduledMessageRepository{DB: conn}
	recurringRepo := &repository.RecurringScheduleRepository{DB: conn}

	wa := gateway.NewWhatsAppClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey)
	executor := dispatch.NewExecutor(wa, cfg.GatewayTimeout)

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	dispatcher := &service.Dispatcher{
		Scheduled:  scheduledRepo,
		Recurring:  recurringRepo,
		Executor:   executor,
		Redis:      redisClient,
		LockTTL:    cfg.DispatchInterval,
		BatchLimit: cfg.DispatchBatchLimit,
		Log:        log.With().Str("component", "dispatcher").Logger(),
	}

	var publisher queue.JobPublisher
	if cfg.AMQPURL != "" {
		amqpQueue, err := queue.NewAMQPQueue(cfg.AMQPURL, cfg.DispatchQueue)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer amqpQueue.Close()
		publisher = amqpQueue
		log.Info().Str("queue", cfg.DispatchQueue).Msg("publishing dispatch jobs to RabbitMQ")
	} else {
		memQueue := queue.NewInMemoryQueue(log.With().Str("component", "queue").Logger())
		memQueue.SetHandler(func(job queue.DispatchJob) {
			if err := dispatcher.ProcessScheduledByID(context.Background(), job.ScheduledMessageID); err != nil {
				log.Error().Err(err).Str("message_id", job.ScheduledMessageID).Msg("dispatch job failed")
			}
		})
		publisher = memQueue
	}

	messageService := &service.MessageService{
		Repo:      scheduledRepo,
		Publisher: publisher,
		Log:       log.With().Str("component", "messages").Logger(),
	}
	scheduleService := &service.ScheduleService{
		Repo: recurringRepo,
		Log:  log.With().Str("component", "schedules").Logger(),
	}

	messageHandler := &handler.MessageHandler{Service: messageService}
	scheduleHandler := &handler.ScheduleHandler{Service: scheduleService}
	dispatchHandler := &handler.DispatchHandler{
		Dispatcher: dispatcher,
		Messages:   messageService,
		Schedules:  scheduleService,
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", cfg.DispatchInterval)
	if _, err := c.AddFunc(spec, func() { dispatcher.Tick(context.Background()) }); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule dispatch loop")
	}
	c.Start()
	defer c.Stop()
	log.Info().Str("interval", cfg.DispatchInterval.String()).Msg("dispatch loop started")

	r := chi.NewRouter()

	r.Post("/scheduled-messages", messageHandler.Create)
	r.Get("/scheduled-messages", messageHandler.List)
	r.Get("/scheduled-messages/{id}", messageHandler.Get)
	r.Delete("/scheduled-messages/{id}", messageHandler.Delete)
	r.Post("/scheduled-messages/{id}/retry", messageHandler.Retry)
	r.Post("/scheduled-messages/{id}/cancel", messageHandler.Cancel)
	r.Post("/scheduled-messages/{id}/approve", messageHandler.Approve)
	r.Post("/scheduled-messages/{id}/send-now", messageHandler.SendNow)

	r.Post("/recurring-schedules", scheduleHandler.Create)
	r.Get("/recurring-schedules", scheduleHandler.List)
	r.Get("/recurring-schedules/{id}", scheduleHandler.Get)
	r.Delete("/recurring-schedules/{id}", scheduleHandler.Delete)
	r.Post("/recurring-schedules/{id}/toggle", scheduleHandler.Toggle)

	r.Post("/dispatch/run", dispatchHandler.Run)
	r.Get("/dashboard/stats", dispatchHandler.Stats)

	log.Info().Str("addr", cfg.ListenAddr).Msg("server running")
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
