// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/vendaops/vendaops-backend/internal/apperrors"
	"github.com/vendaops/vendaops-backend/internal/config"
	"github.com/vendaops/vendaops-backend/internal/db"
	"github.com/vendaops/vendaops-backend/internal/dispatch"
	"github.com/vendaops/vendaops-backend/internal/gateway"
	"github.com/vendaops/vendaops-backend/internal/queue"
	"github.com/vendaops/vendaops-backend/internal/repository"
	"github.com/vendaops/vendaops-backend/internal/service"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("component", "worker").Logger()

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.AMQPURL == "" {
		log.Fatal().Msg("AMQP_URL is required for the dispatch worker")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	scheduledRepo := &repository.ScheduledMessageRepository{DB: conn}
	recurringRepo := &repository.RecurringScheduleRepository{DB: conn}

	wa := gateway.NewWhatsAppClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey)
	dispatcher := &service.Dispatcher{
		Scheduled: scheduledRepo,
		Recurring: recurringRepo,
		Executor:  dispatch.NewExecutor(wa, cfg.GatewayTimeout),
		Log:       log,
	}

	amqpQueue, err := queue.NewAMQPQueue(cfg.AMQPURL, cfg.DispatchQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer amqpQueue.Close()

	deliveries, err := amqpQueue.Consume()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register consumer")
	}

	log.Info().Str("queue", cfg.DispatchQueue).Msg("worker running, waiting for dispatch jobs")

	for d := range deliveries {
		var job queue.DispatchJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			log.Error().Err(err).Msg("invalid dispatch job payload")
			d.Ack(false)
			continue
		}

		// A dispatch failure is recorded on the message itself and is not
		// retried here; only store errors requeue the job, and only once.
		err := dispatcher.ProcessScheduledByID(context.Background(), job.ScheduledMessageID)
		if err != nil {
			if requeue(err, d.Redelivered) {
				log.Error().Err(err).Str("message_id", job.ScheduledMessageID).Msg("dispatch job failed, requeueing")
				d.Nack(false, true)
				continue
			}
			log.Error().Err(err).Str("message_id", job.ScheduledMessageID).Msg("dropping dispatch job")
		}
		d.Ack(false)
	}
}

// requeue reports whether a failed dispatch job should go back on the
// queue. A missing message is final (it was deleted after queueing), and a
// job that already failed a redelivery is dropped rather than looped.
func requeue(err error, redelivered bool) bool {
	var nf *apperrors.NotFoundError
	if errors.As(err, &nf) {
		return false
	}
	return !redelivered
}
