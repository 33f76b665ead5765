package main

import (
	classrepo "gymbook/internal/classes/repository"
	memberrepo "gymbook/internal/members/repository"
	"gymbook/internal/reservations/events"
	"gymbook/internal/reservations/handler"
	"gymbook/internal/reservations/service"
	"gymbook/pkg/app"
	"gymbook/pkg/config"
	"gymbook/pkg/kafka"
	kafka_config "gymbook/pkg/kafka/config"
)

const ServiceName = "reservations"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Reservations service")
	reservationService, producer := initServices(cfg)
	if producer != nil {
		defer func() {
			if err := producer.Close(); err != nil {
				cfg.Log.Error("Failed to close Kafka producer", "error", err)
			}
		}()
	}

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handler.NewReservationHandler(reservationService, cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config) (service.ReservationService, *kafka.Producer) {
	classRepo := classrepo.NewMongoClassRepository(cfg)
	memberRepo := memberrepo.NewMongoMemberRepository(cfg)

	// The service runs without a broker: the publisher logs the failure and
	// the reservation still commits.
	var publisher *events.Publisher
	producer, err := kafka.NewProducer(kafka_config.Load(), events.Topic, events.DLQTopic)
	if err != nil {
		cfg.Log.Error("Failed to initialize Kafka producer, events disabled", "error", err)
	} else {
		publisher = events.NewPublisher(producer, cfg.Log)
	}

	reservationService := service.NewReservationService(
		classRepo,
		memberRepo,
		publisher,
		cfg,
	)

	cfg.Log.Info("Reservations service initialized",
		"database", cfg.MongoDatabaseName,
		"events_enabled", publisher != nil,
		"late_cancel_window", cfg.LateCancelWindow,
	)
	return reservationService, producer
}
