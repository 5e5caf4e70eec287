package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"refinery/internal/aws"
	"refinery/internal/cache"
	"refinery/internal/config"
	"refinery/internal/controller"
	"refinery/internal/database"
	"refinery/internal/engine"
	"refinery/internal/rabbitmq"
)

type Server struct {
	sc     controller.ServerController
	tc     controller.TokenController
	bc     controller.BatchController
	rc     controller.ReviewController
	cc     controller.ClinicController
	config config.Config
}

func New(config config.Config, db database.Database, cache cache.Cache, rabbit rabbitmq.Client,
	eng *engine.Engine, reports aws.ReportService) *http.Server {
	sc := controller.NewServer(db, cache, rabbit)

	bc := controller.NewBatch(db, cache, rabbit, &config, reports, eng)
	bc.StartConsumer(context.Background()) // Starts consuming execution requests from RabbitMQ

	rc := controller.NewReview(db, cache)
	cc := controller.NewClinic(db)
	tc := controller.NewToken(db)

	server := Server{
		sc:     sc,
		tc:     tc,
		bc:     bc,
		rc:     rc,
		cc:     cc,
		config: config,
	}

	return &http.Server{
		Addr:        fmt.Sprintf(":%v", config.Port),
		Handler:     server.RegisterRoutes(),
		IdleTimeout: time.Minute,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: the execute endpoint streams progress for the
		// lifetime of a run.
	}
}
