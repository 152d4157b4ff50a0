package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"aidimport/internal/batch"
	"aidimport/internal/cache"
	"aidimport/internal/config"
	"aidimport/internal/controller"
	"aidimport/internal/database"
	"aidimport/internal/importer"
	"aidimport/internal/rabbitmq"
	"aidimport/internal/runner"
	"aidimport/internal/storage"
	"aidimport/pkg/iati"

	"github.com/rs/zerolog/log"
)

type Server struct {
	sc         controller.ServerController
	tc         controller.TokenController
	ac         controller.AuditController
	svc        batch.Service
	runner     runner.Runner
	datastore  iati.Client
	activities database.ActivityDatabase
	config     config.Config
}

func New(config config.Config, db database.Database, cache cache.Cache, rabbit rabbitmq.Client, datastore iati.Client, fileService storage.FileService) *http.Server {
	sc := controller.NewServer(db, cache, rabbit)
	tc := controller.NewToken(db)
	ac := controller.NewAudit(db, fileService)

	worker := importer.New(db)
	svc := batch.NewService(db, worker)

	rn := runner.New(svc, ac, datastore, rabbit, config.RabbitMQ, config.Batch)
	if err := rn.Start(context.Background()); err != nil { // Starts consuming run requests from rabbit MQ
		log.Error().Err(err).Msg("Failed to start batch runner")
	}

	server := Server{
		sc:         sc,
		tc:         tc,
		ac:         ac,
		svc:        svc,
		runner:     rn,
		datastore:  datastore,
		activities: db,
		config:     config,
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%v", config.Port),
		Handler:      server.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
