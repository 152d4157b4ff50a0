package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"aidimport/internal/batch"
	"aidimport/internal/cache"
	"aidimport/internal/config"
	"aidimport/internal/controller"
	"aidimport/internal/database"
	"aidimport/internal/importer"
	"aidimport/internal/model"
	"aidimport/pkg/iati"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// consoleObserver prints batch progress as the run moves through its chunks
type consoleObserver struct{}

func (consoleObserver) BatchCreated(job *model.BatchJob) {
	log.Info().Str("batchID", job.ID.Hex()).Int("activities", job.TotalActivities).Msg("Batch created")
}

func (consoleObserver) Progress(job *model.BatchJob) {
	log.Info().
		Int("created", job.Counters.Created).
		Int("updated", job.Counters.Updated).
		Int("skipped", job.Counters.Skipped).
		Int("failed", job.Counters.Failed).
		Int("total", job.TotalActivities).
		Msg("Batch progress")
}

func (consoleObserver) Finished(result controller.RunResult) {
	log.Info().
		Bool("success", result.Success).
		Int("chunksSucceeded", result.ChunksSucceeded).
		Int("chunksTotal", result.ChunksTotal).
		Str("message", result.Message).
		Msg("Batch finished")
}

func main() {
	configPath := flag.String("config", "config/config.json", "path to configuration file")
	orgRef := flag.String("org", "", "reporting organisation ref to import")
	rows := flag.Int("rows", 0, "maximum activities to fetch (0 = datastore default)")
	onExisting := flag.String("on-existing", model.OnExistingUpdate, "what to do with existing activities: update or skip")
	skipUnchanged := flag.Bool("skip-unchanged", true, "skip records whose content is unchanged")
	flag.Parse()

	if *orgRef == "" {
		log.Fatal().Msg("-org is required")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	db, err := database.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize redis cache connection")
	}
	defer redisCache.Close()

	datastore := iati.New(cfg.IATI, redisCache)
	defer datastore.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	records, err := datastore.FetchOrganisationActivities(ctx, *orgRef, *rows)
	if err != nil {
		log.Fatal().Err(err).Str("orgRef", *orgRef).Msg("Failed to fetch activities")
	}
	if len(records) == 0 {
		log.Info().Str("orgRef", *orgRef).Msg("No activities published by organisation")
		return
	}
	log.Info().Int("count", len(records)).Msg("Fetched candidate activities")

	selected := make([]string, 0, len(records))
	for i := range records {
		selected = append(selected, records[i].IATIIdentifier)
	}

	svc := batch.NewService(db, importer.New(db))
	run := controller.NewRun(svc, consoleObserver{}, cfg.Batch)

	result, err := run.Run(ctx, batch.CreateBatchInput{
		Candidates: records,
		Selected:   selected,
		Rules: model.ImportRules{
			OnExisting:    *onExisting,
			SkipUnchanged: *skipUnchanged,
		},
		Meta: model.BatchMeta{
			Source:      cfg.IATI.DatastoreURL,
			OrgRef:      *orgRef,
			RequestedBy: "importer-cli",
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Import run failed to start")
	}

	audit := controller.NewAudit(db, nil)
	if _, err := audit.RecordRun(ctx, result); err != nil {
		log.Error().Err(err).Msg("Failed to record import run")
	}

	if !result.Success {
		os.Exit(1)
	}
}
