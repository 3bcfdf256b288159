package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/engaging-workplace/clarity/internal/config"
	"github.com/engaging-workplace/clarity/internal/observability"
	"github.com/engaging-workplace/clarity/internal/server"
	"github.com/engaging-workplace/clarity/internal/transcript"
	"github.com/engaging-workplace/clarity/internal/warehouse"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, _, err := config.Load(*configPath)
	if err != nil {
		observability.InitLogger("info", false)
		log.Fatal().Err(err).Msg("load config")
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.Component("main")

	if cfg.IngestAPIKey == "" {
		logger.Warn().Msg("CLARITY_INGEST_API_KEY is not set; every POST will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink transcript.Sink
	bq, err := warehouse.NewBigQuery(ctx, warehouse.Options{
		ProjectID:   cfg.BigQueryProjectID,
		Dataset:     cfg.BigQueryDataset,
		Table:       cfg.BigQueryTable,
		ClientEmail: cfg.BigQueryClientEmail,
		PrivateKey:  cfg.BigQueryPrivateKey,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("bigquery unavailable; inserts will fail")
		sink = transcript.Unconfigured(err.Error())
	} else {
		sink = bq
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Str("table", cfg.BigQueryProjectID+"."+cfg.BigQueryDataset+"."+cfg.BigQueryTable).
		Msg("clarity-logger starting")
	if err := server.Serve(ctx, cfg.Addr, server.IngestHandler(sink, cfg.IngestAPIKey, cfg.MetricsEnabled)); err != nil {
		logger.Error().Err(err).Msg("http server stopped")
	}
}
