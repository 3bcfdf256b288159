package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/engaging-workplace/clarity/internal/config"
	"github.com/engaging-workplace/clarity/internal/credential"
	"github.com/engaging-workplace/clarity/internal/gdrive"
	"github.com/engaging-workplace/clarity/internal/llm"
	"github.com/engaging-workplace/clarity/internal/observability"
	"github.com/engaging-workplace/clarity/internal/server"
	"github.com/engaging-workplace/clarity/internal/storage"
	"github.com/engaging-workplace/clarity/internal/summary"
	"github.com/engaging-workplace/clarity/internal/transcript"
	"github.com/engaging-workplace/clarity/internal/warehouse"
)

const version = "1.1"

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		observability.InitLogger("info", false)
		log.Fatal().Err(err).Msg("load config")
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.Component("main")
	for _, w := range warnings {
		logger.Warn().Msg(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("storage init failed")
	}
	defer func() { _ = store.Close() }()

	var background sync.WaitGroup

	primary := primarySink(ctx, cfg, store, logger)
	mirrors := []transcript.Sink{}
	if cfg.LogSink != config.SinkLocal {
		mirrors = append(mirrors, store)
	}

	dayLog := storage.NewWriter(cfg.TranscriptDir)
	if cfg.GDriveFolderID != "" {
		syncer, syncErr := gdrive.NewSyncerFromFile(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if syncErr != nil {
			logger.Warn().Err(syncErr).Msg("drive sync disabled")
			mirrors = append(mirrors, dayLog)
		} else {
			mirror := gdrive.NewMirror(dayLog, syncer, 0)
			mirrors = append(mirrors, mirror)
			background.Add(1)
			go func() {
				defer background.Done()
				mirror.Run(ctx)
			}()
		}
	} else {
		mirrors = append(mirrors, dayLog)
	}

	sink := &transcript.Fanout{
		Primary: primary,
		Mirrors: mirrors,
		OnMirrorError: func(rec transcript.Record, err error) {
			logger.Warn().Err(err).Str("session_id", rec.SessionID).Msg("transcript mirror write failed")
		},
	}

	hub := server.NewHub()

	var summaries server.SummaryRequester
	var summarizer *summary.Summarizer
	client, err := llm.FromSpec(cfg.SummaryModel, llm.Keys{
		OpenAI:    cfg.OpenAIAPIKey,
		Anthropic: cfg.AnthropicAPIKey,
		Gemini:    cfg.GeminiAPIKey,
	}, llm.WithMaxTokens(1024), llm.WithTemperature(0.2))
	if err != nil {
		logger.Warn().Err(err).Str("model", cfg.SummaryModel).Msg("interview summaries disabled")
		warnings = append(warnings, "Interview summaries disabled: "+err.Error())
	} else {
		summarizer = summary.New(client, store, hub.BroadcastSummaryReady)
		summaries = summarizer
	}

	minter := credential.NewMinter(credential.Options{
		APIKey:             cfg.OpenAIAPIKey,
		AgentID:            cfg.AgentID,
		BaseURL:            cfg.RealtimeBaseURL,
		Model:              cfg.RealtimeModel,
		Voice:              cfg.Voice,
		TranscriptionModel: cfg.TranscriptionModel,
	})

	handler := server.Handler(server.Deps{
		Minter:    minter,
		Sink:      sink,
		SinkName:  cfg.LogSink,
		Store:     store,
		Summaries: summaries,
		Hub:       hub,
		Warnings:  func() []string { return warnings },
		Service:   "clarity-server",
		Version:   version,
		Metrics:   cfg.MetricsEnabled,
	})

	logger.Info().Str("addr", cfg.Addr).Str("sink", cfg.LogSink).Msg("clarity-server starting")
	if err := server.Serve(ctx, cfg.Addr, handler); err != nil {
		logger.Error().Err(err).Msg("http server stopped")
	}

	stop()
	background.Wait()
	if summarizer != nil {
		summarizer.Wait()
	}
	logger.Info().Msg("clarity-server stopped")
}

// primarySink picks where accepted records are delivered. A sink that cannot
// be built still answers every request, with the configuration error.
func primarySink(ctx context.Context, cfg config.Config, store *storage.SQLiteStore, logger zerolog.Logger) transcript.Sink {
	switch cfg.LogSink {
	case config.SinkRelay:
		return transcript.NewRelay(cfg.LoggerURL, cfg.LoggerAPIKey, nil)
	case config.SinkBigQuery:
		bq, err := warehouse.NewBigQuery(ctx, warehouse.Options{
			ProjectID:   cfg.BigQueryProjectID,
			Dataset:     cfg.BigQueryDataset,
			Table:       cfg.BigQueryTable,
			ClientEmail: cfg.BigQueryClientEmail,
			PrivateKey:  cfg.BigQueryPrivateKey,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("bigquery sink unavailable")
			return transcript.Unconfigured(err.Error())
		}
		return bq
	default:
		return store
	}
}
