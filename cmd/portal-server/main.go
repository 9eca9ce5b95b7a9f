// Package main provides the HTTP and WebSocket server for the portal.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/portal-go/internal/config"
	"github.com/raphaelgruber/portal-go/internal/llm"
	"github.com/raphaelgruber/portal-go/internal/metrics"
	"github.com/raphaelgruber/portal-go/internal/playback"
	"github.com/raphaelgruber/portal-go/internal/podcast"
	"github.com/raphaelgruber/portal-go/internal/prompt"
	"github.com/raphaelgruber/portal-go/internal/server"
	"github.com/raphaelgruber/portal-go/internal/service"
	"github.com/raphaelgruber/portal-go/internal/store"
	"github.com/raphaelgruber/portal-go/internal/tts"
)

// version is set at build time.
var version = "0.1.0"

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all records on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	if err := run(cfg, logger, *wipeDB || os.Getenv("PORTAL_WIPE_DB") == "true"); err != nil {
		logger.Error("server failed", "error", err)
		_ = closeLog()
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg config.Config, logger *slog.Logger, wipe bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog := config.DefaultCatalog()
	if cfg.CatalogPath != "" {
		c, err := config.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return err
		}
		catalog = c
	}
	composer := prompt.NewComposer(catalog)
	mc := metrics.NewCollector()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	model, err := llm.NewModel(initCtx, cfg)
	if err != nil {
		return err
	}
	retry := llm.RetryConfigFrom(cfg)
	invoker := llm.NewInvoker(model, retry, logger, mc)

	var synth tts.Synthesizer = tts.Silent{}
	if cfg.TTSURL != "" {
		c, err := tts.NewClient(cfg.TTSURL, cfg.TTSAPIKey, cfg.TTSDefaultVoice, retry, logger, mc)
		if err != nil {
			return err
		}
		synth = c
	} else {
		logger.Warn("no TTS endpoint configured, episodes play silence", "env", "PORTAL_TTS_URL")
	}

	stores, err := store.Open(initCtx, cfg, logger, mc)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(context.Background()); err != nil {
			logger.Error("failed to close stores", "error", err)
		}
	}()
	if wipe {
		if err := stores.Wipe(initCtx); err != nil {
			return err
		}
		logger.Warn("wiped all records")
	}

	pod := podcast.NewService(podcast.Options{
		Composer:       composer,
		Invoker:        invoker,
		Synthesizer:    synth,
		Episodes:       stores.Episodes,
		Pool:           playback.NewBufferPool(mc),
		Logger:         logger,
		Metrics:        mc,
		AutoplayDelay:  cfg.AutoplayDelay,
		SessionOptions: []playback.Option{playback.WithSkip(cfg.SkipInterval)},
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pod.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down podcast sessions", "error", err)
		}
	}()

	runner := service.NewRunner(invoker, logger)
	srv := server.New(version, server.Services{
		Runner:   runner,
		Markets:  service.NewMarketsService(runner, composer),
		Stocks:   service.NewStocksService(runner, composer),
		Learning: service.NewLearningService(runner, composer),
		Chat:     service.NewChatService(runner, composer, stores.Conversations, stores.ChatMessages, logger),
		Comms:    service.NewCommsService(runner, composer, stores.Contacts, stores.Messages, logger),
		Records:  service.NewRecordsService(stores),
		Podcast:  pod,
	}, mc, logger)

	return srv.Run(ctx, ":"+cfg.ServerPort)
}
