package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jessevdk/go-flags"

	"M365Monitor/internal/config"
	"M365Monitor/internal/infrastructure/graph"
	"M365Monitor/internal/infrastructure/llm"
	"M365Monitor/internal/infrastructure/teams"
	"M365Monitor/internal/logging"
	"M365Monitor/internal/ports"
	"M365Monitor/internal/state"
	"M365Monitor/internal/usecase"
)

const (
	messageCenterSentFile = "message_center_sent_ids.json"
	serviceHealthSentFile = "service_health_sent_ids.json"
)

type options struct {
	StateDir      string `long:"state-dir" env:"STATE_DIR" description:"Directory holding dedup state files (defaults to config)"`
	LookbackHours int    `long:"lookback-hours" env:"DAILY_BRIEF_LOOKBACK_HOURS" description:"Trailing window to report on (defaults to config)"`
	NoEmptyCard   bool   `long:"no-empty-card" description:"Skip the no-news card when nothing new was found"`
	DryRun        bool   `long:"dry-run" env:"DRY_RUN" description:"Log cards instead of posting to the webhook"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	if opts.StateDir != "" {
		cfg.State.Dir = opts.StateDir
	}
	if opts.LookbackHours > 0 {
		cfg.Daily.LookbackHours = opts.LookbackHours
	}
	if opts.DryRun {
		cfg.Teams.DryRun = true
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	notifyOnEmpty := cfg.State.NotifyOnEmptyEnabled() && !opts.NoEmptyCard

	if err := run(ctx, cfg, notifyOnEmpty, logger); err != nil {
		logger.Error("daily brief failed", "error", err)
		os.Exit(1)
	}
}

// run performs the one-shot pass. The Message Center connection is mandatory;
// Service Health failures degrade to a Message-Center-only report.
func run(ctx context.Context, cfg config.Config, notifyOnEmpty bool, logger *slog.Logger) error {
	mcStore := state.OpenFileStore(
		filepath.Join(cfg.State.Dir, messageCenterSentFile),
		logger.With("component", "dedup.message_center"))
	shStore := state.OpenFileStore(
		filepath.Join(cfg.State.Dir, serviceHealthSentFile),
		logger.With("component", "dedup.service_health"))

	mc := graph.NewMessageCenter(cfg.Graph, nil, logger.With("component", "feed.message_center"))
	if err := mc.Connect(ctx); err != nil {
		return fmt.Errorf("connect message center: %w", err)
	}

	feeds := []usecase.BatchFeed{{Feed: mc.Feed(), Source: mc, Dedup: mcStore}}

	var shEnricher ports.Enricher
	sh := graph.NewServiceHealth(cfg.Graph, nil, logger.With("component", "feed.service_health"))
	if err := sh.Connect(ctx); err != nil {
		logger.Warn("service health connection failed, reporting message center only", "error", err)
	} else {
		feeds = append(feeds, usecase.BatchFeed{Feed: sh.Feed(), Source: sh, Dedup: shStore})
		shEnricher = llm.NewServiceHealthEnricher(cfg.OpenAI)
	}

	var notifier ports.Notifier
	if cfg.Teams.DryRun || cfg.Teams.WebhookURL == "" {
		logger.Warn("cards will be logged but not sent")
		notifier = teams.NewLogOnly(logger.With("component", "notifier"))
	} else {
		notifier = teams.NewNotifier(cfg.Teams.WebhookURL, logger.With("component", "notifier"))
	}

	router := usecase.NewRouter(llm.NewMessageCenterEnricher(cfg.OpenAI), shEnricher, cfg.Teams)
	processor := usecase.NewProcessor(router, notifier, logger.With("component", "processor"))

	batch := usecase.NewBatch(feeds, processor, notifier,
		cfg.Daily.LookbackHours, notifyOnEmpty,
		logger.With("component", "batch"))
	return batch.Run(ctx)
}
