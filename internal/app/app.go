package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"M365Monitor/internal/config"
	"M365Monitor/internal/infrastructure/graph"
	"M365Monitor/internal/infrastructure/llm"
	"M365Monitor/internal/infrastructure/scheduler"
	"M365Monitor/internal/infrastructure/teams"
	"M365Monitor/internal/logging"
	"M365Monitor/internal/ports"
	"M365Monitor/internal/state"
	"M365Monitor/internal/usecase"
)

const (
	messageCenterCursorFile = "message_center_state.json"
	serviceHealthCursorFile = "service_health_state.json"

	schedulerStopTimeout = 30 * time.Second
)

// Application wires configuration to the live monitor's collaborators and
// drives both schedules for the lifetime of the process.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	live  *usecase.LiveLoop
	daily *usecase.DailyBrief
	sched *scheduler.Daily
}

// New builds the live monitor. The Message Center connection is mandatory; a
// Service Health connection failure degrades to Message-Center-only with a
// warning. A missing webhook degrades to log-only delivery.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	mcCursor := state.NewCursorFile(
		filepath.Join(cfg.State.Dir, messageCenterCursorFile),
		baseLogger.With("component", "cursor.message_center"))
	shCursor := state.NewCursorFile(
		filepath.Join(cfg.State.Dir, serviceHealthCursorFile),
		baseLogger.With("component", "cursor.service_health"))

	mc := graph.NewMessageCenter(cfg.Graph, mcCursor, baseLogger.With("component", "feed.message_center"))
	if err := mc.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect message center: %w", err)
	}
	baseLogger.Info("message center connected")

	feeds := []usecase.FeedBinding{{Feed: mc.Feed(), Source: mc}}

	var shEnricher ports.Enricher
	sh := graph.NewServiceHealth(cfg.Graph, shCursor, baseLogger.With("component", "feed.service_health"))
	if err := sh.Connect(ctx); err != nil {
		baseLogger.Warn("service health connection failed, continuing with message center only", "error", err)
	} else {
		baseLogger.Info("service health connected")
		feeds = append(feeds, usecase.FeedBinding{Feed: sh.Feed(), Source: sh})
		shEnricher = llm.NewServiceHealthEnricher(cfg.OpenAI)
	}

	notifier := buildNotifier(cfg.Teams, baseLogger)

	router := usecase.NewRouter(llm.NewMessageCenterEnricher(cfg.OpenAI), shEnricher, cfg.Teams)
	processor := usecase.NewProcessor(router, notifier, baseLogger.With("component", "processor"))
	session := state.NewSessionStore()

	live := usecase.NewLiveLoop(feeds, processor, session,
		cfg.Monitor.PollIntervalDuration(), cfg.Monitor.RetryDelayDuration(), cfg.Monitor.MaxRetries,
		baseLogger.With("component", "live"))

	daily := usecase.NewDailyBrief(feeds, processor, session,
		cfg.Daily.LookbackHours, cfg.Daily.RedeliverInDaily(),
		baseLogger.With("component", "daily"))

	hour, minute, second := cfg.Daily.BriefClock()
	sched := scheduler.NewDaily(hour, minute, second, cfg.Daily.Location(),
		baseLogger.With("component", "scheduler"))

	return &Application{cfg: cfg, logger: baseLogger, live: live, daily: daily, sched: sched}, nil
}

// BuildNotifier picks the real webhook sink or the log-only fallback.
func buildNotifier(cfg config.TeamsConfig, logger *slog.Logger) ports.Notifier {
	switch {
	case cfg.DryRun:
		logger.Warn("dry run enabled, cards will be logged but not sent")
		return teams.NewLogOnly(logger.With("component", "notifier"))
	case cfg.WebhookURL == "":
		logger.Warn("teams webhook not configured, cards will be logged but not sent")
		return teams.NewLogOnly(logger.With("component", "notifier"))
	default:
		return teams.NewNotifier(cfg.WebhookURL, logger.With("component", "notifier"))
	}
}

// Run drives the live loop and the daily schedule until ctx is canceled or
// the live loop exhausts its retries. Either loop ending tears down the
// other before returning.
func (a *Application) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.sched.Start(func() { a.daily.Run(runCtx) }); err != nil {
		return fmt.Errorf("start daily schedule: %w", err)
	}

	err := a.live.Run(runCtx)

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), schedulerStopTimeout)
	defer stopCancel()
	if stopErr := a.sched.Stop(stopCtx); stopErr != nil {
		a.logger.Warn("daily schedule did not drain in time", "error", stopErr)
	}

	if err != nil {
		return fmt.Errorf("live loop stopped: %w", err)
	}
	a.logger.Info("orchestrator stopped")
	return nil
}
