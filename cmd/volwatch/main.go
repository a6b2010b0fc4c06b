// volwatch - volatility window notifier.
// Watches the economic calendar and announces high-impact volatility windows.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leeaandrob/volwatch/internal/anchors"
	"github.com/leeaandrob/volwatch/internal/api"
	"github.com/leeaandrob/volwatch/internal/calendar"
	"github.com/leeaandrob/volwatch/internal/config"
	"github.com/leeaandrob/volwatch/internal/content"
	"github.com/leeaandrob/volwatch/internal/llm"
	"github.com/leeaandrob/volwatch/internal/models"
	"github.com/leeaandrob/volwatch/internal/pipeline"
	"github.com/leeaandrob/volwatch/internal/scheduler"
	"github.com/leeaandrob/volwatch/internal/storage"
	"github.com/leeaandrob/volwatch/internal/telegram"
	"github.com/leeaandrob/volwatch/internal/volatility"
)

// historyStore is what both storage backends provide.
type historyStore interface {
	api.HistoryStore
	pipeline.Recorder
	scheduler.SnapshotStore
}

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msg("volwatch - Starting volatility notifier")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.LogFormat == "json" {
		zerolog.TimeFieldFormat = time.RFC3339
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	var store historyStore
	if cfg.MongoURI != "" {
		mongoStore, err := storage.NewStore(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
		}
		defer mongoStore.Close(context.Background())
		store = mongoStore
	} else {
		store = storage.NewMemoryStore(0)
	}

	// Anchor table
	table := anchors.Load(cfg.AnchorEventsPath)
	log.Debug().Strs("labels", table.Labels()).Msg("Anchor labels")

	// Calendar source
	var src calendar.Source
	if cfg.CalendarFile != "" {
		src = calendar.FileSource{Path: cfg.CalendarFile}
		log.Info().Str("file", cfg.CalendarFile).Msg("Calendar file source initialized")
	} else {
		src = calendar.NewClient(calendar.Config{URL: cfg.CalendarURL})
		log.Info().Str("url", cfg.CalendarURL).Msg("Calendar feed client initialized")
	}
	cache := calendar.NewCachedSource(src, cfg.CalendarCacheTTL)

	// Engine
	engine := volatility.NewEngine(table, volatility.Config{
		Windows:      cfg.Windows(),
		StrictImpact: cfg.StrictImpactMatch,
	})

	// Generative service
	var candidates content.CandidateGenerator
	if cfg.AIEnabled && cfg.OpenAIKey != "" {
		candidates = llm.NewClient(llm.Config{
			APIKey:   cfg.OpenAIKey,
			Endpoint: cfg.AIEndpoint,
			Model:    cfg.AIModel,
		})
		log.Info().Str("model", cfg.AIModel).Msg("LLM client initialized")
	} else {
		log.Warn().Msg("LLM client not initialized, using templates only")
	}

	policy := content.DefaultPolicy()
	policy.ForbiddenWords = cfg.ForbiddenWords
	generator := content.NewGenerator(candidates, policy, cfg.AITimeout)

	// Delivery
	var deliverer pipeline.Deliverer = pipeline.LogDeliverer{}
	var tg *telegram.Client
	if cfg.TelegramEnabled {
		tg, err = telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.TelegramMaxRetries, time.Second)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Telegram")
		}
		deliverer = tg
	}

	// Clock
	var clock pipeline.Clock = pipeline.WallClock{}
	if start := cfg.SimulationStart(); !start.IsZero() {
		clock = pipeline.NewSimulationClock(start)
		log.Warn().Time("start", start).Msg("Simulation clock enabled")
	}

	runner := pipeline.NewRunner(pipeline.Config{
		Source:    cache,
		Engine:    engine,
		Generator: generator,
		Deliverer: deliverer,
		Recorder:  store,
		Clock:     clock,
	})

	// Scheduler
	var hours *scheduler.ActiveHours
	if cfg.ActiveHoursEnabled {
		hours, err = scheduler.NewActiveHours(cfg.ActiveHoursTZ, cfg.ActiveHoursStart, cfg.ActiveHoursEnd, true)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid active hours")
		}
		log.Info().Str("active_hours", hours.String()).Msg("Active hours enabled")
	}
	sched := scheduler.NewScheduler(scheduler.Options{
		ActiveHours: hours,
		Now:         clock.Now,
	})
	sched.RegisterDefaultJobs(runner, cache, store, cfg.TickInterval, cfg.CalendarRefresh)

	apiServer := api.NewServer(store, runner, sched, cfg.HTTPAddr)

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start all services
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Error().Err(err).Msg("API server error")
		}
	}()

	if tg != nil {
		tg.ListenForCommands(ctx, func() string { return statusLine(runner) })
	}
	sched.Start()

	log.Info().
		Str("api", cfg.HTTPAddr).
		Dur("tick_interval", cfg.TickInterval).
		Msg("volwatch running")

	// Wait for shutdown signal
	<-sigChan
	log.Info().Msg("Shutdown signal received")

	// Graceful shutdown
	cancel()
	sched.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	apiServer.Shutdown(shutdownCtx)

	log.Info().Msg("volwatch stopped")
}

func statusLine(r *pipeline.Runner) string {
	out := r.Current()
	if out == nil {
		return "No evaluation yet."
	}
	s := out.State
	if s.State == models.StateGreen || s.PrimaryEvent == nil {
		return fmt.Sprintf("%s at %s", s.State, out.EvaluatedAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s %s: %s at %s (cluster of %d)",
		s.State, s.Phase, s.PrimaryEvent.Name, s.PrimaryEvent.Time.Format(time.RFC3339), s.ClusterSize)
}
