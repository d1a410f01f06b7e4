// Package main provides the entry point for the race control server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/singletrack/race-control/internal/config"
	"github.com/singletrack/race-control/internal/database"
	"github.com/singletrack/race-control/internal/health"
	applogger "github.com/singletrack/race-control/internal/logger"
	"github.com/singletrack/race-control/internal/metrics"
	"github.com/singletrack/race-control/internal/models"
	"github.com/singletrack/race-control/internal/repository"
	"github.com/singletrack/race-control/internal/scheduler"
	"github.com/singletrack/race-control/internal/service"
	"github.com/singletrack/race-control/internal/stream"
	"github.com/singletrack/race-control/internal/weather"
)

func main() {
	configPath := os.Getenv("RACE_CONTROL_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	// Load and validate configuration
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Set up logging
	appLog := applogger.NewLogger(cfg.App.LogLevel)
	audit := applogger.NewAuditLogger(appLog)
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"log_level":   cfg.App.LogLevel,
	}).Info("Race control server starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection and schema
	db, err := database.Initialize(ctx, cfg)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	appLog.Info("Database connection established")

	repos, err := repository.NewRepositories(db)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize repositories")
	}

	// Weather provider, wrapped in a read-through cache
	var weatherProvider weather.Provider
	if cfg.Weather.Enabled {
		clientCfg := weather.DefaultClientConfig(cfg.Weather.BaseURL)
		clientCfg.Timeout = time.Duration(cfg.Weather.TimeoutSeconds) * time.Second
		clientCfg.MaxRetries = cfg.Weather.RetryAttempts
		clientCfg.RateLimit = cfg.Weather.RateLimitPerSecond

		client := weather.NewClient(clientCfg, appLog)
		weatherProvider = weather.NewCachedProvider(client, time.Duration(cfg.Weather.CacheTTLSeconds)*time.Second)
		appLog.WithField("base_url", cfg.Weather.BaseURL).Info("Weather provider initialized")
	}

	// Live standings feed
	var hub *stream.Hub
	if cfg.Stream.Enabled {
		hub = stream.NewHub(appLog)
		defer hub.Close()
		appLog.Info("Live standings feed enabled")
	}

	standingsSvc := service.NewStandingsService(repos.Race, repos.Result, repos.Rider, appLog)

	// Push fresh standings to watchers while races are underway. Results
	// are recorded by racectl in separate processes, so the feed polls
	// rather than piggybacking on finish events.
	if hub != nil {
		go rebroadcastLoop(ctx, hub, standingsSvc, repos, appLog)
	}

	// Weather refresh scheduler
	var sched *scheduler.Scheduler
	if cfg.Weather.Enabled && cfg.Weather.RefreshCron != "" {
		weatherSvc := service.NewWeatherService(repos.Race, weatherProvider, appLog, audit)
		sched = scheduler.NewScheduler(weatherSvc, appLog)

		window := time.Duration(cfg.Weather.RefreshWindowHours) * time.Hour
		if err := sched.ScheduleWeatherRefresh(cfg.Weather.RefreshCron, window); err != nil {
			appLog.WithError(err).Fatal("Failed to schedule weather refresh")
		}
		if err := sched.ScheduleImminentRefresh(300); err != nil {
			appLog.WithError(err).Fatal("Failed to schedule imminent weather refresh")
		}
		if err := sched.Start(); err != nil {
			appLog.WithError(err).Fatal("Failed to start scheduler")
		}
		defer sched.Stop()
	}

	// Operational server: probes, metrics, standings feed
	opsServer := health.NewServer(health.Config{
		ServiceName: cfg.App.Name,
		Port:        cfg.Ops.Port,
		Logger:      appLog,
		DB:          db,
	})
	if cfg.Ops.MetricsEnabled {
		opsServer.Handle("/metrics", metrics.Handler())
	}
	if hub != nil {
		opsServer.Handle("/ws/standings", http.HandlerFunc(hub.ServeWS))
	}
	if err := opsServer.Start(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to start operational server")
	}
	opsServer.SetReady(true)

	appLog.Info("Race control server ready")

	<-ctx.Done()
	appLog.Info("Shutdown signal received")
}

func rebroadcastLoop(ctx context.Context, hub *stream.Hub, standings *service.StandingsService, repos *repository.Repositories, appLog *logrus.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if hub.Watchers() == 0 {
				continue
			}

			races, err := repos.Race.GetByStatus(ctx, models.RaceStatusInProgress)
			if err != nil {
				appLog.WithError(err).Warn("Failed to list in-progress races for standings rebroadcast")
				continue
			}

			for _, race := range races {
				live, err := standings.Live(ctx, race.ID)
				if err != nil {
					appLog.WithError(err).WithField("race_id", race.ID).Warn("Failed to build standings for rebroadcast")
					continue
				}
				hub.BroadcastStandings(race.ID, live)
			}
		}
	}
}
