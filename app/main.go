package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/nacl/sign"

	"uptime/app/internal/alerts"
	"uptime/app/internal/auth"
	"uptime/app/internal/cache"
	"uptime/app/internal/checker"
	"uptime/app/internal/config"
	"uptime/app/internal/database"
	"uptime/app/internal/engine"
	"uptime/app/internal/handlers"
	"uptime/app/internal/incident"
	"uptime/app/internal/logging"
	"uptime/app/internal/models"
	"uptime/app/internal/ratelimit"
	"uptime/app/internal/retention"
	"uptime/app/internal/security"
	"uptime/app/internal/status"
)

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.DBDriver == string(database.SQLite) && cfg.DBDSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBDSN), 0o755); err != nil {
			log.Fatal().Err(err).Msg("Failed to create data directory")
		}
	}
	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Downstream alerting
	sinks := []alerts.Sink{alerts.LogSink{}}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, alerts.NewWebhookSink(cfg.WebhookURL, cfg.WebhookSecret))
	}
	if cfg.DiscordWebhookURL != "" {
		sinks = append(sinks, alerts.NewDiscordSink(cfg.DiscordWebhookURL))
	}
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		rs, err := alerts.NewRedisSink(ctx, cfg.RedisURL, cfg.RedisChannel)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("[Alerts] Redis unavailable, continuing without it")
		} else {
			defer rs.Close()
			sinks = append(sinks, rs)
		}
	}
	dispatcher := alerts.NewDispatcher(alerts.DefaultOptions(), db, sinks...)
	dispatcher.Start()

	// Engine
	results := cache.New(cfg.CacheTTL)

	registrations := ratelimit.New(ratelimit.Config{
		TokensPerMinute: cfg.RegistrationsPerMinute,
		ErrorMessage:    "too many registrations, try again later",
	})

	eng := engine.New(db, engineConfig(cfg),
		engine.WithCache(results),
		engine.WithPublisher(dispatcher),
		engine.WithShedder(ratelimit.NewShedder(registrations, cfg.MaxInflightTicks)),
	)

	if cfg.SeedFile != "" {
		if err := applySeed(context.Background(), eng, cfg.SeedFile); err != nil {
			log.Fatal().Err(err).Str("file", cfg.SeedFile).Msg("Failed to apply seed")
		}
	}

	// Built-in validator
	if cfg.LocalValidatorID != "" {
		agent, err := startLocalValidator(eng, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start local validator")
		}
		defer agent.Stop()
	}

	// Retention jobs
	keeper := retention.New(db, eng.Tracker(), retention.Config{
		TickRetention: cfg.TickRetention(),
		AuditKeep:     cfg.AuditLogKeep,
	}, nil)
	if err := keeper.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start retention scheduler")
	}

	// HTTP
	operator, err := auth.NewOperator(cfg.OperatorTokenHash, cfg.OperatorToken)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure operator token")
	}
	if !operator.Enabled() {
		log.Warn().Msg("[API] No operator token configured, operator endpoints are open")
	}

	api := &handlers.API{Engine: eng, Operator: operator, RequireSignatures: cfg.RequireTickSignatures}
	perIP := ratelimit.New(ratelimit.Config{TokensPerMinute: 60, MaxTokens: 20})

	mux := handlers.SetupRoutes(api, security.RateLimit(perIP))
	handler := security.RequestLogger(security.SecureHeaders(cfg.MaxBodyBytes)(mux))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("driver", cfg.DBDriver).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown")
	}
	keeper.Stop()
	dispatcher.Close()
	if n := dispatcher.Dropped(); n > 0 {
		log.Warn().Int64("dropped", n).Msg("[Alerts] Messages dropped while the queue was full")
	}
}

// engineConfig maps the environment settings onto the engine
func engineConfig(cfg *config.Config) engine.Config {
	ec := engine.DefaultConfig()
	ec.ClockSkew = cfg.ClockSkew
	ec.MinCheckInterval = cfg.MinCheckInterval
	ec.Status = status.Options{
		TicksPerValidator: cfg.TicksPerValidator,
		LatencyFactor:     cfg.LatencyFactor,
		MinBaseline:       ec.Status.MinBaseline,
		BaselineWindow:    ec.Status.BaselineWindow,
	}
	ec.Incident = incident.Config{
		UnhealthyDebounce: cfg.UnhealthyDebounce,
		HealthyDebounce:   cfg.HealthyDebounce,
		CriticalAfter:     cfg.CriticalAfter,
	}
	return ec
}

// startLocalValidator registers the in-process validator under a fresh key
// and starts probing
func startLocalValidator(eng *engine.Engine, cfg *config.Config) (*checker.Agent, error) {
	pub, _, err := sign.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	if _, err := eng.UpsertValidator(context.Background(), engine.ValidatorInput{
		ID:        cfg.LocalValidatorID,
		PublicKey: base64.StdEncoding.EncodeToString(pub[:]),
		Location:  cfg.LocalValidatorLocation,
	}); err != nil {
		return nil, err
	}

	agent := checker.NewAgent(cfg.LocalValidatorID, eng, func(ctx context.Context, t models.Tick) error {
		_, err := eng.Ingest(ctx, t)
		return err
	}, cfg.ProbeTimeout)
	if err := agent.Start(cfg.MinCheckInterval); err != nil {
		return nil, err
	}
	return agent, nil
}

// applySeed upserts the validators and monitors of a seed file. Safe to run
// on every start.
func applySeed(ctx context.Context, eng *engine.Engine, path string) error {
	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	for _, v := range seed.Validators {
		if _, err := eng.UpsertValidator(ctx, engine.ValidatorInput{
			ID: v.ID, PublicKey: v.PublicKey, Location: v.Location, IP: v.IP,
		}); err != nil {
			return err
		}
	}
	for _, m := range seed.Monitors {
		mon, err := eng.UpsertMonitor(ctx, m.Owner, engine.MonitorInput{
			ID: m.ID, Name: m.Name, URL: m.URL,
			CheckIntervalS: m.CheckIntervalS, ExpectedStatusCodes: m.ExpectedStatusCodes,
		})
		if err != nil {
			return err
		}
		if m.Paused && mon.Active() {
			if _, err := eng.PauseMonitor(ctx, mon.ID); err != nil {
				return err
			}
		}
	}
	log.Info().Int("validators", len(seed.Validators)).Int("monitors", len(seed.Monitors)).Msg("[Registry] Seed applied")
	return nil
}
