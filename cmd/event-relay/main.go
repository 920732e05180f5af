package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicflow/clinic-scheduling/internal/config"
	"github.com/clinicflow/clinic-scheduling/internal/db"
	"github.com/clinicflow/clinic-scheduling/internal/forwarder"
	"github.com/clinicflow/clinic-scheduling/internal/logging"
	"github.com/clinicflow/clinic-scheduling/internal/schedule"
)

// event-relay drains the transactional outbox into the external event
// sink. Events are marked forwarded only after the sink acknowledges
// them, so delivery is at-least-once and the sink must be idempotent.
func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("dev", "event-relay")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, "event-relay")

	if cfg.ForwarderURL == "" {
		log.Fatal().Msg("FORWARDER_URL is required")
	}

	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.RelayInterval).
		Int("batch_size", cfg.RelayBatchSize).
		Msg("event-relay starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	repo := schedule.NewPgRepository(pgPool)
	client := forwarder.New(cfg.ForwarderURL, cfg.ForwarderTimeout)

	// Run once at startup
	runOnce(rootCtx, log, repo, client, cfg.RelayBatchSize)

	ticker := time.NewTicker(cfg.RelayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping event relay")
			return
		case <-ticker.C:
			runOnce(rootCtx, log, repo, client, cfg.RelayBatchSize)
		}
	}
}

func runOnce(ctx context.Context, log zerolog.Logger, repo schedule.Repository, client *forwarder.Client, batchSize int) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()

	events, err := repo.FindUnforwardedEvents(runCtx, batchSize)
	if err != nil {
		log.Error().Err(err).Msg("find unforwarded events")
		return
	}

	forwarded := 0
	for _, ev := range events {
		if err := client.Forward(runCtx, ev); err != nil {
			// Leave the row unforwarded; the next run retries it.
			log.Error().Err(err).Int64("event_id", ev.ID).Msg("forward event")
			continue
		}
		if err := repo.MarkEventForwarded(runCtx, ev.ID, time.Now()); err != nil {
			log.Error().Err(err).Int64("event_id", ev.ID).Msg("mark event forwarded")
			continue
		}
		forwarded++
	}

	if len(events) > 0 {
		log.Info().
			Int("found", len(events)).
			Int("forwarded", forwarded).
			Dur("took", time.Since(start)).
			Msg("relay run complete")
	}
}
