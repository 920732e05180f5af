// simulate fires a storm of deliberately overlapping booking requests
// at one clinician's day and then sweeps the database for active
// appointment pairs that overlap. Any row in the sweep output means the
// detect-then-commit critical section failed.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinic-scheduling/internal/db"
	"github.com/clinicflow/clinic-scheduling/internal/identity"
	"github.com/clinicflow/clinic-scheduling/internal/logging"
	"github.com/clinicflow/clinic-scheduling/internal/schedule"
)

type simConfig struct {
	apiBaseURL string
	workers    int
	requests   int
	date       string
}

type metrics struct {
	total    int64
	success  int64
	conflict int64
	busy     int64
	errors   int64
}

func main() {
	log := logging.New("dev", "simulate")

	cfg := simConfig{}
	flag.StringVar(&cfg.apiBaseURL, "api", envOr("API_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.IntVar(&cfg.workers, "workers", 16, "concurrent workers")
	flag.IntVar(&cfg.requests, "requests", 200, "total schedule requests")
	flag.StringVar(&cfg.date, "date", schedule.DateOnly(time.Now().AddDate(0, 0, 1)).Format("2006-01-02"), "target date")
	flag.Parse()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, dsn)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	runCtx := context.Background()

	orgID, clinicianID, patients, err := pickTargets(runCtx, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("pick simulation targets")
	}

	token, err := identity.IssueToken([]byte(secret), identity.Identity{
		OrganizationID: orgID,
		UserID:         uuid.New(),
		Role:           identity.RoleStaff,
	}, time.Hour)
	if err != nil {
		log.Fatal().Err(err).Msg("issue token")
	}

	log.Info().
		Str("clinician", clinicianID.String()).
		Str("date", cfg.date).
		Int("workers", cfg.workers).
		Int("requests", cfg.requests).
		Msg("starting booking storm")

	m := runStorm(runCtx, cfg, token, clinicianID, patients)

	log.Info().
		Int64("total", m.total).
		Int64("success", m.success).
		Int64("conflict", m.conflict).
		Int64("busy", m.busy).
		Int64("errors", m.errors).
		Msg("storm complete")

	overlaps, err := sweepOverlaps(runCtx, pool, orgID, clinicianID, cfg.date)
	if err != nil {
		log.Fatal().Err(err).Msg("overlap sweep")
	}

	if overlaps > 0 {
		log.Error().Int("overlapping_pairs", overlaps).Msg("DOUBLE BOOKING DETECTED")
		os.Exit(1)
	}
	log.Info().Msg("no overlapping active appointments: double-booking invariant held")
}

func runStorm(ctx context.Context, cfg simConfig, token string, clinicianID uuid.UUID, patients []uuid.UUID) *metrics {
	m := &metrics{}
	client := &http.Client{Timeout: 10 * time.Second}

	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < cfg.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			for range jobs {
				// Random overlapping windows within a tight band so
				// most requests collide.
				startMinute := 9*60 + 15*rng.Intn(12)
				body := map[string]any{
					"patient_id":       patients[rng.Intn(len(patients))].String(),
					"clinician_id":     clinicianID.String(),
					"appointment_date": cfg.date,
					"appointment_time": schedule.FormatClock(startMinute),
					"duration_minutes": 30,
				}
				recordResult(m, post(ctx, client, cfg.apiBaseURL+"/appointments", token, body))
			}
		}()
	}

	for i := 0; i < cfg.requests; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return m
}

func post(ctx context.Context, client *http.Client, url, token string, body map[string]any) int {
	data, err := json.Marshal(body)
	if err != nil {
		return 0
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	return resp.StatusCode
}

func recordResult(m *metrics, status int) {
	atomic.AddInt64(&m.total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&m.success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.conflict, 1)
	case status == 0:
		atomic.AddInt64(&m.errors, 1)
	default:
		atomic.AddInt64(&m.errors, 1)
	}
}

func pickTargets(ctx context.Context, pool *pgxpool.Pool) (orgID, clinicianID uuid.UUID, patients []uuid.UUID, err error) {
	row := pool.QueryRow(ctx, `
		SELECT organization_id, id
		FROM clinicians
		ORDER BY created_at
		LIMIT 1
	`)
	if err = row.Scan(&orgID, &clinicianID); err != nil {
		return orgID, clinicianID, nil, fmt.Errorf("pick clinician: %w", err)
	}

	rows, err := pool.Query(ctx, `
		SELECT id FROM patients WHERE organization_id = $1 LIMIT 50
	`, orgID)
	if err != nil {
		return orgID, clinicianID, nil, fmt.Errorf("pick patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return orgID, clinicianID, nil, err
		}
		patients = append(patients, id)
	}
	if err := rows.Err(); err != nil {
		return orgID, clinicianID, nil, err
	}
	if len(patients) == 0 {
		return orgID, clinicianID, nil, fmt.Errorf("no patients seeded for organization %s", orgID)
	}

	return orgID, clinicianID, patients, nil
}

// sweepOverlaps counts pairs of active appointments for the clinician
// on the target date whose half-open minute windows intersect.
func sweepOverlaps(ctx context.Context, pool *pgxpool.Pool, orgID, clinicianID uuid.UUID, date string) (int, error) {
	row := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.id < b.id
		 AND a.clinician_id = b.clinician_id
		 AND a.date = b.date
		WHERE a.organization_id = $1
		  AND a.clinician_id = $2
		  AND a.date = $3::date
		  AND a.status IN ('scheduled', 'in_progress')
		  AND b.status IN ('scheduled', 'in_progress')
		  AND a.start_minute < b.start_minute + b.duration_minutes
		  AND b.start_minute < a.start_minute + a.duration_minutes
	`, orgID, clinicianID, date)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
