package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinic-scheduling/internal/db"
	"github.com/clinicflow/clinic-scheduling/internal/logging"
	"github.com/clinicflow/clinic-scheduling/internal/schedule"
)

func main() {
	log := logging.New("dev", "seed")
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	seedCtx := context.Background()

	orgIDs, err := seedOrganizations(seedCtx, pool, 3)
	if err != nil {
		log.Fatal().Err(err).Msg("seed organizations")
	}

	for _, orgID := range orgIDs {
		clinicianIDs, err := seedClinicians(seedCtx, pool, orgID, 12)
		if err != nil {
			log.Fatal().Err(err).Msg("seed clinicians")
		}
		roomIDs, err := seedExamRooms(seedCtx, pool, orgID, 8)
		if err != nil {
			log.Fatal().Err(err).Msg("seed exam rooms")
		}
		patientIDs, err := seedPatients(seedCtx, pool, orgID, 400)
		if err != nil {
			log.Fatal().Err(err).Msg("seed patients")
		}
		if err := seedAppointments(seedCtx, pool, log, orgID, clinicianIDs, roomIDs, patientIDs, 200); err != nil {
			log.Fatal().Err(err).Msg("seed appointments")
		}
	}

	log.Info().Msg("seed complete")
}

func seedOrganizations(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Company() + " Clinic"

		_, err := tx.Exec(ctx, `
			INSERT INTO organizations (id, name, created_at, updated_at)
			VALUES ($1, $2, now(), now())
		`, id, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedClinicians(ctx context.Context, pool *pgxpool.Pool, orgID uuid.UUID, count int) ([]uuid.UUID, error) {
	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	ids := make([]uuid.UUID, 0, count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO clinicians (id, organization_id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, orgID, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedExamRooms(ctx context.Context, pool *pgxpool.Pool, orgID uuid.UUID, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()

		_, err := tx.Exec(ctx, `
			INSERT INTO exam_rooms (id, organization_id, name, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, orgID, gofakeit.LetterN(1)+gofakeit.DigitN(2))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, orgID uuid.UUID, count int) ([]uuid.UUID, error) {
	const batchSize = 200

	ids := make([]uuid.UUID, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, organization_id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, orgID, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
	}

	return ids, nil
}

// seedAppointments lays out non-overlapping slots per clinician over
// the next two weeks so the seeded calendar starts conflict-free.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, orgID uuid.UUID, clinicianIDs, roomIDs, patientIDs []uuid.UUID, count int) error {
	durations := []int{15, 30, 45, 60}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	created := 0
	for day := 1; day <= 14 && created < count; day++ {
		date := schedule.DateOnly(time.Now().AddDate(0, 0, day))

		for ci, clinicianID := range clinicianIDs {
			// One dedicated room per clinician (while rooms last) keeps
			// the seeded calendar free of room collisions.
			var roomID *uuid.UUID
			if ci < len(roomIDs) {
				roomID = &roomIDs[ci]
			}

			startMinute := 9 * 60 // clinic day opens at 09:00
			for startMinute < 17*60 && created < count {
				duration := durations[gofakeit.Number(0, len(durations)-1)]

				_, err := tx.Exec(ctx, `
					INSERT INTO appointments (
						id, organization_id, patient_id, clinician_id, exam_room_id,
						date, start_minute, duration_minutes, status, created_at, updated_at
					)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'scheduled', now(), now())
				`, uuid.New(), orgID,
					patientIDs[gofakeit.Number(0, len(patientIDs)-1)],
					clinicianID, roomID, date, startMinute, duration)
				if err != nil {
					return err
				}

				created++
				// Leave a gap so rescheduling into free space is easy
				// to demo.
				startMinute += duration + 15*gofakeit.Number(1, 3)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info().Int("appointments", created).Str("organization", orgID.String()).Msg("appointments seeded")
	return nil
}
