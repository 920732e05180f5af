package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the same
// repository code serves pooled reads and in-transaction work.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

func (r *PgRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	txRepo := &PgRepository{pool: r.pool, q: tx}
	if err := fn(txRepo); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const appointmentColumns = `
	id, organization_id, patient_id, clinician_id, exam_room_id,
	date, start_minute, duration_minutes, status, notes,
	cancelled_at, cancellation_reason, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.OrganizationID,
		&a.PatientID,
		&a.ClinicianID,
		&a.ExamRoomID,
		&a.Date,
		&a.StartMinute,
		&a.DurationMinutes,
		&a.Status,
		&a.Notes,
		&a.CancelledAt,
		&a.CancellationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = DateOnly(a.Date)
	return &a, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.OrganizationID,
		&p.Name,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanClinician(row pgx.Row) (*Clinician, error) {
	var c Clinician

	err := row.Scan(
		&c.ID,
		&c.OrganizationID,
		&c.Name,
		&c.Specialty,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicianNotFound
		}
		return nil, err
	}

	return &c, nil
}

func scanExamRoom(row pgx.Row) (*ExamRoom, error) {
	var room ExamRoom

	err := row.Scan(
		&room.ID,
		&room.OrganizationID,
		&room.Name,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamRoomNotFound
		}
		return nil, err
	}

	return &room, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, orgID, id uuid.UUID) (*Patient, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, organization_id, name, email, created_at, updated_at
		FROM patients
		WHERE organization_id = $1 AND id = $2
	`, orgID, id)
	return scanPatient(row)
}

func (r *PgRepository) GetClinicianByID(ctx context.Context, orgID, id uuid.UUID) (*Clinician, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, organization_id, name, specialty, created_at, updated_at
		FROM clinicians
		WHERE organization_id = $1 AND id = $2
	`, orgID, id)
	return scanClinician(row)
}

func (r *PgRepository) GetExamRoomByID(ctx context.Context, orgID, id uuid.UUID) (*ExamRoom, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, organization_id, name, created_at, updated_at
		FROM exam_rooms
		WHERE organization_id = $1 AND id = $2
	`, orgID, id)
	return scanExamRoom(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, orgID, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE organization_id = $1 AND id = $2
	`, orgID, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, orgID, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	return r.hydrate(ctx, appt)
}

func (r *PgRepository) hydrate(ctx context.Context, appt *Appointment) (*AppointmentDetail, error) {
	detail := &AppointmentDetail{Appointment: *appt}

	patient, err := r.GetPatientByID(ctx, appt.OrganizationID, appt.PatientID)
	if err != nil {
		return nil, fmt.Errorf("hydrate patient: %w", err)
	}
	detail.Patient = patient

	clinician, err := r.GetClinicianByID(ctx, appt.OrganizationID, appt.ClinicianID)
	if err != nil {
		return nil, fmt.Errorf("hydrate clinician: %w", err)
	}
	detail.Clinician = clinician

	if appt.ExamRoomID != nil {
		room, err := r.GetExamRoomByID(ctx, appt.OrganizationID, *appt.ExamRoomID)
		if err != nil {
			return nil, fmt.Errorf("hydrate exam room: %w", err)
		}
		detail.ExamRoom = room
	}

	return detail, nil
}

// FindActiveOnDate backs conflict detection. The clinician/room
// predicate is an OR so a candidate holding both resources sees every
// appointment touching either one.
func (r *PgRepository) FindActiveOnDate(ctx context.Context, q ActiveDayQuery) ([]ActiveAppointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT a.id, a.organization_id, a.patient_id, a.clinician_id, a.exam_room_id,
		       a.date, a.start_minute, a.duration_minutes, a.status, a.notes,
		       a.cancelled_at, a.cancellation_reason, a.created_at, a.updated_at,
		       p.name
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.organization_id = $1
		  AND a.date = $2
		  AND a.status IN ('scheduled', 'in_progress')
		  AND (($3::uuid IS NOT NULL AND a.clinician_id = $3)
		    OR ($4::uuid IS NOT NULL AND a.exam_room_id = $4))
		  AND ($5::uuid IS NULL OR a.id <> $5)
		ORDER BY a.id
	`, q.OrganizationID, DateOnly(q.Date), q.ClinicianID, q.ExamRoomID, q.ExcludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ActiveAppointment
	for rows.Next() {
		var a ActiveAppointment
		err := rows.Scan(
			&a.ID,
			&a.OrganizationID,
			&a.PatientID,
			&a.ClinicianID,
			&a.ExamRoomID,
			&a.Date,
			&a.StartMinute,
			&a.DurationMinutes,
			&a.Status,
			&a.Notes,
			&a.CancelledAt,
			&a.CancellationReason,
			&a.CreatedAt,
			&a.UpdatedAt,
			&a.PatientName,
		)
		if err != nil {
			return nil, err
		}
		a.Date = DateOnly(a.Date)
		result = append(result, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListDay(ctx context.Context, q DayListQuery) ([]AppointmentDetail, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE organization_id = $1
		  AND date = $2
		  AND ($3::uuid IS NULL OR clinician_id = $3)
		  AND ($4::uuid IS NULL OR exam_room_id = $4)
		ORDER BY start_minute, id
	`, q.OrganizationID, DateOnly(q.Date), q.ClinicianID, q.ExamRoomID)
	if err != nil {
		return nil, err
	}
	return r.collectDetails(ctx, rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, orgID, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE organization_id = $1 AND patient_id = $2
		ORDER BY date DESC, start_minute DESC
		LIMIT $3 OFFSET $4
	`, orgID, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return r.collectDetails(ctx, rows)
}

func (r *PgRepository) collectDetails(ctx context.Context, rows pgx.Rows) ([]AppointmentDetail, error) {
	var appts []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		appts = append(appts, *a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]AppointmentDetail, 0, len(appts))
	for i := range appts {
		detail, err := r.hydrate(ctx, &appts[i])
		if err != nil {
			return nil, err
		}
		result = append(result, *detail)
	}
	return result, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO appointments (
			id, organization_id, patient_id, clinician_id, exam_room_id,
			date, start_minute, duration_minutes, status, notes,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, a.OrganizationID, a.PatientID, a.ClinicianID, a.ExamRoomID,
		DateOnly(a.Date), a.StartMinute, a.DurationMinutes, a.Status, a.Notes)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, orgID, id uuid.UUID, date time.Time, startMinute, durationMinutes int) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET date = $3,
		    start_minute = $4,
		    duration_minutes = $5,
		    updated_at = now()
		WHERE organization_id = $1 AND id = $2
		RETURNING `+appointmentColumns+`
	`, orgID, id, DateOnly(date), startMinute, durationMinutes)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateExamRoom(ctx context.Context, orgID, id, roomID uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET exam_room_id = $3,
		    updated_at = now()
		WHERE organization_id = $1 AND id = $2
		RETURNING `+appointmentColumns+`
	`, orgID, id, roomID)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, orgID, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $4,
		    updated_at = now()
		WHERE organization_id = $1
		  AND id = $2
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, orgID, id, from, to)

	return scanAppointment(row)
}

func (r *PgRepository) CancelAppointment(ctx context.Context, orgID, id uuid.UUID, reason string, at time.Time) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancelled_at = $3,
		    cancellation_reason = $4,
		    updated_at = now()
		WHERE organization_id = $1
		  AND id = $2
		  AND status = 'scheduled'
		RETURNING `+appointmentColumns+`
	`, orgID, id, at, reason)

	return scanAppointment(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO event_logs (organization_id, event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.OrganizationID, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func (r *PgRepository) FindUnforwardedEvents(ctx context.Context, limit int) ([]EventLog, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, organization_id, event_type, appointment_id, payload, created_at, forwarded_at
		FROM event_logs
		WHERE forwarded_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []EventLog
	for rows.Next() {
		var ev EventLog
		err := rows.Scan(
			&ev.ID,
			&ev.OrganizationID,
			&ev.EventType,
			&ev.AppointmentID,
			&ev.Payload,
			&ev.CreatedAt,
			&ev.ForwardedAt,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) MarkEventForwarded(ctx context.Context, id int64, at time.Time) error {
	_, err := r.q.Exec(ctx, `
		UPDATE event_logs
		SET forwarded_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark event forwarded: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
