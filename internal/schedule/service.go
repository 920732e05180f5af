package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/clinicflow/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentScheduled = "APPOINTMENT_SCHEDULED"
	EventAppointmentUpdated   = "APPOINTMENT_UPDATED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventRoomAssigned         = "ROOM_ASSIGNED"
)

// Service orchestrates validated creation, reschedule, cancellation and
// room assignment of appointments. Each mutation runs under a schedule
// lock and a single transaction so a concurrent request cannot slip a
// colliding booking between conflict detection and commit.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		log:    log,
		now:    time.Now,
	}
}

type ScheduleInput struct {
	OrganizationID  uuid.UUID
	ActorID         uuid.UUID
	PatientID       uuid.UUID
	ClinicianID     uuid.UUID
	ExamRoomID      *uuid.UUID
	Date            time.Time
	StartMinute     int
	DurationMinutes int
	Notes           *string
	// Force creates the appointment even when conflicts exist. The
	// conflicting appointments are never touched; the double-booking
	// becomes a recorded, intentional state.
	Force bool
}

// Schedule books a new appointment. Conflicts fail the call with a
// *ConflictError carrying every overlapping booking; the caller decides
// whether to resubmit with Force.
func (s *Service) Schedule(ctx context.Context, in ScheduleInput) (*Appointment, error) {
	if err := s.validateWindow(in.Date, in.StartMinute, in.DurationMinutes); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetPatientByID(ctx, in.OrganizationID, in.PatientID); err != nil {
		return nil, s.wrapLookup("load patient", err)
	}
	if _, err := s.repo.GetClinicianByID(ctx, in.OrganizationID, in.ClinicianID); err != nil {
		return nil, s.wrapLookup("load clinician", err)
	}
	if in.ExamRoomID != nil {
		if _, err := s.repo.GetExamRoomByID(ctx, in.OrganizationID, *in.ExamRoomID); err != nil {
			return nil, s.wrapLookup("load exam room", err)
		}
	}

	var created *Appointment

	err := s.locker.WithScheduleLock(ctx, lockKeys(in.ClinicianID, in.ExamRoomID, in.Date), func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Repository) error {
			if !in.Force {
				conflicts, err := NewDetector(tx).Detect(lockCtx, Candidate{
					OrganizationID:  in.OrganizationID,
					ClinicianID:     in.ClinicianID,
					ExamRoomID:      in.ExamRoomID,
					Date:            in.Date,
					StartMinute:     in.StartMinute,
					DurationMinutes: in.DurationMinutes,
				})
				if err != nil {
					return err
				}
				if len(conflicts) > 0 {
					return &ConflictError{
						Conflicts: conflicts,
						Proposed:  proposed(nil, in.ClinicianID, in.ExamRoomID, in.Date, in.StartMinute, in.DurationMinutes),
					}
				}
			}

			appt, err := tx.CreateAppointment(lockCtx, &Appointment{
				OrganizationID:  in.OrganizationID,
				PatientID:       in.PatientID,
				ClinicianID:     in.ClinicianID,
				ExamRoomID:      in.ExamRoomID,
				Date:            DateOnly(in.Date),
				StartMinute:     in.StartMinute,
				DurationMinutes: in.DurationMinutes,
				Status:          StatusScheduled,
				Notes:           in.Notes,
			})
			if err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}

			created = appt

			return s.logEvent(lockCtx, tx, appt, EventAppointmentScheduled, map[string]any{
				"patient_id":       in.PatientID.String(),
				"clinician_id":     in.ClinicianID.String(),
				"exam_room_id":     uuidOrNil(in.ExamRoomID),
				"date":             appt.Date.Format("2006-01-02"),
				"time":             FormatClock(appt.StartMinute),
				"duration_minutes": appt.DurationMinutes,
				"actor_id":         in.ActorID.String(),
				"forced":           in.Force,
			})
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	return created, nil
}

// Reschedule moves an appointment to a new date/time/duration, holding
// clinician and room fixed. The appointment's own id is excluded from
// detection so it never conflicts with itself.
func (s *Service) Reschedule(ctx context.Context, orgID, actorID, id uuid.UUID, newDate time.Time, newStartMinute, newDurationMinutes int, force bool) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled {
		return nil, &InvalidStateError{Op: "reschedule", Status: appt.Status}
	}

	if err := s.validateWindow(newDate, newStartMinute, newDurationMinutes); err != nil {
		return nil, err
	}

	var updated *Appointment

	err = s.locker.WithScheduleLock(ctx, lockKeys(appt.ClinicianID, appt.ExamRoomID, newDate), func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Repository) error {
			// Re-read inside the critical section; the row may have
			// moved since the pre-check.
			fresh, err := tx.GetAppointmentByID(lockCtx, orgID, id)
			if err != nil {
				return err
			}
			if fresh.Status != StatusScheduled {
				return &InvalidStateError{Op: "reschedule", Status: fresh.Status}
			}

			if !force {
				conflicts, err := NewDetector(tx).Detect(lockCtx, Candidate{
					OrganizationID:  orgID,
					ClinicianID:     fresh.ClinicianID,
					ExamRoomID:      fresh.ExamRoomID,
					Date:            newDate,
					StartMinute:     newStartMinute,
					DurationMinutes: newDurationMinutes,
					ExcludeID:       &id,
				})
				if err != nil {
					return err
				}
				if len(conflicts) > 0 {
					return &ConflictError{
						Conflicts: conflicts,
						Proposed:  proposed(&id, fresh.ClinicianID, fresh.ExamRoomID, newDate, newStartMinute, newDurationMinutes),
					}
				}
			}

			oldDate, oldStart, oldDuration := fresh.Date, fresh.StartMinute, fresh.DurationMinutes

			updated, err = tx.UpdateSchedule(lockCtx, orgID, id, newDate, newStartMinute, newDurationMinutes)
			if err != nil {
				return fmt.Errorf("update schedule: %w", err)
			}

			return s.logEvent(lockCtx, tx, updated, EventAppointmentUpdated, map[string]any{
				"change":       "reschedule",
				"old_date":     oldDate.Format("2006-01-02"),
				"old_time":     FormatClock(oldStart),
				"old_duration": oldDuration,
				"new_date":     updated.Date.Format("2006-01-02"),
				"new_time":     FormatClock(updated.StartMinute),
				"new_duration": updated.DurationMinutes,
				"actor_id":     actorID.String(),
				"forced":       force,
			})
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	return updated, nil
}

// Cancel moves a scheduled appointment to cancelled, recording when and
// why. Cancelling any other status fails, never silently succeeds.
func (s *Service) Cancel(ctx context.Context, orgID, actorID, id uuid.UUID, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Reason: "must not be empty"}
	}

	var cancelled *Appointment

	err := s.repo.InTx(ctx, func(tx Repository) error {
		appt, err := tx.GetAppointmentByID(ctx, orgID, id)
		if err != nil {
			return err
		}
		if !appt.Status.Cancellable() {
			return &InvalidStateError{Op: "cancel", Status: appt.Status}
		}

		cancelled, err = tx.CancelAppointment(ctx, orgID, id, reason, s.now())
		if err != nil {
			return fmt.Errorf("cancel appointment: %w", err)
		}

		return s.logEvent(ctx, tx, cancelled, EventAppointmentCancelled, map[string]any{
			"reason":   reason,
			"actor_id": actorID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

// AssignRoom places an appointment in an exam room, checking only room
// collisions over the appointment's existing interval.
func (s *Service) AssignRoom(ctx context.Context, orgID, actorID, id, roomID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, &InvalidStateError{Op: "assign room", Status: appt.Status}
	}

	if _, err := s.repo.GetExamRoomByID(ctx, orgID, roomID); err != nil {
		return nil, s.wrapLookup("load exam room", err)
	}

	var updated *Appointment

	err = s.locker.WithScheduleLock(ctx, []string{roomLockKey(roomID, appt.Date)}, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Repository) error {
			fresh, err := tx.GetAppointmentByID(lockCtx, orgID, id)
			if err != nil {
				return err
			}
			if fresh.Status.Terminal() {
				return &InvalidStateError{Op: "assign room", Status: fresh.Status}
			}

			conflicts, err := NewDetector(tx).DetectRoom(lockCtx, Candidate{
				OrganizationID:  orgID,
				ClinicianID:     fresh.ClinicianID,
				ExamRoomID:      &roomID,
				Date:            fresh.Date,
				StartMinute:     fresh.StartMinute,
				DurationMinutes: fresh.DurationMinutes,
				ExcludeID:       &id,
			})
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return &ConflictError{Conflicts: conflicts}
			}

			updated, err = tx.UpdateExamRoom(lockCtx, orgID, id, roomID)
			if err != nil {
				return fmt.Errorf("update exam room: %w", err)
			}

			return s.logEvent(lockCtx, tx, updated, EventRoomAssigned, map[string]any{
				"exam_room_id": roomID.String(),
				"actor_id":     actorID.String(),
			})
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	return updated, nil
}

// Start moves a scheduled appointment to in progress.
func (s *Service) Start(ctx context.Context, orgID, actorID, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, orgID, actorID, id, StatusScheduled, StatusInProgress, "start")
}

// Complete moves an in-progress appointment to completed.
func (s *Service) Complete(ctx context.Context, orgID, actorID, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, orgID, actorID, id, StatusInProgress, StatusCompleted, "complete")
}

// MarkNoShow records that the patient never arrived.
func (s *Service) MarkNoShow(ctx context.Context, orgID, actorID, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, orgID, actorID, id, StatusScheduled, StatusNoShow, "mark no-show")
}

func (s *Service) transition(ctx context.Context, orgID, actorID, id uuid.UUID, from, to Status, op string) (*Appointment, error) {
	var updated *Appointment

	err := s.repo.InTx(ctx, func(tx Repository) error {
		appt, err := tx.UpdateStatus(ctx, orgID, id, from, to)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// Distinguish a missing row from a status mismatch.
				current, lookupErr := tx.GetAppointmentByID(ctx, orgID, id)
				if lookupErr != nil {
					return lookupErr
				}
				return &InvalidStateError{Op: op, Status: current.Status}
			}
			return fmt.Errorf("%s appointment: %w", op, err)
		}

		updated = appt

		return s.logEvent(ctx, tx, appt, EventAppointmentUpdated, map[string]any{
			"change":      "status",
			"status_from": string(from),
			"status_to":   string(to),
			"actor_id":    actorID.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// GetAppointment retrieves a fully hydrated appointment by id.
func (s *Service) GetAppointment(ctx context.Context, orgID, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// ListDay retrieves a day's appointments, optionally narrowed to one
// clinician or room.
func (s *Service) ListDay(ctx context.Context, orgID uuid.UUID, date time.Time, clinicianID, roomID *uuid.UUID) ([]AppointmentDetail, error) {
	return s.repo.ListDay(ctx, DayListQuery{
		OrganizationID: orgID,
		Date:           DateOnly(date),
		ClinicianID:    clinicianID,
		ExamRoomID:     roomID,
	})
}

// ListByPatient retrieves a patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, orgID, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByPatient(ctx, orgID, patientID, limit, offset)
}

func (s *Service) validateWindow(date time.Time, startMinute, durationMinutes int) error {
	if durationMinutes < MinDurationMinutes {
		return &ValidationError{Field: "duration_minutes", Reason: fmt.Sprintf("must be at least %d", MinDurationMinutes)}
	}
	if startMinute < 0 || startMinute >= minutesPerDay {
		return &ValidationError{Field: "appointment_time", Reason: "must be within 00:00-23:59"}
	}
	if startMinute+durationMinutes > minutesPerDay {
		return &ValidationError{Field: "duration_minutes", Reason: "appointment must not run past midnight"}
	}
	if DateOnly(date).Before(DateOnly(s.now())) {
		return &ValidationError{Field: "appointment_date", Reason: "must not be in the past"}
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, tx Repository, appt *Appointment, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appt.ID

	ev := EventLog{
		OrganizationID: appt.OrganizationID,
		EventType:      eventType,
		AppointmentID:  &apptID,
		Payload:        data,
		CreatedAt:      s.now(),
	}

	if err := tx.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("insert event %s: %w", eventType, err)
	}
	return nil
}

func (s *Service) wrapLookup(op string, err error) error {
	if errors.Is(err, ErrPatientNotFound) ||
		errors.Is(err, ErrClinicianNotFound) ||
		errors.Is(err, ErrExamRoomNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func proposed(id *uuid.UUID, clinicianID uuid.UUID, roomID *uuid.UUID, date time.Time, startMinute, durationMinutes int) *ProposedSchedule {
	return &ProposedSchedule{
		AppointmentID:   id,
		ClinicianID:     clinicianID,
		ExamRoomID:      roomID,
		Date:            DateOnly(date).Format("2006-01-02"),
		Time:            FormatClock(startMinute),
		DurationMinutes: durationMinutes,
	}
}

func lockKeys(clinicianID uuid.UUID, roomID *uuid.UUID, date time.Time) []string {
	day := DateOnly(date).Format("2006-01-02")
	keys := []string{fmt.Sprintf("lock:sched:clinician:%s:%s", clinicianID, day)}
	if roomID != nil {
		keys = append(keys, roomLockKey(*roomID, date))
	}
	return keys
}

func roomLockKey(roomID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("lock:sched:room:%s:%s", roomID, DateOnly(date).Format("2006-01-02"))
}

func uuidOrNil(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
