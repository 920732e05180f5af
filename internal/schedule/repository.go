package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActiveDayQuery selects active (scheduled or in-progress) appointments
// for one organization on one date. When both ClinicianID and
// ExamRoomID are set the query matches appointments holding either
// resource; ExcludeID drops the appointment being rescheduled.
type ActiveDayQuery struct {
	OrganizationID uuid.UUID
	Date           time.Time
	ClinicianID    *uuid.UUID
	ExamRoomID     *uuid.UUID
	ExcludeID      *uuid.UUID
}

// DayListQuery selects a day's appointments (any status) for display.
type DayListQuery struct {
	OrganizationID uuid.UUID
	Date           time.Time
	ClinicianID    *uuid.UUID
	ExamRoomID     *uuid.UUID
}

// Repository contains all DB interactions needed by the engine. Every
// read is organization-scoped: a row belonging to another organization
// behaves as if it does not exist.
type Repository interface {
	GetPatientByID(ctx context.Context, orgID, id uuid.UUID) (*Patient, error)
	GetClinicianByID(ctx context.Context, orgID, id uuid.UUID) (*Clinician, error)
	GetExamRoomByID(ctx context.Context, orgID, id uuid.UUID) (*ExamRoom, error)

	GetAppointmentByID(ctx context.Context, orgID, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, orgID, id uuid.UUID) (*AppointmentDetail, error)

	// For conflict checks
	FindActiveOnDate(ctx context.Context, q ActiveDayQuery) ([]ActiveAppointment, error)

	// Display reads
	ListDay(ctx context.Context, q DayListQuery) ([]AppointmentDetail, error)
	ListByPatient(ctx context.Context, orgID, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error)

	// Creation and updates
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	UpdateSchedule(ctx context.Context, orgID, id uuid.UUID, date time.Time, startMinute, durationMinutes int) (*Appointment, error)
	UpdateExamRoom(ctx context.Context, orgID, id, roomID uuid.UUID) (*Appointment, error)
	// UpdateStatus is a compare-and-set: it only moves from -> to and
	// returns ErrAppointmentNotFound if the row is not in `from`.
	UpdateStatus(ctx context.Context, orgID, id uuid.UUID, from, to Status) (*Appointment, error)
	CancelAppointment(ctx context.Context, orgID, id uuid.UUID, reason string, at time.Time) (*Appointment, error)

	// Event outbox
	InsertEvent(ctx context.Context, ev EventLog) error
	FindUnforwardedEvents(ctx context.Context, limit int) ([]EventLog, error)
	MarkEventForwarded(ctx context.Context, id int64, at time.Time) error

	// InTx runs fn against a repository bound to a single transaction,
	// committing if fn returns nil. The conflict-detection read and the
	// write it guards must share one transaction.
	InTx(ctx context.Context, fn func(Repository) error) error
}
