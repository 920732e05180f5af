package schedule

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// Active statuses block the clinician and room for conflict purposes.
// Completed slots already happened and never block future bookings.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusInProgress
}

func (s Status) Cancellable() bool {
	return s == StatusScheduled
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

type Organization struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	Email          *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Clinician struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	Specialty      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ExamRoom struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Appointment is a single-day booking. Date carries the calendar day at
// UTC midnight; StartMinute and DurationMinutes define a half-open
// interval that must not roll past midnight.
type Appointment struct {
	ID                 uuid.UUID
	OrganizationID     uuid.UUID
	PatientID          uuid.UUID
	ClinicianID        uuid.UUID
	ExamRoomID         *uuid.UUID
	Date               time.Time
	StartMinute        int
	DurationMinutes    int
	Status             Status
	Notes              *string
	CancelledAt        *time.Time
	CancellationReason *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a *Appointment) Interval() Interval {
	return NewInterval(a.Date, a.StartMinute, a.DurationMinutes)
}

// ActiveAppointment is the row shape returned by the conflict range
// query: the appointment plus the patient name needed for summaries.
type ActiveAppointment struct {
	Appointment
	PatientName string
}

type AppointmentDetail struct {
	Appointment
	Patient   *Patient
	Clinician *Clinician
	ExamRoom  *ExamRoom
}

// EventLog is a transactional outbox row. ForwardedAt is set by the
// relay worker once the external sink has acknowledged the event.
type EventLog struct {
	ID             int64
	OrganizationID uuid.UUID
	EventType      string
	AppointmentID  *uuid.UUID
	Payload        []byte
	CreatedAt      time.Time
	ForwardedAt    *time.Time
}
