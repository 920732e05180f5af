package schedule

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrClinicianNotFound   = errors.New("clinician not found")
	ErrExamRoomNotFound    = errors.New("exam room not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrScheduleBusy means the clinician or room schedule is locked by
	// a concurrent booking attempt.
	ErrScheduleBusy = errors.New("schedule is currently being modified, please retry")
)

// ValidationError rejects malformed input before any conflict
// detection runs. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidStateError rejects an operation not permitted in the
// appointment's current status.
type InvalidStateError struct {
	Op     string
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s appointment in status %q", e.Op, e.Status)
}

type ConflictType string

const (
	ConflictClinician ConflictType = "clinician"
	ConflictRoom      ConflictType = "room"
	ConflictBoth      ConflictType = "both"
)

// Conflict describes one existing active appointment that overlaps the
// proposed interval.
type Conflict struct {
	AppointmentID uuid.UUID
	Type          ConflictType
	PatientName   string
	Time          string
	Message       string
}

// ProposedSchedule echoes the attempted booking back to the caller so
// the UI can render a confirm-override dialog.
type ProposedSchedule struct {
	AppointmentID   *uuid.UUID `json:"appointment_id,omitempty"`
	ClinicianID     uuid.UUID  `json:"clinician_id"`
	ExamRoomID      *uuid.UUID `json:"exam_room_id,omitempty"`
	Date            string     `json:"date"`
	Time            string     `json:"time"`
	DurationMinutes int        `json:"duration_minutes"`
}

// ConflictError carries every detected conflict, never just the first.
// Resolved only by caller choice: force, or resubmit with different
// parameters.
type ConflictError struct {
	Conflicts []Conflict
	Proposed  *ProposedSchedule
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 1 {
		return "1 conflicting appointment detected"
	}
	return fmt.Sprintf("%d conflicting appointments detected", len(e.Conflicts))
}
