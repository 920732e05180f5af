package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Candidate is a proposed booking to test against existing commitments.
// ExcludeID carries the appointment's own id during a reschedule so it
// never conflicts with itself.
type Candidate struct {
	OrganizationID  uuid.UUID
	ClinicianID     uuid.UUID
	ExamRoomID      *uuid.UUID
	Date            time.Time
	StartMinute     int
	DurationMinutes int
	ExcludeID       *uuid.UUID
}

func (c Candidate) Interval() Interval {
	return NewInterval(c.Date, c.StartMinute, c.DurationMinutes)
}

// Detector finds and classifies overlapping active appointments. It is
// read-only; run it on the same transaction as the subsequent write.
type Detector struct {
	repo Repository
}

func NewDetector(repo Repository) *Detector {
	return &Detector{repo: repo}
}

// Detect returns every active appointment overlapping the candidate's
// interval that shares its clinician or room, sorted by appointment id
// ascending. An empty result means the booking is clear.
func (d *Detector) Detect(ctx context.Context, cand Candidate) ([]Conflict, error) {
	existing, err := d.repo.FindActiveOnDate(ctx, ActiveDayQuery{
		OrganizationID: cand.OrganizationID,
		Date:           DateOnly(cand.Date),
		ClinicianID:    &cand.ClinicianID,
		ExamRoomID:     cand.ExamRoomID,
		ExcludeID:      cand.ExcludeID,
	})
	if err != nil {
		return nil, fmt.Errorf("find active appointments: %w", err)
	}
	return classify(cand, existing, false), nil
}

// DetectRoom considers room collisions only; used by room assignment
// where the clinician side is unchanged.
func (d *Detector) DetectRoom(ctx context.Context, cand Candidate) ([]Conflict, error) {
	if cand.ExamRoomID == nil {
		return nil, nil
	}
	existing, err := d.repo.FindActiveOnDate(ctx, ActiveDayQuery{
		OrganizationID: cand.OrganizationID,
		Date:           DateOnly(cand.Date),
		ExamRoomID:     cand.ExamRoomID,
		ExcludeID:      cand.ExcludeID,
	})
	if err != nil {
		return nil, fmt.Errorf("find active appointments: %w", err)
	}
	return classify(cand, existing, true), nil
}

func classify(cand Candidate, existing []ActiveAppointment, roomOnly bool) []Conflict {
	ivl := cand.Interval()

	var conflicts []Conflict
	for _, appt := range existing {
		if !ivl.Overlaps(appt.Interval()) {
			continue
		}

		sameClinician := appt.ClinicianID == cand.ClinicianID
		sameRoom := cand.ExamRoomID != nil && appt.ExamRoomID != nil &&
			*appt.ExamRoomID == *cand.ExamRoomID

		var ctype ConflictType
		switch {
		case roomOnly:
			if !sameRoom {
				continue
			}
			ctype = ConflictRoom
		case sameClinician && sameRoom:
			ctype = ConflictBoth
		case sameClinician:
			ctype = ConflictClinician
		case sameRoom:
			ctype = ConflictRoom
		default:
			// Overlapping in time but sharing neither resource.
			continue
		}

		conflicts = append(conflicts, Conflict{
			AppointmentID: appt.ID,
			Type:          ctype,
			PatientName:   appt.PatientName,
			Time:          appt.Interval().String(),
			Message:       conflictMessage(ctype, appt),
		})
	}

	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].AppointmentID.String() < conflicts[j].AppointmentID.String()
	})

	return conflicts
}

func conflictMessage(ctype ConflictType, appt ActiveAppointment) string {
	rng := appt.Interval().String()
	switch ctype {
	case ConflictClinician:
		return fmt.Sprintf("clinician already has an appointment with %s at %s", appt.PatientName, rng)
	case ConflictRoom:
		return fmt.Sprintf("exam room is already booked for %s at %s", appt.PatientName, rng)
	default:
		return fmt.Sprintf("clinician and exam room are both booked for %s at %s", appt.PatientName, rng)
	}
}
