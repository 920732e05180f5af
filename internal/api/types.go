package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicflow/clinic-scheduling/internal/schedule"
)

type ScheduleAppointmentRequest struct {
	PatientID       string  `json:"patient_id"`
	ClinicianID     string  `json:"clinician_id"`
	ExamRoomID      *string `json:"exam_room_id,omitempty"`
	AppointmentDate string  `json:"appointment_date"`
	AppointmentTime string  `json:"appointment_time"`
	DurationMinutes int     `json:"duration_minutes"`
	Notes           *string `json:"notes,omitempty"`
	Force           bool    `json:"force,omitempty"`
}

type RescheduleAppointmentRequest struct {
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	DurationMinutes int    `json:"duration_minutes"`
	ForceReschedule bool   `json:"force_reschedule,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type AssignRoomRequest struct {
	ExamRoomID string `json:"exam_room_id"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	ClinicianID        uuid.UUID  `json:"clinician_id"`
	ExamRoomID         *uuid.UUID `json:"exam_room_id,omitempty"`
	AppointmentDate    string     `json:"appointment_date"`
	AppointmentTime    string     `json:"appointment_time"`
	EndTime            string     `json:"end_time"`
	DurationMinutes    int        `json:"duration_minutes"`
	Status             string     `json:"status"`
	Notes              *string    `json:"notes,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	PatientName   string  `json:"patient_name,omitempty"`
	ClinicianName string  `json:"clinician_name,omitempty"`
	ExamRoomName  *string `json:"exam_room_name,omitempty"`
}

type ConflictingAppointment struct {
	ID          uuid.UUID `json:"id"`
	PatientName string    `json:"patient_name"`
	Time        string    `json:"time"`
}

// ConflictGroup collects all conflicting appointments of one type so
// the UI can render them under a single heading.
type ConflictGroup struct {
	Type                    string                   `json:"type"`
	Message                 string                   `json:"message"`
	ConflictingAppointments []ConflictingAppointment `json:"conflicting_appointments"`
}

type ConflictResponse struct {
	Error                 string                     `json:"error"`
	Conflicts             []ConflictGroup            `json:"conflicts"`
	NewAppointmentDetails *schedule.ProposedSchedule `json:"new_appointment_details,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *schedule.Appointment) AppointmentResponse {
	iv := a.Interval()
	return AppointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		ClinicianID:        a.ClinicianID,
		ExamRoomID:         a.ExamRoomID,
		AppointmentDate:    a.Date.Format("2006-01-02"),
		AppointmentTime:    schedule.FormatClock(a.StartMinute),
		EndTime:            schedule.FormatClock(iv.End),
		DurationMinutes:    a.DurationMinutes,
		Status:             string(a.Status),
		Notes:              a.Notes,
		CancelledAt:        a.CancelledAt,
		CancellationReason: a.CancellationReason,
	}
}

func toDetailResponse(d *schedule.AppointmentDetail) AppointmentDetailResponse {
	resp := AppointmentDetailResponse{
		AppointmentResponse: toAppointmentResponse(&d.Appointment),
	}
	if d.Patient != nil {
		resp.PatientName = d.Patient.Name
	}
	if d.Clinician != nil {
		resp.ClinicianName = d.Clinician.Name
	}
	if d.ExamRoom != nil {
		resp.ExamRoomName = &d.ExamRoom.Name
	}
	return resp
}

func toConflictResponse(err *schedule.ConflictError) ConflictResponse {
	byType := make(map[schedule.ConflictType][]schedule.Conflict)
	var order []schedule.ConflictType
	for _, c := range err.Conflicts {
		if _, seen := byType[c.Type]; !seen {
			order = append(order, c.Type)
		}
		byType[c.Type] = append(byType[c.Type], c)
	}

	groups := make([]ConflictGroup, 0, len(order))
	for _, t := range order {
		conflicts := byType[t]
		group := ConflictGroup{
			Type:    string(t),
			Message: conflicts[0].Message,
		}
		for _, c := range conflicts {
			group.ConflictingAppointments = append(group.ConflictingAppointments, ConflictingAppointment{
				ID:          c.AppointmentID,
				PatientName: c.PatientName,
				Time:        c.Time,
			})
		}
		groups = append(groups, group)
	}

	return ConflictResponse{
		Error:                 "schedule_conflict",
		Conflicts:             groups,
		NewAppointmentDetails: err.Proposed,
	}
}
