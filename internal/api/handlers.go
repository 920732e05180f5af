package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicflow/clinic-scheduling/internal/identity"
	"github.com/clinicflow/clinic-scheduling/internal/schedule"
)

func scheduleAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := identity.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_identity", "request is not authenticated")
			return
		}

		var req ScheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		clinicianID, err := uuid.Parse(req.ClinicianID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinician_id", "clinician_id must be a valid UUID")
			return
		}

		var roomID *uuid.UUID
		if req.ExamRoomID != nil && *req.ExamRoomID != "" {
			id, err := uuid.Parse(*req.ExamRoomID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_exam_room_id", "exam_room_id must be a valid UUID")
				return
			}
			roomID = &id
		}

		date, startMinute, ok := parseDateTime(w, req.AppointmentDate, req.AppointmentTime)
		if !ok {
			return
		}

		appt, err := svc.Schedule(r.Context(), schedule.ScheduleInput{
			OrganizationID:  caller.OrganizationID,
			ActorID:         caller.UserID,
			PatientID:       patientID,
			ClinicianID:     clinicianID,
			ExamRoomID:      roomID,
			Date:            date,
			StartMinute:     startMinute,
			DurationMinutes: req.DurationMinutes,
			Notes:           req.Notes,
			Force:           req.Force,
		})
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, apptID, ok := callerAndID(w, r)
		if !ok {
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, startMinute, ok := parseDateTime(w, req.AppointmentDate, req.AppointmentTime)
		if !ok {
			return
		}

		appt, err := svc.Reschedule(r.Context(), caller.OrganizationID, caller.UserID, apptID,
			date, startMinute, req.DurationMinutes, req.ForceReschedule)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, apptID, ok := callerAndID(w, r)
		if !ok {
			return
		}

		var req CancelAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Cancel(r.Context(), caller.OrganizationID, caller.UserID, apptID, req.Reason)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func assignRoomHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, apptID, ok := callerAndID(w, r)
		if !ok {
			return
		}

		var req AssignRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		roomID, err := uuid.Parse(req.ExamRoomID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_exam_room_id", "exam_room_id must be a valid UUID")
			return
		}

		appt, err := svc.AssignRoom(r.Context(), caller.OrganizationID, caller.UserID, apptID, roomID)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func transitionHandler(fn func(*http.Request, identity.Identity, uuid.UUID) (*schedule.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, apptID, ok := callerAndID(w, r)
		if !ok {
			return
		}

		appt, err := fn(r, caller, apptID)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, apptID, ok := callerAndID(w, r)
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), caller.OrganizationID, apptID)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toDetailResponse(detail))
	}
}

func listAppointmentsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := identity.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_identity", "request is not authenticated")
			return
		}

		q := r.URL.Query()

		if raw := q.Get("patient_id"); raw != "" {
			patientID, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			limit := intParam(q.Get("limit"), 20)
			offset := intParam(q.Get("offset"), 0)

			details, err := svc.ListByPatient(r.Context(), caller.OrganizationID, patientID, limit, offset)
			if err != nil {
				handleScheduleError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, detailResponses(details))
			return
		}

		date, err := time.Parse("2006-01-02", q.Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		var clinicianID, roomID *uuid.UUID
		if raw := q.Get("clinician_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_clinician_id", "clinician_id must be a valid UUID")
				return
			}
			clinicianID = &id
		}
		if raw := q.Get("exam_room_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_exam_room_id", "exam_room_id must be a valid UUID")
				return
			}
			roomID = &id
		}

		details, err := svc.ListDay(r.Context(), caller.OrganizationID, date, clinicianID, roomID)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, detailResponses(details))
	}
}

// Helpers

func callerAndID(w http.ResponseWriter, r *http.Request) (identity.Identity, uuid.UUID, bool) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_identity", "request is not authenticated")
		return identity.Identity{}, uuid.Nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return identity.Identity{}, uuid.Nil, false
	}

	return caller, id, true
}

func parseDateTime(w http.ResponseWriter, rawDate, rawTime string) (time.Time, int, bool) {
	date, err := time.Parse("2006-01-02", rawDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_date", "appointment_date must be YYYY-MM-DD")
		return time.Time{}, 0, false
	}

	startMinute, err := schedule.ParseClock(rawTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_time", "appointment_time must be HH:MM")
		return time.Time{}, 0, false
	}

	return date, startMinute, true
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	var n int
	for _, c := range raw {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func detailResponses(details []schedule.AppointmentDetail) []AppointmentDetailResponse {
	out := make([]AppointmentDetailResponse, 0, len(details))
	for i := range details {
		out = append(out, toDetailResponse(&details[i]))
	}
	return out
}

func handleScheduleError(w http.ResponseWriter, err error) {
	var conflictErr *schedule.ConflictError
	var validationErr *schedule.ValidationError
	var stateErr *schedule.InvalidStateError

	switch {
	case errors.As(err, &conflictErr):
		writeJSON(w, http.StatusConflict, toConflictResponse(conflictErr))
	case errors.As(err, &validationErr):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", validationErr.Error())
	case errors.As(err, &stateErr):
		writeError(w, http.StatusConflict, "invalid_state", stateErr.Error())
	case errors.Is(err, schedule.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, schedule.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, schedule.ErrClinicianNotFound):
		writeError(w, http.StatusNotFound, "clinician_not_found", err.Error())
	case errors.Is(err, schedule.ErrExamRoomNotFound):
		writeError(w, http.StatusNotFound, "exam_room_not_found", err.Error())
	case errors.Is(err, schedule.ErrScheduleBusy):
		writeError(w, http.StatusConflict, "schedule_busy", "schedule is currently being modified, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
