package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/clinic-scheduling/internal/identity"
	"github.com/clinicflow/clinic-scheduling/internal/schedule"
)

var testSecret = []byte("api-test-secret")

type passLocker struct{}

func (passLocker) WithScheduleLock(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type apiFixture struct {
	server *httptest.Server
	repo   *schedule.MemoryRepository
	token  string

	org       uuid.UUID
	patient   schedule.Patient
	clinician schedule.Clinician
	room      schedule.ExamRoom
	day       string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	f := &apiFixture{
		repo: schedule.NewMemoryRepository(),
		org:  uuid.New(),
		day:  schedule.DateOnly(time.Now().AddDate(0, 0, 7)).Format("2006-01-02"),
	}

	f.patient = schedule.Patient{ID: uuid.New(), OrganizationID: f.org, Name: "Priya Raman"}
	f.clinician = schedule.Clinician{ID: uuid.New(), OrganizationID: f.org, Name: "Dr. Huang"}
	f.room = schedule.ExamRoom{ID: uuid.New(), OrganizationID: f.org, Name: "B12"}
	f.repo.AddPatient(f.patient)
	f.repo.AddClinician(f.clinician)
	f.repo.AddExamRoom(f.room)

	svc := schedule.NewService(f.repo, passLocker{}, zerolog.Nop())

	router := NewRouter(RouterConfig{
		Service:   svc,
		JWTSecret: testSecret,
		Env:       "test",
		Version:   "test",
		Logger:    zerolog.Nop(),
	})

	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)

	token, err := identity.IssueToken(testSecret, identity.Identity{
		OrganizationID: f.org,
		UserID:         uuid.New(),
		Role:           identity.RoleStaff,
	}, time.Minute)
	require.NoError(t, err)
	f.token = token

	return f
}

func (f *apiFixture) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (f *apiFixture) scheduleRequest(start string, duration int) ScheduleAppointmentRequest {
	roomID := f.room.ID.String()
	return ScheduleAppointmentRequest{
		PatientID:       f.patient.ID.String(),
		ClinicianID:     f.clinician.ID.String(),
		ExamRoomID:      &roomID,
		AppointmentDate: f.day,
		AppointmentTime: start,
		DurationMinutes: duration,
	}
}

func TestScheduleEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/appointments", f.scheduleRequest("10:00", 30))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody[AppointmentResponse](t, resp)
	assert.Equal(t, f.day, body.AppointmentDate)
	assert.Equal(t, "10:00", body.AppointmentTime)
	assert.Equal(t, "10:30", body.EndTime)
	assert.Equal(t, "scheduled", body.Status)
}

func TestScheduleConflictPayload(t *testing.T) {
	f := newAPIFixture(t)

	first := f.post(t, "/appointments", f.scheduleRequest("10:00", 30))
	require.Equal(t, http.StatusCreated, first.StatusCode)
	created := decodeBody[AppointmentResponse](t, first)

	resp := f.post(t, "/appointments", f.scheduleRequest("10:15", 30))
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	body := decodeBody[ConflictResponse](t, resp)
	assert.Equal(t, "schedule_conflict", body.Error)
	require.Len(t, body.Conflicts, 1)
	assert.Equal(t, "both", body.Conflicts[0].Type)
	require.Len(t, body.Conflicts[0].ConflictingAppointments, 1)
	assert.Equal(t, created.ID, body.Conflicts[0].ConflictingAppointments[0].ID)
	assert.Equal(t, "Priya Raman", body.Conflicts[0].ConflictingAppointments[0].PatientName)
	assert.Equal(t, "10:00 - 10:30", body.Conflicts[0].ConflictingAppointments[0].Time)
	require.NotNil(t, body.NewAppointmentDetails)
	assert.Equal(t, "10:15", body.NewAppointmentDetails.Time)
}

func TestScheduleForceFlag(t *testing.T) {
	f := newAPIFixture(t)

	require.Equal(t, http.StatusCreated, f.post(t, "/appointments", f.scheduleRequest("10:00", 30)).StatusCode)

	forced := f.scheduleRequest("10:15", 30)
	forced.Force = true
	resp := f.post(t, "/appointments", forced)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestRescheduleEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	created := decodeBody[AppointmentResponse](t, f.post(t, "/appointments", f.scheduleRequest("10:00", 30)))
	blocker := f.scheduleRequest("14:00", 30)
	blocker.ExamRoomID = nil
	require.Equal(t, http.StatusCreated, f.post(t, "/appointments", blocker).StatusCode)

	// Moving onto the blocker conflicts.
	resp := f.post(t, "/appointments/"+created.ID.String()+"/reschedule", RescheduleAppointmentRequest{
		AppointmentDate: f.day,
		AppointmentTime: "14:15",
		DurationMinutes: 30,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	conflict := decodeBody[ConflictResponse](t, resp)
	require.NotNil(t, conflict.NewAppointmentDetails)
	assert.Equal(t, "14:15", conflict.NewAppointmentDetails.Time)

	// Resubmitting with force_reschedule succeeds.
	resp = f.post(t, "/appointments/"+created.ID.String()+"/reschedule", RescheduleAppointmentRequest{
		AppointmentDate: f.day,
		AppointmentTime: "14:15",
		DurationMinutes: 30,
		ForceReschedule: true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	moved := decodeBody[AppointmentResponse](t, resp)
	assert.Equal(t, "14:15", moved.AppointmentTime)
}

func TestCancelEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	created := decodeBody[AppointmentResponse](t, f.post(t, "/appointments", f.scheduleRequest("10:00", 30)))

	resp := f.post(t, "/appointments/"+created.ID.String()+"/cancel", CancelAppointmentRequest{Reason: "patient request"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cancelled := decodeBody[AppointmentResponse](t, resp)
	assert.Equal(t, "cancelled", cancelled.Status)
	require.NotNil(t, cancelled.CancellationReason)

	// A second cancel is an invalid state, not a silent success.
	resp = f.post(t, "/appointments/"+created.ID.String()+"/cancel", CancelAppointmentRequest{Reason: "again"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	errBody := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "invalid_state", errBody.Error)
}

func TestValidationErrors(t *testing.T) {
	f := newAPIFixture(t)

	short := f.scheduleRequest("10:00", 10)
	resp := f.post(t, "/appointments", short)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	errBody := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "validation_failed", errBody.Error)

	badTime := f.scheduleRequest("25:99", 30)
	resp = f.post(t, "/appointments", badTime)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	data, err := json.Marshal(f.scheduleRequest("10:00", 30))
	require.NoError(t, err)

	resp, err := http.Post(f.server.URL+"/appointments", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetAndListEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	created := decodeBody[AppointmentResponse](t, f.post(t, "/appointments", f.scheduleRequest("10:00", 30)))

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/appointments/"+created.ID.String(), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decodeBody[AppointmentDetailResponse](t, resp)
	assert.Equal(t, "Priya Raman", detail.PatientName)
	assert.Equal(t, "Dr. Huang", detail.ClinicianName)

	req, err = http.NewRequest(http.MethodGet, f.server.URL+"/appointments?date="+f.day+"&clinician_id="+f.clinician.ID.String(), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[[]AppointmentDetailResponse](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
}
