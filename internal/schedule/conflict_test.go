package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type detectorFixture struct {
	repo      *MemoryRepository
	orgID     uuid.UUID
	clinician uuid.UUID
	otherClin uuid.UUID
	room      uuid.UUID
	otherRoom uuid.UUID
	patient   uuid.UUID
}

func newDetectorFixture(t *testing.T) *detectorFixture {
	t.Helper()

	f := &detectorFixture{
		repo:      NewMemoryRepository(),
		orgID:     uuid.New(),
		clinician: uuid.New(),
		otherClin: uuid.New(),
		room:      uuid.New(),
		otherRoom: uuid.New(),
		patient:   uuid.New(),
	}

	f.repo.AddPatient(Patient{ID: f.patient, OrganizationID: f.orgID, Name: "Dana Webb"})
	f.repo.AddClinician(Clinician{ID: f.clinician, OrganizationID: f.orgID, Name: "Dr. Reyes"})
	f.repo.AddClinician(Clinician{ID: f.otherClin, OrganizationID: f.orgID, Name: "Dr. Okafor"})
	f.repo.AddExamRoom(ExamRoom{ID: f.room, OrganizationID: f.orgID, Name: "A01"})
	f.repo.AddExamRoom(ExamRoom{ID: f.otherRoom, OrganizationID: f.orgID, Name: "A02"})

	return f
}

func (f *detectorFixture) addAppointment(t *testing.T, clinicianID uuid.UUID, roomID *uuid.UUID, day time.Time, startMinute, duration int, status Status) *Appointment {
	t.Helper()

	appt, err := f.repo.CreateAppointment(context.Background(), &Appointment{
		OrganizationID:  f.orgID,
		PatientID:       f.patient,
		ClinicianID:     clinicianID,
		ExamRoomID:      roomID,
		Date:            day,
		StartMinute:     startMinute,
		DurationMinutes: duration,
		Status:          status,
	})
	require.NoError(t, err)
	return appt
}

func TestDetectClassifiesConflictTypes(t *testing.T) {
	day := date(2030, 6, 1)

	tests := []struct {
		name          string
		existingClin  bool // existing appointment uses the candidate's clinician
		existingRoom  bool // existing appointment uses the candidate's room
		candidateRoom bool
		want          ConflictType
		wantNone      bool
	}{
		{name: "same clinician, no rooms", existingClin: true, want: ConflictClinician},
		{name: "same clinician, different rooms", existingClin: true, candidateRoom: true, want: ConflictClinician},
		{name: "same room, different clinician", existingRoom: true, candidateRoom: true, want: ConflictRoom},
		{name: "same clinician and room", existingClin: true, existingRoom: true, candidateRoom: true, want: ConflictBoth},
		{name: "neither shared", wantNone: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDetectorFixture(t)

			clin := f.otherClin
			if tt.existingClin {
				clin = f.clinician
			}
			var room *uuid.UUID
			if tt.existingRoom {
				room = &f.room
			} else if tt.existingClin && tt.candidateRoom {
				room = &f.otherRoom
			}

			existing := f.addAppointment(t, clin, room, day, 600, 30, StatusScheduled)

			cand := Candidate{
				OrganizationID:  f.orgID,
				ClinicianID:     f.clinician,
				Date:            day,
				StartMinute:     615,
				DurationMinutes: 30,
			}
			if tt.candidateRoom {
				cand.ExamRoomID = &f.room
			}

			conflicts, err := NewDetector(f.repo).Detect(context.Background(), cand)
			require.NoError(t, err)

			if tt.wantNone {
				assert.Empty(t, conflicts)
				return
			}
			require.Len(t, conflicts, 1)
			assert.Equal(t, existing.ID, conflicts[0].AppointmentID)
			assert.Equal(t, tt.want, conflicts[0].Type)
			assert.Equal(t, "Dana Webb", conflicts[0].PatientName)
			assert.Equal(t, "10:00 - 10:30", conflicts[0].Time)
			assert.NotEmpty(t, conflicts[0].Message)
		})
	}
}

func TestDetectIgnoresInactiveStatuses(t *testing.T) {
	f := newDetectorFixture(t)
	day := date(2030, 6, 1)

	f.addAppointment(t, f.clinician, nil, day, 600, 30, StatusCancelled)
	f.addAppointment(t, f.clinician, nil, day, 600, 30, StatusNoShow)
	f.addAppointment(t, f.clinician, nil, day, 600, 30, StatusCompleted)
	active := f.addAppointment(t, f.clinician, nil, day, 600, 30, StatusInProgress)

	conflicts, err := NewDetector(f.repo).Detect(context.Background(), Candidate{
		OrganizationID:  f.orgID,
		ClinicianID:     f.clinician,
		Date:            day,
		StartMinute:     615,
		DurationMinutes: 30,
	})
	require.NoError(t, err)

	require.Len(t, conflicts, 1)
	assert.Equal(t, active.ID, conflicts[0].AppointmentID)
}

func TestDetectReturnsAllConflictsInIDOrder(t *testing.T) {
	f := newDetectorFixture(t)
	day := date(2030, 6, 1)

	a := f.addAppointment(t, f.clinician, nil, day, 600, 30, StatusScheduled)
	b := f.addAppointment(t, f.clinician, nil, day, 630, 30, StatusScheduled)
	c := f.addAppointment(t, f.clinician, nil, day, 660, 30, StatusScheduled)

	// Candidate 10:00-11:30 overlaps all three.
	conflicts, err := NewDetector(f.repo).Detect(context.Background(), Candidate{
		OrganizationID:  f.orgID,
		ClinicianID:     f.clinician,
		Date:            day,
		StartMinute:     600,
		DurationMinutes: 90,
	})
	require.NoError(t, err)
	require.Len(t, conflicts, 3)

	ids := []string{conflicts[0].AppointmentID.String(), conflicts[1].AppointmentID.String(), conflicts[2].AppointmentID.String()}
	assert.True(t, ids[0] < ids[1] && ids[1] < ids[2], "conflicts must be sorted by appointment id ascending")

	want := map[uuid.UUID]bool{a.ID: true, b.ID: true, c.ID: true}
	for _, conf := range conflicts {
		assert.True(t, want[conf.AppointmentID])
	}
}

func TestDetectExcludesOwnID(t *testing.T) {
	f := newDetectorFixture(t)
	day := date(2030, 6, 1)

	self := f.addAppointment(t, f.clinician, nil, day, 600, 30, StatusScheduled)

	conflicts, err := NewDetector(f.repo).Detect(context.Background(), Candidate{
		OrganizationID:  f.orgID,
		ClinicianID:     f.clinician,
		Date:            day,
		StartMinute:     605,
		DurationMinutes: 30,
		ExcludeID:       &self.ID,
	})
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestDetectRoomOnly(t *testing.T) {
	f := newDetectorFixture(t)
	day := date(2030, 6, 1)

	// Same clinician overlap that room-only detection must ignore.
	f.addAppointment(t, f.clinician, &f.otherRoom, day, 600, 30, StatusScheduled)
	roomClash := f.addAppointment(t, f.otherClin, &f.room, day, 615, 30, StatusScheduled)

	conflicts, err := NewDetector(f.repo).DetectRoom(context.Background(), Candidate{
		OrganizationID:  f.orgID,
		ClinicianID:     f.clinician,
		ExamRoomID:      &f.room,
		Date:            day,
		StartMinute:     600,
		DurationMinutes: 60,
	})
	require.NoError(t, err)

	require.Len(t, conflicts, 1)
	assert.Equal(t, roomClash.ID, conflicts[0].AppointmentID)
	assert.Equal(t, ConflictRoom, conflicts[0].Type)
}

func TestDetectBoundaryTouchIsNotConflict(t *testing.T) {
	f := newDetectorFixture(t)
	day := date(2030, 6, 1)

	f.addAppointment(t, f.clinician, &f.room, day, 600, 30, StatusScheduled) // 10:00-10:30

	conflicts, err := NewDetector(f.repo).Detect(context.Background(), Candidate{
		OrganizationID:  f.orgID,
		ClinicianID:     f.clinician,
		ExamRoomID:      &f.room,
		Date:            day,
		StartMinute:     630, // starts exactly at 10:30
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}
