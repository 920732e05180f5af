package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a map-backed Repository for unit tests and local
// development. InTx serializes callers; there is no rollback, which is
// safe because the engine only writes after all checks pass.
type MemoryRepository struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	patients     map[uuid.UUID]Patient
	clinicians   map[uuid.UUID]Clinician
	rooms        map[uuid.UUID]ExamRoom
	appointments map[uuid.UUID]Appointment

	events      []EventLog
	nextEventID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:     make(map[uuid.UUID]Patient),
		clinicians:   make(map[uuid.UUID]Clinician),
		rooms:        make(map[uuid.UUID]ExamRoom),
		appointments: make(map[uuid.UUID]Appointment),
		nextEventID:  1,
	}
}

// Seed helpers

func (m *MemoryRepository) AddPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
}

func (m *MemoryRepository) AddClinician(c Clinician) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clinicians[c.ID] = c
}

func (m *MemoryRepository) AddExamRoom(r ExamRoom) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[r.ID] = r
}

// Events returns a copy of the outbox for assertions.
func (m *MemoryRepository) Events() []EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]EventLog(nil), m.events...)
}

// Repository implementation

func (m *MemoryRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(m)
}

func (m *MemoryRepository) GetPatientByID(ctx context.Context, orgID, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok || p.OrganizationID != orgID {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) GetClinicianByID(ctx context.Context, orgID, id uuid.UUID) (*Clinician, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clinicians[id]
	if !ok || c.OrganizationID != orgID {
		return nil, ErrClinicianNotFound
	}
	return &c, nil
}

func (m *MemoryRepository) GetExamRoomByID(ctx context.Context, orgID, id uuid.UUID) (*ExamRoom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok || r.OrganizationID != orgID {
		return nil, ErrExamRoomNotFound
	}
	return &r, nil
}

func (m *MemoryRepository) GetAppointmentByID(ctx context.Context, orgID, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAppointmentLocked(orgID, id)
}

func (m *MemoryRepository) getAppointmentLocked(orgID, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appointments[id]
	if !ok || a.OrganizationID != orgID {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemoryRepository) GetAppointmentDetail(ctx context.Context, orgID, id uuid.UUID) (*AppointmentDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, err := m.getAppointmentLocked(orgID, id)
	if err != nil {
		return nil, err
	}
	return m.hydrateLocked(a)
}

func (m *MemoryRepository) hydrateLocked(a *Appointment) (*AppointmentDetail, error) {
	detail := &AppointmentDetail{Appointment: *a}

	if p, ok := m.patients[a.PatientID]; ok {
		detail.Patient = &p
	}
	if c, ok := m.clinicians[a.ClinicianID]; ok {
		detail.Clinician = &c
	}
	if a.ExamRoomID != nil {
		if r, ok := m.rooms[*a.ExamRoomID]; ok {
			detail.ExamRoom = &r
		}
	}
	return detail, nil
}

func (m *MemoryRepository) FindActiveOnDate(ctx context.Context, q ActiveDayQuery) ([]ActiveAppointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	date := DateOnly(q.Date)

	var result []ActiveAppointment
	for _, a := range m.appointments {
		if a.OrganizationID != q.OrganizationID || !a.Date.Equal(date) || !a.Status.Active() {
			continue
		}
		if q.ExcludeID != nil && a.ID == *q.ExcludeID {
			continue
		}

		matchClinician := q.ClinicianID != nil && a.ClinicianID == *q.ClinicianID
		matchRoom := q.ExamRoomID != nil && a.ExamRoomID != nil && *a.ExamRoomID == *q.ExamRoomID
		if !matchClinician && !matchRoom {
			continue
		}

		row := ActiveAppointment{Appointment: a}
		if p, ok := m.patients[a.PatientID]; ok {
			row.PatientName = p.Name
		}
		result = append(result, row)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})

	return result, nil
}

func (m *MemoryRepository) ListDay(ctx context.Context, q DayListQuery) ([]AppointmentDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	date := DateOnly(q.Date)

	var result []AppointmentDetail
	for _, a := range m.appointments {
		if a.OrganizationID != q.OrganizationID || !a.Date.Equal(date) {
			continue
		}
		if q.ClinicianID != nil && a.ClinicianID != *q.ClinicianID {
			continue
		}
		if q.ExamRoomID != nil && (a.ExamRoomID == nil || *a.ExamRoomID != *q.ExamRoomID) {
			continue
		}

		detail, err := m.hydrateLocked(&a)
		if err != nil {
			return nil, err
		}
		result = append(result, *detail)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartMinute != result[j].StartMinute {
			return result[i].StartMinute < result[j].StartMinute
		}
		return result[i].ID.String() < result[j].ID.String()
	})

	return result, nil
}

func (m *MemoryRepository) ListByPatient(ctx context.Context, orgID, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []AppointmentDetail
	for _, a := range m.appointments {
		if a.OrganizationID != orgID || a.PatientID != patientID {
			continue
		}
		detail, err := m.hydrateLocked(&a)
		if err != nil {
			return nil, err
		}
		all = append(all, *detail)
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].Date.Equal(all[j].Date) {
			return all[i].Date.After(all[j].Date)
		}
		return all[i].StartMinute > all[j].StartMinute
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *a
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.Date = DateOnly(stored.Date)
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	m.appointments[stored.ID] = stored
	return &stored, nil
}

func (m *MemoryRepository) UpdateSchedule(ctx context.Context, orgID, id uuid.UUID, date time.Time, startMinute, durationMinutes int) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.getAppointmentLocked(orgID, id)
	if err != nil {
		return nil, err
	}

	a.Date = DateOnly(date)
	a.StartMinute = startMinute
	a.DurationMinutes = durationMinutes
	a.UpdatedAt = time.Now()

	m.appointments[id] = *a
	return a, nil
}

func (m *MemoryRepository) UpdateExamRoom(ctx context.Context, orgID, id, roomID uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.getAppointmentLocked(orgID, id)
	if err != nil {
		return nil, err
	}

	room := roomID
	a.ExamRoomID = &room
	a.UpdatedAt = time.Now()

	m.appointments[id] = *a
	return a, nil
}

func (m *MemoryRepository) UpdateStatus(ctx context.Context, orgID, id uuid.UUID, from, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.getAppointmentLocked(orgID, id)
	if err != nil {
		return nil, err
	}
	if a.Status != from {
		return nil, ErrAppointmentNotFound
	}

	a.Status = to
	a.UpdatedAt = time.Now()

	m.appointments[id] = *a
	return a, nil
}

func (m *MemoryRepository) CancelAppointment(ctx context.Context, orgID, id uuid.UUID, reason string, at time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, err := m.getAppointmentLocked(orgID, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusScheduled {
		return nil, ErrAppointmentNotFound
	}

	a.Status = StatusCancelled
	a.CancelledAt = &at
	a.CancellationReason = &reason
	a.UpdatedAt = time.Now()

	m.appointments[id] = *a
	return a, nil
}

func (m *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.ID = m.nextEventID
	m.nextEventID++
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryRepository) FindUnforwardedEvents(ctx context.Context, limit int) ([]EventLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []EventLog
	for _, ev := range m.events {
		if ev.ForwardedAt != nil {
			continue
		}
		result = append(result, ev)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *MemoryRepository) MarkEventForwarded(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.events {
		if m.events[i].ID == id {
			m.events[i].ForwardedAt = &at
			return nil
		}
	}
	return nil
}
