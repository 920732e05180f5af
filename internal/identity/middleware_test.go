package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func authedRequest(t *testing.T, id Identity, secret []byte) *http.Request {
	t.Helper()

	token, err := IssueToken(secret, id, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestRequireAuthRoundTrip(t *testing.T) {
	want := Identity{
		OrganizationID: uuid.New(),
		UserID:         uuid.New(),
		Role:           RoleStaff,
	}

	var got Identity
	var ok bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = FromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	RequireAuth(testSecret)(next).ServeHTTP(rec, authedRequest(t, want, testSecret))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestRequireAuthRejects(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})
	handler := RequireAuth(testSecret)(next)

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointments", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		id := Identity{OrganizationID: uuid.New(), UserID: uuid.New(), Role: RoleStaff}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authedRequest(t, id, []byte("other-secret")))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		id := Identity{OrganizationID: uuid.New(), UserID: uuid.New(), Role: RoleStaff}
		token, err := IssueToken(testSecret, id, -time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireAction(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Require(ActionAppointmentsWrite)(next)

	t.Run("staff may write", func(t *testing.T) {
		id := Identity{OrganizationID: uuid.New(), UserID: uuid.New(), Role: RoleStaff}
		req := httptest.NewRequest(http.MethodPost, "/appointments", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req.WithContext(WithIdentity(req.Context(), id)))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("clinician may not write", func(t *testing.T) {
		id := Identity{OrganizationID: uuid.New(), UserID: uuid.New(), Role: RoleClinician}
		req := httptest.NewRequest(http.MethodPost, "/appointments", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req.WithContext(WithIdentity(req.Context(), id)))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/appointments", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRolePermissions(t *testing.T) {
	assert.True(t, Identity{Role: RoleAdmin}.Can(ActionAppointmentsWrite))
	assert.True(t, Identity{Role: RoleClinician}.Can(ActionAppointmentsRead))
	assert.False(t, Identity{Role: RoleClinician}.Can(ActionAppointmentsWrite))
	assert.False(t, Identity{Role: Role("unknown")}.Can(ActionAppointmentsRead))
}
