package sponsorship

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parnass/internal/database"
	"parnass/internal/domain"
	"parnass/internal/middleware"
	"parnass/internal/pkg/jwt"
	"parnass/internal/repository"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type testServer struct {
	router   *gin.Engine
	jwt      *jwt.Service
	svc      *Service
	settings *repository.SettingsRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Connect(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), nil)
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	settings := repository.NewSettingsRepository(db)
	svc := NewService(
		repository.NewReservationRepository(db),
		settings,
		repository.NewIdempotencyRepository(db),
		nil, nil, nil,
	)
	svc.now = func() time.Time { return time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC) }

	j := jwt.New("test-secret", time.Hour)
	router := gin.New()
	NewHandler(svc).RegisterRoutes(router.Group("/api/v1"), middleware.JWTAuth(j), middleware.OptionalJWTAuth(j))

	ts := &testServer{router: router, jwt: j, svc: svc, settings: settings}
	ts.upsertTenant(t, "beth-el", false, false)
	return ts
}

func (ts *testServer) upsertTenant(t *testing.T, tenantID string, requireApproval, multiple bool) {
	t.Helper()
	require.NoError(t, ts.settings.Upsert(context.Background(), &domain.TenantSponsorshipSettings{
		TenantID:              tenantID,
		DailyEnabled:          true,
		MonthlyEnabled:        true,
		YearlyEnabled:         true,
		DailyPrice:            decimal.NewFromInt(18),
		MonthlyPrice:          decimal.NewFromInt(360),
		YearlyPrice:           decimal.NewFromInt(3600),
		Currency:              "USD",
		RequireApproval:       requireApproval,
		AllowMultipleSponsors: multiple,
	}))
}

func (ts *testServer) adminToken(t *testing.T, tenantID string) string {
	t.Helper()
	tok, err := ts.jwt.GenerateToken("gabbai", jwt.RoleAdmin, tenantID)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func booking(typ, date string) map[string]any {
	return map[string]any{
		"type":        typ,
		"date":        date,
		"sponsorName": "Cohen family",
		"email":       "cohen@example.org",
	}
}

func (ts *testServer) book(t *testing.T, tenantID, typ, date string) (int, envelope) {
	return ts.do(t, http.MethodPost, "/api/v1/tenants/"+tenantID+"/sponsorships", booking(typ, date), nil)
}

func (ts *testServer) available(t *testing.T, tenantID, typ, date string) bool {
	t.Helper()
	code, env := ts.do(t, http.MethodPost, "/api/v1/tenants/"+tenantID+"/sponsorships/availability",
		map[string]string{"type": typ, "date": date}, nil)
	require.Equal(t, http.StatusOK, code)
	var avail AvailabilityResponse
	require.NoError(t, json.Unmarshal(env.Data, &avail))
	return avail.Available
}

func decodeCreate(t *testing.T, env envelope) CreateReservationResponse {
	t.Helper()
	var out CreateReservationResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestHandler_DuplicateDailyBookingConflicts(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.book(t, "beth-el", "Daily", "2025-06-01")
	require.Equal(t, http.StatusCreated, code)
	first := decodeCreate(t, env)
	assert.Equal(t, "Pending", first.Status)
	assert.Equal(t, "18.00", first.Amount)
	assert.Equal(t, "USD", first.Currency)

	code, env = ts.book(t, "beth-el", "Daily", "2025-06-01")
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "SLOT_UNAVAILABLE", env.Error.Code)
	assert.Equal(t, first.ReservationID, env.Error.Details["conflictId"])

	code, env = ts.do(t, http.MethodPost, "/api/v1/tenants/beth-el/sponsorships/availability",
		map[string]string{"type": "Daily", "date": "2025-06-01"}, nil)
	require.Equal(t, http.StatusOK, code)
	var avail AvailabilityResponse
	require.NoError(t, json.Unmarshal(env.Data, &avail))
	assert.False(t, avail.Available)
	assert.Equal(t, first.ReservationID, avail.ConflictID)
}

func TestHandler_TypesAreIndependent(t *testing.T) {
	ts := newTestServer(t)

	code, _ := ts.book(t, "beth-el", "Daily", "2025-06-01")
	require.Equal(t, http.StatusCreated, code)

	code, env := ts.do(t, http.MethodPost, "/api/v1/tenants/beth-el/sponsorships/availability",
		map[string]string{"type": "Yearly", "date": "2025-06-01"}, nil)
	require.Equal(t, http.StatusOK, code)
	var avail AvailabilityResponse
	require.NoError(t, json.Unmarshal(env.Data, &avail))
	assert.True(t, avail.Available)

	code, _ = ts.book(t, "beth-el", "Yearly", "2025-06-01")
	assert.Equal(t, http.StatusCreated, code)
}

func TestHandler_RejectFreesMonthlyBucket(t *testing.T) {
	ts := newTestServer(t)
	auth := map[string]string{"Authorization": "Bearer " + ts.adminToken(t, "beth-el")}

	code, env := ts.book(t, "beth-el", "Monthly", "2025-07-10")
	require.Equal(t, http.StatusCreated, code)
	first := decodeCreate(t, env)

	code, _ = ts.book(t, "beth-el", "Monthly", "2025-07-01")
	require.Equal(t, http.StatusConflict, code)

	code, env = ts.do(t, http.MethodPatch, "/api/v1/tenants/beth-el/sponsorships/"+first.ReservationID,
		map[string]string{"status": "Rejected"}, auth)
	require.Equal(t, http.StatusOK, code)
	var updated domain.Reservation
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, domain.ReservationRejected, updated.Status)
	assert.Equal(t, "2025-07", updated.Bucket)

	code, _ = ts.book(t, "beth-el", "Monthly", "2025-07-20")
	assert.Equal(t, http.StatusCreated, code)
}

func TestHandler_CancelFreesApprovedBucket(t *testing.T) {
	ts := newTestServer(t)
	auth := map[string]string{"Authorization": "Bearer " + ts.adminToken(t, "beth-el")}
	path := "/api/v1/tenants/beth-el/sponsorships/"

	code, env := ts.book(t, "beth-el", "Daily", "2025-06-01")
	require.Equal(t, http.StatusCreated, code)
	id := decodeCreate(t, env).ReservationID

	code, _ = ts.do(t, http.MethodPatch, path+id, map[string]string{"status": "Approved"}, auth)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, ts.available(t, "beth-el", "Daily", "2025-06-01"))

	code, env = ts.do(t, http.MethodPatch, path+id,
		map[string]string{"status": "Cancelled", "expectedStatus": "Approved"}, auth)
	require.Equal(t, http.StatusOK, code)
	var updated domain.Reservation
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, domain.ReservationCancelled, updated.Status)

	assert.True(t, ts.available(t, "beth-el", "Daily", "2025-06-01"))
	code, _ = ts.book(t, "beth-el", "Daily", "2025-06-01")
	assert.Equal(t, http.StatusCreated, code)
}

func TestHandler_ExpiryFreesPendingBucket(t *testing.T) {
	ts := newTestServer(t)
	auth := map[string]string{"Authorization": "Bearer " + ts.adminToken(t, "beth-el")}

	// the server clock is 2025-05-20, so this bucket has already elapsed
	code, env := ts.book(t, "beth-el", "Daily", "2025-05-10")
	require.Equal(t, http.StatusCreated, code)
	id := decodeCreate(t, env).ReservationID
	assert.False(t, ts.available(t, "beth-el", "Daily", "2025-05-10"))

	expired, err := NewSweeper(ts.svc, SweeperConfig{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	code, env = ts.do(t, http.MethodGet, "/api/v1/tenants/beth-el/sponsorships/"+id, nil, auth)
	require.Equal(t, http.StatusOK, code)
	var r domain.Reservation
	require.NoError(t, json.Unmarshal(env.Data, &r))
	assert.Equal(t, domain.ReservationExpired, r.Status)

	assert.True(t, ts.available(t, "beth-el", "Daily", "2025-05-10"))
	code, _ = ts.book(t, "beth-el", "Daily", "2025-05-10")
	assert.Equal(t, http.StatusCreated, code)
}

func TestHandler_AdminRoutesRequireTenantAdmin(t *testing.T) {
	ts := newTestServer(t)
	ts.upsertTenant(t, "shaarei-tefila", false, false)

	code, env := ts.book(t, "beth-el", "Daily", "2025-06-01")
	require.Equal(t, http.StatusCreated, code)
	id := decodeCreate(t, env).ReservationID
	path := "/api/v1/tenants/beth-el/sponsorships/" + id

	code, _ = ts.do(t, http.MethodGet, path, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = ts.do(t, http.MethodGet, path, nil, map[string]string{"Authorization": "Bearer " + ts.adminToken(t, "shaarei-tefila")})
	assert.Equal(t, http.StatusForbidden, code)

	code, env = ts.do(t, http.MethodGet, path, nil, map[string]string{"Authorization": "Bearer " + ts.adminToken(t, "beth-el")})
	require.Equal(t, http.StatusOK, code)
	var r domain.Reservation
	require.NoError(t, json.Unmarshal(env.Data, &r))
	assert.Equal(t, "cohen@example.org", r.Email)

	// Another tenant's admin cannot reach the reservation through its own path either.
	code, _ = ts.do(t, http.MethodGet, "/api/v1/tenants/shaarei-tefila/sponsorships/"+id, nil,
		map[string]string{"Authorization": "Bearer " + ts.adminToken(t, "shaarei-tefila")})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandler_PatchStaleExpectation(t *testing.T) {
	ts := newTestServer(t)
	auth := map[string]string{"Authorization": "Bearer " + ts.adminToken(t, "beth-el")}

	_, env := ts.book(t, "beth-el", "Daily", "2025-06-01")
	path := "/api/v1/tenants/beth-el/sponsorships/" + decodeCreate(t, env).ReservationID

	code, _ := ts.do(t, http.MethodPatch, path, map[string]string{"status": "Approved", "expectedStatus": "Pending"}, auth)
	require.Equal(t, http.StatusOK, code)

	code, env = ts.do(t, http.MethodPatch, path, map[string]string{"status": "Approved", "expectedStatus": "Pending"}, auth)
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "STALE_STATE", env.Error.Code)

	code, _ = ts.do(t, http.MethodPatch, path, map[string]string{"status": "Approved"}, auth)
	assert.Equal(t, http.StatusOK, code)

	code, env = ts.do(t, http.MethodPatch, path, map[string]string{"status": "Rejected"}, auth)
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)
}

func TestHandler_CalendarViews(t *testing.T) {
	ts := newTestServer(t)
	auth := map[string]string{"Authorization": "Bearer " + ts.adminToken(t, "beth-el")}

	_, env := ts.book(t, "beth-el", "Daily", "2025-06-01")
	approved := decodeCreate(t, env).ReservationID
	code, _ := ts.do(t, http.MethodPatch, "/api/v1/tenants/beth-el/sponsorships/"+approved, map[string]string{"status": "Approved"}, auth)
	require.Equal(t, http.StatusOK, code)

	anon := booking("Daily", "2025-06-02")
	anon["isAnonymous"] = true
	code, _ = ts.do(t, http.MethodPost, "/api/v1/tenants/beth-el/sponsorships", anon, nil)
	require.Equal(t, http.StatusCreated, code)

	calendar := "/api/v1/tenants/beth-el/sponsorships?start=2025-06-01&end=2025-06-02"

	code, env = ts.do(t, http.MethodGet, calendar, nil, nil)
	require.Equal(t, http.StatusOK, code)
	var public []DaySummary
	require.NoError(t, json.Unmarshal(env.Data, &public))
	require.Len(t, public, 2)
	assert.Len(t, public[0].Daily, 1)
	assert.Empty(t, public[1].Daily, "pending is hidden from the public view")

	code, env = ts.do(t, http.MethodGet, calendar, nil, auth)
	require.Equal(t, http.StatusOK, code)
	var admin []DaySummary
	require.NoError(t, json.Unmarshal(env.Data, &admin))
	require.Len(t, admin[1].Daily, 1)
	assert.Equal(t, AnonymousLabel, admin[1].Daily[0].SponsorName)
	assert.NotContains(t, string(env.Data), "cohen@example.org")

	code, env = ts.do(t, http.MethodGet, "/api/v1/tenants/beth-el/sponsorships?start=2025-06-01", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestHandler_IdempotencyKeyReplays(t *testing.T) {
	ts := newTestServer(t)
	headers := map[string]string{"Idempotency-Key": "checkout-42"}
	path := "/api/v1/tenants/beth-el/sponsorships"

	code, env := ts.do(t, http.MethodPost, path, booking("Daily", "2025-06-01"), headers)
	require.Equal(t, http.StatusCreated, code)
	first := decodeCreate(t, env)

	code, env = ts.do(t, http.MethodPost, path, booking("Daily", "2025-06-01"), headers)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, first.ReservationID, decodeCreate(t, env).ReservationID)
}

func TestHandler_BoundaryErrors(t *testing.T) {
	ts := newTestServer(t)
	disabled := &domain.TenantSponsorshipSettings{TenantID: "small-shul", DailyEnabled: true, Currency: "USD"}
	require.NoError(t, ts.settings.Upsert(context.Background(), disabled))

	code, env := ts.book(t, "beth-el", "Daily", "2025-13-01")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_DATE", env.Error.Code)

	code, env = ts.book(t, "small-shul", "Yearly", "2025-06-01")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "TYPE_DISABLED", env.Error.Code)

	code, env = ts.book(t, "nowhere", "Daily", "2025-06-01")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	code, env = ts.do(t, http.MethodPost, "/api/v1/tenants/beth-el/sponsorships",
		map[string]any{"type": "Daily", "date": "2025-06-01", "sponsorName": "X", "email": "not-an-email"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Details, "email")
}

func TestHandler_MultipleSponsorsTenant(t *testing.T) {
	ts := newTestServer(t)
	ts.upsertTenant(t, "open-shul", false, true)

	for i := 0; i < 3; i++ {
		code, _ := ts.book(t, "open-shul", "Daily", "2025-06-01")
		require.Equal(t, http.StatusCreated, code)
	}
}
