package settlement

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parnass/internal/domain"
	"parnass/internal/gateway"
	"parnass/internal/middleware"
)

const webhookSecret = "whsec_test"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(f.svc).RegisterRoutes(router.Group("/api/v1"), middleware.WebhookSignature(webhookSecret, nil))
	return router
}

func post(t *testing.T, router *gin.Engine, path string, body []byte, headers map[string]string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func signed(body []byte) map[string]string {
	return map[string]string{middleware.SignatureHeader: hex.EncodeToString(middleware.Sign([]byte(webhookSecret), body))}
}

func TestHandler_BeginSettlement(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)
	r := f.reserve(t, "beth-el", "2025-06-01", 18)

	code, env := post(t, router, "/api/v1/tenants/beth-el/sponsorships/"+r.ID+"/settlement", nil, nil)
	require.Equal(t, http.StatusCreated, code)
	var handle PaymentHandle
	require.NoError(t, json.Unmarshal(env.Data, &handle))
	assert.Equal(t, "stub", handle.Provider)
	assert.NotEmpty(t, handle.SettlementID)

	code, env = post(t, router, "/api/v1/tenants/beth-el/sponsorships/nope/settlement", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestHandler_BeginSettlement_ProcessorDown(t *testing.T) {
	f := newFixture(t)
	f.processor.err = assert.AnError
	router := newRouter(f)
	r := f.reserve(t, "beth-el", "2025-06-01", 18)

	code, env := post(t, router, "/api/v1/tenants/beth-el/sponsorships/"+r.ID+"/settlement", nil, nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "SETTLEMENT_FAILURE", env.Error.Code)
}

func TestHandler_Webhook_IdempotentReconcile(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)
	r := f.reserve(t, "beth-el", "2025-06-01", 18)
	body := []byte(`{"reservationId":"` + r.ID + `","outcome":"succeeded"}`)

	code, env := post(t, router, "/api/v1/webhooks/settlement", body, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "INVALID_SIGNATURE", env.Error.Code)
	assert.False(t, f.reload(t, r.ID).IsPaid)

	for i, wantChanged := range []bool{true, false} {
		code, env = post(t, router, "/api/v1/webhooks/settlement", body, signed(body))
		require.Equal(t, http.StatusOK, code, "attempt %d", i)
		var out ReconcileResponse
		require.NoError(t, json.Unmarshal(env.Data, &out))
		assert.Equal(t, wantChanged, out.Changed, "attempt %d", i)
		assert.True(t, out.IsPaid)
		assert.Equal(t, "Approved", out.Status)
	}
}

func TestHandler_Webhook_NamesSettlement(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)
	r := f.reserve(t, "beth-el", "2025-06-01", 18)
	ctx := context.Background()

	old, err := f.svc.BeginSettlement(ctx, "beth-el", r.ID)
	require.NoError(t, err)
	_, err = f.svc.BeginSettlement(ctx, "beth-el", r.ID)
	require.NoError(t, err)

	body := []byte(`{"reservationId":"` + r.ID + `","settlementId":"` + old.SettlementID + `","outcome":"failed"}`)
	code, env := post(t, router, "/api/v1/webhooks/settlement", body, signed(body))
	require.Equal(t, http.StatusOK, code)
	var out ReconcileResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.False(t, out.Changed)
	assert.Equal(t, "Pending", out.Status)
}

func TestHandler_Webhook_Validation(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)

	body := []byte(`{"reservationId":"r-1","outcome":"refunded"}`)
	code, env := post(t, router, "/api/v1/webhooks/settlement", body, signed(body))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	body = []byte(`{"reservationId":"r-1","outcome":"failed"}`)
	code, env = post(t, router, "/api/v1/webhooks/settlement", body, signed(body))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestHandler_Midtrans(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)
	r := f.reserve(t, "beth-el", "2025-06-01", 18)

	code, _ := post(t, router, "/api/v1/webhooks/midtrans", []byte(`{}`), nil)
	assert.Equal(t, http.StatusNotFound, code)

	handle, err := f.svc.BeginSettlement(context.Background(), "beth-el", r.ID)
	require.NoError(t, err)
	f.svc.SetMidtrans(gateway.NewMidtrans("server-key", false))

	notifyAmount := func(status, gross, signature string) []byte {
		b, err := json.Marshal(map[string]string{
			"order_id":           handle.SettlementID,
			"status_code":        "200",
			"gross_amount":       gross,
			"transaction_status": status,
			"signature_key":      signature,
		})
		require.NoError(t, err)
		return b
	}
	notify := func(status, signature string) []byte { return notifyAmount(status, "18.00", signature) }

	code, env := post(t, router, "/api/v1/webhooks/midtrans", notify("settlement", "bad"), nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "INVALID_SIGNATURE", env.Error.Code)

	sig := gateway.MidtransSignature(handle.SettlementID, "200", "18.00", "server-key")

	code, env = post(t, router, "/api/v1/webhooks/midtrans", notify("pending", sig), nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"ignored":true}`, string(env.Data))

	underpaid := gateway.MidtransSignature(handle.SettlementID, "200", "1.00", "server-key")
	code, env = post(t, router, "/api/v1/webhooks/midtrans", notifyAmount("settlement", "1.00", underpaid), nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "AMOUNT_MISMATCH", env.Error.Code)
	assert.False(t, f.reload(t, r.ID).IsPaid)

	code, env = post(t, router, "/api/v1/webhooks/midtrans", notify("settlement", sig), nil)
	require.Equal(t, http.StatusOK, code)
	var out ReconcileResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.True(t, out.Changed)

	got := f.reload(t, r.ID)
	assert.True(t, got.IsPaid)
	assert.Equal(t, domain.ReservationApproved, got.Status)
}
