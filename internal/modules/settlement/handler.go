package settlement

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"parnass/internal/domain"
	"parnass/internal/gateway"
	"parnass/internal/middleware"
	"parnass/internal/pkg/response"
	"parnass/internal/pkg/validator"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxNotificationBody   = 1 << 20
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the payment session route and the processor
// callbacks. webhookAuth guards the generic settlement webhook.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, webhookAuth gin.HandlerFunc) {
	rg.POST("/tenants/:tenantId/sponsorships/:reservationId/settlement", h.BeginSettlement)

	hooks := rg.Group("/webhooks")
	hooks.POST("/settlement", webhookAuth, h.Webhook)
	hooks.POST("/stripe", h.Stripe)
	hooks.POST("/midtrans", h.Midtrans)
}

func (h *Handler) BeginSettlement(c *gin.Context) {
	handle, err := h.service.BeginSettlement(c.Request.Context(), c.Param("tenantId"), c.Param("reservationId"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, handle)
}

func (h *Handler) Webhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if details := validator.FieldErrors(err, &req); details != nil {
			response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", details)
			return
		}
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	r, changed, err := h.service.HandleWebhook(c.Request.Context(), req, middleware.RawBody(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, toReconcileResponse(r, changed))
}

func (h *Handler) Stripe(c *gin.Context) {
	payload, ok := readBody(c)
	if !ok {
		return
	}
	r, changed, err := h.service.HandleStripe(c.Request.Context(), payload, c.GetHeader(stripeSignatureHeader))
	h.writeNotification(c, r, changed, err)
}

func (h *Handler) Midtrans(c *gin.Context) {
	payload, ok := readBody(c)
	if !ok {
		return
	}
	r, changed, err := h.service.HandleMidtrans(c.Request.Context(), payload)
	h.writeNotification(c, r, changed, err)
}

func (h *Handler) writeNotification(c *gin.Context, r *domain.Reservation, changed bool, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	if r == nil {
		response.Success(c, http.StatusOK, gin.H{"ignored": true})
		return
	}
	response.Success(c, http.StatusOK, toReconcileResponse(r, changed))
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationBody))
	if err != nil || len(body) == 0 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Empty or unreadable request body")
		return nil, false
	}
	return body, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gateway.ErrInvalidSignature):
		response.Error(c, http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid webhook signature")
	case errors.Is(err, gateway.ErrMalformedPayload), errors.Is(err, ErrUnknownOutcome):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, ErrAmountMismatch):
		response.Error(c, http.StatusBadRequest, "AMOUNT_MISMATCH", err.Error())
	case errors.Is(err, ErrSettlementFailure):
		response.Error(c, http.StatusBadGateway, "SETTLEMENT_FAILURE", "Payment processor is unavailable")
	case errors.Is(err, ErrNothingToSettle), errors.Is(err, ErrAlreadyPaid):
		response.Error(c, http.StatusConflict, "NOTHING_TO_SETTLE", err.Error())
	case errors.Is(err, ErrStaleState):
		response.Error(c, http.StatusConflict, "STALE_STATE", "Reservation is no longer in the expected status")
	case errors.Is(err, ErrInvalidTransition):
		response.Error(c, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, ErrProviderDisabled), errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Not found")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
