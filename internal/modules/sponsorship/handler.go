package sponsorship

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"parnass/internal/domain"
	"parnass/internal/middleware"
	"parnass/internal/pkg/response"
	"parnass/internal/pkg/validator"
)

const (
	tenantParam          = "tenantId"
	idempotencyKeyHeader = "Idempotency-Key"
	maxIdempotencyKeyLen = 128
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the booking and calendar routes. auth validates the
// bearer token, optionalAuth reads it when present.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, auth, optionalAuth gin.HandlerFunc) {
	tenants := rg.Group("/tenants/:" + tenantParam + "/sponsorships")
	tenants.POST("/availability", h.CheckAvailability)
	tenants.POST("", h.CreateReservation)
	tenants.GET("", optionalAuth, h.ListCalendar)

	admin := tenants.Group("", auth, middleware.RequireTenantAdmin(tenantParam))
	admin.GET("/:reservationId", h.GetReservation)
	admin.PATCH("/:reservationId", h.UpdateStatus)
}

func (h *Handler) CheckAvailability(c *gin.Context) {
	var req AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, &req)
		return
	}

	out, err := h.service.CheckAvailability(c.Request.Context(), c.Param(tenantParam), req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

func (h *Handler) CreateReservation(c *gin.Context) {
	var req CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, &req)
		return
	}

	key := strings.TrimSpace(c.GetHeader(idempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLen {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Idempotency-Key is too long")
		return
	}

	r, replayed, err := h.service.CreateReservation(c.Request.Context(), c.Param(tenantParam), key, req)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	if replayed {
		c.Header("Idempotent-Replayed", "true")
		status = http.StatusOK
	}
	response.Success(c, status, toCreateResponse(r))
}

func (h *Handler) ListCalendar(c *gin.Context) {
	start, end := c.Query("start"), c.Query("end")
	if start == "" || end == "" {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "start and end are required",
			map[string]string{"start": "is required", "end": "is required"})
		return
	}

	tenantID := c.Param(tenantParam)
	admin := middleware.ClaimsFrom(c).CanAdminister(tenantID)

	days, err := h.service.ListForRange(c.Request.Context(), tenantID, start, end, admin)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, days)
}

func (h *Handler) GetReservation(c *gin.Context) {
	r, err := h.service.GetReservation(c.Request.Context(), c.Param(tenantParam), c.Param("reservationId"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, r)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, &req)
		return
	}

	r, err := h.service.UpdateStatus(c.Request.Context(), c.Param(tenantParam), c.Param("reservationId"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, r)
}

func bindError(c *gin.Context, err error, req any) {
	if details := validator.FieldErrors(err, req); details != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", details)
		return
	}
	response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
}

// writeError maps service errors onto the JSON error envelope.
func writeError(c *gin.Context, err error) {
	var conflict *domain.SlotConflict
	switch {
	case errors.As(err, &conflict):
		response.ErrorWithDetails(c, http.StatusConflict, "SLOT_UNAVAILABLE", "This date is already sponsored",
			gin.H{"conflictId": conflict.ConflictID})
	case errors.Is(err, ErrSlotUnavailable):
		response.Error(c, http.StatusConflict, "SLOT_UNAVAILABLE", "This date is already sponsored")
	case errors.Is(err, ErrInvalidDate):
		response.Error(c, http.StatusBadRequest, "INVALID_DATE", err.Error())
	case errors.Is(err, ErrValidation):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, ErrTypeDisabled):
		response.Error(c, http.StatusUnprocessableEntity, "TYPE_DISABLED", "This sponsorship type is not offered")
	case errors.Is(err, ErrStaleState):
		response.Error(c, http.StatusConflict, "STALE_STATE", "Reservation is no longer in the expected status")
	case errors.Is(err, ErrInvalidTransition):
		response.Error(c, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, ErrCancelWindowClosed):
		response.Error(c, http.StatusConflict, "CANCEL_WINDOW_CLOSED", "The sponsored period has already started")
	case errors.Is(err, ErrRequestInFlight):
		response.Error(c, http.StatusConflict, "IDEMPOTENCY_IN_FLIGHT", "A request with this Idempotency-Key is still being processed")
	case errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Not found")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
