package settlement

import "parnass/internal/domain"

// PaymentHandle tells the client how to pay for a reservation.
type PaymentHandle struct {
	SettlementID  string `json:"settlementId"`
	ReservationID string `json:"reservationId"`
	Provider      string `json:"provider"`
	SessionID     string `json:"sessionId"`
	CheckoutURL   string `json:"checkoutUrl,omitempty"`
	Token         string `json:"token,omitempty"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
}

type WebhookRequest struct {
	ReservationID string `json:"reservationId" binding:"required,max=64"`
	SettlementID  string `json:"settlementId" binding:"omitempty,max=64"`
	Outcome       string `json:"outcome" binding:"required,oneof=succeeded failed SUCCEEDED FAILED Succeeded Failed"`
}

type ReconcileResponse struct {
	ReservationID string `json:"reservationId"`
	Status        string `json:"status"`
	IsPaid        bool   `json:"isPaid"`
	Changed       bool   `json:"changed"`
}

func toReconcileResponse(r *domain.Reservation, changed bool) ReconcileResponse {
	return ReconcileResponse{
		ReservationID: r.ID,
		Status:        string(r.Status),
		IsPaid:        r.IsPaid,
		Changed:       changed,
	}
}
