package sponsorship

import "parnass/internal/domain"

type AvailabilityRequest struct {
	Type string `json:"type" binding:"required"`
	Date string `json:"date" binding:"required"`
}

type AvailabilityResponse struct {
	Available  bool   `json:"available"`
	ConflictID string `json:"conflictId,omitempty"`
}

type DedicationInput struct {
	Kind       string `json:"kind" binding:"required,oneof=InMemoryOf ForHealingOf ForSuccessOf InHonorOf ForMeritOf"`
	Name       string `json:"name" binding:"required,max=200"`
	HebrewName string `json:"hebrewName" binding:"max=200"`
}

type CreateReservationRequest struct {
	Type        string           `json:"type" binding:"required"`
	Date        string           `json:"date" binding:"required"`
	SponsorName string           `json:"sponsorName" binding:"required,max=200"`
	IsAnonymous bool             `json:"isAnonymous"`
	Dedication  *DedicationInput `json:"dedication"`
	Message     string           `json:"message" binding:"max=2000"`
	Email       string           `json:"email" binding:"required,email,max=254"`
	Phone       string           `json:"phone" binding:"max=32"`
}

type CreateReservationResponse struct {
	ReservationID string `json:"reservationId"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
}

type UpdateStatusRequest struct {
	Status         string `json:"status" binding:"required"`
	ExpectedStatus string `json:"expectedStatus"`
}

// SponsorView is a reservation as shown on the calendar. Contact details are
// never included and anonymous sponsors carry the AnonymousLabel.
type SponsorView struct {
	ReservationID string             `json:"reservationId"`
	SponsorName   string             `json:"sponsorName"`
	IsAnonymous   bool               `json:"isAnonymous"`
	Dedication    *domain.Dedication `json:"dedication,omitempty"`
	Message       string             `json:"message,omitempty"`
	Status        string             `json:"status"`
	Bucket        string             `json:"bucket"`
}

type DaySummary struct {
	Date                 string        `json:"date"`
	DisplayDate          string        `json:"displayDate"`
	Daily                []SponsorView `json:"daily"`
	Monthly              []SponsorView `json:"monthly"`
	Yearly               []SponsorView `json:"yearly"`
	InMonthlySponsorship bool          `json:"inMonthlySponsorship"`
	InYearlySponsorship  bool          `json:"inYearlySponsorship"`
}

func toCreateResponse(r *domain.Reservation) CreateReservationResponse {
	return CreateReservationResponse{
		ReservationID: r.ID,
		Status:        string(r.Status),
		Amount:        r.Amount.StringFixed(2),
		Currency:      r.Currency,
	}
}
