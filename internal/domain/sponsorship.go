package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type SponsorshipType string

const (
	SponsorshipDaily   SponsorshipType = "Daily"
	SponsorshipMonthly SponsorshipType = "Monthly"
	SponsorshipYearly  SponsorshipType = "Yearly"
)

// SponsorshipTypes lists the types in calendar order (finest bucket first).
var SponsorshipTypes = []SponsorshipType{SponsorshipDaily, SponsorshipMonthly, SponsorshipYearly}

func ParseSponsorshipType(s string) (SponsorshipType, bool) {
	for _, t := range SponsorshipTypes {
		if strings.EqualFold(strings.TrimSpace(s), string(t)) {
			return t, true
		}
	}
	return "", false
}

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "Pending"
	ReservationApproved  ReservationStatus = "Approved"
	ReservationRejected  ReservationStatus = "Rejected"
	ReservationExpired   ReservationStatus = "Expired"
	ReservationCancelled ReservationStatus = "Cancelled"
)

var reservationStatuses = []ReservationStatus{
	ReservationPending,
	ReservationApproved,
	ReservationRejected,
	ReservationExpired,
	ReservationCancelled,
}

// ActiveStatuses occupy a slot.
var ActiveStatuses = []ReservationStatus{ReservationPending, ReservationApproved}

func ParseReservationStatus(s string) (ReservationStatus, bool) {
	for _, st := range reservationStatuses {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, true
		}
	}
	return "", false
}

func (s ReservationStatus) IsActive() bool {
	return s == ReservationPending || s == ReservationApproved
}

func (s ReservationStatus) IsFinal() bool {
	return s == ReservationRejected || s == ReservationExpired || s == ReservationCancelled
}

type DedicationKind string

const (
	DedicationInMemoryOf   DedicationKind = "InMemoryOf"
	DedicationForHealingOf DedicationKind = "ForHealingOf"
	DedicationForSuccessOf DedicationKind = "ForSuccessOf"
	DedicationInHonorOf    DedicationKind = "InHonorOf"
	DedicationForMeritOf   DedicationKind = "ForMeritOf"
)

func (k DedicationKind) Valid() bool {
	switch k {
	case DedicationInMemoryOf, DedicationForHealingOf, DedicationForSuccessOf, DedicationInHonorOf, DedicationForMeritOf:
		return true
	}
	return false
}

type Dedication struct {
	Kind       DedicationKind `json:"kind"`
	Name       string         `json:"name"`
	HebrewName string         `json:"hebrewName,omitempty"`
}

// SlotKey identifies the exclusivity namespace of a reservation.
type SlotKey struct {
	TenantID string          `json:"tenantId"`
	Type     SponsorshipType `json:"type"`
	Bucket   string          `json:"bucket"`
}

func (k SlotKey) String() string {
	return k.TenantID + ":" + string(k.Type) + ":" + k.Bucket
}

// BucketRange selects buckets of one type between From and To inclusive.
// Bucket strings of a type sort lexicographically in calendar order.
type BucketRange struct {
	Type SponsorshipType
	From string
	To   string
}

type Reservation struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenantId"`
	Type          SponsorshipType   `json:"type"`
	SponsorDate   string            `json:"sponsorDate"`
	Bucket        string            `json:"bucket"`
	BucketStart   time.Time         `json:"bucketStart"`
	BucketEnd     time.Time         `json:"bucketEnd"`
	SponsorName   string            `json:"sponsorName"`
	IsAnonymous   bool              `json:"isAnonymous"`
	Dedication    *Dedication       `json:"dedication,omitempty"`
	Message       string            `json:"message,omitempty"`
	Email         string            `json:"email"`
	Phone         string            `json:"phone,omitempty"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	IsPaid        bool              `json:"isPaid"`
	Status        ReservationStatus `json:"status"`
	SlotExclusive bool              `json:"slotExclusive"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func (r *Reservation) SlotKey() SlotKey {
	return SlotKey{TenantID: r.TenantID, Type: r.Type, Bucket: r.Bucket}
}
