package domain

import (
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
)

// TenantSponsorshipSettings is the per-tenant configuration of the sponsorship module.
type TenantSponsorshipSettings struct {
	TenantID              string          `json:"tenantId"`
	DailyEnabled          bool            `json:"dailyEnabled"`
	MonthlyEnabled        bool            `json:"monthlyEnabled"`
	YearlyEnabled         bool            `json:"yearlyEnabled"`
	DailyPrice            decimal.Decimal `json:"dailyPrice"`
	MonthlyPrice          decimal.Decimal `json:"monthlyPrice"`
	YearlyPrice           decimal.Decimal `json:"yearlyPrice"`
	Currency              string          `json:"currency"`
	RequireApproval       bool            `json:"requireApproval"`
	AllowMultipleSponsors bool            `json:"allowMultipleSponsors"`
	Timezone              string          `json:"timezone"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

func (s *TenantSponsorshipSettings) Enabled(t SponsorshipType) bool {
	switch t {
	case SponsorshipDaily:
		return s.DailyEnabled
	case SponsorshipMonthly:
		return s.MonthlyEnabled
	case SponsorshipYearly:
		return s.YearlyEnabled
	}
	return false
}

func (s *TenantSponsorshipSettings) Price(t SponsorshipType) decimal.Decimal {
	switch t {
	case SponsorshipDaily:
		return s.DailyPrice
	case SponsorshipMonthly:
		return s.MonthlyPrice
	case SponsorshipYearly:
		return s.YearlyPrice
	}
	return decimal.Zero
}

// Location resolves the tenant timezone. Empty or unknown names fall back to UTC.
func (s *TenantSponsorshipSettings) Location() *time.Location {
	name := strings.TrimSpace(s.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
