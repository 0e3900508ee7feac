package sponsorship

import (
	"fmt"
	"strings"
	"time"

	"parnass/internal/domain"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
	yearLayout  = "2006"

	minYear = 1900
	maxYear = 2199
)

// Slot is a resolved bucket: its key plus the civil first day and the UTC bounds.
type Slot struct {
	Key         domain.SlotKey
	SponsorDate string
	Start       time.Time
	End         time.Time
}

// ParseSponsorDate reads "YYYY-MM-DD" as a civil date in loc, or an RFC3339
// instant converted into loc. It returns midnight of that civil date in loc.
func ParseSponsorDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}

	var civil time.Time
	if d, err := time.ParseInLocation(dateLayout, raw, loc); err == nil {
		civil = d
	} else if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		ts = ts.In(loc)
		civil = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, loc)
	} else {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}

	if civil.Year() < minYear || civil.Year() > maxYear {
		return time.Time{}, fmt.Errorf("%w: year %d out of range", ErrInvalidDate, civil.Year())
	}
	return civil, nil
}

// DeriveSlot maps a civil date onto the bucket of the given type.
func DeriveSlot(tenantID string, t domain.SponsorshipType, civil time.Time) (Slot, error) {
	loc := civil.Location()
	y, m, d := civil.Date()

	var (
		start  time.Time
		bucket string
	)
	switch t {
	case domain.SponsorshipDaily:
		start = time.Date(y, m, d, 0, 0, 0, 0, loc)
		bucket = start.Format(dateLayout)
	case domain.SponsorshipMonthly:
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		bucket = start.Format(monthLayout)
	case domain.SponsorshipYearly:
		start = time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		bucket = start.Format(yearLayout)
	default:
		return Slot{}, fmt.Errorf("%w: unknown sponsorship type %q", ErrValidation, t)
	}

	return Slot{
		Key:         domain.SlotKey{TenantID: tenantID, Type: t, Bucket: bucket},
		SponsorDate: start.Format(dateLayout),
		Start:       start.UTC(),
		End:         nextBucket(t, start).UTC(),
	}, nil
}

// DeriveSlotKey resolves the slot key of a raw date for the tenant timezone loc.
func DeriveSlotKey(tenantID string, t domain.SponsorshipType, date string, loc *time.Location) (domain.SlotKey, error) {
	civil, err := ParseSponsorDate(date, loc)
	if err != nil {
		return domain.SlotKey{}, err
	}
	slot, err := DeriveSlot(tenantID, t, civil)
	if err != nil {
		return domain.SlotKey{}, err
	}
	return slot.Key, nil
}

func nextBucket(t domain.SponsorshipType, start time.Time) time.Time {
	switch t {
	case domain.SponsorshipMonthly:
		return start.AddDate(0, 1, 0)
	case domain.SponsorshipYearly:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}
