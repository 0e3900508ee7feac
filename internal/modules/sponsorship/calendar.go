package sponsorship

import (
	"context"
	"fmt"

	"parnass/internal/domain"
)

const (
	// AnonymousLabel replaces the sponsor name of anonymous reservations.
	AnonymousLabel = "Anonymous"

	maxCalendarDays = 366
)

// ListForRange returns one summary per day of [start, end], inclusive, in the
// tenant timezone. The public view shows Approved reservations; the admin view
// adds Pending ones.
func (s *Service) ListForRange(ctx context.Context, tenantID, start, end string, admin bool) ([]DaySummary, error) {
	settings, err := s.settings.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	loc := settings.Location()

	from, err := ParseSponsorDate(start, loc)
	if err != nil {
		return nil, err
	}
	to, err := ParseSponsorDate(end, loc)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end is before start", ErrValidation)
	}
	days := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days++
		if days > maxCalendarDays {
			return nil, fmt.Errorf("%w: range exceeds %d days", ErrValidation, maxCalendarDays)
		}
	}

	statuses := []domain.ReservationStatus{domain.ReservationApproved}
	if admin {
		statuses = append(statuses, domain.ReservationPending)
	}
	ranges := []domain.BucketRange{
		{Type: domain.SponsorshipDaily, From: from.Format(dateLayout), To: to.Format(dateLayout)},
		{Type: domain.SponsorshipMonthly, From: from.Format(monthLayout), To: to.Format(monthLayout)},
		{Type: domain.SponsorshipYearly, From: from.Format(yearLayout), To: to.Format(yearLayout)},
	}

	rows, err := s.reservations.ListInRange(ctx, tenantID, statuses, ranges)
	if err != nil {
		return nil, err
	}

	byBucket := make(map[domain.SponsorshipType]map[string][]domain.Reservation, len(domain.SponsorshipTypes))
	for _, t := range domain.SponsorshipTypes {
		byBucket[t] = map[string][]domain.Reservation{}
	}
	for _, r := range rows {
		if !statusIn(r.Status, statuses) {
			continue
		}
		byBucket[r.Type][r.Bucket] = append(byBucket[r.Type][r.Bucket], r)
	}

	out := make([]DaySummary, 0, days)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		monthly := byBucket[domain.SponsorshipMonthly][d.Format(monthLayout)]
		yearly := byBucket[domain.SponsorshipYearly][d.Format(yearLayout)]
		out = append(out, DaySummary{
			Date:                 d.Format(dateLayout),
			DisplayDate:          s.calendar.ToLocalCalendar(d),
			Daily:                sponsorViews(byBucket[domain.SponsorshipDaily][d.Format(dateLayout)]),
			Monthly:              sponsorViews(monthly),
			Yearly:               sponsorViews(yearly),
			InMonthlySponsorship: anyApproved(monthly),
			InYearlySponsorship:  anyApproved(yearly),
		})
	}
	return out, nil
}

func sponsorViews(rs []domain.Reservation) []SponsorView {
	out := make([]SponsorView, 0, len(rs))
	for _, r := range rs {
		out = append(out, redact(r))
	}
	return out
}

func redact(r domain.Reservation) SponsorView {
	name := r.SponsorName
	if r.IsAnonymous {
		name = AnonymousLabel
	}
	return SponsorView{
		ReservationID: r.ID,
		SponsorName:   name,
		IsAnonymous:   r.IsAnonymous,
		Dedication:    r.Dedication,
		Message:       r.Message,
		Status:        string(r.Status),
		Bucket:        r.Bucket,
	}
}

func anyApproved(rs []domain.Reservation) bool {
	for _, r := range rs {
		if r.Status == domain.ReservationApproved {
			return true
		}
	}
	return false
}

func statusIn(s domain.ReservationStatus, set []domain.ReservationStatus) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}
