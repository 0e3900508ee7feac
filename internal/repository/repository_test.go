package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"parnass/internal/database"
	"parnass/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Connect(dsn, nil)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newReservation(tenant, bucket string, exclusive bool) *domain.Reservation {
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	return &domain.Reservation{
		ID:            uuid.NewString(),
		TenantID:      tenant,
		Type:          domain.SponsorshipDaily,
		SponsorDate:   bucket,
		Bucket:        bucket,
		BucketStart:   start,
		BucketEnd:     start.Add(24 * time.Hour),
		SponsorName:   "Cohen family",
		Email:         "cohen@example.org",
		Amount:        decimal.NewFromInt(18),
		Currency:      "USD",
		Status:        domain.ReservationPending,
		SlotExclusive: exclusive,
	}
}

func TestReservationRepository_CreateIfAvailable(t *testing.T) {
	repo := NewReservationRepository(newTestDB(t))
	ctx := context.Background()

	first := newReservation("beth-el", "2025-06-02", true)
	first.Dedication = &domain.Dedication{Kind: domain.DedicationInMemoryOf, Name: "Sarah"}
	require.NoError(t, repo.CreateIfAvailable(ctx, first))
	assert.False(t, first.CreatedAt.IsZero())

	second := newReservation("beth-el", "2025-06-02", true)
	err := repo.CreateIfAvailable(ctx, second)
	var conflict *domain.SlotConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.ID, conflict.ConflictID)
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)

	// Other tenants and other buckets are independent.
	require.NoError(t, repo.CreateIfAvailable(ctx, newReservation("shaarei-tefila", "2025-06-02", true)))
	require.NoError(t, repo.CreateIfAvailable(ctx, newReservation("beth-el", "2025-06-03", true)))

	got, err := repo.GetByID(ctx, "beth-el", first.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Dedication)
	assert.Equal(t, "Sarah", got.Dedication.Name)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(18)))
}

func TestReservationRepository_SlotFreedAfterRejection(t *testing.T) {
	repo := NewReservationRepository(newTestDB(t))
	ctx := context.Background()

	first := newReservation("beth-el", "2025-06-02", true)
	require.NoError(t, repo.CreateIfAvailable(ctx, first))
	require.NoError(t, repo.CompareAndSetStatus(ctx, "beth-el", first.ID, domain.ReservationPending, domain.ReservationRejected))

	require.NoError(t, repo.CreateIfAvailable(ctx, newReservation("beth-el", "2025-06-02", true)))
}

func TestReservationRepository_SlotFreedAfterCancelAndExpiry(t *testing.T) {
	tests := []struct {
		name string
		path []domain.ReservationStatus
	}{
		{"cancelled", []domain.ReservationStatus{domain.ReservationPending, domain.ReservationApproved, domain.ReservationCancelled}},
		{"expired", []domain.ReservationStatus{domain.ReservationPending, domain.ReservationExpired}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewReservationRepository(newTestDB(t))
			ctx := context.Background()
			key := domain.SlotKey{TenantID: "beth-el", Type: domain.SponsorshipDaily, Bucket: "2025-06-02"}

			first := newReservation("beth-el", "2025-06-02", true)
			require.NoError(t, repo.CreateIfAvailable(ctx, first))
			for i := 1; i < len(tt.path); i++ {
				require.NoError(t, repo.CompareAndSetStatus(ctx, "beth-el", first.ID, tt.path[i-1], tt.path[i]))
			}

			held, err := repo.FindActiveBySlot(ctx, key)
			require.NoError(t, err)
			assert.Empty(t, held)
			require.NoError(t, repo.CreateIfAvailable(ctx, newReservation("beth-el", "2025-06-02", true)))
		})
	}
}

func TestReservationRepository_NonExclusiveAllowsMany(t *testing.T) {
	repo := NewReservationRepository(newTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.CreateIfAvailable(ctx, newReservation("beth-el", "2025-06-02", false)))
	}
	held, err := repo.FindActiveBySlot(ctx, domain.SlotKey{TenantID: "beth-el", Type: domain.SponsorshipDaily, Bucket: "2025-06-02"})
	require.NoError(t, err)
	assert.Len(t, held, 3)
}

func TestReservationRepository_ConcurrentCreateSingleWinner(t *testing.T) {
	repo := NewReservationRepository(newTestDB(t))
	ctx := context.Background()

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.CreateIfAvailable(ctx, newReservation("beth-el", "2025-06-02", true))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrSlotUnavailable):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflicts)
}

func TestReservationRepository_CompareAndSetStatus(t *testing.T) {
	repo := NewReservationRepository(newTestDB(t))
	ctx := context.Background()

	r := newReservation("beth-el", "2025-06-02", true)
	require.NoError(t, repo.CreateIfAvailable(ctx, r))

	require.NoError(t, repo.CompareAndSetStatus(ctx, "beth-el", r.ID, domain.ReservationPending, domain.ReservationApproved))

	err := repo.CompareAndSetStatus(ctx, "beth-el", r.ID, domain.ReservationPending, domain.ReservationRejected)
	assert.ErrorIs(t, err, domain.ErrStaleState)

	err = repo.CompareAndSetStatus(ctx, "other", r.ID, domain.ReservationApproved, domain.ReservationCancelled)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.GetByID(ctx, "other", r.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReservationRepository_MarkPaidOnce(t *testing.T) {
	repo := NewReservationRepository(newTestDB(t))
	ctx := context.Background()

	r := newReservation("beth-el", "2025-06-02", true)
	require.NoError(t, repo.CreateIfAvailable(ctx, r))

	require.NoError(t, repo.MarkPaid(ctx, "beth-el", r.ID, domain.ReservationPending, domain.ReservationApproved))
	err := repo.MarkPaid(ctx, "beth-el", r.ID, domain.ReservationApproved, domain.ReservationApproved)
	assert.ErrorIs(t, err, domain.ErrStaleState)

	got, err := repo.GetByID(ctx, "", r.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
	assert.Equal(t, domain.ReservationApproved, got.Status)
}

func TestReservationRepository_ListInRange(t *testing.T) {
	repo := NewReservationRepository(newTestDB(t))
	ctx := context.Background()

	inside := newReservation("beth-el", "2025-06-02", true)
	outside := newReservation("beth-el", "2025-07-01", true)
	monthly := newReservation("beth-el", "2025-06", true)
	monthly.Type = domain.SponsorshipMonthly
	for _, r := range []*domain.Reservation{inside, outside, monthly} {
		require.NoError(t, repo.CreateIfAvailable(ctx, r))
	}

	rows, err := repo.ListInRange(ctx, "beth-el", domain.ActiveStatuses, []domain.BucketRange{
		{Type: domain.SponsorshipDaily, From: "2025-06-01", To: "2025-06-30"},
		{Type: domain.SponsorshipMonthly, From: "2025-06", To: "2025-06"},
	})
	require.NoError(t, err)
	ids := []string{}
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{inside.ID, monthly.ID}, ids)

	rows, err = repo.ListInRange(ctx, "beth-el", []domain.ReservationStatus{domain.ReservationApproved}, []domain.BucketRange{
		{Type: domain.SponsorshipDaily, From: "2025-06-01", To: "2025-06-30"},
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReservationRepository_ListExpirable(t *testing.T) {
	repo := NewReservationRepository(newTestDB(t))
	ctx := context.Background()

	pending := newReservation("beth-el", "2025-06-02", true)
	paidApproved := newReservation("beth-el", "2025-06-03", true)
	future := newReservation("beth-el", "2025-06-04", true)
	future.BucketStart = time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)
	future.BucketEnd = future.BucketStart.Add(24 * time.Hour)
	for _, r := range []*domain.Reservation{pending, paidApproved, future} {
		require.NoError(t, repo.CreateIfAvailable(ctx, r))
	}
	require.NoError(t, repo.MarkPaid(ctx, "beth-el", paidApproved.ID, domain.ReservationPending, domain.ReservationApproved))

	rows, err := repo.ListExpirable(ctx, time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, pending.ID, rows[0].ID)
}

func TestSettingsRepository_Upsert(t *testing.T) {
	repo := NewSettingsRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.Get(ctx, "beth-el")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	s := &domain.TenantSponsorshipSettings{
		TenantID:     "beth-el",
		DailyEnabled: true,
		DailyPrice:   decimal.NewFromInt(18),
		Currency:     "USD",
		Timezone:     "America/New_York",
	}
	require.NoError(t, repo.Upsert(ctx, s))

	s.DailyPrice = decimal.NewFromInt(36)
	s.RequireApproval = true
	require.NoError(t, repo.Upsert(ctx, s))

	got, err := repo.Get(ctx, "beth-el")
	require.NoError(t, err)
	assert.True(t, got.DailyPrice.Equal(decimal.NewFromInt(36)))
	assert.True(t, got.RequireApproval)
	assert.Equal(t, "America/New_York", got.Timezone)
}

func TestSettlementRepository_RecordOutcomeOnce(t *testing.T) {
	repo := NewSettlementRepository(newTestDB(t))
	ctx := context.Background()

	s := &domain.Settlement{
		ID:            uuid.NewString(),
		ReservationID: "res-1",
		TenantID:      "beth-el",
		Provider:      "manual",
		Amount:        decimal.NewFromInt(18),
		Currency:      "USD",
		Status:        domain.SettlementCreated,
		Metadata:      map[string]string{"source": "test"},
	}
	require.NoError(t, repo.Create(ctx, s))

	now := time.Now()
	changed, err := repo.RecordOutcome(ctx, s.ID, domain.SettlementSucceeded, []byte(`{"ok":true}`), now)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.RecordOutcome(ctx, s.ID, domain.SettlementFailed, nil, now)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementSucceeded, got.Status)
	assert.Equal(t, "test", got.Metadata["source"])
	assert.NotNil(t, got.SettledAt)
}

func TestSettlementRepository_OpenSessions(t *testing.T) {
	repo := NewSettlementRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.LatestOpen(ctx, "res-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 2; i++ {
		s := &domain.Settlement{
			ID:            uuid.NewString(),
			ReservationID: "res-1",
			TenantID:      "beth-el",
			Provider:      "manual",
			Amount:        decimal.NewFromInt(18),
			Currency:      "USD",
			Status:        domain.SettlementCreated,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.Create(ctx, s))
		ids = append(ids, s.ID)
	}

	n, err := repo.CountOpen(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	latest, err := repo.LatestOpen(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, ids[1], latest.ID)

	// closing the older session leaves the newer one untouched
	changed, err := repo.RecordOutcome(ctx, ids[0], domain.SettlementFailed, nil, time.Now())
	require.NoError(t, err)
	assert.True(t, changed)

	n, err = repo.CountOpen(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	live, err := repo.GetByID(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementCreated, live.Status)
}

func TestIdempotencyRepository(t *testing.T) {
	repo := NewIdempotencyRepository(newTestDB(t))
	ctx := context.Background()

	id, started, err := repo.Begin(ctx, "beth-el", "k1", time.Hour)
	require.NoError(t, err)
	assert.True(t, started)
	assert.Empty(t, id)

	_, started, err = repo.Begin(ctx, "beth-el", "k1", time.Hour)
	require.NoError(t, err)
	assert.False(t, started)

	require.NoError(t, repo.Complete(ctx, "beth-el", "k1", "res-1"))
	id, started, err = repo.Begin(ctx, "beth-el", "k1", time.Hour)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, "res-1", id)

	// Same key, other tenant.
	_, started, err = repo.Begin(ctx, "shaarei-tefila", "k1", time.Hour)
	require.NoError(t, err)
	assert.True(t, started)

	require.NoError(t, repo.Abort(ctx, "shaarei-tefila", "k1"))
	_, started, err = repo.Begin(ctx, "shaarei-tefila", "k1", time.Hour)
	require.NoError(t, err)
	assert.True(t, started)
}

func TestIdempotencyRepository_Expiry(t *testing.T) {
	repo := NewIdempotencyRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	_, _, err := repo.Begin(ctx, "beth-el", "k1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, "beth-el", "k1", "res-1"))

	now = now.Add(2 * time.Minute)
	id, started, err := repo.Begin(ctx, "beth-el", "k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, started)
	assert.Empty(t, id)

	n, err := repo.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
