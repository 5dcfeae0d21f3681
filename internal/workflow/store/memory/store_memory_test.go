package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remedia/internal/workflow/models"
	"remedia/internal/workflow/ports"
	id "remedia/pkg/domain"
	"remedia/pkg/platform/sentinel"
)

func newObservation(auditID id.AuditID) *models.Observation {
	now := time.Now()
	return &models.Observation{
		ID:              id.NewObservationID(),
		AuditID:         auditID,
		Title:           "unencrypted backups",
		Status:          models.ObservationOpen,
		RiskRating:      models.RiskHigh,
		OpenDate:        now,
		TargetDate:      now.AddDate(0, 0, 30),
		OwnerID:         id.NewUserID(),
		StatusChangedAt: now,
	}
}

func TestObservationStore_CreateAssignsSequenceAndLabel(t *testing.T) {
	store := NewObservationStore()
	ctx := context.Background()
	auditID := id.NewAuditID()

	first := newObservation(auditID)
	second := newObservation(auditID)
	other := newObservation(id.NewAuditID())

	require.NoError(t, store.Create(ctx, first, "AUD-2024-01"))
	require.NoError(t, store.Create(ctx, second, "AUD-2024-01"))
	require.NoError(t, store.Create(ctx, other, "AUD-2024-02"))

	assert.Equal(t, 1, first.Sequence)
	assert.Equal(t, 2, second.Sequence)
	assert.Equal(t, 1, other.Sequence, "sequence is per audit")
	assert.Equal(t, "AUD-2024-01-OBS-0001", first.Label)
	assert.Equal(t, "AUD-2024-01-OBS-0002", second.Label)
}

func TestObservationStore_TransitionStatus_Conditional(t *testing.T) {
	store := NewObservationStore()
	ctx := context.Background()
	obs := newObservation(id.NewAuditID())
	require.NoError(t, store.Create(ctx, obs, "AUD"))

	t.Run("succeeds when prior status matches", func(t *testing.T) {
		updated, err := store.TransitionStatus(ctx, obs.ID, models.ObservationOpen, models.ObservationInProgress, func(o *models.Observation) {
			prev := o.Status
			o.PreviousStatus = &prev
		})
		require.NoError(t, err)
		assert.Equal(t, models.ObservationInProgress, updated.Status)
		require.NotNil(t, updated.PreviousStatus)
		assert.Equal(t, models.ObservationOpen, *updated.PreviousStatus)
	})

	t.Run("fails with conflict when prior status changed", func(t *testing.T) {
		_, err := store.TransitionStatus(ctx, obs.ID, models.ObservationOpen, models.ObservationClosed, nil)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("fails with not found for unknown row", func(t *testing.T) {
		_, err := store.TransitionStatus(ctx, id.NewObservationID(), models.ObservationOpen, models.ObservationClosed, nil)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

// Two goroutines racing the same prior status: exactly one conditional write
// may win.
func TestObservationStore_TransitionStatus_Concurrent(t *testing.T) {
	store := NewObservationStore()
	ctx := context.Background()
	obs := newObservation(id.NewAuditID())
	require.NoError(t, store.Create(ctx, obs, "AUD"))

	const racers = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		target := models.ObservationInProgress
		if i%2 == 0 {
			target = models.ObservationClosed
		}
		go func(to models.ObservationStatus) {
			defer wg.Done()
			if _, err := store.TransitionStatus(ctx, obs.ID, models.ObservationOpen, to, nil); err == nil {
				wins.Add(1)
			}
		}(target)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one concurrent transition may win")
}

func TestObservationStore_UpdateNeverWritesStatus(t *testing.T) {
	store := NewObservationStore()
	ctx := context.Background()
	obs := newObservation(id.NewAuditID())
	require.NoError(t, store.Create(ctx, obs, "AUD"))

	tampered := *obs
	tampered.Status = models.ObservationClosed
	tampered.Title = "renamed"
	require.NoError(t, store.Update(ctx, &tampered))

	got, err := store.Get(ctx, obs.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.ObservationOpen, got.Status, "Update must not change status")
	assert.Equal(t, "renamed", got.Title)
}

func TestObservationStore_ListOverdueCandidates(t *testing.T) {
	store := NewObservationStore()
	ctx := context.Background()
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	auditID := id.NewAuditID()

	overdue := newObservation(auditID)
	overdue.TargetDate = now.AddDate(0, 0, -2)
	onTime := newObservation(auditID)
	onTime.TargetDate = now.AddDate(0, 0, 5)
	exactly := newObservation(auditID)
	exactly.TargetDate = now

	require.NoError(t, store.Create(ctx, overdue, "AUD"))
	require.NoError(t, store.Create(ctx, onTime, "AUD"))
	require.NoError(t, store.Create(ctx, exactly, "AUD"))

	candidates, err := store.ListOverdueCandidates(ctx, now, 100)
	require.NoError(t, err)
	require.Len(t, candidates, 1, "strictly-before filter excludes the on-time and boundary rows")
	assert.Equal(t, overdue.ID, candidates[0].ID)

	// Already-OVERDUE and CLOSED rows are excluded.
	_, err = store.TransitionStatus(ctx, overdue.ID, models.ObservationOpen, models.ObservationOverdue, nil)
	require.NoError(t, err)
	candidates, err = store.ListOverdueCandidates(ctx, now, 100)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestObservationStore_SoftDeleteVisibility(t *testing.T) {
	store := NewObservationStore()
	ctx := context.Background()
	obs := newObservation(id.NewAuditID())
	require.NoError(t, store.Create(ctx, obs, "AUD"))

	require.NoError(t, store.SoftDelete(ctx, obs.ID, time.Now()))

	_, err := store.Get(ctx, obs.ID, false)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	got, err := store.Get(ctx, obs.ID, true)
	require.NoError(t, err)
	assert.NotNil(t, got.DeletedAt)

	count, err := store.CountActiveByAudit(ctx, obs.AuditID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestAuditStore_DuplicateNumberConflicts(t *testing.T) {
	store := NewAuditStore()
	ctx := context.Background()

	first := &models.Audit{ID: id.NewAuditID(), Number: "AUD-2024-01", Type: models.AuditTypeIT, Status: models.AuditPlanned}
	dup := &models.Audit{ID: id.NewAuditID(), Number: "AUD-2024-01", Type: models.AuditTypeIT, Status: models.AuditPlanned}

	require.NoError(t, store.Create(ctx, first))
	assert.ErrorIs(t, store.Create(ctx, dup), sentinel.ErrConflict)
}

func TestObservationStore_ListFilters(t *testing.T) {
	store := NewObservationStore()
	ctx := context.Background()
	auditID := id.NewAuditID()

	a := newObservation(auditID)
	b := newObservation(auditID)
	require.NoError(t, store.Create(ctx, a, "AUD"))
	require.NoError(t, store.Create(ctx, b, "AUD"))
	_, err := store.TransitionStatus(ctx, b.ID, models.ObservationOpen, models.ObservationInProgress, nil)
	require.NoError(t, err)

	open := models.ObservationOpen
	got, err := store.List(ctx, ports.ObservationFilter{AuditID: &auditID, Status: &open})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
}
