package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remedia/internal/directory"
	"remedia/internal/workflow/models"
	"remedia/internal/workflow/store/memory"
	id "remedia/pkg/domain"
	dErrors "remedia/pkg/domain-errors"
	"remedia/pkg/requestcontext"
)

type auditFixture struct {
	svc      *AuditService
	obsStore *memory.ObservationStore
	notifier *captureNotifier
	lead     id.UserID
	actor    id.UserID
	now      time.Time
	ctx      context.Context
}

func newAuditFixture(t *testing.T) *auditFixture {
	t.Helper()

	f := &auditFixture{
		obsStore: memory.NewObservationStore(),
		notifier: &captureNotifier{},
		lead:     id.NewUserID(),
		actor:    id.NewUserID(),
		now:      time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
	}
	f.ctx = requestcontext.WithTime(context.Background(), f.now)

	svc, err := NewAuditService(
		memory.NewAuditStore(),
		f.obsStore,
		directory.NewStatic(f.lead, f.actor),
		WithAuditNotifier(f.notifier),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *auditFixture) create(t *testing.T, number string) *models.Audit {
	t.Helper()
	audit, err := f.svc.Create(f.ctx, CreateAuditInput{
		Number:        number,
		Type:          models.AuditTypeInternal,
		Title:         "Annual internal audit",
		PeriodStart:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:     time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		LeadAuditorID: f.lead,
	}, f.actor)
	require.NoError(t, err)
	return audit
}

func TestAuditService_Create(t *testing.T) {
	t.Run("new audits start planned", func(t *testing.T) {
		f := newAuditFixture(t)

		audit := f.create(t, "AUD-2024-007")

		assert.Equal(t, models.AuditPlanned, audit.Status)
		assert.Nil(t, audit.ActualStartDate)
	})

	t.Run("duplicate numbers are refused", func(t *testing.T) {
		f := newAuditFixture(t)
		f.create(t, "AUD-2024-007")

		_, err := f.svc.Create(f.ctx, CreateAuditInput{
			Number:        "AUD-2024-007",
			Type:          models.AuditTypeInternal,
			Title:         "Duplicate",
			PeriodStart:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:     time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
			LeadAuditorID: f.lead,
		}, f.actor)

		require.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
		assert.Equal(t, "AUD-2024-007", dErrors.Detail(err, "number"))
	})

	t.Run("period end before start is rejected", func(t *testing.T) {
		f := newAuditFixture(t)

		_, err := f.svc.Create(f.ctx, CreateAuditInput{
			Number:        "AUD-2024-008",
			Type:          models.AuditTypeInternal,
			Title:         "Backwards period",
			PeriodStart:   time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
			PeriodEnd:     time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
			LeadAuditorID: f.lead,
		}, f.actor)

		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestAuditService_Transition(t *testing.T) {
	t.Run("first move into in progress stamps the actual start once", func(t *testing.T) {
		f := newAuditFixture(t)
		audit := f.create(t, "AUD-2024-010")

		started, err := f.svc.Transition(f.ctx, audit.ID, models.AuditInProgress, f.actor)
		require.NoError(t, err)
		require.NotNil(t, started.ActualStartDate)
		firstStart := *started.ActualStartDate

		// review round trip must not move the stamp
		_, err = f.svc.Transition(f.ctx, audit.ID, models.AuditUnderReview, f.actor)
		require.NoError(t, err)
		later := requestcontext.WithTime(context.Background(), f.now.AddDate(0, 0, 3))
		again, err := f.svc.Transition(later, audit.ID, models.AuditInProgress, f.actor)
		require.NoError(t, err)

		require.NotNil(t, again.ActualStartDate)
		assert.Equal(t, firstStart, *again.ActualStartDate)
	})

	t.Run("closing stamps end and close times", func(t *testing.T) {
		f := newAuditFixture(t)
		audit := f.create(t, "AUD-2024-011")
		_, err := f.svc.Transition(f.ctx, audit.ID, models.AuditInProgress, f.actor)
		require.NoError(t, err)
		_, err = f.svc.Transition(f.ctx, audit.ID, models.AuditUnderReview, f.actor)
		require.NoError(t, err)

		closed, err := f.svc.Transition(f.ctx, audit.ID, models.AuditClosed, f.actor)
		require.NoError(t, err)

		require.NotNil(t, closed.ClosedAt)
		require.NotNil(t, closed.ActualEndDate)
		assert.True(t, closed.Status.Terminal())
	})

	t.Run("illegal move is refused", func(t *testing.T) {
		f := newAuditFixture(t)
		audit := f.create(t, "AUD-2024-012")

		_, err := f.svc.Transition(f.ctx, audit.ID, models.AuditClosed, f.actor)

		require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
		assert.Equal(t, "PLANNED", dErrors.Detail(err, "from"))
	})

	t.Run("notifies the lead auditor", func(t *testing.T) {
		f := newAuditFixture(t)
		audit := f.create(t, "AUD-2024-013")

		_, err := f.svc.Transition(f.ctx, audit.ID, models.AuditInProgress, f.actor)
		require.NoError(t, err)

		require.Len(t, f.notifier.sent, 1)
		assert.Equal(t, f.lead, f.notifier.sent[0].RecipientID)
	})
}

func TestAuditService_SoftDelete(t *testing.T) {
	t.Run("refused while observations remain", func(t *testing.T) {
		f := newAuditFixture(t)
		audit := f.create(t, "AUD-2024-020")

		obs := &models.Observation{
			ID:         id.NewObservationID(),
			AuditID:    audit.ID,
			Title:      "finding",
			Status:     models.ObservationOpen,
			RiskRating: models.RiskLow,
			OwnerID:    f.lead,
		}
		require.NoError(t, f.obsStore.Create(f.ctx, obs, audit.Number))

		err := f.svc.SoftDelete(f.ctx, audit.ID)
		require.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

		// once the observation is gone the audit can be deleted
		require.NoError(t, f.obsStore.SoftDelete(f.ctx, obs.ID, f.now))
		require.NoError(t, f.svc.SoftDelete(f.ctx, audit.ID))
	})

	t.Run("unknown audit", func(t *testing.T) {
		f := newAuditFixture(t)

		err := f.svc.SoftDelete(f.ctx, id.NewAuditID())

		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
