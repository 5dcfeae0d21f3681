package evidence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remedia/internal/directory"
	"remedia/internal/evidence"
	evidencemem "remedia/internal/evidence/store/memory"
	"remedia/internal/notify"
	"remedia/internal/sla"
	"remedia/internal/workflow/models"
	"remedia/internal/workflow/service"
	"remedia/internal/workflow/store/memory"
	id "remedia/pkg/domain"
	dErrors "remedia/pkg/domain-errors"
	"remedia/pkg/requestcontext"
)

type staticRules []sla.Rule

func (r staticRules) ListActive(ctx context.Context) ([]sla.Rule, error) {
	return r, nil
}

type captureNotifier struct {
	sent []notify.Notification
}

func (c *captureNotifier) Dispatch(ctx context.Context, n notify.Notification) {
	c.sent = append(c.sent, n)
}

type gateFixture struct {
	gate     *evidence.Service
	workflow *service.ObservationService
	notifier *captureNotifier
	owner    id.UserID
	reviewer id.UserID
	obs      *models.Observation
	ctx      context.Context
}

// newGateFixture wires the gate against the real observation service so the
// transition table is enforced end to end.
func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	f := &gateFixture{
		notifier: &captureNotifier{},
		owner:    id.NewUserID(),
		reviewer: id.NewUserID(),
	}
	f.ctx = requestcontext.WithTime(context.Background(), time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	obsStore := memory.NewObservationStore()
	auditStore := memory.NewAuditStore()
	dir := directory.NewStatic(f.owner, f.reviewer)

	workflow, err := service.NewObservationService(obsStore, auditStore, staticRules(nil), dir)
	require.NoError(t, err)
	f.workflow = workflow

	gate, err := evidence.NewService(evidencemem.NewStore(), workflow, evidence.WithNotifier(f.notifier))
	require.NoError(t, err)
	f.gate = gate

	audit := &models.Audit{
		ID:            id.NewAuditID(),
		Number:        "AUD-2024-030",
		Type:          models.AuditTypeSOC,
		Status:        models.AuditInProgress,
		Title:         "SOC 2 Type II",
		PeriodStart:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:     time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		LeadAuditorID: f.reviewer,
	}
	require.NoError(t, auditStore.Create(f.ctx, audit))

	f.obs, err = workflow.Create(f.ctx, service.CreateObservationInput{
		AuditID:    audit.ID,
		Title:      "Backups not encrypted",
		RiskRating: models.RiskHigh,
		OwnerID:    f.owner,
		ReviewerID: f.reviewer,
	}, f.reviewer)
	require.NoError(t, err)

	_, err = workflow.Transition(f.ctx, f.obs.ID, models.ObservationInProgress, f.owner, "")
	require.NoError(t, err)
	return f
}

func (f *gateFixture) upload(t *testing.T) *evidence.Evidence {
	t.Helper()
	ev, err := f.gate.Upload(f.ctx, evidence.UploadInput{
		ObservationID: f.obs.ID,
		FileName:      "backup-policy.pdf",
		FileRef:       "s3://evidence/backup-policy.pdf",
	}, f.owner)
	require.NoError(t, err)
	return ev
}

func TestService_Upload(t *testing.T) {
	t.Run("first version starts pending review", func(t *testing.T) {
		f := newGateFixture(t)

		ev := f.upload(t)

		assert.Equal(t, 1, ev.Version)
		assert.Equal(t, evidence.StatusPendingReview, ev.Status)
		assert.Equal(t, f.owner, ev.UploadedByID)
		assert.Nil(t, ev.SupersedesID)
	})

	t.Run("closed observations accept no evidence", func(t *testing.T) {
		f := newGateFixture(t)
		_, err := f.workflow.Transition(f.ctx, f.obs.ID, models.ObservationClosed, f.reviewer, "withdrawn")
		require.NoError(t, err)

		_, err = f.gate.Upload(f.ctx, evidence.UploadInput{
			ObservationID: f.obs.ID,
			FileName:      "late.pdf",
			FileRef:       "s3://evidence/late.pdf",
		}, f.owner)

		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	t.Run("file name and reference are required", func(t *testing.T) {
		f := newGateFixture(t)

		_, err := f.gate.Upload(f.ctx, evidence.UploadInput{ObservationID: f.obs.ID}, f.owner)

		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestService_Review(t *testing.T) {
	t.Run("approve records reviewer and time", func(t *testing.T) {
		f := newGateFixture(t)
		ev := f.upload(t)

		reviewed, err := f.gate.Review(f.ctx, ev.ID, evidence.ReviewInput{
			Decision: evidence.DecisionApprove,
			Remarks:  "matches the retention policy",
		}, f.reviewer)
		require.NoError(t, err)

		assert.Equal(t, evidence.StatusApproved, reviewed.Status)
		assert.Equal(t, f.reviewer, reviewed.ReviewedByID)
		require.NotNil(t, reviewed.ReviewedAt)
	})

	t.Run("reject requires a reason", func(t *testing.T) {
		f := newGateFixture(t)
		ev := f.upload(t)

		_, err := f.gate.Review(f.ctx, ev.ID, evidence.ReviewInput{Decision: evidence.DecisionReject}, f.reviewer)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		reviewed, err := f.gate.Review(f.ctx, ev.ID, evidence.ReviewInput{
			Decision:        evidence.DecisionReject,
			RejectionReason: "screenshot is from the wrong environment",
		}, f.reviewer)
		require.NoError(t, err)
		assert.Equal(t, evidence.StatusRejected, reviewed.Status)
		assert.Equal(t, "screenshot is from the wrong environment", reviewed.RejectionReason)
	})

	t.Run("each version is reviewed once", func(t *testing.T) {
		f := newGateFixture(t)
		ev := f.upload(t)
		_, err := f.gate.Review(f.ctx, ev.ID, evidence.ReviewInput{Decision: evidence.DecisionApprove}, f.reviewer)
		require.NoError(t, err)

		_, err = f.gate.Review(f.ctx, ev.ID, evidence.ReviewInput{Decision: evidence.DecisionApprove}, f.reviewer)

		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	t.Run("review notifies the uploader", func(t *testing.T) {
		f := newGateFixture(t)
		ev := f.upload(t)

		_, err := f.gate.Review(f.ctx, ev.ID, evidence.ReviewInput{Decision: evidence.DecisionApprove}, f.reviewer)
		require.NoError(t, err)

		require.NotEmpty(t, f.notifier.sent)
		last := f.notifier.sent[len(f.notifier.sent)-1]
		assert.Equal(t, notify.TypeEvidenceReviewed, last.Type)
		assert.Equal(t, f.owner, last.RecipientID)
	})
}

func TestService_Supersede(t *testing.T) {
	t.Run("correction starts a fresh review", func(t *testing.T) {
		f := newGateFixture(t)
		first := f.upload(t)
		_, err := f.gate.Review(f.ctx, first.ID, evidence.ReviewInput{
			Decision:        evidence.DecisionReject,
			RejectionReason: "wrong period",
		}, f.reviewer)
		require.NoError(t, err)

		second, err := f.gate.Supersede(f.ctx, first.ID, evidence.UploadInput{
			FileName: "backup-policy-v2.pdf",
			FileRef:  "s3://evidence/backup-policy-v2.pdf",
		}, f.owner)
		require.NoError(t, err)

		assert.Equal(t, 2, second.Version)
		require.NotNil(t, second.SupersedesID)
		assert.Equal(t, first.ID, *second.SupersedesID)
		assert.Equal(t, evidence.StatusPendingReview, second.Status)

		versions, err := f.gate.ListByObservation(f.ctx, f.obs.ID)
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.False(t, versions[0].Active())
		assert.True(t, versions[1].Active())
	})

	t.Run("a superseded version cannot be superseded again", func(t *testing.T) {
		f := newGateFixture(t)
		first := f.upload(t)
		_, err := f.gate.Supersede(f.ctx, first.ID, evidence.UploadInput{
			FileName: "v2.pdf",
			FileRef:  "s3://evidence/v2.pdf",
		}, f.owner)
		require.NoError(t, err)

		_, err = f.gate.Supersede(f.ctx, first.ID, evidence.UploadInput{
			FileName: "v3.pdf",
			FileRef:  "s3://evidence/v3.pdf",
		}, f.owner)

		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func TestService_SubmitForReview(t *testing.T) {
	t.Run("refused with nothing uploaded", func(t *testing.T) {
		f := newGateFixture(t)

		_, err := f.gate.SubmitForReview(f.ctx, f.obs.ID, f.owner)

		require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
		assert.Contains(t, err.Error(), "no evidence uploaded")
	})

	t.Run("refused when every version was rejected", func(t *testing.T) {
		f := newGateFixture(t)
		ev := f.upload(t)
		_, err := f.gate.Review(f.ctx, ev.ID, evidence.ReviewInput{
			Decision:        evidence.DecisionReject,
			RejectionReason: "illegible",
		}, f.reviewer)
		require.NoError(t, err)

		_, err = f.gate.SubmitForReview(f.ctx, f.obs.ID, f.owner)

		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	t.Run("pending evidence moves the observation to evidence submitted", func(t *testing.T) {
		f := newGateFixture(t)
		f.upload(t)

		obs, err := f.gate.SubmitForReview(f.ctx, f.obs.ID, f.owner)
		require.NoError(t, err)

		assert.Equal(t, models.ObservationEvidenceSubmitted, obs.Status)
	})
}

func TestService_ApproveAndClose(t *testing.T) {
	submit := func(t *testing.T, f *gateFixture) {
		t.Helper()
		_, err := f.gate.SubmitForReview(f.ctx, f.obs.ID, f.owner)
		require.NoError(t, err)
		_, err = f.workflow.Transition(f.ctx, f.obs.ID, models.ObservationUnderReview, f.reviewer, "")
		require.NoError(t, err)
	}

	t.Run("closes once all active evidence is approved", func(t *testing.T) {
		f := newGateFixture(t)
		ev := f.upload(t)
		submit(t, f)
		_, err := f.gate.Review(f.ctx, ev.ID, evidence.ReviewInput{Decision: evidence.DecisionApprove}, f.reviewer)
		require.NoError(t, err)

		obs, err := f.gate.ApproveAndClose(f.ctx, f.obs.ID, f.reviewer)
		require.NoError(t, err)

		assert.Equal(t, models.ObservationClosed, obs.Status)
		require.NotNil(t, obs.ClosedAt)
	})

	t.Run("refused while a version is still pending", func(t *testing.T) {
		f := newGateFixture(t)
		f.upload(t)
		submit(t, f)

		_, err := f.gate.ApproveAndClose(f.ctx, f.obs.ID, f.reviewer)

		require.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
		assert.Contains(t, err.Error(), "unreviewed evidence remains")
	})

	t.Run("only observations under review can be closed through the gate", func(t *testing.T) {
		f := newGateFixture(t)
		f.upload(t)

		_, err := f.gate.ApproveAndClose(f.ctx, f.obs.ID, f.reviewer)

		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	t.Run("a superseded rejection does not block closing", func(t *testing.T) {
		f := newGateFixture(t)
		first := f.upload(t)
		_, err := f.gate.Review(f.ctx, first.ID, evidence.ReviewInput{
			Decision:        evidence.DecisionReject,
			RejectionReason: "wrong period",
		}, f.reviewer)
		require.NoError(t, err)
		second, err := f.gate.Supersede(f.ctx, first.ID, evidence.UploadInput{
			FileName: "v2.pdf",
			FileRef:  "s3://evidence/v2.pdf",
		}, f.owner)
		require.NoError(t, err)
		submit(t, f)
		_, err = f.gate.Review(f.ctx, second.ID, evidence.ReviewInput{Decision: evidence.DecisionApprove}, f.reviewer)
		require.NoError(t, err)

		obs, err := f.gate.ApproveAndClose(f.ctx, f.obs.ID, f.reviewer)
		require.NoError(t, err)
		assert.Equal(t, models.ObservationClosed, obs.Status)
	})
}
