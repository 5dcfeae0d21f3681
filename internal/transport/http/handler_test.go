package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remedia/internal/directory"
	"remedia/internal/evidence"
	evidencemem "remedia/internal/evidence/store/memory"
	"remedia/internal/sla"
	slamem "remedia/internal/sla/store"
	"remedia/internal/sweeper"
	"remedia/internal/trail"
	trailmem "remedia/internal/trail/store/memory"
	"remedia/internal/workflow/service"
	"remedia/internal/workflow/store/memory"
	id "remedia/pkg/domain"
)

type apiFixture struct {
	server *httptest.Server
	actor  id.UserID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	obsStore := memory.NewObservationStore()
	auditStore := memory.NewAuditStore()
	ruleStore := slamem.NewMemoryStore()
	recorder := trail.NewRecorder(trailmem.New())
	dir := directory.AllowAll{}

	observations, err := service.NewObservationService(obsStore, auditStore, ruleStore, dir,
		service.WithHistory(recorder))
	require.NoError(t, err)
	audits, err := service.NewAuditService(auditStore, obsStore, dir)
	require.NoError(t, err)
	gate, err := evidence.NewService(evidencemem.NewStore(), observations)
	require.NoError(t, err)
	rules := sla.NewService(ruleStore)
	sweep, err := sweeper.New(obsStore, sweeper.WithHistory(recorder))
	require.NoError(t, err)

	handler := New(observations, audits, gate, rules, recorder, sweep, nil)
	server := httptest.NewServer(NewRouter(handler, nil))
	t.Cleanup(server.Close)

	return &apiFixture{server: server, actor: id.NewUserID()}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, withActor bool) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, f.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if withActor {
		req.Header.Set("X-Actor-ID", f.actor.String())
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (f *apiFixture) createAudit(t *testing.T, number string) map[string]any {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/audits", map[string]any{
		"number":          number,
		"type":            "INTERNAL",
		"title":           "Annual audit",
		"period_start":    time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		"period_end":      time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		"lead_auditor_id": f.actor.String(),
	}, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[map[string]any](t, resp)
}

func (f *apiFixture) createObservation(t *testing.T, auditID string) map[string]any {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/observations", map[string]any{
		"audit_id":    auditID,
		"title":       "Access reviews not performed",
		"risk_rating": "HIGH",
		"owner_id":    f.actor.String(),
	}, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[map[string]any](t, resp)
}

func TestAPI_ObservationLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	audit := f.createAudit(t, "AUD-2024-001")
	obs := f.createObservation(t, audit["id"].(string))

	assert.Equal(t, "OPEN", obs["status"])
	assert.Equal(t, "AUD-2024-001-OBS-0001", obs["label"])
	assert.Equal(t, float64(30), obs["sla_days"])

	obsPath := "/observations/" + obs["id"].(string)

	resp := f.do(t, http.MethodPost, obsPath+"/transition", map[string]any{"target": "IN_PROGRESS"}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	moved := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "IN_PROGRESS", moved["status"])
	assert.Equal(t, "OPEN", *stringPtr(moved["previous_status"]))

	// illegal jump straight to UNDER_REVIEW
	resp = f.do(t, http.MethodPost, obsPath+"/transition", map[string]any{"target": "UNDER_REVIEW"}, true)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// history carries the creation entry and the transition
	resp = f.do(t, http.MethodGet, obsPath+"/history", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decodeBody[[]map[string]any](t, resp)
	require.Len(t, history, 2)
	assert.Equal(t, "OPEN", history[0]["to_status"])
	assert.Equal(t, "IN_PROGRESS", history[1]["to_status"])
}

func stringPtr(v any) *string {
	if v == nil {
		return nil
	}
	s := fmt.Sprint(v)
	return &s
}

func TestAPI_EvidenceGate(t *testing.T) {
	f := newAPIFixture(t)
	audit := f.createAudit(t, "AUD-2024-002")
	obs := f.createObservation(t, audit["id"].(string))
	obsPath := "/observations/" + obs["id"].(string)

	resp := f.do(t, http.MethodPost, obsPath+"/transition", map[string]any{"target": "IN_PROGRESS"}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// submitting without evidence fails the gate
	resp = f.do(t, http.MethodPost, obsPath+"/submit-for-review", nil, true)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = f.do(t, http.MethodPost, obsPath+"/evidence", map[string]any{
		"file_name": "policy.pdf",
		"file_ref":  "s3://evidence/policy.pdf",
	}, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ev := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "PENDING_REVIEW", ev["status"])

	resp = f.do(t, http.MethodPost, obsPath+"/submit-for-review", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, obsPath+"/transition", map[string]any{"target": "UNDER_REVIEW"}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// closing is refused while the evidence is pending
	resp = f.do(t, http.MethodPost, obsPath+"/approve-and-close", nil, true)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/evidence/"+ev["id"].(string)+"/review", map[string]any{
		"decision": "APPROVE",
	}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, obsPath+"/approve-and-close", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	closed := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "CLOSED", closed["status"])
}

func TestAPI_ActorRequired(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/audits", map[string]any{"number": "AUD-2024-003"}, false)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// malformed actor headers never reach the handler
	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/audits", bytes.NewBufferString("{}"))
	require.NoError(t, err)
	req.Header.Set("X-Actor-ID", "not-a-uuid")
	raw, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestAPI_Rules(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/sla/rules", map[string]any{
		"risk_rating": "CRITICAL",
		"base_days":   7,
		"priority":    10,
	}, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rule := decodeBody[map[string]any](t, resp)
	assert.Equal(t, true, rule["is_active"])

	// new observations pick up the rule
	audit := f.createAudit(t, "AUD-2024-004")
	resp = f.do(t, http.MethodPost, "/observations", map[string]any{
		"audit_id":    audit["id"].(string),
		"title":       "Critical finding",
		"risk_rating": "CRITICAL",
		"owner_id":    f.actor.String(),
	}, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	obs := decodeBody[map[string]any](t, resp)
	assert.Equal(t, float64(7), obs["sla_days"])

	resp = f.do(t, http.MethodDelete, "/sla/rules/"+rule["id"].(string), nil, true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAPI_Health(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/healthz", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestAPI_ValidationErrors(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/observations?status=NONSENSE", nil, false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/observations/not-a-uuid", nil, false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
