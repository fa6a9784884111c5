package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentpilot-ai/contentpilot/internal/dispatch"
	"github.com/contentpilot-ai/contentpilot/internal/webhook"
)

type mockRunner struct {
	outcome *dispatch.Outcome
	err     error
	summary *dispatch.Summary
	calls   int
}

func (m *mockRunner) Dispatch(_ context.Context, scheduleID uuid.UUID, _ string) (*dispatch.Outcome, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := *m.outcome
	out.ScheduleID = scheduleID
	return &out, nil
}

func (m *mockRunner) RunDue(_ context.Context) (*dispatch.Summary, error) {
	return m.summary, m.err
}

const testSecret = "webhook-secret"

func signedDispatchRequest(t *testing.T, scheduleID uuid.UUID) *http.Request {
	t.Helper()
	body, err := json.Marshal(map[string]string{"schedule_id": scheduleID.String()})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/hooks/dispatch", bytes.NewReader(body))
	req.Header.Set(signatureHeader, webhook.NewSignatureVerifier(testSecret).Sign(body))
	return req
}

func newDispatchHandler(runner *mockRunner) *DispatchHandler {
	return NewDispatchHandler(runner, webhook.NewSignatureVerifier(testSecret), nil)
}

func TestDispatchHandler_Success(t *testing.T) {
	next := time.Now().Add(24 * time.Hour)
	msgID := "msg-123"
	runner := &mockRunner{outcome: &dispatch.Outcome{
		JobID:            "job-1",
		NextRun:          &next,
		NextMessageID:    &msgID,
		CreditsRemaining: 7,
	}}

	rec := httptest.NewRecorder()
	newDispatchHandler(runner).Dispatch(rec, signedDispatchRequest(t, uuid.New()))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			JobID            string `json:"job_id"`
			NextMessageID    string `json:"next_message_id"`
			CreditsRemaining int    `json:"credits_remaining"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "job-1", resp.Data.JobID)
	assert.Equal(t, "msg-123", resp.Data.NextMessageID)
	assert.Equal(t, 7, resp.Data.CreditsRemaining)
}

func TestDispatchHandler_BadSignatureHasNoSideEffects(t *testing.T) {
	runner := &mockRunner{outcome: &dispatch.Outcome{}}
	handler := newDispatchHandler(runner)

	body := []byte(fmt.Sprintf(`{"schedule_id":%q}`, uuid.New()))
	req := httptest.NewRequest(http.MethodPost, "/hooks/dispatch", bytes.NewReader(body))
	req.Header.Set(signatureHeader, "sha256=deadbeef")

	rec := httptest.NewRecorder()
	handler.Dispatch(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, runner.calls)
}

func TestDispatchHandler_MissingSignature(t *testing.T) {
	runner := &mockRunner{outcome: &dispatch.Outcome{}}

	req := httptest.NewRequest(http.MethodPost, "/hooks/dispatch", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	newDispatchHandler(runner).Dispatch(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, runner.calls)
}

func TestDispatchHandler_StaleTimestamp(t *testing.T) {
	runner := &mockRunner{outcome: &dispatch.Outcome{}}
	handler := newDispatchHandler(runner)

	body := []byte(fmt.Sprintf(`{"schedule_id":%q}`, uuid.New()))
	ts := fmt.Sprintf("%d", time.Now().Add(-time.Hour).Unix())
	signed := fmt.Sprintf("%s.%s", ts, body)

	req := httptest.NewRequest(http.MethodPost, "/hooks/dispatch", bytes.NewReader(body))
	req.Header.Set(signatureHeader, webhook.NewSignatureVerifier(testSecret).Sign([]byte(signed)))
	req.Header.Set(timestampHeader, ts)

	rec := httptest.NewRecorder()
	handler.Dispatch(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, runner.calls)
}

func TestDispatchHandler_CreditsExhausted(t *testing.T) {
	runner := &mockRunner{err: dispatch.ErrCreditsExhausted}

	rec := httptest.NewRecorder()
	newDispatchHandler(runner).Dispatch(rec, signedDispatchRequest(t, uuid.New()))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestDispatchHandler_ClaimLost(t *testing.T) {
	runner := &mockRunner{err: dispatch.ErrClaimLost}

	rec := httptest.NewRecorder()
	newDispatchHandler(runner).Dispatch(rec, signedDispatchRequest(t, uuid.New()))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDispatchHandler_Execute(t *testing.T) {
	runner := &mockRunner{summary: &dispatch.Summary{
		Executed:   2,
		Successful: 1,
		Failed:     1,
		Skipped:    1,
		Results: []dispatch.Result{
			{ScheduleID: uuid.New(), Success: true, JobID: "job-a"},
			{ScheduleID: uuid.New(), Error: "generation blew up"},
			{ScheduleID: uuid.New(), Skipped: true},
		},
	}}

	req := httptest.NewRequest(http.MethodGet, "/internal/cron/execute", nil)
	rec := httptest.NewRecorder()
	newDispatchHandler(runner).Execute(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Executed   int `json:"executed"`
			Successful int `json:"successful"`
			Failed     int `json:"failed"`
			Skipped    int `json:"skipped"`
			Results    []struct {
				Success bool   `json:"success"`
				Error   string `json:"error"`
			} `json:"results"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Executed)
	assert.Equal(t, 1, resp.Data.Successful)
	assert.Equal(t, 1, resp.Data.Failed)
	assert.Equal(t, 1, resp.Data.Skipped)
	assert.Len(t, resp.Data.Results, 3)
}
