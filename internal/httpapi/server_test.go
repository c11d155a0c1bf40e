package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperionlabs/mergebot/internal/aggregator"
)

func TestHandleHealthz_ReturnsOK(t *testing.T) {
	s := NewServer(Config{}, NewApprovalRegistry(), nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleMetrics_ReturnsSnapshot(t *testing.T) {
	snap := aggregator.Snapshot{Requests: 3, CacheHits: 1}
	s := NewServer(Config{}, NewApprovalRegistry(), nil, func() aggregator.Snapshot { return snap }, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got aggregator.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(3), got.Requests)
}

func TestHandleResolveApproval_DeliversToWaitingAwait(t *testing.T) {
	registry := NewApprovalRegistry()
	s := NewServer(Config{}, registry, nil, nil, nil)

	resolver := NewEngineResolver(registry)
	resultCh := make(chan bool, 1)
	go func() {
		approved, _, err := resolver.Await(t.Context(), 42, nil)
		require.NoError(t, err)
		resultCh <- approved
	}()

	time.Sleep(10 * time.Millisecond)

	body, _ := json.Marshal(ApprovalDecision{Approved: true, Reason: "looks good"})
	req := httptest.NewRequest(http.MethodPost, "/v1/approvals/42", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case approved := <-resultCh:
		assert.True(t, approved)
	case <-time.After(time.Second):
		t.Fatal("approval was never delivered")
	}
}

func TestJWTMiddleware_RejectsMissingToken(t *testing.T) {
	s := NewServer(Config{JWTSecret: "topsecret"}, NewApprovalRegistry(), nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
