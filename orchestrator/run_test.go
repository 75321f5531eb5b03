// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditlens/platform/connectors/base"
	"creditlens/platform/orchestrator/aggregate"
	"creditlens/platform/orchestrator/history"
	"creditlens/platform/orchestrator/tools"
)

// memDocs is an in-memory DocumentStore.
type memDocs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	healthy bool
}

func newMemDocs() *memDocs {
	return &memDocs{objects: map[string][]byte{}, types: map[string]string{}, healthy: true}
}

func (m *memDocs) Name() string { return "memory" }

func (m *memDocs) List(ctx context.Context, prefix string) ([]base.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []base.ObjectInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, base.ObjectInfo{Key: k, Size: int64(len(v)), LastModified: time.Now()})
		}
	}
	return out, nil
}

func (m *memDocs) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, base.NotFound("memory", "Get", key)
	}
	return data, nil
}

func (m *memDocs) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memDocs) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return &base.HealthStatus{Healthy: m.healthy}, nil
}

type fakePipeline struct {
	rec *history.RunRecord
	err error
}

func (f *fakePipeline) Execute(ctx context.Context) (*history.RunRecord, error) {
	return f.rec, f.err
}

type panickingPipeline struct{}

func (panickingPipeline) Execute(ctx context.Context) (*history.RunRecord, error) {
	panic("selector returned nil")
}

type fakeConversation struct {
	requirements []string
	calls        int
	rec          *history.RunRecord
	err          error
}

func (f *fakeConversation) Execute(ctx context.Context, requirements []string) (*history.RunRecord, error) {
	f.calls++
	f.requirements = requirements
	return f.rec, f.err
}

func (f *fakeConversation) ExecuteDirect(ctx context.Context) (*history.RunRecord, error) {
	f.calls++
	return f.rec, f.err
}

// echoRegistry registers adapters that report the summary they received.
func echoRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	var adapters []tools.Adapter
	for _, id := range tools.All() {
		id := id
		adapters = append(adapters, tools.Guard(id, func(ctx context.Context, summary string) (tools.ToolResult, error) {
			return tools.Complete(id, map[string]interface{}{"summary_seen": summary}, "", 0.8), nil
		}))
	}
	reg, err := tools.NewRegistry(adapters...)
	require.NoError(t, err)
	return reg
}

func fullRecord(strategy string) *history.RunRecord {
	result := &aggregate.Result{}
	for _, id := range tools.All() {
		r := tools.Complete(id, nil, id.AgentName(), 0.9)
		result.Set(id, &r)
	}
	return &history.RunRecord{
		ID:         "run-123",
		Strategy:   strategy,
		Status:     history.StatusSucceeded,
		Result:     result,
		DurationMs: 40,
	}
}

func newTestServer(t *testing.T) (*Server, *memDocs) {
	t.Helper()
	docs := newMemDocs()
	s := &Server{
		Pipeline:     &fakePipeline{rec: fullRecord(history.StrategyDeterministic)},
		Conversation: &fakeConversation{rec: fullRecord(history.StrategyConversational)},
		Registry:     echoRegistry(t),
		Documents:    docs,
		History:      history.NewMemoryStore(10),
		Metrics:      NewMetricsCollector(nil),
		Gatherer:     prometheus.NewRegistry(),
	}
	return s, docs
}

func do(t *testing.T, h http.Handler, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestSmartController(t *testing.T) {
	s, _ := newTestServer(t)
	rr := do(t, s.Router(), "POST", "/run-smart-controller", nil, nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "run-123", rr.Header().Get("X-Run-ID"))

	body := decode(t, rr)
	for _, id := range tools.All() {
		assert.Contains(t, body, id.Slot())
	}
	assert.Equal(t, int64(1), s.Metrics.GetMetrics().Strategies[history.StrategyDeterministic].Runs)
}

func TestSmartController_FatalError(t *testing.T) {
	s, _ := newTestServer(t)
	rec := fullRecord(history.StrategyDeterministic)
	rec.Status = history.StatusFailed
	rec.Result = nil
	s.Pipeline = &fakePipeline{rec: rec, err: errors.New("bureau agent failed: blob read error")}

	rr := do(t, s.Router(), "POST", "/run-smart-controller", nil, nil)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, map[string]interface{}{"error": "bureau agent failed: blob read error"}, decode(t, rr))
	assert.Equal(t, int64(1), s.Metrics.GetMetrics().FailedRuns)
}

func TestSmartController_PanicReturns500(t *testing.T) {
	s, _ := newTestServer(t)
	s.Pipeline = panickingPipeline{}

	rr := do(t, s.Router(), "POST", "/run-smart-controller", nil, nil)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, map[string]interface{}{"error": "internal error: selector returned nil"}, decode(t, rr))

	rr = do(t, s.Router(), "GET", "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestConversationalController(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantReqs []string
	}{
		{name: "empty body", body: "", wantCode: http.StatusOK},
		{name: "empty object", body: "{}", wantCode: http.StatusOK},
		{name: "requirements", body: `{"requirements": ["check AML exposure", "flag covenant breaches"]}`, wantCode: http.StatusOK,
			wantReqs: []string{"check AML exposure", "flag covenant breaches"}},
		{name: "invalid json", body: `{"requirements": `, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t)
			conv := s.Conversation.(*fakeConversation)

			rr := do(t, s.Router(), "POST", "/run-sk-smart-controller", []byte(tt.body), nil)

			require.Equal(t, tt.wantCode, rr.Code, rr.Body.String())
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, tt.wantReqs, conv.requirements)
				assert.Contains(t, decode(t, rr), "compliance_check")
			} else {
				assert.Zero(t, conv.calls)
			}
		})
	}
}

func TestCreditAnalysis_WrapsResult(t *testing.T) {
	s, _ := newTestServer(t)
	rr := do(t, s.Router(), "POST", "/run-sk-credit-analysis", nil, nil)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	analysis, ok := body["analysis"].(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, analysis, len(tools.All()))
}

func TestConversationRoutes_Unavailable(t *testing.T) {
	s, _ := newTestServer(t)
	s.Conversation = nil
	h := s.Router()

	for _, target := range []string{"/run-sk-smart-controller", "/run-sk-credit-analysis"} {
		rr := do(t, h, "POST", target, nil, nil)
		assert.Equal(t, http.StatusInternalServerError, rr.Code, target)
		assert.Contains(t, decode(t, rr), "error")
	}
}

func TestSingleToolRoutes(t *testing.T) {
	s, docs := newTestServer(t)
	require.NoError(t, docs.Put(context.Background(), "rag_summary.txt", []byte("  Revenue: 5,000,000 USD\n"), "text/plain"))
	h := s.Router()

	routes := map[string]tools.ToolID{
		"/run-fraud":          tools.Fraud,
		"/run-compliance":     tools.Compliance,
		"/run-explainability": tools.Explainability,
	}
	for target, id := range routes {
		rr := do(t, h, "POST", target, nil, nil)
		require.Equal(t, http.StatusOK, rr.Code, target)

		var result tools.ToolResult
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
		assert.Equal(t, id.AgentName(), result.AgentName)
		assert.Equal(t, "Revenue: 5,000,000 USD", result.ExtractedData["summary_seen"])

		runID := rr.Header().Get("X-Run-ID")
		rec, err := s.History.Get(context.Background(), runID)
		require.NoError(t, err)
		assert.Equal(t, history.StrategySingleTool, rec.Strategy)
		assert.NotNil(t, rec.Result.Get(id))
	}
	assert.Equal(t, int64(3), s.Metrics.GetMetrics().Strategies[history.StrategySingleTool].Runs)
}

func TestSingleToolRoutes_MissingSummary(t *testing.T) {
	s, _ := newTestServer(t)
	rr := do(t, s.Router(), "POST", "/run-fraud", nil, nil)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, decode(t, rr)["error"], "rag_summary.txt")

	runs, err := s.History.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, history.StatusFailed, runs[0].Status)
}

func TestCheckPreconditions(t *testing.T) {
	s, docs := newTestServer(t)
	ctx := context.Background()

	s.RequireSummary = false
	assert.NoError(t, s.CheckPreconditions(ctx))

	s.RequireSummary = true
	assert.Error(t, s.CheckPreconditions(ctx))

	require.NoError(t, docs.Put(ctx, "rag_summary.txt", []byte("summary"), "text/plain"))
	assert.NoError(t, s.CheckPreconditions(ctx))

	s.Documents = nil
	assert.Error(t, s.CheckPreconditions(ctx))
}

func TestRunLookup(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.History.Save(context.Background(), fullRecord(history.StrategyDirect)))
	h := s.Router()

	rr := do(t, h, "GET", "/api/v1/runs/run-123", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "run-123", body["run_id"])
	assert.Equal(t, history.StrategyDirect, body["strategy"])

	rr = do(t, h, "GET", "/api/v1/runs/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, "GET", "/api/v1/runs?limit=5", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["runs"], 1)

	rr = do(t, h, "GET", "/api/v1/runs?limit=zero", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func multipartBody(t *testing.T, field, filename string, content []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestUploadDocument(t *testing.T) {
	s, docs := newTestServer(t)
	s.DocumentPrefix = "uploads/"
	h := s.Router()

	body, contentType := multipartBody(t, "file", `C:\reports\financials_2024.txt`, []byte("Revenue: 100"))
	rr := do(t, h, "POST", "/api/v1/documents", body, map[string]string{"Content-Type": contentType})

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "uploads/financials_2024.txt", decode(t, rr)["key"])
	stored, err := docs.Get(context.Background(), "uploads/financials_2024.txt")
	require.NoError(t, err)
	assert.Equal(t, "Revenue: 100", string(stored))

	rr = do(t, h, "GET", "/api/v1/documents", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["documents"], 1)
}

func TestUploadDocument_Rejected(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()

	body, contentType := multipartBody(t, "file", "malware.exe", []byte("MZ"))
	rr := do(t, h, "POST", "/api/v1/documents", body, map[string]string{"Content-Type": contentType})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	body, contentType = multipartBody(t, "attachment", "report.docx", []byte("PK"))
	rr = do(t, h, "POST", "/api/v1/documents", body, map[string]string{"Content-Type": contentType})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, "POST", "/api/v1/documents", []byte("plain"), map[string]string{"Content-Type": "text/plain"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealthHandler(t *testing.T) {
	s, docs := newTestServer(t)
	s.Components = map[string]HealthCheck{
		"result_cache": func(context.Context) bool { return true },
	}
	h := s.Router()

	rr := do(t, h, "GET", "/health", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, serviceName, body["service"])
	components := body["components"].(map[string]interface{})
	assert.Equal(t, true, components["document_store"])
	assert.Equal(t, true, components["result_cache"])
	assert.Contains(t, body, "metrics")

	docs.healthy = false
	body = decode(t, do(t, h, "GET", "/health", nil, nil))
	assert.Equal(t, "degraded", body["status"])
}

func TestPrometheusEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	reg := prometheus.NewRegistry()
	s.Metrics = NewMetricsCollector(reg)
	s.Gatherer = reg
	h := s.Router()

	do(t, h, "POST", "/run-smart-controller", nil, nil)
	rr := do(t, h, "GET", "/prometheus", nil, nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `creditlens_runs_total{outcome="succeeded",strategy="deterministic"} 1`)
	assert.Contains(t, rr.Body.String(), `creditlens_tool_results_total{status="complete",tool="credit_scoring"} 1`)
}

func signedToken(t *testing.T, secret []byte, method jwt.SigningMethod) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.MapClaims{
		"sub": "analyst@example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestBearerAuth(t *testing.T) {
	s, _ := newTestServer(t)
	s.JWTSecret = []byte("test-secret")
	h := s.Router()

	rr := do(t, h, "POST", "/run-smart-controller", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, "POST", "/run-smart-controller", nil, map[string]string{"Authorization": "Bearer not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	wrongKey := signedToken(t, []byte("other-secret"), jwt.SigningMethodHS256)
	rr = do(t, h, "POST", "/run-smart-controller", nil, map[string]string{"Authorization": "Bearer " + wrongKey})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	valid := signedToken(t, s.JWTSecret, jwt.SigningMethodHS256)
	rr = do(t, h, "POST", "/run-smart-controller", nil, map[string]string{"Authorization": "Bearer " + valid})
	assert.Equal(t, http.StatusOK, rr.Code)

	// Health and metrics stay open.
	assert.Equal(t, http.StatusOK, do(t, h, "GET", "/health", nil, nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, "GET", "/prometheus", nil, nil).Code)
}

func TestSubjectFromContext(t *testing.T) {
	secret := []byte("test-secret")
	var subject string
	h := bearerAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, secret, jwt.SigningMethodHS512))
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "analyst@example.com", subject)
	assert.Empty(t, SubjectFromContext(context.Background()))
}
