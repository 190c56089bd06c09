package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/triage-ledger/internal/api/http/handlers"
	"github.com/spec-kit/triage-ledger/internal/lifecycle"
	"github.com/spec-kit/triage-ledger/internal/observability"
	"github.com/spec-kit/triage-ledger/internal/projection"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func stamp(minutes int) string {
	return t0.Add(time.Duration(minutes) * time.Minute).Format(time.RFC3339)
}

type fakeDep struct {
	enabled bool
	err     error
}

func (d fakeDep) Enabled() bool                { return d.enabled }
func (d fakeDep) Ping(_ context.Context) error { return d.err }

type testServer struct {
	app     *fiber.App
	metrics *observability.Metrics
}

func newTestServer(t *testing.T, deps map[string]handlers.Dependency) *testServer {
	t.Helper()
	clock := func() time.Time { return t0.Add(time.Hour) }
	metrics := observability.NewMetrics()
	ledger := lifecycle.NewCoordinator(lifecycle.CoordinatorDependencies{Metrics: metrics, Clock: clock})
	projector := projection.NewProjector(ledger, clock)
	app := NewApp(ServerDependencies{
		ServiceName: "triage-ledger-test",
		Metrics:     metrics,
		Routes: RouteConfig{
			Health:  handlers.NewHealthHandler("triage-ledger-test", "test", ledger, deps),
			Records: handlers.NewRecordsHandler(ledger, clock),
			Review:  handlers.NewReviewHandler(projector, 24*time.Hour),
			Metrics: handlers.NewMetricsHandler(metrics),
		},
	})
	return &testServer{app: app, metrics: metrics}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, envelope, *nethttp.Response) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return resp.StatusCode, env, resp
}

func ticketBody(id uuid.UUID) string {
	return fmt.Sprintf(`{"id":%q,"raw_text":"I was double charged","created_at":%q}`, id, stamp(0))
}

func proposalBody(id uuid.UUID, confidence float64) string {
	return fmt.Sprintf(`{"ticket_id":%q,"decision":"approve","confidence":%v,"reason_codes":["duplicate_charge"],"response_draft":"Refund issued.","created_at":%q}`,
		id, confidence, stamp(5))
}

func feedbackBody(id uuid.UUID, action string, confidence float64, extra string) string {
	return fmt.Sprintf(`{"ticket_id":%q,"action":%q,"confidence_at_time":%v,"created_at":%q%s}`,
		id, action, confidence, stamp(10), extra)
}

func TestLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	id := uuid.New()

	status, env, _ := s.do(t, nethttp.MethodPost, "/tickets", ticketBody(id))
	if status != nethttp.StatusCreated {
		t.Fatalf("create ticket: status %d %+v", status, env.Error)
	}
	var appended struct {
		Seq   uint64 `json:"seq"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(env.Data, &appended); err != nil {
		t.Fatal(err)
	}
	if appended.State != "INTAKE" {
		t.Errorf("state after ticket = %s, want INTAKE", appended.State)
	}

	status, env, _ = s.do(t, nethttp.MethodPost, "/proposals", proposalBody(id, 0.82))
	if status != nethttp.StatusCreated {
		t.Fatalf("create proposal: status %d %+v", status, env.Error)
	}
	_ = json.Unmarshal(env.Data, &appended)
	if appended.State != "PROPOSED" {
		t.Errorf("state after proposal = %s, want PROPOSED", appended.State)
	}

	status, env, _ = s.do(t, nethttp.MethodGet, "/review/pending", "")
	if status != nethttp.StatusOK {
		t.Fatalf("pending: status %d", status)
	}
	var pending []map[string]any
	_ = json.Unmarshal(env.Data, &pending)
	if len(pending) != 1 || pending[0]["ticket_id"] != id.String() {
		t.Errorf("pending = %v", pending)
	}

	status, env, _ = s.do(t, nethttp.MethodPost, "/feedback", feedbackBody(id, "rejected", 0.82, ""))
	if status != nethttp.StatusUnprocessableEntity || env.Error.Code != "VALIDATION_FAILED" {
		t.Fatalf("rejected without reason: status %d code %s", status, env.Error.Code)
	}
	if !strings.Contains(env.Error.Message, "rejection_reason") {
		t.Errorf("message %q does not name rejection_reason", env.Error.Message)
	}

	status, env, _ = s.do(t, nethttp.MethodPost, "/feedback", feedbackBody(id, "approved", 0.5, ""))
	if status != nethttp.StatusConflict || env.Error.Details["invariant"] != "confidence_match" {
		t.Fatalf("mismatched confidence: status %d %+v", status, env.Error)
	}

	status, env, _ = s.do(t, nethttp.MethodPost, "/feedback", feedbackBody(id, "approved", 0.82, ""))
	if status != nethttp.StatusCreated {
		t.Fatalf("approve: status %d %+v", status, env.Error)
	}
	_ = json.Unmarshal(env.Data, &appended)
	if appended.State != "RESOLVED" {
		t.Errorf("state after approval = %s, want RESOLVED", appended.State)
	}

	status, env, _ = s.do(t, nethttp.MethodGet, "/tickets/"+id.String()+"/history", "")
	if status != nethttp.StatusOK {
		t.Fatalf("history: status %d", status)
	}
	var history struct {
		State   string `json:"state"`
		Records []struct {
			Kind string `json:"kind"`
		} `json:"records"`
	}
	_ = json.Unmarshal(env.Data, &history)
	kinds := make([]string, 0, len(history.Records))
	for _, r := range history.Records {
		kinds = append(kinds, r.Kind)
	}
	if got := strings.Join(kinds, ","); got != "ticket,decision_proposal,human_feedback" {
		t.Errorf("history kinds = %s", got)
	}

	status, env, _ = s.do(t, nethttp.MethodGet, "/tickets/"+id.String()+"/proposals/latest", "")
	if status != nethttp.StatusOK || !strings.Contains(string(env.Data), `"disposition":"approved"`) {
		t.Errorf("latest proposal: status %d %s", status, env.Data)
	}

	status, env, _ = s.do(t, nethttp.MethodGet, "/stats/rejection-rate?window=24h", "")
	if status != nethttp.StatusOK {
		t.Fatalf("rejection rate: status %d %+v", status, env.Error)
	}
	var rate struct {
		Total    int     `json:"total"`
		Rejected int     `json:"rejected"`
		Rate     float64 `json:"rate"`
	}
	_ = json.Unmarshal(env.Data, &rate)
	if rate.Total != 1 || rate.Rejected != 0 || rate.Rate != 0 {
		t.Errorf("rate = %+v", rate)
	}

	status, env, _ = s.do(t, nethttp.MethodGet, "/stats/states", "")
	if status != nethttp.StatusOK || !strings.Contains(string(env.Data), `"RESOLVED":1`) {
		t.Errorf("states: status %d %s", status, env.Data)
	}

	snap := s.metrics.Snapshot()
	if snap.Appends["human_feedback|accepted"] != 1 || snap.Appends["human_feedback|confidence_match"] != 1 {
		t.Errorf("append metrics = %v", snap.Appends)
	}
}

func TestAppendToUnknownTicket(t *testing.T) {
	s := newTestServer(t, nil)
	status, env, _ := s.do(t, nethttp.MethodPost, "/proposals", proposalBody(uuid.New(), 0.4))
	if status != nethttp.StatusNotFound || env.Error.Code != "UNKNOWN_TICKET" {
		t.Errorf("status %d code %s", status, env.Error.Code)
	}
}

func TestTicketReads(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"malformed id", "/tickets/not-a-uuid/state", nethttp.StatusBadRequest, "BAD_REQUEST"},
		{"unknown ticket", "/tickets/" + uuid.NewString() + "/state", nethttp.StatusNotFound, "UNKNOWN_TICKET"},
		{"unknown export", "/tickets/" + uuid.NewString() + "/export", nethttp.StatusNotFound, "UNKNOWN_TICKET"},
		{"bad window", "/stats/rejection-rate?window=soon", nethttp.StatusBadRequest, "BAD_REQUEST"},
		{"negative window", "/stats/rejection-rate?window=-1h", nethttp.StatusBadRequest, "BAD_REQUEST"},
		{"no feedback", "/stats/rejection-rate", nethttp.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env, _ := s.do(t, nethttp.MethodGet, tt.path, "")
			if status != tt.status || env.Error.Code != tt.code {
				t.Errorf("status %d code %s, want %d %s", status, env.Error.Code, tt.status, tt.code)
			}
		})
	}
}

func TestExportFormats(t *testing.T) {
	s := newTestServer(t, nil)
	id := uuid.New()
	if status, env, _ := s.do(t, nethttp.MethodPost, "/tickets", ticketBody(id)); status != nethttp.StatusCreated {
		t.Fatalf("create ticket: %d %+v", status, env.Error)
	}

	_, _, resp := s.do(t, nethttp.MethodGet, "/tickets/"+id.String()+"/export?format=yaml", "")
	if resp.StatusCode != nethttp.StatusOK || resp.Header.Get("Content-Type") != "application/yaml" {
		t.Fatalf("yaml export: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "raw_text: I was double charged") {
		t.Errorf("yaml export body:\n%s", body)
	}

	_, _, resp = s.do(t, nethttp.MethodGet, "/tickets/"+id.String()+"/export?format=cbor&compress=zstd", "")
	if resp.StatusCode != nethttp.StatusOK || resp.Header.Get("Content-Type") != "application/zstd" {
		t.Errorf("zstd export: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	status, env, _ := s.do(t, nethttp.MethodGet, "/tickets/"+id.String()+"/export?format=xml", "")
	if status != nethttp.StatusBadRequest || env.Error.Code != "BAD_REQUEST" {
		t.Errorf("xml export: %d %s", status, env.Error.Code)
	}
}

func TestValidateDryRun(t *testing.T) {
	s := newTestServer(t, nil)
	id := uuid.New()

	status, env, _ := s.do(t, nethttp.MethodPost, "/validate/feedback",
		feedbackBody(id, "approved", 0.7, `,"rejection_reason":"nope"`))
	if status != nethttp.StatusOK {
		t.Fatalf("status %d", status)
	}
	var result struct {
		Valid      bool `json:"valid"`
		Violations []struct {
			Field string `json:"field"`
		} `json:"violations"`
	}
	_ = json.Unmarshal(env.Data, &result)
	if result.Valid || len(result.Violations) != 1 || result.Violations[0].Field != "rejection_reason" {
		t.Errorf("result = %+v", result)
	}

	status, env, _ = s.do(t, nethttp.MethodPost, "/validate/ticket", ticketBody(id))
	_ = json.Unmarshal(env.Data, &result)
	if status != nethttp.StatusOK || !result.Valid {
		t.Errorf("valid ticket: %d %+v", status, result)
	}
	if _, env, _ := s.do(t, nethttp.MethodGet, "/tickets/"+id.String()+"/state", ""); env.Error.Code != "UNKNOWN_TICKET" {
		t.Errorf("dry run appended the ticket")
	}

	status, env, _ = s.do(t, nethttp.MethodPost, "/validate/invoice", "{}")
	if status != nethttp.StatusBadRequest {
		t.Errorf("unknown kind: %d %+v", status, env.Error)
	}
}

func TestReadiness(t *testing.T) {
	ok := newTestServer(t, map[string]handlers.Dependency{
		"postgres": fakeDep{enabled: false},
		"redis":    fakeDep{enabled: true},
	})
	if status, _, _ := ok.do(t, nethttp.MethodGet, "/health/ready", ""); status != nethttp.StatusOK {
		t.Errorf("ready with disabled postgres: %d", status)
	}

	down := newTestServer(t, map[string]handlers.Dependency{
		"redis": fakeDep{enabled: true, err: errors.New("connection refused")},
	})
	status, env, _ := down.do(t, nethttp.MethodGet, "/health/ready", "")
	if status != nethttp.StatusServiceUnavailable || env.Error.Details["redis"] != "connection refused" {
		t.Errorf("ready with redis down: %d %+v", status, env.Error)
	}

	if status, _, _ := ok.do(t, nethttp.MethodGet, "/health/live", ""); status != nethttp.StatusOK {
		t.Errorf("live: %d", status)
	}
}
