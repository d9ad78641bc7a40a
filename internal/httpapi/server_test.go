package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Recertify/server/internal/httpapi"
	"github.com/BrandonDHaskell/Recertify/server/internal/metrics"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/delivery"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/service"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/source"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/store/memory"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

var testNow = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

type countingSender struct {
	mu      sync.Mutex
	count   int
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (s *countingSender) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *countingSender) Name() string { return "counting" }

func (s *countingSender) Send(ctx context.Context, _ types.Notification) error {
	if s.gate != nil {
		s.once.Do(func() { close(s.entered) })
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	return nil
}

// newTestServer wires the full dependency graph over in-memory stores loaded
// with the sample data set.
func newTestServer(t *testing.T, sender delivery.Sender) *httptest.Server {
	t.Helper()
	return newTestServerWithTrigger(t, sender, service.TriggerConfig{})
}

func newTestServerWithTrigger(t *testing.T, sender delivery.Sender, trigCfg service.TriggerConfig) *httptest.Server {
	t.Helper()

	clock := func() time.Time { return testNow }
	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	st := memory.NewEntitlementStore()
	_, err := service.Ingest(context.Background(), st, source.Sample(), clock, logger)
	require.NoError(t, err)

	sel := service.NewDueReviewSelector(st, 0, clock, logger)
	disp := service.NewNotificationDispatcher(sender, "http://localhost:5000", logger, m)
	trig := service.NewReviewTrigger(sel, disp, trigCfg, clock, logger, m)

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:             logger,
		Addr:               ":0",
		RateLimitPerMinute: 1000,
		Queries:            service.NewQueryService(st, 0, clock),
		Certifications:     service.NewCertificationService(st, memory.NewCertificationEventStore(), clock, logger, m),
		Trigger:            trig,
		Metrics:            promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func postJSON(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

// ── Queries ──────────────────────────────────────────────────────────────────

func TestReviewQueue_KnownReviewer(t *testing.T) {
	ts := newTestServer(t, &countingSender{})

	var queue types.ReviewQueue
	resp := getJSON(t, ts.URL+"/v1/reviewers/M001/entitlements", &queue)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, queue.ReviewerName)
	assert.Equal(t, "Alex Manager", *queue.ReviewerName)
	assert.Len(t, queue.Items, 2)
}

func TestReviewQueue_UnknownReviewerHasNullName(t *testing.T) {
	ts := newTestServer(t, &countingSender{})

	var raw map[string]any
	resp := getJSON(t, ts.URL+"/v1/reviewers/M404/entitlements", &raw)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	name, present := raw["reviewer_name"]
	assert.True(t, present)
	assert.Nil(t, name)
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t, &countingSender{})

	var d types.Dashboard
	getJSON(t, ts.URL+"/v1/dashboard", &d)
	assert.Equal(t, types.Dashboard{Total: 10, HighRisk: 3, Pending: 10, Due: 2}, d)
}

func TestSummary(t *testing.T) {
	ts := newTestServer(t, &countingSender{})

	var sum types.Summary
	getJSON(t, ts.URL+"/v1/reports/summary", &sum)
	assert.Equal(t, 10, sum.ByStatus["Pending"])
	assert.Equal(t, 3, sum.ByRisk["High"])
	assert.Equal(t, 2, sum.BySystem["CRM"])
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, &countingSender{})
	resp := getJSON(t, ts.URL+"/healthz", nil)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

// ── Certification ────────────────────────────────────────────────────────────

func TestCertify_OK(t *testing.T) {
	ts := newTestServer(t, &countingSender{})

	resp, body := postJSON(t, ts.URL+"/v1/certifications",
		`{"access_id":5,"decision":"Approved","comments":"fine","reviewer_id":"M002"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out types.CertifyResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.True(t, out.OK)
	assert.Equal(t, types.StatusApproved, out.Entitlement.ReviewStatus)
	assert.True(t, out.Entitlement.NextReviewDate.Equal(testNow.AddDate(0, 0, 90)))
}

func TestCertify_UnknownID(t *testing.T) {
	ts := newTestServer(t, &countingSender{})
	resp, _ := postJSON(t, ts.URL+"/v1/certifications",
		`{"access_id":999,"decision":"Approved","reviewer_id":"M002"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCertify_BadRequests(t *testing.T) {
	ts := newTestServer(t, &countingSender{})
	for _, body := range []string{
		`not json`,
		`{"access_id":5,"decision":"Approved","reviewer_id":"M002","extra":1}`,
		`{"access_id":5,"reviewer_id":"M002"}`,
	} {
		resp, _ := postJSON(t, ts.URL+"/v1/certifications", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestCertify_Protobuf(t *testing.T) {
	ts := newTestServer(t, &countingSender{})

	in, err := structpb.NewStruct(map[string]any{
		"access_id":   4,
		"decision":    "Revoked",
		"reviewer_id": "M001",
	})
	require.NoError(t, err)
	payload, err := proto.Marshal(in)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/certifications", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Accept", "application/x-protobuf")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-protobuf", resp.Header.Get("Content-Type"))

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out structpb.Struct
	require.NoError(t, proto.Unmarshal(b, &out))
	assert.True(t, out.GetFields()["ok"].GetBoolValue())
	ent := out.GetFields()["entitlement"].GetStructValue().GetFields()
	assert.Equal(t, "Revoked", ent["review_status"].GetStringValue())
}

// ── Review runs ──────────────────────────────────────────────────────────────

func TestReviewRun_Accepted(t *testing.T) {
	sender := &countingSender{}
	ts := newTestServer(t, sender)

	resp, body := postJSON(t, ts.URL+"/v1/review-runs", ``)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, float64(2), out["due"])
	assert.Equal(t, float64(2), out["notified"])
	assert.Equal(t, 2, sender.Count())
}

func TestReviewRun_ConflictWhileRunning(t *testing.T) {
	sender := &countingSender{gate: make(chan struct{}), entered: make(chan struct{})}
	ts := newTestServer(t, sender)

	first := make(chan int, 1)
	go func() {
		resp, err := http.Post(ts.URL+"/v1/review-runs", "application/json", nil)
		if err != nil {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()

	select {
	case <-sender.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never reached the sender")
	}

	resp, body := postJSON(t, ts.URL+"/v1/review-runs", ``)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(body))

	close(sender.gate)
	assert.Equal(t, http.StatusAccepted, <-first)
}

type unreachableLock struct{}

func (unreachableLock) Acquire(context.Context) (func(), bool, error) {
	return nil, false, errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
}

func TestReviewRun_LockUnavailableIsServerError(t *testing.T) {
	sender := &countingSender{}
	ts := newTestServerWithTrigger(t, sender, service.TriggerConfig{Lock: unreachableLock{}})

	resp, body := postJSON(t, ts.URL+"/v1/review-runs", ``)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode, string(body))

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, false, out["skipped"])
	assert.Contains(t, out["error"], "acquire run lock")
	assert.Zero(t, sender.Count())
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, &countingSender{})
	postJSON(t, ts.URL+"/v1/review-runs", ``)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(b), "recertify_review_runs_total")
}
