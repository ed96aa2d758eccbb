package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quintal-io/responder/internal/domain"
	"github.com/quintal-io/responder/internal/history/memstore"
	"github.com/quintal-io/responder/internal/monitor"
)

type fakeSnapshotter struct {
	snap monitor.Snapshot
}

func (f *fakeSnapshotter) Snapshot(context.Context) monitor.Snapshot { return f.snap }

type fakeAcker struct {
	known map[string]bool
}

func (f *fakeAcker) Acknowledge(id string) bool { return f.known[id] }

func testRouter(t *testing.T, snap monitor.Snapshot) (*chi.Mux, *memstore.Store, *fakeAcker) {
	t.Helper()

	store := memstore.New()
	acker := &fakeAcker{known: map[string]bool{"alert-1": true}}
	h := NewHandler(&fakeSnapshotter{snap: snap}, store, acker)
	h.streamInterval = 10 * time.Millisecond

	r := chi.NewRouter()
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Get("/version", h.Versionz)
	r.Route("/api/v1", func(r chi.Router) {
		h.RegisterRoutes(r)
		h.RegisterProtectedRoutes(r)
	})
	return r, store, acker
}

func seedIncident(t *testing.T, store *memstore.Store, id string, status domain.Status, detected time.Time) {
	t.Helper()
	require.NoError(t, store.SaveIncident(context.Background(), &domain.Incident{
		ID:         id,
		Type:       domain.TypeIntrusion,
		Severity:   domain.SeverityHigh,
		DetectedAt: detected,
		Phase:      domain.PhaseDetection,
		Status:     status,
	}))
}

func TestDashboard(t *testing.T) {
	snap := monitor.Snapshot{
		Status:          "operational",
		Readiness:       monitor.ReadinessOptimal,
		ActiveIncidents: 2,
	}
	r, _, _ := testRouter(t, snap)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data monitor.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "operational", body.Data.Status)
	assert.Equal(t, 2, body.Data.ActiveIncidents)
}

func TestListIncidents(t *testing.T) {
	r, store, _ := testRouter(t, monitor.Snapshot{})
	base := time.Now()
	seedIncident(t, store, "a", domain.StatusActive, base.Add(-time.Hour))
	seedIncident(t, store, "b", domain.StatusResolved, base)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/incidents", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []domain.Incident `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "b", body.Data[0].ID)
}

func TestListIncidentsStatusFilter(t *testing.T) {
	r, store, _ := testRouter(t, monitor.Snapshot{})
	seedIncident(t, store, "a", domain.StatusActive, time.Now())
	seedIncident(t, store, "b", domain.StatusResolved, time.Now())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/incidents?status=resolved", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []domain.Incident `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "b", body.Data[0].ID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/incidents?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/incidents?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetIncident(t *testing.T) {
	r, store, _ := testRouter(t, monitor.Snapshot{})
	seedIncident(t, store, "a", domain.StatusActive, time.Now())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/incidents/a", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/incidents/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAckAlert(t *testing.T) {
	r, _, _ := testRouter(t, monitor.Snapshot{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/alerts/alert-1/ack", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"acknowledged":true`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/alerts/unknown/ack", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAckAlertValidatesBody(t *testing.T) {
	r, _, _ := testRouter(t, monitor.Snapshot{})

	body := strings.NewReader(`{"by":"ops-oncall","note":"paged the db team"}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/alerts/alert-1/ack", body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"acknowledged":true`)

	long := strings.NewReader(`{"note":"` + strings.Repeat("x", 513) + `"}`)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/alerts/alert-1/ack", long))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Note")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/alerts/alert-1/ack", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadyz(t *testing.T) {
	r, _, _ := testRouter(t, monitor.Snapshot{Readiness: monitor.ReadinessHigh})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	limited, _, _ := testRouter(t, monitor.Snapshot{Readiness: monitor.ReadinessLimited})
	rec = httptest.NewRecorder()
	limited.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStreamPushesSnapshots(t *testing.T) {
	r, _, _ := testRouter(t, monitor.Snapshot{Status: "operational", Readiness: monitor.ReadinessOptimal})
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	defer func() { _ = conn.Close() }()

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var snap monitor.Snapshot
		require.NoError(t, conn.ReadJSON(&snap))
		assert.Equal(t, "operational", snap.Status)
	}
}
