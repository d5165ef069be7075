package callback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/neighbor"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

type recorder struct {
	mu      sync.Mutex
	bodies  []NeighborResult
	headers []http.Header
	status  int
}

func (rec *recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	var body NeighborResult
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rec.bodies = append(rec.bodies, body)
	rec.headers = append(rec.headers, r.Header.Clone())
	if rec.status != 0 {
		w.WriteHeader(rec.status)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func TestReportNeighborResult(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	r := NewReporter(srv.URL, "secret", time.Second, zap.NewNop().Sugar())
	requester := wlan.MustParseBSSID("02:11:11:11:11:01")
	ctx := context.Background()

	require.NoError(t, r.ReportNeighborResult(ctx, neighbor.Result{
		Status:         neighbor.StatusSuccess,
		RequesterBSSID: requester,
		Entries:        []neighbor.Entry{{BSSID: wlan.MustParseBSSID("02:00:00:00:00:01"), Channel: 36, RoamScore: 73}},
	}))
	require.NoError(t, r.ReportNeighborResult(ctx, neighbor.Result{Status: neighbor.StatusFailure, RequesterBSSID: requester}))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.bodies, 2)
	assert.Equal(t, 1, rec.bodies[0].Sequence)
	assert.Equal(t, 2, rec.bodies[1].Sequence)
	assert.Equal(t, "rrm-engine", rec.bodies[0].Collector)
	assert.Equal(t, requester, rec.bodies[0].RequesterBSSID)
	assert.Equal(t, neighbor.StatusSuccess, rec.bodies[0].Status)
	require.Len(t, rec.bodies[0].Entries, 1)
	assert.Equal(t, 73, rec.bodies[0].Entries[0].RoamScore)
	assert.Equal(t, neighbor.StatusFailure, rec.bodies[1].Status)
	assert.Empty(t, rec.bodies[1].Entries)
	assert.Equal(t, "secret", rec.headers[0].Get("X-Internal-API-Key"))
	assert.Equal(t, 2, r.Delivered())
}

func TestReportNeighborResultErrorStatus(t *testing.T) {
	rec := &recorder{status: http.StatusServiceUnavailable}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	r := NewReporter(srv.URL, "", 0, zap.NewNop().Sugar())
	err := r.ReportNeighborResult(context.Background(), neighbor.Result{Status: neighbor.StatusFailure})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Zero(t, r.Delivered())
	assert.Empty(t, rec.headers[0].Get("X-Internal-API-Key"))
}

func TestReportNeighborResultUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := NewReporter(url, "", time.Second, zap.NewNop().Sugar())
	assert.Error(t, r.ReportNeighborResult(context.Background(), neighbor.Result{}))
}
