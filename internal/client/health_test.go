package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollio/internal/model"
)

func healthServer(t *testing.T, info model.HealthInfo) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(info)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProbeSuccess(t *testing.T) {
	srv := healthServer(t, model.HealthInfo{
		Status:        "ok",
		Environment:   "test",
		ActiveRooms:   3,
		TotalPlayers:  7,
		UptimeSeconds: 42,
	})

	m := NewHealthMonitor(srv.URL)
	m.probe()

	snap := m.Snapshot()
	assert.Equal(t, ProbeConnected, snap.Status)
	assert.Equal(t, 3, snap.ActiveRooms)
	assert.Equal(t, 7, snap.TotalPlayers)
	assert.Equal(t, "test", snap.Environment)
	assert.InDelta(t, 42, snap.Uptime, 1e-9)
	assert.NoError(t, snap.Err)
	assert.WithinDuration(t, time.Now(), snap.LastCheck, time.Second)
}

func TestProbeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	m := NewHealthMonitor(srv.URL)
	m.client.Timeout = 20 * time.Millisecond
	m.probe()

	snap := m.Snapshot()
	assert.Equal(t, ProbeDisconnected, snap.Status)
	assert.Error(t, snap.Err)
}

func TestProbeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	m := NewHealthMonitor(srv.URL)
	m.probe()

	snap := m.Snapshot()
	assert.Equal(t, ProbeDisconnected, snap.Status)
	assert.ErrorContains(t, snap.Err, "503")
}

func TestProbeRecovers(t *testing.T) {
	m := NewHealthMonitor("http://127.0.0.1:1/health")
	m.client.Timeout = 50 * time.Millisecond
	m.probe()
	require.Equal(t, ProbeDisconnected, m.Snapshot().Status)

	failedAt := m.Snapshot().LastCheck

	srv := healthServer(t, model.HealthInfo{Status: "ok"})
	m.url = srv.URL
	m.probe()

	snap := m.Snapshot()
	assert.Equal(t, ProbeConnected, snap.Status)
	assert.NoError(t, snap.Err)
	assert.False(t, snap.LastCheck.Before(failedAt))
}

func TestRetryTriggersImmediateProbe(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		json.NewEncoder(w).Encode(model.HealthInfo{Status: "ok"})
	}))
	t.Cleanup(srv.Close)

	m := NewHealthMonitor(srv.URL)
	m.interval = time.Hour // cadence never fires during the test
	m.Start()
	t.Cleanup(m.Stop)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&hits) == 1
	}, time.Second, 10*time.Millisecond)

	m.Retry()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&hits) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestChannelStateOverridesProbe(t *testing.T) {
	srv := healthServer(t, model.HealthInfo{Status: "ok"})
	m := NewHealthMonitor(srv.URL)
	m.probe()
	require.Equal(t, ProbeConnected, m.Snapshot().Status)

	m.HandleStateChange(ChannelDisconnected, model.ErrTransport)
	assert.Equal(t, ProbeDisconnected, m.Snapshot().Status)

	m.HandleStateChange(ChannelConnected, nil)
	assert.Equal(t, ProbeConnected, m.Snapshot().Status)
}

func TestOnChangeCallback(t *testing.T) {
	srv := healthServer(t, model.HealthInfo{Status: "ok", ActiveRooms: 1})
	m := NewHealthMonitor(srv.URL)

	var got []HealthSnapshot
	m.OnChange(func(snap HealthSnapshot) { got = append(got, snap) })

	m.probe()
	require.Len(t, got, 1)
	assert.Equal(t, ProbeConnected, got[0].Status)
	assert.Equal(t, 1, got[0].ActiveRooms)
}

func TestStopIsIdempotent(t *testing.T) {
	m := NewHealthMonitor("http://127.0.0.1:1/health")
	m.client.Timeout = 20 * time.Millisecond
	m.Start()
	m.Stop()
	m.Stop()
}
