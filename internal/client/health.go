package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"rollio/internal/model"
)

// ProbeStatus is the outcome of the most recent health probe.
type ProbeStatus string

const (
	ProbeChecking     ProbeStatus = "checking"
	ProbeConnected    ProbeStatus = "connected"
	ProbeDisconnected ProbeStatus = "disconnected"
)

const (
	probeInterval = 30 * time.Second
	probeTimeout  = 5 * time.Second
)

// HealthSnapshot is a point-in-time view of server reachability, combining
// the HTTP probe result with the live channel state when one is attached.
type HealthSnapshot struct {
	Status       ProbeStatus
	LastCheck    time.Time
	Err          error
	ActiveRooms  int
	TotalPlayers int
	Uptime       float64
	Environment  string
}

// HealthMonitor polls the server health endpoint on a fixed cadence and
// keeps the latest result for display. Retry triggers an immediate probe
// without disturbing the cadence.
type HealthMonitor struct {
	url      string
	client   *http.Client
	interval time.Duration

	mu       sync.Mutex
	snapshot HealthSnapshot
	chState  ChannelState
	hasChan  bool
	onChange func(HealthSnapshot)

	retry    chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewHealthMonitor builds a monitor for the given health URL. Call Start
// to begin probing.
func NewHealthMonitor(url string) *HealthMonitor {
	return &HealthMonitor{
		url:      url,
		client:   &http.Client{Timeout: probeTimeout},
		interval: probeInterval,
		snapshot: HealthSnapshot{Status: ProbeChecking},
		retry:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// OnChange registers a callback invoked after every probe and channel
// state change. Must be set before Start.
func (m *HealthMonitor) OnChange(fn func(HealthSnapshot)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Start probes immediately and then on the configured cadence until Stop.
func (m *HealthMonitor) Start() {
	go m.loop()
}

func (m *HealthMonitor) loop() {
	m.probe()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.probe()
		case <-m.retry:
			m.probe()
		}
	}
}

// Retry requests an out-of-schedule probe. It never blocks, and a retry
// already pending is not queued twice.
func (m *HealthMonitor) Retry() {
	select {
	case m.retry <- struct{}{}:
	default:
	}
}

// Stop halts the probe loop. Safe to call more than once.
func (m *HealthMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// Snapshot returns the latest merged health view.
func (m *HealthMonitor) Snapshot() HealthSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.merged()
}

// HandleMessage satisfies ChannelHandler so the monitor can share a
// channel with a RoomClient. Messages carry no health signal.
func (m *HealthMonitor) HandleMessage([]byte) {}

// HandleStateChange folds the live channel state into the health view:
// a broken channel reports disconnected even when probes still succeed.
func (m *HealthMonitor) HandleStateChange(state ChannelState, err error) {
	m.mu.Lock()
	m.chState = state
	m.hasChan = true
	if state == ChannelDisconnected && err != nil {
		m.snapshot.Err = err
	}
	snap := m.merged()
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

func (m *HealthMonitor) probe() {
	resp, err := m.client.Get(m.url)
	now := time.Now()
	if err != nil {
		m.record(HealthSnapshot{Status: ProbeDisconnected, LastCheck: now, Err: fmt.Errorf("health probe: %w", err)})
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		m.record(HealthSnapshot{Status: ProbeDisconnected, LastCheck: now, Err: fmt.Errorf("health probe: status %d", resp.StatusCode)})
		return
	}
	var info model.HealthInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		m.record(HealthSnapshot{Status: ProbeDisconnected, LastCheck: now, Err: fmt.Errorf("health probe: decode: %w", err)})
		return
	}
	m.record(HealthSnapshot{
		Status:       ProbeConnected,
		LastCheck:    now,
		ActiveRooms:  info.ActiveRooms,
		TotalPlayers: info.TotalPlayers,
		Uptime:       info.UptimeSeconds,
		Environment:  info.Environment,
	})
}

func (m *HealthMonitor) record(snap HealthSnapshot) {
	m.mu.Lock()
	m.snapshot = snap
	merged := m.merged()
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn(merged)
	}
}

// merged overlays the channel state on the probe result. Caller holds mu.
func (m *HealthMonitor) merged() HealthSnapshot {
	snap := m.snapshot
	if m.hasChan {
		switch m.chState {
		case ChannelDisconnected:
			snap.Status = ProbeDisconnected
		case ChannelConnecting:
			if snap.Status == ProbeConnected {
				snap.Status = ProbeChecking
			}
		}
	}
	return snap
}
