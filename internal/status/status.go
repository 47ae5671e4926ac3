// Package status provides a thread-safe status tracker for the gpio-keys daemon.
// It counts reported events as an input sink and is read by HTTP handlers and
// the MQTT heartbeat.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/gpio-keys/internal/input"
	"github.com/sweeney/gpio-keys/internal/keys"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Instance    string
	Chip        string
	Backend     string
	Resume      string
	Autorepeat  bool
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
}

// Source is the driver state read on every snapshot.
type Source interface {
	Power() keys.PowerState
	Lines() []keys.LineStatus
	Holds() int
	MayWake() bool
}

// CodeCount is the number of presses and releases reported for one code.
type CodeCount struct {
	Type    input.Type
	Code    uint16
	Label   string
	Press   int
	Release int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Power         keys.PowerState
	Lines         []keys.LineStatus
	Holds         int
	MayWake       bool
	Counts        []CodeCount
	LastEvent     *input.Event
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

type codeKey struct {
	t    input.Type
	code uint16
}

// Tracker holds mutable daemon state behind an RWMutex. It implements
// input.Sink so it can sit next to the other sinks.
type Tracker struct {
	mu     sync.RWMutex
	snap   Snapshot
	source Source
	counts map[codeKey]*CodeCount
	now    func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		counts: make(map[codeKey]*CodeCount),
		now:    time.Now,
	}
}

// SetSource attaches the driver whose lines and power state are reported.
func (t *Tracker) SetSource(src Source) {
	t.mu.Lock()
	t.source = src
	t.mu.Unlock()
}

// Emit counts ev as a press (non-zero value) or a release.
func (t *Tracker) Emit(ev input.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := codeKey{ev.Type, ev.Code}
	c, ok := t.counts[k]
	if !ok {
		c = &CodeCount{Type: ev.Type, Code: ev.Code}
		t.counts[k] = c
	}
	if ev.Label != "" {
		c.Label = ev.Label
	}
	if ev.Value != 0 {
		c.Press++
	} else {
		c.Release++
	}
	last := ev
	t.snap.LastEvent = &last
	return nil
}

// Sync is a no-op; events are counted individually.
func (t *Tracker) Sync() error { return nil }

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	src := t.source
	s.Counts = make([]CodeCount, 0, len(t.counts))
	for _, c := range t.counts {
		s.Counts = append(s.Counts, *c)
	}
	t.mu.RUnlock()

	sort.Slice(s.Counts, func(i, j int) bool {
		if s.Counts[i].Type != s.Counts[j].Type {
			return s.Counts[i].Type < s.Counts[j].Type
		}
		return s.Counts[i].Code < s.Counts[j].Code
	})
	if src != nil {
		s.Power = src.Power()
		s.Lines = src.Lines()
		s.Holds = src.Holds()
		s.MayWake = src.MayWake()
	}
	s.Now = t.now()
	return s
}
