package internal

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/gpio-keys/internal/clock"
	"github.com/sweeney/gpio-keys/internal/codeset"
	"github.com/sweeney/gpio-keys/internal/gpio"
	"github.com/sweeney/gpio-keys/internal/input"
	"github.com/sweeney/gpio-keys/internal/keys"
	"github.com/sweeney/gpio-keys/internal/mqtt"
	"github.com/sweeney/gpio-keys/internal/status"
	"github.com/sweeney/gpio-keys/internal/web"
)

// stack wires the daemon's components together over fakes: the driver on a
// fake chip, an MQTT sink on a fake publisher, the status tracker and the
// HTTP control server.
type stack struct {
	chip    *gpio.FakeChip
	clk     *clock.Fake
	pub     *mqtt.FakePublisher
	sink    *mqtt.Sink
	tracker *status.Tracker
	driver  *keys.Driver
	client  *web.Client

	mu    sync.Mutex
	power []string
}

func newStack(t *testing.T, strategy keys.ResumeStrategy) *stack {
	t.Helper()
	s := &stack{
		chip: gpio.NewFakeChip(),
		clk:  clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)),
		pub:  mqtt.NewFakePublisher(),
	}
	s.sink = mqtt.NewSink(s.pub, "panel", 0)
	s.tracker = status.NewTracker(s.clk.Now(), status.Config{Instance: "panel", Chip: "gpiochip0"})

	descs := []keys.Descriptor{
		{Label: "power", Type: input.TypeKey, Code: 116, Offset: 1, Debounce: 5 * time.Millisecond, Wakeup: true},
		{Label: "vol-up", Type: input.TypeKey, Code: 115, Offset: 2, Debounce: 5 * time.Millisecond, CanDisable: true},
		{Label: "lid", Type: input.TypeSwitch, Code: 0, Offset: 3, Debounce: 20 * time.Millisecond, CanDisable: true},
		{Label: "doorbell", Type: input.TypeKey, Code: 0x101, Offset: 4, Sensing: keys.SensingPulse, CanDisable: true},
	}
	d, err := keys.New(descs, keys.Options{
		Name:     "panel",
		Chip:     s.chip,
		Sink:     input.Multi{s.sink, s.tracker},
		Clock:    s.clk,
		Strategy: strategy,
	})
	if err != nil {
		t.Fatalf("keys.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	s.driver = d
	s.tracker.SetSource(d)

	srv := web.New(s.tracker, d, web.Options{
		Version: "test",
		OnPower: func(event string, woken []string) {
			s.mu.Lock()
			s.power = append(s.power, event)
			s.mu.Unlock()
		},
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Shutdown() })
	s.client = web.NewClient("http://" + ln.Addr().String())
	return s
}

func (s *stack) set(offset int, level bool) {
	s.chip.SetLevel(offset, level)
	s.driver.Flush()
}

func (s *stack) advance(d time.Duration) {
	s.clk.Advance(d)
	s.driver.Flush()
}

func (s *stack) press(offset int, debounce time.Duration) {
	s.set(offset, true)
	s.advance(debounce)
	s.set(offset, false)
	s.advance(debounce)
}

func decodeGroup(t *testing.T, payload []byte) mqtt.KeysPayload {
	t.Helper()
	var p mqtt.Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		t.Fatalf("invalid payload %s: %v", payload, err)
	}
	return p.Keys
}

func (s *stack) status(t *testing.T) status.StatusInner {
	t.Helper()
	body, err := s.client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	var sj status.StatusJSON
	if err := json.Unmarshal(body, &sj); err != nil {
		t.Fatalf("invalid status %s: %v", body, err)
	}
	return sj.Status
}

// TestIntegrationFullFlow follows key presses from the GPIO line to MQTT and
// the status page.
func TestIntegrationFullFlow(t *testing.T) {
	s := newStack(t, keys.ResumeDevice)
	if err := s.driver.OpenConsumer(); err != nil {
		t.Fatalf("OpenConsumer: %v", err)
	}

	s.press(2, 5*time.Millisecond)
	s.set(3, true)
	s.advance(20 * time.Millisecond)

	groups := s.pub.PublishedGroups()
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	want := []struct {
		label string
		value int32
	}{{"vol-up", 1}, {"vol-up", 0}, {"lid", 1}}
	for i, w := range want {
		p := decodeGroup(t, s.pub.Payloads[i])
		if p.Instance != "panel" || len(p.Events) != 1 {
			t.Fatalf("group %d: got %+v", i, p)
		}
		if p.Events[0].Label != w.label || p.Events[0].Value != w.value {
			t.Errorf("group %d: got %+v, want %s=%d", i, p.Events[0], w.label, w.value)
		}
	}
	if p := decodeGroup(t, s.pub.Payloads[2]); p.Events[0].Type != "switch" {
		t.Errorf("lid type: got %q", p.Events[0].Type)
	}

	st := s.status(t)
	if st.Power != "active" {
		t.Errorf("power: got %q", st.Power)
	}
	if len(st.Counts) != 2 {
		t.Fatalf("counts: got %+v", st.Counts)
	}
	if c := st.Counts[0]; c.Type != "key" || c.Code != 115 || c.Press != 1 || c.Release != 1 {
		t.Errorf("key count: got %+v", c)
	}
	if c := st.Counts[1]; c.Type != "switch" || c.Press != 1 || c.Release != 0 {
		t.Errorf("switch count: got %+v", c)
	}
	if st.LastEvent == nil || st.LastEvent.Label != "lid" {
		t.Errorf("last event: got %+v", st.LastEvent)
	}
}

func TestIntegrationBounceRejection(t *testing.T) {
	s := newStack(t, keys.ResumeDevice)
	s.driver.OpenConsumer()

	s.set(2, true)
	s.advance(time.Millisecond)
	s.set(2, false)
	s.advance(time.Millisecond)
	s.set(2, true)
	s.advance(time.Millisecond)
	s.set(2, false)
	s.advance(10 * time.Millisecond)

	if n := len(s.pub.PublishedGroups()); n != 0 {
		t.Errorf("bounces should not be reported, got %d groups", n)
	}
}

func TestIntegrationPulseGroupIsOneMessage(t *testing.T) {
	s := newStack(t, keys.ResumeDevice)
	s.driver.OpenConsumer()

	s.chip.Trigger(4)
	s.driver.Flush()

	if len(s.pub.Payloads) != 1 {
		t.Fatalf("expected one message, got %d", len(s.pub.Payloads))
	}
	p := decodeGroup(t, s.pub.Payloads[0])
	if len(p.Events) != 2 || p.Events[0].Value != 1 || p.Events[1].Value != 0 {
		t.Errorf("pulse group: got %+v", p.Events)
	}
	if p.Events[0].Code != 0x101 || p.Events[0].Label != "doorbell" {
		t.Errorf("pulse event: got %+v", p.Events[0])
	}
}

func TestIntegrationGroupsHeldUntilConsumerOpens(t *testing.T) {
	s := newStack(t, keys.ResumeDevice)

	s.press(2, 5*time.Millisecond)
	if n := len(s.pub.PublishedGroups()); n != 0 {
		t.Fatalf("nothing should be published before the consumer opens, got %d", n)
	}
	if s.sink.Held() != 2 {
		t.Fatalf("held groups: got %d, want 2", s.sink.Held())
	}

	if err := s.driver.OpenConsumer(); err != nil {
		t.Fatalf("OpenConsumer: %v", err)
	}
	groups := s.pub.PublishedGroups()
	if len(groups) != 2 || groups[0].Events[0].Value != 1 || groups[1].Events[0].Value != 0 {
		t.Errorf("held groups should be published in order, got %+v", groups)
	}
	if s.sink.Held() != 0 {
		t.Errorf("held after open: %d", s.sink.Held())
	}
}

func TestIntegrationDisableOverHTTP(t *testing.T) {
	s := newStack(t, keys.ResumeDevice)
	s.driver.OpenConsumer()

	if err := s.client.SetDisabled(input.TypeKey, codeset.Of(115)); err != nil {
		t.Fatalf("SetDisabled: %v", err)
	}
	s.press(2, 5*time.Millisecond)
	if n := len(s.pub.PublishedGroups()); n != 0 {
		t.Errorf("disabled line reported %d groups", n)
	}

	err := s.client.SetDisabled(input.TypeKey, codeset.Of(116))
	if !web.IsStatus(err, 409) {
		t.Errorf("disabling a fixed line: got %v, want 409", err)
	}
	disabled, err := s.client.Disabled(input.TypeKey)
	if err != nil || !disabled.Equal(codeset.Of(115)) {
		t.Errorf("rejected request changed state: %v, %v", disabled, err)
	}

	if err := s.client.SetDisabled(input.TypeKey, codeset.Of()); err != nil {
		t.Fatalf("enable: %v", err)
	}
	s.press(2, 5*time.Millisecond)
	if n := len(s.pub.PublishedGroups()); n != 2 {
		t.Errorf("re-enabled line: got %d groups, want 2", n)
	}
}

func TestIntegrationSuspendResumeOverHTTP(t *testing.T) {
	s := newStack(t, keys.ResumeDevice)
	s.driver.OpenConsumer()

	if _, err := s.client.Power("suspend"); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if st := s.status(t); st.Power != "suspended" || !st.MayWake {
		t.Errorf("status while suspended: power=%q may_wake=%v", st.Power, st.MayWake)
	}
	if !s.chip.Line(2).Masked() {
		t.Error("non-wake line should be masked while suspended")
	}
	if err := s.client.SetWakeup(input.TypeKey, 115, true); !web.IsStatus(err, 409) {
		t.Errorf("wakeup change while suspended: got %v, want 409", err)
	}

	if _, err := s.client.Power("resume"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if s.driver.Power() != keys.PowerActive {
		t.Errorf("power: got %v", s.driver.Power())
	}
	s.mu.Lock()
	calls := append([]string(nil), s.power...)
	s.mu.Unlock()
	if len(calls) != 2 || calls[0] != mqtt.EventSuspend || calls[1] != mqtt.EventResume {
		t.Errorf("power callbacks: got %v", calls)
	}

	s.press(2, 5*time.Millisecond)
	if n := len(s.pub.PublishedGroups()); n != 2 {
		t.Errorf("events after resume: got %d groups, want 2", n)
	}
}

func TestIntegrationSyscoreWake(t *testing.T) {
	s := newStack(t, keys.ResumeSyscore)
	s.driver.OpenConsumer()

	if _, err := s.client.Power("suspend"); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	s.set(1, true)
	s.advance(5 * time.Millisecond)

	res, err := s.client.Power("syscore-resume")
	if err != nil {
		t.Fatalf("syscore-resume: %v", err)
	}
	if len(res.Woken) != 1 || res.Woken[0] != "power" {
		t.Errorf("woken: got %v", res.Woken)
	}
	groups := s.pub.PublishedGroups()
	if len(groups) != 1 || groups[0].Events[0].Code != 116 || groups[0].Events[0].Value != 1 {
		t.Errorf("wake press should be reported, got %+v", groups)
	}
	if s.driver.Holds() != 0 {
		t.Errorf("holds after report: %d", s.driver.Holds())
	}
}

func TestIntegrationPublishFailureDoesNotStopReporting(t *testing.T) {
	s := newStack(t, keys.ResumeDevice)
	s.driver.OpenConsumer()
	s.pub.PublishError = errors.New("broker unavailable")

	s.press(2, 5*time.Millisecond)
	if st := s.status(t); len(st.Counts) != 1 || st.Counts[0].Press != 1 {
		t.Errorf("tracker should still count events, got %+v", st.Counts)
	}

	s.pub.PublishError = nil
	s.press(2, 5*time.Millisecond)
	if n := len(s.pub.PublishedGroups()); n != 2 {
		t.Errorf("groups after recovery: got %d, want 2", n)
	}
}
