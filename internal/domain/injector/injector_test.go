package injector

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bugspotter/demo-platform/internal/domain/bug"
)

type fakeTarget struct {
	mu      sync.Mutex
	handler func() bool
	flashes []string
}

func (t *fakeTarget) Intercept(handler func() bool) { t.handler = handler }

func (t *fakeTarget) Flash(color string, _ time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flashes = append(t.flashes, color)
}

// click simulates a UI interaction; it reports whether the default action
// was suppressed.
func (t *fakeTarget) click() bool {
	if t.handler == nil {
		return false
	}
	return t.handler()
}

type fakePage struct {
	targets map[string]*fakeTarget
}

func (p *fakePage) Lookup(id string) (Target, bool) {
	t, ok := p.targets[id]
	return t, ok
}

type recordingReporter struct {
	mu   sync.Mutex
	got  []bug.SubmitRequest
	fail error
}

func (r *recordingReporter) Report(_ context.Context, req bug.SubmitRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, req)
	return r.fail
}

func (r *recordingReporter) reports() []bug.SubmitRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bug.SubmitRequest(nil), r.got...)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(_ bug.Severity, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func testDef(elementID string) bug.Definition {
	return bug.Definition{
		Site:      bug.SiteKazBank,
		ElementID: elementID,
		Fault:     bug.FaultTimeout,
		Message:   "Transaction timeout: Unable to complete transfer after 5 seconds",
		Severity:  bug.SeverityHigh,
	}
}

func newTestEngine(p float64, page *fakePage, rep Reporter, not Notifier) *Engine {
	return New(Config{
		Probability: p,
		SessionID:   "acme-corp-ab12",
		UserAgent:   "test-agent",
		Targets:     page,
		Reporter:    rep,
		Notifier:    not,
		After:       func(_ time.Duration, fn func()) { fn() },
	})
}

func TestEveryClickFaultsAtProbabilityOne(t *testing.T) {
	target := &fakeTarget{}
	page := &fakePage{targets: map[string]*fakeTarget{"transfer-btn": target}}
	rep := &recordingReporter{}

	e := newTestEngine(1.0, page, rep, nil)
	e.Register(testDef("transfer-btn"))
	if armed := e.Arm(); armed != 1 {
		t.Fatalf("armed = %d, want 1", armed)
	}

	for range 5 {
		if !target.click() {
			t.Fatal("click at probability 1.0 must be intercepted")
		}
	}
	e.Drain()

	got := rep.reports()
	if len(got) != 5 {
		t.Fatalf("reports = %d, want 5", len(got))
	}
	for _, r := range got {
		if !strings.HasPrefix(r.StackTrace, "Error: Transaction timeout") {
			t.Errorf("stack trace does not match timeout template: %q", r.StackTrace)
		}
		if r.SessionID != "acme-corp-ab12" || r.Site != bug.SiteKazBank {
			t.Errorf("report missing session/site context: %+v", r)
		}
	}
}

func TestNoClickFaultsAtProbabilityZero(t *testing.T) {
	target := &fakeTarget{}
	page := &fakePage{targets: map[string]*fakeTarget{"transfer-btn": target}}
	rep := &recordingReporter{}

	e := newTestEngine(0, page, rep, nil)
	e.Register(testDef("transfer-btn"))
	e.Arm()

	for range 20 {
		if target.click() {
			t.Fatal("click at probability 0 must proceed unobstructed")
		}
	}
	e.Drain()

	if n := len(rep.reports()); n != 0 {
		t.Fatalf("reports = %d, want 0", n)
	}
	if len(target.flashes) != 0 {
		t.Fatalf("flashes = %d, want 0", len(target.flashes))
	}
}

func TestMissingTargetIsNonFatal(t *testing.T) {
	page := &fakePage{targets: map[string]*fakeTarget{}}
	e := newTestEngine(1.0, page, &recordingReporter{}, nil)
	e.Register(testDef("transfer-btn"))
	if armed := e.Arm(); armed != 0 {
		t.Fatalf("armed = %d, want 0", armed)
	}
}

func TestManualTriggerBypassesProbability(t *testing.T) {
	target := &fakeTarget{}
	page := &fakePage{targets: map[string]*fakeTarget{"transfer-btn": target}}
	rep := &recordingReporter{}
	not := &recordingNotifier{}

	e := newTestEngine(0, page, rep, not)
	e.Register(testDef("transfer-btn"))
	e.Arm()

	if !e.ManualTrigger("transfer-btn") {
		t.Fatal("manual trigger of registered element must fire")
	}
	if e.ManualTrigger("unknown") {
		t.Fatal("manual trigger of unregistered element must not fire")
	}
	e.Drain()

	if n := len(rep.reports()); n != 1 {
		t.Fatalf("reports = %d, want 1", n)
	}
	if len(target.flashes) != 1 || target.flashes[0] != severityColors[bug.SeverityHigh] {
		t.Fatalf("expected one high-severity flash, got %v", target.flashes)
	}
	if len(not.msgs) != 1 {
		t.Fatalf("expected one notification for high severity, got %d", len(not.msgs))
	}
}

func TestDelayedFaultFiresAfterDelay(t *testing.T) {
	target := &fakeTarget{}
	page := &fakePage{targets: map[string]*fakeTarget{"transfer-btn": target}}
	rep := &recordingReporter{}

	var delayed time.Duration
	fired := false
	e := New(Config{
		Probability: 1.0,
		Targets:     page,
		Reporter:    rep,
		After: func(d time.Duration, fn func()) {
			delayed = d
			fired = true
			fn()
		},
	})
	def := testDef("transfer-btn")
	def.Delay = 5 * time.Second
	e.Register(def)
	e.Arm()

	target.click()
	e.Drain()

	if !fired || delayed != 5*time.Second {
		t.Fatalf("fault not scheduled with 5s delay (fired=%v d=%v)", fired, delayed)
	}
	if n := len(rep.reports()); n != 1 {
		t.Fatalf("reports = %d, want 1", n)
	}
}

func TestReportFailureIsSwallowed(t *testing.T) {
	target := &fakeTarget{}
	page := &fakePage{targets: map[string]*fakeTarget{"transfer-btn": target}}
	rep := &recordingReporter{fail: context.DeadlineExceeded}

	e := newTestEngine(1.0, page, rep, nil)
	e.Register(testDef("transfer-btn"))
	e.Arm()

	// Must not panic or propagate; the interaction path only sees suppress.
	if !target.click() {
		t.Fatal("click must still be intercepted when reporting fails")
	}
	e.Drain()
}

func TestLowSeverityDoesNotNotify(t *testing.T) {
	target := &fakeTarget{}
	page := &fakePage{targets: map[string]*fakeTarget{"product-image-1": target}}
	not := &recordingNotifier{}

	e := newTestEngine(1.0, page, &recordingReporter{}, not)
	def := testDef("product-image-1")
	def.Severity = bug.SeverityLow
	e.Register(def)
	e.Arm()

	target.click()
	e.Drain()

	if len(not.msgs) != 0 {
		t.Fatalf("low severity must not notify, got %v", not.msgs)
	}
	if len(target.flashes) != 1 {
		t.Fatalf("low severity must still flash, got %d", len(target.flashes))
	}
}

func TestStackTraceTemplates(t *testing.T) {
	cases := map[bug.FaultType]string{
		bug.FaultTimeout:     "Error:",
		bug.FaultNetwork:     "NetworkError:",
		bug.FaultCalculation: "CalculationError:",
		bug.FaultCorruption:  "DataCorruptionError:",
		bug.FaultFreeze:      "TimeoutError:",
		bug.FaultCrash:       "FatalError:",
		bug.FaultValidation:  "ValidationError:",
		bug.FaultDuplicate:   "ConcurrencyError:",
		bug.FaultLayout:      "RenderError:",
	}
	for fault, prefix := range cases {
		got := StackTrace(fault, bug.SiteQuickMart, "boom")
		if !strings.HasPrefix(got, prefix+" boom") {
			t.Errorf("%s: stack %q does not start with %q", fault, got, prefix)
		}
	}
}

func TestSettings(t *testing.T) {
	s := Settings{Enabled: true, Probability: 30}
	if err := s.Validate(); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}
	if got := s.TriggerProbability(); got != 0.3 {
		t.Errorf("TriggerProbability = %v, want 0.3", got)
	}

	s.Enabled = false
	if got := s.TriggerProbability(); got != 0 {
		t.Errorf("disabled injector probability = %v, want 0", got)
	}

	for _, p := range []float64{-1, 101} {
		if err := (Settings{Probability: p}).Validate(); err == nil {
			t.Errorf("probability %v must be rejected", p)
		}
	}
}
