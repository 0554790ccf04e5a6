// Package injector implements the bug-injection engine that arms interactive
// targets and probabilistically synthesizes failures on interaction.
//
// The engine is deliberately decoupled from any concrete UI: targets are
// resolved through the TargetRegistry capability interface during Arm, and
// reporting is a best-effort asynchronous notification that never blocks and
// never surfaces errors to the interaction path.
package injector

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bugspotter/demo-platform/internal/domain/bug"
)

// Target is one armable interactive element.
type Target interface {
	// Intercept installs the click handler. The handler returns true when
	// the engine intercepted the interaction and the default action must be
	// suppressed.
	Intercept(handler func() bool)
	// Flash gives timed visual feedback in the given severity color.
	Flash(color string, d time.Duration)
}

// TargetRegistry maps logical fault-trigger element ids to concrete targets.
type TargetRegistry interface {
	Lookup(elementID string) (Target, bool)
}

// Reporter delivers a synthesized bug event upstream.
type Reporter interface {
	Report(ctx context.Context, req bug.SubmitRequest) error
}

// Notifier surfaces a user-facing error notification.
type Notifier interface {
	Notify(severity bug.Severity, message string)
}

// severityColors keys the visual flash by severity.
var severityColors = map[bug.Severity]string{
	bug.SeverityLow:      "#fbbf24",
	bug.SeverityMedium:   "#f97316",
	bug.SeverityHigh:     "#ef4444",
	bug.SeverityCritical: "#dc2626",
}

const flashDuration = time.Second

// Config assembles an engine. Probability is the per-click trigger chance in
// [0,1]; values outside the range are clamped.
type Config struct {
	Probability float64
	SessionID   string
	UserAgent   string
	Targets     TargetRegistry
	Reporter    Reporter
	Notifier    Notifier
	Logger      *slog.Logger

	// Rand overrides the uniform draw, After overrides delayed firing.
	// Both are for deterministic tests; nil means real randomness/timers.
	Rand  func() float64
	After func(d time.Duration, fn func())
}

// Engine is a per-page bug injector. Each click is handled independently;
// there is no cross-click state beyond the static probability and registry,
// so two rapid clicks may both fault.
type Engine struct {
	probability float64
	sessionID   string
	userAgent   string
	defs        map[string]bug.Definition
	targets     TargetRegistry
	reporter    Reporter
	notifier    Notifier
	log         *slog.Logger
	draw        func() float64
	after       func(d time.Duration, fn func())

	reports sync.WaitGroup
}

// New creates an idle engine with no registered definitions.
func New(cfg Config) *Engine {
	p := min(max(cfg.Probability, 0), 1)
	e := &Engine{
		probability: p,
		sessionID:   cfg.SessionID,
		userAgent:   cfg.UserAgent,
		defs:        make(map[string]bug.Definition),
		targets:     cfg.Targets,
		reporter:    cfg.Reporter,
		notifier:    cfg.Notifier,
		log:         cfg.Logger,
		draw:        cfg.Rand,
		after:       cfg.After,
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.draw == nil {
		e.draw = rand.Float64
	}
	if e.after == nil {
		e.after = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}
	return e
}

// Register adds a bug definition, keyed by its trigger element. Registering
// a second definition for the same element replaces the first.
func (e *Engine) Register(def bug.Definition) {
	e.defs[def.ElementID] = def
}

// Arm resolves every registered trigger element and installs interception
// handlers. Missing elements are skipped with a warning; the count of armed
// targets is returned.
func (e *Engine) Arm() int {
	armed := 0
	for elementID, def := range e.defs {
		target, ok := e.targets.Lookup(elementID)
		if !ok {
			e.log.Warn("injector: trigger element not found, skipping",
				"element_id", elementID, "demo", def.Site)
			continue
		}
		target.Intercept(func() bool { return e.handleClick(elementID) })
		armed++
	}
	return armed
}

// handleClick rolls the dice for one interaction. It returns true when the
// fault fires and the default click action must be suppressed.
func (e *Engine) handleClick(elementID string) bool {
	def, ok := e.defs[elementID]
	if !ok {
		return false
	}
	if e.draw() > e.probability {
		// No bug this time; the click proceeds normally.
		return false
	}
	e.schedule(def)
	return true
}

// ManualTrigger fires the fault registered for elementID, bypassing both the
// probability draw and click interception. Used for deterministic demos.
func (e *Engine) ManualTrigger(elementID string) bool {
	def, ok := e.defs[elementID]
	if !ok {
		return false
	}
	e.schedule(def)
	return true
}

// schedule fires the fault, after the definition's delay if it has one.
func (e *Engine) schedule(def bug.Definition) {
	if def.Delay > 0 {
		e.after(def.Delay, func() { e.fire(def) })
		return
	}
	e.fire(def)
}

// fire synthesizes the error, gives visual and notification feedback, and
// reports the event best-effort.
func (e *Engine) fire(def bug.Definition) {
	stack := StackTrace(def.Fault, def.Site, def.Message)

	e.log.Error("injector: fault triggered",
		"type", def.Fault, "demo", def.Site, "element_id", def.ElementID,
		"severity", def.Severity, "message", def.Message)

	if target, ok := e.targets.Lookup(def.ElementID); ok {
		target.Flash(severityColors[def.Severity], flashDuration)
	}

	if e.notifier != nil && (def.Severity == bug.SeverityHigh || def.Severity == bug.SeverityCritical) {
		e.notifier.Notify(def.Severity, def.Message)
	}

	e.report(def, stack)
}

// report submits the bug event asynchronously. Failures are logged and never
// propagated: telemetry reliability must not disrupt the interactive demo.
func (e *Engine) report(def bug.Definition, stack string) {
	req := bug.SubmitRequest{
		SessionID:  e.sessionID,
		Message:    def.Message,
		StackTrace: stack,
		Severity:   def.Severity,
		Site:       def.Site,
		ElementID:  def.ElementID,
		UserAgent:  e.userAgent,
	}

	e.reports.Add(1)
	go func() {
		defer e.reports.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.reporter.Report(ctx, req); err != nil {
			e.log.Warn("injector: bug report failed",
				"element_id", def.ElementID, "error", err)
		}
	}()
}

// Drain blocks until all in-flight reports have completed. Test helper.
func (e *Engine) Drain() {
	e.reports.Wait()
}

// StackTrace renders the fabricated call stack for a fault type,
// parameterized with the demo site name. Unknown fault types fall back to a
// generic frame.
func StackTrace(fault bug.FaultType, site bug.DemoSite, message string) string {
	switch fault {
	case bug.FaultTimeout:
		return fmt.Sprintf(`Error: %s
    at XMLHttpRequest.handleTimeout (%s/api-client.js:45:15)
    at setTimeout (native)
    at fetch (api-client.js:32:7)`, message, site)
	case bug.FaultNetwork:
		return fmt.Sprintf(`NetworkError: %s
    at fetch (api-client.js:89:12)
    at handleTransfer (transfer.js:23:9)
    at HTMLButtonElement.onClick (%s/page.tsx:156:5)`, message, site)
	case bug.FaultCalculation:
		return fmt.Sprintf(`CalculationError: %s
    at calculateExchangeRate (currency-utils.js:67:11)
    at convertCurrency (converter.tsx:34:18)
    at handleConvert (converter.tsx:78:5)`, message)
	case bug.FaultCorruption:
		return fmt.Sprintf(`DataCorruptionError: %s
    at generatePDF (pdf-generator.js:123:8)
    at handleDownload (statements.tsx:45:12)
    at HTMLButtonElement.onClick (%s/page.tsx:201:7)`, message, site)
	case bug.FaultFreeze:
		return fmt.Sprintf(`TimeoutError: %s
    at processPayment (payment-processor.js:234:15)
    at checkout.tsx:89:await
    at handleCheckout (checkout.tsx:67:9)`, message)
	case bug.FaultCrash:
		return fmt.Sprintf(`FatalError: %s
    at parseSearchQuery (search-utils.js:156:23)
    at handleSearch (search.tsx:34:5)
    at HTMLInputElement.onInput (search.tsx:91:7)`, message)
	case bug.FaultValidation:
		return fmt.Sprintf(`ValidationError: %s
    at validateOTP (auth-service.js:178:9)
    at verify2FA (login.tsx:56:12)
    at handleLogin (login.tsx:89:await)`, message)
	case bug.FaultDuplicate:
		return fmt.Sprintf(`ConcurrencyError: %s
    at queueEmail (email-service.js:67:11)
    at sendBulkEmails (bulk-actions.tsx:123:9)
    at HTMLButtonElement.onClick (%s/page.tsx:267:5)`, message, site)
	case bug.FaultLayout:
		return fmt.Sprintf(`RenderError: %s
    at toggleMobileMenu (navigation.tsx:45:7)
    at HTMLButtonElement.onClick (header.tsx:89:5)
    at React.createElement (react-dom.js:1234:15)`, message)
	default:
		return fmt.Sprintf(`Error: %s
    at unknown (%s/page.tsx:1:1)`, message, site)
	}
}
