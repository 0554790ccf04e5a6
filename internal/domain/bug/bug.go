// Package bug defines synthetic bug events and the static fault catalog for
// the three demo storefronts.
package bug

import (
	"fmt"
	"time"

	"github.com/bugspotter/demo-platform/internal/domain"
)

// Severity classifies a synthetic failure.
type Severity string

// Severity levels, lowest to highest.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// DemoSite identifies one of the three mock applications.
type DemoSite string

// The demo storefronts: a bank, an HR tool, and an e-commerce store.
const (
	SiteKazBank    DemoSite = "kazbank"
	SiteTalentFlow DemoSite = "talentflow"
	SiteQuickMart  DemoSite = "quickmart"
)

// Valid reports whether d is a known demo site.
func (d DemoSite) Valid() bool {
	switch d {
	case SiteKazBank, SiteTalentFlow, SiteQuickMart:
		return true
	}
	return false
}

// subdomainPrefixes maps routing tokens to demo sites.
var subdomainPrefixes = map[string]DemoSite{
	"bank": SiteKazBank,
	"hr":   SiteTalentFlow,
	"shop": SiteQuickMart,
}

// SiteFromPrefix resolves a subdomain routing prefix ("bank", "hr", "shop")
// to its demo site.
func SiteFromPrefix(prefix string) (DemoSite, bool) {
	site, ok := subdomainPrefixes[prefix]
	return site, ok
}

// FaultType names the failure mode a bug definition simulates. Each fault
// type has its own fabricated stack-trace template.
type FaultType string

// Fault types, mirroring the failure modes the demos showcase.
const (
	FaultTimeout     FaultType = "timeout"
	FaultNetwork     FaultType = "network-error"
	FaultCalculation FaultType = "calculation-error"
	FaultCorruption  FaultType = "corruption"
	FaultFreeze      FaultType = "freeze"
	FaultCrash       FaultType = "crash"
	FaultValidation  FaultType = "validation-error"
	FaultDuplicate   FaultType = "duplicate"
	FaultLayout      FaultType = "layout-break"
)

// Event is one recorded synthetic failure. Events are immutable once created
// and are deleted only by cascading session deletion or TTL expiry.
type Event struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message"`
	StackTrace string    `json:"stack_trace,omitempty"`
	Severity   Severity  `json:"severity"`
	Site       DemoSite  `json:"demo"`
	ElementID  string    `json:"element_id,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Screenshot string    `json:"screenshot,omitempty"`
}

// SubmitRequest is a bug report from the injector or an admin manual
// injection.
type SubmitRequest struct {
	SessionID  string   `json:"session_id"`
	Message    string   `json:"message"`
	StackTrace string   `json:"stack_trace,omitempty"`
	Severity   Severity `json:"severity"`
	Site       DemoSite `json:"demo"`
	ElementID  string   `json:"element_id,omitempty"`
	UserAgent  string   `json:"user_agent,omitempty"`
	Screenshot string   `json:"screenshot,omitempty"`
}

// Validate checks the required submission fields.
func (r SubmitRequest) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", domain.ErrValidation)
	}
	if r.Message == "" {
		return fmt.Errorf("%w: message is required", domain.ErrValidation)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", domain.ErrValidation, r.Severity)
	}
	if !r.Site.Valid() {
		return fmt.Errorf("%w: unknown demo site %q", domain.ErrValidation, r.Site)
	}
	return nil
}
