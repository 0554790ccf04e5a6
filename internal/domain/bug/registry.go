package bug

import (
	"encoding/json"
	"time"
)

// Definition is a static catalog entry describing one injectable fault:
// which element triggers it, what error it synthesizes, and how a demo
// operator can provoke it. Changing the catalog means redeploying.
type Definition struct {
	Site          DemoSite      `json:"demo"`
	ElementID     string        `json:"element_id"`
	Fault         FaultType     `json:"type"`
	Message       string        `json:"message"`
	Severity      Severity      `json:"severity"`
	Delay         time.Duration `json:"-"`
	Description   string        `json:"description"`
	TriggerAction string        `json:"trigger_action"`
}

// definitionJSON is the wire shape: the delay travels as integer
// milliseconds, not Duration nanoseconds.
type definitionJSON struct {
	Site          DemoSite  `json:"demo"`
	ElementID     string    `json:"element_id"`
	Fault         FaultType `json:"type"`
	Message       string    `json:"message"`
	Severity      Severity  `json:"severity"`
	DelayMS       int64     `json:"delay_ms,omitempty"`
	Description   string    `json:"description"`
	TriggerAction string    `json:"trigger_action"`
}

func (d Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal(definitionJSON{
		Site:          d.Site,
		ElementID:     d.ElementID,
		Fault:         d.Fault,
		Message:       d.Message,
		Severity:      d.Severity,
		DelayMS:       d.Delay.Milliseconds(),
		Description:   d.Description,
		TriggerAction: d.TriggerAction,
	})
}

func (d *Definition) UnmarshalJSON(data []byte) error {
	var w definitionJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = Definition{
		Site:          w.Site,
		ElementID:     w.ElementID,
		Fault:         w.Fault,
		Message:       w.Message,
		Severity:      w.Severity,
		Delay:         time.Duration(w.DelayMS) * time.Millisecond,
		Description:   w.Description,
		TriggerAction: w.TriggerAction,
	}
	return nil
}

var catalog = []Definition{
	// KazBank
	{
		Site:          SiteKazBank,
		ElementID:     "transfer-btn",
		Fault:         FaultTimeout,
		Message:       "Transaction timeout: Unable to complete transfer after 5 seconds",
		Severity:      SeverityHigh,
		Delay:         5 * time.Second,
		Description:   "Money transfer times out after 5 seconds",
		TriggerAction: `Click the "Transfer" button in the Quick Transfer section`,
	},
	{
		Site:          SiteKazBank,
		ElementID:     "download-statement",
		Fault:         FaultCorruption,
		Message:       "PDF generation failed: File corruption detected in statement export",
		Severity:      SeverityMedium,
		Delay:         2 * time.Second,
		Description:   "Account statement PDF download fails with corruption error",
		TriggerAction: `Click the "Statement" button next to Recent Transactions`,
	},
	{
		Site:          SiteKazBank,
		ElementID:     "convert-currency",
		Fault:         FaultCalculation,
		Message:       "Exchange rate calculation error: Invalid result for amount 1234.56",
		Severity:      SeverityCritical,
		Description:   "Currency conversion produces incorrect results",
		TriggerAction: `Click the "Convert" button in the Currency Converter widget`,
	},
	{
		Site:          SiteKazBank,
		ElementID:     "login-submit",
		Fault:         FaultValidation,
		Message:       "2FA validation failed: OTP verification service unavailable",
		Severity:      SeverityHigh,
		Description:   "2FA verification fails due to service unavailability",
		TriggerAction: `Click the "Verify 2FA" button in the Security Test section or Card Settings`,
	},
	{
		Site:          SiteKazBank,
		ElementID:     "mobile-menu-toggle",
		Fault:         FaultLayout,
		Message:       "Navigation render error: Mobile menu overflow causing layout collapse",
		Severity:      SeverityMedium,
		Description:   "Mobile navigation menu causes layout to break",
		TriggerAction: `Click the "Menu" button in the mobile header (visible on mobile/small screens)`,
	},

	// TalentFlow
	{
		Site:          SiteTalentFlow,
		ElementID:     "search-candidates",
		Fault:         FaultCrash,
		Message:       `Search query parser error: Unexpected token "senior" at position 0`,
		Severity:      SeverityHigh,
		Description:   "Candidate search crashes with certain keywords",
		TriggerAction: `Click the "Search" button in the Search Candidates section`,
	},
	{
		Site:          SiteTalentFlow,
		ElementID:     "upload-resume",
		Fault:         FaultFreeze,
		Message:       "File upload stalled: Progress frozen at 99% for resume.pdf",
		Severity:      SeverityCritical,
		Delay:         3 * time.Second,
		Description:   "Resume upload freezes at 99% and never completes",
		TriggerAction: `Click the "Upload Resume" button in the application form`,
	},
	{
		Site:          SiteTalentFlow,
		ElementID:     "schedule-interview",
		Fault:         FaultCalculation,
		Message:       "Timezone conversion failed: Invalid offset calculation for PST to EST",
		Severity:      SeverityHigh,
		Description:   "Interview scheduling fails due to timezone calculation error",
		TriggerAction: `Click the "Schedule Interview" button for any candidate`,
	},
	{
		Site:          SiteTalentFlow,
		ElementID:     "send-bulk-email",
		Fault:         FaultDuplicate,
		Message:       "Email queue race condition: Duplicate messages sent to 47 candidates",
		Severity:      SeverityCritical,
		Description:   "Bulk email sender sends duplicate emails due to race condition",
		TriggerAction: `Click the "Send to All" button in the bulk actions section`,
	},
	{
		Site:          SiteTalentFlow,
		ElementID:     "export-excel",
		Fault:         FaultCorruption,
		Message:       "Excel export corrupted: Invalid cell format in candidate data export",
		Severity:      SeverityMedium,
		Description:   "Candidate data export produces corrupted Excel file",
		TriggerAction: `Click the "Export to Excel" button in the reports section`,
	},

	// QuickMart
	{
		Site:          SiteQuickMart,
		ElementID:     "add-to-cart-1",
		Fault:         FaultDuplicate,
		Message:       "Cart race condition: Item added twice due to rapid double-click",
		Severity:      SeverityMedium,
		Description:   "Product gets added to cart twice on single click",
		TriggerAction: `Click any "Add to Cart" button for a product`,
	},
	{
		Site:          SiteQuickMart,
		ElementID:     "checkout-btn",
		Fault:         FaultFreeze,
		Message:       "Payment processor freeze: Gateway connection timeout after 30 seconds",
		Severity:      SeverityCritical,
		Delay:         2 * time.Second,
		Description:   "Checkout freezes during payment processing",
		TriggerAction: `Click the "Proceed to Checkout" button`,
	},
	{
		Site:          SiteQuickMart,
		ElementID:     "search-products",
		Fault:         FaultCrash,
		Message:       `Search parser crashed: Special character "$" caused unhandled exception`,
		Severity:      SeverityHigh,
		Description:   "Product search crashes with special characters",
		TriggerAction: `Click the "Search" button or press Enter in the search bar`,
	},
	{
		Site:          SiteQuickMart,
		ElementID:     "product-image-1",
		Fault:         FaultNetwork,
		Message:       "Image lazy load failed: CDN timeout for product-image-12345.jpg",
		Severity:      SeverityLow,
		Description:   "Product images fail to load due to CDN timeout",
		TriggerAction: "Click or hover over product images",
	},
	{
		Site:          SiteQuickMart,
		ElementID:     "apply-promo",
		Fault:         FaultValidation,
		Message:       `Promo code validation failed: "DEMO50" exists but discount not calculated`,
		Severity:      SeverityHigh,
		Description:   "Promo code validation fails despite valid code",
		TriggerAction: `Click the "Apply" button after entering a promo code`,
	},
}

// All returns every registered bug definition.
func All() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// ForSite returns the definitions registered for one demo site.
func ForSite(site DemoSite) []Definition {
	var out []Definition
	for _, d := range catalog {
		if d.Site == site {
			out = append(out, d)
		}
	}
	return out
}

// CatalogStats summarizes the registry for the introspection endpoint.
type CatalogStats struct {
	Total      int              `json:"total"`
	BySite     map[DemoSite]int `json:"by_demo"`
	BySeverity map[Severity]int `json:"by_severity"`
}

// Stats counts catalog entries by demo site and severity.
func Stats() CatalogStats {
	s := CatalogStats{
		Total:      len(catalog),
		BySite:     make(map[DemoSite]int),
		BySeverity: make(map[Severity]int),
	}
	for _, d := range catalog {
		s.BySite[d.Site]++
		s.BySeverity[d.Severity]++
	}
	return s
}
