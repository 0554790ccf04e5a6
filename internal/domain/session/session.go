// Package session defines the demo session (tenant) domain model.
//
// A session is one prospect's isolated, time-limited demo instance. Its ID
// doubles as the routing subdomain, so it must stay URL- and DNS-safe.
package session

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/bugspotter/demo-platform/internal/domain"
)

// Session is a single prospect demo instance. Counters are telemetry-grade:
// concurrent updates may under-count (see Manager.RecordBug).
type Session struct {
	ID        string    `json:"id"`
	Company   string    `json:"company"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Events    int       `json:"events"`
	Bugs      int       `json:"bugs"`
}

// Expired reports whether the session has passed its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// CreateRequest holds the fields required to create a new demo session.
type CreateRequest struct {
	Company      string `json:"company"`
	ContactEmail string `json:"contact_email,omitempty"`
}

const (
	minCompanyLen = 2
	maxCompanyLen = 50
)

// Validate checks the company name length bounds.
func (r CreateRequest) Validate() error {
	n := len(strings.TrimSpace(r.Company))
	if n < minCompanyLen || n > maxCompanyLen {
		return fmt.Errorf("%w: company name must be between %d and %d characters",
			domain.ErrValidation, minCompanyLen, maxCompanyLen)
	}
	return nil
}

// Provisioning records the collaborator-side resources created for a session.
// It is read only by the cleanup coordinator and the API-key endpoint, never
// by the demo pages themselves.
type Provisioning struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	Projects    []Project `json:"projects"`
	JiraProject string    `json:"jira_project,omitempty"`
}

// Project is one collaborator project provisioned for a demo site, with the
// capture-SDK API key the demo page authenticates with.
type Project struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	APIKey   string `json:"api_key"`
	APIKeyID string `json:"api_key_id"`
}

// ProjectFor returns the provisioned project whose name contains the demo
// site name, matching how the demo pages look up their capture key.
func (p *Provisioning) ProjectFor(site string) (Project, bool) {
	for _, proj := range p.Projects {
		if strings.Contains(strings.ToLower(proj.Name), strings.ToLower(site)) {
			return proj, true
		}
	}
	return Project{}, false
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewID derives a subdomain-safe session ID from a company name by slugifying
// it and appending a 4-character random suffix.
//
// Uniqueness is probabilistic only: the suffix is never re-checked against the
// store. A collision is a visibly wrong but still functional demo, which is an
// accepted limitation.
func NewID(company string) string {
	return Slugify(company) + "-" + randomSuffix(4)
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return string(buf)
}

// asciiFold maps common accented Latin runes to their ASCII base form.
var asciiFold = map[rune]rune{
	'à': 'a', 'á': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a', 'å': 'a',
	'è': 'e', 'é': 'e', 'ê': 'e', 'ë': 'e',
	'ì': 'i', 'í': 'i', 'î': 'i', 'ï': 'i',
	'ò': 'o', 'ó': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o',
	'ù': 'u', 'ú': 'u', 'û': 'u', 'ü': 'u',
	'ç': 'c', 'ñ': 'n', 'ý': 'y', 'ÿ': 'y', 'ß': 's',
}

// Slugify lowercases a name, folds common accents to ASCII, and collapses
// every run of other characters into a single hyphen. The result is safe for
// use as a DNS label.
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	pendingHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if folded, ok := asciiFold[r]; ok {
			r = folded
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	if b.Len() == 0 {
		return "demo"
	}
	return b.String()
}
