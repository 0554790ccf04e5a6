package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/bugspotter/demo-platform/internal/domain/bug"
)

// headerSubdomain carries the resolved subdomain on local deployments where
// wildcard DNS is unavailable.
const headerSubdomain = "X-Demo-Subdomain"

type routeCtxKey struct{}

// RouteContext is the routing information resolved from the request host.
// A zero value means the request targets the main domain.
type RouteContext struct {
	Site          bug.DemoSite // resolved demo site, empty if none
	SessionID     string       // demo session the subdomain addresses
	RewrittenPath string       // request path prefixed with the subdomain label
}

// Resolve parses the request host against the configured base domain.
//
// Recognized host shapes:
//
//	demo.example.com            main domain, no route context
//	acme42.demo.example.com     session subdomain
//	bank-acme42.demo.example.com  site prefix + session subdomain
//
// On localhost the subdomain comes from the ?subdomain= query parameter or
// the X-Demo-Subdomain header instead, since wildcard DNS does not resolve
// there.
//
// The matched request is internally addressed as /{subdomain}{path}, carried
// in RewrittenPath for handlers that serve per-subdomain content.
func Resolve(host, path, baseDomain, querySubdomain, headerValue string) RouteContext {
	label := subdomainLabel(host, baseDomain)
	if label == "" {
		if querySubdomain != "" {
			label = querySubdomain
		} else {
			label = headerValue
		}
	}
	if label == "" {
		return RouteContext{}
	}

	rewritten := "/" + label + path
	if prefix, rest, ok := strings.Cut(label, "-"); ok {
		if site, known := bug.SiteFromPrefix(prefix); known && rest != "" {
			return RouteContext{Site: site, SessionID: rest, RewrittenPath: rewritten}
		}
	}
	return RouteContext{SessionID: label, RewrittenPath: rewritten}
}

// subdomainLabel extracts the first host label when host is a strict
// subdomain of baseDomain. Ports are stripped before matching.
func subdomainLabel(host, baseDomain string) string {
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	host = strings.ToLower(host)
	baseDomain = strings.ToLower(baseDomain)

	if host == baseDomain || strings.Contains(host, "localhost") {
		return ""
	}
	label, found := strings.CutSuffix(host, "."+baseDomain)
	if !found || label == "" || strings.Contains(label, ".") {
		return ""
	}
	return label
}

// Subdomain returns middleware that resolves the demo route context from
// the request host and stores it in the request context.
func Subdomain(baseDomain string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := Resolve(r.Host, r.URL.Path, baseDomain, r.URL.Query().Get("subdomain"), r.Header.Get(headerSubdomain))
			if rc.SessionID == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), routeCtxKey{}, rc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RouteFromContext returns the route context stored in ctx, if any.
func RouteFromContext(ctx context.Context) (RouteContext, bool) {
	rc, ok := ctx.Value(routeCtxKey{}).(RouteContext)
	return rc, ok
}
