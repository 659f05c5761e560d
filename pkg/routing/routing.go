// Package routing keeps navigation inside a fixed set of pages and
// in-page anchors.
package routing

import (
	"net/http"
	"path"
	"strings"

	"github.com/payback159/contactgate/pkg/config"
	"github.com/payback159/contactgate/pkg/logging"
	"github.com/payback159/contactgate/pkg/monitoring"
	"github.com/payback159/contactgate/pkg/sanitize"
)

// DefaultRoute is where unknown paths are sent
const DefaultRoute = "/"

// DefaultPaths are the pages the service serves
var DefaultPaths = []string{
	"/",
	"/contact",
	"/contact/close",
	"/healthz",
	"/admin/events.csv",
	"/admin/events.xlsx",
}

// DefaultPrefixes are path prefixes whose remainder is checked elsewhere
var DefaultPrefixes = []string{"/go/"}

// DefaultAnchors are the sections of the landing page
var DefaultAnchors = []string{
	"hero",
	"problem",
	"features",
	"showcase",
	"pricing",
	"faq",
	"cta",
	"contact",
}

// Guard validates paths and fragments against allow-lists
type Guard struct {
	Enabled     bool
	HashEnabled bool
	Default     string

	paths    map[string]struct{}
	prefixes []string
	anchors  map[string]struct{}
	monitor  *monitoring.Monitor
}

// New creates a guard with the default allow-lists
func New(cfg config.SecurityConfig, monitor *monitoring.Monitor) *Guard {
	return NewWithLists(cfg, monitor, DefaultPaths, DefaultPrefixes, DefaultAnchors)
}

// NewWithLists creates a guard over custom allow-lists
func NewWithLists(cfg config.SecurityConfig, monitor *monitoring.Monitor, paths, prefixes, anchors []string) *Guard {
	g := &Guard{
		Enabled:     cfg.EnableRouteValidation,
		HashEnabled: cfg.EnableHashSanitization,
		Default:     DefaultRoute,
		paths:       make(map[string]struct{}, len(paths)),
		prefixes:    prefixes,
		anchors:     make(map[string]struct{}, len(anchors)),
		monitor:     monitor,
	}
	for _, p := range paths {
		g.paths[p] = struct{}{}
	}
	for _, a := range anchors {
		g.anchors[a] = struct{}{}
	}
	return g
}

// ValidatePath returns p when it is allowed and the default route otherwise
func (g *Guard) ValidatePath(p string) (string, bool) {
	if !g.Enabled {
		return p, true
	}

	cleaned := path.Clean("/" + p)
	if _, ok := g.paths[cleaned]; ok && cleaned == p {
		return p, true
	}
	for _, prefix := range g.prefixes {
		if strings.HasPrefix(p, prefix) && cleaned == p {
			return p, true
		}
	}

	g.monitor.InvalidRoute(p)
	return g.Default, false
}

// ResolveAnchor sanitizes a URL fragment and reports whether the result
// names a known section
func (g *Guard) ResolveAnchor(fragment string) (string, bool) {
	anchor := strings.TrimPrefix(fragment, "#")
	if g.HashEnabled {
		anchor = sanitize.Hash(anchor)
	}
	if anchor == "" {
		return "", false
	}
	if _, ok := g.anchors[anchor]; !ok {
		logging.LogDebug("Unknown anchor requested", "anchor", anchor)
		return "", false
	}
	return anchor, true
}

// Middleware redirects GET and HEAD requests for unknown paths to the
// default route. Other methods fall through to the router.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		if target, ok := g.ValidatePath(r.URL.Path); !ok {
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
