package agent

import (
	"net/url"
	"path"
	"strings"

	"github.com/thomassophiea/aura-offline/store"
)

// Decision is the routing outcome for one intercepted request.
type Decision int

const (
	// DecisionBypass means the request is not intercepted and passes through
	// untouched: non-read-only methods, API traffic and cross-origin targets.
	DecisionBypass Decision = iota
	// DecisionStatic selects stale-while-revalidate against the static store.
	DecisionStatic
	// DecisionDocument selects cache-first against the combined store.
	DecisionDocument
	// DecisionDynamic selects network-first with cached fallback.
	DecisionDynamic
)

// String returns the string representation of the decision.
func (d Decision) String() string {
	switch d {
	case DecisionBypass:
		return "bypass"
	case DecisionStatic:
		return "static"
	case DecisionDocument:
		return "document"
	case DecisionDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// Request is one intercepted request: method plus parsed target URL.
type Request struct {
	Method string
	URL    *url.URL
}

// ParseRequest builds a Request from a method and raw URL.
func ParseRequest(method, rawURL string) (Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Request{}, err
	}
	return Request{Method: strings.ToUpper(method), URL: u}, nil
}

// Identity returns the store identity of the request: method plus the
// origin-relative request URI, so "/app.js" and "https://origin/app.js" map
// to the same snapshot.
func (r Request) Identity() store.Identity {
	return store.NewIdentity(r.Method, r.URL.RequestURI())
}

// DefaultAPIMarker is the reserved path segment never touched by the engine.
const DefaultAPIMarker = "/api/"

// DefaultStaticExtensions is the file-extension set routed to the
// stale-while-revalidate strategy.
var DefaultStaticExtensions = []string{
	".js", ".css", ".png", ".jpg", ".jpeg", ".svg", ".gif",
	".woff", ".woff2", ".ttf", ".eot", ".ico",
}

// RouterConfig configures the strategy router.
type RouterConfig struct {
	// Origin is the page origin as scheme://host[:port]. Requests with an
	// explicit different origin are bypassed. Origin-relative URLs always
	// count as same-origin.
	Origin string

	// APIMarker is the reserved path segment owned by the application's own
	// data layer. Default: "/api/".
	APIMarker string

	// StaticExtensions overrides the static-asset extension set.
	// Default: DefaultStaticExtensions.
	StaticExtensions []string
}

// Router selects the caching strategy for each intercepted request.
type Router struct {
	origin     *url.URL
	apiMarker  string
	staticExts map[string]bool
}

// NewRouter creates a router, applying defaults for unset config fields.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.APIMarker == "" {
		cfg.APIMarker = DefaultAPIMarker
	}
	exts := cfg.StaticExtensions
	if len(exts) == 0 {
		exts = DefaultStaticExtensions
	}

	r := &Router{
		apiMarker:  cfg.APIMarker,
		staticExts: make(map[string]bool, len(exts)),
	}
	for _, ext := range exts {
		r.staticExts[strings.ToLower(ext)] = true
	}

	if cfg.Origin != "" {
		u, err := url.Parse(cfg.Origin)
		if err != nil {
			return nil, err
		}
		r.origin = u
	}
	return r, nil
}

// readOnlyMethods are the only methods the engine ever intercepts.
var readOnlyMethods = map[string]bool{
	"GET":  true,
	"HEAD": true,
}

// Route evaluates the routing rules in order; first match wins.
func (r *Router) Route(req Request) Decision {
	// 1. Only read-only methods are intercepted.
	if !readOnlyMethods[req.Method] {
		return DecisionBypass
	}

	p := req.URL.Path

	// 2. Reserved API traffic is owned by the application's data layer.
	if strings.Contains(p, r.apiMarker) {
		return DecisionBypass
	}

	// 3. Cross-origin targets are not intercepted. Absolute URLs with no
	// configured origin to compare against are bypassed as well.
	if req.URL.Host != "" {
		if r.origin == nil {
			return DecisionBypass
		}
		if req.URL.Host != r.origin.Host || (req.URL.Scheme != "" && req.URL.Scheme != r.origin.Scheme) {
			return DecisionBypass
		}
	}

	// 4. Static assets by file extension.
	ext := strings.ToLower(path.Ext(p))
	if r.staticExts[ext] {
		return DecisionStatic
	}

	// 5. The root document and HTML pages.
	if p == "/" || p == "" || ext == ".html" {
		return DecisionDocument
	}

	// 6. Everything else.
	return DecisionDynamic
}
