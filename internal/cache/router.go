// ABOUTME: Cache router that classifies requests and dispatches them to policies
// ABOUTME: Acts as an http.RoundTripper for clients and an http.Handler for the daemon proxy

package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

const defaultRefreshTimeout = 30 * time.Second

// Config configures a Router.
type Config struct {
	// Upstream is the origin the router fronts. Only its responses are cached.
	Upstream *url.URL
	// Transport performs network fetches. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
	Storage   Storage

	Namespaces Namespaces
	// Rules defaults to DefaultRules("/api/", "snippets").
	Rules []Rule

	// AppShell lists the paths Install pre-populates.
	AppShell []string
	// OfflinePath is looked up in the cache when a page load fails offline.
	OfflinePath string
	// OfflinePage is served when OfflinePath is not cached.
	OfflinePage *Response

	RefreshTimeout time.Duration
	Logger         *slog.Logger
}

// Router routes each GET through the policy of its first matching rule.
type Router struct {
	b         *backend
	rules     []Rule
	policies  []Policy
	appShell  []string
	activated atomic.Bool
}

// NewRouter validates cfg and builds one policy per rule.
func NewRouter(cfg Config) (*Router, error) {
	if cfg.Upstream == nil || cfg.Upstream.Scheme == "" || cfg.Upstream.Host == "" {
		return nil, errors.New("cache: upstream must be an absolute URL")
	}
	if cfg.Storage == nil {
		return nil, errors.New("cache: storage is required")
	}
	if cfg.Namespaces.Prefix == "" || cfg.Namespaces.Version == "" {
		return nil, errors.New("cache: namespace prefix and version are required")
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules("/api/", "snippets")
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = defaultRefreshTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := &backend{
		transport:      cfg.Transport,
		storage:        cfg.Storage,
		upstream:       cfg.Upstream,
		namespaces:     cfg.Namespaces,
		offlinePath:    cfg.OfflinePath,
		offlinePage:    cfg.OfflinePage,
		refreshTimeout: cfg.RefreshTimeout,
		logger:         cfg.Logger.With("component", "cache"),
		refreshing:     newInflight(),
	}

	r := &Router{b: b, rules: cfg.Rules, appShell: cfg.AppShell}
	for _, rule := range cfg.Rules {
		p, err := newPolicy(b, rule)
		if err != nil {
			return nil, err
		}
		r.policies = append(r.policies, p)
	}
	return r, nil
}

// Install fetches every app-shell path and stores them in the static
// namespace. Either all of them are stored or none are.
func (r *Router) Install(ctx context.Context) error {
	entries := make(map[string]*Response, len(r.appShell))
	for _, p := range r.appShell {
		u := r.b.urlFor(p)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return &InstallError{Path: p, Err: err}
		}
		resp, err := r.b.fetch(ctx, req)
		if err != nil {
			return &InstallError{Path: p, Err: err}
		}
		if resp.StatusCode != http.StatusOK {
			return &InstallError{Path: p, Err: fmt.Errorf("status %d", resp.StatusCode)}
		}
		entries[cacheKey(u)] = resp
	}

	ns := r.b.namespaces.Name(KindStatic)
	if err := r.b.storage.PutAll(ctx, ns, entries); err != nil {
		return &InstallError{Path: ns, Err: err}
	}
	r.b.logger.Info("app shell installed", "namespace", ns, "resources", len(entries))
	return nil
}

// Activate deletes every namespace of this prefix that is not part of the
// current generation, then lets the router serve.
func (r *Router) Activate(ctx context.Context) error {
	names, err := r.b.storage.Namespaces(ctx)
	if err != nil {
		return fmt.Errorf("listing namespaces: %w", err)
	}
	for _, name := range names {
		if !r.b.namespaces.Stale(name) {
			continue
		}
		if err := r.b.storage.DeleteNamespace(ctx, name); err != nil {
			return err
		}
		r.b.logger.Info("deleted stale namespace", "namespace", name)
	}
	r.activated.Store(true)
	return nil
}

// Activated reports whether Activate has succeeded.
func (r *Router) Activated() bool {
	return r.activated.Load()
}

// Namespaces lists the namespaces currently held in storage.
func (r *Router) Namespaces(ctx context.Context) ([]string, error) {
	return r.b.storage.Namespaces(ctx)
}

// Classify returns the rule that handles req.
func (r *Router) Classify(req *http.Request) Rule {
	return Classify(r.rules, req)
}

// Serve answers a GET through its policy. req must carry an absolute URL.
func (r *Router) Serve(ctx context.Context, req *http.Request) (*Response, error) {
	if !r.Activated() {
		return nil, ErrNotActivated
	}
	for i, rule := range r.rules {
		if rule.Match != nil && rule.Match(req) {
			return r.policies[i].Serve(ctx, req)
		}
	}
	p := &networkFirstPolicy{b: r.b, kind: fallbackRule.Namespace}
	return p.Serve(ctx, req)
}

// RoundTrip implements http.RoundTripper. Non-GET requests go straight to
// the network.
func (r *Router) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return r.b.transport.RoundTrip(req)
	}
	resp, err := r.Serve(req.Context(), req)
	if err != nil {
		return nil, err
	}
	return resp.HTTP(req), nil
}

// ServeHTTP proxies req to the upstream origin through the cache.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	out := r.outbound(req)

	if req.Method != http.MethodGet {
		r.passThrough(w, out)
		return
	}

	resp, err := r.Serve(req.Context(), out)
	switch {
	case err == nil:
		resp.WriteTo(w)
	case errors.Is(err, ErrNotActivated):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		r.b.logger.Debug("request failed", "path", req.URL.Path, "error", err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}
}

// Wait blocks until background refreshes finish.
func (r *Router) Wait() {
	r.b.wg.Wait()
}

// outbound rewrites an incoming server request into a request for the
// upstream origin.
func (r *Router) outbound(req *http.Request) *http.Request {
	out := req.Clone(req.Context())
	out.RequestURI = ""
	u := r.b.urlFor(req.URL.Path)
	u.RawQuery = req.URL.RawQuery
	out.URL = u
	out.Host = u.Host
	for h := range hopHeaders {
		out.Header.Del(h)
	}
	return out
}

func (r *Router) passThrough(w http.ResponseWriter, out *http.Request) {
	resp, err := r.b.transport.RoundTrip(out)
	if err != nil {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for k, vs := range resp.Header {
		if hopHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		w.Header()[k] = vs
	}
	w.Header().Set(SourceHeader, string(SourceNetwork))
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func singleJoin(base, p string) string {
	switch {
	case base == "" || base == "/":
		return p
	case strings.HasSuffix(base, "/") && strings.HasPrefix(p, "/"):
		return base + p[1:]
	case !strings.HasSuffix(base, "/") && !strings.HasPrefix(p, "/"):
		return base + "/" + p
	}
	return base + p
}

var (
	_ http.RoundTripper = (*Router)(nil)
	_ http.Handler      = (*Router)(nil)
)
