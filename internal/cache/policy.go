// ABOUTME: The three serving policies: cache-first, network-first, stale-while-revalidate
// ABOUTME: Each policy reads and writes one namespace through the shared backend

package cache

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Policy serves one request. req carries an absolute upstream URL.
type Policy interface {
	Name() string
	Serve(ctx context.Context, req *http.Request) (*Response, error)
}

// backend is what policies share: the network, storage and namespaces.
type backend struct {
	transport      http.RoundTripper
	storage        Storage
	upstream       *url.URL
	namespaces     Namespaces
	offlinePath    string
	offlinePage    *Response
	refreshTimeout time.Duration
	logger         *slog.Logger

	refreshing *inflight
	wg         sync.WaitGroup
}

func (b *backend) fetch(ctx context.Context, req *http.Request) (*Response, error) {
	resp, err := b.transport.RoundTrip(req.Clone(ctx))
	if err != nil {
		return nil, err
	}
	out, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if out.URL == "" {
		out.URL = req.URL.String()
	}
	return out, nil
}

// cacheable reports whether resp may be stored: a 200 answer to a GET
// from the upstream origin.
func (b *backend) cacheable(req *http.Request, resp *Response) bool {
	if resp.StatusCode != http.StatusOK || req.Method != http.MethodGet {
		return false
	}
	return sameOrigin(req.URL, b.upstream)
}

func (b *backend) store(ctx context.Context, kind Kind, key string, resp *Response) {
	ns := b.namespaces.Name(kind)
	if err := b.storage.Put(ctx, ns, key, resp); err != nil {
		b.logger.Warn("failed to cache response", "namespace", ns, "key", key, "error", err)
	}
}

// match looks key up in every current namespace, static first.
func (b *backend) match(ctx context.Context, key string) (*Response, bool) {
	for _, ns := range b.namespaces.Current() {
		resp, ok, err := b.storage.Get(ctx, ns, key)
		if err != nil {
			b.logger.Warn("cache lookup failed", "namespace", ns, "key", key, "error", err)
			continue
		}
		if ok {
			return resp, true
		}
	}
	return nil, false
}

// offline returns the offline page: the cached copy from the app shell if
// there is one, otherwise the built-in page.
func (b *backend) offline(ctx context.Context) (*Response, bool) {
	if b.offlinePath != "" {
		if resp, ok := b.match(ctx, b.resolve(b.offlinePath)); ok {
			return resp.clone(SourceOffline), true
		}
	}
	if b.offlinePage != nil {
		return b.offlinePage.clone(SourceOffline), true
	}
	return nil, false
}

// urlFor returns the upstream URL for a local path.
func (b *backend) urlFor(p string) *url.URL {
	u := *b.upstream
	u.Path = singleJoin(b.upstream.Path, p)
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return &u
}

func (b *backend) resolve(p string) string {
	return cacheKey(b.urlFor(p))
}

type cacheFirstPolicy struct {
	b    *backend
	kind Kind
}

func (p *cacheFirstPolicy) Name() string { return string(CacheFirst) }

// Serve returns a cache hit without touching the network. A miss is
// fetched and, if cacheable, stored before it is returned.
func (p *cacheFirstPolicy) Serve(ctx context.Context, req *http.Request) (*Response, error) {
	key := cacheKey(req.URL)
	if resp, ok := p.b.match(ctx, key); ok {
		return resp, nil
	}

	resp, err := p.b.fetch(ctx, req)
	if err != nil {
		return nil, missError(key, err)
	}
	if p.b.cacheable(req, resp) {
		p.b.store(ctx, p.kind, key, resp)
	}
	return resp, nil
}

type networkFirstPolicy struct {
	b    *backend
	kind Kind
}

func (p *networkFirstPolicy) Name() string { return string(NetworkFirst) }

// Serve prefers the network. Any response the network gives, including
// errors, is returned as is; the cache is only consulted when the fetch
// itself fails.
func (p *networkFirstPolicy) Serve(ctx context.Context, req *http.Request) (*Response, error) {
	key := cacheKey(req.URL)
	resp, err := p.b.fetch(ctx, req)
	if err == nil {
		if p.b.cacheable(req, resp) {
			p.b.store(ctx, p.kind, key, resp)
		}
		return resp, nil
	}

	p.b.logger.Debug("network failed, trying cache", "key", key, "error", err)
	if cached, ok := p.b.match(ctx, key); ok {
		return cached, nil
	}
	if AcceptsHTML(req) {
		if page, ok := p.b.offline(ctx); ok {
			return page, nil
		}
	}
	return nil, missError(key, err)
}

type staleWhileRevalidatePolicy struct {
	b    *backend
	kind Kind
}

func (p *staleWhileRevalidatePolicy) Name() string { return string(StaleWhileRevalidate) }

// Serve answers from the namespace immediately when it can and refreshes
// the entry in the background. Without an entry the caller waits for the
// network.
func (p *staleWhileRevalidatePolicy) Serve(ctx context.Context, req *http.Request) (*Response, error) {
	key := cacheKey(req.URL)
	ns := p.b.namespaces.Name(p.kind)

	cached, ok, err := p.b.storage.Get(ctx, ns, key)
	if err != nil {
		p.b.logger.Warn("cache lookup failed", "namespace", ns, "key", key, "error", err)
	}
	if ok {
		p.revalidate(req, key)
		return cached, nil
	}

	resp, err := p.b.fetch(ctx, req)
	if err != nil {
		return nil, missError(key, err)
	}
	if p.b.cacheable(req, resp) {
		p.b.store(ctx, p.kind, key, resp)
	}
	return resp, nil
}

// revalidate refreshes key on a context detached from the caller. Failures
// are logged; the stale entry stays.
func (p *staleWhileRevalidatePolicy) revalidate(req *http.Request, key string) {
	if !p.b.refreshing.begin(key) {
		return
	}
	p.b.wg.Add(1)
	go func() {
		defer p.b.wg.Done()
		defer p.b.refreshing.end(key)

		ctx, cancel := context.WithTimeout(context.WithoutCancel(req.Context()), p.b.refreshTimeout)
		defer cancel()

		resp, err := p.b.fetch(ctx, req)
		if err != nil {
			p.b.logger.Warn("background refresh failed", "key", key, "error", err)
			return
		}
		if !p.b.cacheable(req, resp) {
			p.b.logger.Debug("background refresh not cacheable", "key", key, "status", resp.StatusCode)
			return
		}
		p.b.store(ctx, p.kind, key, resp)
	}()
}

func newPolicy(b *backend, rule Rule) (Policy, error) {
	switch rule.Policy {
	case CacheFirst:
		return &cacheFirstPolicy{b: b, kind: rule.Namespace}, nil
	case NetworkFirst:
		return &networkFirstPolicy{b: b, kind: rule.Namespace}, nil
	case StaleWhileRevalidate:
		return &staleWhileRevalidatePolicy{b: b, kind: rule.Namespace}, nil
	default:
		return nil, fmt.Errorf("rule %q: unknown policy %q", rule.Name, rule.Policy)
	}
}

// cacheKey identifies a request by its URL without the fragment.
func cacheKey(u *url.URL) string {
	k := *u
	k.Fragment = ""
	k.RawFragment = ""
	return k.String()
}

func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host
}
