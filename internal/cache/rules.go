// ABOUTME: Ordered request classification rules
// ABOUTME: The first matching rule picks the policy and namespace for a request

package cache

import (
	"net/http"
	"path"
	"strings"
)

// PolicyKind names one of the three serving strategies.
type PolicyKind string

const (
	CacheFirst           PolicyKind = "cache-first"
	NetworkFirst         PolicyKind = "network-first"
	StaleWhileRevalidate PolicyKind = "stale-while-revalidate"
)

// Rule maps a request predicate onto a policy. Rules are evaluated in
// order and the first match wins.
type Rule struct {
	Name      string
	Match     func(*http.Request) bool
	Policy    PolicyKind
	Namespace Kind
}

// fallbackRule applies when no rule matches.
var fallbackRule = Rule{
	Name:      "default",
	Match:     func(*http.Request) bool { return true },
	Policy:    NetworkFirst,
	Namespace: KindDynamic,
}

// StaticExtensions are the asset extensions served cache-first.
var StaticExtensions = []string{".js", ".css", ".png", ".jpg", ".svg", ".ico"}

// DefaultRules returns the standard precedence: API, data, navigation,
// static assets, then everything else.
func DefaultRules(apiPrefix, dataMarker string) []Rule {
	return []Rule{
		{
			Name:      "api",
			Match:     func(r *http.Request) bool { return apiPrefix != "" && strings.HasPrefix(r.URL.Path, apiPrefix) },
			Policy:    NetworkFirst,
			Namespace: KindDynamic,
		},
		{
			Name: "data",
			Match: func(r *http.Request) bool {
				if dataMarker != "" && strings.Contains(r.URL.Path, dataMarker) {
					return true
				}
				return strings.Contains(r.Header.Get("Accept"), "application/json")
			},
			Policy:    StaleWhileRevalidate,
			Namespace: KindData,
		},
		{
			Name:      "navigation",
			Match:     IsNavigation,
			Policy:    NetworkFirst,
			Namespace: KindDynamic,
		},
		{
			Name:      "static",
			Match:     isStaticAsset,
			Policy:    CacheFirst,
			Namespace: KindStatic,
		},
		fallbackRule,
	}
}

// Classify returns the first rule in rules that matches r.
func Classify(rules []Rule, r *http.Request) Rule {
	for _, rule := range rules {
		if rule.Match != nil && rule.Match(r) {
			return rule
		}
	}
	return fallbackRule
}

// IsNavigation reports whether r is a full-page load. Browsers say so
// with Sec-Fetch-Mode; other clients are recognised by a GET that
// accepts HTML.
func IsNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return r.Method == http.MethodGet && AcceptsHTML(r)
}

// AcceptsHTML reports whether the Accept header lists text/html.
func AcceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func isStaticAsset(r *http.Request) bool {
	ext := strings.ToLower(path.Ext(r.URL.Path))
	for _, e := range StaticExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
