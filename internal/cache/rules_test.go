// ABOUTME: Tests for request classification
// ABOUTME: Checks rule precedence without any network

package cache

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultRules_Precedence(t *testing.T) {
	rules := DefaultRules("/api/", "snippets")

	tests := []struct {
		name     string
		method   string
		path     string
		headers  map[string]string
		wantRule string
		want     PolicyKind
	}{
		{"api path", "GET", "/api/items", nil, "api", NetworkFirst},
		{"api beats data marker", "GET", "/api/snippets", nil, "api", NetworkFirst},
		{"api beats json accept", "GET", "/api/x", map[string]string{"Accept": "application/json"}, "api", NetworkFirst},
		{"data marker in path", "GET", "/snippets/42", nil, "data", StaleWhileRevalidate},
		{"json accept", "GET", "/list", map[string]string{"Accept": "application/json"}, "data", StaleWhileRevalidate},
		{"data beats navigation", "GET", "/snippets", map[string]string{"Sec-Fetch-Mode": "navigate"}, "data", StaleWhileRevalidate},
		{"data beats static", "GET", "/snippets.js", nil, "data", StaleWhileRevalidate},
		{"navigate mode", "GET", "/about", map[string]string{"Sec-Fetch-Mode": "navigate"}, "navigation", NetworkFirst},
		{"html accept", "GET", "/", map[string]string{"Accept": "text/html,application/xhtml+xml"}, "navigation", NetworkFirst},
		{"navigation beats static", "GET", "/page.css", map[string]string{"Sec-Fetch-Mode": "navigate"}, "navigation", NetworkFirst},
		{"cors fetch is not navigation", "GET", "/x", map[string]string{"Sec-Fetch-Mode": "cors", "Accept": "text/html"}, "default", NetworkFirst},
		{"script", "GET", "/scripts/app.js", nil, "static", CacheFirst},
		{"style", "GET", "/styles/main.css", nil, "static", CacheFirst},
		{"upper-case extension", "GET", "/LOGO.PNG", nil, "static", CacheFirst},
		{"icon", "GET", "/favicon.ico", nil, "static", CacheFirst},
		{"font falls through", "GET", "/font.woff2", nil, "default", NetworkFirst},
		{"plain", "GET", "/robots.txt", nil, "default", NetworkFirst},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, "http://origin.test"+tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			got := Classify(rules, req)
			assert.Equal(t, tt.wantRule, got.Name)
			assert.Equal(t, tt.want, got.Policy)
		})
	}
}

func TestDefaultRules_Namespaces(t *testing.T) {
	want := map[string]Kind{
		"api":        KindDynamic,
		"data":       KindData,
		"navigation": KindDynamic,
		"static":     KindStatic,
		"default":    KindDynamic,
	}
	for _, rule := range DefaultRules("/api/", "snippets") {
		assert.Equal(t, want[rule.Name], rule.Namespace, rule.Name)
	}
}

func TestClassify_EmptyRulesFallsBack(t *testing.T) {
	req, _ := http.NewRequest("GET", "http://origin.test/x.js", nil)
	assert.Equal(t, "default", Classify(nil, req).Name)
}

func TestNamespaces(t *testing.T) {
	ns := Namespaces{Prefix: "snipsync", Version: "v2"}
	assert.Equal(t, "snipsync-static-v2", ns.Name(KindStatic))
	assert.Equal(t, []string{"snipsync-static-v2", "snipsync-dynamic-v2", "snipsync-data-v2"}, ns.Current())

	assert.False(t, ns.Stale("snipsync-data-v2"))
	assert.True(t, ns.Stale("snipsync-data-v1"))
	assert.True(t, ns.Stale("snipsync-cache-v1"))
	assert.False(t, ns.Stale("other-static-v1"))
	assert.False(t, ns.Stale("snipsyncx-static-v1"))
}
