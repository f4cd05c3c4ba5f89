// Package cache fronts an upstream origin with a tiered response cache so
// the application keeps working offline.
//
// Every GET is classified by an ordered list of rules; the first match
// picks a policy and the namespace it writes:
//
//	api         /api/...                         network-first           dynamic
//	data        path contains "snippets" or JSON  stale-while-revalidate  data
//	navigation  full page loads                  network-first           dynamic
//	static      .js .css .png .jpg .svg .ico     cache-first             static
//	default     anything else                    network-first           dynamic
//
// Only 200 responses to GETs from the upstream origin are stored. A page
// load that fails with nothing cached gets the offline page.
//
// Namespaces are named <prefix>-<kind>-<version>. Install pre-populates the
// static namespace with the app shell in one transaction. Activate deletes
// the namespaces of older versions; the router refuses to serve until it
// has run.
package cache
