// ABOUTME: Error values returned by the cache router
// ABOUTME: Cache misses, serving before activation, and install failures

package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheMiss means the network failed and nothing usable was cached.
	ErrCacheMiss = errors.New("not cached and network unavailable")

	// ErrNotActivated is returned by the router until Activate succeeds.
	ErrNotActivated = errors.New("cache router not activated")
)

// InstallError reports the app-shell resource that failed during Install.
// Nothing is written when Install fails.
type InstallError struct {
	Path string
	Err  error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("installing %s: %v", e.Path, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

func missError(key string, netErr error) error {
	return fmt.Errorf("%w: %s: %w", ErrCacheMiss, key, netErr)
}
