// ABOUTME: Device identity carried through request handlers
// ABOUTME: Provides WithDevice/DeviceFromContext for propagating the verified device ID

package auth

import (
	"context"
)

// deviceKey is the key type for storing the device ID in context.Context.
type deviceKey struct{}

// WithDevice returns a new context carrying the verified device ID.
func WithDevice(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceKey{}, deviceID)
}

// DeviceFromContext returns the device ID set by RequireDevice, if any.
func DeviceFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(deviceKey{}).(string)
	return id, ok && id != ""
}
