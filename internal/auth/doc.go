// Package auth authenticates devices that push records to a remote.
//
// # Device Tokens
//
// A device and the remote share a secret. Before each push the device mints
// a short-lived HS256 JWT whose "sub" claim is its device ID:
//
//	tokens := auth.NewDeviceTokens(secret)
//	token, err := tokens.Generate("laptop-1", auth.DefaultTokenTTL)
//
// The remote verifies it with the same secret. Tokens signed with any other
// algorithm, including "none", are rejected.
//
// # HTTP Middleware
//
// RequireDevice wraps remote endpoints. On success the verified device ID is
// available to handlers through DeviceFromContext.
package auth
