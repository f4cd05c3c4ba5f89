// Package server runs the snipsync daemon.
//
// The HTTP listener serves the local API under /_snipsync/ and hands every
// other path to the cache router, which fronts origin.url. Without an
// origin the embedded app shell is served directly. An optional gRPC
// listener exposes the standard health service; the "snipsync.sync"
// service reports NOT_SERVING while the device is offline.
package server
