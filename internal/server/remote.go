// ABOUTME: Builds the sync remote selected by configuration
// ABOUTME: Returns an io.Closer alongside remotes that hold connections

package server

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/2389/snipsync/internal/auth"
	"github.com/2389/snipsync/internal/config"
	"github.com/2389/snipsync/internal/remote"
	"github.com/2389/snipsync/internal/store"
	"github.com/2389/snipsync/internal/syncer"
)

// ErrNoRemote is returned by pushes when sync.remote is "none".
var ErrNoRemote = errors.New("no remote configured")

// BuildRemote returns the remote named by cfg.Sync.Remote.
func BuildRemote(cfg *config.Config) (syncer.Remote, io.Closer, error) {
	switch cfg.Sync.Remote {
	case config.RemoteHTTP:
		var tokens *auth.DeviceTokens
		if cfg.Sync.TokenSecret != "" {
			tokens = auth.NewDeviceTokens([]byte(cfg.Sync.TokenSecret))
		}
		return remote.NewHTTPClient(cfg.Sync.URL, cfg.Sync.DeviceID, tokens, nil), nil, nil
	case config.RemotePostgres:
		pg, err := remote.NewPostgresRemote(cfg.Sync.PostgresDSN, cfg.Sync.PostgresTable)
		if err != nil {
			return nil, nil, fmt.Errorf("creating postgres remote: %w", err)
		}
		return pg, pg, nil
	case config.RemoteSimulated:
		return &remote.Simulated{SuccessRate: cfg.Sync.SuccessRate, Latency: cfg.Sync.Latency}, nil, nil
	case config.RemoteNone:
		return syncer.RemoteFunc(func(context.Context, *store.Record) error {
			return ErrNoRemote
		}), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown remote %q", cfg.Sync.Remote)
}
