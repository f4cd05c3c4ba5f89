// ABOUTME: Local JSON API under /_snipsync/ for records, sync runs, and status
// ABOUTME: Used by the app shell, the CLI, and scripts; never forwarded to the origin

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/2389/snipsync/internal/assets"
	"github.com/2389/snipsync/internal/store"
	"github.com/2389/snipsync/internal/syncer"
)

// APIPrefix is the path prefix the daemon keeps for itself.
const APIPrefix = "/_snipsync/"

// maxInputBytes bounds a record document posted to the local API.
const maxInputBytes = 2 << 20

// recordInput is what clients send to create or edit a record.
type recordInput struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Tag     string `json:"tag"`
}

// SyncResponse is the body of the sync endpoints.
type SyncResponse struct {
	syncer.Result
	Error string `json:"error,omitempty"`
}

// StatusResponse reports the daemon's view of sync and cache state.
type StatusResponse struct {
	Online   bool                    `json:"online"`
	LastSync *time.Time              `json:"lastSync,omitempty"`
	Total    int                     `json:"total"`
	Pending  int                     `json:"pending"`
	Errors   int                     `json:"errors"`
	Session  *syncer.SessionSnapshot `json:"session,omitempty"`
	Cache    *CacheStatus            `json:"cache,omitempty"`
}

// CacheStatus describes the cache router when an origin is configured.
type CacheStatus struct {
	Origin     string   `json:"origin"`
	Activated  bool     `json:"activated"`
	Namespaces []string `json:"namespaces"`
}

// Handler returns the daemon's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /_snipsync/records", s.handleListRecords)
	mux.HandleFunc("POST /_snipsync/records", s.handleCreateRecord)
	mux.HandleFunc("GET /_snipsync/records/{id}", s.handleGetRecord)
	mux.HandleFunc("PUT /_snipsync/records/{id}", s.handleUpdateRecord)
	mux.HandleFunc("DELETE /_snipsync/records/{id}", s.handleDeleteRecord)
	mux.HandleFunc("POST /_snipsync/records/{id}/sync", s.handleSyncOne)
	mux.HandleFunc("POST /_snipsync/sync", s.handleSyncAll)
	mux.HandleFunc("GET /_snipsync/status", s.handleStatus)
	mux.HandleFunc("POST /_snipsync/connectivity", s.handleConnectivity)
	mux.HandleFunc("GET /_snipsync/events", s.handleEvents)
	mux.HandleFunc("POST /_snipsync/cache/install", s.handleCacheInstall)
	mux.HandleFunc(APIPrefix, func(w http.ResponseWriter, r *http.Request) {
		sendJSONError(w, http.StatusNotFound, "not found")
	})

	if s.router != nil {
		mux.Handle("/", s.router)
	} else {
		mux.Handle("/", assets.FileServer())
	}
	return mux
}

// handleHealth returns 200 OK for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		records []*store.Record
		err     error
	)
	switch {
	case q.Get("status") != "":
		status := store.SyncStatus(q.Get("status"))
		if !status.Valid() {
			sendJSONError(w, http.StatusBadRequest, "status must be pending, synced, or error")
			return
		}
		records, err = s.store.GetByStatus(ctx, status)
	case q.Get("tag") != "":
		records, err = s.store.GetByTag(ctx, q.Get("tag"))
	case q.Get("since") != "":
		since, perr := time.Parse(time.RFC3339Nano, q.Get("since"))
		if perr != nil {
			sendJSONError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		records, err = s.store.GetModifiedSince(ctx, since)
	default:
		records, err = s.store.GetAll(ctx)
	}
	if err != nil {
		s.logger.Error("listing records", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to list records")
		return
	}

	// newest first, the order the app shell renders
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if records == nil {
		records = []*store.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// readInput decodes and validates a record document from the request body.
func readInput(w http.ResponseWriter, r *http.Request) (*recordInput, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInputBytes))
	if err != nil {
		sendJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	if err := store.ValidateInput(body); err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	var in recordInput
	if err := json.Unmarshal(body, &in); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON")
		return nil, false
	}
	return &in, true
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	in, ok := readInput(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Put(r.Context(), &store.Record{ID: in.ID, Content: in.Content, Tag: in.Tag})
	if err != nil {
		s.logger.Error("creating record", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to save record")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		sendJSONError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		s.logger.Error("getting record", "id", r.PathValue("id"), "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	in, ok := readInput(w, r)
	if !ok {
		return
	}
	if in.ID != "" && in.ID != id {
		sendJSONError(w, http.StatusBadRequest, "path id does not match record id")
		return
	}
	rec, err := s.store.Put(r.Context(), &store.Record{ID: id, Content: in.Content, Tag: in.Tag})
	if err != nil {
		s.logger.Error("updating record", "id", id, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to save record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.logger.Error("deleting record", "id", id, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to delete record")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSyncAll runs a bulk sync. The run outlives a client that hangs up.
func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.SyncAll(context.WithoutCancel(r.Context()))
	writeSyncResult(w, res, err)
}

func (s *Server) handleSyncOne(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.SyncOne(context.WithoutCancel(r.Context()), r.PathValue("id"))
	writeSyncResult(w, res, err)
}

// writeSyncResult always reports the Result; remote failures are part of
// a normal sync answer, so only a run that could not start is a 500.
func writeSyncResult(w http.ResponseWriter, res syncer.Result, err error) {
	resp := SyncResponse{Result: res}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		if res.Total == 0 {
			status = http.StatusInternalServerError
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{Online: s.conn.Online()}

	last, ok, err := s.engine.LastSync(ctx)
	if err != nil {
		s.logger.Error("reading last sync", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to read status")
		return
	}
	if ok {
		resp.LastSync = &last
	}

	records, err := s.store.GetAll(ctx)
	if err != nil {
		s.logger.Error("counting records", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to read status")
		return
	}
	resp.Total = len(records)
	for _, rec := range records {
		switch rec.SyncStatus {
		case store.SyncStatusPending:
			resp.Pending++
		case store.SyncStatusError:
			resp.Errors++
		}
	}

	if snap, live := s.engine.Session(); live {
		resp.Session = &snap
	}

	if s.router != nil {
		namespaces, err := s.router.Namespaces(ctx)
		if err != nil {
			s.logger.Warn("listing cache namespaces", "error", err)
		}
		if namespaces == nil {
			namespaces = []string{}
		}
		resp.Cache = &CacheStatus{
			Origin:     s.config.Origin.URL,
			Activated:  s.router.Activated(),
			Namespaces: namespaces,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleConnectivity lets the app shell report browser online/offline
// transitions. Coming back online triggers a sync.
func (s *Server) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Online *bool `json:"online"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&body); err != nil || body.Online == nil {
		sendJSONError(w, http.StatusBadRequest, `body must be {"online": true|false}`)
		return
	}
	s.conn.SetOnline(*body.Online)
	writeJSON(w, http.StatusOK, map[string]bool{"online": s.conn.Online()})
}

// handleCacheInstall re-runs the app shell install and activates the
// current generation.
func (s *Server) handleCacheInstall(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		sendJSONError(w, http.StatusConflict, "no origin configured")
		return
	}
	ctx := r.Context()
	if err := s.router.Install(ctx); err != nil {
		s.logger.Warn("app shell install failed", "error", err)
		sendJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	if err := s.router.Activate(ctx); err != nil {
		s.logger.Error("activating cache", "error", err)
		sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	namespaces, _ := s.router.Namespaces(ctx)
	writeJSON(w, http.StatusOK, CacheStatus{
		Origin:     s.config.Origin.URL,
		Activated:  true,
		Namespaces: namespaces,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
