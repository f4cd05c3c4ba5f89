// ABOUTME: Reference HTTP endpoint that accepts pushed records
// ABOUTME: Verifies device tokens and record schema; used by tests and `snipsync sink`

package remote

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/2389/snipsync/internal/auth"
	"github.com/2389/snipsync/internal/store"
)

// maxPushBytes bounds a single pushed record.
const maxPushBytes = 2 << 20

// Sink is a minimal remote: it keeps the latest version of every record
// it has accepted. It performs no conflict detection.
type Sink struct {
	verifier auth.TokenVerifier
	logger   *slog.Logger

	mu      sync.RWMutex
	records map[string]store.Record
	pushes  int
}

// NewSink creates a sink. A nil verifier accepts unauthenticated pushes.
func NewSink(verifier auth.TokenVerifier, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		verifier: verifier,
		logger:   logger.With("component", "sink"),
		records:  make(map[string]store.Record),
	}
}

// Handler returns the sink's HTTP routes.
func (s *Sink) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("PUT /v1/records/{id}", auth.RequireDevice(s.verifier, s.logger)(http.HandlerFunc(s.handlePut)))
	mux.HandleFunc("GET /v1/records/{id}", s.handleGet)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("HEAD /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Record returns the accepted version of id.
func (s *Sink) Record(id string) (store.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Pushes returns how many pushes were accepted.
func (s *Sink) Pushes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pushes
}

func (s *Sink) handlePut(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := auth.DeviceFromContext(r.Context())
	if !ok {
		deviceID = "anonymous"
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPushBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
		return
	}
	if err := store.ValidatePush(body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_record", err.Error())
		return
	}

	var rec store.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	if rec.ID != r.PathValue("id") {
		writeError(w, http.StatusBadRequest, "id_mismatch", "path id does not match record id")
		return
	}

	s.mu.Lock()
	s.records[rec.ID] = rec
	s.pushes++
	s.mu.Unlock()

	s.logger.Debug("accepted record", "id", rec.ID, "device", deviceID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Sink) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.Record(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no such record")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": msg})
}
