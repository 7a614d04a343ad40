package playback

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"buffer-orchestrator/internal/mediabuffer"
	"buffer-orchestrator/internal/mediastore"

	"github.com/go-chi/chi/v5"
)

// Handler exposes session HTTP endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes mounts every session endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{session_id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.DisposeSession)
		r.Post("/members", h.AddMember)
		r.Route("/members/{kind}", func(r chi.Router) {
			r.Delete("/", h.RemoveMember)
			r.Post("/append", h.Append)
			r.Post("/evict", h.Evict)
			r.Get("/buffered", h.Buffered)
			r.Post("/abort", h.Abort)
		})
		r.Post("/duration", h.UpdateDuration)
		r.Delete("/duration", h.StopUpdatingDuration)
		r.Post("/eos", h.MaintainEndOfStream)
		r.Delete("/eos", h.StopEndOfStream)
		r.Post("/store/open", h.OpenStore)
		r.Post("/store/close", h.CloseStore)
	})
}

// CreateSession handles POST /sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.CreateSession()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: id})
}

// GetSession handles GET /sessions/{session_id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Describe(sessionID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DisposeSession handles DELETE /sessions/{session_id}.
func (h *Handler) DisposeSession(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.DisposeSession(sessionID(r)))
}

// AddMember handles POST /sessions/{session_id}/members.
// Body: { "kind": "video", "codec": "avc1.64001f" }.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if !h.decode(w, r, &req) {
		return
	}
	kind, err := ParseKind(string(req.Kind))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.AddMember(sessionID(r), kind, req.Codec); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.log.Debug("member added",
		slog.String("session_id", string(sessionID(r))),
		slog.String("kind", string(kind)),
		slog.String("codec", req.Codec))
	w.WriteHeader(http.StatusCreated)
}

// RemoveMember handles DELETE /sessions/{session_id}/members/{kind}.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	h.respond(w, r, h.svc.RemoveMember(sessionID(r), kind))
}

// Append handles POST /sessions/{session_id}/members/{kind}/append and
// answers once the store consumed the samples.
func (h *Handler) Append(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	var req AppendRequest
	if !h.decode(w, r, &req) {
		return
	}
	ranges, err := h.svc.Append(r.Context(), sessionID(r), kind, req)
	h.writeRanges(w, r, ranges, err)
}

// Evict handles POST /sessions/{session_id}/members/{kind}/evict.
// Body: { "start": 5, "end": 8 }.
func (h *Handler) Evict(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	var req EvictRequest
	if !h.decode(w, r, &req) {
		return
	}
	ranges, err := h.svc.Evict(r.Context(), sessionID(r), kind, req.Start, req.End)
	h.writeRanges(w, r, ranges, err)
}

// Buffered handles GET /sessions/{session_id}/members/{kind}/buffered.
func (h *Handler) Buffered(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	ranges, err := h.svc.Buffered(sessionID(r), kind)
	h.writeRanges(w, r, ranges, err)
}

// Abort handles POST /sessions/{session_id}/members/{kind}/abort.
func (h *Handler) Abort(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kind(w, r)
	if !ok {
		return
	}
	h.respond(w, r, h.svc.AbortMember(sessionID(r), kind))
}

// UpdateDuration handles POST /sessions/{session_id}/duration.
// Body: { "duration": 120, "real_end_known": true }.
func (h *Handler) UpdateDuration(w http.ResponseWriter, r *http.Request) {
	var req DurationRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.UpdateDuration(sessionID(r), req.Duration, req.RealEndKnown); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// StopUpdatingDuration handles DELETE /sessions/{session_id}/duration.
func (h *Handler) StopUpdatingDuration(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.StopUpdatingDuration(sessionID(r)))
}

// MaintainEndOfStream handles POST /sessions/{session_id}/eos.
func (h *Handler) MaintainEndOfStream(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MaintainEndOfStream(sessionID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// StopEndOfStream handles DELETE /sessions/{session_id}/eos.
func (h *Handler) StopEndOfStream(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.StopEndOfStream(sessionID(r)))
}

// OpenStore handles POST /sessions/{session_id}/store/open.
func (h *Handler) OpenStore(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.OpenStore(sessionID(r)))
}

// CloseStore handles POST /sessions/{session_id}/store/close.
func (h *Handler) CloseStore(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.CloseStore(sessionID(r)))
}

func sessionID(r *http.Request) SessionID {
	return SessionID(chi.URLParam(r, "session_id"))
}

func (h *Handler) kind(w http.ResponseWriter, r *http.Request) (mediabuffer.MediaKind, bool) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, r, err)
		return "", false
	}
	return kind, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.log.Debug("invalid request body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeRanges(w http.ResponseWriter, r *http.Request, ranges mediabuffer.TimeRanges, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ranges == nil {
		ranges = mediabuffer.TimeRanges{}
	}
	writeJSON(w, http.StatusOK, RangesResponse{Buffered: ranges})
}

// writeError maps err to a status code. Mutation failures the caller can
// recover from by evicting answer 507, other mutation failures 422.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var (
		mutErr   *mediabuffer.MutationError
		storeErr *mediastore.Error
	)
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrMemberNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidKind), errors.Is(err, ErrInvalidRange):
		status = http.StatusBadRequest
	case errors.Is(err, mediabuffer.ErrCancelled),
		errors.Is(err, mediabuffer.ErrMemberExists),
		errors.Is(err, mediabuffer.ErrStoreClosed):
		status = http.StatusConflict
	case errors.As(err, &mutErr):
		resp.Name, resp.Recoverable = mutErr.Name, mutErr.Recoverable
		status = http.StatusUnprocessableEntity
		if mutErr.Recoverable {
			status = http.StatusInsufficientStorage
		}
	case errors.As(err, &storeErr):
		resp.Name = storeErr.Name
		status = http.StatusConflict
		if storeErr.Name == mediastore.TypeError || storeErr.Name == mediastore.NotSupportedError {
			status = http.StatusBadRequest
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()))
	} else {
		h.log.Debug("request rejected",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
