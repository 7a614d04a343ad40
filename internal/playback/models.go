package playback

import (
	"time"

	"buffer-orchestrator/internal/mediabuffer"
	"buffer-orchestrator/internal/mediastore"
)

// SessionID uniquely identifies a playback session.
type SessionID string

// Session is one loaded content: a media store and the engine driving it.
type Session struct {
	ID        SessionID
	CreatedAt time.Time
	Store     *mediastore.Store
	Registry  *mediabuffer.Registry
	Engine    *mediabuffer.Engine
}

// Sample is one timed unit of media in an append request.
// Data is base64 in JSON.
type Sample struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Data     []byte  `json:"data,omitempty"`
}

// Window bounds an append. A missing side means unbounded.
type Window struct {
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
}

// AddMemberRequest is the body of POST /sessions/{id}/members.
type AddMemberRequest struct {
	Kind  mediabuffer.MediaKind `json:"kind"`
	Codec string                `json:"codec"`
}

// AppendRequest is the body of POST .../members/{kind}/append.
type AppendRequest struct {
	Samples         []Sample `json:"samples"`
	Codec           string   `json:"codec,omitempty"`
	TimestampOffset *float64 `json:"timestamp_offset,omitempty"`
	Window          *Window  `json:"window,omitempty"`
}

// EvictRequest is the body of POST .../members/{kind}/evict.
type EvictRequest struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// DurationRequest is the body of POST /sessions/{id}/duration.
type DurationRequest struct {
	Duration     float64 `json:"duration"`
	RealEndKnown bool    `json:"real_end_known"`
}

// MemberView describes one member of a session.
type MemberView struct {
	Kind     mediabuffer.MediaKind  `json:"kind"`
	Codec    string                 `json:"codec"`
	Pending  int                    `json:"pending"`
	Buffered mediabuffer.TimeRanges `json:"buffered"`
}

// SessionView is the response of GET /sessions/{id}. Duration is omitted
// while the store reports none.
type SessionView struct {
	ID         SessionID              `json:"id"`
	CreatedAt  time.Time              `json:"created_at"`
	ReadyState mediabuffer.ReadyState `json:"ready_state"`
	Duration   *float64               `json:"duration,omitempty"`
	Members    []MemberView           `json:"members"`
}

// RangesResponse carries a member's buffered ranges.
type RangesResponse struct {
	Buffered mediabuffer.TimeRanges `json:"buffered"`
}

// CreatedResponse is the response of POST /sessions.
type CreatedResponse struct {
	ID SessionID `json:"id"`
}

// ErrorResponse is written for every failed request.
type ErrorResponse struct {
	Error       string `json:"error"`
	Name        string `json:"name,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`
}
