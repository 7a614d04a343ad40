package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"buffer-orchestrator/internal/mediabuffer"
	"buffer-orchestrator/internal/mediastore"
	"buffer-orchestrator/internal/platform/metrics"

	"github.com/google/uuid"
)

var (
	// ErrMemberNotFound is returned for a kind the session has no member for.
	ErrMemberNotFound = errors.New("member not found")

	// ErrInvalidKind is returned for an unknown media kind.
	ErrInvalidKind = errors.New("invalid media kind")

	// ErrInvalidRange is returned for an empty or negative time range.
	ErrInvalidRange = errors.New("invalid time range")
)

// Options configures a Service.
type Options struct {
	Engine  mediabuffer.Config
	Store   mediastore.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Service creates sessions and routes requests to their engine.
type Service struct {
	repo    Repository
	opts    Options
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewService returns a Service that keeps its sessions in repo.
func NewService(repo Repository, opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, opts: opts, log: log, metrics: opts.Metrics}
}

// ParseKind validates a media kind.
func ParseKind(s string) (mediabuffer.MediaKind, error) {
	switch kind := mediabuffer.MediaKind(s); kind {
	case mediabuffer.KindAudio, mediabuffer.KindVideo, mediabuffer.KindText:
		return kind, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// CreateSession opens a fresh store and starts an engine on it.
func (s *Service) CreateSession() (SessionID, error) {
	id := SessionID(uuid.NewString())
	store := mediastore.New(s.opts.Store)
	if err := store.Open(); err != nil {
		store.Shutdown()
		return "", err
	}
	registry := mediabuffer.NewRegistry()
	engine, err := mediabuffer.New(store, mediabuffer.Options{
		Config:   s.opts.Engine,
		Logger:   s.log.With(slog.String("session_id", string(id))),
		Metrics:  s.metrics,
		Registry: registry,
	})
	if err != nil {
		store.Shutdown()
		return "", err
	}
	sess := &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Store:     store,
		Registry:  registry,
		Engine:    engine,
	}
	if err := s.repo.Add(sess); err != nil {
		engine.Dispose()
		store.Shutdown()
		return "", err
	}
	s.log.Info("session created", slog.String("session_id", string(id)))
	return id, nil
}

// DisposeSession tears the session down and forgets it.
func (s *Service) DisposeSession(id SessionID) error {
	sess, ok := s.repo.Remove(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.teardown(sess)
	s.log.Info("session disposed", slog.String("session_id", string(id)))
	return nil
}

// Close disposes every session.
func (s *Service) Close() {
	for _, sess := range s.repo.List() {
		if _, ok := s.repo.Remove(sess.ID); ok {
			s.teardown(sess)
		}
	}
}

func (s *Service) teardown(sess *Session) {
	sess.Engine.Dispose()
	sess.Store.Shutdown()
}

// ActiveSessions returns the number of live sessions.
func (s *Service) ActiveSessions() int {
	return s.repo.Count()
}

// Describe returns a snapshot of the session.
func (s *Service) Describe(id SessionID) (SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return SessionView{}, err
	}
	view := SessionView{
		ID:         sess.ID,
		CreatedAt:  sess.CreatedAt,
		ReadyState: sess.Engine.ReadyState(),
		Members:    []MemberView{},
	}
	if d := sess.Engine.Duration(); !math.IsNaN(d) {
		view.Duration = &d
	}
	for _, h := range sess.Registry.Handles() {
		view.Members = append(view.Members, MemberView{
			Kind:     h.Kind(),
			Codec:    h.Codec(),
			Pending:  h.Pending(),
			Buffered: h.BufferedRanges(),
		})
	}
	return view, nil
}

// AddMember creates a member of kind in the session's store.
func (s *Service) AddMember(id SessionID, kind mediabuffer.MediaKind, codec string) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	_, err = sess.Engine.AddMember(kind, codec)
	return err
}

// RemoveMember disposes the member of kind.
func (s *Service) RemoveMember(id SessionID, kind mediabuffer.MediaKind) error {
	h, err := s.member(id, kind)
	if err != nil {
		return err
	}
	h.Dispose()
	return nil
}

// Append pushes req's samples through the member's queue and waits for the
// store to consume them.
func (s *Service) Append(ctx context.Context, id SessionID, kind mediabuffer.MediaKind, req AppendRequest) (mediabuffer.TimeRanges, error) {
	h, err := s.member(id, kind)
	if err != nil {
		return nil, err
	}
	samples := make([]mediastore.Sample, 0, len(req.Samples))
	for _, smp := range req.Samples {
		samples = append(samples, mediastore.Sample{Start: smp.Start, Duration: smp.Duration, Data: smp.Data})
	}
	params := mediabuffer.AppendParams{Codec: req.Codec, TimestampOffset: req.TimestampOffset}
	if req.Window != nil {
		params.Window = &mediabuffer.AppendWindow{Start: req.Window.Start, End: req.Window.End}
	}
	return h.Append(mediastore.EncodeSamples(samples...), params).Wait(ctx)
}

// Evict removes [start, end) from the member and waits for completion.
func (s *Service) Evict(ctx context.Context, id SessionID, kind mediabuffer.MediaKind, start, end float64) (mediabuffer.TimeRanges, error) {
	if start < 0 || !(end > start) {
		return nil, ErrInvalidRange
	}
	h, err := s.member(id, kind)
	if err != nil {
		return nil, err
	}
	return h.Evict(start, end).Wait(ctx)
}

// Buffered returns the member's buffered ranges.
func (s *Service) Buffered(id SessionID, kind mediabuffer.MediaKind) (mediabuffer.TimeRanges, error) {
	h, err := s.member(id, kind)
	if err != nil {
		return nil, err
	}
	return h.BufferedRanges(), nil
}

// AbortMember cancels everything queued on the member.
func (s *Service) AbortMember(id SessionID, kind mediabuffer.MediaKind) error {
	h, err := s.member(id, kind)
	if err != nil {
		return err
	}
	h.Abort()
	return nil
}

// UpdateDuration sets the session's duration target.
func (s *Service) UpdateDuration(id SessionID, duration float64, realEndKnown bool) error {
	if math.IsNaN(duration) || duration < 0 {
		return ErrInvalidRange
	}
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	sess.Engine.UpdateDuration(duration, realEndKnown)
	return nil
}

// StopUpdatingDuration cancels pending duration updates.
func (s *Service) StopUpdatingDuration(id SessionID) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	sess.Engine.StopUpdatingDuration()
	return nil
}

// MaintainEndOfStream keeps the session's store ended whenever legal.
func (s *Service) MaintainEndOfStream(id SessionID) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	sess.Engine.MaintainEndOfStream()
	return nil
}

// StopEndOfStream disarms MaintainEndOfStream.
func (s *Service) StopEndOfStream(id SessionID) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	sess.Engine.StopEndOfStream()
	return nil
}

// OpenStore reattaches a closed store.
func (s *Service) OpenStore(id SessionID) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	return sess.Store.Open()
}

// CloseStore detaches the store as an upstream reset would. Members are
// dropped and their pending work cancelled.
func (s *Service) CloseStore(id SessionID) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	sess.Store.Close()
	return nil
}

func (s *Service) session(id SessionID) (*Session, error) {
	sess, ok := s.repo.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) member(id SessionID, kind mediabuffer.MediaKind) (*mediabuffer.BufferHandle, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	h, ok := sess.Registry.Get(kind)
	if !ok {
		return nil, ErrMemberNotFound
	}
	return h, nil
}
