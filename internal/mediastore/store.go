// Package mediastore is an in-memory media buffer store. It behaves like a
// browser MediaSource closely enough to drive the engine without one:
// completions are asynchronous, members refuse concurrent mutations, the
// store cycles through closed, open and ended, and quota can be exhausted.
package mediastore

import (
	"math"
	"sync"
	"time"

	"buffer-orchestrator/internal/mediabuffer"
	"buffer-orchestrator/internal/platform/eventloop"
)

// Error names used by the store.
const (
	InvalidStateError = "InvalidStateError"
	TypeError         = "TypeError"
	NotSupportedError = "NotSupportedError"
	NotFoundError     = "NotFoundError"
	ParseError        = "ParseError"
)

// Error is a named store error.
type Error struct {
	Name    string
	Message string
}

func (e *Error) Error() string { return e.Name + ": " + e.Message }

// ErrorName returns the DOM-style name, e.g. "QuotaExceededError".
func (e *Error) ErrorName() string { return e.Name }

func newError(name, msg string) *Error { return &Error{Name: name, Message: msg} }

// Config tunes the simulation.
type Config struct {
	// Latency delays every mutation's completion.
	Latency time.Duration

	// QuotaSeconds caps the buffered seconds per member. Zero disables it.
	QuotaSeconds float64
}

// Stats counts store calls.
type Stats struct {
	Appends      int
	Removes      int
	DurationSets int
	EndOfStreams int
}

// Store implements mediabuffer.Store. It is safe for concurrent use;
// notifications are delivered in order on a dispatcher goroutine.
type Store struct {
	mu        sync.Mutex
	cfg       Config
	state     mediabuffer.ReadyState
	duration  float64
	seekable  *mediabuffer.TimeRange
	members   []*Member
	listeners map[int]func(mediabuffer.StoreEvent)
	nextID    int
	stats     Stats

	events *eventloop.Loop
}

// New returns a closed store. Call Open before adding members.
func New(cfg Config) *Store {
	return &Store{
		cfg:       cfg,
		state:     mediabuffer.StateClosed,
		duration:  math.NaN(),
		listeners: make(map[int]func(mediabuffer.StoreEvent)),
		events:    eventloop.New().Start(),
	}
}

// Open moves a closed store to open.
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != mediabuffer.StateClosed {
		return newError(InvalidStateError, "store is not closed")
	}
	s.state = mediabuffer.StateOpen
	s.emitLocked(mediabuffer.StoreEvent{Type: mediabuffer.StoreOpened})
	return nil
}

// Close detaches the store: every member is removed, the duration is
// forgotten and the state becomes closed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == mediabuffer.StateClosed {
		return
	}
	for len(s.members) > 0 {
		s.removeLocked(s.members[0])
	}
	s.state = mediabuffer.StateClosed
	s.duration = math.NaN()
	s.seekable = nil
	s.emitLocked(mediabuffer.StoreEvent{Type: mediabuffer.StoreClosed})
}

// Shutdown stops notification delivery after pending ones were sent.
func (s *Store) Shutdown() {
	s.events.Close()
	<-s.events.Done()
}

// Stats returns call counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// SeekableEnd returns the end of the live seekable range, or 0 if unset.
func (s *Store) SeekableEnd() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seekable == nil {
		return 0
	}
	return s.seekable.End
}

func (s *Store) ReadyState() mediabuffer.ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) AddMember(kind mediabuffer.MediaKind, codec string) (mediabuffer.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != mediabuffer.StateOpen {
		return nil, newError(InvalidStateError, "store is not open")
	}
	if codec == "" {
		return nil, newError(NotSupportedError, "empty codec")
	}
	m := &Member{
		store:     s,
		kind:      kind,
		codec:     codec,
		windowEnd: math.Inf(1),
		listeners: make(map[int]func(mediabuffer.MemberEvent)),
	}
	s.members = append(s.members, m)
	s.emitLocked(mediabuffer.StoreEvent{Type: mediabuffer.MemberAdded, Member: m})
	return m, nil
}

func (s *Store) RemoveMember(member mediabuffer.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if mediabuffer.Member(m) == member {
			s.removeLocked(m)
			return nil
		}
	}
	return newError(NotFoundError, "not a member of this store")
}

func (s *Store) removeLocked(m *Member) {
	if m.updating {
		m.cancelLocked()
	}
	m.removed = true
	for i, cur := range s.members {
		if cur == m {
			s.members = append(s.members[:i], s.members[i+1:]...)
			break
		}
	}
	s.emitLocked(mediabuffer.StoreEvent{Type: mediabuffer.MemberRemoved, Member: m})
}

func (s *Store) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *Store) SetDuration(d float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.DurationSets++
	if math.IsNaN(d) || d < 0 {
		return newError(TypeError, "invalid duration")
	}
	if err := s.checkIdleOpenLocked(); err != nil {
		return err
	}
	if d < s.bufferedEndLocked() {
		return newError(InvalidStateError, "duration below buffered data")
	}
	s.duration = d
	return nil
}

func (s *Store) SetLiveSeekableRange(start, end float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != mediabuffer.StateOpen {
		return newError(InvalidStateError, "store is not open")
	}
	if start < 0 || end < start {
		return newError(TypeError, "invalid seekable range")
	}
	s.seekable = &mediabuffer.TimeRange{Start: start, End: end}
	return nil
}

func (s *Store) EndOfStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.EndOfStreams++
	if err := s.checkIdleOpenLocked(); err != nil {
		return err
	}
	if end := s.bufferedEndLocked(); end > 0 {
		s.duration = end
	}
	s.state = mediabuffer.StateEnded
	s.emitLocked(mediabuffer.StoreEvent{Type: mediabuffer.StoreEnded})
	return nil
}

func (s *Store) Subscribe(fn func(mediabuffer.StoreEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) checkIdleOpenLocked() error {
	if s.state != mediabuffer.StateOpen {
		return newError(InvalidStateError, "store is not open")
	}
	for _, m := range s.members {
		if m.updating {
			return newError(InvalidStateError, "a member is updating")
		}
	}
	return nil
}

func (s *Store) bufferedEndLocked() float64 {
	var end float64
	for _, m := range s.members {
		end = max(end, m.buffered.End())
	}
	return end
}

// reopenLocked implements the ended → open transition a mutation causes.
func (s *Store) reopenLocked() {
	if s.state == mediabuffer.StateEnded {
		s.state = mediabuffer.StateOpen
		s.emitLocked(mediabuffer.StoreEvent{Type: mediabuffer.StoreOpened})
	}
}

func (s *Store) emitLocked(ev mediabuffer.StoreEvent) {
	fns := make([]func(mediabuffer.StoreEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.events.Post(func() {
		for _, fn := range fns {
			fn(ev)
		}
	})
}
