package mediabuffer

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
)

// fakeStore is a hand-driven Store. Mutations only record what was asked;
// tests complete them explicitly, which fires the notifications.
type fakeStore struct {
	mu          sync.Mutex
	state       ReadyState
	duration    float64
	seekableEnd float64
	members     []*fakeMember
	listeners   map[int]func(StoreEvent)
	nextID      int

	failDurationSets int
	durationSets     []float64
	clampDuration    float64
	eosCalls         int
	eosErr           error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		state:     StateOpen,
		duration:  math.NaN(),
		listeners: make(map[int]func(StoreEvent)),
	}
}

func (s *fakeStore) ReadyState() ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakeStore) AddMember(kind MediaKind, codec string) (Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil, errors.New("closed")
	}
	m := &fakeMember{kind: kind, codec: codec, listeners: make(map[int]func(MemberEvent))}
	s.members = append(s.members, m)
	return m, nil
}

func (s *fakeStore) RemoveMember(m Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.members {
		if cur == m {
			s.members = append(s.members[:i], s.members[i+1:]...)
			return nil
		}
	}
	return errors.New("not a member")
}

func (s *fakeStore) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *fakeStore) SetDuration(d float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.durationSets = append(s.durationSets, d)
	if s.failDurationSets > 0 {
		s.failDurationSets--
		return errors.New("InvalidStateError")
	}
	if s.clampDuration > 0 && d > s.clampDuration {
		d = s.clampDuration
	}
	s.duration = d
	return nil
}

func (s *fakeStore) SetLiveSeekableRange(_, end float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seekableEnd = end
	return nil
}

func (s *fakeStore) EndOfStream() error {
	s.mu.Lock()
	s.eosCalls++
	if s.eosErr != nil {
		err := s.eosErr
		s.mu.Unlock()
		return err
	}
	s.state = StateEnded
	s.mu.Unlock()
	s.emit(StoreEvent{Type: StoreEnded})
	return nil
}

func (s *fakeStore) Subscribe(fn func(StoreEvent)) func() {
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

func (s *fakeStore) setState(state ReadyState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	switch state {
	case StateOpen:
		s.emit(StoreEvent{Type: StoreOpened})
	case StateEnded:
		s.emit(StoreEvent{Type: StoreEnded})
	case StateClosed:
		s.emit(StoreEvent{Type: StoreClosed})
	}
}

func (s *fakeStore) dropMember(m *fakeMember) {
	_ = s.RemoveMember(m)
	s.emit(StoreEvent{Type: MemberRemoved, Member: m})
}

func (s *fakeStore) stats() (eos int, sets []float64, listeners int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eosCalls, append([]float64(nil), s.durationSets...), len(s.listeners)
}

func (s *fakeStore) emit(ev StoreEvent) {
	s.mu.Lock()
	fns := make([]func(StoreEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// fakeMember understands payloads made of "start:end;" tokens.
type fakeMember struct {
	mu          sync.Mutex
	kind        MediaKind
	codec       string
	updating    bool
	buffered    TimeRanges
	offset      float64
	windowStart float64
	windowEnd   float64
	windowSet   bool
	current     func()
	calls       []string
	payloads    []string
	appendErr   error
	abortErr    error
	aborts      int
	// holdAbort parks the notifications of a cancelling Abort until
	// releaseHeld; completeOnAbort lets the outstanding call finish just
	// before the abort lands.
	holdAbort       bool
	completeOnAbort bool
	held            []MemberEvent
	listeners   map[int]func(MemberEvent)
	nextID      int
}

func (m *fakeMember) Updating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updating
}

func (m *fakeMember) AppendBuffer(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updating {
		return errors.New("already updating")
	}
	if m.appendErr != nil {
		return m.appendErr
	}
	m.calls = append(m.calls, "append")
	m.payloads = append(m.payloads, string(data))
	m.updating = true
	payload := string(data)
	m.current = func() {
		for _, tok := range strings.Split(payload, ";") {
			if tok == "" {
				continue
			}
			parts := strings.SplitN(tok, ":", 2)
			start, _ := strconv.ParseFloat(parts[0], 64)
			end, _ := strconv.ParseFloat(parts[1], 64)
			start += m.offset
			end += m.offset
			if m.windowSet {
				start = max(start, m.windowStart)
				end = min(end, m.windowEnd)
			}
			m.buffered = m.buffered.Add(start, end)
		}
	}
	return nil
}

func (m *fakeMember) Remove(start, end float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updating {
		return errors.New("already updating")
	}
	m.calls = append(m.calls, "remove:"+strconv.FormatFloat(start, 'g', -1, 64)+"-"+strconv.FormatFloat(end, 'g', -1, 64))
	m.updating = true
	m.current = func() { m.buffered = m.buffered.Remove(start, end) }
	return nil
}

func (m *fakeMember) Abort() error {
	m.mu.Lock()
	if m.abortErr != nil {
		err := m.abortErr
		m.mu.Unlock()
		return err
	}
	m.aborts++
	var events []MemberEvent
	switch {
	case m.updating && m.completeOnAbort:
		if m.current != nil {
			m.current()
		}
		events = []MemberEvent{{Type: MemberUpdateEnd}}
	case m.updating:
		events = []MemberEvent{{Type: MemberAbort}, {Type: MemberUpdateEnd}}
	}
	m.updating = false
	m.current = nil
	m.windowSet = false
	if m.holdAbort {
		m.held = append(m.held, events...)
		events = nil
	}
	m.mu.Unlock()
	for _, ev := range events {
		m.emit(ev)
	}
	return nil
}

// releaseHeld fires the notifications parked by holdAbort.
func (m *fakeMember) releaseHeld() {
	m.mu.Lock()
	events := m.held
	m.held = nil
	m.mu.Unlock()
	for _, ev := range events {
		m.emit(ev)
	}
}

func (m *fakeMember) ChangeType(codec string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "changeType:"+codec)
	m.codec = codec
	return nil
}

func (m *fakeMember) SetTimestampOffset(offset float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "offset")
	m.offset = offset
	return nil
}

func (m *fakeMember) SetAppendWindow(start, end float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "window")
	m.windowStart, m.windowEnd, m.windowSet = start, end, true
	return nil
}

func (m *fakeMember) Buffered() TimeRanges {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffered.Clone()
}

func (m *fakeMember) Subscribe(fn func(MemberEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// complete applies the outstanding mutation and fires updateend.
func (m *fakeMember) complete() {
	m.mu.Lock()
	if m.current != nil {
		m.current()
		m.current = nil
	}
	m.updating = false
	m.mu.Unlock()
	m.emit(MemberEvent{Type: MemberUpdateEnd})
}

// failCurrent drops the outstanding mutation and fires error. Tests send
// the trailing updateend themselves.
func (m *fakeMember) failCurrent(name string) {
	m.mu.Lock()
	m.current = nil
	m.updating = false
	m.mu.Unlock()
	m.emit(MemberEvent{Type: MemberError, ErrName: name, ErrMessage: "injected"})
}

func (m *fakeMember) snapshot() (calls, payloads []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...), append([]string(nil), m.payloads...)
}

func (m *fakeMember) listenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

func (m *fakeMember) emit(ev MemberEvent) {
	m.mu.Lock()
	fns := make([]func(MemberEvent), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
