package mediastore

import (
	"math"
	"time"

	"buffer-orchestrator/internal/mediabuffer"
)

// Member implements mediabuffer.Member. All state is guarded by the
// owning store's mutex.
type Member struct {
	store     *Store
	kind      mediabuffer.MediaKind
	codec     string
	updating  bool
	removed   bool
	gen       uint64
	timer     *time.Timer
	buffered  mediabuffer.TimeRanges
	offset    float64
	windowEnd float64
	windowBeg float64
	listeners map[int]func(mediabuffer.MemberEvent)
	nextID    int
}

// Kind returns the media kind the member was created for.
func (m *Member) Kind() mediabuffer.MediaKind { return m.kind }

// Codec returns the member's current codec.
func (m *Member) Codec() string {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return m.codec
}

func (m *Member) Updating() bool {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return m.updating
}

func (m *Member) Buffered() mediabuffer.TimeRanges {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	return m.buffered.Clone()
}

func (m *Member) AppendBuffer(data []byte) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := m.checkMutableLocked(); err != nil {
		return err
	}
	s.reopenLocked()
	s.stats.Appends++
	payload := append([]byte(nil), data...)
	m.startLocked(func() { m.finishAppendLocked(payload) })
	return nil
}

func (m *Member) Remove(start, end float64) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if start < 0 || math.IsNaN(start) || !(end > start) {
		return newError(TypeError, "invalid removal range")
	}
	if err := m.checkMutableLocked(); err != nil {
		return err
	}
	s.reopenLocked()
	s.stats.Removes++
	m.startLocked(func() {
		m.buffered = m.buffered.Remove(start, end)
		m.doneLocked()
	})
	return nil
}

func (m *Member) Abort() error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.removed || s.state != mediabuffer.StateOpen {
		return newError(InvalidStateError, "cannot abort")
	}
	if m.updating {
		m.cancelLocked()
	}
	m.windowBeg, m.windowEnd = 0, math.Inf(1)
	return nil
}

func (m *Member) ChangeType(codec string) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if codec == "" {
		return newError(TypeError, "empty codec")
	}
	if err := m.checkMutableLocked(); err != nil {
		return err
	}
	m.codec = codec
	return nil
}

func (m *Member) SetTimestampOffset(offset float64) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if err := m.checkMutableLocked(); err != nil {
		return err
	}
	m.offset = offset
	return nil
}

func (m *Member) SetAppendWindow(start, end float64) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if start < 0 || !(end > start) {
		return newError(TypeError, "invalid append window")
	}
	if err := m.checkMutableLocked(); err != nil {
		return err
	}
	m.windowBeg, m.windowEnd = start, end
	return nil
}

func (m *Member) Subscribe(fn func(mediabuffer.MemberEvent)) func() {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.store.mu.Lock()
		defer m.store.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Member) checkMutableLocked() error {
	if m.removed {
		return newError(InvalidStateError, "member was removed")
	}
	if m.store.state == mediabuffer.StateClosed {
		return newError(InvalidStateError, "store is closed")
	}
	if m.updating {
		return newError(InvalidStateError, "member is updating")
	}
	return nil
}

// startLocked marks the member as mutating and runs finish after the
// configured latency unless the mutation is cancelled first.
func (m *Member) startLocked(finish func()) {
	m.updating = true
	m.gen++
	gen := m.gen
	m.emitLocked(mediabuffer.MemberEvent{Type: mediabuffer.MemberUpdateStart})
	m.timer = time.AfterFunc(m.store.cfg.Latency, func() {
		m.store.mu.Lock()
		defer m.store.mu.Unlock()
		if m.gen != gen || !m.updating {
			return
		}
		finish()
	})
}

func (m *Member) finishAppendLocked(payload []byte) {
	samples, err := DecodeSamples(payload)
	if err != nil {
		m.failLocked(ParseError, err.Error())
		return
	}
	ranges := m.buffered
	for _, smp := range samples {
		start := smp.Start + m.offset
		end := start + smp.Duration
		if end <= m.windowBeg || start >= m.windowEnd {
			continue
		}
		ranges = ranges.Add(max(start, m.windowBeg), min(end, m.windowEnd))
	}
	if quota := m.store.cfg.QuotaSeconds; quota > 0 && ranges.Total() > quota {
		m.failLocked(mediabuffer.QuotaExceeded, "buffer quota exhausted")
		return
	}
	m.buffered = ranges
	if end := ranges.End(); math.IsNaN(m.store.duration) || end > m.store.duration {
		m.store.duration = end
	}
	m.doneLocked()
}

func (m *Member) doneLocked() {
	m.updating = false
	m.timer = nil
	m.emitLocked(mediabuffer.MemberEvent{Type: mediabuffer.MemberUpdateEnd})
}

func (m *Member) failLocked(name, msg string) {
	m.updating = false
	m.timer = nil
	m.emitLocked(mediabuffer.MemberEvent{Type: mediabuffer.MemberError, ErrName: name, ErrMessage: msg})
	m.emitLocked(mediabuffer.MemberEvent{Type: mediabuffer.MemberUpdateEnd})
}

func (m *Member) cancelLocked() {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.updating = false
	m.emitLocked(mediabuffer.MemberEvent{Type: mediabuffer.MemberAbort})
	m.emitLocked(mediabuffer.MemberEvent{Type: mediabuffer.MemberUpdateEnd})
}

func (m *Member) emitLocked(ev mediabuffer.MemberEvent) {
	fns := make([]func(mediabuffer.MemberEvent), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.store.events.Post(func() {
		for _, fn := range fns {
			fn(ev)
		}
	})
}
