package mediabuffer

import (
	"log/slog"
)

// BufferHandle is one member of the store as seen by the segment pipeline.
// Its methods may be called from any goroutine; the work itself runs on the
// engine loop, so requests on one handle settle in submission order.
type BufferHandle struct {
	engine *Engine
	kind   MediaKind
	member Member
	queue  *operationQueue

	// loop-only
	unsubscribe func()
	disposed    bool
}

func newBufferHandle(e *Engine, kind MediaKind, codec string, member Member) *BufferHandle {
	h := &BufferHandle{engine: e, kind: kind, member: member}
	h.queue = newOperationQueue(member, kind, codec, e.cfg.MaxMergeBytes,
		e.log.With(slog.String("member", string(kind))), e.metrics, e.onActivity, e.loop.Post)
	h.unsubscribe = member.Subscribe(func(ev MemberEvent) {
		e.loop.Post(func() { h.handleEvent(ev) })
	})
	return h
}

// Kind returns the media kind this handle was created for.
func (h *BufferHandle) Kind() MediaKind { return h.kind }

// Codec returns the codec most recently applied to the member.
func (h *BufferHandle) Codec() string {
	var codec string
	_ = h.engine.loop.Call(func() { codec = h.queue.codec })
	return codec
}

// Append queues payload for the member. The returned request resolves with
// the member's buffered ranges once the store has consumed the bytes.
// payload must not be modified until the request settles.
func (h *BufferHandle) Append(payload []byte, params AppendParams) *Request {
	return h.submit(&operation{kind: opPush, data: payload, params: params})
}

// Evict queues removal of [start, end) from the member.
func (h *BufferHandle) Evict(start, end float64) *Request {
	return h.submit(&operation{kind: opEvict, start: start, end: end})
}

func (h *BufferHandle) submit(op *operation) *Request {
	op.req = newRequest()
	posted := h.engine.loop.Post(func() {
		if h.disposed {
			op.req.reject(ErrDisposed)
			return
		}
		h.queue.enqueue(op)
	})
	if !posted {
		op.req.reject(ErrDisposed)
	}
	return op.req
}

// BufferedRanges returns what the member currently holds. It is empty once
// the handle is disposed.
func (h *BufferHandle) BufferedRanges() TimeRanges {
	var ranges TimeRanges
	_ = h.engine.loop.Call(func() {
		if !h.disposed {
			ranges = h.member.Buffered().Clone()
		}
	})
	return ranges
}

// Pending returns the number of queued plus in-flight operations.
func (h *BufferHandle) Pending() int {
	var n int
	_ = h.engine.loop.Call(func() { n = len(h.queue.pending) + len(h.queue.inFlight) })
	return n
}

// Abort cancels the member's current work and rejects every queued and
// in-flight request with ErrCancelled. The handle stays usable.
func (h *BufferHandle) Abort() {
	_ = h.engine.loop.Call(func() {
		if !h.disposed {
			h.queue.abort()
		}
	})
}

// Dispose aborts and then detaches the member from the store. Repeated
// calls are no-ops.
func (h *BufferHandle) Dispose() {
	_ = h.engine.loop.Call(h.dispose)
}

func (h *BufferHandle) dispose() {
	if h.disposed {
		return
	}
	h.queue.abort()
	h.release()
	if err := h.engine.store.RemoveMember(h.member); err != nil {
		h.queue.log.Debug("member removal rejected", slog.String("error", err.Error()))
	}
	h.queue.log.Info("member disposed")
	h.engine.onActivity()
}

// detach handles a member the store dropped on its own.
func (h *BufferHandle) detach() {
	if h.disposed {
		return
	}
	h.queue.flush(ErrCancelled)
	h.release()
	h.queue.log.Info("member removed by store")
}

func (h *BufferHandle) release() {
	h.disposed = true
	if h.unsubscribe != nil {
		h.unsubscribe()
		h.unsubscribe = nil
	}
	h.engine.registry.remove(h)
}

func (h *BufferHandle) idle() bool {
	return h.disposed || h.queue.idle()
}

func (h *BufferHandle) handleEvent(ev MemberEvent) {
	if h.disposed {
		return
	}
	switch ev.Type {
	case MemberUpdateStart:
		h.engine.onActivity()
	case MemberUpdateEnd:
		h.queue.onUpdateEnd()
	case MemberError:
		h.queue.onError(ev.ErrName, ev.ErrMessage)
	case MemberAbort:
		h.queue.onAbort()
	}
}
