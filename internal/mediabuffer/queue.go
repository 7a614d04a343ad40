package mediabuffer

import (
	"errors"
	"log/slog"
	"math"

	"buffer-orchestrator/internal/platform/metrics"
)

// operationQueue serializes mutations against one Member. It is only
// touched from the engine loop.
//
// pending holds operations not yet started. inFlight holds the operations
// covered by the single outstanding store call: one for an evict or a lone
// append, several when contiguous compatible appends were coalesced.
type operationQueue struct {
	member   Member
	kind     MediaKind
	maxMerge int
	log      *slog.Logger
	metrics  *metrics.Metrics
	notify   func()
	post     func(func()) bool

	pending  []*operation
	inFlight []*operation
	kicked   bool

	// Every accepted store call ends with exactly one updateend, delivered
	// in call order. issued and ended count both sides; abortedUpTo is the
	// last call number our own Abort covered.
	issued      uint64
	ended       uint64
	abortedUpTo uint64

	// last values applied to the member
	codec       string
	offset      float64
	windowStart float64
	windowEnd   float64
}

func newOperationQueue(member Member, kind MediaKind, codec string, maxMerge int, log *slog.Logger, m *metrics.Metrics, notify func(), post func(func()) bool) *operationQueue {
	return &operationQueue{
		member:    member,
		kind:      kind,
		maxMerge:  maxMerge,
		log:       log,
		metrics:   m,
		notify:    notify,
		post:      post,
		codec:     codec,
		windowEnd: math.Inf(1),
	}
}

// idle reports whether nothing is queued, every store call has reported
// its completion and the member is not mutating.
func (q *operationQueue) idle() bool {
	return len(q.pending) == 0 && len(q.inFlight) == 0 && q.ended == q.issued && !q.member.Updating()
}

// enqueue adds op and, when nothing is in flight, starts the queue on the
// next loop turn. Appends submitted in the same burst are thereby still
// queued when the head starts and can be coalesced with it.
func (q *operationQueue) enqueue(op *operation) {
	q.pending = append(q.pending, op)
	if len(q.inFlight) == 0 && !q.kicked {
		q.kicked = q.post(func() {
			q.kicked = false
			q.next()
		})
		if !q.kicked {
			q.next()
		}
	}
	q.notify()
}

// next starts the head of the queue unless a store call is outstanding.
// An operation the store rejects synchronously never produces a completion
// event, so it is failed here and the following one is tried.
func (q *operationQueue) next() {
	for len(q.inFlight) == 0 && len(q.pending) > 0 {
		if q.member.Updating() {
			return
		}
		group := q.take()
		if err := q.perform(group); err != nil {
			q.fail(group, mutationErrorFrom(err))
			continue
		}
		q.inFlight = group
		q.issued++
	}
}

// take pops the head and, for an append, every directly following append
// with identical parameters, up to maxMerge bytes.
func (q *operationQueue) take() []*operation {
	head := q.pending[0]
	n := 1
	if head.kind == opPush {
		size := len(head.data)
		for n < len(q.pending) {
			cand := q.pending[n]
			if cand.kind != opPush || !cand.params.sameAs(head.params) {
				break
			}
			if q.maxMerge > 0 && size+len(cand.data) > q.maxMerge {
				break
			}
			size += len(cand.data)
			n++
		}
	}
	group := make([]*operation, n)
	copy(group, q.pending[:n])
	clear(q.pending[:n])
	q.pending = q.pending[n:]
	return group
}

func (q *operationQueue) perform(group []*operation) error {
	head := group[0]
	if head.kind == opEvict {
		q.metrics.IncMutations(opEvict.String())
		return q.member.Remove(head.start, head.end)
	}

	if err := q.applyParams(head.params); err != nil {
		return err
	}

	data := head.data
	if len(group) > 1 {
		size := 0
		for _, op := range group {
			size += len(op.data)
		}
		data = make([]byte, 0, size)
		for _, op := range group {
			data = append(data, op.data...)
		}
		q.metrics.AddMergedPushes(len(group) - 1)
		q.log.Debug("coalesced appends",
			slog.String("kind", string(q.kind)),
			slog.Int("count", len(group)),
			slog.Int("bytes", size))
	}
	q.metrics.IncMutations(opPush.String())
	return q.member.AppendBuffer(data)
}

func (q *operationQueue) applyParams(p AppendParams) error {
	if p.Codec != "" && p.Codec != q.codec {
		if err := q.member.ChangeType(p.Codec); err != nil {
			return err
		}
		q.log.Info("member codec switched",
			slog.String("kind", string(q.kind)),
			slog.String("from", q.codec),
			slog.String("to", p.Codec))
		q.codec = p.Codec
	}

	offset := 0.0
	if p.TimestampOffset != nil {
		offset = *p.TimestampOffset
	}
	if offset != q.offset {
		if err := q.member.SetTimestampOffset(offset); err != nil {
			return err
		}
		q.offset = offset
	}

	start, end := 0.0, math.Inf(1)
	if p.Window != nil {
		if p.Window.Start != nil {
			start = *p.Window.Start
		}
		if p.Window.End != nil {
			end = *p.Window.End
		}
	}
	if start != q.windowStart || end != q.windowEnd {
		if err := q.member.SetAppendWindow(start, end); err != nil {
			return err
		}
		q.windowStart, q.windowEnd = start, end
	}
	return nil
}

// onUpdateEnd settles the in-flight group with freshly read ranges and
// moves on. A completion for a call older than the latest one belongs to a
// call that was aborted earlier and is ignored.
func (q *operationQueue) onUpdateEnd() {
	if q.ended == q.issued {
		q.log.Debug("updateend with no call outstanding", slog.String("kind", string(q.kind)))
		return
	}
	q.ended++
	if q.ended < q.issued {
		return
	}
	if len(q.inFlight) > 0 {
		ranges := q.member.Buffered()
		for _, op := range q.inFlight {
			op.req.resolve(ranges.Clone())
		}
		clear(q.inFlight)
		q.inFlight = nil
	}
	q.next()
	q.notify()
}

// onError fails the in-flight group. The queue is not advanced here; the
// store's trailing completion event does that.
func (q *operationQueue) onError(name, message string) {
	if len(q.inFlight) == 0 {
		q.log.Debug("member error with nothing in flight",
			slog.String("kind", string(q.kind)),
			slog.String("error_name", name))
		return
	}
	group := q.inFlight
	q.inFlight = nil
	q.fail(group, newMutationError(name, message))
	q.notify()
}

func (q *operationQueue) fail(group []*operation, err *MutationError) {
	q.metrics.IncMutationFailures(err.Recoverable)
	q.log.Warn("member mutation failed",
		slog.String("kind", string(q.kind)),
		slog.String("op", group[0].kind.String()),
		slog.Int("operations", len(group)),
		slog.String("error_name", err.Name),
		slog.Bool("recoverable", err.Recoverable),
		slog.String("error", err.Message))
	for _, op := range group {
		op.req.reject(err)
	}
}

// abort asks the store to cancel and flushes every queued and in-flight
// operation with ErrCancelled. A store that refuses the abort keeps its
// append window, and so does the cache.
func (q *operationQueue) abort() {
	if err := q.member.Abort(); err != nil {
		q.log.Debug("member abort rejected",
			slog.String("kind", string(q.kind)),
			slog.String("error", err.Error()))
	} else {
		q.abortedUpTo = q.issued
		q.windowStart, q.windowEnd = 0, math.Inf(1)
	}
	q.flush(ErrCancelled)
}

// onAbort handles an abort the member reports. It precedes the updateend
// of the call it cancelled, so that call is number ended+1. One the store
// issued on its own, e.g. while detaching the member, cancels everything
// queued.
func (q *operationQueue) onAbort() {
	if q.ended < q.abortedUpTo {
		return
	}
	q.log.Info("member aborted by store", slog.String("kind", string(q.kind)))
	q.windowStart, q.windowEnd = 0, math.Inf(1)
	q.flush(ErrCancelled)
}

// flush rejects everything without touching the member.
func (q *operationQueue) flush(err error) {
	ops := append(q.inFlight, q.pending...)
	q.inFlight = nil
	q.pending = nil
	for _, op := range ops {
		op.req.reject(err)
	}
	if len(ops) > 0 {
		q.log.Debug("flushed member operations",
			slog.String("kind", string(q.kind)),
			slog.Int("operations", len(ops)))
	}
	q.notify()
}

// namedError is implemented by store errors that carry a DOM-style name
// such as "QuotaExceededError".
type namedError interface {
	ErrorName() string
}

func mutationErrorFrom(err error) *MutationError {
	var me *MutationError
	if errors.As(err, &me) {
		return me
	}
	var named namedError
	if errors.As(err, &named) {
		return newMutationError(named.ErrorName(), err.Error())
	}
	return newMutationError("Error", err.Error())
}
