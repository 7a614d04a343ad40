package mediabuffer

import (
	"context"
	"errors"
)

// AppendWindow bounds the presentation time range an append may fill.
// A nil bound means unbounded on that side.
type AppendWindow struct {
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
}

// AppendParams are the optional per-append settings.
type AppendParams struct {
	Codec           string
	TimestampOffset *float64
	Window          *AppendWindow
}

func (p AppendParams) sameAs(o AppendParams) bool {
	return p.Codec == o.Codec &&
		sameFloat(p.TimestampOffset, o.TimestampOffset) &&
		sameWindow(p.Window, o.Window)
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameWindow(a, b *AppendWindow) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return sameFloat(a.Start, b.Start) && sameFloat(a.End, b.End)
}

type opKind int

const (
	opPush opKind = iota
	opEvict
)

func (k opKind) String() string {
	if k == opEvict {
		return "evict"
	}
	return "append"
}

type operation struct {
	kind   opKind
	data   []byte
	params AppendParams
	start  float64
	end    float64
	req    *Request
}

// Request is the completion handle of one append or evict. It settles
// exactly once, with the member's buffered ranges or an error.
type Request struct {
	done   chan struct{}
	ranges TimeRanges
	err    error
}

func newRequest() *Request {
	return &Request{done: make(chan struct{})}
}

// Done is closed when the request settles.
func (r *Request) Done() <-chan struct{} { return r.done }

// Result returns the outcome. It is only meaningful after Done is closed.
func (r *Request) Result() (TimeRanges, error) {
	select {
	case <-r.done:
		return r.ranges, r.err
	default:
		return nil, errors.New("request not settled")
	}
}

// Wait blocks until the request settles or ctx is done. A ctx error does
// not cancel the underlying operation.
func (r *Request) Wait(ctx context.Context) (TimeRanges, error) {
	select {
	case <-r.done:
		return r.ranges, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Request) resolve(ranges TimeRanges) {
	r.ranges = ranges
	close(r.done)
}

func (r *Request) reject(err error) {
	r.err = err
	close(r.done)
}

func rejectedRequest(err error) *Request {
	r := newRequest()
	r.reject(err)
	return r
}
