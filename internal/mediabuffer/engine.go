// Package mediabuffer orchestrates appends, evictions, duration and
// end-of-stream against a platform media buffer store.
//
// The store accepts one mutation per member at a time and reports completion
// through notifications. The Engine funnels every call and every
// notification through a single event loop, queues mutations per member,
// coalesces contiguous compatible appends, and keeps the store duration and
// end-of-stream state consistent across open/ended/closed cycles.
package mediabuffer

import (
	"context"
	"log/slog"
	"math"

	"buffer-orchestrator/internal/platform/eventloop"
	"buffer-orchestrator/internal/platform/metrics"
)

// Options configures New. Every field is optional.
type Options struct {
	Config   Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Registry *Registry
}

// Engine owns a Store for the lifetime of one loaded content.
type Engine struct {
	store    Store
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	registry *Registry
	loop     *eventloop.Loop

	// loop-only below
	ctx         context.Context
	cancel      context.CancelFunc
	duration    *durationController
	eos         *endOfStreamController
	unsubscribe func()
	disposed    bool
}

// New starts an engine over store. It fails with ErrUnsupportedStore when
// store is nil.
func New(store Store, opts Options) (*Engine, error) {
	if store == nil {
		return nil, ErrUnsupportedStore
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:    store,
		cfg:      opts.Config.withDefaults(),
		log:      log,
		metrics:  opts.Metrics,
		registry: registry,
		loop:     eventloop.New(),
		ctx:      ctx,
		cancel:   cancel,
	}
	if err := registry.bind(e); err != nil {
		cancel()
		return nil, err
	}
	e.duration = newDurationController(e)
	e.eos = newEndOfStreamController(e)

	e.loop.Start()
	_ = e.loop.Call(func() {
		e.unsubscribe = store.Subscribe(func(ev StoreEvent) {
			e.loop.Post(func() { e.handleStoreEvent(ev) })
		})
	})
	return e, nil
}

// Registry returns the registry holding this engine's handles.
func (e *Engine) Registry() *Registry { return e.registry }

// AddMember creates a member of the given kind in the store and returns its
// handle. It fails with ErrStoreClosed while the store is closed and with
// ErrMemberExists when kind is already registered.
func (e *Engine) AddMember(kind MediaKind, codec string) (*BufferHandle, error) {
	var (
		h   *BufferHandle
		err error
	)
	if callErr := e.loop.Call(func() {
		if e.disposed {
			err = ErrDisposed
			return
		}
		if e.store.ReadyState() == StateClosed {
			err = ErrStoreClosed
			return
		}
		if e.registry.contains(kind) {
			err = ErrMemberExists
			return
		}
		var member Member
		member, err = e.store.AddMember(kind, codec)
		if err != nil {
			return
		}
		h = newBufferHandle(e, kind, codec, member)
		e.registry.add(h)
		e.log.Info("member added", slog.String("kind", string(kind)), slog.String("codec", codec))
	}); callErr != nil {
		return nil, ErrDisposed
	}
	return h, err
}

// Member returns the live handle for kind.
func (e *Engine) Member(kind MediaKind) (*BufferHandle, bool) {
	return e.registry.Get(kind)
}

// UpdateDuration replaces the duration target and restarts the update
// chain. Failures are retried internally and never returned.
func (e *Engine) UpdateDuration(duration float64, realEndKnown bool) {
	e.loop.Post(func() {
		if !e.disposed {
			e.duration.update(DurationTarget{Duration: duration, RealEndKnown: realEndKnown})
		}
	})
}

// StopUpdatingDuration cancels pending duration work without touching the
// duration already applied.
func (e *Engine) StopUpdatingDuration() {
	e.loop.Post(func() { e.duration.stop() })
}

// MaintainEndOfStream keeps the store ended whenever that is legal, until
// StopEndOfStream. Calling it again is a no-op.
func (e *Engine) MaintainEndOfStream() {
	e.loop.Post(func() {
		if !e.disposed {
			e.eos.maintain()
		}
	})
}

// StopEndOfStream disarms MaintainEndOfStream. Calling it again is a no-op.
func (e *Engine) StopEndOfStream() {
	e.loop.Post(func() { e.eos.stop() })
}

// ReadyState returns the store state, or StateClosed after Dispose.
func (e *Engine) ReadyState() ReadyState {
	state := StateClosed
	_ = e.loop.Call(func() {
		if !e.disposed {
			state = e.store.ReadyState()
		}
	})
	return state
}

// Duration returns the duration the store reports, NaN after Dispose.
func (e *Engine) Duration() float64 {
	d := math.NaN()
	_ = e.loop.Call(func() {
		if !e.disposed {
			d = e.store.Duration()
		}
	})
	return d
}

// Dispose cancels both controllers, aborts and detaches every member and
// stops the loop. It is safe to call more than once.
func (e *Engine) Dispose() {
	if err := e.loop.Call(e.dispose); err != nil {
		return
	}
	e.loop.Close()
	<-e.loop.Done()
}

func (e *Engine) dispose() {
	if e.disposed {
		return
	}
	e.duration.stop()
	e.eos.stop()
	e.cancel()
	// controllers are stopped, so member teardown cannot re-trigger them
	for _, h := range e.registry.Handles() {
		h.dispose()
	}
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.disposed = true
	e.log.Info("buffer engine disposed")
}

func (e *Engine) onActivity() {
	if e.disposed {
		return
	}
	e.duration.onActivity()
	e.eos.onActivity()
}

func (e *Engine) handleStoreEvent(ev StoreEvent) {
	if e.disposed {
		return
	}
	switch ev.Type {
	case StoreOpened:
		e.log.Debug("store opened")
		e.duration.onStoreOpen()
		e.eos.onStoreOpen()
	case StoreEnded:
		e.log.Debug("store ended")
	case StoreClosed:
		e.log.Debug("store closed")
	case MemberRemoved:
		if h := e.registry.byMember(ev.Member); h != nil {
			h.detach()
			e.onActivity()
		}
	}
}
