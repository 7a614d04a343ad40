package mediabuffer

import (
	"context"
	"log/slog"
	"math"
)

// DurationTarget is the duration the caller wants the store to report.
type DurationTarget struct {
	Duration     float64
	RealEndKnown bool
}

type durationStatus int

const (
	durationSuccess durationStatus = iota
	durationPartial
	durationFailed
)

func (s durationStatus) String() string {
	switch s {
	case durationSuccess:
		return "success"
	case durationPartial:
		return "partial"
	default:
		return "failed"
	}
}

// durationController keeps the store duration aligned with the target. An
// attempt waits for the store to be open and every member to be idle, and
// anything short of success is retried after the configured delay. The
// target is re-asserted each time the store opens again. Loop-only.
type durationController struct {
	e      *Engine
	log    *slog.Logger
	target *DurationTarget

	// ctx scopes the current attempt chain and its retry timer.
	ctx      context.Context
	cancel   context.CancelFunc
	retrying bool
	settled  bool
}

func newDurationController(e *Engine) *durationController {
	return &durationController{e: e, log: e.log.With(slog.String("component", "duration"))}
}

func (d *durationController) update(t DurationTarget) {
	d.restart()
	d.target = &t
	d.log.Debug("duration target set",
		slog.Float64("duration", t.Duration),
		slog.Bool("real_end_known", t.RealEndKnown))
	d.try()
}

// stop abandons the chain; the last applied duration is left as is.
func (d *durationController) stop() {
	d.cancelChain()
	d.target = nil
}

func (d *durationController) onStoreOpen() {
	if d.target == nil {
		return
	}
	d.restart()
	d.try()
}

func (d *durationController) onActivity() {
	d.try()
}

func (d *durationController) restart() {
	d.cancelChain()
	d.ctx, d.cancel = context.WithCancel(d.e.ctx)
}

func (d *durationController) cancelChain() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.retrying = false
	d.settled = false
}

func (d *durationController) try() {
	if d.target == nil || d.settled || d.retrying || d.ctx == nil || d.ctx.Err() != nil {
		return
	}
	if d.e.store.ReadyState() != StateOpen {
		return
	}
	if !d.e.registry.allIdle() {
		return
	}

	status := d.apply(*d.target)
	d.e.metrics.IncDurationUpdates(status.String())
	if status == durationSuccess {
		d.settled = true
		return
	}

	d.log.Debug("duration update incomplete, retrying",
		slog.String("status", status.String()),
		slog.Duration("delay", d.e.cfg.DurationRetryDelay))
	d.retrying = true
	d.e.loop.AfterFunc(d.ctx, d.e.cfg.DurationRetryDelay, func() {
		d.retrying = false
		d.try()
	})
}

func (d *durationController) apply(t DurationTarget) durationStatus {
	store := d.e.store
	tol := d.e.cfg.DurationTolerance

	want := t.Duration
	if !t.RealEndKnown {
		want = d.e.cfg.LiveDuration(t.Duration)
		if err := store.SetLiveSeekableRange(0, want); err != nil {
			d.log.Warn("cannot extend seekable range", slog.String("error", err.Error()))
		}
	}

	current := store.Duration()
	if current == want {
		return durationSuccess
	}

	// Never cut data that is already buffered.
	if maxEnd := d.e.registry.maxBufferedEnd(); maxEnd > want {
		if !(math.Abs(current-maxEnd) < tol) {
			d.log.Info("setting duration to buffered end",
				slog.Float64("buffered_end", maxEnd),
				slog.Float64("wanted", want))
			if err := store.SetDuration(maxEnd); err != nil {
				d.log.Warn("cannot update duration", slog.String("error", err.Error()))
				return durationFailed
			}
		}
		return durationPartial
	}

	d.log.Info("updating duration", slog.Float64("duration", want))
	if err := store.SetDuration(want); err != nil {
		d.log.Warn("cannot update duration", slog.String("error", err.Error()))
		return durationFailed
	}

	got := store.Duration()
	toTarget := math.Abs(got - want)
	if toTarget < tol {
		return durationSuccess
	}
	if math.IsNaN(current) && !math.IsNaN(got) {
		return durationPartial
	}
	if toTarget < math.Abs(got-current) {
		return durationPartial
	}
	return durationFailed
}
