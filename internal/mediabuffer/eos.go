package mediabuffer

import (
	"log/slog"
)

// endOfStreamController signals end-of-stream whenever it is legal while
// armed. Loop-only.
type endOfStreamController struct {
	e       *Engine
	log     *slog.Logger
	armed   bool
	waiting bool
}

func newEndOfStreamController(e *Engine) *endOfStreamController {
	return &endOfStreamController{e: e, log: e.log.With(slog.String("component", "end_of_stream"))}
}

func (c *endOfStreamController) maintain() {
	if c.armed {
		return
	}
	c.armed = true
	c.check()
}

func (c *endOfStreamController) stop() {
	c.armed = false
	c.waiting = false
}

func (c *endOfStreamController) onStoreOpen() {
	if c.armed {
		c.check()
	}
}

// onActivity only matters while an attempt is parked behind a busy member.
func (c *endOfStreamController) onActivity() {
	if c.armed && c.waiting {
		c.check()
	}
}

func (c *endOfStreamController) check() {
	store := c.e.store
	if store.ReadyState() != StateOpen {
		c.waiting = false
		return
	}
	if !c.e.registry.allIdle() {
		c.waiting = true
		return
	}
	c.waiting = false

	c.log.Debug("signalling end of stream")
	c.e.metrics.IncEndOfStream()
	if err := store.EndOfStream(); err != nil {
		c.log.Warn("end of stream rejected", slog.String("error", err.Error()))
	}
}
