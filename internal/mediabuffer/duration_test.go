package mediabuffer

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func durationSets(s *fakeStore) []float64 {
	_, sets, _ := s.stats()
	return sets
}

func TestDuration_known_end_applied(t *testing.T) {
	e, store := newTestEngine(t, Config{})

	e.UpdateDuration(120, true)
	drain(t, e)

	assert.Equal(t, []float64{120}, durationSets(store))
	assert.Equal(t, 120.0, e.Duration())

	// settled: no retry
	time.Sleep(40 * time.Millisecond)
	assert.Len(t, durationSets(store), 1)
}

func TestDuration_never_below_buffered_end(t *testing.T) {
	e, store := newTestEngine(t, Config{})
	h, m := addMember(t, e, store, KindVideo)

	r := h.Append([]byte("0:30;"), AppendParams{})
	drain(t, e)
	m.complete()
	drain(t, e)
	_, err := settled(t, r)
	require.NoError(t, err)

	e.UpdateDuration(20, true)
	drain(t, e)

	sets := durationSets(store)
	require.NotEmpty(t, sets)
	assert.Equal(t, 30.0, sets[0])
	assert.GreaterOrEqual(t, e.Duration(), 30.0)
}

func TestDuration_unknown_end_uses_ceiling(t *testing.T) {
	e, store := newTestEngine(t, Config{})

	e.UpdateDuration(100, false)
	drain(t, e)

	d := e.Duration()
	assert.GreaterOrEqual(t, d, math.Pow(2, 32))
	assert.GreaterOrEqual(t, d, 100.0+OneYear)

	store.mu.Lock()
	seekable := store.seekableEnd
	store.mu.Unlock()
	assert.Equal(t, d, seekable)
}

func TestDuration_ceiling_is_configurable(t *testing.T) {
	cfg := Config{LiveDurationFloor: 1000, LiveDurationMargin: 60}
	assert.Equal(t, 1000.0, cfg.LiveDuration(10))
	assert.Equal(t, 2060.0, cfg.LiveDuration(2000))
	assert.Equal(t, math.Max(math.Pow(2, 32), 5+OneYear), Config{}.LiveDuration(5))
}

func TestDuration_retries_until_success(t *testing.T) {
	e, store := newTestEngine(t, Config{DurationRetryDelay: 15 * time.Millisecond})
	store.mu.Lock()
	store.failDurationSets = 1
	store.mu.Unlock()

	e.UpdateDuration(50, true)
	drain(t, e)
	assert.Len(t, durationSets(store), 1)
	assert.True(t, math.IsNaN(store.Duration()))

	require.Eventually(t, func() bool {
		return len(durationSets(store)) == 2
	}, time.Second, 5*time.Millisecond)
	drain(t, e)
	assert.Equal(t, 50.0, e.Duration())

	time.Sleep(60 * time.Millisecond)
	assert.Len(t, durationSets(store), 2, "no attempts after success")
}

func TestDuration_partial_keeps_retrying(t *testing.T) {
	e, store := newTestEngine(t, Config{DurationRetryDelay: 10 * time.Millisecond})
	store.mu.Lock()
	store.clampDuration = 40
	store.mu.Unlock()

	e.UpdateDuration(50, true)
	require.Eventually(t, func() bool {
		return len(durationSets(store)) >= 3
	}, time.Second, 5*time.Millisecond)

	store.mu.Lock()
	store.clampDuration = 0
	store.mu.Unlock()
	require.Eventually(t, func() bool { return e.Duration() == 50 }, time.Second, 5*time.Millisecond)
}

func TestDuration_waits_for_open_store(t *testing.T) {
	e, store := newTestEngine(t, Config{})
	store.setState(StateEnded)
	drain(t, e)

	e.UpdateDuration(30, true)
	drain(t, e)
	assert.Empty(t, durationSets(store))

	store.setState(StateOpen)
	drain(t, e)
	assert.Equal(t, []float64{30}, durationSets(store))
}

func TestDuration_waits_for_idle_members(t *testing.T) {
	e, store := newTestEngine(t, Config{})
	h, m := addMember(t, e, store, KindVideo)

	h.Append([]byte("0:5;"), AppendParams{})
	drain(t, e)

	e.UpdateDuration(30, true)
	drain(t, e)
	assert.Empty(t, durationSets(store))

	m.complete()
	drain(t, e)
	assert.Equal(t, []float64{30}, durationSets(store))
}

func TestDuration_reasserted_after_reopen(t *testing.T) {
	e, store := newTestEngine(t, Config{})

	e.UpdateDuration(30, true)
	drain(t, e)
	require.Len(t, durationSets(store), 1)

	// platform forgets the duration across a close/open cycle
	store.setState(StateClosed)
	store.mu.Lock()
	store.duration = math.NaN()
	store.mu.Unlock()
	store.setState(StateOpen)
	drain(t, e)

	assert.Equal(t, []float64{30, 30}, durationSets(store))
	assert.Equal(t, 30.0, e.Duration())
}

func TestDuration_new_target_replaces_chain(t *testing.T) {
	e, store := newTestEngine(t, Config{DurationRetryDelay: 20 * time.Millisecond})
	store.mu.Lock()
	store.failDurationSets = 1
	store.mu.Unlock()

	e.UpdateDuration(10, true)
	e.UpdateDuration(20, true)
	drain(t, e)

	assert.Equal(t, []float64{10, 20}, durationSets(store))
	assert.Equal(t, 20.0, e.Duration())

	time.Sleep(60 * time.Millisecond)
	assert.Len(t, durationSets(store), 2, "retry of the replaced target was cancelled")
}

func TestDuration_stop_cancels_retries(t *testing.T) {
	e, store := newTestEngine(t, Config{DurationRetryDelay: 10 * time.Millisecond})
	store.mu.Lock()
	store.failDurationSets = 1000
	store.mu.Unlock()

	e.UpdateDuration(10, true)
	drain(t, e)
	e.StopUpdatingDuration()
	drain(t, e)
	n := len(durationSets(store))

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, durationSets(store), n)

	// reopening does not revive a stopped target
	store.setState(StateOpen)
	drain(t, e)
	assert.Len(t, durationSets(store), n)
}
