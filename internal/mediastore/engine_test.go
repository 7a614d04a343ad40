package mediastore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"buffer-orchestrator/internal/mediabuffer"
	"buffer-orchestrator/internal/mediastore"
	"buffer-orchestrator/internal/platform/logger"
	"buffer-orchestrator/internal/platform/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, cfg mediastore.Config) (*mediabuffer.Engine, *mediastore.Store) {
	t.Helper()
	store := mediastore.New(cfg)
	require.NoError(t, store.Open())
	e, err := mediabuffer.New(store, mediabuffer.Options{
		Config:  mediabuffer.Config{DurationRetryDelay: 10 * time.Millisecond},
		Logger:  logger.Discard(),
		Metrics: metrics.New(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		e.Dispose()
		store.Shutdown()
	})
	return e, store
}

func wait(t *testing.T, r *mediabuffer.Request) (mediabuffer.TimeRanges, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ranges, err := r.Wait(ctx)
	require.False(t, errors.Is(err, context.DeadlineExceeded), "request did not settle")
	return ranges, err
}

func seg(start, dur float64) []byte {
	return mediastore.EncodeSamples(mediastore.Sample{Start: start, Duration: dur, Data: []byte("frame")})
}

func f(v float64) *float64 { return &v }

func TestEngine_append_evict_against_store(t *testing.T) {
	e, store := setup(t, mediastore.Config{Latency: 5 * time.Millisecond})
	h, err := e.AddMember(mediabuffer.KindVideo, "avc1.64001f")
	require.NoError(t, err)

	params := mediabuffer.AppendParams{
		Codec:  "avc1.64001f",
		Window: &mediabuffer.AppendWindow{Start: f(0), End: f(10)},
	}
	r0 := h.Append(seg(0, 4), params)
	r1 := h.Append(seg(4, 4), params)
	r2 := h.Append(seg(8, 4), params)
	rEvict := h.Evict(5, 8)

	for _, r := range []*mediabuffer.Request{r0, r1, r2} {
		_, err := wait(t, r)
		require.NoError(t, err)
	}
	ranges, err := wait(t, rEvict)
	require.NoError(t, err)
	assert.Equal(t, "{[0,5),[8,10)}", ranges.String())
	assert.Equal(t, "{[0,5),[8,10)}", h.BufferedRanges().String())

	stats := store.Stats()
	assert.LessOrEqual(t, stats.Appends, 3)
	assert.Equal(t, 1, stats.Removes)
}

func TestEngine_quota_error_is_recoverable(t *testing.T) {
	e, _ := setup(t, mediastore.Config{QuotaSeconds: 6})
	h, err := e.AddMember(mediabuffer.KindAudio, "mp4a.40.2")
	require.NoError(t, err)

	_, err = wait(t, h.Append(seg(0, 4), mediabuffer.AppendParams{}))
	require.NoError(t, err)

	_, err = wait(t, h.Append(seg(4, 4), mediabuffer.AppendParams{}))
	var mutErr *mediabuffer.MutationError
	require.ErrorAs(t, err, &mutErr)
	assert.True(t, mediabuffer.IsRecoverable(err))

	// freeing room lets the retry through
	_, err = wait(t, h.Evict(0, 4))
	require.NoError(t, err)
	ranges, err := wait(t, h.Append(seg(4, 4), mediabuffer.AppendParams{}))
	require.NoError(t, err)
	assert.Equal(t, "{[4,8)}", ranges.String())
}

func TestEngine_parse_error_is_fatal(t *testing.T) {
	e, _ := setup(t, mediastore.Config{})
	h, err := e.AddMember(mediabuffer.KindVideo, "avc1")
	require.NoError(t, err)

	_, err = wait(t, h.Append([]byte("junk"), mediabuffer.AppendParams{}))
	require.Error(t, err)
	assert.False(t, mediabuffer.IsRecoverable(err))
}

func TestEngine_duration_and_end_of_stream(t *testing.T) {
	e, store := setup(t, mediastore.Config{Latency: 2 * time.Millisecond})
	h, err := e.AddMember(mediabuffer.KindVideo, "avc1")
	require.NoError(t, err)

	_, err = wait(t, h.Append(seg(0, 12), mediabuffer.AppendParams{}))
	require.NoError(t, err)

	e.UpdateDuration(30, true)
	require.Eventually(t, func() bool { return store.Duration() == 30 }, time.Second, 5*time.Millisecond)

	e.MaintainEndOfStream()
	require.Eventually(t, func() bool {
		return store.ReadyState() == mediabuffer.StateEnded
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 12.0, store.Duration())

	// an append reopens the store; end-of-stream is signalled again once idle
	_, err = wait(t, h.Append(seg(12, 2), mediabuffer.AppendParams{}))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return store.ReadyState() == mediabuffer.StateEnded && store.Stats().EndOfStreams >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_live_duration_sets_seekable_range(t *testing.T) {
	e, store := setup(t, mediastore.Config{})

	e.UpdateDuration(100, false)
	require.Eventually(t, func() bool { return store.Duration() >= 1<<32 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, store.Duration(), store.SeekableEnd())
}

func TestEngine_store_close_cancels_members(t *testing.T) {
	e, store := setup(t, mediastore.Config{Latency: time.Hour})
	h, err := e.AddMember(mediabuffer.KindVideo, "avc1")
	require.NoError(t, err)

	r := h.Append(seg(0, 1), mediabuffer.AppendParams{})
	queued := h.Append(seg(1, 1), mediabuffer.AppendParams{Codec: "hvc1"})
	require.Eventually(t, func() bool { return store.Stats().Appends == 1 }, time.Second, time.Millisecond)

	store.Close()
	_, err = wait(t, r)
	assert.ErrorIs(t, err, mediabuffer.ErrCancelled)
	_, err = wait(t, queued)
	assert.ErrorIs(t, err, mediabuffer.ErrCancelled)

	require.Eventually(t, func() bool { return e.Registry().Len() == 0 }, time.Second, 5*time.Millisecond)
	_, err = e.AddMember(mediabuffer.KindVideo, "avc1")
	assert.ErrorIs(t, err, mediabuffer.ErrStoreClosed)
}

func TestEngine_abort_while_ended_keeps_window_in_sync(t *testing.T) {
	e, store := setup(t, mediastore.Config{Latency: time.Millisecond})
	h, err := e.AddMember(mediabuffer.KindVideo, "avc1")
	require.NoError(t, err)

	bounded := mediabuffer.AppendParams{Window: &mediabuffer.AppendWindow{Start: f(0), End: f(10)}}
	_, err = wait(t, h.Append(seg(0, 4), bounded))
	require.NoError(t, err)

	e.MaintainEndOfStream()
	require.Eventually(t, func() bool {
		return store.ReadyState() == mediabuffer.StateEnded
	}, time.Second, 5*time.Millisecond)

	// the store refuses abort while ended and keeps its window
	h.Abort()

	ranges, err := wait(t, h.Append(seg(10, 10), mediabuffer.AppendParams{}))
	require.NoError(t, err)
	assert.Equal(t, "{[0,4),[10,20)}", ranges.String())
}
