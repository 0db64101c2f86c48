package playback

import (
	"testing"
	"time"

	"chapterstream/internal/platform/logger"
	"chapterstream/internal/streaming"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSink(t *testing.T) (*ClockSink, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s := NewClockSink([]string{"audio/mpeg", " Audio/MP4 "}, logger.Discard())
	s.now = clock.now
	require.NoError(t, s.Reset(streaming.Format{ContentType: "audio/mpeg", Duration: 100, TotalBytes: 1000}))
	return s, clock
}

func TestClockSink_supports(t *testing.T) {
	s := NewClockSink([]string{"audio/mpeg", " Audio/MP4 "}, logger.Discard())
	assert.True(t, s.Supports("audio/mpeg"))
	assert.True(t, s.Supports("AUDIO/MP4"))
	assert.False(t, s.Supports("video/webm"))
	assert.Error(t, s.Reset(streaming.Format{ContentType: "video/webm", Duration: 1, TotalBytes: 1}))
	assert.Error(t, s.Reset(streaming.Format{ContentType: "audio/mpeg"}))
}

func TestClockSink_bufferedFollowsAppends(t *testing.T) {
	s, _ := newTestSink(t)
	assert.Nil(t, s.Buffered())
	assert.ErrorIs(t, s.Play(), ErrNothingBuffered)

	require.NoError(t, s.Append(make([]byte, 250)))
	assert.Equal(t, []streaming.TimeRange{{Start: 0, End: 25}}, s.Buffered())

	require.NoError(t, s.Append(make([]byte, 750)))
	require.NoError(t, s.EndOfStream())
	assert.Equal(t, []streaming.TimeRange{{Start: 0, End: 100}}, s.Buffered())

	assert.ErrorIs(t, s.Append([]byte{1}), ErrStreamFinished)
}

func TestClockSink_rejectsOverflowAndUnset(t *testing.T) {
	s := NewClockSink([]string{"audio/mpeg"}, logger.Discard())
	assert.ErrorIs(t, s.Append([]byte{1}), ErrNotReset)
	assert.ErrorIs(t, s.EndOfStream(), ErrNotReset)
	assert.ErrorIs(t, s.Seek(1), ErrNotReset)

	s, _ = newTestSink(t)
	assert.ErrorIs(t, s.Append(make([]byte, 1001)), ErrOverflow)
}

func TestClockSink_playbackStallsAtBufferedEdge(t *testing.T) {
	s, clock := newTestSink(t)
	require.NoError(t, s.Append(make([]byte, 100)))
	require.NoError(t, s.Play())

	clock.advance(4 * time.Second)
	assert.InDelta(t, 4, s.Position(), 1e-9)

	clock.advance(20 * time.Second)
	assert.InDelta(t, 10, s.Position(), 1e-9, "position is capped at the buffered end")
	assert.True(t, s.Playing())

	require.NoError(t, s.Append(make([]byte, 100)))
	clock.advance(5 * time.Second)
	assert.InDelta(t, 15, s.Position(), 1e-9)

	s.SetRate(2)
	clock.advance(time.Second)
	assert.InDelta(t, 17, s.Position(), 1e-9)

	s.Pause()
	clock.advance(time.Minute)
	assert.InDelta(t, 17, s.Position(), 1e-9)
	assert.False(t, s.Playing())
}

func TestClockSink_seekBeyondBufferDoesNotAdvance(t *testing.T) {
	s, clock := newTestSink(t)
	require.NoError(t, s.Append(make([]byte, 100)))
	require.NoError(t, s.Play())
	require.NoError(t, s.Seek(50))

	clock.advance(3 * time.Second)
	assert.Equal(t, 50.0, s.Position())

	require.NoError(t, s.Seek(500))
	assert.Equal(t, 100.0, s.Position())
	require.NoError(t, s.Seek(-1))
	assert.Equal(t, 0.0, s.Position())
}

func TestClockSink_endedAfterEndOfStream(t *testing.T) {
	s, clock := newTestSink(t)
	require.NoError(t, s.Append(make([]byte, 1000)))
	require.NoError(t, s.Play())

	clock.advance(200 * time.Second)
	assert.False(t, s.Ended(), "not ended until end of stream is signalled")
	assert.Equal(t, 100.0, s.Position())

	require.NoError(t, s.EndOfStream())
	assert.True(t, s.Ended())
	assert.False(t, s.Playing())

	require.NoError(t, s.Seek(0))
	assert.False(t, s.Ended())

	require.NoError(t, s.Reset(streaming.Format{ContentType: "audio/mp4", Duration: 10, TotalBytes: 10}))
	assert.Nil(t, s.Buffered())
	assert.Equal(t, 0.0, s.Position())
}
