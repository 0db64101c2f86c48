package streaming

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chapterstream/internal/platform/logger"

	"github.com/stretchr/testify/require"
)

type rangeCall struct {
	Chapter string
	Start   int64
	End     int64
	Token   string
}

type fakeChapter struct {
	data        []byte
	contentType string
	duration    float64
	token       string
	seq         int
}

// fakeOrigin rotates tokens the way the real origin does: every response
// carries the next token and any other token is refused.
type fakeOrigin struct {
	mu        sync.Mutex
	chapters  map[string]*fakeChapter
	calls     []rangeCall
	metaCalls int
	metaErr   error
	failNext  int
	rejectAll bool
	block     map[string]chan struct{}
}

func newFakeOrigin() *fakeOrigin {
	return &fakeOrigin{chapters: map[string]*fakeChapter{}, block: map[string]chan struct{}{}}
}

func (o *fakeOrigin) add(id string, size int, contentType string, duration float64) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	o.mu.Lock()
	o.chapters[id] = &fakeChapter{data: data, contentType: contentType, duration: duration}
	o.mu.Unlock()
	return data
}

func (o *fakeOrigin) hold(id string) chan struct{} {
	ch := make(chan struct{})
	o.mu.Lock()
	o.block[id] = ch
	o.mu.Unlock()
	return ch
}

func (o *fakeOrigin) rotate(id string, ch *fakeChapter) string {
	ch.seq++
	ch.token = fmt.Sprintf("%s-%d", id, ch.seq)
	return ch.token
}

// expire rotates id's token behind the engine's back, as if another client
// had spent it.
func (o *fakeOrigin) expire(id string) {
	o.mu.Lock()
	o.rotate(id, o.chapters[id])
	o.mu.Unlock()
}

func (o *fakeOrigin) FetchMetadata(ctx context.Context, id string) (Metadata, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.metaCalls++
	if o.metaErr != nil {
		return Metadata{}, o.metaErr
	}
	ch, ok := o.chapters[id]
	if !ok {
		return Metadata{}, fmt.Errorf("%w: %w", ErrMetadataUnavailable, &StatusError{Code: 404, URL: id})
	}
	return Metadata{
		TotalBytes:  int64(len(ch.data)),
		ContentType: ch.contentType,
		Duration:    ch.duration,
		Token:       o.rotate(id, ch),
	}, nil
}

func (o *fakeOrigin) FetchRange(ctx context.Context, id string, start, end int64, token string) (Chunk, error) {
	o.mu.Lock()
	o.calls = append(o.calls, rangeCall{Chapter: id, Start: start, End: end, Token: token})
	gate := o.block[id]
	o.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Chunk{}, fmt.Errorf("%w: %w", ErrChunkFetchFailed, ctx.Err())
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failNext > 0 {
		o.failNext--
		return Chunk{}, fmt.Errorf("%w: connection reset by peer", ErrChunkFetchFailed)
	}
	ch := o.chapters[id]
	if o.rejectAll || ch == nil || token != ch.token {
		return Chunk{}, fmt.Errorf("%w: %w: %w", ErrChunkFetchFailed, ErrChunkRejected, &StatusError{Code: 403, URL: id})
	}
	data := append([]byte(nil), ch.data[start:end+1]...)
	return Chunk{Data: data, Token: o.rotate(id, ch)}, nil
}

func (o *fakeOrigin) metadataCalls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.metaCalls
}

func (o *fakeOrigin) rangeCalls() []rangeCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]rangeCall(nil), o.calls...)
}

// fakeSink buffers linearly: appended bytes map proportionally onto the
// chapter duration.
type fakeSink struct {
	mu        sync.Mutex
	supported map[string]bool
	format    Format
	data      []byte
	resets    int
	eos       int
	eosAt     int
	pos       float64
	playing   bool
	ended     bool
	rate      float64
	volume    float64
	appendErr error
	eosErr    error
	refused   int
}

func newFakeSink() *fakeSink {
	return &fakeSink{supported: map[string]bool{"audio/mpeg": true, "audio/mp4": true}, rate: 1, volume: 1}
}

func (s *fakeSink) Supports(ct string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supported[ct]
}

func (s *fakeSink) Reset(f Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.supported[f.ContentType] {
		return errors.New("no decoder")
	}
	s.format = f
	s.data = nil
	s.eos = 0
	s.eosAt = 0
	s.pos = 0
	s.playing = false
	s.ended = false
	s.resets++
	return nil
}

func (s *fakeSink) Append(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		err := s.appendErr
		s.appendErr = nil
		return err
	}
	s.data = append(s.data, p...)
	return nil
}

func (s *fakeSink) EndOfStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eosErr != nil {
		err := s.eosErr
		s.eosErr = nil
		s.refused++
		return err
	}
	s.eos++
	s.eosAt = len(s.data)
	return nil
}

func (s *fakeSink) Buffered() []TimeRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.format.TotalBytes == 0 || len(s.data) == 0 {
		return nil
	}
	end := float64(len(s.data)) / float64(s.format.TotalBytes) * s.format.Duration
	return []TimeRange{{Start: 0, End: end}}
}

func (s *fakeSink) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *fakeSink) Seek(t float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = t
	s.ended = false
	return nil
}

func (s *fakeSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return errors.New("nothing buffered")
	}
	s.playing = true
	return nil
}

func (s *fakeSink) Pause() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
}

func (s *fakeSink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *fakeSink) SetRate(r float64) {
	s.mu.Lock()
	s.rate = r
	s.mu.Unlock()
}

func (s *fakeSink) SetVolume(v float64) {
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
}

func (s *fakeSink) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// finish plays the chapter out to its end.
func (s *fakeSink) finish() {
	s.mu.Lock()
	s.pos = s.format.Duration
	s.ended = true
	s.playing = false
	s.mu.Unlock()
}

func (s *fakeSink) bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...)
}

func (s *fakeSink) eosState() (count, at int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eos, s.eosAt
}

func (s *fakeSink) resetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// stuckSink blocks its first Append until release is closed, like a device
// that stopped draining.
type stuckSink struct {
	*fakeSink
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newStuckSink() *stuckSink {
	return &stuckSink{fakeSink: newFakeSink(), entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *stuckSink) Append(p []byte) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.fakeSink.Append(p)
}

// fastConfig fetches on every tick and retries quickly.
func fastConfig() Config {
	return Config{
		ChunkSize:        100,
		LowWaterMark:     time.Hour,
		FillInterval:     5 * time.Millisecond,
		RetryBackoff:     30 * time.Millisecond,
		ProgressInterval: 5 * time.Millisecond,
	}
}

func newTestEngine(t *testing.T, o Origin, s Sink, cfg Config, chapters ...ChapterRef) *Engine {
	t.Helper()
	e := New(o, s, NewPlaylist(chapters), cfg, logger.Discard(), nil)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond, msg)
}
