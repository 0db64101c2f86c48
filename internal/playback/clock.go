// Package playback provides streaming.Sink implementations.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chapterstream/internal/streaming"

	"github.com/dustin/go-humanize"
)

var (
	ErrNotReset        = errors.New("sink has no stream format")
	ErrStreamFinished  = errors.New("append after end of stream")
	ErrOverflow        = errors.New("append beyond declared stream size")
	ErrNothingBuffered = errors.New("nothing buffered")
)

// ClockSink is a device-less sink. Appended bytes become buffered time at a
// constant bitrate and the playback position follows the wall clock scaled by
// the rate. Playback stalls at the edge of the buffered range.
type ClockSink struct {
	mu        sync.Mutex
	now       func() time.Time
	log       *slog.Logger
	supported map[string]bool

	format   streaming.Format
	appended int64
	eos      bool
	playing  bool
	pos      float64
	since    time.Time
	rate     float64
	volume   float64
}

// NewClockSink returns a sink that accepts the given MIME types.
func NewClockSink(contentTypes []string, log *slog.Logger) *ClockSink {
	supported := make(map[string]bool, len(contentTypes))
	for _, ct := range contentTypes {
		supported[strings.ToLower(strings.TrimSpace(ct))] = true
	}
	return &ClockSink{
		now:       time.Now,
		log:       log,
		supported: supported,
		rate:      1,
		volume:    1,
	}
}

// Supports implements streaming.Sink.
func (s *ClockSink) Supports(contentType string) bool {
	return s.supported[strings.ToLower(contentType)]
}

// Reset implements streaming.Sink.
func (s *ClockSink) Reset(f streaming.Format) error {
	if !s.Supports(f.ContentType) {
		return fmt.Errorf("no decoder for %q", f.ContentType)
	}
	if f.TotalBytes <= 0 || f.Duration <= 0 {
		return fmt.Errorf("invalid stream format: %d bytes, %.3fs", f.TotalBytes, f.Duration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = f
	s.appended = 0
	s.eos = false
	s.playing = false
	s.pos = 0
	s.since = s.now()
	s.log.Debug("sink reset",
		slog.String("content_type", f.ContentType),
		slog.String("size", humanize.IBytes(uint64(f.TotalBytes))),
		slog.Float64("duration", f.Duration))
	return nil
}

// Append implements streaming.Sink.
func (s *ClockSink) Append(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.format.TotalBytes == 0:
		return ErrNotReset
	case s.eos:
		return ErrStreamFinished
	case s.appended+int64(len(p)) > s.format.TotalBytes:
		return fmt.Errorf("%w: %d + %d > %d", ErrOverflow, s.appended, len(p), s.format.TotalBytes)
	}
	s.settle()
	s.appended += int64(len(p))
	return nil
}

// EndOfStream implements streaming.Sink.
func (s *ClockSink) EndOfStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.format.TotalBytes == 0 {
		return ErrNotReset
	}
	s.settle()
	s.eos = true
	return nil
}

// Buffered implements streaming.Sink.
func (s *ClockSink) Buffered() []streaming.TimeRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := s.bufferedEnd()
	if end <= 0 {
		return nil
	}
	return []streaming.TimeRange{{Start: 0, End: end}}
}

// Position implements streaming.Sink.
func (s *ClockSink) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	return s.pos
}

// Seek implements streaming.Sink.
func (s *ClockSink) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.format.TotalBytes == 0 {
		return ErrNotReset
	}
	s.settle()
	s.pos = min(max(seconds, 0), s.format.Duration)
	return nil
}

// Play implements streaming.Sink.
func (s *ClockSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appended == 0 {
		return ErrNothingBuffered
	}
	s.settle()
	s.playing = true
	return nil
}

// Pause implements streaming.Sink.
func (s *ClockSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	s.playing = false
}

// Playing implements streaming.Sink.
func (s *ClockSink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	return s.playing
}

// SetRate implements streaming.Sink.
func (s *ClockSink) SetRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	s.rate = rate
}

// SetVolume implements streaming.Sink. Volume has no effect on the clock.
func (s *ClockSink) SetVolume(volume float64) {
	s.mu.Lock()
	s.volume = volume
	s.mu.Unlock()
}

// Ended implements streaming.Sink.
func (s *ClockSink) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	return s.ended()
}

func (s *ClockSink) ended() bool {
	return s.eos && s.format.Duration > 0 && s.pos >= s.format.Duration
}

// settle advances the position to now. Caller holds mu.
func (s *ClockSink) settle() {
	now := s.now()
	elapsed := now.Sub(s.since).Seconds()
	s.since = now
	if !s.playing {
		return
	}
	if end := s.bufferedEnd(); elapsed > 0 && s.pos < end {
		s.pos = min(s.pos+elapsed*s.rate, end)
	}
	if s.ended() {
		s.playing = false
	}
}

func (s *ClockSink) bufferedEnd() float64 {
	if s.format.TotalBytes == 0 || s.appended == 0 {
		return 0
	}
	if s.eos || s.appended >= s.format.TotalBytes {
		return s.format.Duration
	}
	return float64(s.appended) / float64(s.format.TotalBytes) * s.format.Duration
}
