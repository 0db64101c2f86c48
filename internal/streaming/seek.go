package streaming

import (
	"fmt"
	"log/slog"
	"math"
)

// Seek moves playback to seconds, clamped to the chapter. A target outside
// the buffered ranges fetches immediately, ignoring the low-water mark.
// NaN and infinite targets are refused with ErrInvalidPosition.
func (e *Engine) Seek(seconds float64) error {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidPosition, seconds)
	}
	return e.call(func() error {
		return e.seek(seconds)
	})
}

func (e *Engine) seek(target float64) error {
	s := e.session
	if s == nil {
		return ErrNoSession
	}
	if !s.opened {
		return ErrNotReady
	}

	if target < 0 {
		target = 0
	}
	if target > s.Duration {
		target = s.Duration
	}

	wasPlaying := e.state == StatePlaying
	if err := e.sink.Seek(target); err != nil {
		return fmt.Errorf("%w: seek to %.3f: %v", ErrSinkPlayback, target, err)
	}
	if e.state == StateEnded {
		e.state = StatePaused
	}

	s.buffer.observe(e.sink.Buffered(), target)
	if !s.buffer.contains(target) {
		e.log.Debug("seek outside buffered range",
			slog.String("session_id", s.ID),
			slog.Float64("target", target),
			slog.Float64("buffered_end", s.buffer.end()),
			slog.Bool("in_flight", s.inFlight))
		if !s.inFlight {
			e.fetchChunk(s, "seek")
		}
	}

	if wasPlaying {
		if err := e.sink.Play(); err != nil {
			e.state = StatePaused
			e.log.Warn("resume after seek failed",
				slog.String("session_id", s.ID),
				slog.String("error", fmt.Errorf("%w: %v", ErrSinkPlayback, err).Error()))
		}
	}
	return nil
}
