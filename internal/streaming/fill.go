package streaming

import "log/slog"

// checkBuffer is the level-triggered fill policy: fetch the next chunk when
// nothing has been appended yet, or when less than the low-water mark is
// buffered ahead of the playback position. Calling it while a fetch is
// outstanding, or before the sink opened the session's stream, does nothing.
func (e *Engine) checkBuffer(reason string) {
	s := e.session
	if s == nil || s.disposed || !s.opened || s.complete() {
		return
	}

	s.buffer.observe(e.sink.Buffered(), e.sink.Position())
	ahead := s.buffer.ahead()
	e.metrics.SetBufferedAhead(ahead)

	if s.inFlight {
		return
	}

	lowWater := e.cfg.LowWaterMark.Seconds()
	if s.buffer.Appended() > 0 && ahead >= lowWater {
		return
	}

	e.log.Debug("buffer below low-water mark",
		slog.String("session_id", s.ID),
		slog.String("reason", reason),
		slog.Float64("buffered_ahead", ahead),
		slog.Float64("low_water_mark", lowWater))
	e.fetchChunk(s, reason)
}
