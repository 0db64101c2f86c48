package streaming

import (
	"fmt"
	"log/slog"
	"math"
)

// Play starts playback. Until the first chunk of the current chapter has
// been appended it does nothing and returns ErrNotReady.
func (e *Engine) Play() error {
	return e.call(e.play)
}

func (e *Engine) play() error {
	if !e.canPlay || e.session == nil {
		e.log.Info("play ignored, chapter not ready", slog.String("state", e.state.String()))
		return ErrNotReady
	}
	if e.state == StatePlaying {
		return nil
	}
	if e.state == StateEnded {
		if err := e.sink.Seek(0); err != nil {
			return fmt.Errorf("%w: rewind: %v", ErrSinkPlayback, err)
		}
	}
	if err := e.sink.Play(); err != nil {
		e.state = StatePaused
		e.log.Warn("sink refused to play", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", ErrSinkPlayback, err)
	}
	e.state = StatePlaying
	return nil
}

// Pause pauses playback. It also cancels a pending auto-play.
func (e *Engine) Pause() error {
	return e.call(func() error {
		e.autoplay = false
		if e.session == nil {
			return nil
		}
		e.sink.Pause()
		if e.state == StatePlaying || e.state == StateReady {
			e.state = StatePaused
		}
		return nil
	})
}

// SetRate changes the playback rate. The rate is kept across chapters.
func (e *Engine) SetRate(rate float64) error {
	if !(rate > 0) || math.IsInf(rate, 1) {
		return fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}
	return e.call(func() error {
		e.rate = rate
		e.sink.SetRate(rate)
		return nil
	})
}

// SetVolume changes the volume, clamped to [0, 1]. The volume is kept
// across chapters.
func (e *Engine) SetVolume(volume float64) error {
	if math.IsNaN(volume) {
		return fmt.Errorf("%w: %v", ErrInvalidVolume, volume)
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	return e.call(func() error {
		e.volume = volume
		e.sink.SetVolume(volume)
		return nil
	})
}
