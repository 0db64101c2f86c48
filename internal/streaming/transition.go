package streaming

import (
	"context"
	"fmt"
	"log/slog"
)

// Select loads the chapter at index and waits for its metadata negotiation.
// A nil error means the engine is buffering the first chunk.
func (e *Engine) Select(ctx context.Context, index int) error {
	ref, ok := e.playlist.At(index)
	if !ok {
		if e.playlist.Len() == 0 {
			return ErrEmptyPlaylist
		}
		return fmt.Errorf("%w: index %d", ErrChapterNotFound, index)
	}
	return e.load(ctx, index, ref, false)
}

// LoadChapter loads ref, which must belong to the playlist.
func (e *Engine) LoadChapter(ctx context.Context, ref ChapterRef) error {
	index := e.playlist.IndexOf(ref.ID)
	if index < 0 {
		return fmt.Errorf("%w: %s", ErrChapterNotFound, ref.ID)
	}
	return e.load(ctx, index, ref, false)
}

// Next loads the following chapter, wrapping to the first after the last.
// Playback continues if it was active.
func (e *Engine) Next(ctx context.Context) error {
	return e.step(ctx, e.playlist.Next)
}

// Previous loads the preceding chapter, wrapping to the last before the first.
func (e *Engine) Previous(ctx context.Context) error {
	return e.step(ctx, e.playlist.Previous)
}

func (e *Engine) step(ctx context.Context, move func(int) int) error {
	if e.playlist.Len() == 0 {
		return ErrEmptyPlaylist
	}
	reply := make(chan error, 1)
	err := e.call(func() error {
		index := move(e.index)
		ref, _ := e.playlist.At(index)
		e.transition(index, ref, e.state == StatePlaying || e.autoplay, reply)
		return nil
	})
	if err != nil {
		return err
	}
	return e.await(ctx, reply)
}

func (e *Engine) load(ctx context.Context, index int, ref ChapterRef, autoplay bool) error {
	reply := make(chan error, 1)
	err := e.call(func() error {
		e.transition(index, ref, autoplay, reply)
		return nil
	})
	if err != nil {
		return err
	}
	return e.await(ctx, reply)
}

func (e *Engine) await(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineClosed
	}
}

// transition discards the current session entirely and starts negotiating
// ref. reply, if not nil, receives the negotiation outcome.
func (e *Engine) transition(index int, ref ChapterRef, autoplay bool, reply chan error) {
	if e.negotiating != nil {
		e.negotiating()
		e.negotiating = nil
	}
	if e.pendingReply != nil {
		e.pendingReply <- ErrSuperseded
		e.pendingReply = nil
	}
	e.disposeSession()
	e.setCanPlay(false)
	e.state = StateIdle
	e.lastErr = nil
	e.metrics.IncTransitions()

	e.generation++
	gen := e.generation
	e.index = index
	e.chapter = &ref
	e.autoplay = autoplay
	e.pendingReply = reply
	e.state = StateNegotiating

	ctx, cancel := context.WithCancel(e.ctx)
	e.negotiating = cancel

	e.log.Info("chapter transition",
		slog.Int("index", index),
		slog.String("chapter_id", ref.ID),
		slog.String("title", ref.Title),
		slog.Bool("autoplay", autoplay))

	go func() {
		s, err := e.negotiator.Negotiate(ctx, ref)
		e.post(func() { e.onNegotiated(gen, s, err, cancel) })
	}()
}

func (e *Engine) onNegotiated(gen uint64, s *Session, err error, cancel context.CancelFunc) {
	if gen != e.generation {
		if s != nil {
			s.dispose()
		}
		cancel()
		return
	}
	e.negotiating = nil
	reply := e.pendingReply
	e.pendingReply = nil
	respond := func(err error) {
		if reply != nil {
			reply <- err
		}
	}

	if err != nil {
		cancel()
		e.state = StateIdle
		e.lastErr = err
		e.autoplay = false
		e.log.Warn("chapter negotiation failed", slog.String("error", err.Error()))
		respond(err)
		return
	}

	if !e.sinkBusy {
		if err := e.openStream(s); err != nil {
			s.dispose()
			cancel()
			e.state = StateIdle
			e.lastErr = err
			e.autoplay = false
			e.log.Error("sink refused stream", slog.String("error", err.Error()))
			respond(err)
			return
		}
	}

	stop := s.cancel
	s.cancel = func() {
		stop()
		cancel()
	}
	e.session = s
	e.state = StateBuffering
	e.log.Debug("session started",
		slog.String("session_id", s.ID),
		slog.String("chapter_id", s.Chapter.ID),
		slog.Int64("total_bytes", s.TotalBytes),
		slog.Bool("sink_draining", !s.opened))
	respond(nil)

	e.fetchChunk(s, "initial")
}

// openStream resets the sink for s. It must only run while no sink call is
// outstanding, so nothing of the previous session lands after the reset.
func (e *Engine) openStream(s *Session) error {
	if err := e.sink.Reset(Format{ContentType: s.ContentType, Duration: s.Duration, TotalBytes: s.TotalBytes}); err != nil {
		return fmt.Errorf("%w: sink reset: %v", ErrUnsupportedContentType, err)
	}
	e.sink.SetRate(e.rate)
	e.sink.SetVolume(e.volume)
	s.opened = true
	return nil
}

// onSinkIdle runs when the outstanding sink call returned. A session that
// was negotiated meanwhile gets its stream opened now.
func (e *Engine) onSinkIdle() {
	e.sinkBusy = false
	s := e.session
	if s == nil || s.disposed {
		return
	}
	if !s.opened {
		if err := e.openStream(s); err != nil {
			e.log.Error("sink refused stream", slog.String("session_id", s.ID), slog.String("error", err.Error()))
			e.fail(err)
			return
		}
		e.log.Debug("sink drained, stream opened", slog.String("session_id", s.ID))
	}
	e.pumpAppends(s)
}

// disposeSession is the single exit path for a session: every transition,
// fatal error and teardown goes through here.
func (e *Engine) disposeSession() {
	s := e.session
	if s == nil {
		return
	}
	e.session = nil
	s.dispose()
	e.sink.Pause()
	e.log.Debug("session disposed", slog.String("session_id", s.ID), slog.String("chapter_id", s.Chapter.ID))
}

// observeProgress polls the sink for natural end of media.
func (e *Engine) observeProgress() {
	s := e.session
	if s == nil || !s.opened {
		return
	}
	s.buffer.observe(e.sink.Buffered(), e.sink.Position())
	e.metrics.SetBufferedAhead(s.buffer.ahead())

	if (e.state == StatePlaying || e.state == StateReady) && e.sink.Ended() {
		e.onEnded()
	}
}

func (e *Engine) onEnded() {
	e.state = StateEnded
	e.log.Info("chapter ended", slog.Int("index", e.index), slog.String("chapter_id", e.session.Chapter.ID))

	if e.playlist.Len() < 2 {
		return
	}
	next := e.playlist.Next(e.index)
	ref, _ := e.playlist.At(next)
	e.transition(next, ref, true, nil)
}
