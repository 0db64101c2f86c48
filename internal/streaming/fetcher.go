package streaming

import (
	"errors"
	"log/slog"
	"time"

	"chapterstream/internal/platform/metrics"

	"github.com/dustin/go-humanize"
)

// fetchChunk issues the next ranged request for s. It is a no-op when a
// request is already outstanding or the chapter is fully fetched.
func (e *Engine) fetchChunk(s *Session, reason string) bool {
	req, ok := s.beginFetch(e.cfg.ChunkSize)
	if !ok {
		e.log.Debug("fetch skipped",
			slog.String("session_id", s.ID),
			slog.String("reason", reason),
			slog.Bool("in_flight", s.inFlight),
			slog.Int64("next_offset", s.nextOffset))
		return false
	}

	e.log.Debug("fetching chunk",
		slog.String("session_id", s.ID),
		slog.String("reason", reason),
		slog.Int64("start", req.Start),
		slog.Int64("end", req.End))

	ctx := s.ctx
	chapterID := s.Chapter.ID
	go func() {
		c, err := e.origin.FetchRange(ctx, chapterID, req.Start, req.End, req.Token)
		e.post(func() { e.onFetchResult(s, req, c, err) })
	}()
	return true
}

func (e *Engine) onFetchResult(s *Session, req chunkRequest, c Chunk, err error) {
	if s != e.session || s.disposed {
		e.metrics.ObserveChunkFetch(metrics.ResultDiscarded)
		e.log.Debug("discarding response for stale session",
			slog.String("session_id", s.ID),
			slog.Int64("start", req.Start))
		return
	}

	if err == nil {
		err = s.completeFetch(req, c)
		if errors.Is(err, errCursorMoved) {
			e.log.Debug("dropping chunk behind rewound cursor", slog.String("session_id", s.ID), slog.String("error", err.Error()))
			e.checkBuffer("cursor-moved")
			return
		}
	}
	if err != nil {
		e.onFetchError(s, req, err)
		return
	}

	e.metrics.ObserveChunkFetch(metrics.ResultOK)
	e.log.Debug("chunk fetched",
		slog.String("session_id", s.ID),
		slog.Int64("start", req.Start),
		slog.String("size", humanize.IBytes(uint64(len(c.Data)))))

	e.enqueueAppend(s, pendingAppend{offset: req.Start, data: c.Data})
	if s.complete() {
		e.enqueueAppend(s, pendingAppend{offset: s.TotalBytes, eos: true})
	}
}

// onFetchError keeps the range and token untouched. Transient failures hold
// the in-flight guard for the backoff period; rejected requests end the session.
func (e *Engine) onFetchError(s *Session, req chunkRequest, err error) {
	if IsRejected(err) {
		e.metrics.ObserveChunkFetch(metrics.ResultFatal)
		e.log.Error("chunk fetch failed permanently",
			slog.String("session_id", s.ID),
			slog.Int64("start", req.Start),
			slog.String("error", err.Error()))
		e.fail(err)
		return
	}

	e.metrics.ObserveChunkFetch(metrics.ResultRetry)
	e.log.Warn("chunk fetch failed, retrying after backoff",
		slog.String("session_id", s.ID),
		slog.Int64("start", req.Start),
		slog.Int64("end", req.End),
		slog.Duration("backoff", e.cfg.RetryBackoff),
		slog.String("error", err.Error()))

	s.retryTimer = time.AfterFunc(e.cfg.RetryBackoff, func() {
		e.post(func() {
			if s != e.session || s.disposed {
				return
			}
			s.release()
			e.checkBuffer("retry")
		})
	})
}

// fail ends the current session after an unrecoverable error. The chapter
// stays selected so a new load or seek can restart it.
func (e *Engine) fail(err error) {
	e.disposeSession()
	e.setCanPlay(false)
	e.autoplay = false
	e.state = StateIdle
	e.lastErr = err
}

func (e *Engine) enqueueAppend(s *Session, p pendingAppend) {
	s.queue = append(s.queue, p)
	e.pumpAppends(s)
}

// pumpAppends submits the head of the queue once the sink finished the
// previous call, whichever session issued it.
func (e *Engine) pumpAppends(s *Session) {
	for !e.sinkBusy && s.opened && len(s.queue) > 0 && !s.disposed {
		p := s.queue[0]
		s.queue = s.queue[1:]

		if err := s.buffer.checkAppend(p.offset); err != nil {
			e.metrics.IncAppendRejected()
			e.log.Error("rejecting append", slog.String("session_id", s.ID), slog.String("error", err.Error()))
			continue
		}

		e.sinkBusy = true
		go func() {
			var err error
			if p.eos {
				err = e.sink.EndOfStream()
			} else {
				err = e.sink.Append(p.data)
			}
			e.post(func() { e.onAppended(s, p, err) })
		}()
	}
}

func (e *Engine) onAppended(s *Session, p pendingAppend, err error) {
	if s != e.session || s.disposed {
		e.log.Debug("sink call of disposed session returned", slog.String("session_id", s.ID))
		e.onSinkIdle()
		return
	}
	e.sinkBusy = false

	if err != nil {
		e.onAppendError(s, p, err)
		return
	}

	if p.eos {
		e.metrics.IncEndOfStream()
		e.log.Info("end of stream signalled", slog.String("session_id", s.ID), slog.String("chapter_id", s.Chapter.ID))
		e.pumpAppends(s)
		return
	}

	if err := s.buffer.commitAppend(p.offset, len(p.data)); err != nil {
		e.metrics.IncAppendRejected()
		e.log.Error("append bookkeeping mismatch", slog.String("session_id", s.ID), slog.String("error", err.Error()))
		e.pumpAppends(s)
		return
	}
	e.metrics.AddBytesAppended(len(p.data))

	if !e.canPlay {
		e.setCanPlay(true)
		if e.state == StateBuffering {
			e.state = StateReady
		}
		e.log.Info("chapter ready", slog.String("session_id", s.ID), slog.String("chapter_id", s.Chapter.ID))
		if e.autoplay {
			e.autoplay = false
			if err := e.play(); err != nil {
				e.log.Warn("autoplay failed", slog.String("error", err.Error()))
			}
		}
	}

	e.pumpAppends(s)

	s.buffer.observe(e.sink.Buffered(), e.sink.Position())
	if !s.buffer.contains(s.buffer.position) {
		e.checkBuffer("stalled")
	}
}

// onAppendError rewinds the fetch cursor to the refused chunk. The token is
// kept: it is already the one the origin expects next.
func (e *Engine) onAppendError(s *Session, p pendingAppend, err error) {
	if p.eos {
		e.log.Warn("sink refused end of stream, retrying after backoff",
			slog.String("session_id", s.ID),
			slog.Duration("backoff", e.cfg.RetryBackoff),
			slog.String("error", err.Error()))
		s.eosTimer = time.AfterFunc(e.cfg.RetryBackoff, func() {
			e.post(func() {
				if s != e.session || s.disposed {
					return
				}
				s.eosTimer = nil
				e.enqueueAppend(s, pendingAppend{offset: s.TotalBytes, eos: true})
			})
		})
		return
	}
	e.log.Warn("sink refused append, refetching",
		slog.String("session_id", s.ID),
		slog.Int64("offset", p.offset),
		slog.String("error", err.Error()))
	s.queue = nil
	s.nextOffset = p.offset
	e.checkBuffer("append-error")
}
