package streaming

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chapterstream/internal/platform/metrics"
)

// Engine streams the chapters of a Playlist into a Sink.
//
// Every piece of mutable state below is owned by the loop goroutine started
// in New. Public methods post closures to the loop and wait for them, and
// worker goroutines (metadata request, chunk fetch, sink append) post their
// results back the same way, so check-and-set sequences never interleave.
type Engine struct {
	cfg        Config
	origin     Origin
	sink       Sink
	playlist   *Playlist
	negotiator *Negotiator
	log        *slog.Logger
	metrics    *metrics.Metrics

	events chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	// loop-owned state
	state        State
	index        int
	chapter      *ChapterRef
	session      *Session
	sinkBusy     bool
	canPlay      bool
	autoplay     bool
	rate         float64
	volume       float64
	lastErr      error
	generation   uint64
	negotiating  context.CancelFunc
	pendingReply chan error
}

// New starts an engine. log must not be nil; m may be nil.
func New(origin Origin, sink Sink, playlist *Playlist, cfg Config, log *slog.Logger, m *metrics.Metrics) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:      cfg.withDefaults(),
		origin:   origin,
		sink:     sink,
		playlist: playlist,
		log:      log,
		metrics:  m,
		events:   make(chan func(), 64),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		index:    -1,
		rate:     1,
		volume:   1,
	}
	e.negotiator = NewNegotiator(origin, sink, log, m)
	go e.run()
	return e
}

// Close stops the loop and disposes the active session.
func (e *Engine) Close() error {
	e.once.Do(func() {
		e.cancel()
		<-e.done
	})
	return nil
}

// Playlist returns the playlist the engine navigates.
func (e *Engine) Playlist() *Playlist {
	return e.playlist
}

func (e *Engine) run() {
	defer close(e.done)

	fill := time.NewTicker(e.cfg.FillInterval)
	defer fill.Stop()
	progress := time.NewTicker(e.cfg.ProgressInterval)
	defer progress.Stop()

	for {
		select {
		case <-e.ctx.Done():
			e.teardown()
			e.log.Info("engine stopped")
			return
		case fn := <-e.events:
			fn()
		case <-fill.C:
			e.checkBuffer("interval")
		case <-progress.C:
			e.observeProgress()
		}
	}
}

// post schedules fn on the loop. It is dropped once the engine is closed.
func (e *Engine) post(fn func()) {
	select {
	case e.events <- fn:
	case <-e.ctx.Done():
	}
}

// call runs fn on the loop and returns its error.
func (e *Engine) call(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case e.events <- func() { reply <- fn() }:
	case <-e.ctx.Done():
		return ErrEngineClosed
	}
	select {
	case err := <-reply:
		return err
	case <-e.done:
		return ErrEngineClosed
	}
}

func (e *Engine) teardown() {
	if e.negotiating != nil {
		e.negotiating()
		e.negotiating = nil
	}
	e.disposeSession()
	if e.pendingReply != nil {
		e.pendingReply <- ErrEngineClosed
		e.pendingReply = nil
	}
}

func (e *Engine) setCanPlay(ok bool) {
	e.canPlay = ok
	e.metrics.SetCanPlay(ok)
}

// Snapshot returns the observable state. After Close it returns the zero
// snapshot in the idle state.
func (e *Engine) Snapshot() Snapshot {
	var snap Snapshot
	err := e.call(func() error {
		snap = e.snapshot()
		return nil
	})
	if err != nil {
		return Snapshot{State: StateIdle, ChapterIndex: -1, TakenAt: time.Now()}
	}
	return snap
}

func (e *Engine) snapshot() Snapshot {
	snap := Snapshot{
		State:        e.state,
		ChapterIndex: e.index,
		IsPlaying:    e.state == StatePlaying,
		CanPlay:      e.canPlay,
		Rate:         e.rate,
		Volume:       e.volume,
		TakenAt:      time.Now(),
	}
	if e.chapter != nil {
		ch := *e.chapter
		snap.Chapter = &ch
		snap.Duration = ch.DeclaredDuration
	}
	if e.lastErr != nil {
		snap.LastError = e.lastErr.Error()
	}
	if s := e.session; s != nil && s.opened {
		s.buffer.observe(e.sink.Buffered(), e.sink.Position())
		snap.SessionID = s.ID
		snap.Duration = s.Duration
		snap.CurrentTime = s.buffer.position
		snap.Buffered = s.buffer.ranges
		snap.BufferedAhead = s.buffer.ahead()
		snap.AppendedBytes = s.buffer.Appended()
		snap.TotalBytes = s.TotalBytes
		if s.Duration > 0 {
			snap.ProgressPercent = snap.CurrentTime / s.Duration * 100
		}
	} else if s != nil {
		snap.SessionID = s.ID
		snap.Duration = s.Duration
		snap.TotalBytes = s.TotalBytes
	}
	return snap
}
