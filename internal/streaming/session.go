package streaming

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is the fetch, offset and token state of one chapter being
// streamed. It is owned by the engine loop; no field is touched elsewhere.
type Session struct {
	ID          string
	Chapter     ChapterRef
	TotalBytes  int64
	ContentType string
	Duration    float64

	// token and nextOffset travel together: the token is the one the origin
	// expects for the request starting at nextOffset.
	token      string
	nextOffset int64
	inFlight   bool

	buffer BufferState

	// opened is set once the sink was reset for this session. Until then
	// fetched chunks wait in queue.
	opened     bool
	queue      []pendingAppend
	retryTimer *time.Timer
	eosTimer   *time.Timer
	ctx        context.Context
	cancel     context.CancelFunc
	disposed   bool
}

// errCursorMoved marks a response whose range no longer starts at the fetch
// cursor because the cursor was rewound while the request was outstanding.
var errCursorMoved = errors.New("fetch cursor moved")

// chunkRequest is one ranged request issued for a session.
type chunkRequest struct {
	Start int64
	End   int64
	Token string
}

func (r chunkRequest) length() int64 {
	return r.End - r.Start + 1
}

// pendingAppend is a queued sink operation. eos marks the end-of-stream
// signal that follows the final chunk.
type pendingAppend struct {
	offset int64
	data   []byte
	eos    bool
}

func newSession(parent context.Context, ref ChapterRef, md Metadata) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:          uuid.NewString(),
		Chapter:     ref,
		TotalBytes:  md.TotalBytes,
		ContentType: md.ContentType,
		Duration:    md.Duration,
		token:       md.Token,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// NextOffset returns the offset of the next byte to fetch.
func (s *Session) NextOffset() int64 {
	return s.nextOffset
}

// InFlight reports whether a ranged request is outstanding or backing off.
func (s *Session) InFlight() bool {
	return s.inFlight
}

// complete reports whether every byte of the chapter has been fetched.
func (s *Session) complete() bool {
	return s.nextOffset >= s.TotalBytes
}

// beginFetch checks and sets the in-flight guard in one step and returns
// the range to request.
func (s *Session) beginFetch(chunkSize int64) (chunkRequest, bool) {
	if s.disposed || s.inFlight || s.complete() {
		return chunkRequest{}, false
	}
	end := s.nextOffset + chunkSize - 1
	if end > s.TotalBytes-1 {
		end = s.TotalBytes - 1
	}
	s.inFlight = true
	return chunkRequest{Start: s.nextOffset, End: end, Token: s.token}, true
}

// completeFetch validates a response and advances the cursor. On error
// neither the offset nor the token moves, so a retry repeats req exactly.
func (s *Session) completeFetch(req chunkRequest, c Chunk) error {
	if req.Start != s.nextOffset {
		// The origin consumed req.Token either way; keep the chain intact.
		if c.Token != "" {
			s.token = c.Token
		}
		s.inFlight = false
		return fmt.Errorf("%w: response for %d-%d, cursor at %d", errCursorMoved, req.Start, req.End, s.nextOffset)
	}
	if int64(len(c.Data)) != req.length() {
		return fmt.Errorf("%w: got %d bytes for range %d-%d, want %d", ErrChunkFetchFailed, len(c.Data), req.Start, req.End, req.length())
	}
	if c.Token == "" {
		return fmt.Errorf("%w: missing rotated token", ErrChunkFetchFailed)
	}
	s.nextOffset = req.End + 1
	s.token = c.Token
	s.inFlight = false
	return nil
}

// release clears the in-flight guard after a failure's backoff elapsed.
func (s *Session) release() {
	s.retryTimer = nil
	s.inFlight = false
}

// dispose cancels outstanding requests, stops the timers and drops queued
// appends. It never waits: a sink call still running for this session is
// fenced by the engine, which resets the sink for the next session only
// after that call has returned.
func (s *Session) dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	s.cancel()
	for _, t := range []*time.Timer{s.retryTimer, s.eosTimer} {
		if t != nil {
			t.Stop()
		}
	}
	s.retryTimer = nil
	s.eosTimer = nil
	s.queue = nil
}
