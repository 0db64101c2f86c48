package streaming

import "errors"

var (
	// ErrMetadataUnavailable is returned when the metadata request fails
	// (network error, non-2xx status, malformed body or missing token).
	ErrMetadataUnavailable = errors.New("chapter metadata unavailable")

	// ErrUnsupportedContentType is returned when negotiation succeeded but the
	// sink cannot consume the chapter's content type.
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrChunkFetchFailed wraps every failed ranged request. Unless it also
	// matches ErrChunkRejected it is transient and retried after a backoff.
	ErrChunkFetchFailed = errors.New("chunk fetch failed")

	// ErrChunkRejected marks a chunk failure that retrying the same request
	// cannot fix: the origin refused the token or the range.
	ErrChunkRejected = errors.New("chunk request rejected by origin")

	// ErrInvalidAppendOrder is returned when an append does not start at the
	// expected next offset.
	ErrInvalidAppendOrder = errors.New("append offset out of order")

	// ErrSinkPlayback is returned when the sink refuses to play or seek.
	ErrSinkPlayback = errors.New("sink playback error")

	ErrNoSession       = errors.New("no active chapter session")
	ErrNotReady        = errors.New("chapter is not ready to play")
	ErrEmptyPlaylist   = errors.New("playlist is empty")
	ErrChapterNotFound = errors.New("chapter not found")
	ErrInvalidRate     = errors.New("playback rate must be a positive number")
	ErrInvalidPosition = errors.New("seek target is not a number")
	ErrInvalidVolume   = errors.New("volume is not a number")

	// ErrSuperseded is returned to a load whose transition was overtaken by a
	// newer one before negotiation finished.
	ErrSuperseded = errors.New("chapter load superseded")

	ErrEngineClosed = errors.New("engine closed")
)
