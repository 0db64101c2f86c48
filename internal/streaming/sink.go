package streaming

// Sink is the ordered, append-only playback device the engine feeds.
//
// Append and EndOfStream may block while the device drains. The engine never
// issues a second call before the previous one returned, and calls Reset only
// once no Append or EndOfStream is running. All other methods must be quick
// and safe to call from a different goroutine than Append.
type Sink interface {
	// Supports reports whether the sink can decode the given MIME type.
	Supports(contentType string) bool

	// Reset discards everything buffered and prepares for a new stream.
	Reset(f Format) error

	Append(p []byte) error

	// EndOfStream tells the sink no more appends will follow.
	EndOfStream() error

	// Buffered returns the buffered time ranges, ordered and non-overlapping.
	Buffered() []TimeRange

	// Position returns the current playback position in seconds.
	Position() float64

	Seek(seconds float64) error
	Play() error
	Pause()
	Playing() bool
	SetRate(rate float64)
	SetVolume(volume float64)

	// Ended reports natural end of media: end of stream was signalled and
	// playback reached the duration.
	Ended() bool
}
