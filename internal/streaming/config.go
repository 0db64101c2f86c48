package streaming

import "time"

const (
	DefaultChunkSize        int64 = 1 << 20
	DefaultLowWaterMark           = 30 * time.Second
	DefaultFillInterval           = 5 * time.Second
	DefaultRetryBackoff           = 5 * time.Second
	DefaultProgressInterval       = 250 * time.Millisecond
)

// Config tunes an Engine. Zero fields take the defaults above.
type Config struct {
	// ChunkSize is the number of bytes requested per ranged fetch.
	ChunkSize int64
	// LowWaterMark is the buffered-ahead time under which the fill policy
	// fetches the next chunk.
	LowWaterMark time.Duration
	// FillInterval is the period of the buffer-fill check.
	FillInterval time.Duration
	// RetryBackoff is how long a failed fetch holds the in-flight guard.
	RetryBackoff time.Duration
	// ProgressInterval is how often the sink is polled for end of media.
	ProgressInterval time.Duration
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.LowWaterMark <= 0 {
		c.LowWaterMark = DefaultLowWaterMark
	}
	if c.FillInterval <= 0 {
		c.FillInterval = DefaultFillInterval
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = DefaultProgressInterval
	}
	return c
}
