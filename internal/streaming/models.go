package streaming

import "time"

// ChapterRef identifies one chapter of the playlist. It is owned by the
// Playlist and never mutated by the engine.
type ChapterRef struct {
	ID               string  `json:"id" yaml:"id"`
	Title            string  `json:"title" yaml:"title"`
	Order            int     `json:"order" yaml:"order"`
	DeclaredDuration float64 `json:"duration" yaml:"duration"`
}

// TimeRange is a span of playback time, in seconds, for which audio is buffered.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Metadata is the result of a metadata request for a chapter.
type Metadata struct {
	TotalBytes  int64
	ContentType string
	Duration    float64
	Token       string
}

// Chunk is the body of one ranged response plus the rotated token.
type Chunk struct {
	Data  []byte
	Token string
}

// Format describes the stream handed to a Sink on Reset.
type Format struct {
	ContentType string
	Duration    float64
	TotalBytes  int64
}

// State is the chapter transition state of an Engine.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateBuffering
	StateReady
	StatePlaying
	StatePaused
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateBuffering:
		return "buffering"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// MarshalText lets State render as its name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a point-in-time view of the engine for callers.
type Snapshot struct {
	State           State       `json:"state"`
	ChapterIndex    int         `json:"chapter_index"`
	Chapter         *ChapterRef `json:"chapter,omitempty"`
	SessionID       string      `json:"session_id,omitempty"`
	IsPlaying       bool        `json:"is_playing"`
	CanPlay         bool        `json:"can_play"`
	CurrentTime     float64     `json:"current_time"`
	Duration        float64     `json:"duration"`
	ProgressPercent float64     `json:"progress_percent"`
	BufferedAhead   float64     `json:"buffered_ahead"`
	Buffered        []TimeRange `json:"buffered,omitempty"`
	AppendedBytes   int64       `json:"appended_bytes"`
	TotalBytes      int64       `json:"total_bytes"`
	Rate            float64     `json:"rate"`
	Volume          float64     `json:"volume"`
	LastError       string      `json:"last_error,omitempty"`
	TakenAt         time.Time   `json:"taken_at"`
}
