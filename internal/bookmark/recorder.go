package bookmark

import (
	"context"
	"log/slog"
	"time"

	"chapterstream/internal/streaming"
)

// Source is the part of the engine a Recorder reads.
type Source interface {
	Snapshot() streaming.Snapshot
}

// Recorder periodically saves the engine's position as a bookmark.
type Recorder struct {
	store    Store
	src      Source
	interval time.Duration
	log      *slog.Logger

	last Bookmark
}

// NewRecorder returns a Recorder saving every interval.
func NewRecorder(store Store, src Source, interval time.Duration, log *slog.Logger) *Recorder {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Recorder{store: store, src: src, interval: interval, log: log}
}

// Run records until ctx is done, then records one last time.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if _, err := r.Record(final); err != nil {
				r.log.Warn("final bookmark not saved", slog.String("error", err.Error()))
			}
			cancel()
			return
		case <-ticker.C:
			if _, err := r.Record(ctx); err != nil {
				r.log.Warn("bookmark not saved", slog.String("error", err.Error()))
			}
		}
	}
}

// Record saves the current position. It reports false when there was
// nothing new to save.
func (r *Recorder) Record(ctx context.Context) (bool, error) {
	snap := r.src.Snapshot()
	if snap.Chapter == nil || snap.SessionID == "" {
		return false, nil
	}

	b := Bookmark{
		ChapterID:    snap.Chapter.ID,
		ChapterIndex: snap.ChapterIndex,
		Position:     snap.CurrentTime,
		Duration:     snap.Duration,
		UpdatedAt:    snap.TakenAt.UTC(),
	}
	if b.ChapterID == r.last.ChapterID && b.Position == r.last.Position {
		return false, nil
	}
	if err := r.store.Save(ctx, b); err != nil {
		return false, err
	}
	r.last = b
	r.log.Debug("bookmark saved",
		slog.String("chapter_id", b.ChapterID),
		slog.Float64("position", b.Position))
	return true, nil
}
