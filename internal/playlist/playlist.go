// Package playlist loads the chapter list of an audiobook from YAML.
//
//	chapters:
//	  - id: ch-01
//	    title: Prologue
//	    order: 1
//	    duration: 312.5
package playlist

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"chapterstream/internal/streaming"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNoChapters is returned for a document without chapters.
	ErrNoChapters = errors.New("playlist has no chapters")

	// ErrDuplicateChapter is returned when two chapters share an id.
	ErrDuplicateChapter = errors.New("duplicate chapter id")
)

type document struct {
	Title    string                 `yaml:"title"`
	Chapters []streaming.ChapterRef `yaml:"chapters"`
}

// Load reads the playlist file at path.
func Load(path string) (*streaming.Playlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open playlist: %w", err)
	}
	defer f.Close()

	p, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a playlist document. Chapters without an explicit order
// keep their position in the document.
func Parse(r io.Reader) (*streaming.Playlist, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoChapters
		}
		return nil, fmt.Errorf("decode playlist: %w", err)
	}
	if len(doc.Chapters) == 0 {
		return nil, ErrNoChapters
	}

	seen := make(map[string]bool, len(doc.Chapters))
	for i := range doc.Chapters {
		ch := &doc.Chapters[i]
		ch.ID = strings.TrimSpace(ch.ID)
		if ch.ID == "" {
			return nil, fmt.Errorf("chapter %d: missing id", i+1)
		}
		if seen[ch.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateChapter, ch.ID)
		}
		seen[ch.ID] = true
		if ch.DeclaredDuration < 0 {
			return nil, fmt.Errorf("chapter %s: negative duration", ch.ID)
		}
		if ch.Order == 0 {
			ch.Order = i + 1
		}
		if ch.Title == "" {
			ch.Title = ch.ID
		}
	}
	return streaming.NewPlaylist(doc.Chapters), nil
}
