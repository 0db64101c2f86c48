package streaming

import "sort"

// Playlist is the ordered, immutable list of chapters an Engine navigates.
// Navigation past either end wraps around.
type Playlist struct {
	chapters []ChapterRef
}

// NewPlaylist copies chapters and orders them by Order, keeping the given
// order for equal values.
func NewPlaylist(chapters []ChapterRef) *Playlist {
	cp := make([]ChapterRef, len(chapters))
	copy(cp, chapters)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Order < cp[j].Order })
	return &Playlist{chapters: cp}
}

// Len returns the number of chapters.
func (p *Playlist) Len() int {
	if p == nil {
		return 0
	}
	return len(p.chapters)
}

// At returns the chapter at index i.
func (p *Playlist) At(i int) (ChapterRef, bool) {
	if i < 0 || i >= p.Len() {
		return ChapterRef{}, false
	}
	return p.chapters[i], true
}

// IndexOf returns the index of the chapter with the given id, or -1.
func (p *Playlist) IndexOf(id string) int {
	for i := 0; i < p.Len(); i++ {
		if p.chapters[i].ID == id {
			return i
		}
	}
	return -1
}

// Chapters returns a copy of the chapter list.
func (p *Playlist) Chapters() []ChapterRef {
	out := make([]ChapterRef, p.Len())
	if p != nil {
		copy(out, p.chapters)
	}
	return out
}

// Next returns the index after i, wrapping from the last chapter to the first.
func (p *Playlist) Next(i int) int {
	n := p.Len()
	if n == 0 {
		return -1
	}
	if i < 0 || i >= n-1 {
		return 0
	}
	return i + 1
}

// Previous returns the index before i, wrapping from the first chapter to the last.
func (p *Playlist) Previous(i int) int {
	n := p.Len()
	if n == 0 {
		return -1
	}
	if i <= 0 || i >= n {
		return n - 1
	}
	return i - 1
}
