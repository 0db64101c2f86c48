package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPlaylist_ordersStably(t *testing.T) {
	p := NewPlaylist([]ChapterRef{
		{ID: "c", Order: 3},
		{ID: "a1", Order: 1},
		{ID: "b", Order: 2},
		{ID: "a2", Order: 1},
	})

	var ids []string
	for _, c := range p.Chapters() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"a1", "a2", "b", "c"}, ids)
	assert.Equal(t, 2, p.IndexOf("b"))
	assert.Equal(t, -1, p.IndexOf("zzz"))
}

func TestPlaylist_navigationWraps(t *testing.T) {
	p := NewPlaylist([]ChapterRef{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	assert.Equal(t, 1, p.Next(0))
	assert.Equal(t, 0, p.Next(2))
	assert.Equal(t, 0, p.Next(-1))
	assert.Equal(t, 2, p.Previous(0))
	assert.Equal(t, 1, p.Previous(2))

	_, ok := p.At(3)
	assert.False(t, ok)
	c, ok := p.At(1)
	assert.True(t, ok)
	assert.Equal(t, "b", c.ID)
}

func TestPlaylist_empty(t *testing.T) {
	var nilList *Playlist
	assert.Equal(t, 0, nilList.Len())
	assert.Empty(t, nilList.Chapters())

	p := NewPlaylist(nil)
	assert.Equal(t, -1, p.Next(0))
	assert.Equal(t, -1, p.Previous(0))
	_, ok := p.At(0)
	assert.False(t, ok)
}
