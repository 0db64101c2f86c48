// Package control exposes the player over a small JSON HTTP API.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"chapterstream/internal/bookmark"
	"chapterstream/internal/streaming"

	"github.com/go-chi/chi/v5"
)

// loadTimeout bounds how long a request waits for chapter negotiation.
const loadTimeout = 30 * time.Second

// Player is the part of streaming.Engine the API drives.
type Player interface {
	Snapshot() streaming.Snapshot
	Playlist() *streaming.Playlist
	Select(ctx context.Context, index int) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Play() error
	Pause() error
	Seek(seconds float64) error
	SetRate(rate float64) error
	SetVolume(volume float64) error
}

// Handler serves the control endpoints using go-chi.
type Handler struct {
	player    Player
	bookmarks bookmark.Store
	log       *slog.Logger
}

// NewHandler returns a Handler. bookmarks may be nil, in which case
// GET /bookmarks returns an empty list.
func NewHandler(player Player, bookmarks bookmark.Store, log *slog.Logger) *Handler {
	return &Handler{player: player, bookmarks: bookmarks, log: log}
}

// Routes registers the control endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/state", h.GetState)
	r.Get("/chapters", h.ListChapters)
	r.Post("/chapters/{index}/load", h.LoadChapter)
	r.Post("/play", h.Play)
	r.Post("/pause", h.Pause)
	r.Post("/next", h.Next)
	r.Post("/previous", h.Previous)
	r.Post("/seek", h.Seek)
	r.Post("/rate", h.SetRate)
	r.Post("/volume", h.SetVolume)
	r.Get("/bookmarks", h.ListBookmarks)
}

// GetState handles GET /state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.player.Snapshot())
}

// ListChapters handles GET /chapters.
func (h *Handler) ListChapters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.player.Playlist().Chapters())
}

// LoadChapter handles POST /chapters/{index}/load.
func (h *Handler) LoadChapter(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), loadTimeout)
	defer cancel()
	if err := h.player.Select(ctx, index); err != nil {
		h.fail(w, "load chapter", err)
		return
	}
	h.log.Info("chapter loaded", slog.Int("index", index))
	writeJSON(w, http.StatusOK, h.player.Snapshot())
}

// Play handles POST /play.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	h.do(w, "play", h.player.Play)
}

// Pause handles POST /pause.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	h.do(w, "pause", h.player.Pause)
}

// Next handles POST /next.
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), loadTimeout)
	defer cancel()
	h.do(w, "next", func() error { return h.player.Next(ctx) })
}

// Previous handles POST /previous.
func (h *Handler) Previous(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), loadTimeout)
	defer cancel()
	h.do(w, "previous", func() error { return h.player.Previous(ctx) })
}

// Seek handles POST /seek. Body: { "seconds": 600 }.
func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Seconds *float64 `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Seconds == nil {
		h.log.Debug("invalid seek body")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.do(w, "seek", func() error { return h.player.Seek(*body.Seconds) })
}

// SetRate handles POST /rate. Body: { "rate": 1.25 }.
func (h *Handler) SetRate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rate *float64 `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Rate == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.do(w, "rate", func() error { return h.player.SetRate(*body.Rate) })
}

// SetVolume handles POST /volume. Body: { "volume": 0.5 }.
func (h *Handler) SetVolume(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Volume *float64 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Volume == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.do(w, "volume", func() error { return h.player.SetVolume(*body.Volume) })
}

// ListBookmarks handles GET /bookmarks.
func (h *Handler) ListBookmarks(w http.ResponseWriter, r *http.Request) {
	if h.bookmarks == nil {
		writeJSON(w, http.StatusOK, []bookmark.Bookmark{})
		return
	}
	list, err := h.bookmarks.List(r.Context())
	if err != nil {
		h.fail(w, "list bookmarks", err)
		return
	}
	if list == nil {
		list = []bookmark.Bookmark{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) do(w http.ResponseWriter, action string, fn func() error) {
	if err := fn(); err != nil {
		h.fail(w, action, err)
		return
	}
	writeJSON(w, http.StatusOK, h.player.Snapshot())
}

func (h *Handler) fail(w http.ResponseWriter, action string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(action+" failed", slog.String("error", err.Error()))
	} else {
		h.log.Info(action+" rejected", slog.Int("status", status), slog.String("error", err.Error()))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, streaming.ErrNotReady),
		errors.Is(err, streaming.ErrNoSession),
		errors.Is(err, streaming.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, streaming.ErrMetadataUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, streaming.ErrUnsupportedContentType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, streaming.ErrChapterNotFound),
		errors.Is(err, streaming.ErrEmptyPlaylist):
		return http.StatusNotFound
	case errors.Is(err, streaming.ErrInvalidRate),
		errors.Is(err, streaming.ErrInvalidPosition),
		errors.Is(err, streaming.ErrInvalidVolume):
		return http.StatusBadRequest
	case errors.Is(err, streaming.ErrEngineClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes before writing the header so an unencodable value is
// reported as a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encoding response failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}
