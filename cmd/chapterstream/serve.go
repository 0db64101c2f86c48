package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chapterstream/internal/bookmark"
	"chapterstream/internal/control"
	"chapterstream/internal/platform/config"
	"chapterstream/internal/platform/logger"
	"chapterstream/internal/platform/metrics"
	"chapterstream/internal/playback"
	"chapterstream/internal/playlist"
	"chapterstream/internal/streaming"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
	resumeTimeout   = 30 * time.Second
)

func newServeCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the streaming daemon and its control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(s)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&s.port, "port", "p", config.GetEnv("PORT", "8080"), "Control API port")
	f.StringVar(&s.playlistFile, "playlist", config.GetEnv("PLAYLIST_FILE", "playlist.yaml"), "Playlist YAML file")
	f.StringVar(&s.bookmarkDB, "bookmark-db", config.GetEnv("BOOKMARK_DB", ""), "SQLite bookmark database (empty keeps bookmarks in memory)")
	f.DurationVar(&s.bookmarkInterval, "bookmark-interval", config.GetEnvDuration("BOOKMARK_INTERVAL", 10*time.Second), "How often the position is bookmarked")
	f.BoolVar(&s.resume, "resume", true, "Load the most recent bookmark on startup")
	f.DurationVar(&s.lowWaterMark, "low-water-mark", config.GetEnvDuration("LOW_WATER_MARK", streaming.DefaultLowWaterMark), "Buffered time under which the next chunk is fetched")
	f.DurationVar(&s.fillInterval, "fill-interval", config.GetEnvDuration("FILL_INTERVAL", streaming.DefaultFillInterval), "Period of the buffer fill check")
	f.DurationVar(&s.retryBackoff, "retry-backoff", config.GetEnvDuration("RETRY_BACKOFF", streaming.DefaultRetryBackoff), "Wait before retrying a failed chunk")
	return cmd
}

func runServe(s *settings) error {
	log := logger.New(s.logLevel, s.logFormat)

	pl, err := playlist.Load(s.playlistFile)
	if err != nil {
		return err
	}
	origin, err := streaming.NewHTTPOrigin(s.originURL, s.requestTimeout, log)
	if err != nil {
		return err
	}
	store, err := openBookmarks(s.bookmarkDB)
	if err != nil {
		return err
	}
	defer store.Close()

	met := metrics.New()
	sink := playback.NewClockSink(s.contentTypes, log)
	engine := streaming.New(origin, sink, pl, s.engineConfig(), log, met)
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if s.resume {
		resume(ctx, engine, store, log)
	}

	recorder := bookmark.NewRecorder(store, engine, s.bookmarkInterval, log)
	recorded := make(chan struct{})
	go func() {
		recorder.Run(ctx)
		close(recorded)
	}()

	h := control.NewHandler(engine, store, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			snap := engine.Snapshot()
			met.SetCanPlay(snap.CanPlay)
			met.SetBufferedAhead(snap.BufferedAhead)
		}).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + s.port
	srv := &http.Server{Addr: addr, Handler: r}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	log.Info("server starting",
		slog.String("port", s.port),
		slog.String("origin", s.originURL),
		slog.Int("chapters", pl.Len()),
		slog.Int64("chunk_size", s.chunkSize),
		slog.Duration("low_water_mark", s.lowWaterMark),
		slog.String("log_level", s.logLevel))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info("shutdown signal received, draining connections")
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}
	cancel()
	<-recorded

	log.Info("server stopped")
	return nil
}

func openBookmarks(path string) (bookmark.Store, error) {
	if path == "" {
		return bookmark.NewInMemoryStore(), nil
	}
	return bookmark.OpenSQLite(path)
}

// resume loads the chapter of the most recent bookmark and seeks to its
// position. Failures are logged; the daemon starts idle instead.
func resume(ctx context.Context, engine *streaming.Engine, store bookmark.Store, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, resumeTimeout)
	defer cancel()

	b, ok, err := store.Latest(ctx)
	if err != nil {
		log.Warn("reading bookmarks failed", slog.String("error", err.Error()))
		return
	}
	if !ok {
		return
	}
	index := engine.Playlist().IndexOf(b.ChapterID)
	if index < 0 {
		log.Info("bookmarked chapter no longer in playlist", slog.String("chapter_id", b.ChapterID))
		return
	}
	if err := engine.Select(ctx, index); err != nil {
		log.Warn("resume failed", slog.String("chapter_id", b.ChapterID), slog.String("error", err.Error()))
		return
	}
	if err := engine.Seek(b.Position); err != nil {
		log.Warn("resume seek failed", slog.String("error", err.Error()))
		return
	}
	log.Info("resumed from bookmark",
		slog.String("chapter_id", b.ChapterID),
		slog.Float64("position", b.Position))
}
