package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"chapterstream/internal/platform/config"
	"chapterstream/internal/streaming"

	"github.com/spf13/cobra"
)

// settings holds the values shared by all subcommands. Environment variables
// (and .env) provide the defaults; flags override them.
type settings struct {
	port             string
	originURL        string
	playlistFile     string
	bookmarkDB       string
	bookmarkInterval time.Duration
	resume           bool
	chunkSize        int64
	lowWaterMark     time.Duration
	fillInterval     time.Duration
	retryBackoff     time.Duration
	requestTimeout   time.Duration
	contentTypes     []string
	logLevel         string
	logFormat        string
}

var defaultContentTypes = []string{"audio/mpeg", "audio/mp4", "audio/aac", "audio/ogg", "audio/x-m4a"}

func (s *settings) engineConfig() streaming.Config {
	return streaming.Config{
		ChunkSize:    s.chunkSize,
		LowWaterMark: s.lowWaterMark,
		FillInterval: s.fillInterval,
		RetryBackoff: s.retryBackoff,
	}
}

func newRootCmd() *cobra.Command {
	s := &settings{}

	root := &cobra.Command{
		Use:           "chapterstream",
		Short:         "Progressive chapter streaming for audiobooks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.StringVar(&s.originURL, "origin", config.GetEnv("ORIGIN_URL", "http://localhost:9000"), "Base URL of the streaming origin")
	f.Int64Var(&s.chunkSize, "chunk-size", config.GetEnvInt64("CHUNK_SIZE", streaming.DefaultChunkSize), "Bytes per ranged request")
	f.DurationVar(&s.requestTimeout, "request-timeout", config.GetEnvDuration("REQUEST_TIMEOUT", 30*time.Second), "Timeout waiting for origin response headers")
	f.StringSliceVar(&s.contentTypes, "content-types", config.GetEnvList("SUPPORTED_CONTENT_TYPES", defaultContentTypes), "Content types the sink accepts")
	f.StringVar(&s.logLevel, "log-level", config.GetEnv("LOG_LEVEL", "info"), "Log level (debug|info|warn|error)")
	f.StringVar(&s.logFormat, "log-format", config.GetEnv("LOG_FORMAT", "json"), "Log format (json|text)")

	root.AddCommand(newServeCmd(s), newProbeCmd(s))
	return root
}

func main() {
	if err := config.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
