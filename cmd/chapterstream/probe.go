package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"chapterstream/internal/platform/logger"
	"chapterstream/internal/playback"
	"chapterstream/internal/streaming"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newProbeCmd(s *settings) *cobra.Command {
	var fetch bool

	cmd := &cobra.Command{
		Use:   "probe <chapter-id>",
		Short: "Negotiate a chapter's metadata and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), s.requestTimeout)
			defer cancel()
			return runProbe(ctx, s, args[0], fetch, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&fetch, "fetch", false, "Also fetch the first chunk with the negotiated token")
	return cmd
}

func runProbe(ctx context.Context, s *settings, chapterID string, fetch bool, out, logOut io.Writer) error {
	log := logger.NewWithWriter(logOut, s.logLevel, "text")

	origin, err := streaming.NewHTTPOrigin(s.originURL, s.requestTimeout, log)
	if err != nil {
		return err
	}
	sink := playback.NewClockSink(s.contentTypes, log)
	md, err := streaming.NewNegotiator(origin, sink, log, nil).Resolve(ctx, streaming.ChapterRef{ID: chapterID})
	if err != nil {
		return err
	}

	chunkSize := s.chunkSize
	if chunkSize <= 0 {
		chunkSize = streaming.DefaultChunkSize
	}
	chunks := (md.TotalBytes + chunkSize - 1) / chunkSize

	fmt.Fprintf(out, "chapter:      %s\n", chapterID)
	fmt.Fprintf(out, "content type: %s\n", md.ContentType)
	fmt.Fprintf(out, "size:         %s (%d bytes)\n", humanize.IBytes(uint64(md.TotalBytes)), md.TotalBytes)
	fmt.Fprintf(out, "duration:     %s\n", time.Duration(md.Duration*float64(time.Second)).Round(time.Millisecond))
	fmt.Fprintf(out, "chunks:       %d of %s\n", chunks, humanize.IBytes(uint64(chunkSize)))

	if !fetch {
		return nil
	}
	end := min(chunkSize, md.TotalBytes) - 1
	start := time.Now()
	c, err := origin.FetchRange(ctx, chapterID, 0, end, md.Token)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "first chunk:  %s in %s, next token issued: %t\n",
		humanize.IBytes(uint64(len(c.Data))), time.Since(start).Round(time.Millisecond), c.Token != "")
	return nil
}
