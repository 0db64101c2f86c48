package streaming

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"

	"chapterstream/internal/platform/metrics"

	"github.com/dustin/go-humanize"
)

// ContentTypeChecker is the part of a Sink the negotiator needs.
type ContentTypeChecker interface {
	Supports(contentType string) bool
}

// Negotiator resolves a chapter into a fresh Session. It never retries;
// failures are surfaced to the transition logic.
type Negotiator struct {
	origin  Origin
	checker ContentTypeChecker
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewNegotiator returns a Negotiator. m may be nil.
func NewNegotiator(origin Origin, checker ContentTypeChecker, log *slog.Logger, m *metrics.Metrics) *Negotiator {
	return &Negotiator{origin: origin, checker: checker, log: log, metrics: m}
}

// Negotiate performs one metadata request for ref and returns a session
// positioned at offset 0 holding the initial token.
func (n *Negotiator) Negotiate(ctx context.Context, ref ChapterRef) (*Session, error) {
	md, err := n.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return newSession(ctx, ref, md), nil
}

// Resolve performs the metadata request and validates the result without
// creating a session.
func (n *Negotiator) Resolve(ctx context.Context, ref ChapterRef) (Metadata, error) {
	md, err := n.origin.FetchMetadata(ctx, ref.ID)
	if err != nil {
		n.metrics.ObserveMetadata("unavailable")
		return Metadata{}, fmt.Errorf("chapter %s: %w", ref.ID, err)
	}

	if md.TotalBytes <= 0 {
		n.metrics.ObserveMetadata("unavailable")
		return Metadata{}, fmt.Errorf("chapter %s: %w: file size %d", ref.ID, ErrMetadataUnavailable, md.TotalBytes)
	}
	if md.Duration <= 0 {
		md.Duration = ref.DeclaredDuration
	}
	if md.Duration <= 0 {
		n.metrics.ObserveMetadata("unavailable")
		return Metadata{}, fmt.Errorf("chapter %s: %w: no duration", ref.ID, ErrMetadataUnavailable)
	}

	md.ContentType = canonicalContentType(md.ContentType)
	if md.ContentType == "" || !n.checker.Supports(md.ContentType) {
		n.metrics.ObserveMetadata("unsupported")
		return Metadata{}, fmt.Errorf("chapter %s: %w: %q", ref.ID, ErrUnsupportedContentType, md.ContentType)
	}

	n.metrics.ObserveMetadata("ok")
	n.log.Info("chapter metadata negotiated",
		slog.String("chapter_id", ref.ID),
		slog.String("size", humanize.IBytes(uint64(md.TotalBytes))),
		slog.String("content_type", md.ContentType),
		slog.Float64("duration", md.Duration))
	return md, nil
}

// canonicalContentType strips parameters and lowercases a MIME type.
func canonicalContentType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}
