package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenHeader carries the streaming token on requests and responses.
const TokenHeader = "X-Streaming-Token"

// Origin is the remote side of the streaming protocol.
type Origin interface {
	// FetchMetadata returns size, type, duration and the initial token.
	FetchMetadata(ctx context.Context, chapterID string) (Metadata, error)

	// FetchRange returns bytes [start, end] (inclusive) and the next token.
	FetchRange(ctx context.Context, chapterID string, start, end int64, token string) (Chunk, error)
}

// StatusError is an unexpected HTTP status from the origin.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("received status code %d from %s", e.Code, e.URL)
}

// HTTPOrigin talks to the origin's /stream/chapter/{id} endpoint.
type HTTPOrigin struct {
	baseURL    *url.URL
	httpClient *http.Client
	log        *slog.Logger
}

type metadataBody struct {
	FileSize    int64   `json:"file_size"`
	ContentType string  `json:"content_type"`
	Duration    float64 `json:"duration"`
}

// NewHTTPOrigin creates an origin client rooted at baseURL. timeout bounds
// the wait for response headers of each request.
func NewHTTPOrigin(baseURL string, timeout time.Duration, log *slog.Logger) (*HTTPOrigin, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse origin URL '%s': %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin URL '%s' must be absolute", baseURL)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: timeout,
		MaxIdleConnsPerHost:   2,
	}

	return &HTTPOrigin{
		baseURL:    u,
		httpClient: &http.Client{Transport: transport},
		log:        log,
	}, nil
}

func (o *HTTPOrigin) chapterURL(chapterID string) string {
	u := *o.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/stream/chapter/" + chapterID
	u.RawPath = ""
	return u.String()
}

// FetchMetadata implements Origin.FetchMetadata.
func (o *HTTPOrigin) FetchMetadata(ctx context.Context, chapterID string) (Metadata, error) {
	target := o.chapterURL(chapterID)
	o.log.Debug("fetching chapter metadata", slog.String("url", target))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: failed to create request: %v", ErrMetadataUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %w", ErrMetadataUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Metadata{}, fmt.Errorf("%w: %w", ErrMetadataUnavailable, &StatusError{Code: resp.StatusCode, URL: target})
	}

	var body metadataBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Metadata{}, fmt.Errorf("%w: failed to decode metadata: %v", ErrMetadataUnavailable, err)
	}

	token := resp.Header.Get(TokenHeader)
	if token == "" {
		return Metadata{}, fmt.Errorf("%w: response carried no %s header", ErrMetadataUnavailable, TokenHeader)
	}

	return Metadata{
		TotalBytes:  body.FileSize,
		ContentType: body.ContentType,
		Duration:    body.Duration,
		Token:       token,
	}, nil
}

// FetchRange implements Origin.FetchRange.
func (o *HTTPOrigin) FetchRange(ctx context.Context, chapterID string, start, end int64, token string) (Chunk, error) {
	if start < 0 || end < start {
		return Chunk{}, fmt.Errorf("%w: invalid range %d-%d", ErrChunkFetchFailed, start, end)
	}
	target := o.chapterURL(chapterID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: failed to create request: %v", ErrChunkFetchFailed, err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	req.Header.Set(TokenHeader, token)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: %w", ErrChunkFetchFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent, http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusGone,
		http.StatusRequestedRangeNotSatisfiable:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Chunk{}, fmt.Errorf("%w: %w: %w", ErrChunkFetchFailed, ErrChunkRejected, &StatusError{Code: resp.StatusCode, URL: target})
	default:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Chunk{}, fmt.Errorf("%w: %w", ErrChunkFetchFailed, &StatusError{Code: resp.StatusCode, URL: target})
	}

	if cr := resp.Header.Get("Content-Range"); cr != "" {
		var gotStart, gotEnd int64
		if _, err := fmt.Sscanf(cr, "bytes %d-%d/", &gotStart, &gotEnd); err != nil || gotStart != start || gotEnd != end {
			return Chunk{}, fmt.Errorf("%w: content range %q does not match %d-%d", ErrChunkFetchFailed, cr, start, end)
		}
	}

	want := end - start + 1
	data, err := io.ReadAll(io.LimitReader(resp.Body, want+1))
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: failed to read body: %w", ErrChunkFetchFailed, err)
	}
	if resp.StatusCode == http.StatusOK && int64(len(data)) > want {
		// The origin ignored Range and spent the token on the whole file.
		return Chunk{}, fmt.Errorf("%w: %w: range %d-%d answered with the full file", ErrChunkFetchFailed, ErrChunkRejected, start, end)
	}

	next := resp.Header.Get(TokenHeader)
	if next == "" {
		return Chunk{}, fmt.Errorf("%w: response carried no %s header", ErrChunkFetchFailed, TokenHeader)
	}

	return Chunk{Data: data, Token: next}, nil
}

// IsRejected reports whether err is a chunk failure that must not be retried.
func IsRejected(err error) bool {
	return errors.Is(err, ErrChunkRejected)
}
