package streaming

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"chapterstream/internal/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenServer serves /stream/chapter/{id} with rotating single-use tokens.
type tokenServer struct {
	mu     sync.Mutex
	data   []byte
	ctype  string
	token  string
	seq    int
	status int
}

func (s *tokenServer) next() string {
	s.seq++
	s.token = "tok-" + strconv.Itoa(s.seq)
	return s.token
}

func (s *tokenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !strings.HasPrefix(r.URL.Path, "/stream/chapter/") {
		http.NotFound(w, r)
		return
	}
	if s.status != 0 {
		w.WriteHeader(s.status)
		return
	}

	rng := r.Header.Get("Range")
	if rng == "" {
		w.Header().Set(TokenHeader, s.next())
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"file_size":%d,"content_type":%q,"duration":12.5}`, len(s.data), s.ctype)
		return
	}

	if r.Header.Get(TokenHeader) != s.token {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	var start, end int
	if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.Header().Set(TokenHeader, s.next())
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(s.data)))
	w.WriteHeader(http.StatusPartialContent)
	w.Write(s.data[start : end+1])
}

func (s *tokenServer) fail(status int) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func newTokenServer(t *testing.T, size int) (*tokenServer, *HTTPOrigin) {
	t.Helper()
	ts := &tokenServer{data: []byte(strings.Repeat("x", size)), ctype: "audio/mpeg"}
	srv := httptest.NewServer(ts)
	t.Cleanup(srv.Close)
	o, err := NewHTTPOrigin(srv.URL, time.Second, logger.Discard())
	require.NoError(t, err)
	return ts, o
}

func TestNewHTTPOrigin_invalidURL(t *testing.T) {
	_, err := NewHTTPOrigin("not a url", time.Second, logger.Discard())
	assert.Error(t, err)
	_, err = NewHTTPOrigin("/relative", time.Second, logger.Discard())
	assert.Error(t, err)
}

func TestHTTPOrigin_metadataAndRanges(t *testing.T) {
	_, o := newTokenServer(t, 250)
	ctx := context.Background()

	md, err := o.FetchMetadata(ctx, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, Metadata{TotalBytes: 250, ContentType: "audio/mpeg", Duration: 12.5, Token: "tok-1"}, md)

	c, err := o.FetchRange(ctx, "ch-1", 0, 99, md.Token)
	require.NoError(t, err)
	assert.Len(t, c.Data, 100)
	assert.Equal(t, "tok-2", c.Token)

	_, err = o.FetchRange(ctx, "ch-1", 100, 199, md.Token)
	assert.ErrorIs(t, err, ErrChunkFetchFailed)
	assert.True(t, IsRejected(err), "replayed token is refused permanently")

	c, err = o.FetchRange(ctx, "ch-1", 100, 199, "tok-2")
	require.NoError(t, err)
	assert.Equal(t, "tok-3", c.Token)
}

func TestHTTPOrigin_errors(t *testing.T) {
	ts, o := newTokenServer(t, 100)
	ctx := context.Background()

	ts.fail(http.StatusServiceUnavailable)
	_, err := o.FetchMetadata(ctx, "ch-1")
	assert.ErrorIs(t, err, ErrMetadataUnavailable)

	_, err = o.FetchRange(ctx, "ch-1", 0, 9, "tok")
	assert.ErrorIs(t, err, ErrChunkFetchFailed)
	assert.False(t, IsRejected(err), "server errors are retried")

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)

	ts.fail(http.StatusGone)
	_, err = o.FetchRange(ctx, "ch-1", 0, 9, "tok")
	assert.True(t, IsRejected(err))

	_, err = o.FetchRange(ctx, "ch-1", 10, 5, "tok")
	assert.ErrorIs(t, err, ErrChunkFetchFailed)
}

func TestHTTPOrigin_rangeIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(TokenHeader, "next")
		w.Write([]byte(strings.Repeat("y", 500)))
	}))
	defer srv.Close()
	o, err := NewHTTPOrigin(srv.URL, time.Second, logger.Discard())
	require.NoError(t, err)

	_, err = o.FetchRange(context.Background(), "x", 0, 99, "tok")
	assert.ErrorIs(t, err, ErrChunkFetchFailed)
	assert.True(t, IsRejected(err), "a full-file answer consumed the token")

	c, err := o.FetchRange(context.Background(), "x", 0, 499, "tok")
	require.NoError(t, err, "a 200 whose body matches the range is accepted")
	assert.Len(t, c.Data, 500)
}

func TestHTTPOrigin_missingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"file_size":10,"content_type":"audio/mpeg","duration":1}`))
	}))
	defer srv.Close()
	o, err := NewHTTPOrigin(srv.URL+"/base/", time.Second, logger.Discard())
	require.NoError(t, err)

	_, err = o.FetchMetadata(context.Background(), "x")
	assert.ErrorIs(t, err, ErrMetadataUnavailable)
	assert.Equal(t, srv.URL+"/base/stream/chapter/a%20b", o.chapterURL("a b"))
}

func TestEngine_overHTTP(t *testing.T) {
	ts, o := newTokenServer(t, 1000)
	sink := newFakeSink()
	cfg := fastConfig()
	cfg.ChunkSize = 300
	e := newTestEngine(t, o, sink, cfg, chapter("ch-1", 1))

	require.NoError(t, e.Select(context.Background(), 0))
	waitFor(t, func() bool { n, _ := sink.eosState(); return n == 1 }, "chapter never completed")
	assert.Equal(t, ts.data, sink.bytes())
}
