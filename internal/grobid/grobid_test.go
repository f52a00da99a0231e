package grobid

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bananya-ml/arxiv-feed/internal/apperr"
)

const tei = `<TEI xmlns="http://www.tei-c.org/ns/1.0"><text><body>
<div><head>Introduction</head><p>Hello <ref>[1]</ref> world.</p></div>
</body></text></TEI>`

func TestParseSendsMultipartAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, processEndpoint, r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "1", r.FormValue("consolidateHeader"))
		f, _, err := r.FormFile("input")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "%PDF-1.4 fake", string(data))
		_, _ = w.Write([]byte(tei))
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL + "/"}, nil)
	blocks, err := c.Parse(context.Background(), []byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Introduction", blocks[0].Heading)
	assert.Equal(t, "Hello [1] world.", blocks[0].Text)
}

func TestParseClassifiesStatuses(t *testing.T) {
	cases := []struct {
		status    int
		body      string
		transient bool
	}{
		{http.StatusServiceUnavailable, "", true},
		{http.StatusInternalServerError, "", true},
		{http.StatusTooManyRequests, "", true},
		{http.StatusBadRequest, "", false},
		{http.StatusOK, "<TEI><text>", false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		_, err := New(Config{URL: srv.URL}, nil).Parse(context.Background(), []byte("pdf"))
		srv.Close()
		require.Error(t, err, "status %d", tc.status)
		assert.Equal(t, tc.transient, apperr.IsTransient(err), "status %d", tc.status)
	}
}

func TestParseNoContentIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	blocks, err := New(Config{URL: srv.URL}, nil).Parse(context.Background(), []byte("pdf"))
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestParseUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{URL: url, Timeout: time.Second}, nil).Parse(context.Background(), []byte("pdf"))
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))
}

func TestParseKeepsMinimumGap(t *testing.T) {
	var last atomic.Int64
	var minSeen atomic.Int64
	minSeen.Store(int64(time.Hour))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UnixNano()
		if prev := last.Swap(now); prev != 0 && now-prev < minSeen.Load() {
			minSeen.Store(now - prev)
		}
		_, _ = w.Write([]byte(tei))
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, MinimumGapBetweenRequests: 50 * time.Millisecond}, nil)
	for i := 0; i < 3; i++ {
		_, err := c.Parse(context.Background(), []byte("pdf"))
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Duration(minSeen.Load()), 40*time.Millisecond)
}

func TestParseSpacesConcurrentRequests(t *testing.T) {
	var mu sync.Mutex
	var arrivals []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
		_, _ = w.Write([]byte(tei))
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, MinimumGapBetweenRequests: 100 * time.Millisecond}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Parse(context.Background(), []byte("pdf"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, arrivals, 3)
	sort.Slice(arrivals, func(i, j int) bool { return arrivals[i].Before(arrivals[j]) })
	for i := 1; i < len(arrivals); i++ {
		assert.GreaterOrEqual(t, arrivals[i].Sub(arrivals[i-1]), 60*time.Millisecond, "gap %d", i)
	}
}

func TestParseGapWaitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tei))
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, MinimumGapBetweenRequests: time.Hour}, nil)
	_, err := c.Parse(context.Background(), []byte("pdf"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Parse(ctx, []byte("pdf"))
	require.Error(t, err)
	assert.False(t, apperr.IsTransient(err))
}

func TestAliveAndMonitor(t *testing.T) {
	var up atomic.Bool
	up.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, healthEndpoint, r.URL.Path)
		if up.Load() {
			_, _ = w.Write([]byte("true"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL}, nil)
	assert.True(t, c.Alive(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.MonitorHealth(ctx, 10*time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, c.Healthy, time.Second, 5*time.Millisecond)

	up.Store(false)
	assert.Eventually(t, func() bool { return !c.Healthy() }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
