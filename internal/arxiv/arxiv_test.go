package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bananya-ml/arxiv-feed/internal/apperr"
)

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <entry>
    <id>http://arxiv.org/abs/2405.00002v1</id>
    <published>2024-05-02T17:59:59Z</published>
    <title>Newest Paper
 on Spots</title>
    <summary>  First line.
Second line.
</summary>
    <author><name>Ada One</name></author>
    <author><name>Bo Two</name></author>
    <arxiv:primary_category term="astro-ph.SR" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2405.00001v1</id>
    <published>2024-05-01T10:00:00Z</published>
    <title>Older Paper</title>
    <summary>Abstract.</summary>
    <author><name>Cy Three</name></author>
    <arxiv:primary_category term="astro-ph.EP"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2405.00000v1</id>
    <title>Missing fields</title>
  </entry>
</feed>`

func TestFetchParsesFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "cat:astro-ph.SR", q.Get("search_query"))
		assert.Equal(t, "3", q.Get("max_results"))
		assert.Equal(t, "submittedDate", q.Get("sortBy"))
		assert.Equal(t, "descending", q.Get("sortOrder"))
		_, _ = w.Write([]byte(atomFeed))
	}))
	defer srv.Close()

	papers, err := New(srv.URL, 0, nil).Fetch(context.Background(), 3, "astro-ph.SR")
	require.NoError(t, err)
	require.Len(t, papers, 2)

	p := papers[0]
	assert.Equal(t, "Newest Paper  on Spots", p.Title)
	assert.Equal(t, "First line. Second line.", p.Abstract)
	assert.Equal(t, []string{"Ada One", "Bo Two"}, p.Authors)
	assert.Equal(t, "http://arxiv.org/abs/2405.00002v1", p.Link)
	assert.Equal(t, "2024-05-02T17:59:59Z", p.Published)
	assert.Equal(t, "astro-ph.SR", p.PrimaryCategory)
	assert.Equal(t, "Older Paper", papers[1].Title)
}

func TestFetchEmptyFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
	}))
	defer srv.Close()

	papers, err := New(srv.URL, 0, nil).Fetch(context.Background(), 5, "nope")
	require.NoError(t, err)
	assert.Empty(t, papers)
}

func TestFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	_, err := New(srv.URL, 0, nil).Fetch(context.Background(), 5, "astro-ph.SR")
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<feed"))
	}))
	defer bad.Close()
	_, err = New(bad.URL, 0, nil).Fetch(context.Background(), 5, "astro-ph.SR")
	require.Error(t, err)
	assert.False(t, apperr.IsTransient(err))
}

func TestPDFURL(t *testing.T) {
	assert.Equal(t, "https://arxiv.org/pdf/2405.00001v1.pdf", PDFURL("", "http://arxiv.org/abs/2405.00001v1"))
	assert.Equal(t, "http://mirror/pdf/2405.00001v1.pdf", PDFURL("http://mirror/pdf/", "2405.00001v1"))
}
