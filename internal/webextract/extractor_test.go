package webextract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/campus-knowledge/internal/fetch"
)

func extract(t *testing.T, doc string, opts Options) *Page {
	t.Helper()
	page, err := ExtractHTML(strings.NewReader(doc), opts)
	require.NoError(t, err)
	return page
}

func TestExtractPrefersMainOverNoise(t *testing.T) {
	doc := `<html><head><title> Library   Hours </title><script>var x = "tracking";</script></head>
<body>
<nav>Home | About | Contact</nav>
<main>
  <h1>Opening hours</h1>
  <p>The central library is open from 8am to 10pm on weekdays and 10am to 6pm on weekends.</p>
  <script>alert("no")</script>
</main>
<footer>Copyright</footer>
</body></html>`

	page := extract(t, doc, DefaultOptions())
	assert.Equal(t, "Library Hours", page.Title)
	assert.Contains(t, page.Text, "# Opening hours")
	assert.Contains(t, page.Text, "The central library is open")
	assert.NotContains(t, page.Text, "Home | About")
	assert.NotContains(t, page.Text, "alert")
	assert.NotContains(t, page.Text, "Copyright")
}

func TestExtractCandidateOrder(t *testing.T) {
	long := strings.Repeat("Enrollment requires a valid student identifier. ", 3)

	tests := []struct {
		name    string
		body    string
		want    string
		notWant string
	}{
		{
			name:    "role main",
			body:    `<div>Sidebar chatter that is long enough to pass the threshold easily.</div><div role="main"><p>` + long + `</p></div>`,
			want:    "Enrollment requires",
			notWant: "Sidebar chatter",
		},
		{
			name:    "content class",
			body:    `<div class="promo">Promotional text that is long enough to pass the threshold.</div><div class="post-content"><p>` + long + `</p></div>`,
			want:    "Enrollment requires",
			notWant: "Promotional",
		},
		{
			name:    "article",
			body:    `<div>Unrelated lead paragraph with a good amount of text inside it.</div><article><p>` + long + `</p></article>`,
			want:    "Enrollment requires",
			notWant: "Unrelated lead",
		},
		{
			name: "body fallback",
			body: `<div><p>` + long + `</p></div>`,
			want: "Enrollment requires",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := extract(t, "<html><body>"+tt.body+"</body></html>", DefaultOptions())
			assert.Contains(t, page.Text, tt.want)
			if tt.notWant != "" {
				assert.NotContains(t, page.Text, tt.notWant)
			}
		})
	}
}

func TestExtractShortMainFallsThrough(t *testing.T) {
	doc := `<html><body><main><p>Tiny</p></main><article><p>` +
		strings.Repeat("The article body carries the real content. ", 2) +
		`</p></article></body></html>`

	page := extract(t, doc, DefaultOptions())
	assert.Contains(t, page.Text, "The article body carries the real content.")
}

func TestExtractEmptyPage(t *testing.T) {
	page := extract(t, `<html><head><title>Empty</title></head><body><nav>Menu</nav><script>x()</script></body></html>`, DefaultOptions())
	assert.Equal(t, "Empty", page.Title)
	assert.Equal(t, "", page.Text)
}

func TestExtractIsDeterministic(t *testing.T) {
	doc := `<html><body><main><h2>Steps</h2><ul><li>Open the portal</li><li>Choose <a href="/courses">courses</a></li></ul><p>Line one<br>Line two</p></main></body></html>`
	opts := Options{MinContentChars: 1, WrapColumn: 78, IncludeLinks: true}

	first := extract(t, doc, opts)
	second := extract(t, doc, opts)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, "## Steps\n\n* Open the portal\n\n* Choose courses (/courses)\n\nLine one\nLine two", first.Text)
}

func TestExtractWrapsAndCollapses(t *testing.T) {
	words := strings.Repeat("word ", 40)
	page := extract(t, "<html><body><main><p>"+words+"</p><div></div><div></div><p>end</p></main></body></html>",
		Options{MinContentChars: 1, WrapColumn: 30})

	for _, line := range strings.Split(page.Text, "\n") {
		assert.LessOrEqual(t, len(line), 30)
	}
	assert.NotContains(t, page.Text, "\n\n\n")
	assert.True(t, strings.HasSuffix(page.Text, "\n\nend"))
}

func TestExtractImagesOptional(t *testing.T) {
	doc := `<html><body><main><p>Campus map <img src="map.png" alt="North campus map"></p></main></body></html>`

	assert.Equal(t, "Campus map", extract(t, doc, Options{MinContentChars: 1}).Text)
	assert.Equal(t, "Campus map [North campus map]", extract(t, doc, Options{MinContentChars: 1, IncludeImages: true}).Text)
}

// rewriteTransport sends every request to the test server regardless of host.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = rt.target.Scheme
	clone.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(clone)
}

func newRewritingFetcher(t *testing.T, srv *httptest.Server) *fetch.Client {
	t.Helper()
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	c := fetch.NewClient(5*time.Second, "Mozilla/5.0 test", 2, 1<<20)
	c.HTTP = &http.Client{Transport: rewriteTransport{target: target}}
	c.InitialInterval = time.Millisecond
	return c
}

func TestExtractEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/page" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Example Page</title></head><body><main><p>Hello World</p></main><nav>Skip</nav></body></html>`))
	}))
	defer srv.Close()

	ex := NewExtractor(newRewritingFetcher(t, srv), DefaultOptions())
	page, err := ex.Extract(context.Background(), "https://example.com/page")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/page", page.URL)
	assert.Equal(t, "Example Page", page.Title)
	assert.Equal(t, "Hello World", page.Text)
}

func TestExtractNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	ex := NewExtractor(newRewritingFetcher(t, srv), DefaultOptions())
	_, err := ex.Extract(context.Background(), "https://example.com/private")

	var fetchErr *fetch.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusForbidden, fetchErr.StatusCode)
}
