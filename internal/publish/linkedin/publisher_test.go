package linkedin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nichewire/syndicator/internal/metrics"
	"github.com/nichewire/syndicator/internal/pipeline"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestPublisher(t *testing.T, baseURL, authorURN string) *Publisher {
	t.Helper()
	metrics.Init()
	return New(Config{
		BaseURL:           baseURL,
		AuthorURN:         authorURN,
		RequestsPerMinute: 600,
		HTTPClient:        &http.Client{},
	}, fixedClock{time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}, zap.NewNop())
}

func TestPublishPost_ArticleShare(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/ugcPosts", r.URL.Path)
		require.Equal(t, restliVersion, r.Header.Get("X-Restli-Protocol-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("x-restli-id", "urn:li:share:12345")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p := newTestPublisher(t, srv.URL, "urn:li:person:abc")
	receipt, err := p.PublishPost(context.Background(), pipeline.SocialPost{
		Commentary: "Widget prices keep climbing.",
		ArticleURL: "https://example.com/widgets",
		Title:      "Widget Prices Climb Again",
		Hashtags:   []string{"#widgets", "#economy"},
	})
	require.NoError(t, err)
	require.Equal(t, "urn:li:share:12345", receipt.PostURN)
	require.False(t, receipt.PublishedAt.IsZero())

	require.Equal(t, "urn:li:person:abc", captured["author"])
	require.Equal(t, "PUBLISHED", captured["lifecycleState"])

	share := captured["specificContent"].(map[string]any)["com.linkedin.ugc.ShareContent"].(map[string]any)
	require.Equal(t, "ARTICLE", share["shareMediaCategory"])
	commentary := share["shareCommentary"].(map[string]any)["text"].(string)
	require.Contains(t, commentary, "Widget prices keep climbing.")
	require.Contains(t, commentary, "#widgets #economy")

	media := share["media"].([]any)[0].(map[string]any)
	require.Equal(t, "https://example.com/widgets", media["originalUrl"])
}

func TestPublishPost_TextOnlyShare(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("x-restli-id", "urn:li:share:9")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p := newTestPublisher(t, srv.URL, "urn:li:person:abc")
	_, err := p.PublishPost(context.Background(), pipeline.SocialPost{Commentary: "Just words."})
	require.NoError(t, err)

	share := captured["specificContent"].(map[string]any)["com.linkedin.ugc.ShareContent"].(map[string]any)
	require.Equal(t, "NONE", share["shareMediaCategory"])
	require.NotContains(t, share, "media")
}

func TestPublishPost_APIErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"duplicate post"}`))
	}))
	defer srv.Close()

	p := newTestPublisher(t, srv.URL, "urn:li:person:abc")
	_, err := p.PublishPost(context.Background(), pipeline.SocialPost{Commentary: "dup"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "422")
	require.Contains(t, err.Error(), "duplicate post")
}

func TestPublishPost_EmptyCommentaryRejected(t *testing.T) {
	p := newTestPublisher(t, "http://unused.invalid", "urn:li:person:abc")
	_, err := p.PublishPost(context.Background(), pipeline.SocialPost{Commentary: "   "})
	require.Error(t, err)
}

func TestResolveAuthor_FallsBackToMe(t *testing.T) {
	meCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/me":
			meCalls++
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "xyz"})
		case "/v2/ugcPosts":
			w.Header().Set("x-restli-id", "urn:li:share:1")
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	p := newTestPublisher(t, srv.URL, "")

	author, err := p.resolveAuthor(context.Background())
	require.NoError(t, err)
	require.Equal(t, "urn:li:person:xyz", author)

	// Second resolution uses the cached URN.
	author, err = p.resolveAuthor(context.Background())
	require.NoError(t, err)
	require.Equal(t, "urn:li:person:xyz", author)
	require.Equal(t, 1, meCalls)
}

func TestResolveAuthor_OrganizationFallback(t *testing.T) {
	metrics.Init()
	p := New(Config{
		BaseURL:        "http://unused.invalid",
		OrganizationID: "555",
		HTTPClient:     &http.Client{},
	}, fixedClock{time.Now()}, zap.NewNop())

	author, err := p.resolveAuthor(context.Background())
	require.NoError(t, err)
	require.Equal(t, "urn:li:organization:555", author)
}
