// Package linkedin publishes posts through the LinkedIn UGC API.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/nichewire/syndicator/internal/metrics"
	"github.com/nichewire/syndicator/internal/pipeline"
)

const (
	defaultBaseURL  = "https://api.linkedin.com"
	defaultTokenURL = "https://www.linkedin.com/oauth/v2/accessToken"
	restliVersion   = "2.0.0"
)

// Config controls the publisher.
type Config struct {
	ClientID          string
	ClientSecret      string
	AccessToken       string
	RefreshToken      string
	AuthorURN         string
	OrganizationID    string
	BaseURL           string
	TokenURL          string
	RequestsPerMinute int
	Timeout           time.Duration

	// HTTPClient overrides the oauth2-backed client, mainly for tests.
	HTTPClient *http.Client
}

// Publisher implements pipeline.SocialPublisher against LinkedIn.
type Publisher struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	clock   pipeline.Clock
	logger  *zap.Logger

	mu         sync.Mutex
	authorURN  string
	authorOnce bool
}

// New creates a Publisher. Token refresh is handled by the oauth2 client
// when a refresh token and client credentials are configured.
func New(cfg Config, clock pipeline.Clock, logger *zap.Logger) *Publisher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = newOAuthClient(cfg)
	}
	client.Timeout = cfg.Timeout

	return &Publisher{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		clock:   clock,
		logger:  logger,
	}
}

func newOAuthClient(cfg Config) *http.Client {
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
	}
	token := &oauth2.Token{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
	}
	return oauth2.NewClient(context.Background(), oc.TokenSource(context.Background(), token))
}

// PublishPost creates a UGC post and returns its URN. Posts carrying an
// article URL are shared as ARTICLE media, plain commentary as NONE.
func (p *Publisher) PublishPost(ctx context.Context, post pipeline.SocialPost) (pipeline.PublishReceipt, error) {
	if strings.TrimSpace(post.Commentary) == "" {
		return pipeline.PublishReceipt{}, fmt.Errorf("post has no commentary")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return pipeline.PublishReceipt{}, fmt.Errorf("publish rate wait: %w", err)
	}

	author, err := p.resolveAuthor(ctx)
	if err != nil {
		return pipeline.PublishReceipt{}, err
	}

	payload := buildUGCPayload(author, post)
	body, err := json.Marshal(payload)
	if err != nil {
		return pipeline.PublishReceipt{}, fmt.Errorf("marshal ugc payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v2/ugcPosts", bytes.NewReader(body))
	if err != nil {
		return pipeline.PublishReceipt{}, fmt.Errorf("build ugc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", restliVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return pipeline.PublishReceipt{}, fmt.Errorf("ugc post request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		excerpt := readBodyExcerpt(resp.Body)
		return pipeline.PublishReceipt{}, fmt.Errorf("linkedin api status %d: %s", resp.StatusCode, excerpt)
	}

	urn := resp.Header.Get("x-restli-id")
	if urn == "" {
		var created struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err == nil {
			urn = created.ID
		}
	}

	p.logger.Info("published linkedin post", zap.String("post_urn", urn))
	metrics.ObservePublish("linkedin")
	return pipeline.PublishReceipt{
		PostURN:     urn,
		PublishedAt: p.clock.Now(),
	}, nil
}

// resolveAuthor returns the URN to post as: configured author first, then
// the organization, then the authenticated member looked up once via /v2/me.
func (p *Publisher) resolveAuthor(ctx context.Context) (string, error) {
	if p.cfg.AuthorURN != "" {
		return p.cfg.AuthorURN, nil
	}
	if p.cfg.OrganizationID != "" {
		return "urn:li:organization:" + p.cfg.OrganizationID, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.authorOnce {
		return p.authorURN, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/v2/me", nil)
	if err != nil {
		return "", fmt.Errorf("build me request: %w", err)
	}
	req.Header.Set("X-Restli-Protocol-Version", restliVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("me request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("linkedin me status %d: %s", resp.StatusCode, readBodyExcerpt(resp.Body))
	}

	var me struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return "", fmt.Errorf("decode me response: %w", err)
	}
	if me.ID == "" {
		return "", fmt.Errorf("me response missing id")
	}

	p.authorURN = "urn:li:person:" + me.ID
	p.authorOnce = true
	return p.authorURN, nil
}

func buildUGCPayload(author string, post pipeline.SocialPost) map[string]any {
	text := post.Commentary
	if len(post.Hashtags) > 0 {
		text += "\n\n" + strings.Join(post.Hashtags, " ")
	}

	share := map[string]any{
		"shareCommentary":    map[string]any{"text": text},
		"shareMediaCategory": "NONE",
	}
	if post.ArticleURL != "" {
		share["shareMediaCategory"] = "ARTICLE"
		media := map[string]any{
			"status":      "READY",
			"originalUrl": post.ArticleURL,
		}
		if post.Title != "" {
			media["title"] = map[string]any{"text": post.Title}
		}
		share["media"] = []any{media}
	}

	return map[string]any{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": share,
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
}

func readBodyExcerpt(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(data))
}
