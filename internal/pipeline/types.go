// Package pipeline defines core types shared across subsystems.
package pipeline

import (
	"net/http"
	"time"

	"github.com/nichewire/syndicator/internal/extract"
)

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// SourceConfig describes one content source the service syndicates from.
type SourceConfig struct {
	Name             string   `json:"name" mapstructure:"name"`
	FeedURLs         []string `json:"feed_urls" mapstructure:"feed_urls"`
	MaxAgeDays       int      `json:"max_age_days" mapstructure:"max_age_days"`
	MaxItems         int      `json:"max_items" mapstructure:"max_items"`
	MinContentLength int      `json:"min_content_length" mapstructure:"min_content_length"`
	RateLimitRPS     float64  `json:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// JobParameters captures per-job configuration requested by the client.
type JobParameters struct {
	Source           SourceConfig `json:"source"`
	MaxItems         int          `json:"max_items"`
	MaxConcurrent    int          `json:"max_concurrent"`
	HeadlessAllowed  bool         `json:"headless_allowed" mapstructure:"headless_allowed"`
	HeadlessProvided bool         `json:"-" mapstructure:"headless_provided"`
	PublishEnabled   bool         `json:"publish_enabled" mapstructure:"publish_enabled"`
	EnrichEnabled    bool         `json:"enrich_enabled" mapstructure:"enrich_enabled"`
}

// Job represents the metadata persisted for each submitted scrape request.
type Job struct {
	ID         string        `json:"id"`
	Status     JobStatus     `json:"status"`
	Submitted  time.Time     `json:"submitted_at"`
	Started    *time.Time    `json:"started_at,omitempty"`
	Finished   *time.Time    `json:"finished_at,omitempty"`
	ErrorText  string        `json:"error_text,omitempty"`
	Parameters JobParameters `json:"parameters"`
	Counters   JobCounters   `json:"counters"`
}

// JobCounters tracks per-job pipeline outcomes.
type JobCounters struct {
	URLsDiscovered    int `json:"urls_discovered"`
	ArticlesExtracted int `json:"articles_extracted"`
	ArticlesRejected  int `json:"articles_rejected"`
	ArticlesEnriched  int `json:"articles_enriched"`
	ArticlesPublished int `json:"articles_published"`
	FetchesFailed     int `json:"fetches_failed"`
}

// PublishState tracks where an article sits in the downstream flow.
type PublishState string

// Publish state values persisted with each article.
const (
	PublishStatePending   PublishState = "pending"
	PublishStateEnriched  PublishState = "enriched"
	PublishStatePublished PublishState = "published"
	PublishStateSkipped   PublishState = "skipped"
	PublishStateFailed    PublishState = "failed"
)

// StoredArticle is the persisted record for one accepted article.
type StoredArticle struct {
	ID           string          `json:"id"`
	JobID        string          `json:"job_id"`
	SourceName   string          `json:"source_name"`
	URL          string          `json:"url"`
	Article      extract.Article `json:"article"`
	ContentHash  string          `json:"content_hash"`
	BlobURI      string          `json:"blob_uri"`
	ScrapedAt    time.Time       `json:"scraped_at"`
	Enrichment   *Enrichment     `json:"enrichment,omitempty"`
	PublishState PublishState    `json:"publish_state"`
	PostURN      string          `json:"post_urn,omitempty"`
}

// Enrichment holds LLM-generated fields attached to an article.
type Enrichment struct {
	PostText   string    `json:"post_text"`
	Hashtags   []string  `json:"hashtags"`
	KeyPoints  []string  `json:"key_points,omitempty"`
	Model      string    `json:"model"`
	EnrichedAt time.Time `json:"enriched_at"`
}

// SocialPost is what a SocialPublisher pushes to an external platform.
type SocialPost struct {
	Commentary string   `json:"commentary"`
	ArticleURL string   `json:"article_url"`
	Title      string   `json:"title"`
	Hashtags   []string `json:"hashtags"`
}

// PublishReceipt is returned by a SocialPublisher on success.
type PublishReceipt struct {
	PostURN     string    `json:"post_urn"`
	PublishedAt time.Time `json:"published_at"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	JobID       string
	URL         string
	UseHeadless bool
	Headers     http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Params    JobParameters
	Attempt   int
	Submitted int64
}

// JobResult is returned by the API result endpoint.
type JobResult struct {
	Job      Job             `json:"job"`
	Articles []StoredArticle `json:"articles"`
}

// StatusSnapshot summarizes pipeline health for the monitoring bot.
type StatusSnapshot struct {
	JobsRunning       int       `json:"jobs_running"`
	JobsSucceeded     int       `json:"jobs_succeeded"`
	JobsFailed        int       `json:"jobs_failed"`
	ArticlesStored    int       `json:"articles_stored"`
	ArticlesPublished int       `json:"articles_published"`
	LastScrapeAt      time.Time `json:"last_scrape_at"`
}
