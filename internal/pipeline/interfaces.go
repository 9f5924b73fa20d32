package pipeline

import (
	"context"
	"io"
	"time"
)

// Discoverer finds article URLs for a source.
type Discoverer interface {
	DiscoverURLs(ctx context.Context, source SourceConfig) ([]string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless re-fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// ArticleStore persists accepted article records.
type ArticleStore interface {
	StoreArticle(ctx context.Context, article StoredArticle) error
	UpdatePublishState(ctx context.Context, articleID string, state PublishState, postURN string) error
	ListArticles(ctx context.Context, jobID string) ([]StoredArticle, error)
	ListRecent(ctx context.Context, limit int) ([]StoredArticle, error)
	CountArticles(ctx context.Context) (stored int, published int, err error)
}

// JobStore persists job metadata.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	Snapshot(ctx context.Context) (StatusSnapshot, error)
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// EventPublisher pushes pipeline events to Pub/Sub (or similar).
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Enricher generates social copy for an accepted article.
type Enricher interface {
	Enrich(ctx context.Context, article StoredArticle) (Enrichment, error)
}

// SocialPublisher posts enriched content to an external platform.
type SocialPublisher interface {
	PublishPost(ctx context.Context, post SocialPost) (PublishReceipt, error)
}

// Queue provides enqueue/dequeue semantics for scrape jobs.
type Queue interface {
	Enqueue(ctx context.Context, job QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Policy encapsulates admission control and rate limiting for fetches.
type Policy interface {
	Wait(ctx context.Context, url string) error
	AllowHeadless(jobID string, url string) bool
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and article IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
