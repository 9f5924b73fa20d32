// Package worker implements the scrape pipeline execution loop.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nichewire/syndicator/internal/extract"
	"github.com/nichewire/syndicator/internal/metrics"
	"github.com/nichewire/syndicator/internal/pipeline"
)

// Config controls Worker behavior.
type Config struct {
	ContentType   string
	BlobPrefix    string
	Topic         string
	MaxConcurrent int
}

// Deps bundles the collaborators a Worker needs.
type Deps struct {
	Queue           pipeline.Queue
	JobStore        pipeline.JobStore
	ArticleStore    pipeline.ArticleStore
	BlobStore       pipeline.BlobStore
	Events          pipeline.EventPublisher
	Enricher        pipeline.Enricher
	SocialPublisher pipeline.SocialPublisher
	Discoverer      pipeline.Discoverer
	ProbeFetcher    pipeline.Fetcher
	HeadlessFetcher pipeline.Fetcher
	Detector        pipeline.HeadlessDetector
	Policy          pipeline.Policy
	Hasher          pipeline.Hasher
	Clock           pipeline.Clock
	IDs             pipeline.IDGenerator
}

// Worker consumes queue items and executes the discover/fetch/extract/publish
// pipeline for each job.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	return &Worker{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item pipeline.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	counters := pipeline.JobCounters{}
	if err := w.deps.JobStore.UpdateJobStatus(ctx, item.JobID, pipeline.JobStatusRunning, "", counters); err != nil {
		w.logger.Error("update job status failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}

	urls, err := w.deps.Discoverer.DiscoverURLs(ctx, item.Params.Source)
	if err != nil {
		w.finishJob(ctx, item.JobID, pipeline.JobStatusFailed, fmt.Sprintf("discovery: %v", err), counters)
		return
	}
	counters.URLsDiscovered = len(urls)
	if item.Params.MaxItems > 0 && len(urls) > item.Params.MaxItems {
		urls = urls[:item.Params.MaxItems]
	}

	errText := w.scrapeAll(ctx, item, urls, &counters)

	status, errText := w.deriveFinalStatus(ctx, counters, errText)
	w.finishJob(ctx, item.JobID, status, errText, counters)
}

func (w *Worker) finishJob(ctx context.Context, jobID string, status pipeline.JobStatus, errText string, counters pipeline.JobCounters) {
	metrics.ObserveJob(string(status))
	if err := w.deps.JobStore.UpdateJobStatus(ctx, jobID, status, errText, counters); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// scrapeAll fans out over the discovered URLs with a bounded number of
// in-flight fetches. Failures on individual documents are recorded in the
// counters but never abort the job.
func (w *Worker) scrapeAll(ctx context.Context, item pipeline.QueueItem, urls []string, counters *pipeline.JobCounters) string {
	maxConcurrent := item.Params.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = w.cfg.MaxConcurrent
	}

	extractor := extract.New(extract.Config{
		MinBodyLength: item.Params.Source.MinContentLength,
	})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		lastErr string
	)
	sem := make(chan struct{}, maxConcurrent)

	for _, url := range urls {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(url string) {
			defer wg.Done()
			defer func() { <-sem }()

			err := w.handleURL(ctx, item, extractor, url, counters, &mu)
			if err != nil {
				mu.Lock()
				lastErr = err.Error()
				mu.Unlock()
			}
		}(url)
	}
	wg.Wait()
	return lastErr
}

func (w *Worker) handleURL(
	ctx context.Context,
	item pipeline.QueueItem,
	extractor *extract.Extractor,
	url string,
	counters *pipeline.JobCounters,
	mu *sync.Mutex,
) error {
	source := item.Params.Source.Name

	if w.deps.Policy != nil {
		if err := w.deps.Policy.Wait(ctx, url); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := w.fetchProbe(ctx, item, url)
	if err != nil {
		mu.Lock()
		counters.FetchesFailed++
		mu.Unlock()
		w.logger.Error("probe fetch failed", zap.String("job_id", item.JobID), zap.String("url", url), zap.Error(err))
		return err
	}
	metrics.ObserveFetch(url, resp.Duration)

	finalResp := resp
	if promotedResp, promoted := w.maybePromote(ctx, item, url, resp); promoted {
		finalResp = promotedResp
		w.logger.Info("headless promotion applied", zap.String("job_id", item.JobID), zap.String("url", url))
	}

	article, err := extractor.Extract(url, string(finalResp.Body))
	if err == nil {
		err = extract.Validate(url, article)
	}
	if err != nil {
		mu.Lock()
		counters.ArticlesRejected++
		mu.Unlock()
		metrics.ObserveRejection(source, rejectionReason(err))
		w.logger.Warn("document rejected",
			zap.String("job_id", item.JobID),
			zap.String("url", url),
			zap.Error(err))
		return nil
	}

	stored, err := w.persistArticle(ctx, item, url, article, finalResp)
	if err != nil {
		mu.Lock()
		counters.FetchesFailed++
		mu.Unlock()
		w.logger.Error("persist article failed", zap.String("job_id", item.JobID), zap.String("url", url), zap.Error(err))
		return err
	}
	mu.Lock()
	counters.ArticlesExtracted++
	mu.Unlock()
	metrics.ObserveExtraction(source)

	enriched := w.enrichArticle(ctx, item, &stored, counters, mu)
	if enriched {
		w.publishArticle(ctx, item, stored, counters, mu)
	}

	w.publishEvent(ctx, item.JobID, stored)
	return nil
}

func (w *Worker) fetchProbe(ctx context.Context, item pipeline.QueueItem, url string) (pipeline.FetchResponse, error) {
	pageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := w.deps.ProbeFetcher.Fetch(pageCtx, pipeline.FetchRequest{
		JobID: item.JobID,
		URL:   url,
	})
	if err != nil {
		return pipeline.FetchResponse{}, fmt.Errorf("probe fetch: %w", err)
	}
	return resp, nil
}

func (w *Worker) maybePromote(
	ctx context.Context,
	item pipeline.QueueItem,
	url string,
	resp pipeline.FetchResponse,
) (pipeline.FetchResponse, bool) {
	if !item.Params.HeadlessAllowed || w.deps.Detector == nil || w.deps.HeadlessFetcher == nil {
		return resp, false
	}
	if w.deps.Policy != nil && !w.deps.Policy.AllowHeadless(item.JobID, url) {
		return resp, false
	}
	if !w.deps.Detector.ShouldPromote(resp) {
		return resp, false
	}

	headlessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	headlessResp, err := w.deps.HeadlessFetcher.Fetch(headlessCtx, pipeline.FetchRequest{
		JobID:       item.JobID,
		URL:         url,
		UseHeadless: true,
	})
	if err != nil {
		w.logger.Warn("headless promotion failed", zap.String("job_id", item.JobID), zap.String("url", url), zap.Error(err))
		return resp, false
	}
	headlessResp.UsedHeadless = true
	return headlessResp, true
}

func (w *Worker) persistArticle(
	ctx context.Context,
	item pipeline.QueueItem,
	url string,
	article extract.Article,
	resp pipeline.FetchResponse,
) (pipeline.StoredArticle, error) {
	hash, err := w.deps.Hasher.Hash(resp.Body)
	if err != nil {
		return pipeline.StoredArticle{}, fmt.Errorf("hash body: %w", err)
	}

	blobPath := w.buildBlobPath(item.JobID, hash)
	uri, err := w.deps.BlobStore.PutObject(ctx, blobPath, w.cfg.ContentType, bytes.NewReader(resp.Body))
	if err != nil {
		return pipeline.StoredArticle{}, fmt.Errorf("put object: %w", err)
	}

	id, err := w.deps.IDs.NewID()
	if err != nil {
		return pipeline.StoredArticle{}, fmt.Errorf("generate article id: %w", err)
	}

	stored := pipeline.StoredArticle{
		ID:           id,
		JobID:        item.JobID,
		SourceName:   item.Params.Source.Name,
		URL:          url,
		Article:      article,
		ContentHash:  hash,
		BlobURI:      uri,
		ScrapedAt:    w.deps.Clock.Now(),
		PublishState: pipeline.PublishStatePending,
	}
	if err := w.deps.ArticleStore.StoreArticle(ctx, stored); err != nil {
		return pipeline.StoredArticle{}, fmt.Errorf("store article: %w", err)
	}
	return stored, nil
}

// enrichArticle returns true when the article carries enrichment afterwards.
func (w *Worker) enrichArticle(
	ctx context.Context,
	item pipeline.QueueItem,
	stored *pipeline.StoredArticle,
	counters *pipeline.JobCounters,
	mu *sync.Mutex,
) bool {
	if !item.Params.EnrichEnabled || w.deps.Enricher == nil {
		return false
	}

	enrichment, err := w.deps.Enricher.Enrich(ctx, *stored)
	if err != nil {
		w.logger.Warn("enrichment failed",
			zap.String("job_id", item.JobID),
			zap.String("article_id", stored.ID),
			zap.Error(err))
		return false
	}
	stored.Enrichment = &enrichment
	mu.Lock()
	counters.ArticlesEnriched++
	mu.Unlock()

	if err := w.deps.ArticleStore.UpdatePublishState(ctx, stored.ID, pipeline.PublishStateEnriched, ""); err != nil {
		w.logger.Error("mark enriched failed", zap.String("article_id", stored.ID), zap.Error(err))
	}
	return true
}

func (w *Worker) publishArticle(
	ctx context.Context,
	item pipeline.QueueItem,
	stored pipeline.StoredArticle,
	counters *pipeline.JobCounters,
	mu *sync.Mutex,
) {
	if !item.Params.PublishEnabled || w.deps.SocialPublisher == nil || stored.Enrichment == nil {
		return
	}

	receipt, err := w.deps.SocialPublisher.PublishPost(ctx, pipeline.SocialPost{
		Commentary: stored.Enrichment.PostText,
		ArticleURL: stored.URL,
		Title:      stored.Article.Title,
		Hashtags:   stored.Enrichment.Hashtags,
	})
	if err != nil {
		w.logger.Error("social publish failed",
			zap.String("job_id", item.JobID),
			zap.String("article_id", stored.ID),
			zap.Error(err))
		if err := w.deps.ArticleStore.UpdatePublishState(ctx, stored.ID, pipeline.PublishStateFailed, ""); err != nil {
			w.logger.Error("mark publish failed", zap.String("article_id", stored.ID), zap.Error(err))
		}
		return
	}

	mu.Lock()
	counters.ArticlesPublished++
	mu.Unlock()
	if err := w.deps.ArticleStore.UpdatePublishState(ctx, stored.ID, pipeline.PublishStatePublished, receipt.PostURN); err != nil {
		w.logger.Error("mark published failed", zap.String("article_id", stored.ID), zap.Error(err))
	}
}

func (w *Worker) publishEvent(ctx context.Context, jobID string, stored pipeline.StoredArticle) {
	if w.cfg.Topic == "" || w.deps.Events == nil {
		return
	}
	payload := map[string]any{
		"job_id":     jobID,
		"article_id": stored.ID,
		"source":     stored.SourceName,
		"url":        stored.URL,
		"blob_uri":   stored.BlobURI,
		"hash":       stored.ContentHash,
		"state":      string(stored.PublishState),
		"timestamp":  w.deps.Clock.Now().Format(time.RFC3339),
	}
	if _, err := w.deps.Events.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Error("event publish failed",
			zap.String("job_id", jobID),
			zap.String("article_id", stored.ID),
			zap.Error(err))
	}
}

func (w *Worker) buildBlobPath(jobID, hash string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", jobID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, jobID, hash)
}

func (w *Worker) deriveFinalStatus(
	ctx context.Context,
	counters pipeline.JobCounters,
	errText string,
) (pipeline.JobStatus, string) {
	if counters.ArticlesExtracted == 0 && errText == "" {
		errText = "no articles were extracted"
	}

	switch {
	case ctx.Err() != nil:
		return pipeline.JobStatusCanceled, errText
	case counters.ArticlesExtracted == 0:
		return pipeline.JobStatusFailed, errText
	default:
		return pipeline.JobStatusSucceeded, errText
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, extract.ErrMissingTitle):
		return "missing_title"
	case errors.Is(err, extract.ErrMissingBody), errors.Is(err, extract.ErrBodyTooShort):
		return "body_too_short"
	case errors.Is(err, extract.ErrTitleBelowMinimum), errors.Is(err, extract.ErrBodyBelowMinimum):
		return "below_minimum"
	case errors.Is(err, extract.ErrInvalidSourceURL):
		return "invalid_url"
	default:
		return "extract"
	}
}
