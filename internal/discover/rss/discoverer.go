// Package rss discovers article URLs from RSS and Atom feeds.
package rss

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/nichewire/syndicator/internal/pipeline"
)

// Discoverer parses a source's feeds and returns candidate article URLs.
type Discoverer struct {
	fetcher pipeline.Fetcher
	clock   pipeline.Clock
	logger  *zap.Logger
}

// New creates a feed-backed Discoverer.
func New(fetcher pipeline.Fetcher, clock pipeline.Clock, logger *zap.Logger) *Discoverer {
	return &Discoverer{
		fetcher: fetcher,
		clock:   clock,
		logger:  logger,
	}
}

// DiscoverURLs fetches every feed configured for the source and collects
// item links, newest-first per feed. Items older than MaxAgeDays are
// dropped, duplicates keep their first position, and the result is capped
// at MaxItems when set. A single broken feed does not fail discovery
// unless every feed is broken.
func (d *Discoverer) DiscoverURLs(ctx context.Context, source pipeline.SourceConfig) ([]string, error) {
	if len(source.FeedURLs) == 0 {
		return nil, fmt.Errorf("source %q has no feed URLs", source.Name)
	}

	var cutoff time.Time
	if source.MaxAgeDays > 0 {
		cutoff = d.clock.Now().AddDate(0, 0, -source.MaxAgeDays)
	}

	parser := gofeed.NewParser()
	seen := make(map[string]struct{})
	var urls []string
	var lastErr error
	failed := 0

	for _, feedURL := range source.FeedURLs {
		resp, err := d.fetcher.Fetch(ctx, pipeline.FetchRequest{URL: feedURL})
		if err != nil {
			d.logger.Warn("feed fetch failed",
				zap.String("source", source.Name),
				zap.String("feed_url", feedURL),
				zap.Error(err))
			lastErr = err
			failed++
			continue
		}

		feed, err := parser.ParseString(string(resp.Body))
		if err != nil {
			d.logger.Warn("feed parse failed",
				zap.String("source", source.Name),
				zap.String("feed_url", feedURL),
				zap.Error(err))
			lastErr = fmt.Errorf("parse feed %s: %w", feedURL, err)
			failed++
			continue
		}

		for _, item := range feed.Items {
			if item.Link == "" {
				continue
			}
			if !cutoff.IsZero() && tooOld(item, cutoff) {
				continue
			}
			if _, ok := seen[item.Link]; ok {
				continue
			}
			seen[item.Link] = struct{}{}
			urls = append(urls, item.Link)
		}
	}

	if failed == len(source.FeedURLs) {
		return nil, fmt.Errorf("all feeds failed for source %q: %w", source.Name, lastErr)
	}

	if source.MaxItems > 0 && len(urls) > source.MaxItems {
		urls = urls[:source.MaxItems]
	}

	d.logger.Info("feed discovery complete",
		zap.String("source", source.Name),
		zap.Int("feeds", len(source.FeedURLs)),
		zap.Int("urls", len(urls)))
	return urls, nil
}

// tooOld reports whether an item's publication date is known and before
// the cutoff. Items without a parseable date are kept.
func tooOld(item *gofeed.Item, cutoff time.Time) bool {
	ts := item.PublishedParsed
	if ts == nil {
		ts = item.UpdatedParsed
	}
	if ts == nil {
		return false
	}
	return ts.Before(cutoff)
}
