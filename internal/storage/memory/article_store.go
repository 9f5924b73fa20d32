package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/nichewire/syndicator/internal/pipeline"
)

// ArticleStore keeps accepted articles in memory, newest last.
type ArticleStore struct {
	mu       sync.RWMutex
	byID     map[string]int
	articles []pipeline.StoredArticle
}

// NewArticleStore constructs an ArticleStore.
func NewArticleStore() *ArticleStore {
	return &ArticleStore{
		byID: make(map[string]int),
	}
}

// StoreArticle appends a new article record.
func (s *ArticleStore) StoreArticle(_ context.Context, article pipeline.StoredArticle) error {
	if article.ID == "" {
		return errors.New("article id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[article.ID]; exists {
		return errors.New("article already exists")
	}
	s.byID[article.ID] = len(s.articles)
	s.articles = append(s.articles, article)
	return nil
}

// UpdatePublishState transitions an article's downstream state.
func (s *ArticleStore) UpdatePublishState(_ context.Context, articleID string, state pipeline.PublishState, postURN string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[articleID]
	if !ok {
		return errors.New("article not found")
	}
	s.articles[idx].PublishState = state
	if postURN != "" {
		s.articles[idx].PostURN = postURN
	}
	return nil
}

// ListArticles returns all articles stored for a job, in insertion order.
func (s *ArticleStore) ListArticles(_ context.Context, jobID string) ([]pipeline.StoredArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []pipeline.StoredArticle
	for _, a := range s.articles {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListRecent returns up to limit articles, most recently stored first.
func (s *ArticleStore) ListRecent(_ context.Context, limit int) ([]pipeline.StoredArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.articles) {
		limit = len(s.articles)
	}
	out := make([]pipeline.StoredArticle, 0, limit)
	for i := len(s.articles) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.articles[i])
	}
	return out, nil
}

// CountArticles returns totals for stored and published articles.
func (s *ArticleStore) CountArticles(_ context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	published := 0
	for _, a := range s.articles {
		if a.PublishState == pipeline.PublishStatePublished {
			published++
		}
	}
	return len(s.articles), published, nil
}
