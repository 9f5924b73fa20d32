// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nichewire/syndicator/internal/pipeline"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ArticleStoreConfig controls the Postgres connection pool used for article rows.
type ArticleStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ArticleStore writes article rows into Postgres.
type ArticleStore struct {
	pool  pgxPool
	table string
}

// NewArticleStore creates a Postgres-backed ArticleStore using the provided config.
func NewArticleStore(ctx context.Context, cfg ArticleStoreConfig) (*ArticleStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "articles"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ArticleStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewArticleStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewArticleStoreWithPool(pool pgxPool, table string) (*ArticleStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "articles"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ArticleStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ArticleStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const articleColumns = `
	id,
	job_id,
	source_name,
	url,
	title,
	body,
	author,
	published_at,
	tags,
	summary,
	content_hash,
	blob_uri,
	scraped_at,
	enrichment,
	publish_state,
	post_urn`

// StoreArticle inserts an article row into Postgres.
func (s *ArticleStore) StoreArticle(ctx context.Context, article pipeline.StoredArticle) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("article store is not configured")
	}
	if article.ID == "" {
		return fmt.Errorf("article id is required")
	}
	tagsJSON, err := json.Marshal(article.Article.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	enrichmentJSON, err := marshalEnrichment(article.Enrichment)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (%s) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)`, s.table, articleColumns)

	args := []any{
		article.ID,
		article.JobID,
		article.SourceName,
		article.URL,
		article.Article.Title,
		article.Article.Body,
		article.Article.Author,
		article.Article.PublishedAt,
		tagsJSON,
		article.Article.Summary,
		article.ContentHash,
		article.BlobURI,
		article.ScrapedAt,
		enrichmentJSON,
		string(article.PublishState),
		article.PostURN,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// UpdatePublishState transitions an article's downstream state. An empty
// postURN leaves the stored URN untouched.
func (s *ArticleStore) UpdatePublishState(ctx context.Context, articleID string, state pipeline.PublishState, postURN string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("article store is not configured")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET publish_state = $2,
	post_urn = COALESCE(NULLIF($3, ''), post_urn)
WHERE id = $1`, s.table)

	tag, err := s.pool.Exec(ctx, query, articleID, string(state), postURN)
	if err != nil {
		return fmt.Errorf("update publish state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("article %s not found", articleID)
	}
	return nil
}

// ListArticles returns all articles stored for a job, oldest first.
func (s *ArticleStore) ListArticles(ctx context.Context, jobID string) ([]pipeline.StoredArticle, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE job_id = $1 ORDER BY scraped_at ASC`, articleColumns, s.table)
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// ListRecent returns up to limit articles, most recently scraped first.
func (s *ArticleStore) ListRecent(ctx context.Context, limit int) ([]pipeline.StoredArticle, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY scraped_at DESC LIMIT $1`, articleColumns, s.table)
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// CountArticles returns totals for stored and published articles.
func (s *ArticleStore) CountArticles(ctx context.Context) (int, int, error) {
	query := fmt.Sprintf(`
SELECT COUNT(*),
	COUNT(*) FILTER (WHERE publish_state = 'published')
FROM %s`, s.table)

	var stored, published int
	if err := s.pool.QueryRow(ctx, query).Scan(&stored, &published); err != nil {
		return 0, 0, fmt.Errorf("count articles: %w", err)
	}
	return stored, published, nil
}

func scanArticles(rows pgx.Rows) ([]pipeline.StoredArticle, error) {
	var out []pipeline.StoredArticle
	for rows.Next() {
		var (
			a              pipeline.StoredArticle
			tagsJSON       []byte
			enrichmentJSON []byte
			state          string
		)
		err := rows.Scan(
			&a.ID,
			&a.JobID,
			&a.SourceName,
			&a.URL,
			&a.Article.Title,
			&a.Article.Body,
			&a.Article.Author,
			&a.Article.PublishedAt,
			&tagsJSON,
			&a.Article.Summary,
			&a.ContentHash,
			&a.BlobURI,
			&a.ScrapedAt,
			&enrichmentJSON,
			&state,
			&a.PostURN,
		)
		if err != nil {
			return nil, fmt.Errorf("scan article row: %w", err)
		}
		if len(tagsJSON) > 0 {
			if err := json.Unmarshal(tagsJSON, &a.Article.Tags); err != nil {
				return nil, fmt.Errorf("unmarshal tags: %w", err)
			}
		}
		if len(enrichmentJSON) > 0 {
			var enrichment pipeline.Enrichment
			if err := json.Unmarshal(enrichmentJSON, &enrichment); err != nil {
				return nil, fmt.Errorf("unmarshal enrichment: %w", err)
			}
			a.Enrichment = &enrichment
		}
		a.PublishState = pipeline.PublishState(state)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article rows: %w", err)
	}
	return out, nil
}

func marshalEnrichment(e *pipeline.Enrichment) ([]byte, error) {
	if e == nil {
		return nil, nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal enrichment: %w", err)
	}
	return data, nil
}
