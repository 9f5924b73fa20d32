// Package extract turns raw article HTML into structured records using
// ordered per-field heuristic cascades. Each field is extracted
// independently by trying strategies in sequence until one succeeds; no
// per-site configuration is required.
package extract

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// Rejection reasons surfaced to callers. All are document-local; none
// should abort processing of other documents.
var (
	ErrMissingTitle = errors.New("no title found")
	ErrMissingBody  = errors.New("no body content found")
	ErrBodyTooShort = errors.New("body below minimum length")
)

const (
	defaultMinBodyLength = 100

	// Paragraphs inside a detected content root must exceed this many
	// runes to qualify. The whole-document fallback uses a stricter
	// threshold since it cannot strip nav/footer noise first.
	minParagraphRunes      = 20
	fallbackParagraphRunes = 30

	summaryMaxRunes = 200
	ellipsis        = "..."
)

// Article is the structured record produced for one HTML document.
type Article struct {
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Summary     string     `json:"summary,omitempty"`
}

// Config controls extractor behavior.
type Config struct {
	MinBodyLength int
}

// Extractor converts one HTML document into zero or one Article. It is
// pure and synchronous; concurrent calls on independent documents need
// no coordination.
type Extractor struct {
	cfg Config
}

// New builds an Extractor.
func New(cfg Config) *Extractor {
	if cfg.MinBodyLength <= 0 {
		cfg.MinBodyLength = defaultMinBodyLength
	}
	return &Extractor{cfg: cfg}
}

// Extract parses htmlDoc and runs the per-field cascades. A panic while
// processing the document is recovered here and converted to an error
// so one malformed page never takes down a batch.
func (e *Extractor) Extract(sourceURL, htmlDoc string) (article Article, err error) {
	defer func() {
		if r := recover(); r != nil {
			article = Article{}
			err = fmt.Errorf("extract %s: unexpected parse error: %v", sourceURL, r)
		}
	}()

	doc, parseErr := goquery.NewDocumentFromReader(strings.NewReader(htmlDoc))
	if parseErr != nil {
		return Article{}, fmt.Errorf("parse html: %w", parseErr)
	}

	title := extractTitle(doc)
	if title == "" {
		return Article{}, ErrMissingTitle
	}

	body := extractBody(doc)
	if body == "" {
		return Article{}, ErrMissingBody
	}
	if n := utf8.RuneCountInString(body); n < e.cfg.MinBodyLength {
		return Article{}, fmt.Errorf("%w: %d < %d", ErrBodyTooShort, n, e.cfg.MinBodyLength)
	}

	return Article{
		Title:       title,
		Body:        body,
		Author:      extractAuthor(doc),
		PublishedAt: extractDate(doc),
		Tags:        extractTags(doc),
		Summary:     extractSummary(doc, body),
	}, nil
}

// extractTitle tries, in order: an h1 with a title-ish class, the first
// h1 inside the page's article container, and finally the document
// <title> with any trailing site-name suffix stripped.
func extractTitle(doc *goquery.Document) string {
	if h := firstWithClass(doc.Selection, "h1", "title", "header", "heading"); h != nil {
		if t := strings.TrimSpace(h.Text()); t != "" {
			return t
		}
	}

	if container := doc.Find("article").First(); container.Length() > 0 {
		if t := strings.TrimSpace(container.Find("h1").First().Text()); t != "" {
			return t
		}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return ""
	}
	if i := strings.Index(title, " | "); i >= 0 {
		return strings.TrimSpace(title[:i])
	}
	if i := strings.Index(title, " - "); i >= 0 {
		return strings.TrimSpace(title[:i])
	}
	return title
}

// extractBody locates a content root (article element, or the largest
// content-classed div/section), strips boilerplate descendants, and
// joins qualifying paragraphs with blank lines. Without a content root
// it falls back to scanning every paragraph in the document.
func extractBody(doc *goquery.Document) string {
	root := doc.Find("article").First()
	if root.Length() == 0 {
		if candidate := largestContentCandidate(doc); candidate != nil {
			root = candidate
		}
	}

	if root.Length() > 0 {
		clone := root.Clone()
		clone.Find("script,style,nav,header,footer,aside").Remove()
		return joinParagraphs(clone, minParagraphRunes)
	}

	return joinParagraphs(doc.Selection, fallbackParagraphRunes)
}

// largestContentCandidate returns the div/section with a content-ish
// class holding the most visible text. Iteration is in document order
// and ties keep the earlier element.
func largestContentCandidate(doc *goquery.Document) *goquery.Selection {
	var best *goquery.Selection
	bestLen := -1
	doc.Find("div,section").Each(func(_ int, s *goquery.Selection) {
		if !classMatches(s, "content", "article", "post") {
			return
		}
		if n := utf8.RuneCountInString(s.Text()); n > bestLen {
			best = s
			bestLen = n
		}
	})
	return best
}

func joinParagraphs(root *goquery.Selection, minRunes int) string {
	var parts []string
	root.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		if text != "" && utf8.RuneCountInString(text) > minRunes {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}

// extractAuthor tries author metadata, schema.org markup, and common
// byline classes. Author is optional; an empty result is not a failure.
func extractAuthor(doc *goquery.Document) string {
	if content, ok := doc.Find(`meta[name="author"]`).First().Attr("content"); ok {
		if t := strings.TrimSpace(content); t != "" {
			return t
		}
	}

	if author := doc.Find(`[itemprop="author"]`).First(); author.Length() > 0 {
		if name := author.Find(`[itemprop="name"]`).First(); name.Length() > 0 {
			return strings.TrimSpace(name.Text())
		}
		return strings.TrimSpace(author.Text())
	}

	// Classes are checked in priority order, not document order.
	for _, class := range []string{"author", "byline", "writer"} {
		if el := firstWithClass(doc.Selection, "[class]", class); el != nil {
			return strings.TrimSpace(el.Text())
		}
	}
	return ""
}

// extractDate parses heterogeneous date formats from time elements,
// OpenGraph metadata, and date-classed text. A parse failure at any
// step is not fatal; the cascade simply continues.
func extractDate(doc *goquery.Document) *time.Time {
	if datetime, ok := doc.Find("time").First().Attr("datetime"); ok {
		if t, err := dateparse.ParseAny(datetime); err == nil {
			return &t
		}
	}

	var found *time.Time
	doc.Find(`meta[property="article:published_time"], meta[property="og:published_time"]`).
		EachWithBreak(func(_ int, s *goquery.Selection) bool {
			content, ok := s.Attr("content")
			if !ok {
				return true
			}
			if t, err := dateparse.ParseAny(content); err == nil {
				found = &t
				return false
			}
			return true
		})
	if found != nil {
		return found
	}

	for _, class := range []string{"date", "published", "time", "timestamp"} {
		el := firstWithClass(doc.Selection, "[class]", class)
		if el == nil {
			continue
		}
		if t, err := dateparse.ParseAny(strings.TrimSpace(el.Text())); err == nil {
			return &t
		}
	}
	return nil
}

// extractTags accumulates meta keywords and tag/category elements,
// deduplicating (exact match) while preserving first-seen order.
func extractTags(doc *goquery.Document) []string {
	var tags []string
	seen := make(map[string]struct{})
	add := func(tag string) {
		if tag == "" {
			return
		}
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	if content, ok := doc.Find(`meta[name="keywords"]`).First().Attr("content"); ok {
		for _, keyword := range strings.Split(content, ",") {
			add(strings.TrimSpace(keyword))
		}
	}

	doc.Find("a,span").Each(func(_ int, s *goquery.Selection) {
		if classMatches(s, "tag", "category") {
			add(strings.TrimSpace(s.Text()))
		}
	})
	return tags
}

// extractSummary prefers description metadata and otherwise derives a
// summary from the first paragraph of the already-extracted body,
// truncated to 200 runes including the ellipsis.
func extractSummary(doc *goquery.Document, body string) string {
	if content, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		if t := strings.TrimSpace(content); t != "" {
			return t
		}
	}
	if content, ok := doc.Find(`meta[property="og:description"]`).First().Attr("content"); ok {
		if t := strings.TrimSpace(content); t != "" {
			return t
		}
	}

	if body == "" {
		return ""
	}
	first := body
	if i := strings.Index(body, "\n\n"); i >= 0 {
		first = body[:i]
	}
	first = strings.TrimSpace(first)
	if utf8.RuneCountInString(first) > summaryMaxRunes {
		runes := []rune(first)
		return string(runes[:summaryMaxRunes-len(ellipsis)]) + ellipsis
	}
	return first
}

// classMatches reports whether the selection's class attribute contains
// any of the candidate substrings, case-insensitively.
func classMatches(s *goquery.Selection, candidates ...string) bool {
	class, ok := s.Attr("class")
	if !ok {
		return false
	}
	class = strings.ToLower(class)
	for _, candidate := range candidates {
		if strings.Contains(class, candidate) {
			return true
		}
	}
	return false
}

// firstWithClass returns the first element matching selector (in
// document order) whose class attribute matches any candidate, or nil.
func firstWithClass(root *goquery.Selection, selector string, candidates ...string) *goquery.Selection {
	var found *goquery.Selection
	root.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if classMatches(s, candidates...) {
			found = s
			return false
		}
		return true
	})
	return found
}
