package extract

import (
	"errors"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Acceptance thresholds applied after extraction.
const (
	minTitleRunes = 10
	minBodyRunes  = 100
)

// Validation rejection reasons.
var (
	ErrTitleBelowMinimum = errors.New("title below minimum length")
	ErrBodyBelowMinimum  = errors.New("body below minimum length")
	ErrInvalidSourceURL  = errors.New("source url is not well-formed")
)

// Validate applies the accept/reject gate to an extracted article. It
// returns nil for acceptable articles and a rejection reason otherwise;
// rejections are meant for caller logging, not escalation.
func Validate(sourceURL string, article Article) error {
	if utf8.RuneCountInString(strings.TrimSpace(article.Title)) < minTitleRunes {
		return ErrTitleBelowMinimum
	}
	if utf8.RuneCountInString(strings.TrimSpace(article.Body)) < minBodyRunes {
		return ErrBodyBelowMinimum
	}
	u, err := url.Parse(sourceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidSourceURL
	}
	return nil
}
