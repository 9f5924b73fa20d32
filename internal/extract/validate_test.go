package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate_Accepts(t *testing.T) {
	t.Parallel()

	article := Article{
		Title: "A Perfectly Reasonable Headline",
		Body:  strings.Repeat("body text ", 15),
	}
	require.NoError(t, Validate("https://example.com/a", article))
}

func TestValidate_RejectsShortTitleEvenWithLongBody(t *testing.T) {
	t.Parallel()

	article := Article{
		Title: "Short",
		Body:  strings.Repeat("body text ", 50),
	}
	require.ErrorIs(t, Validate("https://example.com/a", article), ErrTitleBelowMinimum)
}

func TestValidate_RejectsShortBodyEvenWithLongTitle(t *testing.T) {
	t.Parallel()

	article := Article{
		Title: strings.Repeat("headline! ", 5),
		Body:  strings.Repeat("x", 50),
	}
	require.ErrorIs(t, Validate("https://example.com/a", article), ErrBodyBelowMinimum)
}

func TestValidate_TitleLengthCountsTrimmedRunes(t *testing.T) {
	t.Parallel()

	article := Article{
		Title: "   Short    ",
		Body:  strings.Repeat("body text ", 15),
	}
	require.ErrorIs(t, Validate("https://example.com/a", article), ErrTitleBelowMinimum)
}

func TestValidate_RejectsMalformedURL(t *testing.T) {
	t.Parallel()

	article := Article{
		Title: "A Perfectly Reasonable Headline",
		Body:  strings.Repeat("body text ", 15),
	}

	for _, raw := range []string{"", "example.com/no-scheme", "https://", "::not a url::"} {
		require.ErrorIs(t, Validate(raw, article), ErrInvalidSourceURL, "url %q", raw)
	}
}
