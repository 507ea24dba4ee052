// Package normalize canonicalizes raw page content ahead of hashing. The
// output feeds change detection, so every pass must be deterministic: same
// input and options always produce the same text, on any platform.
package normalize

import (
	"html"
	"regexp"
	"strings"
)

// Options toggles the individual normalization passes. Each pass is
// independent of the others.
type Options struct {
	StripMarkup        bool `mapstructure:"strip_markup"`
	StripTimestamps    bool `mapstructure:"strip_timestamps"`
	StripAds           bool `mapstructure:"strip_ads"`
	CanonicalizeURLs   bool `mapstructure:"canonicalize_urls"`
	CollapseWhitespace bool `mapstructure:"collapse_whitespace"`
	Lowercase          bool `mapstructure:"lowercase"`
}

// Default returns the option set used for change detection: every pass on.
func Default() Options {
	return Options{
		StripMarkup:        true,
		StripTimestamps:    true,
		StripAds:           true,
		CanonicalizeURLs:   true,
		CollapseWhitespace: true,
		Lowercase:          true,
	}
}

// Pre-compiled regular expressions for the normalization passes.
var (
	scriptTag         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag       = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag           = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag            = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	htmlComments      = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockElements     = regexp.MustCompile(`(?i)</(p|div|br|hr|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	openBlockElements = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	brTags            = regexp.MustCompile(`(?i)<br\s*/?>`)
	hrTags            = regexp.MustCompile(`(?i)<hr\s*/?>`)
	allTags           = regexp.MustCompile(`<[^>]+>`)

	isoTimestamps = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}(?:[Tt ]\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:[Zz]|[+-]\d{2}:?\d{2})?)?\b`)
	slashDates    = regexp.MustCompile(`\b\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}\b`)

	adMarkers = regexp.MustCompile(`(?i)\b(?:advertisements?|sponsored\s+(?:content|links?|post)|sponsored\s+by\s+\S+|paid\s+promotion|promoted\s+content)\b`)

	urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

	multiSpaces = regexp.MustCompile(`[ \t\r]+`)
)

// Normalize applies the enabled passes in a fixed order: markup strip,
// advertisement markers, timestamps, URL canonicalization, lowercasing,
// whitespace collapse. The result is idempotent: normalizing an already
// normalized string with the same options is a no-op.
func Normalize(raw string, opts Options) string {
	content := raw
	if opts.StripMarkup {
		content = stripMarkup(content)
	}
	if opts.StripAds {
		content = adMarkers.ReplaceAllString(content, " ")
	}
	if opts.StripTimestamps {
		content = isoTimestamps.ReplaceAllString(content, " ")
		content = slashDates.ReplaceAllString(content, " ")
	}
	if opts.CanonicalizeURLs {
		content = urlPattern.ReplaceAllStringFunc(content, canonicalizeURL)
	}
	if opts.Lowercase {
		content = strings.ToLower(content)
	}
	if opts.CollapseWhitespace {
		content = collapseWhitespace(content)
	}
	return strings.TrimSpace(content)
}

// stripMarkup removes non-content blocks, converts block boundaries to
// newlines, and strips remaining tags. Entity decoding and tag stripping
// repeat until stable so decoded entities cannot reintroduce tags.
func stripMarkup(content string) string {
	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = noscriptTag.ReplaceAllString(content, "")
	content = headTag.ReplaceAllString(content, "")
	content = svgTag.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")

	content = openBlockElements.ReplaceAllString(content, "\n")
	content = blockElements.ReplaceAllString(content, "\n")
	content = brTags.ReplaceAllString(content, "\n")
	content = hrTags.ReplaceAllString(content, "\n")

	for {
		next := allTags.ReplaceAllString(content, "")
		next = html.UnescapeString(next)
		if next == content {
			return content
		}
		content = next
	}
}

// canonicalizeURL drops the query string and fragment from a matched URL.
func canonicalizeURL(match string) string {
	if i := strings.IndexAny(match, "?#"); i >= 0 {
		return match[:i]
	}
	return match
}

// collapseWhitespace squeezes horizontal runs to single spaces, trims each
// line, and drops empty lines. One line per block remains, which the diff
// layer treats as a region boundary.
func collapseWhitespace(content string) string {
	content = multiSpaces.ReplaceAllString(content, " ")
	lines := strings.Split(content, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
