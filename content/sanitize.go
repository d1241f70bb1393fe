package content

import (
	"regexp"
	"strings"
)

// each rule runs in order, later rules assume earlier ones already ran
var sanitizeRules = []*regexp.Regexp{
	// Strong's numbers
	regexp.MustCompile(`<S>[\d\s,]+</S>`),
	regexp.MustCompile(`(?i)<p[^>]*>`),
	regexp.MustCompile(`(?i)</p>`),
	// unterminated paragraph markers
	regexp.MustCompile(`(?i)<p`),
	regexp.MustCompile(`(?i)<pb\s*/>`),
	regexp.MustCompile(`(?i)</?i[^>]*>`),
	// footnotes such as <f>[7†]</f>
	regexp.MustCompile(`(?i)<f>.*?</f>`),
	regexp.MustCompile(`<[^>]+>`),
	// bare footnote markers: [7], [10a], [ 11 ]
	regexp.MustCompile(`\[\s*\d+[a-zA-Z]?†?\s*\]`),
	regexp.MustCompile(`[^\p{L}\p{N}_\s\p{Zs}.,;:'"!?()\-–—\[\]{}<>/]`),
}

// any whitespace run, including no-break and other Unicode spaces
var collapseSpace = regexp.MustCompile(`[\s\p{Zs}]+`)

// Sanitize strips markup and footnote debris from raw verse text.
func Sanitize(text string) string {
	for _, rule := range sanitizeRules {
		text = rule.ReplaceAllString(text, "")
	}
	text = collapseSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
