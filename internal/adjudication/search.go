package adjudication

import (
	"fmt"
	"regexp"
	"strings"
)

// wordBoundary matches the edge of the text or any rune that cannot be part
// of a word. RE2's \b only knows ASCII word characters.
const wordBoundary = `[^\p{L}\p{M}\p{N}_]`

// CompileSearch builds a case-insensitive whole-word matcher for a search
// term. An empty or blank term returns nil, which matches everything.
func CompileSearch(term string) (*regexp.Regexp, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	re, err := regexp.Compile(`(?i)(?:^|` + wordBoundary + `)` + regexp.QuoteMeta(term) + `(?:$|` + wordBoundary + `)`)
	if err != nil {
		return nil, fmt.Errorf("failed to compile search term: %w", err)
	}
	return re, nil
}
