package regexsafe

import (
	"strings"
	"unicode"
)

// minKeywordLength keeps the pre-filter selective; shorter runs match too
// much of the corpus to narrow anything.
const minKeywordLength = 3

// LiteralKeywords extracts literal substrings that any match of the pattern
// must contain, usable as a cheap index-backed pre-filter before the exact
// regex test. The extraction is conservative: when alternation or grouping
// could make a literal optional, it returns nil and the caller scans the
// full candidate set instead. A wrong keyword would silently drop matches; a
// missing keyword only costs speed.
func LiteralKeywords(pattern string) []string {
	// Alternation makes individual literals non-mandatory; a quantified
	// group does the same for everything inside it.
	if strings.ContainsAny(pattern, "|(") {
		return nil
	}

	var keywords []string
	var run []rune

	flush := func() {
		if len(run) >= minKeywordLength {
			keywords = append(keywords, strings.ToLower(string(run)))
		}
		run = run[:0]
	}

	rs := []rune(pattern)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '\\':
			// Escaped character: not a plain literal run member.
			flush()
			i++
		case r == '[':
			flush()
			for i < len(rs) && rs[i] != ']' {
				if rs[i] == '\\' {
					i++
				}
				i++
			}
		case r == '{':
			// Brace quantifier applies to the previous literal.
			if len(run) > 0 {
				run = run[:len(run)-1]
			}
			flush()
			for i < len(rs) && rs[i] != '}' {
				i++
			}
		case r == '*' || r == '?':
			// The preceding literal became optional.
			if len(run) > 0 {
				run = run[:len(run)-1]
			}
			flush()
		case r == '+':
			// At least one occurrence is still required; the run up to and
			// including the repeated rune remains mandatory.
			flush()
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			run = append(run, r)
		default:
			flush()
		}
	}
	flush()
	return keywords
}
