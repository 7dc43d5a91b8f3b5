// Package regexsafe validates user-supplied search patterns before they are
// ever handed to the regex engine. Validation is purely static: a pattern is
// analyzed, never executed, so a hostile pattern cannot stall the analyzer
// itself. The checks trade false positives for zero false negatives on the
// catastrophic-backtracking classes they target.
package regexsafe

import (
	"errors"
	"fmt"
	"regexp"
	"regexp/syntax"
	"strings"
)

var (
	ErrPatternEmpty   = errors.New("regexsafe: empty pattern")
	ErrPatternTooLong = errors.New("regexsafe: pattern too long")
	ErrPatternSyntax  = errors.New("regexsafe: pattern does not compile")
	ErrPatternUnsafe  = errors.New("regexsafe: unsafe pattern")
)

const DefaultMaxLength = 1000

// Analyzer runs an ordered list of validators over a pattern. The first
// violation wins; later validators never see a pattern an earlier one
// rejected, so each can assume the pattern is non-empty, bounded, and
// syntactically valid.
type Analyzer struct {
	maxLength  int
	validators []func(pattern string) error
}

// New constructs an Analyzer with the given maximum pattern length.
func New(maxLength int) *Analyzer {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	a := &Analyzer{maxLength: maxLength}
	a.validators = []func(string) error{
		a.checkEmpty,
		a.checkLength,
		checkSyntax,
		checkNestedQuantifiers,
		checkQuantifiedAlternation,
	}
	return a
}

// Validate returns nil if the pattern may be compiled and executed.
func (a *Analyzer) Validate(pattern string) error {
	for _, validate := range a.validators {
		if err := validate(pattern); err != nil {
			return err
		}
	}
	return nil
}

// Reason maps a validation error to a short metric label.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrPatternEmpty):
		return "empty"
	case errors.Is(err, ErrPatternTooLong):
		return "too_long"
	case errors.Is(err, ErrPatternSyntax):
		return "syntax"
	case errors.Is(err, ErrPatternUnsafe):
		return "unsafe"
	default:
		return "other"
	}
}

func (a *Analyzer) checkEmpty(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return ErrPatternEmpty
	}
	return nil
}

func (a *Analyzer) checkLength(pattern string) error {
	if len(pattern) > a.maxLength {
		return fmt.Errorf("%w: %d > %d", ErrPatternTooLong, len(pattern), a.maxLength)
	}
	return nil
}

func checkSyntax(pattern string) error {
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("%w: %v", ErrPatternSyntax, err)
	}
	return nil
}

// checkNestedQuantifiers rejects a repetition whose body itself repeats,
// the (a+)+ / (a*)* / (x+x+)+y family.
func checkNestedQuantifiers(pattern string) error {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPatternSyntax, err)
	}
	if hasNestedRepeat(re) {
		return ErrPatternUnsafe
	}
	return nil
}

// checkQuantifiedAlternation rejects a repetition over an alternation,
// the (a|aa)+ family that nested-quantifier detection misses.
func checkQuantifiedAlternation(pattern string) error {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPatternSyntax, err)
	}
	if hasQuantifiedAlternation(re) {
		return ErrPatternUnsafe
	}
	return nil
}

func isRepeat(op syntax.Op) bool {
	return op == syntax.OpStar || op == syntax.OpPlus || op == syntax.OpRepeat
}

func isInnerRepeat(op syntax.Op) bool {
	// A (a?)* inner question mark explodes the same way an inner star does.
	return isRepeat(op) || op == syntax.OpQuest
}

func hasNestedRepeat(re *syntax.Regexp) bool {
	if isRepeat(re.Op) {
		for _, sub := range re.Sub {
			if containsRepeat(sub) {
				return true
			}
		}
	}
	for _, sub := range re.Sub {
		if hasNestedRepeat(sub) {
			return true
		}
	}
	return false
}

func containsRepeat(re *syntax.Regexp) bool {
	if isInnerRepeat(re.Op) {
		return true
	}
	for _, sub := range re.Sub {
		if containsRepeat(sub) {
			return true
		}
	}
	return false
}

func hasQuantifiedAlternation(re *syntax.Regexp) bool {
	if isRepeat(re.Op) {
		for _, sub := range re.Sub {
			if containsAlternation(sub) {
				return true
			}
		}
	}
	for _, sub := range re.Sub {
		if hasQuantifiedAlternation(sub) {
			return true
		}
	}
	return false
}

func containsAlternation(re *syntax.Regexp) bool {
	if re.Op == syntax.OpAlternate {
		return true
	}
	for _, sub := range re.Sub {
		if containsAlternation(sub) {
			return true
		}
	}
	return false
}
