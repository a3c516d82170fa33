// Package mask implements reversible protection of non-translatable
// substrings before text is sent to a model. Formatting control codes,
// printf and brace placeholders, and literal escape sequences are replaced
// by sequential markers that survive translation; Unmask restores them and
// verifies the model did not drop, duplicate, or reorder any.
//
// Masking is pure: no file or network access.
package mask

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/mc-localize/mctrans/asset"
)

// Token records one protected substring and the marker that replaced it.
type Token struct {
	Marker   string
	Original string
}

// MaskedUnit is a TranslationUnit whose protected substrings have been
// replaced by markers. The token map is ordered by position in the source.
type MaskedUnit struct {
	Unit   asset.TranslationUnit
	Masked string
	Tokens []Token
}

// TokenMismatchError reports that the marker count or order in a model
// response does not match the recorded token map. The caller treats this
// as a unit-level rejection, not a batch-level one.
type TokenMismatchError struct {
	UnitID string
	Want   int
	Got    int
}

func (e *TokenMismatchError) Error() string {
	return fmt.Sprintf("unit %s: protected tokens corrupted (want %d markers, got %d in order)",
		e.UnitID, e.Want, e.Got)
}

// Built-in protection rules, applied in order. Earlier rules win when
// matches overlap.
var builtinRules = []*regexp.Regexp{
	// Minecraft § formatting codes (color, bold, reset, ...).
	regexp.MustCompile(`§[0-9a-fk-orA-FK-OR]`),
	// printf-style specifiers: %s, %d, %1$s, %.2f, %%.
	regexp.MustCompile(`%(?:\d+\$)?[-+ #0]*(?:\d+)?(?:\.\d+)?[sdfeEgGxXoc%]`),
	// Brace placeholders: {0}, {count}, {player_name}.
	regexp.MustCompile(`\{[0-9A-Za-z_]+\}`),
	// Literal newline/tab escapes as they appear in lang values.
	regexp.MustCompile(`\\[nt]`),
}

// markerPattern matches the sequential markers emitted by Mask. The
// bracket characters are outside every natural-language alphabet a chat
// model will produce, so collisions with real output are not a concern.
var markerPattern = regexp.MustCompile(`⟦(\d+)⟧`)

// Masker applies the built-in rules plus any user-declared custom patterns.
type Masker struct {
	rules []*regexp.Regexp
}

// New compiles a Masker. Each custom pattern is a regular expression for a
// span that must pass through translation verbatim (glossary markers,
// mod-specific placeholder syntax). Invalid patterns are rejected.
func New(custom []string) (*Masker, error) {
	m := &Masker{rules: builtinRules}
	for _, p := range custom {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("protected pattern %q: %w", p, err)
		}
		m.rules = append(m.rules, re)
	}
	return m, nil
}

type span struct {
	start, end int
}

// Mask replaces every protected substring in the unit's source text with a
// sequential marker and records the originals in order.
func (m *Masker) Mask(u asset.TranslationUnit) MaskedUnit {
	var spans []span
	for _, re := range m.rules {
		for _, loc := range re.FindAllStringIndex(u.Source, -1) {
			if overlaps(spans, loc[0], loc[1]) {
				continue
			}
			spans = append(spans, span{loc[0], loc[1]})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	masked := make([]byte, 0, len(u.Source))
	tokens := make([]Token, 0, len(spans))
	prev := 0
	for i, s := range spans {
		marker := "⟦" + strconv.Itoa(i) + "⟧"
		masked = append(masked, u.Source[prev:s.start]...)
		masked = append(masked, marker...)
		tokens = append(tokens, Token{Marker: marker, Original: u.Source[s.start:s.end]})
		prev = s.end
	}
	masked = append(masked, u.Source[prev:]...)

	return MaskedUnit{Unit: u, Masked: string(masked), Tokens: tokens}
}

// Unmask substitutes the original substrings back into a translated text.
// The markers must appear exactly once each, in their original order; any
// deviation returns a TokenMismatchError and the unit stays untranslated.
func Unmask(translated string, mu MaskedUnit) (string, error) {
	matches := markerPattern.FindAllStringSubmatchIndex(translated, -1)
	if len(matches) != len(mu.Tokens) {
		return "", &TokenMismatchError{UnitID: mu.Unit.ID, Want: len(mu.Tokens), Got: len(matches)}
	}

	out := make([]byte, 0, len(translated))
	prev := 0
	for i, loc := range matches {
		idx, err := strconv.Atoi(translated[loc[2]:loc[3]])
		if err != nil || idx != i {
			return "", &TokenMismatchError{UnitID: mu.Unit.ID, Want: len(mu.Tokens), Got: i}
		}
		out = append(out, translated[prev:loc[0]]...)
		out = append(out, mu.Tokens[i].Original...)
		prev = loc[1]
	}
	out = append(out, translated[prev:]...)
	return string(out), nil
}

func overlaps(spans []span, start, end int) bool {
	for _, s := range spans {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}
