// Package termops turns query and index text into tokens, phrases and
// housenumber variants.
package termops

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
)

// MaxQueryTokens caps the number of tokens NormalizeQuery will emit.
const MaxQueryTokens = 20

// TokenizedQuery is the output of Tokenize. Owner[i] is the position of the
// original token that produced Tokens[i].
type TokenizedQuery struct {
	Tokens     []string `json:"tokens"`
	Separators []string `json:"separators"`
	Owner      []int    `json:"owner"`
	LastWord   bool     `json:"last_word"`
}

// Len returns the number of tokens.
func (q TokenizedQuery) Len() int { return len(q.Tokens) }

func (q TokenizedQuery) validate() error {
	if len(q.Separators) != len(q.Tokens) || len(q.Owner) != len(q.Tokens) {
		return apperrors.InvalidArgumentf("tokenized query has %d tokens, %d separators, %d owners",
			len(q.Tokens), len(q.Separators), len(q.Owner))
	}
	return nil
}

var (
	collapsible  = strings.NewReplacer("\u2018", "", "\u2019", "", "\u02BC", "", "\u02BB", "", "\uFF07", "", "'", "", ".", "", "^", "")
	numericRange = regexp.MustCompile(`^(\d+)(-|/)(\d+)((-|/)(\d+))?[a-z]?$`)
)

// IsWordSeparator reports whether r splits words: whitespace, general and
// supplemental punctuation, ASCII punctuation and the fullwidth forms of it.
func IsWordSeparator(r rune) bool {
	switch {
	case unicode.IsSpace(r), r == '\uFEFF':
		return true
	case r >= 0x2000 && r <= 0x206F, r >= 0x2E00 && r <= 0x2E7F:
		return true
	case r >= 0x21 && r <= 0x2F, r >= 0x3A && r <= 0x40, r >= 0x5B && r <= 0x60, r >= 0x7B && r <= 0x7E:
		return true
	case r >= 0xFF01 && r <= 0xFF0F, r >= 0xFF1A && r <= 0xFF20, r >= 0xFF3B && r <= 0xFF40, r >= 0xFF5B && r <= 0xFF65:
		return true
	}
	return false
}

func isCJK(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}

// splitCJK breaks t around every CJK ideograph. It returns nil when t holds
// none, so callers can tell the two cases apart.
func splitCJK(t string) []string {
	if strings.IndexFunc(t, isCJK) < 0 {
		return nil
	}
	var parts []string
	start := 0
	for i, r := range t {
		if !isCJK(r) {
			continue
		}
		if i > start {
			parts = append(parts, t[start:i])
		}
		size := utf8.RuneLen(r)
		parts = append(parts, t[i:i+size])
		start = i + size
	}
	if start < len(t) {
		parts = append(parts, t[start:])
	}
	return parts
}

type tokenBuilder struct {
	tokens     []string
	separators []string
}

func (b *tokenBuilder) push(t, s string) {
	b.tokens = append(b.tokens, t)
	b.separators = append(b.separators, s)
}

// Tokenize lowercases query and splits it into tokens. Numeric compounds
// such as "10-19a" or "1/2" stay whole, CJK ideographs become single-character
// tokens and emoji-only words are dropped. Coordinates are parsed by
// AsReverse; passing lonlat=true is an error.
func Tokenize(query string, lonlat bool) (TokenizedQuery, error) {
	if lonlat {
		return TokenizedQuery{}, apperrors.InvalidArgumentf("tokenize does not parse coordinates, use AsReverse")
	}
	normalized := collapsible.Replace(strings.ToLower(query))
	normalized = strings.TrimLeftFunc(normalized, IsWordSeparator)

	var (
		b       tokenBuilder
		tail    string
		tailSep string
		hasTail bool
	)
	for rest := normalized; rest != ""; {
		wordEnd := strings.IndexFunc(rest, IsWordSeparator)
		if wordEnd < 0 {
			wordEnd = len(rest)
		}
		t := rest[:wordEnd]
		rest = rest[wordEnd:]
		sepEnd := strings.IndexFunc(rest, func(r rune) bool { return !IsWordSeparator(r) })
		if sepEnd < 0 {
			sepEnd = len(rest)
		}
		s := rest[:sepEnd]
		rest = rest[sepEnd:]

		if hasTail {
			combined := tail + tailSep + t
			if (tailSep == "-" || tailSep == "/") && numericRange.MatchString(combined) {
				t = combined
			} else {
				b.push(tail, tailSep)
			}
			hasTail = false
		}

		if t == "" || RemoveEmoji(t) == "" {
			continue
		}

		if parts := splitCJK(t); parts != nil {
			for _, p := range parts {
				b.push(p, "")
			}
			continue
		}

		if s == "-" || s == "/" {
			tail, tailSep, hasTail = t, s, true
			continue
		}
		b.push(t, s)
	}
	if hasTail {
		b.push(tail, tailSep)
	}

	owner := make([]int, len(b.tokens))
	for i := range owner {
		owner[i] = i
	}
	if b.tokens == nil {
		b.tokens, b.separators = []string{}, []string{}
	}
	return TokenizedQuery{Tokens: b.tokens, Separators: b.separators, Owner: owner}, nil
}

// MustTokenize is Tokenize for callers that never pass lonlat.
func MustTokenize(query string) TokenizedQuery {
	q, err := Tokenize(query, false)
	if err != nil {
		panic(err)
	}
	return q
}

// AsReverse parses "lon,lat" when lonlat is set. Both parts must be complete
// finite numbers: "9 a, 10 b" and "1,2,3" are rejected.
func AsReverse(query string, lonlat bool) ([2]float64, bool) {
	var out [2]float64
	if !lonlat {
		return out, false
	}
	parts := strings.SplitN(query, ",", 3)
	if len(parts) != 2 {
		return out, false
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return out, false
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return out, false
		}
		out[i] = v
	}
	return out, true
}

// NormalizeQuery returns a cleaned copy of q: empty tokens are dropped,
// diacritics and emoji removed, whitespace collapsed, multi-word tokens and
// CJK runs re-split with their owner preserved, and the result capped at
// MaxQueryTokens.
func NormalizeQuery(q TokenizedQuery) (TokenizedQuery, error) {
	if err := q.validate(); err != nil {
		return TokenizedQuery{}, fmt.Errorf("normalize query: %w", err)
	}
	out := TokenizedQuery{
		Tokens:     make([]string, 0, len(q.Tokens)),
		Separators: make([]string, 0, len(q.Tokens)),
		Owner:      make([]int, 0, len(q.Tokens)),
		LastWord:   q.LastWord,
	}
	push := func(t, s string, owner int) {
		out.Tokens = append(out.Tokens, t)
		out.Separators = append(out.Separators, s)
		out.Owner = append(out.Owner, owner)
	}

	for i, tok := range q.Tokens {
		if tok == "" {
			continue
		}
		if strings.Contains(tok, " ") {
			words := strings.Fields(NormalizeText(tok))
			remaining := len(q.Tokens) - i - 1
			if len(out.Tokens)+len(words)+remaining <= MaxQueryTokens || len(words) <= 1 {
				for _, w := range words {
					push(w, " ", q.Owner[i])
				}
				continue
			}
			push(strings.Join(words, " "), q.Separators[i], q.Owner[i])
			continue
		}
		text := NormalizeText(tok)
		if text == "" {
			continue
		}
		if parts := splitCJK(text); len(parts) > 1 {
			for _, p := range parts {
				push(p, "", q.Owner[i])
			}
			continue
		}
		push(text, q.Separators[i], q.Owner[i])
	}

	if len(out.Tokens) > MaxQueryTokens {
		out.Tokens = out.Tokens[:MaxQueryTokens]
		out.Separators = out.Separators[:MaxQueryTokens]
		out.Owner = out.Owner[:MaxQueryTokens]
	}
	return out, nil
}

// NormalizeText removes diacritics and emoji, trims s and collapses runs of
// whitespace to a single space.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(RemoveEmoji(RemoveDiacritics(s))), " ")
}

// Normalize tokenizes and normalizes text in one step, returning the tokens.
func Normalize(text string) []string {
	q, err := NormalizeQuery(MustTokenize(text))
	if err != nil {
		return nil
	}
	return q.Tokens
}
