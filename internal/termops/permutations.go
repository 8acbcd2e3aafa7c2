package termops

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/permute"
)

// Freq keys holding a source's total token count and its max feature score.
const (
	CountKey = "__COUNT__"
	MaxKey   = "__MAX__"
)

// IntersectionToken leads every intersection phrase.
const IntersectionToken = "+intersection"

// indexing never persists phrases scoring below this.
const indexableRelevFloor = 0.8

// Freq maps tokens to their occurrence counts within one source, plus the
// CountKey and MaxKey totals.
type Freq map[string]float64

// Count returns the source's total token count.
func (f Freq) Count() float64 { return f[CountKey] }

// Max returns the highest feature score seen in the source.
func (f Freq) Max() float64 { return f[MaxKey] }

// NumberOrder records where a waffled housenumber sat in the query.
type NumberOrder string

const (
	NumberFirst NumberOrder = "first"
	NumberLast  NumberOrder = "last"
)

// PermutationAddress describes the housenumber carried by a permutation.
// Order is empty when the housenumber is the only token.
type PermutationAddress struct {
	Number   string      `json:"number"`
	Position int         `json:"position"`
	Order    NumberOrder `json:"number_order,omitempty"`
}

// Permutation is one subset of query tokens in query order, except that a
// trailing waffled housenumber is moved to the front.
type Permutation struct {
	Tokens  []string            `json:"tokens"`
	Mask    uint32              `json:"mask"`
	Ender   bool                `json:"ender"`
	Relev   float64             `json:"relev"`
	Address *PermutationAddress `json:"address,omitempty"`
}

// Text joins the tokens with spaces.
func (p Permutation) Text() string { return strings.Join(p.Tokens, " ") }

// PermuteOptions tunes Permutations.
type PermuteOptions struct {
	// Weights per token; Relev stays zero without them.
	Weights []float64
	// All generates every subset for up to 8 tokens instead of contiguous
	// runs only. Index time only.
	All bool
	// FrequentWords caps the relevance of permutations made only of these
	// words at 0.8.
	FrequentWords map[string]bool
	// Address marks the housenumber token of a NumTokenize variant.
	Address *NumberRef
}

// Permutations generates the token subsets of terms, full run first.
func Permutations(terms []string, opts PermuteOptions) []Permutation {
	n := len(terms)
	if n > 32 {
		n = 32
	}
	var masks []uint32
	if opts.All && n <= 8 {
		masks = permute.All(n)
	} else {
		masks = permute.Continuous(n)
	}

	out := make([]Permutation, 0, len(masks))
	for _, mask := range masks {
		p := Permutation{
			Mask:   mask,
			Ender:  mask&(1<<(n-1)) != 0,
			Tokens: make([]string, 0, n),
		}
		relev := 0.0
		frequentOnly := len(opts.FrequentWords) > 0
		for j := 0; j < n; j++ {
			if mask&(1<<j) == 0 {
				continue
			}
			p.Tokens = append(p.Tokens, terms[j])
			if j < len(opts.Weights) {
				relev += opts.Weights[j]
			}
			if frequentOnly && !opts.FrequentWords[terms[j]] {
				frequentOnly = false
			}
		}
		if opts.Weights != nil {
			p.Relev = math.Round(relev*5) / 5
			// A permutation of nothing but frequent words is capped whatever
			// its length, the full query included. A one-token query keeps
			// its relevance so the word itself can still be found.
			if frequentOnly && n > 1 {
				p.Relev = math.Min(p.Relev, 0.8)
			}
		}

		moved := false
		if last := len(p.Tokens) - 1; last > 0 && strings.Contains(p.Tokens[last], "#") {
			tok := p.Tokens[last]
			copy(p.Tokens[1:], p.Tokens[:last])
			p.Tokens[0] = tok
			p.Ender = false
			moved = true
		}

		if a := opts.Address; a != nil && a.Position >= 0 && a.Position < 32 && mask&(1<<a.Position) != 0 {
			p.Address = &PermutationAddress{Number: a.Number, Position: a.Position}
			switch {
			case len(p.Tokens) == 1:
			case moved:
				p.Address.Order = NumberLast
			default:
				p.Address.Order = NumberFirst
			}
		}
		out = append(out, p)
	}
	return out
}

// AddressPermutations drops permutations with a waffled housenumber anywhere
// but the first or last position, removes duplicates and orders the rest by
// token count, longest first.
func AddressPermutations(perms []Permutation) []Permutation {
	seen := make(map[string]bool, len(perms))
	out := make([]Permutation, 0, len(perms))
	for _, p := range perms {
		if len(p.Tokens) > 2 && interiorHasNumber(p.Tokens) {
			continue
		}
		key := fmt.Sprintf("%s-%t-%d-%g", strings.Join(p.Tokens, ","), p.Ender, p.Mask, p.Relev)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Tokens) > len(out[j].Tokens)
	})
	return out
}

func interiorHasNumber(tokens []string) bool {
	for _, t := range tokens[1 : len(tokens)-1] {
		if strings.Contains(t, "#") {
			return true
		}
	}
	return false
}

// IntersectionPermutations rewrites "a and b" style queries, where and is
// the source's intersection token, into "+intersection a , b" phrases: one
// per possible end of the cross street. The token must sit strictly inside
// the query.
func IntersectionPermutations(tokens []string, intersection string) []Permutation {
	n := len(tokens)
	if n > 32 {
		n = 32
	}
	at := -1
	for i := 1; i <= n-2; i++ {
		if tokens[i] == intersection {
			at = i
			break
		}
	}
	if at < 0 {
		return nil
	}
	var out []Permutation
	for end := at + 2; end <= n; end++ {
		phrase := make([]string, 0, end+2)
		phrase = append(phrase, IntersectionToken)
		phrase = append(phrase, tokens[:at]...)
		phrase = append(phrase, ",")
		phrase = append(phrase, tokens[at+1:end]...)
		out = append(out, Permutation{
			Tokens: phrase,
			Mask:   uint32(1)<<end - 1,
			Ender:  end == n,
		})
	}
	return out
}

// GetWeights weighs each token by ln(1 + total/tf). Weights sum to 1, or,
// when a waffled housenumber is present, it takes a fixed 0.2 and the rest
// share 0.8. Unknown tokens count as seen once and a missing total as 1.
func GetWeights(tokens []string, freq Freq) []float64 {
	total := freq[CountKey]
	if total == 0 {
		total = 1
	}
	weights := make([]float64, len(tokens))
	sum := 0.0
	numTokens := false
	for i := len(tokens) - 1; i >= 0; i-- {
		if strings.Contains(tokens[i], "#") {
			numTokens = true
			weights[i] = -1
			continue
		}
		tf := freq[tokens[i]]
		if tf == 0 {
			tf = 1
		}
		weights[i] = math.Log(1 + total/tf)
		sum += weights[i]
	}
	for i := len(weights) - 1; i >= 0; i-- {
		switch {
		case weights[i] == -1:
			weights[i] = 0.2
		case numTokens:
			weights[i] = weights[i] / sum * 0.8
		default:
			weights[i] = weights[i] / sum
		}
	}
	return weights
}

// IndexablePhrase is a normalized phrase worth writing to a source's
// phrase index.
type IndexablePhrase struct {
	Relev  float64 `json:"relev"`
	Text   string  `json:"text"`
	Phrase string  `json:"phrase"`
}

// GetIndexablePhrases returns every subset phrase of tokens scoring at least
// 0.8, best first, each phrase once. Intersection phrases are kept whole.
func GetIndexablePhrases(tokens []string, freq Freq, frequentWords map[string]bool) []IndexablePhrase {
	if len(tokens) > 0 && tokens[0] == IntersectionToken {
		text := NormalizeText(strings.Join(tokens, " "))
		return []IndexablePhrase{{Relev: 1, Text: text, Phrase: text}}
	}

	perms := Permutations(tokens, PermuteOptions{
		Weights:       GetWeights(tokens, freq),
		All:           true,
		FrequentWords: frequentWords,
	})
	sort.SliceStable(perms, func(i, j int) bool { return perms[i].Relev > perms[j].Relev })

	seen := make(map[string]bool)
	var phrases []IndexablePhrase
	for _, p := range perms {
		if p.Relev < indexableRelevFloor {
			break
		}
		text := NormalizeText(p.Text())
		if seen[text] {
			continue
		}
		seen[text] = true
		phrases = append(phrases, IndexablePhrase{Relev: p.Relev, Text: text, Phrase: text})
	}
	return phrases
}
