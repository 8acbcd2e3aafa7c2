package termops

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
)

// MinNumTokenVersion is the oldest index version whose housenumber
// waffling NumTokenize understands.
const MinNumTokenVersion = 3

// housenumber shapes: 10, 10a, 10-19a, 6n23, w350n5337 and 10к2с3.
var addressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d+[a-z]?$`),
	regexp.MustCompile(`^(\d+)-(\d+)[a-z]?$`),
	regexp.MustCompile(`^(\d+)([nsew])(\d+)[a-z]?$`),
	regexp.MustCompile(`^([nesw])(\d+)([nesw]\d+)?$`),
	regexp.MustCompile(`^[0-9]+[a-zа-я]?(к[0-9]+)?(с[0-9]+)?$`),
}

// Address reports whether token is shaped like a housenumber.
func Address(token string) (string, bool) {
	for _, p := range addressPatterns {
		if p.MatchString(token) {
			return token, true
		}
	}
	return "", false
}

// ParseSemiNumber extracts the digits of s as an integer: "10a" is 10 and
// "n45w12" is 4512. It fails when s holds no digits.
func ParseSemiNumber(s string) (int, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// NumTokenV3 waffles a numeric string into its bucket token: one and two
// digit numbers become "#" and "##", three digits keep the first digit and
// longer numbers keep the first two ("3566" is "35##").
func NumTokenV3(s string) string {
	switch n := len(s); {
	case n == 0:
		return ""
	case n == 1:
		return "#"
	case n == 2:
		return "##"
	case n == 3:
		return s[:1] + "##"
	default:
		return s[:2] + strings.Repeat("#", n-2)
	}
}

// HousenumDoc carries the housenumber data of one address feature. Range
// slices are indexed by geometry, then by segment.
type HousenumDoc struct {
	AddressNumbers [][]string
	RangeType      string
	LFromHN        [][]string
	LToHN          [][]string
	RFromHN        [][]string
	RToHN          [][]string
	Geometries     int
}

// GetHousenumRangeV3 returns the sorted set of waffled tokens covering every
// housenumber in doc, or nil when doc has none. Ranges are walked in steps of
// 10 below 10 and 100 above instead of number by number.
func GetHousenumRangeV3(doc HousenumDoc) []string {
	used := make(map[string]bool)
	var ranges []string
	add := func(tok string) {
		if !used[tok] {
			used[tok] = true
			ranges = append(ranges, tok)
		}
	}

	for _, numbers := range doc.AddressNumbers {
		for _, n := range numbers {
			v, ok := ParseSemiNumber(n)
			if !ok {
				continue
			}
			add(NumTokenV3(strconv.Itoa(v)))
		}
	}

	if doc.RangeType != "" {
		pairs := [][2][][]string{{doc.LFromHN, doc.LToHN}, {doc.RFromHN, doc.RToHN}}
		for g := 0; g < doc.Geometries; g++ {
			for _, pair := range pairs {
				from, to := pair[0], pair[1]
				if g >= len(from) || g >= len(to) {
					continue
				}
				a, b := from[g], to[g]
				for k := 0; k < len(a) && k < len(b); k++ {
					va, okA := ParseSemiNumber(a[k])
					vb, okB := ParseSemiNumber(b[k])
					if !okA || !okB {
						continue
					}
					lo, hi := min(va, vb), max(va, vb)
					add(NumTokenV3(strconv.Itoa(hi)))
					for v := lo; v < hi; {
						add(NumTokenV3(strconv.Itoa(v)))
						if v < 10 {
							v += 10
						} else {
							v += 100
						}
					}
				}
			}
		}
	}

	sort.Strings(ranges)
	return ranges
}

// ParseNumberLists decodes housenumber lists as stored on features: a JSON
// array of arrays (or a string holding one) whose leaves are strings,
// numbers or null. Nulls become empty strings.
func ParseNumberLists(raw json.RawMessage) ([][]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
	}
	var lists [][]any
	if err := json.Unmarshal(raw, &lists); err != nil {
		return nil, fmt.Errorf("parse housenumber lists: %w", err)
	}
	out := make([][]string, len(lists))
	for i, list := range lists {
		out[i] = make([]string, len(list))
		for j, v := range list {
			switch t := v.(type) {
			case string:
				out[i][j] = t
			case float64:
				out[i][j] = strconv.FormatFloat(t, 'f', -1, 64)
			}
		}
	}
	return out, nil
}

// NumberRef points at the housenumber token a variant was built from.
type NumberRef struct {
	Number   string `json:"number"`
	Position int    `json:"position"`
}

// NumVariant is a copy of the query with one housenumber waffled.
type NumVariant struct {
	Tokens  []string  `json:"tokens"`
	Address NumberRef `json:"address"`
}

// NumTokenize returns one variant per housenumber-shaped token, with that
// token replaced by its waffled form.
func NumTokenize(tokens []string, version int) ([]NumVariant, error) {
	if version < MinNumTokenVersion {
		return nil, apperrors.InvalidArgumentf("source version %d is unsupported", version)
	}
	var out []NumVariant
	for i, tok := range tokens {
		addr, ok := Address(tok)
		if !ok {
			continue
		}
		num, ok := ParseSemiNumber(addr)
		if !ok {
			continue
		}
		replaced := append([]string(nil), tokens...)
		replaced[i] = NumTokenV3(strconv.Itoa(num))
		out = append(out, NumVariant{Tokens: replaced, Address: NumberRef{Number: tok, Position: i}})
	}
	return out, nil
}

// NumTokenizePrefix treats a lone numeric token as the prefix of a longer
// housenumber and returns the waffled forms it could take if one or two
// digits were still to be typed. Variants equal to the input are skipped.
func NumTokenizePrefix(tokens []string, version int) []NumVariant {
	if len(tokens) != 1 || version < MinNumTokenVersion {
		return nil
	}
	addr, ok := Address(tokens[0])
	if !ok {
		return nil
	}
	num, ok := ParseSemiNumber(addr)
	if !ok {
		return nil
	}
	str := strconv.Itoa(num)
	seen := make(map[string]bool, 3)
	var out []NumVariant
	for _, suffix := range []string{"", "0", "00"} {
		waffled := NumTokenV3(str + suffix)[:len(str)]
		if seen[waffled] {
			continue
		}
		seen[waffled] = true
		if waffled == tokens[0] {
			continue
		}
		out = append(out, NumVariant{Tokens: []string{waffled}, Address: NumberRef{Number: tokens[0], Position: 0}})
	}
	return out
}

// MaskAddress returns the first housenumber-shaped query token inside mask
// that is not already accounted for by the matched cover text.
func MaskAddress(query []string, coverText string, mask uint32) (NumberRef, bool) {
	cover := make(map[string]bool)
	for _, t := range MustTokenize(coverText).Tokens {
		cover[t] = true
	}
	for i, tok := range query {
		if i >= 32 || mask&(1<<i) == 0 {
			continue
		}
		if cover[tok] {
			delete(cover, tok)
			continue
		}
		if addr, ok := Address(tok); ok {
			return NumberRef{Number: addr, Position: i}, true
		}
	}
	return NumberRef{}, false
}

// IsAddressNumber reports whether tokens form a single word that leads with
// a waffled number.
func IsAddressNumber(tokens []string) bool {
	text := strings.Join(tokens, " ")
	first, _, _ := strings.Cut(text, " ")
	return strings.Contains(first, "#") && strings.IndexFunc(text, isSpace) < 0
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v'
}

// FeatureID maps a feature id into the 20-bit id space of the grid codec.
func FeatureID(id int64) uint32 {
	u := uint64(id)
	if id < 0 {
		u = uint64(-(id + 1)) + 1
	}
	return uint32(u % (1 << 20))
}

// Encode3BitLogScale quantizes num against max into 0..7 on a log scale.
func Encode3BitLogScale(num, max float64) int {
	if num <= 0 || max == 0 {
		return 0
	}
	if num == 1 {
		return 1
	}
	v := math.Ceil(7 * float64(float32(math.Log(num))) / float64(float32(math.Log(max))))
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 7:
		return 7
	}
	return int(v)
}

// Decode3BitLogScale maps a 3-bit log score back onto the 0..max scale.
func Decode3BitLogScale(num, max float64) float64 {
	if num == 0 || max == 0 {
		return 0
	}
	return math.Round(math.Pow(max, num/7))
}
