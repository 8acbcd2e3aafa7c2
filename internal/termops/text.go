package termops

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var emojiPattern = regexp.MustCompile(`[#0-9]\x{20E3}|` +
	`[\x{A9}\x{AE}\x{203C}\x{2047}-\x{2049}\x{2122}\x{2139}\x{3030}\x{303D}\x{3297}\x{3299}` +
	`\x{2190}-\x{21FF}\x{2300}-\x{23FF}\x{2460}-\x{24FF}\x{25A0}-\x{25FF}\x{2600}-\x{27BF}` +
	`\x{2900}-\x{297F}\x{2B00}-\x{2BF0}\x{1F000}-\x{1F6FF}][\x{FE00}-\x{FEFF}]?`)

// RemoveEmoji strips keycaps, pictographs, arrows, dingbats and enclosed
// alphanumerics from s, along with any variation selector that follows them.
func RemoveEmoji(s string) string {
	return emojiPattern.ReplaceAllString(s, "")
}

// letters that carry a diacritic without decomposing under NFD.
var foldTable = map[rune]rune{
	'ø': 'o', 'Ø': 'O',
	'ł': 'l', 'Ł': 'L',
	'đ': 'd', 'Đ': 'D',
	'ħ': 'h', 'Ħ': 'H',
	'ı': 'i',
	'ŧ': 't', 'Ŧ': 'T',
}

func fold(r rune) rune {
	if f, ok := foldTable[r]; ok {
		return f
	}
	return r
}

// RemoveDiacritics drops combining marks from Latin and Greek
// letters and folds the few letters whose stroke does not decompose. Marks
// on other scripts, and strings made only of marks, are left alone.
func RemoveDiacritics(s string) string {
	if isASCII(s) {
		return s
	}
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	stripBase := false
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			if stripBase {
				continue
			}
		} else {
			stripBase = unicode.In(r, unicode.Latin, unicode.Greek)
		}
		b.WriteRune(r)
	}
	// chained transformers hold buffers, so one is built per call
	t := transform.Chain(runes.Map(fold), norm.NFC)
	out, _, err := transform.String(t, b.String())
	if err != nil {
		return s
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
