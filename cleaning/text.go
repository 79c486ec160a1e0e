package cleaning

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NullValue replaces every flavour of missing value.
const NullValue = "n.d."

var (
	lineBreak = regexp.MustCompile(`\r?\n`)
	// A comma or period glued to the next word.
	gluedPunct = regexp.MustCompile(`[,.]([a-zA-Zá-úÁ-Ú])`)

	nullMarkers = map[string]bool{"": true, "undefined": true, "null": true, "-": true}

	asciiFolds = strings.NewReplacer(
		"ß", "ss", "æ", "ae", "Æ", "AE", "ø", "o", "Ø", "O", "đ", "d", "Đ", "D", "ł", "l", "Ł", "L",
		"“", `"`, "”", `"`, "‘", "'", "’", "'", "–", "-", "—", "-", "…", "...", "¡", "!", "¿", "?",
		" ", " ",
	)
)

// ToASCII strips diacritics and folds common non-ASCII symbols. Other
// non-ASCII runes are dropped.
func ToASCII(s string) string {
	if isASCII(s) {
		return s
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = asciiFolds.Replace(out)
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, out)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// JoinLines replaces line breaks with single spaces.
func JoinLines(s string) string {
	return lineBreak.ReplaceAllString(s, " ")
}

// CollapsePunctuation removes runs of two or more commas or periods that do
// not precede a word, shortens longer runs that do precede one to their last
// mark, and then splits any mark glued to a following letter with a space.
func CollapsePunctuation(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i := 0; i < len(rs); {
		if !isMark(rs[i]) {
			b.WriteRune(rs[i])
			i++
			continue
		}
		j := i
		for j < len(rs) && isMark(rs[j]) {
			j++
		}
		n := j - i
		switch {
		case n < 2:
			b.WriteRune(rs[i])
		case j == len(rs) || !(unicode.IsSpace(rs[j]) || isWordLetter(rs[j])):
			// dropped
		case n >= 3:
			b.WriteRune(rs[j-1])
		default:
			b.WriteString(string(rs[i:j]))
		}
		i = j
	}
	return gluedPunct.ReplaceAllString(b.String(), " ${1}")
}

func isMark(r rune) bool { return r == ',' || r == '.' }

func isWordLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= 'á' && r <= 'ú') || (r >= 'Á' && r <= 'Ú')
}

// IsNull reports whether v is a missing-value marker.
func IsNull(v string) bool {
	return nullMarkers[strings.TrimSpace(v)]
}

// NormalizeNull maps missing-value markers to NullValue.
func NormalizeNull(v string) string {
	if IsNull(v) {
		return NullValue
	}
	return v
}

// ParseBool accepts the spellings found in exported sheets.
func ParseBool(v string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "verdadero", "yes", "si", "sí":
		return true, true
	case "false", "0", "falso", "no":
		return false, true
	}
	return false, false
}
