package common

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"
)

const (
	LangEnglish = "en"
	LangRussian = "ru"
)

var (
	cyrillicRe    = regexp.MustCompile(`[А-Яа-яЁё]`)
	underscoresRe = regexp.MustCompile(`_+`)
)

// One-to-many transliteration for Russian wake phrases. Hard and soft
// signs map to nothing.
var ruTranslit = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "yo",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "kh", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "shch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
}

// Normalize maps a free-text wake phrase to its canonical id and language
// tag. The id becomes the persisted artifact name, so the mapping must be
// deterministic across runs and processes: identical phrase, identical id.
// Output alphabet is exactly [a-z0-9_].
func Normalize(phrase string) (id, lang string) {
	lang = DetectLanguage(phrase)

	id = slugify(phrase)
	if id == "" {
		sum := sha1.Sum([]byte(phrase))
		id = "wakeword_" + hex.EncodeToString(sum[:])[:8]
	}

	return id, lang
}

// DetectLanguage tags a phrase "ru" if it contains any Cyrillic letter,
// "en" otherwise.
func DetectLanguage(phrase string) string {
	if cyrillicRe.MatchString(phrase) {
		return LangRussian
	}
	return LangEnglish
}

func slugify(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	for _, r := range lower {
		if t, ok := ruTranslit[r]; ok {
			b.WriteString(t)
			continue
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '_':
			b.WriteByte('_')
		default:
			b.WriteByte('_')
		}
	}

	slug := underscoresRe.ReplaceAllString(b.String(), "_")
	return strings.Trim(slug, "_")
}
