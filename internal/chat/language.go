package chat

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Language is a reply language tag.
type Language string

const (
	LanguageUzbek   Language = "uz"
	LanguageRussian Language = "ru"
	LanguageEnglish Language = "en"
)

// DefaultLanguage is used when no keyword set matches.
const DefaultLanguage = LanguageUzbek

// detectionOrder is the fixed keyword-set priority: Cyrillic Russian first,
// then Latin-script Uzbek, then English, whose short keywords overlap most.
var detectionOrder = []Language{LanguageRussian, LanguageUzbek, LanguageEnglish}

//go:embed locales.yaml
var localesYAML []byte

type locale struct {
	// Substring keywords match anywhere in the text, not only as whole words.
	Substring   bool     `yaml:"substring"`
	Keywords    []string `yaml:"keywords"`
	Instruction string   `yaml:"instruction"`
	Fallback    string   `yaml:"fallback"`
}

type localeCatalog struct {
	Languages map[Language]locale `yaml:"languages"`
}

var locales = mustLoadLocales(localesYAML)

func mustLoadLocales(raw []byte) localeCatalog {
	catalog, err := parseLocales(raw)
	if err != nil {
		panic(err)
	}
	return catalog
}

func parseLocales(raw []byte) (localeCatalog, error) {
	var catalog localeCatalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return localeCatalog{}, fmt.Errorf("parse locales: %w", err)
	}
	for _, lang := range detectionOrder {
		loc, ok := catalog.Languages[lang]
		if !ok || loc.Instruction == "" || loc.Fallback == "" {
			return localeCatalog{}, fmt.Errorf("locale %q is incomplete", lang)
		}
		for i, kw := range loc.Keywords {
			loc.Keywords[i] = normalizeKeyword(kw)
		}
	}
	return catalog, nil
}

// DetectLanguage picks the reply language from the message text. It is a pure
// function of the lower-cased input.
func DetectLanguage(text string) Language {
	normalized := normalizeText(text)
	if normalized == "" {
		return DefaultLanguage
	}
	words := strings.Fields(normalized)
	padded := " " + normalized + " "
	uzbekCyrillic := strings.ContainsAny(normalized, uzbekCyrillicLetters)
	for _, lang := range detectionOrder {
		loc := locales.Languages[lang]
		substring := loc.Substring && !uzbekCyrillic
		for _, kw := range loc.Keywords {
			if substring && kw != "" && strings.Contains(normalized, strings.TrimSuffix(kw, "*")) {
				return lang
			}
			if keywordMatches(padded, words, kw) {
				return lang
			}
		}
	}
	if !uzbekCyrillic && hasCyrillic(normalized) {
		return LanguageRussian
	}
	return DefaultLanguage
}

// uzbekCyrillicLetters appear in Uzbek Cyrillic but never in Russian.
const uzbekCyrillicLetters = "ўқғҳ"

func hasCyrillic(text string) bool {
	for _, r := range text {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

// LanguageInstruction returns the reply-language directive.
func LanguageInstruction(lang Language) string {
	return localeFor(lang).Instruction
}

// FallbackText returns the localized "not covered by our materials" reply.
func FallbackText(lang Language) string {
	return localeFor(lang).Fallback
}

func localeFor(lang Language) locale {
	if loc, ok := locales.Languages[lang]; ok {
		return loc
	}
	return locales.Languages[DefaultLanguage]
}

func keywordMatches(padded string, words []string, kw string) bool {
	if kw == "" {
		return false
	}
	if stem, ok := strings.CutSuffix(kw, "*"); ok {
		for _, word := range words {
			if strings.HasPrefix(word, stem) {
				return true
			}
		}
		return false
	}
	return strings.Contains(padded, " "+kw+" ")
}

func normalizeKeyword(kw string) string {
	if stem, ok := strings.CutSuffix(strings.TrimSpace(kw), "*"); ok {
		stem = normalizeText(stem)
		if stem == "" {
			return ""
		}
		return stem + "*"
	}
	return normalizeText(kw)
}

// normalizeText lower-cases text, folds apostrophe variants and turns every
// other non-alphanumeric rune into a single space.
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range strings.ToLower(text) {
		switch {
		case r == '\'' || r == '’' || r == 'ʻ' || r == 'ʼ' || r == '`' || r == '‘':
			b.WriteRune('\'')
			space = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
