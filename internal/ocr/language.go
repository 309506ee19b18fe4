package ocr

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Language is a recognizer language: a BCP-47 tag plus a display name.
type Language struct {
	Tag         string
	DisplayName string
}

func (l Language) String() string {
	if l.DisplayName == "" {
		return l.Tag
	}
	return fmt.Sprintf("%s (%s)", l.DisplayName, l.Tag)
}

// ParseLanguage canonicalizes a BCP-47 tag. Underscore separators as used in
// POSIX locales ("en_US") are accepted.
func ParseLanguage(tag string) (Language, error) {
	t, err := parseTag(tag)
	if err != nil {
		return Language{}, err
	}
	return languageOf(t), nil
}

func parseTag(tag string) (language.Tag, error) {
	tag = strings.TrimSpace(tag)
	// POSIX locales may carry an encoding or modifier suffix.
	if i := strings.IndexAny(tag, ".@"); i >= 0 {
		tag = tag[:i]
	}
	tag = strings.ReplaceAll(tag, "_", "-")
	if tag == "" || tag == "C" || tag == "POSIX" {
		return language.Und, fmt.Errorf("%w: empty language tag", ErrLanguageUnavailable)
	}
	t, err := language.Parse(tag)
	if err != nil {
		return language.Und, fmt.Errorf("parse language %q: %w", tag, err)
	}
	return t, nil
}

func languageOf(t language.Tag) Language {
	return Language{
		Tag:         t.String(),
		DisplayName: display.English.Tags().Name(t),
	}
}

// Tesseract names a few models by script rather than by base language.
var scriptModels = map[string]string{
	"zh-Hans": "chi_sim",
	"zh-Hant": "chi_tra",
	"sr-Latn": "srp_latn",
	"az-Cyrl": "aze_cyrl",
	"uz-Cyrl": "uzb_cyrl",
}

// Catalog entries that are not natural languages.
var nonLanguageModels = map[string]bool{
	"osd":  true,
	"equ":  true,
	"snum": true,
}

// TesseractCode maps a BCP-47 tag to the traineddata name Tesseract loads
// for it ("en-US" -> "eng", "zh-TW" -> "chi_tra").
func TesseractCode(tag string) (string, error) {
	t, err := parseTag(tag)
	if err != nil {
		return "", err
	}
	base, conf := t.Base()
	if conf == language.No {
		return "", fmt.Errorf("%w: %q has no base language", ErrLanguageUnavailable, tag)
	}
	script, _ := t.Script()
	if code, ok := scriptModels[base.String()+"-"+script.String()]; ok {
		return code, nil
	}
	iso3 := base.ISO3()
	if iso3 == "" {
		return "", fmt.Errorf("%w: no ISO 639-3 code for %q", ErrLanguageUnavailable, tag)
	}
	return iso3, nil
}

// LanguageFromTesseract maps a traineddata name back to a Language. It
// reports false for non-language models (osd, equ) and for variants without
// a BCP-47 equivalent (for example vertical-text models).
func LanguageFromTesseract(code string) (Language, bool) {
	if nonLanguageModels[code] {
		return Language{}, false
	}
	for tag, model := range scriptModels {
		if model == code {
			return languageOf(language.MustParse(tag)), true
		}
	}

	parts := strings.SplitN(code, "_", 2)
	base, err := language.ParseBase(parts[0])
	if err != nil {
		return Language{}, false
	}
	var t language.Tag
	if len(parts) == 2 {
		script, err := language.ParseScript(parts[1])
		if err != nil {
			return Language{}, false
		}
		t, err = language.Compose(base, script)
		if err != nil {
			return Language{}, false
		}
	} else {
		t, err = language.Compose(base)
		if err != nil {
			return Language{}, false
		}
	}
	return languageOf(t), true
}
