package ocr

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jeandeaual/go-locale"
	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"
)

// TesseractFactory creates Tesseract engines from installed traineddata.
type TesseractFactory struct {
	// TessdataPrefix overrides Tesseract's data directory.
	TessdataPrefix string
	Logger         logrus.FieldLogger

	// Hooks for tests. Nil means the real host lookup.
	Locales   func() ([]string, error)
	Installed func() ([]string, error)
	New       func(lang Language, code, tessdata string) (Engine, error)
}

// NewTesseractFactory returns a factory using the default data directory.
func NewTesseractFactory(log logrus.FieldLogger) *TesseractFactory {
	return &TesseractFactory{Logger: log}
}

// TryCreate implements Factory.
func (f *TesseractFactory) TryCreate(tag string) (Engine, bool) {
	log := f.logger().WithField("language", tag)

	lang, err := ParseLanguage(tag)
	if err != nil {
		log.WithError(err).Debug("Invalid recognizer language")
		return nil, false
	}
	code, err := TesseractCode(lang.Tag)
	if err != nil {
		log.WithError(err).Debug("No Tesseract model for language")
		return nil, false
	}

	installed, err := f.installed()
	if err != nil {
		log.WithError(err).Debug("Cannot list Tesseract models")
		return nil, false
	}
	if !slices.Contains(installed, code) {
		log.WithField("model", code).Debug("Tesseract model not installed")
		return nil, false
	}

	newEngine := f.New
	if newEngine == nil {
		newEngine = func(lang Language, code, tessdata string) (Engine, error) {
			return NewTesseract(lang, code, tessdata)
		}
	}
	eng, err := newEngine(lang, code, f.TessdataPrefix)
	if err != nil {
		log.WithError(err).WithField("model", code).Debug("Tesseract initialization failed")
		return nil, false
	}
	return eng, true
}

// TryCreateDefault implements Factory. Host locales are tried in preference
// order.
func (f *TesseractFactory) TryCreateDefault() (Engine, bool) {
	locales, err := f.locales()
	if err != nil {
		f.logger().WithError(err).Debug("Cannot read host locales")
		return nil, false
	}
	for _, loc := range locales {
		if eng, ok := f.TryCreate(loc); ok {
			return eng, true
		}
	}
	return nil, false
}

// AvailableLanguages implements Factory. Models that do not correspond to a
// natural language, and duplicates of an earlier entry, are left out.
func (f *TesseractFactory) AvailableLanguages() []Language {
	codes, err := f.installed()
	if err != nil {
		f.logger().WithError(err).Debug("Cannot list Tesseract models")
		return nil
	}
	seen := make(map[string]bool, len(codes))
	var langs []Language
	for _, code := range codes {
		lang, ok := LanguageFromTesseract(code)
		if !ok || seen[lang.Tag] {
			continue
		}
		seen[lang.Tag] = true
		langs = append(langs, lang)
	}
	return langs
}

func (f *TesseractFactory) installed() ([]string, error) {
	if f.Installed != nil {
		return f.Installed()
	}
	if f.TessdataPrefix == "" {
		return gosseract.GetAvailableLanguages()
	}
	files, err := filepath.Glob(filepath.Join(f.TessdataPrefix, "*.traineddata"))
	if err != nil {
		return nil, fmt.Errorf("list traineddata: %w", err)
	}
	codes := make([]string, 0, len(files))
	for _, file := range files {
		codes = append(codes, strings.TrimSuffix(filepath.Base(file), ".traineddata"))
	}
	return codes, nil
}

func (f *TesseractFactory) locales() ([]string, error) {
	if f.Locales != nil {
		return f.Locales()
	}
	return locale.GetLocales()
}

func (f *TesseractFactory) logger() logrus.FieldLogger {
	if f.Logger == nil {
		return logrus.StandardLogger()
	}
	return f.Logger
}
