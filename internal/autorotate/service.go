// Package autorotate decides how a scanned page must be turned so that its
// text reads upright, and keeps the recognition engine it relies on bound to
// a working language.
package autorotate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"scanrotate/internal/diag"
	"scanrotate/internal/image"
	"scanrotate/internal/ocr"
	"scanrotate/internal/settings"
)

// Deps are the collaborators a Service is built from. Factory, Codec and
// Settings are required.
type Deps struct {
	Factory  ocr.Factory
	Codec    image.Codec
	Encoder  image.Encoder
	Settings settings.Store
	Logger   logrus.FieldLogger
	Tracker  diag.Tracker
}

// Service is the orientation engine. It is safe for concurrent use.
type Service struct {
	factory ocr.Factory
	codec   image.Codec
	encoder image.Encoder
	store   settings.Store
	log     logrus.FieldLogger
	tracker diag.Tracker
	opts    Options

	cell        handleCell
	provisionMu sync.Mutex
	closed      bool

	// pending and running coalesce provisioning requests onto one goroutine.
	pendingMu sync.Mutex
	pending   bool
	running   bool

	unsubscribe func()
	closeOnce   sync.Once
}

// New builds a Service, provisions an engine and starts following changes
// to the language preference until Close.
func New(ctx context.Context, deps Deps, opts Options) (*Service, error) {
	if deps.Factory == nil {
		return nil, errors.New("autorotate: recognizer factory is required")
	}
	if deps.Codec == nil {
		return nil, errors.New("autorotate: image codec is required")
	}
	if deps.Settings == nil {
		return nil, errors.New("autorotate: settings store is required")
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("autorotate: %w", err)
	}
	if deps.Encoder == nil {
		deps.Encoder = image.DefaultEncoder()
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Tracker == nil {
		deps.Tracker = diag.NopTracker{}
	}

	s := &Service{
		factory: deps.Factory,
		codec:   deps.Codec,
		encoder: deps.Encoder,
		store:   deps.Settings,
		log:     deps.Logger.WithField("component", "autorotate"),
		tracker: deps.Tracker,
		opts:    opts,
	}
	s.cell.log = s.log

	s.unsubscribe = s.store.OnChange(settings.KeyAutoRotateLanguage, s.languageChanged)
	s.Initialize(ctx)
	return s, nil
}

// languageChanged re-provisions unless the preference already names the
// bound language, which is the case for the write-back Initialize itself
// performs. A change delivered while a pass is running, including from
// inside that pass's write-back, is queued onto the running pass.
func (s *Service) languageChanged(key string) {
	if s.store.String(key) == s.cell.boundTag() {
		return
	}
	s.log.WithField("language", s.store.String(key)).Info("Recognizer language preference changed")
	s.Initialize(context.Background())
}

// Close stops following the preference and releases the engine. Calls to
// DetermineRotation already in progress finish first against the engine they
// hold.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.provisionMu.Lock()
		s.closed = true
		s.cell.swap(nil)
		s.provisionMu.Unlock()
	})
	return nil
}

// AvailableLanguages returns every language the factory can load, in catalog
// order.
func (s *Service) AvailableLanguages() []ocr.Language {
	return s.factory.AvailableLanguages()
}

// DefaultLanguage returns the language the host preference resolves to when
// nothing is configured. It loads and discards an engine to find out.
func (s *Service) DefaultLanguage() (ocr.Language, bool) {
	eng, ok := s.factory.TryCreateDefault()
	if !ok {
		return ocr.Language{}, false
	}
	lang := eng.Language()
	if err := eng.Close(); err != nil {
		s.log.WithError(err).Warn("Failed to close default-language engine")
	}
	return lang, true
}

// CurrentLanguage returns the language of the bound engine.
func (s *Service) CurrentLanguage() (ocr.Language, bool) {
	return s.cell.language()
}

// Available reports whether an engine is bound. Without one every page is
// left as scanned.
func (s *Service) Available() bool {
	_, ok := s.cell.language()
	return ok
}
