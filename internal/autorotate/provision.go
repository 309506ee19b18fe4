package autorotate

import (
	"context"

	"github.com/sirupsen/logrus"

	"scanrotate/internal/ocr"
	"scanrotate/internal/settings"
)

// tier is one provisioning attempt.
type tier struct {
	name    string
	attempt func() (ocr.Engine, bool)
}

// Initialize binds an engine for the configured language, falling back to
// the host language and then to the first loadable language in the catalog.
// When the outcome differs from the configured language the preference is
// rewritten to the bound tag, or cleared if nothing could be loaded.
//
// Failures are never returned: an empty cell is a valid state in which every
// page is left as scanned. If ctx is done before a tier succeeds, the current
// binding is kept; when a tier was already tried and failed, the preference
// is rewritten to that kept binding.
//
// If a pass is already running on another goroutine, or Initialize is
// reached from a change notification inside a pass, one more pass is queued
// on the running one and Initialize returns at once.
func (s *Service) Initialize(ctx context.Context) {
	s.pendingMu.Lock()
	s.pending = true
	if s.running {
		s.pendingMu.Unlock()
		return
	}
	s.running = true
	s.pendingMu.Unlock()

	for {
		s.pendingMu.Lock()
		if !s.pending {
			s.running = false
			s.pendingMu.Unlock()
			return
		}
		s.pending = false
		s.pendingMu.Unlock()

		s.provision(ctx)
		// Queued passes outlive the caller that happened to run them.
		ctx = context.WithoutCancel(ctx)
	}
}

// provision runs one pass. The write-back happens after provisionMu is
// released, so listeners on the preference may call back into the Service.
func (s *Service) provision(ctx context.Context) {
	configured, writeBack, ok := s.bind(ctx)
	if !ok {
		return
	}
	// A preference changed during the pass has queued another pass; do not
	// overwrite it.
	if s.store.String(settings.KeyAutoRotateLanguage) != configured {
		return
	}
	s.store.SetString(settings.KeyAutoRotateLanguage, writeBack)
}

// bind resolves and swaps the engine. It returns the preference it read, the
// tag to persist and whether the preference needs rewriting.
func (s *Service) bind(ctx context.Context) (configured, writeBack string, ok bool) {
	s.provisionMu.Lock()
	defer s.provisionMu.Unlock()
	if s.closed {
		return "", "", false
	}

	configured = s.store.String(settings.KeyAutoRotateLanguage)
	log := s.log.WithField("configured", configured)

	eng, tierName, tried, found := s.resolve(ctx, log, s.tiers(configured))
	if ctx.Err() != nil && !found {
		log.WithError(ctx.Err()).Warn("Recognizer provisioning abandoned")
		// A tag that just failed must not stay in the preference.
		if bound := s.cell.boundTag(); tried > 0 && bound != configured {
			return configured, bound, true
		}
		return configured, "", false
	}

	resolved := ""
	if found {
		resolved = eng.Language().Tag
	}
	gen := s.cell.swap(eng)

	fields := logrus.Fields{"tier": tierName, "language": resolved, "generation": gen}
	if found {
		log.WithFields(fields).Info("Recognition engine bound")
	} else {
		log.WithFields(fields).Info("No recognizer language available; orientation correction disabled")
	}

	if tierName == tierConfigured || resolved == configured {
		return configured, "", false
	}
	// Swapped first so the change notification sees the new binding.
	return configured, resolved, true
}

const (
	tierConfigured = "configured"
	tierDefault    = "default"
	tierCatalog    = "catalog"
	tierNone       = "none"
)

func (s *Service) tiers(configured string) []tier {
	var tiers []tier
	if configured != "" {
		tiers = append(tiers, tier{tierConfigured, func() (ocr.Engine, bool) {
			return s.factory.TryCreate(configured)
		}})
	}
	return append(tiers,
		tier{tierDefault, s.factory.TryCreateDefault},
		tier{tierCatalog, s.firstAvailable},
	)
}

// resolve runs tiers in order and stops at the first success. tried counts
// the tiers that were attempted.
func (s *Service) resolve(ctx context.Context, log logrus.FieldLogger, tiers []tier) (ocr.Engine, string, int, bool) {
	tried := 0
	for _, t := range tiers {
		if ctx.Err() != nil {
			return nil, tierNone, tried, false
		}
		tried++
		if eng, ok := t.attempt(); ok {
			return eng, t.name, tried, true
		}
		log.WithField("tier", t.name).Debug("Recognizer tier failed")
	}
	return nil, tierNone, tried, false
}

func (s *Service) firstAvailable() (ocr.Engine, bool) {
	for _, lang := range s.factory.AvailableLanguages() {
		if eng, ok := s.factory.TryCreate(lang.Tag); ok {
			return eng, true
		}
		s.log.WithField("language", lang.Tag).Debug("Catalog language failed to load")
	}
	return nil, false
}
