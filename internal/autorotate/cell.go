package autorotate

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"scanrotate/internal/ocr"
)

// handle owns one engine. refs counts the cell's own reference while bound
// plus one per outstanding lease; the engine closes when it reaches zero.
type handle struct {
	engine ocr.Engine
	lang   ocr.Language
	refs   atomic.Int64
}

func (h *handle) release(log logrus.FieldLogger) {
	if h.refs.Add(-1) != 0 {
		return
	}
	if err := h.engine.Close(); err != nil {
		log.WithError(err).WithField("language", h.lang.Tag).Warn("Failed to close recognition engine")
	}
}

// handleCell holds the bound engine. Readers lease it under the read lock;
// swap replaces it under the write lock and retires the previous handle,
// which stays open until its last lease is returned.
type handleCell struct {
	mu         sync.RWMutex
	cur        *handle
	generation uint64
	log        logrus.FieldLogger
}

// lease is a borrowed engine. Release must be called exactly once; extra
// calls are ignored.
type lease struct {
	h    *handle
	log  logrus.FieldLogger
	once sync.Once
}

func (l *lease) Engine() ocr.Engine { return l.h.engine }

func (l *lease) Language() ocr.Language { return l.h.lang }

func (l *lease) Release() {
	l.once.Do(func() { l.h.release(l.log) })
}

// acquire returns a lease on the bound engine, or false if none is bound.
func (c *handleCell) acquire() (*lease, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cur == nil {
		return nil, false
	}
	c.cur.refs.Add(1)
	return &lease{h: c.cur, log: c.log}, true
}

// swap binds eng (nil unbinds) and returns the new generation.
func (c *handleCell) swap(eng ocr.Engine) uint64 {
	var next *handle
	if eng != nil {
		next = &handle{engine: eng, lang: eng.Language()}
		next.refs.Store(1)
	}

	c.mu.Lock()
	old := c.cur
	c.cur = next
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	if old != nil {
		old.release(c.log)
	}
	return gen
}

// language returns the bound language, or false if none is bound.
func (c *handleCell) language() (ocr.Language, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cur == nil {
		return ocr.Language{}, false
	}
	return c.cur.lang, true
}

// boundTag returns the bound language tag, or "" if none is bound.
func (c *handleCell) boundTag() string {
	lang, _ := c.language()
	return lang.Tag
}

func (c *handleCell) gen() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}
