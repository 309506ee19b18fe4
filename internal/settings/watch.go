package settings

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay coalesces the burst of events an editor or an atomic rename
// produces into one reload.
const settleDelay = 100 * time.Millisecond

// Watch reloads the preferences whenever the backing file changes on disk,
// until ctx is done. It watches the containing directory so that files
// replaced by rename are still seen. Watch blocks; run it in a goroutine.
func (p *Prefs) Watch(ctx context.Context) error {
	if p.path == "" {
		return errors.New("watch: preferences have no backing file")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(p.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Base(p.path)

	settle := time.NewTimer(settleDelay)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			settle.Reset(settleDelay)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			p.log.WithError(err).Warn("Preferences watcher error")
		case <-settle.C:
			if err := p.Reload(); err != nil {
				p.log.WithError(err).WithField("path", p.path).Warn("Failed to reload preferences")
			}
		}
	}
}
