package settings

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanrotate/internal/diag"
)

func TestPrefsMemory(t *testing.T) {
	p := New(diag.Discard())
	assert.Equal(t, "", p.String(KeyAutoRotateLanguage))
	assert.True(t, p.Bool(KeyAutoRotate, true))

	p.SetString(KeyAutoRotateLanguage, "de-DE")
	p.SetBool(KeyAutoRotate, false)
	assert.Equal(t, "de-DE", p.String(KeyAutoRotateLanguage))
	assert.False(t, p.Bool(KeyAutoRotate, true))

	// Wrong type reads as unset.
	assert.Equal(t, "", p.String(KeyAutoRotate))
	assert.NoError(t, p.Save())
	assert.NoError(t, p.Reload())
}

func TestPrefsRoundTrip(t *testing.T) {
	for _, name := range []string{"prefs.json", "prefs.toml", "prefs.yaml", "prefs.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			p, err := Load(path, diag.Discard())
			require.NoError(t, err)
			assert.Equal(t, path, p.Path())
			p.SetString(KeyAutoRotateLanguage, "ja-JP")
			p.SetBool(KeyAutoRotate, true)

			_, err = os.Stat(path)
			require.NoError(t, err, "set saves immediately")

			q, err := Load(path, diag.Discard())
			require.NoError(t, err)
			assert.Equal(t, "ja-JP", q.String(KeyAutoRotateLanguage))
			assert.True(t, q.Bool(KeyAutoRotate, false))
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "prefs.ini"), nil)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = Load(path, nil)
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o644))
	p, err := Load(empty, nil)
	require.NoError(t, err)
	assert.Equal(t, "", p.String(KeyAutoRotateLanguage))
}

func TestDefaultPath(t *testing.T) {
	path := DefaultPath()
	assert.Equal(t, prefsFile, filepath.Base(path))
	assert.Equal(t, "scanrotate", filepath.Base(filepath.Dir(path)))
}

func TestOnChange(t *testing.T) {
	p := New(diag.Discard())

	var got []string
	unsubscribe := p.OnChange(KeyAutoRotateLanguage, func(key string) {
		got = append(got, key+"="+p.String(key))
	})
	other := 0
	p.OnChange(KeyAutoRotate, func(string) { other++ })

	p.SetString(KeyAutoRotateLanguage, "fr")
	p.SetString(KeyAutoRotateLanguage, "fr")
	p.SetString(KeyAutoRotateLanguage, "it")
	assert.Equal(t, []string{"auto_rotate_language=fr", "auto_rotate_language=it"}, got,
		"listeners fire synchronously, once per actual change")
	assert.Zero(t, other)

	unsubscribe()
	unsubscribe()
	p.SetString(KeyAutoRotateLanguage, "es")
	assert.Len(t, got, 2)
}

func TestOnChangeReentrant(t *testing.T) {
	p := New(diag.Discard())

	var calls int
	p.OnChange(KeyAutoRotateLanguage, func(key string) {
		calls++
		if p.String(key) == "xx" {
			p.SetString(key, "en")
		}
	})
	p.SetString(KeyAutoRotateLanguage, "xx")
	assert.Equal(t, "en", p.String(KeyAutoRotateLanguage))
	assert.Equal(t, 2, calls)
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"auto_rotate_language":"en","auto_rotate":true}`), 0o644))
	p, err := Load(path, diag.Discard())
	require.NoError(t, err)

	var changed []string
	p.OnChange(KeyAutoRotateLanguage, func(k string) { changed = append(changed, k) })
	p.OnChange(KeyAutoRotate, func(k string) { changed = append(changed, k) })

	require.NoError(t, os.WriteFile(path, []byte(`{"auto_rotate_language":"pl","auto_rotate":true}`), 0o644))
	require.NoError(t, p.Reload())
	assert.Equal(t, []string{KeyAutoRotateLanguage}, changed)
	assert.Equal(t, "pl", p.String(KeyAutoRotateLanguage))

	changed = nil
	require.NoError(t, os.WriteFile(path, []byte(`{"auto_rotate_language":"pl"}`), 0o644))
	require.NoError(t, p.Reload())
	assert.Equal(t, []string{KeyAutoRotate}, changed, "removed keys notify too")
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	p, err := Load(path, diag.Discard())
	require.NoError(t, err)
	p.SetString(KeyAutoRotateLanguage, "en")

	var (
		mu   sync.Mutex
		seen string
	)
	p.OnChange(KeyAutoRotateLanguage, func(k string) {
		mu.Lock()
		seen = p.String(k)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"auto_rotate_language":"nl"}`), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen == "nl"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchRequiresFile(t *testing.T) {
	assert.Error(t, New(nil).Watch(context.Background()))
}
