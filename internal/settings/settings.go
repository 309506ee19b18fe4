// Package settings provides file-backed application preferences with change
// notification.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Keys read by this module.
const (
	// KeyAutoRotate enables orientation correction.
	KeyAutoRotate = "auto_rotate"
	// KeyAutoRotateLanguage is the recognizer language tag; empty means unset.
	KeyAutoRotateLanguage = "auto_rotate_language"
)

const prefsFile = "preferences.json"

// Store is the subset of Prefs the orientation service depends on.
type Store interface {
	String(key string) string
	SetString(key, value string)
	// OnChange registers fn to be called synchronously after key changes.
	// The returned func removes the registration.
	OnChange(key string, fn func(key string)) (unsubscribe func())
}

type fileFormat int

const (
	formatJSON fileFormat = iota
	formatTOML
	formatYAML
)

func formatFor(path string) (fileFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".toml":
		return formatTOML, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	}
	return formatJSON, fmt.Errorf("unsupported preferences file %q: want .json, .toml or .yaml", path)
}

// Prefs stores application preferences as a key-value map. A Prefs loaded
// from a file saves itself after every Set call.
type Prefs struct {
	mu     sync.RWMutex
	values map[string]interface{}
	path   string
	format fileFormat
	log    logrus.FieldLogger

	lmu       sync.Mutex
	listeners map[string]map[int]func(string)
	nextID    int
}

// DefaultPath returns ~/.config/scanrotate/preferences.json, or the platform
// equivalent.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "scanrotate", prefsFile)
}

// New returns empty in-memory preferences that are never saved.
func New(log logrus.FieldLogger) *Prefs {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Prefs{
		values:    make(map[string]interface{}),
		log:       log,
		listeners: make(map[string]map[int]func(string)),
	}
}

// Load reads preferences from path. A missing file yields empty preferences
// that will be created on first save.
func Load(path string, log logrus.FieldLogger) (*Prefs, error) {
	format, err := formatFor(path)
	if err != nil {
		return nil, err
	}
	p := New(log)
	p.path = path
	p.format = format

	values, err := p.read()
	if err != nil {
		return nil, err
	}
	p.values = values
	return p, nil
}

// Path returns the backing file, or "" for in-memory preferences.
func (p *Prefs) Path() string {
	return p.path
}

func (p *Prefs) read() (map[string]interface{}, error) {
	values := make(map[string]interface{})
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return values, nil
	}

	switch p.format {
	case formatTOML:
		err = toml.Unmarshal(data, &values)
	case formatYAML:
		err = yaml.Unmarshal(data, &values)
	default:
		err = json.Unmarshal(data, &values)
	}
	if err != nil {
		return nil, fmt.Errorf("parse preferences %s: %w", p.path, err)
	}
	return values, nil
}

// Save writes preferences to disk. The file is replaced atomically so a
// concurrent reader never sees a partial write.
func (p *Prefs) Save() error {
	if p.path == "" {
		return nil
	}

	p.mu.RLock()
	data, err := p.encode()
	p.mu.RUnlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p.path)
}

func (p *Prefs) encode() ([]byte, error) {
	switch p.format {
	case formatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(p.values); err != nil {
			return nil, fmt.Errorf("encode preferences: %w", err)
		}
		return buf.Bytes(), nil
	case formatYAML:
		return yaml.Marshal(p.values)
	default:
		return json.MarshalIndent(p.values, "", "  ")
	}
}

// String returns a string preference, or "" if not set.
func (p *Prefs) String(key string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SetString stores a string preference.
func (p *Prefs) SetString(key string, val string) {
	p.set(key, val)
}

// Bool returns a bool preference, or fallback if not set.
func (p *Prefs) Bool(key string, fallback bool) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

// SetBool stores a bool preference.
func (p *Prefs) SetBool(key string, val bool) {
	p.set(key, val)
}

func (p *Prefs) set(key string, val interface{}) {
	p.mu.Lock()
	old, existed := p.values[key]
	p.values[key] = val
	p.mu.Unlock()

	if existed && reflect.DeepEqual(old, val) {
		return
	}
	if err := p.Save(); err != nil {
		p.log.WithError(err).WithField("key", key).Error("Failed to save preferences")
	}
	p.emit(key)
}

// OnChange implements Store.
func (p *Prefs) OnChange(key string, fn func(key string)) func() {
	p.lmu.Lock()
	defer p.lmu.Unlock()
	id := p.nextID
	p.nextID++
	if p.listeners[key] == nil {
		p.listeners[key] = make(map[int]func(string))
	}
	p.listeners[key][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			p.lmu.Lock()
			defer p.lmu.Unlock()
			delete(p.listeners[key], id)
		})
	}
}

// emit calls the listeners for key in registration order.
func (p *Prefs) emit(key string) {
	p.lmu.Lock()
	ids := make([]int, 0, len(p.listeners[key]))
	for id := range p.listeners[key] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(string), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, p.listeners[key][id])
	}
	p.lmu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}

// Reload re-reads the backing file and notifies listeners of every key whose
// value changed.
func (p *Prefs) Reload() error {
	if p.path == "" {
		return nil
	}
	values, err := p.read()
	if err != nil {
		return err
	}

	p.mu.Lock()
	var changed []string
	for k, v := range values {
		if old, ok := p.values[k]; !ok || !reflect.DeepEqual(old, v) {
			changed = append(changed, k)
		}
	}
	for k := range p.values {
		if _, ok := values[k]; !ok {
			changed = append(changed, k)
		}
	}
	p.values = values
	p.mu.Unlock()

	sort.Strings(changed)
	for _, k := range changed {
		p.emit(k)
	}
	return nil
}
