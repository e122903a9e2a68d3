package theme

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// MemoryPrefs keeps preferences in memory.
type MemoryPrefs struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryPrefs() *MemoryPrefs {
	return &MemoryPrefs{values: make(map[string]string)}
}

func (p *MemoryPrefs) Get(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[key]
	return v, ok
}

func (p *MemoryPrefs) Set(key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
	return nil
}

// CookiePrefs backs preferences with browser cookies. Values are seeded from
// a request and written back to a response with WriteCookies.
type CookiePrefs struct {
	MemoryPrefs
	maxAge time.Duration
}

// NewCookiePrefs seeds preferences from r's cookies for the given keys.
func NewCookiePrefs(r *http.Request, maxAge time.Duration, keys ...string) *CookiePrefs {
	p := &CookiePrefs{MemoryPrefs: MemoryPrefs{values: make(map[string]string)}, maxAge: maxAge}
	if r == nil {
		return p
	}
	for _, k := range keys {
		if c, err := r.Cookie(k); err == nil && c.Value != "" {
			p.values[k] = c.Value
		}
	}
	return p
}

// WriteCookies sets a cookie for every stored preference.
func (p *CookiePrefs) WriteCookies(w http.ResponseWriter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range p.values {
		http.SetCookie(w, &http.Cookie{
			Name:     k,
			Value:    v,
			Path:     "/",
			MaxAge:   int(p.maxAge / time.Second),
			HttpOnly: false,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// FilePrefs stores preferences in a YAML map on disk.
type FilePrefs struct {
	mu   sync.Mutex
	path string
}

// NewFilePrefs uses path; the file is created on first Set.
func NewFilePrefs(path string) *FilePrefs {
	return &FilePrefs{path: path}
}

func (p *FilePrefs) Get(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	values, err := p.load()
	if err != nil {
		return "", false
	}
	v, ok := values[key]
	return v, ok
}

func (p *FilePrefs) Set(key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	values, err := p.load()
	if err != nil {
		return err
	}
	values[key] = value
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	if err := os.WriteFile(p.path, data, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

func (p *FilePrefs) load() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prefs: %w", err)
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse prefs %s: %w", p.path, err)
	}
	if values == nil {
		values = make(map[string]string)
	}
	return values, nil
}
