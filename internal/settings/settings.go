// Package settings holds the user-editable preferences: enabled providers,
// API keys, result limit and library language. Changes are persisted to a
// YAML file and published to subscribers.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/lepinkainen/shelf/internal/bookmeta"
	"github.com/lepinkainen/shelf/internal/config"
	"github.com/spf13/viper"
)

// Key names a setting. The value is the key in the settings file.
type Key string

const (
	ProvidersEnabled  Key = "providers.enabled"
	ISBNdbAPIKey      Key = "isbndb.api_key"
	GoogleBooksAPIKey Key = "googlebooks.api_key"
	MaxResults        Key = "resolver.max_results"
	Language          Key = "library.language"
)

// Keys lists every setting in display order.
var Keys = []Key{ProvidersEnabled, ISBNdbAPIKey, GoogleBooksAPIKey, MaxResults, Language}

// ErrUnknownKey is returned for keys not listed in Keys.
var ErrUnknownKey = errors.New("unknown setting")

// ParseKey validates a key name.
func ParseKey(name string) (Key, error) {
	k := Key(strings.ToLower(strings.TrimSpace(name)))
	if !slices.Contains(Keys, k) {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	return k, nil
}

// Secret reports whether the value should be masked in listings.
func (k Key) Secret() bool {
	return k == ISBNdbAPIKey || k == GoogleBooksAPIKey
}

// Snapshot is an immutable copy of all settings.
type Snapshot struct {
	ProvidersEnabled  []string
	ISBNdbAPIKey      string
	GoogleBooksAPIKey string
	MaxResults        int
	Language          string
}

// Value returns the setting as the string Set accepts.
func (s Snapshot) Value(k Key) string {
	switch k {
	case ProvidersEnabled:
		return strings.Join(s.ProvidersEnabled, ",")
	case ISBNdbAPIKey:
		return s.ISBNdbAPIKey
	case GoogleBooksAPIKey:
		return s.GoogleBooksAPIKey
	case MaxResults:
		return strconv.Itoa(s.MaxResults)
	case Language:
		return s.Language
	}
	return ""
}

// Store is the settings store backed by a viper instance of its own.
type Store struct {
	mu     sync.Mutex
	v      *viper.Viper
	path   string
	subs   map[int]chan Snapshot
	nextID int
}

// Option configures a Store.
type Option func(*viper.Viper)

// WithDefaults replaces the built-in defaults with the non-zero fields of s,
// typically values from the application config file and environment.
func WithDefaults(s Snapshot) Option {
	return func(v *viper.Viper) {
		if len(s.ProvidersEnabled) > 0 {
			v.SetDefault(string(ProvidersEnabled), splitList(s.ProvidersEnabled))
		}
		if s.ISBNdbAPIKey != "" {
			v.SetDefault(string(ISBNdbAPIKey), s.ISBNdbAPIKey)
		}
		if s.GoogleBooksAPIKey != "" {
			v.SetDefault(string(GoogleBooksAPIKey), s.GoogleBooksAPIKey)
		}
		if s.MaxResults > 0 {
			v.SetDefault(string(MaxResults), s.MaxResults)
		}
		if s.Language != "" {
			v.SetDefault(string(Language), bookmeta.NormalizeLanguage(s.Language))
		}
	}
}

// Open loads the settings file at path. A missing file yields the defaults;
// it is created on the first Set.
func Open(path string, opts ...Option) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault(string(ProvidersEnabled), config.DefaultProviders)
	v.SetDefault(string(MaxResults), config.DefaultMaxResults)
	v.SetDefault(string(Language), config.DefaultLanguage)
	for _, opt := range opts {
		opt(v)
	}

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat settings file %s: %w", path, err)
	}

	return &Store{v: v, path: path, subs: make(map[int]chan Snapshot)}, nil
}

// Path returns the settings file path.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Store) snapshot() Snapshot {
	return Snapshot{
		ProvidersEnabled:  splitList(s.v.GetStringSlice(string(ProvidersEnabled))),
		ISBNdbAPIKey:      s.v.GetString(string(ISBNdbAPIKey)),
		GoogleBooksAPIKey: s.v.GetString(string(GoogleBooksAPIKey)),
		MaxResults:        s.v.GetInt(string(MaxResults)),
		Language:          s.v.GetString(string(Language)),
	}
}

// Get returns the string form of one setting.
func (s *Store) Get(k Key) (string, error) {
	if _, err := ParseKey(string(k)); err != nil {
		return "", err
	}
	return s.Snapshot().Value(k), nil
}

// Set validates and stores value, writes the settings file and publishes the
// new snapshot to subscribers.
func (s *Store) Set(k Key, value string) error {
	if _, err := ParseKey(string(k)); err != nil {
		return err
	}
	parsed, err := parseValue(k, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.v.Get(string(k))
	s.v.Set(string(k), parsed)
	if err := s.write(); err != nil {
		s.v.Set(string(k), previous)
		return err
	}

	snap := s.snapshot()
	for _, ch := range s.subs {
		publish(ch, snap)
	}
	return nil
}

func (s *Store) write() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to write settings file %s: %w", s.path, err)
	}
	return nil
}

// publish replaces any unread snapshot so a slow subscriber only ever sees
// the latest value.
func publish(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe returns a channel receiving a snapshot after every Set, and a
// function that unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func parseValue(k Key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch k {
	case ProvidersEnabled:
		providers := splitList([]string{value})
		if len(providers) == 0 {
			return nil, errors.New("at least one provider must be enabled")
		}
		for _, p := range providers {
			if !slices.Contains(config.DefaultProviders, p) {
				return nil, fmt.Errorf("unknown provider %q (known: %s)", p, strings.Join(config.DefaultProviders, ", "))
			}
		}
		return providers, nil
	case MaxResults:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("max results must be a positive integer, got %q", value)
		}
		return n, nil
	case Language:
		lang := bookmeta.NormalizeLanguage(value)
		if lang == "" {
			return nil, errors.New("language must not be empty")
		}
		return lang, nil
	}
	return value, nil
}

// splitList flattens comma or whitespace separated entries into lower-case
// names, dropping duplicates.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, f := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || unicode.IsSpace(r) }) {
			f = strings.ToLower(f)
			if !slices.Contains(out, f) {
				out = append(out, f)
			}
		}
	}
	return out
}
