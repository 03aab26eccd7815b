// Package state holds the process-wide observable key/value store shared by
// the host application and its plugins. A fixed allow-list of keys is
// mirrored to durable storage; everything else lives for the process only.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"mdviewer/internal/storage"

	"go.uber.org/zap"
)

// WildcardKey subscribes to every key.
const WildcardKey = "*"

// ErrNotInitialized is reported when the store is used before Init or after
// ResetAll.
var ErrNotInitialized = errors.New("store not initialized")

// ChangeHandler is called after an accepted Set.
type ChangeHandler func(newValue, oldValue any, key string)

// Subscription represents an active change subscription.
type Subscription interface {
	Unsubscribe()
}

type subscriberEntry struct {
	id      uint64
	handler ChangeHandler
}

type subscription struct {
	store *Store
	key   string
	id    uint64
	once  sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.store.unsubscribe(s.key, s.id)
	})
}

// SetOption adjusts a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	force bool
}

// WithForce makes Set notify and persist even when the value is unchanged.
func WithForce() SetOption {
	return func(o *setOptions) { o.force = true }
}

// Store is the observable key/value store.
type Store struct {
	backend   storage.Storage
	logger    *zap.Logger
	variables map[string]Variable
	persisted map[string]struct{}

	// writeMu orders writes of a key with their persistence and keeps
	// Update atomic. Subscribers run after it is released.
	writeMu sync.Mutex

	cacheMu     sync.RWMutex
	cache       map[string]any
	initialized bool

	subsMu      sync.RWMutex
	subscribers map[string][]subscriberEntry
	nextSubID   uint64
}

// NewStore creates a store writing persistedKeys to backend. A nil
// persistedKeys uses PersistedKeys().
func NewStore(backend storage.Storage, logger *zap.Logger, persistedKeys []string) *Store {
	if persistedKeys == nil {
		persistedKeys = PersistedKeys()
	}
	persisted := make(map[string]struct{}, len(persistedKeys))
	for _, k := range persistedKeys {
		persisted[k] = struct{}{}
	}

	return &Store{
		backend:     backend,
		logger:      logger.Named("store"),
		variables:   VariablesByKey(),
		persisted:   persisted,
		cache:       make(map[string]any),
		subscribers: make(map[string][]subscriberEntry),
	}
}

// Init loads every persisted key from storage. Unreadable or malformed values
// are logged and left at their defaults.
func (s *Store) Init(ctx context.Context) {
	loaded := 0
	for key := range s.persisted {
		raw, ok, err := s.backend.Load(ctx, key)
		if err != nil {
			s.logger.Error("Failed to load persisted key",
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			s.logger.Warn("Ignoring malformed persisted value",
				zap.String("key", key),
				zap.Error(err))
			continue
		}

		s.cacheMu.Lock()
		s.cache[key] = value
		s.cacheMu.Unlock()
		loaded++
	}

	s.cacheMu.Lock()
	s.initialized = true
	s.cacheMu.Unlock()

	s.logger.Info("Store initialized",
		zap.Int("loaded", loaded),
		zap.Int("persisted_keys", len(s.persisted)))
}

// Initialized reports whether Init has run since construction or ResetAll.
func (s *Store) Initialized() bool {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.initialized
}

// Get returns the value for key, falling back to the key's default.
func (s *Store) Get(key string) any {
	s.cacheMu.RLock()
	value, ok := s.cache[key]
	s.cacheMu.RUnlock()

	if ok {
		return value
	}
	if v, known := s.variables[key]; known {
		return v.Default
	}
	return nil
}

// GetString returns key as a string, or def when it is absent or not a string.
func (s *Store) GetString(key, def string) string {
	if v, ok := s.Get(key).(string); ok {
		return v
	}
	return def
}

// Decode converts the value for key into target by a JSON round trip. It is
// the way to read persisted structured values, which come back from storage
// as generic maps and slices.
func (s *Store) Decode(key string, target any) error {
	if err := DecodeValue(s.Get(key), target); err != nil {
		return fmt.Errorf("key %s: %w", key, err)
	}
	return nil
}

// DecodeValue converts a stored value into target by a JSON round trip.
func DecodeValue(value, target any) error {
	if value == nil {
		return fmt.Errorf("no value")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}
	return nil
}

// Theme returns the user's theme preference.
func (s *Store) Theme() string {
	return s.GetString(KeyTheme, "auto")
}

// Language returns the UI language code.
func (s *Store) Language() string {
	return s.GetString(KeyLanguage, "en")
}

// Set stores value under key. It reports whether the set was accepted: a
// value equal to the current one is ignored unless WithForce is given.
// Accepted sets notify subscribers and, for allow-listed keys, are written
// to storage.
func (s *Store) Set(key string, value any, opts ...SetOption) bool {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	s.writeMu.Lock()
	old, had, ok := s.current(key)
	if !ok {
		s.writeMu.Unlock()
		s.logger.Warn("Set ignored", zap.String("key", key), zap.Error(ErrNotInitialized))
		return false
	}
	if !o.force && had && reflect.DeepEqual(old, value) {
		s.writeMu.Unlock()
		return false
	}
	s.write(key, value)
	s.writeMu.Unlock()

	s.changed(key, value, old)
	return true
}

// Update replaces the value of key with what fn derives from the current
// value, with no other write to the store in between. fn returning false
// leaves the value alone. Subscribers are notified after the update is
// written, so they may call back into the store.
func (s *Store) Update(key string, fn func(current any) (any, bool)) bool {
	s.writeMu.Lock()
	old, _, ok := s.current(key)
	if !ok {
		s.writeMu.Unlock()
		s.logger.Warn("Update ignored", zap.String("key", key), zap.Error(ErrNotInitialized))
		return false
	}
	value, apply := fn(old)
	if !apply {
		s.writeMu.Unlock()
		return false
	}
	s.write(key, value)
	s.writeMu.Unlock()

	s.changed(key, value, old)
	return true
}

// current returns the value of key with its default applied. ok is false
// when the store is not initialized. Called with writeMu held.
func (s *Store) current(key string) (value any, had, ok bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	if !s.initialized {
		return nil, false, false
	}
	value, had = s.cache[key]
	if !had {
		if v, known := s.variables[key]; known {
			value = v.Default
		}
	}
	return value, had, true
}

// write caches and persists value. Called with writeMu held.
func (s *Store) write(key string, value any) {
	s.cacheMu.Lock()
	s.cache[key] = value
	s.cacheMu.Unlock()

	if s.isPersisted(key) {
		s.persist(key, value)
	}
}

func (s *Store) changed(key string, value, old any) {
	s.logger.Debug("State changed",
		zap.String("key", key),
		zap.Any("old", old),
		zap.Any("new", value))

	s.notifySubscribers(key, value, old)
}

// Subscribe registers handler for key. Use WildcardKey to observe every key.
func (s *Store) Subscribe(key string, handler ChangeHandler) Subscription {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	s.nextSubID++
	id := s.nextSubID
	s.subscribers[key] = append(s.subscribers[key], subscriberEntry{id: id, handler: handler})

	return &subscription{store: s, key: key, id: id}
}

// SubscriberCount returns the number of handlers registered for key.
func (s *Store) SubscriberCount(key string) int {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	return len(s.subscribers[key])
}

// Reset removes key from storage and memory, so Get reports its default.
// Subscribers are notified if the visible value changes.
func (s *Store) Reset(ctx context.Context, key string) {
	if s.isPersisted(key) {
		if err := s.backend.Delete(ctx, key); err != nil {
			s.logger.Error("Failed to delete persisted key",
				zap.String("key", key),
				zap.Error(err))
		}
	}

	s.cacheMu.Lock()
	old, had := s.cache[key]
	delete(s.cache, key)
	s.cacheMu.Unlock()

	if !had {
		return
	}
	if current := s.Get(key); !reflect.DeepEqual(old, current) {
		s.notifySubscribers(key, current, old)
	}
}

// ResetAll clears storage and every in-memory value. The store refuses
// sets until Init is called again.
func (s *Store) ResetAll(ctx context.Context) {
	if err := s.backend.Clear(ctx); err != nil {
		s.logger.Error("Failed to clear storage", zap.Error(err))
	}

	s.cacheMu.Lock()
	s.cache = make(map[string]any)
	s.initialized = false
	s.cacheMu.Unlock()

	s.logger.Info("Store reset")
}

// GetAllValues returns a copy of every value currently held in memory.
func (s *Store) GetAllValues() map[string]any {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	values := make(map[string]any, len(s.cache))
	for k, v := range s.cache {
		values[k] = v
	}
	return values
}

func (s *Store) isPersisted(key string) bool {
	_, ok := s.persisted[key]
	return ok
}

func (s *Store) persist(key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("Failed to encode persisted value",
			zap.String("key", key),
			zap.Error(err))
		return
	}
	if err := s.backend.Save(context.Background(), key, data); err != nil {
		s.logger.Error("Failed to persist value",
			zap.String("key", key),
			zap.Error(err))
	}
}

func (s *Store) notifySubscribers(key string, newValue, oldValue any) {
	for _, sub := range s.handlersFor(key) {
		s.invoke(key, sub, newValue, oldValue)
	}
	if key == WildcardKey {
		return
	}
	for _, sub := range s.handlersFor(WildcardKey) {
		s.invoke(key, sub, newValue, oldValue)
	}
}

func (s *Store) handlersFor(key string) []subscriberEntry {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	entries := s.subscribers[key]
	if len(entries) == 0 {
		return nil
	}
	out := make([]subscriberEntry, len(entries))
	copy(out, entries)
	return out
}

func (s *Store) invoke(key string, sub subscriberEntry, newValue, oldValue any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Store subscriber failed",
				zap.String("key", key),
				zap.Error(fmt.Errorf("panic: %v", r)))
		}
	}()
	sub.handler(newValue, oldValue, key)
}

func (s *Store) unsubscribe(key string, id uint64) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	entries := s.subscribers[key]
	for i, e := range entries {
		if e.id != id {
			continue
		}
		next := make([]subscriberEntry, 0, len(entries)-1)
		next = append(next, entries[:i]...)
		next = append(next, entries[i+1:]...)
		if len(next) == 0 {
			delete(s.subscribers, key)
		} else {
			s.subscribers[key] = next
		}
		return
	}
}
