// Package store persists the bot's record collections as whole JSON documents
// and serializes every load-mutate-save cycle per collection.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"tg_loyalty_bot/internal/logging"
)

// Collection names a whole-document record collection.
type Collection string

// Collections used across the bot.
const (
	CollectionUsers      Collection = "users"
	CollectionPromotions Collection = "promotions"
	CollectionAdmins     Collection = "admins"
)

// Collections lists every collection the bot bootstraps.
var Collections = []Collection{CollectionUsers, CollectionPromotions, CollectionAdmins}

var (
	// ErrDocumentNotFound is returned by backends when a collection has never been written.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrCorruptCollection is returned in strict mode when a document cannot be decoded.
	ErrCorruptCollection = errors.New("corrupt collection document")
)

// Backend reads and writes raw collection documents.
type Backend interface {
	Read(ctx context.Context, name Collection) ([]byte, error)
	Write(ctx context.Context, name Collection, data []byte) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Option customizes a Store.
type Option func(*Store)

// WithStrict makes unreadable documents surface ErrCorruptCollection instead
// of loading as empty.
func WithStrict(strict bool) Option {
	return func(s *Store) {
		s.strict = strict
	}
}

// WithRecoveryHook registers a callback invoked whenever a document is
// recovered as empty.
func WithRecoveryHook(hook func(Collection)) Option {
	return func(s *Store) {
		s.onRecover = hook
	}
}

// Store guards each collection with its own mutex held across the full
// load-mutate-save sequence.
type Store struct {
	backend   Backend
	logger    *logrus.Entry
	strict    bool
	onRecover func(Collection)

	mu    sync.Mutex
	locks map[Collection]*sync.Mutex
}

// New constructs a Store over the provided backend.
func New(backend Backend, logger *logrus.Entry, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("store backend is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	s := &Store{
		backend: backend,
		logger:  logger,
		locks:   make(map[Collection]*sync.Mutex, len(Collections)),
	}
	for _, name := range Collections {
		s.locks[name] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Load reads a whole collection. Missing documents load as an empty mapping.
func Load[T any](ctx context.Context, s *Store, name Collection) (map[string]T, error) {
	if err := s.validate(ctx); err != nil {
		return nil, err
	}

	lock := s.lock(name)
	lock.Lock()
	defer lock.Unlock()

	records, err := load[T](ctx, s, name)
	if err != nil && !s.strict && !errors.Is(err, ErrCorruptCollection) {
		// Read-only callers never fail on I/O; they see an empty collection.
		s.recovered(name, err)
		return make(map[string]T), nil
	}

	return records, err
}

// Save replaces a whole collection.
func Save[T any](ctx context.Context, s *Store, name Collection, records map[string]T) error {
	if err := s.validate(ctx); err != nil {
		return err
	}

	lock := s.lock(name)
	lock.Lock()
	defer lock.Unlock()

	return save(ctx, s, name, records)
}

// Update loads a collection, applies fn and saves the result while holding the
// collection lock. When fn returns an error nothing is written.
func Update[T any](ctx context.Context, s *Store, name Collection, fn func(records map[string]T) error) error {
	if err := s.validate(ctx); err != nil {
		return err
	}
	if fn == nil {
		return errors.New("update function is required")
	}

	lock := s.lock(name)
	lock.Lock()
	defer lock.Unlock()

	records, err := load[T](ctx, s, name)
	if err != nil {
		return err
	}

	if err := fn(records); err != nil {
		return err
	}

	return save(ctx, s, name, records)
}

// EnsureCollections writes an empty document for every collection that does
// not exist yet.
func (s *Store) EnsureCollections(ctx context.Context) error {
	if err := s.validate(ctx); err != nil {
		return err
	}

	for _, name := range Collections {
		lock := s.lock(name)
		lock.Lock()
		_, err := s.backend.Read(ctx, name)
		if errors.Is(err, ErrDocumentNotFound) {
			err = save(ctx, s, name, map[string]json.RawMessage{})
			if err == nil {
				s.logger.WithFields(logging.Fields{
					"event":      "store_collection_created",
					"collection": name,
				}).Info("created empty collection document")
			}
		}
		lock.Unlock()

		if err != nil {
			return fmt.Errorf("ensure %s: %w", name, err)
		}
	}

	return nil
}

// Count returns the number of records in a collection.
func (s *Store) Count(ctx context.Context, name Collection) (int, error) {
	records, err := Load[json.RawMessage](ctx, s, name)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Ping checks that the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.validate(ctx); err != nil {
		return err
	}
	return s.backend.Ping(ctx)
}

// Close releases the backend.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Close(ctx)
}

func (s *Store) validate(ctx context.Context) error {
	if s == nil || s.backend == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

func (s *Store) lock(name Collection) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[name] = lock
	}
	return lock
}

func (s *Store) recovered(name Collection, cause error) {
	s.logger.WithFields(logging.Fields{
		"event":      "store_recovered",
		"collection": name,
	}).WithError(cause).Warn("collection document unreadable, treating as empty")

	if s.onRecover != nil {
		s.onRecover(name)
	}
}

func load[T any](ctx context.Context, s *Store, name Collection) (map[string]T, error) {
	data, err := s.backend.Read(ctx, name)
	if errors.Is(err, ErrDocumentNotFound) {
		return make(map[string]T), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	var records map[string]T
	if err := json.Unmarshal(data, &records); err != nil {
		if s.strict {
			return nil, fmt.Errorf("%w %s: %v", ErrCorruptCollection, name, err)
		}
		s.recovered(name, err)
		return make(map[string]T), nil
	}
	if records == nil {
		records = make(map[string]T)
	}

	return records, nil
}

func save[T any](ctx context.Context, s *Store, name Collection, records map[string]T) error {
	if records == nil {
		records = make(map[string]T)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	if err := s.backend.Write(ctx, name, buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	return nil
}
