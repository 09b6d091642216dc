package tokenstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// DefaultKey is the storage key used when none is configured.
const DefaultKey = "access_token"

// Listener is notified with the new token (empty after Clear) on every change.
type Listener func(token string)

// Option configures a [Store].
type Option func(*Store)

// WithKey sets the persistence key.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the logger used to report degraded persistence.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithFailureHook registers a callback run after each persistence failure.
func WithFailureHook(fn func(op string, err error)) Option {
	return func(s *Store) {
		s.onFailure = fn
	}
}

// Store is the single source of truth for the current access token.
type Store struct {
	current atomic.Pointer[string]
	// gen advances on every change made under mu.
	gen atomic.Uint64

	mu        sync.Mutex
	persister Persister
	key       string
	listeners []Listener
	log       logrus.FieldLogger
	onFailure func(op string, err error)
}

// New returns a store backed by p. A nil p keeps the token in memory only.
func New(p Persister, opts ...Option) *Store {
	s := &Store{
		persister: p,
		key:       DefaultKey,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("key", s.key)
	empty := ""
	s.current.Store(&empty)
	return s
}

// Get returns the current token or "" when there is none.
func (s *Store) Get() string {
	if s == nil {
		return ""
	}
	if p := s.current.Load(); p != nil {
		return *p
	}
	return ""
}

// Set makes token current and persists it. An empty token is the same as Clear.
func (s *Store) Set(ctx context.Context, token string) {
	if token == "" {
		s.Clear(ctx)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.install(ctx, token)
}

// SetIfGeneration installs token only while the store is still at generation
// gen. It reports whether the token was installed.
func (s *Store) SetIfGeneration(ctx context.Context, token string, gen uint64) bool {
	if token == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen.Load() != gen {
		return false
	}
	s.install(ctx, token)
	return true
}

// Generation identifies the current token value. Any Set, Clear or Load moves
// it forward.
func (s *Store) Generation() uint64 {
	return s.gen.Load()
}

func (s *Store) install(ctx context.Context, token string) {
	s.gen.Add(1)
	s.current.Store(&token)
	if s.persister != nil {
		if err := s.persister.Save(ctx, s.key, token); err != nil {
			s.degraded("save", err)
		}
	}
	s.notify(token)
}

// Clear removes the current token from memory and from the persister.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	empty := ""
	s.gen.Add(1)
	s.current.Store(&empty)
	if s.persister != nil {
		if err := s.persister.Delete(ctx, s.key); err != nil && !errors.Is(err, ErrNotFound) {
			s.degraded("delete", err)
		}
	}
	s.notify(empty)
}

// Load restores the persisted token, if any, and returns it. A persister
// failure leaves the store empty and is reported through the logger only.
func (s *Store) Load(ctx context.Context) string {
	if s.persister == nil {
		return s.Get()
	}

	token, err := s.persister.Load(ctx, s.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.degraded("load", err)
		}
		return s.Get()
	}
	if token == "" {
		return s.Get()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen.Add(1)
	s.current.Store(&token)
	s.notify(token)
	return token
}

// OnChange registers fn to run after every Set, Clear and successful Load.
func (s *Store) OnChange(fn Listener) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) notify(token string) {
	for _, fn := range s.listeners {
		fn(token)
	}
}

func (s *Store) degraded(op string, err error) {
	s.log.WithError(err).WithField("op", op).Warn("goSession: token persistence failed, continuing in memory")
	if s.onFailure != nil {
		s.onFailure(op, err)
	}
}
