// Package memory implements the storage ports in process memory. It is used
// by the memory database driver and by tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/totegamma/concrnt-identity/internal/domain"
)

type txKey struct{}

// Store holds users and profiles. Transactions are serialized and roll back
// by restoring a snapshot.
type Store struct {
	mu       sync.Mutex
	users    map[string]domain.User
	profiles map[string]domain.Profile
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]domain.User),
		profiles: make(map[string]domain.Profile),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Users() *UserRepository {
	return &UserRepository{s: s}
}

func (s *Store) Profiles() *ProfileRepository {
	return &ProfileRepository{s: s}
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// lock acquires the store unless ctx already belongs to one of its transactions.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	users    map[string]domain.User
	profiles map[string]domain.Profile
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		users:    make(map[string]domain.User, len(s.users)),
		profiles: make(map[string]domain.Profile, len(s.profiles)),
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.profiles {
		snap.profiles[k] = v
	}
	return snap
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	defer func() {
		if r := recover(); r != nil {
			s.users, s.profiles = snap.users, snap.profiles
			panic(r)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.users, s.profiles = snap.users, snap.profiles
	}
	return err
}

// Counts returns the number of stored users and profiles.
func (s *Store) Counts() (users, profiles int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), len(s.profiles)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
