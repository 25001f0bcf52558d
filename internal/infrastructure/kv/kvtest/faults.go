package kvtest

import (
	"context"
	"sync"
	"testing"

	"github.com/famcoin/backend/internal/infrastructure/kv"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// NewMemoryStore returns an empty in-memory store closed at the end of the test
func NewMemoryStore(t *testing.T) kv.Store {
	t.Helper()
	store, err := kv.OpenMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// FaultStore wraps a Store and makes chosen commits fail or lose their checks.
// Reads and unconditional writes pass through.
type FaultStore struct {
	kv.Store

	mu           sync.Mutex
	failures     int
	failErr      error
	conflicts    int
	commits      int
	beforeCommit func()
}

// NewFaultStore wraps inner
func NewFaultStore(inner kv.Store) *FaultStore {
	return &FaultStore{Store: inner}
}

// FailCommits makes the next n commits return err without writing anything
func (s *FaultStore) FailCommits(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
	s.failErr = err
}

// ConflictCommits makes the next n commits report a failed check
func (s *FaultStore) ConflictCommits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = n
}

// BeforeCommit registers fn to run right before each commit reaches the inner store
func (s *FaultStore) BeforeCommit(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeCommit = fn
}

// Commits returns how many commits were attempted
func (s *FaultStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Commit applies the configured fault or delegates to the wrapped store
func (s *FaultStore) Commit(ctx context.Context, checks []kv.Check, mutations []kv.Mutation) (kv.CommitResult, error) {
	s.mu.Lock()
	s.commits++
	if s.failures > 0 {
		s.failures--
		err := s.failErr
		s.mu.Unlock()
		return kv.CommitResult{}, err
	}
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return kv.CommitResult{OK: false}, nil
	}
	hook := s.beforeCommit
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return s.Store.Commit(ctx, checks, mutations)
}
