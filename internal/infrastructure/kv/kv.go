// Package kv is the ordered key-value store boundary used by the coin ledger and registries.
//
// A Store offers versioned point reads, unconditional writes, ordered prefix scans and an
// all-or-nothing commit guarded by versionstamp checks. Backends: LevelDB (disk or memory),
// Redis and SQL through GORM.
package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/famcoin/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Versionstamp is the opaque version token returned with a read.
// The empty versionstamp means "key absent".
type Versionstamp string

// Entry is one stored key with its raw value
type Entry struct {
	Key          Key
	Value        []byte
	Versionstamp Versionstamp
}

// Exists reports whether the entry was present at read time
func (e Entry) Exists() bool {
	return e.Versionstamp != ""
}

// Check asserts that Key still carries Versionstamp at commit time.
// An empty Versionstamp asserts that the key does not exist.
type Check struct {
	Key          Key
	Versionstamp Versionstamp
}

// MutationType is the kind of write in a commit
type MutationType int

const (
	MutationSet MutationType = iota
	MutationDelete
)

// Mutation is one write of a commit
type Mutation struct {
	Type  MutationType
	Key   Key
	Value []byte
}

// CommitResult reports the outcome of Store.Commit.
// OK is false when a check failed; nothing was written in that case.
type CommitResult struct {
	OK           bool
	Versionstamp Versionstamp
}

// Store is the ordered key-value store consumed by the ledger.
// Implementations are safe for concurrent use.
type Store interface {
	// Get returns the entry for key. A missing key yields an Entry with nil Value and empty Versionstamp.
	Get(ctx context.Context, key Key) (Entry, error)
	// Set writes value unconditionally and returns the new versionstamp
	Set(ctx context.Context, key Key, value []byte) (Versionstamp, error)
	// Delete removes key unconditionally; deleting a missing key is not an error
	Delete(ctx context.Context, key Key) error
	// List returns every strict descendant of prefix in ascending key order
	List(ctx context.Context, prefix Key) ([]Entry, error)
	// Commit applies mutations only if every check holds, all or nothing
	Commit(ctx context.Context, checks []Check, mutations []Mutation) (CommitResult, error)
	// Close releases the store handle
	Close() error
}

// NewVersionstamp returns a fresh versionstamp for one commit
func NewVersionstamp() Versionstamp {
	return Versionstamp(uuid.Must(uuid.NewV7()).String())
}

// StoreError is an I/O-level failure reported by a backend.
// It matches shared.ErrStoreUnavailable as well as the backend error.
type StoreError struct {
	Op      string
	Backend string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("kv %s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap exposes the sentinel and the backend error
func (e *StoreError) Unwrap() []error {
	return []error{shared.ErrStoreUnavailable, e.Err}
}

func storeError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Backend: backend, Err: err}
}
