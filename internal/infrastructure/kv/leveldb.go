package kv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	ldb_util "github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
)

const backendLevelDB = "leveldb"

// LevelDBStore is a Store on top of LevelDB.
// LevelDB has no compare-and-set, so commits and unconditional writes are serialized by writeMu;
// reads go straight to the database.
type LevelDBStore struct {
	db      *leveldb.DB
	writeMu sync.Mutex
	sync    bool
	logger  *zap.Logger
}

// OpenLevelDB opens (or creates) a LevelDB database in dir
func OpenLevelDB(dir string, logger *zap.Logger) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{})
	if err != nil {
		return nil, storeError(backendLevelDB, "open", err)
	}
	return newLevelDBStore(db, true, logger), nil
}

// OpenMemory opens a LevelDB database held entirely in memory
func OpenMemory(logger *zap.Logger) (*LevelDBStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, storeError(backendLevelDB, "open", err)
	}
	return newLevelDBStore(db, false, logger), nil
}

func newLevelDBStore(db *leveldb.DB, syncWrites bool, logger *zap.Logger) *LevelDBStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LevelDBStore{
		db:     db,
		sync:   syncWrites,
		logger: logger.Named("kv.leveldb"),
	}
}

// Get implements Store
func (s *LevelDBStore) Get(ctx context.Context, key Key) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	raw, err := s.db.Get(key.Encode(), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Entry{Key: key}, nil
	}
	if err != nil {
		return Entry{}, storeError(backendLevelDB, "get", err)
	}
	vs, value, err := unpackRecord(raw)
	if err != nil {
		return Entry{}, storeError(backendLevelDB, "get", err)
	}
	return Entry{Key: key, Value: value, Versionstamp: vs}, nil
}

// Set implements Store
func (s *LevelDBStore) Set(ctx context.Context, key Key, value []byte) (Versionstamp, error) {
	res, err := s.Commit(ctx, nil, []Mutation{{Type: MutationSet, Key: key, Value: value}})
	if err != nil {
		return "", err
	}
	return res.Versionstamp, nil
}

// Delete implements Store
func (s *LevelDBStore) Delete(ctx context.Context, key Key) error {
	_, err := s.Commit(ctx, nil, []Mutation{{Type: MutationDelete, Key: key}})
	return err
}

// List implements Store
func (s *LevelDBStore) List(ctx context.Context, prefix Key) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start, limit := PrefixRange(prefix)
	iter := s.db.NewIterator(&ldb_util.Range{Start: start, Limit: limit}, nil)
	defer iter.Release()

	var entries []Entry
	for iter.Next() {
		// iterator buffers are only valid until the next call to Next
		key, err := DecodeKey(iter.Key())
		if err != nil {
			return nil, storeError(backendLevelDB, "list", err)
		}
		vs, value, err := unpackRecord(iter.Value())
		if err != nil {
			return nil, storeError(backendLevelDB, "list", err)
		}
		entries = append(entries, Entry{Key: key, Value: value, Versionstamp: vs})
	}
	if err := iter.Error(); err != nil {
		return nil, storeError(backendLevelDB, "list", err)
	}
	return entries, nil
}

// Commit implements Store
func (s *LevelDBStore) Commit(ctx context.Context, checks []Check, mutations []Mutation) (CommitResult, error) {
	if err := ctx.Err(); err != nil {
		return CommitResult{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for _, check := range checks {
		current, err := s.currentVersionstamp(check.Key)
		if err != nil {
			return CommitResult{}, storeError(backendLevelDB, "commit", err)
		}
		if current != check.Versionstamp {
			s.logger.Debug("Versionstamp check failed",
				zap.Stringer("key", check.Key),
				zap.String("expected", string(check.Versionstamp)),
				zap.String("actual", string(current)),
			)
			return CommitResult{OK: false}, nil
		}
	}

	vs := NewVersionstamp()
	batch := new(leveldb.Batch)
	for _, m := range mutations {
		switch m.Type {
		case MutationSet:
			batch.Put(m.Key.Encode(), packRecord(vs, m.Value))
		case MutationDelete:
			batch.Delete(m.Key.Encode())
		default:
			return CommitResult{}, fmt.Errorf("kv: unknown mutation type %d", m.Type)
		}
	}
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: s.sync}); err != nil {
		return CommitResult{}, storeError(backendLevelDB, "commit", err)
	}
	return CommitResult{OK: true, Versionstamp: vs}, nil
}

// Close implements Store
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func (s *LevelDBStore) currentVersionstamp(key Key) (Versionstamp, error) {
	raw, err := s.db.Get(key.Encode(), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	vs, _, err := unpackRecord(raw)
	return vs, err
}

// packRecord stores the versionstamp ahead of the value: uvarint length, versionstamp, value.
func packRecord(vs Versionstamp, value []byte) []byte {
	buf := make([]byte, binary.MaxVarintLen64+len(vs)+len(value))
	n := binary.PutUvarint(buf, uint64(len(vs)))
	n += copy(buf[n:], vs)
	n += copy(buf[n:], value)
	return buf[:n]
}

func unpackRecord(raw []byte) (Versionstamp, []byte, error) {
	size, n := binary.Uvarint(raw)
	if n <= 0 || uint64(len(raw)-n) < size {
		return "", nil, fmt.Errorf("kv: corrupt record header")
	}
	end := n + int(size)
	vs := Versionstamp(raw[n:end])
	value := make([]byte, len(raw)-end)
	copy(value, raw[end:])
	return vs, value, nil
}

var _ Store = (*LevelDBStore)(nil)
