package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const backendSQL = "sql"

// errCheckFailed rolls back a commit transaction whose checks did not hold
var errCheckFailed = errors.New("kv: versionstamp check failed")

// KVEntryModel is the row layout of the kv_entries table.
// kv_key holds the order-preserving encoding, so ORDER BY kv_key is tuple order.
type KVEntryModel struct {
	Key          []byte    `gorm:"column:kv_key;primaryKey"`
	Value        []byte    `gorm:"column:value"`
	Versionstamp string    `gorm:"column:versionstamp;size:36;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

// TableName returns the table name for GORM
func (KVEntryModel) TableName() string {
	return "kv_entries"
}

// GormStore implements Store on a SQL database through GORM (SQLite or PostgreSQL).
// Checks are enforced inside one transaction: an existing key is locked by a no-op conditional
// UPDATE on its versionstamp, an absent key is reserved by INSERT ... ON CONFLICT DO NOTHING.
// Zero rows affected means the check failed and the transaction is rolled back.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore creates a store on an open GORM connection
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{db: db, logger: logger.Named("kv.sql")}
}

// EnsureSchema creates the kv_entries table when it does not exist yet
func (s *GormStore) EnsureSchema(ctx context.Context) error {
	migrator := s.db.WithContext(ctx).Migrator()
	if migrator.HasTable(&KVEntryModel{}) {
		return nil
	}
	if err := migrator.CreateTable(&KVEntryModel{}); err != nil {
		return storeError(backendSQL, "create table", err)
	}
	return nil
}

// Get implements Store
func (s *GormStore) Get(ctx context.Context, key Key) (Entry, error) {
	var model KVEntryModel
	err := s.db.WithContext(ctx).Where("kv_key = ?", key.Encode()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{Key: key}, nil
	}
	if err != nil {
		return Entry{}, s.wrap(ctx, "get", err)
	}
	return Entry{Key: key, Value: nonNil(model.Value), Versionstamp: Versionstamp(model.Versionstamp)}, nil
}

// Set implements Store
func (s *GormStore) Set(ctx context.Context, key Key, value []byte) (Versionstamp, error) {
	res, err := s.Commit(ctx, nil, []Mutation{{Type: MutationSet, Key: key, Value: value}})
	if err != nil {
		return "", err
	}
	return res.Versionstamp, nil
}

// Delete implements Store
func (s *GormStore) Delete(ctx context.Context, key Key) error {
	_, err := s.Commit(ctx, nil, []Mutation{{Type: MutationDelete, Key: key}})
	return err
}

// List implements Store
func (s *GormStore) List(ctx context.Context, prefix Key) ([]Entry, error) {
	start, limit := PrefixRange(prefix)
	query := s.db.WithContext(ctx).Where("kv_key >= ?", start)
	if limit != nil {
		query = query.Where("kv_key < ?", limit)
	}

	var models []KVEntryModel
	if err := query.Order("kv_key ASC").Find(&models).Error; err != nil {
		return nil, s.wrap(ctx, "list", err)
	}

	entries := make([]Entry, 0, len(models))
	for _, model := range models {
		key, err := DecodeKey(model.Key)
		if err != nil {
			return nil, storeError(backendSQL, "list", err)
		}
		entries = append(entries, Entry{Key: key, Value: nonNil(model.Value), Versionstamp: Versionstamp(model.Versionstamp)})
	}
	return entries, nil
}

// Commit implements Store
func (s *GormStore) Commit(ctx context.Context, checks []Check, mutations []Mutation) (CommitResult, error) {
	if err := ctx.Err(); err != nil {
		return CommitResult{}, err
	}

	vs := NewVersionstamp()
	now := time.Now().UTC()

	// lock rows in key order so concurrent commits cannot deadlock
	ordered := make([]Check, len(checks))
	copy(ordered, checks)
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].Key.Encode(), ordered[j].Key.Encode()) < 0
	})

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reserved := make(map[string]bool)
		for _, check := range ordered {
			ok, err := s.applyCheck(tx, check, vs, now)
			if err != nil {
				return err
			}
			if !ok {
				s.logger.Debug("Versionstamp check failed",
					zap.Stringer("key", check.Key),
					zap.String("expected", string(check.Versionstamp)),
				)
				return errCheckFailed
			}
			if check.Versionstamp == "" {
				reserved[string(check.Key.Encode())] = true
			}
		}

		for _, m := range mutations {
			encoded := m.Key.Encode()
			switch m.Type {
			case MutationSet:
				model := KVEntryModel{Key: encoded, Value: nonNil(m.Value), Versionstamp: string(vs), UpdatedAt: now}
				err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "kv_key"}},
					DoUpdates: clause.AssignmentColumns([]string{"value", "versionstamp", "updated_at"}),
				}).Create(&model).Error
				if err != nil {
					return err
				}
				delete(reserved, string(encoded))
			case MutationDelete:
				if err := tx.Where("kv_key = ?", encoded).Delete(&KVEntryModel{}).Error; err != nil {
					return err
				}
				delete(reserved, string(encoded))
			default:
				return fmt.Errorf("kv: unknown mutation type %d", m.Type)
			}
		}

		// absence reservations for keys the commit does not write
		for encoded := range reserved {
			if err := tx.Where("kv_key = ?", []byte(encoded)).Delete(&KVEntryModel{}).Error; err != nil {
				return err
			}
		}
		return nil
	})

	if errors.Is(err, errCheckFailed) {
		return CommitResult{OK: false}, nil
	}
	if err != nil {
		return CommitResult{}, s.wrap(ctx, "commit", err)
	}
	return CommitResult{OK: true, Versionstamp: vs}, nil
}

func (s *GormStore) applyCheck(tx *gorm.DB, check Check, vs Versionstamp, now time.Time) (bool, error) {
	encoded := check.Key.Encode()
	if check.Versionstamp == "" {
		reservation := KVEntryModel{Key: encoded, Value: []byte{}, Versionstamp: string(vs), UpdatedAt: now}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reservation)
		if result.Error != nil {
			return false, result.Error
		}
		return result.RowsAffected == 1, nil
	}

	result := tx.Model(&KVEntryModel{}).
		Where("kv_key = ? AND versionstamp = ?", encoded, string(check.Versionstamp)).
		UpdateColumn("versionstamp", gorm.Expr("versionstamp"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Close implements Store
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storeError(backendSQL, "close", err)
	}
	return sqlDB.Close()
}

func (s *GormStore) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return storeError(backendSQL, op, err)
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

var _ Store = (*GormStore)(nil)
