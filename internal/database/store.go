package database

import (
	"context"
	"time"

	"github.com/caravel-app/caravel/internal/domain"
	"github.com/caravel-app/caravel/internal/logger"
	"github.com/caravel-app/caravel/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// KVEntry represents the structure of the 'kv_entries' table. One row per
// cached snapshot or pending mutation; (namespace, key) is the identity.
type KVEntry struct {
	Namespace string    `gorm:"primaryKey;column:namespace"`
	Key       string    `gorm:"primaryKey;column:key"`
	Value     []byte    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (KVEntry) TableName() string {
	return "kv_entries"
}

func NewStoreRepo(log logger.Logger, db *DB) domain.LocalStore {
	return &StoreRepo{
		log: log.With().Str("repo", "store").Logger(),
		db:  db,
	}
}

type StoreRepo struct {
	log zerolog.Logger
	db  *DB
}

// Put durably writes value under (namespace, key), replacing any previous
// value whole. The write is committed before the call returns.
func (r *StoreRepo) Put(ctx context.Context, namespace, key string, value []byte) error {
	now := time.Now()

	entry := KVEntry{
		Namespace: namespace,
		Key:       key,
		Value:     value,
		UpdatedAt: now,
	}

	db := r.db.Get().WithContext(ctx)

	// Try to update first
	updateResult := db.Model(&KVEntry{}).
		Where("namespace = ? AND key = ?", namespace, key).
		Updates(map[string]interface{}{
			"value":      value,
			"updated_at": now,
		})

	if updateResult.Error != nil {
		r.log.Error().Err(updateResult.Error).Str("namespace", namespace).Str("key", key).Msg("Error updating store entry")
		return domain.NewStorageError("put", errors.Wrap(updateResult.Error, "error updating store entry"))
	}

	// If no rows were affected by the update, insert a new record
	if updateResult.RowsAffected == 0 {
		createResult := db.Create(&entry)
		if createResult.Error != nil {
			r.log.Error().Err(createResult.Error).Str("namespace", namespace).Str("key", key).Msg("Error inserting store entry after failed update")
			return domain.NewStorageError("put", errors.Wrap(createResult.Error, "error inserting store entry"))
		}
		if createResult.RowsAffected == 0 {
			r.log.Error().Str("namespace", namespace).Str("key", key).Msg("Insert operation affected 0 rows unexpectedly")
			return domain.NewStorageError("put", errors.New("failed to insert store entry, 0 rows affected"))
		}
		r.log.Debug().Str("namespace", namespace).Str("key", key).Msg("Store entry inserted")
	} else {
		r.log.Debug().Str("namespace", namespace).Str("key", key).Msg("Store entry updated")
	}

	return nil
}

// Get retrieves the value under (namespace, key). A missing key is not an
// error: Get returns (nil, nil).
func (r *StoreRepo) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var entry KVEntry
	result := r.db.Get().WithContext(ctx).
		Where("namespace = ? AND key = ?", namespace, key).
		First(&entry)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Error().Err(result.Error).Str("namespace", namespace).Str("key", key).Msg("Failed to get store entry")
		return nil, domain.NewStorageError("get", errors.Wrap(result.Error, "failed to get store entry"))
	}

	return entry.Value, nil
}

// Delete removes the entry under (namespace, key). Deleting an absent key is
// a no-op, mirroring Get's treatment of missing keys.
func (r *StoreRepo) Delete(ctx context.Context, namespace, key string) error {
	result := r.db.Get().WithContext(ctx).
		Where("namespace = ? AND key = ?", namespace, key).
		Delete(&KVEntry{})

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("namespace", namespace).Str("key", key).Msg("Failed to delete store entry")
		return domain.NewStorageError("delete", errors.Wrap(result.Error, "failed to delete store entry"))
	}

	return nil
}

// AllEntries returns every key/value pair in a namespace.
func (r *StoreRepo) AllEntries(ctx context.Context, namespace string) (map[string][]byte, error) {
	var rows []KVEntry
	result := r.db.Get().WithContext(ctx).
		Where("namespace = ?", namespace).
		Find(&rows)

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("namespace", namespace).Msg("Failed to list store entries")
		return nil, domain.NewStorageError("all_entries", errors.Wrap(result.Error, "failed to list store entries"))
	}

	entries := make(map[string][]byte, len(rows))
	for _, row := range rows {
		entries[row.Key] = row.Value
	}

	return entries, nil
}

// Counts returns the entry count per namespace across the whole store.
func (r *StoreRepo) Counts(ctx context.Context) (map[string]int, error) {
	type nsCount struct {
		Namespace string
		Count     int
	}

	var rows []nsCount
	result := r.db.Get().WithContext(ctx).
		Model(&KVEntry{}).
		Select("namespace, count(*) as count").
		Group("namespace").
		Find(&rows)

	if result.Error != nil {
		r.log.Error().Err(result.Error).Msg("Failed to count store entries")
		return nil, domain.NewStorageError("counts", errors.Wrap(result.Error, "failed to count store entries"))
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Namespace] = row.Count
	}

	return counts, nil
}

// HealthCheck reports whether the backing database answers a ping.
func (r *StoreRepo) HealthCheck(ctx context.Context) bool {
	sqlDB, err := r.db.Get().DB()
	if err != nil {
		r.log.Warn().Err(err).Msg("Health check failed to reach underlying *sql.DB")
		return false
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		r.log.Warn().Err(err).Msg("Health check ping failed")
		return false
	}
	return true
}
