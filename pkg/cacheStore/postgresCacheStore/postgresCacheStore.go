package postgresCacheStore

import (
	"context"
	"errors"

	"github.com/Layr-Labs/fundtracer/pkg/cacheStore"
	"github.com/Layr-Labs/fundtracer/pkg/postgres/helpers"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CacheEntry struct {
	Key   string `gorm:"primaryKey"`
	Kind  string
	Value []byte
}

func (CacheEntry) TableName() string {
	return "cache_entries"
}

// PostgresCacheStore shares cache entries between processes. Conflicting writes keep the
// first value.
type PostgresCacheStore struct {
	Db     *gorm.DB
	Logger *zap.Logger
}

func NewPostgresCacheStore(db *gorm.DB, l *zap.Logger) *PostgresCacheStore {
	return &PostgresCacheStore{
		Db:     db,
		Logger: l,
	}
}

func (s *PostgresCacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry CacheEntry
	result := s.Db.WithContext(ctx).First(&entry, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, result.Error
	}
	return entry.Value, true, nil
}

func (s *PostgresCacheStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := helpers.WrapTxAndCommit[*CacheEntry](func(tx *gorm.DB) (*CacheEntry, error) {
		entry := &CacheEntry{
			Key:   key,
			Kind:  string(cacheStore.KindOf(key)),
			Value: value,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(entry)
		if res.Error != nil {
			s.Logger.Sugar().Errorw("Failed to write cache entry", zap.String("key", key), zap.Error(res.Error))
			return nil, res.Error
		}
		return entry, nil
	}, s.Db.WithContext(ctx), nil)
	return err
}

// CountByKind reports how many entries of each kind are stored.
func (s *PostgresCacheStore) CountByKind(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Kind  string
		Total int64
	}
	rows := make([]row, 0)
	res := s.Db.WithContext(ctx).Model(&CacheEntry{}).Select("kind, count(*) as total").Group("kind").Scan(&rows)
	if res.Error != nil {
		return nil, res.Error
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Kind] = r.Total
	}
	return counts, nil
}

func (s *PostgresCacheStore) Close() error {
	return nil
}
