package levelDbCacheStore

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"go.uber.org/zap"
)

// LevelDbCacheStore persists cache entries in an embedded leveldb database so they
// survive across runs.
type LevelDbCacheStore struct {
	db     *leveldb.DB
	logger *zap.Logger

	// serializes the existence check and the write
	writeLock sync.Mutex
}

func NewLevelDbCacheStore(path string, l *zap.Logger) (*LevelDbCacheStore, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open leveldb cache at '%s'", path)
	}
	l.Sugar().Debugw("Opened leveldb cache store", zap.String("path", path))
	return &LevelDbCacheStore{
		db:     db,
		logger: l,
	}, nil
}

func (s *LevelDbCacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to read cache entry '%s'", key)
	}
	return value, true, nil
}

func (s *LevelDbCacheStore) Put(ctx context.Context, key string, value []byte) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	exists, err := s.db.Has([]byte(key), nil)
	if err != nil {
		return errors.Wrapf(err, "failed to check cache entry '%s'", key)
	}
	if exists {
		return nil
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte(key), value)
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrapf(err, "failed to write cache entry '%s'", key)
	}
	return nil
}

func (s *LevelDbCacheStore) Close() error {
	return s.db.Close()
}
