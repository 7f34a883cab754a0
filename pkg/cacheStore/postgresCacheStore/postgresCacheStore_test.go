package postgresCacheStore

import (
	"context"
	"testing"

	"github.com/Layr-Labs/fundtracer/internal/config"
	"github.com/Layr-Labs/fundtracer/internal/logger"
	"github.com/Layr-Labs/fundtracer/internal/tests"
	"github.com/Layr-Labs/fundtracer/pkg/postgres"
	"github.com/stretchr/testify/assert"
)

func Test_PostgresCacheStore(t *testing.T) {
	dbCfg := tests.GetDbConfigFromEnv()
	if dbCfg == nil {
		t.Skip("postgres is not configured")
	}
	cfg := config.NewDefaultConfig()
	cfg.DatabaseConfig = *dbCfg

	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	dbName, _, grm, err := postgres.GetTestPostgresDatabase(cfg, l)
	if err != nil {
		t.Fatal(err)
	}
	defer postgres.TeardownTestDatabase(dbName, cfg, grm, l)

	store := NewPostgresCacheStore(grm, l)

	t.Run("Test first write wins", func(t *testing.T) {
		assert.Nil(t, store.Put(context.Background(), "abi_0x01_1", []byte("first")))
		assert.Nil(t, store.Put(context.Background(), "abi_0x01_1", []byte("second")))

		value, found, err := store.Get(context.Background(), "abi_0x01_1")
		assert.Nil(t, err)
		assert.True(t, found)
		assert.Equal(t, "first", string(value))
	})
	t.Run("Test missing keys are not errors", func(t *testing.T) {
		_, found, err := store.Get(context.Background(), "abi_0x02_1")
		assert.Nil(t, err)
		assert.False(t, found)
	})
	t.Run("Test entries are counted per kind", func(t *testing.T) {
		assert.Nil(t, store.Put(context.Background(), "tx_0x01_1", []byte("{}")))
		counts, err := store.CountByKind(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, int64(1), counts["abi"])
		assert.Equal(t, int64(1), counts["tx"])
	})
}
