package cacheStore_test

import (
	"context"
	"testing"

	"github.com/Layr-Labs/fundtracer/internal/types/numbers"
	"github.com/Layr-Labs/fundtracer/pkg/cacheStore"
	"github.com/Layr-Labs/fundtracer/pkg/cacheStore/memoryCacheStore"
	"github.com/stretchr/testify/assert"
)

type cachedAmount struct {
	Hash  string               `json:"hash"`
	Value *numbers.BigQuantity `json:"value"`
}

func Test_CacheStore(t *testing.T) {
	t.Run("Test key builders", func(t *testing.T) {
		assert.Equal(t, "abi_0xabcd_1", cacheStore.AbiKey("0xABCD", 1))
		assert.Equal(t, "tx_0xff_137", cacheStore.TransactionKey("0xFF", 137))
		assert.Equal(t, "price_ETH_1_2024-01-02", cacheStore.PriceKey("eth", 1, "2024-01-02"))
		assert.Equal(t, "code_0xabcd_10", cacheStore.CodeKey("0xAbCd", 10))
		assert.Equal(t, cacheStore.EntryKind_Price, cacheStore.KindOf("price_ETH_1_2024-01-02"))
	})
	t.Run("Test the same hash on two chains is two entries", func(t *testing.T) {
		assert.NotEqual(t, cacheStore.TransactionKey("0x01", 1), cacheStore.TransactionKey("0x01", 10))
	})
	t.Run("Test big integers survive a json round trip as decimal strings", func(t *testing.T) {
		store := memoryCacheStore.NewMemoryCacheStore()
		value, _ := numbers.NewBigQuantityFromString("123456789012345678901234567890")

		raw, err := cacheStore.PutJSON(context.Background(), store, "tx_0x01_1", &cachedAmount{Hash: "0x01", Value: value})
		assert.Nil(t, err)
		assert.Contains(t, string(raw), `"123456789012345678901234567890"`)

		got, found, err := cacheStore.GetJSON[cachedAmount](context.Background(), store, "tx_0x01_1")
		assert.Nil(t, err)
		assert.True(t, found)
		assert.Equal(t, "123456789012345678901234567890", got.Value.String())
	})
	t.Run("Test missing keys are not errors", func(t *testing.T) {
		store := memoryCacheStore.NewMemoryCacheStore()
		got, found, err := cacheStore.GetJSON[cachedAmount](context.Background(), store, "tx_0x02_1")
		assert.Nil(t, err)
		assert.False(t, found)
		assert.Nil(t, got)
	})
	t.Run("Test corrupt entries surface as errors", func(t *testing.T) {
		store := memoryCacheStore.NewMemoryCacheStore()
		_ = store.Put(context.Background(), "tx_0x03_1", []byte("{not json"))
		_, _, err := cacheStore.GetJSON[cachedAmount](context.Background(), store, "tx_0x03_1")
		assert.NotNil(t, err)
	})
}
