package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func Test_Config(t *testing.T) {
	t.Run("Test reading config from viper keys", func(t *testing.T) {
		viper.Reset()
		defer viper.Reset()

		viper.Set(KebabToSnakeCase(ChainId), 137)
		viper.Set(KebabToSnakeCase(EthereumRpcUrl), "http://localhost:8545")
		viper.Set(KebabToSnakeCase(EthereumRpcRetryDelays), "1s, 3s,bogus")
		viper.Set(KebabToSnakeCase(CoinGeckoAssetIds), []string{"usdc=usd-coin", "broken", "DAI = dai"})
		viper.Set(KebabToSnakeCase(TraversalWindowDays), 2)
		viper.Set(KebabToSnakeCase(PacingExplorer), "401ms")

		cfg := NewConfig()

		assert.Equal(t, uint64(137), cfg.ChainId)
		assert.Equal(t, "http://localhost:8545", cfg.EthereumRpcConfig.BaseUrl)
		assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, cfg.EthereumRpcConfig.RetryDelays)
		assert.Equal(t, map[string]string{"USDC": "usd-coin", "DAI": "dai"}, cfg.CoinGeckoConfig.AssetIds)
		assert.Equal(t, 401*time.Millisecond, cfg.PacingConfig.Explorer)

		window, err := cfg.GetForwardBlockWindow()
		assert.Nil(t, err)
		assert.Equal(t, uint64(80000), window)
	})
	t.Run("Test ethereum forward window uses 6500 blocks per day", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.TraversalConfig.WindowDays = 3

		window, err := cfg.GetForwardBlockWindow()
		assert.Nil(t, err)
		assert.Equal(t, uint64(19500), window)
	})
	t.Run("Test explorer url falls back to the chain table", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.ChainId = Chain_Arbitrum

		url, err := cfg.GetEtherscanUrl()
		assert.Nil(t, err)
		assert.Equal(t, "https://api.arbiscan.io/api", url)

		cfg.EtherscanConfig.Url = "http://explorer.local/api"
		url, err = cfg.GetEtherscanUrl()
		assert.Nil(t, err)
		assert.Equal(t, "http://explorer.local/api", url)
	})
	t.Run("Test validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		assert.NotNil(t, cfg.Validate())

		cfg.EthereumRpcConfig.BaseUrl = "http://localhost:8545"
		assert.Nil(t, cfg.Validate())

		cfg.CacheConfig.Backend = CacheBackend_LevelDb
		assert.NotNil(t, cfg.Validate())
		cfg.CacheConfig.Path = "/tmp/cache"
		assert.Nil(t, cfg.Validate())

		cfg.ChainId = 5
		assert.NotNil(t, cfg.Validate())
	})
}
