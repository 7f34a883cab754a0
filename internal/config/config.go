package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const ENV_PREFIX = "FUNDTRACER"

type CacheBackend string

const (
	CacheBackend_Memory   CacheBackend = "memory"
	CacheBackend_LevelDb  CacheBackend = "leveldb"
	CacheBackend_Postgres CacheBackend = "postgres"
)

type Config struct {
	Debug             bool
	ChainId           uint64
	EthereumRpcConfig EthereumRpcConfig
	EtherscanConfig   EtherscanConfig
	CoinGeckoConfig   CoinGeckoConfig
	IpfsConfig        IpfsConfig
	CacheConfig       CacheConfig
	DatabaseConfig    DatabaseConfig
	TraversalConfig   TraversalConfig
	PacingConfig      PacingConfig
	KnownWalletsFile  string
	ReportConfig      ReportConfig
	DataDogConfig     DataDogConfig
	PrometheusConfig  PrometheusConfig
}

type EthereumRpcConfig struct {
	BaseUrl     string
	RetryDelays []time.Duration
}

type EtherscanConfig struct {
	ApiKeys  []string
	Url      string
	PageSize int
	MaxPages int
}

type CoinGeckoConfig struct {
	Url    string
	ApiKey string
	// symbol -> coingecko asset id for ERC-20 tokens
	AssetIds map[string]string
}

type IpfsConfig struct {
	Url string
}

type CacheConfig struct {
	Backend CacheBackend
	Path    string
}

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DbName      string
	SchemaName  string
	SSLMode     string
	SSLCert     string
	SSLKey      string
	SSLRootCert string
}

type TraversalConfig struct {
	Depth            int
	WindowDays       int
	MaxCandidates    int
	TolerancePercent float64
	ToleranceUsd     float64
	MaxSubsetPool    int
	Concurrency      int
	RunTimeout       time.Duration
	CallTimeout      time.Duration
}

// PacingConfig holds the minimum spacing between two calls to the same external service.
type PacingConfig struct {
	Explorer time.Duration
	Price    time.Duration
	Rpc      time.Duration
}

type ReportConfig struct {
	OutputDir    string
	KafkaBrokers []string
	KafkaTopic   string
}

type DataDogConfig struct {
	StatsdConfig StatsdConfig
}

type StatsdConfig struct {
	Enabled    bool
	Url        string
	SampleRate float64
}

type PrometheusConfig struct {
	Enabled bool
	Port    int
}

var (
	Debug   = "debug"
	ChainId = "chain-id"

	EthereumRpcUrl         = "ethereum.rpc-url"
	EthereumRpcRetryDelays = "ethereum.retry-delays"

	EtherscanApiKeys  = "etherscan.api-keys"
	EtherscanUrl      = "etherscan.url"
	EtherscanPageSize = "etherscan.page-size"
	EtherscanMaxPages = "etherscan.max-pages"

	CoinGeckoUrl      = "coingecko.url"
	CoinGeckoApiKey   = "coingecko.api-key"
	CoinGeckoAssetIds = "coingecko.asset-ids"

	IpfsUrl = "ipfs.url"

	CacheBackendKey = "cache.backend"
	CachePath       = "cache.path"

	DatabaseHost        = "database.host"
	DatabasePort        = "database.port"
	DatabaseUser        = "database.user"
	DatabasePassword    = "database.password"
	DatabaseDbName      = "database.db-name"
	DatabaseSchemaName  = "database.schema-name"
	DatabaseSSLMode     = "database.ssl-mode"
	DatabaseSSLCert     = "database.ssl-cert"
	DatabaseSSLKey      = "database.ssl-key"
	DatabaseSSLRootCert = "database.ssl-root-cert"

	TraversalDepth            = "traversal.depth"
	TraversalWindowDays       = "traversal.window-days"
	TraversalMaxCandidates    = "traversal.max-candidates"
	TraversalTolerancePercent = "traversal.tolerance-percent"
	TraversalToleranceUsd     = "traversal.tolerance-usd"
	TraversalMaxSubsetPool    = "traversal.max-subset-pool"
	TraversalConcurrency      = "traversal.concurrency"
	TraversalRunTimeout       = "traversal.run-timeout"
	TraversalCallTimeout      = "traversal.call-timeout"

	PacingExplorer = "pacing.explorer"
	PacingPrice    = "pacing.price"
	PacingRpc      = "pacing.rpc"

	KnownWalletsFile = "known-wallets.file"

	ReportOutputDir    = "report.output-dir"
	ReportKafkaBrokers = "report.kafka.brokers"
	ReportKafkaTopic   = "report.kafka.topic"

	DataDogStatsdEnabled    = "datadog.statsd.enabled"
	DataDogStatsdUrl        = "datadog.statsd.url"
	DataDogStatsdSampleRate = "datadog.statsd.sample-rate"

	PrometheusEnabled = "prometheus.enabled"
	PrometheusPort    = "prometheus.port"
)

func NewConfig() *Config {
	return &Config{
		Debug:   viper.GetBool(normalizeFlagName(Debug)),
		ChainId: viper.GetUint64(normalizeFlagName(ChainId)),

		EthereumRpcConfig: EthereumRpcConfig{
			BaseUrl:     viper.GetString(normalizeFlagName(EthereumRpcUrl)),
			RetryDelays: parseDurationList(viper.GetString(normalizeFlagName(EthereumRpcRetryDelays))),
		},

		EtherscanConfig: EtherscanConfig{
			ApiKeys:  StringWithDefaults(viper.GetStringSlice(normalizeFlagName(EtherscanApiKeys)), []string{}),
			Url:      viper.GetString(normalizeFlagName(EtherscanUrl)),
			PageSize: viper.GetInt(normalizeFlagName(EtherscanPageSize)),
			MaxPages: viper.GetInt(normalizeFlagName(EtherscanMaxPages)),
		},

		CoinGeckoConfig: CoinGeckoConfig{
			Url:      viper.GetString(normalizeFlagName(CoinGeckoUrl)),
			ApiKey:   viper.GetString(normalizeFlagName(CoinGeckoApiKey)),
			AssetIds: parseKeyValueList(viper.GetStringSlice(normalizeFlagName(CoinGeckoAssetIds))),
		},

		IpfsConfig: IpfsConfig{
			Url: viper.GetString(normalizeFlagName(IpfsUrl)),
		},

		CacheConfig: CacheConfig{
			Backend: CacheBackend(viper.GetString(normalizeFlagName(CacheBackendKey))),
			Path:    viper.GetString(normalizeFlagName(CachePath)),
		},

		DatabaseConfig: DatabaseConfig{
			Host:        viper.GetString(normalizeFlagName(DatabaseHost)),
			Port:        viper.GetInt(normalizeFlagName(DatabasePort)),
			User:        viper.GetString(normalizeFlagName(DatabaseUser)),
			Password:    viper.GetString(normalizeFlagName(DatabasePassword)),
			DbName:      viper.GetString(normalizeFlagName(DatabaseDbName)),
			SchemaName:  viper.GetString(normalizeFlagName(DatabaseSchemaName)),
			SSLMode:     viper.GetString(normalizeFlagName(DatabaseSSLMode)),
			SSLCert:     viper.GetString(normalizeFlagName(DatabaseSSLCert)),
			SSLKey:      viper.GetString(normalizeFlagName(DatabaseSSLKey)),
			SSLRootCert: viper.GetString(normalizeFlagName(DatabaseSSLRootCert)),
		},

		TraversalConfig: TraversalConfig{
			Depth:            viper.GetInt(normalizeFlagName(TraversalDepth)),
			WindowDays:       viper.GetInt(normalizeFlagName(TraversalWindowDays)),
			MaxCandidates:    viper.GetInt(normalizeFlagName(TraversalMaxCandidates)),
			TolerancePercent: viper.GetFloat64(normalizeFlagName(TraversalTolerancePercent)),
			ToleranceUsd:     viper.GetFloat64(normalizeFlagName(TraversalToleranceUsd)),
			MaxSubsetPool:    viper.GetInt(normalizeFlagName(TraversalMaxSubsetPool)),
			Concurrency:      viper.GetInt(normalizeFlagName(TraversalConcurrency)),
			RunTimeout:       viper.GetDuration(normalizeFlagName(TraversalRunTimeout)),
			CallTimeout:      viper.GetDuration(normalizeFlagName(TraversalCallTimeout)),
		},

		PacingConfig: PacingConfig{
			Explorer: viper.GetDuration(normalizeFlagName(PacingExplorer)),
			Price:    viper.GetDuration(normalizeFlagName(PacingPrice)),
			Rpc:      viper.GetDuration(normalizeFlagName(PacingRpc)),
		},

		KnownWalletsFile: viper.GetString(normalizeFlagName(KnownWalletsFile)),

		ReportConfig: ReportConfig{
			OutputDir:    viper.GetString(normalizeFlagName(ReportOutputDir)),
			KafkaBrokers: StringWithDefaults(viper.GetStringSlice(normalizeFlagName(ReportKafkaBrokers)), []string{}),
			KafkaTopic:   viper.GetString(normalizeFlagName(ReportKafkaTopic)),
		},

		DataDogConfig: DataDogConfig{
			StatsdConfig: StatsdConfig{
				Enabled:    viper.GetBool(normalizeFlagName(DataDogStatsdEnabled)),
				Url:        viper.GetString(normalizeFlagName(DataDogStatsdUrl)),
				SampleRate: viper.GetFloat64(normalizeFlagName(DataDogStatsdSampleRate)),
			},
		},

		PrometheusConfig: PrometheusConfig{
			Enabled: viper.GetBool(normalizeFlagName(PrometheusEnabled)),
			Port:    viper.GetInt(normalizeFlagName(PrometheusPort)),
		},
	}
}

// NewDefaultConfig returns a Config populated with the same defaults the CLI flags carry.
func NewDefaultConfig() *Config {
	return &Config{
		ChainId: Chain_Ethereum,
		EtherscanConfig: EtherscanConfig{
			ApiKeys:  []string{},
			PageSize: 500,
			MaxPages: 10,
		},
		CoinGeckoConfig: CoinGeckoConfig{
			Url:      "https://api.coingecko.com/api/v3",
			AssetIds: map[string]string{},
		},
		IpfsConfig: IpfsConfig{
			Url: "https://ipfs.io/ipfs",
		},
		CacheConfig: CacheConfig{
			Backend: CacheBackend_Memory,
		},
		TraversalConfig: TraversalConfig{
			Depth:            3,
			WindowDays:       3,
			MaxCandidates:    20,
			TolerancePercent: 1,
			ToleranceUsd:     150,
			MaxSubsetPool:    16,
			Concurrency:      1,
			RunTimeout:       30 * time.Minute,
			CallTimeout:      20 * time.Second,
		},
		PacingConfig: PacingConfig{
			Explorer: 401 * time.Millisecond,
			Price:    401 * time.Millisecond,
		},
		ReportConfig: ReportConfig{
			OutputDir:    "./reports",
			KafkaBrokers: []string{},
			KafkaTopic:   "fundtracer-reports",
		},
	}
}

// GetChainInfo returns the static chain description for the configured chain id.
func (c *Config) GetChainInfo() (*ChainInfo, error) {
	return GetChainInfo(c.ChainId)
}

func (c *Config) GetEtherscanUrl() (string, error) {
	if c.EtherscanConfig.Url != "" {
		return c.EtherscanConfig.Url, nil
	}
	info, err := c.GetChainInfo()
	if err != nil {
		return "", err
	}
	return info.ExplorerApiUrl, nil
}

// GetForwardBlockWindow converts the configured window in days into a block count for the chain.
func (c *Config) GetForwardBlockWindow() (uint64, error) {
	info, err := c.GetChainInfo()
	if err != nil {
		return 0, err
	}
	days := c.TraversalConfig.WindowDays
	if days <= 0 {
		days = 1
	}
	return info.BlocksPerDay * uint64(days), nil
}

func (c *Config) Validate() error {
	if c.EthereumRpcConfig.BaseUrl == "" {
		return fmt.Errorf("%s is required", EthereumRpcUrl)
	}
	if _, err := c.GetChainInfo(); err != nil {
		return err
	}
	switch c.CacheConfig.Backend {
	case CacheBackend_Memory, CacheBackend_Postgres:
	case CacheBackend_LevelDb:
		if c.CacheConfig.Path == "" {
			return fmt.Errorf("%s is required for the leveldb cache", CachePath)
		}
	default:
		return fmt.Errorf("unsupported cache backend '%s'", c.CacheConfig.Backend)
	}
	if c.TraversalConfig.Depth < 0 {
		return fmt.Errorf("%s must be non-negative", TraversalDepth)
	}
	if c.TraversalConfig.TolerancePercent < 0 || c.TraversalConfig.ToleranceUsd < 0 {
		return fmt.Errorf("tolerances must be non-negative")
	}
	return nil
}

func KebabToSnakeCase(str string) string {
	return strings.ReplaceAll(str, "-", "_")
}

func normalizeFlagName(name string) string {
	return KebabToSnakeCase(name)
}

func StringWithDefaults(values []string, defaults []string) []string {
	if len(values) == 0 {
		return defaults
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return defaults
	}
	return out
}

func parseDurationList(s string) []time.Duration {
	durations := make([]time.Duration, 0)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			continue
		}
		durations = append(durations, d)
	}
	return durations
}

// parseKeyValueList turns ["USDC=usd-coin", "DAI=dai"] into a map keyed by upper-cased symbol.
func parseKeyValueList(values []string) map[string]string {
	out := make(map[string]string)
	for _, v := range values {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(parts[0]))
		val := strings.TrimSpace(parts[1])
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	return out
}
