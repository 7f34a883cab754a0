package priceOracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Layr-Labs/fundtracer/internal/config"
	"github.com/Layr-Labs/fundtracer/internal/metrics"
	"github.com/Layr-Labs/fundtracer/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/fundtracer/pkg/cacheStore"
	"github.com/Layr-Labs/fundtracer/pkg/flowErrors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceOracle returns the USD price of one whole unit of an asset. A zero time means "now".
type PriceOracle interface {
	PriceUSD(ctx context.Context, symbol string, at time.Time) (decimal.Decimal, error)
}

type PriceSource interface {
	SimplePrice(ctx context.Context, assetId string) (decimal.Decimal, error)
	HistoricalPrice(ctx context.Context, assetId string, at time.Time) (decimal.Decimal, error)
}

var defaultAssetIds = map[string]string{
	"USDC": "usd-coin",
	"USDT": "tether",
	"DAI":  "dai",
	"WETH": "weth",
	"WBTC": "wrapped-bitcoin",
	"LINK": "chainlink",
	"UNI":  "uniswap",
}

type cachedPrice struct {
	Usd decimal.Decimal `json:"usd"`
}

// CachedOracle memoizes daily prices per symbol and chain. The current day's price is
// never written since it keeps moving.
type CachedOracle struct {
	source      PriceSource
	store       cacheStore.CacheStore
	chainId     uint64
	assetIds    map[string]string
	logger      *zap.Logger
	metricsSink *metrics.MetricsSink
	now         func() time.Time
}

func NewCachedOracle(source PriceSource, store cacheStore.CacheStore, cfg *config.Config, ms *metrics.MetricsSink, l *zap.Logger) (*CachedOracle, error) {
	chainInfo, err := cfg.GetChainInfo()
	if err != nil {
		return nil, err
	}

	assetIds := make(map[string]string, len(defaultAssetIds)+len(cfg.CoinGeckoConfig.AssetIds)+1)
	for symbol, id := range defaultAssetIds {
		assetIds[symbol] = id
	}
	assetIds[strings.ToUpper(chainInfo.NativeCurrency.Symbol)] = chainInfo.NativeCurrency.PriceId
	for symbol, id := range cfg.CoinGeckoConfig.AssetIds {
		assetIds[strings.ToUpper(symbol)] = id
	}

	return &CachedOracle{
		source:      source,
		store:       store,
		chainId:     cfg.ChainId,
		assetIds:    assetIds,
		logger:      l,
		metricsSink: ms,
		now:         time.Now,
	}, nil
}

func (o *CachedOracle) AssetId(symbol string) (string, bool) {
	id, ok := o.assetIds[strings.ToUpper(symbol)]
	return id, ok && id != ""
}

func (o *CachedOracle) PriceUSD(ctx context.Context, symbol string, at time.Time) (decimal.Decimal, error) {
	assetId, ok := o.AssetId(symbol)
	if !ok {
		return decimal.Zero, flowErrors.NewFlowError(flowErrors.FlowError_PriceNotFound, fmt.Errorf("no price id for symbol '%s'", symbol)).
			WithMetadata("symbol", symbol)
	}

	today := o.now().UTC().Format("2006-01-02")
	if at.IsZero() || at.UTC().Format("2006-01-02") >= today {
		return o.source.SimplePrice(ctx, assetId)
	}

	key := cacheStore.PriceKey(symbol, o.chainId, at.UTC().Format("2006-01-02"))
	if o.store != nil {
		cached, found, err := cacheStore.GetJSON[cachedPrice](ctx, o.store, key)
		if err != nil {
			o.logger.Sugar().Warnw("Failed to read cached price", zap.String("key", key), zap.Error(err))
		}
		if found {
			o.recordCache(true)
			return cached.Usd, nil
		}
		o.recordCache(false)
	}

	price, err := o.source.HistoricalPrice(ctx, assetId, at)
	if err != nil {
		return decimal.Zero, err
	}

	if o.store != nil {
		if _, err := cacheStore.PutJSON(ctx, o.store, key, &cachedPrice{Usd: price}); err != nil {
			o.logger.Sugar().Warnw("Failed to cache price", zap.String("key", key), zap.Error(err))
		}
	}
	return price, nil
}

func (o *CachedOracle) recordCache(hit bool) {
	name := metricsTypes.Metric_Incr_CacheMiss
	if hit {
		name = metricsTypes.Metric_Incr_CacheHit
	}
	_ = o.metricsSink.Incr(name, []metricsTypes.MetricsLabel{{Name: "kind", Value: string(cacheStore.EntryKind_Price)}}, 1)
}
