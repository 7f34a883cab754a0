package coingecko

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Layr-Labs/fundtracer/internal/config"
	"github.com/Layr-Labs/fundtracer/internal/metrics"
	"github.com/Layr-Labs/fundtracer/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/fundtracer/pkg/flowErrors"
	"github.com/Layr-Labs/fundtracer/pkg/pacer"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	metricsServiceName = "price"
	historyDateLayout  = "02-01-2006"
)

type CoinGeckoClient struct {
	httpClient  *http.Client
	Logger      *zap.Logger
	Config      *config.Config
	pacer       *pacer.Pacer
	metricsSink *metrics.MetricsSink
}

type historyResponse struct {
	MarketData *struct {
		CurrentPrice map[string]json.Number `json:"current_price"`
	} `json:"market_data"`
}

func NewCoinGeckoClient(hc *http.Client, p *pacer.Pacer, ms *metrics.MetricsSink, l *zap.Logger, cfg *config.Config) *CoinGeckoClient {
	return &CoinGeckoClient{
		httpClient:  hc,
		Logger:      l,
		Config:      cfg,
		pacer:       p,
		metricsSink: ms,
	}
}

func (cc *CoinGeckoClient) SetHttpClient(client *http.Client) {
	cc.httpClient = client
}

func (cc *CoinGeckoClient) get(ctx context.Context, path string, values url.Values) ([]byte, error) {
	fullUrl := fmt.Sprintf("%s%s?%s", strings.TrimRight(cc.Config.CoinGeckoConfig.Url, "/"), path, values.Encode())

	if err := cc.pacer.Wait(ctx); err != nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_OracleRead, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullUrl, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if cc.Config.CoinGeckoConfig.ApiKey != "" {
		req.Header.Set("x-cg-demo-api-key", cc.Config.CoinGeckoConfig.ApiKey)
	}

	start := time.Now()
	res, err := cc.httpClient.Do(req)
	_ = cc.metricsSink.Incr(metricsTypes.Metric_Incr_ExternalCall, []metricsTypes.MetricsLabel{{Name: "service", Value: metricsServiceName}}, 1)
	_ = cc.metricsSink.Timing(metricsTypes.Metric_Timing_ExternalCall, time.Since(start), []metricsTypes.MetricsLabel{{Name: "service", Value: metricsServiceName}})
	if err != nil {
		cc.Logger.Sugar().Errorw("Failed to perform the CoinGecko HTTP request", zap.Error(err))
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_OracleRead, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_OracleRead, err)
	}
	if res.StatusCode == http.StatusNotFound {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_PriceNotFound, fmt.Errorf("%s not listed", path))
	}
	if res.StatusCode != http.StatusOK {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_OracleRead, fmt.Errorf("response status %v %s", res.StatusCode, res.Status))
	}
	return body, nil
}

func decodeWithNumbers(body []byte, v interface{}) error {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	return decoder.Decode(v)
}

// SimplePrice returns the current USD price for a CoinGecko asset id.
func (cc *CoinGeckoClient) SimplePrice(ctx context.Context, assetId string) (decimal.Decimal, error) {
	assetId = strings.ToLower(assetId)
	body, err := cc.get(ctx, "/simple/price", url.Values{
		"ids":           []string{assetId},
		"vs_currencies": []string{"usd"},
	})
	if err != nil {
		return decimal.Zero, err
	}

	prices := map[string]map[string]json.Number{}
	if err := decodeWithNumbers(body, &prices); err != nil {
		return decimal.Zero, flowErrors.NewFlowError(flowErrors.FlowError_Validation, err)
	}
	usd, ok := prices[assetId]["usd"]
	if !ok {
		return decimal.Zero, flowErrors.NewFlowError(flowErrors.FlowError_PriceNotFound, fmt.Errorf("unable to fetch %s price", strings.ToUpper(assetId)))
	}
	return decimal.NewFromString(usd.String())
}

// HistoricalPrice returns the USD price of an asset on the UTC day containing at.
func (cc *CoinGeckoClient) HistoricalPrice(ctx context.Context, assetId string, at time.Time) (decimal.Decimal, error) {
	assetId = strings.ToLower(assetId)
	body, err := cc.get(ctx, fmt.Sprintf("/coins/%s/history", url.PathEscape(assetId)), url.Values{
		"date":         []string{at.UTC().Format(historyDateLayout)},
		"localization": []string{"false"},
	})
	if err != nil {
		return decimal.Zero, err
	}

	parsed := &historyResponse{}
	if err := decodeWithNumbers(body, parsed); err != nil {
		return decimal.Zero, flowErrors.NewFlowError(flowErrors.FlowError_Validation, err)
	}
	if parsed.MarketData == nil {
		return decimal.Zero, flowErrors.NewFlowError(flowErrors.FlowError_PriceNotFound, fmt.Errorf("no market data for %s on %s", assetId, at.UTC().Format(historyDateLayout)))
	}
	usd, ok := parsed.MarketData.CurrentPrice["usd"]
	if !ok {
		return decimal.Zero, flowErrors.NewFlowError(flowErrors.FlowError_PriceNotFound, fmt.Errorf("no usd price for %s", assetId))
	}
	return decimal.NewFromString(usd.String())
}
