package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Layr-Labs/fundtracer/internal/config"
	"github.com/Layr-Labs/fundtracer/internal/metrics"
	"github.com/Layr-Labs/fundtracer/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/fundtracer/pkg/flowErrors"
	"github.com/Layr-Labs/fundtracer/pkg/pacer"
	"go.uber.org/zap"
)

var defaultBackoffSchedule = []time.Duration{
	1 * time.Second,
	3 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

var (
	rateLimitRegex      = regexp.MustCompile(`^Max rate limit reached`)
	notVerifiedRegex    = regexp.MustCompile(`(?i)not verified`)
	noTransactionsRegex = regexp.MustCompile(`(?i)^No (transactions|token transfers) found`)
)

const metricsServiceName = "explorer"

type EtherscanClient struct {
	httpClient  *http.Client
	Logger      *zap.Logger
	Config      *config.Config
	pacer       *pacer.Pacer
	metricsSink *metrics.MetricsSink

	// BackoffSchedule is used when the explorer reports its rate limit
	BackoffSchedule []time.Duration
	keyIndex        uint32
}

type EtherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// Transaction is one row of the txlist / tokentx endpoints. Etherscan returns every field as a string.
type Transaction struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	Input           string `json:"input"`
	IsError         string `json:"isError"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
}

func (t *Transaction) BlockNumberUint64() uint64 {
	n, _ := strconv.ParseUint(t.BlockNumber, 10, 64)
	return n
}

func (t *Transaction) Timestamp() time.Time {
	n, _ := strconv.ParseInt(t.TimeStamp, 10, 64)
	return time.Unix(n, 0).UTC()
}

func (t *Transaction) ValueBig() *big.Int {
	v, ok := new(big.Int).SetString(t.Value, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

func (t *Transaction) Failed() bool {
	return t.IsError == "1"
}

func NewEtherscanClient(hc *http.Client, p *pacer.Pacer, ms *metrics.MetricsSink, l *zap.Logger, cfg *config.Config) *EtherscanClient {
	return &EtherscanClient{
		httpClient:      hc,
		Logger:          l,
		Config:          cfg,
		pacer:           p,
		metricsSink:     ms,
		BackoffSchedule: defaultBackoffSchedule,
	}
}

func (ec *EtherscanClient) SetHttpClient(client *http.Client) {
	ec.httpClient = client
}

// round-robin over the configured keys
func (ec *EtherscanClient) nextApiKey() string {
	keys := ec.Config.EtherscanConfig.ApiKeys
	if len(keys) == 0 {
		return ""
	}
	i := atomic.AddUint32(&ec.keyIndex, 1)
	return keys[int(i-1)%len(keys)]
}

func (ec *EtherscanClient) makeRequest(ctx context.Context, values url.Values) (*EtherscanResponse, error) {
	if apiKey := ec.nextApiKey(); apiKey != "" {
		values.Set("apikey", apiKey)
	}

	baseUrl, err := ec.Config.GetEtherscanUrl()
	if err != nil {
		ec.Logger.Sugar().Errorw("Failed to get the Etherscan base URL",
			zap.Error(err),
		)
		return nil, err
	}
	fullUrl := fmt.Sprintf("%s?%s", baseUrl, values.Encode())

	if err := ec.pacer.Wait(ctx); err != nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_ExplorerRead, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullUrl, http.NoBody)
	if err != nil {
		ec.Logger.Sugar().Errorw("Failed to create the Etherscan HTTP request",
			zap.Error(err),
		)
		return nil, err
	}

	req.Header.Set("User-Agent", "etherscan-api(Go)")
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	start := time.Now()
	res, err := ec.httpClient.Do(req)
	_ = ec.metricsSink.Incr(metricsTypes.Metric_Incr_ExternalCall, []metricsTypes.MetricsLabel{{Name: "service", Value: metricsServiceName}}, 1)
	_ = ec.metricsSink.Timing(metricsTypes.Metric_Timing_ExternalCall, time.Since(start), []metricsTypes.MetricsLabel{{Name: "service", Value: metricsServiceName}})
	if err != nil {
		ec.Logger.Sugar().Errorw("Failed to perform the Etherscan HTTP request",
			zap.Error(err),
		)
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_ExplorerRead, err)
	}
	defer res.Body.Close()

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		ec.Logger.Sugar().Errorw("Failed to read the Etherscan HTTP response",
			zap.Error(err),
		)
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_ExplorerRead, err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_ExplorerRead, fmt.Errorf("response status %v %s", res.StatusCode, res.Status))
	}

	parsedbody := &EtherscanResponse{}
	if err := json.Unmarshal(bodyBytes, &parsedbody); err != nil {
		ec.Logger.Sugar().Errorw("Failed to parse json from the Etherscan URL content",
			zap.Error(err),
		)
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_ExplorerRead, err)
	}

	ec.Logger.Sugar().Debugw("Fetched data from Etherscan",
		zap.String("module", values.Get("module")),
		zap.String("action", values.Get("action")),
		zap.String("status", parsedbody.Status),
	)
	return parsedbody, nil
}

func (r *EtherscanResponse) resultString() string {
	var s string
	if err := json.Unmarshal(r.Result, &s); err != nil {
		return strings.ReplaceAll(string(r.Result), "\"", "")
	}
	return s
}

func (ec *EtherscanClient) makeRequestWithBackoff(ctx context.Context, values url.Values) (*EtherscanResponse, error) {
	for _, backoff := range ec.BackoffSchedule {
		res, err := ec.makeRequest(ctx, values)
		if err != nil {
			ec.Logger.Sugar().Errorw("Failed to make the Etherscan HTTP request",
				zap.Error(err),
			)
			return nil, err
		}

		if res.Status == "1" || !rateLimitRegex.MatchString(res.resultString()) {
			return res, nil
		}

		ec.Logger.Sugar().Infow("Rate limit reached, backing off",
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return nil, flowErrors.NewFlowError(flowErrors.FlowError_ExplorerRead, ctx.Err())
		case <-time.After(backoff):
		}
	}

	return nil, flowErrors.NewFlowError(flowErrors.FlowError_ExplorerRead, fmt.Errorf("failed to make the Etherscan request after backoff"))
}

func (ec *EtherscanClient) buildBaseUrlParams(module string, action string) url.Values {
	return url.Values{
		"module": []string{module},
		"action": []string{action},
	}
}

// ContractABI returns the verified ABI json for an address, or an AbiNotFound FlowError.
func (ec *EtherscanClient) ContractABI(ctx context.Context, address string) (string, error) {
	baseUrlParams := ec.buildBaseUrlParams("contract", "getabi")
	baseUrlParams.Add("address", address)

	res, err := ec.makeRequestWithBackoff(ctx, baseUrlParams)
	if err != nil {
		ec.Logger.Sugar().Errorw("Failed to make the Etherscan HTTP request with backoff",
			zap.Error(err),
		)
		return "", err
	}

	if res.Status != "1" {
		result := res.resultString()
		if notVerifiedRegex.MatchString(result) || notVerifiedRegex.MatchString(res.Message) || res.Message == "NOTOK" {
			return "", flowErrors.NewFlowError(flowErrors.FlowError_AbiNotFound, fmt.Errorf("%s", result)).WithAddress(address)
		}
		return "", flowErrors.NewFlowError(flowErrors.FlowError_ExplorerRead, fmt.Errorf("etherscan server: %s %s", res.Message, result)).WithAddress(address)
	}

	var decodedOutput string
	err = json.Unmarshal(res.Result, &decodedOutput)
	if err != nil {
		ec.Logger.Sugar().Errorw("Failed to decode output from Etherscan URL content",
			zap.Error(err),
		)
		return "", flowErrors.NewFlowError(flowErrors.FlowError_Validation, err).WithAddress(address)
	}

	return decodedOutput, nil
}

// ListTransactions returns normal transactions touching address within [startBlock, endBlock],
// ascending, following pagination until a short page or the configured page limit.
func (ec *EtherscanClient) ListTransactions(ctx context.Context, address string, startBlock uint64, endBlock uint64) ([]*Transaction, error) {
	params := ec.buildBaseUrlParams("account", "txlist")
	params.Set("address", address)
	return ec.listPaged(ctx, params, startBlock, endBlock)
}

// ListTokenTransfers returns ERC-20 transfers of token touching address within [startBlock, endBlock].
func (ec *EtherscanClient) ListTokenTransfers(ctx context.Context, address string, token string, startBlock uint64, endBlock uint64) ([]*Transaction, error) {
	params := ec.buildBaseUrlParams("account", "tokentx")
	params.Set("address", address)
	if token != "" {
		params.Set("contractaddress", token)
	}
	return ec.listPaged(ctx, params, startBlock, endBlock)
}

func (ec *EtherscanClient) listPaged(ctx context.Context, params url.Values, startBlock uint64, endBlock uint64) ([]*Transaction, error) {
	pageSize := ec.Config.EtherscanConfig.PageSize
	if pageSize <= 0 {
		pageSize = 500
	}
	maxPages := ec.Config.EtherscanConfig.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	params.Set("startblock", strconv.FormatUint(startBlock, 10))
	params.Set("endblock", strconv.FormatUint(endBlock, 10))
	params.Set("sort", "asc")
	params.Set("offset", strconv.Itoa(pageSize))

	transactions := make([]*Transaction, 0)
	for page := 1; page <= maxPages; page++ {
		params.Set("page", strconv.Itoa(page))

		res, err := ec.makeRequestWithBackoff(ctx, params)
		if err != nil {
			return nil, err
		}
		if res.Status != "1" {
			if noTransactionsRegex.MatchString(res.Message) {
				break
			}
			return nil, flowErrors.NewFlowError(flowErrors.FlowError_ExplorerRead, fmt.Errorf("etherscan server: %s %s", res.Message, res.resultString())).
				WithAddress(params.Get("address"))
		}

		pageResults := make([]*Transaction, 0)
		if err := json.Unmarshal(res.Result, &pageResults); err != nil {
			return nil, flowErrors.NewFlowError(flowErrors.FlowError_Validation, err).WithAddress(params.Get("address"))
		}
		transactions = append(transactions, pageResults...)

		if len(pageResults) < pageSize {
			break
		}
		if page == maxPages {
			ec.Logger.Sugar().Warnw("Transaction list truncated at page limit",
				zap.String("address", params.Get("address")),
				zap.String("action", params.Get("action")),
				zap.Int("maxPages", maxPages),
			)
		}
	}
	return transactions, nil
}
