package ethereum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Layr-Labs/fundtracer/internal/config"
	"github.com/Layr-Labs/fundtracer/internal/metrics"
	"github.com/Layr-Labs/fundtracer/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/fundtracer/pkg/flowErrors"
	"github.com/Layr-Labs/fundtracer/pkg/pacer"
	"go.uber.org/zap"
)

const (
	EIP1967_STORAGE_SLOT = "0x360894A13BA1A3210667C828492DB98DCA3E2076CC3735A920A3CA505D382BBC"

	metricsServiceName = "rpc"
)

type RequestMethod struct {
	Name    string
	Timeout time.Duration
}

type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      uint   `json:"id"`
}

type RPCError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint           `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

var jsonRPCVersion = "2.0"

type Client struct {
	Logger       *zap.Logger
	httpClient   *http.Client
	clientConfig *EthereumClientConfig
	pacer        *pacer.Pacer
	metricsSink  *metrics.MetricsSink
}

type EthereumClientConfig struct {
	BaseUrl string
	// delays between attempts for transient failures; empty means a single attempt
	RetryDelays []time.Duration
	ChainId     uint64
}

func ConvertGlobalConfigToEthereumConfig(cfg *config.Config) *EthereumClientConfig {
	return &EthereumClientConfig{
		BaseUrl:     cfg.EthereumRpcConfig.BaseUrl,
		RetryDelays: cfg.EthereumRpcConfig.RetryDelays,
		ChainId:     cfg.ChainId,
	}
}

func NewClient(cfg *EthereumClientConfig, p *pacer.Pacer, ms *metrics.MetricsSink, l *zap.Logger) *Client {
	client := &http.Client{
		Timeout: time.Second * 30,
	}

	l.Sugar().Infow("Creating new Ethereum client", zap.String("baseUrl", cfg.BaseUrl), zap.Uint64("chainId", cfg.ChainId))

	return &Client{
		httpClient:   client,
		Logger:       l,
		clientConfig: cfg,
		pacer:        p,
		metricsSink:  ms,
	}
}

func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) ChainId() uint64 {
	return c.clientConfig.ChainId
}

func (c *Client) GetBlockByNumber(ctx context.Context, blockNumber uint64) (*EthereumBlock, error) {
	rpcRequest := GetBlockByNumberRequest(blockNumber, false, 1)

	res, err := c.Call(ctx, rpcRequest, RPCMethod_getBlockByNumber.RequestMethod)
	if err != nil {
		return nil, err
	}
	ethBlock, err := RPCMethod_getBlockByNumber.ResponseParser(res.Result)
	if err != nil {
		c.Logger.Sugar().Errorw("failed to parse block",
			zap.Error(err),
			zap.Any("raw response", res.Result),
		)
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_Validation, err).WithMessage("malformed block")
	}
	if ethBlock == nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_ChainRead, fmt.Errorf("block %d not found", blockNumber))
	}
	return ethBlock, nil
}

// GetTransactionByHash returns a TransactionNotFound FlowError when the node has no record of the hash.
func (c *Client) GetTransactionByHash(ctx context.Context, txHash string) (*EthereumTransaction, error) {
	rpcRequest := GetTransactionByHashRequest(txHash, 1)

	res, err := c.Call(ctx, rpcRequest, RPCMethod_getTransactionByHash.RequestMethod)
	if err != nil {
		return nil, err
	}
	tx, err := RPCMethod_getTransactionByHash.ResponseParser(res.Result)
	if err != nil {
		c.Logger.Sugar().Errorw("failed to parse transaction",
			zap.Error(err),
			zap.Any("raw response", res.Result),
		)
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_Validation, err).WithTransactionHash(txHash)
	}
	if tx == nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_TransactionNotFound, nil).WithTransactionHash(txHash)
	}
	return tx, nil
}

// GetTransactionReceipt returns a ReceiptNotFound FlowError when the receipt is missing.
func (c *Client) GetTransactionReceipt(ctx context.Context, txHash string) (*EthereumTransactionReceipt, error) {
	rpcRequest := GetTransactionReceiptRequest(txHash, 1)

	res, err := c.Call(ctx, rpcRequest, RPCMethod_getTransactionReceipt.RequestMethod)
	if err != nil {
		return nil, err
	}
	txReceipt, err := RPCMethod_getTransactionReceipt.ResponseParser(res.Result)
	if err != nil {
		c.Logger.Sugar().Errorw("failed to parse transaction receipt",
			zap.Error(err),
			zap.Any("raw response", res.Result),
		)
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_Validation, err).WithTransactionHash(txHash)
	}
	if txReceipt == nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_ReceiptNotFound, nil).WithTransactionHash(txHash)
	}
	return txReceipt, nil
}

func (c *Client) GetStorageAt(ctx context.Context, address string, storagePosition string, block string) (string, error) {
	rpcRequest := GetStorageAtRequest(address, storagePosition, block, 1)

	res, err := c.Call(ctx, rpcRequest, RPCMethod_getStorageAt.RequestMethod)
	if err != nil {
		return "", err
	}
	storageValue, err := RPCMethod_getStorageAt.ResponseParser(res.Result)
	if err != nil {
		c.Logger.Sugar().Errorw("failed to get storage value",
			zap.Error(err),
			zap.Any("raw response", res.Result),
		)
		return "", flowErrors.NewFlowError(flowErrors.FlowError_Validation, err).WithAddress(address)
	}
	return storageValue, nil
}

func (c *Client) GetCode(ctx context.Context, address string) (string, error) {
	rpcRequest := GetCodeRequest(address, 1)

	res, err := c.Call(ctx, rpcRequest, RPCMethod_getCode.RequestMethod)
	if err != nil {
		return "", err
	}
	bytecode, err := RPCMethod_getCode.ResponseParser(res.Result)
	if err != nil {
		c.Logger.Sugar().Errorw("failed to get contract bytecode",
			zap.Error(err),
			zap.Any("raw response", res.Result),
		)
		return "", flowErrors.NewFlowError(flowErrors.FlowError_Validation, err).WithAddress(address)
	}
	return bytecode, nil
}

// CallContract performs an eth_call against the latest block.
func (c *Client) CallContract(ctx context.Context, to string, data []byte) ([]byte, error) {
	rpcRequest := CallRequest(to, data, "latest", 1)

	res, err := c.Call(ctx, rpcRequest, RPCMethod_call.RequestMethod)
	if err != nil {
		return nil, err
	}
	out, err := RPCMethod_call.ResponseParser(res.Result)
	if err != nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_Validation, err).WithAddress(to)
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, rpcRequest *RPCRequest, method *RequestMethod) (*RPCResponse, error) {
	requestBody, err := json.Marshal(rpcRequest)
	if err != nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_Validation, err)
	}
	c.Logger.Sugar().Debugw("Request body", zap.String("requestBody", string(requestBody)))

	if err := c.pacer.Wait(ctx); err != nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_ChainRead, err)
	}

	if method != nil && method.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, method.Timeout)
		defer cancel()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.clientConfig.BaseUrl, bytes.NewReader(requestBody))
	if err != nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_ChainRead, err).WithMessage("failed to make request")
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	start := time.Now()
	response, err := c.httpClient.Do(request)
	_ = c.metricsSink.Incr(metricsTypes.Metric_Incr_ExternalCall, []metricsTypes.MetricsLabel{{Name: "service", Value: metricsServiceName}}, 1)
	_ = c.metricsSink.Timing(metricsTypes.Metric_Timing_ExternalCall, time.Since(start), []metricsTypes.MetricsLabel{{Name: "service", Value: metricsServiceName}})
	if err != nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_ChainRead, err).WithMessage("request failed")
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_ChainRead, err).WithMessage("failed to read body")
	}
	if response.StatusCode != http.StatusOK {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_ChainRead, fmt.Errorf("received http error code %+v", response.StatusCode))
	}

	destination := &RPCResponse{}
	if err := json.Unmarshal(responseBody, destination); err != nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_ChainRead, err).WithMessage("failed to unmarshal response")
	}

	if destination.Error != nil {
		t := flowErrors.FlowError_ChainRead
		if isExecutionError(destination.Error) {
			t = flowErrors.FlowError_Validation
		}
		return nil, flowErrors.NewFlowError(t, destination.Error).WithMetadata("method", rpcRequest.Method)
	}

	return destination, nil
}

// execution reverts are deterministic; retrying them is pointless
func isExecutionError(e *RPCError) bool {
	msg := strings.ToLower(e.Message)
	return e.Code == 3 || strings.Contains(msg, "execution reverted") || strings.Contains(msg, "invalid opcode")
}

// Call sends the request, retrying transient failures on the configured delay schedule.
func (c *Client) Call(ctx context.Context, rpcRequest *RPCRequest, method *RequestMethod) (*RPCResponse, error) {
	res, err := c.call(ctx, rpcRequest, method)
	if err == nil || !shouldRetry(ctx, err) {
		return res, err
	}

	for i, delay := range c.clientConfig.RetryDelays {
		c.Logger.Sugar().Warnw("Failed to call, retrying",
			zap.Error(err),
			zap.Int("attempt", i+1),
			zap.Duration("backoff", delay),
			zap.String("method", rpcRequest.Method),
		)
		select {
		case <-ctx.Done():
			return nil, flowErrors.NewFlowError(flowErrors.FlowError_ChainRead, ctx.Err())
		case <-time.After(delay):
		}

		res, err = c.call(ctx, rpcRequest, method)
		if err == nil {
			c.Logger.Sugar().Infow("Successfully called after backoff",
				zap.Duration("backoff", delay),
				zap.String("method", rpcRequest.Method),
			)
			return res, nil
		}
		if !shouldRetry(ctx, err) {
			return nil, err
		}
	}
	if len(c.clientConfig.RetryDelays) > 0 {
		c.Logger.Sugar().Errorw("Exceeded retries for Call", zap.String("method", rpcRequest.Method), zap.Error(err))
	}
	return nil, err
}

func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return flowErrors.ClassOf(err) == flowErrors.ErrorClass_TransientIO && !flowErrors.Is(err, flowErrors.FlowError_Timeout)
}
