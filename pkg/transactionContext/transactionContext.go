package transactionContext

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Layr-Labs/fundtracer/internal/config"
	"github.com/Layr-Labs/fundtracer/internal/metrics"
	"github.com/Layr-Labs/fundtracer/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/fundtracer/internal/types/numbers"
	"github.com/Layr-Labs/fundtracer/pkg/abiResolver"
	"github.com/Layr-Labs/fundtracer/pkg/addressClassifier"
	"github.com/Layr-Labs/fundtracer/pkg/cacheStore"
	"github.com/Layr-Labs/fundtracer/pkg/clients/ethereum"
	"github.com/Layr-Labs/fundtracer/pkg/flowErrors"
	"github.com/Layr-Labs/fundtracer/pkg/knownWallets"
	"github.com/Layr-Labs/fundtracer/pkg/parser"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type TransactionKind string

const (
	TransactionKind_NativeTransfer TransactionKind = "native-transfer"
	TransactionKind_ContractCall   TransactionKind = "contract-call"
)

// BlockNumber_Unconfirmed marks a transaction that has not been mined yet.
const BlockNumber_Unconfirmed int64 = -1

// TokenTransfer is an ERC-20 Transfer log emitted while executing the transaction.
type TokenTransfer struct {
	LogIndex uint64               `json:"logIndex"`
	Token    string               `json:"token"`
	Symbol   string               `json:"symbol,omitempty"`
	Decimals int32                `json:"decimals"`
	From     string               `json:"from"`
	To       string               `json:"to"`
	Value    *numbers.BigQuantity `json:"value"`
}

type ContractCall struct {
	AbiSource      string                `json:"abiSource,omitempty"`
	DecodedMethod  *parser.DecodedMethod `json:"decodedMethod,omitempty"`
	DecodedEvents  []*parser.DecodedLog  `json:"decodedEvents"`
	DecodeFailures int                   `json:"decodeFailures"`
	TokenTransfers []*TokenTransfer      `json:"tokenTransfers"`
}

// TransactionContext is the normalized, immutable view of one transaction on one chain.
// ContractCall is set if and only if Kind is contract-call.
type TransactionContext struct {
	Hash           string                            `json:"hash"`
	ChainId        uint64                            `json:"chainId"`
	Kind           TransactionKind                   `json:"kind"`
	From           *addressClassifier.AddressContext `json:"from"`
	To             *addressClassifier.AddressContext `json:"to"`
	Value          *numbers.BigQuantity              `json:"value"`
	FormattedValue string                            `json:"formattedValue"`
	Timestamp      string                            `json:"timestamp"`
	BlockNumber    int64                             `json:"blockNumber"`
	Succeeded      bool                              `json:"succeeded"`
	ContractCreate bool                              `json:"contractCreate,omitempty"`
	ContractCall   *ContractCall                     `json:"contractCall,omitempty"`
}

func (tc *TransactionContext) IsConfirmed() bool {
	return tc.BlockNumber != BlockNumber_Unconfirmed
}

func (tc *TransactionContext) Block() uint64 {
	if tc.BlockNumber < 0 {
		return 0
	}
	return uint64(tc.BlockNumber)
}

func (tc *TransactionContext) Time() time.Time {
	t, err := time.Parse(time.RFC3339, tc.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (tc *TransactionContext) TokenTransfers() []*TokenTransfer {
	if tc.ContractCall == nil {
		return nil
	}
	return tc.ContractCall.TokenTransfers
}

type ChainReader interface {
	GetTransactionByHash(ctx context.Context, txHash string) (*ethereum.EthereumTransaction, error)
	GetTransactionReceipt(ctx context.Context, txHash string) (*ethereum.EthereumTransactionReceipt, error)
	GetBlockByNumber(ctx context.Context, blockNumber uint64) (*ethereum.EthereumBlock, error)
}

type NameResolver interface {
	LookupReverseName(ctx context.Context, address string) string
}

type Classifier interface {
	Classify(ctx context.Context, address string) (*addressClassifier.AddressContext, error)
}

type AbiResolver interface {
	ResolveAbi(ctx context.Context, address string) (*abiResolver.ResolvedAbi, error)
}

type TransactionContextBuilder struct {
	chain       ChainReader
	names       NameResolver
	classifier  Classifier
	abis        AbiResolver
	wallets     *knownWallets.KnownWallets
	parser      *parser.Parser
	store       cacheStore.CacheStore
	chainInfo   *config.ChainInfo
	logger      *zap.Logger
	metricsSink *metrics.MetricsSink

	group singleflight.Group
}

type TransactionContextBuilderConfig struct {
	Chain       ChainReader
	Names       NameResolver
	Classifier  Classifier
	AbiResolver AbiResolver
	Wallets     *knownWallets.KnownWallets
	Store       cacheStore.CacheStore
	ChainInfo   *config.ChainInfo
}

func NewTransactionContextBuilder(cfg *TransactionContextBuilderConfig, ms *metrics.MetricsSink, l *zap.Logger) *TransactionContextBuilder {
	names := cfg.Names
	if cfg.ChainInfo != nil && !cfg.ChainInfo.SupportsEns {
		names = nil
	}
	return &TransactionContextBuilder{
		chain:       cfg.Chain,
		names:       names,
		classifier:  cfg.Classifier,
		abis:        cfg.AbiResolver,
		wallets:     cfg.Wallets,
		parser:      parser.NewParser(l),
		store:       cfg.Store,
		chainInfo:   cfg.ChainInfo,
		logger:      l,
		metricsSink: ms,
	}
}

// BuildContext returns the context for hash, from the cache when present. Fresh results are
// written back and returned in their stored form, so repeated calls return equal values.
func (b *TransactionContextBuilder) BuildContext(ctx context.Context, hash string) (*TransactionContext, error) {
	hash = strings.ToLower(hash)
	key := cacheStore.TransactionKey(hash, b.chainInfo.ChainId)

	if cached, found := b.readCache(ctx, key); found {
		b.recordCache(true)
		return cached, nil
	}
	b.recordCache(false)

	res, err, _ := b.group.Do(key, func() (interface{}, error) {
		if cached, found := b.readCache(ctx, key); found {
			return cached, nil
		}
		txCtx, cacheable, err := b.build(ctx, hash)
		if err != nil {
			return nil, err
		}
		return b.canonicalize(ctx, key, txCtx, cacheable)
	})
	if err != nil {
		return nil, err
	}
	return res.(*TransactionContext), nil
}

func (b *TransactionContextBuilder) readCache(ctx context.Context, key string) (*TransactionContext, bool) {
	if b.store == nil {
		return nil, false
	}
	cached, found, err := cacheStore.GetJSON[TransactionContext](ctx, b.store, key)
	if err != nil {
		b.logger.Sugar().Warnw("Failed to read cached transaction context", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return cached, found
}

func (b *TransactionContextBuilder) canonicalize(ctx context.Context, key string, txCtx *TransactionContext, cacheable bool) (*TransactionContext, error) {
	var (
		data []byte
		err  error
	)
	if b.store != nil && cacheable {
		data, err = cacheStore.PutJSON(ctx, b.store, key, txCtx)
		if err != nil {
			b.logger.Sugar().Warnw("Failed to cache transaction context", zap.String("key", key), zap.Error(err))
		}
	}
	if data == nil {
		data, err = json.Marshal(txCtx)
		if err != nil {
			return nil, flowErrors.NewFlowError(flowErrors.FlowError_Validation, err).WithTransactionHash(txCtx.Hash)
		}
	}
	canonical := &TransactionContext{}
	if err := json.Unmarshal(data, canonical); err != nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_Validation, err).WithTransactionHash(txCtx.Hash)
	}
	return canonical, nil
}

// build performs the RPC and decode sequence. The returned flag is false when a transient
// failure degraded the result or the transaction is still pending, in which case it must not
// be memoized.
func (b *TransactionContextBuilder) build(ctx context.Context, hash string) (*TransactionContext, bool, error) {
	tx, err := b.chain.GetTransactionByHash(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	if tx.From.Value() == "" {
		return nil, false, flowErrors.NewFlowError(flowErrors.FlowError_Validation, fmt.Errorf("transaction has no sender")).WithTransactionHash(hash)
	}

	txCtx := &TransactionContext{
		Hash:        hash,
		ChainId:     b.chainInfo.ChainId,
		Kind:        TransactionKind_NativeTransfer,
		Value:       numbers.NewBigQuantity(tx.Value.BigInt()),
		BlockNumber: BlockNumber_Unconfirmed,
		Succeeded:   true,
	}
	txCtx.FormattedValue = numbers.FormatUnits(txCtx.Value.Big(), b.chainInfo.NativeCurrency.Decimals)

	var receipt *ethereum.EthereumTransactionReceipt
	if tx.BlockNumber != nil {
		txCtx.BlockNumber = int64(tx.BlockNumber.Value())

		receipt, err = b.chain.GetTransactionReceipt(ctx, hash)
		if err != nil {
			return nil, false, err
		}
		txCtx.Succeeded = receipt.Succeeded()

		block, err := b.chain.GetBlockByNumber(ctx, tx.BlockNumber.Value())
		if err != nil {
			return nil, false, errors.Wrap(err, fmt.Sprintf("failed to fetch block %d", tx.BlockNumber.Value()))
		}
		txCtx.Timestamp = time.Unix(int64(block.Timestamp.Value()), 0).UTC().Format(time.RFC3339)
	}

	from, err := b.describeAddress(ctx, tx.From.Value())
	if err != nil {
		return nil, false, err
	}
	txCtx.From = from

	toAddress := tx.To.Value()
	if toAddress == "" {
		if receipt == nil || receipt.ContractAddress.Value() == "" {
			return nil, false, flowErrors.NewFlowError(flowErrors.FlowError_Validation, fmt.Errorf("contract creation without a contract address")).WithTransactionHash(hash)
		}
		toAddress = receipt.GetTargetAddress().Value()
		txCtx.ContractCreate = true
	}
	to, err := b.describeAddress(ctx, toAddress)
	if err != nil {
		return nil, false, err
	}
	txCtx.To = to

	// a pending transaction changes once mined
	cacheable := tx.BlockNumber != nil
	if to.IsContract() {
		txCtx.Kind = TransactionKind_ContractCall
		var decodedCacheable bool
		txCtx.ContractCall, decodedCacheable = b.decodeContractCall(ctx, tx, receipt, to)
		cacheable = cacheable && decodedCacheable
	}
	return txCtx, cacheable, nil
}

func (b *TransactionContextBuilder) describeAddress(ctx context.Context, address string) (*addressClassifier.AddressContext, error) {
	classified, err := b.classifier.Classify(ctx, address)
	if err != nil {
		return nil, err
	}
	described := *classified
	if b.names != nil && !described.IsContract() {
		described.EnsName = b.names.LookupReverseName(ctx, described.Address)
	}
	if b.wallets != nil {
		if wallet, ok := b.wallets.Lookup(described.Address); ok {
			described.KnownWallet = wallet
		}
	}
	return &described, nil
}

func (b *TransactionContextBuilder) decodeContractCall(
	ctx context.Context,
	tx *ethereum.EthereumTransaction,
	receipt *ethereum.EthereumTransactionReceipt,
	to *addressClassifier.AddressContext,
) (*ContractCall, bool) {
	call := &ContractCall{
		DecodedEvents:  make([]*parser.DecodedLog, 0),
		TokenTransfers: make([]*TokenTransfer, 0),
	}
	cacheable := true

	resolved, err := b.abis.ResolveAbi(ctx, to.Address)
	switch {
	case err == nil && tx.To.Value() != "":
		call.AbiSource = resolved.Source
		call.DecodedMethod, err = b.parser.DecodeMethod(resolved.Abi, tx.Input.Value())
		if err != nil {
			b.logger.Sugar().Debugw("Failed to decode method",
				zap.String("transactionHash", tx.Hash.Value()),
				zap.String("to", to.Address),
				zap.Error(err),
			)
		}
	case err != nil:
		cacheable = !isTransient(err)
		b.logger.Sugar().Debugw("No ABI for contract call, method left undecoded",
			zap.String("transactionHash", tx.Hash.Value()),
			zap.String("to", to.Address),
			zap.Error(err),
		)
	}

	if receipt == nil {
		return call, cacheable
	}
	for _, lg := range receipt.Logs {
		decoded, ok := b.decodeLog(ctx, lg)
		cacheable = cacheable && ok
		if decoded.Failed {
			call.DecodeFailures++
		}
		call.DecodedEvents = append(call.DecodedEvents, decoded)

		if transfer := b.tokenTransfer(ctx, lg); transfer != nil {
			call.TokenTransfers = append(call.TokenTransfers, transfer)
		}
	}
	return call, cacheable
}

// decodeLog decodes lg with the ABI of its emitting address, falling back to the ERC-20
// ABI when the emitter has none.
func (b *TransactionContextBuilder) decodeLog(ctx context.Context, lg *ethereum.EthereumEventLog) (*parser.DecodedLog, bool) {
	var contractAbi *abi.ABI
	ok := true

	resolved, err := b.abis.ResolveAbi(ctx, lg.Address.Value())
	if err != nil {
		ok = !isTransient(err)
		contractAbi = parser.Erc20Abi()
	} else {
		contractAbi = resolved.Abi
	}

	decoded := b.parser.DecodeLog(contractAbi, lg)
	if decoded.Failed && contractAbi != parser.Erc20Abi() {
		if fallback := b.parser.DecodeLog(parser.Erc20Abi(), lg); !fallback.Failed {
			decoded = fallback
		}
	}
	return decoded, ok
}

func (b *TransactionContextBuilder) tokenTransfer(ctx context.Context, lg *ethereum.EthereumEventLog) *TokenTransfer {
	decoded := b.parser.DecodeLog(parser.Erc20Abi(), lg)
	if decoded.Failed || decoded.EventName != "Transfer" {
		return nil
	}
	from, okFrom := decoded.Param("from")
	to, okTo := decoded.Param("to")
	value, okValue := decoded.Param("value")
	if !okFrom || !okTo || !okValue {
		return nil
	}
	amount, err := numbers.NewBigQuantityFromString(fmt.Sprintf("%v", value.Value))
	if err != nil {
		return nil
	}

	transfer := &TokenTransfer{
		LogIndex: lg.LogIndex.Value(),
		Token:    decoded.Address,
		From:     fmt.Sprintf("%v", from.Value),
		To:       fmt.Sprintf("%v", to.Value),
		Value:    amount,
	}
	if token, err := b.classifier.Classify(ctx, decoded.Address); err == nil && token.TokenInfo != nil {
		transfer.Symbol = token.TokenInfo.Symbol
		transfer.Decimals = token.TokenInfo.Decimals
	}
	return transfer
}

func isTransient(err error) bool {
	return flowErrors.ClassOf(err) == flowErrors.ErrorClass_TransientIO
}

func (b *TransactionContextBuilder) recordCache(hit bool) {
	name := metricsTypes.Metric_Incr_CacheMiss
	if hit {
		name = metricsTypes.Metric_Incr_CacheHit
	}
	_ = b.metricsSink.Incr(name, []metricsTypes.MetricsLabel{{Name: "kind", Value: string(cacheStore.EntryKind_Transaction)}}, 1)
}
