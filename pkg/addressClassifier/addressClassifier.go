package addressClassifier

import (
	"context"
	"math/big"
	"strings"

	"github.com/Layr-Labs/fundtracer/internal/metrics"
	"github.com/Layr-Labs/fundtracer/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/fundtracer/pkg/cacheStore"
	"github.com/Layr-Labs/fundtracer/pkg/clients/ethereum"
	"github.com/Layr-Labs/fundtracer/pkg/flowErrors"
	"github.com/Layr-Labs/fundtracer/pkg/knownWallets"
	"github.com/Layr-Labs/fundtracer/pkg/utils"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

type AddressKind string

const (
	AddressKind_ExternallyOwned AddressKind = "externally-owned"
	AddressKind_Contract        AddressKind = "contract"
)

type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int32  `json:"decimals"`
}

type AddressContext struct {
	Address        string                    `json:"address"`
	Kind           AddressKind               `json:"kind"`
	Implementation string                    `json:"implementation,omitempty"`
	TokenInfo      *TokenInfo                `json:"tokenInfo,omitempty"`
	EnsName        string                    `json:"ensName,omitempty"`
	KnownWallet    *knownWallets.KnownWallet `json:"knownWallet,omitempty"`
}

func (a *AddressContext) IsContract() bool {
	return a != nil && a.Kind == AddressKind_Contract
}

func (a *AddressContext) IsProxy() bool {
	return a != nil && a.Implementation != ""
}

// ChainReader is the subset of the RPC client the classifier reads from.
type ChainReader interface {
	GetCode(ctx context.Context, address string) (string, error)
	GetStorageAt(ctx context.Context, address string, storagePosition string, block string) (string, error)
	CallContract(ctx context.Context, to string, data []byte) ([]byte, error)
}

var (
	implementationSelector = crypto.Keccak256([]byte("implementation()"))[:4]
	symbolSelector         = crypto.Keccak256([]byte("symbol()"))[:4]
	nameSelector           = crypto.Keccak256([]byte("name()"))[:4]
	decimalsSelector       = crypto.Keccak256([]byte("decimals()"))[:4]
)

type AddressClassifier struct {
	chain       ChainReader
	store       cacheStore.CacheStore
	chainId     uint64
	logger      *zap.Logger
	metricsSink *metrics.MetricsSink
}

func NewAddressClassifier(chain ChainReader, store cacheStore.CacheStore, chainId uint64, ms *metrics.MetricsSink, l *zap.Logger) *AddressClassifier {
	return &AddressClassifier{
		chain:       chain,
		store:       store,
		chainId:     chainId,
		logger:      l,
		metricsSink: ms,
	}
}

// Classify determines whether address is a wallet or a contract and, for contracts,
// resolves the proxy implementation and ERC-20 metadata. A failed bytecode read is
// returned as is; the classifier never retries.
func (ac *AddressClassifier) Classify(ctx context.Context, address string) (*AddressContext, error) {
	normalized := utils.NormalizeAddress(address)
	if normalized == "" {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_Validation, nil).
			WithAddress(address).
			WithMessage("invalid address")
	}

	key := cacheStore.CodeKey(normalized, ac.chainId)
	if ac.store != nil {
		cached, found, err := cacheStore.GetJSON[AddressContext](ctx, ac.store, key)
		if err != nil {
			ac.logger.Sugar().Warnw("Failed to read cached address classification", zap.String("address", normalized), zap.Error(err))
		}
		if found {
			ac.recordCache(true)
			return cached, nil
		}
		ac.recordCache(false)
	}

	code, err := ac.chain.GetCode(ctx, normalized)
	if err != nil {
		return nil, err
	}

	addressCtx := &AddressContext{
		Address: normalized,
		Kind:    AddressKind_ExternallyOwned,
	}
	if hasCode(code) {
		addressCtx.Kind = AddressKind_Contract
		addressCtx.Implementation = ac.resolveImplementation(ctx, normalized)
		addressCtx.TokenInfo = ac.probeTokenInfo(ctx, normalized)
	}

	if ac.store != nil {
		if _, err := cacheStore.PutJSON(ctx, ac.store, key, addressCtx); err != nil {
			ac.logger.Sugar().Warnw("Failed to cache address classification", zap.String("address", normalized), zap.Error(err))
		}
	}
	return addressCtx, nil
}

func hasCode(code string) bool {
	trimmed := strings.TrimPrefix(strings.ToLower(code), "0x")
	return strings.Trim(trimmed, "0") != ""
}

// resolveImplementation tries the EIP-1967 slot first, then a speculative implementation()
// call. Failures of either strategy are suppressed.
func (ac *AddressClassifier) resolveImplementation(ctx context.Context, address string) string {
	slotValue, err := ac.chain.GetStorageAt(ctx, address, ethereum.EIP1967_STORAGE_SLOT, "latest")
	if err != nil {
		ac.logger.Sugar().Debugw("EIP-1967 slot read failed", zap.String("address", address), zap.Error(err))
	} else if word, err := hexutil.Decode(normalizeHexWord(slotValue)); err == nil {
		if impl := utils.AddressFromWord(word); !utils.IsNullAddress(impl) {
			return impl
		}
	}

	out, err := ac.chain.CallContract(ctx, address, implementationSelector)
	if err != nil || len(out) < 32 {
		return ""
	}
	impl := utils.AddressFromWord(out[:32])
	if utils.IsNullAddress(impl) || utils.AreAddressesEqual(impl, address) {
		return ""
	}
	return impl
}

// hexutil.Decode rejects odd length input such as "0x0".
func normalizeHexWord(value string) string {
	trimmed := strings.TrimPrefix(strings.ToLower(value), "0x")
	if len(trimmed)%2 == 1 {
		trimmed = "0" + trimmed
	}
	return "0x" + trimmed
}

// probeTokenInfo returns nil unless decimals() answers with a plausible value.
func (ac *AddressClassifier) probeTokenInfo(ctx context.Context, address string) *TokenInfo {
	out, err := ac.chain.CallContract(ctx, address, decimalsSelector)
	if err != nil || len(out) < 32 {
		return nil
	}
	decimals := new(big.Int).SetBytes(out[:32])
	if !decimals.IsInt64() || decimals.Int64() > 77 {
		return nil
	}

	info := &TokenInfo{
		Decimals: int32(decimals.Int64()),
	}
	if out, err := ac.chain.CallContract(ctx, address, symbolSelector); err == nil {
		info.Symbol = decodeStringResult(out)
	}
	if out, err := ac.chain.CallContract(ctx, address, nameSelector); err == nil {
		info.Name = decodeStringResult(out)
	}
	return info
}

// decodeStringResult handles both ABI strings and the bytes32 variant some older tokens return.
func decodeStringResult(out []byte) string {
	stringType, _ := abi.NewType("string", "", nil)
	if values, err := (abi.Arguments{{Type: stringType}}).Unpack(out); err == nil && len(values) == 1 {
		if s, ok := values[0].(string); ok {
			return s
		}
	}
	if len(out) == 32 {
		return strings.TrimRight(string(common.TrimRightZeroes(out)), "\x00")
	}
	return ""
}

func (ac *AddressClassifier) recordCache(hit bool) {
	name := metricsTypes.Metric_Incr_CacheMiss
	if hit {
		name = metricsTypes.Metric_Incr_CacheHit
	}
	_ = ac.metricsSink.Incr(name, []metricsTypes.MetricsLabel{{Name: "kind", Value: string(cacheStore.EntryKind_Code)}}, 1)
}
