package abiResolver

import (
	"context"
	"fmt"
	"sync"

	"github.com/Layr-Labs/fundtracer/internal/metrics"
	"github.com/Layr-Labs/fundtracer/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/fundtracer/pkg/abiSource"
	"github.com/Layr-Labs/fundtracer/pkg/addressClassifier"
	"github.com/Layr-Labs/fundtracer/pkg/cacheStore"
	"github.com/Layr-Labs/fundtracer/pkg/flowErrors"
	"github.com/Layr-Labs/fundtracer/pkg/parser"
	"github.com/Layr-Labs/fundtracer/pkg/utils"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Classifier interface {
	Classify(ctx context.Context, address string) (*addressClassifier.AddressContext, error)
}

type CodeReader interface {
	GetCode(ctx context.Context, address string) (string, error)
}

// BytecodeSource is implemented by sources that derive the ABI location from runtime bytecode.
type BytecodeSource interface {
	RequiresBytecode() bool
}

type ResolvedAbi struct {
	Address        string
	Implementation string
	Source         string
	Json           string
	Abi            *abi.ABI
}

// cachedAbi is the persisted form. An empty Abi is the not-found sentinel.
type cachedAbi struct {
	Abi            string `json:"abi"`
	Implementation string `json:"implementation,omitempty"`
	Source         string `json:"source,omitempty"`
}

type AbiResolver struct {
	classifier  Classifier
	chain       CodeReader
	sources     []abiSource.AbiSource
	store       cacheStore.CacheStore
	chainId     uint64
	logger      *zap.Logger
	metricsSink *metrics.MetricsSink

	group  singleflight.Group
	parsed sync.Map
}

func NewAbiResolver(
	classifier Classifier,
	chain CodeReader,
	sources []abiSource.AbiSource,
	store cacheStore.CacheStore,
	chainId uint64,
	ms *metrics.MetricsSink,
	l *zap.Logger,
) *AbiResolver {
	return &AbiResolver{
		classifier:  classifier,
		chain:       chain,
		sources:     sources,
		store:       store,
		chainId:     chainId,
		logger:      l,
		metricsSink: ms,
	}
}

// ResolveAbi returns the ABI used to decode calls to address. Proxies resolve to their
// implementation's ABI; the result is cached under the original address. Addresses
// without an ABI yield an AbiNotFound FlowError and are remembered as such.
func (r *AbiResolver) ResolveAbi(ctx context.Context, address string) (*ResolvedAbi, error) {
	normalized := utils.NormalizeAddress(address)
	if normalized == "" {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_Validation, fmt.Errorf("invalid address")).WithAddress(address)
	}
	key := cacheStore.AbiKey(normalized, r.chainId)

	if cached, found := r.readCache(ctx, key); found {
		r.recordCache(true)
		return r.materialize(normalized, key, cached)
	}
	r.recordCache(false)

	res, err, _ := r.group.Do(key, func() (interface{}, error) {
		if cached, found := r.readCache(ctx, key); found {
			return cached, nil
		}
		return r.fetch(ctx, normalized, key)
	})
	if err != nil {
		return nil, err
	}
	return r.materialize(normalized, key, res.(*cachedAbi))
}

func (r *AbiResolver) readCache(ctx context.Context, key string) (*cachedAbi, bool) {
	if r.store == nil {
		return nil, false
	}
	cached, found, err := cacheStore.GetJSON[cachedAbi](ctx, r.store, key)
	if err != nil {
		r.logger.Sugar().Warnw("Failed to read cached abi", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return cached, found
}

func (r *AbiResolver) writeCache(ctx context.Context, key string, entry *cachedAbi) {
	if r.store == nil {
		return
	}
	if _, err := cacheStore.PutJSON(ctx, r.store, key, entry); err != nil {
		r.logger.Sugar().Warnw("Failed to cache abi", zap.String("key", key), zap.Error(err))
	}
}

func (r *AbiResolver) fetch(ctx context.Context, address string, key string) (*cachedAbi, error) {
	addressCtx, err := r.classifier.Classify(ctx, address)
	if err != nil {
		return nil, err
	}
	if !addressCtx.IsContract() {
		entry := &cachedAbi{}
		r.writeCache(ctx, key, entry)
		return entry, nil
	}

	target := address
	if addressCtx.IsProxy() {
		target = addressCtx.Implementation
		r.logger.Sugar().Debugw("Resolving abi through proxy",
			zap.String("proxy", address),
			zap.String("implementation", target),
		)
	}

	var bytecode *string
	var lastErr error
	for _, source := range r.sources {
		code := ""
		if bs, ok := source.(BytecodeSource); ok && bs.RequiresBytecode() {
			if bytecode == nil {
				fetched, err := r.chain.GetCode(ctx, target)
				if err != nil {
					lastErr = err
					continue
				}
				bytecode = &fetched
			}
			code = *bytecode
		}

		abiJson, err := source.FetchAbi(ctx, target, code)
		if err != nil {
			if !flowErrors.Is(err, flowErrors.FlowError_AbiNotFound) {
				lastErr = err
			}
			continue
		}
		if abiJson == "" {
			continue
		}

		entry := &cachedAbi{
			Abi:            abiJson,
			Implementation: addressCtx.Implementation,
			Source:         source.Name(),
		}
		r.writeCache(ctx, key, entry)
		return entry, nil
	}

	// transient failures are not remembered
	if lastErr != nil {
		return nil, lastErr
	}

	entry := &cachedAbi{Implementation: addressCtx.Implementation}
	r.writeCache(ctx, key, entry)
	return entry, nil
}

func (r *AbiResolver) materialize(address string, key string, entry *cachedAbi) (*ResolvedAbi, error) {
	if entry.Abi == "" {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_AbiNotFound, fmt.Errorf("no abi available")).WithAddress(address)
	}

	var parsed *abi.ABI
	if p, ok := r.parsed.Load(key); ok {
		parsed = p.(*abi.ABI)
	} else {
		a, err := parser.ParseAbi(entry.Abi)
		if err != nil {
			r.logger.Sugar().Warnw("Failed to parse abi", zap.String("address", address), zap.Error(err))
			return nil, flowErrors.NewFlowError(flowErrors.FlowError_AbiNotFound, err).
				WithAddress(address).
				WithMessage("abi could not be parsed")
		}
		r.parsed.Store(key, a)
		parsed = a
	}

	return &ResolvedAbi{
		Address:        address,
		Implementation: entry.Implementation,
		Source:         entry.Source,
		Json:           entry.Abi,
		Abi:            parsed,
	}, nil
}

func (r *AbiResolver) recordCache(hit bool) {
	name := metricsTypes.Metric_Incr_CacheMiss
	if hit {
		name = metricsTypes.Metric_Incr_CacheHit
	}
	_ = r.metricsSink.Incr(name, []metricsTypes.MetricsLabel{{Name: "kind", Value: string(cacheStore.EntryKind_Abi)}}, 1)
}
