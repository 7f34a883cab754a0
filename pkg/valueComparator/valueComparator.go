package valueComparator

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/Layr-Labs/fundtracer/internal/config"
	"github.com/Layr-Labs/fundtracer/internal/types/numbers"
	"github.com/Layr-Labs/fundtracer/pkg/flowErrors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Classification string

const (
	Classification_Direct  Classification = "direct"
	Classification_Split   Classification = "split"
	Classification_Sum     Classification = "sum"
	Classification_Unknown Classification = "unknown"
)

// MatchBasis records which rule produced a direct match.
type MatchBasis string

const (
	MatchBasis_Usd    MatchBasis = "usd"
	MatchBasis_Amount MatchBasis = "amount"
)

// Transfer is one movement of the traced asset.
type Transfer struct {
	Hash        string
	BlockNumber uint64
	From        string
	To          string
	Amount      *big.Int
	Time        time.Time
}

type Asset struct {
	Symbol   string
	Decimals int32
}

type PriceOracle interface {
	PriceUSD(ctx context.Context, symbol string, at time.Time) (decimal.Decimal, error)
}

// ComparisonInput relates a candidate successor to the transfer that funded its sender.
// OutgoingPool holds the sender's outgoing transfers in the forward window and IncomingPool
// its incoming transfers between the parent and the candidate.
type ComparisonInput struct {
	Asset        Asset
	Parent       *Transfer
	Candidate    *Transfer
	OutgoingPool []*Transfer
	IncomingPool []*Transfer
}

type Comparison struct {
	Classification Classification `json:"classification"`
	Basis          MatchBasis     `json:"basis,omitempty"`
	MatchedHashes  []string       `json:"matchedHashes,omitempty"`
	ParentUsd      string         `json:"parentUsd,omitempty"`
	CandidateUsd   string         `json:"candidateUsd,omitempty"`
	PriceMissing   bool           `json:"priceMissing,omitempty"`
}

type ValueComparatorConfig struct {
	TolerancePercent float64
	ToleranceUsd     decimal.Decimal
	MaxSubsetPool    int
}

func ValueComparatorConfigFromConfig(cfg *config.Config) *ValueComparatorConfig {
	return &ValueComparatorConfig{
		TolerancePercent: cfg.TraversalConfig.TolerancePercent,
		ToleranceUsd:     decimal.NewFromFloat(cfg.TraversalConfig.ToleranceUsd),
		MaxSubsetPool:    cfg.TraversalConfig.MaxSubsetPool,
	}
}

type ValueComparator struct {
	oracle PriceOracle
	config *ValueComparatorConfig
	logger *zap.Logger
}

func NewValueComparator(oracle PriceOracle, cfg *ValueComparatorConfig, l *zap.Logger) *ValueComparator {
	if cfg.MaxSubsetPool <= 0 {
		cfg.MaxSubsetPool = 16
	}
	return &ValueComparator{
		oracle: oracle,
		config: cfg,
		logger: l,
	}
}

// Compare classifies the candidate as direct, split, sum or unknown, in that order of
// precedence. Missing prices only make the direct check inconclusive. The only error
// returned is the context's.
func (vc *ValueComparator) Compare(ctx context.Context, in *ComparisonInput) (*Comparison, error) {
	comparison := &Comparison{Classification: Classification_Unknown}

	direct, err := vc.directMatch(ctx, in, comparison)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		comparison.PriceMissing = true
		vc.logger.Sugar().Debugw("Direct match inconclusive",
			zap.String("parent", in.Parent.Hash),
			zap.String("candidate", in.Candidate.Hash),
			zap.Error(err),
		)
	}
	if direct {
		comparison.Classification = Classification_Direct
		comparison.Basis = MatchBasis_Usd
		comparison.MatchedHashes = []string{in.Candidate.Hash}
		return comparison, nil
	}

	if matched := vc.matchSubset(in.OutgoingPool, in.Candidate, in.Parent.Amount); matched != nil {
		// without prices a lone transfer within the percentage band stands in for the USD check
		if len(matched) == 1 && comparison.PriceMissing {
			comparison.Classification = Classification_Direct
			comparison.Basis = MatchBasis_Amount
		} else {
			comparison.Classification = Classification_Split
		}
		comparison.MatchedHashes = matched
		return comparison, nil
	}

	if matched := vc.matchSubset(in.IncomingPool, in.Parent, in.Candidate.Amount); matched != nil && len(matched) > 1 {
		comparison.Classification = Classification_Sum
		comparison.MatchedHashes = matched
		return comparison, nil
	}

	return comparison, nil
}

func (vc *ValueComparator) directMatch(ctx context.Context, in *ComparisonInput, comparison *Comparison) (bool, error) {
	if vc.oracle == nil {
		return false, flowErrors.NewFlowError(flowErrors.FlowError_PriceNotFound, nil).WithMessage("no price oracle")
	}
	parentPrice, err := vc.oracle.PriceUSD(ctx, in.Asset.Symbol, in.Parent.Time)
	if err != nil {
		return false, err
	}
	candidatePrice, err := vc.oracle.PriceUSD(ctx, in.Asset.Symbol, in.Candidate.Time)
	if err != nil {
		return false, err
	}

	parentUsd := numbers.ValueUSD(in.Parent.Amount, in.Asset.Decimals, parentPrice)
	candidateUsd := numbers.ValueUSD(in.Candidate.Amount, in.Asset.Decimals, candidatePrice)
	comparison.ParentUsd = parentUsd.StringFixed(2)
	comparison.CandidateUsd = candidateUsd.StringFixed(2)

	return candidateUsd.Sub(parentUsd).Abs().LessThanOrEqual(vc.config.ToleranceUsd), nil
}

// matchSubset searches pool for the first subset containing required whose amounts sum to
// target within the percentage tolerance, returning the matched hashes.
func (vc *ValueComparator) matchSubset(pool []*Transfer, required *Transfer, target *big.Int) []string {
	ordered := vc.boundPool(SortTransfers(withTransfer(pool, required)), required)

	requiredIndex := -1
	amounts := make([]*big.Int, len(ordered))
	for i, t := range ordered {
		amounts[i] = t.Amount
		if t.Hash == required.Hash {
			requiredIndex = i
		}
	}

	indices := findSubset(amounts, requiredIndex, target, vc.config.TolerancePercent)
	if indices == nil {
		return nil
	}
	hashes := make([]string, 0, len(indices))
	for _, i := range indices {
		hashes = append(hashes, ordered[i].Hash)
	}
	return hashes
}

// boundPool keeps at most MaxSubsetPool transfers, always including required.
func (vc *ValueComparator) boundPool(pool []*Transfer, required *Transfer) []*Transfer {
	limit := vc.config.MaxSubsetPool
	if len(pool) <= limit {
		return pool
	}
	vc.logger.Sugar().Warnw("Subset pool truncated",
		zap.String("required", required.Hash),
		zap.Int("poolSize", len(pool)),
		zap.Int("limit", limit),
	)
	bounded := make([]*Transfer, 0, limit)
	for _, t := range pool {
		if len(bounded) == limit-1 && t.Hash != required.Hash && !containsHash(bounded, required.Hash) {
			continue
		}
		bounded = append(bounded, t)
		if len(bounded) == limit {
			break
		}
	}
	return bounded
}

func withTransfer(pool []*Transfer, t *Transfer) []*Transfer {
	if containsHash(pool, t.Hash) {
		return pool
	}
	return append(append(make([]*Transfer, 0, len(pool)+1), pool...), t)
}

func containsHash(pool []*Transfer, hash string) bool {
	for _, t := range pool {
		if t.Hash == hash {
			return true
		}
	}
	return false
}

// SortTransfers returns a copy ordered by ascending block number, then hash.
func SortTransfers(transfers []*Transfer) []*Transfer {
	sorted := append(make([]*Transfer, 0, len(transfers)), transfers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].BlockNumber != sorted[j].BlockNumber {
			return sorted[i].BlockNumber < sorted[j].BlockNumber
		}
		return sorted[i].Hash < sorted[j].Hash
	})
	return sorted
}
