package pathTraversal

import (
	"context"
	"time"

	"github.com/Layr-Labs/fundtracer/internal/config"
	"github.com/Layr-Labs/fundtracer/internal/metrics"
	"github.com/Layr-Labs/fundtracer/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/fundtracer/pkg/clients/etherscan"
	"github.com/Layr-Labs/fundtracer/pkg/transactionContext"
	"github.com/Layr-Labs/fundtracer/pkg/valueComparator"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type ContextBuilder interface {
	BuildContext(ctx context.Context, hash string) (*transactionContext.TransactionContext, error)
}

type Explorer interface {
	ListTransactions(ctx context.Context, address string, startBlock uint64, endBlock uint64) ([]*etherscan.Transaction, error)
	ListTokenTransfers(ctx context.Context, address string, token string, startBlock uint64, endBlock uint64) ([]*etherscan.Transaction, error)
}

type Comparator interface {
	Compare(ctx context.Context, in *valueComparator.ComparisonInput) (*valueComparator.Comparison, error)
}

type CexTable interface {
	IsCex(address string) bool
}

type EngineConfig struct {
	Depth              int
	ForwardBlockWindow uint64
	MaxCandidates      int
	// Concurrency bounds sibling expansion; 1 expands sequentially.
	Concurrency int
	RunTimeout  time.Duration
	CallTimeout time.Duration
}

func EngineConfigFromConfig(cfg *config.Config) (*EngineConfig, error) {
	window, err := cfg.GetForwardBlockWindow()
	if err != nil {
		return nil, err
	}
	return &EngineConfig{
		Depth:              cfg.TraversalConfig.Depth,
		ForwardBlockWindow: window,
		MaxCandidates:      cfg.TraversalConfig.MaxCandidates,
		Concurrency:        cfg.TraversalConfig.Concurrency,
		RunTimeout:         cfg.TraversalConfig.RunTimeout,
		CallTimeout:        cfg.TraversalConfig.CallTimeout,
	}, nil
}

type Engine struct {
	builder     ContextBuilder
	explorer    Explorer
	comparator  Comparator
	wallets     CexTable
	config      *EngineConfig
	logger      *zap.Logger
	metricsSink *metrics.MetricsSink

	// OnNodeExpanded is called once per finished node, possibly from several goroutines.
	OnNodeExpanded func(node *PathNode)
}

func NewEngine(
	builder ContextBuilder,
	explorer Explorer,
	comparator Comparator,
	wallets CexTable,
	cfg *EngineConfig,
	ms *metrics.MetricsSink,
	l *zap.Logger,
) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 20
	}
	return &Engine{
		builder:     builder,
		explorer:    explorer,
		comparator:  comparator,
		wallets:     wallets,
		config:      cfg,
		logger:      l,
		metricsSink: ms,
	}
}

// Trace expands the transaction rootHash into a path tree at most depth edges deep. Only a
// failure to resolve the root itself is returned; every other failure becomes a leaf.
func (e *Engine) Trace(ctx context.Context, rootHash string, asset Asset, depth int) (*PathNode, error) {
	start := time.Now()
	ctx, cancel := e.runContext(ctx)
	defer cancel()

	root, rootTransfer, err := e.resolveRoot(ctx, rootHash, asset, depth)
	if err != nil {
		return nil, err
	}
	e.expandNode(ctx, asset, root, rootTransfer, depth)

	e.recordRun(root, start)
	return root, nil
}

func (e *Engine) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.RunTimeout > 0 {
		return context.WithTimeout(ctx, e.config.RunTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.CallTimeout > 0 {
		return context.WithTimeout(ctx, e.config.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) buildContext(ctx context.Context, hash string) (*transactionContext.TransactionContext, error) {
	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	return e.builder.BuildContext(callCtx, hash)
}

func (e *Engine) resolveRoot(ctx context.Context, rootHash string, asset Asset, depth int) (*PathNode, *valueComparator.Transfer, error) {
	txCtx, err := e.buildContext(ctx, rootHash)
	if err != nil {
		e.logger.Sugar().Errorw("Failed to resolve root transaction", zap.String("hash", rootHash), zap.Error(err))
		return nil, nil, err
	}
	transfer, err := transferFromContext(txCtx, asset, "")
	if err != nil {
		e.logger.Sugar().Errorw("Root transaction has no traceable transfer", zap.String("hash", rootHash), zap.Error(err))
		return nil, nil, err
	}
	return &PathNode{
		Hash:           txCtx.Hash,
		Relation:       Relation_Root,
		Transfer:       summarize(transfer, asset),
		Transaction:    txCtx,
		DepthRemaining: depth,
		Children:       make([]*PathNode, 0),
	}, transfer, nil
}

// expandNode attaches the successors of a node whose transaction is already resolved.
// transfer is the movement that brought funds to the address being followed.
func (e *Engine) expandNode(ctx context.Context, asset Asset, node *PathNode, transfer *valueComparator.Transfer, depth int) {
	holder := transfer.To
	if e.wallets != nil && e.wallets.IsCex(holder) {
		e.finishLeaf(node, LeafReason_CexSpecific, nil)
		return
	}
	if depth <= 0 {
		e.finishLeaf(node, LeafReason_DepthLimitReached, nil)
		return
	}

	funds, err := e.fetchListing(ctx, asset, holder, transfer.BlockNumber)
	if err != nil {
		e.finishLeaf(node, LeafReasonFor(err), err)
		return
	}

	candidates := e.candidatesOf(funds, transfer)
	if len(candidates) == 0 {
		e.finishLeaf(node, LeafReason_NoSuccessors, nil)
		return
	}

	children := make([]*PathNode, len(candidates))
	g := &errgroup.Group{}
	g.SetLimit(e.config.Concurrency)
	for i, candidate := range candidates {
		g.Go(func() error {
			children[i] = e.expandCandidate(ctx, asset, funds, transfer, candidate, depth-1)
			return nil
		})
	}
	_ = g.Wait()

	node.Children = children
	e.finish(node)
}

// candidatesOf returns the outgoing transfers that could continue the flow, earliest first.
func (e *Engine) candidatesOf(funds *listing, parent *valueComparator.Transfer) []*valueComparator.Transfer {
	candidates := make([]*valueComparator.Transfer, 0, len(funds.outgoing))
	for _, t := range funds.outgoing {
		if t.Hash == parent.Hash || t.BlockNumber < parent.BlockNumber {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) > e.config.MaxCandidates {
		e.logger.Sugar().Warnw("Too many successor candidates, keeping the earliest",
			zap.String("address", funds.holder),
			zap.String("parent", parent.Hash),
			zap.Int("candidates", len(candidates)),
			zap.Int("limit", e.config.MaxCandidates),
		)
		candidates = candidates[:e.config.MaxCandidates]
	}
	return candidates
}

func (e *Engine) compare(ctx context.Context, asset Asset, funds *listing, parent *valueComparator.Transfer, candidate *valueComparator.Transfer) (*valueComparator.Comparison, error) {
	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	return e.comparator.Compare(callCtx, &valueComparator.ComparisonInput{
		Asset:        asset.comparatorAsset(),
		Parent:       parent,
		Candidate:    candidate,
		OutgoingPool: funds.outgoing,
		IncomingPool: funds.incomingBetween(parent.BlockNumber, candidate.BlockNumber),
	})
}

func (e *Engine) expandCandidate(
	ctx context.Context,
	asset Asset,
	funds *listing,
	parent *valueComparator.Transfer,
	candidate *valueComparator.Transfer,
	depth int,
) *PathNode {
	node := &PathNode{
		Hash:           candidate.Hash,
		Relation:       Relation_Unknown,
		Transfer:       summarize(candidate, asset),
		DepthRemaining: depth,
		Children:       make([]*PathNode, 0),
	}

	comparison, err := e.compare(ctx, asset, funds, parent, candidate)
	if err != nil {
		e.finishLeaf(node, LeafReasonFor(err), err)
		return node
	}
	node.Comparison = comparison
	node.Relation = relationOf(comparison.Classification)

	isCex := e.wallets != nil && e.wallets.IsCex(candidate.To)
	if node.Relation == Relation_Unknown && !isCex {
		e.finishLeaf(node, LeafReason_Unclassified, nil)
		return node
	}

	txCtx, err := e.buildContext(ctx, candidate.Hash)
	if err != nil {
		if isCex {
			e.finishLeaf(node, LeafReason_CexSpecific, err)
			return node
		}
		e.finishLeaf(node, LeafReasonFor(err), err)
		return node
	}
	node.Transaction = txCtx

	e.expandNode(ctx, asset, node, candidate, depth)
	return node
}

func (e *Engine) finishLeaf(node *PathNode, reason LeafReason, err error) {
	node.LeafReason = reason
	if err != nil {
		node.Error = err.Error()
		e.logger.Sugar().Warnw("Branch terminated by failure",
			zap.String("hash", node.Hash),
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
	}
	_ = e.metricsSink.Incr(metricsTypes.Metric_Incr_Leaf, []metricsTypes.MetricsLabel{{Name: "reason", Value: string(reason)}}, 1)
	e.finish(node)
}

func (e *Engine) finish(node *PathNode) {
	_ = e.metricsSink.Incr(metricsTypes.Metric_Incr_NodeExpanded, nil, 1)
	if e.OnNodeExpanded != nil {
		e.OnNodeExpanded(node)
	}
}

func (e *Engine) recordRun(root *PathNode, start time.Time) {
	size := root.Size()
	_ = e.metricsSink.Gauge(metricsTypes.Metric_Gauge_TreeSize, float64(size), nil)
	_ = e.metricsSink.Timing(metricsTypes.Metric_Timing_TraversalDuration, time.Since(start), nil)
	e.logger.Sugar().Infow("Traversal finished",
		zap.String("root", root.Hash),
		zap.Int("nodes", size),
		zap.Int("depth", root.Depth()),
		zap.Duration("duration", time.Since(start)),
	)
}

