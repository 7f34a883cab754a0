package pathTraversal

import (
	"context"
	"time"

	"github.com/Layr-Labs/fundtracer/pkg/valueComparator"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SkeletonNode is a known fund path: each child spent funds received in its parent.
type SkeletonNode struct {
	Hash     string          `json:"hash"`
	Children []*SkeletonNode `json:"children,omitempty"`
}

// Height is the number of edges on the longest path below the node.
func (s *SkeletonNode) Height() int {
	height := 0
	for _, child := range s.Children {
		if h := child.Height() + 1; h > height {
			height = h
		}
	}
	return height
}

// TraceSkeleton resolves every transaction of a known path, classifies each skeleton edge,
// and continues normal expansion below the skeleton's leaves for extraDepth edges. A
// skeleton node's DepthRemaining is its skeleton height plus extraDepth, so the budget
// decreases along every edge.
func (e *Engine) TraceSkeleton(ctx context.Context, skeleton *SkeletonNode, asset Asset, extraDepth int) (*PathNode, error) {
	start := time.Now()
	ctx, cancel := e.runContext(ctx)
	defer cancel()

	root, rootTransfer, err := e.resolveRoot(ctx, skeleton.Hash, asset, skeleton.Height()+extraDepth)
	if err != nil {
		return nil, err
	}
	e.hydrate(ctx, asset, skeleton, root, rootTransfer, extraDepth)

	e.recordRun(root, start)
	return root, nil
}

func (e *Engine) hydrate(ctx context.Context, asset Asset, skeleton *SkeletonNode, node *PathNode, transfer *valueComparator.Transfer, extraDepth int) {
	if len(skeleton.Children) == 0 {
		e.expandNode(ctx, asset, node, transfer, extraDepth)
		return
	}

	funds, err := e.fetchListing(ctx, asset, transfer.To, transfer.BlockNumber)
	if err != nil {
		e.logger.Sugar().Warnw("Failed to list transfers for skeleton edge classification",
			zap.String("hash", node.Hash),
			zap.Error(err),
		)
		funds = nil
	}

	children := make([]*PathNode, len(skeleton.Children))
	g := &errgroup.Group{}
	g.SetLimit(e.config.Concurrency)
	for i, child := range skeleton.Children {
		g.Go(func() error {
			children[i] = e.hydrateChild(ctx, asset, funds, transfer, child, extraDepth)
			return nil
		})
	}
	_ = g.Wait()

	node.Children = children
	e.finish(node)
}

// hydrateChild resolves a skeleton edge. Skeleton edges are followed whatever their
// classification; an unknown relation is only recorded.
func (e *Engine) hydrateChild(
	ctx context.Context,
	asset Asset,
	funds *listing,
	parent *valueComparator.Transfer,
	skeleton *SkeletonNode,
	extraDepth int,
) *PathNode {
	node := &PathNode{
		Hash:           skeleton.Hash,
		Relation:       Relation_Unknown,
		DepthRemaining: skeleton.Height() + extraDepth,
		Children:       make([]*PathNode, 0),
	}

	txCtx, err := e.buildContext(ctx, skeleton.Hash)
	if err != nil {
		e.finishLeaf(node, LeafReasonFor(err), err)
		return node
	}
	node.Hash = txCtx.Hash
	node.Transaction = txCtx

	var transfer *valueComparator.Transfer
	if funds != nil {
		transfer = funds.findOutgoing(txCtx.Hash)
	}
	if transfer == nil {
		transfer, err = transferFromContext(txCtx, asset, parent.To)
		if err != nil {
			e.finishLeaf(node, LeafReasonFor(err), err)
			return node
		}
	}
	node.Transfer = summarize(transfer, asset)

	if funds != nil {
		comparison, err := e.compare(ctx, asset, funds, parent, transfer)
		if err == nil {
			node.Comparison = comparison
			node.Relation = relationOf(comparison.Classification)
		}
	}

	e.hydrate(ctx, asset, skeleton, node, transfer, extraDepth)
	return node
}
