package pathTraversal

import (
	"context"
	"errors"

	"github.com/Layr-Labs/fundtracer/internal/types/numbers"
	"github.com/Layr-Labs/fundtracer/pkg/flowErrors"
	"github.com/Layr-Labs/fundtracer/pkg/transactionContext"
	"github.com/Layr-Labs/fundtracer/pkg/valueComparator"
)

type LeafReason string

const (
	LeafReason_DepthLimitReached   LeafReason = "depth-limit-reached"
	LeafReason_Unclassified        LeafReason = "unclassified"
	LeafReason_CexSpecific         LeafReason = "CEX-specific"
	LeafReason_TransactionNotFound LeafReason = "transaction-not-found"
	LeafReason_ReceiptNotFound     LeafReason = "receipt-not-found"
	LeafReason_FetchTimeout        LeafReason = "fetch-timeout"
	LeafReason_FetchFailed         LeafReason = "fetch-failed"
	LeafReason_ValidationFailed    LeafReason = "validation-failed"
	LeafReason_NoSuccessors        LeafReason = "no-successors"
)

// Relation is how a node's transfer relates to its parent's.
type Relation string

const (
	Relation_Root          Relation = "root"
	Relation_DirectForward Relation = "direct"
	Relation_Split         Relation = "split"
	Relation_Sum           Relation = "sum"
	Relation_Unknown       Relation = "unknown"
)

func relationOf(c valueComparator.Classification) Relation {
	switch c {
	case valueComparator.Classification_Direct:
		return Relation_DirectForward
	case valueComparator.Classification_Split:
		return Relation_Split
	case valueComparator.Classification_Sum:
		return Relation_Sum
	default:
		return Relation_Unknown
	}
}

// TransferSummary is the movement of the traced asset that put a node in the tree.
type TransferSummary struct {
	Hash            string               `json:"hash"`
	From            string               `json:"from"`
	To              string               `json:"to"`
	BlockNumber     uint64               `json:"blockNumber"`
	Amount          *numbers.BigQuantity `json:"amount"`
	FormattedAmount string               `json:"formattedAmount"`
}

// PathNode is one transaction in the traversal tree. A transaction may appear more than
// once when funds rejoin; the tree is never deduplicated.
type PathNode struct {
	Hash           string                                 `json:"hash"`
	Relation       Relation                               `json:"relation"`
	Comparison     *valueComparator.Comparison            `json:"comparison,omitempty"`
	Transfer       *TransferSummary                       `json:"transfer,omitempty"`
	Transaction    *transactionContext.TransactionContext `json:"transaction,omitempty"`
	DepthRemaining int                                    `json:"depthRemaining"`
	LeafReason     LeafReason                             `json:"leafReason,omitempty"`
	Error          string                                 `json:"error,omitempty"`
	Children       []*PathNode                            `json:"children"`
}

func (n *PathNode) IsLeaf() bool {
	return len(n.Children) == 0
}

// Walk visits the tree in pre-order with the edge depth of each node.
func (n *PathNode) Walk(fn func(node *PathNode, depth int)) {
	var walk func(node *PathNode, depth int)
	walk = func(node *PathNode, depth int) {
		fn(node, depth)
		for _, child := range node.Children {
			walk(child, depth+1)
		}
	}
	walk(n, 0)
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (n *PathNode) Depth() int {
	max := 0
	n.Walk(func(_ *PathNode, depth int) {
		if depth > max {
			max = depth
		}
	})
	return max
}

func (n *PathNode) Size() int {
	size := 0
	n.Walk(func(_ *PathNode, _ int) { size++ })
	return size
}

// Hashes lists every node's transaction hash in pre-order.
func (n *PathNode) Hashes() []string {
	hashes := make([]string, 0)
	n.Walk(func(node *PathNode, _ int) { hashes = append(hashes, node.Hash) })
	return hashes
}

func (n *PathNode) Leaves() []*PathNode {
	leaves := make([]*PathNode, 0)
	n.Walk(func(node *PathNode, _ int) {
		if node.IsLeaf() {
			leaves = append(leaves, node)
		}
	})
	return leaves
}

// LeafReasonFor maps a branch failure onto the leaf reason recorded for it.
func LeafReasonFor(err error) LeafReason {
	if errors.Is(err, context.Canceled) {
		return LeafReason_FetchTimeout
	}
	t, _ := flowErrors.TypeOf(err)
	switch flowErrors.ClassOf(err) {
	case flowErrors.ErrorClass_NotFound:
		if t == flowErrors.FlowError_ReceiptNotFound {
			return LeafReason_ReceiptNotFound
		}
		return LeafReason_TransactionNotFound
	case flowErrors.ErrorClass_Malformed:
		return LeafReason_ValidationFailed
	}
	if t == flowErrors.FlowError_Timeout {
		return LeafReason_FetchTimeout
	}
	return LeafReason_FetchFailed
}
