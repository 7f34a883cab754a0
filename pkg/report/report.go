package report

import (
	"context"
	"errors"
	"time"

	"github.com/Layr-Labs/fundtracer/pkg/attackPath"
	"github.com/Layr-Labs/fundtracer/pkg/pathTraversal"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/wealdtech/go-merkletree/v2"
	"github.com/wealdtech/go-merkletree/v2/keccak256"
)

type Report struct {
	RunId           string                       `json:"runId"`
	Wallet          string                       `json:"wallet"`
	ChainId         uint64                       `json:"chainId"`
	TokenSymbol     string                       `json:"tokenSymbol"`
	Token           string                       `json:"token,omitempty"`
	GeneratedAt     string                       `json:"generatedAt"`
	RootHash        string                       `json:"rootHash"`
	Depth           int                          `json:"depth"`
	NodeCount       int                          `json:"nodeCount"`
	EvidenceRoot    string                       `json:"evidenceRoot"`
	AttackerWallets []*attackPath.AttackerWallet `json:"attackerWallets"`
	Tree            *pathTraversal.PathNode      `json:"tree"`
}

type ReportSink interface {
	Write(ctx context.Context, r *Report) error
	Close() error
}

type ReportInput struct {
	Wallet  string
	ChainId uint64
	Asset   pathTraversal.Asset
	Depth   int
	Tree    *pathTraversal.PathNode
}

func NewReport(in *ReportInput) (*Report, error) {
	evidenceRoot, err := EvidenceRoot(in.Tree)
	if err != nil {
		return nil, err
	}
	return &Report{
		RunId:           uuid.New().String(),
		Wallet:          in.Wallet,
		ChainId:         in.ChainId,
		TokenSymbol:     in.Asset.Symbol,
		Token:           in.Asset.Token,
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
		RootHash:        in.Tree.Hash,
		Depth:           in.Depth,
		NodeCount:       in.Tree.Size(),
		EvidenceRoot:    evidenceRoot,
		AttackerWallets: attackPath.ExtractAttackerWallets(in.Tree),
		Tree:            in.Tree,
	}, nil
}

// EvidenceRoot is the keccak256 merkle root over every transaction hash of the tree in
// pre-order. Two reports with the same root describe the same tree of transactions.
func EvidenceRoot(tree *pathTraversal.PathNode) (string, error) {
	if tree == nil {
		return "", errors.New("empty tree")
	}
	leaves := make([][]byte, 0)
	for _, hash := range tree.Hashes() {
		leaf, err := hexutil.Decode(hash)
		if err != nil {
			leaf = []byte(hash)
		}
		leaves = append(leaves, leaf)
	}

	mt, err := merkletree.NewTree(
		merkletree.WithData(leaves),
		merkletree.WithHashType(keccak256.New()),
	)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(mt.Root()), nil
}

// MultiSink writes to every sink and returns the joined errors.
type MultiSink struct {
	sinks []ReportSink
}

func NewMultiSink(sinks ...ReportSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Write(ctx context.Context, r *Report) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
