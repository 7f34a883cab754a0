package attackPath

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Layr-Labs/fundtracer/pkg/pathTraversal"
	"github.com/Layr-Labs/fundtracer/pkg/utils"
	"github.com/ethereum/go-ethereum/common/hexutil"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// RawTransactionAttack is a hand-curated description of an attack: the theft transaction
// and the known hash chains that moved the stolen funds afterwards.
type RawTransactionAttack struct {
	TokenSymbol       string     `json:"tokenSymbol"`
	Token             string     `json:"token,omitempty"`
	RootTransaction   string     `json:"rootTransaction"`
	TransactionsPaths [][]string `json:"transactionsPaths"`
}

func LoadRawTransactionAttack(path string) (*RawTransactionAttack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRawTransactionAttack(data)
}

func ParseRawTransactionAttack(data []byte) (*RawTransactionAttack, error) {
	attack := &RawTransactionAttack{}
	if err := json.Unmarshal(data, attack); err != nil {
		return nil, err
	}
	if err := attack.Validate(); err != nil {
		return nil, err
	}
	return attack, nil
}

func (r *RawTransactionAttack) Validate() error {
	if !IsTransactionHash(r.RootTransaction) {
		return fmt.Errorf("invalid root transaction '%s'", r.RootTransaction)
	}
	if r.Token != "" && utils.NormalizeAddress(r.Token) == "" {
		return fmt.Errorf("invalid token address '%s'", r.Token)
	}
	for i, path := range r.TransactionsPaths {
		for j, hash := range path {
			if !IsTransactionHash(hash) {
				return fmt.Errorf("invalid hash '%s' at path %d position %d", hash, i, j)
			}
		}
	}
	return nil
}

func IsTransactionHash(hash string) bool {
	if len(hash) != 66 {
		return false
	}
	_, err := hexutil.Decode(hash)
	return err == nil
}

// BuildSkeleton turns the hash chains into a tree rooted at the root transaction. Paths that
// share a prefix share the corresponding nodes; a hash reached through different prefixes
// appears once under each of them.
func (r *RawTransactionAttack) BuildSkeleton() *pathTraversal.SkeletonNode {
	root := &pathTraversal.SkeletonNode{Hash: strings.ToLower(r.RootTransaction)}
	for _, path := range r.TransactionsPaths {
		current := root
		for _, hash := range path {
			hash = strings.ToLower(hash)
			if hash == current.Hash {
				continue
			}
			next := findChild(current, hash)
			if next == nil {
				next = &pathTraversal.SkeletonNode{Hash: hash}
				current.Children = append(current.Children, next)
			}
			current = next
		}
	}
	return root
}

func findChild(node *pathTraversal.SkeletonNode, hash string) *pathTraversal.SkeletonNode {
	for _, child := range node.Children {
		if child.Hash == hash {
			return child
		}
	}
	return nil
}

type AttackerWallet struct {
	Address string   `json:"address"`
	Hashes  []string `json:"hashes"`
}

// ExtractAttackerWallets lists the addresses the traced funds were sent to, in the order they
// were first reached, with every hash that reached them. Exchange deposits and transfers
// of unknown relation are not attributed to the attacker.
func ExtractAttackerWallets(tree *pathTraversal.PathNode) []*AttackerWallet {
	om := orderedmap.New[string, *AttackerWallet]()

	tree.Walk(func(node *pathTraversal.PathNode, _ int) {
		if node.Transfer == nil || node.Relation == pathTraversal.Relation_Unknown {
			return
		}
		if node.LeafReason == pathTraversal.LeafReason_CexSpecific {
			return
		}
		address := node.Transfer.To
		wallet, found := om.Get(address)
		if !found {
			wallet = &AttackerWallet{Address: address, Hashes: make([]string, 0)}
			om.Set(address, wallet)
		}
		for _, h := range wallet.Hashes {
			if h == node.Hash {
				return
			}
		}
		wallet.Hashes = append(wallet.Hashes, node.Hash)
	})

	wallets := make([]*AttackerWallet, 0, om.Len())
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		wallets = append(wallets, pair.Value)
	}
	return wallets
}
