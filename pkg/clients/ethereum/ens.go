package ethereum

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const ENS_REGISTRY_ADDRESS = "0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"

var (
	ensResolverSelector = crypto.Keccak256([]byte("resolver(bytes32)"))[:4]
	ensNameSelector     = crypto.Keccak256([]byte("name(bytes32)"))[:4]
	ensAddrSelector     = crypto.Keccak256([]byte("addr(bytes32)"))[:4]
)

// NameHash implements the ENS namehash algorithm (EIP-137).
func NameHash(name string) common.Hash {
	node := common.Hash{}
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := crypto.Keccak256([]byte(labels[i]))
		node = common.BytesToHash(crypto.Keccak256(node.Bytes(), labelHash))
	}
	return node
}

func ReverseNode(address string) common.Hash {
	addr := strings.TrimPrefix(strings.ToLower(address), "0x")
	return NameHash(addr + ".addr.reverse")
}

// LookupReverseName resolves the primary ENS name for an address. It is best effort:
// any failure, or a name whose forward record does not point back at the address,
// yields an empty string.
func (c *Client) LookupReverseName(ctx context.Context, address string) string {
	if address == "" || !common.IsHexAddress(address) {
		return ""
	}
	node := ReverseNode(address)

	resolver, err := c.ensResolver(ctx, node)
	if err != nil || resolver == (common.Address{}) {
		return ""
	}

	out, err := c.CallContract(ctx, resolver.Hex(), append(append([]byte{}, ensNameSelector...), node.Bytes()...))
	if err != nil {
		c.Logger.Sugar().Debugw("ENS name lookup failed", zap.String("address", address), zap.Error(err))
		return ""
	}
	name, err := unpackString(out)
	if err != nil || name == "" {
		return ""
	}

	// forward verification
	forwardNode := NameHash(name)
	forwardResolver, err := c.ensResolver(ctx, forwardNode)
	if err != nil || forwardResolver == (common.Address{}) {
		return ""
	}
	out, err = c.CallContract(ctx, forwardResolver.Hex(), append(append([]byte{}, ensAddrSelector...), forwardNode.Bytes()...))
	if err != nil || len(out) < 32 {
		return ""
	}
	if !strings.EqualFold(common.BytesToAddress(out[12:32]).Hex(), address) {
		return ""
	}
	return name
}

func (c *Client) ensResolver(ctx context.Context, node common.Hash) (common.Address, error) {
	out, err := c.CallContract(ctx, ENS_REGISTRY_ADDRESS, append(append([]byte{}, ensResolverSelector...), node.Bytes()...))
	if err != nil {
		return common.Address{}, err
	}
	if len(out) < 32 {
		return common.Address{}, nil
	}
	return common.BytesToAddress(out[12:32]), nil
}

func unpackString(out []byte) (string, error) {
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		return "", err
	}
	values, err := abi.Arguments{{Type: stringType}}.Unpack(out)
	if err != nil {
		return "", err
	}
	if len(values) != 1 {
		return "", nil
	}
	s, _ := values[0].(string)
	return s, nil
}
