package addressClassifier

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Layr-Labs/fundtracer/internal/logger"
	"github.com/Layr-Labs/fundtracer/pkg/cacheStore/memoryCacheStore"
	"github.com/Layr-Labs/fundtracer/pkg/flowErrors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const (
	walletAddress = "0x1111000000000000000000000000000000000001"
	proxyAddress  = "0x2222000000000000000000000000000000000002"
	implAddress   = "0x3333000000000000000000000000000000000003"
	tokenAddress  = "0x4444000000000000000000000000000000000004"
)

type fakeChain struct {
	code        map[string]string
	slots       map[string]string
	calls       map[string][]byte
	slotErr     error
	codeErr     error
	codeReads   int32
	callsIssued int32
}

func (f *fakeChain) GetCode(ctx context.Context, address string) (string, error) {
	atomic.AddInt32(&f.codeReads, 1)
	if f.codeErr != nil {
		return "", f.codeErr
	}
	if code, ok := f.code[address]; ok {
		return code, nil
	}
	return "0x", nil
}

func (f *fakeChain) GetStorageAt(ctx context.Context, address string, slot string, block string) (string, error) {
	if f.slotErr != nil {
		return "", f.slotErr
	}
	if v, ok := f.slots[address]; ok {
		return v, nil
	}
	return "0x0", nil
}

func (f *fakeChain) CallContract(ctx context.Context, to string, data []byte) ([]byte, error) {
	atomic.AddInt32(&f.callsIssued, 1)
	if out, ok := f.calls[fmt.Sprintf("%s:%s", strings.ToLower(to), hexutil.Encode(data))]; ok {
		return out, nil
	}
	return nil, flowErrors.NewFlowError(flowErrors.FlowError_Validation, fmt.Errorf("execution reverted"))
}

func callKey(address string, selector []byte) string {
	return fmt.Sprintf("%s:%s", address, hexutil.Encode(selector))
}

func encodeString(s string) []byte {
	stringType, _ := abi.NewType("string", "", nil)
	out, _ := abi.Arguments{{Type: stringType}}.Pack(s)
	return out
}

func setup() *zap.Logger {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	return l
}

func Test_AddressClassifier(t *testing.T) {
	l := setup()

	t.Run("Test empty bytecode is an externally owned account", func(t *testing.T) {
		chain := &fakeChain{}
		ac := NewAddressClassifier(chain, nil, 1, nil, l)

		res, err := ac.Classify(context.Background(), "0x1111000000000000000000000000000000000001")
		assert.Nil(t, err)
		assert.Equal(t, AddressKind_ExternallyOwned, res.Kind)
		assert.False(t, res.IsContract())
		assert.Equal(t, int32(0), chain.callsIssued)
	})
	t.Run("Test EIP-1967 slot wins over implementation()", func(t *testing.T) {
		chain := &fakeChain{
			code:  map[string]string{proxyAddress: "0x6080"},
			slots: map[string]string{proxyAddress: hexutil.Encode(common.LeftPadBytes(common.HexToAddress(implAddress).Bytes(), 32))},
			calls: map[string][]byte{
				callKey(proxyAddress, implementationSelector): common.LeftPadBytes(common.HexToAddress(tokenAddress).Bytes(), 32),
			},
		}
		ac := NewAddressClassifier(chain, nil, 1, nil, l)

		res, err := ac.Classify(context.Background(), proxyAddress)
		assert.Nil(t, err)
		assert.Equal(t, AddressKind_Contract, res.Kind)
		assert.Equal(t, implAddress, res.Implementation)
		assert.True(t, res.IsProxy())
	})
	t.Run("Test implementation() is used when the slot is empty", func(t *testing.T) {
		chain := &fakeChain{
			code: map[string]string{proxyAddress: "0x6080"},
			calls: map[string][]byte{
				callKey(proxyAddress, implementationSelector): common.LeftPadBytes(common.HexToAddress(implAddress).Bytes(), 32),
			},
		}
		ac := NewAddressClassifier(chain, nil, 1, nil, l)

		res, err := ac.Classify(context.Background(), proxyAddress)
		assert.Nil(t, err)
		assert.Equal(t, implAddress, res.Implementation)
	})
	t.Run("Test failing proxy strategies leave the contract non-proxied", func(t *testing.T) {
		chain := &fakeChain{
			code:    map[string]string{proxyAddress: "0x6080"},
			slotErr: fmt.Errorf("boom"),
		}
		ac := NewAddressClassifier(chain, nil, 1, nil, l)

		res, err := ac.Classify(context.Background(), proxyAddress)
		assert.Nil(t, err)
		assert.Equal(t, AddressKind_Contract, res.Kind)
		assert.Equal(t, "", res.Implementation)
		assert.Nil(t, res.TokenInfo)
	})
	t.Run("Test token metadata is probed", func(t *testing.T) {
		chain := &fakeChain{
			code: map[string]string{tokenAddress: "0x6080"},
			calls: map[string][]byte{
				callKey(tokenAddress, decimalsSelector): common.LeftPadBytes([]byte{6}, 32),
				callKey(tokenAddress, symbolSelector):   encodeString("USDC"),
				callKey(tokenAddress, nameSelector):     common.RightPadBytes([]byte("USD Coin"), 32),
			},
		}
		ac := NewAddressClassifier(chain, nil, 1, nil, l)

		res, err := ac.Classify(context.Background(), tokenAddress)
		assert.Nil(t, err)
		assert.Equal(t, &TokenInfo{Symbol: "USDC", Name: "USD Coin", Decimals: 6}, res.TokenInfo)
	})
	t.Run("Test bytecode read failures are returned without retry", func(t *testing.T) {
		chain := &fakeChain{codeErr: flowErrors.NewFlowError(flowErrors.FlowError_ChainRead, fmt.Errorf("timeout"))}
		ac := NewAddressClassifier(chain, nil, 1, nil, l)

		_, err := ac.Classify(context.Background(), walletAddress)
		assert.True(t, flowErrors.Is(err, flowErrors.FlowError_ChainRead))
		assert.Equal(t, int32(1), chain.codeReads)
	})
	t.Run("Test invalid addresses are validation errors", func(t *testing.T) {
		ac := NewAddressClassifier(&fakeChain{}, nil, 1, nil, l)
		_, err := ac.Classify(context.Background(), "0x12")
		assert.True(t, flowErrors.Is(err, flowErrors.FlowError_Validation))
	})
	t.Run("Test classifications are cached per chain", func(t *testing.T) {
		chain := &fakeChain{code: map[string]string{tokenAddress: "0x6080"}}
		store := memoryCacheStore.NewMemoryCacheStore()
		ac := NewAddressClassifier(chain, store, 1, nil, l)

		first, err := ac.Classify(context.Background(), tokenAddress)
		assert.Nil(t, err)
		second, err := ac.Classify(context.Background(), strings.ToUpper(tokenAddress[2:]))
		assert.Nil(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, int32(1), chain.codeReads)

		other := NewAddressClassifier(chain, store, 10, nil, l)
		_, _ = other.Classify(context.Background(), tokenAddress)
		assert.Equal(t, int32(2), chain.codeReads)
	})
}
