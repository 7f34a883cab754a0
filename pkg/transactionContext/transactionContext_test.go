package transactionContext

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/Layr-Labs/fundtracer/internal/config"
	"github.com/Layr-Labs/fundtracer/internal/logger"
	"github.com/Layr-Labs/fundtracer/pkg/abiResolver"
	"github.com/Layr-Labs/fundtracer/pkg/addressClassifier"
	"github.com/Layr-Labs/fundtracer/pkg/cacheStore/memoryCacheStore"
	"github.com/Layr-Labs/fundtracer/pkg/clients/ethereum"
	"github.com/Layr-Labs/fundtracer/pkg/flowErrors"
	"github.com/Layr-Labs/fundtracer/pkg/knownWallets"
	"github.com/Layr-Labs/fundtracer/pkg/parser"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	alice   = "0xa11ce00000000000000000000000000000000001"
	bob     = "0xb0b0000000000000000000000000000000000002"
	usdc    = "0xc0c0000000000000000000000000000000000003"
	mystery = "0xd0d0000000000000000000000000000000000004"
	created = "0xe0e0000000000000000000000000000000000005"
)

var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")).Hex()

type fakeChain struct {
	mu           sync.Mutex
	calls        map[string]int
	transactions map[string]*ethereum.EthereumTransaction
	receipts     map[string]*ethereum.EthereumTransactionReceipt
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		calls:        make(map[string]int),
		transactions: make(map[string]*ethereum.EthereumTransaction),
		receipts:     make(map[string]*ethereum.EthereumTransactionReceipt),
	}
}

func (f *fakeChain) count(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
}

func (f *fakeChain) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeChain) GetTransactionByHash(ctx context.Context, txHash string) (*ethereum.EthereumTransaction, error) {
	f.count("tx")
	if tx, ok := f.transactions[txHash]; ok {
		return tx, nil
	}
	return nil, flowErrors.NewFlowError(flowErrors.FlowError_TransactionNotFound, nil).WithTransactionHash(txHash)
}

func (f *fakeChain) GetTransactionReceipt(ctx context.Context, txHash string) (*ethereum.EthereumTransactionReceipt, error) {
	f.count("receipt")
	if r, ok := f.receipts[txHash]; ok {
		return r, nil
	}
	return nil, flowErrors.NewFlowError(flowErrors.FlowError_ReceiptNotFound, nil).WithTransactionHash(txHash)
}

func (f *fakeChain) GetBlockByNumber(ctx context.Context, blockNumber uint64) (*ethereum.EthereumBlock, error) {
	f.count("block")
	return &ethereum.EthereumBlock{
		Number:    ethereum.EthereumQuantity(blockNumber),
		Timestamp: ethereum.EthereumQuantity(1700000000 + blockNumber*12),
	}, nil
}

type fakeNames struct{}

func (fakeNames) LookupReverseName(ctx context.Context, address string) string {
	if address == alice {
		return "alice.eth"
	}
	return ""
}

type fakeClassifier struct{}

func (fakeClassifier) Classify(ctx context.Context, address string) (*addressClassifier.AddressContext, error) {
	address = strings.ToLower(address)
	switch address {
	case usdc:
		return &addressClassifier.AddressContext{
			Address:   address,
			Kind:      addressClassifier.AddressKind_Contract,
			TokenInfo: &addressClassifier.TokenInfo{Symbol: "USDC", Name: "USD Coin", Decimals: 6},
		}, nil
	case mystery, created:
		return &addressClassifier.AddressContext{Address: address, Kind: addressClassifier.AddressKind_Contract}, nil
	}
	return &addressClassifier.AddressContext{Address: address, Kind: addressClassifier.AddressKind_ExternallyOwned}, nil
}

type fakeAbis struct {
	mu        sync.Mutex
	transient bool
	calls     int
}

func (f *fakeAbis) ResolveAbi(ctx context.Context, address string) (*abiResolver.ResolvedAbi, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.transient {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_ExplorerRead, fmt.Errorf("502"))
	}
	if address == usdc {
		return &abiResolver.ResolvedAbi{Address: usdc, Source: "etherscan", Json: parser.Erc20AbiJson, Abi: parser.Erc20Abi()}, nil
	}
	return nil, flowErrors.NewFlowError(flowErrors.FlowError_AbiNotFound, nil).WithAddress(address)
}

func quantity(n uint64) *ethereum.EthereumQuantity {
	q := ethereum.EthereumQuantity(n)
	return &q
}

func bigQuantity(v *big.Int) ethereum.EthereumBigQuantity {
	return ethereum.EthereumBigQuantity(*v)
}

func word(address string) ethereum.EthereumHexString {
	return ethereum.EthereumHexString(hexutil.Encode(common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32)))
}

func transferLog(index uint64, token string, from string, to string, value int64) *ethereum.EthereumEventLog {
	return &ethereum.EthereumEventLog{
		LogIndex: ethereum.EthereumQuantity(index),
		Address:  ethereum.EthereumHexString(token),
		Topics:   []ethereum.EthereumHexString{ethereum.EthereumHexString(transferTopic), word(from), word(to)},
		Data:     ethereum.EthereumHexString(hexutil.Encode(common.LeftPadBytes(big.NewInt(value).Bytes(), 32))),
	}
}

func transferInput(to string, value int64) string {
	data, err := parser.Erc20Abi().Pack("transfer", common.HexToAddress(to), big.NewInt(value))
	if err != nil {
		panic(err)
	}
	return hexutil.Encode(data)
}

func setup() (*zap.Logger, *config.ChainInfo) {
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	chainInfo, _ := config.GetChainInfo(config.Chain_Ethereum)
	return l, chainInfo
}

func newBuilder(chain *fakeChain, abis *fakeAbis, l *zap.Logger, chainInfo *config.ChainInfo) (*TransactionContextBuilder, *memoryCacheStore.MemoryCacheStore) {
	store := memoryCacheStore.NewMemoryCacheStore()
	return NewTransactionContextBuilder(&TransactionContextBuilderConfig{
		Chain:       chain,
		Names:       fakeNames{},
		Classifier:  fakeClassifier{},
		AbiResolver: abis,
		Wallets: knownWallets.NewKnownWallets([]*knownWallets.KnownWallet{
			{Address: bob, Label: "Exchange Hot Wallet", Type: knownWallets.WalletType_Cex},
		}),
		Store:     store,
		ChainInfo: chainInfo,
	}, nil, l), store
}

func Test_TransactionContextBuilder(t *testing.T) {
	l, chainInfo := setup()

	oneAndAHalfEth, _ := new(big.Int).SetString("1500000000000000000", 10)

	t.Run("Test native transfer context", func(t *testing.T) {
		chain := newFakeChain()
		chain.transactions["0x01"] = &ethereum.EthereumTransaction{
			Hash:        "0x01",
			BlockNumber: quantity(100),
			From:        alice,
			To:          bob,
			Value:       bigQuantity(oneAndAHalfEth),
			Input:       "0x",
		}
		chain.receipts["0x01"] = &ethereum.EthereumTransactionReceipt{TransactionHash: "0x01", BlockNumber: 100, Status: quantity(1)}

		builder, _ := newBuilder(chain, &fakeAbis{}, l, chainInfo)
		txCtx, err := builder.BuildContext(context.Background(), "0x01")
		require.Nil(t, err)

		assert.Equal(t, TransactionKind_NativeTransfer, txCtx.Kind)
		assert.Nil(t, txCtx.ContractCall)
		assert.Equal(t, "1500000000000000000", txCtx.Value.String())
		assert.Equal(t, "1.5", txCtx.FormattedValue)
		assert.Equal(t, int64(100), txCtx.BlockNumber)
		assert.Equal(t, "2023-11-14T22:53:20Z", txCtx.Timestamp)
		assert.Equal(t, "alice.eth", txCtx.From.EnsName)
		assert.Equal(t, addressClassifier.AddressKind_ExternallyOwned, txCtx.To.Kind)
		require.NotNil(t, txCtx.To.KnownWallet)
		assert.True(t, txCtx.To.KnownWallet.IsCex())
		assert.True(t, txCtx.Succeeded)
	})
	t.Run("Test building twice performs one fetch sequence and returns equal values", func(t *testing.T) {
		chain := newFakeChain()
		chain.transactions["0x02"] = &ethereum.EthereumTransaction{
			Hash:        "0x02",
			BlockNumber: quantity(200),
			From:        alice,
			To:          usdc,
			Input:       ethereum.EthereumHexString(transferInput(bob, 5_000_000)),
		}
		chain.receipts["0x02"] = &ethereum.EthereumTransactionReceipt{
			TransactionHash: "0x02",
			BlockNumber:     200,
			Status:          quantity(1),
			Logs:            []*ethereum.EthereumEventLog{transferLog(0, usdc, alice, bob, 5_000_000)},
		}

		abis := &fakeAbis{}
		builder, _ := newBuilder(chain, abis, l, chainInfo)
		first, err := builder.BuildContext(context.Background(), "0x02")
		require.Nil(t, err)
		callsAfterFirst := chain.total()
		abiCallsAfterFirst := abis.calls

		second, err := builder.BuildContext(context.Background(), "0x02")
		require.Nil(t, err)

		assert.Equal(t, 3, callsAfterFirst)
		assert.Equal(t, callsAfterFirst, chain.total())
		assert.Equal(t, abiCallsAfterFirst, abis.calls)
		assert.Equal(t, first, second)
	})
	t.Run("Test contract call decodes method and token transfers", func(t *testing.T) {
		chain := newFakeChain()
		chain.transactions["0x03"] = &ethereum.EthereumTransaction{
			Hash:        "0x03",
			BlockNumber: quantity(300),
			From:        alice,
			To:          usdc,
			Input:       ethereum.EthereumHexString(transferInput(bob, 7_000_000)),
		}
		chain.receipts["0x03"] = &ethereum.EthereumTransactionReceipt{
			TransactionHash: "0x03",
			BlockNumber:     300,
			Status:          quantity(1),
			Logs:            []*ethereum.EthereumEventLog{transferLog(4, usdc, alice, bob, 7_000_000)},
		}

		builder, _ := newBuilder(chain, &fakeAbis{}, l, chainInfo)
		txCtx, err := builder.BuildContext(context.Background(), "0x03")
		require.Nil(t, err)

		assert.Equal(t, TransactionKind_ContractCall, txCtx.Kind)
		require.NotNil(t, txCtx.ContractCall)
		require.NotNil(t, txCtx.ContractCall.DecodedMethod)
		assert.Equal(t, "transfer", txCtx.ContractCall.DecodedMethod.MethodName)
		assert.Equal(t, "etherscan", txCtx.ContractCall.AbiSource)

		transfers := txCtx.TokenTransfers()
		require.Len(t, transfers, 1)
		assert.Equal(t, "USDC", transfers[0].Symbol)
		assert.Equal(t, int32(6), transfers[0].Decimals)
		assert.Equal(t, alice, transfers[0].From)
		assert.Equal(t, bob, transfers[0].To)
		assert.Equal(t, "7000000", transfers[0].Value.String())
		assert.Equal(t, uint64(4), transfers[0].LogIndex)
	})
	t.Run("Test missing ABI leaves the method undecoded", func(t *testing.T) {
		chain := newFakeChain()
		chain.transactions["0x04"] = &ethereum.EthereumTransaction{
			Hash:        "0x04",
			BlockNumber: quantity(400),
			From:        alice,
			To:          mystery,
			Value:       bigQuantity(oneAndAHalfEth),
			Input:       "0xdeadbeef",
		}
		chain.receipts["0x04"] = &ethereum.EthereumTransactionReceipt{
			TransactionHash: "0x04",
			BlockNumber:     400,
			Status:          quantity(1),
			Logs:            []*ethereum.EthereumEventLog{transferLog(0, usdc, mystery, bob, 1)},
		}

		builder, store := newBuilder(chain, &fakeAbis{}, l, chainInfo)
		txCtx, err := builder.BuildContext(context.Background(), "0x04")
		require.Nil(t, err)

		assert.Equal(t, TransactionKind_ContractCall, txCtx.Kind)
		assert.Nil(t, txCtx.ContractCall.DecodedMethod)
		assert.Equal(t, "1.5", txCtx.FormattedValue)
		assert.Len(t, txCtx.TokenTransfers(), 1)
		assert.Equal(t, 1, store.Len())
	})
	t.Run("Test one malformed log does not affect the others", func(t *testing.T) {
		logs := make([]*ethereum.EthereumEventLog, 0)
		for i := 0; i < 5; i++ {
			logs = append(logs, transferLog(uint64(i), usdc, alice, bob, int64(i+1)))
		}
		malformed := transferLog(5, usdc, alice, bob, 1)
		malformed.Data = "0x01"
		logs = append(logs[:2], append([]*ethereum.EthereumEventLog{malformed}, logs[2:]...)...)

		chain := newFakeChain()
		chain.transactions["0x05"] = &ethereum.EthereumTransaction{
			Hash:        "0x05",
			BlockNumber: quantity(500),
			From:        alice,
			To:          usdc,
			Input:       ethereum.EthereumHexString(transferInput(bob, 1)),
		}
		chain.receipts["0x05"] = &ethereum.EthereumTransactionReceipt{TransactionHash: "0x05", BlockNumber: 500, Status: quantity(1), Logs: logs}

		builder, _ := newBuilder(chain, &fakeAbis{}, l, chainInfo)
		txCtx, err := builder.BuildContext(context.Background(), "0x05")
		require.Nil(t, err)

		events := txCtx.ContractCall.DecodedEvents
		require.Len(t, events, 6)
		assert.Equal(t, 1, txCtx.ContractCall.DecodeFailures)
		assert.True(t, events[2].Failed)
		assert.Equal(t, usdc, events[2].Address)
		assert.Equal(t, "", events[2].EventName)
		for i, e := range events {
			if i == 2 {
				continue
			}
			assert.False(t, e.Failed)
			assert.Equal(t, "Transfer", e.EventName)
		}
		assert.Len(t, txCtx.TokenTransfers(), 5)
	})
	t.Run("Test missing transaction is TransactionNotFound and not cached", func(t *testing.T) {
		chain := newFakeChain()
		builder, store := newBuilder(chain, &fakeAbis{}, l, chainInfo)

		_, err := builder.BuildContext(context.Background(), "0x06")
		assert.True(t, flowErrors.Is(err, flowErrors.FlowError_TransactionNotFound))
		assert.Equal(t, flowErrors.ErrorClass_NotFound, flowErrors.ClassOf(err))
		assert.Equal(t, 0, store.Len())
	})
	t.Run("Test missing receipt is ReceiptNotFound", func(t *testing.T) {
		chain := newFakeChain()
		chain.transactions["0x07"] = &ethereum.EthereumTransaction{Hash: "0x07", BlockNumber: quantity(700), From: alice, To: bob}

		builder, _ := newBuilder(chain, &fakeAbis{}, l, chainInfo)
		_, err := builder.BuildContext(context.Background(), "0x07")
		assert.True(t, flowErrors.Is(err, flowErrors.FlowError_ReceiptNotFound))
	})
	t.Run("Test contract creation targets the created contract", func(t *testing.T) {
		chain := newFakeChain()
		chain.transactions["0x08"] = &ethereum.EthereumTransaction{Hash: "0x08", BlockNumber: quantity(800), From: alice, Input: "0x6080"}
		chain.receipts["0x08"] = &ethereum.EthereumTransactionReceipt{TransactionHash: "0x08", BlockNumber: 800, ContractAddress: created, Status: quantity(1)}

		builder, _ := newBuilder(chain, &fakeAbis{}, l, chainInfo)
		txCtx, err := builder.BuildContext(context.Background(), "0x08")
		require.Nil(t, err)
		assert.True(t, txCtx.ContractCreate)
		assert.Equal(t, created, txCtx.To.Address)
		assert.Nil(t, txCtx.ContractCall.DecodedMethod)
	})
	t.Run("Test pending transaction has no block", func(t *testing.T) {
		chain := newFakeChain()
		chain.transactions["0x09"] = &ethereum.EthereumTransaction{Hash: "0x09", From: alice, To: bob}

		builder, store := newBuilder(chain, &fakeAbis{}, l, chainInfo)
		txCtx, err := builder.BuildContext(context.Background(), "0x09")
		require.Nil(t, err)
		assert.False(t, txCtx.IsConfirmed())
		assert.Equal(t, "", txCtx.Timestamp)
		assert.Equal(t, 1, chain.total())
		assert.Equal(t, 0, store.Len())
	})
	t.Run("Test pending transaction is rebuilt once mined", func(t *testing.T) {
		chain := newFakeChain()
		chain.transactions["0x0b"] = &ethereum.EthereumTransaction{Hash: "0x0b", From: alice, To: bob}

		builder, store := newBuilder(chain, &fakeAbis{}, l, chainInfo)
		txCtx, err := builder.BuildContext(context.Background(), "0x0b")
		require.Nil(t, err)
		assert.False(t, txCtx.IsConfirmed())

		chain.transactions["0x0b"] = &ethereum.EthereumTransaction{Hash: "0x0b", BlockNumber: quantity(120), From: alice, To: bob}
		chain.receipts["0x0b"] = &ethereum.EthereumTransactionReceipt{TransactionHash: "0x0b", BlockNumber: 120, Status: quantity(1)}

		txCtx, err = builder.BuildContext(context.Background(), "0x0b")
		require.Nil(t, err)
		assert.True(t, txCtx.IsConfirmed())
		assert.Equal(t, int64(120), txCtx.BlockNumber)
		assert.NotEqual(t, "", txCtx.Timestamp)
		assert.Equal(t, 1, store.Len())
	})
	t.Run("Test transient ABI failures are not memoized", func(t *testing.T) {
		chain := newFakeChain()
		chain.transactions["0x0a"] = &ethereum.EthereumTransaction{
			Hash:        "0x0a",
			BlockNumber: quantity(1000),
			From:        alice,
			To:          usdc,
			Input:       ethereum.EthereumHexString(transferInput(bob, 1)),
		}
		chain.receipts["0x0a"] = &ethereum.EthereumTransactionReceipt{TransactionHash: "0x0a", BlockNumber: 1000, Status: quantity(1)}

		abis := &fakeAbis{transient: true}
		builder, store := newBuilder(chain, abis, l, chainInfo)
		txCtx, err := builder.BuildContext(context.Background(), "0x0a")
		require.Nil(t, err)
		assert.Nil(t, txCtx.ContractCall.DecodedMethod)
		assert.Equal(t, 0, store.Len())

		abis.transient = false
		txCtx, err = builder.BuildContext(context.Background(), "0x0A")
		require.Nil(t, err)
		assert.NotNil(t, txCtx.ContractCall.DecodedMethod)
		assert.Equal(t, 1, store.Len())
	})
}
