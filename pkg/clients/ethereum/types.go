package ethereum

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

type (
	EthereumHexString   string
	EthereumQuantity    uint64
	EthereumBigQuantity big.Int
)

type (
	EthereumBlock struct {
		Hash         EthereumHexString      `json:"hash"`
		ParentHash   EthereumHexString      `json:"parentHash"`
		Number       EthereumQuantity       `json:"number"`
		Timestamp    EthereumQuantity       `json:"timestamp"`
		Transactions []*EthereumTransaction `json:"transactions"`
	}

	EthereumTransaction struct {
		BlockHash   EthereumHexString   `json:"blockHash"`
		BlockNumber *EthereumQuantity   `json:"blockNumber"`
		From        EthereumHexString   `json:"from"`
		Gas         EthereumQuantity    `json:"gas"`
		GasPrice    EthereumBigQuantity `json:"gasPrice"`
		Hash        EthereumHexString   `json:"hash"`
		Input       EthereumHexString   `json:"input"`
		To          EthereumHexString   `json:"to"`
		Index       EthereumQuantity    `json:"transactionIndex"`
		Value       EthereumBigQuantity `json:"value"`
		Nonce       EthereumQuantity    `json:"nonce"`
		ChainId     *EthereumQuantity   `json:"chainId"`
		Type        EthereumQuantity    `json:"type"`
	}

	EthereumTransactionReceipt struct {
		TransactionHash   EthereumHexString   `json:"transactionHash"`
		TransactionIndex  EthereumQuantity    `json:"transactionIndex"`
		BlockHash         EthereumHexString   `json:"blockHash"`
		BlockNumber       EthereumQuantity    `json:"blockNumber"`
		From              EthereumHexString   `json:"from"`
		To                EthereumHexString   `json:"to"`
		CumulativeGasUsed EthereumQuantity    `json:"cumulativeGasUsed"`
		GasUsed           EthereumQuantity    `json:"gasUsed"`
		ContractAddress   EthereumHexString   `json:"contractAddress"`
		Logs              []*EthereumEventLog `json:"logs"`
		Status            *EthereumQuantity   `json:"status"`
		Type              EthereumQuantity    `json:"type"`
	}

	EthereumEventLog struct {
		Removed          bool                `json:"removed"`
		LogIndex         EthereumQuantity    `json:"logIndex"`
		TransactionHash  EthereumHexString   `json:"transactionHash"`
		TransactionIndex EthereumQuantity    `json:"transactionIndex"`
		BlockHash        EthereumHexString   `json:"blockHash"`
		BlockNumber      EthereumQuantity    `json:"blockNumber"`
		Address          EthereumHexString   `json:"address"`
		Data             EthereumHexString   `json:"data"`
		Topics           []EthereumHexString `json:"topics"`
	}
)

// GetTargetAddress returns the receipt's "to", or the created contract for deployments.
func (r *EthereumTransactionReceipt) GetTargetAddress() EthereumHexString {
	contractAddress := EthereumHexString("")
	if r.To.Value() != "" {
		contractAddress = r.To
	} else if r.ContractAddress.Value() != "" {
		contractAddress = r.ContractAddress
	}
	return contractAddress
}

// Succeeded reports whether the receipt status is 1. Pre-byzantium receipts carry no status.
func (r *EthereumTransactionReceipt) Succeeded() bool {
	return r.Status == nil || r.Status.Value() == 1
}

func (v EthereumHexString) MarshalJSON() ([]byte, error) {
	s := fmt.Sprintf(`"%s"`, v)
	return []byte(s), nil
}

func (v *EthereumHexString) UnmarshalJSON(input []byte) error {
	if string(input) == "null" {
		*v = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return fmt.Errorf("failed to unmarshal EthereumHexString: %w", err)
	}
	s = strings.ToLower(s)

	*v = EthereumHexString(s)
	return nil
}

func (v EthereumHexString) Value() string {
	return string(v)
}

// Bytes decodes the hex string, returning an empty slice for "" and "0x".
func (v EthereumHexString) Bytes() ([]byte, error) {
	s := v.Value()
	if s == "" || s == "0x" {
		return []byte{}, nil
	}
	return hexutil.Decode(s)
}

func (v EthereumQuantity) MarshalJSON() ([]byte, error) {
	s := fmt.Sprintf(`"%s"`, hexutil.EncodeUint64(uint64(v)))
	return []byte(s), nil
}

func (v *EthereumQuantity) UnmarshalJSON(input []byte) error {
	if len(input) > 0 && input[0] != '"' {
		var i uint64
		if err := json.Unmarshal(input, &i); err != nil {
			return fmt.Errorf("failed to unmarshal EthereumQuantity into uint64: %w", err)
		}

		*v = EthereumQuantity(i)
		return nil
	}

	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return fmt.Errorf("failed to unmarshal EthereumQuantity into string: %w", err)
	}

	if s == "" {
		*v = 0
		return nil
	}

	i, err := hexutil.DecodeUint64(s)
	if err != nil {
		return fmt.Errorf("failed to decode EthereumQuantity %v: %w", s, err)
	}

	*v = EthereumQuantity(i)
	return nil
}

func (v EthereumQuantity) Value() uint64 {
	return uint64(v)
}

func (v EthereumBigQuantity) MarshalJSON() ([]byte, error) {
	bi := big.Int(v)
	s := fmt.Sprintf(`"%s"`, hexutil.EncodeBig(&bi))
	return []byte(s), nil
}

func (v *EthereumBigQuantity) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return fmt.Errorf("failed to unmarshal EthereumBigQuantity: %w", err)
	}

	if s == "" {
		*v = EthereumBigQuantity{}
		return nil
	}

	i, err := hexutil.DecodeBig(s)
	if err != nil {
		return fmt.Errorf("failed to decode EthereumBigQuantity %v: %w", s, err)
	}

	*v = EthereumBigQuantity(*i)
	return nil
}

func (v EthereumBigQuantity) Value() string {
	i := big.Int(v)
	return i.String()
}

func (v EthereumBigQuantity) BigInt() *big.Int {
	i := big.Int(v)
	return new(big.Int).Set(&i)
}
