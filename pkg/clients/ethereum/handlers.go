package ethereum

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

type ResponseParserFunc[T any] func(res json.RawMessage) (T, error)

type RequestResponseHandler[T any] struct {
	RequestMethod  *RequestMethod
	ResponseParser ResponseParserFunc[T]
}

func isNullResult(res json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(res))
	return trimmed == "" || trimmed == "null"
}

func parseHexString(res json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(res, &s); err != nil {
		return "", err
	}
	return strings.ToLower(s), nil
}

var (
	RPCMethod_getBlockByNumber = &RequestResponseHandler[*EthereumBlock]{
		RequestMethod: &RequestMethod{
			Name:    "eth_getBlockByNumber",
			Timeout: time.Second * 10,
		},
		ResponseParser: func(res json.RawMessage) (*EthereumBlock, error) {
			if isNullResult(res) {
				return nil, nil
			}
			block := &EthereumBlock{}

			if err := json.Unmarshal(res, block); err != nil {
				return nil, err
			}
			return block, nil
		},
	}
	RPCMethod_getTransactionByHash = &RequestResponseHandler[*EthereumTransaction]{
		RequestMethod: &RequestMethod{
			Name:    "eth_getTransactionByHash",
			Timeout: time.Second * 5,
		},
		ResponseParser: func(res json.RawMessage) (*EthereumTransaction, error) {
			if isNullResult(res) {
				return nil, nil
			}
			tx := &EthereumTransaction{}

			if err := json.Unmarshal(res, tx); err != nil {
				return nil, err
			}
			return tx, nil
		},
	}
	RPCMethod_getTransactionReceipt = &RequestResponseHandler[*EthereumTransactionReceipt]{
		RequestMethod: &RequestMethod{
			Name:    "eth_getTransactionReceipt",
			Timeout: time.Second * 5,
		},
		ResponseParser: func(res json.RawMessage) (*EthereumTransactionReceipt, error) {
			if isNullResult(res) {
				return nil, nil
			}
			receipt := &EthereumTransactionReceipt{}

			if err := json.Unmarshal(res, receipt); err != nil {
				return nil, err
			}
			return receipt, nil
		},
	}
	RPCMethod_getStorageAt = &RequestResponseHandler[string]{
		RequestMethod: &RequestMethod{
			Name:    "eth_getStorageAt",
			Timeout: time.Second * 5,
		},
		// https://docs.infura.io/api/networks/ethereum/json-rpc-methods/eth_getstorageat
		ResponseParser: parseHexString,
	}
	RPCMethod_getCode = &RequestResponseHandler[string]{
		RequestMethod: &RequestMethod{
			Name:    "eth_getCode",
			Timeout: time.Second * 5,
		},
		ResponseParser: parseHexString,
	}
	RPCMethod_call = &RequestResponseHandler[[]byte]{
		RequestMethod: &RequestMethod{
			Name:    "eth_call",
			Timeout: time.Second * 5,
		},
		ResponseParser: func(res json.RawMessage) ([]byte, error) {
			s, err := parseHexString(res)
			if err != nil {
				return nil, err
			}
			if s == "" || s == "0x" {
				return []byte{}, nil
			}
			return hexutil.Decode(s)
		},
	}
)

func GetBlockByNumberRequest(blockNumber uint64, fullTransactions bool, id uint) *RPCRequest {
	hexBlockNumber := hexutil.EncodeUint64(blockNumber)
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_getBlockByNumber.RequestMethod.Name,
		Params:  []interface{}{hexBlockNumber, fullTransactions},
		ID:      id,
	}
}

func GetTransactionByHashRequest(txHash string, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_getTransactionByHash.RequestMethod.Name,
		Params:  []interface{}{txHash},
		ID:      id,
	}
}

func GetTransactionReceiptRequest(txHash string, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_getTransactionReceipt.RequestMethod.Name,
		Params:  []interface{}{txHash},
		ID:      id,
	}
}

// GetStorageAtRequest gets the value stored at the given position and block of an address
//
// Block can be:
// - The hex representation of a block number
// - "earliest"
// - "latest"
// - "safe"
// - "finalized"
// - "pending".
func GetStorageAtRequest(address string, storagePosition string, block string, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_getStorageAt.RequestMethod.Name,
		Params:  []interface{}{address, storagePosition, block},
		ID:      id,
	}
}

func GetCodeRequest(address string, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_getCode.RequestMethod.Name,
		Params:  []interface{}{address, "latest"},
		ID:      id,
	}
}

func CallRequest(to string, data []byte, block string, id uint) *RPCRequest {
	return &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  RPCMethod_call.RequestMethod.Name,
		Params: []interface{}{
			map[string]string{
				"to":   to,
				"data": hexutil.Encode(data),
			},
			block,
		},
		ID: id,
	}
}
