package flowErrors

import (
	"context"
	"errors"
	"fmt"
)

type FlowErrorType int

const (
	FlowError_ChainRead           FlowErrorType = 1
	FlowError_TransactionNotFound FlowErrorType = 2
	FlowError_ReceiptNotFound     FlowErrorType = 3
	FlowError_AbiNotFound         FlowErrorType = 4
	FlowError_DecodeFailure       FlowErrorType = 5
	FlowError_PriceNotFound       FlowErrorType = 6
	FlowError_Validation          FlowErrorType = 7
	FlowError_Timeout             FlowErrorType = 8
	FlowError_ExplorerRead        FlowErrorType = 9
	FlowError_OracleRead          FlowErrorType = 10
)

func (t FlowErrorType) String() string {
	switch t {
	case FlowError_ChainRead:
		return "ChainReadError"
	case FlowError_TransactionNotFound:
		return "TransactionNotFound"
	case FlowError_ReceiptNotFound:
		return "ReceiptNotFound"
	case FlowError_AbiNotFound:
		return "AbiNotFound"
	case FlowError_DecodeFailure:
		return "DecodeFailure"
	case FlowError_PriceNotFound:
		return "PriceNotFound"
	case FlowError_Validation:
		return "ValidationError"
	case FlowError_Timeout:
		return "Timeout"
	case FlowError_ExplorerRead:
		return "ExplorerReadError"
	case FlowError_OracleRead:
		return "OracleReadError"
	default:
		return "UnknownError"
	}
}

// ErrorClass is the coarse outcome the traversal engine branches on.
type ErrorClass int

const (
	ErrorClass_None ErrorClass = iota
	ErrorClass_NotFound
	ErrorClass_Malformed
	ErrorClass_TransientIO
)

type FlowError struct {
	Type            FlowErrorType
	Err             error
	TransactionHash string
	Address         string
	Metadata        map[string]interface{}
	Message         string
}

func (e *FlowError) Error() string {
	msg := e.Type.String()
	if e.TransactionHash != "" {
		msg = fmt.Sprintf("%s [tx %s]", msg, e.TransactionHash)
	}
	if e.Address != "" {
		msg = fmt.Sprintf("%s [address %s]", msg, e.Address)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

func NewFlowError(t FlowErrorType, err error) *FlowError {
	return &FlowError{
		Type:     t,
		Err:      err,
		Metadata: make(map[string]interface{}),
	}
}

func (e *FlowError) WithTransactionHash(txHash string) *FlowError {
	e.TransactionHash = txHash
	return e
}

func (e *FlowError) WithAddress(address string) *FlowError {
	e.Address = address
	return e
}

func (e *FlowError) WithMetadata(key string, value interface{}) *FlowError {
	e.Metadata[key] = value
	return e
}

func (e *FlowError) WithMessage(message string) *FlowError {
	e.Message = message
	return e
}

// TypeOf returns the FlowErrorType carried anywhere in err's chain. A context deadline
// anywhere in the chain is reported as a timeout.
func TypeOf(err error) (FlowErrorType, bool) {
	if err == nil {
		return 0, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FlowError_Timeout, true
	}
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Type, true
	}
	return 0, false
}

func Is(err error, t FlowErrorType) bool {
	ft, ok := TypeOf(err)
	return ok && ft == t
}

// ClassOf maps an error onto NotFound, Malformed or TransientIO. Untyped errors are
// treated as transient I/O.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ErrorClass_None
	}
	t, ok := TypeOf(err)
	if !ok {
		return ErrorClass_TransientIO
	}
	switch t {
	case FlowError_TransactionNotFound, FlowError_ReceiptNotFound, FlowError_AbiNotFound, FlowError_PriceNotFound:
		return ErrorClass_NotFound
	case FlowError_Validation, FlowError_DecodeFailure:
		return ErrorClass_Malformed
	default:
		return ErrorClass_TransientIO
	}
}
