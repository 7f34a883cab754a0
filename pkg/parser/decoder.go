package parser

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/Layr-Labs/fundtracer/pkg/clients/ethereum"
	"github.com/Layr-Labs/fundtracer/pkg/flowErrors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

type Parser struct {
	logger *zap.Logger
}

func NewParser(l *zap.Logger) *Parser {
	return &Parser{
		logger: l,
	}
}

// DecodeMethod matches the 4 byte selector of input against the ABI and decodes the
// arguments positionally. Any failure is returned as a DecodeFailure FlowError.
func (p *Parser) DecodeMethod(a *abi.ABI, input string) (decoded *DecodedMethod, err error) {
	defer func() {
		if r := recover(); r != nil {
			decoded = nil
			err = flowErrors.NewFlowError(flowErrors.FlowError_DecodeFailure, fmt.Errorf("panic decoding method: %v", r))
		}
	}()

	if a == nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_DecodeFailure, fmt.Errorf("no abi"))
	}
	data, err := hexutil.Decode(evenHex(input))
	if err != nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_DecodeFailure, err)
	}
	if len(data) < 4 {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_DecodeFailure, fmt.Errorf("call data shorter than a selector"))
	}

	method, err := a.MethodById(data[:4])
	if err != nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_DecodeFailure, err).
			WithMetadata("selector", hexutil.Encode(data[:4]))
	}

	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_DecodeFailure, err).
			WithMetadata("method", method.Name)
	}

	params := make([]*DecodedParam, 0, len(values))
	for i, arg := range method.Inputs {
		if i >= len(values) {
			break
		}
		name := argumentName(arg.Name, i)
		params = flattenArgument(name, name, arg.Type, reflect.ValueOf(values[i]), params)
	}

	return &DecodedMethod{
		MethodName: method.RawName,
		Signature:  method.Sig,
		Selector:   hexutil.Encode(method.ID),
		Payable:    method.IsPayable(),
		Params:     params,
	}, nil
}

// DecodeLog never fails: a log that cannot be matched or decoded comes back as a failure
// marker carrying only the emitting address.
func (p *Parser) DecodeLog(a *abi.ABI, lg *ethereum.EthereumEventLog) *DecodedLog {
	decoded, err := p.decodeLog(a, lg)
	if err != nil {
		p.logger.Sugar().Debugw("Failed to decode log",
			zap.String("address", lg.Address.Value()),
			zap.Uint64("logIndex", lg.LogIndex.Value()),
			zap.Error(err),
		)
		return &DecodedLog{
			LogIndex: lg.LogIndex.Value(),
			Address:  strings.ToLower(lg.Address.Value()),
			Failed:   true,
		}
	}
	return decoded
}

func (p *Parser) decodeLog(a *abi.ABI, lg *ethereum.EthereumEventLog) (decoded *DecodedLog, err error) {
	defer func() {
		if r := recover(); r != nil {
			decoded = nil
			err = fmt.Errorf("panic decoding log: %v", r)
		}
	}()

	if a == nil {
		return nil, fmt.Errorf("no abi")
	}
	if len(lg.Topics) == 0 {
		return nil, fmt.Errorf("log has no topics")
	}

	event, err := a.EventByID(common.HexToHash(lg.Topics[0].Value()))
	if err != nil {
		return nil, err
	}

	topicParams := make([]*DecodedParam, 0)
	topicIndex := 1
	for i, input := range event.Inputs {
		if !input.Indexed {
			continue
		}
		if topicIndex >= len(lg.Topics) {
			return nil, fmt.Errorf("event %s expects more topics than the log carries", event.Name)
		}
		topic := common.HexToHash(lg.Topics[topicIndex].Value())
		topicIndex++

		param, err := decodeTopic(input, argumentName(input.Name, i), topic)
		if err != nil {
			return nil, err
		}
		topicParams = append(topicParams, param)
	}
	if topicIndex != len(lg.Topics) {
		return nil, fmt.Errorf("event %s expects %d topics, log carries %d", event.Name, topicIndex, len(lg.Topics))
	}

	data, err := hexutil.Decode(evenHex(lg.Data.Value()))
	if err != nil {
		return nil, err
	}

	dataParams := make([]*DecodedParam, 0)
	nonIndexed := event.Inputs.NonIndexed()
	if len(nonIndexed) > 0 {
		values, err := event.Inputs.Unpack(data)
		if err != nil {
			return nil, err
		}
		for i, input := range nonIndexed {
			if i >= len(values) {
				break
			}
			name := argumentName(input.Name, i)
			dataParams = flattenArgument(name, name, input.Type, reflect.ValueOf(values[i]), dataParams)
		}
	}

	return &DecodedLog{
		LogIndex:    lg.LogIndex.Value(),
		Address:     strings.ToLower(lg.Address.Value()),
		EventName:   event.RawName,
		Signature:   event.Sig,
		TopicParams: topicParams,
		DataParams:  dataParams,
	}, nil
}

// decodeTopic decodes static indexed values. Dynamic values (strings, bytes, arrays, tuples)
// are only present as their keccak hash.
func decodeTopic(input abi.Argument, name string, topic common.Hash) (*DecodedParam, error) {
	switch input.Type.T {
	case abi.StringTy, abi.BytesTy, abi.SliceTy, abi.ArrayTy, abi.TupleTy:
		return &DecodedParam{
			Name:     name,
			FullName: name,
			Type:     input.Type.String(),
			Value:    topic.Hex(),
		}, nil
	}

	arg := input
	arg.Name = name
	out := make(map[string]interface{})
	if err := abi.ParseTopicsIntoMap(out, abi.Arguments{arg}, []common.Hash{topic}); err != nil {
		return nil, err
	}
	return &DecodedParam{
		Name:     name,
		FullName: name,
		Type:     input.Type.String(),
		Value:    normalizeValue(reflect.ValueOf(out[name])),
	}, nil
}

func argumentName(name string, index int) string {
	if name == "" {
		return fmt.Sprintf("_%d", index)
	}
	return name
}

func evenHex(s string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(trimmed)%2 == 1 {
		trimmed = "0" + trimmed
	}
	return "0x" + trimmed
}
