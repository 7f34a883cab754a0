package parser

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// flattenArgument appends the leaves of one decoded argument. Tuples expand into
// "parent.child", arrays containing tuples expand into "parent[i]". Everything else is a leaf.
func flattenArgument(name string, fullName string, t abi.Type, v reflect.Value, out []*DecodedParam) []*DecodedParam {
	v = unwrap(v)

	switch t.T {
	case abi.TupleTy:
		for i, elem := range t.TupleElems {
			childName := t.TupleRawNames[i]
			if childName == "" {
				childName = fmt.Sprintf("_%d", i)
			}
			var field reflect.Value
			if v.IsValid() && v.Kind() == reflect.Struct && i < v.NumField() {
				field = v.Field(i)
			}
			out = flattenArgument(childName, fmt.Sprintf("%s.%s", fullName, childName), *elem, field, out)
		}
		return out
	case abi.SliceTy, abi.ArrayTy:
		if containsTuple(t) && v.IsValid() {
			for i := 0; i < v.Len(); i++ {
				out = flattenArgument(name, fmt.Sprintf("%s[%d]", fullName, i), *t.Elem, v.Index(i), out)
			}
			return out
		}
	}

	var value interface{}
	if v.IsValid() {
		value = normalizeValue(v)
	}
	return append(out, &DecodedParam{
		Name:     name,
		FullName: fullName,
		Type:     t.String(),
		Value:    value,
	})
}

func containsTuple(t abi.Type) bool {
	switch t.T {
	case abi.TupleTy:
		return true
	case abi.SliceTy, abi.ArrayTy:
		return t.Elem != nil && containsTuple(*t.Elem)
	default:
		return false
	}
}

func unwrap(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr) {
		if v.IsNil() {
			return reflect.Value{}
		}
		if v.Kind() == reflect.Ptr && v.Type() == reflect.TypeOf(&big.Int{}) {
			return v
		}
		v = v.Elem()
	}
	return v
}

var (
	bigIntPtrType = reflect.TypeOf(&big.Int{})
	addressType   = reflect.TypeOf(common.Address{})
	hashType      = reflect.TypeOf(common.Hash{})
)

// normalizeValue converts decoded values into json stable forms: integers become decimal
// strings, addresses lowercase hex, byte arrays 0x hex, and lists []interface{}.
func normalizeValue(v reflect.Value) interface{} {
	v = unwrap(v)
	if !v.IsValid() {
		return nil
	}

	switch v.Type() {
	case bigIntPtrType:
		return v.Interface().(*big.Int).String()
	case addressType:
		return strings.ToLower(v.Interface().(common.Address).Hex())
	case hashType:
		return v.Interface().(common.Hash).Hex()
	}

	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(v.Int()).String()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(v.Uint()).String()
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return hexutil.Encode(v.Bytes())
		}
		return normalizeList(v)
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			for i := range b {
				b[i] = byte(v.Index(i).Uint())
			}
			return hexutil.Encode(b)
		}
		return normalizeList(v)
	case reflect.Struct:
		fields := make(map[string]interface{}, v.NumField())
		for i := 0; i < v.NumField(); i++ {
			fields[v.Type().Field(i).Name] = normalizeValue(v.Field(i))
		}
		return fields
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

func normalizeList(v reflect.Value) []interface{} {
	list := make([]interface{}, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		list = append(list, normalizeValue(v.Index(i)))
	}
	return list
}
