package parser

import (
	"regexp"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// patterns that we're fine to ignore and not treat as an error
var ignorableAbiErrors = []*regexp.Regexp{
	regexp.MustCompile(`only single receive is allowed`),
	regexp.MustCompile(`only single fallback is allowed`),
}

// ParseAbi parses an ABI json document, keeping whatever was parsed before an ignorable error.
func ParseAbi(json string) (*abi.ABI, error) {
	a := &abi.ABI{}
	if err := a.UnmarshalJSON([]byte(json)); err != nil {
		for _, pattern := range ignorableAbiErrors {
			if pattern.MatchString(err.Error()) {
				return a, nil
			}
		}
		return nil, err
	}
	return a, nil
}

const Erc20AbiJson = `[
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}]},
	{"type":"event","name":"Approval","anonymous":false,"inputs":[
		{"name":"owner","type":"address","indexed":true},
		{"name":"spender","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[
		{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[
		{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var erc20Abi *abi.ABI

func init() {
	a, err := ParseAbi(Erc20AbiJson)
	if err != nil {
		panic(err)
	}
	erc20Abi = a
}

func Erc20Abi() *abi.ABI {
	return erc20Abi
}
