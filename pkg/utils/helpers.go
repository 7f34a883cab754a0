package utils

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	NullEthereumAddress    = "0000000000000000000000000000000000000000"
	NullEthereumAddressHex = fmt.Sprintf("0x%s", NullEthereumAddress)
)

func AreAddressesEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

func ConvertBytesToString(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// NormalizeAddress lowercases a hex address. Empty and malformed input returns "".
func NormalizeAddress(address string) string {
	if !common.IsHexAddress(address) {
		return ""
	}
	return strings.ToLower(common.HexToAddress(address).Hex())
}

func IsNullAddress(address string) bool {
	return address == "" || AreAddressesEqual(address, NullEthereumAddressHex)
}

// AddressFromWord takes the low 20 bytes of a 32 byte storage word or return value.
func AddressFromWord(word []byte) string {
	if len(word) < 20 {
		return ""
	}
	return strings.ToLower(common.BytesToAddress(word[len(word)-20:]).Hex())
}
