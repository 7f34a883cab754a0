package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Helpers(t *testing.T) {
	t.Run("Test normalizing addresses", func(t *testing.T) {
		assert.Equal(t, "0x00000000000c2e074ec69a0dfb2997ba6c7d2e1e", NormalizeAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"))
		assert.Equal(t, "", NormalizeAddress("0x1234"))
		assert.Equal(t, "", NormalizeAddress(""))
	})
	t.Run("Test null addresses", func(t *testing.T) {
		assert.True(t, IsNullAddress(""))
		assert.True(t, IsNullAddress(NullEthereumAddressHex))
		assert.False(t, IsNullAddress("0x00000000000c2e074ec69a0dfb2997ba6c7d2e1e"))
	})
	t.Run("Test address from a storage word", func(t *testing.T) {
		word := make([]byte, 32)
		word[31] = 0x01
		word[12] = 0xab
		assert.Equal(t, "0xab00000000000000000000000000000000000001", AddressFromWord(word))
		assert.Equal(t, "", AddressFromWord([]byte{0x01}))
	})
}
