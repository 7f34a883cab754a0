package ipfs

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/Layr-Labs/fundtracer/internal/config"
	"github.com/Layr-Labs/fundtracer/internal/logger"
	"github.com/Layr-Labs/fundtracer/pkg/flowErrors"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// runtime bytecode ending in solc CBOR metadata
const bytecodeWithMetadata = "0x6080604052a2646970667358221220e1d0e5b3c3f7b3f4e2c1b5e9f0d1c2b3a4958677869504132231405f6e7d8c9b64736f6c63430008140033"

func setup() (*zap.Logger, *config.Config) {
	cfg := config.NewDefaultConfig()
	cfg.IpfsConfig.Url = "https://ipfs.local/ipfs/"

	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	return l, cfg
}

func Test_Ipfs(t *testing.T) {
	l, cfg := setup()

	t.Run("Test the gateway url is derived from bytecode metadata", func(t *testing.T) {
		ias := NewIpfs(http.DefaultClient, l, cfg)
		url, err := ias.GetIPFSUrlFromBytecode(bytecodeWithMetadata)
		assert.Nil(t, err)
		assert.True(t, strings.HasPrefix(url, "https://ipfs.local/ipfs/Qm"))
	})
	t.Run("Test bytecode without metadata is AbiNotFound", func(t *testing.T) {
		ias := NewIpfs(http.DefaultClient, l, cfg)
		_, err := ias.FetchAbi(context.Background(), "0xabc", "0x6080604052")
		assert.True(t, flowErrors.Is(err, flowErrors.FlowError_AbiNotFound))
	})
	t.Run("Test fetching ABI from IPFS", func(t *testing.T) {
		httpmock.Activate()
		defer httpmock.DeactivateAndReset()

		ias := NewIpfs(&http.Client{Transport: httpmock.DefaultTransport}, l, cfg)
		url, _ := ias.GetIPFSUrlFromBytecode(bytecodeWithMetadata)

		httpmock.RegisterResponder("GET", url, httpmock.NewStringResponder(200, `{
			"output": {
				"abi": [{"type":"function","name":"test"}]
			}
		}`))

		abi, err := ias.FetchAbi(context.Background(), "0x29a954e9e7f12936db89b183ecdf879fbbb99f14", bytecodeWithMetadata)
		assert.Nil(t, err)
		assert.Equal(t, `[{"type":"function","name":"test"}]`, abi)
	})
	t.Run("Test string encoded ABIs are unwrapped", func(t *testing.T) {
		httpmock.Activate()
		defer httpmock.DeactivateAndReset()

		ias := NewIpfs(&http.Client{Transport: httpmock.DefaultTransport}, l, cfg)
		url, _ := ias.GetIPFSUrlFromBytecode(bytecodeWithMetadata)

		httpmock.RegisterResponder("GET", url, httpmock.NewStringResponder(200, `{
			"output": {
				"abi": "[{\"type\":\"function\",\"name\":\"test\"}]"
			}
		}`))

		abi, err := ias.FetchAbi(context.Background(), "0x29a954e9e7f12936db89b183ecdf879fbbb99f14", bytecodeWithMetadata)
		assert.Nil(t, err)
		assert.Equal(t, `[{"type":"function","name":"test"}]`, abi)
	})
	t.Run("Test unpinned metadata is AbiNotFound", func(t *testing.T) {
		httpmock.Activate()
		defer httpmock.DeactivateAndReset()

		ias := NewIpfs(&http.Client{Transport: httpmock.DefaultTransport}, l, cfg)
		url, _ := ias.GetIPFSUrlFromBytecode(bytecodeWithMetadata)
		httpmock.RegisterResponder("GET", url, httpmock.NewStringResponder(404, "not found"))

		_, err := ias.FetchAbi(context.Background(), "0xabc", bytecodeWithMetadata)
		assert.True(t, flowErrors.Is(err, flowErrors.FlowError_AbiNotFound))
	})
}
