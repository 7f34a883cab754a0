package ipfs

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Layr-Labs/fundtracer/internal/config"
	"github.com/Layr-Labs/fundtracer/pkg/abiSource"
	"github.com/Layr-Labs/fundtracer/pkg/flowErrors"
	"github.com/btcsuite/btcutil/base58"
	"go.uber.org/zap"
)

// solc appends CBOR metadata to runtime bytecode: {"ipfs": bytes(34)}
const cborIpfsMarker = "a264697066735822"

type Ipfs struct {
	httpClient *http.Client
	logger     *zap.Logger
	config     *config.Config
}

func NewIpfs(hc *http.Client, l *zap.Logger, cfg *config.Config) *Ipfs {
	return &Ipfs{
		httpClient: hc,
		logger:     l,
		config:     cfg,
	}
}

func (ias *Ipfs) Name() string {
	return "ipfs"
}

func (ias *Ipfs) GetIPFSUrlFromBytecode(bytecode string) (string, error) {
	lowered := strings.ToLower(bytecode)
	index := strings.Index(lowered, cborIpfsMarker)
	if index == -1 {
		return "", fmt.Errorf("CBOR marker sequence not found")
	}

	// 34 bytes: multihash prefix 0x1220 and the sha256 digest
	startIndex := index + len(cborIpfsMarker)
	if len(lowered) < startIndex+68 {
		return "", fmt.Errorf("bytecode too short to contain complete IPFS hash")
	}

	hashBytes, err := hex.DecodeString(lowered[startIndex : startIndex+68])
	if err != nil {
		return "", fmt.Errorf("failed to decode IPFS hash: %v", err)
	}

	return fmt.Sprintf("%s/%s", strings.TrimRight(ias.config.IpfsConfig.Url, "/"), base58.Encode(hashBytes)), nil
}

func (ias *Ipfs) FetchAbi(ctx context.Context, address string, bytecode string) (string, error) {
	url, err := ias.GetIPFSUrlFromBytecode(bytecode)
	if err != nil {
		ias.logger.Sugar().Debugw("No IPFS metadata in bytecode",
			zap.Error(err),
			zap.String("address", address),
		)
		return "", flowErrors.NewFlowError(flowErrors.FlowError_AbiNotFound, err).WithAddress(address)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", flowErrors.NewFlowError(flowErrors.FlowError_ExplorerRead, err).WithAddress(address)
	}

	resp, err := ias.httpClient.Do(req)
	if err != nil {
		ias.logger.Sugar().Errorw("Failed to perform HTTP request",
			zap.Error(err),
			zap.String("address", address),
		)
		return "", flowErrors.NewFlowError(flowErrors.FlowError_ExplorerRead, err).WithAddress(address)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", flowErrors.NewFlowError(flowErrors.FlowError_AbiNotFound, fmt.Errorf("metadata not pinned")).WithAddress(address)
	}
	if resp.StatusCode != http.StatusOK {
		return "", flowErrors.NewFlowError(flowErrors.FlowError_ExplorerRead, fmt.Errorf("gateway returned status: %d", resp.StatusCode)).WithAddress(address)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", flowErrors.NewFlowError(flowErrors.FlowError_ExplorerRead, err).WithAddress(address)
	}

	var result abiSource.Response
	if err := json.Unmarshal(content, &result); err != nil {
		ias.logger.Sugar().Errorw("Failed to parse json from IPFS URL content",
			zap.Error(err),
		)
		return "", flowErrors.NewFlowError(flowErrors.FlowError_Validation, err).WithAddress(address)
	}
	abi, err := result.AbiString()
	if err != nil || abi == "" || abi == "null" {
		return "", flowErrors.NewFlowError(flowErrors.FlowError_AbiNotFound, fmt.Errorf("metadata carries no abi")).WithAddress(address)
	}

	ias.logger.Sugar().Debugw("Successfully fetched ABI from IPFS",
		zap.String("address", address),
		zap.String("ipfsUrl", url),
	)
	return abi, nil
}

func (ias *Ipfs) RequiresBytecode() bool {
	return true
}
