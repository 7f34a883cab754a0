package etherscan

import (
	"context"

	"github.com/Layr-Labs/fundtracer/pkg/clients/etherscan"
	"github.com/Layr-Labs/fundtracer/pkg/flowErrors"
	"go.uber.org/zap"
)

type Etherscan struct {
	etherscanClient *etherscan.EtherscanClient
	logger          *zap.Logger
}

func NewEtherscan(ec *etherscan.EtherscanClient, l *zap.Logger) *Etherscan {
	return &Etherscan{
		etherscanClient: ec,
		logger:          l,
	}
}

func (eas *Etherscan) Name() string {
	return "etherscan"
}

func (eas *Etherscan) FetchAbi(ctx context.Context, address string, bytecode string) (string, error) {
	abi, err := eas.etherscanClient.ContractABI(ctx, address)
	if err != nil {
		if flowErrors.Is(err, flowErrors.FlowError_AbiNotFound) {
			eas.logger.Sugar().Debugw("Contract is not verified on the explorer", zap.String("address", address))
		} else {
			eas.logger.Sugar().Errorw("Failed to fetch ABI from Etherscan",
				zap.Error(err),
				zap.String("address", address),
			)
		}
		return "", err
	}

	eas.logger.Sugar().Debugw("Successfully fetched ABI from Etherscan",
		zap.String("address", address),
	)
	return abi, nil
}
