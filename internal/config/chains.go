package config

import "fmt"

const (
	Chain_Ethereum  uint64 = 1
	Chain_Optimism  uint64 = 10
	Chain_Gnosis    uint64 = 100
	Chain_Polygon   uint64 = 137
	Chain_Fantom    uint64 = 250
	Chain_Arbitrum  uint64 = 42161
	defaultDayBlock uint64 = 6500
)

type NativeCurrency struct {
	Name     string
	Symbol   string
	Decimals int32
	// id used by the price oracle
	PriceId string
}

type ChainInfo struct {
	ChainId        uint64
	Name           string
	NativeCurrency NativeCurrency
	ExplorerApiUrl string
	BlocksPerDay   uint64
	// ENS is only deployed on mainnet
	SupportsEns bool
}

var chainInfos = map[uint64]*ChainInfo{
	Chain_Ethereum: {
		ChainId:        Chain_Ethereum,
		Name:           "ethereum",
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18, PriceId: "ethereum"},
		ExplorerApiUrl: "https://api.etherscan.io/api",
		BlocksPerDay:   defaultDayBlock,
		SupportsEns:    true,
	},
	Chain_Optimism: {
		ChainId:        Chain_Optimism,
		Name:           "optimism",
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18, PriceId: "ethereum"},
		ExplorerApiUrl: "https://api-optimistic.etherscan.io/api",
		BlocksPerDay:   43200,
	},
	Chain_Gnosis: {
		ChainId:        Chain_Gnosis,
		Name:           "gnosis",
		NativeCurrency: NativeCurrency{Name: "xDAI", Symbol: "XDAI", Decimals: 18, PriceId: "xdai"},
		ExplorerApiUrl: "https://api.gnosisscan.io/api",
		BlocksPerDay:   17280,
	},
	Chain_Polygon: {
		ChainId:        Chain_Polygon,
		Name:           "polygon",
		NativeCurrency: NativeCurrency{Name: "Matic", Symbol: "MATIC", Decimals: 18, PriceId: "matic-network"},
		ExplorerApiUrl: "https://api.polygonscan.com/api",
		BlocksPerDay:   40000,
	},
	Chain_Fantom: {
		ChainId:        Chain_Fantom,
		Name:           "fantom",
		NativeCurrency: NativeCurrency{Name: "Fantom", Symbol: "FTM", Decimals: 18, PriceId: "fantom"},
		ExplorerApiUrl: "https://api.ftmscan.com/api",
		BlocksPerDay:   86400,
	},
	Chain_Arbitrum: {
		ChainId:        Chain_Arbitrum,
		Name:           "arbitrum",
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18, PriceId: "ethereum"},
		ExplorerApiUrl: "https://api.arbiscan.io/api",
		BlocksPerDay:   345600,
	},
}

func GetChainInfo(chainId uint64) (*ChainInfo, error) {
	info, ok := chainInfos[chainId]
	if !ok {
		return nil, fmt.Errorf("unsupported chain id %d", chainId)
	}
	return info, nil
}

func SupportedChainIds() []uint64 {
	return []uint64{Chain_Ethereum, Chain_Optimism, Chain_Gnosis, Chain_Polygon, Chain_Fantom, Chain_Arbitrum}
}
