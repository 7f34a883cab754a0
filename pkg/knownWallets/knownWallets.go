package knownWallets

import (
	"os"
	"strings"
	"sync"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type WalletType string

const (
	WalletType_Cex   WalletType = "CEX-Specific"
	WalletType_Mixer WalletType = "tumbler"
	WalletType_DeFi  WalletType = "DeFi-Specific"
	WalletType_Other WalletType = "Other"
)

type KnownWallet struct {
	Address string     `csv:"address" json:"address"`
	Label   string     `csv:"label" json:"label"`
	Type    WalletType `csv:"type" json:"type"`
}

func (w *KnownWallet) IsCex() bool {
	return w != nil && w.Type == WalletType_Cex
}

// normalizeType accepts the short spellings found in hand maintained lists.
func normalizeType(t WalletType) WalletType {
	switch strings.ToLower(strings.TrimSpace(string(t))) {
	case "cex", "cex-specific", "exchange":
		return WalletType_Cex
	case "tumbler", "mixer":
		return WalletType_Mixer
	case "defi", "defi-specific":
		return WalletType_DeFi
	default:
		return WalletType_Other
	}
}

var defaultWallets = []*KnownWallet{
	{Address: "0x3f5ce5fbfe3e9af3971dd833d26ba9b5c936f0be", Label: "Binance 1", Type: WalletType_Cex},
	{Address: "0xd551234ae421e3bcba99a0da6d736074f22192ff", Label: "Binance 2", Type: WalletType_Cex},
	{Address: "0x28c6c06298d514db089934071355e5743bf21d60", Label: "Binance 14", Type: WalletType_Cex},
	{Address: "0x21a31ee1afc51d94c2efccaa2092ad1028285549", Label: "Binance 15", Type: WalletType_Cex},
	{Address: "0x71660c4005ba85c37ccec55d0c4493e66fe775d3", Label: "Coinbase 1", Type: WalletType_Cex},
	{Address: "0x503828976d22510aad0201ac7ec88293211d23da", Label: "Coinbase 2", Type: WalletType_Cex},
	{Address: "0x2910543af39aba0cd09dbb2d50200b3e800a63d2", Label: "Kraken 1", Type: WalletType_Cex},
	{Address: "0x0d0707963952f2fba59dd06f2b425ace40b492fe", Label: "Gate.io 1", Type: WalletType_Cex},
	{Address: "0x6cc5f688a315f3dc28a7781717a9a798a59fda7b", Label: "OKX 1", Type: WalletType_Cex},
	{Address: "0x910cbd523d972eb0a6f4cae4618ad62622b39dbf", Label: "Tornado.Cash 10 ETH", Type: WalletType_Mixer},
	{Address: "0xa160cdab225685da1d56aa342ad8841c3b53f291", Label: "Tornado.Cash 100 ETH", Type: WalletType_Mixer},
	{Address: "0x47ce0c6ed5b0ce3d3a51fdb1c52dc66a7c3c2936", Label: "Tornado.Cash 1 ETH", Type: WalletType_Mixer},
	{Address: "0x7a250d5630b4cf539739df2c5dacb4c659f2488d", Label: "Uniswap V2 Router", Type: WalletType_DeFi},
	{Address: "0xe592427a0aece92de3edee1f18e0157c05861564", Label: "Uniswap V3 Router", Type: WalletType_DeFi},
}

// KnownWallets is the wallet identity table. Lookups are case-insensitive.
type KnownWallets struct {
	mu      sync.RWMutex
	wallets map[string]*KnownWallet
}

func NewKnownWallets(wallets []*KnownWallet) *KnownWallets {
	kw := &KnownWallets{
		wallets: make(map[string]*KnownWallet, len(wallets)),
	}
	kw.Add(wallets...)
	return kw
}

func NewDefaultKnownWallets() *KnownWallets {
	return NewKnownWallets(defaultWallets)
}

// LoadKnownWallets returns the built-in table extended with the CSV file at path, if any.
// Entries in the file override built-in entries for the same address.
func LoadKnownWallets(path string, l *zap.Logger) (*KnownWallets, error) {
	kw := NewDefaultKnownWallets()
	if path == "" {
		return kw, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read known wallets file '%s'", path)
	}
	wallets, err := ParseKnownWalletsCsv(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse known wallets file '%s'", path)
	}
	kw.Add(wallets...)

	l.Sugar().Infow("Loaded known wallets",
		zap.String("path", path),
		zap.Int("fromFile", len(wallets)),
		zap.Int("total", kw.Len()),
	)
	return kw, nil
}

func ParseKnownWalletsCsv(raw []byte) ([]*KnownWallet, error) {
	wallets := make([]*KnownWallet, 0)
	if err := gocsv.UnmarshalBytes(raw, &wallets); err != nil {
		return nil, err
	}
	return wallets, nil
}

func (kw *KnownWallets) Add(wallets ...*KnownWallet) {
	kw.mu.Lock()
	defer kw.mu.Unlock()
	for _, w := range wallets {
		address := strings.ToLower(strings.TrimSpace(w.Address))
		if address == "" {
			continue
		}
		kw.wallets[address] = &KnownWallet{
			Address: address,
			Label:   strings.TrimSpace(w.Label),
			Type:    normalizeType(w.Type),
		}
	}
}

func (kw *KnownWallets) Lookup(address string) (*KnownWallet, bool) {
	kw.mu.RLock()
	defer kw.mu.RUnlock()
	w, ok := kw.wallets[strings.ToLower(address)]
	if !ok {
		return nil, false
	}
	copied := *w
	return &copied, true
}

func (kw *KnownWallets) IsCex(address string) bool {
	w, ok := kw.Lookup(address)
	return ok && w.IsCex()
}

func (kw *KnownWallets) Len() int {
	kw.mu.RLock()
	defer kw.mu.RUnlock()
	return len(kw.wallets)
}
