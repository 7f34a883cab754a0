package pathTraversal

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/Layr-Labs/fundtracer/internal/types/numbers"
	"github.com/Layr-Labs/fundtracer/pkg/clients/etherscan"
	"github.com/Layr-Labs/fundtracer/pkg/flowErrors"
	"github.com/Layr-Labs/fundtracer/pkg/transactionContext"
	"github.com/Layr-Labs/fundtracer/pkg/valueComparator"
)

// Asset is the currency being traced. An empty Token means the chain's native currency.
type Asset struct {
	Token    string `json:"token,omitempty"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

func (a Asset) IsNative() bool {
	return a.Token == ""
}

func (a Asset) comparatorAsset() valueComparator.Asset {
	return valueComparator.Asset{Symbol: a.Symbol, Decimals: a.Decimals}
}

// listing holds one address's transfers of the traced asset inside a block window.
type listing struct {
	holder   string
	outgoing []*valueComparator.Transfer
	incoming []*valueComparator.Transfer
}

// incomingBetween returns the incoming transfers mined in [fromBlock, toBlock].
func (l *listing) incomingBetween(fromBlock uint64, toBlock uint64) []*valueComparator.Transfer {
	transfers := make([]*valueComparator.Transfer, 0)
	for _, t := range l.incoming {
		if t.BlockNumber >= fromBlock && t.BlockNumber <= toBlock {
			transfers = append(transfers, t)
		}
	}
	return transfers
}

func (l *listing) findOutgoing(hash string) *valueComparator.Transfer {
	for _, t := range l.outgoing {
		if t.Hash == hash {
			return t
		}
	}
	return nil
}

func (e *Engine) fetchListing(ctx context.Context, asset Asset, holder string, fromBlock uint64) (*listing, error) {
	callCtx, cancel := e.callContext(ctx)
	defer cancel()

	toBlock := fromBlock + e.config.ForwardBlockWindow
	var (
		rows []*etherscan.Transaction
		err  error
	)
	if asset.IsNative() {
		rows, err = e.explorer.ListTransactions(callCtx, holder, fromBlock, toBlock)
	} else {
		rows, err = e.explorer.ListTokenTransfers(callCtx, holder, asset.Token, fromBlock, toBlock)
	}
	if err != nil {
		return nil, err
	}
	return collectTransfers(holder, rows), nil
}

// collectTransfers keeps successful, non-zero movements into or out of holder. Rows that
// share a hash and direction are merged, since a token transaction may emit several
// transfers between the same parties.
func collectTransfers(holder string, rows []*etherscan.Transaction) *listing {
	holder = strings.ToLower(holder)
	l := &listing{holder: holder}

	outgoing := make(map[string]*valueComparator.Transfer)
	incoming := make(map[string]*valueComparator.Transfer)
	for _, row := range rows {
		if row.Failed() {
			continue
		}
		amount := row.ValueBig()
		if amount.Sign() <= 0 {
			continue
		}
		from := strings.ToLower(row.From)
		to := strings.ToLower(row.To)
		if from == to {
			continue
		}

		var (
			bucket map[string]*valueComparator.Transfer
			list   *[]*valueComparator.Transfer
		)
		switch holder {
		case from:
			bucket, list = outgoing, &l.outgoing
		case to:
			bucket, list = incoming, &l.incoming
		default:
			continue
		}

		hash := strings.ToLower(row.Hash)
		if existing, ok := bucket[hash]; ok {
			existing.Amount = new(big.Int).Add(existing.Amount, amount)
			continue
		}
		t := &valueComparator.Transfer{
			Hash:        hash,
			BlockNumber: row.BlockNumberUint64(),
			From:        from,
			To:          to,
			Amount:      amount,
			Time:        row.Timestamp(),
		}
		bucket[hash] = t
		*list = append(*list, t)
	}

	l.outgoing = valueComparator.SortTransfers(l.outgoing)
	l.incoming = valueComparator.SortTransfers(l.incoming)
	return l
}

// transferFromContext derives the traced movement of a transaction. For tokens, a transfer
// sent by preferredFrom wins; otherwise the largest transfer of the token is used.
func transferFromContext(txCtx *transactionContext.TransactionContext, asset Asset, preferredFrom string) (*valueComparator.Transfer, error) {
	if !txCtx.IsConfirmed() {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_Validation, fmt.Errorf("transaction is not mined")).WithTransactionHash(txCtx.Hash)
	}

	base := &valueComparator.Transfer{
		Hash:        txCtx.Hash,
		BlockNumber: txCtx.Block(),
		Time:        txCtx.Time(),
	}

	if asset.IsNative() {
		if txCtx.Value.Sign() <= 0 {
			return nil, flowErrors.NewFlowError(flowErrors.FlowError_Validation, fmt.Errorf("transaction moves no %s", asset.Symbol)).WithTransactionHash(txCtx.Hash)
		}
		base.From = txCtx.From.Address
		base.To = txCtx.To.Address
		base.Amount = txCtx.Value.Big()
		return base, nil
	}

	preferred := func(tt *transactionContext.TokenTransfer) bool {
		return preferredFrom != "" && strings.EqualFold(tt.From, preferredFrom)
	}
	var chosen *transactionContext.TokenTransfer
	for _, tt := range txCtx.TokenTransfers() {
		if !strings.EqualFold(tt.Token, asset.Token) || tt.Value.Sign() <= 0 {
			continue
		}
		switch {
		case chosen == nil:
			chosen = tt
		case preferred(tt) != preferred(chosen):
			if preferred(tt) {
				chosen = tt
			}
		case tt.Value.Big().Cmp(chosen.Value.Big()) > 0:
			chosen = tt
		}
	}
	if chosen == nil {
		return nil, flowErrors.NewFlowError(flowErrors.FlowError_Validation, fmt.Errorf("transaction moves no %s", asset.Symbol)).
			WithTransactionHash(txCtx.Hash).
			WithAddress(asset.Token)
	}
	base.From = strings.ToLower(chosen.From)
	base.To = strings.ToLower(chosen.To)
	base.Amount = chosen.Value.Big()
	return base, nil
}

func summarize(t *valueComparator.Transfer, asset Asset) *TransferSummary {
	return &TransferSummary{
		Hash:            t.Hash,
		From:            t.From,
		To:              t.To,
		BlockNumber:     t.BlockNumber,
		Amount:          numbers.NewBigQuantity(t.Amount),
		FormattedAmount: numbers.FormatUnits(t.Amount, asset.Decimals),
	}
}
