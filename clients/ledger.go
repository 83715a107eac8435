package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"eventhub/entity"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// ChainReader is the part of ethclient.Client the ledger backend uses.
type ChainReader interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Ledger accepts Ether transfers to a fixed wallet. Prices are converted at a
// configured rate; the buyer's wallet sends the transfer and reports its hash.
type Ledger struct {
	chain   ChainReader
	wallet  common.Address
	chainID *big.Int
	// rate is the price of one ETH in rateCurrency.
	rate         decimal.Decimal
	rateCurrency string
}

func NewLedger(chain ChainReader, wallet string, chainID int64, rate decimal.Decimal, rateCurrency string) (Ledger, error) {
	if !common.IsHexAddress(wallet) {
		return Ledger{}, fmt.Errorf("invalid wallet address %q", wallet)
	}
	if !rate.IsPositive() {
		return Ledger{}, fmt.Errorf("exchange rate must be positive, got %s", rate)
	}

	return Ledger{
		chain:        chain,
		wallet:       common.HexToAddress(wallet),
		chainID:      big.NewInt(chainID),
		rate:         rate,
		rateCurrency: rateCurrency,
	}, nil
}

// Wei converts a price to the smallest Ether unit, rounding up.
func (l Ledger) Wei(amount entity.Money) (*big.Int, error) {
	if !strings.EqualFold(amount.Currency, l.rateCurrency) {
		return nil, fmt.Errorf("no exchange rate for %s", amount.Currency)
	}
	return amount.Amount.Shift(18).Div(l.rate).Ceil().BigInt(), nil
}

// Initiate returns an EIP-681 payment request URI for the wallet to open.
func (l Ledger) Initiate(_ context.Context, charge entity.Charge) (entity.PaymentSession, error) {
	wei, err := l.Wei(charge.Amount)
	if err != nil {
		return entity.PaymentSession{}, err
	}

	return entity.PaymentSession{
		Reference:   charge.Reference,
		RedirectURL: fmt.Sprintf("ethereum:%s@%s?value=%s", l.wallet.Hex(), l.chainID, wei),
	}, nil
}

type ledgerDetails struct {
	TxHash   string `json:"tx_hash"`
	To       string `json:"to,omitempty"`
	ValueWei string `json:"value_wei,omitempty"`
	Status   string `json:"status"`
}

// Verify accepts a mined, successful transfer of at least the expected value
// to the configured wallet on the configured chain.
func (l Ledger) Verify(ctx context.Context, providerReference string, expected entity.Money) (entity.Verification, error) {
	if len(strings.TrimPrefix(providerReference, "0x")) != 64 {
		return l.verdict(ledgerDetails{TxHash: providerReference, Status: "malformed hash"}, false, false)
	}
	hash := common.HexToHash(providerReference)
	details := ledgerDetails{TxHash: hash.Hex()}

	tx, isPending, err := l.chain.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		details.Status = "not found"
		return l.verdict(details, false, true)
	}
	if err != nil {
		return entity.Verification{}, fmt.Errorf("getting transaction: %w", err)
	}
	if tx.To() != nil {
		details.To = tx.To().Hex()
	}
	details.ValueWei = tx.Value().String()
	if isPending {
		details.Status = "pending"
		return l.verdict(details, false, true)
	}

	receipt, err := l.chain.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		details.Status = "awaiting receipt"
		return l.verdict(details, false, true)
	}
	if err != nil {
		return entity.Verification{}, fmt.Errorf("getting transaction receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		details.Status = "reverted"
		return l.verdict(details, false, false)
	}

	want, err := l.Wei(expected)
	if err != nil {
		return entity.Verification{}, err
	}

	switch {
	case tx.To() == nil || *tx.To() != l.wallet:
		details.Status = "wrong recipient"
	case tx.ChainId().Cmp(l.chainID) != 0:
		details.Status = "wrong chain"
	case tx.Value().Cmp(want) < 0:
		details.Status = "underpaid"
	default:
		details.Status = "confirmed"
		return l.verdict(details, true, false)
	}

	return l.verdict(details, false, false)
}

func (l Ledger) verdict(details ledgerDetails, succeeded, pending bool) (entity.Verification, error) {
	raw, err := json.Marshal(details)
	if err != nil {
		return entity.Verification{}, fmt.Errorf("marshalling ledger details: %w", err)
	}
	return entity.Verification{Succeeded: succeeded, Pending: pending, RawDetails: raw}, nil
}

func (l Ledger) Refund(context.Context, string, entity.Money, string) error {
	return manualRefundError{reason: "ledger transfers cannot be reversed by the service"}
}
