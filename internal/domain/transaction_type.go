package domain

import (
	"fmt"
	"strings"
)

// TransactionType is the canonical transaction kind.
// Raw strings from requests and imports are normalized once by ParseTransactionType;
// nothing past the boundary compares raw type strings.
type TransactionType string

const (
	TypeBuy         TransactionType = "BUY"
	TypeStockBuy    TransactionType = "STOCK_BUY"
	TypeETFBuy      TransactionType = "ETF_BUY"
	TypeFundBuy     TransactionType = "FUND_BUY"
	TypeBondBuy     TransactionType = "BOND_BUY"
	TypeCryptoBuy   TransactionType = "CRYPTO_BUY"
	TypeSubscribe   TransactionType = "SUBSCRIBE"
	TypeDeposit     TransactionType = "DEPOSIT"
	TypeTransferIn  TransactionType = "TRANSFER_IN"
	TypeSell        TransactionType = "SELL"
	TypeStockSell   TransactionType = "STOCK_SELL"
	TypeETFSell     TransactionType = "ETF_SELL"
	TypeFundSell    TransactionType = "FUND_SELL"
	TypeBondSell    TransactionType = "BOND_SELL"
	TypeCryptoSell  TransactionType = "CRYPTO_SELL"
	TypeRedeem      TransactionType = "REDEEM"
	TypeWithdrawal  TransactionType = "WITHDRAWAL"
	TypeTransferOut TransactionType = "TRANSFER_OUT"
)

var buyClassTypes = map[TransactionType]bool{
	TypeBuy:        true,
	TypeStockBuy:   true,
	TypeETFBuy:     true,
	TypeFundBuy:    true,
	TypeBondBuy:    true,
	TypeCryptoBuy:  true,
	TypeSubscribe:  true,
	TypeDeposit:    true,
	TypeTransferIn: true,
}

var sellClassTypes = map[TransactionType]bool{
	TypeSell:        true,
	TypeStockSell:   true,
	TypeETFSell:     true,
	TypeFundSell:    true,
	TypeBondSell:    true,
	TypeCryptoSell:  true,
	TypeRedeem:      true,
	TypeWithdrawal:  true,
	TypeTransferOut: true,
}

// AllTransactionTypes returns every accepted type, buy-class first
func AllTransactionTypes() []TransactionType {
	return []TransactionType{
		TypeBuy, TypeStockBuy, TypeETFBuy, TypeFundBuy, TypeBondBuy, TypeCryptoBuy,
		TypeSubscribe, TypeDeposit, TypeTransferIn,
		TypeSell, TypeStockSell, TypeETFSell, TypeFundSell, TypeBondSell, TypeCryptoSell,
		TypeRedeem, TypeWithdrawal, TypeTransferOut,
	}
}

// ParseTransactionType normalizes a raw type (any casing, '-', ' ' or '_' separators)
// into the canonical enumeration.
func ParseTransactionType(raw string) (TransactionType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	if normalized == "" {
		return "", fmt.Errorf("invalid transaction type: empty string")
	}

	// Common spellings seen in broker exports
	switch normalized {
	case "TRANSFERIN":
		normalized = string(TypeTransferIn)
	case "TRANSFEROUT":
		normalized = string(TypeTransferOut)
	case "WITHDRAW":
		normalized = string(TypeWithdrawal)
	case "REDEMPTION":
		normalized = string(TypeRedeem)
	case "SUBSCRIPTION":
		normalized = string(TypeSubscribe)
	}

	t := TransactionType(normalized)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid transaction type: %s", raw)
	}
	return t, nil
}

// IsValid checks that the type is a member of the enumeration
func (t TransactionType) IsValid() bool {
	return buyClassTypes[t] || sellClassTypes[t]
}

// IsBuyClass reports whether the type increases holdings
func (t TransactionType) IsBuyClass() bool {
	return buyClassTypes[t]
}

// Side derives the ledger side from the classification
func (t TransactionType) Side() Side {
	if t.IsBuyClass() {
		return SideBuy
	}
	return SideSell
}

// Side is the direction of a transaction as stored in the ledger
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide parses a side filter value (case-insensitive)
func ParseSide(raw string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return "", fmt.Errorf("invalid side: %s", raw)
	}
}

// TransactionStatus is the lifecycle status of a ledger row
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusExecuted  TransactionStatus = "EXECUTED"
	StatusSettled   TransactionStatus = "SETTLED"
	StatusCancelled TransactionStatus = "CANCELLED"
)

// ParseTransactionStatus parses a status value (case-insensitive)
func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	s := TransactionStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatusPending, StatusExecuted, StatusSettled, StatusCancelled:
		return s, nil
	default:
		return "", fmt.Errorf("invalid transaction status: %s", raw)
	}
}
