package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

// There is no pending or async path; a transaction is written exactly once,
// already completed, and never mutated afterwards.
const TransactionStatusCompleted TransactionStatus = "completed"

// Transaction is the audit record created atomically with a balance debit.
type Transaction struct {
	ID          string            `json:"id"`
	CardID      string            `json:"cardId"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency"`
	MerchantID  string            `json:"merchantId"`
	Description string            `json:"description"`
	Status      TransactionStatus `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
}
