package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Card is an issued ABEBA card. Number holds normalized digits; use
// cardgen.Format for the display form. Balance never goes below zero.
type Card struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	Number     string          `json:"cardNumber"`
	HolderName string          `json:"cardHolder"`
	ExpiryDate string          `json:"expiryDate"` // MM/YY
	CVV        string          `json:"-"`
	Balance    decimal.Decimal `json:"balance"`
	Active     bool            `json:"isActive"`
	CreatedAt  time.Time       `json:"createdAt"`
	LastUsed   *time.Time      `json:"lastUsed,omitempty"`
}

// Sentinel errors shared by the service and both repository backends.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrCardInactive      = errors.New("card is inactive")
)
