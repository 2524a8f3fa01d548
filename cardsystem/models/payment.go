package models

import "github.com/shopspring/decimal"

// PaymentRequest is what a merchant submits for authorization. CardNumber may
// arrive in display form with separators; ReturnURL is passed through untouched.
type PaymentRequest struct {
	CardNumber  string          `json:"cardNumber"`
	CardHolder  string          `json:"cardHolder"`
	ExpiryDate  string          `json:"expiryDate"`
	CVV         string          `json:"cvv"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	MerchantID  string          `json:"merchantId"`
	Description string          `json:"description"`
	ReturnURL   string          `json:"returnUrl,omitempty"`
}

// ErrorCode is the machine-readable rejection reason in a PaymentResult.
type ErrorCode string

const (
	ErrCodeInvalidCardNumber ErrorCode = "INVALID_CARD_NUMBER"
	ErrCodeInvalidCVV        ErrorCode = "INVALID_CVV"
	ErrCodeInvalidExpiry     ErrorCode = "INVALID_EXPIRY"
	ErrCodeCardNotFound      ErrorCode = "CARD_NOT_FOUND"
	ErrCodeCardInactive      ErrorCode = "CARD_INACTIVE"
	ErrCodeInvalidCardholder ErrorCode = "INVALID_CARDHOLDER"
	ErrCodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCodeProcessingError   ErrorCode = "PROCESSING_ERROR"

	// Handler-level codes; ProcessPayment itself never returns these.
	ErrCodeMissingFields ErrorCode = "MISSING_FIELDS"
	ErrCodeInvalidAmount ErrorCode = "INVALID_AMOUNT"
)

// PaymentResult is returned for every authorization attempt. Rejections carry
// an error code and a message suitable for direct display; nothing is retried.
type PaymentResult struct {
	Success       bool      `json:"success"`
	TransactionID string    `json:"transactionId,omitempty"`
	Error         ErrorCode `json:"error,omitempty"`
	Message       string    `json:"message"`
}

func Approved(transactionID string) PaymentResult {
	return PaymentResult{
		Success:       true,
		TransactionID: transactionID,
		Message:       "Payment completed",
	}
}

func Declined(code ErrorCode, message string) PaymentResult {
	return PaymentResult{
		Success: false,
		Error:   code,
		Message: message,
	}
}
