package cardsystem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abebabank/abeba-card-system/cardsystem/models"
	"github.com/abebabank/abeba-card-system/internal/cardgen"
	"github.com/abebabank/abeba-card-system/internal/expiry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"
)

// Service owns card issuing and payment authorization. All checks before the
// debit are pure; only the final repository Debit mutates state, and it does so
// atomically per card.
type Service struct {
	logger *slog.Logger
	repo   *Repository
	cfg    *Config

	// now is swapped in tests to pin expiry checks to a fixed clock.
	now func() time.Time
}

func NewService(logger *slog.Logger, repo *Repository, cfg *Config) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Service{
		logger: logger.With(slog.String("component", "cardsystem")),
		repo:   repo,
		cfg:    cfg,
		now:    time.Now,
	}
}

// CreateCard issues a new card for a user: generated number (brand prefix,
// Luhn check digit), random CVV, expiry ValidityYears out, zero balance,
// active. Number collisions are retried, both against the store upfront and on
// the insert itself.
func (s *Service) CreateCard(ctx context.Context, userID, holderName string) (*models.Card, error) {
	holder := NormalizeHolderName(holderName)
	if holder == "" {
		return nil, fmt.Errorf("cardholder name is required")
	}
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	exists := func(number string) (bool, error) { return s.repo.ExistsCardNumber(ctx, number) }
	number, err := cardgen.GenerateUniqueNumber(s.cfg.BrandPrefix, 10, exists)
	if err != nil {
		return nil, fmt.Errorf("generate unique card number: %w", err)
	}

	for attempt := 0; attempt < 5; attempt++ {
		cvv, err := cardgen.GenerateCVV()
		if err != nil {
			return nil, fmt.Errorf("generate cvv: %w", err)
		}
		card := &models.Card{
			ID:         uuid.New().String(),
			UserID:     userID,
			Number:     number,
			HolderName: holder,
			ExpiryDate: expiry.CardFace(s.now(), s.cfg.ValidityYears),
			CVV:        cvv,
			Balance:    decimal.Zero,
			Active:     true,
			CreatedAt:  s.now(),
		}
		err = s.repo.CreateCard(ctx, card)
		if err == nil {
			s.logger.Info("card created",
				slog.String("card_id", card.ID),
				slog.String("number", cardgen.Mask(card.Number)))
			return card, nil
		}
		if errors.Is(err, ErrConflict) {
			// Lost an insert race; regenerate and try again.
			number, err = cardgen.GenerateUniqueNumber(s.cfg.BrandPrefix, 10, exists)
			if err != nil {
				return nil, fmt.Errorf("regenerate unique card number: %w", err)
			}
			continue
		}
		return nil, fmt.Errorf("creating card: %w", err)
	}
	return nil, fmt.Errorf("could not create unique card after retries")
}

// ValidateCardNumber is the standalone pre-flight check: normalized length,
// brand prefix and Luhn checksum, without touching the store.
func (s *Service) ValidateCardNumber(number string) bool {
	return cardgen.ValidateNumber(number, s.cfg.BrandPrefix)
}

// ProcessPayment runs the authorization flow: format checks, card lookup,
// on-file cross-check, funds check, atomic debit with an audit record. Every
// outcome is a PaymentResult; internal failures come back as PROCESSING_ERROR
// and leave no partial state behind.
func (s *Service) ProcessPayment(ctx context.Context, req models.PaymentRequest) models.PaymentResult {
	// Step 1: shape of the request, no lookups yet.
	if !cardgen.ValidateNumber(req.CardNumber, s.cfg.BrandPrefix) {
		return models.Declined(models.ErrCodeInvalidCardNumber, "Invalid ABEBA card number")
	}
	if !cardgen.ValidateCVV(req.CVV) {
		return models.Declined(models.ErrCodeInvalidCVV, "Invalid CVV code")
	}
	if !expiry.Valid(req.ExpiryDate, s.now()) {
		return models.Declined(models.ErrCodeInvalidExpiry, "Invalid card expiry date")
	}

	// Step 2: look the card up by normalized number.
	number := cardgen.Normalize(req.CardNumber)
	card, err := s.repo.FindCard(ctx, number)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.Declined(models.ErrCodeCardNotFound, "ABEBA card not found")
		}
		return s.processingError("finding card", err)
	}
	if !card.Active {
		return models.Declined(models.ErrCodeCardInactive, "ABEBA card is blocked")
	}

	// Step 3: cross-check against the record on file. Stricter than step 1:
	// well-formed values that don't match what the issuer holds are declined.
	if card.HolderName != NormalizeHolderName(req.CardHolder) {
		return models.Declined(models.ErrCodeInvalidCardholder, "Cardholder name does not match")
	}
	if card.CVV != req.CVV {
		return models.Declined(models.ErrCodeInvalidCVV, "CVV code does not match")
	}
	if card.ExpiryDate != req.ExpiryDate {
		return models.Declined(models.ErrCodeInvalidExpiry, "Expiry date does not match")
	}

	// Step 4: funds. The repository re-checks under its own lock in step 5;
	// this read only shapes the decline for the common case.
	if card.Balance.Cmp(req.Amount) < 0 {
		return models.Declined(models.ErrCodeInsufficientFunds, "Insufficient funds on ABEBA card")
	}

	// Step 5: atomic debit plus immutable transaction record.
	transaction := &models.Transaction{
		ID:          uuid.New().String(),
		CardID:      card.ID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		MerchantID:  req.MerchantID,
		Description: req.Description,
		Status:      models.TransactionStatusCompleted,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Debit(ctx, number, req.Amount, transaction); err != nil {
		switch {
		case errors.Is(err, models.ErrInsufficientFunds):
			return models.Declined(models.ErrCodeInsufficientFunds, "Insufficient funds on ABEBA card")
		case errors.Is(err, models.ErrCardInactive):
			return models.Declined(models.ErrCodeCardInactive, "ABEBA card is blocked")
		case errors.Is(err, ErrNotFound):
			return models.Declined(models.ErrCodeCardNotFound, "ABEBA card not found")
		default:
			return s.processingError("debiting card", err)
		}
	}

	s.logger.Info("payment authorized",
		slog.String("transaction_id", transaction.ID),
		slog.String("merchant_id", req.MerchantID),
		slog.String("amount", req.Amount.String()))

	return models.Approved(transaction.ID)
}

// AddBalance credits an active card (top-ups, signup bonus). Unknown cards
// return ErrNotFound, blocked ones models.ErrCardInactive.
func (s *Service) AddBalance(ctx context.Context, number string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if err := s.repo.Credit(ctx, cardgen.Normalize(number), amount); err != nil {
		return fmt.Errorf("crediting card: %w", err)
	}
	return nil
}

// GetBalance returns the current balance of a card.
func (s *Service) GetBalance(ctx context.Context, number string) (decimal.Decimal, error) {
	card, err := s.repo.FindCard(ctx, cardgen.Normalize(number))
	if err != nil {
		return decimal.Zero, fmt.Errorf("finding card: %w", err)
	}
	return card.Balance, nil
}

// SetCardStatus blocks or unblocks a card. Blocked cards accept no debits and
// no credits.
func (s *Service) SetCardStatus(ctx context.Context, number string, active bool) error {
	if err := s.repo.SetStatus(ctx, cardgen.Normalize(number), active); err != nil {
		return fmt.Errorf("updating card status: %w", err)
	}
	return nil
}

// GetTransactionHistory returns the card's transactions, newest first.
func (s *Service) GetTransactionHistory(ctx context.Context, number string) ([]*models.Transaction, error) {
	card, err := s.repo.FindCard(ctx, cardgen.Normalize(number))
	if err != nil {
		return nil, fmt.Errorf("finding card: %w", err)
	}
	transactions, err := s.repo.ListTransactions(ctx, card.ID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return transactions, nil
}

func (s *Service) processingError(op string, err error) models.PaymentResult {
	s.logger.Error("payment processing failed", slog.String("op", op), "err", err)
	return models.Declined(models.ErrCodeProcessingError, "Payment processing failed")
}

// NormalizeHolderName collapses inner whitespace, trims, upper-cases and caps
// the name at 26 characters, the card face imprint limit.
func NormalizeHolderName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	normalized := strings.Join(strings.Fields(trimmed), " ")
	up := strings.ToUpper(normalized)
	// Cap on rune boundaries so non-ASCII names stay valid UTF-8.
	if runes := []rune(up); len(runes) > 26 {
		return string(runes[:26])
	}
	return up
}
