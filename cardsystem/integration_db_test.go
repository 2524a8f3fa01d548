package cardsystem_test

import (
	"context"
	"database/sql"
	"io"
	"os"
	"testing"

	"github.com/abebabank/abeba-card-system/cardsystem"
	"github.com/abebabank/abeba-card-system/cardsystem/models"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"
)

// TestPostgresCardLifecycle runs the issue/topup/authorize flow against a real
// database and checks that the clear card number never lands in it. Skips
// unless DB_DSN is provided and REPO_BACKEND=pg.
func TestPostgresCardLifecycle(t *testing.T) {
	if os.Getenv("REPO_BACKEND") != "pg" {
		t.Skip("REPO_BACKEND != pg; skipping DB integration test")
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Skip("DB_DSN not set; skipping DB integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Fatalf("ping db: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard))
	repo := cardsystem.NewPGRepository(db, []byte("test-pan-hash-key"))
	svc := cardsystem.NewService(logger, repo, cardsystem.DefaultConfig())
	ctx := context.Background()

	card, err := svc.CreateCard(ctx, "it-user-1", "JOHN DOE")
	if err != nil {
		t.Fatalf("create card: %v", err)
	}

	// The clear number must not be stored; only the hash and the masked form.
	var maskedNumber string
	row := db.QueryRow(`select masked_number from abeba.cards where card_id=$1`, card.ID)
	if err := row.Scan(&maskedNumber); err != nil {
		t.Fatalf("scan masked_number: %v", err)
	}
	if maskedNumber == card.Number {
		t.Fatalf("clear card number stored in db: %q", maskedNumber)
	}
	if len(maskedNumber) != len(card.Number) {
		t.Fatalf("masked_number length = %d want %d", len(maskedNumber), len(card.Number))
	}

	if err := svc.AddBalance(ctx, card.Number, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("add balance: %v", err)
	}

	req := paymentRequestFor(card.Number, card.ExpiryDate, card.CVV, 40)
	result := svc.ProcessPayment(ctx, req)
	if !result.Success {
		t.Fatalf("payment declined: %s (%s)", result.Error, result.Message)
	}

	balance, err := svc.GetBalance(ctx, card.Number)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("balance = %s want 60", balance)
	}

	history, err := svc.GetTransactionHistory(ctx, card.Number)
	if err != nil {
		t.Fatalf("get transactions: %v", err)
	}
	if len(history) == 0 {
		t.Fatalf("no transactions recorded")
	}
	if history[0].ID != result.TransactionID {
		t.Fatalf("latest transaction = %s want %s", history[0].ID, result.TransactionID)
	}
}

func paymentRequestFor(number, expiryDate, cvv string, amount int64) models.PaymentRequest {
	return models.PaymentRequest{
		CardNumber:  number,
		CardHolder:  "JOHN DOE",
		ExpiryDate:  expiryDate,
		CVV:         cvv,
		Amount:      decimal.NewFromInt(amount),
		Currency:    "USD",
		MerchantID:  "merchant-1",
		Description: "integration purchase",
	}
}
