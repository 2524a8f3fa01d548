package cardsystem

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abebabank/abeba-card-system/cardsystem/models"
	"github.com/abebabank/abeba-card-system/internal/cardgen"
	"github.com/jackc/pgconn"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

var ErrNotFound = fmt.Errorf("not found")
var ErrConflict = fmt.Errorf("conflict")

// Repository stores cards and transactions. The zero-db form keeps everything
// in memory behind a mutex (tests, dev); with a db it runs on postgres, where
// cards are keyed by an HMAC of the number and the clear number is never
// stored. All debits are atomic per card in both backends.
type Repository struct {
	mu           sync.RWMutex
	cards        map[string]*models.Card // keyed by normalized number
	transactions []*models.Transaction

	db      *sql.DB
	hashKey []byte
}

func NewRepository() *Repository {
	return &Repository{
		cards:        make(map[string]*models.Card),
		transactions: make([]*models.Transaction, 0),
	}
}

// NewPGRepository constructs a db-backed repository. hashKey peppers the card
// number hash used as the lookup key.
func NewPGRepository(db *sql.DB, hashKey []byte) *Repository {
	return &Repository{db: db, hashKey: hashKey}
}

// CreateCard stores a new card keyed by its normalized number. Returns
// ErrConflict if the number is already taken.
func (r *Repository) CreateCard(ctx context.Context, card *models.Card) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.cards[card.Number]; ok {
			return fmt.Errorf("card number exists: %w", ErrConflict)
		}
		stored := *card
		r.cards[card.Number] = &stored
		return nil
	}

	hash := cardgen.HashHMAC(card.Number, r.hashKey)
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO abeba.cards(card_id, user_id, pan_hash, masked_number, holder_name, expiry, cvv, balance, active, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    `, card.ID, card.UserID, hash, cardgen.Mask(card.Number), card.HolderName,
		card.ExpiryDate, card.CVV, card.Balance.String(), card.Active, card.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// ExistsCardNumber reports whether a card number is already taken.
func (r *Repository) ExistsCardNumber(ctx context.Context, number string) (bool, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		_, ok := r.cards[number]
		return ok, nil
	}

	hash := cardgen.HashHMAC(number, r.hashKey)
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM abeba.cards WHERE pan_hash=$1`, hash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindCard looks up a card by normalized number. The db backend returns the
// masked number in Number; everything the authorization cross-check needs
// (holder, expiry, CVV, balance, active) comes back in the clear.
func (r *Repository) FindCard(ctx context.Context, number string) (*models.Card, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		card, ok := r.cards[number]
		if !ok {
			return nil, ErrNotFound
		}
		copied := *card
		return &copied, nil
	}

	hash := cardgen.HashHMAC(number, r.hashKey)
	row := r.db.QueryRowContext(ctx, `
        SELECT card_id, user_id, masked_number, holder_name, expiry, cvv, balance::text, active, created_at, last_used
          FROM abeba.cards WHERE pan_hash=$1
    `, hash)

	var card models.Card
	var balance string
	var lastUsed sql.NullTime
	err := row.Scan(&card.ID, &card.UserID, &card.Number, &card.HolderName, &card.ExpiryDate,
		&card.CVV, &balance, &card.Active, &card.CreatedAt, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	card.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parsing balance: %w", err)
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		card.LastUsed = &t
	}
	return &card, nil
}

// Debit takes amount off the card balance and records transaction in the same
// atomic step. The balance check and the subtraction happen under the same
// lock (memory) or in the same statement (postgres), so two concurrent debits
// can never overdraw the card. Returns models.ErrInsufficientFunds when the
// balance does not cover amount.
func (r *Repository) Debit(ctx context.Context, number string, amount decimal.Decimal, transaction *models.Transaction) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		card, ok := r.cards[number]
		if !ok {
			return ErrNotFound
		}
		if !card.Active {
			return models.ErrCardInactive
		}
		if card.Balance.Cmp(amount) < 0 {
			return models.ErrInsufficientFunds
		}
		card.Balance = card.Balance.Sub(amount)
		now := time.Now()
		card.LastUsed = &now
		stored := *transaction
		r.transactions = append(r.transactions, &stored)
		return nil
	}

	hash := cardgen.HashHMAC(number, r.hashKey)
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
        UPDATE abeba.cards
           SET balance   = balance - $2,
               last_used = now()
         WHERE pan_hash=$1 AND active AND balance >= $2
    `, hash, amount.String())
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		// The card was found active moments ago, so a zero-row update means
		// the balance no longer covers the amount (or the card was blocked in
		// between; either way the debit must not happen).
		return models.ErrInsufficientFunds
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO abeba.transactions(tx_id, card_id, amount, currency, merchant_id, description, status, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    `, transaction.ID, transaction.CardID, transaction.Amount.String(), transaction.Currency,
		transaction.MerchantID, transaction.Description, string(transaction.Status), transaction.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Credit adds amount to an active card's balance. Unknown cards return
// ErrNotFound, blocked cards models.ErrCardInactive.
func (r *Repository) Credit(ctx context.Context, number string, amount decimal.Decimal) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		card, ok := r.cards[number]
		if !ok {
			return ErrNotFound
		}
		if !card.Active {
			return models.ErrCardInactive
		}
		card.Balance = card.Balance.Add(amount)
		return nil
	}

	hash := cardgen.HashHMAC(number, r.hashKey)
	res, err := r.db.ExecContext(ctx, `
        UPDATE abeba.cards SET balance = balance + $2 WHERE pan_hash=$1 AND active
    `, hash, amount.String())
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		var active bool
		err := r.db.QueryRowContext(ctx, `SELECT active FROM abeba.cards WHERE pan_hash=$1`, hash).Scan(&active)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return models.ErrCardInactive
	}
	return nil
}

// SetStatus blocks or unblocks a card.
func (r *Repository) SetStatus(ctx context.Context, number string, active bool) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		card, ok := r.cards[number]
		if !ok {
			return ErrNotFound
		}
		card.Active = active
		return nil
	}

	hash := cardgen.HashHMAC(number, r.hashKey)
	res, err := r.db.ExecContext(ctx, `
        UPDATE abeba.cards SET active=$2 WHERE pan_hash=$1
    `, hash, active)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTransactions returns all transactions for a card, newest first.
func (r *Repository) ListTransactions(ctx context.Context, cardID string) ([]*models.Transaction, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		var transactions []*models.Transaction
		// Appended chronologically; walk backwards for newest-first.
		for i := len(r.transactions) - 1; i >= 0; i-- {
			if r.transactions[i].CardID == cardID {
				copied := *r.transactions[i]
				transactions = append(transactions, &copied)
			}
		}
		return transactions, nil
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT tx_id, card_id, amount::text, currency, merchant_id, description, status, created_at
          FROM abeba.transactions WHERE card_id=$1 ORDER BY created_at DESC
    `, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		var amount, status string
		if err := rows.Scan(&t.ID, &t.CardID, &amount, &t.Currency, &t.MerchantID, &t.Description, &status, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parsing amount: %w", err)
		}
		t.Status = models.TransactionStatus(status)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// Ping returns DB readiness; the memory backend is always ready.
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	return false
}
