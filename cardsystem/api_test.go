package cardsystem_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/abebabank/abeba-card-system/cardsystem"
	"github.com/abebabank/abeba-card-system/cardsystem/models"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard))
	service := cardsystem.NewService(logger, cardsystem.NewRepository(), cardsystem.DefaultConfig())

	router := chi.NewRouter()
	cardsystem.NewAPI(service).AppendRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

type issuedCard struct {
	CardNumber string `json:"cardNumber"`
	HolderName string `json:"cardHolder"`
	ExpiryDate string `json:"expiryDate"`
	CVV        string `json:"cvv"`
}

func issueCard(t *testing.T, server *httptest.Server) issuedCard {
	t.Helper()

	resp := postJSON(t, server, "/cards", map[string]string{
		"userId":     "user-1",
		"cardHolder": "John Doe",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var card issuedCard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&card))
	return card
}

// cardPath builds a /cards/{number}/... path from the display-form number.
func cardPath(card issuedCard, suffix string) string {
	number := strings.ReplaceAll(card.CardNumber, " ", "")
	return "/cards/" + number + suffix
}

func postJSON(t *testing.T, server *httptest.Server, path string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func topUp(t *testing.T, server *httptest.Server, card issuedCard, amount int64) {
	t.Helper()

	resp := postJSON(t, server, cardPath(card, "/topup"), map[string]any{
		"amount": decimal.NewFromInt(amount),
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func authRequest(card issuedCard, amount int64) map[string]any {
	return map[string]any{
		"cardNumber": card.CardNumber,
		"cardHolder": "John Doe",
		"expiryDate": card.ExpiryDate,
		"cvv":        card.CVV,
		"amount":     decimal.NewFromInt(amount),
		"currency":   "USD",
		"merchantId": "merchant-1",
	}
}

func TestAPI_CreateCard(t *testing.T) {
	server := newTestAPI(t)

	card := issueCard(t, server)
	require.Regexp(t, `^4444 \d{4} \d{4} \d{4}$`, card.CardNumber)
	require.Regexp(t, `^\d{3}$`, card.CVV)
	require.Regexp(t, `^\d{2}/\d{2}$`, card.ExpiryDate)
	require.Equal(t, "JOHN DOE", card.HolderName)
}

func TestAPI_PaymentFlow(t *testing.T) {
	server := newTestAPI(t)
	card := issueCard(t, server)
	topUp(t, server, card, 100)

	resp := postJSON(t, server, "/payments", authRequest(card, 40))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result models.PaymentResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.True(t, result.Success, result.Message)
	require.NotEmpty(t, result.TransactionID)

	balanceResp, err := http.Get(server.URL + cardPath(card, "/balance"))
	require.NoError(t, err)
	defer balanceResp.Body.Close()
	require.Equal(t, http.StatusOK, balanceResp.StatusCode)

	var balance struct {
		CardNumber string          `json:"cardNumber"`
		Balance    decimal.Decimal `json:"balance"`
	}
	require.NoError(t, json.NewDecoder(balanceResp.Body).Decode(&balance))
	require.True(t, balance.Balance.Equal(decimal.NewFromInt(60)), "balance = %s", balance.Balance)
	require.Contains(t, balance.CardNumber, "****")

	txResp, err := http.Get(server.URL + cardPath(card, "/transactions"))
	require.NoError(t, err)
	defer txResp.Body.Close()
	require.Equal(t, http.StatusOK, txResp.StatusCode)

	var transactions []models.Transaction
	require.NoError(t, json.NewDecoder(txResp.Body).Decode(&transactions))
	require.Len(t, transactions, 1)
	require.Equal(t, result.TransactionID, transactions[0].ID)
	require.Equal(t, "merchant-1", transactions[0].MerchantID)
}

func TestAPI_PaymentDeclines(t *testing.T) {
	server := newTestAPI(t)
	card := issueCard(t, server)

	t.Run("missing fields", func(t *testing.T) {
		resp := postJSON(t, server, "/payments", map[string]any{
			"cardNumber": card.CardNumber,
			"amount":     decimal.NewFromInt(10),
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var result models.PaymentResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		require.Equal(t, models.ErrCodeMissingFields, result.Error)
	})

	t.Run("zero amount", func(t *testing.T) {
		req := authRequest(card, 0)
		resp := postJSON(t, server, "/payments", req)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var result models.PaymentResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		require.Equal(t, models.ErrCodeInvalidAmount, result.Error)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		resp := postJSON(t, server, "/payments", authRequest(card, 10))
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var result models.PaymentResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		require.Equal(t, models.ErrCodeInsufficientFunds, result.Error)
	})
}

func TestAPI_ValidateCardNumber(t *testing.T) {
	server := newTestAPI(t)
	card := issueCard(t, server)

	check := func(number string) (string, bool) {
		resp, err := http.Get(server.URL + "/payments/validate?cardNumber=" + url.QueryEscape(number))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			CardNumber string `json:"cardNumber"`
			Valid      bool   `json:"valid"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body.CardNumber, body.Valid
	}

	masked, valid := check(card.CardNumber)
	require.True(t, valid)
	require.Contains(t, masked, "****")

	_, valid = check("4111 1111 1111 1111")
	require.False(t, valid)
}

func TestAPI_CardStatus(t *testing.T) {
	server := newTestAPI(t)
	card := issueCard(t, server)

	resp := postJSON(t, server, cardPath(card, "/status"), map[string]any{"active": false})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Top-ups against a blocked card are refused.
	topupResp := postJSON(t, server, cardPath(card, "/topup"), map[string]any{
		"amount": decimal.NewFromInt(10),
	})
	topupResp.Body.Close()
	require.Equal(t, http.StatusConflict, topupResp.StatusCode)

	// Missing active flag is a client error.
	resp = postJSON(t, server, cardPath(card, "/status"), map[string]any{})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_UnknownCard(t *testing.T) {
	server := newTestAPI(t)

	resp, err := http.Get(fmt.Sprintf("%s/cards/%s/balance", server.URL, "4444111122223333"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
