package cardsystem

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/abebabank/abeba-card-system/cardsystem/models"
	"github.com/abebabank/abeba-card-system/internal/cardgen"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// API is the HTTP surface of the card system
type API struct {
	service *Service
}

func NewAPI(service *Service) *API {
	return &API{
		service: service,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Route("/payments", func(r chi.Router) {
		r.Post("/", a.processPayment)
		r.Get("/validate", a.validateCardNumber)
	})
	r.Route("/cards", func(r chi.Router) {
		r.Post("/", a.createCard)
		r.Route("/{number}", func(r chi.Router) {
			r.Get("/balance", a.getBalance)
			r.Get("/transactions", a.getTransactions)
			r.Post("/topup", a.topUp)
			r.Post("/status", a.setStatus)
		})
	})
}

// processPayment is the authorization endpoint: 200 on success, 400 on any
// validation or business decline, 500 on internal processing errors. The body
// of every response is a PaymentResult.
func (a *API) processPayment(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			models.Declined(models.ErrCodeMissingFields, "Malformed request body"))
		return
	}

	if req.CardNumber == "" || req.CardHolder == "" || req.ExpiryDate == "" ||
		req.CVV == "" || req.MerchantID == "" {
		writeJSON(w, http.StatusBadRequest,
			models.Declined(models.ErrCodeMissingFields, "Fill in all required fields"))
		return
	}
	if req.Amount.Sign() <= 0 {
		writeJSON(w, http.StatusBadRequest,
			models.Declined(models.ErrCodeInvalidAmount, "Amount must be greater than zero"))
		return
	}

	result := a.service.ProcessPayment(r.Context(), req)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
		if result.Error == models.ErrCodeProcessingError {
			status = http.StatusInternalServerError
		}
	}
	writeJSON(w, status, result)
}

// validateCardNumber is the pre-flight "does this look like a valid card"
// check, no authorization involved.
func (a *API) validateCardNumber(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("cardNumber")
	if number == "" {
		http.Error(w, "cardNumber is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		CardNumber string `json:"cardNumber"`
		Valid      bool   `json:"valid"`
	}{cardgen.Mask(number), a.service.ValidateCardNumber(number)})
}

// cardResponse is the issuance response: the only time the clear number and
// CVV leave the system.
type cardResponse struct {
	*models.Card
	CardNumber string `json:"cardNumber"`
	CVV        string `json:"cvv"`
}

func (a *API) createCard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID     string `json:"userId"`
		CardHolder string `json:"cardHolder"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	card, err := a.service.CreateCard(r.Context(), body.UserID, body.CardHolder)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, cardResponse{
		Card:       card,
		CardNumber: cardgen.Format(card.Number),
		CVV:        card.CVV,
	})
}

func (a *API) getBalance(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	balance, err := a.service.GetBalance(r.Context(), number)
	if err != nil {
		a.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		CardNumber string          `json:"cardNumber"`
		Balance    decimal.Decimal `json:"balance"`
	}{cardgen.Mask(number), balance})
}

func (a *API) getTransactions(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	transactions, err := a.service.GetTransactionHistory(r.Context(), number)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if transactions == nil {
		transactions = []*models.Transaction{}
	}

	writeJSON(w, http.StatusOK, transactions)
}

func (a *API) topUp(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	var body struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Amount.Sign() <= 0 {
		http.Error(w, "amount must be greater than zero", http.StatusBadRequest)
		return
	}

	if err := a.service.AddBalance(r.Context(), number, body.Amount); err != nil {
		a.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setStatus(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	var body struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Active == nil {
		http.Error(w, "active is required", http.StatusBadRequest)
		return
	}

	if err := a.service.SetCardStatus(r.Context(), number, *body.Active); err != nil {
		a.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "card not found", http.StatusNotFound)
	case errors.Is(err, models.ErrCardInactive):
		http.Error(w, "card is blocked", http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
