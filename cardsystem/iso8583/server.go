package iso8583

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/abebabank/abeba-card-system/cardsystem/models"
	"github.com/abebabank/abeba-card-system/internal/cardgen"
	"github.com/abebabank/abeba-card-system/internal/expiry"
	"github.com/moov-io/iso8583"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"
)

// Authorizer is the part of the card service the network endpoint needs.
type Authorizer interface {
	ProcessPayment(ctx context.Context, req models.PaymentRequest) models.PaymentResult
}

// Response codes (DE39) for authorization outcomes.
const (
	ResponseCodeApproved          = "00"
	ResponseCodeInvalidCard       = "14"
	ResponseCodeInsufficientFunds = "51"
	ResponseCodeExpired           = "54"
	ResponseCodeInactive          = "62"
	ResponseCodeInvalidHolder     = "63"
	ResponseCodeCVVFailure        = "82"
	ResponseCodeSystemError       = "96"
)

var responseCodes = map[models.ErrorCode]string{
	models.ErrCodeInvalidCardNumber: ResponseCodeInvalidCard,
	models.ErrCodeCardNotFound:      ResponseCodeInvalidCard,
	models.ErrCodeInvalidExpiry:     ResponseCodeExpired,
	models.ErrCodeCardInactive:      ResponseCodeInactive,
	models.ErrCodeInvalidCardholder: ResponseCodeInvalidHolder,
	models.ErrCodeInvalidCVV:        ResponseCodeCVVFailure,
	models.ErrCodeInsufficientFunds: ResponseCodeInsufficientFunds,
	models.ErrCodeProcessingError:   ResponseCodeSystemError,
}

// Server accepts terminal connections, unpacks 0100 authorization requests,
// runs them through the card service and answers with 0110 responses. Each
// connection handles messages sequentially; connections are independent.
type Server struct {
	logger     *slog.Logger
	listenAddr string
	authorizer Authorizer

	// Addr is the actual listen address, set by Start.
	Addr string

	ln     net.Listener
	wg     sync.WaitGroup
	closed chan struct{}
}

func NewServer(logger *slog.Logger, addr string, authorizer Authorizer) *Server {
	return &Server{
		logger:     logger.With(slog.String("component", "iso8583-server")),
		listenAddr: addr,
		authorizer: authorizer,
		closed:     make(chan struct{}),
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listening tcp port: %w", err)
	}
	s.ln = ln
	s.Addr = ln.Addr().String()

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("iso8583 server started", slog.String("addr", s.Addr))
	return nil
}

func (s *Server) Close() error {
	close(s.closed)
	err := s.ln.Close()
	s.wg.Wait()
	s.logger.Info("iso8583 server stopped")
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
				s.logger.Error("accepting connection", "err", err)
				return
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	for {
		length, err := ReadMessageLength(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Error("reading message length", "err", err)
			}
			return
		}

		raw := make([]byte, length)
		if _, err := io.ReadFull(conn, raw); err != nil {
			s.logger.Error("reading message", "err", err)
			return
		}

		request := iso8583.NewMessage(Spec)
		if err := request.Unpack(raw); err != nil {
			s.logger.Error("unpacking message", "err", err)
			return
		}

		response, err := s.handleMessage(request)
		if err != nil {
			s.logger.Error("handling message", "err", err)
			return
		}

		packed, err := response.Pack()
		if err != nil {
			s.logger.Error("packing response", "err", err)
			return
		}
		if _, err := WriteMessageLength(conn, len(packed)); err != nil {
			s.logger.Error("writing response length", "err", err)
			return
		}
		if _, err := conn.Write(packed); err != nil {
			s.logger.Error("writing response", "err", err)
			return
		}
	}
}

func (s *Server) handleMessage(request *iso8583.Message) (*iso8583.Message, error) {
	mti, err := request.GetMTI()
	if err != nil {
		return nil, fmt.Errorf("getting MTI: %w", err)
	}
	if mti != "0100" {
		return nil, fmt.Errorf("unsupported MTI: %s", mti)
	}

	req, err := paymentRequestFromMessage(request)
	if err != nil {
		return nil, fmt.Errorf("reading authorization request: %w", err)
	}

	result := s.authorizer.ProcessPayment(context.Background(), req)

	response := iso8583.NewMessage(Spec)
	response.MTI("0110")
	for _, id := range []int{2, 3, 4, 11, 49} {
		value, err := request.GetString(id)
		if err != nil {
			return nil, fmt.Errorf("echoing field %d: %w", id, err)
		}
		if value == "" {
			continue
		}
		if err := response.Field(id, value); err != nil {
			return nil, fmt.Errorf("echoing field %d: %w", id, err)
		}
	}

	code := ResponseCodeApproved
	if !result.Success {
		mapped, ok := responseCodes[result.Error]
		if !ok {
			mapped = ResponseCodeSystemError
		}
		code = mapped
	}
	if err := response.Field(39, code); err != nil {
		return nil, fmt.Errorf("setting response code: %w", err)
	}
	if result.Success {
		approval, err := cardgen.RandomDigits(6)
		if err != nil {
			return nil, fmt.Errorf("generating approval code: %w", err)
		}
		if err := response.Field(38, approval); err != nil {
			return nil, fmt.Errorf("setting approval code: %w", err)
		}
	}

	return response, nil
}

// paymentRequestFromMessage maps the wire fields onto the service's
// PaymentRequest: DE4 minor units become a decimal amount, DE14 YYMM becomes
// the MM/YY card face, DE48 carries "cvv|holder", DE43 is the merchant.
func paymentRequestFromMessage(request *iso8583.Message) (models.PaymentRequest, error) {
	var req models.PaymentRequest

	pan, err := request.GetString(2)
	if err != nil {
		return req, fmt.Errorf("getting PAN: %w", err)
	}
	req.CardNumber = pan

	amountRaw, err := request.GetString(4)
	if err != nil {
		return req, fmt.Errorf("getting amount: %w", err)
	}
	minor, err := strconv.ParseInt(amountRaw, 10, 64)
	if err != nil {
		return req, fmt.Errorf("parsing amount %q: %w", amountRaw, err)
	}
	req.Amount = decimal.New(minor, -2)

	yymm, err := request.GetString(14)
	if err != nil {
		return req, fmt.Errorf("getting expiration date: %w", err)
	}
	// Malformed expiry must decline, not fail the exchange; leave the card
	// face empty and let the validation step reject it.
	if face, err := expiry.FromYYMM(yymm); err == nil {
		req.ExpiryDate = face
	}

	private, err := request.GetString(48)
	if err != nil {
		return req, fmt.Errorf("getting private data: %w", err)
	}
	if cvv, holder, found := strings.Cut(private, "|"); found {
		req.CVV = cvv
		req.CardHolder = holder
	}

	merchant, err := request.GetString(43)
	if err != nil {
		return req, fmt.Errorf("getting card acceptor: %w", err)
	}
	req.MerchantID = merchant
	req.Description = "ISO 8583 authorization"

	currency, err := request.GetString(49)
	if err != nil {
		return req, fmt.Errorf("getting currency: %w", err)
	}
	req.Currency = currency

	return req, nil
}
