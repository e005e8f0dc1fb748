package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AnujAga2005/ProductLab/pkg/circuitbreaker"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseBytes = 1 << 20

type HTTPClientConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
	Breaker   circuitbreaker.Config
}

type HTTPClient struct {
	baseURL   string
	keyID     string
	keySecret string
	timeout   time.Duration
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[[]byte]
	log       *logrus.Logger
}

func NewHTTPClient(cfg HTTPClientConfig, log *logrus.Logger) *HTTPClient {
	breakerCfg := cfg.Breaker
	if breakerCfg.Name == "" {
		breakerCfg = circuitbreaker.DefaultConfig("payment-gateway")
	}
	breakerCfg.Counted = func(err error) bool { return errors.Is(err, ErrUnavailable) }

	return &HTTPClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		timeout:   cfg.Timeout,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: circuitbreaker.New[[]byte](breakerCfg, log),
		log:     log,
	}
}

func (c *HTTPClient) ConnectionParams() string {
	return c.keyID
}

type createOrderBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type paymentResponse struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	Method    string `json:"method"`
	Email     string `json:"email"`
	Contact   string `json:"contact"`
	VPA       string `json:"vpa"`
	Notes     notes  `json:"notes"`
	CreatedAt int64  `json:"created_at"`
}

func (c *HTTPClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	body, err := json.Marshal(createOrderBody{
		Amount:   req.AmountMinorUnits,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal create order: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, "/orders", body)
	if err != nil {
		return nil, err
	}

	var resp orderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode order: %v", ErrUnavailable, err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: order response without id", ErrUnavailable)
	}
	return &Order{
		ID:               resp.ID,
		AmountMinorUnits: resp.Amount,
		Currency:         resp.Currency,
		Receipt:          resp.Receipt,
		Status:           resp.Status,
	}, nil
}

func (c *HTTPClient) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if paymentID == "" {
		return nil, ErrPaymentNotFound
	}
	raw, err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return nil, err
	}

	var resp paymentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode payment: %v", ErrUnavailable, err)
	}
	p := &Payment{
		ID:               resp.ID,
		OrderID:          resp.OrderID,
		AmountMinorUnits: resp.Amount,
		Currency:         resp.Currency,
		Status:           resp.Status,
		Method:           resp.Method,
		Email:            resp.Email,
		Contact:          resp.Contact,
		VPA:              resp.VPA,
		Notes:            map[string]string(resp.Notes),
	}
	if resp.CreatedAt > 0 {
		p.CreatedAt = time.Unix(resp.CreatedAt, 0).UTC()
	}
	return p, nil
}

// do runs one request through the breaker. Only ErrUnavailable counts against it.
func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, body)
	})
	if circuitbreaker.IsOpen(err) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return raw, err
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	c.log.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("gateway call")

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound && method == http.MethodGet:
		return nil, ErrPaymentNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: rate limited", ErrUnavailable)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, gatewayErrorDescription(raw))
	}
	return raw, nil
}

func gatewayErrorDescription(raw []byte) string {
	var body struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Error.Description == "" {
		return "no description"
	}
	return body.Error.Code + " " + body.Error.Description
}

var _ Client = (*HTTPClient)(nil)
