// Package services provides external service integrations
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// XMoneyClient is the interface to the xMoney crypto payment gateway
type XMoneyClient interface {
	Name() string
	CreateOrder(ctx context.Context, in XMoneyCreateOrderInput) (*XMoneyOrder, error)
	GetOrder(ctx context.Context, gatewayOrderID string) (*XMoneyOrder, error)
}

type XMoneyCreateOrderInput struct {
	Reference   string
	AmountCents int64
	Currency    string
	CallbackURL string
	ReturnURL   string
	CustomerRef string
	Description string
	LifetimeMin int
}

// XMoneyOrder is the normalized gateway view of a payment order
type XMoneyOrder struct {
	GatewayOrderID string
	Reference      string
	Status         string
	RedirectURL    string
	CryptoCurrency string
	CryptoAmount   string
	TxHash         string
	Confirmations  int
	ExpiresAt      *time.Time
}

// Gateway order statuses as xMoney reports them
const (
	XMoneyStatusPending   = "PENDING"
	XMoneyStatusDetected  = "PAYMENT_DETECTED"
	XMoneyStatusConfirmed = "PAYMENT_RECEIVED"
	XMoneyStatusCancelled = "CANCELLED"
	XMoneyStatusExpired   = "EXPIRED"
)

// GatewayError carries the HTTP status and gateway message of a failed call
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("xmoney: status %d: %s", e.StatusCode, e.Message)
}

type HTTPXMoneyClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func NewXMoneyClient(baseURL, apiKey string, timeout time.Duration) *HTTPXMoneyClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPXMoneyClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
		Timeout:    timeout,
	}
}

func (c *HTTPXMoneyClient) Name() string { return "xmoney" }

// POST /api/v1/orders (Authorization: Bearer <api key>)

type xmoneyOrderCreateReq struct {
	ExternalID      string  `json:"externalId"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	CallbackURL     string  `json:"callbackUrl,omitempty"`
	ReturnURL       string  `json:"returnUrl,omitempty"`
	CustomerRef     string  `json:"customerRef,omitempty"`
	Description     string  `json:"description,omitempty"`
	LifetimeMinutes int     `json:"lifetimeMinutes,omitempty"`
}

type xmoneyOrderData struct {
	OrderID        string  `json:"orderId"`
	ExternalID     string  `json:"externalId"`
	Status         string  `json:"status"`
	RedirectURL    string  `json:"redirectUrl"`
	CryptoCurrency string  `json:"cryptoCurrency,omitempty"`
	CryptoAmount   string  `json:"cryptoAmount,omitempty"`
	TxHash         string  `json:"txHash,omitempty"`
	Confirmations  int     `json:"confirmations,omitempty"`
	ExpiresAt      *string `json:"expiresAt,omitempty"`
}

type xmoneyEnvelope struct {
	Data    xmoneyOrderData `json:"data"`
	Message string          `json:"message"`
	Error   any             `json:"error"`
	Status  int             `json:"status"`
}

func (c *HTTPXMoneyClient) CreateOrder(ctx context.Context, in XMoneyCreateOrderInput) (*XMoneyOrder, error) {
	body := xmoneyOrderCreateReq{
		ExternalID:      in.Reference,
		Amount:          float64(in.AmountCents) / 100,
		Currency:        strings.ToUpper(in.Currency),
		CallbackURL:     in.CallbackURL,
		ReturnURL:       in.ReturnURL,
		CustomerRef:     in.CustomerRef,
		Description:     in.Description,
		LifetimeMinutes: in.LifetimeMin,
	}
	var env xmoneyEnvelope
	if err := c.postJSON(ctx, "/api/v1/orders", body, &env); err != nil {
		return nil, err
	}
	if env.Data.OrderID == "" {
		return nil, &GatewayError{StatusCode: http.StatusBadGateway, Message: "empty order id in response"}
	}
	return normalizeOrder(env.Data), nil
}

func (c *HTTPXMoneyClient) GetOrder(ctx context.Context, gatewayOrderID string) (*XMoneyOrder, error) {
	var env xmoneyEnvelope
	if err := c.getJSON(ctx, "/api/v1/orders/"+gatewayOrderID, &env); err != nil {
		return nil, err
	}
	return normalizeOrder(env.Data), nil
}

func normalizeOrder(data xmoneyOrderData) *XMoneyOrder {
	order := &XMoneyOrder{
		GatewayOrderID: data.OrderID,
		Reference:      data.ExternalID,
		Status:         data.Status,
		RedirectURL:    data.RedirectURL,
		CryptoCurrency: data.CryptoCurrency,
		CryptoAmount:   data.CryptoAmount,
		TxHash:         data.TxHash,
		Confirmations:  data.Confirmations,
	}
	if data.ExpiresAt != nil {
		if t, err := time.Parse(time.RFC3339, *data.ExpiresAt); err == nil {
			order.ExpiresAt = &t
		}
	}
	return order
}

// HTTP helpers

func (c *HTTPXMoneyClient) postJSON(ctx context.Context, path string, payload any, out any) error {
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &GatewayError{StatusCode: resp.StatusCode, Message: "POST " + path}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPXMoneyClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return &GatewayError{StatusCode: http.StatusNotFound, Message: "order not found"}
	}
	if resp.StatusCode != http.StatusOK {
		return &GatewayError{StatusCode: resp.StatusCode, Message: "GET " + path}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
