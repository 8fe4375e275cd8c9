// Package payment provides payment gateway adapters.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	appbilling "github.com/cuotas/backend/internal/application/billing"
	infraconfig "github.com/cuotas/backend/internal/infrastructure/config"
)

const (
	mercadoPagoAPIBaseURL   = "https://api.mercadopago.com"
	mercadoPagoQueryPayPath = "/v1/payments/%s"
)

// Ensure MercadoPagoAdapter implements GatewayClient
var _ appbilling.GatewayClient = (*MercadoPagoAdapter)(nil)

// MercadoPagoAdapter fetches payment details from the Mercado Pago API.
// Webhook notifications only carry the payment ID; the adapter retrieves the
// authoritative status and amount before any reconciliation happens.
type MercadoPagoAdapter struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewMercadoPagoAdapter creates a new Mercado Pago adapter from configuration
func NewMercadoPagoAdapter(cfg *infraconfig.GatewayConfig) (*MercadoPagoAdapter, error) {
	if cfg == nil {
		return nil, errors.New("gateway configuration is required")
	}
	if cfg.AccessToken == "" {
		return nil, errors.New("gateway access token is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = mercadoPagoAPIBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &MercadoPagoAdapter{
		baseURL:     baseURL,
		accessToken: cfg.AccessToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// mercadoPagoPayment is the subset of the Mercado Pago payment resource the
// reconciliation needs
type mercadoPagoPayment struct {
	ID                json.Number     `json:"id"`
	Status            string          `json:"status"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	ExternalReference string          `json:"external_reference"`
	DateApproved      *time.Time      `json:"date_approved"`
}

// GetPayment fetches a payment by its gateway ID
func (a *MercadoPagoAdapter) GetPayment(ctx context.Context, paymentID string) (*appbilling.GatewayPayment, error) {
	if paymentID == "" {
		return nil, errors.New("payment ID is required")
	}

	url := a.baseURL + fmt.Sprintf(mercadoPagoQueryPayPath, paymentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("mercadopago: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mercadopago: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("mercadopago: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mercadopago: payment query returned status %d: %s", resp.StatusCode, body)
	}

	var payment mercadoPagoPayment
	if err := json.Unmarshal(body, &payment); err != nil {
		return nil, fmt.Errorf("mercadopago: failed to parse response: %w", err)
	}

	id := payment.ID.String()
	if id == "" {
		id = paymentID
	}

	return &appbilling.GatewayPayment{
		ID:                id,
		Status:            payment.Status,
		TransactionAmount: payment.TransactionAmount,
		ExternalReference: payment.ExternalReference,
		DateApproved:      payment.DateApproved,
	}, nil
}
