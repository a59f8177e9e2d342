/**
 * @description
 * This package provides a client for the Mercado Pago REST API. It covers the
 * two interactions the escrow core needs: creating a checkout preference when
 * a payment is initiated, and fetching a payment by its provider id when a
 * webhook notification arrives (webhook payloads only carry the id, so the
 * authoritative status is always re-read from the API).
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Payment statuses returned by the Mercado Pago API.
const (
	StatusApproved  = "approved"
	StatusPending   = "pending"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
	StatusRefunded  = "refunded"
)

// Client is a client for the Mercado Pago API.
type Client struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
}

// NewClient creates a new Mercado Pago API client.
func NewClient(baseURL, accessToken string) *Client {
	return &Client{
		BaseURL:     baseURL,
		AccessToken: accessToken,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// PreferenceItem is one line item inside a checkout preference.
type PreferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id,omitempty"`
}

// PreferenceRequest is the payload for creating a checkout preference.
// ExternalReference carries our payment id so webhook notifications can be
// correlated back to the ledger row.
type PreferenceRequest struct {
	Items             []PreferenceItem       `json:"items"`
	ExternalReference string                 `json:"external_reference"`
	NotificationURL   string                 `json:"notification_url,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// PreferenceResponse is the relevant subset of the preference-creation response.
type PreferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point,omitempty"`
}

// PaymentResponse is the relevant subset of a provider payment record.
type PaymentResponse struct {
	ID                int64                  `json:"id"`
	Status            string                 `json:"status"`
	StatusDetail      string                 `json:"status_detail,omitempty"`
	ExternalReference string                 `json:"external_reference"`
	TransactionAmount float64                `json:"transaction_amount"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// ErrorResponse represents an error body from the Mercado Pago API.
type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("mercadopago api error (%d): %s", e.Status, e.Message)
}

// CreatePreference creates a checkout preference and returns its id and
// redirect URL.
func (c *Client) CreatePreference(ctx context.Context, req PreferenceRequest) (*PreferenceResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	var preference PreferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&preference); err != nil {
		return nil, fmt.Errorf("decode preference response: %w", err)
	}
	return &preference, nil
}

// GetPayment fetches a payment by its provider id.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*PaymentResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/payments/"+paymentID, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	var payment PaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	return &payment, nil
}

func decodeError(resp *http.Response) error {
	var apiErr ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Message == "" {
		return fmt.Errorf("mercadopago api error (%d): %s", resp.StatusCode, string(raw))
	}
	if apiErr.Status == 0 {
		apiErr.Status = resp.StatusCode
	}
	return &apiErr
}
