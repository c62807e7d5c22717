package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	LiveBaseURL = "https://live.dodopayments.com"
	TestBaseURL = "https://test.dodopayments.com"
)

// Client calls the Dodo Payments REST API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient picks the live or test API by environment ("live_mode" selects
// live; anything else is test).
func NewClient(environment, apiKey string) *Client {
	base := TestBaseURL
	if environment == "live_mode" {
		base = LiveBaseURL
	}
	return NewClientWithBaseURL(base, apiKey)
}

// NewClientWithBaseURL creates a Client against a custom endpoint (for testing).
func NewClientWithBaseURL(baseURL, apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CheckoutRequest describes a hosted checkout session.
type CheckoutRequest struct {
	ProductID  string
	UserID     string
	Email      string
	AnalysisID string // optional; tags the export product to one analysis
	ReturnURL  string
}

type cartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type checkoutBody struct {
	ProductCart []cartItem        `json:"product_cart"`
	ReturnURL   string            `json:"return_url,omitempty"`
	Customer    *checkoutCustomer `json:"customer,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type checkoutCustomer struct {
	Email string `json:"email"`
}

type checkoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// CreateCheckout opens a checkout session and returns its URL.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	body := checkoutBody{
		ProductCart: []cartItem{{ProductID: req.ProductID, Quantity: 1}},
		ReturnURL:   req.ReturnURL,
		Metadata:    map[string]string{"user_id": req.UserID},
	}
	if req.AnalysisID != "" {
		body.Metadata["analysis_id"] = req.AnalysisID
	}
	if req.Email != "" {
		body.Customer = &checkoutCustomer{Email: req.Email}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshalling checkout request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkouts", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating checkout request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending checkout request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("checkout returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var out checkoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding checkout response: %w", err)
	}
	if out.CheckoutURL == "" {
		return "", fmt.Errorf("checkout response has no checkout_url")
	}
	return out.CheckoutURL, nil
}
