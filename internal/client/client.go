// Package client is the HTTP client the greentrace command line tool uses to
// talk to the ledger API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/greentrace/ledger/internal/config"
	"github.com/greentrace/ledger/internal/models"
	"github.com/greentrace/ledger/internal/services"
)

// Client handles communication with the ledger API
type Client struct {
	config     *config.APIConfig
	httpClient *http.Client
}

// New creates a new ledger API client
func New(cfg *config.APIConfig) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AuthResponse represents an authentication response
type AuthResponse struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Token     string `json:"token"`
	APIKey    string `json:"api_key"`
}

// do sends one JSON request with the configured credentials and decodes the
// response into out when the status matches.
func (c *Client) do(method, path string, body interface{}, wantStatus int, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.config.URL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.AccountID != "" && c.config.APIKey != "" {
		req.Header.Set("X-Account-ID", c.config.AccountID)
		req.Header.Set("X-API-Key", c.config.APIKey)
	} else if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("request failed with status: %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// RegisterAccount creates a new API account
func (c *Client) RegisterAccount(email, password string) (*AuthResponse, error) {
	req := services.RegisterAccountRequest{Email: email, Password: password}
	var resp AuthResponse
	if err := c.do("POST", "/api/v1/auth/register", req, http.StatusCreated, &resp); err != nil {
		return nil, fmt.Errorf("failed to register account: %w", err)
	}
	return &resp, nil
}

// Login authenticates and returns a fresh token
func (c *Client) Login(email, password string) (*AuthResponse, error) {
	req := services.LoginRequest{Email: email, Password: password}
	var resp AuthResponse
	if err := c.do("POST", "/api/v1/auth/login", req, http.StatusOK, &resp); err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	return &resp, nil
}

// Deposit funds the caller's payment balance and returns the new balance
func (c *Client) Deposit(amountUSD int64) (uint64, error) {
	req := services.DepositRequest{AmountUSD: amountUSD}
	var resp struct {
		PaymentBalance uint64 `json:"payment_balance"`
	}
	if err := c.do("POST", "/api/v1/auth/deposit", req, http.StatusOK, &resp); err != nil {
		return 0, fmt.Errorf("failed to deposit: %w", err)
	}
	return resp.PaymentBalance, nil
}

// RegisterParticipant registers the caller in a supply-chain role
func (c *Client) RegisterParticipant(kind models.ParticipantKind, name, certification string) error {
	req := services.RegisterParticipantRequest{Name: name, Certification: certification}
	path := "/api/v1/participants/manufacturer"
	if kind == models.KindLogisticsProvider {
		path = "/api/v1/participants/logistics"
	}
	if err := c.do("POST", path, req, http.StatusCreated, nil); err != nil {
		return fmt.Errorf("failed to register participant: %w", err)
	}
	return nil
}

// RegisterProduct registers a product and returns its ledger id
func (c *Client) RegisterProduct(req services.RegisterProductRequest) (uint64, error) {
	var resp struct {
		ProductID uint64 `json:"product_id"`
	}
	if err := c.do("POST", "/api/v1/products", req, http.StatusCreated, &resp); err != nil {
		return 0, fmt.Errorf("failed to register product: %w", err)
	}
	return resp.ProductID, nil
}

// SubmitLogistics files a logistics carbon claim against a product
func (c *Client) SubmitLogistics(productID uint64, amount uint64, evidence string) error {
	req := services.SubmitLogisticsRequest{Amount: amount, Evidence: evidence}
	path := fmt.Sprintf("/api/v1/products/%d/logistics", productID)
	if err := c.do("POST", path, req, http.StatusCreated, nil); err != nil {
		return fmt.Errorf("failed to submit logistics carbon: %w", err)
	}
	return nil
}

// Product fetches a product by id
func (c *Client) Product(id uint64) (*models.Product, error) {
	var product models.Product
	path := fmt.Sprintf("/api/v1/products/%d", id)
	if err := c.do("GET", path, nil, http.StatusOK, &product); err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

// ProductByQR resolves a scanned label key to its product
func (c *Client) ProductByQR(key string) (*models.Product, error) {
	var product models.Product
	if err := c.do("GET", "/api/v1/qr/"+key, nil, http.StatusOK, &product); err != nil {
		return nil, fmt.Errorf("failed to resolve qr key: %w", err)
	}
	return &product, nil
}

// SetBudget overwrites the caller's monthly carbon budget
func (c *Client) SetBudget(monthlyBudget uint64) error {
	req := services.SetBudgetRequest{MonthlyBudget: monthlyBudget}
	if err := c.do("POST", "/api/v1/budget", req, http.StatusOK, nil); err != nil {
		return fmt.Errorf("failed to set budget: %w", err)
	}
	return nil
}

// RecordPurchase charges a product's carbon to the caller's budget
func (c *Client) RecordPurchase(productID uint64) (uint64, error) {
	req := services.RecordPurchaseRequest{ProductID: productID}
	var resp struct {
		ChargedCarbon uint64 `json:"charged_carbon"`
	}
	if err := c.do("POST", "/api/v1/purchases", req, http.StatusOK, &resp); err != nil {
		return 0, fmt.Errorf("failed to record purchase: %w", err)
	}
	return resp.ChargedCarbon, nil
}

// PurchaseOffsets buys carbon credits
func (c *Client) PurchaseOffsets(amount uint64) (*services.OffsetReceipt, error) {
	req := services.PurchaseOffsetsRequest{Amount: amount}
	var receipt services.OffsetReceipt
	if err := c.do("POST", "/api/v1/offsets", req, http.StatusOK, &receipt); err != nil {
		return nil, fmt.Errorf("failed to purchase offsets: %w", err)
	}
	return &receipt, nil
}

// Budget fetches a consumer budget
func (c *Client) Budget(identity string) (*models.ConsumerBudget, error) {
	var budget models.ConsumerBudget
	if err := c.do("GET", "/api/v1/budgets/"+identity, nil, http.StatusOK, &budget); err != nil {
		return nil, fmt.Errorf("failed to get budget: %w", err)
	}
	return &budget, nil
}

// Status fetches global ledger status
func (c *Client) Status() (*services.LedgerStatus, error) {
	var status services.LedgerStatus
	if err := c.do("GET", "/api/v1/status", nil, http.StatusOK, &status); err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return &status, nil
}
