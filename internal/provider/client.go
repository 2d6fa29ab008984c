package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/openvest/brokerlink/internal/logger"
	"github.com/openvest/brokerlink/internal/monitoring"
)

// Client is the single capability interface for the aggregation provider.
// Every service in this module depends on this abstraction, never on the
// concrete HTTP client, so tests substitute a double.
type Client interface {
	CheckStatus(ctx context.Context) (*APIStatus, error)
	RegisterUser(ctx context.Context, userID string) (*RegisteredUser, error)
	DeleteUser(ctx context.Context, userID string) error
	ListUsers(ctx context.Context, userID string) ([]RegisteredUser, error)
	LoginUser(ctx context.Context, req LoginRequest) (*LoginRedirect, error)
	ListAccounts(ctx context.Context, userID, userSecret string) ([]Account, error)
	ListPositions(ctx context.Context, userID, userSecret, accountID string) ([]Position, error)
	ListBalances(ctx context.Context, userID, userSecret, accountID string) ([]Balance, error)
	RefreshAuthorization(ctx context.Context, userID, userSecret, authorizationID string) error
	RemoveAuthorization(ctx context.Context, userID, userSecret, authorizationID string) error
	DeleteAccount(ctx context.Context, userID, userSecret, accountID string) error
}

// Config holds the provider API credentials and endpoint.
type Config struct {
	BaseURL     string
	ClientID    string
	ConsumerKey string
	Timeout     time.Duration
}

// Configured reports whether API credentials are present.
func (c Config) Configured() bool {
	return c.ClientID != "" && c.ConsumerKey != ""
}

// SnapTradeClient is the HTTP implementation of Client. Requests are
// authenticated with the clientId and a timestamped HMAC-SHA256 signature
// computed with the consumer key.
type SnapTradeClient struct {
	baseURL     string
	clientID    string
	consumerKey []byte
	httpClient  *http.Client
	logger      *logger.Logger
	metrics     *monitoring.Metrics
}

// NewClient builds the HTTP provider client. metrics may be nil.
func NewClient(cfg Config, log *logger.Logger, metrics *monitoring.Metrics) *SnapTradeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.snaptrade.com/api/v1"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SnapTradeClient{
		baseURL:     baseURL,
		clientID:    cfg.ClientID,
		consumerKey: []byte(cfg.ConsumerKey),
		httpClient:  &http.Client{Timeout: timeout},
		logger:      log,
		metrics:     metrics,
	}
}

func (c *SnapTradeClient) CheckStatus(ctx context.Context) (*APIStatus, error) {
	var status APIStatus
	if err := c.do(ctx, http.MethodGet, "/", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *SnapTradeClient) RegisterUser(ctx context.Context, userID string) (*RegisteredUser, error) {
	body := map[string]string{"userId": userID}
	var user RegisteredUser
	if err := c.do(ctx, http.MethodPost, "/snapTrade/registerUser", nil, body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *SnapTradeClient) DeleteUser(ctx context.Context, userID string) error {
	query := url.Values{"userId": {userID}}
	return c.do(ctx, http.MethodDelete, "/snapTrade/deleteUser", query, nil, nil)
}

func (c *SnapTradeClient) ListUsers(ctx context.Context, userID string) ([]RegisteredUser, error) {
	query := url.Values{"userId": {userID}}
	var users []RegisteredUser
	if err := c.do(ctx, http.MethodGet, "/snapTrade/listUsers", query, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *SnapTradeClient) LoginUser(ctx context.Context, req LoginRequest) (*LoginRedirect, error) {
	query := url.Values{
		"userId":     {req.UserID},
		"userSecret": {req.UserSecret},
	}

	body := map[string]interface{}{
		"immediateRedirect": req.ImmediateRedirect,
	}
	if req.Broker != "" {
		body["broker"] = req.Broker
	}
	if req.CustomRedirect != "" {
		body["customRedirect"] = req.CustomRedirect
	}
	if req.ConnectionPortalVersion != "" {
		body["connectionPortalVersion"] = req.ConnectionPortalVersion
	}

	var redirect LoginRedirect
	if err := c.do(ctx, http.MethodPost, "/snapTrade/login", query, body, &redirect); err != nil {
		return nil, err
	}
	return &redirect, nil
}

func (c *SnapTradeClient) ListAccounts(ctx context.Context, userID, userSecret string) ([]Account, error) {
	query := userQuery(userID, userSecret)
	var accounts []Account
	if err := c.do(ctx, http.MethodGet, "/accounts", query, nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (c *SnapTradeClient) ListPositions(ctx context.Context, userID, userSecret, accountID string) ([]Position, error) {
	query := userQuery(userID, userSecret)
	path := fmt.Sprintf("/accounts/%s/positions", accountID)
	var positions []Position
	if err := c.do(ctx, http.MethodGet, path, query, nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func (c *SnapTradeClient) ListBalances(ctx context.Context, userID, userSecret, accountID string) ([]Balance, error) {
	query := userQuery(userID, userSecret)
	path := fmt.Sprintf("/accounts/%s/balances", accountID)
	var balances []Balance
	if err := c.do(ctx, http.MethodGet, path, query, nil, &balances); err != nil {
		return nil, err
	}
	return balances, nil
}

func (c *SnapTradeClient) RefreshAuthorization(ctx context.Context, userID, userSecret, authorizationID string) error {
	query := userQuery(userID, userSecret)
	path := fmt.Sprintf("/authorizations/%s/refresh", authorizationID)
	return c.do(ctx, http.MethodPost, path, query, nil, nil)
}

func (c *SnapTradeClient) RemoveAuthorization(ctx context.Context, userID, userSecret, authorizationID string) error {
	query := userQuery(userID, userSecret)
	path := fmt.Sprintf("/authorizations/%s", authorizationID)
	return c.do(ctx, http.MethodDelete, path, query, nil, nil)
}

func (c *SnapTradeClient) DeleteAccount(ctx context.Context, userID, userSecret, accountID string) error {
	query := userQuery(userID, userSecret)
	path := fmt.Sprintf("/accounts/%s", accountID)
	return c.do(ctx, http.MethodDelete, path, query, nil, nil)
}

func userQuery(userID, userSecret string) url.Values {
	return url.Values{
		"userId":     {userID},
		"userSecret": {userSecret},
	}
}

func (c *SnapTradeClient) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	start := time.Now()
	status, err := c.doRequest(ctx, method, path, query, body, out)
	duration := time.Since(start)

	operation := method + " " + path
	if c.logger != nil {
		c.logger.LogProviderRequest(operation, duration, err)
	}
	if c.metrics != nil {
		c.metrics.ObserveProviderRequest(operation, status, duration)
	}
	return err
}

func (c *SnapTradeClient) doRequest(ctx context.Context, method, path string, query url.Values, body, out interface{}) (int, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("clientId", c.clientID)
	query.Set("timestamp", strconv.FormatInt(time.Now().Unix(), 10))

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request body: %w", err)
		}
	}

	reqURL := c.baseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Signature", c.sign(path, query, bodyBytes))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return resp.StatusCode, decodeError(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

// sign computes the request signature the provider expects: base64 HMAC-SHA256
// over the canonical JSON of content, path, and query string.
func (c *SnapTradeClient) sign(path string, query url.Values, body []byte) string {
	var content interface{}
	if len(body) > 0 {
		content = json.RawMessage(body)
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"content": content,
		"path":    "/api/v1" + path,
		"query":   query.Encode(),
	})

	mac := hmac.New(sha256.New, c.consumerKey)
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func decodeError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Detail == "" {
		if apiErr.Detail == "" {
			apiErr.Detail = string(body)
		}
	}
	apiErr.StatusCode = statusCode
	return apiErr
}
