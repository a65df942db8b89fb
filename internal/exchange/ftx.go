package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/copy-trader-service/internal/entity"
	"github.com/sirupsen/logrus"
)

const defaultRestURL = "https://ftx.com"

// Client is an authenticated FTX REST client bound to a single account
// (optionally a subaccount). It implements entity.TradingClient.
type Client struct {
	apiKey     string
	apiSecret  string
	subaccount string
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(baseURL, apiKey, apiSecret, subaccount string, opts ...ClientOption) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultRestURL
	}

	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		apiSecret:  strings.TrimSpace(apiSecret),
		subaccount: strings.TrimSpace(subaccount),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

type placeOrderBody struct {
	Market     string           `json:"market"`
	Side       entity.OrderSide `json:"side"`
	Price      *string          `json:"price"`
	Type       entity.OrderType `json:"type"`
	Size       string           `json:"size"`
	ReduceOnly bool             `json:"reduceOnly"`
	IOC        bool             `json:"ioc"`
	PostOnly   bool             `json:"postOnly"`
	ClientID   string           `json:"clientId,omitempty"`
}

func (c *Client) PlaceOrder(ctx context.Context, params entity.PlaceOrderParams) (*entity.OrderEvent, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if c.apiKey == "" || c.apiSecret == "" {
		return nil, fmt.Errorf("ftx credentials are missing")
	}

	body := placeOrderBody{
		Market:     params.Market,
		Side:       params.Side,
		Type:       params.Type,
		Size:       params.Size.String(),
		ReduceOnly: params.ReduceOnly,
		IOC:        params.IOC,
		PostOnly:   params.PostOnly,
		ClientID:   params.ClientID,
	}
	if params.Price != nil {
		price := params.Price.String()
		body.Price = &price
	}

	var placed entity.OrderEvent
	err := c.signedRequest(ctx, http.MethodPost, "/api/orders", body, &placed)
	if err != nil {
		return nil, err
	}

	return &placed, nil
}

func (c *Client) CancelOrderByClientID(ctx context.Context, clientID string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return fmt.Errorf("client order id is required for cancel")
	}

	path := "/api/orders/by_client_id/" + url.PathEscape(clientID)
	return c.signedRequest(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) GetOpenOrders(ctx context.Context) ([]entity.OrderEvent, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var orders []entity.OrderEvent
	err := c.signedRequest(ctx, http.MethodGet, "/api/orders", nil, &orders)
	if err != nil {
		return nil, err
	}

	return orders, nil
}

// signedRequest issues one authenticated call and decodes the FTX envelope
// {success, result, error} into out. Exchange rejections come back as
// *entity.APIError so callers can tell them apart from connectivity failures.
func (c *Client) signedRequest(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = encoded
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature := SignRequest(c.apiSecret, timestamp, method, path, payload)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("FTX-KEY", c.apiKey)
	req.Header.Set("FTX-SIGN", signature)
	req.Header.Set("FTX-TS", timestamp)
	if c.subaccount != "" {
		req.Header.Set("FTX-SUBACCOUNT", url.QueryEscape(c.subaccount))
	}
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope struct {
		Success bool            `json:"success"`
		Result  json.RawMessage `json:"result"`
		Error   string          `json:"error"`
	}

	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("ftx response parse failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	if resp.StatusCode >= http.StatusBadRequest || !envelope.Success {
		errMsg := envelope.Error
		if errMsg == "" {
			errMsg = "unknown error"
		}

		logrus.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}).Debugf("ftx request rejected: %s", errMsg)

		return &entity.APIError{StatusCode: resp.StatusCode, Message: errMsg}
	}

	if out == nil || len(envelope.Result) == 0 {
		return nil
	}

	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("ftx result parse failed: %w", err)
	}

	return nil
}

// SignRequest computes the FTX request signature:
// HMAC-SHA256(secret, timestamp + method + path + body) hex encoded.
func SignRequest(secret, timestamp, method, path string, body []byte) string {
	return signPayload(secret, timestamp+method+path+string(body))
}

func signPayload(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
