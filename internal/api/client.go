package api

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

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusError is a non-2xx answer other than 401 and 404.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d", e.Code)
}

type response struct {
	status int
	body   []byte
}

// Client talks to the storefront backend over HTTP/JSON.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker[response]
	sfg        singleflight.Group
	logger     *zap.Logger
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// Transport defaults to http.DefaultTransport; it is always wrapped by otelhttp.
	Transport http.RoundTripper
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		breaker: circuitbreaker.New[response](circuitbreaker.Settings{
			Name:      "backend",
			IgnoreErr: isAnswer,
		}, logger),
		logger: logger,
	}, nil
}

// isAnswer keeps 4xx replies from tripping the breaker.
func isAnswer(err error) bool {
	var se *StatusError
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) ||
		(errors.As(err, &se) && se.Code < 500)
}

// do sends the request and classifies the status. body is returned even for
// errors so callers can read the backend's message.
func (c *Client) do(ctx context.Context, method, path string, in any, token string) ([]byte, error) {
	res, err := c.breaker.Execute(func() (response, error) {
		var reader io.Reader
		if in != nil {
			data, err := json.Marshal(in)
			if err != nil {
				return response{}, fmt.Errorf("failed to encode request: %w", err)
			}
			reader = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return response{}, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return response{}, fmt.Errorf("%s %s failed: %w", method, path, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return response{}, fmt.Errorf("failed to read response: %w", err)
		}
		r := response{status: resp.StatusCode, body: body}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return r, ErrNotFound
		case resp.StatusCode == http.StatusUnauthorized:
			return r, ErrUnauthorized
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return r, &StatusError{Code: resp.StatusCode, Body: body}
		}
		return r, nil
	})
	if err != nil {
		c.logger.Debug("backend call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
	}
	return res.body, err
}

// Health pings the backend so the payment call does not hit a cold start.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil, "")
	return err
}

// Shop fetches the live item shop and returns at most limit preview items.
// Concurrent callers share one request.
func (c *Client) Shop(ctx context.Context, limit int) ([]catalog.ShopItem, error) {
	v, err, _ := c.sfg.Do("shop", func() (interface{}, error) {
		return c.do(ctx, http.MethodGet, "/api/shop", nil, "")
	})
	if err != nil {
		return nil, err
	}
	return catalog.ParseShop(v.([]byte), limit)
}

// ChatHistory returns the full message history of an order. ErrNotFound means
// the backend no longer knows the order.
func (c *Client) ChatHistory(ctx context.Context, orderID string) ([]domain.ChatMessage, error) {
	v, err, _ := c.sfg.Do("chat:"+orderID, func() (interface{}, error) {
		return c.do(ctx, http.MethodGet, "/api/chat/history/"+url.PathEscape(orderID), nil, "")
	})
	if err != nil {
		return nil, err
	}
	return decodeMessages(v.([]byte))
}

type sendMessageRequest struct {
	OrderID string        `json:"order_id"`
	Content string        `json:"content"`
	Sender  domain.Sender `json:"sender"`
}

// SendMessage posts a chat message. A history request already in flight for
// the order predates the message, so later ChatHistory calls start a new one.
func (c *Client) SendMessage(ctx context.Context, orderID, content string, sender domain.Sender) error {
	_, err := c.do(ctx, http.MethodPost, "/api/chat/send", sendMessageRequest{
		OrderID: orderID,
		Content: content,
		Sender:  sender,
	}, "")
	if err != nil {
		return err
	}
	c.sfg.Forget("chat:" + orderID)
	return nil
}

// UserOrders lists the orders of the user owning token.
func (c *Client) UserOrders(ctx context.Context, token string) ([]domain.OrderRecord, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/user/orders", nil, token)
	if err != nil {
		return nil, err
	}
	return decodeOrders(body)
}
