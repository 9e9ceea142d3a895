// Package settlement предоставляет клиент для внешней системы расчётов,
// которая зеркалирует операции леджера во внешнюю сеть и возвращает подпись.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Fodi999/fodi-ledger/internal/model"
)

// ErrNotConfigured возвращается, если адрес системы расчётов не задан.
var ErrNotConfigured = errors.New("settlement client not configured")

// Client инкапсулирует HTTP-взаимодействие с системой расчётов.
type Client struct {
	baseURL    string
	httpClient *http.Client
	newBackOff func() backoff.BackOff
}

// Request описывает операцию, отправляемую на расчёт.
type Request struct {
	TransactionID string            `json:"transaction_id"`
	UserID        string            `json:"user_id"`
	Kind          string            `json:"kind"`
	Amount        uint64            `json:"amount"`
	Timestamp     time.Time         `json:"timestamp"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Result описывает ответ системы расчётов.
// Signature заполнена только для StatusCode == 200, RetryAfter только для 429.
type Result struct {
	StatusCode int
	Signature  string
	RetryAfter time.Duration
}

type settleResponse struct {
	Signature string `json:"signature"`
}

// NewClient создаёт HTTP-клиент для обращения к системе расчётов по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}
}

// NewRequest строит запрос на расчёт из операции леджера.
func NewRequest(t model.Transaction) Request {
	return Request{
		TransactionID: t.ID,
		UserID:        t.UserID,
		Kind:          string(t.Kind),
		Amount:        t.Amount,
		Timestamp:     t.Timestamp,
		Metadata:      t.Metadata,
	}
}

// Settle отправляет операцию на расчёт. Сетевые ошибки и ответы 5xx повторяются с экспоненциальной
// задержкой; идентификатор операции передаётся в Idempotency-Key, поэтому повтор безопасен.
func (c *Client) Settle(ctx context.Context, r Request) (*Result, error) {
	if c == nil || c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	url := base + "/api/settlements"

	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var result *Result
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", r.TransactionID)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		result, err = readResult(resp)
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		return nil, fmt.Errorf("settle %s: %w", r.TransactionID, err)
	}

	return result, nil
}

func readResult(resp *http.Response) (*Result, error) {
	switch {
	case resp.StatusCode == http.StatusOK:
		var body settleResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		if body.Signature == "" {
			return nil, backoff.Permanent(errors.New("empty signature in response"))
		}
		return &Result{StatusCode: resp.StatusCode, Signature: body.Signature}, nil

	case resp.StatusCode == http.StatusAccepted:
		return &Result{StatusCode: resp.StatusCode}, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return &Result{StatusCode: resp.StatusCode, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}, nil

	case resp.StatusCode >= http.StatusInternalServerError:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, backoff.Permanent(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
