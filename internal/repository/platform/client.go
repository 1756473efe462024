// Package platform applies queued changes to the ad platform's HTTP API.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"budgetPilot/business/changequeue"
	"budgetPilot/domain"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type updateRequest struct {
	ChangeID   string `json:"change_id"`
	ChangeKind string `json:"change_kind"`
	Value      string `json:"value"`
}

// Execute sets one field of an entity. The call is a plain "set to value",
// so replaying it after an ambiguous failure is safe.
func (c *Client) Execute(ctx context.Context, change domain.PendingChange) changequeue.ExecResult {
	payload, err := json.Marshal(updateRequest{
		ChangeID:   change.ID,
		ChangeKind: change.ChangeKind,
		Value:      change.RequestedValue,
	})
	if err != nil {
		return changequeue.Terminal(fmt.Errorf("failed to marshal json payload: %w", err))
	}

	url := fmt.Sprintf("%s/%ss/%s", strings.TrimRight(c.cfg.BaseURL, "/"), change.EntityType, change.EntityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return changequeue.Terminal(err)
	}
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Idempotency-Key", change.ID)
	if c.cfg.APIKey != "" {
		req.Header.Add("Authorization", "Bearer "+c.cfg.APIKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		// timeouts and resets leave the outcome unknown
		return changequeue.Transient(err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	response := decodeBody(body)
	response["status_code"] = res.StatusCode

	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		return changequeue.OK(response)
	}

	result := classify(res.StatusCode, fmt.Errorf("platform returned %d: %s", res.StatusCode, snippet(body)))
	result.Response = response
	return result
}

func classify(status int, err error) changequeue.ExecResult {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return changequeue.Transient(err)
	case status >= 400:
		return changequeue.Terminal(err)
	}
	return changequeue.Transient(errors.Join(err, errors.New("unexpected status")))
}

func decodeBody(body []byte) map[string]any {
	out := map[string]any{}
	if len(body) == 0 {
		return out
	}
	if err := json.Unmarshal(body, &out); err != nil {
		out = map[string]any{"raw": snippet(body)}
	}
	return out
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}
