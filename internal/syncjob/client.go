package syncjob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
)

var ErrInvalidResponse = errors.New("invalid response from downstream system")

// Client calls downstream systems by name.
type Client struct {
	httpClient *http.Client
	baseURLs   map[string]string
}

func NewClient(baseURLs map[string]string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURLs:   baseURLs,
	}
}

func (c *Client) url(system, path string) (string, error) {
	base, ok := c.baseURLs[system]
	if !ok || base == "" {
		return "", domain.ErrSystemNotConfigured.WithError(fmt.Errorf("system %q", system))
	}
	return base + path, nil
}

// FetchPending lists up to limit pending items. Both a bare JSON array and
// an object wrapping it under "items" or "data" are accepted.
func (c *Client) FetchPending(ctx context.Context, system, path string, limit int) ([]map[string]any, error) {
	target, err := c.url(system, path)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		q := url.Values{"limit": []string{strconv.Itoa(limit)}}
		target += "?" + q.Encode()
	}

	body, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	var items []map[string]any
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}

	var wrapped struct {
		Items []map[string]any `json:"items"`
		Data  []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if wrapped.Items != nil {
		return wrapped.Items, nil
	}
	return wrapped.Data, nil
}

func (c *Client) Send(ctx context.Context, method, system, path string, payload any) error {
	target, err := c.url(system, path)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, method, target, payload)
	return err
}

func (c *Client) do(ctx context.Context, method, target string, payload any) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s returned status %d: %s", method, target, resp.StatusCode, bytes.TrimSpace(respBody))
	}
	return respBody, nil
}
