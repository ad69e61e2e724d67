// Package client holds the HTTP gateways to the sibling microservices the
// order service depends on: inventory, tables, clients, promotions, email and
// receipt generation. Each gateway is an interface next to its HTTP
// implementation so services can be tested with func-field mocks.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/casaluna/order-service/internal/apperr"
)

type httpClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) httpClient {
	return httpClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// doJSON performs a request against the sibling service, forwarding the
// caller's bearer token, and decodes a JSON body into out when out is non-nil.
func (c *httpClient) doJSON(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return apperr.Upstream(err, "service at %s is unreachable", c.baseURL)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperr.NotFound("resource not found at %s%s", c.baseURL, path)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperr.Upstream(nil, "service at %s rejected the forwarded credentials", c.baseURL)
	case resp.StatusCode >= 300:
		return apperr.Upstream(nil, "service at %s returned status %d", c.baseURL, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Upstream(err, "service at %s returned an unreadable body", c.baseURL)
	}
	return nil
}
