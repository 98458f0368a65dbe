package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// capabilityClient is the shared HTTP plumbing for all enrichment stages:
// one bounded timeout per call and a process-wide outbound rate limiter so a
// burst of submissions cannot flood the verification capabilities.
type capabilityClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newCapabilityClient(timeout time.Duration, perSec float64, burst int) *capabilityClient {
	return &capabilityClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

func (c *capabilityClient) postJSON(ctx context.Context, url string, reqBody, respDest any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for capability rate limiter: %w", err)
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, respDest)
}

func (c *capabilityClient) getJSON(ctx context.Context, url, bearerToken string, respDest any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for capability rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	return c.do(req, respDest)
}

func (c *capabilityClient) do(req *http.Request, respDest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("capability request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("capability returned status %d: %s", resp.StatusCode, body)
	}

	if respDest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(respDest); err != nil {
		return fmt.Errorf("decode capability response: %w", err)
	}
	return nil
}
