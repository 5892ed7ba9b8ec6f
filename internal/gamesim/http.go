package gamesim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	service "github.com/okian/mafiabot/internal/app"
	"github.com/okian/mafiabot/pkg/logger"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Get performs a GET request against path and returns the status and body.
func (c *HTTPClient) Get(ctx context.Context, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// checkHealth verifies the moderator is serving.
func (c *HTTPClient) checkHealth(ctx context.Context) error {
	code, _, err := c.Get(ctx, "/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to moderator: %w", err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, code)
	}
	return nil
}

// tally fetches /tally. ok is false while the moderator is not started.
func (c *HTTPClient) tally(ctx context.Context) (view service.TallyView, ok bool, err error) {
	code, body, err := c.Get(ctx, "/tally")
	if err != nil {
		return view, false, err
	}
	switch code {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		return view, false, nil
	default:
		return view, false, fmt.Errorf("unexpected /tally status %d: %s", code, body)
	}
	if err := json.Unmarshal(body, &view); err != nil {
		return view, false, fmt.Errorf("failed to decode tally: %w", err)
	}
	return view, true, nil
}
