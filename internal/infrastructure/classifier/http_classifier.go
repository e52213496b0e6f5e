// Package classifier talks to the external content moderation model server.
package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"imagevault/internal/config"
	"imagevault/internal/domain/image"
)

// Client is an HTTP client for the detection service. Transport failures,
// timeouts and 5xx responses all surface as image.ErrClassifierUnavailable so
// the domain layer can apply its fail-open/fail-closed policy uniformly.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

type detectRequest struct {
	Image string `json:"image"` // base64-encoded bytes
}

type detectResponse struct {
	Detections []struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"detections"`
}

// NewClient creates a detection service client.
func NewClient(cfg *config.Config, log zerolog.Logger) *Client {
	timeout := cfg.ScreenTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL: cfg.ScreenServiceURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log.With().Str("component", "classifier-client").Logger(),
	}
}

// Classify submits image bytes for detection.
func (c *Client) Classify(ctx context.Context, data []byte) ([]image.Detection, error) {
	reqBody := detectRequest{
		Image: base64.StdEncoding.EncodeToString(data),
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/detect", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w: %w", err, image.ErrClassifierUnavailable)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("endpoint", c.baseURL+"/v1/detect").
			Msg("detection request failed")
		return nil, fmt.Errorf("detection service returned status %d: %w", resp.StatusCode, image.ErrClassifierUnavailable)
	}

	var parsed detectResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	detections := make([]image.Detection, 0, len(parsed.Detections))
	for _, d := range parsed.Detections {
		detections = append(detections, image.Detection{Label: d.Label, Score: d.Score})
	}

	c.log.Debug().
		Int("detections", len(detections)).
		Msg("detection response")

	return detections, nil
}

// Health checks the health of the detection service.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}
