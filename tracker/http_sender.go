package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TrackPath is the ingestion endpoint relative to the API base URL.
const TrackPath = "/api/analytics/track"

// HTTPSender posts batches as a JSON array to the ingestion endpoint.
type HTTPSender struct {
	endpoint  string
	client    *http.Client
	userAgent string
}

func NewHTTPSender(baseURL string, client *http.Client) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSender{
		endpoint: strings.TrimRight(baseURL, "/") + TrackPath,
		client:   client,
	}
}

// WithUserAgent sets the User-Agent header sent with each batch.
func (s *HTTPSender) WithUserAgent(ua string) *HTTPSender {
	s.userAgent = ua
	return s
}

type trackResponse struct {
	Success  bool   `json:"success"`
	Inserted int    `json:"inserted"`
	Error    string `json:"error"`
}

func (s *HTTPSender) Send(ctx context.Context, batch []Payload) (Result, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return Result{}, fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("post %s: %w", s.endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	var out trackResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode != http.StatusOK || !out.Success {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return Result{}, fmt.Errorf("ingestion rejected batch: %d %s", resp.StatusCode, msg)
	}
	return Result{Inserted: out.Inserted}, nil
}
