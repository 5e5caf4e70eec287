package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// RewriteRequest carries one clinic's current content into the generation API
type RewriteRequest struct {
	Title           string `json:"title"`
	Content         string `json:"content"`
	TargetWordCount int    `json:"target_word_count"`
	Model           string `json:"model"`
}

// RewriteResult is the generation API's answer for one rewrite call
type RewriteResult struct {
	Text         string  `json:"text"`
	WordCount    int     `json:"word_count"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
	Valid        bool    `json:"valid"`
}

// Client represents the content generation API client
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	requestChan chan struct{}
	ticker      *time.Ticker
}

// New creates a generation API client with rate limiting. The upstream API
// enforces a per-minute quota, so requests wait for a token before going out.
func New(apiKey, baseURL string, requestsPerMinute int, timeout time.Duration) *Client {
	if requestsPerMinute < 2 {
		requestsPerMinute = 2
	}
	interval := time.Minute / time.Duration(requestsPerMinute-1)

	log.Info().
		Int("requests_per_minute", requestsPerMinute).
		Dur("request_interval", interval).
		Str("base_url", baseURL).
		Msg("Initializing generation API client")

	ticker := time.NewTicker(interval)

	// Buffer of 1 allows one immediate request
	requestChan := make(chan struct{}, 1)
	requestChan <- struct{}{}

	go func() {
		for range ticker.C {
			select {
			case requestChan <- struct{}{}:
			default:
				// Buffer full, skip this token
			}
		}
	}()

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		apiKey:      apiKey,
		baseURL:     baseURL,
		requestChan: requestChan,
		ticker:      ticker,
	}
}

// Rewrite asks the generation API to rewrite one clinic description toward
// the target word count. Blocks on the rate limiter before sending.
func (c *Client) Rewrite(ctx context.Context, req RewriteRequest) (*RewriteResult, error) {
	select {
	case <-c.requestChan:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error encoding rewrite request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/rewrite", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("Generation request failed")
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading generation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error().
			Int("status", resp.StatusCode).
			Str("url", url).
			Dur("duration", time.Since(start)).
			Msg("Generation API returned non-200")
		return nil, fmt.Errorf("generation API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var result RewriteResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("error decoding generation response: %w", err)
	}

	log.Debug().
		Str("model", req.Model).
		Int("input_tokens", result.InputTokens).
		Int("output_tokens", result.OutputTokens).
		Bool("valid", result.Valid).
		Dur("duration", time.Since(start)).
		Msg("Generation call completed")

	return &result, nil
}

// Close stops the rate limiter ticker
func (c *Client) Close() {
	c.ticker.Stop()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
