package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-2.0-flash"
	defaultTimeout       = 60 * time.Second
	defaultMaxRetries    = 3
	defaultBaseBackoff   = 500 * time.Millisecond
)

// GeminiConfig holds configuration for the Gemini provider.
type GeminiConfig struct {
	// BaseURL is the API endpoint. Overridable for tests and proxies.
	BaseURL string

	// Model is the generation model identifier.
	Model string

	// APIKey authenticates requests. Required.
	APIKey string

	// MaxTokens caps the generated answer length.
	MaxTokens int

	// Temperature controls sampling randomness.
	Temperature float64

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// RequestsPerMinute rate-limits outbound calls.
	RequestsPerMinute int
}

// GeminiProvider generates answers via the Gemini generateContent API.
type GeminiProvider struct {
	config      GeminiConfig
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
}

// NewGeminiProvider creates a Gemini generation provider.
func NewGeminiProvider(config GeminiConfig) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: API key required", ErrInvalidConfig)
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultGeminiBaseURL
	}
	if config.Model == "" {
		config.Model = defaultGeminiModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}

	return &GeminiProvider{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(float64(config.RequestsPerMinute)/60.0), 1),
		maxRetries:  defaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens"`
	Temperature     float64 `json:"temperature"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate produces one completion for the prompt, retrying transient
// failures with exponential backoff.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	req := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: g.config.MaxTokens,
			Temperature:     g.config.Temperature,
		},
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.baseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		response, err := g.doRequest(ctx, req)
		if err == nil {
			return response, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (g *GeminiProvider) doRequest(ctx context.Context, req geminiRequest) (string, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.config.BaseURL, g.config.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", g.config.APIKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return "", &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp geminiError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("%w: API error (%d): %s", ErrGenerationFailed, resp.StatusCode, errResp.Error.Message)
		}
		return "", fmt.Errorf("%w: API error (%d): %s", ErrGenerationFailed, resp.StatusCode, string(body))
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty response from API", ErrGenerationFailed)
	}

	var sb strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// Ensure GeminiProvider implements Provider.
var _ Provider = (*GeminiProvider)(nil)
