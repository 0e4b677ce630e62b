package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// LanguageModel is the narrow interface the consolidation and reflection
// engines depend on. LLMService is the production implementation; tests
// substitute fakes.
type LanguageModel interface {
	Request(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
}

// LLMRequest describes one chat-completion call.
type LLMRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int

	// Context tags the call site for logging and metrics:
	// purpose is "consolidation" or "reflection"; ConsolidationID is set on
	// reflection calls.
	Purpose         string
	ConsolidationID string
}

// LLMUsage reports token accounting from the provider.
type LLMUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LLMResponse is the provider's answer.
type LLMResponse struct {
	Content string
	Model   string
	Usage   LLMUsage
}

// LLMService calls an OpenAI-compatible chat completions endpoint. Requests
// are rate limited per instance and time out after 60 seconds; on timeout or
// any provider error the call fails outright, which is what keeps fabricated
// content out of the pipeline.
type LLMService struct {
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	client     *http.Client
	limiter    *rate.Limiter
	metrics    *Metrics
}

// NewLLMService creates a new language model client. maxRetries is the number
// of additional attempts after the first on transient provider failures.
func NewLLMService(baseURL, apiKey, model string, maxRetries, requestsPerMinute int) *LLMService {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 30
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &LLMService{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		maxRetries: maxRetries,
		client:     &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute),
		metrics:    GetMetrics(),
	}
}

// Request performs one chat-completion call and returns the model's content.
// Transport failures and 429/5xx answers are retried with a short backoff;
// 4xx answers and malformed bodies fail immediately.
func (s *LLMService) Request(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	if s.metrics != nil {
		s.metrics.LLMRequests.WithLabelValues(req.Purpose).Inc()
	}
	start := time.Now()

	var resp *LLMResponse
	var retryable bool
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("🔄 [LLM] Retrying (purpose=%s, attempt %d/%d): %v", req.Purpose, attempt+1, s.maxRetries+1, err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		if err = s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait aborted: %w", err)
		}
		resp, retryable, err = s.doRequest(ctx, req)
		if err == nil || !retryable {
			break
		}
	}

	if s.metrics != nil {
		s.metrics.LLMRequestLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			s.metrics.LLMErrors.WithLabelValues(req.Purpose).Inc()
		}
	}
	return resp, err
}

func (s *LLMService) doRequest(ctx context.Context, req *LLMRequest) (*LLMResponse, bool, error) {
	messages := []map[string]any{}
	if req.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]any{"role": "user", "content": req.Prompt})

	requestBody := map[string]any{
		"model":       s.model,
		"messages":    messages,
		"stream":      false,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		requestBody["max_tokens"] = req.MaxTokens
	}

	reqBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	httpReq.Header.Set("X-Request-Purpose", req.Purpose)
	if req.ConsolidationID != "" {
		httpReq.Header.Set("X-Consolidation-ID", req.ConsolidationID)
	}

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		log.Printf("⚠️ [LLM] API error (purpose=%s): %s", req.Purpose, string(body))
		retryable := httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(body))
	}

	var apiResponse struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage LLMUsage `json:"usage"`
	}

	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, false, fmt.Errorf("failed to parse API response: %w", err)
	}

	if len(apiResponse.Choices) == 0 {
		return nil, false, fmt.Errorf("no response from model")
	}

	return &LLMResponse{
		Content: apiResponse.Choices[0].Message.Content,
		Model:   apiResponse.Model,
		Usage:   apiResponse.Usage,
	}, false, nil
}
