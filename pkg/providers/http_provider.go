// larkclaw - Feishu-first personal AI agent
// License: MIT

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/larkclaw/larkclaw/pkg/logger"
)

const maxRetries = 3

// HTTPProvider talks to any OpenAI-compatible chat-completions endpoint.
type HTTPProvider struct {
	apiKey     string
	apiBase    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

func NewHTTPProvider(apiKey, apiBase, model string, maxTokens int) *HTTPProvider {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &HTTPProvider{
		apiKey:    apiKey,
		apiBase:   strings.TrimSuffix(apiBase, "/"),
		model:     model,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: 0,
		},
	}
}

// Chat sends the message list and tool schema to the completions endpoint.
// Messages at cacheIndices are marked cache-eligible before sending. Failures
// come back as a synthetic response with FinishReason "error".
func (p *HTTPProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, cacheIndices []int) *LLMResponse {
	resp, err := p.chat(ctx, messages, tools, cacheIndices)
	if err != nil {
		logger.ErrorCF("provider", "LLM call failed", map[string]interface{}{
			"model": p.model,
			"error": err.Error(),
		})
		return &LLMResponse{
			Content:      fmt.Sprintf("Error: %v", err),
			FinishReason: "error",
		}
	}
	return resp
}

func (p *HTTPProvider) chat(ctx context.Context, messages []Message, tools []ToolDefinition, cacheIndices []int) (*LLMResponse, error) {
	if p.apiBase == "" {
		return nil, fmt.Errorf("API base not configured")
	}

	requestBody := map[string]any{
		"model":      p.model,
		"messages":   ApplyCache(messages, cacheIndices),
		"max_tokens": p.maxTokens,
	}
	if len(tools) > 0 {
		requestBody["tools"] = tools
		requestBody["tool_choice"] = "auto"
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var body []byte
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to send request: %w", err)
		}

		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			return parseResponse(body)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries {
			delay := parseRetryDelay(resp.Header.Get("Retry-After"))
			logger.WarnCF("provider", "Rate limited (429), retrying", map[string]interface{}{
				"delay":   delay.String(),
				"attempt": attempt + 1,
			})
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		return nil, fmt.Errorf("API error: %s", string(body))
	}

	return nil, fmt.Errorf("API error after %d retries: %s", maxRetries, string(body))
}

func parseResponse(body []byte) (*LLMResponse, error) {
	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Type     string `json:"type"`
					Function *struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(apiResponse.Choices) == 0 {
		return &LLMResponse{Content: "", FinishReason: "stop"}, nil
	}

	choice := apiResponse.Choices[0]

	toolCalls := make([]ToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		if tc.Function == nil {
			continue
		}
		// Malformed argument payloads decode to an empty map so a bad tool
		// call never fails the round.
		arguments := make(map[string]any)
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &arguments); err != nil {
				arguments = map[string]any{}
			}
		}
		toolCalls = append(toolCalls, ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: &FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
			Name:      tc.Function.Name,
			Arguments: arguments,
		})
	}

	finishReason := choice.FinishReason
	if finishReason == "" {
		finishReason = "stop"
	}

	return &LLMResponse{
		Content:      stripThinkTags(choice.Message.Content),
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
	}, nil
}

// stripThinkTags removes <think>...</think> blocks from model output. Some
// reasoning models embed their chain-of-thought inline in the content field.
func stripThinkTags(s string) string {
	const openTag = "<think>"
	const closeTag = "</think>"

	result := strings.Builder{}
	rest := s
	for {
		start := strings.Index(rest, openTag)
		if start == -1 {
			result.WriteString(rest)
			break
		}
		result.WriteString(rest[:start])
		end := strings.Index(rest[start:], closeTag)
		if end == -1 {
			// Unclosed tag: drop the rest to avoid leaking partial reasoning.
			break
		}
		rest = rest[start+end+len(closeTag):]
	}
	// Strip an orphaned </think> tag and any leaked reasoning before it.
	out := result.String()
	if idx := strings.Index(out, closeTag); idx != -1 {
		out = out[idx+len(closeTag):]
	}
	return strings.TrimSpace(out)
}

// ApplyCache returns a copy of messages with cache_control markers on the
// given indices. String contents are converted to single-part lists; list
// contents get the marker on their last part.
func ApplyCache(messages []Message, cacheIndices []int) []Message {
	if len(cacheIndices) == 0 {
		return messages
	}

	marked := make(map[int]bool, len(cacheIndices))
	for _, i := range cacheIndices {
		if i >= 0 && i < len(messages) {
			marked[i] = true
		}
	}

	result := make([]Message, len(messages))
	copy(result, messages)
	for i := range result {
		if !marked[i] {
			continue
		}
		switch content := result[i].Content.(type) {
		case string:
			result[i].Content = []ContentPart{{
				Type:         "text",
				Text:         content,
				CacheControl: &CacheControl{Type: "ephemeral"},
			}}
		case []ContentPart:
			if len(content) == 0 {
				continue
			}
			parts := make([]ContentPart, len(content))
			copy(parts, content)
			last := parts[len(parts)-1]
			last.CacheControl = &CacheControl{Type: "ephemeral"}
			parts[len(parts)-1] = last
			result[i].Content = parts
		}
	}
	return result
}

// parseRetryDelay extracts the retry delay from a Retry-After header.
func parseRetryDelay(retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return 30 * time.Second
}
