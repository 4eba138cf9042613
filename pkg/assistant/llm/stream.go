// Package llm – stream.go implements the streaming variant of chat
// completions using the OpenAI SSE format (data: lines, [DONE] sentinel,
// tool-call deltas accumulated by index).
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// streamResponse is a single SSE chunk in the OpenAI streaming format.
type streamResponse struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// CompleteStream sends a streaming chat completion request, invoking onDelta
// for each text fragment as it arrives. Returns the fully accumulated
// response, including any tool calls assembled from deltas.
func (c *Client) CompleteStream(ctx context.Context, messages []Message, tools []ToolDefinition, onDelta func(string)) (*Response, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("API key not configured. Run 'assistant setup' or set LIFE_API_KEY")
	}

	reqBody := chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	}
	if len(tools) > 0 {
		reqBody.Tools = tools
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("sending streaming chat completion",
		"model", c.model,
		"messages", len(messages),
		"tools", len(tools),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned %d: %s", resp.StatusCode, truncate(string(body), 500))
	}

	var contentBuilder strings.Builder
	toolCallsAccum := make(map[int]*ToolCall) // index -> accumulated tool call
	finishReason := ""

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024) // 64KB initial, 1MB max line

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var chunk streamResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			c.logger.Debug("failed to parse SSE chunk, skipping", "payload", truncate(payload, 100), "error", err)
			continue
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				contentBuilder.WriteString(choice.Delta.Content)
				if onDelta != nil {
					onDelta(choice.Delta.Content)
				}
			}

			for _, tc := range choice.Delta.ToolCalls {
				idx := tc.Index
				acc, ok := toolCallsAccum[idx]
				if !ok {
					acc = &ToolCall{Type: "function"}
					toolCallsAccum[idx] = acc
				}
				if tc.ID != "" {
					acc.ID = tc.ID
				}
				if tc.Function.Name != "" {
					acc.Function.Name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					acc.Function.Arguments += tc.Function.Arguments
				}
			}

			if choice.FinishReason != nil && *choice.FinishReason != "" {
				finishReason = *choice.FinishReason
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}

	content := strings.TrimSpace(contentBuilder.String())

	// Build ordered tool calls from the accumulated map (by index).
	indices := make([]int, 0, len(toolCallsAccum))
	for k := range toolCallsAccum {
		indices = append(indices, k)
	}
	sort.Ints(indices)
	toolCalls := make([]ToolCall, 0, len(indices))
	for _, i := range indices {
		if acc, ok := toolCallsAccum[i]; ok && (acc.ID != "" || acc.Function.Name != "") {
			toolCalls = append(toolCalls, *acc)
		}
	}

	duration := time.Since(start)
	c.logger.Info("streaming chat completion done",
		"model", c.model,
		"duration_ms", duration.Milliseconds(),
		"finish_reason", finishReason,
		"tool_calls", len(toolCalls),
	)

	return &Response{
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
	}, nil
}
