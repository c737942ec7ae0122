package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultClaudeModel = "claude-sonnet-4-20250514"
	claudeMaxTokens    = 4096
	maxRetries         = 3
	baseDelay          = 2 * time.Second
)

type claude struct {
	client anthropic.Client
	model  string
}

func newClaude(cfg Config) (LLM, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultClaudeModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeoutOrDefault(cfg.Timeout)}),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &claude{client: anthropic.NewClient(opts...), model: model}, nil
}

func (c *claude) ChatWithTools(ctx context.Context, systemPrompt string, messages []Message, tools []Tool) (*ChatResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: claudeMaxTokens,
		Messages:  convertClaudeMessages(messages),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if len(tools) > 0 {
		params.Tools = convertClaudeTools(tools)
	}

	var resp *anthropic.Message
	var err error
	for attempt := range maxRetries {
		resp, err = c.client.Messages.New(ctx, params)
		if err == nil || !isRetryableError(err) || attempt == maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(baseDelay * time.Duration(1<<attempt)):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("claude messages: %w", err)
	}
	return parseClaudeResponse(resp), nil
}

func isRetryableError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "529") ||
		strings.Contains(errStr, "overloaded") ||
		strings.Contains(errStr, "Overloaded") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "502")
}

// convertClaudeMessages maps the conversation onto alternating Claude turns.
// Claude treats a trailing assistant turn as a prefill to continue, so text
// replies that end the conversation (written by an earlier agent) are passed
// as user-role context attributed to their author.
func convertClaudeMessages(messages []Message) []anthropic.MessageParam {
	handover := handoverStart(messages)
	var result []anthropic.MessageParam
	for i, msg := range messages {
		switch {
		case i >= handover:
			if msg.Content != "" {
				result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(attributed(msg))))
			}
		case msg.Role == RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]any
				_ = json.Unmarshal([]byte(tc.Arguments), &input)
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.ContentBlockParamOfRequestToolUseBlock(sanitizeName(tc.ID), input, tc.Name))
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewAssistantMessage(blocks...))
			}
		case msg.Role == RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(sanitizeName(msg.ToolCallID), msg.Content, false),
			))
		default:
			if msg.Content != "" {
				result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
	}
	return result
}

// handoverStart returns the index of the trailing run of plain assistant
// replies, or len(messages) when the conversation does not end with one.
func handoverStart(messages []Message) int {
	start := len(messages)
	for start > 0 {
		msg := messages[start-1]
		if msg.Role != RoleAssistant || len(msg.ToolCalls) > 0 {
			break
		}
		start--
	}
	return start
}

func attributed(msg Message) string {
	author := strings.TrimSpace(msg.Name)
	if author == "" {
		author = RoleAssistant
	}
	return "[" + author + "]: " + msg.Content
}

func convertClaudeTools(tools []Tool) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		props := make(map[string]any)
		var required []string
		if p, ok := tool.Parameters["properties"].(map[string]any); ok {
			props = p
		}
		if r, ok := tool.Parameters["required"].([]string); ok {
			required = r
		}

		schema := anthropic.ToolInputSchemaParam{Properties: props}
		if len(required) > 0 {
			schema.ExtraFields = map[string]any{"required": required}
		}
		result[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: schema,
			},
		}
	}
	return result
}

func parseClaudeResponse(resp *anthropic.Message) *ChatResponse {
	result := &ChatResponse{StopReason: string(resp.StopReason)}
	var text []string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(args),
			})
		}
	}
	result.Content = strings.Join(text, "\n")
	result.Usage = &Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}
	return result
}
