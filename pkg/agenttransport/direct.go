package agenttransport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// DirectConfig configures the in-process provider-backed agent transport.
// Provider is currently only "openai".
type DirectConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// DirectTransport drives the chat/tool-call loop with an in-process model
// provider client, constructed fresh per dispatch from DirectConfig.
type DirectTransport struct {
	cfg DirectConfig
}

// NewDirectTransport builds a DirectTransport. cfg.Provider must be
// "openai"; other values fail at Dispatch time.
func NewDirectTransport(cfg DirectConfig) *DirectTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAgentCallTimeout
	}
	return &DirectTransport{cfg: cfg}
}

func (t *DirectTransport) Dispatch(ctx context.Context, req AgentRequest, handler MCPHandler) (*AgentResponse, error) {
	if t.cfg.Provider != "openai" {
		return nil, fmt.Errorf("unsupported direct provider %q", t.cfg.Provider)
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	opts := []option.RequestOption{option.WithAPIKey(t.cfg.APIKey)}
	if t.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(t.cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	messages := buildChatMessages(req)
	tools := buildChatTools(req.Tools)

	for {
		resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    t.cfg.Model,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return nil, fmt.Errorf("calling openai: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("openai returned no choices")
		}
		choice := resp.Choices[0].Message

		if len(choice.ToolCalls) == 0 {
			return &AgentResponse{
				Timestamp: time.Now(),
				Type:      MessageText,
				Content:   choice.Content,
				Metadata: ResponseMetadata{
					UsedToken: int(resp.Usage.TotalTokens),
					UsedTools: 0,
				},
			}, nil
		}

		messages = append(messages, openai.AssistantMessage(choice.Content))
		for _, call := range choice.ToolCalls {
			var args any
			if call.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
					args = call.Function.Arguments
				}
			}
			result, err := handler.HandleMCPRequest(ctx, "tools/call", map[string]any{
				"name":      call.Function.Name,
				"arguments": args,
			})
			var content string
			if err != nil {
				content = fmt.Sprintf("error: %s", err.Error())
			} else {
				raw, _ := json.Marshal(result)
				content = string(raw)
			}
			messages = append(messages, openai.ToolMessage(content, call.ID))
		}
	}
}

func buildChatMessages(req AgentRequest) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.Agent.Prompt != "" {
		out = append(out, openai.SystemMessage(req.Agent.Prompt))
	}
	for _, m := range req.Messages {
		out = append(out, openai.UserMessage(normalizeMessageContent(m)))
	}
	return out
}

// normalizeMessageContent converts message types the provider doesn't
// understand into plain text.
func normalizeMessageContent(m Message) string {
	switch m.Type {
	case MessageImage:
		text := fmt.Sprintf("[Image content]: %v", m.Content)
		if name, ok := m.Metadata["fileName"]; ok {
			text = fmt.Sprintf("%s (%v)", text, name)
		}
		return text
	case MessageURL:
		return fmt.Sprintf("[URL reference]: %v", m.Content)
	default:
		if s, ok := m.Content.(string); ok {
			return s
		}
		raw, _ := json.Marshal(m.Content)
		return string(raw)
	}
}

func buildChatTools(defs []ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, d := range defs {
		params := openai.FunctionParameters{}
		if raw, err := json.Marshal(d.Parameters); err == nil {
			_ = json.Unmarshal(raw, &params)
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: param.NewOpt(d.Description),
				Parameters:  params,
			},
		})
	}
	return out
}
