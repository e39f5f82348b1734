package llmclient

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"postcrafter/config"
	"postcrafter/errors"
)

// AnthropicProvider implements Provider over the Anthropic Messages API.
type AnthropicProvider struct {
	client  anthropic.Client
	model   anthropic.Model
	timeout time.Duration
	logger  *zap.Logger
}

func NewAnthropicProvider(cfg *config.Config, logger *zap.Logger) *AnthropicProvider {
	return &AnthropicProvider{
		client:  anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey)),
		model:   anthropic.Model(cfg.ClaudeModel),
		timeout: cfg.LLMRequestTimeout,
		logger:  logger,
	}
}

func (p *AnthropicProvider) Model() string {
	return string(p.model)
}

// Converse sends one model call and converts the reply back into the
// package block model.
func (p *AnthropicProvider) Converse(ctx context.Context, req ConverseRequest) (*ConverseResponse, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: req.MaxTokens,
		Messages:  toMessageParams(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: req.System,
			Type: "text",
		}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toToolParams(req.Tools)
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAuto: &anthropic.ToolChoiceAutoParam{},
		}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(errors.ErrLLMCommunication, err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return nil, errors.WrapErrorf(errors.ErrLLMCommunication, "model returned an empty response")
	}

	blocks := make([]Block, 0, len(resp.Content))
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			text := block.AsText()
			blocks = append(blocks, TextBlock{Text: text.Text})
		case "tool_use":
			toolUse := block.AsToolUse()
			blocks = append(blocks, ToolUseBlock{
				ID:    toolUse.ID,
				Name:  toolUse.Name,
				Input: toolUse.Input,
			})
		default:
			p.logger.Warn("Skipping unrecognized response block",
				zap.String("block_type", string(block.Type)))
		}
	}

	return &ConverseResponse{
		Blocks:     blocks,
		StopReason: string(resp.StopReason),
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

func toMessageParams(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		content := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Blocks))
		for _, block := range msg.Blocks {
			switch b := block.(type) {
			case TextBlock:
				content = append(content, anthropic.NewTextBlock(b.Text))
			case ToolUseBlock:
				content = append(content, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    b.ID,
						Name:  b.Name,
						Input: b.Input,
					},
				})
			case ToolResultBlock:
				content = append(content, anthropic.ContentBlockParamUnion{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: b.ToolUseID,
						IsError:   anthropic.Bool(b.IsError),
						Content: []anthropic.ToolResultBlockParamContentUnion{
							{OfText: &anthropic.TextBlockParam{Text: b.Content, Type: "text"}},
						},
					},
				})
			}
		}
		out = append(out, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: content,
		})
	}
	return out
}

func toToolParams(tools []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, def := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: def.Properties,
			Required:   def.Required,
		}
		tool := anthropic.ToolUnionParamOfTool(schema, def.Name)
		if def.Description != "" && tool.OfTool != nil {
			tool.OfTool.Description = anthropic.String(def.Description)
		}
		out = append(out, tool)
	}
	return out
}
