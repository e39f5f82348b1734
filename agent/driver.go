package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"postcrafter/llmclient"
	"postcrafter/post"
	"postcrafter/prompts"
)

type state int

const (
	stateInit state = iota
	stateStreaming
	stateFinalizing
	stateDone
)

// toolExecutor is one tool backend. Execute never returns an error: a
// failure becomes a degraded result payload with isError set.
type toolExecutor interface {
	Definition() llmclient.ToolDefinition
	Execute(ctx context.Context, input json.RawMessage) (payload string, isError bool)
}

// driver runs one bounded tool-using conversation. It streams turns until
// the model stops requesting tools or the forced-finalization threshold is
// reached, then makes exactly one structured-only finalization call.
type driver struct {
	provider       llmclient.Provider
	tools          []toolExecutor
	system         string
	finalSystem    string
	maxTurns       int
	forceAfter     int
	maxTokens      int64
	finalMaxTokens int64
	logger         *zap.Logger
}

// run drives the conversation from the opening user message through
// finalization and returns the final response text with turn and token
// accounting. An LLM call failure is fatal for the invocation.
func (d *driver) run(ctx context.Context, opening string) (string, post.Metadata, error) {
	meta := post.Metadata{Model: d.provider.Model()}
	messages := []llmclient.Message{llmclient.TextMessage(llmclient.RoleUser, opening)}

	defs := make([]llmclient.ToolDefinition, 0, len(d.tools))
	byName := make(map[string]toolExecutor, len(d.tools))
	for _, t := range d.tools {
		def := t.Definition()
		defs = append(defs, def)
		byName[def.Name] = t
	}

	closing := prompts.FinalInstruction()
	st := stateStreaming
	for st == stateStreaming {
		if meta.TurnsUsed >= d.forceAfter || meta.TurnsUsed >= d.maxTurns-1 {
			d.logger.Info("Turn budget nearly exhausted, forcing finalization",
				zap.Int("turns_used", meta.TurnsUsed))
			closing = prompts.ForcedFinalInstruction()
			st = stateFinalizing
			break
		}

		resp, err := d.provider.Converse(ctx, llmclient.ConverseRequest{
			System:    d.system,
			Messages:  messages,
			Tools:     defs,
			MaxTokens: d.maxTokens,
		})
		if err != nil {
			return "", meta, err
		}
		meta.TurnsUsed++
		meta.InputTokens += resp.Usage.InputTokens
		meta.OutputTokens += resp.Usage.OutputTokens

		messages = append(messages, llmclient.Message{
			Role:   llmclient.RoleAssistant,
			Blocks: resp.Blocks,
		})

		results := d.executeTools(ctx, resp.Blocks, byName)
		if resp.StopReason == "tool_use" && len(results) > 0 {
			messages = append(messages, llmclient.Message{
				Role:   llmclient.RoleUser,
				Blocks: results,
			})
			continue
		}

		st = stateFinalizing
	}

	// The finalization call is always made, whether the conversation ended
	// naturally or was cut off. No tools: the model cannot stall again.
	messages = append(messages, llmclient.TextMessage(llmclient.RoleUser, closing))
	resp, err := d.provider.Converse(ctx, llmclient.ConverseRequest{
		System:    d.finalSystem,
		Messages:  messages,
		MaxTokens: d.finalMaxTokens,
	})
	if err != nil {
		return "", meta, err
	}
	meta.TurnsUsed++
	meta.InputTokens += resp.Usage.InputTokens
	meta.OutputTokens += resp.Usage.OutputTokens

	return llmclient.TextContent(resp.Blocks), meta, nil
}

// executeTools runs every tool request in the response. Unknown tool names
// and executor failures both produce error-flagged result blocks; nothing
// here can abort the conversation.
func (d *driver) executeTools(ctx context.Context, blocks []llmclient.Block, byName map[string]toolExecutor) []llmclient.Block {
	var results []llmclient.Block
	for _, block := range blocks {
		use, ok := block.(llmclient.ToolUseBlock)
		if !ok {
			continue
		}

		executor, known := byName[use.Name]
		if !known {
			d.logger.Warn("Model requested unknown tool", zap.String("tool", use.Name))
			results = append(results, llmclient.ToolResultBlock{
				ToolUseID: use.ID,
				Content:   fmt.Sprintf(`{"error": "unknown tool %q"}`, use.Name),
				IsError:   true,
			})
			continue
		}

		payload, isError := executor.Execute(ctx, use.Input)
		results = append(results, llmclient.ToolResultBlock{
			ToolUseID: use.ID,
			Content:   payload,
			IsError:   isError,
		})
	}
	return results
}
