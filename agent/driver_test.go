package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"postcrafter/config"
	"postcrafter/llmclient"
	"postcrafter/prompts"
	"postcrafter/tools"
)

// scriptedProvider replays a response script and records every request.
type scriptedProvider struct {
	script   func(call int, req llmclient.ConverseRequest) (*llmclient.ConverseResponse, error)
	requests []llmclient.ConverseRequest
}

func (p *scriptedProvider) Converse(_ context.Context, req llmclient.ConverseRequest) (*llmclient.ConverseResponse, error) {
	p.requests = append(p.requests, req)
	return p.script(len(p.requests), req)
}

func (p *scriptedProvider) Model() string { return "scripted-model" }

type fakeLengthTool struct {
	execCalls  int
	execError  bool
	checkCalls int
	checkErr   error
	weighted   int
	valid      bool
}

func (f *fakeLengthTool) Definition() llmclient.ToolDefinition {
	return llmclient.ToolDefinition{
		Name:       tools.LengthToolName,
		Properties: map[string]any{"text": map[string]any{"type": "string"}},
		Required:   []string{"text"},
	}
}

func (f *fakeLengthTool) Execute(_ context.Context, _ json.RawMessage) (string, bool) {
	f.execCalls++
	if f.execError {
		return `{"error": "checker offline", "weightedLength": 12, "isValid": true}`, true
	}
	return `{"weightedLength": 12, "isValid": true}`, false
}

func (f *fakeLengthTool) Check(_ context.Context, _ string) (tools.CheckResult, error) {
	f.checkCalls++
	if f.checkErr != nil {
		return tools.CheckResult{}, f.checkErr
	}
	return tools.CheckResult{WeightedLength: f.weighted, Valid: f.valid}, nil
}

func toolUseResponse(id string) *llmclient.ConverseResponse {
	return &llmclient.ConverseResponse{
		Blocks: []llmclient.Block{
			llmclient.TextBlock{Text: "確認します"},
			llmclient.ToolUseBlock{ID: id, Name: tools.LengthToolName, Input: json.RawMessage(`{"text":"案"}`)},
		},
		StopReason: "tool_use",
		Usage:      llmclient.Usage{InputTokens: 100, OutputTokens: 50},
	}
}

func textResponse(text string) *llmclient.ConverseResponse {
	return &llmclient.ConverseResponse{
		Blocks:     []llmclient.Block{llmclient.TextBlock{Text: text}},
		StopReason: "end_turn",
		Usage:      llmclient.Usage{InputTokens: 100, OutputTokens: 50},
	}
}

func newTestDriver(p llmclient.Provider, tool toolExecutor, maxTurns, forceAfter int) *driver {
	logger, _ := zap.NewDevelopment()
	return &driver{
		provider:       p,
		tools:          []toolExecutor{tool},
		system:         "system",
		finalSystem:    "final system",
		maxTurns:       maxTurns,
		forceAfter:     forceAfter,
		maxTokens:      1000,
		finalMaxTokens: 1000,
		logger:         logger,
	}
}

func TestDriverEndlessToolLoopStillTerminates(t *testing.T) {
	provider := &scriptedProvider{}
	provider.script = func(call int, req llmclient.ConverseRequest) (*llmclient.ConverseResponse, error) {
		if len(req.Tools) == 0 {
			return textResponse(`{"post_a": {"text": "最終案です"}}`), nil
		}
		// The model keeps asking for tools forever.
		return toolUseResponse(fmt.Sprintf("tu_%d", call)), nil
	}
	tool := &fakeLengthTool{}
	d := newTestDriver(provider, tool, 10, 6)

	text, meta, err := d.run(context.Background(), "opening")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	// 6 streaming calls up to the threshold, then exactly one finalization.
	if len(provider.requests) != 7 {
		t.Fatalf("provider calls = %d, want 7", len(provider.requests))
	}
	if meta.TurnsUsed != 7 {
		t.Errorf("TurnsUsed = %d, want 7", meta.TurnsUsed)
	}

	var finalizingCalls int
	for _, req := range provider.requests {
		if len(req.Tools) == 0 {
			finalizingCalls++
		}
	}
	if finalizingCalls != 1 {
		t.Errorf("finalizing calls = %d, want exactly 1", finalizingCalls)
	}

	last := provider.requests[len(provider.requests)-1]
	if last.System != "final system" {
		t.Errorf("finalization system prompt = %q, want the stricter one", last.System)
	}
	closing := llmclient.TextContent(last.Messages[len(last.Messages)-1].Blocks)
	if closing != prompts.ForcedFinalInstruction() {
		t.Errorf("closing instruction = %q, want the forced one", closing)
	}

	if !strings.Contains(text, "最終案です") {
		t.Errorf("final text = %q, want the finalization response", text)
	}
	if tool.execCalls != 6 {
		t.Errorf("tool executions = %d, want 6", tool.execCalls)
	}
	if meta.InputTokens != 700 || meta.OutputTokens != 350 {
		t.Errorf("token usage = %d/%d, want sums over all calls", meta.InputTokens, meta.OutputTokens)
	}
}

func TestDriverNaturalEnd(t *testing.T) {
	provider := &scriptedProvider{}
	provider.script = func(call int, req llmclient.ConverseRequest) (*llmclient.ConverseResponse, error) {
		if call == 1 {
			return textResponse("検討が終わりました"), nil
		}
		return textResponse(`{"post_a": {"text": "自然終了の案"}}`), nil
	}
	d := newTestDriver(provider, &fakeLengthTool{}, 10, 6)

	_, meta, err := d.run(context.Background(), "opening")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if len(provider.requests) != 2 {
		t.Fatalf("provider calls = %d, want 2", len(provider.requests))
	}
	if meta.TurnsUsed != 2 {
		t.Errorf("TurnsUsed = %d, want 2", meta.TurnsUsed)
	}

	last := provider.requests[1]
	closing := llmclient.TextContent(last.Messages[len(last.Messages)-1].Blocks)
	if closing != prompts.FinalInstruction() {
		t.Errorf("closing instruction = %q, want the natural one", closing)
	}
}

func TestDriverToolFailureContinuesConversation(t *testing.T) {
	provider := &scriptedProvider{}
	provider.script = func(call int, req llmclient.ConverseRequest) (*llmclient.ConverseResponse, error) {
		switch call {
		case 1:
			return toolUseResponse("tu_1"), nil
		case 2:
			// Verify the degraded tool result reached the model.
			lastMsg := req.Messages[len(req.Messages)-1]
			result, ok := lastMsg.Blocks[0].(llmclient.ToolResultBlock)
			if !ok {
				t.Fatalf("expected a tool result block, got %T", lastMsg.Blocks[0])
			}
			if !result.IsError {
				t.Error("tool result should be flagged as an error")
			}
			if !strings.Contains(result.Content, "weightedLength") {
				t.Errorf("degraded result %q should still carry a local count", result.Content)
			}
			return textResponse("続行します"), nil
		default:
			return textResponse(`{"post_a": {"text": "障害後の案"}}`), nil
		}
	}
	tool := &fakeLengthTool{execError: true}
	d := newTestDriver(provider, tool, 10, 6)

	_, _, err := d.run(context.Background(), "opening")
	if err != nil {
		t.Fatalf("run() error = %v, tool failures must not abort the conversation", err)
	}
	if tool.execCalls != 1 {
		t.Errorf("tool executions = %d, want 1", tool.execCalls)
	}
}

func TestDriverUnknownToolRequested(t *testing.T) {
	provider := &scriptedProvider{}
	provider.script = func(call int, req llmclient.ConverseRequest) (*llmclient.ConverseResponse, error) {
		if call == 1 {
			return &llmclient.ConverseResponse{
				Blocks: []llmclient.Block{
					llmclient.ToolUseBlock{ID: "tu_1", Name: "no_such_tool", Input: json.RawMessage(`{}`)},
				},
				StopReason: "tool_use",
			}, nil
		}
		if call == 2 {
			lastMsg := req.Messages[len(req.Messages)-1]
			result := lastMsg.Blocks[0].(llmclient.ToolResultBlock)
			if !result.IsError || !strings.Contains(result.Content, "no_such_tool") {
				t.Errorf("unknown tool result = %+v, want an error payload naming the tool", result)
			}
			return textResponse("了解しました"), nil
		}
		return textResponse(`{"post_a": {"text": "案"}}`), nil
	}
	d := newTestDriver(provider, &fakeLengthTool{}, 10, 6)

	if _, _, err := d.run(context.Background(), "opening"); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

func testConfig() *config.Config {
	return &config.Config{
		MaxGenerationTurns:    10,
		MaxRefinementTurns:    5,
		GenerationMaxTokens:   16000,
		FinalizationMaxTokens: 10000,
	}
}

func TestControllerGenerateSuccess(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	provider := &scriptedProvider{}
	provider.script = func(call int, req llmclient.ConverseRequest) (*llmclient.ConverseResponse, error) {
		if call == 1 {
			return textResponse("案を検討しました"), nil
		}
		return textResponse("```json\n{\"post_a\": {\"text\": \"新商品のご案内です\"}, \"post_b\": {\"text\": \"本日から発売開始です\"}}\n```"), nil
	}
	length := &fakeLengthTool{weighted: 25, valid: true}
	controller := NewController(provider, length, testConfig(), logger)

	result := controller.Generate(context.Background(), GenerateRequest{Topic: "新商品"})

	if result.Err != "" {
		t.Fatalf("Err = %q, want empty", result.Err)
	}
	if result.PostA == nil || result.PostB == nil {
		t.Fatal("expected both candidates")
	}
	// Final candidates are re-checked through the length tool; the weighted
	// count replaces the raw rune count.
	if result.PostA.CharacterCount != 25 {
		t.Errorf("PostA.CharacterCount = %d, want the weighted 25", result.PostA.CharacterCount)
	}
	if !result.PostA.IsValid {
		t.Error("PostA should be valid per the remote check")
	}
	if length.checkCalls != 2 {
		t.Errorf("final length checks = %d, want 2", length.checkCalls)
	}
	if result.Metadata.Model != "scripted-model" {
		t.Errorf("Metadata.Model = %q", result.Metadata.Model)
	}
	if result.Metadata.TurnsUsed != 2 {
		t.Errorf("Metadata.TurnsUsed = %d, want 2", result.Metadata.TurnsUsed)
	}
}

func TestControllerGenerateLLMFailure(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	provider := &scriptedProvider{}
	provider.script = func(call int, req llmclient.ConverseRequest) (*llmclient.ConverseResponse, error) {
		return nil, fmt.Errorf("api unavailable")
	}
	controller := NewController(provider, &fakeLengthTool{}, testConfig(), logger)

	result := controller.Generate(context.Background(), GenerateRequest{Topic: "新商品"})

	if result.Err == "" {
		t.Fatal("Err should be set on LLM failure")
	}
	if result.PostA != nil || result.PostB != nil {
		t.Error("no candidates should be produced on LLM failure")
	}
}

func TestControllerRecheckFailureKeepsRawCount(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	provider := &scriptedProvider{}
	provider.script = func(call int, req llmclient.ConverseRequest) (*llmclient.ConverseResponse, error) {
		if call == 1 {
			return textResponse("検討済み"), nil
		}
		return textResponse(`{"post_a": {"text": "あいうえおかきくけこ"}}`), nil
	}
	length := &fakeLengthTool{checkErr: fmt.Errorf("checker down")}
	controller := NewController(provider, length, testConfig(), logger)

	result := controller.Generate(context.Background(), GenerateRequest{Topic: "新商品"})

	if result.PostA == nil {
		t.Fatal("expected PostA")
	}
	if result.PostA.CharacterCount != 10 {
		t.Errorf("CharacterCount = %d, want the raw rune count 10", result.PostA.CharacterCount)
	}
}

func TestControllerRefineForcesEarlier(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	provider := &scriptedProvider{}
	provider.script = func(call int, req llmclient.ConverseRequest) (*llmclient.ConverseResponse, error) {
		if len(req.Tools) == 0 {
			return textResponse(`{"post_a": {"text": "修正済みの案です"}}`), nil
		}
		return toolUseResponse(fmt.Sprintf("tu_%d", call)), nil
	}
	controller := NewController(provider, &fakeLengthTool{weighted: 8, valid: true}, testConfig(), logger)

	result := controller.Refine(context.Background(), RefineRequest{
		SelectedPost: "元の投稿文です",
		Instruction:  "もっと短くしてください",
		Round:        1,
	})

	if result.Err != "" {
		t.Fatalf("Err = %q", result.Err)
	}
	// Refinement budget is 5 with forced finalization at 3: three streaming
	// calls plus one finalization.
	if len(provider.requests) != 4 {
		t.Errorf("provider calls = %d, want 4", len(provider.requests))
	}
	if result.Metadata.TurnsUsed != 4 {
		t.Errorf("TurnsUsed = %d, want 4", result.Metadata.TurnsUsed)
	}
}
