// Package llmclient defines the provider boundary for model conversations:
// a closed set of content-block variants, the message and tool types built
// from them, and the Provider interface the agent drives.
package llmclient

import (
	"context"
	"encoding/json"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Block is one unit of message content. The set of implementations is
// closed: TextBlock, ToolUseBlock, and ToolResultBlock. Consumers switch
// exhaustively over these three.
type Block interface {
	isBlock()
}

// TextBlock is plain assistant or user text.
type TextBlock struct {
	Text string
}

// ToolUseBlock is a model request to run a tool. Input is the raw JSON
// arguments, decoded by the tool executor.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResultBlock carries a tool's output back to the model. IsError marks
// degraded results; the content is still a well-formed payload.
type ToolResultBlock struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (TextBlock) isBlock()       {}
func (ToolUseBlock) isBlock()    {}
func (ToolResultBlock) isBlock() {}

// Message is one conversation turn.
type Message struct {
	Role   Role
	Blocks []Block
}

// TextMessage builds a single-text-block message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Blocks: []Block{TextBlock{Text: text}}}
}

// TextContent concatenates the text blocks of a response.
func TextContent(blocks []Block) string {
	var out string
	for _, b := range blocks {
		if t, ok := b.(TextBlock); ok {
			out += t.Text
		}
	}
	return out
}

// ToolDefinition describes a tool offered to the model. Properties and
// Required follow JSON Schema object conventions.
type ToolDefinition struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

// ConverseRequest is one model call. An empty Tools slice requests
// structured-only output: the model cannot stall in another tool loop.
type ConverseRequest struct {
	System    string
	Messages  []Message
	Tools     []ToolDefinition
	MaxTokens int64
}

// Usage is the token accounting for a single call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// ConverseResponse is the model's reply. StopReason distinguishes natural
// completion from tool-use pauses and token-limit cutoffs.
type ConverseResponse struct {
	Blocks     []Block
	StopReason string
	Usage      Usage
}

// Provider abstracts the model backend.
type Provider interface {
	Converse(ctx context.Context, req ConverseRequest) (*ConverseResponse, error)
	Model() string
}
