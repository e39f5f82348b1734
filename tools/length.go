// Package tools holds the backends for the agent's tool calls.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"postcrafter/errors"
	"postcrafter/llmclient"
	"postcrafter/post"
)

// LengthToolName is the tool name exposed to the model.
const LengthToolName = "check_post_length"

// CheckResult is the outcome of a length check. WeightedLength applies the
// platform's character weighting (URLs count as 23, CJK as 2, etc.), which
// a plain rune count cannot reproduce.
type CheckResult struct {
	WeightedLength int  `json:"weightedLength"`
	Valid          bool `json:"isValid"`
}

// LengthChecker validates post text against the platform length rules via a
// remote checker service.
type LengthChecker struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

func NewLengthChecker(endpoint string, timeout time.Duration, logger *zap.Logger) *LengthChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LengthChecker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Check calls the remote checker. Callers needing a non-failing answer
// should fall back to LocalCheck on error.
func (c *LengthChecker) Check(ctx context.Context, text string) (CheckResult, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return CheckResult{}, errors.Wrap(errors.ErrToolExecution, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return CheckResult{}, errors.Wrap(errors.ErrToolExecution, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return CheckResult{}, errors.Wrap(errors.ErrToolExecution, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CheckResult{}, errors.WrapErrorf(errors.ErrToolExecution,
			"length checker returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return CheckResult{}, errors.Wrap(errors.ErrToolExecution, err)
	}

	var result CheckResult
	if err := json.Unmarshal(body, &result); err != nil {
		return CheckResult{}, errors.Wrap(errors.ErrToolExecution, err)
	}
	return result, nil
}

// LocalCheck is the offline fallback: a plain rune count against the
// maximum post length.
func LocalCheck(text string) CheckResult {
	count := utf8.RuneCountInString(text)
	return CheckResult{
		WeightedLength: count,
		Valid:          count <= post.MaxPostLength,
	}
}

// Definition returns the tool schema offered to the model.
func (c *LengthChecker) Definition() llmclient.ToolDefinition {
	return llmclient.ToolDefinition{
		Name:        LengthToolName,
		Description: "Check whether a post text fits the platform length limit. Returns the weighted character count and validity.",
		Properties: map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "The post text to check",
			},
		},
		Required: []string{"text"},
	}
}

// Execute runs a tool call from the model. Failures never propagate: a
// remote error degrades to the local count with an error note so the
// conversation can continue.
func (c *LengthChecker) Execute(ctx context.Context, input json.RawMessage) (string, bool) {
	var args struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		c.logger.Warn("Malformed length tool input", zap.Error(err))
		return `{"error": "invalid tool input", "weightedLength": 0, "isValid": false}`, true
	}

	result, err := c.Check(ctx, args.Text)
	if err != nil {
		c.logger.Warn("Remote length check failed, using local count", zap.Error(err))
		local := LocalCheck(args.Text)
		payload, _ := json.Marshal(map[string]any{
			"weightedLength": local.WeightedLength,
			"isValid":        local.Valid,
			"error":          "remote length check unavailable, local character count used",
		})
		return string(payload), true
	}

	payload, _ := json.Marshal(result)
	return string(payload), false
}
