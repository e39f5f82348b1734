// Package agent runs the bounded multi-turn conversations that produce and
// refine post candidates.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"postcrafter/config"
	"postcrafter/llmclient"
	"postcrafter/parse"
	"postcrafter/post"
	"postcrafter/prompts"
	"postcrafter/rag"
	"postcrafter/tools"
)

// lengthTool is the length-checker surface the controller needs: the agent
// tool backend plus direct checks for final candidate validation.
type lengthTool interface {
	Definition() llmclient.ToolDefinition
	Execute(ctx context.Context, input json.RawMessage) (payload string, isError bool)
	Check(ctx context.Context, text string) (tools.CheckResult, error)
}

// GenerateRequest describes one post-generation job.
type GenerateRequest struct {
	Date        string
	Topic       string
	URL         string
	Remarks     string
	Anniversary string
	Bundle      *rag.Bundle
}

// RefineRequest describes one refinement job for a previously selected
// candidate.
type RefineRequest struct {
	SelectedPost string
	Instruction  string
	Round        int
}

// Controller owns the generation and refinement conversation loops.
type Controller struct {
	provider llmclient.Provider
	length   lengthTool
	cfg      *config.Config
	logger   *zap.Logger
}

func NewController(provider llmclient.Provider, length lengthTool, cfg *config.Config, logger *zap.Logger) *Controller {
	return &Controller{provider: provider, length: length, cfg: cfg, logger: logger}
}

// Generate runs a full generation conversation and returns two candidates.
// LLM failures are reported through Result.Err; this method never panics
// and never returns an error.
func (c *Controller) Generate(ctx context.Context, req GenerateRequest) *post.GenerationResult {
	requestID := uuid.NewString()
	logger := c.logger.With(
		zap.String("request_id", requestID),
		zap.String("topic", req.Topic))
	logger.Info("Starting post generation")

	d := &driver{
		provider:       c.provider,
		tools:          []toolExecutor{c.length},
		system:         prompts.GenerationSystem(),
		finalSystem:    prompts.FinalSystem(),
		maxTurns:       c.cfg.MaxGenerationTurns,
		forceAfter:     forceThreshold(c.cfg.MaxGenerationTurns, 4),
		maxTokens:      int64(c.cfg.GenerationMaxTokens),
		finalMaxTokens: int64(c.cfg.FinalizationMaxTokens),
		logger:         logger,
	}

	opening := prompts.UserMessage(userParams(req))
	text, meta, err := d.run(ctx, opening)
	if err != nil {
		logger.Error("Generation conversation failed", zap.Error(err))
		return &post.GenerationResult{Metadata: meta, Err: err.Error()}
	}

	result := c.finalize(ctx, logger, text, meta)
	logger.Info("Post generation finished",
		zap.Int("turns_used", meta.TurnsUsed),
		zap.Bool("has_post_a", result.PostA != nil),
		zap.Bool("has_post_b", result.PostB != nil))
	return result
}

// Refine runs a refinement conversation over a selected candidate.
func (c *Controller) Refine(ctx context.Context, req RefineRequest) *post.GenerationResult {
	requestID := uuid.NewString()
	logger := c.logger.With(
		zap.String("request_id", requestID),
		zap.Int("round", req.Round))
	logger.Info("Starting post refinement")

	d := &driver{
		provider:       c.provider,
		tools:          []toolExecutor{c.length},
		system:         prompts.RefinementSystem(),
		finalSystem:    prompts.FinalSystem(),
		maxTurns:       c.cfg.MaxRefinementTurns,
		forceAfter:     forceThreshold(c.cfg.MaxRefinementTurns, 2),
		maxTokens:      int64(c.cfg.GenerationMaxTokens),
		finalMaxTokens: int64(c.cfg.FinalizationMaxTokens),
		logger:         logger,
	}

	opening := prompts.RefinementMessage(req.SelectedPost, req.Instruction)
	text, meta, err := d.run(ctx, opening)
	if err != nil {
		logger.Error("Refinement conversation failed", zap.Error(err))
		return &post.GenerationResult{Metadata: meta, Err: err.Error()}
	}

	result := c.finalize(ctx, logger, text, meta)
	logger.Info("Post refinement finished", zap.Int("turns_used", meta.TurnsUsed))
	return result
}

// finalize parses the final response and re-checks each candidate through
// the length tool, preferring the platform's weighted count over the raw
// rune count when the remote check succeeds.
func (c *Controller) finalize(ctx context.Context, logger *zap.Logger, text string, meta post.Metadata) *post.GenerationResult {
	parsed := parse.ExtractPosts(text)
	result := &post.GenerationResult{
		PostA:    c.recheck(ctx, logger, parsed.PostA),
		PostB:    c.recheck(ctx, logger, parsed.PostB),
		Metadata: meta,
	}
	if result.PostA == nil && result.PostB == nil {
		logger.Warn("No candidates could be extracted from the final response")
		result.Err = "no post candidates could be extracted from the model output"
	}
	return result
}

func (c *Controller) recheck(ctx context.Context, logger *zap.Logger, candidate *post.Candidate) *post.Candidate {
	if candidate == nil {
		return nil
	}
	checked, err := c.length.Check(ctx, candidate.Text)
	if err != nil {
		logger.Warn("Final length check failed, keeping raw character count", zap.Error(err))
		return candidate
	}
	return post.NewCandidateWeighted(candidate.Text, checked.WeightedLength, checked.Valid)
}

// forceThreshold is the turn count at which the conversation is cut off
// and sent straight to finalization, leaving headroom in the budget.
func forceThreshold(maxTurns, headroom int) int {
	t := maxTurns - headroom
	if t < 1 {
		t = 1
	}
	return t
}

func userParams(req GenerateRequest) prompts.UserParams {
	p := prompts.UserParams{
		Date:        req.Date,
		Topic:       req.Topic,
		URL:         req.URL,
		Remarks:     req.Remarks,
		Anniversary: req.Anniversary,
	}
	if req.Bundle == nil {
		return p
	}
	p.KnowledgeSection = knowledgeSection(req.Bundle)
	p.SimilarSection = similarSection(req.Bundle)
	p.AnalyticsSection = req.Bundle.AnalyticsSummary
	return p
}

func knowledgeSection(bundle *rag.Bundle) string {
	if len(bundle.KnowledgeItems) == 0 {
		return ""
	}
	var b strings.Builder
	for i, item := range bundle.KnowledgeItems {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s", item.Title)
		if item.Description != "" {
			fmt.Fprintf(&b, ": %s", item.Description)
		}
		if item.Content != "" {
			fmt.Fprintf(&b, "\n  %s", item.Content)
		}
	}
	return b.String()
}

func similarSection(bundle *rag.Bundle) string {
	if len(bundle.SimilarPosts) == 0 {
		return ""
	}
	var b strings.Builder
	for i, p := range bundle.SimilarPosts {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s", p.Text)
	}
	return b.String()
}
