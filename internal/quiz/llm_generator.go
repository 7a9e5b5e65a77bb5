package quiz

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"quizgen/internal/logger"
	"quizgen/internal/models"
	"quizgen/internal/providers"
)

const operationQuizGenerate = "quiz_generate"

// LLMGenerator is the Generator backed by the configured LLM providers.
// Consecutive attempts of a pass rotate through providers.
type LLMGenerator struct {
	providers *providers.Manager
	auditor   CallAuditor
	log       *logger.Logger
}

func NewLLMGenerator(pm *providers.Manager, auditor CallAuditor, log *logger.Logger) *LLMGenerator {
	if log == nil {
		log = logger.Nop()
	}
	return &LLMGenerator{providers: pm, auditor: auditor, log: log}
}

func (g *LLMGenerator) Generate(ctx context.Context, req GenerateRequest) ([]models.CandidateItem, error) {
	provider, ref := g.providers.ForAttempt(req.Attempt)
	call := providers.GenerateRequest{
		Operation:     operationQuizGenerate,
		Prompt:        BuildPrompt(req),
		Context:       []string{req.SourceText},
		ExpectedItems: req.Config.RequestedCount,
	}
	resp, info, err := provider.Generate(ctx, call)
	if info.Name == "" {
		info.Name = ref.Name
	}
	if err != nil {
		errType := providers.ClassifyError(err)
		g.audit(ctx, req, info, "error", string(errType), 0)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &GenerationError{
			Kind:      string(errType),
			Retryable: providers.Retryable(errType),
			Err:       fmt.Errorf("%s: %w", info.Name, err),
		}
	}

	candidates, err := ParseCandidates(resp.Text)
	if err != nil {
		g.audit(ctx, req, info, "error", "parse", 0)
		return nil, Retryable("parse", err)
	}
	if len(candidates) == 0 {
		g.audit(ctx, req, info, "empty", "", 0)
		return nil, Retryable("empty", ErrEmptyResponse)
	}
	g.audit(ctx, req, info, "ok", "", len(candidates))
	return candidates, nil
}

func (g *LLMGenerator) audit(ctx context.Context, req GenerateRequest, info providers.ProviderInfo, status, errType string, n int) {
	trace.SpanFromContext(ctx).AddEvent("llm_call", trace.WithAttributes(
		attribute.String("provider", info.Name),
		attribute.Int("attempt", req.Attempt),
		attribute.String("status", status),
	))
	if g.auditor == nil {
		return
	}
	rec := models.LLMCall{
		CallID:     uuid.NewString(),
		Operation:  operationQuizGenerate,
		DocumentID: req.DocumentID,
		UnitID:     req.Unit.UnitID,
		Provider:   info.Name,
		Model:      info.Model,
		Pass:       req.Pass,
		Attempt:    req.Attempt,
		Status:     status,
		ErrorType:  errType,
		Candidates: n,
	}
	if err := g.auditor.RecordCall(context.WithoutCancel(ctx), rec); err != nil {
		g.log.Warn("llm call audit failed", "unit_id", req.Unit.UnitID, "error", err)
	}
}
