package interviewer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"interview-practice/internal/api"
	"interview-practice/internal/config"
	"interview-practice/internal/interview"
	"interview-practice/internal/prompts"
)

// completeJSON sends the prompt and hands the reply to decode. Schema errors
// are repaired up to settings.RepairAttempts times; call errors are returned as is.
func (s *Service) completeJSON(ctx context.Context, operation string, settings config.ModelSettings, prompt string, decode func(string) error) error {
	current := prompt
	for attempt := 0; ; attempt++ {
		text, err := s.callOpenAI(ctx, operation, settings, current)
		if err != nil {
			return err
		}

		err = decode(text)
		if err == nil {
			return nil
		}

		var schemaErr *interview.SchemaError
		if !errors.As(err, &schemaErr) {
			return err
		}
		s.metrics.IncrementSchemaError(schemaErr.Kind)

		if attempt >= settings.RepairAttempts {
			return err
		}
		s.logger.Warn("model reply rejected, asking for a repair",
			zap.String("operation", operation),
			zap.String("reason", schemaErr.Reason),
			zap.Int("attempt", attempt+1),
		)
		current = prompts.RepairPrompt(prompt, schemaErr.Reason)
	}
}

func (s *Service) callOpenAI(ctx context.Context, operation string, settings config.ModelSettings, prompt string) (string, error) {
	start := time.Now()
	resp, err := s.client.Complete(ctx, api.CompletionRequest{
		Model:       settings.Model,
		Prompt:      prompt,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	})
	s.metrics.ObserveModelCall(operation, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("calling %s: %w", settings.Model, err)
	}

	s.recordUsage(operation, settings.Model, prompt, resp)
	return resp.Text, nil
}

// recordUsage logs and counts tokens and the estimated cost. It never fails the call.
func (s *Service) recordUsage(operation, model, prompt string, resp *api.Completion) {
	promptTokens := resp.Usage.PromptTokens
	completionTokens := resp.Usage.CompletionTokens
	cached := resp.Usage.CachedTokens()

	if promptTokens == 0 && s.estimator != nil {
		var err error
		if promptTokens, err = s.estimator.CountTokens(prompt, model); err != nil {
			s.logger.Debug("counting prompt tokens", zap.Error(err))
		}
		if completionTokens, err = s.estimator.CountTokens(resp.Text, model); err != nil {
			s.logger.Debug("counting completion tokens", zap.Error(err))
		}
	}

	var cost float64
	if s.estimator != nil {
		var err error
		if cost, err = s.estimator.EstimateCost(model, promptTokens, completionTokens, cached); err != nil {
			s.logger.Debug("estimating cost", zap.String("model", model), zap.Error(err))
		}
	}

	s.metrics.AddUsage(operation, model, promptTokens, completionTokens, cost)
	s.logger.Debug("model usage",
		zap.String("operation", operation),
		zap.String("model", model),
		zap.Int("prompt_tokens", promptTokens),
		zap.Int("completion_tokens", completionTokens),
		zap.Int("cached_tokens", cached),
		zap.Float64("estimated_cost_usd", cost),
	)
}
