package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/dataguard/agent/internal/compliance"
	"github.com/dataguard/agent/pkg/circuitbreaker"
	"github.com/dataguard/agent/pkg/logger"
	"github.com/dataguard/agent/pkg/retry"
)

const llmSystemPrompt = `You are a data analysis assistant. Given a JSON record and a user query,
respond with a JSON object containing exactly these fields:
query_response (string), confidence_score (number 0-1),
key_findings (array of strings), recommendations (array of strings).`

// LLMReasoner delegates insight synthesis to a chat model while keeping the
// heuristic agent's chain, hypotheses, and patterns. Any model failure falls
// back to the pure heuristic result, so Analyze keeps the collaborator
// contract of succeeding on well-formed input.
type LLMReasoner struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
	fallback    *Agent
}

func NewLLMReasoner(apiKey, model string, temperature float32, maxTokens int) *LLMReasoner {
	cb := circuitbreaker.NewCircuitBreaker("reasoning-llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	logger.Info("LLM reasoner initialized", zap.String("model", model))

	return &LLMReasoner{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		cb:          cb,
		retryConfig: retry.Config{
			MaxAttempts:    3,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Logger:         logger.GetLogger(),
		},
		fallback: NewAgent(),
	}
}

func (r *LLMReasoner) Analyze(ctx context.Context, record compliance.Record, query string) (*Analysis, error) {
	analysis, err := r.fallback.Analyze(ctx, record, query)
	if err != nil {
		return nil, err
	}

	synthesized, err := r.synthesize(ctx, record, query)
	if err != nil {
		logger.Warn("LLM synthesis failed, keeping heuristic insights", zap.Error(err))
		return analysis, nil
	}

	if synthesized.QueryResponse != "" {
		analysis.StructuredInsights.QueryResponse = synthesized.QueryResponse
	}
	if synthesized.ConfidenceScore > 0 && synthesized.ConfidenceScore <= 1 {
		analysis.StructuredInsights.ConfidenceScore = synthesized.ConfidenceScore
	}
	if len(synthesized.KeyFindings) > 0 {
		analysis.StructuredInsights.KeyFindings = synthesized.KeyFindings
	}
	if len(synthesized.Recommendations) > 0 {
		analysis.StructuredInsights.Recommendations = synthesized.Recommendations
	}

	return analysis, nil
}

type llmSynthesis struct {
	QueryResponse   string   `json:"query_response"`
	ConfidenceScore float64  `json:"confidence_score"`
	KeyFindings     []string `json:"key_findings"`
	Recommendations []string `json:"recommendations"`
}

func (r *LLMReasoner) synthesize(ctx context.Context, record compliance.Record, query string) (*llmSynthesis, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: llmSystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: fmt.Sprintf("Query: %s\n\nRecord: %s", query, recordJSON),
		},
	}

	var result *llmSynthesis

	err = r.cb.Execute(ctx, func() error {
		return retry.Do(ctx, r.retryConfig, func() error {
			resp, err := r.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       r.model,
					Messages:    messages,
					Temperature: r.temperature,
					MaxTokens:   r.maxTokens,
				},
			)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			content := strings.TrimSpace(resp.Choices[0].Message.Content)
			content = strings.TrimPrefix(content, "```json")
			content = strings.Trim(content, "`")

			var synthesis llmSynthesis
			if err := json.Unmarshal([]byte(content), &synthesis); err != nil {
				return fmt.Errorf("failed to parse model output: %w", err)
			}

			logger.Debug("LLM synthesis generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &synthesis
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
