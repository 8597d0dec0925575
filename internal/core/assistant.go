package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gwi.com/leadership-simulator/internal/config"
	"gwi.com/leadership-simulator/internal/store"
)

// EvaluationWindow is the number of trailing turns the evaluator sees.
const EvaluationWindow = 4

const evaluationSystemInstruction = "You are an expert evaluator of management simulations. " +
	"Analyze the user's latest reply in the context of the conversation and classify it as 'hit' or 'miss'. " +
	"'hit' means the user made a sound, logical or strategic management decision. " +
	"'miss' means the decision was weak, illogical or harmful. " +
	"Answer ONLY with the word 'hit' or 'miss', in lowercase, with no other explanation or punctuation."

// Turn is one message of the conversation as seen by a provider.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func turnsFromMessages(msgs []store.Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

type Verdict string

const (
	VerdictHit  Verdict = store.OutcomeHit
	VerdictMiss Verdict = store.OutcomeMiss
)

var ErrInvalidVerdict = errors.New("evaluator returned an invalid verdict")

// ParseVerdict normalizes raw evaluator output. Verdicts written by older
// deployments ("acerto", "erro") are still understood.
func ParseVerdict(raw string) (Verdict, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "hit", "acerto":
		return VerdictHit, nil
	case "miss", "erro":
		return VerdictMiss, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVerdict, raw)
	}
}

// Assistant produces the simulator's replies inside a per-user thread.
type Assistant interface {
	// NewThread mints a handle for a new conversation.
	NewThread(ctx context.Context) (string, error)
	// Reply answers text. history holds the earlier persisted turns for
	// providers that keep no server-side state; onDelta, when non-nil,
	// receives the reply as it is produced.
	Reply(ctx context.Context, thread string, history []Turn, text string, onDelta func(string)) (string, error)
}

// Evaluator classifies the latest user turn as a hit or a miss.
type Evaluator interface {
	Evaluate(ctx context.Context, turns []Turn) (Verdict, error)
}

// Provider bundles both capabilities behind one client.
type Provider interface {
	Assistant
	Evaluator
	Close() error
}

// NewProvider builds the provider named by LLM_PROVIDER.
func NewProvider(ctx context.Context, cfg config.Config) (Provider, error) {
	apiKey, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return NewGeminiProvider(ctx, apiKey)
	case config.ProviderOpenAI:
		return NewOpenAIProvider(apiKey, cfg.OpenAIAssistantID, cfg.OpenAIEvalModel), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
}
