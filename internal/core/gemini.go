package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"gwi.com/leadership-simulator/internal/store"
)

const (
	defaultChatModelName       = "gemini-1.5-flash-latest"
	defaultEvaluationModelName = "gemini-1.5-flash-latest"

	chatSystemInstruction = "You are the game master of a leadership training simulation. " +
		"Present the user with realistic management scenarios, one situation at a time, and react to each decision they make. " +
		"Stay in character, keep the scenario consistent with earlier turns and end every reply with the next situation or question. " +
		"Never grade the user's decisions explicitly."
)

// GeminiProvider keeps no server-side conversation state, so its thread
// handles are local identifiers and context comes from persisted history.
type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Close() error {
	if p.client == nil {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close GenAI client: %w", err)
	}
	log.Info("GenAI client closed")
	return nil
}

func (p *GeminiProvider) NewThread(context.Context) (string, error) {
	return "gemini-" + uuid.NewString(), nil
}

func (p *GeminiProvider) Reply(ctx context.Context, thread string, history []Turn, text string, onDelta func(string)) (string, error) {
	model := p.client.GenerativeModel(defaultChatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}

	chatSession := model.StartChat()
	chatSession.History = geminiHistory(history)

	iter := chatSession.SendMessageStream(ctx, genai.Text(text))
	var reply strings.Builder
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("gemini chat stream failed: %w", err)
		}
		delta := responseText(resp)
		if delta == "" {
			continue
		}
		reply.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}

	if reply.Len() == 0 {
		log.WithField("thread", thread).Warn("Gemini response was empty")
		return "", errors.New("gemini returned an empty response")
	}
	return reply.String(), nil
}

func (p *GeminiProvider) Evaluate(ctx context.Context, turns []Turn) (Verdict, error) {
	model := p.client.GenerativeModel(defaultEvaluationModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(evaluationSystemInstruction)},
	}

	temp := float32(0.1)
	maxTokens := int32(10)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	resp, err := model.GenerateContent(ctx, genai.Text(transcript(turns)))
	if err != nil {
		return "", fmt.Errorf("gemini evaluation request failed: %w", err)
	}
	return ParseVerdict(responseText(resp))
}

// geminiHistory maps persisted turns onto the roles Gemini accepts.
func geminiHistory(turns []Turn) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == store.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Content)},
		})
	}
	return history
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	return text.String()
}

// transcript renders turns as a plain dialogue for single-shot evaluation.
func transcript(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	return b.String()
}
