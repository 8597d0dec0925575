package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

const runPollInterval = 500 * time.Millisecond

// OpenAIProvider drives an Assistants API assistant. The thread handle is the
// server-side thread, which already holds the conversation, so the history
// passed to Reply is ignored.
type OpenAIProvider struct {
	client      *openai.Client
	assistantID string
	evalModel   string
}

func NewOpenAIProvider(apiKey, assistantID, evalModel string) *OpenAIProvider {
	return &OpenAIProvider{
		client:      openai.NewClient(apiKey),
		assistantID: assistantID,
		evalModel:   evalModel,
	}
}

func (p *OpenAIProvider) Close() error { return nil }

func (p *OpenAIProvider) NewThread(ctx context.Context) (string, error) {
	thread, err := p.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("openai thread creation failed: %w", err)
	}
	log.WithField("thread", thread.ID).Info("Created assistant thread")
	return thread.ID, nil
}

func (p *OpenAIProvider) Reply(ctx context.Context, thread string, _ []Turn, text string, onDelta func(string)) (string, error) {
	if _, err := p.client.CreateMessage(ctx, thread, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	}); err != nil {
		return "", fmt.Errorf("openai message creation failed: %w", err)
	}

	run, err := p.client.CreateRun(ctx, thread, openai.RunRequest{AssistantID: p.assistantID})
	if err != nil {
		return "", fmt.Errorf("openai run creation failed: %w", err)
	}
	if run, err = p.awaitRun(ctx, thread, run); err != nil {
		return "", err
	}

	limit := 10
	order := "desc"
	list, err := p.client.ListMessage(ctx, thread, &limit, &order, nil, nil, &run.ID)
	if err != nil {
		return "", fmt.Errorf("openai message listing failed: %w", err)
	}

	reply := assistantText(list.Messages)
	if reply == "" {
		return "", errors.New("openai run produced no assistant message")
	}
	if onDelta != nil {
		onDelta(reply)
	}
	return reply, nil
}

func (p *OpenAIProvider) awaitRun(ctx context.Context, thread string, run openai.Run) (openai.Run, error) {
	ticker := time.NewTicker(runPollInterval)
	defer ticker.Stop()
	for {
		switch run.Status {
		case openai.RunStatusCompleted:
			return run, nil
		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired,
			openai.RunStatusCancelling, openai.RunStatusRequiresAction:
			reason := string(run.Status)
			if run.LastError != nil {
				reason += ": " + run.LastError.Message
			}
			return run, fmt.Errorf("openai run %s did not complete (%s)", run.ID, reason)
		}

		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}

		var err error
		if run, err = p.client.RetrieveRun(ctx, thread, run.ID); err != nil {
			return run, fmt.Errorf("openai run retrieval failed: %w", err)
		}
	}
}

// assistantText joins the text content of the newest-first message list in
// chronological order.
func assistantText(msgs []openai.Message) string {
	var parts []string
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		for _, c := range m.Content {
			if c.Text != nil && c.Text.Value != "" {
				parts = append(parts, c.Text.Value)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

func (p *OpenAIProvider) Evaluate(ctx context.Context, turns []Turn) (Verdict, error) {
	msgs := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: evaluationSystemInstruction}}
	for _, t := range turns {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: t.Role, Content: t.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.evalModel,
		Messages:    msgs,
		MaxTokens:   10,
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("openai evaluation request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai evaluation returned no choices")
	}
	return ParseVerdict(resp.Choices[0].Message.Content)
}
