package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/ports"

	"go.uber.org/zap"
)

const (
	// Returned instead of an error whenever the capability is missing or
	// the upstream call fails; chat must keep working without it.
	UnavailableSummary = "Summary is unavailable right now."
	UnavailableAnswer  = "The assistant is unavailable right now."

	apiKeyEnv = "MESHCALL_ASSISTANT_KEY"
)

// Assistant calls an OpenAI-compatible chat completions endpoint. It is
// stateless between calls; the caller passes the chat history each time.
type Assistant struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
	logger  *zap.SugaredLogger
}

func NewAssistant(baseURL, model string, timeout time.Duration, logger *zap.SugaredLogger) ports.TextGenerator {
	return &Assistant{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  os.Getenv(apiKeyEnv),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (a *Assistant) Summarize(ctx context.Context, messages []domain.ChatMessage) string {
	prompt := "Summarize the following meeting chat in a few sentences."
	text, err := a.complete(ctx, prompt, "", messages)
	if err != nil {
		a.logger.Warnw("summary generation failed", "error", err)
		return UnavailableSummary
	}
	return text
}

func (a *Assistant) Answer(ctx context.Context, query string, history []domain.ChatMessage) string {
	prompt := "You are a meeting assistant. Answer the participant's question using the chat history as context."
	text, err := a.complete(ctx, prompt, query, history)
	if err != nil {
		a.logger.Warnw("assistant answer failed", "error", err)
		return UnavailableAnswer
	}
	return text
}

func (a *Assistant) complete(ctx context.Context, system, query string, history []domain.ChatMessage) (string, error) {
	if a.apiKey == "" {
		return "", fmt.Errorf("no API key in %s", apiKeyEnv)
	}

	msgs := []chatMessage{{Role: "system", Content: system}}
	if len(history) > 0 {
		msgs = append(msgs, chatMessage{Role: "user", Content: renderHistory(history)})
	}
	if query != "" {
		msgs = append(msgs, chatMessage{Role: "user", Content: query})
	}

	body, err := json.Marshal(chatCompletionRequest{Model: a.model, Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion request returned %d", resp.StatusCode)
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("completion response has no choices")
	}
	return out.Choices[0].Message.Content, nil
}

func renderHistory(history []domain.ChatMessage) string {
	var b strings.Builder
	b.WriteString("Chat history:\n")
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.SenderName, m.Text)
	}
	return b.String()
}
