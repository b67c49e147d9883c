package services

import (
	"context"
	"sync"
	"time"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/ports"
	"meshcall/pkg/utils"

	"go.uber.org/zap"
)

// ChatService keeps the append-only in-meeting chat log and fronts the
// text-generation collaborator. The log lives exactly as long as the
// session.
type ChatService struct {
	mu        sync.Mutex
	messages  []domain.ChatMessage
	generator ports.TextGenerator
	logger    *zap.SugaredLogger
}

func NewChatService(generator ports.TextGenerator, logger *zap.SugaredLogger) *ChatService {
	return &ChatService{generator: generator, logger: logger}
}

// Append records a message in arrival order. Messages are immutable once
// stored.
func (c *ChatService) Append(msg domain.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// Messages returns the log snapshot in arrival order.
func (c *ChatService) Messages() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ChatMessage(nil), c.messages...)
}

// Clear drops the log on meeting teardown.
func (c *ChatService) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// Summarize asks the assistant for a summary of the conversation so far
// and appends the result as an assistant message. The generator never
// fails; it returns its sentinel text when the capability is unavailable.
func (c *ChatService) Summarize(ctx context.Context) domain.ChatMessage {
	text := c.generator.Summarize(ctx, c.Messages())
	msg := c.assistantMessage(text)
	c.Append(msg)
	return msg
}

// Ask forwards a direct question to the assistant with the chat history
// as context and appends the reply.
func (c *ChatService) Ask(ctx context.Context, query string) domain.ChatMessage {
	text := c.generator.Answer(ctx, query, c.Messages())
	msg := c.assistantMessage(text)
	c.Append(msg)
	return msg
}

func (c *ChatService) assistantMessage(text string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:         utils.GenerateMessageID(),
		SenderID:   "assistant",
		SenderName: "Assistant",
		Text:       text,
		Timestamp:  time.Now(),
		Origin:     domain.OriginAssistant,
	}
}
