package domain

import (
	"context"
	"time"
)

// MessageRole represents the sender of a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is an immutable entry of a conversation
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Role           MessageRole  `json:"role"`
	Content        string       `json:"content"`
	Timestamp      time.Time    `json:"timestamp"`
	TokenCount     *int         `json:"tokenCount,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// MessageRepository defines the interface for message storage
type MessageRepository interface {
	// Create inserts the message and bumps the conversation's updatedAt.
	Create(ctx context.Context, message *Message) error
	// ListByConversation returns the latest limit messages in ascending
	// timestamp order with attachment metadata inlined. limit <= 0 means all.
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]Message, error)
}
