package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Rrens/chat-gateway/internal/blob"
	"github.com/Rrens/chat-gateway/internal/domain"
	"github.com/Rrens/chat-gateway/internal/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ConversationService handles conversation reads and lifecycle
type ConversationService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	attachments   domain.AttachmentRepository
	blobs         blob.Store
	binder        *session.Binder
	listLimit     int
}

// NewConversationService creates a new conversation service
func NewConversationService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	attachments domain.AttachmentRepository,
	blobs blob.Store,
	binder *session.Binder,
	listLimit int,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		attachments:   attachments,
		blobs:         blobs,
		binder:        binder,
		listLimit:     listLimit,
	}
}

// History binds the connection to conversationID, creating the
// conversation when absent, and returns every message oldest first.
func (s *ConversationService) History(ctx context.Context, connID, conversationID string) ([]domain.Message, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, domain.ErrMissingID
	}

	created, err := s.binder.Rebind(ctx, connID, conversationID)
	if err != nil {
		return nil, err
	}
	if created {
		log.Debug().Str("conn_id", connID).Str("conversation_id", conversationID).Msg("Conversation created on history request")
		return []domain.Message{}, nil
	}

	messages, err := s.messages.ListByConversation(ctx, conversationID, 0)
	if err != nil {
		return nil, domain.StorageError("Failed to load history", err)
	}
	return messages, nil
}

// List returns the most recently updated conversations
func (s *ConversationService) List(ctx context.Context) ([]domain.Conversation, error) {
	conversations, err := s.conversations.List(ctx, s.listLimit)
	if err != nil {
		return nil, domain.StorageError("Failed to list conversations", err)
	}
	return conversations, nil
}

// Create makes a new conversation and binds the connection to it
func (s *ConversationService) Create(ctx context.Context, connID, title string) (*domain.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = domain.DefaultConversationTitle
	}

	ts := now()
	c := &domain.Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if err := s.conversations.Create(ctx, c); err != nil {
		return nil, domain.StorageError("Failed to create conversation", err)
	}

	s.binder.Set(connID, c.ID)
	return c, nil
}

// Delete removes the conversation with its messages, attachment rows and
// payloads, and unbinds every connection pointing at it.
func (s *ConversationService) Delete(ctx context.Context, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return domain.ErrMissingID
	}

	attachments, err := s.attachments.ListByConversation(ctx, conversationID)
	if err != nil {
		return domain.StorageError("Failed to load attachments", err)
	}

	if err := s.conversations.Delete(ctx, conversationID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewError(domain.KindValidation, domain.CodeNotFound, "Conversation not found: %s", conversationID)
		}
		return domain.StorageError("Failed to delete conversation", err)
	}
	s.binder.ReleaseConversation(conversationID)

	for _, a := range attachments {
		if err := s.blobs.Delete(ctx, a.FilePath); err != nil {
			log.Warn().Err(err).Str("attachment_id", a.ID).Msg("Failed to remove attachment payload")
		}
	}
	return nil
}
