package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Rrens/chat-gateway/internal/blob"
	"github.com/Rrens/chat-gateway/internal/domain"
	"github.com/Rrens/chat-gateway/internal/llm"
	"github.com/Rrens/chat-gateway/internal/metrics"
	"github.com/Rrens/chat-gateway/internal/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// IncomingAttachment is a decoded attachment of a chat.send payload
type IncomingAttachment struct {
	MimeType string
	Name     string
	Data     []byte
}

// SendRequest is one user turn
type SendRequest struct {
	ConnID      string
	RequestID   string
	Text        string
	Attachments []IncomingAttachment
}

// SendResult describes a completed turn
type SendResult struct {
	ConversationID string
	Provider       string
	Text           string
	// AssistantMessageID is empty when the reply was empty and nothing was stored
	AssistantMessageID string
	Usage              *llm.Usage
}

// ChatService orchestrates a chat turn: persist, stream, persist
type ChatService struct {
	messages     domain.MessageRepository
	attachments  domain.AttachmentRepository
	blobs        blob.Store
	binder       *session.Binder
	providers    *ProviderService
	historyLimit int
}

// NewChatService creates a new chat service
func NewChatService(
	messages domain.MessageRepository,
	attachments domain.AttachmentRepository,
	blobs blob.Store,
	binder *session.Binder,
	providers *ProviderService,
	historyLimit int,
) *ChatService {
	return &ChatService{
		messages:     messages,
		attachments:  attachments,
		blobs:        blobs,
		binder:       binder,
		providers:    providers,
		historyLimit: historyLimit,
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Send runs one turn. onDelta is called for every streamed fragment in
// upstream order; an error from it aborts the stream. The user message is
// stored before the upstream call and the assistant message only after a
// successful, non-empty stream.
func (s *ChatService) Send(ctx context.Context, req SendRequest, onDelta func(text string) error) (*SendResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, domain.ErrEmptyMessage
	}

	providerName, provider, err := s.providers.Resolve()
	if err != nil {
		return nil, err
	}

	conversationID, err := s.binder.Bind(ctx, req.ConnID)
	if err != nil {
		return nil, err
	}

	logger := log.With().
		Str("conn_id", req.ConnID).
		Str("request_id", req.RequestID).
		Str("conversation_id", conversationID).
		Str("provider", providerName).
		Logger()

	userMsg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        req.Text,
		Timestamp:      now(),
	}
	if err := s.messages.Create(ctx, userMsg); err != nil {
		return nil, domain.StorageError("Failed to save message", err)
	}

	s.storeAttachments(ctx, userMsg.ID, req.Attachments)

	history, err := s.messages.ListByConversation(ctx, conversationID, s.historyLimit)
	if err != nil {
		return nil, domain.StorageError("Failed to load history", err)
	}

	// the stream goroutine exits once this returns
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := time.Now()
	metrics.StreamsActive.Inc()
	defer metrics.StreamsActive.Dec()

	events, err := provider.StreamComplete(ctx, s.toLLMMessages(history), llm.Options{})
	if err != nil {
		metrics.StreamsTotal.WithLabelValues(providerName, metrics.OutcomeError).Inc()
		logger.Error().Err(err).Msg("Failed to start completion stream")
		return nil, upstreamError(err)
	}

	var sb strings.Builder
	var final *llm.StreamEvent
	var relayErr error
	for ev := range events {
		if ev.Done {
			final = &ev
			continue
		}
		if relayErr != nil {
			continue
		}
		sb.WriteString(ev.Delta)
		if err := onDelta(ev.Delta); err != nil {
			// client gone: stop relaying and let the producer wind down
			relayErr = err
			cancel()
		}
	}
	metrics.StreamDuration.WithLabelValues(providerName).Observe(time.Since(started).Seconds())

	switch {
	case relayErr != nil:
		metrics.StreamsTotal.WithLabelValues(providerName, metrics.OutcomeCancelled).Inc()
		logger.Debug().Err(relayErr).Msg("Stopped relaying to closed connection")
		return nil, domain.Wrap(domain.KindUpstream, domain.CodeCancelled, "Stream aborted", relayErr)
	case final != nil && final.Err != nil && ctx.Err() != nil, final == nil && ctx.Err() != nil:
		metrics.StreamsTotal.WithLabelValues(providerName, metrics.OutcomeCancelled).Inc()
		logger.Info().Msg("Stream cancelled")
		return nil, domain.ErrStreamCancelled
	case final != nil && final.Err != nil:
		metrics.StreamsTotal.WithLabelValues(providerName, metrics.OutcomeError).Inc()
		logger.Error().Err(final.Err).Msg("Completion stream failed")
		return nil, upstreamError(final.Err)
	}

	result := &SendResult{
		ConversationID: conversationID,
		Provider:       providerName,
		Text:           sb.String(),
	}
	if final != nil {
		result.Usage = final.Usage
	}

	if result.Text != "" {
		reply := &domain.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Role:           domain.RoleAssistant,
			Content:        result.Text,
			Timestamp:      now(),
		}
		if result.Usage != nil && result.Usage.CompletionTokens > 0 {
			n := result.Usage.CompletionTokens
			reply.TokenCount = &n
		}
		// a stop arriving now must not lose a finished reply
		if err := s.messages.Create(context.WithoutCancel(ctx), reply); err != nil {
			metrics.StreamsTotal.WithLabelValues(providerName, metrics.OutcomeError).Inc()
			return nil, domain.StorageError("Failed to save reply", err)
		}
		result.AssistantMessageID = reply.ID
	}

	metrics.StreamsTotal.WithLabelValues(providerName, metrics.OutcomeSuccess).Inc()
	logger.Debug().Int("chars", len(result.Text)).Msg("Completion stream finished")
	return result, nil
}

// storeAttachments writes each payload and its row. Failures are logged and
// skipped so the text still goes out.
func (s *ChatService) storeAttachments(ctx context.Context, messageID string, incoming []IncomingAttachment) {
	for _, in := range incoming {
		id := uuid.NewString()
		key, err := s.blobs.Put(ctx, id, in.Data, in.MimeType)
		if err != nil {
			log.Warn().Err(err).Str("attachment", in.Name).Msg("Failed to store attachment payload")
			continue
		}

		a := &domain.Attachment{
			ID:        id,
			MessageID: messageID,
			MimeType:  in.MimeType,
			Name:      in.Name,
			FilePath:  key,
			CreatedAt: now(),
		}
		if err := s.attachments.Create(ctx, a); err != nil {
			log.Warn().Err(err).Str("attachment", in.Name).Msg("Failed to save attachment")
			if derr := s.blobs.Delete(ctx, key); derr != nil {
				log.Warn().Err(derr).Str("key", key).Msg("Failed to remove orphaned attachment payload")
			}
		}
	}
}

func (s *ChatService) toLLMMessages(history []domain.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		msg := llm.Message{Role: llm.Role(m.Role), Content: m.Content}
		for _, a := range m.Attachments {
			key := a.FilePath
			msg.Attachments = append(msg.Attachments, llm.Attachment{
				ID:       a.ID,
				MimeType: a.MimeType,
				Name:     a.Name,
				Load: func(ctx context.Context) ([]byte, error) {
					return s.blobs.Get(ctx, key)
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func upstreamError(err error) *domain.Error {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		return domain.Classify(err)
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	return domain.UpstreamError(err)
}
