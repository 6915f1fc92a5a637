package gateway

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/Rrens/chat-gateway/internal/domain"
	"github.com/Rrens/chat-gateway/internal/llm"
	"github.com/Rrens/chat-gateway/internal/service"
	"github.com/rs/zerolog/log"
)

// Inbound payloads

type sendPayload struct {
	Text        string              `json:"text"`
	RequestID   string              `json:"requestId" validate:"max=128"`
	Attachments []attachmentPayload `json:"attachments" validate:"max=16,dive"`
}

type attachmentPayload struct {
	ID   string `json:"id"`
	Type string `json:"type" validate:"required"`
	Data string `json:"data" validate:"required"`
	Name string `json:"name" validate:"max=255"`
}

type conversationPayload struct {
	ConversationID string `json:"conversationId"`
	RequestID      string `json:"requestId"`
}

type createPayload struct {
	Title     string `json:"title" validate:"max=200"`
	RequestID string `json:"requestId"`
}

type stopPayload struct {
	RequestID string `json:"requestId" validate:"required"`
}

type providerConfigPayload struct {
	Provider     string `json:"provider" validate:"required"`
	APIKey       string `json:"apiKey"`
	DefaultModel string `json:"defaultModel"`
	BaseURL      string `json:"baseURL" validate:"omitempty,url"`
}

// Outbound payloads

type errorPayload struct {
	Error     string           `json:"error"`
	Code      domain.ErrorCode `json:"code,omitempty"`
	RequestID string           `json:"requestId,omitempty"`
}

type deltaPayload struct {
	Text      string `json:"text"`
	RequestID string `json:"requestId,omitempty"`
}

type donePayload struct {
	RequestID      string     `json:"requestId,omitempty"`
	ConversationID string     `json:"conversationId"`
	MessageID      string     `json:"messageId,omitempty"`
	Usage          *llm.Usage `json:"usage,omitempty"`
}

type historyPayload struct {
	ConversationID string        `json:"conversationId"`
	Messages       []messageView `json:"messages"`
}

type messageView struct {
	ID          string           `json:"id"`
	Role        string           `json:"role"`
	Content     string           `json:"content"`
	Timestamp   string           `json:"timestamp"`
	TokenCount  *int             `json:"tokenCount,omitempty"`
	Attachments []attachmentView `json:"attachments,omitempty"`
}

type attachmentView struct {
	ID       string `json:"id"`
	MimeType string `json:"mimeType"`
	Name     string `json:"name"`
}

type listPayload struct {
	Conversations []conversationView `json:"conversations"`
}

type conversationView struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type createdPayload struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type deletedPayload struct {
	ConversationID string `json:"conversationId"`
	Success        bool   `json:"success"`
}

type ackPayload struct {
	Provider string `json:"provider"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

func toMessageViews(messages []domain.Message) []messageView {
	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		v := messageView{
			ID:         m.ID,
			Role:       string(m.Role),
			Content:    m.Content,
			Timestamp:  formatTime(m.Timestamp),
			TokenCount: m.TokenCount,
		}
		for _, a := range m.Attachments {
			v.Attachments = append(v.Attachments, attachmentView{ID: a.ID, MimeType: a.MimeType, Name: a.Name})
		}
		views = append(views, v)
	}
	return views
}

func toConversationViews(conversations []domain.Conversation) []conversationView {
	views := make([]conversationView, 0, len(conversations))
	for _, c := range conversations {
		views = append(views, conversationView{
			ID:        c.ID,
			Title:     c.Title,
			CreatedAt: formatTime(c.CreatedAt),
			UpdatedAt: formatTime(c.UpdatedAt),
		})
	}
	return views
}

// decodeAttachments turns base64 payloads into raw bytes. Data URLs
// ("data:image/png;base64,...") are accepted as well. Attachments that fail
// to decode are dropped with a warning so the text still goes out.
func decodeAttachments(connID string, in []attachmentPayload) []service.IncomingAttachment {
	out := make([]service.IncomingAttachment, 0, len(in))
	for i, a := range in {
		data := a.Data
		if strings.HasPrefix(data, "data:") {
			if idx := strings.Index(data, ","); idx >= 0 {
				data = data[idx+1:]
			}
		}

		name := a.Name
		if name == "" {
			name = a.ID
		}
		if name == "" {
			name = "attachment-" + strconv.Itoa(i+1)
		}

		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			log.Warn().Err(err).Str("conn_id", connID).Str("attachment", name).
				Msg("Dropping attachment with invalid encoding")
			continue
		}
		out = append(out, service.IncomingAttachment{MimeType: a.Type, Name: name, Data: raw})
	}
	return out
}
