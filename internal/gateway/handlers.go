package gateway

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/Rrens/chat-gateway/internal/domain"
	"github.com/Rrens/chat-gateway/internal/service"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func (d *Dispatcher) handlePing(_ context.Context, c *Conn, env *Envelope) error {
	c.reply(TypePong, env.Payload)
	return nil
}

func (d *Dispatcher) handleEcho(_ context.Context, c *Conn, env *Envelope) error {
	c.reply(TypeEcho, env.Payload)
	return nil
}

// handleSend validates the turn and starts its stream in the background so
// the read loop stays responsive to chat.stop and further requests.
func (d *Dispatcher) handleSend(ctx context.Context, c *Conn, env *Envelope) error {
	var p sendPayload
	if err := d.bind(env, &p); err != nil {
		return err
	}
	if strings.TrimSpace(p.Text) == "" {
		return domain.ErrEmptyMessage
	}

	attachments := decodeAttachments(c.ID, p.Attachments)

	if d.limiter != nil {
		allowed, _, _, err := d.limiter.Allow(ctx, c.RemoteKey)
		if err != nil {
			// limiter backend down: let the message through
			log.Warn().Err(err).Str("conn_id", c.ID).Msg("Rate limiter unavailable")
		} else if !allowed {
			return domain.ErrRateLimited
		}
	}

	// ids generated here are for bookkeeping only and never echoed
	key := p.RequestID
	if key == "" {
		key = uuid.NewString()
	}
	streamCtx, ok := c.beginStream(key)
	if !ok {
		return domain.ErrBusy
	}

	req := service.SendRequest{
		ConnID:      c.ID,
		RequestID:   key,
		Text:        p.Text,
		Attachments: attachments,
	}
	go d.runStream(streamCtx, c, key, p.RequestID, req)
	return nil
}

// runStream relays one turn. The stream is unregistered before the
// terminal frame goes out.
func (d *Dispatcher) runStream(ctx context.Context, c *Conn, key, requestID string, req service.SendRequest) {
	result, err := d.send(ctx, c, requestID, req)
	c.endStream(key)

	if err != nil {
		c.replyError(TypeChatError, requestID, domain.Classify(err))
		return
	}
	c.reply(TypeChatDone, donePayload{
		RequestID:      requestID,
		ConversationID: result.ConversationID,
		MessageID:      result.AssistantMessageID,
		Usage:          result.Usage,
	})
}

func (d *Dispatcher) send(ctx context.Context, c *Conn, requestID string, req service.SendRequest) (result *service.SendResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("conn_id", c.ID).Str("request_id", req.RequestID).Str("stack", string(debug.Stack())).
				Msgf("Stream panic: %v", r)
			err = domain.Wrap(domain.KindUpstream, domain.CodeInternal, "Internal error", fmt.Errorf("panic: %v", r))
		}
	}()

	return d.chat.Send(ctx, req, func(text string) error {
		return c.Send(TypeChatDelta, deltaPayload{Text: text, RequestID: requestID})
	})
}

func (d *Dispatcher) handleHistory(ctx context.Context, c *Conn, env *Envelope) error {
	var p conversationPayload
	if err := d.bind(env, &p); err != nil {
		return err
	}

	messages, err := d.conversations.History(ctx, c.ID, p.ConversationID)
	if err != nil {
		return err
	}

	c.reply(TypeChatHistory, historyPayload{
		ConversationID: p.ConversationID,
		Messages:       toMessageViews(messages),
	})
	return nil
}

func (d *Dispatcher) handleList(ctx context.Context, c *Conn, _ *Envelope) error {
	conversations, err := d.conversations.List(ctx)
	if err != nil {
		return err
	}
	c.reply(TypeChatList, listPayload{Conversations: toConversationViews(conversations)})
	return nil
}

func (d *Dispatcher) handleCreate(ctx context.Context, c *Conn, env *Envelope) error {
	var p createPayload
	if err := d.bind(env, &p); err != nil {
		return err
	}

	conv, err := d.conversations.Create(ctx, c.ID, p.Title)
	if err != nil {
		return err
	}
	c.reply(TypeChatCreate, createdPayload{ID: conv.ID, Title: conv.Title})
	return nil
}

func (d *Dispatcher) handleDelete(ctx context.Context, c *Conn, env *Envelope) error {
	var p conversationPayload
	if err := d.bind(env, &p); err != nil {
		return err
	}

	if err := d.conversations.Delete(ctx, p.ConversationID); err != nil {
		return err
	}
	c.reply(TypeChatDelete, deletedPayload{ConversationID: p.ConversationID, Success: true})
	return nil
}

// handleStop cancels a stream; the stream itself reports the cancellation
func (d *Dispatcher) handleStop(_ context.Context, c *Conn, env *Envelope) error {
	var p stopPayload
	if err := d.bind(env, &p); err != nil {
		return err
	}
	if !c.stopStream(p.RequestID) {
		return domain.NewError(domain.KindValidation, domain.CodeNotFound, "No stream in progress for request %s", p.RequestID)
	}
	return nil
}

// handleProviderConfig always answers with an ack, negative on failure
func (d *Dispatcher) handleProviderConfig(_ context.Context, c *Conn, env *Envelope) error {
	var p providerConfigPayload
	if err := d.bind(env, &p); err != nil {
		c.reply(TypeProviderConfigAck, ackPayload{Provider: p.Provider, Error: domain.Classify(err).ClientMessage()})
		return nil
	}

	err := d.providers.Configure(service.ProviderConfigRequest{
		Provider:     p.Provider,
		APIKey:       p.APIKey,
		DefaultModel: p.DefaultModel,
		BaseURL:      p.BaseURL,
	})
	if err != nil {
		log.Warn().Err(err).Str("conn_id", c.ID).Str("provider", p.Provider).Msg("Provider configuration rejected")
		c.reply(TypeProviderConfigAck, ackPayload{Provider: p.Provider, Error: domain.Classify(err).ClientMessage()})
		return nil
	}

	c.reply(TypeProviderConfigAck, ackPayload{Provider: p.Provider, Success: true})
	return nil
}
