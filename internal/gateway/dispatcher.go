package gateway

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/Rrens/chat-gateway/internal/domain"
	"github.com/Rrens/chat-gateway/internal/metrics"
	"github.com/Rrens/chat-gateway/internal/security"
	"github.com/Rrens/chat-gateway/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

type handlerFunc func(ctx context.Context, c *Conn, env *Envelope) error

// Dispatcher routes decoded envelopes to their handlers
type Dispatcher struct {
	chat          *service.ChatService
	conversations *service.ConversationService
	providers     *service.ProviderService
	limiter       security.Limiter
	validate      *validator.Validate
	handlers      map[string]handlerFunc
}

// NewDispatcher creates a dispatcher. limiter may be nil to disable rate
// limiting of chat.send.
func NewDispatcher(
	chat *service.ChatService,
	conversations *service.ConversationService,
	providers *service.ProviderService,
	limiter security.Limiter,
) *Dispatcher {
	d := &Dispatcher{
		chat:          chat,
		conversations: conversations,
		providers:     providers,
		limiter:       limiter,
		validate:      validator.New(),
	}
	d.handlers = map[string]handlerFunc{
		TypePing:           d.handlePing,
		TypeEcho:           d.handleEcho,
		TypeChatSend:       d.handleSend,
		TypeChatHistory:    d.handleHistory,
		TypeChatList:       d.handleList,
		TypeChatCreate:     d.handleCreate,
		TypeChatDelete:     d.handleDelete,
		TypeChatStop:       d.handleStop,
		TypeProviderConfig: d.handleProviderConfig,
	}
	return d
}

// Dispatch handles one inbound frame. Every failure is answered with an
// envelope; nothing here closes the connection.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Conn, frame []byte) {
	env, err := Decode(frame)
	if err != nil {
		metrics.FramesTotal.WithLabelValues("invalid").Inc()
		c.replyError(TypeError, "", domain.Classify(err))
		return
	}

	handler, ok := d.handlers[env.Type]
	if !ok {
		metrics.FramesTotal.WithLabelValues("unknown").Inc()
		c.replyError(TypeError, env.requestID(), domain.UnknownType(env.Type))
		return
	}
	metrics.FramesTotal.WithLabelValues(env.Type).Inc()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("conn_id", c.ID).
				Str("type", env.Type).
				Str("stack", string(debug.Stack())).
				Msgf("Handler panic: %v", r)
			c.replyError(errorTypeFor(env.Type), env.requestID(),
				domain.Wrap(domain.KindProtocol, domain.CodeInternal, "Internal error", fmt.Errorf("panic: %v", r)))
		}
	}()

	if err := handler(ctx, c, env); err != nil {
		de := domain.Classify(err)
		logEvent := log.Debug()
		if de.Kind == domain.KindStorage || de.Code == domain.CodeInternal {
			logEvent = log.Error()
		}
		logEvent.Err(err).Str("conn_id", c.ID).Str("type", env.Type).Msg("Request failed")
		c.replyError(errorTypeFor(env.Type), env.requestID(), de)
	}
}

// errorTypeFor picks the error envelope: chat requests fail with
// chat.error, everything else with error.
func errorTypeFor(typ string) string {
	if strings.HasPrefix(typ, "chat.") {
		return TypeChatError
	}
	return TypeError
}

// bind decodes and validates a payload
func (d *Dispatcher) bind(env *Envelope, v any) error {
	if err := env.decodePayload(v); err != nil {
		return err
	}
	if err := d.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return domain.NewError(domain.KindValidation, domain.CodeInvalidPayload,
				"Invalid payload: field %s failed %s", verrs[0].Field(), verrs[0].Tag())
		}
		return domain.InvalidPayload(err)
	}
	return nil
}
