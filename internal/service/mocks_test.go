package service

import (
	"context"

	"github.com/Rrens/chat-gateway/internal/domain"
	"github.com/Rrens/chat-gateway/internal/llm"
	"github.com/stretchr/testify/mock"
)

// MockMessageRepository mocks the MessageRepository interface
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Create(ctx context.Context, message *domain.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockMessageRepository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	return args.Get(0).([]domain.Message), args.Error(1)
}

// MockConversationRepository mocks the ConversationRepository interface
type MockConversationRepository struct {
	mock.Mock
}

func (m *MockConversationRepository) Create(ctx context.Context, conversation *domain.Conversation) error {
	args := m.Called(ctx, conversation)
	return args.Error(0)
}

func (m *MockConversationRepository) Ensure(ctx context.Context, id, title string) (bool, error) {
	args := m.Called(ctx, id, title)
	return args.Bool(0), args.Error(1)
}

func (m *MockConversationRepository) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepository) List(ctx context.Context, limit int) ([]domain.Conversation, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]domain.Conversation), args.Error(1)
}

func (m *MockConversationRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockAttachmentRepository mocks the AttachmentRepository interface
type MockAttachmentRepository struct {
	mock.Mock
}

func (m *MockAttachmentRepository) Create(ctx context.Context, attachment *domain.Attachment) error {
	args := m.Called(ctx, attachment)
	return args.Error(0)
}

func (m *MockAttachmentRepository) ListByConversation(ctx context.Context, conversationID string) ([]domain.Attachment, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).([]domain.Attachment), args.Error(1)
}

// MockBlobStore mocks blob.Store
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, id string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, id, data, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBlobStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockLLMProvider mocks the LLM Provider interface
type MockLLMProvider struct {
	mock.Mock
}

func (m *MockLLMProvider) Name() string {
	return "mock"
}

func (m *MockLLMProvider) AvailableModels() []string {
	return []string{"mock-model"}
}

func (m *MockLLMProvider) DefaultModel() string {
	return "mock-model"
}

func (m *MockLLMProvider) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	args := m.Called(ctx, messages, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

func (m *MockLLMProvider) StreamComplete(ctx context.Context, messages []llm.Message, opts llm.Options) (<-chan llm.StreamEvent, error) {
	args := m.Called(ctx, messages, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan llm.StreamEvent), args.Error(1)
}

// streamOf builds a finished stream with the given deltas and terminal error
func streamOf(err error, deltas ...string) <-chan llm.StreamEvent {
	return llm.Pipe(context.Background(), func(w *llm.StreamWriter) error {
		for _, d := range deltas {
			if werr := w.Delta(d); werr != nil {
				return werr
			}
		}
		w.SetUsage(&llm.Usage{CompletionTokens: len(deltas), TotalTokens: len(deltas) + 1})
		return err
	})
}

// staticSecrets resolves credentials from a fixed map
type staticSecrets map[string]llm.ProviderOptions

func (s staticSecrets) Credentials(provider string) (llm.ProviderOptions, bool) {
	opts, ok := s[provider]
	return opts, ok
}

// newTestRegistry registers a mock provider factory under the given names
func newTestRegistry(p llm.Provider, names ...string) *llm.Registry {
	r := llm.NewRegistry()
	for _, name := range names {
		r.Register(name, func(llm.ProviderOptions) (llm.Provider, error) { return p, nil }, true)
	}
	return r
}
