// Package session tracks which conversation each open connection is bound to.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Rrens/chat-gateway/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Binder maps connection ids to conversation ids. Bindings live only as
// long as the connection.
type Binder struct {
	conversations domain.ConversationRepository
	group         singleflight.Group

	mu       sync.RWMutex
	bindings map[string]string
}

// NewBinder creates a binder backed by the conversation repository
func NewBinder(conversations domain.ConversationRepository) *Binder {
	return &Binder{
		conversations: conversations,
		bindings:      make(map[string]string),
	}
}

// Current returns the conversation bound to the connection, if any
func (b *Binder) Current(connID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.bindings[connID]
	return id, ok
}

// Bind returns the bound conversation, creating and binding a new one on
// first use. Concurrent first calls for one connection create one row.
func (b *Binder) Bind(ctx context.Context, connID string) (string, error) {
	if id, ok := b.Current(connID); ok {
		return id, nil
	}

	v, err, _ := b.group.Do(connID, func() (any, error) {
		if id, ok := b.Current(connID); ok {
			return id, nil
		}

		now := time.Now().UTC()
		c := &domain.Conversation{
			ID:        uuid.NewString(),
			Title:     domain.DefaultConversationTitle,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := b.conversations.Create(ctx, c); err != nil {
			return "", domain.StorageError("Failed to create conversation", err)
		}

		b.Set(connID, c.ID)
		return c.ID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Rebind binds the connection to conversationID, creating the conversation
// when it does not exist yet. It reports whether a row was created.
func (b *Binder) Rebind(ctx context.Context, connID, conversationID string) (bool, error) {
	if conversationID == "" {
		return false, domain.ErrMissingID
	}

	created, err := b.conversations.Ensure(ctx, conversationID, domain.DefaultConversationTitle)
	if err != nil {
		return false, domain.StorageError(fmt.Sprintf("Failed to open conversation %s", conversationID), err)
	}

	b.Set(connID, conversationID)
	return created, nil
}

// Set overwrites the binding of a connection
func (b *Binder) Set(connID, conversationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bindings[connID] = conversationID
}

// Release forgets the connection
func (b *Binder) Release(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bindings, connID)
}

// ReleaseConversation drops every binding to a deleted conversation
func (b *Binder) ReleaseConversation(conversationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for connID, id := range b.bindings {
		if id == conversationID {
			delete(b.bindings, connID)
		}
	}
}

// Len returns the number of bound connections
func (b *Binder) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bindings)
}
