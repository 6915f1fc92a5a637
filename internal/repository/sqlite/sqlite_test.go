package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Rrens/chat-gateway/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	require.NoError(t, RunMigrations(path))

	db, err := NewDB(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))

	m, err := NewMigrator(path)
	require.NoError(t, err)
	defer m.Close()
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestConversationRepository_Ensure(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationRepository(db.SQL)
	ctx := context.Background()

	created, err := repo.Ensure(ctx, "c1", domain.DefaultConversationTitle)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Ensure(ctx, "c1", "other title")
	require.NoError(t, err)
	assert.False(t, created)

	c, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultConversationTitle, c.Title)

	list, err := repo.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestConversationRepository_GetMissing(t *testing.T) {
	db := newTestDB(t)
	repo := NewConversationRepository(db.SQL)

	_, err := repo.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.True(t, errors.Is(repo.Delete(context.Background(), "nope"), domain.ErrNotFound))
}

func TestMessageRepository_OrderingAndTouch(t *testing.T) {
	db := newTestDB(t)
	convs := NewConversationRepository(db.SQL)
	msgs := NewMessageRepository(db.SQL)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b"} {
		require.NoError(t, convs.Create(ctx, &domain.Conversation{ID: id, Title: id, CreatedAt: base, UpdatedAt: base}))
	}

	// equal timestamps keep insertion order
	for i, content := range []string{"one", "two", "three"} {
		ts := base.Add(time.Duration(i/2) * time.Second)
		require.NoError(t, msgs.Create(ctx, &domain.Message{
			ID: content, ConversationID: "a", Role: domain.RoleUser, Content: content, Timestamp: ts,
		}))
	}
	tokens := 7
	require.NoError(t, msgs.Create(ctx, &domain.Message{
		ID: "four", ConversationID: "a", Role: domain.RoleAssistant, Content: "four",
		Timestamp: base.Add(5 * time.Second), TokenCount: &tokens,
	}))

	all, err := msgs.ListByConversation(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "one", all[0].Content)
	assert.Equal(t, "two", all[1].Content)
	assert.Equal(t, "four", all[3].Content)
	require.NotNil(t, all[3].TokenCount)
	assert.Equal(t, 7, *all[3].TokenCount)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].Timestamp.Before(all[i-1].Timestamp))
	}

	last, err := msgs.ListByConversation(ctx, "a", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "three", last[0].Content)
	assert.Equal(t, "four", last[1].Content)

	list, err := convs.List(ctx, 100)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, base.Add(5*time.Second), list[0].UpdatedAt)
}

func TestMessageRepository_RequiresConversation(t *testing.T) {
	db := newTestDB(t)
	msgs := NewMessageRepository(db.SQL)

	err := msgs.Create(context.Background(), &domain.Message{
		ID: "m", ConversationID: "missing", Role: domain.RoleUser, Content: "x", Timestamp: time.Now(),
	})
	assert.Error(t, err)
}

func TestDeleteCascades(t *testing.T) {
	db := newTestDB(t)
	convs := NewConversationRepository(db.SQL)
	msgs := NewMessageRepository(db.SQL)
	atts := NewAttachmentRepository(db.SQL)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, convs.Create(ctx, &domain.Conversation{ID: "c", Title: "t", CreatedAt: now, UpdatedAt: now}))
	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, msgs.Create(ctx, &domain.Message{ID: id, ConversationID: "c", Role: domain.RoleUser, Content: id, Timestamp: now}))
	}
	require.NoError(t, atts.Create(ctx, &domain.Attachment{
		ID: "att", MessageID: "m1", MimeType: "image/png", Name: "a.png", FilePath: "at/att", CreatedAt: now,
	}))

	withAtt, err := msgs.ListByConversation(ctx, "c", 0)
	require.NoError(t, err)
	require.Len(t, withAtt[0].Attachments, 1)
	assert.Equal(t, "a.png", withAtt[0].Attachments[0].Name)
	assert.Empty(t, withAtt[1].Attachments)

	require.NoError(t, convs.Delete(ctx, "c"))

	var n int
	require.NoError(t, db.SQL.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, db.SQL.QueryRow(`SELECT COUNT(*) FROM attachments`).Scan(&n))
	assert.Zero(t, n)

	rest, err := msgs.ListByConversation(ctx, "c", 0)
	require.NoError(t, err)
	assert.Empty(t, rest)
}
