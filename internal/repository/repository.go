// Package repository opens the persistence backend selected by configuration.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Rrens/chat-gateway/internal/config"
	"github.com/Rrens/chat-gateway/internal/domain"
	"github.com/Rrens/chat-gateway/internal/repository/postgres"
	"github.com/Rrens/chat-gateway/internal/repository/sqlite"
	"github.com/golang-migrate/migrate/v4"
)

// Store bundles the repositories of one backend
type Store struct {
	Conversations domain.ConversationRepository
	Messages      domain.MessageRepository
	Attachments   domain.AttachmentRepository

	ping  func(ctx context.Context) error
	close func() error
}

// Open connects to the configured backend, migrating first when enabled
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	if cfg.AutoMigrate {
		if err := RunMigrations(cfg); err != nil {
			return nil, err
		}
	}

	switch cfg.Driver {
	case "", "sqlite":
		db, err := sqlite.NewDB(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return &Store{
			Conversations: sqlite.NewConversationRepository(db.SQL),
			Messages:      sqlite.NewMessageRepository(db.SQL),
			Attachments:   sqlite.NewAttachmentRepository(db.SQL),
			ping:          db.Ping,
			close:         db.Close,
		}, nil
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Store{
			Conversations: postgres.NewConversationRepository(db.Pool),
			Messages:      postgres.NewMessageRepository(db.Pool),
			Attachments:   postgres.NewAttachmentRepository(db.Pool),
			ping:          db.Ping,
			close:         db.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// Ping verifies the backend is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// Close releases the backend connections
func (s *Store) Close() error {
	return s.close()
}

// NewMigrator builds a migrator for the configured backend
func NewMigrator(cfg config.DatabaseConfig) (*migrate.Migrate, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return sqlite.NewMigrator(cfg.Path)
	case "postgres":
		return postgres.NewMigrator(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// RunMigrations applies all pending migrations for the configured backend
func RunMigrations(cfg config.DatabaseConfig) error {
	switch cfg.Driver {
	case "", "sqlite":
		return sqlite.RunMigrations(cfg.Path)
	case "postgres":
		return postgres.RunMigrations(cfg.DSN())
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// MigrationStatus reports the applied version. A fresh database reports
// version 0.
func MigrationStatus(cfg config.DatabaseConfig) (uint, bool, error) {
	m, err := NewMigrator(cfg)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, dirty, nil
}
