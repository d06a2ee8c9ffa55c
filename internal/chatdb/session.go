package chatdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"chatvault/internal/database"
	"chatvault/pkg/models"

	"gorm.io/gorm"
)

// SessionStore keeps the in-progress transcript as a single row.
type SessionStore struct {
	writeMu *sync.Mutex
}

func NewSessionStore(writeMu *sync.Mutex) *SessionStore {
	return &SessionStore{writeMu: writeMu}
}

func (s *SessionStore) Get(ctx context.Context, db *gorm.DB) ([]models.Message, error) {
	record, err := database.GetSessionRecord(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransactionFailure, err)
	}
	if record == nil {
		return []models.Message{}, nil
	}

	var msgs []models.Message
	if err := json.Unmarshal(record.Messages, &msgs); err != nil {
		return nil, fmt.Errorf("%w: invalid session messages: %w", ErrParseFailure, err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

// Set replaces the transcript. An empty transcript removes the row.
func (s *SessionStore) Set(ctx context.Context, db *gorm.DB, msgs []models.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if len(msgs) == 0 {
		if err := database.DeleteSessionRecord(ctx, db); err != nil {
			return fmt.Errorf("%w: %w", ErrTransactionFailure, err)
		}
		return nil
	}

	b, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("could not marshal session messages: %w", err)
	}

	if err := database.UpsertSessionRecord(ctx, db, b); err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionFailure, err)
	}
	return nil
}

func (s *SessionStore) Clear(ctx context.Context, db *gorm.DB) error {
	return s.Set(ctx, db, nil)
}
