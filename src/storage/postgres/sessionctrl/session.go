package sessionctrl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docchat/src/core/session"
)

// SessionBlob is the database row backing one session. The payload is the
// self-describing JSON record; UpdatedAt exists only for operators.
type SessionBlob struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Data      []byte    `gorm:"not null" json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionService stores session records as rows, one per session, and
// satisfies session.BlobStore. Row upserts are transactional, which gives
// the atomic-write guarantee the store contract asks for.
type SessionService struct {
	db *gorm.DB
}

func NewSessionService(db *gorm.DB) (*SessionService, error) {
	if err := db.AutoMigrate(&SessionBlob{}); err != nil {
		return nil, fmt.Errorf("failed to migrate session table: %v", err)
	}
	return &SessionService{db: db}, nil
}

var _ session.BlobStore = (*SessionService)(nil)

func (s *SessionService) Put(ctx context.Context, key string, data []byte) error {
	blob := &SessionBlob{ID: key, Data: data}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(blob)
	if result.Error != nil {
		return fmt.Errorf("failed to save session row: %v", result.Error)
	}
	return nil
}

func (s *SessionService) Get(ctx context.Context, key string) ([]byte, error) {
	var blob SessionBlob
	result := s.db.WithContext(ctx).First(&blob, "id = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session row: %v", result.Error)
	}
	return blob.Data, nil
}

func (s *SessionService) Delete(ctx context.Context, key string) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&SessionBlob{}, "id = ?", key)
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete session row: %v", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *SessionService) List(ctx context.Context) ([][]byte, error) {
	var blobs []SessionBlob
	result := s.db.WithContext(ctx).Find(&blobs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list session rows: %v", result.Error)
	}

	records := make([][]byte, 0, len(blobs))
	for _, b := range blobs {
		records = append(records, b.Data)
	}
	return records, nil
}

func (s *SessionService) Clear(ctx context.Context) error {
	result := s.db.WithContext(ctx).Where("1 = 1").Delete(&SessionBlob{})
	if result.Error != nil {
		return fmt.Errorf("failed to clear session rows: %v", result.Error)
	}
	return nil
}
