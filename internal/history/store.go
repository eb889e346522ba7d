// Package history persists finished conversations in a local sqlite database.
package history

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rbright/conversa/internal/transcript"
)

// ErrNotFound is returned by Get for an unknown record id.
var ErrNotFound = errors.New("history record not found")

// Record is one stored conversation.
type Record struct {
	ID        uint               `gorm:"primaryKey" json:"id"`
	SessionID string             `gorm:"size:36;not null;uniqueIndex" json:"session_id"`
	Profile   string             `gorm:"size:64;not null;index" json:"profile"`
	Label     string             `gorm:"size:100;not null" json:"label"`
	StartedAt time.Time          `gorm:"not null" json:"started_at"`
	EndedAt   time.Time          `gorm:"not null" json:"ended_at"`
	Entries   []transcript.Entry `gorm:"serializer:json;type:text" json:"entries"`
	CreatedAt time.Time          `json:"created_at"`
}

func (Record) TableName() string {
	return "conversations"
}

// Store wraps the gorm handle.
type Store struct {
	db *gorm.DB
}

// Open creates (or reuses) the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history database %q: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open history database %q: %w", path, err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return &Store{db: db}, nil
}

// Save inserts rec and fills in its id.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("nil history record")
	}
	if strings.TrimSpace(rec.SessionID) == "" {
		return errors.New("history record requires a session id")
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("save history record: %w", err)
	}
	return nil
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (s *Store) List(limit int) ([]Record, error) {
	query := s.db.Order("started_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []Record
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list history records: %w", err)
	}
	return records, nil
}

// Get loads one record by id.
func (s *Store) Get(id uint) (Record, error) {
	var rec Record
	err := s.db.First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get history record %d: %w", id, err)
	}
	return rec, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewLabel returns a display label such as "Paciente #4821".
func NewLabel(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "Paciente"
	}
	return fmt.Sprintf("%s #%d", prefix, 1000+rand.IntN(9000))
}
