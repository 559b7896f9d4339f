package history

import (
	"context"
	"errors"

	"github.com/eleven-am/tts-stream/internal/shared"
	"gorm.io/gorm"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Generation{})
}

func (s *Store) Create(ctx context.Context, g *Generation) error {
	if g.ID == "" {
		g.ID = shared.NewID("gen_")
	}
	return s.db.WithContext(ctx).Create(g).Error
}

func (s *Store) Get(ctx context.Context, id string) (*Generation, error) {
	var g Generation
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// List returns the most recent generations, optionally filtered by connection.
func (s *Store) List(ctx context.Context, connectionID string, limit int) ([]*Generation, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if connectionID != "" {
		q = q.Where("connection_id = ?", connectionID)
	}

	var out []*Generation
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
