// Package sqlstore persists room records and chat messages through GORM on
// SQLite.
package sqlstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Tyrowin/roomrelay/internal/chat"
)

// Group is the durable record of a room.
type Group struct {
	ID        uint      `gorm:"primarykey"`
	Name      string    `gorm:"size:100;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Group) TableName() string { return "chat_groups" }

// Chat is one persisted message.
type Chat struct {
	ID        string    `gorm:"primarykey;size:36"`
	GroupID   uint      `gorm:"not null;index"`
	Group     Group     `gorm:"constraint:OnDelete:CASCADE"`
	Author    string    `gorm:"size:150;not null"`
	Content   string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (Chat) TableName() string { return "chat_messages" }

// Store is a chat.Store backed by a GORM database.
type Store struct {
	db *gorm.DB
}

// Open connects to the SQLite database at dsn and migrates the schema.
// ":memory:" gives a throwaway database.
func Open(dsn string, log zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.New(&log, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer, and every connection to ":memory:"
	// would otherwise see its own empty database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Group{}, &Chat{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return New(db), nil
}

// New wraps an already migrated database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// EnsureRoom creates the group row for name unless it exists.
func (s *Store) EnsureRoom(ctx context.Context, name string) error {
	_, err := ensureGroup(s.db.WithContext(ctx), name)
	return err
}

func ensureGroup(tx *gorm.DB, name string) (Group, error) {
	var g Group
	if err := tx.Where(Group{Name: name}).FirstOrCreate(&g).Error; err != nil {
		return Group{}, fmt.Errorf("ensure group %q: %w", name, err)
	}
	return g, nil
}

// SaveMessage inserts rec, creating its group row if needed.
func (s *Store) SaveMessage(ctx context.Context, rec chat.Record) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := ensureGroup(tx, rec.Room)
		if err != nil {
			return err
		}

		row := Chat{
			ID:        rec.ID.String(),
			GroupID:   g.ID,
			Author:    rec.Author,
			Content:   rec.Content,
			CreatedAt: rec.CreatedAt,
		}
		if err := tx.Omit("Group").Create(&row).Error; err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
}

// HasRoom reports whether a group row exists for name. HasRoom and Messages
// are inspection readers: the relay itself only writes.
func (s *Store) HasRoom(ctx context.Context, name string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Group{}).Where("name = ?", name).Count(&n).Error
	return n > 0, err
}

// Messages returns up to limit of the most recent messages of room, oldest
// first. A limit of zero or less returns every message.
func (s *Store) Messages(ctx context.Context, room string, limit int) ([]chat.Record, error) {
	q := s.db.WithContext(ctx).
		Preload("Group").
		Joins("JOIN chat_groups ON chat_groups.id = chat_messages.group_id").
		Where("chat_groups.name = ?", room).
		Order("chat_messages.created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []Chat
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list messages of %q: %w", room, err)
	}

	records := make([]chat.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	slices.Reverse(records)
	return records, nil
}

func (c Chat) record() (chat.Record, error) {
	rec := chat.Record{
		Room:      c.Group.Name,
		Author:    c.Author,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
	}
	if err := rec.ID.UnmarshalText([]byte(c.ID)); err != nil {
		return chat.Record{}, fmt.Errorf("message id %q: %w", c.ID, err)
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
