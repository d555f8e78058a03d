package store

import (
	"context"

	"dinq_federation/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Query 等值条件（列名 -> 值）
type Query map[string]any

// Collection 单个实体集合的 CRUD
type Collection[T any] interface {
	NewInstance(ctx context.Context, record *T) error
	GetInstances(ctx context.Context, q Query) ([]T, error)
	UpdateInstance(ctx context.Context, record *T, columns ...string) error
	UpdateWhere(ctx context.Context, q Query, values map[string]any) (int64, error)
	DeleteInstance(ctx context.Context, id uuid.UUID) error
}

// Store 关系存储：users / friends / invitations / blocks，外加通知与动态日志
type Store struct {
	db *gorm.DB

	Users         Collection[model.User]
	Friends       Collection[model.Friend]
	Invitations   Collection[model.Invitation]
	Blocks        Collection[model.Block]
	Notifications *LogCollection[model.Notification]
	Activities    *LogCollection[model.Activity]
}

// New 基于 gorm 连接构造 Store
func New(db *gorm.DB) *Store {
	return &Store{
		db:            db,
		Users:         &gormCollection[model.User]{db: db, name: "users"},
		Friends:       &gormCollection[model.Friend]{db: db, name: "friends"},
		Invitations:   &gormCollection[model.Invitation]{db: db, name: "invitations"},
		Blocks:        &gormCollection[model.Block]{db: db, name: "blocks"},
		Notifications: &LogCollection[model.Notification]{gormCollection[model.Notification]{db: db, name: "notifications"}},
		Activities:    &LogCollection[model.Activity]{gormCollection[model.Activity]{db: db, name: "activities"}},
	}
}

// DB 底层连接
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormCollection[T any] struct {
	db   *gorm.DB
	name string
}

func (c *gormCollection[T]) NewInstance(ctx context.Context, record *T) error {
	return wrap("create", c.name, c.db.WithContext(ctx).Create(record).Error)
}

func (c *gormCollection[T]) GetInstances(ctx context.Context, q Query) ([]T, error) {
	var out []T
	tx := c.db.WithContext(ctx)
	if len(q) > 0 {
		tx = tx.Where(map[string]interface{}(q))
	}
	if err := tx.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, wrap("query", c.name, err)
	}
	return out, nil
}

func (c *gormCollection[T]) UpdateInstance(ctx context.Context, record *T, columns ...string) error {
	tx := c.db.WithContext(ctx).Model(record)
	if len(columns) > 0 {
		tx = tx.Select(columns)
	} else {
		tx = tx.Select("*")
	}
	return wrap("update", c.name, tx.Updates(record).Error)
}

// UpdateWhere 条件更新，返回受影响行数（用于状态的原子迁移）
func (c *gormCollection[T]) UpdateWhere(ctx context.Context, q Query, values map[string]any) (int64, error) {
	if len(q) == 0 {
		return 0, wrap("update", c.name, gorm.ErrMissingWhereClause)
	}
	var zero T
	res := c.db.WithContext(ctx).Model(&zero).Where(map[string]interface{}(q)).Updates(values)
	if res.Error != nil {
		return 0, wrap("update", c.name, res.Error)
	}
	return res.RowsAffected, nil
}

func (c *gormCollection[T]) DeleteInstance(ctx context.Context, id uuid.UUID) error {
	var zero T
	res := c.db.WithContext(ctx).Delete(&zero, "id = ?", id)
	if res.Error != nil {
		return wrap("delete", c.name, res.Error)
	}
	if res.RowsAffected == 0 {
		return wrap("delete", c.name, ErrNotFound)
	}
	return nil
}

// LogCollection 按 cursor 追加/回放的日志集合
type LogCollection[T any] struct {
	gormCollection[T]
}

// After 查询 cursor > after 的记录，按 cursor 升序
func (c *LogCollection[T]) After(ctx context.Context, userID uuid.UUID, appID string, after int64, limit int) ([]T, error) {
	var out []T
	tx := c.db.WithContext(ctx).
		Where("user_id = ? AND app_id = ? AND seq > ?", userID, appID, after).
		Order("seq ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&out).Error; err != nil {
		return nil, wrap("replay", c.name, err)
	}
	return out, nil
}
