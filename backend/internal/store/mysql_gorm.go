package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kanbanServer/backend/internal/model"
)

type boardEntity struct {
	ID          string `gorm:"primaryKey;type:varchar(64)"`
	Title       string `gorm:"type:varchar(255);not null"`
	Description string `gorm:"type:text"`
	OwnerID     string `gorm:"type:varchar(64);index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (boardEntity) TableName() string { return "boards" }

type itemEntity struct {
	ID          string   `gorm:"primaryKey;type:varchar(64)"`
	Kind        string   `gorm:"type:varchar(16);not null"`
	BoardID     string   `gorm:"type:varchar(64);index;not null"`
	ParentID    string   `gorm:"type:varchar(64);index:idx_parent_order,priority:1;not null"`
	SortOrder   float64  `gorm:"column:sort_order;index:idx_parent_order,priority:2"`
	Title       string   `gorm:"type:varchar(255);not null"`
	Description string   `gorm:"type:text"`
	AssigneeID  string   `gorm:"type:varchar(64)"`
	Labels      []string `gorm:"serializer:json;type:json"`
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (itemEntity) TableName() string { return "board_items" }

func boardFromEntity(e boardEntity) model.Board {
	return model.Board{ID: e.ID, Title: e.Title, Description: e.Description, OwnerID: e.OwnerID, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt}
}

func itemFromEntity(e itemEntity) model.Item {
	return model.Item{
		ID:          e.ID,
		Kind:        model.Kind(e.Kind),
		BoardID:     e.BoardID,
		ParentID:    e.ParentID,
		Order:       e.SortOrder,
		Title:       e.Title,
		Description: e.Description,
		AssigneeID:  e.AssigneeID,
		Labels:      e.Labels,
		DueDate:     e.DueDate,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func itemToEntity(it model.Item) itemEntity {
	return itemEntity{
		ID:          it.ID,
		Kind:        string(it.Kind),
		BoardID:     it.BoardID,
		ParentID:    it.ParentID,
		SortOrder:   it.Order,
		Title:       it.Title,
		Description: it.Description,
		AssigneeID:  it.AssigneeID,
		Labels:      it.Labels,
		DueDate:     it.DueDate,
		CreatedAt:   it.CreatedAt,
		UpdatedAt:   it.UpdatedAt,
	}
}

func InitMySQL(dsn string) (*gorm.DB, error) {
	return gorm.Open(mysql.Open(dsn), &gorm.Config{})
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&boardEntity{}, &itemEntity{})
}

func dbErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return fmt.Errorf("%w: %s exists", ErrInvalid, what)
	}
	return err
}

func (s *GormStore) CreateBoard(ctx context.Context, b model.Board) (model.Board, error) {
	if b.Title == "" {
		return model.Board{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	e := boardEntity{ID: b.ID, Title: b.Title, Description: b.Description, OwnerID: b.OwnerID}
	if err := s.db.WithContext(ctx).Create(&e).Error; err != nil {
		return model.Board{}, dbErr(err, "board "+b.ID)
	}
	return boardFromEntity(e), nil
}

func (s *GormStore) GetBoard(ctx context.Context, boardID string) (model.Board, error) {
	var e boardEntity
	if err := s.db.WithContext(ctx).Where("id = ?", boardID).First(&e).Error; err != nil {
		return model.Board{}, dbErr(err, "board "+boardID)
	}
	return boardFromEntity(e), nil
}

func (s *GormStore) GetItem(ctx context.Context, itemID string) (model.Item, error) {
	var e itemEntity
	if err := s.db.WithContext(ctx).Where("id = ?", itemID).First(&e).Error; err != nil {
		return model.Item{}, dbErr(err, "item "+itemID)
	}
	return itemFromEntity(e), nil
}

func (s *GormStore) ListChildren(ctx context.Context, parentID string) ([]model.Item, error) {
	var rows []itemEntity
	err := s.db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("sort_order ASC").Order("created_at ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.Item, 0, len(rows))
	for _, r := range rows {
		out = append(out, itemFromEntity(r))
	}
	return out, nil
}

func (s *GormStore) CreateItem(ctx context.Context, it model.Item) (model.Item, error) {
	if err := validateItem(it); err != nil {
		return model.Item{}, err
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	e := itemToEntity(it)
	if err := s.db.WithContext(ctx).Create(&e).Error; err != nil {
		return model.Item{}, dbErr(err, "item "+it.ID)
	}
	return itemFromEntity(e), nil
}

func (s *GormStore) UpdateItem(ctx context.Context, it model.Item) (model.Item, error) {
	if err := validateItem(it); err != nil {
		return model.Item{}, err
	}
	var out itemEntity
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur itemEntity
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", it.ID).First(&cur).Error; err != nil {
			return err
		}
		out = itemToEntity(it)
		out.CreatedAt = cur.CreatedAt
		return tx.Save(&out).Error
	})
	if err != nil {
		return model.Item{}, dbErr(err, "item "+it.ID)
	}
	return itemFromEntity(out), nil
}

// UpdateOrders skips rows whose parent or position changed after the
// rebalance read them.
func (s *GormStore) UpdateOrders(ctx context.Context, parentID string, changes []Reorder) ([]model.Item, error) {
	out := make([]model.Item, 0, len(changes))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range changes {
			res := tx.Model(&itemEntity{}).
				Where("id = ? AND parent_id = ? AND sort_order = ?", c.ID, parentID, c.Was).
				Update("sort_order", c.Order)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			var row itemEntity
			if err := tx.Where("id = ?", c.ID).First(&row).Error; err != nil {
				return err
			}
			out = append(out, itemFromEntity(row))
		}
		return nil
	})
	if err != nil {
		return nil, dbErr(err, "rebalance")
	}
	return out, nil
}

func (s *GormStore) DeleteItem(ctx context.Context, itemID string) (model.Item, error) {
	var cur itemEntity
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", itemID).First(&cur).Error; err != nil {
			return err
		}
		if err := tx.Where("parent_id = ?", itemID).Delete(&itemEntity{}).Error; err != nil {
			return err
		}
		return tx.Delete(&itemEntity{}, "id = ?", itemID).Error
	})
	if err != nil {
		return model.Item{}, dbErr(err, "item "+itemID)
	}
	return itemFromEntity(cur), nil
}

func (s *GormStore) Snapshot(ctx context.Context, boardID string) (model.BoardSnapshot, error) {
	b, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return model.BoardSnapshot{}, err
	}
	var rows []itemEntity
	err = s.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("sort_order ASC").Order("created_at ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return model.BoardSnapshot{}, err
	}
	snap := model.BoardSnapshot{Board: b, Columns: []model.Item{}, Cards: []model.Item{}}
	for _, r := range rows {
		it := itemFromEntity(r)
		if it.Kind == model.KindColumn {
			snap.Columns = append(snap.Columns, it)
		} else {
			snap.Cards = append(snap.Cards, it)
		}
	}
	return snap, nil
}
