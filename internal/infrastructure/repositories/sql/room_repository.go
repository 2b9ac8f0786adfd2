package sql

import (
	"context"
	"errors"
	"fmt"

	"syncplay/internal/core/domain"
	"syncplay/internal/core/ports"

	"gorm.io/gorm"
)

type GormRoomRepository struct {
	db *gorm.DB
}

func NewGormRoomRepository(db *gorm.DB) ports.RoomRepository {
	return &GormRoomRepository{db: db}
}

func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	model, participants := roomToModel(room)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&RoomModel{}).Where("id = ?", model.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check room: %w", err)
		}
		if count > 0 {
			return domain.ErrRoomExists
		}

		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}
		if len(participants) > 0 {
			if err := tx.Create(&participants).Error; err != nil {
				return fmt.Errorf("failed to create participants: %w", err)
			}
		}
		return nil
	})
}

func (r *GormRoomRepository) GetByID(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	db := r.db.WithContext(ctx)

	var model RoomModel
	if err := db.First(&model, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	var participants []ParticipantModel
	if err := db.Where("room_id = ?", model.ID).Order("joined_at").Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}

	return model.toDomain(participants), nil
}

// Update rewrites the room row and its participant set in one transaction.
func (r *GormRoomRepository) Update(ctx context.Context, room *domain.Room) error {
	model, participants := roomToModel(room)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&RoomModel{}).Where("id = ?", model.ID).Select("*").Omit("id", "created_at").Updates(model)
		if res.Error != nil {
			return fmt.Errorf("failed to update room: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrRoomNotFound
		}

		if err := tx.Where("room_id = ?", model.ID).Delete(&ParticipantModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear participants: %w", err)
		}
		if len(participants) > 0 {
			if err := tx.Create(&participants).Error; err != nil {
				return fmt.Errorf("failed to write participants: %w", err)
			}
		}
		return nil
	})
}

func (r *GormRoomRepository) Delete(ctx context.Context, id domain.RoomID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", string(id)).Delete(&ParticipantModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete participants: %w", err)
		}
		res := tx.Where("id = ?", string(id)).Delete(&RoomModel{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete room: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrRoomNotFound
		}
		return nil
	})
}

func (r *GormRoomRepository) List(ctx context.Context) ([]*domain.Room, error) {
	db := r.db.WithContext(ctx)

	var models []RoomModel
	if err := db.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	if len(models) == 0 {
		return []*domain.Room{}, nil
	}

	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}
	var participants []ParticipantModel
	if err := db.Where("room_id IN ?", ids).Order("joined_at").Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	byRoom := make(map[string][]ParticipantModel, len(models))
	for _, p := range participants {
		byRoom[p.RoomID] = append(byRoom[p.RoomID], p)
	}

	rooms := make([]*domain.Room, len(models))
	for i := range models {
		rooms[i] = models[i].toDomain(byRoom[models[i].ID])
	}
	return rooms, nil
}
