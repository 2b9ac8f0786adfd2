package sql

import (
	"context"
	"fmt"

	"syncplay/internal/core/domain"
	"syncplay/internal/core/ports"

	"gorm.io/gorm"
)

type GormEventLog struct {
	db     *gorm.DB
	window int
}

func NewGormEventLog(db *gorm.DB, window int) ports.EventLog {
	if window <= 0 {
		window = 500
	}
	return &GormEventLog{db: db, window: window}
}

func (l *GormEventLog) Append(ctx context.Context, event *domain.Event) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(eventToModel(event)).Error; err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}

		newest := tx.Model(&EventModel{}).
			Select("id").
			Where("room_id = ?", string(event.RoomID)).
			Order("timestamp DESC").
			Limit(l.window)
		err := tx.Where("room_id = ? AND id NOT IN (?)", string(event.RoomID), newest).
			Delete(&EventModel{}).Error
		if err != nil {
			return fmt.Errorf("failed to trim events: %w", err)
		}
		return nil
	})
}

func (l *GormEventLog) Recent(ctx context.Context, roomID domain.RoomID, limit int) ([]*domain.Event, error) {
	query := l.db.WithContext(ctx).
		Where("room_id = ?", string(roomID)).
		Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []EventModel
	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	events := make([]*domain.Event, len(models))
	for i := range models {
		events[len(models)-1-i] = models[i].toDomain()
	}
	return events, nil
}

func (l *GormEventLog) DeleteRoom(ctx context.Context, roomID domain.RoomID) error {
	if err := l.db.WithContext(ctx).Where("room_id = ?", string(roomID)).Delete(&EventModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}
