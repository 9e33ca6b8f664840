package gorm

import (
	"context"
	"errors"
	"time"

	"conduit/domain/deployment"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) deployment.Repository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, e *deployment.Event) error {
	if e.Action == "" {
		return errors.New("event action is required")
	}
	e.ID = "evt_" + ulid.Make().String()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Outcome == "" {
		e.Outcome = deployment.OutcomeSucceeded
	}
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *EventRepository) FindAll(ctx context.Context, limit int) ([]deployment.Event, error) {
	var events []deployment.Event
	query := r.db.WithContext(ctx).Order("created_at desc").Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&events).Error
	return events, err
}

func (r *EventRepository) FindByTag(ctx context.Context, tag string) ([]deployment.Event, error) {
	var events []deployment.Event
	err := r.db.WithContext(ctx).Where("tag = ?", tag).Order("created_at desc").Order("id desc").Find(&events).Error
	return events, err
}
