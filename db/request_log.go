package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// RequestLog is one logical API call as seen by the client.
// Credentials and bodies are never stored.
type RequestLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RequestID  string    `gorm:"index" json:"request_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	Kind       string    `json:"kind,omitempty"`
	Attempts   int       `json:"attempts"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// RequestLogRepository persists and lists request log entries.
type RequestLogRepository interface {
	Append(ctx context.Context, entry *RequestLog) error
	Recent(ctx context.Context, limit int) ([]RequestLog, error)
	Prune(ctx context.Context, keep int) error
}

type gormRequestLogRepo struct{ db *gorm.DB }

// NewRequestLogRepository creates a RequestLogRepository backed by db.
func NewRequestLogRepository(db *gorm.DB) RequestLogRepository { return &gormRequestLogRepo{db: db} }

func (r *gormRequestLogRepo) Append(ctx context.Context, entry *RequestLog) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// Recent returns the newest entries first.
func (r *gormRequestLogRepo) Recent(ctx context.Context, limit int) ([]RequestLog, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	if limit <= 0 {
		limit = 20
	}
	var entries []RequestLog
	if err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Prune deletes everything but the newest keep entries.
func (r *gormRequestLogRepo) Prune(ctx context.Context, keep int) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	if keep < 0 {
		keep = 0
	}
	var cutoff RequestLog
	err := r.db.WithContext(ctx).Order("id DESC").Offset(keep).Limit(1).Find(&cutoff).Error
	if err != nil {
		return err
	}
	if cutoff.ID == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id <= ?", cutoff.ID).Delete(&RequestLog{}).Error
}
