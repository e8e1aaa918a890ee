// File: internal/repository/invocation/invocation_repository.go
package invocation

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/iyunix/mcp-openai/internal/domain"
)

var ErrInvocationNotFound = errors.New("invocation not found")

const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 200
)

type gormInvocationRepository struct {
	db *gorm.DB
}

func NewInvocationRepository(db *gorm.DB) InvocationRepository {
	return &gormInvocationRepository{db: db}
}

func (r *gormInvocationRepository) Create(ctx context.Context, inv *domain.Invocation) error {
	if err := inv.IsValid(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(inv).Error; err != nil {
		return fmt.Errorf("database error recording invocation %s: %w", inv.RequestID, err)
	}
	return nil
}

func (r *gormInvocationRepository) FindByRequestID(ctx context.Context, requestID string) (*domain.Invocation, error) {
	if requestID == "" {
		return nil, errors.New("invalid request ID")
	}
	var inv domain.Invocation
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error fetching invocation: %w", err)
	}
	return &inv, nil
}

// Recent returns the newest invocations first, optionally filtered by tool.
func (r *gormInvocationRepository) Recent(ctx context.Context, tool string, limit int) ([]domain.Invocation, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	query := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if tool != "" {
		query = query.Where("tool = ?", tool)
	}

	var invocations []domain.Invocation
	if err := query.Find(&invocations).Error; err != nil {
		return nil, fmt.Errorf("database error fetching invocations: %w", err)
	}
	return invocations, nil
}

func (r *gormInvocationRepository) CountByState(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		State string
		Total int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.Invocation{}).
		Select("state, count(*) as total").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("database error counting invocations: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.State] = row.Total
	}
	return counts, nil
}
