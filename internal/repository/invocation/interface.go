package invocation

import (
	"context"

	"github.com/iyunix/mcp-openai/internal/domain"
)

// InvocationRepository stores the audit trail of tool calls.
type InvocationRepository interface {
	Create(ctx context.Context, inv *domain.Invocation) error
	FindByRequestID(ctx context.Context, requestID string) (*domain.Invocation, error)
	Recent(ctx context.Context, tool string, limit int) ([]domain.Invocation, error)
	CountByState(ctx context.Context) (map[string]int64, error)
}
