package repository

import (
	"context"

	"github.com/Shree113/newcd/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
	// Language filters by language key when non-empty.
	Language string
}

// ExecutionRepository stores execution history. Records are append-only.
type ExecutionRepository interface {
	Create(ctx context.Context, exec *model.Execution) error
	GetByID(ctx context.Context, id string) (*model.Execution, error)
	List(ctx context.Context, opts ListOptions) ([]model.Execution, error)
}
